package buffer

import (
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/heap"
	"heapdb/locker"
	"heapdb/transaction"
)

// ErrBufferPoolFull is returned when a page has to be brought in but every resident page is dirty.
var ErrBufferPoolFull = errors.New("buffer pool is full of dirty pages")

// ErrTableInUse is returned when the pages of a table cannot be dropped because a transaction is using them.
var ErrTableInUse = errors.New("table has dirty or locked pages")

const (
	DefaultCapacity    = 500
	DefaultLockTimeout = 5000 * time.Millisecond
)

var _ heap.PagePool = &BufferPool{}

/*
	BufferPool caches at most capacity pages and is the only way transactions reach table pages. Every page fetch
	first takes the matching page lock in the lock manager, so the pool is where two phase locking is enforced.

	Dirty pages are never evicted (no-steal) and are written back only when their transaction commits (force), which
	is why the pool needs no log to undo or redo anything.
*/
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	pages    map[pages.PageID]pages.Page
	replacer IReplacer

	catalog     catalog.Catalog
	lockManager *locker.LockManager
	lockTimeout time.Duration
	logger      *log.Logger
}

func NewBufferPool(capacity int, cat catalog.Catalog, lm *locker.LockManager, lockTimeout time.Duration, logger *log.Logger) *BufferPool {
	return &BufferPool{
		capacity:    capacity,
		pages:       map[pages.PageID]pages.Page{},
		replacer:    OrderedReplacer{},
		catalog:     cat,
		lockManager: lm,
		lockTimeout: lockTimeout,
		logger:      common.LoggerOrDiscard(logger),
	}
}

// GetPage locks pid for txn according to perm and returns the cached page, reading it from its table file on a
// miss. A lock that cannot be acquired in time fails with transaction.ErrTransactionAborted and the transaction
// must be aborted by its owner.
func (b *BufferPool) GetPage(txn transaction.Transaction, pid pages.PageID, perm transaction.Permissions) (pages.Page, error) {
	if err := b.lockManager.AcquireLock(txn.GetID(), pid, perm.LockType(), b.lockTimeout); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pages[pid]; ok {
		return p, nil
	}

	file, err := b.catalog.GetDatabaseFile(pid.TableID)
	if err != nil {
		return nil, errors.Wrapf(err, "page %v", pid)
	}

	if err := b.makeRoom(); err != nil {
		return nil, err
	}

	p, err := file.ReadPage(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "read page %v", pid)
	}

	b.pages[pid] = p
	return p, nil
}

// makeRoom evicts pages until there is space for one more. Caller must hold b.mu.
func (b *BufferPool) makeRoom() error {
	for len(b.pages) >= b.capacity {
		victim, err := b.replacer.ChooseVictim(b.pages)
		if err != nil {
			b.logger.Warn().Int("resident", len(b.pages)).Msg("cannot evict, all pages are dirty")
			return errors.Wrapf(ErrBufferPoolFull, "capacity %d", b.capacity)
		}

		delete(b.pages, victim)
		b.logger.Debug().Str("page", victim.String()).Msg("page evicted")
	}
	return nil
}

// ReleasePage gives up txn's lock on pid before the transaction completes. The caller is responsible for not
// breaking two phase locking with it.
func (b *BufferPool) ReleasePage(txn transaction.Transaction, pid pages.PageID) {
	b.lockManager.ReleaseLock(txn.GetID(), pid)
}

func (b *BufferPool) HoldsLock(txn transaction.Transaction, pid pages.PageID) bool {
	return b.lockManager.HoldsLock(txn.GetID(), pid)
}

// InsertTuple adds t to the table and marks every page the table file modified dirty by txn.
func (b *BufferPool) InsertTuple(txn transaction.Transaction, tableID int, t *catalog.Tuple) error {
	file, err := b.catalog.GetDatabaseFile(tableID)
	if err != nil {
		return err
	}

	modified, err := file.InsertTuple(txn, t)
	if err != nil {
		return err
	}

	return b.cacheDirty(txn, modified)
}

// DeleteTuple removes t, located by its record id, from its table.
func (b *BufferPool) DeleteTuple(txn transaction.Transaction, t *catalog.Tuple) error {
	rid := t.GetRecordID()
	if rid == nil {
		return errors.Wrap(heap.ErrTupleNotOnPage, "tuple has no record id")
	}

	file, err := b.catalog.GetDatabaseFile(rid.PageID.TableID)
	if err != nil {
		return err
	}

	modified, err := file.DeleteTuple(txn, t)
	if err != nil {
		return err
	}

	return b.cacheDirty(txn, modified)
}

// cacheDirty marks modified pages dirty and makes them the resident copy of their page id.
func (b *BufferPool) cacheDirty(txn transaction.Transaction, modified []pages.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range modified {
		p.MarkDirty(true, txn.GetID())
		if _, ok := b.pages[p.GetID()]; !ok {
			if err := b.makeRoom(); err != nil {
				return err
			}
		}
		b.pages[p.GetID()] = p
	}
	return nil
}

// TransactionComplete ends txn. On commit the dirty pages txn locked are written to disk, on abort they are dropped
// so that the next read sees the last committed version. In both cases every lock of txn is released afterwards.
func (b *BufferPool) TransactionComplete(txn transaction.Transaction, commit bool) error {
	id := txn.GetID()
	locked := b.lockManager.LockedPages(id)

	var err error
	if commit {
		if err = b.flushPages(locked); err != nil {
			// whatever was not written must not survive as someone else's cached state
			b.discardDirty(locked)
		}
	} else {
		b.discardDirty(locked)
	}

	b.lockManager.ReleaseLocks(id)
	b.logger.Debug().Uint64("txn", uint64(id)).Bool("commit", commit).Int("pages", len(locked)).Msg("transaction completed")

	return errors.Wrapf(err, "commit txn %d", id)
}

func (b *BufferPool) discardDirty(pids []pages.PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pid := range pids {
		if p, ok := b.pages[pid]; ok {
			if _, dirty := p.IsDirty(); dirty {
				delete(b.pages, pid)
				b.logger.Debug().Str("page", pid.String()).Msg("dirty page discarded")
			}
		}
	}
}

// DiscardPage drops pid from the pool without writing it back.
func (b *BufferPool) DiscardPage(pid pages.PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.pages, pid)
}

// DiscardTable drops every resident page of tableID. Nothing is dropped if one of them is dirty or locked.
func (b *BufferPool) DiscardTable(tableID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	victims := make([]pages.PageID, 0)
	for pid, p := range b.pages {
		if pid.TableID != tableID {
			continue
		}

		if _, dirty := p.IsDirty(); dirty {
			return errors.Wrapf(ErrTableInUse, "page %v is dirty", pid)
		}
		if _, holders, locked := b.lockManager.LockInfo(pid); locked {
			return errors.Wrapf(ErrTableInUse, "page %v is locked by %v", pid, holders)
		}
		victims = append(victims, pid)
	}

	for _, pid := range victims {
		delete(b.pages, pid)
	}
	b.logger.Debug().Int("table", tableID).Int("pages", len(victims)).Msg("table pages discarded")
	return nil
}

// FlushPage writes pid to disk if it is resident and dirty.
func (b *BufferPool) FlushPage(pid pages.PageID) error {
	return b.flushPages([]pages.PageID{pid})
}

// FlushPages writes every dirty page txn holds a lock on.
func (b *BufferPool) FlushPages(txn transaction.Transaction) error {
	return b.flushPages(b.lockManager.LockedPages(txn.GetID()))
}

func (b *BufferPool) flushPages(pids []pages.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pid := range pids {
		p, ok := b.pages[pid]
		if !ok {
			continue
		}

		if err := b.writeBack(p); err != nil {
			return err
		}
	}
	return nil
}

// writeBack writes p to its table file if it is dirty and marks it clean.
func (b *BufferPool) writeBack(p pages.Page) error {
	if _, dirty := p.IsDirty(); !dirty {
		return nil
	}

	file, err := b.catalog.GetDatabaseFile(p.GetID().TableID)
	if err != nil {
		return errors.Wrapf(err, "flush page %v", p.GetID())
	}

	if err := file.WritePage(p); err != nil {
		return errors.Wrapf(err, "flush page %v", p.GetID())
	}

	p.MarkDirty(false, 0)
	b.logger.Debug().Str("page", p.GetID().String()).Msg("page flushed")
	return nil
}

// FlushAllPages writes every dirty page to disk, including pages of running transactions. Files are written
// concurrently, pages of one file in sequence.
func (b *BufferPool) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byTable := map[int][]pages.Page{}
	for pid, p := range b.pages {
		if _, dirty := p.IsDirty(); dirty {
			byTable[pid.TableID] = append(byTable[pid.TableID], p)
		}
	}

	var g errgroup.Group
	for _, ps := range byTable {
		ps := ps
		g.Go(func() error {
			for _, p := range ps {
				if err := b.writeBack(p); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// Size returns the number of resident pages.
func (b *BufferPool) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func (b *BufferPool) Capacity() int {
	return b.capacity
}

// IsResident reports whether pid is cached, without locking it.
func (b *BufferPool) IsResident(pid pages.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.pages[pid]
	return ok
}

func (b *BufferPool) Close() error {
	return b.FlushAllPages()
}
