package locker

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

/*
	LockManager implements page level shared/exclusive locks for strict two phase locking. There is no wait-for graph;
	a request that cannot be granted waits until the page's holders change or its timeout elapses, after which the
	request fails with transaction.ErrTransactionAborted and the owner must abort the whole transaction. Deadlocks
	are broken this way at the cost of occasional unnecessary aborts.
*/

type LockManager struct {
	mu    sync.Mutex
	locks map[pages.PageID]*lock

	// txnLocks is the lock set of every transaction holding at least one lock
	txnLocks map[transaction.TxnID]map[pages.PageID]struct{}

	// changed is closed and replaced whenever a holder set shrinks, waking every waiter. Waiters re-evaluate the
	// lock table from scratch so no ordering among them is guaranteed.
	changed chan struct{}

	rnd    *rand.Rand
	logger *log.Logger
}

func NewLockManager(logger *log.Logger) *LockManager {
	return &LockManager{
		locks:    map[pages.PageID]*lock{},
		txnLocks: map[transaction.TxnID]map[pages.PageID]struct{}{},
		changed:  make(chan struct{}),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   common.LoggerOrDiscard(logger),
	}
}

// AcquireLock blocks until txn holds a lock of lockType on pid or timeout elapses. A shared lock held only by txn
// is upgraded in place. Asking for a lock txn already holds, or a shared lock while holding the exclusive one,
// returns immediately.
func (lm *LockManager) AcquireLock(txn transaction.TxnID, pid pages.PageID, lockType transaction.LockType, timeout time.Duration) error {
	start := time.Now()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		if lm.tryGrant(txn, pid, lockType) {
			return nil
		}

		elapsed := time.Since(start)
		if elapsed >= timeout {
			lm.logger.Info().Uint64("txn", uint64(txn)).Str("page", pid.String()).Str("type", lockType.String()).
				Dur("waited", elapsed).Msg("lock request timed out")
			return errors.Wrapf(transaction.ErrTransactionAborted, "txn %d waited %v for %v lock on page %v", txn, elapsed, lockType, pid)
		}

		lm.wait(lm.randomWait(timeout - elapsed))
	}
}

// tryGrant applies the compatibility rules and records the grant. Caller must hold lm.mu.
func (lm *LockManager) tryGrant(txn transaction.TxnID, pid pages.PageID, lockType transaction.LockType) bool {
	l, ok := lm.locks[pid]
	if !ok {
		lm.locks[pid] = newLock(pid, lockType, txn)
		lm.addToLockSet(txn, pid)
		lm.logger.Debug().Uint64("txn", uint64(txn)).Str("page", pid.String()).Str("type", lockType.String()).Msg("lock granted")
		return true
	}

	switch l.lockType {
	case transaction.Shared:
		if lockType == transaction.Shared {
			l.holders[txn] = struct{}{}
			lm.addToLockSet(txn, pid)
			return true
		}

		// upgrade is only possible when nobody else reads the page
		if l.isSoleHolder(txn) {
			l.lockType = transaction.Exclusive
			lm.logger.Debug().Uint64("txn", uint64(txn)).Str("page", pid.String()).Msg("lock upgraded")
			return true
		}
		return false
	default:
		return l.isSoleHolder(txn)
	}
}

// wait releases lm.mu until the lock table changes or d elapses. Caller must hold lm.mu.
func (lm *LockManager) wait(d time.Duration) {
	changed := lm.changed
	timer := time.NewTimer(d)
	defer timer.Stop()

	lm.mu.Unlock()
	select {
	case <-changed:
	case <-timer.C:
	}
	lm.mu.Lock()
}

// randomWait picks a wait in (0, remaining] so that competing waiters do not wake up in lock step.
func (lm *LockManager) randomWait(remaining time.Duration) time.Duration {
	if remaining <= time.Millisecond {
		return remaining
	}
	return time.Millisecond + time.Duration(lm.rnd.Int63n(int64(remaining-time.Millisecond)+1))
}

func (lm *LockManager) addToLockSet(txn transaction.TxnID, pid pages.PageID) {
	set, ok := lm.txnLocks[txn]
	if !ok {
		set = map[pages.PageID]struct{}{}
		lm.txnLocks[txn] = set
	}
	set[pid] = struct{}{}
}

// ReleaseLock removes txn from the holders of pid. Releasing a lock that is not held is a no-op.
func (lm *LockManager) ReleaseLock(txn transaction.TxnID, pid pages.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.release(txn, pid) {
		lm.broadcast()
	}
}

// ReleaseLocks releases every lock in txn's lock set.
func (lm *LockManager) ReleaseLocks(txn transaction.TxnID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	released := 0
	for pid := range lm.txnLocks[txn] {
		if lm.release(txn, pid) {
			released++
		}
	}

	if released > 0 {
		lm.logger.Debug().Uint64("txn", uint64(txn)).Int("count", released).Msg("locks released")
		lm.broadcast()
	}
}

// release returns true if txn was a holder of pid. Caller must hold lm.mu.
func (lm *LockManager) release(txn transaction.TxnID, pid pages.PageID) bool {
	if set, ok := lm.txnLocks[txn]; ok {
		delete(set, pid)
		if len(set) == 0 {
			delete(lm.txnLocks, txn)
		}
	}

	l, ok := lm.locks[pid]
	if !ok || !l.isHeldBy(txn) {
		return false
	}

	delete(l.holders, txn)
	if len(l.holders) == 0 {
		delete(lm.locks, pid)
	}
	return true
}

func (lm *LockManager) broadcast() {
	close(lm.changed)
	lm.changed = make(chan struct{})
}

func (lm *LockManager) HoldsLock(txn transaction.TxnID, pid pages.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	_, ok := lm.txnLocks[txn][pid]
	return ok
}

// LockedPages returns txn's lock set ordered by page id.
func (lm *LockManager) LockedPages(txn transaction.TxnID) []pages.PageID {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	res := make([]pages.PageID, 0, len(lm.txnLocks[txn]))
	for pid := range lm.txnLocks[txn] {
		res = append(res, pid)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Less(res[j]) })
	return res
}

// LockInfo returns the type and holders of the lock on pid, or false if the page is unlocked.
func (lm *LockManager) LockInfo(pid pages.PageID) (transaction.LockType, []transaction.TxnID, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	l, ok := lm.locks[pid]
	if !ok {
		return 0, nil, false
	}
	return l.lockType, l.holderIDs(), true
}
