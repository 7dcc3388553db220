package heap

import (
	"github.com/pkg/errors"
	"heapdb/catalog"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

var (
	ErrIteratorClosed = errors.New("iterator is not open")
	ErrNoMoreTuples   = errors.New("no more tuples")
)

// ReleaseMode decides what happens to the read lock of a page once a scan moves past it.
type ReleaseMode int

const (
	// HoldLocks keeps every page lock until the transaction completes (strict two phase locking).
	HoldLocks ReleaseMode = iota

	// ReleaseEarly releases the read lock of a page as soon as the scan leaves it, unless the transaction already
	// held a lock on the page before the scan fetched it. Writers may change already scanned pages before the
	// scanning transaction ends.
	ReleaseEarly
)

// FileIterator scans tuples of a heap file in ascending page order. Pages are fetched read only through the buffer
// pool. The scan ends after the last page that existed when it was opened.
//
// Usage: Open, then HasNext/Next until HasNext returns false; Rewind restarts, Close releases.
type FileIterator struct {
	file *HeapFile
	txn  transaction.Transaction
	mode ReleaseMode

	isOpen   bool
	numPages int

	// cursor
	pageNo     int
	slot       int
	page       *HeapPage
	heldBefore bool
}

func newFileIterator(f *HeapFile, txn transaction.Transaction, mode ReleaseMode) *FileIterator {
	return &FileIterator{file: f, txn: txn, mode: mode}
}

func (it *FileIterator) Open() error {
	n, err := it.file.NumPages()
	if err != nil {
		return err
	}

	it.numPages = n
	it.pageNo, it.slot, it.page = 0, 0, nil
	it.isOpen = true
	return nil
}

// HasNext positions the cursor at the next occupied slot, loading pages as needed.
func (it *FileIterator) HasNext() (bool, error) {
	if !it.isOpen {
		return false, nil
	}

	for {
		if it.page == nil {
			if it.pageNo >= it.numPages {
				return false, nil
			}

			if err := it.loadPage(); err != nil {
				return false, err
			}
		}

		for ; it.slot < it.page.NumSlots(); it.slot++ {
			if it.page.IsSlotUsed(it.slot) {
				return true, nil
			}
		}

		it.leavePage()
		it.pageNo++
	}
}

func (it *FileIterator) Next() (*catalog.Tuple, error) {
	if !it.isOpen {
		return nil, ErrIteratorClosed
	}

	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMoreTuples
	}

	t := it.page.GetTuple(it.slot)
	it.slot++
	return t, nil
}

// Rewind moves the cursor back to the first tuple. The page count snapshot taken at Open is kept.
func (it *FileIterator) Rewind() error {
	if !it.isOpen {
		return ErrIteratorClosed
	}

	it.leavePage()
	it.pageNo, it.slot = 0, 0
	return nil
}

func (it *FileIterator) Close() {
	if !it.isOpen {
		return
	}

	it.leavePage()
	it.isOpen = false
}

func (it *FileIterator) loadPage() error {
	pid := pages.NewPageID(it.file.GetID(), it.pageNo)
	it.heldBefore = it.file.pool.HoldsLock(it.txn, pid)

	p, err := it.file.pool.GetPage(it.txn, pid, transaction.ReadOnly)
	if err != nil {
		return err
	}

	hp, ok := p.(*HeapPage)
	if !ok {
		return errors.Errorf("page %v is not a heap page", pid)
	}

	it.page, it.slot = hp, 0
	return nil
}

func (it *FileIterator) leavePage() {
	if it.page == nil {
		return
	}

	// a page the transaction wrote to must stay locked until commit or abort
	dirtier, dirty := it.page.IsDirty()
	if it.mode == ReleaseEarly && !it.heldBefore && !(dirty && dirtier == it.txn.GetID()) {
		it.file.pool.ReleasePage(it.txn, it.page.GetID())
	}
	it.page = nil
}
