package locker

import (
	"sort"

	"heapdb/disk/pages"
	"heapdb/transaction"
)

// lock is the lock record of one page. An exclusive lock has exactly one holder, a shared lock any positive number.
// A page without holders has no record at all.
type lock struct {
	pid      pages.PageID
	lockType transaction.LockType
	holders  map[transaction.TxnID]struct{}
}

func newLock(pid pages.PageID, lockType transaction.LockType, txn transaction.TxnID) *lock {
	return &lock{
		pid:      pid,
		lockType: lockType,
		holders:  map[transaction.TxnID]struct{}{txn: {}},
	}
}

func (l *lock) isHeldBy(txn transaction.TxnID) bool {
	_, ok := l.holders[txn]
	return ok
}

func (l *lock) isSoleHolder(txn transaction.TxnID) bool {
	return len(l.holders) == 1 && l.isHeldBy(txn)
}

func (l *lock) holderIDs() []transaction.TxnID {
	ids := make([]transaction.TxnID, 0, len(l.holders))
	for id := range l.holders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
