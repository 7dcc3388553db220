package transaction

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrTransactionAborted is returned when a transaction could not get a lock in time. It is not recoverable inside
// the operation that returned it; the owner of the transaction has to abort it as a whole and may retry.
var ErrTransactionAborted = errors.New("transaction aborted")

// LockType represents the type of lock
type LockType int

const (
	Shared LockType = iota
	Exclusive
)

func (l LockType) String() string {
	switch l {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("LockType(%d)", int(l))
	}
}

// Permissions is the access level a transaction asks for when it fetches a page.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

// LockType maps a permission to the lock that has to be held on the page.
func (p Permissions) LockType() LockType {
	if p == ReadWrite {
		return Exclusive
	}
	return Shared
}

func (p Permissions) String() string {
	if p == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

type TxnID uint64

// Transaction identifies one logical unit of work. The storage core only relies on its id.
type Transaction interface {
	GetID() TxnID
}

var txnCounter uint64

// NextID returns a process wide unique transaction id.
func NextID() TxnID {
	return TxnID(atomic.AddUint64(&txnCounter, 1))
}

var _ Transaction = txnNoop{}

type txnNoop struct {
	id TxnID
}

func (t txnNoop) GetID() TxnID {
	return t.id
}

// TxnNoop returns a transaction which is not tracked by any transaction manager. It is useful in tests and for
// single shot operations whose locks are released by the caller.
func TxnNoop() Transaction {
	return txnNoop{id: NextID()}
}
