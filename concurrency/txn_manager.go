package concurrency

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"
	"heapdb/common"
	"heapdb/transaction"
)

var (
	ErrUnknownTransaction = errors.New("transaction is not active")
	ErrTooManyRetries     = errors.New("transaction aborted too many times")
)

const (
	DefaultMaxRetries = 10
	retryBackoff      = 10 * time.Millisecond
)

// Completer ends a transaction by making its writes durable or dropping them, then releasing its locks.
type Completer interface {
	TransactionComplete(txn transaction.Transaction, commit bool) error
}

var _ transaction.Transaction = &txn{}

type txn struct {
	id      transaction.TxnID
	started time.Time
}

func (t *txn) GetID() transaction.TxnID {
	return t.id
}

// TxnManager keeps track of running transactions.
type TxnManager interface {
	Begin() transaction.Transaction
	Commit(transaction.Transaction) error
	CommitByID(transaction.TxnID) error
	Abort(transaction.Transaction) error
	AbortByID(id transaction.TxnID) error

	// Run executes fn in a new transaction and commits it. If fn fails because the transaction was aborted by a
	// lock timeout, it is rolled back and fn is run again in a fresh transaction.
	Run(ctx context.Context, fn func(txn transaction.Transaction) error) error

	BlockNewTransactions()
	ResumeNewTransactions()

	ActiveTransactions() []transaction.TxnID
}

var _ TxnManager = &TxnManagerImpl{}

type TxnManagerImpl struct {
	actives    map[transaction.TxnID]*txn
	mut        *sync.Mutex
	newTxn     *sync.RWMutex
	pool       Completer
	maxRetries int
	logger     *log.Logger
}

func NewTxnManager(pool Completer, maxRetries int, logger *log.Logger) *TxnManagerImpl {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &TxnManagerImpl{
		actives:    map[transaction.TxnID]*txn{},
		mut:        &sync.Mutex{},
		newTxn:     &sync.RWMutex{},
		pool:       pool,
		maxRetries: maxRetries,
		logger:     common.LoggerOrDiscard(logger),
	}
}

func (t *TxnManagerImpl) Begin() transaction.Transaction {
	t.newTxn.RLock()
	defer t.newTxn.RUnlock()

	t.mut.Lock()
	defer t.mut.Unlock()

	tx := &txn{id: transaction.NextID(), started: time.Now()}
	t.actives[tx.GetID()] = tx
	return tx
}

// Commit returns only after every page written by the transaction is on disk.
func (t *TxnManagerImpl) Commit(transaction transaction.Transaction) error {
	return t.CommitByID(transaction.GetID())
}

func (t *TxnManagerImpl) Abort(transaction transaction.Transaction) error {
	return t.AbortByID(transaction.GetID())
}

func (t *TxnManagerImpl) CommitByID(id transaction.TxnID) error {
	return t.complete(id, true)
}

func (t *TxnManagerImpl) AbortByID(id transaction.TxnID) error {
	return t.complete(id, false)
}

func (t *TxnManagerImpl) complete(id transaction.TxnID, commit bool) error {
	t.mut.Lock()
	tx, ok := t.actives[id]
	if ok {
		delete(t.actives, id)
	}
	t.mut.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownTransaction, "txn %d", id)
	}

	err := t.pool.TransactionComplete(tx, commit)
	t.logger.Debug().Uint64("txn", uint64(id)).Bool("commit", commit).Dur("took", time.Since(tx.started)).Err(err).Msg("transaction ended")
	return err
}

func (t *TxnManagerImpl) Run(ctx context.Context, fn func(txn transaction.Transaction) error) error {
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := t.Begin()
		err := fn(tx)
		if err == nil {
			return t.Commit(tx)
		}

		if abortErr := t.Abort(tx); abortErr != nil {
			return errors.Wrapf(abortErr, "abort after %v", err)
		}

		if !errors.Is(err, transaction.ErrTransactionAborted) {
			return err
		}

		t.logger.Info().Uint64("txn", uint64(tx.GetID())).Int("attempt", attempt+1).Err(err).Msg("transaction aborted, retrying")

		// randomized so that transactions which aborted each other do not collide again
		backoff := time.Duration(rand.Int63n(int64(retryBackoff) << uint(attempt%6)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return errors.Wrapf(ErrTooManyRetries, "%d attempts", t.maxRetries)
}

// BlockNewTransactions makes Begin wait until ResumeNewTransactions is called. Running transactions are not
// affected.
func (t *TxnManagerImpl) BlockNewTransactions() {
	t.newTxn.Lock()
}

func (t *TxnManagerImpl) ResumeNewTransactions() {
	t.newTxn.Unlock()
}

func (t *TxnManagerImpl) ActiveTransactions() []transaction.TxnID {
	t.mut.Lock()
	defer t.mut.Unlock()

	res := make([]transaction.TxnID, 0, len(t.actives))
	for id := range t.actives {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
