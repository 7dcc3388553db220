package db

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/phuslu/log"
	"github.com/pkg/errors"
	"heapdb/buffer"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/concurrency"
	"heapdb/heap"
	"heapdb/locker"
	"heapdb/transaction"
)

const tableFileExt = ".dat"

// DB wires the catalog, lock manager, buffer pool and transaction manager of one database directory. Nothing is
// shared between two DBs, so any number of them can live in one process.
type DB struct {
	opts Options

	Ctl  *catalog.InMemCatalog
	Pool *buffer.BufferPool
	Tm   concurrency.TxnManager
	lm   *locker.LockManager

	l       *log.Logger
	logFile io.Closer
}

func Open(opts Options) (*DB, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", opts.Dir)
	}

	var w io.Writer = os.Stderr
	var logFile io.Closer
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", opts.LogFile)
		}
		w, logFile = f, f
	}
	l := common.NewLogger(opts.LogLevel, w)

	ctl := catalog.NewCatalog()
	lm := locker.NewLockManager(l)
	pool := buffer.NewBufferPool(opts.BufferPages, ctl, lm, opts.LockTimeout, l)
	tm := concurrency.NewTxnManager(pool, opts.MaxTxnRetries, l)

	l.Info().Str("dir", opts.Dir).Int("page_size", opts.PageSize).Int("buffer_pages", opts.BufferPages).
		Dur("lock_timeout", opts.LockTimeout).Msg("database opened")

	return &DB{
		opts:    opts,
		Ctl:     ctl,
		Pool:    pool,
		Tm:      tm,
		lm:      lm,
		l:       l,
		logFile: logFile,
	}, nil
}

// CreateTable opens or creates the file of table name in the data directory and registers it. A table registered
// under the same name before is replaced.
func (db *DB) CreateTable(name string, schema catalog.Schema, primaryKey string) (*catalog.TableInfo, error) {
	if name == "" {
		return nil, errors.New("table name cannot be empty")
	}

	if primaryKey != "" {
		if _, err := schema.GetColIdx(primaryKey); err != nil {
			return nil, errors.Wrapf(err, "primary key of %s", name)
		}
	}

	// cached pages of a replaced table were decoded with its old schema
	old, _ := db.Table(name)
	if old != nil {
		if err := db.Pool.DiscardTable(old.ID()); err != nil {
			return nil, errors.Wrapf(err, "replace table %s", name)
		}
	}

	path := filepath.Join(db.opts.Dir, name+tableFileExt)
	file, err := heap.NewHeapFile(path, schema, db.opts.PageSize, db.Pool)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", name)
	}

	info := db.Ctl.AddTable(file, name, primaryKey)
	if old != nil {
		if err := old.File.Close(); err != nil {
			db.l.Warn().Str("table", name).Err(err).Msg("closing replaced table file")
		}
	}
	db.l.Info().Str("table", name).Int("id", file.GetID()).Str("schema", schema.String()).Msg("table added")
	return info, nil
}

// LoadSchema creates every table of a schema file. Each line of it describes one table as
// "name (field type [pk], ...)" where type is int or string.
func (db *DB) LoadSchema(path string) ([]*catalog.TableInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open schema %s", path)
	}
	defer f.Close()

	defs, err := catalog.ParseSchemaFile(f)
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}

	res := make([]*catalog.TableInfo, 0, len(defs))
	for _, def := range defs {
		info, err := db.CreateTable(def.Name, def.Schema, def.PrimaryKey)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, nil
}

// Table returns the registered table called name.
func (db *DB) Table(name string) (*catalog.TableInfo, error) {
	id, err := db.Ctl.GetTableID(name)
	if err != nil {
		return nil, err
	}
	return db.Ctl.Lookup(id)
}

// Insert builds a tuple of table name from values and inserts it in txn.
func (db *DB) Insert(txn transaction.Transaction, table string, values ...interface{}) (*catalog.Tuple, error) {
	info, err := db.Table(table)
	if err != nil {
		return nil, err
	}

	t, err := catalog.NewTuple(info.Schema(), values...)
	if err != nil {
		return nil, err
	}

	if err := db.Pool.InsertTuple(txn, info.ID(), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) Delete(txn transaction.Transaction, t *catalog.Tuple) error {
	return db.Pool.DeleteTuple(txn, t)
}

// Scan returns an unopened iterator over table name. Scans keep their page locks until txn ends.
func (db *DB) Scan(txn transaction.Transaction, table string) (*heap.FileIterator, error) {
	info, err := db.Table(table)
	if err != nil {
		return nil, err
	}

	file, ok := info.File.(*heap.HeapFile)
	if !ok {
		return nil, errors.Errorf("table %s is not a heap file", table)
	}
	return file.Iterator(txn, heap.HoldLocks), nil
}

// Run executes fn in a transaction, retrying it when it is aborted by a lock timeout.
func (db *DB) Run(ctx context.Context, fn func(txn transaction.Transaction) error) error {
	return db.Tm.Run(ctx, fn)
}

func (db *DB) LockManager() *locker.LockManager {
	return db.lm
}

func (db *DB) Logger() *log.Logger {
	return db.l
}

func (db *DB) Options() Options {
	return db.opts
}

// Close aborts transactions that are still running, writes back the pool and closes every table file. The DB
// cannot be used afterwards.
func (db *DB) Close() error {
	db.Tm.BlockNewTransactions()
	defer db.Tm.ResumeNewTransactions()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, id := range db.Tm.ActiveTransactions() {
		db.l.Warn().Uint64("txn", uint64(id)).Msg("aborting transaction on close")
		keep(db.Tm.AbortByID(id))
	}

	keep(db.Pool.Close())

	for _, id := range db.Ctl.TableIDs() {
		file, err := db.Ctl.GetDatabaseFile(id)
		if err != nil {
			keep(err)
			continue
		}
		keep(file.Close())
	}
	db.Ctl.Clear()

	db.l.Info().Str("dir", db.opts.Dir).Err(firstErr).Msg("database closed")
	if db.logFile != nil {
		keep(db.logFile.Close())
	}

	return firstErr
}
