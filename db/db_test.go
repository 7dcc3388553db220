package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"heapdb/buffer"
	"heapdb/catalog"
	"heapdb/catalog/db_types"
	"heapdb/transaction"
)

func mkDBTemp(t *testing.T, configure func(opts *Options)) *DB {
	opts := DefaultOptions(t.TempDir())
	opts.LogLevel = "error"
	opts.LogFile = filepath.Join(opts.Dir, "info.log")
	if configure != nil {
		configure(&opts)
	}

	db, err := Open(opts)
	require.NoError(t, err)
	return db
}

func accountSchema() catalog.Schema {
	return catalog.NewSchemaFromTypes(
		[]db_types.TypeID{db_types.IntTypeID, db_types.StringTypeID, db_types.IntTypeID},
		[]string{"id", "owner", "balance"},
	)
}

func scanAll(t *testing.T, db *DB, txn transaction.Transaction, table string) ([]*catalog.Tuple, error) {
	it, err := db.Scan(txn, table)
	require.NoError(t, err)
	if err := it.Open(); err != nil {
		return nil, err
	}
	defer it.Close()

	res := make([]*catalog.Tuple, 0)
	for {
		ok, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return res, nil
		}

		tuple, err := it.Next()
		if err != nil {
			return nil, err
		}
		res = append(res, tuple)
	}
}

func TestOptions_Check(t *testing.T) {
	opts := DefaultOptions("x")
	require.NoError(t, opts.Check())
	assert.Equal(t, 4096, opts.PageSize)
	assert.Equal(t, 500, opts.BufferPages)
	assert.Equal(t, 5000*time.Millisecond, opts.LockTimeout)

	cases := []struct {
		change func(o *Options)
		err    error
	}{
		{func(o *Options) { o.Dir = "" }, ErrEmptyDir},
		{func(o *Options) { o.BufferPages = 0 }, ErrZeroBufferCapacity},
		{func(o *Options) { o.PageSize = -1 }, ErrInvalidPageSize},
		{func(o *Options) { o.LockTimeout = 0 }, ErrNonPositiveTimeout},
		{func(o *Options) { o.MaxTxnRetries = -1 }, ErrNegativeTxnRetries},
	}
	for _, c := range cases {
		o := DefaultOptions("x")
		c.change(&o)
		assert.ErrorIs(t, o.Check(), c.err)

		_, err := Open(o)
		assert.ErrorIs(t, err, c.err)
	}
}

func TestDB_Committed_Data_Survives_Reopen(t *testing.T) {
	db := mkDBTemp(t, nil)
	dir := db.Options().Dir

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	err = db.Run(context.Background(), func(txn transaction.Transaction) error {
		for i := 0; i < 100; i++ {
			if _, err := db.Insert(txn, "accounts", i, "owner", 10); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = mkDBTemp(t, func(opts *Options) { opts.Dir = dir })
	defer db.Close()
	_, err = db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	txn := db.Tm.Begin()
	tuples, err := scanAll(t, db, txn, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))

	require.Len(t, tuples, 100)
	for i, tuple := range tuples {
		assert.EqualValues(t, i, tuple.GetValue(0).GetAsInterface())
		assert.Equal(t, "owner", tuple.GetValue(1).GetAsInterface())
	}
}

func TestDB_Aborted_Transaction_Leaves_No_Trace(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	setup := db.Tm.Begin()
	kept, err := db.Insert(setup, "accounts", 1, "kept", 1)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(setup))

	txn := db.Tm.Begin()
	_, err = db.Insert(txn, "accounts", 2, "dropped", 2)
	require.NoError(t, err)
	require.NoError(t, db.Delete(txn, kept))
	require.NoError(t, db.Tm.Abort(txn))

	reader := db.Tm.Begin()
	tuples, err := scanAll(t, db, reader, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(reader))

	require.Len(t, tuples, 1)
	assert.Equal(t, "kept", tuples[0].GetValue(1).GetAsInterface())
}

func TestDB_Reader_Times_Out_On_Written_Page(t *testing.T) {
	timeout := 300 * time.Millisecond
	db := mkDBTemp(t, func(opts *Options) { opts.LockTimeout = timeout })
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	writer := db.Tm.Begin()
	_, err = db.Insert(writer, "accounts", 1, "w", 1)
	require.NoError(t, err)

	reader := db.Tm.Begin()
	start := time.Now()
	_, err = scanAll(t, db, reader, "accounts")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, transaction.ErrTransactionAborted)
	assert.GreaterOrEqual(t, elapsed, timeout)
	require.NoError(t, db.Tm.Abort(reader))

	require.NoError(t, db.Tm.Commit(writer))
	assert.Empty(t, db.LockManager().LockedPages(writer.GetID()))
}

func TestConcurrent_Inserts_All_Land(t *testing.T) {
	db := mkDBTemp(t, func(opts *Options) {
		opts.LockTimeout = 500 * time.Millisecond
		opts.MaxTxnRetries = 100
		opts.PageSize = 512
	})
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	workers, perWorker := 8, 25
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				id := w*perWorker + i
				err := db.Run(ctx, func(txn transaction.Transaction) error {
					_, err := db.Insert(txn, "accounts", id, "c", id)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	txn := db.Tm.Begin()
	tuples, err := scanAll(t, db, txn, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))

	seen := map[int32]bool{}
	for _, tuple := range tuples {
		seen[tuple.GetValue(0).GetAsInterface().(int32)] = true
	}
	assert.Len(t, tuples, workers*perWorker)
	assert.Len(t, seen, workers*perWorker)
	assert.Empty(t, db.Tm.ActiveTransactions())
}

func TestDB_Load_Schema(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	path := filepath.Join(db.Options().Dir, "schema.txt")
	require.NoError(t, os.WriteFile(path, []byte("users (id int pk, name string)\nvisits (user int, page string)\n"), 0o644))

	infos, err := db.LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	users, err := db.Table("users")
	require.NoError(t, err)
	assert.Equal(t, "id", users.PrimaryKey)
	assert.True(t, users.Schema().Equals(infos[0].Schema()))

	_, err = db.Table("nope")
	assert.ErrorIs(t, err, catalog.ErrNoSuchTable)

	_, err = os.Stat(filepath.Join(db.Options().Dir, "visits.dat"))
	assert.NoError(t, err)
}

func TestDB_Close_Aborts_Running_Transactions(t *testing.T) {
	db := mkDBTemp(t, nil)
	dir := db.Options().Dir

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	txn := db.Tm.Begin()
	_, err = db.Insert(txn, "accounts", 1, "never", 1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = mkDBTemp(t, func(opts *Options) { opts.Dir = dir })
	defer db.Close()
	_, err = db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	reader := db.Tm.Begin()
	tuples, err := scanAll(t, db, reader, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(reader))
	assert.Empty(t, tuples)
}

func TestDB_Recreated_Table_Drops_Cached_Pages(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	txn := db.Tm.Begin()
	_, err = db.Insert(txn, "accounts", 1, "old", 1)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))

	ids := catalog.NewSchemaFromTypes([]db_types.TypeID{db_types.IntTypeID}, []string{"id"})
	info, err := db.CreateTable("accounts", ids, "id")
	require.NoError(t, err)
	assert.True(t, info.Schema().Equals(ids))

	txn = db.Tm.Begin()
	tuple, err := db.Insert(txn, "accounts", 7)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))
	assert.True(t, tuple.GetSchema().Equals(ids))
}

func TestDB_Table_In_Use_Cannot_Be_Recreated(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	txn := db.Tm.Begin()
	_, err = db.Insert(txn, "accounts", 1, "running", 1)
	require.NoError(t, err)

	_, err = db.CreateTable("accounts", accountSchema(), "id")
	assert.ErrorIs(t, err, buffer.ErrTableInUse)

	// the running transaction still works on the original registration
	_, err = db.Insert(txn, "accounts", 2, "running", 2)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))

	reader := db.Tm.Begin()
	tuples, err := scanAll(t, db, reader, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(reader))
	assert.Len(t, tuples, 2)
}

func TestDB_Insert_Rejects_Values_That_Do_Not_Fit(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	txn := db.Tm.Begin()
	_, err = db.Insert(txn, "accounts", 1<<32+5, "a", 10)
	assert.ErrorIs(t, err, db_types.ErrOutOfRange)

	_, err = db.Insert(txn, "accounts", 2.5, "b", 10)
	assert.ErrorIs(t, err, db_types.ErrUnknownType)

	_, err = db.Insert(txn, "accounts", int64(7), "c", 10)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(txn))

	reader := db.Tm.Begin()
	tuples, err := scanAll(t, db, reader, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(reader))
	require.Len(t, tuples, 1)
	assert.Equal(t, int32(7), tuples[0].GetValue(0).GetAsInterface())
}

func TestDB_Delete_Can_Be_Retried_After_Abort(t *testing.T) {
	db := mkDBTemp(t, nil)
	defer db.Close()

	_, err := db.CreateTable("accounts", accountSchema(), "id")
	require.NoError(t, err)

	setup := db.Tm.Begin()
	row, err := db.Insert(setup, "accounts", 1, "gone", 1)
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(setup))
	rid := *row.GetRecordID()

	txn := db.Tm.Begin()
	require.NoError(t, db.Delete(txn, row))
	require.NoError(t, db.Tm.Abort(txn))
	assert.Equal(t, rid, *row.GetRecordID())

	retry := db.Tm.Begin()
	require.NoError(t, db.Delete(retry, row))
	require.NoError(t, db.Tm.Commit(retry))

	reader := db.Tm.Begin()
	tuples, err := scanAll(t, db, reader, "accounts")
	require.NoError(t, err)
	require.NoError(t, db.Tm.Commit(reader))
	assert.Empty(t, tuples)
}
