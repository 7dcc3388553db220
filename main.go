package main

import (
	"context"
	"os"

	"heapdb/catalog"
	"heapdb/catalog/db_types"
	"heapdb/common"
	"heapdb/db"
	"heapdb/transaction"
)

func main() {
	logger := common.NewLogger("info", os.Stderr)

	opts := db.DefaultOptions("./heapdb_data")
	opts.LogLevel = "debug"
	opts.LogFile = "info.log"

	hdb, err := db.Open(opts)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open database")
		return
	}
	defer func() {
		if err := hdb.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()

	// tables come from a schema file if one is given
	if len(os.Args) > 1 {
		if _, err := hdb.LoadSchema(os.Args[1]); err != nil {
			logger.Error().Err(err).Msg("failed to load schema")
			return
		}
	}

	schema := catalog.NewSchemaFromTypes([]db_types.TypeID{db_types.IntTypeID, db_types.StringTypeID}, []string{"id", "name"})
	if _, err := hdb.CreateTable("people", schema, "id"); err != nil {
		logger.Error().Err(err).Msg("failed to create table")
		return
	}

	names := []string{"ada", "alan", "barbara", "edsger", "grace"}
	err = hdb.Run(context.Background(), func(txn transaction.Transaction) error {
		for i, name := range names {
			if _, err := hdb.Insert(txn, "people", i, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("insert failed")
		return
	}

	err = hdb.Run(context.Background(), func(txn transaction.Transaction) error {
		it, err := hdb.Scan(txn, "people")
		if err != nil {
			return err
		}
		if err := it.Open(); err != nil {
			return err
		}
		defer it.Close()

		count := 0
		for {
			ok, err := it.HasNext()
			if err != nil {
				return err
			}
			if !ok {
				break
			}

			t, err := it.Next()
			if err != nil {
				return err
			}
			logger.Info().Str("tuple", t.String()).Str("rid", t.GetRecordID().String()).Msg("scanned")
			count++
		}

		logger.Info().Int("count", count).Int("resident_pages", hdb.Pool.Size()).Msg("scan done")
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("scan failed")
	}
}
