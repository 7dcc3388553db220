package catalog

import (
	"heapdb/disk/pages"
	"heapdb/transaction"
)

// DbFile is the storage handle of a table. The buffer pool reads and writes pages through it and delegates tuple
// placement to it.
type DbFile interface {
	ReadPage(pid pages.PageID) (pages.Page, error)

	// WritePage is only invoked when the buffer pool flushes a page.
	WritePage(p pages.Page) error
	NumPages() (int, error)

	// GetID returns an id that is stable for the lifetime of the underlying file.
	GetID() int
	GetSchema() Schema

	// InsertTuple places t on some page and returns the pages it modified.
	InsertTuple(txn transaction.Transaction, t *Tuple) ([]pages.Page, error)

	// DeleteTuple clears t's slot, located by its record id, and returns the pages it modified.
	DeleteTuple(txn transaction.Transaction, t *Tuple) ([]pages.Page, error)
	Close() error
}

type TableInfo struct {
	Name       string
	PrimaryKey string
	File       DbFile
}

func (t *TableInfo) ID() int {
	return t.File.GetID()
}

func (t *TableInfo) Schema() Schema {
	return t.File.GetSchema()
}
