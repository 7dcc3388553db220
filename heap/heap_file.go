package heap

import (
	"hash/fnv"
	"path/filepath"

	"github.com/pkg/errors"
	"heapdb/catalog"
	"heapdb/disk"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

// PagePool is what a heap file needs from the buffer pool. Every page access of a transaction goes through it so
// that the page is locked and cached.
type PagePool interface {
	GetPage(txn transaction.Transaction, pid pages.PageID, perm transaction.Permissions) (pages.Page, error)
	ReleasePage(txn transaction.Transaction, pid pages.PageID)
	HoldsLock(txn transaction.Transaction, pid pages.PageID) bool
}

var _ catalog.DbFile = &HeapFile{}

// HeapFile stores the tuples of one table, unordered, in a flat file of heap pages.
type HeapFile struct {
	dm     disk.IDiskManager
	schema catalog.Schema
	id     int
	pool   PagePool
}

// NewHeapFile opens or creates the table file at path.
func NewHeapFile(path string, schema catalog.Schema, pageSize int, pool PagePool) (*HeapFile, error) {
	if NumSlots(pageSize, schema) == 0 {
		return nil, errors.Errorf("a tuple of %d bytes does not fit in a page of %d bytes", schema.TupleSize(), pageSize)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}

	dm, _, err := disk.NewDiskManager(abs, pageSize)
	if err != nil {
		return nil, err
	}

	return &HeapFile{
		dm:     dm,
		schema: schema,
		id:     fileID(abs),
		pool:   pool,
	}, nil
}

func fileID(absPath string) int {
	h := fnv.New32a()
	h.Write([]byte(absPath))
	return int(h.Sum32())
}

func (f *HeapFile) GetID() int {
	return f.id
}

func (f *HeapFile) GetSchema() catalog.Schema {
	return f.schema
}

func (f *HeapFile) Path() string {
	return f.dm.Path()
}

func (f *HeapFile) PageSize() int {
	return f.dm.PageSize()
}

// ReadPage reads and decodes the page directly from disk, bypassing the buffer pool.
func (f *HeapFile) ReadPage(pid pages.PageID) (pages.Page, error) {
	if pid.TableID != f.id {
		return nil, errors.Errorf("page %v does not belong to table %d", pid, f.id)
	}

	data := make([]byte, f.dm.PageSize())
	if err := f.dm.ReadPage(pid.PageNo, data); err != nil {
		return nil, err
	}

	return NewHeapPage(pid, data, f.schema)
}

func (f *HeapFile) WritePage(p pages.Page) error {
	if p.GetID().TableID != f.id {
		return errors.Errorf("page %v does not belong to table %d", p.GetID(), f.id)
	}

	return f.dm.WritePage(p.GetPageData(), p.GetID().PageNo)
}

func (f *HeapFile) NumPages() (int, error) {
	return f.dm.NumPages()
}

// AllocatePage appends an empty page to the file and returns its id.
func (f *HeapFile) AllocatePage() (pages.PageID, error) {
	pageNo, err := f.dm.AppendPage()
	if err != nil {
		return pages.PageID{}, err
	}
	return pages.NewPageID(f.id, pageNo), nil
}

// InsertTuple scans pages in order for an empty slot, write locking every page it looks at. If all pages are full a
// new page is appended to the file.
func (f *HeapFile) InsertTuple(txn transaction.Transaction, t *catalog.Tuple) ([]pages.Page, error) {
	if !f.schema.Equals(t.GetSchema()) {
		return nil, errors.Wrapf(catalog.ErrSchemaMismatch, "table %d", f.id)
	}

	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}

	for i := 0; i < numPages; i++ {
		hp, err := f.getHeapPage(txn, pages.NewPageID(f.id, i))
		if err != nil {
			return nil, err
		}

		if hp.NumEmptySlots() == 0 {
			continue
		}

		if err := hp.InsertTuple(t); err != nil {
			return nil, err
		}
		return []pages.Page{hp}, nil
	}

	pid, err := f.AllocatePage()
	if err != nil {
		return nil, err
	}

	hp, err := f.getHeapPage(txn, pid)
	if err != nil {
		return nil, err
	}

	if err := hp.InsertTuple(t); err != nil {
		return nil, err
	}
	return []pages.Page{hp}, nil
}

// DeleteTuple fetches the page of t's record id directly and clears its slot.
func (f *HeapFile) DeleteTuple(txn transaction.Transaction, t *catalog.Tuple) ([]pages.Page, error) {
	rid := t.GetRecordID()
	if rid == nil {
		return nil, errors.Wrap(ErrTupleNotOnPage, "tuple has no record id")
	}
	if rid.PageID.TableID != f.id {
		return nil, errors.Wrapf(ErrTupleNotOnPage, "record %v is not in table %d", rid, f.id)
	}

	hp, err := f.getHeapPage(txn, rid.PageID)
	if err != nil {
		return nil, err
	}

	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []pages.Page{hp}, nil
}

// Iterator returns a scan over all tuples of the file. See FileIterator for the meaning of mode.
func (f *HeapFile) Iterator(txn transaction.Transaction, mode ReleaseMode) *FileIterator {
	return newFileIterator(f, txn, mode)
}

func (f *HeapFile) Close() error {
	return f.dm.Close()
}

func (f *HeapFile) getHeapPage(txn transaction.Transaction, pid pages.PageID) (*HeapPage, error) {
	p, err := f.pool.GetPage(txn, pid, transaction.ReadWrite)
	if err != nil {
		return nil, err
	}

	hp, ok := p.(*HeapPage)
	if !ok {
		return nil, errors.Errorf("page %v is not a heap page", pid)
	}
	return hp, nil
}
