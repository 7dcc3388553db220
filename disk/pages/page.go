package pages

import (
	"fmt"

	"heapdb/transaction"
)

// PageID identifies a page slot in a table file. It is a value type so it can be used as a map key directly.
type PageID struct {
	TableID int
	PageNo  int
}

func NewPageID(tableID, pageNo int) PageID {
	return PageID{TableID: tableID, PageNo: pageNo}
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.TableID, p.PageNo)
}

// Less orders page ids by table first and then by page number.
func (p PageID) Less(other PageID) bool {
	if p.TableID != other.TableID {
		return p.TableID < other.TableID
	}
	return p.PageNo < other.PageNo
}

// RecordID is the storage location of a tuple.
type RecordID struct {
	PageID PageID
	SlotNo int
}

func NewRecordID(pid PageID, slotNo int) *RecordID {
	return &RecordID{PageID: pid, SlotNo: slotNo}
}

func (r RecordID) String() string {
	return fmt.Sprintf("%v/%d", r.PageID, r.SlotNo)
}

// Page is the in-memory representation of one on-disk page. The buffer pool only relies on this interface, table
// files decide the actual layout.
type Page interface {
	GetID() PageID

	// IsDirty returns the transaction that last dirtied the page and true, or false if the page holds no
	// unflushed writes.
	IsDirty() (transaction.TxnID, bool)
	MarkDirty(dirty bool, txn transaction.TxnID)

	// GetPageData serializes the page to exactly page size bytes.
	GetPageData() []byte
}
