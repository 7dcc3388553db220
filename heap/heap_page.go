package heap

import (
	"sync"

	"github.com/pkg/errors"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

/**
 * Heap page format:
 *  ------------------------------------------------------------
 *  | OCCUPANCY BITMAP | SLOT 0 | SLOT 1 | ... | SLOT N-1 | PAD |
 *  ------------------------------------------------------------
 *
 *  Bitmap has one bit per slot, bit i is the (i%8)th least significant bit of byte i/8 and is set if slot i holds a
 *  tuple. Every slot is schema.TupleSize() bytes. N is the largest slot count for which the bitmap and the slots fit
 *  in a page.
 */

var (
	ErrPageFull       = errors.New("no empty slot in page")
	ErrTupleNotOnPage = errors.New("tuple is not on page")
)

var _ pages.Page = &HeapPage{}

type HeapPage struct {
	pid      pages.PageID
	schema   catalog.Schema
	pageSize int
	numSlots int
	header   []byte
	tuples   []*catalog.Tuple

	// mu guards page state against concurrent flushes and eviction scans. Page level locks of the lock manager
	// guard the logical content.
	mu      sync.RWMutex
	dirty   bool
	dirtier transaction.TxnID
}

// NumSlots returns how many tuples of schema fit in a page: each one needs its bytes plus one bitmap bit.
func NumSlots(pageSize int, schema catalog.Schema) int {
	return (pageSize * 8) / (schema.TupleSize()*8 + 1)
}

func headerSize(numSlots int) int {
	return common.CeilDiv(numSlots, 8)
}

// CreateEmptyPageData returns the bytes of a page without any tuples.
func CreateEmptyPageData(pageSize int) []byte {
	return make([]byte, pageSize)
}

// NewHeapPage decodes data into a page.
func NewHeapPage(pid pages.PageID, data []byte, schema catalog.Schema) (*HeapPage, error) {
	numSlots := NumSlots(len(data), schema)
	if numSlots == 0 {
		return nil, errors.Errorf("a tuple of %d bytes does not fit in a page of %d bytes", schema.TupleSize(), len(data))
	}

	hp := &HeapPage{
		pid:      pid,
		schema:   schema,
		pageSize: len(data),
		numSlots: numSlots,
		header:   make([]byte, headerSize(numSlots)),
		tuples:   make([]*catalog.Tuple, numSlots),
	}
	copy(hp.header, data)

	tupleSize := schema.TupleSize()
	offset := len(hp.header)
	for i := 0; i < numSlots; i++ {
		if hp.isSlotUsed(i) {
			t := catalog.DeserializeTuple(schema, data[offset:offset+tupleSize])
			t.Rid = pages.NewRecordID(pid, i)
			hp.tuples[i] = t
		}
		offset += tupleSize
	}

	return hp, nil
}

func NewEmptyHeapPage(pid pages.PageID, pageSize int, schema catalog.Schema) (*HeapPage, error) {
	return NewHeapPage(pid, CreateEmptyPageData(pageSize), schema)
}

func (hp *HeapPage) GetID() pages.PageID {
	return hp.pid
}

func (hp *HeapPage) IsDirty() (transaction.TxnID, bool) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.dirtier, hp.dirty
}

func (hp *HeapPage) MarkDirty(dirty bool, txn transaction.TxnID) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	hp.dirty = dirty
	if dirty {
		hp.dirtier = txn
	} else {
		hp.dirtier = 0
	}
}

func (hp *HeapPage) GetPageData() []byte {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	data := make([]byte, hp.pageSize)
	copy(data, hp.header)

	tupleSize := hp.schema.TupleSize()
	offset := len(hp.header)
	for i := 0; i < hp.numSlots; i++ {
		if hp.tuples[i] != nil {
			hp.tuples[i].Serialize(data[offset : offset+tupleSize])
		}
		offset += tupleSize
	}

	return data
}

func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) NumEmptySlots() int {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	n := 0
	for i := 0; i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			n++
		}
	}
	return n
}

func (hp *HeapPage) IsSlotUsed(i int) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.isSlotUsed(i)
}

// InsertTuple puts a copy of t into the first empty slot and sets t's record id to that slot.
func (hp *HeapPage) InsertTuple(t *catalog.Tuple) error {
	if !hp.schema.Equals(t.GetSchema()) {
		return errors.Wrapf(catalog.ErrSchemaMismatch, "page %v", hp.pid)
	}

	hp.mu.Lock()
	defer hp.mu.Unlock()

	for i := 0; i < hp.numSlots; i++ {
		if hp.isSlotUsed(i) {
			continue
		}

		rid := pages.NewRecordID(hp.pid, i)
		t.Rid = rid
		hp.tuples[i] = t.Clone()
		hp.setSlot(i, true)
		return nil
	}

	return errors.Wrapf(ErrPageFull, "page %v", hp.pid)
}

// DeleteTuple clears the slot t's record id points to. t keeps its record id so that the delete can be repeated if
// the transaction is aborted and retried.
func (hp *HeapPage) DeleteTuple(t *catalog.Tuple) error {
	rid := t.GetRecordID()
	if rid == nil || rid.PageID != hp.pid || rid.SlotNo < 0 || rid.SlotNo >= hp.numSlots {
		return errors.Wrapf(ErrTupleNotOnPage, "page %v", hp.pid)
	}

	hp.mu.Lock()
	defer hp.mu.Unlock()

	if !hp.isSlotUsed(rid.SlotNo) {
		return errors.Wrapf(ErrTupleNotOnPage, "slot %v is already empty", rid)
	}

	hp.setSlot(rid.SlotNo, false)
	hp.tuples[rid.SlotNo] = nil
	return nil
}

// GetTuple returns a copy of the tuple in slot i or nil if the slot is empty.
func (hp *HeapPage) GetTuple(i int) *catalog.Tuple {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	if i < 0 || i >= hp.numSlots || hp.tuples[i] == nil {
		return nil
	}
	return hp.tuples[i].Clone()
}

// Tuples returns copies of all tuples on the page in slot order.
func (hp *HeapPage) Tuples() []*catalog.Tuple {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	res := make([]*catalog.Tuple, 0)
	for _, t := range hp.tuples {
		if t != nil {
			res = append(res, t.Clone())
		}
	}
	return res
}

func (hp *HeapPage) isSlotUsed(i int) bool {
	return hp.header[i/8]&(1<<uint(i%8)) != 0
}

func (hp *HeapPage) setSlot(i int, used bool) {
	if used {
		hp.header[i/8] |= 1 << uint(i%8)
	} else {
		hp.header[i/8] &^= 1 << uint(i%8)
	}
}
