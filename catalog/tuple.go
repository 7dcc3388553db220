package catalog

import (
	"strings"

	"github.com/pkg/errors"
	"heapdb/catalog/db_types"
	"heapdb/disk/pages"
)

var ErrSchemaMismatch = errors.New("values do not match schema")

// Tuple is one row: values ordered as the columns of its schema. Rid is set by the table file once the tuple is
// placed on a page. It is kept after a delete.
type Tuple struct {
	schema Schema
	values []*db_types.Value
	Rid    *pages.RecordID
}

func NewTupleWithSchema(values []*db_types.Value, schema Schema) (*Tuple, error) {
	if len(values) != schema.NumColumns() {
		return nil, errors.Wrapf(ErrSchemaMismatch, "schema has %d columns, got %d values", schema.NumColumns(), len(values))
	}

	for i, val := range values {
		if val == nil || val.GetTypeId() != schema.GetColumn(i).TypeId {
			return nil, errors.Wrapf(ErrSchemaMismatch, "value at %d is not of type %v", i, schema.GetColumn(i).TypeId)
		}
	}

	vals := make([]*db_types.Value, len(values))
	copy(vals, values)
	return &Tuple{schema: schema, values: vals}, nil
}

// NewTuple is a shorthand to build a tuple from plain go values: strings and integers that fit in an int32.
func NewTuple(schema Schema, values ...interface{}) (*Tuple, error) {
	vals := make([]*db_types.Value, len(values))
	for i, v := range values {
		val, err := db_types.ValueOf(v)
		if err != nil {
			return nil, errors.Wrapf(err, "value at %d", i)
		}
		vals[i] = val
	}
	return NewTupleWithSchema(vals, schema)
}

func (t *Tuple) GetSchema() Schema {
	return t.schema
}

func (t *Tuple) GetValue(columnIdx int) *db_types.Value {
	if columnIdx < 0 || columnIdx >= len(t.values) {
		return nil
	}
	return t.values[columnIdx]
}

func (t *Tuple) SetValue(columnIdx int, val *db_types.Value) error {
	if columnIdx < 0 || columnIdx >= len(t.values) || val.GetTypeId() != t.schema.GetColumn(columnIdx).TypeId {
		return errors.Wrapf(ErrSchemaMismatch, "cannot set column %d", columnIdx)
	}
	t.values[columnIdx] = val
	return nil
}

func (t *Tuple) GetRecordID() *pages.RecordID {
	return t.Rid
}

func (t *Tuple) SetRecordID(rid *pages.RecordID) {
	t.Rid = rid
}

// Serialize writes the tuple to dest which must be at least schema.TupleSize() bytes.
func (t *Tuple) Serialize(dest []byte) {
	for i, val := range t.values {
		col := t.schema.GetColumn(i)
		val.Serialize(dest[col.Offset : col.Offset+col.Size()])
	}
}

func DeserializeTuple(schema Schema, src []byte) *Tuple {
	vals := make([]*db_types.Value, schema.NumColumns())
	for i := range vals {
		col := schema.GetColumn(i)
		vals[i] = db_types.Deserialize(col.TypeId, src[col.Offset:col.Offset+col.Size()])
	}

	return &Tuple{schema: schema, values: vals}
}

// ValuesEqual compares values only, record ids are ignored.
func (t *Tuple) ValuesEqual(other *Tuple) bool {
	if other == nil || len(other.values) != len(t.values) {
		return false
	}

	for i := range t.values {
		if !t.values[i].Equals(other.values[i]) {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}

// Clone returns a copy of t. Values are immutable so they are shared.
func (t *Tuple) Clone() *Tuple {
	vals := make([]*db_types.Value, len(t.values))
	copy(vals, t.values)

	var rid *pages.RecordID
	if t.Rid != nil {
		r := *t.Rid
		rid = &r
	}

	return &Tuple{schema: t.schema, values: vals, Rid: rid}
}
