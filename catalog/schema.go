package catalog

import (
	"hash/fnv"
	"strings"

	"github.com/pkg/errors"
	"heapdb/catalog/db_types"
)

var ErrNoSuchColumn = errors.New("column does not exist")

// Schema describes the ordered, typed fields of the tuples of a table. All fields have a fixed width hence every
// tuple of a schema serializes to TupleSize bytes.
type Schema interface {
	GetColumns() []Column
	GetColumn(idx int) *Column
	GetColIdx(name string) (int, error)
	NumColumns() int
	TupleSize() int

	Equals(other Schema) bool

	// Hash is consistent with Equals: it is computed over the ordered (type, name) pairs.
	Hash() uint64
	String() string
}

type SchemaImpl struct {
	columns []Column
	size    int
}

func (s *SchemaImpl) GetColIdx(name string) (int, error) {
	for i, column := range s.columns {
		if column.Name == name {
			return i, nil
		}
	}

	return 0, errors.Wrapf(ErrNoSuchColumn, "%q", name)
}

func (s *SchemaImpl) GetColumns() []Column {
	return s.columns
}

func (s *SchemaImpl) GetColumn(idx int) *Column {
	return &s.columns[idx]
}

func (s *SchemaImpl) NumColumns() int {
	return len(s.columns)
}

func (s *SchemaImpl) TupleSize() int {
	return s.size
}

func (s *SchemaImpl) Equals(other Schema) bool {
	if other == nil || other.NumColumns() != s.NumColumns() {
		return false
	}

	for i, col := range other.GetColumns() {
		if col.Name != s.columns[i].Name || col.TypeId != s.columns[i].TypeId {
			return false
		}
	}

	return true
}

func (s *SchemaImpl) Hash() uint64 {
	h := fnv.New64a()
	for _, col := range s.columns {
		h.Write([]byte{byte(col.TypeId)})
		h.Write([]byte(col.Name))
		// separator so that ("ab", "c") and ("a", "bc") differ
		h.Write([]byte{0})
	}

	return h.Sum64()
}

func (s *SchemaImpl) String() string {
	parts := make([]string, 0, len(s.columns))
	for i := range s.columns {
		parts = append(parts, s.columns[i].String())
	}
	return strings.Join(parts, ",")
}

func NewSchema(cols []Column) Schema {
	columns := make([]Column, len(cols))
	copy(columns, cols)

	// set offsets of each column
	offset := 0
	for i := 0; i < len(columns); i++ {
		columns[i].Offset = offset
		offset += columns[i].Size()
	}

	return &SchemaImpl{
		columns: columns,
		size:    offset,
	}
}

// NewSchemaFromTypes builds a schema from parallel type and name slices. names may be nil for anonymous fields.
func NewSchemaFromTypes(types []db_types.TypeID, names []string) Schema {
	cols := make([]Column, len(types))
	for i, typ := range types {
		name := ""
		if names != nil {
			name = names[i]
		}
		cols[i] = NewColumn(name, typ)
	}

	return NewSchema(cols)
}

// Merge returns a schema with the columns of a followed by the columns of b.
func Merge(a, b Schema) Schema {
	cols := make([]Column, 0, a.NumColumns()+b.NumColumns())
	cols = append(cols, a.GetColumns()...)
	cols = append(cols, b.GetColumns()...)
	return NewSchema(cols)
}
