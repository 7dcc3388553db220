package catalog

import (
	"heapdb/catalog/db_types"
)

type Column struct {
	Name   string
	TypeId db_types.TypeID

	// Offset is the columns offset in the serialized tuple
	Offset int
}

func NewColumn(name string, typeID db_types.TypeID) Column {
	return Column{Name: name, TypeId: typeID}
}

// Size returns the number of bytes the column occupies in a serialized tuple.
func (c *Column) Size() int {
	return db_types.GetInstance(c.TypeId).Length()
}

func (c *Column) String() string {
	return c.Name + "(" + c.TypeId.String() + ")"
}
