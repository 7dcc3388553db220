package db_types

import (
	"encoding/binary"
)

type IntegerType struct {
}

func (i *IntegerType) Less(this *Value, than *Value) bool {
	return this.GetAsInterface().(int32) < than.GetAsInterface().(int32)
}

func (i *IntegerType) Serialize(dest []byte, src *Value) {
	binary.BigEndian.PutUint32(dest, uint32(src.GetAsInterface().(int32)))
}

func (i *IntegerType) Deserialize(src []byte) *Value {
	return NewValue(int32(binary.BigEndian.Uint32(src)))
}

func (i *IntegerType) Length() int {
	return 4
}

func (i *IntegerType) TypeId() TypeID {
	return IntTypeID
}

func (i *IntegerType) Name() string {
	return "int"
}
