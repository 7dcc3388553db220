package db_types

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

var ErrOutOfRange = errors.New("value does not fit its type")

type Value struct {
	typeID TypeID
	value  interface{}
}

func (v *Value) LessThanValue(than *Value) bool {
	return GetInstance(v.GetTypeId()).Less(v, than)
}

func (v *Value) Equals(other *Value) bool {
	if other == nil {
		return false
	}
	return v.typeID == other.typeID && v.value == other.value
}

func (v *Value) GetTypeId() TypeID {
	return v.typeID
}

func (v *Value) Serialize(dest []byte) {
	GetInstance(v.GetTypeId()).Serialize(dest, v)
}

func (v *Value) Size() int {
	return GetInstance(v.GetTypeId()).Length()
}

func Deserialize(typeID TypeID, src []byte) *Value {
	return GetInstance(typeID).Deserialize(src)
}

func (v *Value) GetAsInterface() interface{} {
	return v.value
}

func (v *Value) String() string {
	return fmt.Sprint(v.value)
}

// ValueOf converts a plain go value to a Value. Integers must fit in an int32; any other kind of value than an
// integer or a string is rejected with ErrUnknownType.
func ValueOf(src interface{}) (*Value, error) {
	var i int64
	switch s := src.(type) {
	case string:
		return NewValue(s), nil
	case int32:
		return NewValue(s), nil
	case int:
		i = int64(s)
	case int8:
		i = int64(s)
	case int16:
		i = int64(s)
	case int64:
		i = s
	case uint8:
		i = int64(s)
	case uint16:
		i = int64(s)
	case uint32:
		i = int64(s)
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%T", src)
	}

	if i < math.MinInt32 || i > math.MaxInt32 {
		return nil, errors.Wrapf(ErrOutOfRange, "%d is not an int32", i)
	}
	return NewValue(int32(i)), nil
}

// NewValue wraps an int32, int or string and panics on anything else. Use ValueOf for values that are not known to
// be valid.
func NewValue(src interface{}) *Value {
	switch s := src.(type) {
	case int32:
		return &Value{typeID: IntTypeID, value: s}
	case int:
		return &Value{typeID: IntTypeID, value: int32(s)}
	case string:
		return &Value{typeID: StringTypeID, value: s}
	default:
		panic(fmt.Sprintf("not supported type: %T", src))
	}
}
