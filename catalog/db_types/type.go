package db_types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type TypeID uint8

const (
	IntTypeID    TypeID = 1
	StringTypeID TypeID = 2
)

var ErrUnknownType = errors.New("unknown type")

// DbType is the interface that should be implemented to make a struct supported by the db. Every type has a fixed
// serialized length so that tuples of a schema have a fixed width on pages.
type DbType interface {
	Less(this *Value, than *Value) bool
	Serialize(dest []byte, src *Value)
	Deserialize(src []byte) *Value

	// Length returns the number of bytes a serialized value of this type occupies.
	Length() int

	TypeId() TypeID
	Name() string
}

var (
	intType    = &IntegerType{}
	stringType = &StringType{}
)

func GetInstance(typeID TypeID) DbType {
	switch typeID {
	case IntTypeID:
		return intType
	case StringTypeID:
		return stringType
	default:
		panic(fmt.Sprintf("unknown type id: %d", typeID))
	}
}

// ParseType resolves a type by the name used in schema files.
func ParseType(name string) (TypeID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int":
		return IntTypeID, nil
	case "string":
		return StringTypeID, nil
	default:
		return 0, errors.Wrapf(ErrUnknownType, "%q", name)
	}
}

func (t TypeID) String() string {
	switch t {
	case IntTypeID, StringTypeID:
		return GetInstance(t).Name()
	default:
		return fmt.Sprintf("TypeID(%d)", uint8(t))
	}
}
