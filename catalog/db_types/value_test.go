package db_types

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringType_Serialize(t *testing.T) {
	val := NewValue("this is a string type")

	dest := make([]byte, val.Size())
	val.Serialize(dest)

	readVal := Deserialize(val.GetTypeId(), dest)

	assert.Equal(t, "this is a string type", readVal.GetAsInterface().(string))
	assert.True(t, val.Equals(readVal))
}

func TestStringType_Should_Truncate_Long_Strings(t *testing.T) {
	long := strings.Repeat("a", StringLen+20)
	dest := make([]byte, (&StringType{}).Length())
	NewValue(long).Serialize(dest)

	readVal := Deserialize(StringTypeID, dest)
	assert.Len(t, readVal.GetAsInterface().(string), StringLen)
}

func TestIntegerType_Serialize_Negative(t *testing.T) {
	dest := make([]byte, 4)
	NewValue(int32(-42)).Serialize(dest)

	readVal := Deserialize(IntTypeID, dest)
	assert.Equal(t, int32(-42), readVal.GetAsInterface())
	assert.True(t, NewValue(-43).LessThanValue(readVal))
}

func TestParseType(t *testing.T) {
	id, err := ParseType(" INT ")
	require.NoError(t, err)
	assert.Equal(t, IntTypeID, id)

	id, err = ParseType("string")
	require.NoError(t, err)
	assert.Equal(t, StringTypeID, id)

	_, err = ParseType("float")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestStringType_Truncation_Keeps_Runes_Whole(t *testing.T) {
	// 127 ascii bytes then a 3 byte rune crossing the limit
	long := strings.Repeat("a", StringLen-1) + "€" + "tail"
	dest := make([]byte, (&StringType{}).Length())
	NewValue(long).Serialize(dest)

	read := Deserialize(StringTypeID, dest).GetAsInterface().(string)
	assert.True(t, utf8.ValidString(read))
	assert.Equal(t, strings.Repeat("a", StringLen-1), read)

	exact := strings.Repeat("a", StringLen-3) + "€"
	NewValue(exact).Serialize(dest)
	assert.Equal(t, exact, Deserialize(StringTypeID, dest).GetAsInterface())
}

func TestValueOf(t *testing.T) {
	for _, src := range []interface{}{7, int8(7), int16(7), int32(7), int64(7), uint8(7), uint16(7), uint32(7)} {
		val, err := ValueOf(src)
		require.NoError(t, err, "%T", src)
		assert.Equal(t, int32(7), val.GetAsInterface())
	}

	val, err := ValueOf(math.MinInt32)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), val.GetAsInterface())

	_, err = ValueOf(1<<32 + 5)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = ValueOf(int64(math.MaxInt32) + 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = ValueOf(uint32(math.MaxUint32))
	assert.ErrorIs(t, err, ErrOutOfRange)

	for _, src := range []interface{}{3.5, uint64(1), true, nil, []byte("x")} {
		_, err := ValueOf(src)
		assert.ErrorIs(t, err, ErrUnknownType, "%T", src)
	}

	val, err = ValueOf("s")
	require.NoError(t, err)
	assert.Equal(t, StringTypeID, val.GetTypeId())
}
