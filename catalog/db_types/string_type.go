package db_types

import (
	"encoding/binary"
	"unicode/utf8"
)

// StringLen is the maximum number of bytes a string value keeps. Longer strings are truncated at the last rune
// boundary that fits when serialized.
const StringLen = 128

// StringType is stored as a 4 byte length followed by StringLen bytes, zero padded.
type StringType struct {
}

func (c *StringType) Less(this *Value, than *Value) bool {
	return this.GetAsInterface().(string) < than.GetAsInterface().(string)
}

func (c *StringType) Serialize(dest []byte, src *Value) {
	str := src.GetAsInterface().(string)
	if len(str) > StringLen {
		// never cut a multi byte rune in half
		cut := StringLen
		for cut > 0 && !utf8.RuneStart(str[cut]) {
			cut--
		}
		str = str[:cut]
	}

	binary.BigEndian.PutUint32(dest, uint32(len(str)))
	n := copy(dest[4:4+StringLen], str)
	for i := 4 + n; i < 4+StringLen; i++ {
		dest[i] = 0
	}
}

func (c *StringType) Deserialize(src []byte) *Value {
	l := binary.BigEndian.Uint32(src)
	if l > StringLen {
		l = StringLen
	}
	return NewValue(string(src[4 : 4+l]))
}

func (c *StringType) Length() int {
	return 4 + StringLen
}

func (c *StringType) TypeId() TypeID {
	return StringTypeID
}

func (c *StringType) Name() string {
	return "string"
}
