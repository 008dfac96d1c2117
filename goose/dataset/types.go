package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors
var (
	ErrTypeMismatch    = errors.New("value does not match data type")
	ErrOutOfRange      = errors.New("value out of range")
	ErrInvalidLength   = errors.New("invalid element length")
	ErrUnsupportedType = errors.New("unsupported data type")
)

// DataType is an MMS Data choice, identified by its context-specific wire tag.
type DataType byte

const (
	Array     DataType = 0xA1
	Structure DataType = 0xA2
	Boolean   DataType = 0x83
	Integer   DataType = 0x85
	Unsigned  DataType = 0x86
	Float     DataType = 0x87
)

// String returns the MMS name of the type
func (t DataType) String() string {
	switch t {
	case Array:
		return "array"
	case Structure:
		return "structure"
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Unsigned:
		return "unsigned"
	case Float:
		return "floating-point"
	default:
		var b strings.Builder
		b.WriteString("unknown(0x")
		b.WriteString(strconv.FormatUint(uint64(t), 16))
		b.WriteByte(')')
		return b.String()
	}
}

// Supported reports whether elements of this type can be encoded and decoded.
// Array and structure are declared for completeness only.
func (t DataType) Supported() bool {
	switch t {
	case Boolean, Integer, Unsigned, Float:
		return true
	}
	return false
}

// ValidLength reports whether n is a legal value width for t.
func (t DataType) ValidLength(n int) bool {
	switch t {
	case Boolean:
		return n == 1
	case Integer:
		return n == 1 || n == 2 || n == 4 || n == 8
	case Unsigned:
		return n == 1 || n == 2 || n == 4
	case Float:
		return n == 4 || n == 8
	}
	return false
}

// ParseDataType maps a wire tag onto a supported DataType.
func ParseDataType(tag byte) (DataType, error) {
	t := DataType(tag)
	if !t.Supported() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return t, nil
}

type sourceType struct {
	typ  DataType
	size int
}

// IEC 61850-7-3 basic types as they appear in SCL bType attributes.
var sourceTypes = map[string]sourceType{
	"BOOLEAN": {Boolean, 1},
	"INT8":    {Integer, 1},
	"INT16":   {Integer, 2},
	"INT32":   {Integer, 4},
	"INT64":   {Integer, 8},
	"Enum":    {Integer, 1},
	"INT8U":   {Unsigned, 1},
	"INT16U":  {Unsigned, 2},
	"INT32U":  {Unsigned, 4},
	"FLOAT32": {Float, 4},
	"FLOAT64": {Float, 8},
	"Struct":  {Structure, 0},
}

// LookupSourceType resolves an SCL basic type name into the MMS type and the
// default byte size used when the element is first created.
func LookupSourceType(bType string) (DataType, int, error) {
	st, ok := sourceTypes[bType]
	if !ok {
		return 0, 0, fmt.Errorf("%w: bType %q", ErrUnsupportedType, bType)
	}
	if !st.typ.Supported() {
		return st.typ, st.size, fmt.Errorf("%w: bType %q maps to %s", ErrUnsupportedType, bType, st.typ)
	}
	return st.typ, st.size, nil
}
