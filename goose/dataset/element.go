package dataset

import (
	"fmt"
	"math"
	"strconv"

	"github.com/slonegd/gogoose/ber"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindBool
	kindInt
	kindUint
	kindFloat
)

// DataElement is one typed entry of a GOOSE data set. The declared type is
// fixed at construction; the stored value carries its own representation and
// width, which must agree with the type when encoded.
type DataElement struct {
	typ    DataType
	length int
	kind   valueKind
	b      bool
	i      int64
	u      uint64
	f      float64
}

// NewElement returns a zero-valued element of the given type and width.
func NewElement(typ DataType, length int) (DataElement, error) {
	if !typ.Supported() {
		return DataElement{}, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	if !typ.ValidLength(length) {
		return DataElement{}, fmt.Errorf("%w: %d bytes for %s", ErrInvalidLength, length, typ)
	}

	e := DataElement{typ: typ, length: length}
	switch typ {
	case Boolean:
		e.kind = kindBool
	case Integer:
		e.kind = kindInt
	case Unsigned:
		e.kind = kindUint
	case Float:
		e.kind = kindFloat
	}
	return e, nil
}

// Type returns the declared MMS type.
func (e DataElement) Type() DataType {
	return e.typ
}

// Len returns the value width in bytes.
func (e DataElement) Len() int {
	return e.length
}

// EncodedSize is the number of bytes the element occupies on the wire.
func (e DataElement) EncodedSize() int {
	return 2 + e.length
}

// SetBool stores a boolean value.
func (e *DataElement) SetBool(v bool) {
	e.kind, e.b, e.length = kindBool, v, 1
}

// SetInt stores a signed value using the minimal width that holds it.
func (e *DataElement) SetInt(v int64) {
	e.kind, e.i, e.length = kindInt, v, ber.IntWidth(v)
}

// SetUint stores an unsigned value using the minimal width that holds it.
func (e *DataElement) SetUint(v uint64) error {
	if v > math.MaxUint32 {
		return fmt.Errorf("%w: %d exceeds %d", ErrOutOfRange, v, uint64(math.MaxUint32))
	}
	e.kind, e.u, e.length = kindUint, v, ber.UintWidth(v)
	return nil
}

// SetFloat32 stores a single precision value.
func (e *DataElement) SetFloat32(v float32) {
	e.kind, e.f, e.length = kindFloat, float64(v), 4
}

// SetFloat64 stores a double precision value.
func (e *DataElement) SetFloat64(v float64) {
	e.kind, e.f, e.length = kindFloat, v, 8
}

// Bool returns the value if the element holds a boolean.
func (e DataElement) Bool() (bool, bool) {
	return e.b, e.kind == kindBool
}

// Int returns the value if the element holds a signed integer.
func (e DataElement) Int() (int64, bool) {
	return e.i, e.kind == kindInt
}

// Uint returns the value if the element holds an unsigned integer.
func (e DataElement) Uint() (uint64, bool) {
	return e.u, e.kind == kindUint
}

// Float32 returns the value if the element holds a 4 byte float.
func (e DataElement) Float32() (float32, bool) {
	return float32(e.f), e.kind == kindFloat && e.length == 4
}

// Float64 returns the value if the element holds a float of any width.
func (e DataElement) Float64() (float64, bool) {
	return e.f, e.kind == kindFloat
}

// Value returns the stored value as bool, int64, uint64, float32 or float64.
func (e DataElement) Value() any {
	switch e.kind {
	case kindBool:
		return e.b
	case kindInt:
		return e.i
	case kindUint:
		return e.u
	case kindFloat:
		if e.length == 4 {
			return float32(e.f)
		}
		return e.f
	}
	return nil
}

func (e DataElement) String() string {
	switch e.kind {
	case kindBool:
		return e.typ.String() + ":" + strconv.FormatBool(e.b)
	case kindInt:
		return e.typ.String() + ":" + strconv.FormatInt(e.i, 10)
	case kindUint:
		return e.typ.String() + ":" + strconv.FormatUint(e.u, 10)
	case kindFloat:
		return e.typ.String() + ":" + strconv.FormatFloat(e.f, 'g', -1, 8*e.length)
	}
	return e.typ.String() + ":<nil>"
}

func (e DataElement) matches() bool {
	switch e.typ {
	case Boolean:
		return e.kind == kindBool
	case Integer:
		return e.kind == kindInt
	case Unsigned:
		return e.kind == kindUint
	case Float:
		return e.kind == kindFloat
	}
	return false
}

// Encode writes [tag][length][value] at bufPos and returns the new position.
func (e DataElement) Encode(buffer []byte, bufPos int) (int, error) {
	if !e.typ.Supported() {
		return -1, fmt.Errorf("%w: %s", ErrUnsupportedType, e.typ)
	}
	if !e.matches() {
		return -1, fmt.Errorf("%w: %s holds %v", ErrTypeMismatch, e.typ, e.Value())
	}
	if !e.typ.ValidLength(e.length) {
		return -1, fmt.Errorf("%w: %d bytes for %s", ErrInvalidLength, e.length, e.typ)
	}

	bufPos, err := ber.WriteTag(byte(e.typ), buffer, bufPos)
	if err != nil {
		return -1, err
	}
	bufPos, err = ber.WriteTag(byte(e.length), buffer, bufPos)
	if err != nil {
		return -1, err
	}

	var raw uint64
	switch e.kind {
	case kindBool:
		if e.b {
			raw = 1
		}
	case kindInt:
		raw = uint64(e.i)
		if e.length < 8 {
			raw &= 1<<(8*uint(e.length)) - 1
		}
	case kindUint:
		raw = e.u
	case kindFloat:
		if e.length == 4 {
			raw = uint64(math.Float32bits(float32(e.f)))
		} else {
			raw = math.Float64bits(e.f)
		}
	}
	return ber.EncodeUint(raw, e.length, buffer, bufPos)
}

// DecodeElement reads one [tag][length][value] element at bufPos.
func DecodeElement(buffer []byte, bufPos, maxBufPos int) (DataElement, int, error) {
	if maxBufPos > len(buffer) {
		maxBufPos = len(buffer)
	}
	if bufPos+2 > maxBufPos {
		return DataElement{}, -1, fmt.Errorf("%w: element header at %d", ber.ErrBufferOverflow, bufPos)
	}

	typ, err := ParseDataType(buffer[bufPos])
	if err != nil {
		return DataElement{}, -1, err
	}
	length := int(buffer[bufPos+1])
	bufPos += 2
	if !typ.ValidLength(length) {
		return DataElement{}, -1, fmt.Errorf("%w: %d bytes for %s", ErrInvalidLength, length, typ)
	}
	if bufPos+length > maxBufPos {
		return DataElement{}, -1, fmt.Errorf("%w: %s value of %d bytes at %d", ber.ErrBufferOverflow, typ, length, bufPos)
	}

	e := DataElement{typ: typ, length: length}
	switch typ {
	case Boolean:
		e.kind, e.b = kindBool, ber.DecodeBoolean(buffer, bufPos)
	case Integer:
		e.kind, e.i = kindInt, ber.DecodeInt64(buffer, length, bufPos)
	case Unsigned:
		e.kind, e.u = kindUint, ber.DecodeUint64(buffer, length, bufPos)
	case Float:
		e.kind = kindFloat
		raw := ber.DecodeUint64(buffer, length, bufPos)
		if length == 4 {
			e.f = float64(math.Float32frombits(uint32(raw)))
		} else {
			e.f = math.Float64frombits(raw)
		}
	}
	return e, bufPos + length, nil
}
