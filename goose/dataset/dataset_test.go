package dataset

import (
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonegd/gogoose/ber"
)

func parseHexString(s string) []byte {
	s = strings.ReplaceAll(s, " ", "")
	data, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return data
}

func TestSetWidths(t *testing.T) {
	tests := []struct {
		name    string
		set     func(e *DataElement) error
		wantLen int
		want    any
	}{
		{
			name:    "bool",
			set:     func(e *DataElement) error { e.SetBool(true); return nil },
			wantLen: 1,
			want:    true,
		},
		{
			name:    "int one byte",
			set:     func(e *DataElement) error { e.SetInt(-128); return nil },
			wantLen: 1,
			want:    int64(-128),
		},
		{
			name:    "int two bytes",
			set:     func(e *DataElement) error { e.SetInt(128); return nil },
			wantLen: 2,
			want:    int64(128),
		},
		{
			name:    "int eight bytes",
			set:     func(e *DataElement) error { e.SetInt(math.MaxInt64); return nil },
			wantLen: 8,
			want:    int64(math.MaxInt64),
		},
		{
			name:    "uint one byte holds 255",
			set:     func(e *DataElement) error { return e.SetUint(255) },
			wantLen: 1,
			want:    uint64(255),
		},
		{
			name:    "uint 65536 takes four bytes",
			set:     func(e *DataElement) error { return e.SetUint(65536) },
			wantLen: 4,
			want:    uint64(65536),
		},
		{
			name:    "float32",
			set:     func(e *DataElement) error { e.SetFloat32(1.5); return nil },
			wantLen: 4,
			want:    float32(1.5),
		},
		{
			name:    "float64",
			set:     func(e *DataElement) error { e.SetFloat64(-2.25); return nil },
			wantLen: 8,
			want:    -2.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e DataElement
			require.NoError(t, tt.set(&e))
			assert.Equal(t, tt.wantLen, e.Len())
			assert.Equal(t, tt.want, e.Value())
		})
	}
}

func TestSetUintOutOfRange(t *testing.T) {
	e, err := NewElement(Unsigned, 4)
	require.NoError(t, err)

	err = e.SetUint(4294967296)
	assert.ErrorIs(t, err, ErrOutOfRange)

	v, ok := e.Uint()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v, "failed set must not write")
}

func TestNewElement(t *testing.T) {
	_, err := NewElement(Boolean, 2)
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = NewElement(Structure, 0)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	e, err := NewElement(Float, 8)
	require.NoError(t, err)
	f, ok := e.Float64()
	assert.True(t, ok)
	assert.Zero(t, f)
	_, ok = e.Float32()
	assert.False(t, ok)
}

func TestEncodeElement(t *testing.T) {
	tests := []struct {
		name string
		elem func() DataElement
		want string
	}{
		{
			name: "boolean true",
			elem: func() DataElement { e, _ := NewElement(Boolean, 1); e.SetBool(true); return e },
			want: "83 01 01",
		},
		{
			name: "negative integer",
			elem: func() DataElement { e, _ := NewElement(Integer, 1); e.SetInt(-2); return e },
			want: "85 01 fe",
		},
		{
			name: "integer two bytes",
			elem: func() DataElement { e, _ := NewElement(Integer, 1); e.SetInt(-300); return e },
			want: "85 02 fe d4",
		},
		{
			name: "unsigned",
			elem: func() DataElement { e, _ := NewElement(Unsigned, 1); _ = e.SetUint(0x0102); return e },
			want: "86 02 01 02",
		},
		{
			name: "float32",
			elem: func() DataElement { e, _ := NewElement(Float, 4); e.SetFloat32(1); return e },
			want: "87 04 3f 80 00 00",
		},
		{
			name: "float64",
			elem: func() DataElement { e, _ := NewElement(Float, 8); e.SetFloat64(1); return e },
			want: "87 08 3f f0 00 00 00 00 00 00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.elem()
			buffer := make([]byte, 16)
			pos, err := e.Encode(buffer, 0)
			require.NoError(t, err)
			assert.Equal(t, parseHexString(tt.want), buffer[:pos])
			assert.Equal(t, e.EncodedSize(), pos)

			got, next, err := DecodeElement(buffer, 0, pos)
			require.NoError(t, err)
			assert.Equal(t, pos, next)
			assert.Equal(t, e, got)
		})
	}
}

func TestEncodeTypeMismatch(t *testing.T) {
	e, err := NewElement(Boolean, 1)
	require.NoError(t, err)
	e.SetFloat32(3)

	_, err = e.Encode(make([]byte, 8), 0)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEncodeOverflow(t *testing.T) {
	e, _ := NewElement(Float, 8)
	_, err := e.Encode(make([]byte, 4), 0)
	assert.ErrorIs(t, err, ber.ErrBufferOverflow)
}

func TestDecodeElementErrors(t *testing.T) {
	tests := []struct {
		name    string
		buffer  string
		wantErr error
	}{
		{name: "boolean of two bytes", buffer: "83 02 00 01", wantErr: ErrInvalidLength},
		{name: "unsigned of eight bytes", buffer: "86 08 00 00 00 00 00 00 00 01", wantErr: ErrInvalidLength},
		{name: "integer of three bytes", buffer: "85 03 00 00 01", wantErr: ErrInvalidLength},
		{name: "float of five bytes", buffer: "87 05 08 3f 80 00 00", wantErr: ErrInvalidLength},
		{name: "structure", buffer: "a2 00", wantErr: ErrUnsupportedType},
		{name: "visible string", buffer: "8a 01 41", wantErr: ErrUnsupportedType},
		{name: "truncated value", buffer: "86 04 00 01", wantErr: ber.ErrBufferOverflow},
		{name: "truncated header", buffer: "86", wantErr: ber.ErrBufferOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := parseHexString(tt.buffer)
			_, _, err := DecodeElement(buffer, 0, len(buffer))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDataSetStopsAtNumEntries(t *testing.T) {
	// two booleans followed by a third element that must not be read
	buffer := parseHexString("83 01 01 83 01 00 86 01 07")

	d, pos, err := Decode(buffer, 0, len(buffer), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, pos)
	require.Equal(t, 2, d.Len())

	v, ok := d.Element(0).Bool()
	assert.True(t, ok)
	assert.True(t, v)
	v, ok = d.Element(1).Bool()
	assert.True(t, ok)
	assert.False(t, v)
	assert.Nil(t, d.Element(2))
}

func TestDataSetDecodeTruncated(t *testing.T) {
	buffer := parseHexString("83 01 01")
	_, _, err := Decode(buffer, 0, len(buffer), 2)
	assert.ErrorIs(t, err, ber.ErrBufferOverflow)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestDataSetRoundTrip(t *testing.T) {
	b, _ := NewElement(Boolean, 1)
	b.SetBool(true)
	i, _ := NewElement(Integer, 4)
	i.SetInt(-70000)
	u, _ := NewElement(Unsigned, 2)
	require.NoError(t, u.SetUint(4294967295))
	f, _ := NewElement(Float, 4)
	f.SetFloat32(-0.5)

	d := FromElements(b, i, u, f)
	assert.Equal(t, 3+6+6+6, d.Size())

	buffer := make([]byte, d.Size())
	pos, err := d.Encode(buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, d.Size(), pos)

	got := New(4)
	_, err = got.Decode(buffer, 0, len(buffer))
	require.NoError(t, err)
	assert.Equal(t, d.Elements(), got.Elements())
	assert.Equal(t, "[boolean:true, integer:-70000, unsigned:4294967295, floating-point:-0.5]", got.String())

	clone := got.Clone()
	clone.Element(0).SetBool(false)
	v, _ := got.Element(0).Bool()
	assert.True(t, v, "clone must not alias")
}

func TestLookupSourceType(t *testing.T) {
	tests := []struct {
		bType    string
		wantType DataType
		wantSize int
		wantErr  error
	}{
		{bType: "BOOLEAN", wantType: Boolean, wantSize: 1},
		{bType: "INT16", wantType: Integer, wantSize: 2},
		{bType: "Enum", wantType: Integer, wantSize: 1},
		{bType: "INT32U", wantType: Unsigned, wantSize: 4},
		{bType: "FLOAT64", wantType: Float, wantSize: 8},
		{bType: "Struct", wantType: Structure, wantErr: ErrUnsupportedType},
		{bType: "Quality", wantErr: ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.bType, func(t *testing.T) {
			typ, size, err := LookupSourceType(tt.bType)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}
