package ber

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeLength(t *testing.T) {
	tests := []struct {
		name      string
		buffer    []byte
		bufPos    int
		maxBufPos int
		wantPos   int
		wantLen   int
		wantErr   error
	}{
		{
			name:      "short form length < 128",
			buffer:    []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			bufPos:    0,
			maxBufPos: 6,
			wantPos:   1,
			wantLen:   5,
		},
		{
			name:      "long form 1 byte",
			buffer:    append([]byte{0x81, 0xFF}, make([]byte, 0xFF)...),
			bufPos:    0,
			maxBufPos: 2 + 0xFF,
			wantPos:   2,
			wantLen:   0xFF,
		},
		{
			name:      "long form 2 bytes",
			buffer:    append([]byte{0x82, 0x01, 0x00}, make([]byte, 0x0100)...),
			bufPos:    0,
			maxBufPos: 3 + 0x0100,
			wantPos:   3,
			wantLen:   0x0100,
		},
		{
			name:      "length octet missing",
			buffer:    []byte{0x81},
			bufPos:    0,
			maxBufPos: 1,
			wantPos:   -1,
			wantErr:   ErrBufferOverflow,
		},
		{
			name:      "value past max position",
			buffer:    []byte{0x04, 0x00, 0x00},
			bufPos:    0,
			maxBufPos: 3,
			wantPos:   -1,
			wantErr:   ErrBufferOverflow,
		},
		{
			name:      "indefinite form",
			buffer:    []byte{0x80, 0x00, 0x00},
			bufPos:    0,
			maxBufPos: 3,
			wantPos:   -1,
			wantErr:   ErrInvalidIndefinite,
		},
		{
			name:      "zero length",
			buffer:    []byte{0x00},
			bufPos:    0,
			maxBufPos: 1,
			wantPos:   1,
			wantLen:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPos, gotLen, err := DecodeLength(tt.buffer, tt.bufPos, tt.maxBufPos)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotPos != tt.wantPos {
				t.Errorf("DecodeLength() gotPos = %v, want %v", gotPos, tt.wantPos)
			}
			if gotLen != tt.wantLen {
				t.Errorf("DecodeLength() gotLen = %v, want %v", gotLen, tt.wantLen)
			}
		})
	}
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		name    string
		length  uint32
		want    []byte
		wantErr error
	}{
		{name: "short form", length: 127, want: []byte{0x7F}},
		{name: "0x81 form", length: 128, want: []byte{0x81, 0x80}},
		{name: "0x81 form max", length: 255, want: []byte{0x81, 0xFF}},
		{name: "0x82 form", length: 256, want: []byte{0x82, 0x01, 0x00}},
		{name: "too long", length: 0x10000, wantErr: ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := make([]byte, 4)
			pos, err := EncodeLength(tt.length, buffer, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("EncodeLength() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if !bytes.Equal(buffer[:pos], tt.want) {
				t.Errorf("EncodeLength() = %x, want %x", buffer[:pos], tt.want)
			}
			if pos != DetermineLengthSize(tt.length) {
				t.Errorf("DetermineLengthSize() = %d, encoded %d", DetermineLengthSize(tt.length), pos)
			}
			gotPos, gotLen, err := DecodeLength(append(buffer[:pos], make([]byte, tt.length)...), 0, pos+int(tt.length))
			if err != nil || gotPos != pos || gotLen != int(tt.length) {
				t.Errorf("DecodeLength() = %d, %d, %v", gotPos, gotLen, err)
			}
		})
	}
}

func TestEncodeLengthOverflow(t *testing.T) {
	buffer := make([]byte, 2)
	if _, err := EncodeLength(300, buffer, 0); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("EncodeLength() error = %v, want %v", err, ErrBufferOverflow)
	}
}

func TestReadWriteBytes(t *testing.T) {
	buffer := make([]byte, 6)

	pos, err := WriteTag(0x80, buffer, 0)
	if err != nil || pos != 1 {
		t.Fatalf("WriteTag() = %d, %v", pos, err)
	}
	pos, err = WriteBytes([]byte{1, 2, 3}, buffer, pos)
	if err != nil || pos != 4 {
		t.Fatalf("WriteBytes() = %d, %v", pos, err)
	}
	if _, err = WriteBytes([]byte{1, 2, 3}, buffer, pos); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("WriteBytes() past end error = %v", err)
	}

	tag, err := ReadTag(buffer, 0)
	if err != nil || tag != 0x80 {
		t.Errorf("ReadTag() = %x, %v", tag, err)
	}
	if _, err = ReadTag(buffer, 6); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("ReadTag() past end error = %v", err)
	}

	got, err := ReadBytes(buffer, 1, 3)
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("ReadBytes() = %x, %v", got, err)
	}
	if _, err = ReadBytes(buffer, 4, 3); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("ReadBytes() past end error = %v", err)
	}
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name      string
		buffer    []byte
		strlen    int
		bufPos    int
		maxBufPos int
		want      string
		wantErr   error
	}{
		{
			name:      "simple string",
			buffer:    []byte("Hello"),
			strlen:    5,
			maxBufPos: 5,
			want:      "Hello",
		},
		{
			name:      "empty string",
			buffer:    []byte(""),
			strlen:    0,
			maxBufPos: 0,
			want:      "",
		},
		{
			name:      "buffer overflow",
			buffer:    []byte("Hi"),
			strlen:    5,
			maxBufPos: 2,
			wantErr:   ErrBufferOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeString(tt.buffer, tt.strlen, tt.bufPos, tt.maxBufPos)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("DecodeString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeUint(t *testing.T) {
	tests := []struct {
		name    string
		value   uint64
		width   int
		want    []byte
		wantErr error
	}{
		{name: "one octet", value: 0xFF, width: 1, want: []byte{0xFF}},
		{name: "two octets", value: 0x100, width: 2, want: []byte{0x01, 0x00}},
		{name: "four octets", value: 0xFFFFFFFF, width: 4, want: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "padded", value: 1, width: 4, want: []byte{0, 0, 0, 1}},
		{name: "does not fit", value: 0x100, width: 1, wantErr: ErrInvalidLength},
		{name: "bad width", value: 1, width: 0, wantErr: ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := make([]byte, 8)
			pos, err := EncodeUint(tt.value, tt.width, buffer, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("EncodeUint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if !bytes.Equal(buffer[:pos], tt.want) {
				t.Errorf("EncodeUint() = %x, want %x", buffer[:pos], tt.want)
			}
			if got := DecodeUint64(buffer, tt.width, 0); got != tt.value {
				t.Errorf("DecodeUint64() = %d, want %d", got, tt.value)
			}
		})
	}
}

func TestDecodeInt64(t *testing.T) {
	tests := []struct {
		name   string
		buffer []byte
		want   int64
	}{
		{name: "positive", buffer: []byte{0x7F}, want: 127},
		{name: "negative one octet", buffer: []byte{0xFF}, want: -1},
		{name: "negative two octets", buffer: []byte{0x80, 0x00}, want: -32768},
		{name: "positive four octets", buffer: []byte{0x00, 0x01, 0x00, 0x00}, want: 65536},
		{name: "min int64", buffer: []byte{0x80, 0, 0, 0, 0, 0, 0, 0}, want: -1 << 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeInt64(tt.buffer, len(tt.buffer), 0); got != tt.want {
				t.Errorf("DecodeInt64() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWidths(t *testing.T) {
	uintTests := []struct {
		value uint64
		want  int
	}{
		{0, 1}, {255, 1}, {256, 2}, {65535, 2}, {65536, 4}, {4294967295, 4}, {4294967296, 8},
	}
	for _, tt := range uintTests {
		if got := UintWidth(tt.value); got != tt.want {
			t.Errorf("UintWidth(%d) = %d, want %d", tt.value, got, tt.want)
		}
	}

	intTests := []struct {
		value int64
		want  int
	}{
		{0, 1}, {127, 1}, {-128, 1}, {128, 2}, {-129, 2}, {32767, 2}, {32768, 4},
		{-2147483648, 4}, {2147483648, 8},
	}
	for _, tt := range intTests {
		if got := IntWidth(tt.value); got != tt.want {
			t.Errorf("IntWidth(%d) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestEncodeUInt32WithTL(t *testing.T) {
	buffer := make([]byte, 8)
	pos, err := EncodeUInt32WithTL(byte(StNum), 256, buffer, 0)
	if err != nil {
		t.Fatalf("EncodeUInt32WithTL() error = %v", err)
	}
	want := []byte{0x85, 0x02, 0x01, 0x00}
	if !bytes.Equal(buffer[:pos], want) {
		t.Errorf("EncodeUInt32WithTL() = %x, want %x", buffer[:pos], want)
	}
	if pos != UInt32DetermineEncodedSize(256) {
		t.Errorf("UInt32DetermineEncodedSize() = %d, want %d", UInt32DetermineEncodedSize(256), pos)
	}
}

func TestEncodeStringWithTag(t *testing.T) {
	buffer := make([]byte, 16)
	pos, err := EncodeStringWithTag(byte(GoID), "GO1", buffer, 0)
	if err != nil {
		t.Fatalf("EncodeStringWithTag() error = %v", err)
	}
	want := []byte{0x83, 0x03, 'G', 'O', '1'}
	if !bytes.Equal(buffer[:pos], want) {
		t.Errorf("EncodeStringWithTag() = %x, want %x", buffer[:pos], want)
	}
	if DetermineEncodedStringSize("GO1") != len(want) {
		t.Errorf("DetermineEncodedStringSize() = %d", DetermineEncodedStringSize("GO1"))
	}
}

func TestGooseTags(t *testing.T) {
	tests := []struct {
		tag  Tag
		want byte
	}{
		{GoosePdu, 0x61},
		{GoCBRef, 0x80},
		{NumDatSetEntries, 0x8A},
		{AllData, 0xAB},
	}
	for _, tt := range tests {
		if byte(tt.tag) != tt.want {
			t.Errorf("tag = %#x, want %#x", byte(tt.tag), tt.want)
		}
	}
}
