package ber

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Errors
var (
	ErrBufferOverflow    = errors.New("buffer overflow")
	ErrInvalidLength     = errors.New("invalid length")
	ErrInvalidIndefinite = errors.New("indefinite length not allowed")
)

// MaxLength is the largest length EncodeLength can represent (long form, 2 octets).
const MaxLength = 0xFFFF

func overflow(bufPos, need, capacity int) error {
	return fmt.Errorf("%w: need %d bytes at offset %d, capacity %d", ErrBufferOverflow, need, bufPos, capacity)
}

// Decoder functions

// ReadTag returns the identifier octet at bufPos.
func ReadTag(buffer []byte, bufPos int) (byte, error) {
	if bufPos < 0 || bufPos >= len(buffer) {
		return 0, overflow(bufPos, 1, len(buffer))
	}
	return buffer[bufPos], nil
}

// DecodeLength decodes a BER length field from the buffer
// Returns the new buffer position and the decoded length, or an error.
// Only the definite form is accepted; the value must fit between the returned
// position and maxBufPos.
func DecodeLength(buffer []byte, bufPos, maxBufPos int) (newPos int, length int, err error) {
	if maxBufPos > len(buffer) {
		maxBufPos = len(buffer)
	}
	if bufPos < 0 || bufPos >= maxBufPos {
		return -1, 0, overflow(bufPos, 1, maxBufPos)
	}

	len1 := buffer[bufPos]
	bufPos++

	if len1&0x80 == 0 {
		length = int(len1)
	} else {
		lenLength := int(len1 & 0x7f)
		if lenLength == 0 {
			return -1, 0, ErrInvalidIndefinite
		}
		if lenLength > 4 {
			return -1, 0, fmt.Errorf("%w: %d length octets", ErrInvalidLength, lenLength)
		}
		if bufPos+lenLength > maxBufPos {
			return -1, 0, overflow(bufPos, lenLength, maxBufPos)
		}
		for i := 0; i < lenLength; i++ {
			length = (length << 8) | int(buffer[bufPos])
			bufPos++
		}
	}

	if length < 0 {
		return -1, 0, ErrInvalidLength
	}

	if bufPos+length > maxBufPos {
		return -1, 0, overflow(bufPos, length, maxBufPos)
	}

	return bufPos, length, nil
}

// ReadBytes returns a sub-slice of length bytes starting at bufPos. The slice
// aliases buffer.
func ReadBytes(buffer []byte, bufPos, length int) ([]byte, error) {
	if bufPos < 0 || length < 0 || bufPos+length > len(buffer) {
		return nil, overflow(bufPos, length, len(buffer))
	}
	return buffer[bufPos : bufPos+length], nil
}

// DecodeString decodes a BER string from the buffer
func DecodeString(buffer []byte, strlen, bufPos, maxBufPos int) (string, error) {
	if maxBufPos > len(buffer) {
		maxBufPos = len(buffer)
	}
	if bufPos < 0 || strlen < 0 || bufPos+strlen > maxBufPos {
		return "", overflow(bufPos, strlen, maxBufPos)
	}
	return string(buffer[bufPos : bufPos+strlen]), nil
}

// DecodeUint32 decodes a big-endian unsigned integer of intLen octets.
// The caller checks bounds and intLen <= 4 (or 5 with a leading zero octet).
func DecodeUint32(buffer []byte, intLen, bufPos int) uint32 {
	value := uint32(0)
	for i := 0; i < intLen; i++ {
		value = (value << 8) | uint32(buffer[bufPos+i])
	}
	return value
}

// DecodeUint64 decodes a big-endian unsigned integer of up to 8 octets.
func DecodeUint64(buffer []byte, intLen, bufPos int) uint64 {
	value := uint64(0)
	for i := 0; i < intLen; i++ {
		value = (value << 8) | uint64(buffer[bufPos+i])
	}
	return value
}

// DecodeInt64 decodes a big-endian two's complement integer of up to 8 octets,
// sign extending from the first octet.
func DecodeInt64(buffer []byte, intLen, bufPos int) int64 {
	var value int64
	if intLen > 0 && buffer[bufPos]&0x80 == 0x80 {
		value = -1
	}

	for i := 0; i < intLen; i++ {
		value = (value << 8) | int64(buffer[bufPos+i])
	}

	return value
}

// DecodeBoolean decodes a BER boolean from the buffer
func DecodeBoolean(buffer []byte, bufPos int) bool {
	return buffer[bufPos] != 0
}

// Encoder functions

// WriteTag writes a single identifier octet and returns the new buffer position.
func WriteTag(tag byte, buffer []byte, bufPos int) (int, error) {
	if bufPos < 0 || bufPos >= len(buffer) {
		return -1, overflow(bufPos, 1, len(buffer))
	}
	buffer[bufPos] = tag
	return bufPos + 1, nil
}

// EncodeLength encodes a length value in BER format
// Returns the new buffer position
func EncodeLength(length uint32, buffer []byte, bufPos int) (int, error) {
	if length > MaxLength {
		return -1, fmt.Errorf("%w: %d exceeds %d", ErrInvalidLength, length, MaxLength)
	}
	size := DetermineLengthSize(length)
	if bufPos < 0 || bufPos+size > len(buffer) {
		return -1, overflow(bufPos, size, len(buffer))
	}

	switch size {
	case 1:
		buffer[bufPos] = byte(length)
	case 2:
		buffer[bufPos] = 0x81
		buffer[bufPos+1] = byte(length)
	default:
		buffer[bufPos] = 0x82
		buffer[bufPos+1] = byte(length >> 8)
		buffer[bufPos+2] = byte(length)
	}
	return bufPos + size, nil
}

// WriteBytes copies src into buffer at bufPos and returns the new buffer position.
func WriteBytes(src []byte, buffer []byte, bufPos int) (int, error) {
	if bufPos < 0 || bufPos+len(src) > len(buffer) {
		return -1, overflow(bufPos, len(src), len(buffer))
	}
	copy(buffer[bufPos:], src)
	return bufPos + len(src), nil
}

// EncodeTL encodes a Tag and Length in BER format
func EncodeTL(tag byte, length uint32, buffer []byte, bufPos int) (int, error) {
	bufPos, err := WriteTag(tag, buffer, bufPos)
	if err != nil {
		return -1, err
	}
	return EncodeLength(length, buffer, bufPos)
}

// EncodeBoolean encodes a boolean value with tag in BER format
func EncodeBoolean(tag byte, value bool, buffer []byte, bufPos int) (int, error) {
	if bufPos < 0 || bufPos+3 > len(buffer) {
		return -1, overflow(bufPos, 3, len(buffer))
	}
	buffer[bufPos] = tag
	buffer[bufPos+1] = 1
	if value {
		buffer[bufPos+2] = 0x01
	} else {
		buffer[bufPos+2] = 0x00
	}
	return bufPos + 3, nil
}

// EncodeStringWithTag encodes a string with tag in BER format
func EncodeStringWithTag(tag byte, str string, buffer []byte, bufPos int) (int, error) {
	bufPos, err := EncodeTL(tag, uint32(len(str)), buffer, bufPos)
	if err != nil {
		return -1, err
	}
	return WriteBytes([]byte(str), buffer, bufPos)
}

// EncodeUint writes value big-endian in exactly width octets.
func EncodeUint(value uint64, width int, buffer []byte, bufPos int) (int, error) {
	if width < 1 || width > 8 {
		return -1, fmt.Errorf("%w: integer width %d", ErrInvalidLength, width)
	}
	if width < 8 && value>>(8*uint(width)) != 0 {
		return -1, fmt.Errorf("%w: %d does not fit %d octets", ErrInvalidLength, value, width)
	}
	if bufPos < 0 || bufPos+width > len(buffer) {
		return -1, overflow(bufPos, width, len(buffer))
	}
	for i := width - 1; i >= 0; i-- {
		buffer[bufPos+i] = byte(value)
		value >>= 8
	}
	return bufPos + width, nil
}

// EncodeUInt32WithTL encodes tag, length and value using the minimal unsigned width.
func EncodeUInt32WithTL(tag byte, value uint32, buffer []byte, bufPos int) (int, error) {
	width := UintWidth(value)
	bufPos, err := EncodeTL(tag, uint32(width), buffer, bufPos)
	if err != nil {
		return -1, err
	}
	return EncodeUint(uint64(value), width, buffer, bufPos)
}

// Size helpers

// UintWidth returns the minimal width from {1, 2, 4, 8} holding v.
func UintWidth[T constraints.Unsigned](v T) int {
	u := uint64(v)
	switch {
	case u <= 0xFF:
		return 1
	case u <= 0xFFFF:
		return 2
	case u <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

// IntWidth returns the minimal two's complement width from {1, 2, 4, 8} holding v.
func IntWidth[T constraints.Signed](v T) int {
	i := int64(v)
	switch {
	case i >= -1<<7 && i < 1<<7:
		return 1
	case i >= -1<<15 && i < 1<<15:
		return 2
	case i >= -1<<31 && i < 1<<31:
		return 4
	default:
		return 8
	}
}

// DetermineLengthSize returns the number of octets EncodeLength uses for length.
func DetermineLengthSize(length uint32) int {
	if length < 128 {
		return 1
	}
	if length < 256 {
		return 2
	}
	return 3
}

// DetermineEncodedStringSize returns the size of a tagged string (tag + length + value).
func DetermineEncodedStringSize(str string) int {
	return 1 + DetermineLengthSize(uint32(len(str))) + len(str)
}

// UInt32DetermineEncodedSize returns the size of a tagged unsigned integer
// (tag + length + minimal width value).
func UInt32DetermineEncodedSize(value uint32) int {
	return 2 + UintWidth(value)
}
