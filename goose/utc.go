package goose

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/slonegd/gogoose/ber"
)

const utcLen = 8

// Quality is the TimeQuality octet of an IEC 61850 UtcTime.
type Quality struct {
	LeapSecondsKnown     bool
	ClockFailure         bool
	ClockNotSynchronized bool
	TimeAccuracy         uint8 // number of significant fraction bits, 0..31
}

// DefaultQuality is used until the application sets timing attributes.
func DefaultQuality() Quality {
	return Quality{
		LeapSecondsKnown:     true,
		ClockNotSynchronized: true,
		TimeAccuracy:         31,
	}
}

// Byte packs the flags MSB first followed by the 5 accuracy bits.
func (q Quality) Byte() byte {
	var b byte
	if q.LeapSecondsKnown {
		b |= 0x80
	}
	if q.ClockFailure {
		b |= 0x40
	}
	if q.ClockNotSynchronized {
		b |= 0x20
	}
	return b | q.TimeAccuracy&0x1F
}

// QualityFromByte unpacks a TimeQuality octet.
func QualityFromByte(b byte) Quality {
	return Quality{
		LeapSecondsKnown:     b&0x80 != 0,
		ClockFailure:         b&0x40 != 0,
		ClockNotSynchronized: b&0x20 != 0,
		TimeAccuracy:         b & 0x1F,
	}
}

// EncodeUTC writes 4 bytes of seconds, 3 bytes of fraction (1/2^24 s) and
// the quality octet.
func EncodeUTC(t time.Time, q Quality, buffer []byte, bufPos int) (int, error) {
	if bufPos < 0 || bufPos+utcLen > len(buffer) {
		return -1, fmt.Errorf("%w: utc at %d", ber.ErrBufferOverflow, bufPos)
	}
	seconds := t.Unix()
	if seconds < 0 || seconds > 0xFFFFFFFF {
		return -1, fmt.Errorf("%w: utc seconds %d", ErrRange, seconds)
	}

	fraction := (uint64(t.Nanosecond())<<24 + 500_000_000) / 1_000_000_000
	if fraction > 0xFFFFFF {
		fraction = 0xFFFFFF
	}

	binary.BigEndian.PutUint32(buffer[bufPos:], uint32(seconds))
	buffer[bufPos+4] = byte(fraction >> 16)
	buffer[bufPos+5] = byte(fraction >> 8)
	buffer[bufPos+6] = byte(fraction)
	buffer[bufPos+7] = q.Byte()
	return bufPos + utcLen, nil
}

// DecodeUTC reads the 8 byte UtcTime at bufPos.
func DecodeUTC(buffer []byte, bufPos int) (time.Time, Quality, error) {
	if bufPos < 0 || bufPos+utcLen > len(buffer) {
		return time.Time{}, Quality{}, fmt.Errorf("%w: utc at %d", ber.ErrBufferOverflow, bufPos)
	}
	seconds := binary.BigEndian.Uint32(buffer[bufPos:])
	fraction := uint64(buffer[bufPos+4])<<16 | uint64(buffer[bufPos+5])<<8 | uint64(buffer[bufPos+6])
	nanoseconds := (fraction*1_000_000_000 + 1<<23) >> 24

	return time.Unix(int64(seconds), int64(nanoseconds)).UTC(), QualityFromByte(buffer[bufPos+7]), nil
}
