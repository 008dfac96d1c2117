package goose

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/slonegd/gogoose/ber"
)

// preamble: appID (2), length (2), reserved1 (2), reserved2 (2)
const pduPreambleLen = 8

// Header is the GOOSE PDU: the preamble plus the IECGoosePdu fields in wire
// order. AllData holds the raw encoded data set.
type Header struct {
	AppID             uint16
	Length            uint16
	GoCBRef           string
	TimeAllowedToLive uint32 // milliseconds
	DatSet            string
	GoID              string // omitted from the wire when empty
	Timestamp         time.Time
	Quality           Quality
	StNum             uint32
	SqNum             uint32
	Test              bool
	ConfRev           uint32
	NdsCom            bool
	NumDatSetEntries  uint32
	AllData           []byte

	layout layout
}

// layout records where the mutable fields sit, relative to the appID octet.
type layout struct {
	utc        int
	stNum      int
	stNumLen   int
	sqNum      int
	sqNumLen   int
	allData    int
	allDataLen int
}

// Payload is the allData content of a PDU.
type Payload interface {
	Size() int
	Encode(buffer []byte, bufPos int) (int, error)
}

type rawPayload []byte

func (p rawPayload) Size() int {
	return len(p)
}

func (p rawPayload) Encode(buffer []byte, bufPos int) (int, error) {
	return ber.WriteBytes(p, buffer, bufPos)
}

func (h *Header) apduSize(dataLen int) int {
	size := ber.DetermineEncodedStringSize(h.GoCBRef) +
		ber.UInt32DetermineEncodedSize(h.TimeAllowedToLive) +
		ber.DetermineEncodedStringSize(h.DatSet)
	if h.GoID != "" {
		size += ber.DetermineEncodedStringSize(h.GoID)
	}
	size += 2 + utcLen
	size += ber.UInt32DetermineEncodedSize(h.StNum)
	size += ber.UInt32DetermineEncodedSize(h.SqNum)
	size += 3 // test
	size += ber.UInt32DetermineEncodedSize(h.ConfRev)
	size += 3 // ndsCom
	size += ber.UInt32DetermineEncodedSize(h.NumDatSetEntries)
	size += 1 + ber.DetermineLengthSize(uint32(dataLen)) + dataLen
	return size
}

// EncodedSize returns the PDU size (the Length field) for a payload of dataLen bytes.
func (h *Header) EncodedSize(dataLen int) int {
	apdu := h.apduSize(dataLen)
	return pduPreambleLen + 1 + ber.DetermineLengthSize(uint32(apdu)) + apdu
}

// Encode writes the PDU at bufPos and returns the position after it. Visible
// strings are truncated to their last 35 characters first. A nil payload
// encodes h.AllData as is. Range checks run before anything is written.
func (h *Header) Encode(buffer []byte, bufPos int, payload Payload) (int, error) {
	if payload == nil {
		payload = rawPayload(h.AllData)
	}
	h.GoCBRef = TruncateVisibleString(h.GoCBRef)
	h.DatSet = TruncateVisibleString(h.DatSet)
	h.GoID = TruncateVisibleString(h.GoID)

	if h.NumDatSetEntries > 0xFFFF {
		return -1, fmt.Errorf("%w: numDatSetEntries %d exceeds 2 bytes", ErrRange, h.NumDatSetEntries)
	}
	dataLen := payload.Size()
	if dataLen > ber.MaxLength {
		return -1, fmt.Errorf("%w: allData of %d bytes", ErrRange, dataLen)
	}
	apdu := h.apduSize(dataLen)
	total := h.EncodedSize(dataLen)
	if total > MaxAPDUSize {
		return -1, fmt.Errorf("%w: APDU of %d bytes exceeds %d", ErrRange, total, MaxAPDUSize)
	}
	if bufPos < 0 || bufPos+total > len(buffer) {
		return -1, fmt.Errorf("%w: %w: PDU of %d bytes at %d, capacity %d",
			ErrRange, ber.ErrBufferOverflow, total, bufPos, len(buffer))
	}

	start := bufPos
	var l layout

	binary.BigEndian.PutUint16(buffer[bufPos:], h.AppID)
	binary.BigEndian.PutUint16(buffer[bufPos+2:], uint16(total))
	clear(buffer[bufPos+4 : bufPos+pduPreambleLen])
	bufPos += pduPreambleLen

	w := fieldWriter{buf: buffer, pos: bufPos}
	w.tl(ber.GoosePdu, apdu)
	w.string(ber.GoCBRef, h.GoCBRef)
	w.uint(ber.TimeAllowedToLive, h.TimeAllowedToLive)
	w.string(ber.DatSet, h.DatSet)
	if h.GoID != "" {
		w.string(ber.GoID, h.GoID)
	}
	w.tl(ber.T, utcLen)
	l.utc = w.pos - start
	if w.err == nil {
		w.pos, w.err = EncodeUTC(h.Timestamp, h.Quality, buffer, w.pos)
	}
	l.stNum, l.stNumLen = w.uint(ber.StNum, h.StNum)
	l.stNum -= start
	l.sqNum, l.sqNumLen = w.uint(ber.SqNum, h.SqNum)
	l.sqNum -= start
	w.bool(ber.Simulation, h.Test)
	w.uint(ber.ConfRev, h.ConfRev)
	w.bool(ber.NdsCom, h.NdsCom)
	w.uint(ber.NumDatSetEntries, h.NumDatSetEntries)
	w.tl(ber.AllData, dataLen)
	l.allData, l.allDataLen = w.pos-start, dataLen
	if w.err == nil {
		w.pos, w.err = payload.Encode(buffer, w.pos)
	}
	if w.err != nil {
		return -1, classify(w.err)
	}
	if w.pos-start != total {
		return -1, fmt.Errorf("%w: encoded %d bytes, computed %d", ErrFormat, w.pos-start, total)
	}

	h.Length = uint16(total)
	h.AllData = buffer[start+l.allData : start+l.allData+dataLen]
	h.layout = l
	return w.pos, nil
}

// fieldWriter serializes TLV fields and keeps the first error.
type fieldWriter struct {
	buf []byte
	pos int
	err error
}

func (w *fieldWriter) tl(tag ber.Tag, length int) {
	if w.err != nil {
		return
	}
	w.pos, w.err = ber.EncodeTL(byte(tag), uint32(length), w.buf, w.pos)
}

func (w *fieldWriter) string(tag ber.Tag, s string) {
	if w.err != nil {
		return
	}
	w.pos, w.err = ber.EncodeStringWithTag(byte(tag), s, w.buf, w.pos)
}

// uint writes the minimal width encoding and returns the value offset and width.
func (w *fieldWriter) uint(tag ber.Tag, v uint32) (int, int) {
	width := ber.UintWidth(v)
	if w.err != nil {
		return w.pos, width
	}
	w.pos, w.err = ber.EncodeUInt32WithTL(byte(tag), v, w.buf, w.pos)
	return w.pos - width, width
}

func (w *fieldWriter) bool(tag ber.Tag, v bool) {
	if w.err != nil {
		return
	}
	w.pos, w.err = ber.EncodeBoolean(byte(tag), v, w.buf, w.pos)
}

// DecodeHeader decodes a GOOSE PDU starting at its appID octet. Fields are
// checked in wire order; the first mismatch is reported as a *HeaderError
// naming the field.
func DecodeHeader(buffer []byte) (*Header, error) {
	if len(buffer) < pduPreambleLen+2 {
		return nil, &HeaderError{Code: CodeAPDU, Offset: 0,
			Err: fmt.Errorf("%w: %d bytes", ber.ErrBufferOverflow, len(buffer))}
	}

	h := &Header{
		AppID:  binary.BigEndian.Uint16(buffer[0:]),
		Length: binary.BigEndian.Uint16(buffer[2:]),
	}

	// Length excludes any Ethernet padding that follows the PDU.
	end := len(buffer)
	if l := int(h.Length); l > pduPreambleLen && l < end {
		end = l
	}

	pos := pduPreambleLen
	if buffer[pos] != byte(ber.GoosePdu) {
		return nil, &HeaderError{Code: CodeAPDU, Offset: pos,
			Err: fmt.Errorf("tag 0x%02x, want 0x%02x", buffer[pos], byte(ber.GoosePdu))}
	}
	pos, apduLen, err := ber.DecodeLength(buffer, pos+1, end)
	if err != nil {
		return nil, &HeaderError{Code: CodeAPDU, Offset: pduPreambleLen + 1, Err: err}
	}

	r := fieldReader{buf: buffer, pos: pos, end: pos + apduLen}

	if h.GoCBRef, err = r.string(ber.GoCBRef, CodeGoCBRef); err != nil {
		return nil, err
	}
	if h.TimeAllowedToLive, _, _, err = r.uint(ber.TimeAllowedToLive, CodeTimeAllowedToLive); err != nil {
		return nil, err
	}
	if h.DatSet, err = r.string(ber.DatSet, CodeDatSet); err != nil {
		return nil, err
	}
	if r.peek(ber.GoID) {
		// goID shares the datSet error code: it is optional and never "missing"
		if h.GoID, err = r.string(ber.GoID, CodeDatSet); err != nil {
			return nil, err
		}
	}

	utcPos, utcLength, err := r.next(ber.T, CodeUTC)
	if err != nil {
		return nil, err
	}
	if utcLength != utcLen {
		return nil, &HeaderError{Code: CodeUTC, Offset: utcPos, Err: fmt.Errorf("length %d, want %d", utcLength, utcLen)}
	}
	if h.Timestamp, h.Quality, err = DecodeUTC(buffer, utcPos); err != nil {
		return nil, &HeaderError{Code: CodeUTC, Offset: utcPos, Err: err}
	}
	h.layout.utc = utcPos

	if h.StNum, h.layout.stNum, h.layout.stNumLen, err = r.uint(ber.StNum, CodeStNum); err != nil {
		return nil, err
	}
	if h.SqNum, h.layout.sqNum, h.layout.sqNumLen, err = r.uint(ber.SqNum, CodeSqNum); err != nil {
		return nil, err
	}
	if h.Test, err = r.bool(ber.Simulation, CodeTest); err != nil {
		return nil, err
	}
	if h.ConfRev, _, _, err = r.uint(ber.ConfRev, CodeConfRev); err != nil {
		return nil, err
	}
	if h.NdsCom, err = r.bool(ber.NdsCom, CodeNdsCom); err != nil {
		return nil, err
	}
	if h.NumDatSetEntries, _, _, err = r.uint(ber.NumDatSetEntries, CodeNumDatSetEntries); err != nil {
		return nil, err
	}

	dataPos, dataLen, err := r.next(ber.AllData, CodeAllData)
	if err != nil {
		return nil, err
	}
	if h.AllData, err = ber.ReadBytes(buffer, dataPos, dataLen); err != nil {
		return nil, &HeaderError{Code: CodeAllData, Offset: dataPos, Err: err}
	}
	h.layout.allData, h.layout.allDataLen = dataPos, dataLen

	return h, nil
}

// fieldReader walks the TLV fields of one APDU.
type fieldReader struct {
	buf []byte
	pos int
	end int
}

func (r *fieldReader) peek(tag ber.Tag) bool {
	return r.pos < r.end && r.buf[r.pos] == byte(tag)
}

// next checks the tag at the current position and returns the value offset and length.
func (r *fieldReader) next(tag ber.Tag, code HeaderErrorCode) (int, int, error) {
	got, err := ber.ReadTag(r.buf[:r.end], r.pos)
	if err != nil {
		return -1, 0, &HeaderError{Code: code, Offset: r.pos, Err: err}
	}
	if got != byte(tag) {
		return -1, 0, &HeaderError{Code: code, Offset: r.pos,
			Err: fmt.Errorf("tag 0x%02x, want 0x%02x", got, byte(tag))}
	}
	valuePos, length, err := ber.DecodeLength(r.buf, r.pos+1, r.end)
	if err != nil {
		return -1, 0, &HeaderError{Code: code, Offset: r.pos + 1, Err: err}
	}
	r.pos = valuePos + length
	return valuePos, length, nil
}

func (r *fieldReader) string(tag ber.Tag, code HeaderErrorCode) (string, error) {
	valuePos, length, err := r.next(tag, code)
	if err != nil {
		return "", err
	}
	s, err := ber.DecodeString(r.buf, length, valuePos, r.end)
	if err != nil {
		return "", &HeaderError{Code: code, Offset: valuePos, Err: err}
	}
	return s, nil
}

// uint accepts 1 to 4 value octets, or 5 when the first is a BER sign pad.
func (r *fieldReader) uint(tag ber.Tag, code HeaderErrorCode) (uint32, int, int, error) {
	valuePos, length, err := r.next(tag, code)
	if err != nil {
		return 0, -1, 0, err
	}
	switch {
	case length >= 1 && length <= 4:
	case length == 5 && r.buf[valuePos] == 0:
		return ber.DecodeUint32(r.buf, 4, valuePos+1), valuePos, length, nil
	default:
		return 0, -1, 0, &HeaderError{Code: code, Offset: valuePos,
			Err: fmt.Errorf("%w: %d octet unsigned", ber.ErrInvalidLength, length)}
	}
	return ber.DecodeUint32(r.buf, length, valuePos), valuePos, length, nil
}

func (r *fieldReader) bool(tag ber.Tag, code HeaderErrorCode) (bool, error) {
	valuePos, length, err := r.next(tag, code)
	if err != nil {
		return false, err
	}
	if length != 1 {
		return false, &HeaderError{Code: code, Offset: valuePos,
			Err: fmt.Errorf("%w: %d octet boolean", ber.ErrInvalidLength, length)}
	}
	return ber.DecodeBoolean(r.buf, valuePos), nil
}
