package goose

import (
	"bytes"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/slonegd/gogoose/ber"
	"github.com/slonegd/gogoose/goose/dataset"
)

// Validity of the values a frame currently holds.
type Validity int

const (
	Good Validity = iota + 1
	Questionable
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Good:
		return "good"
	case Questionable:
		return "questionable"
	case Invalid:
		return "invalid"
	default:
		var b strings.Builder
		b.WriteString("unknown(")
		b.WriteString(strconv.Itoa(int(v)))
		b.WriteByte(')')
		return b.String()
	}
}

type frameOptions struct {
	now func() time.Time
}

// FrameOption configures a Frame
type FrameOption func(*frameOptions)

// WithClock replaces time.Now, used for timestamps and validity checks.
func WithClock(now func() time.Time) FrameOption {
	return func(o *frameOptions) {
		o.now = now
	}
}

// Frame is the current state of one control block: header fields, data set,
// validity, and the last wire buffer built from them. It is safe for
// concurrent use; packets handed out are copies.
type Frame struct {
	mu sync.RWMutex

	cb   *ControlBlock
	keys map[string]int

	eth      Ethernet
	header   Header
	data     *dataset.DataSet
	validity Validity

	packet    []byte
	pduOffset int
	// dirty forces a rebuild on the next update; set when a field outside
	// the patchable ones changes.
	dirty bool

	now func() time.Time
}

func newFrameOptions(opts []FrameOption) frameOptions {
	o := frameOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewFrame creates the frame of a configured control block. src is the
// publisher's MAC address and may be nil on the subscribing side.
func NewFrame(cb *ControlBlock, src net.HardwareAddr, opts ...FrameOption) (*Frame, error) {
	if cb == nil {
		return nil, ErrMissingControlBlock
	}
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	o := newFrameOptions(opts)

	keys := make(map[string]int, len(cb.Signals))
	elems := make([]dataset.DataElement, 0, len(cb.Signals))
	for i, s := range cb.Signals {
		typ, size, err := dataset.LookupSourceType(s.BType)
		if err != nil {
			return nil, fmt.Errorf("%w: signal %s: %w", ErrConfig, s.Key(), err)
		}
		e, err := dataset.NewElement(typ, size)
		if err != nil {
			return nil, fmt.Errorf("%w: signal %s: %w", ErrConfig, s.Key(), err)
		}
		keys[s.Key()] = i
		elems = append(elems, e)
	}

	confRev := cb.ConfRev
	if confRev == 0 {
		confRev = 1
	}

	f := &Frame{
		cb:   cb,
		keys: keys,
		eth: Ethernet{
			Dst:       cb.DstMAC,
			Src:       src,
			VLAN:      cb.VLAN,
			EtherType: EtherTypeGOOSE,
		},
		header: Header{
			AppID:             cb.AppID,
			GoCBRef:           cb.GoCBRef(),
			TimeAllowedToLive: cb.TimeAllowedToLive(),
			DatSet:            cb.DatSetRef(),
			GoID:              cb.GoID(),
			Timestamp:         o.now(),
			Quality:           DefaultQuality(),
			ConfRev:           confRev,
			NumDatSetEntries:  uint32(len(elems)),
		},
		data:     dataset.FromElements(elems...),
		validity: Invalid,
		dirty:    true,
		now:      o.now,
	}
	for i, s := range cb.Signals {
		if s.Initial == nil {
			continue
		}
		if err := setElement(f.data.Element(i), s.Initial, true); err != nil {
			return nil, fmt.Errorf("%w: signal %s initial value: %w", ErrConfig, s.Key(), err)
		}
	}
	return f, nil
}

// NewUnknownFrame creates an empty frame for packets of control blocks that
// were never registered.
func NewUnknownFrame(opts ...FrameOption) *Frame {
	o := newFrameOptions(opts)
	return &Frame{
		keys:     map[string]int{},
		eth:      Ethernet{EtherType: EtherTypeGOOSE},
		header:   Header{Quality: DefaultQuality()},
		data:     dataset.New(0),
		validity: Invalid,
		dirty:    true,
		now:      o.now,
	}
}

// MakeNewPacket builds a wire buffer from scratch out of the current state.
func (f *Frame) MakeNewPacket() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.build(); err != nil {
		return nil, err
	}
	return bytes.Clone(f.packet), nil
}

// build replaces f.packet; on error the previous packet is kept.
func (f *Frame) build() error {
	buffer := make([]byte, MaxPacketSize)
	pos, err := f.eth.Encode(buffer)
	if err != nil {
		return classify(err)
	}

	h := f.header
	end, err := h.Encode(buffer, pos, f.data)
	if err != nil {
		return err
	}
	f.header = h
	f.packet = buffer[:end]
	f.pduOffset = pos
	f.dirty = false
	return nil
}

// UpdateFromFrame re-timestamps the frame and serializes it. The previous
// buffer is patched in place when stNum, sqNum and the data set keep their
// encoded sizes; otherwise it is rebuilt.
func (f *Frame) UpdateFromFrame() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.Timestamp = f.now()

	l := f.header.layout
	if f.dirty ||
		ber.UintWidth(f.header.StNum) != l.stNumLen ||
		ber.UintWidth(f.header.SqNum) != l.sqNumLen ||
		f.data.Size() != l.allDataLen {
		if err := f.build(); err != nil {
			return nil, err
		}
		return bytes.Clone(f.packet), nil
	}

	pdu := f.packet[f.pduOffset:]
	if _, err := EncodeUTC(f.header.Timestamp, f.header.Quality, pdu, l.utc); err != nil {
		return nil, classify(err)
	}
	if _, err := ber.EncodeUint(uint64(f.header.StNum), l.stNumLen, pdu, l.stNum); err != nil {
		return nil, classify(err)
	}
	if _, err := ber.EncodeUint(uint64(f.header.SqNum), l.sqNumLen, pdu, l.sqNum); err != nil {
		return nil, classify(err)
	}
	if _, err := f.data.Encode(pdu, l.allData); err != nil {
		// the buffer may hold a partial data set now
		f.dirty = true
		return nil, classify(err)
	}
	f.header.AllData = pdu[l.allData : l.allData+l.allDataLen]
	return bytes.Clone(f.packet), nil
}

// IncrementSqNum advances sqNum for a retransmission and serializes the frame
// without touching its timestamp.
func (f *Frame) IncrementSqNum() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.SqNum = nextSequence(f.header.SqNum)

	l := f.header.layout
	if f.dirty || ber.UintWidth(f.header.SqNum) != l.sqNumLen {
		if err := f.build(); err != nil {
			return nil, err
		}
		return bytes.Clone(f.packet), nil
	}

	if _, err := ber.EncodeUint(uint64(f.header.SqNum), l.sqNumLen, f.packet[f.pduOffset:], l.sqNum); err != nil {
		return nil, classify(err)
	}
	return bytes.Clone(f.packet), nil
}

// NewState records a data change: stNum advances and sqNum restarts at 1.
func (f *Frame) NewState() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.StNum = nextSequence(f.header.StNum)
	f.header.SqNum = 1
}

// nextSequence wraps past 4294967295 to 1, never to 0.
func nextSequence(v uint32) uint32 {
	if v == math.MaxUint32 {
		return 1
	}
	return v + 1
}

// UpdateFromPacket decodes a packet of this frame's control block. The data
// set must have the configured number of entries. On error the frame is
// marked invalid and keeps its previous values.
func (f *Frame) UpdateFromPacket(pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	eth, h, err := DecodePacket(pkt)
	if err != nil {
		f.validity = Invalid
		return err
	}
	if int(h.NumDatSetEntries) != f.data.Len() {
		f.validity = Invalid
		return fmt.Errorf("%w: %d data set entries, configured %d", ErrFormat, h.NumDatSetEntries, f.data.Len())
	}
	data := f.data.Clone()
	if _, err := data.Decode(h.AllData, 0, len(h.AllData)); err != nil {
		f.validity = Invalid
		return classify(err)
	}

	f.store(pkt, eth, h, data)
	return nil
}

// UpdateFromUnknownPacket decodes a packet of any control block. Validity is
// questionable when the packet is older than its timeAllowedToLive.
func (f *Frame) UpdateFromUnknownPacket(pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	eth, h, err := DecodePacket(pkt)
	if err != nil {
		f.validity = Invalid
		return err
	}
	data, _, err := dataset.Decode(h.AllData, 0, len(h.AllData), int(h.NumDatSetEntries))
	if err != nil {
		f.validity = Invalid
		return classify(err)
	}

	f.store(pkt, eth, h, data)
	tal := time.Duration(h.TimeAllowedToLive) * time.Millisecond
	if f.now().Sub(h.Timestamp) > tal {
		f.validity = Questionable
	} else {
		f.validity = Good
	}
	return nil
}

// DecodePacket validates the Ethernet envelope and decodes the GOOSE header
// of a received packet. Header.AllData aliases pkt.
func DecodePacket(pkt []byte) (Ethernet, *Header, error) {
	eth, offset, err := ParseEthernet(pkt)
	if err != nil {
		return Ethernet{}, nil, err
	}
	h, err := DecodeHeader(pkt[offset:])
	if err != nil {
		return Ethernet{}, nil, err
	}
	return eth, h, nil
}

func (f *Frame) store(pkt []byte, eth Ethernet, h *Header, data *dataset.DataSet) {
	f.packet = bytes.Clone(pkt)
	f.pduOffset = eth.Len()
	f.eth = eth
	f.header = *h
	f.header.AllData = f.packet[f.pduOffset+h.layout.allData : f.pduOffset+h.layout.allData+h.layout.allDataLen]
	f.data = data
	f.dirty = true
}

func (f *Frame) element(key string) (*dataset.DataElement, error) {
	i, ok := f.keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return f.data.Element(i), nil
}

// Element returns a copy of the data element addressed by "casdu.ioa.ti".
func (f *Frame) Element(key string) (dataset.DataElement, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, err := f.element(key)
	if err != nil {
		return dataset.DataElement{}, err
	}
	return *e, nil
}

// GetValueByKey returns the value of the element addressed by key as bool,
// int64, uint64, float32 or float64.
func (f *Frame) GetValueByKey(key string) (any, error) {
	e, err := f.Element(key)
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}

// SetValueByKey converts value to the declared type of the element addressed
// by key and stores it. Floats keep their width unless value is a float32
// or float64.
func (f *Frame) SetValueByKey(key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, err := f.element(key)
	if err != nil {
		return err
	}
	return classifyValue(setElement(e, value, false))
}

// setElement converts value to the type of e. With keepWidth a float value
// never changes the element width.
func setElement(e *dataset.DataElement, value any, keepWidth bool) error {
	mismatch := func(err error) error {
		return fmt.Errorf("%w: %s: %w", dataset.ErrTypeMismatch, e.Type(), err)
	}

	switch e.Type() {
	case dataset.Boolean:
		v, err := cast.ToBoolE(value)
		if err != nil {
			return mismatch(err)
		}
		e.SetBool(v)
	case dataset.Integer:
		v, err := toInt64(value)
		if err != nil {
			return mismatch(err)
		}
		e.SetInt(v)
	case dataset.Unsigned:
		v, err := toUint64(value)
		if err != nil {
			return mismatch(err)
		}
		return e.SetUint(v)
	case dataset.Float:
		if !keepWidth {
			switch v := value.(type) {
			case float32:
				e.SetFloat32(v)
				return nil
			case float64:
				e.SetFloat64(v)
				return nil
			}
		}
		fv, err := cast.ToFloat64E(value)
		if err != nil {
			return mismatch(err)
		}
		if e.Len() == 4 {
			e.SetFloat32(float32(fv))
		} else {
			e.SetFloat64(fv)
		}
	default:
		return fmt.Errorf("%w: %s", dataset.ErrUnsupportedType, e.Type())
	}
	return nil
}

// wholeFloat accepts finite floats without a fractional part. Bounds are
// [lo, hi).
func wholeFloat(f, lo, hi float64) error {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return fmt.Errorf("%v is not finite", f)
	case f != math.Trunc(f):
		return fmt.Errorf("%v is not a whole number", f)
	case f < lo || f >= hi:
		return fmt.Errorf("%w: %v", dataset.ErrOutOfRange, f)
	}
	return nil
}

// toInt64 is cast.ToInt64E without the silent wraparound of large unsigned
// and float inputs.
func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case uint:
		return toInt64(uint64(v))
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d", dataset.ErrOutOfRange, v)
		}
		return int64(v), nil
	case float32:
		return toInt64(float64(v))
	case float64:
		if err := wholeFloat(v, math.MinInt64, math.MaxInt64); err != nil {
			return 0, err
		}
		return int64(v), nil
	}
	return cast.ToInt64E(value)
}

// toUint64 is cast.ToUint64E that refuses to truncate floats.
func toUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case float32:
		return toUint64(float64(v))
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("%v is negative", v)
		}
		if err := wholeFloat(v, 0, math.MaxUint64); err != nil {
			return 0, err
		}
		return uint64(v), nil
	}
	return cast.ToUint64E(value)
}

// SetTimingAttributes sets the time quality used from the next encode on.
func (f *Frame) SetTimingAttributes(q Quality) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.Quality = q
	f.dirty = true
}

// SetTest sets the test (simulation) flag.
func (f *Frame) SetTest(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.Test = v
	f.dirty = true
}

// SetNdsCom sets the "needs commissioning" flag.
func (f *Frame) SetNdsCom(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.header.NdsCom = v
	f.dirty = true
}

// SetValidity records the validity of the current values.
func (f *Frame) SetValidity(v Validity) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.validity = v
}

// Validity returns the validity of the current values.
func (f *Frame) Validity() Validity {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.validity
}

// Header returns a copy of the header fields. AllData is a copy as well.
func (f *Frame) Header() Header {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h := f.header
	h.AllData = bytes.Clone(h.AllData)
	return h
}

// StNum returns the state number.
func (f *Frame) StNum() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.header.StNum
}

// SqNum returns the sequence number.
func (f *Frame) SqNum() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.header.SqNum
}

// DataSet returns a copy of the data set.
func (f *Frame) DataSet() *dataset.DataSet {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.data.Clone()
}

// Ethernet returns the envelope of the frame.
func (f *Frame) Ethernet() Ethernet {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.eth
}

// ControlBlock returns the configuration the frame was built from, nil for
// frames of unknown control blocks.
func (f *Frame) ControlBlock() *ControlBlock {
	return f.cb
}

// Keys returns the signal keys in data set order.
func (f *Frame) Keys() []string {
	if f.cb == nil {
		return nil
	}
	keys := make([]string, len(f.cb.Signals))
	for i, s := range f.cb.Signals {
		keys[i] = s.Key()
	}
	return keys
}
