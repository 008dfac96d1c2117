package task

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

func testControlBlock(maxTime time.Duration) *goose.ControlBlock {
	return &goose.ControlBlock{
		AppIDName:      "GOOSE_1",
		IEDName:        "IED1",
		DeviceName:     "LD0",
		LN0ClassName:   "LLN0",
		GSEControlName: "gcb01",
		DatSetName:     "ds01",
		AppID:          1,
		DstMAC:         net.HardwareAddr{0x01, 0x0C, 0xCD, 0x01, 0x00, 0x01},
		MaxTime:        maxTime,
		Signals: []goose.Signal{
			{BType: "BOOLEAN", Casdu: 1, Ioa: 1, Ti: 9},
			{BType: "INT32", Casdu: 1, Ioa: 2, Ti: 9},
		},
	}
}

type publisher struct {
	t     *testing.T
	frame *goose.Frame
}

func newPublisher(t *testing.T, cb *goose.ControlBlock) *publisher {
	f, err := goose.NewFrame(cb, net.HardwareAddr{0x00, 0x1A, 0xB6, 0x03, 0x2F, 0x1C})
	require.NoError(t, err)
	return &publisher{t: t, frame: f}
}

// newState возвращает пакет с новым stNum
func (p *publisher) newState(values ...any) ([]byte, *goose.Header) {
	keys := p.frame.Keys()
	for i, v := range values {
		require.NoError(p.t, p.frame.SetValueByKey(keys[i], v))
	}
	p.frame.NewState()
	pkt, err := p.frame.UpdateFromFrame()
	require.NoError(p.t, err)
	return p.decode(pkt)
}

// repeat возвращает повтор последнего пакета
func (p *publisher) repeat() ([]byte, *goose.Header) {
	pkt, err := p.frame.IncrementSqNum()
	require.NoError(p.t, err)
	return p.decode(pkt)
}

func (p *publisher) decode(pkt []byte) ([]byte, *goose.Header) {
	_, h, err := goose.DecodePacket(pkt)
	require.NoError(p.t, err)
	return pkt, h
}

type call struct {
	validity goose.Validity
	stNum    uint32
	sqNum    uint32
}

func waitCall(t *testing.T, calls <-chan call) call {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
		return call{}
	}
}

func assertNoCall(t *testing.T, calls <-chan call) {
	t.Helper()
	select {
	case c := <-calls:
		t.Fatalf("unexpected handler call %+v", c)
	case <-time.After(20 * time.Millisecond):
	}
}

func newReceive(t *testing.T, cb *goose.ControlBlock, opts ...Option) (*Receive, chan call) {
	frame, err := goose.NewFrame(cb, nil)
	require.NoError(t, err)
	calls := make(chan call, 16)
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	r := NewReceive(frame, func(f *goose.Frame) {
		calls <- call{validity: f.Validity(), stNum: f.StNum(), sqNum: f.SqNum()}
	}, opts...)
	return r, calls
}

func TestReceiveStateChanges(t *testing.T) {
	cb := testControlBlock(time.Second)
	pub := newPublisher(t, cb)
	r, calls := newReceive(t, cb)

	require.NoError(t, r.Enable())
	assert.True(t, r.Enabled())
	assert.Equal(t, WatchdogExpired, r.State())

	pkt, h := pub.newState(true, 42)
	require.NoError(t, r.OnPacket(pkt, h))
	c := waitCall(t, calls)
	assert.Equal(t, call{validity: goose.Good, stNum: 1, sqNum: 1}, c)
	assert.Equal(t, WatchdogRunning, r.State())

	v, err := r.Frame().GetValueByKey("1.2.9")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	// повтор того же состояния обработчик не вызывает
	pkt, h = pub.repeat()
	require.NoError(t, r.OnPacket(pkt, h))
	assertNoCall(t, calls)

	pkt, h = pub.newState(false, -7)
	require.NoError(t, r.OnPacket(pkt, h))
	c = waitCall(t, calls)
	assert.Equal(t, uint32(2), c.stNum)
	v, err = r.Frame().GetValueByKey("1.1.9")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	require.NoError(t, r.Disable())
	<-r.Done()
	assert.Equal(t, goose.Invalid, r.Frame().Validity())
	assert.False(t, r.Enabled())

	// после остановки пакеты игнорируются
	pkt, h = pub.newState(true, 1)
	require.NoError(t, r.OnPacket(pkt, h))
	assertNoCall(t, calls)
	assert.ErrorIs(t, r.Disable(), goose.ErrProtocolState)
}

func TestReceiveExpiry(t *testing.T) {
	cb := testControlBlock(40 * time.Millisecond)
	pub := newPublisher(t, cb)
	expired := make(chan struct{}, 4)
	r, calls := newReceive(t, cb, WithExpireHook(func() { expired <- struct{}{} }))
	require.NoError(t, r.Enable())

	pkt, h := pub.newState(true, 1)
	require.NoError(t, r.OnPacket(pkt, h))
	assert.Equal(t, goose.Good, waitCall(t, calls).validity)

	// пакеты перестали приходить
	c := waitCall(t, calls)
	assert.Equal(t, goose.Questionable, c.validity)
	assert.Len(t, expired, 1)
	assert.Equal(t, WatchdogExpired, r.State())

	// повтор того же stNum возвращает достоверность и вызывает обработчик
	pkt, h = pub.repeat()
	require.NoError(t, r.OnPacket(pkt, h))
	c = waitCall(t, calls)
	assert.Equal(t, goose.Good, c.validity)
	assert.Equal(t, uint32(1), c.stNum)
	assert.Equal(t, uint32(1), c.sqNum)

	require.NoError(t, r.Disable())
	<-r.Done()
}

func TestReceiveTrigger(t *testing.T) {
	cb := testControlBlock(time.Second)
	pub := newPublisher(t, cb)
	r, calls := newReceive(t, cb)
	require.NoError(t, r.Enable())

	pkt, h := pub.newState(true, 5)
	require.NoError(t, r.OnPacket(pkt, h))
	waitCall(t, calls)

	r.Trigger()
	c := waitCall(t, calls)
	assert.Equal(t, goose.Good, c.validity)
	assert.Equal(t, uint32(1), c.stNum)

	require.NoError(t, r.Disable())
	<-r.Done()
}

func TestReceiveDecodeError(t *testing.T) {
	cb := testControlBlock(time.Second)
	other := testControlBlock(time.Second)
	other.Signals = other.Signals[:1]
	pub := newPublisher(t, other)

	r, calls := newReceive(t, cb)
	require.NoError(t, r.Enable())

	pkt, h := pub.newState(true)
	err := r.OnPacket(pkt, h)
	assert.ErrorIs(t, err, goose.ErrFormat)
	assert.Equal(t, goose.Invalid, r.Frame().Validity())
	assertNoCall(t, calls)
	assert.Equal(t, WatchdogExpired, r.State())

	require.NoError(t, r.Disable())
	<-r.Done()
}

func TestReceiveBadPacketsDoNotRefresh(t *testing.T) {
	cb := testControlBlock(60 * time.Millisecond)
	pub := newPublisher(t, cb)
	other := testControlBlock(time.Second)
	other.Signals = other.Signals[:1]
	bad := newPublisher(t, other)

	r, calls := newReceive(t, cb)
	require.NoError(t, r.Enable())

	pkt, h := pub.newState(true, 1)
	require.NoError(t, r.OnPacket(pkt, h))
	assert.Equal(t, goose.Good, waitCall(t, calls).validity)

	// издатель продолжает слать кадры с неверным набором данных
	bad.newState(true)
	deadline := time.After(2 * time.Second)
	for r.State() != WatchdogExpired {
		pkt, h = bad.newState(true)
		assert.ErrorIs(t, r.OnPacket(pkt, h), goose.ErrFormat)
		select {
		case <-deadline:
			t.Fatal("watchdog did not expire")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Equal(t, goose.Questionable, waitCall(t, calls).validity)

	require.NoError(t, r.Disable())
	<-r.Done()
}

func TestReceiveWithoutControlBlock(t *testing.T) {
	r := NewReceive(goose.NewUnknownFrame(), nil, WithLogger(logger.Nop()))
	assert.ErrorIs(t, r.Enable(), goose.ErrMissingControlBlock)
}
