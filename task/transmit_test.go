package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func nextDelay(t *testing.T, ch <-chan time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("nothing scheduled")
		return 0
	}
}

func TestRetransmitDelay(t *testing.T) {
	const maxTime = 5000 * time.Millisecond
	want := []time.Duration{1000, 1000, 2000, 3000, 5000, 5000, 5000}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, RetransmitDelay(maxTime, i+1), "attempt %d", i+1)
	}
}

func TestTransmitSchedule(t *testing.T) {
	var sent, repeated atomic.Int32
	delays := make(chan time.Duration, 32)

	tr, err := NewTransmit(0, 100*time.Millisecond,
		func() { sent.Add(1) },
		func() { repeated.Add(1) },
		WithLogger(logger.Nop()),
		withScheduleHook(func(d time.Duration) { delays <- d }),
	)
	require.NoError(t, err)
	require.NoError(t, tr.Enable())

	want := []time.Duration{20, 20, 40, 60, 100, 100}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, nextDelay(t, delays), "delay %d", i)
	}

	require.NoError(t, tr.Disable())
	<-tr.Done()
	assert.Equal(t, NonExistent, tr.State())
	assert.Equal(t, int32(1), sent.Load())
	assert.GreaterOrEqual(t, repeated.Load(), int32(5))
}

func TestTransmitThrottle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	sent := make(chan struct{}, 8)
	delays := make(chan time.Duration, 32)

	tr, err := NewTransmit(50*time.Millisecond, 10*time.Second,
		func() { sent <- struct{}{} },
		func() {},
		WithLogger(logger.Nop()),
		WithClock(clock.Now),
		withScheduleHook(func(d time.Duration) { delays <- d }),
	)
	require.NoError(t, err)
	require.NoError(t, tr.Enable())

	<-sent
	assert.Equal(t, 2*time.Second, nextDelay(t, delays))

	// изменение через 20 мс после передачи ждёт оставшиеся 30 мс
	clock.Advance(20 * time.Millisecond)
	require.NoError(t, tr.DataHasBeenChanged())
	assert.Equal(t, 30*time.Millisecond, nextDelay(t, delays))
	assert.Equal(t, RetransmitPending, tr.State())
	assert.Len(t, sent, 0)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("throttled values were not sent")
	}
	assert.Equal(t, 2*time.Second, nextDelay(t, delays))

	// после minTime отправка сразу
	clock.Advance(60 * time.Millisecond)
	require.NoError(t, tr.DataHasBeenChanged())
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("values were not sent")
	}
	assert.Equal(t, 2*time.Second, nextDelay(t, delays))

	require.NoError(t, tr.Disable())
	<-tr.Done()
}

func TestTransmitResetsAttempts(t *testing.T) {
	var sent atomic.Int32
	delays := make(chan time.Duration, 32)

	tr, err := NewTransmit(0, 500*time.Millisecond,
		func() { sent.Add(1) },
		func() {},
		WithLogger(logger.Nop()),
		withScheduleHook(func(d time.Duration) { delays <- d }),
	)
	require.NoError(t, err)
	require.NoError(t, tr.Enable())

	for _, w := range []time.Duration{100, 100, 200} {
		assert.Equal(t, w*time.Millisecond, nextDelay(t, delays))
	}
	require.NoError(t, tr.DataHasBeenChanged())

	// после новой отправки отсчёт повторов начинается заново
	for {
		d := nextDelay(t, delays)
		if sent.Load() == 2 {
			assert.Equal(t, 100*time.Millisecond, d)
			break
		}
	}

	require.NoError(t, tr.Disable())
	<-tr.Done()
}

func TestTransmitProtocolState(t *testing.T) {
	_, err := NewTransmit(time.Second, time.Millisecond, nil, nil)
	assert.ErrorIs(t, err, goose.ErrConfig)

	tr, err := NewTransmit(0, time.Second, nil, nil, WithLogger(logger.Nop()))
	require.NoError(t, err)

	assert.ErrorIs(t, tr.Disable(), goose.ErrProtocolState)
	assert.ErrorIs(t, tr.DataHasBeenChanged(), goose.ErrProtocolState)

	require.NoError(t, tr.Enable())
	assert.ErrorIs(t, tr.Enable(), goose.ErrProtocolState)

	require.NoError(t, tr.Disable())
	assert.ErrorIs(t, tr.Disable(), goose.ErrProtocolState)
	<-tr.Done()
	assert.Equal(t, NonExistent, tr.State())

	// после остановки передачу можно включить снова
	require.NoError(t, tr.Enable())
	require.NoError(t, tr.Disable())
	<-tr.Done()
}

func TestTransmitStateString(t *testing.T) {
	assert.Equal(t, "retransmit-pending", RetransmitPending.String())
	assert.Equal(t, "TransmitState(7)", TransmitState(7).String())
}
