package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

// TransmitState представляет состояние передатчика (IEC 61850-8-1, рис. 10)
type TransmitState int

const (
	NonExistent       TransmitState = iota // Передача выключена
	SendValues                             // Отправка новых значений
	RetransmitPending                      // Ожидание повтора или изменения данных
	Retransmit                             // Повтор последнего пакета
)

func (s TransmitState) String() string {
	switch s {
	case NonExistent:
		return "non-existent"
	case SendValues:
		return "send-values"
	case RetransmitPending:
		return "retransmit-pending"
	case Retransmit:
		return "retransmit"
	default:
		return fmt.Sprintf("TransmitState(%d)", int(s))
	}
}

// RetransmitDelay возвращает задержку перед повтором с номером attempt:
// 1 и 2 - maxTime/5, 3 - 2/5, 4 - 3/5, дальше maxTime.
func RetransmitDelay(maxTime time.Duration, attempt int) time.Duration {
	switch {
	case attempt <= 2:
		return maxTime / 5
	case attempt == 3:
		return maxTime * 2 / 5
	case attempt == 4:
		return maxTime * 3 / 5
	default:
		return maxTime
	}
}

// Transmit управляет отправкой и повторами одного блока управления.
// Отмена, изменение данных и таймер сводятся к одному каналу пробуждения и
// обрабатываются под одним мьютексом.
type Transmit struct {
	mu      sync.Mutex
	state   TransmitState
	minTime time.Duration
	maxTime time.Duration
	attempt int
	last    time.Time

	cancel  bool
	changed bool

	wake chan struct{}
	done chan struct{}

	sendValues func()
	retransmit func()

	now        func() time.Time
	onSchedule func(time.Duration)
	logger     logger.Logger
}

// NewTransmit создаёт передатчик. sendValues должен увеличить stNum,
// сбросить sqNum и отправить пакет; retransmit - увеличить sqNum и
// отправить пакет.
func NewTransmit(minTime, maxTime time.Duration, sendValues, retransmit func(), opts ...Option) (*Transmit, error) {
	if maxTime <= 0 || minTime < 0 || minTime > maxTime {
		return nil, fmt.Errorf("%w: minTime %s, maxTime %s", goose.ErrConfig, minTime, maxTime)
	}
	o := applyOptions("transmit", opts)
	return &Transmit{
		minTime:    minTime,
		maxTime:    maxTime,
		wake:       make(chan struct{}, 1),
		done:       closedChan(),
		sendValues: sendValues,
		retransmit: retransmit,
		now:        o.now,
		onSchedule: o.onSchedule,
		logger:     o.logger,
	}, nil
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Enable переводит NonExistent в SendValues и запускает цикл передачи
func (t *Transmit) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != NonExistent {
		return fmt.Errorf("%w: enable transmit in state %s", goose.ErrProtocolState, t.state)
	}
	t.state = SendValues
	t.cancel = false
	t.changed = false
	select {
	case <-t.wake:
	default:
	}
	t.done = make(chan struct{})
	go t.run(t.done)
	return nil
}

// Disable просит цикл остановиться. Текущий обработчик доработает до конца.
func (t *Transmit) Disable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == NonExistent || t.cancel {
		return fmt.Errorf("%w: disable transmit in state %s", goose.ErrProtocolState, t.state)
	}
	t.cancel = true
	t.notify()
	return nil
}

// DataHasBeenChanged сообщает о новых значениях; они будут отправлены не
// раньше, чем через minTime после предыдущей передачи.
func (t *Transmit) DataHasBeenChanged() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == NonExistent {
		return fmt.Errorf("%w: data changed in state %s", goose.ErrProtocolState, t.state)
	}
	t.changed = true
	t.notify()
	return nil
}

// State возвращает текущее состояние
func (t *Transmit) State() TransmitState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Done закрывается, когда цикл передачи завершился
func (t *Transmit) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done
}

// notify вызывается под t.mu
func (t *Transmit) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transmit) run(done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	schedule := func(d time.Duration) {
		timer.Reset(d)
		if t.onSchedule != nil {
			t.onSchedule(d)
		}
	}

	for {
		t.mu.Lock()
		state := t.state
		t.mu.Unlock()

		switch state {
		case SendValues:
			if t.sendValues != nil {
				t.sendValues()
			}
			t.mu.Lock()
			t.last = t.now()
			t.attempt = 1
			d := RetransmitDelay(t.maxTime, t.attempt)
			t.state = RetransmitPending
			t.mu.Unlock()
			schedule(d)

		case Retransmit:
			if t.retransmit != nil {
				t.retransmit()
			}
			t.mu.Lock()
			t.last = t.now()
			t.attempt++
			d := RetransmitDelay(t.maxTime, t.attempt)
			t.state = RetransmitPending
			t.mu.Unlock()
			schedule(d)

		case RetransmitPending:
			fired := false
			select {
			case <-t.wake:
			case <-timer.C:
				fired = true
			}

			t.mu.Lock()
			switch {
			case t.cancel:
				t.state = NonExistent
				t.cancel = false
				t.changed = false
				t.mu.Unlock()
				t.logger.Debug("stopped")
				return
			case t.changed:
				elapsed := t.now().Sub(t.last)
				if fired || elapsed >= t.minTime {
					t.changed = false
					t.state = SendValues
					t.mu.Unlock()
					timer.Stop()
					continue
				}
				wait := t.minTime - elapsed
				t.mu.Unlock()
				t.logger.Debug("data changed %s after last transmission, waiting %s", elapsed, wait)
				schedule(wait)
			case fired:
				t.state = Retransmit
				t.mu.Unlock()
			default:
				t.mu.Unlock()
			}

		default:
			return
		}
	}
}
