package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

// WatchdogState представляет состояние сторожевого таймера
type WatchdogState int

const (
	WatchdogNotStarted WatchdogState = iota // Таймер не запускался
	WatchdogRunning                         // Пакеты приходят вовремя
	WatchdogExpired                         // Таймаут истёк, ждём следующий пакет
	WatchdogStopped                         // Конечное состояние
)

func (s WatchdogState) String() string {
	switch s {
	case WatchdogNotStarted:
		return "not-started"
	case WatchdogRunning:
		return "running"
	case WatchdogExpired:
		return "expired"
	case WatchdogStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WatchdogState(%d)", int(s))
	}
}

// Watchdog следит за тем, чтобы пакеты приходили не реже одного раза за
// timeout. Все переходы выполняются под одним мьютексом, таймером владеет
// только собственная горутина.
type Watchdog struct {
	mu        sync.Mutex
	state     WatchdogState
	timeout   time.Duration
	refreshed bool
	stopping  bool

	wake     chan struct{}
	done     chan struct{}
	onExpire func()

	logger logger.Logger
}

// NewWatchdog создаёт таймер; onExpire вызывается вне блокировки
func NewWatchdog(onExpire func(), opts ...Option) *Watchdog {
	o := applyOptions("watchdog", opts)
	return &Watchdog{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onExpire: onExpire,
		logger:   o.logger,
	}
}

// Enable запускает таймер. Пакетов ещё не было, поэтому начальное состояние
// Expired.
func (w *Watchdog) Enable(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: watchdog timeout %s", goose.ErrConfig, timeout)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != WatchdogNotStarted {
		return fmt.Errorf("%w: enable watchdog in state %s", goose.ErrProtocolState, w.state)
	}
	w.timeout = timeout
	w.state = WatchdogExpired
	go w.run()
	return nil
}

// Refresh перезапускает отсчёт. В состояниях NotStarted и Stopped
// игнорируется.
func (w *Watchdog) Refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case WatchdogRunning, WatchdogExpired:
		if w.stopping {
			return
		}
		w.state = WatchdogRunning
		w.refreshed = true
		w.notify()
	default:
		w.logger.Debug("refresh ignored in state %s", w.state)
	}
}

// Disable останавливает таймер без вызова обработчика. Повторный вызов
// возвращает ErrProtocolState.
func (w *Watchdog) Disable() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.state == WatchdogStopped || w.stopping:
		return fmt.Errorf("%w: watchdog already stopped", goose.ErrProtocolState)
	case w.state == WatchdogNotStarted:
		w.state = WatchdogStopped
		close(w.done)
	default:
		w.stopping = true
		w.notify()
	}
	return nil
}

// State возвращает текущее состояние
func (w *Watchdog) State() WatchdogState {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

// Done закрывается, когда таймер переходит в Stopped
func (w *Watchdog) Done() <-chan struct{} {
	return w.done
}

// notify вызывается под w.mu
func (w *Watchdog) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watchdog) run() {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.wake:
		case <-timer.C:
			w.mu.Lock()
			if w.state == WatchdogRunning && !w.refreshed && !w.stopping {
				w.state = WatchdogExpired
				timeout := w.timeout
				w.mu.Unlock()

				w.logger.Debug("expired after %s", timeout)
				if w.onExpire != nil {
					w.onExpire()
				}
				continue
			}
			w.mu.Unlock()
		}

		w.mu.Lock()
		if w.stopping {
			w.state = WatchdogStopped
			w.stopping = false
			w.mu.Unlock()
			return
		}
		if w.refreshed {
			w.refreshed = false
			timer.Reset(w.timeout)
		}
		w.mu.Unlock()
	}
}
