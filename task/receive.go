package task

import (
	"sync"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

// Handler вызывается при обновлении кадра или изменении его достоверности
type Handler func(frame *goose.Frame)

// Receive принимает пакеты одного блока управления и следит за их
// своевременностью. Обработчик никогда не вызывается параллельно сам с собой.
type Receive struct {
	mu       sync.Mutex
	frame    *goose.Frame
	handler  Handler
	watchdog *Watchdog
	seen     bool
	onExpire func()
	logger   logger.Logger
}

// NewReceive создаёт задачу приёма для кадра
func NewReceive(frame *goose.Frame, handler Handler, opts ...Option) *Receive {
	o := applyOptions("receive", opts)
	r := &Receive{
		frame:    frame,
		handler:  handler,
		onExpire: o.onExpire,
		logger:   o.logger,
	}
	r.watchdog = NewWatchdog(r.expired, opts...)
	return r
}

// Enable запускает сторожевой таймер с таймаутом maxTime блока управления
func (r *Receive) Enable() error {
	cb := r.frame.ControlBlock()
	if cb == nil {
		return goose.ErrMissingControlBlock
	}
	return r.watchdog.Enable(cb.MaxTime)
}

// Disable останавливает таймер и помечает кадр недостоверным
func (r *Receive) Disable() error {
	if err := r.watchdog.Disable(); err != nil {
		return err
	}
	r.frame.SetValidity(goose.Invalid)
	return nil
}

// Enabled сообщает, принимаются ли пакеты
func (r *Receive) Enabled() bool {
	s := r.watchdog.State()
	return s == WatchdogRunning || s == WatchdogExpired
}

// State возвращает состояние сторожевого таймера
func (r *Receive) State() WatchdogState {
	return r.watchdog.State()
}

// Done закрывается после остановки сторожевого таймера
func (r *Receive) Done() <-chan struct{} {
	return r.watchdog.Done()
}

// Frame возвращает принимаемый кадр
func (r *Receive) Frame() *goose.Frame {
	return r.frame
}

// OnPacket обрабатывает принятый пакет с уже разобранным заголовком h.
// Новый stNum означает новое состояние: пакет декодируется и вызывается
// обработчик. Тот же stNum только продлевает жизнь кадра; обработчик
// вызывается, если кадр снова стал достоверным. Пакет, который не удалось
// декодировать, жизнь кадра не продлевает.
func (r *Receive) OnPacket(pkt []byte, h *goose.Header) error {
	if !r.Enabled() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.seen || h.StNum != r.frame.StNum() {
		if err := r.frame.UpdateFromPacket(pkt); err != nil {
			r.logger.Debug("stNum %d: %v", h.StNum, err)
			return err
		}
		r.watchdog.Refresh()
		r.seen = true
		r.frame.SetValidity(goose.Good)
		r.call()
		return nil
	}

	r.watchdog.Refresh()
	if r.frame.Validity() != goose.Good {
		r.frame.SetValidity(goose.Good)
		r.call()
	}
	return nil
}

// Trigger вызывает обработчик для последнего принятого кадра, не продлевая
// его жизнь
func (r *Receive) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.call()
}

func (r *Receive) expired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frame.SetValidity(goose.Questionable)
	if r.onExpire != nil {
		r.onExpire()
	}
	r.call()
}

// call вызывается под r.mu
func (r *Receive) call() {
	if r.handler != nil {
		r.handler(r.frame)
	}
}
