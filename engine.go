// Package gogoose связывает кадры GOOSE, задачи передачи и приёма и
// транспорт в один движок.
package gogoose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
	"github.com/slonegd/gogoose/metrics"
	"github.com/slonegd/gogoose/task"
	"github.com/slonegd/gogoose/transport"
)

// DefaultName - имя обработчика пакетов незарегистрированных блоков
const DefaultName = "DEFAULT"

// Kind - направление блока управления
type Kind int

const (
	Transmit Kind = iota + 1
	Receive
)

func (k Kind) String() string {
	switch k {
	case Transmit:
		return "transmit"
	case Receive:
		return "receive"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Handler вызывается с кадром блока управления. Для передачи - перед
// отправкой новых значений, для приёма - при новом состоянии или смене
// достоверности.
type Handler = task.Handler

// Resolver находит блок управления по имени appID
type Resolver interface {
	Resolve(appIDName string) (*goose.ControlBlock, error)
}

type options struct {
	logger logger.Logger
	now    func() time.Time
}

// Option представляет опцию для настройки Engine
type Option func(*options)

// WithLogger устанавливает логгер
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock заменяет time.Now для меток времени кадров и задач
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type block struct {
	name     string
	kind     Kind
	frame    *goose.Frame
	handler  Handler
	transmit *task.Transmit
	receive  *task.Receive
}

// fallback принимает пакеты блоков, которые не зарегистрированы
type fallback struct {
	mu      sync.Mutex
	frame   *goose.Frame
	handler Handler
	enabled bool
}

// Engine управляет зарегистрированными блоками управления на одном порту
type Engine struct {
	mu       sync.RWMutex
	port     transport.Port
	resolver Resolver
	blocks   map[string]*block
	byAppID  map[uint16][]*block
	fallback *fallback

	logger logger.Logger
	now    func() time.Time
}

// NewEngine создаёт движок. Адрес отправителя берётся у порта.
func NewEngine(port transport.Port, resolver Resolver, opts ...Option) *Engine {
	o := options{
		logger: logger.NewLogger("engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		port:     port,
		resolver: resolver,
		blocks:   make(map[string]*block),
		byAppID:  make(map[uint16][]*block),
		logger:   o.logger,
		now:      o.now,
	}
}

// Register создаёт кадр и задачу для блока управления name. Имя DefaultName
// на приёме равносильно RegisterDefault.
func (e *Engine) Register(kind Kind, name string, handler Handler) error {
	if kind == Receive && name == DefaultName {
		return e.RegisterDefault(handler)
	}
	if kind != Transmit && kind != Receive {
		return fmt.Errorf("%w: %s: %s", goose.ErrConfig, name, kind)
	}

	cb, err := e.resolver.Resolve(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.blocks[name]; ok {
		return fmt.Errorf("%w: %s already registered", goose.ErrProtocolState, name)
	}

	b := &block{name: name, kind: kind, handler: handler}
	switch kind {
	case Transmit:
		b.frame, err = goose.NewFrame(cb, e.port.HardwareAddr(), goose.WithClock(e.now))
		if err != nil {
			return err
		}
		b.transmit, err = task.NewTransmit(cb.MinTime, cb.MaxTime, e.sendValues(b), e.retransmit(b),
			task.WithLogger(e.logger), task.WithClock(e.now))
		if err != nil {
			return err
		}
	case Receive:
		b.frame, err = goose.NewFrame(cb, nil, goose.WithClock(e.now))
		if err != nil {
			return err
		}
		b.receive = task.NewReceive(b.frame, handler,
			task.WithLogger(e.logger),
			task.WithExpireHook(func() {
				e.logger.Warn("%s: publisher is silent for %s", name, cb.MaxTime)
				metrics.RecordWatchdogExpired(name)
			}))
		e.byAppID[cb.AppID] = append(e.byAppID[cb.AppID], b)
	}
	e.blocks[name] = b
	e.logger.Debug("%s: registered for %s, appID 0x%04X", name, kind, cb.AppID)
	return nil
}

// RegisterDefault устанавливает обработчик пакетов с неизвестным appID
func (e *Engine) RegisterDefault(handler Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fallback != nil {
		return fmt.Errorf("%w: %s already registered", goose.ErrProtocolState, DefaultName)
	}
	e.fallback = &fallback{
		frame:   goose.NewUnknownFrame(goose.WithClock(e.now)),
		handler: handler,
	}
	return nil
}

func (e *Engine) lookup(name string) (*block, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.blocks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", goose.ErrMissingControlBlock, name)
	}
	return b, nil
}

func (e *Engine) defaultReceiver() (*fallback, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.fallback == nil {
		return nil, fmt.Errorf("%w: %s is not registered", goose.ErrMissingControlBlock, DefaultName)
	}
	return e.fallback, nil
}

// Enable запускает передачу или приём блока name
func (e *Engine) Enable(name string) error {
	if name == DefaultName {
		fb, err := e.defaultReceiver()
		if err != nil {
			return err
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.enabled {
			return fmt.Errorf("%w: %s already enabled", goose.ErrProtocolState, name)
		}
		fb.enabled = true
		return nil
	}

	b, err := e.lookup(name)
	if err != nil {
		return err
	}
	if b.transmit != nil {
		return b.transmit.Enable()
	}
	return b.receive.Enable()
}

// Disable останавливает блок name. Кадр приёма становится недостоверным.
func (e *Engine) Disable(name string) error {
	if name == DefaultName {
		fb, err := e.defaultReceiver()
		if err != nil {
			return err
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if !fb.enabled {
			return fmt.Errorf("%w: %s is not enabled", goose.ErrProtocolState, name)
		}
		fb.enabled = false
		fb.frame.SetValidity(goose.Invalid)
		return nil
	}

	b, err := e.lookup(name)
	if err != nil {
		return err
	}
	if b.transmit != nil {
		return b.transmit.Disable()
	}
	return b.receive.Disable()
}

// Trigger для передачи немедленно публикует новые значения, для приёма
// вызывает обработчик с последним кадром, не продлевая его жизнь.
func (e *Engine) Trigger(name string) error {
	if name == DefaultName {
		fb, err := e.defaultReceiver()
		if err != nil {
			return err
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.handler != nil {
			fb.handler(fb.frame)
		}
		return nil
	}

	b, err := e.lookup(name)
	if err != nil {
		return err
	}
	if b.transmit != nil {
		return b.transmit.DataHasBeenChanged()
	}
	b.receive.Trigger()
	return nil
}

// SetTimingAttributes задаёт качество времени всем кадрам передачи, начиная
// со следующего кодирования
func (e *Engine) SetTimingAttributes(q goose.Quality) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, b := range e.blocks {
		if b.kind == Transmit {
			b.frame.SetTimingAttributes(q)
		}
	}
}

// Frame возвращает кадр блока name
func (e *Engine) Frame(name string) (*goose.Frame, error) {
	if name == DefaultName {
		fb, err := e.defaultReceiver()
		if err != nil {
			return nil, err
		}
		return fb.frame, nil
	}
	b, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	return b.frame, nil
}

// Names возвращает имена зарегистрированных блоков по алфавиту
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.blocks))
	for name := range e.blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run принимает пакеты с порта и раздаёт их блокам, пока не закончится ctx
// или порт не вернёт ошибку. После выхода все блоки выключены.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			pkt, err := e.port.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("receive: %w", err)
			}
			e.dispatch(pkt)
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		e.disableAll()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (e *Engine) disableAll() {
	e.mu.RLock()
	blocks := make([]*block, 0, len(e.blocks))
	for _, b := range e.blocks {
		blocks = append(blocks, b)
	}
	e.mu.RUnlock()

	for _, b := range blocks {
		switch {
		case b.transmit != nil && b.transmit.State() != task.NonExistent:
			if err := b.transmit.Disable(); err == nil {
				<-b.transmit.Done()
			}
		case b.receive != nil && b.receive.Enabled():
			if err := b.receive.Disable(); err == nil {
				<-b.receive.Done()
			}
		}
	}
}

// dispatch раздаёт пакет по appID; при совпадении appID у нескольких блоков
// выбор делается по goCBRef
func (e *Engine) dispatch(pkt []byte) {
	_, h, err := goose.DecodePacket(pkt)
	if err != nil {
		if errors.Is(err, goose.ErrNotGoose) {
			return
		}
		metrics.RecordDecodeError(decodeReason(err))
		e.logger.Debug("drop packet: %v", err)
		return
	}

	b := e.route(h)
	if b == nil {
		e.dispatchUnknown(pkt)
		return
	}
	if !b.receive.Enabled() {
		return
	}
	metrics.RecordFrameReceived(b.name)
	if err := b.receive.OnPacket(pkt, h); err != nil {
		metrics.RecordDecodeError(decodeReason(err))
		e.logger.Warn("%s: %v", b.name, err)
	}
}

func (e *Engine) route(h *goose.Header) *block {
	e.mu.RLock()
	defer e.mu.RUnlock()

	candidates := e.byAppID[h.AppID]
	if len(candidates) == 1 {
		return candidates[0]
	}
	for _, b := range candidates {
		if b.frame.ControlBlock().GoCBRef() == h.GoCBRef {
			return b
		}
	}
	return nil
}

func (e *Engine) dispatchUnknown(pkt []byte) {
	e.mu.RLock()
	fb := e.fallback
	e.mu.RUnlock()
	if fb == nil {
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if !fb.enabled {
		return
	}
	if err := fb.frame.UpdateFromUnknownPacket(pkt); err != nil {
		metrics.RecordDecodeError(decodeReason(err))
		e.logger.Debug("%s: %v", DefaultName, err)
		return
	}
	metrics.RecordFrameReceived(DefaultName)
	if fb.handler != nil {
		fb.handler(fb.frame)
	}
}

func decodeReason(err error) string {
	var he *goose.HeaderError
	switch {
	case errors.As(err, &he):
		return he.Code.Field()
	case errors.Is(err, goose.ErrRange):
		return "range"
	default:
		return "format"
	}
}

// sendValues публикует новое состояние: stNum растёт, sqNum сбрасывается
func (e *Engine) sendValues(b *block) func() {
	return func() {
		if b.handler != nil {
			b.handler(b.frame)
		}
		b.frame.SetValidity(goose.Good)
		b.frame.NewState()
		pkt, err := b.frame.UpdateFromFrame()
		if err != nil {
			e.logger.Error("%s: encode: %v", b.name, err)
			return
		}
		e.send(b, pkt, metrics.KindNew)
	}
}

// retransmit повторяет последнее состояние со следующим sqNum
func (e *Engine) retransmit(b *block) func() {
	return func() {
		pkt, err := b.frame.IncrementSqNum()
		if err != nil {
			e.logger.Error("%s: encode: %v", b.name, err)
			return
		}
		e.send(b, pkt, metrics.KindRetransmit)
	}
}

func (e *Engine) send(b *block, pkt []byte, kind string) {
	if err := e.port.Send(pkt); err != nil {
		e.logger.Warn("%s: send: %v", b.name, err)
		return
	}
	metrics.RecordFrameSent(b.name, kind)
}
