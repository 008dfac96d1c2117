package task

import (
	"time"

	"github.com/slonegd/gogoose/logger"
)

// options содержит общие опции задач
type options struct {
	logger     logger.Logger
	now        func() time.Time
	onSchedule func(time.Duration)
	onExpire   func()
}

func defaultOptions(category string) options {
	return options{
		logger: logger.NewLogger(category),
		now:    time.Now,
	}
}

// Option представляет опцию для настройки задачи
type Option func(*options)

// WithLogger устанавливает логгер
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock заменяет time.Now при вычислении интервалов между передачами
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithExpireHook устанавливает функцию, вызываемую при каждом срабатывании
// сторожевого таймера (до обработчика пользователя)
func WithExpireHook(fn func()) Option {
	return func(o *options) {
		o.onExpire = fn
	}
}

// withScheduleHook получает каждую запланированную задержку
func withScheduleHook(fn func(time.Duration)) Option {
	return func(o *options) {
		o.onSchedule = fn
	}
}

func applyOptions(category string, opts []Option) options {
	o := defaultOptions(category)
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
