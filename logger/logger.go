package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging facade used by the codec, the tasks and the engine.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

var (
	mu   sync.RWMutex
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Init configures the process-wide base logger. w defaults to stderr; level is
// a zerolog level name ("debug", "info", ...).
func Init(app, level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if w == nil {
		w = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	l := zerolog.New(output).With().Timestamp().Str("app", app).Logger().Level(lvl)

	mu.Lock()
	root = l
	mu.Unlock()
	return l, nil
}

// zeroLogger implements Logger over zerolog
type zeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a logger tagged with the given category
func NewLogger(category string) Logger {
	mu.RLock()
	base := root
	mu.RUnlock()
	if category == "" {
		return &zeroLogger{zl: base}
	}
	return &zeroLogger{zl: base.With().Str("category", category).Logger()}
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Debug(format string, v ...any) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *zeroLogger) Info(format string, v ...any) {
	l.zl.Info().Msgf(format, v...)
}

func (l *zeroLogger) Warn(format string, v ...any) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *zeroLogger) Error(format string, v ...any) {
	l.zl.Error().Msgf(format, v...)
}
