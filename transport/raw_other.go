//go:build !linux

package transport

import (
	"context"
	"net"

	"github.com/slonegd/gogoose/logger"
)

// RawPort на этой платформе не реализован
type RawPort struct{}

var _ Port = (*RawPort)(nil)

// RawOption представляет опцию для настройки RawPort
type RawOption func(*RawPort)

// WithLogger устанавливает логгер
func WithLogger(logger.Logger) RawOption {
	return func(*RawPort) {}
}

// OpenRaw всегда возвращает ErrUnsupported
func OpenRaw(name string, opts ...RawOption) (*RawPort, error) {
	return nil, ErrUnsupported
}

func (p *RawPort) Send([]byte) error {
	return ErrUnsupported
}

func (p *RawPort) Receive(context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}

func (p *RawPort) HardwareAddr() net.HardwareAddr {
	return nil
}

func (p *RawPort) Close() error {
	return nil
}
