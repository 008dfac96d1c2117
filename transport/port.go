// Package transport доставляет готовые Ethernet кадры GOOSE. Ядро движка не
// знает, откуда берутся пакеты: сетевой интерфейс, тестовый концентратор или
// что-то ещё.
package transport

import (
	"context"
	"errors"
	"net"
)

// Ошибки
var (
	ErrClosed      = errors.New("transport: port closed")
	ErrUnsupported = errors.New("transport: raw sockets are not supported on this platform")
)

// Port отправляет и принимает целые Ethernet кадры
type Port interface {
	// Send отправляет кадр; может ставить его в очередь
	Send(pkt []byte) error
	// Receive блокируется до прихода кадра, отмены ctx или закрытия порта
	Receive(ctx context.Context) ([]byte, error)
	// HardwareAddr возвращает MAC адрес порта
	HardwareAddr() net.HardwareAddr
	Close() error
}
