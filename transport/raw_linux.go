//go:build linux

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/slonegd/gogoose/logger"
)

const (
	etherTypeGOOSE = 0x88B8
	etherTypeVLAN  = 0x8100

	rawBufferSize = 1522
	// pollTimeoutMs ограничивает время реакции Receive на отмену ctx
	pollTimeoutMs = 100
)

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// RawPort - сокет AF_PACKET, привязанный к одному интерфейсу. Принимает
// только кадры GOOSE (в том числе с тегом 802.1Q), свои исходящие кадры
// пропускает.
type RawPort struct {
	fd     int
	ifi    *net.Interface
	closed atomic.Bool

	rmu sync.Mutex // защищает buf
	buf []byte

	logger logger.Logger
}

var _ Port = (*RawPort)(nil)

// RawOption представляет опцию для настройки RawPort
type RawOption func(*RawPort)

// WithLogger устанавливает логгер
func WithLogger(l logger.Logger) RawOption {
	return func(p *RawPort) {
		p.logger = l
	}
}

// OpenRaw открывает интерфейс name. Нужны права CAP_NET_RAW.
func OpenRaw(name string, opts ...RawOption) (*RawPort, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", name, err)
	}

	// адреса назначения GOOSE - групповые
	mreq := &unix.PacketMreq{
		Ifindex: int32(ifi.Index),
		Type:    unix.PACKET_MR_ALLMULTI,
	}
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("allmulti %s: %w", name, err)
	}

	p := &RawPort{
		fd:     fd,
		ifi:    ifi,
		buf:    make([]byte, rawBufferSize),
		logger: logger.NewLogger("transport"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger.Info("opened %s (%s)", ifi.Name, ifi.HardwareAddr)
	return p, nil
}

// Send отправляет кадр в интерфейс как есть
func (p *RawPort) Send(pkt []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if _, err := unix.Write(p.fd, pkt); err != nil {
		return fmt.Errorf("send on %s: %w", p.ifi.Name, err)
	}
	return nil
}

// Receive ждёт следующий кадр GOOSE
func (p *RawPort) Receive(ctx context.Context) ([]byte, error) {
	p.rmu.Lock()
	defer p.rmu.Unlock()

	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.closed.Load() {
			return nil, ErrClosed
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("poll %s: %w", p.ifi.Name, err)
		}
		if n == 0 || p.closed.Load() {
			continue
		}

		n, from, err := unix.Recvfrom(p.fd, p.buf, unix.MSG_DONTWAIT)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("receive on %s: %w", p.ifi.Name, err)
		}
		if sa, ok := from.(*unix.SockaddrLinklayer); ok && sa.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		if n < 14 {
			continue
		}
		switch binary.BigEndian.Uint16(p.buf[12:]) {
		case etherTypeGOOSE, etherTypeVLAN:
			return slices.Clone(p.buf[:n]), nil
		}
	}
}

// HardwareAddr возвращает MAC адрес интерфейса
func (p *RawPort) HardwareAddr() net.HardwareAddr {
	return p.ifi.HardwareAddr
}

// Close закрывает сокет. Receive вернёт ErrClosed не позже чем через
// pollTimeoutMs.
func (p *RawPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	// ждём выхода из Receive, чтобы дескриптор не переиспользовался под ним
	p.rmu.Lock()
	defer p.rmu.Unlock()

	return unix.Close(p.fd)
}
