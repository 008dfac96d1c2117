package transport

import (
	"context"
	"net"
	"slices"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 256

// Hub соединяет порты в памяти как общий сегмент Ethernet: кадр, отправленный
// одним портом, получают все остальные.
type Hub struct {
	mu        sync.RWMutex
	ports     []*HubPort
	queueSize int
}

// NewHub создаёт концентратор; queueSize - глубина очереди приёма порта
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{queueSize: queueSize}
}

// Port создаёт новый порт с адресом mac
func (h *Hub) Port(mac net.HardwareAddr) *HubPort {
	p := &HubPort{
		hub:    h,
		mac:    slices.Clone(mac),
		queue:  make(chan []byte, h.queueSize),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.ports = append(h.ports, p)
	h.mu.Unlock()
	return p
}

func (h *Hub) remove(p *HubPort) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ports = slices.DeleteFunc(h.ports, func(q *HubPort) bool { return q == p })
}

func (h *Hub) broadcast(from *HubPort, pkt []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range h.ports {
		if p == from {
			continue
		}
		p.deliver(slices.Clone(pkt))
	}
}

// HubPort - порт концентратора
type HubPort struct {
	hub     *Hub
	mac     net.HardwareAddr
	queue   chan []byte
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

var _ Port = (*HubPort)(nil)

func (p *HubPort) deliver(pkt []byte) {
	select {
	case <-p.closed:
		return
	default:
	}
	select {
	case p.queue <- pkt:
	default:
		p.dropped.Add(1)
	}
}

// Send рассылает копию кадра остальным портам
func (p *HubPort) Send(pkt []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.hub.broadcast(p, pkt)
	return nil
}

// Receive возвращает следующий кадр из очереди
func (p *HubPort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case pkt := <-p.queue:
		return pkt, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HardwareAddr возвращает MAC адрес порта
func (p *HubPort) HardwareAddr() net.HardwareAddr {
	return p.mac
}

// Dropped возвращает число кадров, не поместившихся в очередь
func (p *HubPort) Dropped() uint64 {
	return p.dropped.Load()
}

// Close отключает порт от концентратора
func (p *HubPort) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.hub.remove(p)
	})
	return nil
}
