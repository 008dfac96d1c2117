// Package metrics собирает счётчики GOOSE в реестр prometheus по умолчанию
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// виды отправленных кадров
const (
	KindNew        = "new"
	KindRetransmit = "retransmit"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gogoose",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "GOOSE frames sent per control block.",
		},
		[]string{"control_block", "kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gogoose",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "GOOSE frames accepted per control block.",
		},
		[]string{"control_block"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gogoose",
			Name:      "decode_errors_total",
			Help:      "Received frames that failed to decode.",
		},
		[]string{"reason"},
	)
	watchdogExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gogoose",
			Subsystem: "watchdog",
			Name:      "expirations_total",
			Help:      "Subscriptions whose publisher fell silent.",
		},
		[]string{"control_block"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesReceived, decodeErrors, watchdogExpirations)
	})
}

func RecordFrameSent(controlBlock, kind string) {
	RegisterMetrics()
	framesSent.WithLabelValues(controlBlock, kind).Inc()
}

func RecordFrameReceived(controlBlock string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(controlBlock).Inc()
}

func RecordDecodeError(reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(reason).Inc()
}

func RecordWatchdogExpired(controlBlock string) {
	RegisterMetrics()
	watchdogExpirations.WithLabelValues(controlBlock).Inc()
}
