//go:build !js

package socket

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connects       *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	events         *prometheus.CounterVec
}

var activeMetrics atomic.Pointer[metrics]

func EnableMetrics(registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	activeMetrics.Store(&metrics{
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websock",
			Name:      "connects_total",
			Help:      "Opening handshakes attempted, by result",
		}, []string{"result"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websock",
			Name:      "frames_sent_total",
			Help:      "Outgoing messages written, by kind",
		}, []string{"kind"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websock",
			Name:      "frames_received_total",
			Help:      "Incoming messages decoded, by kind",
		}, []string{"kind"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websock",
			Name:      "events_total",
			Help:      "Events delivered to handlers, by type",
		}, []string{"type"}),
	})
}

func observeConnect(ok bool) {
	m := activeMetrics.Load()
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.connects.WithLabelValues(result).Inc()
}

func observeSent(kind MessageKind) {
	if m := activeMetrics.Load(); m != nil {
		m.framesSent.WithLabelValues(kind.String()).Inc()
	}
}

func observeReceived(kind MessageKind) {
	if m := activeMetrics.Load(); m != nil {
		m.framesReceived.WithLabelValues(kind.String()).Inc()
	}
}

func observeEvent(t EventType) {
	if m := activeMetrics.Load(); m != nil {
		m.events.WithLabelValues(string(t)).Inc()
	}
}
