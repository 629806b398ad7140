package ws_interface

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

const metricsNamespace = "multisig"

type metrics struct {
	registry *prometheus.Registry

	messages    *prometheus.CounterVec
	signatures  prometheus.Histogram
	broadcasts  *prometheus.CounterVec
	connections prometheus.Gauge
	tabs        prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Number of handled messages by type and outcome.",
		}, []string{"type", "success"}),
		signatures: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "signatures_collected",
			Help:      "Signatures collected by a pending transaction after a sign or import.",
			Buckets:   prometheus.LinearBuckets(1, 1, 15),
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Number of broadcast attempts by result.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ws_connections",
			Help:      "Number of open websocket connections.",
		}),
		tabs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_tabs",
			Help:      "Number of distinct tabs alive.",
		}),
	}
	m.registry.MustRegister(
		m.messages, m.signatures, m.broadcasts, m.connections, m.tabs,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observe(msgType string, payload interface{}, err error) {
	m.messages.WithLabelValues(msgType, strconv.FormatBool(err == nil)).Inc()

	switch msgType {
	case message.BroadcastMultisigTransaction:
		result := "success"
		if err != nil {
			result = "rejected"
			if errors.Is(err, application.ErrBroadcastFailed) {
				result = "failed"
			}
		}
		m.broadcasts.WithLabelValues(result).Inc()
	case message.SignMultisigTransaction, message.ImportPsbt:
		if err != nil {
			return
		}
		switch p := payload.(type) {
		case message.SignResponse:
			m.signatures.Observe(float64(p.SignaturesCollected))
		case message.ImportPsbtResponse:
			m.signatures.Observe(float64(p.SignaturesCollected))
		}
	}
}
