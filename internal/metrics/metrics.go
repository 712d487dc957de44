// Package metrics exposes Prometheus collectors for the realtime client and a
// small diagnostics HTTP server. All recording methods are safe on a nil
// *Metrics so components can run uninstrumented.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "goblin"

type Metrics struct {
	Registry *prometheus.Registry

	connectionState   prometheus.Gauge
	transitions       *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	framesReceived    *prometheus.CounterVec
	protocolErrors    prometheus.Counter
	sends             *prometheus.CounterVec
	captures          *prometheus.CounterVec
	captureBytes      prometheus.Histogram
	messagesCompleted *prometheus.CounterVec
}

// New creates collectors registered on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=exhausted)",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Connection state transitions by target state",
		}, []string{"state"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after a failure",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_received_total",
			Help:      "Inbound frames by type",
		}, []string{"type"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "protocol_errors_total",
			Help:      "Inbound frames rejected as malformed or unexpected",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "sends_total",
			Help:      "Outbound send attempts by result (sent, dropped, failed)",
		}, []string{"result"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "ticks_total",
			Help:      "Capture ticks by outcome (sent, skipped, failed, busy)",
		}, []string{"outcome"}),
		captureBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "payload_bytes",
			Help:      "Size of transmitted capture payloads",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 8),
		}),
		messagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_completed_total",
			Help:      "Assembled messages completed by source",
		}, []string{"source", "implicit"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionState,
		m.transitions,
		m.reconnectAttempts,
		m.framesReceived,
		m.protocolErrors,
		m.sends,
		m.captures,
		m.captureBytes,
		m.messagesCompleted,
	)
	return m
}

// StateChanged records a transition to the state with ordinal value and name.
func (m *Metrics) StateChanged(value int, name string) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(value))
	m.transitions.WithLabelValues(name).Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) Send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) CaptureTick(outcome string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CaptureSent(bytes int) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues("sent").Inc()
	m.captureBytes.Observe(float64(bytes))
}

func (m *Metrics) MessageCompleted(source string, implicit bool) {
	if m == nil {
		return
	}
	label := "false"
	if implicit {
		label = "true"
	}
	m.messagesCompleted.WithLabelValues(source, label).Inc()
}
