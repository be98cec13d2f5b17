package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricSources are read on every scrape.
type MetricSources struct {
	ActiveClients      func() int
	StreamingSessions  func() int
	UpstreamState      func() LinkState
	TranscriptFailures func() int64
	TranscriptDropped  func() int64
}

// Metrics are the relay's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	upstreamEvents *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	turns          *prometheus.CounterVec
	fragments      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, src MetricSources) *Metrics {
	m := &Metrics{
		upstreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdoc",
			Subsystem: "relay",
			Name:      "upstream_events_total",
			Help:      "Messages received from the inference server, by kind.",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdoc",
			Subsystem: "relay",
			Name:      "dropped_events_total",
			Help:      "Upstream messages that matched no live turn, by reason.",
		}, []string{"reason"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdoc",
			Subsystem: "relay",
			Name:      "turns_total",
			Help:      "Finished chat turns, by outcome.",
		}, []string{"outcome"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docdoc",
			Subsystem: "relay",
			Name:      "fragments_relayed_total",
			Help:      "Streamed fragments forwarded to browsers.",
		}),
	}

	collectors := []prometheus.Collector{m.upstreamEvents, m.droppedEvents, m.turns, m.fragments}

	if src.ActiveClients != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docdoc", Subsystem: "relay", Name: "active_clients",
			Help: "Registered browser connections.",
		}, func() float64 { return float64(src.ActiveClients()) }))
	}
	if src.StreamingSessions != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docdoc", Subsystem: "relay", Name: "streaming_sessions",
			Help: "Replies currently being assembled from fragments.",
		}, func() float64 { return float64(src.StreamingSessions()) }))
	}
	if src.UpstreamState != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docdoc", Subsystem: "relay", Name: "upstream_state",
			Help: "Upstream link state: 0 disconnected, 1 connecting, 2 connected.",
		}, func() float64 { return float64(src.UpstreamState()) }))
	}
	if src.TranscriptFailures != nil {
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docdoc", Subsystem: "chatlog", Name: "persistence_failures_total",
			Help: "Transcript writes rejected by the database.",
		}, func() float64 { return float64(src.TranscriptFailures()) }))
	}
	if src.TranscriptDropped != nil {
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docdoc", Subsystem: "chatlog", Name: "dropped_messages_total",
			Help: "Transcript messages never handed to the database.",
		}, func() float64 { return float64(src.TranscriptDropped()) }))
	}

	reg.MustRegister(collectors...)
	return m
}

func (m *Metrics) upstreamEvent(kind EventKind) {
	if m != nil {
		m.upstreamEvents.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.droppedEvents.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) turn(outcome string) {
	if m != nil {
		m.turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) fragment() {
	if m != nil {
		m.fragments.Inc()
	}
}
