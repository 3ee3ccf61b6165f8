package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime metrics for the sync client.
//
// The metrics system is built on Prometheus and tracks:
//   - Frames received per type and connection state transitions
//   - Domain events applied vs. dropped, and stale cache writes
//   - Reconnect attempts and token refreshes
//   - Presence joins/leaves per topic lifecycle
//
// All recording methods are nil-safe so call sites never need to guard;
// a nil *Metrics records nothing.
type Metrics struct {
	// FrameCounter tracks inbound frames by type.
	// Labels: type (abort|start|result|error|presence_diff)
	FrameCounter *prometheus.CounterVec

	// EventCounter counts domain events by type and outcome.
	// Labels: type, outcome (applied|dropped)
	EventCounter *prometheus.CounterVec

	// CacheWrites counts snapshot merges by outcome.
	// Labels: outcome (applied|stale)
	CacheWrites *prometheus.CounterVec

	// CacheEntities reports the number of entities currently cached.
	CacheEntities prometheus.Gauge

	// ConnectionState reports the transport FSM state as a gauge
	// (one series per state, 0 or 1). Labels: state
	ConnectionState *prometheus.GaugeVec

	// ReconnectCounter counts reconnect attempts.
	ReconnectCounter prometheus.Counter

	// TokenRefreshCounter counts token refresh outcomes.
	// Labels: outcome (ok|expired|error)
	TokenRefreshCounter *prometheus.CounterVec

	// PresenceActors reports currently present actors per topic.
	// Labels: topic
	PresenceActors *prometheus.GaugeVec

	// QueryDuration measures server query latency in seconds.
	// Labels: operation, status (ok|error)
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry creates metrics registered with the given
// registry, or the default registry when nil. Tests pass a private
// registry to avoid duplicate-registration panics.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		FrameCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perchsync_frames_total",
			Help: "Inbound transport frames by type.",
		}, []string{"type"}),

		EventCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perchsync_events_total",
			Help: "Domain events by type and outcome.",
		}, []string{"type", "outcome"}),

		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perchsync_cache_writes_total",
			Help: "Entity cache merges by outcome.",
		}, []string{"outcome"}),

		CacheEntities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "perchsync_cache_entities",
			Help: "Entities currently held in the cache.",
		}),

		ConnectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perchsync_connection_state",
			Help: "Transport connection state (1 for the active state).",
		}, []string{"state"}),

		ReconnectCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "perchsync_reconnects_total",
			Help: "Reconnect attempts.",
		}),

		TokenRefreshCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perchsync_token_refreshes_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),

		PresenceActors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perchsync_presence_actors",
			Help: "Actors currently present per topic.",
		}, []string{"topic"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perchsync_query_duration_seconds",
			Help:    "Server query latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),
	}
}

// FrameReceived records one inbound frame of the given type.
func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.FrameCounter.WithLabelValues(frameType).Inc()
}

// EventApplied records a dispatched event with its cache-merge outcome.
func (m *Metrics) EventApplied(eventType string, applied, stale int) {
	if m == nil {
		return
	}
	m.EventCounter.WithLabelValues(eventType, "applied").Inc()
	m.CacheWrites.WithLabelValues("applied").Add(float64(applied))
	m.CacheWrites.WithLabelValues("stale").Add(float64(stale))
}

// CacheSize sets the cached-entity gauge.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheEntities.Set(float64(n))
}

// EventDropped records an event that decoded to Unknown.
func (m *Metrics) EventDropped(rawType string) {
	if m == nil {
		return
	}
	if rawType == "" {
		rawType = "malformed"
	}
	m.EventCounter.WithLabelValues(rawType, "dropped").Inc()
}

// StateChanged flips the connection-state gauge to the given state.
func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"disconnected", "connecting", "connected", "errored"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// ReconnectAttempt records one reconnect attempt.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectCounter.Inc()
}

// TokenRefresh records a refresh outcome: "ok", "expired", or "error".
func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshCounter.WithLabelValues(outcome).Inc()
}

// PresenceCount sets the present-actor gauge for a topic.
func (m *Metrics) PresenceCount(topic string, count int) {
	if m == nil {
		return
	}
	m.PresenceActors.WithLabelValues(topic).Set(float64(count))
}

// PresenceForgotten drops the gauge series for an unsubscribed topic.
func (m *Metrics) PresenceForgotten(topic string) {
	if m == nil {
		return
	}
	m.PresenceActors.DeleteLabelValues(topic)
}

// ObserveQuery records a server query duration.
func (m *Metrics) ObserveQuery(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation, status).Observe(seconds)
}
