package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Metrics holds the daemon's Prometheus metrics on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Tracking
	AccruedSeconds prometheus.Counter
	Redirects      prometheus.Counter

	// Effectors
	EffectorFailures *prometheus.CounterVec

	// Storage
	StorageWrites   prometheus.Counter
	StorageFailures prometheus.Counter

	// Sync channel
	SyncState        prometheus.Gauge
	SyncReconnects   prometheus.Counter
	TelemetrySent    prometheus.Counter
	TelemetryDropped prometheus.Counter
	PolicyUpdates    *prometheus.CounterVec

	// Bridge
	ExtensionConnected prometheus.Gauge
	FeedObservers      prometheus.Gauge
}

// NewMetrics creates the metrics collector with Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AccruedSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_accrued_seconds_total",
			Help: "Focused seconds added to the usage ledger",
		}),
		Redirects: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_redirects_total",
			Help: "Navigations redirected away from blocked domains",
		}),
		EffectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webmon_effector_failures_total",
			Help: "Browser effector calls that failed",
		}, []string{"effector"}),
		StorageWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_storage_writes_total",
			Help: "Key writes committed to the durable store",
		}),
		StorageFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_storage_failures_total",
			Help: "Key writes the durable store rejected",
		}),
		SyncState: f.NewGauge(prometheus.GaugeOpts{
			Name: "webmon_sync_state",
			Help: "Sync channel state (0 disconnected, 1 connecting, 2 connected)",
		}),
		SyncReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_sync_reconnects_total",
			Help: "Transitions of the sync channel into disconnected",
		}),
		TelemetrySent: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_telemetry_sent_total",
			Help: "Usage snapshots handed to the sync channel",
		}),
		TelemetryDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "webmon_telemetry_dropped_total",
			Help: "Usage snapshots dropped while disconnected",
		}),
		PolicyUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webmon_policy_updates_total",
			Help: "Policy updates applied, by kind",
		}, []string{"kind"}),
		ExtensionConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "webmon_extension_connected",
			Help: "1 while the browser extension link is attached",
		}),
		FeedObservers: f.NewGauge(prometheus.GaugeOpts{
			Name: "webmon_feed_observers",
			Help: "Live feed observers attached",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Accrued records seconds added to the ledger.
func (m *Metrics) Accrued(seconds float64) {
	if m == nil {
		return
	}
	m.AccruedSeconds.Add(seconds)
}

// Redirected records a redirect.
func (m *Metrics) Redirected() {
	if m == nil {
		return
	}
	m.Redirects.Inc()
}

// EffectorFailed records a failed effector call.
func (m *Metrics) EffectorFailed(effector string) {
	if m == nil {
		return
	}
	m.EffectorFailures.WithLabelValues(effector).Inc()
}

// StorageWritten records a committed write.
func (m *Metrics) StorageWritten() {
	if m == nil {
		return
	}
	m.StorageWrites.Inc()
}

// StorageFailed records a rejected write.
func (m *Metrics) StorageFailed() {
	if m == nil {
		return
	}
	m.StorageFailures.Inc()
}

// SyncStateChanged tracks sync channel transitions.
func (m *Metrics) SyncStateChanged(from, to domain.ConnState) {
	if m == nil {
		return
	}
	m.SyncState.Set(float64(to))
	if to == domain.Disconnected && from != domain.Disconnected {
		m.SyncReconnects.Inc()
	}
}

// Telemetry records a usage snapshot send attempt.
func (m *Metrics) Telemetry(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.TelemetrySent.Inc()
	} else {
		m.TelemetryDropped.Inc()
	}
}

// PolicyUpdated records an applied policy update.
func (m *Metrics) PolicyUpdated(kind domain.UpdateKind) {
	if m == nil {
		return
	}
	m.PolicyUpdates.WithLabelValues(string(kind)).Inc()
}

// ExtensionAttached sets the extension link gauge.
func (m *Metrics) ExtensionAttached(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.ExtensionConnected.Set(1)
	} else {
		m.ExtensionConnected.Set(0)
	}
}

// Observers sets the live feed observer gauge.
func (m *Metrics) Observers(n int) {
	if m == nil {
		return
	}
	m.FeedObservers.Set(float64(n))
}
