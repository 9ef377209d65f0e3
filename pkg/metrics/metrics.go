// Package metrics exposes Prometheus instrumentation for the sync engine.
//
// Metrics are opt-in: when disabled every recorder is a nil-safe no-op so
// call sites never need to branch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics instruments the session protocol engine and broadcast hub.
type SyncMetrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	pushesTotal     prometheus.Counter
	pullsTotal      prometheus.Counter
	broadcastsTotal prometheus.Counter
	bytesReceived   prometheus.Counter
	bytesServed     prometheus.Counter
}

// NewSyncMetrics creates the sync metric set on a fresh registry.
// Returns nil when enabled is false; all methods tolerate a nil receiver.
func NewSyncMetrics(enabled bool) *SyncMetrics {
	if !enabled {
		return nil
	}

	reg := prometheus.NewRegistry()

	return &SyncMetrics{
		registry: reg,
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "obsync_sessions_active",
			Help: "Number of currently connected sync sessions",
		}),
		sessionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_sessions_total",
			Help: "Total number of sync sessions accepted",
		}),
		pushesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_pushes_total",
			Help: "Total number of push operations handled",
		}),
		pullsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_pulls_total",
			Help: "Total number of pull operations served",
		}),
		broadcastsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_broadcasts_total",
			Help: "Total number of frames fanned out to vault peers",
		}),
		bytesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_upload_bytes_total",
			Help: "Total binary payload bytes received from clients",
		}),
		bytesServed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "obsync_download_bytes_total",
			Help: "Total binary payload bytes served to clients",
		}),
	}
}

// Handler returns the /metrics HTTP handler, or nil when metrics are disabled.
func (m *SyncMetrics) Handler() http.Handler {
	if m == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a new session.
func (m *SyncMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionEnded records a session teardown.
func (m *SyncMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// PushHandled records a completed push with its payload size.
func (m *SyncMetrics) PushHandled(bytes int64) {
	if m == nil {
		return
	}
	m.pushesTotal.Inc()
	if bytes > 0 {
		m.bytesReceived.Add(float64(bytes))
	}
}

// PullServed records a served pull with its payload size.
func (m *SyncMetrics) PullServed(bytes int64) {
	if m == nil {
		return
	}
	m.pullsTotal.Inc()
	if bytes > 0 {
		m.bytesServed.Add(float64(bytes))
	}
}

// BroadcastFanout records n frames delivered to peers.
func (m *SyncMetrics) BroadcastFanout(n int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.Add(float64(n))
}
