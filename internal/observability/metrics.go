package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the ingestion,
// dispatch, and live-connection paths.
type Metrics struct {
	AlertsIngested *prometheus.CounterVec // labels: source, outcome={created,updated}
	SyncErrors     *prometheus.CounterVec // labels: source
	SyncCycles     prometheus.Counter
	SyncDuration   prometheus.Histogram
	AlertsExpired  prometheus.Counter

	NotificationsSent *prometheus.CounterVec // labels: channel, outcome={sent,failed}

	ActiveConnections prometheus.Gauge
	BroadcastsSent    prometheus.Counter
}

// NewMetrics creates and registers all metrics. Pass nil to register with the
// default Prometheus registry; tests pass their own to avoid collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		AlertsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "alerts_ingested_total",
			Help:      "Canonical alerts written per source and upsert outcome.",
		}, []string{"source", "outcome"}),
		SyncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "sync_errors_total",
			Help:      "Source sync failures, including timeouts.",
		}, []string{"source"}),
		SyncCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "sync_cycles_total",
			Help:      "Completed ingestion cycles.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_hub",
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of a full multi-source sync cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		AlertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "alerts_expired_total",
			Help:      "Alerts flipped inactive by the expiry sweep.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "notifications_total",
			Help:      "Channel sends per channel type and outcome.",
		}, []string{"channel", "outcome"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_hub",
			Name:      "active_connections",
			Help:      "Live client sessions.",
		}),
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_hub",
			Name:      "broadcasts_total",
			Help:      "Broadcast events delivered to live sessions.",
		}),
	}

	reg.MustRegister(
		m.AlertsIngested, m.SyncErrors, m.SyncCycles, m.SyncDuration,
		m.AlertsExpired, m.NotificationsSent, m.ActiveConnections,
		m.BroadcastsSent,
	)

	return m
}
