package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mystery_hunt"

// Metrics holds the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	AssetLookups   *prometheus.CounterVec
	AssetFetches   prometheus.Counter
	LiveHandles    prometheus.Gauge
	APIRequests    *prometheus.CounterVec
	APIDuration    *prometheus.HistogramVec
	StaleFallbacks prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Answer submissions by interpreted outcome",
			},
			[]string{"outcome"},
		),
		AssetLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assets",
				Name:      "lookups_total",
				Help:      "Asset cache lookups by result",
			},
			[]string{"result"}, // hit, miss, error
		),
		AssetFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "fetches_total",
			Help:      "Authenticated asset fetches issued to the backend",
		}),
		LiveHandles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "live_handles",
			Help:      "Asset handles issued and not yet released",
		}),
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Backend API requests by operation and status",
			},
			[]string{"op", "status"},
		),
		APIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Backend API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		StaleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_level_fallbacks_total",
			Help:      "Level loads served from a last-known snapshot after a fetch failure",
		}),
	}
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAssetLookup(result string) {
	if m == nil {
		return
	}
	m.AssetLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAssetFetch() {
	if m == nil {
		return
	}
	m.AssetFetches.Inc()
}

func (m *Metrics) SetLiveHandles(n int) {
	if m == nil {
		return
	}
	m.LiveHandles.Set(float64(n))
}

func (m *Metrics) ObserveStaleFallback() {
	if m == nil {
		return
	}
	m.StaleFallbacks.Inc()
}

// ObserveAPI records one backend request.
func (m *Metrics) ObserveAPI(op, status string, started time.Time) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(op, status).Inc()
	m.APIDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
