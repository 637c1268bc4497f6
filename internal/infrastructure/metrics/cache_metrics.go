package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics implements ports.CacheMetrics with Prometheus collectors.
type CacheMetrics struct {
	lookups   *prometheus.CounterVec
	writes    *prometheus.CounterVec
	responses *prometheus.CounterVec
	deleted   prometheus.Counter
}

// NewCacheMetrics creates the collectors and registers them with reg.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_cache_lookups_total",
				Help: "Cache lookups by namespace and result (hit, miss, error)",
			},
			[]string{"namespace", "result"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_cache_writes_total",
				Help: "Cache writes by namespace and result (ok, error)",
			},
			[]string{"namespace", "result"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_cache_responses_total",
				Help: "Responses produced by the cache controller by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "offline_cache_namespaces_deleted_total",
			Help: "Stale cache namespaces deleted on activation",
		}),
	}
	reg.MustRegister(m.lookups, m.writes, m.responses, m.deleted)
	return m
}

func (m *CacheMetrics) ObserveLookup(namespace, result string) {
	m.lookups.WithLabelValues(namespace, result).Inc()
}

func (m *CacheMetrics) ObserveWrite(namespace, result string) {
	m.writes.WithLabelValues(namespace, result).Inc()
}

func (m *CacheMetrics) ObserveResponse(strategy, outcome string) {
	m.responses.WithLabelValues(strategy, outcome).Inc()
}

func (m *CacheMetrics) ObserveNamespacesDeleted(n int) {
	m.deleted.Add(float64(n))
}
