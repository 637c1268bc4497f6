package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/offline-cache/internal/infrastructure/metrics"
)

func TestCacheMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCacheMetrics(reg)

	m.ObserveLookup("all", "hit")
	m.ObserveLookup("all", "hit")
	m.ObserveWrite("energy-monitor-images-v1", "ok")
	m.ObserveResponse("cache_first", "hit")
	m.ObserveNamespacesDeleted(3)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "offline_cache_namespaces_deleted_total" {
			require.Equal(t, 3.0, f.GetMetric()[0].GetCounter().GetValue())
		}
		if f.GetName() == "offline_cache_lookups_total" {
			require.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
