package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestGatherFiltersToHddsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "hdds_test_hits_total"})
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total"})
	reg.MustRegister(hits, other)
	hits.Add(3)
	other.Add(99)

	e := &Exporter{gatherer: reg}
	snap, err := e.gather()
	require.NoError(t, err)
	require.Equal(t, float64(3), snap.Counters["hdds_test_hits_total"])
	require.NotContains(t, snap.Counters, "unrelated_total")
}

func TestGatherSumsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "hdds_test_level"})
	reg.MustRegister(g)
	g.Set(42)

	e := &Exporter{gatherer: reg}
	snap, err := e.gather()
	require.NoError(t, err)
	require.Equal(t, float64(42), snap.Gauges["hdds_test_level"])
}

func TestSnapshotAndLogUpdatesLatest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hdds_test_events_total"})
	reg.MustRegister(c)
	c.Inc()

	e := &Exporter{gatherer: reg}
	require.True(t, e.Latest().Taken.IsZero())
	e.snapshotAndLog()
	require.False(t, e.Latest().Taken.IsZero())
	require.Equal(t, float64(1), e.Latest().Counters["hdds_test_events_total"])
}

func TestStartFallsBackToDefaultInterval(t *testing.T) {
	e, err := NewExporter()
	require.NoError(t, err)
	require.NoError(t, e.Start(0))
	defer e.Shutdown()
	time.Sleep(10 * time.Millisecond)
}

func TestSummarizeIsDeterministicallyOrdered(t *testing.T) {
	snap := Snapshot{
		Counters: map[string]float64{"hdds_b_total": 2, "hdds_a_total": 1},
		Gauges:   map[string]float64{"hdds_c": 3.5},
	}
	require.Equal(t, "a_total=1 b_total=2 c=3.50", summarize(snap))
}
