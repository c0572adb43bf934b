// Package telemetry owns the metrics sink spec §4.6/§7 call for: every
// subsystem (congestion, reliability, discovery) registers its own
// counters/gauges directly against the default Prometheus registerer,
// the way the teacher's packages register collectors at init time; this
// package supplies the one periodic thread (spec §5's telemetry/metrics
// thread) that gathers them into a Snapshot and logs a summary,
// grounded on internal/taskmanager's gocron scheduled-job idiom.
//
// The HTTP /metrics endpoint itself is an external exporter's job and
// out of scope here — this package is the in-core sink, not the
// scrape surface.
package telemetry

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// DefaultSnapshotInterval matches the cadence the teacher uses for its
// lighter-weight periodic jobs (compressionService.go, retention
// services run daily; this one is meant to be watched live, so it
// defaults much faster).
const DefaultSnapshotInterval = 10 * time.Second

// Snapshot is a point-in-time read of every counter/gauge the HDDS
// subsystems have registered, indexed by their Prometheus metric name.
// Vector metrics (e.g. hdds_congestion_actions_total, which carries an
// "action" label) are summed across their label combinations — callers
// that need per-label detail should scrape /metrics directly.
type Snapshot struct {
	Taken    time.Time
	Counters map[string]float64
	Gauges   map[string]float64
}

// Exporter periodically gathers the process's Prometheus metrics into
// a Snapshot, logs a condensed summary line, and keeps the latest
// Snapshot available for programmatic inspection (e.g. a future
// diagnostics command).
type Exporter struct {
	gatherer  prometheus.Gatherer
	scheduler gocron.Scheduler

	mu      sync.RWMutex
	latest  Snapshot
}

// NewExporter builds an Exporter reading from prometheus.DefaultGatherer,
// the registry every hdds_* counter/gauge in this module registers
// itself against via prometheus.MustRegister in their package's init().
func NewExporter() (*Exporter, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Exporter{
		gatherer:  prometheus.DefaultGatherer,
		scheduler: s,
	}, nil
}

// Start registers the snapshot job and starts the scheduler. An
// interval <= 0 falls back to DefaultSnapshotInterval.
func (e *Exporter) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	_, err := e.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(e.snapshotAndLog),
	)
	if err != nil {
		return err
	}
	e.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler.
func (e *Exporter) Shutdown() error {
	return e.scheduler.Shutdown()
}

// Latest returns the most recently gathered Snapshot. Before the first
// tick this is the zero value.
func (e *Exporter) Latest() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

func (e *Exporter) snapshotAndLog() {
	snap, err := e.gather()
	if err != nil {
		log.Warnf("telemetry: gather failed: %v", err)
		return
	}

	e.mu.Lock()
	e.latest = snap
	e.mu.Unlock()

	log.Infof("telemetry: %s", summarize(snap))
}

func (e *Exporter) gather() (Snapshot, error) {
	families, err := e.gatherer.Gather()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Taken:    time.Now(),
		Counters: make(map[string]float64),
		Gauges:   make(map[string]float64),
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "hdds_") {
			continue
		}
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			snap.Counters[mf.GetName()] = sumCounter(mf.GetMetric())
		case dto.MetricType_GAUGE:
			snap.Gauges[mf.GetName()] = sumGauge(mf.GetMetric())
		}
	}
	return snap, nil
}

func sumCounter(metrics []*dto.Metric) float64 {
	var total float64
	for _, m := range metrics {
		if c := m.GetCounter(); c != nil {
			total += c.GetValue()
		}
	}
	return total
}

func sumGauge(metrics []*dto.Metric) float64 {
	// Gauges aren't generally meaningful summed across label sets, but
	// every hdds_* gauge registered today is unlabeled (single time
	// series), so this reduces to that one value.
	var total float64
	for _, m := range metrics {
		if g := m.GetGauge(); g != nil {
			total += g.GetValue()
		}
	}
	return total
}

func summarize(snap Snapshot) string {
	names := make([]string, 0, len(snap.Counters)+len(snap.Gauges))
	values := make(map[string]float64, len(snap.Counters)+len(snap.Gauges))
	for k, v := range snap.Counters {
		names = append(names, k)
		values[k] = v
	}
	for k, v := range snap.Gauges {
		names = append(names, k)
		values[k] = v
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimPrefix(name, "hdds_"))
		b.WriteString("=")
		b.WriteString(formatValue(values[name]))
	}
	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
