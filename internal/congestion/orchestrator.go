package congestion

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultTickInterval is the orchestrator's fixed control loop period
// (spec §4.6 "tick_interval, default 100 ms").
const DefaultTickInterval = 100 * time.Millisecond

var (
	congestionScoreGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hdds_congestion_score",
		Help: "Current EWMA congestion score (0-100).",
	})
	congestionStateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hdds_congestion_state",
		Help: "Current congestion state (0=Stable, 1=Congested).",
	})
	congestionRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hdds_congestion_rate_bps",
		Help: "Current AIMD-controlled send rate in bytes/sec.",
	})
	congestionActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hdds_congestion_actions_total",
		Help: "Actions applied by the rate controller, by kind.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(congestionScoreGauge, congestionStateGauge, congestionRateGauge, congestionActionsTotal)
}

// SignalSource is polled once per tick to gather the aggregated
// Signals the scorer needs (spec §4.6: the orchestrator collects
// EAGAIN/RTT/NACK/loss observations from the transport and reliability
// engine between ticks).
type SignalSource func() Signals

// WriterRoster is polled once per tick for the current set of writers
// to (re)allocate budget across.
type WriterRoster func() []WriterWeight

// Orchestrator ties the scorer, rate controller, and budget allocator
// together on a fixed tick, and fans the resulting per-writer budgets
// out to their pacers (spec §4.6: "One orchestrator ticking at a fixed
// interval coordinates the five subsystems.").
type Orchestrator struct {
	scheduler gocron.Scheduler

	scorer    *Scorer
	rate      *RateController
	allocator *Allocator

	signals SignalSource
	roster  WriterRoster

	mu      sync.Mutex
	pacers  map[rtps.Guid]*WriterPacer
	pacerCfg PacerConfig

	OnBudgetUpdate func(WriterBudgetUpdate)
}

// NewOrchestrator wires a scorer/rate controller/allocator triple into
// a ticking orchestrator. signals and roster are polled fresh on every
// tick.
func NewOrchestrator(scorerCfg ScorerConfig, rateCfg RateConfig, budgetCfg BudgetConfig, pacerCfg PacerConfig, signals SignalSource, roster WriterRoster, now time.Time) (*Orchestrator, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		scheduler: s,
		scorer:    NewScorer(scorerCfg, now),
		rate:      NewRateController(rateCfg),
		allocator: NewAllocator(budgetCfg),
		signals:   signals,
		roster:    roster,
		pacers:    make(map[rtps.Guid]*WriterPacer),
		pacerCfg:  pacerCfg,
	}, nil
}

// Start registers the tick job and starts the scheduler.
func (o *Orchestrator) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	_, err := o.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(o.tick),
	)
	if err != nil {
		return err
	}
	o.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler.
func (o *Orchestrator) Shutdown() error {
	return o.scheduler.Shutdown()
}

func (o *Orchestrator) tick() {
	now := time.Now()

	sig := Signals{}
	if o.signals != nil {
		sig = o.signals()
	}
	action := o.scorer.Tick(sig, now)
	newRate := o.rate.Apply(action)

	congestionScoreGauge.Set(o.scorer.Score())
	congestionStateGauge.Set(float64(o.scorer.CurrentState()))
	congestionRateGauge.Set(newRate)
	congestionActionsTotal.WithLabelValues(actionLabel(action)).Inc()

	var writers []WriterWeight
	if o.roster != nil {
		writers = o.roster()
	}
	updates := o.allocator.Allocate(newRate, writers)

	o.mu.Lock()
	for _, u := range updates {
		pacer, ok := o.pacers[u.WriterGuid]
		if !ok {
			continue
		}
		pacer.SetRate(u.NewBps)
	}
	o.mu.Unlock()

	if o.OnBudgetUpdate != nil {
		for _, u := range updates {
			o.OnBudgetUpdate(u)
		}
	}
}

// RegisterWriter attaches a new writer's pacer so future budget
// reallocations reach it.
func (o *Orchestrator) RegisterWriter(guid rtps.Guid, priority Priority, initialBps float64) *WriterPacer {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := NewWriterPacer(priority, initialBps, o.pacerCfg)
	o.pacers[guid] = p
	return p
}

// UnregisterWriter removes a writer's pacer (e.g. on endpoint
// deletion).
func (o *Orchestrator) UnregisterWriter(guid rtps.Guid) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pacers, guid)
}

// Pacer returns the writer's pacer, if registered.
func (o *Orchestrator) Pacer(guid rtps.Guid) (*WriterPacer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pacers[guid]
	return p, ok
}

func actionLabel(a Action) string {
	switch a {
	case ActionIncrease:
		return "increase"
	case ActionDecreaseSoft:
		return "decrease_soft"
	case ActionDecreaseHard:
		return "decrease_hard"
	default:
		return "none"
	}
}
