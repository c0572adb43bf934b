package congestion

import (
	"testing"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/stretchr/testify/require"
)

func guidWithByte(b byte) rtps.Guid {
	var g rtps.Guid
	g.Prefix[0] = b
	return g
}

func TestScorerIncreasesAfterStableWindow(t *testing.T) {
	cfg := DefaultScorerConfig()
	now := time.Unix(0, 0)
	s := NewScorer(cfg, now)

	action := s.Tick(Signals{}, now)
	require.Equal(t, ActionNone, action, "first tick within the stable window must not increase yet")

	action = s.Tick(Signals{}, now.Add(cfg.StableWindow+time.Millisecond))
	require.Equal(t, ActionIncrease, action)
	require.Equal(t, Stable, s.CurrentState())
}

func TestScorerEntersCongestedOnEagain(t *testing.T) {
	cfg := DefaultScorerConfig()
	now := time.Unix(0, 0)
	s := NewScorer(cfg, now)

	action := s.Tick(Signals{Eagain: true}, now)
	require.Equal(t, ActionDecreaseHard, action)
	require.Equal(t, Congested, s.CurrentState())
}

func TestScorerSoftDecreaseOnRttInflationWithoutEagain(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.RttImpulse = 65 // force over DecreaseThreshold in one tick for this test
	now := time.Unix(0, 0)
	s := NewScorer(cfg, now)

	action := s.Tick(Signals{RttInflated: true}, now)
	require.Equal(t, ActionDecreaseSoft, action)
}

func TestScorerReturnsToStableAfterCooldownAndScoreDecay(t *testing.T) {
	cfg := DefaultScorerConfig()
	now := time.Unix(0, 0)
	s := NewScorer(cfg, now)

	s.Tick(Signals{Eagain: true}, now) // -> Congested, score=60
	require.Equal(t, Congested, s.CurrentState())

	// Decay the score down across quiet ticks past the cooldown.
	t2 := now.Add(cfg.Cooldown + time.Millisecond)
	for i := 0; i < 30; i++ {
		s.Tick(Signals{}, t2)
		t2 = t2.Add(time.Millisecond)
	}
	require.Equal(t, Stable, s.CurrentState())
	require.LessOrEqual(t, s.Score(), cfg.IncreaseThreshold+cfg.Hysteresis)
}

func TestRateControllerAimdIncreaseDecrease(t *testing.T) {
	cfg := DefaultRateConfig(1000, 100000)
	r := NewRateController(cfg)
	require.Equal(t, 100000.0, r.Rate())

	r.Apply(ActionDecreaseSoft)
	require.InDelta(t, 85000, r.Rate(), 0.001)

	r.Apply(ActionDecreaseHard)
	require.InDelta(t, 42500, r.Rate(), 0.001)

	before := r.Rate()
	r.Apply(ActionIncrease)
	require.InDelta(t, before+cfg.AiStep, r.Rate(), 0.001)
}

func TestRateControllerClampsToMin(t *testing.T) {
	cfg := DefaultRateConfig(1000, 2000)
	r := NewRateController(cfg)
	for i := 0; i < 50; i++ {
		r.Apply(ActionDecreaseHard)
	}
	require.Equal(t, cfg.Min, r.Rate())
}

// TestBudgetAllocationSumsToRate covers spec's testable property
// "Budget sum": the sum of every writer's allocated budget across P1/P2
// must not exceed the remainder after the P0 reserve, and P0's reserve
// must be honored even with many contending writers.
func TestBudgetAllocationSumsToRate(t *testing.T) {
	cfg := DefaultBudgetConfig()
	a := NewAllocator(cfg)

	writers := []WriterWeight{
		{WriterGuid: guidWithByte(1), Priority: P0, Weight: 1},
		{WriterGuid: guidWithByte(2), Priority: P1, Weight: 1},
		{WriterGuid: guidWithByte(3), Priority: P1, Weight: 3},
		{WriterGuid: guidWithByte(4), Priority: P2, Weight: 1},
	}

	updates := a.Allocate(100000, writers)
	require.Len(t, updates, 4)

	byGuid := map[rtps.Guid]WriterBudgetUpdate{}
	for _, u := range updates {
		byGuid[u.WriterGuid] = u
	}

	p0Reserve := max(100000*cfg.P0MinShare, cfg.P0MinBps)
	require.InDelta(t, p0Reserve, byGuid[guidWithByte(1)].NewBps, 0.001)

	// P1 writers split 0.7*remainder proportionally 1:3.
	remainder := 100000 - p0Reserve
	p1Budget := remainder * cfg.P1Share
	require.InDelta(t, p1Budget*0.25, byGuid[guidWithByte(2)].NewBps, 0.001)
	require.InDelta(t, p1Budget*0.75, byGuid[guidWithByte(3)].NewBps, 0.001)

	p2Budget := remainder * cfg.P2Share
	require.InDelta(t, p2Budget, byGuid[guidWithByte(4)].NewBps, 0.001)
}

// TestBudgetAllocationClampsToMinPerWriter covers the "every writer
// gets at least min_per_writer" clamp even when a class is starved by
// a very low overall rate.
func TestBudgetAllocationClampsToMinPerWriter(t *testing.T) {
	cfg := DefaultBudgetConfig()
	a := NewAllocator(cfg)
	writers := []WriterWeight{
		{WriterGuid: guidWithByte(1), Priority: P1, Weight: 1},
		{WriterGuid: guidWithByte(2), Priority: P1, Weight: 1000},
	}
	updates := a.Allocate(500, writers)
	for _, u := range updates {
		require.GreaterOrEqual(t, u.NewBps, cfg.MinPerWriter)
	}
}

// TestP0NeverStarvedUnderMixedLoad covers spec's testable property "P0
// non-starvation": P0 always receives its reserved share regardless of
// how many P1/P2 writers are contending.
func TestP0NeverStarvedUnderMixedLoad(t *testing.T) {
	cfg := DefaultBudgetConfig()
	a := NewAllocator(cfg)

	writers := []WriterWeight{{WriterGuid: guidWithByte(0), Priority: P0, Weight: 1}}
	for i := byte(1); i <= 50; i++ {
		writers = append(writers, WriterWeight{WriterGuid: guidWithByte(i), Priority: P1, Weight: 1})
	}

	updates := a.Allocate(10000, writers)
	var p0Update WriterBudgetUpdate
	for _, u := range updates {
		if u.WriterGuid == guidWithByte(0) {
			p0Update = u
		}
	}
	require.InDelta(t, max(10000*cfg.P0MinShare, cfg.P0MinBps), p0Update.NewBps, 0.001)
}

func TestWriterPacerP0QueueBounded(t *testing.T) {
	p := NewWriterPacer(P0, 1_000_000, PacerConfig{MaxQueueP0: 2, MaxQueueP1: 2, MinBurstMtu: 1472})
	p.Enqueue([]byte("a"), 0)
	p.Enqueue([]byte("b"), 0)
	p.Enqueue([]byte("c"), 0) // dropped: queue full

	p0, _, _ := p.QueueLengths()
	require.Equal(t, 2, p0)
}

func TestWriterPacerP1DropsOldestOnOverflow(t *testing.T) {
	p := NewWriterPacer(P1, 1_000_000, PacerConfig{MaxQueueP0: 2, MaxQueueP1: 2, MinBurstMtu: 1472})
	p.Enqueue([]byte("first"), 0)
	p.Enqueue([]byte("second"), 0)
	p.Enqueue([]byte("third"), 0) // should evict "first"

	now := time.Now()
	payload, _, _, ok := p.TrySend(now)
	require.True(t, ok)
	require.Equal(t, "second", string(payload))
}

// TestWriterPacerP2CoalescesByInstance covers spec's testable property
// "Coalescing idempotence": repeated updates to the same instance
// before it is ever sent collapse into a single queued entry carrying
// only the latest value.
func TestWriterPacerP2CoalescesByInstance(t *testing.T) {
	p := NewWriterPacer(P2, 1_000_000, DefaultPacerConfig())
	p.Enqueue([]byte("v1"), 42)
	p.Enqueue([]byte("v2"), 42)
	p.Enqueue([]byte("v3"), 42)

	_, _, p2 := p.QueueLengths()
	require.Equal(t, 1, p2)

	now := time.Now()
	payload, prio, _, ok := p.TrySend(now)
	require.True(t, ok)
	require.Equal(t, P2, prio)
	require.Equal(t, "v3", string(payload))
}

func TestWriterPacerP0ForcesPastTokenDeficit(t *testing.T) {
	p := NewWriterPacer(P0, 1, PacerConfig{MaxQueueP0: 4, MinBurstMtu: 1}) // nearly starved rate
	p.Enqueue(make([]byte, 10_000), 0)

	now := time.Now()
	_, prio, forced, ok := p.TrySend(now)
	require.True(t, ok)
	require.Equal(t, P0, prio)
	require.True(t, forced, "P0 must force-send into a token deficit rather than stall")
}

func TestRttTrackerFlagsInflationAfterConsecutiveSamples(t *testing.T) {
	cfg := DefaultRttConfig()
	r := NewRttTracker(cfg)
	now := time.Unix(0, 0)

	// establish a low base RTT
	for i := 0; i < 5; i++ {
		r.Observe(10*time.Millisecond, now)
		now = now.Add(time.Second)
	}

	var inflated bool
	for i := 0; i < cfg.ConsecutiveToInflate; i++ {
		inflated = r.Observe(100*time.Millisecond, now)
		now = now.Add(time.Second)
	}
	require.True(t, inflated)
}

func TestEcnDetectorTracksCeRatio(t *testing.T) {
	cfg := DefaultEcnConfig()
	d := NewEcnDetector(cfg)
	now := time.Unix(0, 0)

	for i := 0; i < 10; i++ {
		d.Observe(TosByte(0x00), now)
	}
	require.False(t, d.Inflated())

	for i := 0; i < 5; i++ {
		d.Observe(TosByte(0x03), now)
	}
	require.True(t, d.Inflated())
}

func TestWeightedFairQueueFavorsHigherWeight(t *testing.T) {
	q := NewWeightedFairQueue()
	heavy := guidWithByte(1)
	light := guidWithByte(2)
	q.AddWriter(heavy, 3)
	q.AddWriter(light, 1)

	for i := 0; i < 3; i++ {
		q.Enqueue(heavy, []byte("h"))
	}
	q.Enqueue(light, []byte("l"))

	var order []rtps.Guid
	for i := 0; i < 4; i++ {
		guid, _, ok := q.Dequeue()
		require.True(t, ok)
		order = append(order, guid)
	}
	// With unit-size items, heavy's finish times are 1/3, 2/3, 1 and
	// light's is 1, so heavy takes the first two slots and light is
	// served by the fourth dequeue at the latest, not starved.
	require.Equal(t, []rtps.Guid{heavy, heavy}, order[:2])
	require.Contains(t, order[2:], light)
}
