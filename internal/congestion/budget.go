package congestion

import "github.com/hdds-team/hdds-sub002/internal/rtps"

// Priority is the three-level writer priority class (spec §3
// "Priority").
type Priority int

const (
	P0 Priority = iota // critical, protected
	P1                 // normal
	P2                 // background, coalescible
)

// BudgetConfig configures the allocator (spec §4.6 "Budget allocator").
type BudgetConfig struct {
	P0MinShare   float64
	P0MinBps     float64
	P1Share      float64
	P2Share      float64
	MinPerWriter float64
}

// DefaultBudgetConfig matches spec §4.6's stated defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		P0MinShare:   0.1,
		P0MinBps:     1000,
		P1Share:      0.7,
		P2Share:      0.3,
		MinPerWriter: 100,
	}
}

// WriterWeight is one writer's priority class and proportional weight
// within it.
type WriterWeight struct {
	WriterGuid rtps.Guid
	Priority   Priority
	Weight     float64
}

// WriterBudgetUpdate is emitted per writer whenever the allocator
// recomputes shares from a new rate (spec §4.6 "Emits
// WriterBudgetUpdate{...}").
type WriterBudgetUpdate struct {
	WriterGuid rtps.Guid
	NewBps     float64
	PrevBps    float64
}

// Allocator distributes a new global rate across P0/P1/P2 writers
// proportionally to weight, clamped above MinPerWriter (spec §4.6
// "Budget allocator").
type Allocator struct {
	cfg  BudgetConfig
	prev map[rtps.Guid]float64
}

// NewAllocator constructs an allocator.
func NewAllocator(cfg BudgetConfig) *Allocator {
	return &Allocator{cfg: cfg, prev: make(map[rtps.Guid]float64)}
}

// Allocate computes the new per-writer budget for rate bytes/sec, given
// the current writer roster (spec §4.6 "Budget allocator"). P0 always
// receives at least max(rate*P0MinShare, P0MinBps); the remainder splits
// P1Share/P2Share between the other two classes, each distributed
// proportionally to weight within the class and clamped to
// MinPerWriter.
func (a *Allocator) Allocate(rate float64, writers []WriterWeight) []WriterBudgetUpdate {
	p0Reserve := max(rate*a.cfg.P0MinShare, a.cfg.P0MinBps)
	if p0Reserve > rate {
		p0Reserve = rate
	}
	remainder := rate - p0Reserve

	byClass := map[Priority][]WriterWeight{}
	for _, w := range writers {
		byClass[w.Priority] = append(byClass[w.Priority], w)
	}

	updates := make([]WriterBudgetUpdate, 0, len(writers))
	updates = append(updates, a.allocateClass(byClass[P0], p0Reserve)...)
	updates = append(updates, a.allocateClass(byClass[P1], remainder*a.cfg.P1Share)...)
	updates = append(updates, a.allocateClass(byClass[P2], remainder*a.cfg.P2Share)...)
	return updates
}

func (a *Allocator) allocateClass(writers []WriterWeight, classBudget float64) []WriterBudgetUpdate {
	if len(writers) == 0 {
		return nil
	}
	totalWeight := 0.0
	for _, w := range writers {
		totalWeight += w.Weight
	}
	if totalWeight <= 0 {
		totalWeight = float64(len(writers))
		for i := range writers {
			writers[i].Weight = 1
		}
	}

	out := make([]WriterBudgetUpdate, 0, len(writers))
	for _, w := range writers {
		share := classBudget * (w.Weight / totalWeight)
		if share < a.cfg.MinPerWriter {
			share = a.cfg.MinPerWriter
		}
		prev := a.prev[w.WriterGuid]
		a.prev[w.WriterGuid] = share
		out = append(out, WriterBudgetUpdate{WriterGuid: w.WriterGuid, NewBps: share, PrevBps: prev})
	}
	return out
}
