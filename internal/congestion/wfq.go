package congestion

import "github.com/hdds-team/hdds-sub002/internal/rtps"

// wfqWriterState tracks one writer's virtual start time and weight
// within a WFQ class (spec §4.6 "WFQ (optional)").
type wfqWriterState struct {
	guid         rtps.Guid
	weight       float64
	virtualStart float64
	active       bool
}

// WeightedFairQueue schedules writers within a single priority class by
// virtual finish time (spec §4.6 "WFQ (optional): virtual_finish =
// writer.virtual_start + size/weight; dequeue picks smallest finish
// time; writers rejoin at current virtual time when they go from empty
// back to active."). Pacer already enforces FIFO-per-class ordering;
// this is an alternative intra-class scheduler a participant may select
// instead, e.g. to give heavier-weighted writers proportionally more of
// a shared class budget.
type WeightedFairQueue struct {
	virtualTime float64
	writers     map[rtps.Guid]*wfqWriterState
	pending     map[rtps.Guid][]queuedItem
}

type queuedItem struct {
	size    int
	payload []byte
}

// NewWeightedFairQueue constructs an empty queue.
func NewWeightedFairQueue() *WeightedFairQueue {
	return &WeightedFairQueue{
		writers: make(map[rtps.Guid]*wfqWriterState),
		pending: make(map[rtps.Guid][]queuedItem),
	}
}

// AddWriter registers a writer with its scheduling weight (higher
// weight gets proportionally more bandwidth within the class).
func (q *WeightedFairQueue) AddWriter(guid rtps.Guid, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	q.writers[guid] = &wfqWriterState{guid: guid, weight: weight, virtualStart: q.virtualTime}
}

// Enqueue admits one payload for the writer. A writer transitioning
// from empty to active rejoins at the queue's current virtual time
// (spec §4.6), preventing a long-idle writer from monopolizing
// bandwidth via an accumulated backlog of old virtual time.
func (q *WeightedFairQueue) Enqueue(guid rtps.Guid, payload []byte) {
	w, ok := q.writers[guid]
	if !ok {
		return
	}
	if !w.active {
		w.virtualStart = q.virtualTime
		w.active = true
	}
	q.pending[guid] = append(q.pending[guid], queuedItem{size: len(payload), payload: payload})
}

// Dequeue selects the writer with the smallest virtual finish time
// among those with pending data, pops its head item, and advances that
// writer's virtual_start past the finish time it was just charged.
func (q *WeightedFairQueue) Dequeue() (rtps.Guid, []byte, bool) {
	var best *wfqWriterState
	bestFinish := 0.0

	for guid, items := range q.pending {
		if len(items) == 0 {
			continue
		}
		w := q.writers[guid]
		finish := w.virtualStart + float64(items[0].size)/w.weight
		if best == nil || finish < bestFinish {
			best = w
			bestFinish = finish
		}
	}
	if best == nil {
		return rtps.Guid{}, nil, false
	}

	items := q.pending[best.guid]
	item := items[0]
	q.pending[best.guid] = items[1:]
	best.virtualStart = bestFinish
	if best.virtualStart > q.virtualTime {
		q.virtualTime = best.virtualStart
	}
	if len(q.pending[best.guid]) == 0 {
		best.active = false
	}
	return best.guid, item.payload, true
}
