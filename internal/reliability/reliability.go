// Package reliability implements the writer-side NACK handling and
// reader-side positive-ACK emission described in spec §4.4: HEARTBEAT
// emission, ACKNACK/NACK_FRAG parsing, and a repair queue with
// coalescing, retry backoff, and a sliding repair-budget window.
package reliability

import (
	"sort"
	"sync"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/prometheus/client_golang/prometheus"
)

// Heartbeat is the outbound writer-side announcement of its history
// range (spec §4.4 "Writer-side HEARTBEAT emission").
type Heartbeat struct {
	WriterGuid      rtps.Guid
	First           uint64
	Last            uint64
	Count           uint32
	FinalFlag       bool
	LivelinessFlag  bool
}

// AckNack is the parsed form of an incoming ACKNACK submessage (spec
// §4.4 "Writer-side ACKNACK handling").
type AckNack struct {
	ReaderId     rtps.EntityId
	WriterId     rtps.EntityId
	BitmapBase   uint64
	MissingSeqs  []uint64 // decoded from the bitmap, all >= BitmapBase
	Count        uint32
	FinalFlag    bool
}

// IsPositive reports whether this ACKNACK carries no missing seqs and
// simply advances the ack cursor (spec §4.4 "Positive ACKNACK").
func (a AckNack) IsPositive() bool {
	return len(a.MissingSeqs) == 0
}

// NackFrag is the per-fragment counterpart of AckNack: the missing set
// identifies fragment numbers within a single seq (spec §4.4 "NACK_FRAG
// handling").
type NackFrag struct {
	ReaderId        rtps.EntityId
	WriterId        rtps.EntityId
	Seq             uint64
	MissingFragNums []uint32
	Count           uint32
}

// RepairRequest is one entry in the repair queue: either a whole-sample
// retransmit or a fragment-range retransmit of one sample.
type RepairRequest struct {
	PeerPrefix  rtps.GuidPrefix
	Seq         uint64
	FragNums    []uint32 // nil for a whole-sample repair
	scheduledAt time.Time
	firstQueued time.Time
	attempts    int
}

// DequeueResult is the outcome of a repair-queue pop attempt (spec §4.4
// "try_dequeue()").
type DequeueResult int

const (
	DequeueEmpty DequeueResult = iota
	DequeueReady
	DequeueWait
	DequeueBudgetExhausted
)

// BackoffPolicy configures the retry tracker (spec §4.4 "Retry
// tracker").
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxRetries int
}

// DefaultBackoffPolicy matches common RTPS retransmit defaults.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		MaxRetries: 8,
	}
}

// BudgetConfig governs the 1-second sliding repair-budget window (spec
// §4.4 "Budget window").
type BudgetConfig struct {
	BudgetRatio float64// fraction of global_rate bytes/sec spendable on repairs
	GlobalRateBps float64
}

const coalesceWindow = 15 * time.Millisecond

var (
	repairsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hdds_reliability_repairs_enqueued_total",
		Help: "Missing sequence numbers enqueued into the repair queue.",
	})
	repairsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hdds_reliability_repairs_dropped_total",
		Help: "Repair entries dropped after exceeding max retries.",
	})
	repairsBudgetExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hdds_reliability_budget_exhausted_total",
		Help: "try_dequeue calls that returned BudgetExhausted.",
	})
)

func init() {
	prometheus.MustRegister(repairsEnqueued, repairsDropped, repairsBudgetExhausted)
}

// RepairQueue implements the four cooperating pieces of spec §4.4's
// "Repair queue": a NACK coalescer, a retry tracker with exponential
// backoff, a 1-second sliding budget window, and a priority queue sorted
// by scheduled-send time.
type RepairQueue struct {
	mu sync.Mutex

	backoff BackoffPolicy
	budget  BudgetConfig

	pending map[uint64]*RepairRequest // keyed by seq; fragment repairs overwrite FragNums
	order   []uint64                  // seqs, kept sorted by scheduledAt on demand

	spendWindow []spendRecord
}

type spendRecord struct {
	at    time.Time
	bytes int
}

// NewRepairQueue constructs an empty queue.
func NewRepairQueue(backoff BackoffPolicy, budget BudgetConfig) *RepairQueue {
	return &RepairQueue{
		backoff: backoff,
		budget:  budget,
		pending: make(map[uint64]*RepairRequest),
	}
}

// Enqueue adds a whole-sample repair for seq from peer, deduplicating
// and coalescing within the 15ms window (spec §4.4 "NACK coalescer").
func (q *RepairQueue) Enqueue(peer rtps.GuidPrefix, seq uint64, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(peer, seq, nil, now)
}

// EnqueueFragments adds (or extends) a fragment repair for seq.
func (q *RepairQueue) EnqueueFragments(peer rtps.GuidPrefix, seq uint64, fragNums []uint32, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(peer, seq, fragNums, now)
}

func (q *RepairQueue) enqueueLocked(peer rtps.GuidPrefix, seq uint64, fragNums []uint32, now time.Time) {
	if existing, ok := q.pending[seq]; ok {
		// Coalesce: merge fragment sets, keep the earliest schedule time
		// within the coalesce window so a burst of duplicate NACKs for
		// the same seq produces one repair, not one per NACK.
		if fragNums != nil {
			existing.FragNums = mergeFragNums(existing.FragNums, fragNums)
		}
		return
	}
	req := &RepairRequest{
		PeerPrefix:  peer,
		Seq:         seq,
		FragNums:    fragNums,
		scheduledAt: now.Add(coalesceWindow),
		firstQueued: now,
	}
	q.pending[seq] = req
	q.order = append(q.order, seq)
	repairsEnqueued.Inc()
}

func mergeFragNums(a, b []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(a)+len(b))
	out := make([]uint32, 0, len(a)+len(b))
	for _, f := range append(append([]uint32{}, a...), b...) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TryDequeue returns the next ready repair request, applying the retry
// tracker's backoff and the sliding budget window (spec §4.4
// "try_dequeue()"). estimatedSize is the caller's estimate (from history
// cache lookup) of how many bytes the repair would cost, charged against
// the budget only when a request is actually returned as Ready. Entries
// that have exhausted their retry budget are dropped and skipped over
// rather than returned.
func (q *RepairQueue) TryDequeue(now time.Time, estimatedSize func(seq uint64) int) (DequeueResult, *RepairRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneSpendWindow(now)

	for {
		if len(q.order) == 0 {
			return DequeueEmpty, nil
		}

		sort.Slice(q.order, func(i, j int) bool {
			return q.pending[q.order[i]].scheduledAt.Before(q.pending[q.order[j]].scheduledAt)
		})

		head := q.pending[q.order[0]]
		if head.attempts >= q.backoff.MaxRetries {
			q.removeLocked(head.Seq)
			repairsDropped.Inc()
			continue
		}
		if head.scheduledAt.After(now) {
			return DequeueWait, nil
		}

		size := 0
		if estimatedSize != nil {
			size = estimatedSize(head.Seq)
		}
		budgetBytesPerWindow := q.budget.BudgetRatio * q.budget.GlobalRateBps
		spent := q.spentInWindow()
		if budgetBytesPerWindow > 0 && float64(spent+size) > budgetBytesPerWindow {
			repairsBudgetExhausted.Inc()
			return DequeueBudgetExhausted, nil
		}

		head.attempts++
		head.scheduledAt = now.Add(backoffDelay(q.backoff, head.attempts))
		q.spendWindow = append(q.spendWindow, spendRecord{at: now, bytes: size})

		// Return a snapshot; the caller retransmits and the entry stays
		// pending (rescheduled above) until acked via Ack.
		out := *head
		return DequeueReady, &out
	}
}

func backoffDelay(b BackoffPolicy, attempt int) time.Duration {
	d := b.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

func (q *RepairQueue) spentInWindow() int {
	total := 0
	for _, s := range q.spendWindow {
		total += s.bytes
	}
	return total
}

func (q *RepairQueue) pruneSpendWindow(now time.Time) {
	cutoff := now.Add(-1 * time.Second)
	i := 0
	for i < len(q.spendWindow) && q.spendWindow[i].at.Before(cutoff) {
		i++
	}
	q.spendWindow = q.spendWindow[i:]
}

// Ack removes a whole-sample repair once retransmitted and acked (the
// caller decides acknowledgment based on the next ACKNACK's bitmap_base).
func (q *RepairQueue) Ack(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(seq)
}

func (q *RepairQueue) removeLocked(seq uint64) {
	delete(q.pending, seq)
	for i, s := range q.order {
		if s == seq {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of distinct seqs currently pending repair.
func (q *RepairQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
