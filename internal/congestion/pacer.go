package congestion

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PacerConfig bounds the per-writer queues (spec §4.6 "Writer pacer").
type PacerConfig struct {
	MaxQueueP0   int
	MaxQueueP1   int
	MinBurstMtu  float64 // minimum burst size in bytes, usually one MTU
}

// DefaultPacerConfig matches spec §4.6's stated defaults.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{MaxQueueP0: 64, MaxQueueP1: 256, MinBurstMtu: 1472}
}

type p2Item struct {
	instanceKey uint64
	payload     []byte
}

// WriterPacer token-buckets one writer's outgoing traffic and holds its
// priority-shaped queue (spec §4.6 "Writer pacer"): P0 is a bounded
// FIFO, P1 drops its oldest entry on overflow, P2 coalesces by instance
// key so only the latest sample per instance is ever queued.
type WriterPacer struct {
	mu       sync.Mutex
	cfg      PacerConfig
	priority Priority
	limiter  *rate.Limiter

	p0Queue [][]byte
	p1Queue [][]byte

	p2Order []uint64
	p2ByKey map[uint64][]byte
}

// NewWriterPacer builds a pacer for one writer at the given allocated
// rate (bytes/sec). Burst is rate/10 clamped to at least one MTU, per
// spec §4.6.
func NewWriterPacer(priority Priority, bps float64, cfg PacerConfig) *WriterPacer {
	burst := bps / 10
	if burst < cfg.MinBurstMtu {
		burst = cfg.MinBurstMtu
	}
	return &WriterPacer{
		cfg:      cfg,
		priority: priority,
		limiter:  rate.NewLimiter(rate.Limit(bps), int(burst)),
		p2ByKey:  make(map[uint64][]byte),
	}
}

// SetRate re-tunes the limiter after a budget reallocation (spec §4.6
// "Writer pacer" reacts to WriterBudgetUpdate).
func (p *WriterPacer) SetRate(bps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	burst := bps / 10
	if burst < p.cfg.MinBurstMtu {
		burst = p.cfg.MinBurstMtu
	}
	p.limiter.SetLimit(rate.Limit(bps))
	p.limiter.SetBurst(int(burst))
}

// Enqueue admits payload into the class-appropriate queue (spec §4.6
// "Writer pacer"). instanceKey is only consulted for P2 coalescing.
func (p *WriterPacer) Enqueue(payload []byte, instanceKey uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.priority {
	case P0:
		if len(p.p0Queue) >= p.cfg.MaxQueueP0 {
			return // full: caller already holds the sample, nothing to coalesce
		}
		p.p0Queue = append(p.p0Queue, payload)
	case P1:
		if len(p.p1Queue) >= p.cfg.MaxQueueP1 {
			p.p1Queue = p.p1Queue[1:] // drop-oldest-on-overflow
		}
		p.p1Queue = append(p.p1Queue, payload)
	case P2:
		if _, exists := p.p2ByKey[instanceKey]; !exists {
			p.p2Order = append(p.p2Order, instanceKey)
		}
		p.p2ByKey[instanceKey] = payload // last-value-wins
	}
}

// TrySend drains the writer's queues in P0→P1→P2 order, consuming
// tokens from the shared limiter (spec §4.6 "try_send() tries
// P0→P1→P2 consuming tokens"). P0 is allowed to force-send into a
// token deficit so a congestion spike cannot starve liveness-critical
// traffic; forced reports when that happened.
func (p *WriterPacer) TrySend(now time.Time) (payload []byte, prio Priority, forced bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.p0Queue) > 0 {
		item := p.p0Queue[0]
		p.p0Queue = p.p0Queue[1:]
		allowed := p.limiter.AllowN(now, len(item))
		return item, P0, !allowed, true
	}

	if len(p.p1Queue) > 0 {
		item := p.p1Queue[0]
		if p.limiter.AllowN(now, len(item)) {
			p.p1Queue = p.p1Queue[1:]
			return item, P1, false, true
		}
		return nil, 0, false, false
	}

	if len(p.p2Order) > 0 {
		key := p.p2Order[0]
		item := p.p2ByKey[key]
		if p.limiter.AllowN(now, len(item)) {
			p.p2Order = p.p2Order[1:]
			delete(p.p2ByKey, key)
			return item, P2, false, true
		}
		return nil, 0, false, false
	}

	return nil, 0, false, false
}

// QueueLengths reports queue occupancy for telemetry (spec §4.6
// "Observability").
func (p *WriterPacer) QueueLengths() (p0, p1, p2 int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.p0Queue), len(p.p1Queue), len(p.p2Order)
}
