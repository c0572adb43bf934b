// Package history implements the per-writer sample cache (spec §4.3): a
// seq-ordered ring bounded by QoS resource limits, supporting replay for
// NACK-driven retransmission and late-joiner durability.
package history

import (
	"sync"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// HistoryKind selects the eviction discipline (spec §3 "QoS bundle").
type HistoryKind int

const (
	// KeepLast evicts the oldest sample once Depth is exceeded.
	KeepLast HistoryKind = iota
	// KeepAll rejects inserts that would exceed any resource limit.
	KeepAll
)

// Limits bounds a Cache's resident set (spec §4.3 "Invariants").
type Limits struct {
	Kind HistoryKind
	// Depth is the KeepLast sample count; ignored for KeepAll.
	Depth int

	MaxSamples            int
	MaxQuotaBytes          int64
	MaxInstances           int
	MaxSamplesPerInstance  int
}

// DefaultLimits matches the DDS History defaults: KeepLast with depth 1
// and effectively unlimited resource limits, overridden per-writer by QoS.
func DefaultLimits() Limits {
	return Limits{
		Kind:                  KeepLast,
		Depth:                 1,
		MaxSamples:            1 << 20,
		MaxQuotaBytes:         1 << 30,
		MaxInstances:          1 << 20,
		MaxSamplesPerInstance: 1 << 20,
	}
}

// entry is one History-cache record (spec §3 "History-cache entry").
type entry struct {
	Seq         uint64
	Payload     []byte
	InstanceKey uint64
	TsNs        int64
}

// Cache is the per-writer sample ring described in spec §4.3. A single
// writer goroutine calls the mutating methods; many goroutines may call
// the read-only snapshot methods concurrently.
type Cache struct {
	mu      sync.Mutex
	limits  Limits
	ring    []entry
	bytes   int64 // kept in sync with ring under mu; read via Bytes for diagnostics
	byInst  map[uint64]int // instance_key -> live sample count
	recover bool           // never set: recoverPoison logs a recovered panic without flagging the cache
}

// NewCache constructs an empty cache governed by limits.
func NewCache(limits Limits) *Cache {
	return &Cache{
		limits: limits,
		byInst: make(map[uint64]int),
	}
}

// InsertKeyed appends a sample for instanceKey at seq (spec §4.3
// "insert_keyed"). KeepLast evicts the oldest entries (globally, then
// per-instance) until every limit holds; KeepAll instead rejects the
// insert with WouldBlock if it would exceed any limit.
func (c *Cache) InsertKeyed(seq uint64, payload []byte, instanceKey uint64) error {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()

	if len(c.ring) > 0 && seq <= c.ring[len(c.ring)-1].Seq {
		return hddserr.Wrap(hddserr.Config, "history: seq %d is not strictly increasing after %d", seq, c.ring[len(c.ring)-1].Seq)
	}

	size := int64(len(payload))
	newInstCount := c.byInst[instanceKey]
	isNewInstance := newInstCount == 0

	if c.limits.Kind == KeepAll {
		if c.exceedsAnyLimit(size, instanceKey, isNewInstance) {
			return hddserr.Wrap(hddserr.WouldBlock, "history: keep-all cache full, rejecting seq %d", seq)
		}
		c.push(seq, payload, instanceKey)
		return nil
	}

	c.push(seq, payload, instanceKey)
	c.evictToFit()
	return nil
}

// exceedsAnyLimit reports whether inserting size bytes for instanceKey
// (a brand-new instance if isNewInstance) would break any KeepAll bound.
func (c *Cache) exceedsAnyLimit(size int64, instanceKey uint64, isNewInstance bool) bool {
	if len(c.ring)+1 > c.limits.MaxSamples {
		return true
	}
	if c.bytes+size > c.limits.MaxQuotaBytes {
		return true
	}
	if isNewInstance && len(c.byInst)+1 > c.limits.MaxInstances {
		return true
	}
	if c.byInst[instanceKey]+1 > c.limits.MaxSamplesPerInstance {
		return true
	}
	return false
}

func (c *Cache) push(seq uint64, payload []byte, instanceKey uint64) {
	c.ring = append(c.ring, entry{Seq: seq, Payload: payload, InstanceKey: instanceKey})
	c.bytes += int64(len(payload))
	c.byInst[instanceKey]++
}

// evictToFit applies KeepLast eviction until every limit holds: FIFO for
// the global bounds, and oldest-of-offending-instance for the per-instance
// bound (spec §4.3 "for KeepLast, eviction is FIFO, and per-instance
// overflow evicts the oldest sample of the offending instance").
func (c *Cache) evictToFit() {
	for len(c.ring) > 0 && c.depthExceeded() {
		c.popFront()
	}
	for len(c.ring) > 0 && (len(c.ring) > c.limits.MaxSamples || c.bytes > c.limits.MaxQuotaBytes || len(c.byInst) > c.limits.MaxInstances) {
		c.popFront()
	}
	for instKey, count := range c.byInst {
		for count > c.limits.MaxSamplesPerInstance {
			if !c.popOldestOfInstance(instKey) {
				break
			}
			count--
		}
	}
}

func (c *Cache) depthExceeded() bool {
	if c.limits.Kind != KeepLast || c.limits.Depth <= 0 {
		return false
	}
	return len(c.ring) > c.limits.Depth
}

func (c *Cache) popFront() {
	if len(c.ring) == 0 {
		return
	}
	front := c.ring[0]
	c.ring = c.ring[1:]
	c.bytes -= int64(len(front.Payload))
	c.byInst[front.InstanceKey]--
	if c.byInst[front.InstanceKey] <= 0 {
		delete(c.byInst, front.InstanceKey)
	}
}

func (c *Cache) popOldestOfInstance(instanceKey uint64) bool {
	for i := range c.ring {
		if c.ring[i].InstanceKey == instanceKey {
			removed := c.ring[i]
			c.ring = append(c.ring[:i], c.ring[i+1:]...)
			c.bytes -= int64(len(removed.Payload))
			c.byInst[instanceKey]--
			if c.byInst[instanceKey] <= 0 {
				delete(c.byInst, instanceKey)
			}
			return true
		}
	}
	return false
}

// Get returns the payload stored at seq, if still resident (spec §4.3
// "get").
func (c *Cache) Get(seq uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()

	for _, e := range c.ring {
		if e.Seq == seq {
			return e.Payload, true
		}
	}
	return nil, false
}

// RemoveAcknowledged pops entries from the front while their seq is at
// or below ackedSeq (spec §4.3 "remove_acknowledged").
func (c *Cache) RemoveAcknowledged(ackedSeq uint64) {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()

	for len(c.ring) > 0 && c.ring[0].Seq <= ackedSeq {
		c.popFront()
	}
}

// SnapshotPayloadsLimited copies up to n of the most recent payloads, in
// seq order, for late-joiner replay (spec §4.3
// "snapshot_payloads_limited").
func (c *Cache) SnapshotPayloadsLimited(n int) [][]byte {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()

	return c.snapshotLastLocked(n)
}

func (c *Cache) snapshotLastLocked(n int) [][]byte {
	if n <= 0 || len(c.ring) == 0 {
		return nil
	}
	start := 0
	if len(c.ring) > n {
		start = len(c.ring) - n
	}
	out := make([][]byte, 0, len(c.ring)-start)
	for _, e := range c.ring[start:] {
		out = append(out, e.Payload)
	}
	return out
}

// SnapshotForDurabilityService resolves spec §9's open question on
// DurabilityService replay depth: a late-joining reader with
// DurabilityService configured receives min(serviceDepth, cache.Len())
// samples, not the full KeepAll history and not just the KeepLast depth.
func (c *Cache) SnapshotForDurabilityService(serviceDepth int) [][]byte {
	c.mu.Lock()
	n := len(c.ring)
	c.mu.Unlock()
	if serviceDepth < n {
		n = serviceDepth
	}
	return c.SnapshotPayloadsLimited(n)
}

// OldestSeq and NewestSeq report the current seq range (spec §4.3).
func (c *Cache) OldestSeq() (uint64, bool) {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	if len(c.ring) == 0 {
		return 0, false
	}
	return c.ring[0].Seq, true
}

func (c *Cache) NewestSeq() (uint64, bool) {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	if len(c.ring) == 0 {
		return 0, false
	}
	return c.ring[len(c.ring)-1].Seq, true
}

// Len returns the number of resident samples.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	return len(c.ring)
}

// Bytes returns the number of resident bytes.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	return c.bytes
}

// InstanceCount returns the number of distinct instance keys held (spec
// §4.3 "instance_count").
func (c *Cache) InstanceCount() int {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	return len(c.byInst)
}

// SamplesForInstance returns the live sample count for instanceKey (spec
// §4.3 "samples_for_instance").
func (c *Cache) SamplesForInstance(instanceKey uint64) int {
	c.mu.Lock()
	defer c.recoverPoison()()
	defer c.mu.Unlock()
	return c.byInst[instanceKey]
}

// recoverPoison implements spec §4.3/§5's poison-recoverable mutex: a
// panic inside a locked critical section is logged and swallowed rather
// than left to render the cache permanently unusable, because nothing a
// single-goroutine panic here could corrupt crosses an invariant the
// cache depends on.
func (c *Cache) recoverPoison() func() {
	return func() {
		if r := recover(); r != nil {
			log.Errorf("history: recovered panic in cache critical section: %v", r)
		}
	}
}
