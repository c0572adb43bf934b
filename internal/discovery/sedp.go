package discovery

import (
	"sync"
	"sync/atomic"

	"github.com/hdds-team/hdds-sub002/internal/history"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// SedpEndpointKind names which of the three built-in SEDP topics an
// announcement belongs to (spec §4.5 "SEDP").
type SedpEndpointKind int

const (
	SedpPublication SedpEndpointKind = iota
	SedpSubscription
	SedpTopic
)

// SedpEndpointData is the canonical announcement for one local
// endpoint, replayed verbatim to late joiners and on loss recovery
// (spec §4.5 "SEDP cache").
type SedpEndpointData struct {
	EndpointGuid rtps.Guid
	TopicName    string
	TypeName     string
	Locators     Locators
	Kind         SedpEndpointKind
}

// SequenceAllocator hands out the strictly increasing SEDP sequence
// numbers spec §4.5 requires ("Each local endpoint creation allocates a
// strictly increasing SEDP sequence number").
type SequenceAllocator struct {
	next atomic.Uint64
}

// NewSequenceAllocator starts counting from 1 (seq 0 is reserved/unused
// in RTPS).
func NewSequenceAllocator() *SequenceAllocator {
	a := &SequenceAllocator{}
	a.next.Store(1)
	return a
}

// Next returns the next strictly increasing sequence number.
func (a *SequenceAllocator) Next() uint64 {
	return a.next.Add(1) - 1
}

// builtinWriterCache pairs a SEDP built-in writer's history cache (for
// replay) with its own sequence allocator.
type builtinWriterCache struct {
	seqs  *SequenceAllocator
	cache *history.Cache
}

func newBuiltinWriterCache() *builtinWriterCache {
	limits := history.DefaultLimits()
	limits.Kind = history.KeepAll // discovery announcements must never be silently dropped
	return &builtinWriterCache{seqs: NewSequenceAllocator(), cache: history.NewCache(limits)}
}

// SedpRegistry stores every local endpoint's canonical announcement
// (spec §4.5 "SEDP cache") and backs each of the three built-in SEDP
// writers (publications, subscriptions, topics) with its own history
// cache so announcements can be replayed on a peer's HEARTBEAT+ACKNACK
// cycle or proactively on first SPDP contact.
type SedpRegistry struct {
	mu sync.RWMutex

	publications  *builtinWriterCache
	subscriptions *builtinWriterCache
	topics        *builtinWriterCache

	endpoints map[rtps.Guid]SedpEndpointData
}

// NewSedpRegistry constructs an empty registry.
func NewSedpRegistry() *SedpRegistry {
	return &SedpRegistry{
		publications:  newBuiltinWriterCache(),
		subscriptions: newBuiltinWriterCache(),
		topics:        newBuiltinWriterCache(),
		endpoints:     make(map[rtps.Guid]SedpEndpointData),
	}
}

func (r *SedpRegistry) writerFor(kind SedpEndpointKind) *builtinWriterCache {
	switch kind {
	case SedpPublication:
		return r.publications
	case SedpSubscription:
		return r.subscriptions
	default:
		return r.topics
	}
}

// AnnounceLocalEndpoint registers data as the canonical announcement
// for its endpoint, allocates a fresh SEDP sequence number from the
// matching built-in writer, and appends the serialized announcement to
// that writer's history cache (spec §4.5, "Each local endpoint creation
// allocates a strictly increasing SEDP sequence number and appends an
// SEDP DATA to the writer's history cache"). encoded is the CDR-encoded
// announcement payload, produced by the caller via internal/cdr.
func (r *SedpRegistry) AnnounceLocalEndpoint(data SedpEndpointData, encoded []byte) (seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	writer := r.writerFor(data.Kind)
	seq = writer.seqs.Next()
	if err := writer.cache.InsertKeyed(seq, encoded, 0); err != nil {
		return 0, err
	}
	r.endpoints[data.EndpointGuid] = data
	return seq, nil
}

// ReannounceReader re-emits the Reader SEDP DATA for endpointGuid under
// a newly allocated sequence number, for dialects whose state machine
// needs a "fresh" seq to advance (spec §4.5 "Re-announcement rule").
func (r *SedpRegistry) ReannounceReader(endpointGuid rtps.Guid, encoded []byte) (seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, ok := r.endpoints[endpointGuid]
	if !ok {
		return 0, nil
	}
	writer := r.writerFor(data.Kind)
	seq = writer.seqs.Next()
	if err := writer.cache.InsertKeyed(seq, encoded, 0); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReadersForTopic returns every locally registered SedpSubscription
// endpoint for topic, used by the re-announcement rule to find which
// local Readers must be re-emitted when a peer Writer on the same topic
// is discovered.
func (r *SedpRegistry) ReadersForTopic(topic string) []SedpEndpointData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SedpEndpointData
	for _, e := range r.endpoints {
		if e.Kind == SedpSubscription && e.TopicName == topic {
			out = append(out, e)
		}
	}
	return out
}

// ReplayAll returns every resident announcement for kind's built-in
// writer, for proactive unicast replay on first SPDP contact (spec
// §4.5 "proactive unicast replay on first SPDP contact").
func (r *SedpRegistry) ReplayAll(kind SedpEndpointKind) [][]byte {
	r.mu.RLock()
	writer := r.writerFor(kind)
	r.mu.RUnlock()
	n := writer.cache.Len()
	return writer.cache.SnapshotPayloadsLimited(n)
}
