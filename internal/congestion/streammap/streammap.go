// Package streammap maps the single-byte RTPS stream identifier used
// by some vendor dialects for congestion-aware demultiplexing onto a
// (topic, type, priority) triple (spec §4.6 "Stream mapping").
package streammap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ControlStreamID is reserved for HEARTBEAT/ACKNACK/NACK_FRAG traffic
// and is never allocated to a data writer (spec §4.6 "stream_id=0
// reserved for control").
const ControlStreamID = 0

// StreamEntry is what a stream_id resolves to.
type StreamEntry struct {
	TopicHash uint64
	TypeHash  uint64
	Priority  int
	Flags     uint32
}

// Map assigns stream ids in [1,255] to (topic_hash, type_hash,
// priority, flags) tuples, keyed by topic+type name so the same
// (topic, type) pair always gets the same id for the life of the map
// (spec §4.6 "Stream mapping").
type Map struct {
	mu      sync.Mutex
	byKey   map[uint64]byte
	entries map[byte]StreamEntry
	next    byte
}

// New constructs an empty map. IDs are handed out starting at 1;
// ControlStreamID (0) is never allocated.
func New() *Map {
	return &Map{
		byKey:   make(map[uint64]byte),
		entries: make(map[byte]StreamEntry),
		next:    1,
	}
}

// HashName hashes a topic or type name into the 64-bit identifier
// carried in StreamEntry, via xxhash (spec §4.6 names xxhash for
// stream-id/instance-key hashing).
func HashName(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Resolve returns the stream id for (topic, type), allocating a new
// one on first use. Returns ok=false once ids in [1,255] are
// exhausted.
func (m *Map) Resolve(topic, typeName string, priority int, flags uint32) (id byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := xxhash.Sum64String(topic + "\x00" + typeName)
	if existing, found := m.byKey[key]; found {
		return existing, true
	}
	if m.next == 0 { // wrapped past 255
		return 0, false
	}
	id = m.next
	m.next++
	m.byKey[key] = id
	m.entries[id] = StreamEntry{
		TopicHash: xxhash.Sum64String(topic),
		TypeHash:  xxhash.Sum64String(typeName),
		Priority:  priority,
		Flags:     flags,
	}
	return id, true
}

// Lookup returns the entry previously assigned to id.
func (m *Map) Lookup(id byte) (StreamEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

// InstanceKey hashes a serialized key value into the uint64 instance
// key used by history-cache indexing and P2 pacer coalescing.
func InstanceKey(serializedKey []byte) uint64 {
	return xxhash.Sum64(serializedKey)
}
