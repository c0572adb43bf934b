// Package discovery implements SPDP participant discovery and SEDP
// endpoint discovery (spec §4.5): peer database and lease tracking,
// built-in endpoint announcement/replay, vendor-dialect detection, and
// static-peer handling.
package discovery

import (
	"sync"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// PeerState models the coroutine-shaped SPDP/SEDP handshake as an
// explicit state object rather than a suspended coroutine (spec §9
// "Coroutine-shaped flows").
type PeerState int

const (
	PeerSeen PeerState = iota
	PeerSedpReplayed
	PeerMatched
)

func (s PeerState) String() string {
	switch s {
	case PeerSeen:
		return "Seen"
	case PeerSedpReplayed:
		return "SedpReplayed"
	case PeerMatched:
		return "Matched"
	default:
		return "Unknown"
	}
}

// Locators is the set of addresses a peer advertised in its SPDP
// announcement (spec §4.5).
type Locators struct {
	MetatrafficUnicast []string
	UserDataUnicast    []string
}

// PeerEntry is one row of the participant database (spec §3
// "Participant", spec §9 "Per-peer state").
type PeerEntry struct {
	Prefix          rtps.GuidPrefix
	Locators        Locators
	Vendor          rtps.VendorId
	LeaseDuration   time.Duration
	LeaseExpiresAt  time.Time
	State           PeerState
	IdentityToken   []byte
	IsStatic        bool
	BuiltinBitmask  uint32
}

// PeerDatabase is the process-wide `guid -> info` map (spec §5 "Shared
// resources": "Participant database — RwLock, read-heavy"). Never holds
// direct references to endpoints; the peer -> endpoints / endpoint ->
// peer relation is maintained by GUID key lookups elsewhere (spec §9
// "Per-peer state that may become cyclic").
type PeerDatabase struct {
	mu    sync.RWMutex
	peers map[rtps.GuidPrefix]*PeerEntry
}

// NewPeerDatabase constructs an empty database.
func NewPeerDatabase() *PeerDatabase {
	return &PeerDatabase{peers: make(map[rtps.GuidPrefix]*PeerEntry)}
}

// Upsert inserts or refreshes a peer's lease and locators (spec §4.5
// SPDP step 1). Returns true if this is the first time the peer has
// been seen, which drives the SEDP re-announcement in step 2.
func (d *PeerDatabase) Upsert(prefix rtps.GuidPrefix, locators Locators, vendor rtps.VendorId, lease time.Duration, now time.Time) (entry *PeerEntry, isNew bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.peers[prefix]; ok {
		existing.Locators = locators
		existing.Vendor = vendor
		existing.LeaseDuration = lease
		existing.LeaseExpiresAt = now.Add(lease)
		return existing, false
	}

	e := &PeerEntry{
		Prefix:         prefix,
		Locators:       locators,
		Vendor:         vendor,
		LeaseDuration:  lease,
		LeaseExpiresAt: now.Add(lease),
		State:          PeerSeen,
	}
	d.peers[prefix] = e
	return e, true
}

// Get returns the peer entry for prefix, if known.
func (d *PeerDatabase) Get(prefix rtps.GuidPrefix) (*PeerEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.peers[prefix]
	return e, ok
}

// SetState transitions a known peer's handshake state.
func (d *PeerDatabase) SetState(prefix rtps.GuidPrefix, state PeerState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.peers[prefix]; ok {
		e.State = state
	}
}

// AttachIdentityToken stores the token presented by a peer once
// security validation accepts it (spec §4.5 "Security hook").
func (d *PeerDatabase) AttachIdentityToken(prefix rtps.GuidPrefix, token []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.peers[prefix]; ok {
		e.IdentityToken = token
	}
}

// SweepExpired removes every peer whose lease has expired as of now,
// returning the evicted entries so the caller can fire
// on_participant_lost / on_endpoint_lost callbacks (spec §4.5 "Lease
// tracker").
func (d *PeerDatabase) SweepExpired(now time.Time) []*PeerEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var evicted []*PeerEntry
	for prefix, e := range d.peers {
		if e.IsStatic {
			continue // static peers never expire by lease (spec §4.5 "Static peers")
		}
		if now.After(e.LeaseExpiresAt) {
			evicted = append(evicted, e)
			delete(d.peers, prefix)
		}
	}
	return evicted
}

// Len reports the number of known peers.
func (d *PeerDatabase) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// All returns a snapshot of every known peer.
func (d *PeerDatabase) All() []*PeerEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*PeerEntry, 0, len(d.peers))
	for _, e := range d.peers {
		out = append(out, e)
	}
	return out
}
