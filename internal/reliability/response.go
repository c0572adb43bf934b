package reliability

import (
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// AckCursor tracks the writer-side view of one peer reader's
// acknowledgment state, updated from incoming ACKNACK submessages (spec
// §4.4 "Writer-side ACKNACK handling").
type AckCursor struct {
	PeerPrefix rtps.GuidPrefix
	AckedUpTo  uint64 // bitmap_base - 1; all seqs <= this are acked
}

// ApplyAckNack updates the ack cursor from an incoming ACKNACK and
// returns the seqs that must be enqueued into the repair queue. A
// positive ACKNACK (spec §4.4) advances the cursor without producing any
// repair seqs.
func ApplyAckNack(cursor *AckCursor, an AckNack) []uint64 {
	if an.BitmapBase > 0 {
		cursor.AckedUpTo = an.BitmapBase - 1
	}
	if an.IsPositive() {
		return nil
	}
	return an.MissingSeqs
}

// DestinationKind selects which locator class a reply targets (spec
// §4.4 "Destination resolution").
type DestinationKind int

const (
	DestinationMetatraffic DestinationKind = iota // SEDP / builtin endpoints
	DestinationUserData
)

// LocatorLookup resolves a peer's declared locator by GUID prefix and
// destination kind, looked up in the discovery registry — never the
// datagram's source address (spec §4.4 "Destination resolution").
type LocatorLookup func(prefix rtps.GuidPrefix, kind DestinationKind) (addr string, ok bool)

// HeartbeatResponsePolicy decides how a reader should answer an incoming
// HEARTBEAT (spec §4.4 "Reader-side HEARTBEAT response").
type HeartbeatResponsePolicy struct {
	// UserDataRateLimit bounds how often a positive ACKNACK is emitted
	// per peer for user-data endpoints, to avoid retransmission storms
	// (spec §4.4 default: one per 100ms per peer; spec §9 notes this
	// constant is implementation-defined).
	UserDataRateLimit time.Duration

	lastSent map[rtps.GuidPrefix]time.Time
}

// NewHeartbeatResponsePolicy builds a policy with the given rate limit.
func NewHeartbeatResponsePolicy(rateLimit time.Duration) *HeartbeatResponsePolicy {
	return &HeartbeatResponsePolicy{
		UserDataRateLimit: rateLimit,
		lastSent:          make(map[rtps.GuidPrefix]time.Time),
	}
}

// BuildResponse decides what ACKNACK, if any, to send in reply to hb.
// isBuiltin selects the builtin-endpoint (SEDP/SPDP) branch, which must
// always request the full range with FinalFlag to drive discovery
// forward; user-data endpoints instead send a rate-limited positive
// ACKNACK.
func (p *HeartbeatResponsePolicy) BuildResponse(peer rtps.GuidPrefix, hb Heartbeat, isBuiltin bool, now time.Time) (AckNack, bool) {
	if isBuiltin {
		return AckNack{
			WriterId:   hb.WriterGuid.Entity,
			BitmapBase: hb.First,
			MissingSeqs: fullRange(hb.First, hb.Last),
			FinalFlag:  true,
		}, true
	}

	last, seen := p.lastSent[peer]
	if seen && now.Sub(last) < p.UserDataRateLimit {
		return AckNack{}, false
	}
	p.lastSent[peer] = now

	return AckNack{
		WriterId:    hb.WriterGuid.Entity,
		BitmapBase:  hb.Last + 1,
		MissingSeqs: nil,
		FinalFlag:   false,
	}, true
}

func fullRange(first, last uint64) []uint64 {
	if last < first {
		return nil
	}
	out := make([]uint64, 0, last-first+1)
	for s := first; s <= last; s++ {
		out = append(out, s)
	}
	return out
}
