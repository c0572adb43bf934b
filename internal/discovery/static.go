package discovery

import (
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// RegisterStaticPeer treats a configured static address as if an SPDP
// DATA had already been received from it (spec §4.5 "Static peers"):
// inserted into the database with a lease far in the future (spec
// §4.5/§8 never expires it by lease; PeerDatabase.SweepExpired also
// special-cases IsStatic), and flagged so SEDP is replayed to it once
// by the caller.
func RegisterStaticPeer(db *PeerDatabase, prefix rtps.GuidPrefix, addr string, now time.Time) (*PeerEntry, bool) {
	entry, isNew := db.Upsert(prefix, Locators{MetatrafficUnicast: []string{addr}, UserDataUnicast: []string{addr}}, rtps.VendorUnknown, 24*365*time.Hour, now)
	entry.IsStatic = true
	return entry, isNew
}

// ReannounceMatchingReaders implements spec §4.5's dialect-specific
// re-announcement rule: on receiving an SEDP DATA(writer-endpoint) from
// a peer for topic, if the peer's dialect requires fresh sequence
// numbers, re-emit each local Reader endpoint on that topic under a new
// seq, then signal that a HEARTBEAT should close the reliable cycle
// (returned via the needsHeartbeat flag so the caller — which owns the
// reliability engine — can emit it).
func ReannounceMatchingReaders(registry *SedpRegistry, rules DialectRules, topic string, encode func(SedpEndpointData) ([]byte, error)) (reannounced []rtps.Guid, needsHeartbeat bool, err error) {
	if !rules.ExpectsFreshSeqReannounce {
		return nil, false, nil
	}
	for _, reader := range registry.ReadersForTopic(topic) {
		payload, encErr := encode(reader)
		if encErr != nil {
			return reannounced, false, encErr
		}
		if _, seqErr := registry.ReannounceReader(reader.EndpointGuid, payload); seqErr != nil {
			return reannounced, false, seqErr
		}
		reannounced = append(reannounced, reader.EndpointGuid)
	}
	return reannounced, len(reannounced) > 0, nil
}
