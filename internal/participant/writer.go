package participant

import (
	"encoding/binary"
	"fmt"

	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/history"
	"github.com/hdds-team/hdds-sub002/internal/reliability"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// encodeSeqPrefixedPayload/decodeSeqPrefixedPayload stamp an 8-byte
// big-endian sequence number onto a pacer-enqueued payload.
// congestion.WriterPacer.TrySend returns only the raw bytes it was
// given, with no room to carry the seq InsertKeyed already indexed the
// sample under; prefixing it here is the cheapest way to recover which
// seq a drained payload corresponds to without changing the congestion
// package's tested API.
func encodeSeqPrefixedPayload(seq uint64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[:8], seq)
	copy(out[8:], payload)
	return out
}

func decodeSeqPrefixedPayload(buf []byte) (uint64, []byte) {
	if len(buf) < 8 {
		return 0, buf
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:]
}

// RegisterLocalWriter creates a local data writer for topic/typeName:
// it allocates an entity id, a history cache bounded by limits, a
// sequence allocator for the writer's samples, a stream id (the
// congestion classifier key spec §4.6 describes), and — when congestion
// control is enabled — a per-writer pacer seeded at the configured
// minimum rate. The SEDP announcement is only cached in the registry;
// RegisterLocalWriter sends nothing itself, and the cached announcement
// reaches a peer when onPeerSeen replays ReplayAll to a newly
// discovered peer's metatraffic locator.
func (p *Participant) RegisterLocalWriter(topic, typeName string, limits history.Limits, priority congestion.Priority) (rtps.Guid, error) {
	key := p.nextEntityKey.Add(1)
	entity := rtps.EntityId{byte(key >> 16), byte(key >> 8), byte(key), byte(rtps.EntityKindWriterWithKey)}
	guid := rtps.Guid{Prefix: p.guidPrefix, Entity: entity}

	ws := &writerState{
		cache:        history.NewCache(limits),
		seqs:         discovery.NewSequenceAllocator(),
		priority:     priority,
		repair:       reliability.NewRepairQueue(reliability.DefaultBackoffPolicy(), p.repairBudget()),
		ackCursors:   make(map[rtps.GuidPrefix]*reliability.AckCursor),
		fragmentSize: defaultFragmentSize,
	}

	p.mu.Lock()
	p.writers[guid] = ws
	p.writerTopics[guid] = topic
	p.mu.Unlock()

	if _, ok := p.streams.Resolve(topic, typeName, int(priority), 0); !ok {
		log.Warnf("participant: stream-id space exhausted registering local writer for %s/%s", topic, typeName)
	}

	if p.orchestrator != nil {
		p.orchestrator.RegisterWriter(guid, priority, p.cfg.Congestion.MinBps)
	}

	data := discovery.SedpEndpointData{
		EndpointGuid: guid,
		TopicName:    topic,
		TypeName:     typeName,
		Kind:         discovery.SedpPublication,
	}
	encoded, err := EncodeSedp(data, discovery.Locators{})
	if err != nil {
		p.rollbackLocalWriter(guid)
		return rtps.Guid{}, fmt.Errorf("participant: encoding sedp announcement for %s/%s: %w", topic, typeName, err)
	}
	if _, err := p.sedp.AnnounceLocalEndpoint(data, encoded); err != nil {
		p.rollbackLocalWriter(guid)
		return rtps.Guid{}, fmt.Errorf("participant: registering sedp endpoint for %s/%s: %w", topic, typeName, err)
	}

	log.Infof("participant: registered local writer %s for %s/%s", guid, topic, typeName)
	return guid, nil
}

func (p *Participant) rollbackLocalWriter(guid rtps.Guid) {
	p.mu.Lock()
	delete(p.writers, guid)
	delete(p.writerTopics, guid)
	p.mu.Unlock()
	if p.orchestrator != nil {
		p.orchestrator.UnregisterWriter(guid)
	}
}

// repairBudget derives the repair queue's sliding-window budget from
// the congestion configuration; with congestion control disabled there
// is no global rate to fence a repair budget against, so repairs are
// unbounded.
func (p *Participant) repairBudget() reliability.BudgetConfig {
	if !p.cfg.Congestion.Enabled {
		return reliability.BudgetConfig{}
	}
	return reliability.BudgetConfig{BudgetRatio: 0.2, GlobalRateBps: p.cfg.Congestion.MaxBps}
}

// UnregisterLocalWriter drops a local writer's state (spec §4.3/§4.6
// "endpoint deletion"): its history cache, its congestion pacer, and
// its reserved writer-roster slot.
func (p *Participant) UnregisterLocalWriter(guid rtps.Guid) {
	p.rollbackLocalWriter(guid)
}

// Publish hands payload to guid's history cache (so NACK-driven repair
// and late-joiner durability can replay it) and, when congestion
// control is enabled, enqueues it on the writer's pacer so the
// orchestrator's tick-driven budget governs when it is released (spec
// §4.6 "Enqueue admits payload into the class-appropriate queue").
func (p *Participant) Publish(guid rtps.Guid, payload []byte, instanceKey uint64) (uint64, error) {
	p.mu.RLock()
	ws, ok := p.writers[guid]
	p.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("participant: publish to unregistered writer %s", guid)
	}

	seq := ws.seqs.Next()
	if err := ws.cache.InsertKeyed(seq, payload, instanceKey); err != nil {
		return 0, fmt.Errorf("participant: inserting sample for writer %s: %w", guid, err)
	}

	if p.orchestrator != nil {
		if pacer, ok := p.orchestrator.Pacer(guid); ok {
			pacer.Enqueue(encodeSeqPrefixedPayload(seq, payload), instanceKey)
		}
	}
	return seq, nil
}
