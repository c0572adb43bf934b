package participant

import (
	"fmt"
	"sync"

	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// OnSample is invoked once per fully reassembled sample a local reader
// receives (spec §2 "... -> reader queues", spec §3 "Readers own a
// reassembly/ordering buffer").
type OnSample func(writerGuid rtps.Guid, seq uint64, payload []byte)

// defaultFragmentSize matches the fragment size RecomputeFragments
// slices samples into on the writer side (spec §4.4 "agreed fragment
// size"); HDDS fixes it per-domain rather than negotiating it per
// writer, which real RTPS stacks also commonly do for simplicity.
const defaultFragmentSize = 1400

// fragmentAssembly reassembles the fragments of one (writer, seq)
// sample. Built on the assumption — shared with BuildDataFragMessage —
// that each DATA_FRAG submessage carries exactly one fragment, so a
// fragment is fully identified by its StartingFragmentNum.
type fragmentAssembly struct {
	totalSize    uint32
	fragmentSize uint16
	parts        map[uint32][]byte
}

func newFragmentAssembly(totalSize uint32, fragmentSize uint16) *fragmentAssembly {
	return &fragmentAssembly{totalSize: totalSize, fragmentSize: fragmentSize, parts: make(map[uint32][]byte)}
}

func (f *fragmentAssembly) addFragment(fragNum uint32, data []byte) {
	if _, ok := f.parts[fragNum]; ok {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.parts[fragNum] = cp
}

// complete reassembles the sample once every fragment has arrived, in
// ascending fragment-number order.
func (f *fragmentAssembly) complete() ([]byte, bool) {
	if f.fragmentSize == 0 {
		return nil, false
	}
	numFragments := (int(f.totalSize) + int(f.fragmentSize) - 1) / int(f.fragmentSize)
	if numFragments == 0 {
		numFragments = 1
	}
	out := make([]byte, 0, f.totalSize)
	for i := 1; i <= numFragments; i++ {
		part, ok := f.parts[uint32(i)]
		if !ok {
			return nil, false
		}
		out = append(out, part...)
	}
	return out, true
}

// writerProxy tracks one remote writer's delivery state to a local
// reader: the highest seq delivered (best-effort duplicate/reorder
// suppression) and any in-flight fragment reassembly buffers (spec §3
// "a per-peer writer-proxy").
type writerProxy struct {
	lastDelivered uint64
	assemblies    map[uint64]*fragmentAssembly // keyed by seq
}

func newWriterProxy() *writerProxy {
	return &writerProxy{assemblies: make(map[uint64]*fragmentAssembly)}
}

// readerState bundles one local reader's dispatch callback and its
// per-writer reassembly proxies.
type readerState struct {
	topic    string
	typeName string
	priority congestion.Priority
	onSample OnSample

	mu      sync.Mutex
	proxies map[rtps.Guid]*writerProxy
}

func newReaderState(topic, typeName string, priority congestion.Priority, onSample OnSample) *readerState {
	return &readerState{
		topic:    topic,
		typeName: typeName,
		priority: priority,
		onSample: onSample,
		proxies:  make(map[rtps.Guid]*writerProxy),
	}
}

func (rs *readerState) proxyFor(writerGuid rtps.Guid) *writerProxy {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	wp, ok := rs.proxies[writerGuid]
	if !ok {
		wp = newWriterProxy()
		rs.proxies[writerGuid] = wp
	}
	return wp
}

// admitData delivers a complete, unfragmented sample (spec §8 scenarios
// S1/S2's reader side).
func (rs *readerState) admitData(writerGuid rtps.Guid, seq uint64, payload []byte) {
	wp := rs.proxyFor(writerGuid)
	rs.mu.Lock()
	if seq != 0 && seq <= wp.lastDelivered {
		rs.mu.Unlock()
		return // duplicate or stale retransmit
	}
	wp.lastDelivered = seq
	rs.mu.Unlock()

	if rs.onSample != nil {
		rs.onSample(writerGuid, seq, payload)
	}
}

// admitFragment accumulates one DATA_FRAG's payload and, once the
// sample is complete, delivers it the same way admitData does (spec §8
// scenario S3 "fragmented sample reassembly").
func (rs *readerState) admitFragment(writerGuid rtps.Guid, frag *rtps.FragmentMetadata, payload []byte) {
	if frag == nil {
		return
	}
	wp := rs.proxyFor(writerGuid)

	rs.mu.Lock()
	asm, ok := wp.assemblies[frag.Seq]
	if !ok {
		asm = newFragmentAssembly(frag.TotalSampleSize, frag.FragmentSize)
		wp.assemblies[frag.Seq] = asm
	}
	asm.addFragment(frag.StartingFragmentNum, payload)
	complete, ready := asm.complete()
	if ready {
		delete(wp.assemblies, frag.Seq)
	}
	rs.mu.Unlock()

	if ready {
		rs.admitData(writerGuid, frag.Seq, complete)
	}
}

// RegisterLocalReader creates a local data reader for topic/typeName
// (spec §3 "Endpoint (Writer | Reader)"): it allocates an entity id,
// registers a stream id, and announces a SEDP subscription so matching
// remote writers' late-joiner replay and publish fan-out can find it.
// onSample is invoked (from the listener goroutine that received the
// datagram) once per fully reassembled sample.
func (p *Participant) RegisterLocalReader(topic, typeName string, priority congestion.Priority, onSample OnSample) (rtps.Guid, error) {
	key := p.nextEntityKey.Add(1)
	entity := rtps.EntityId{byte(key >> 16), byte(key >> 8), byte(key), byte(rtps.EntityKindReaderWithKey)}
	guid := rtps.Guid{Prefix: p.guidPrefix, Entity: entity}

	rs := newReaderState(topic, typeName, priority, onSample)

	p.mu.Lock()
	p.readers[guid] = rs
	p.topics[topic] = append(p.topics[topic], guid)
	p.mu.Unlock()

	if _, ok := p.streams.Resolve(topic, typeName, int(priority), 0); !ok {
		log.Warnf("participant: stream-id space exhausted registering local reader for %s/%s", topic, typeName)
	}

	data := discovery.SedpEndpointData{
		EndpointGuid: guid,
		TopicName:    topic,
		TypeName:     typeName,
		Kind:         discovery.SedpSubscription,
	}
	encoded, err := EncodeSedp(data, discovery.Locators{})
	if err != nil {
		p.rollbackLocalReader(guid)
		return rtps.Guid{}, fmt.Errorf("participant: encoding sedp announcement for %s/%s: %w", topic, typeName, err)
	}
	if _, err := p.sedp.AnnounceLocalEndpoint(data, encoded); err != nil {
		p.rollbackLocalReader(guid)
		return rtps.Guid{}, fmt.Errorf("participant: registering sedp endpoint for %s/%s: %w", topic, typeName, err)
	}

	log.Infof("participant: registered local reader %s for %s/%s", guid, topic, typeName)
	return guid, nil
}

func (p *Participant) rollbackLocalReader(guid rtps.Guid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs, ok := p.readers[guid]
	if !ok {
		return
	}
	delete(p.readers, guid)
	topic := rs.topic
	peers := p.topics[topic]
	for i, g := range peers {
		if g == guid {
			p.topics[topic] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(p.topics[topic]) == 0 {
		delete(p.topics, topic)
	}
}

// UnregisterLocalReader drops a local reader's dispatch state and topic
// registration (spec §4.3 "endpoint deletion").
func (p *Participant) UnregisterLocalReader(guid rtps.Guid) {
	p.rollbackLocalReader(guid)
}

// readersForWriter resolves which local readers should receive a
// sample from remoteWriter, via the topic SEDP discovery learned it on
// (spec §3 "TopicRegistry / demux router"). A writer whose SEDP
// publication hasn't been observed yet (or whose topic has no local
// reader) simply has no recipients.
func (p *Participant) readersForWriter(remoteWriter rtps.Guid) []*readerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.remoteWriters[remoteWriter]
	if !ok {
		return nil
	}
	guids := p.topics[data.TopicName]
	if len(guids) == 0 {
		return nil
	}
	out := make([]*readerState, 0, len(guids))
	for _, g := range guids {
		if rs, ok := p.readers[g]; ok {
			out = append(out, rs)
		}
	}
	return out
}
