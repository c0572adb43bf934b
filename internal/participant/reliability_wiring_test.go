package participant

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds-sub002/internal/config"
	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/history"
	"github.com/hdds-team/hdds-sub002/internal/reliability"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/internal/transport"
)

// capturedSend records one fakeTransport.SendToEndpoint call so tests
// can assert on what participant code actually put on the wire.
type capturedSend struct {
	addr    string
	payload []byte
}

type fakeSocket struct{}

func (fakeSocket) LocalAddr() net.Addr { return &net.UDPAddr{} }

// fakeTransport stands in for transport.UdpTransport in tests that only
// need to observe outbound sends, not a real socket.
type fakeTransport struct {
	sends []capturedSend
}

func (f *fakeTransport) SendToEndpoint(ep transport.Endpoint, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sends = append(f.sends, capturedSend{addr: ep.Addr, payload: cp})
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context, sock transport.Socket) (transport.Datagram, error) {
	<-ctx.Done()
	return transport.Datagram{}, ctx.Err()
}

func (f *fakeTransport) MetatrafficUnicastSocket() transport.Socket { return fakeSocket{} }
func (f *fakeTransport) UserDataUnicastSocket() transport.Socket    { return fakeSocket{} }
func (f *fakeTransport) Close() error                               { return nil }

func newTestParticipantWithFakeTransport(t *testing.T) (*Participant, *fakeTransport) {
	t.Helper()
	p, err := New(config.Default())
	require.NoError(t, err)
	tr := &fakeTransport{}
	p.tr = tr
	return p, tr
}

func peerPrefix(seed byte) rtps.GuidPrefix {
	var prefix rtps.GuidPrefix
	for i := range prefix {
		prefix[i] = seed + byte(i)
	}
	return prefix
}

func TestHandleHeartbeatBuiltinRequestsFullRangeAckNack(t *testing.T) {
	p, tr := newTestParticipantWithFakeTransport(t)
	peer := peerPrefix(1)
	p.db.Upsert(peer, discovery.Locators{MetatrafficUnicast: []string{"10.0.0.1:7411"}}, rtps.VendorHdds, time.Minute, time.Now())

	hb := reliability.Heartbeat{
		WriterGuid: rtps.Guid{Prefix: peer, Entity: rtps.EntityIdSedpPubWriter},
		First:      1,
		Last:       3,
		Count:      1,
	}
	p.handleHeartbeat(peer, hb)

	require.Len(t, tr.sends, 1)
	require.Equal(t, "10.0.0.1:7411", tr.sends[0].addr)

	res := rtps.Classify(tr.sends[0].payload)
	require.Equal(t, rtps.PacketKindAckNack, res.Kind)
	require.NotNil(t, res.AckNack)
	require.Equal(t, uint64(1), res.AckNack.BitmapBase)
	require.Equal(t, []uint64{1, 2, 3}, res.AckNack.Missing)
	require.True(t, res.AckNack.FinalFlag)
}

func TestHandleHeartbeatUserDataSendsRateLimitedPositiveAck(t *testing.T) {
	p, tr := newTestParticipantWithFakeTransport(t)
	peer := peerPrefix(2)
	p.db.Upsert(peer, discovery.Locators{UserDataUnicast: []string{"10.0.0.2:7511"}}, rtps.VendorHdds, time.Minute, time.Now())

	var writerEntity rtps.EntityId
	writerEntity[3] = byte(rtps.EntityKindWriterWithKey)
	hb := reliability.Heartbeat{WriterGuid: rtps.Guid{Prefix: peer, Entity: writerEntity}, First: 1, Last: 5, Count: 1}

	p.handleHeartbeat(peer, hb)
	require.Len(t, tr.sends, 1)

	res := rtps.Classify(tr.sends[0].payload)
	require.Equal(t, rtps.PacketKindAckNack, res.Kind)
	require.Empty(t, res.AckNack.Missing)

	// Rate-limited: a second heartbeat immediately after must not send again.
	p.handleHeartbeat(peer, hb)
	require.Len(t, tr.sends, 1)
}

func TestHandleAckNackEnqueuesRepairForMissingSeqs(t *testing.T) {
	p, _ := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)

	peer := peerPrefix(3)
	an := reliability.AckNack{WriterId: guid.Entity, BitmapBase: 1, MissingSeqs: []uint64{1, 2}}
	p.handleAckNack(peer, an)

	ws, _ := p.writerByEntity(guid.Entity)
	require.NotNil(t, ws)
	require.Equal(t, 2, ws.repair.Len())
}

func TestHandleAckNackPositiveAdvancesCursorWithoutRepair(t *testing.T) {
	p, _ := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)

	peer := peerPrefix(4)
	an := reliability.AckNack{WriterId: guid.Entity, BitmapBase: 10}
	p.handleAckNack(peer, an)

	ws, _ := p.writerByEntity(guid.Entity)
	require.Equal(t, 0, ws.repair.Len())
	require.Equal(t, uint64(9), ws.ackCursors[peer].AckedUpTo)
}

func TestHandleNackFragEnqueuesFragmentRepair(t *testing.T) {
	p, _ := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)

	peer := peerPrefix(5)
	p.handleNackFrag(peer, reliability.NackFrag{WriterId: guid.Entity, Seq: 7, MissingFragNums: []uint32{1, 2}})

	ws, _ := p.writerByEntity(guid.Entity)
	require.Equal(t, 1, ws.repair.Len())
}

func TestDrainRepairsRetransmitsWholeSample(t *testing.T) {
	p, tr := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)

	seq, err := p.Publish(guid, []byte("payload-1"), 0)
	require.NoError(t, err)

	peer := peerPrefix(6)
	p.db.Upsert(peer, discovery.Locators{UserDataUnicast: []string{"10.0.0.6:7611"}}, rtps.VendorHdds, time.Minute, time.Now())

	ws, _ := p.writerByEntity(guid.Entity)
	ws.repair.Enqueue(peer, seq, time.Now())

	// The coalesce window delays the first retransmit.
	p.drainRepairs(time.Now())
	require.Empty(t, tr.sends)

	p.drainRepairs(time.Now().Add(20 * time.Millisecond))
	require.Len(t, tr.sends, 1)

	res := rtps.Classify(tr.sends[0].payload)
	require.Equal(t, rtps.PacketKindData, res.Kind)
	require.Equal(t, seq, res.Seq)
	require.Equal(t, []byte("payload-1"), tr.sends[0].payload[res.PayloadOffset:res.PayloadOffset+res.PayloadLen])
}

func TestDrainPacersPublishesToDiscoveredReaders(t *testing.T) {
	p, tr := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P0)
	require.NoError(t, err)

	readerGuid := rtps.Guid{Prefix: peerPrefix(7), Entity: rtps.EntityId{0, 0, 1, byte(rtps.EntityKindReaderWithKey)}}
	p.remoteReaders[readerGuid] = discovery.SedpEndpointData{
		EndpointGuid: readerGuid,
		TopicName:    "T",
		Kind:         discovery.SedpSubscription,
	}
	p.db.Upsert(readerGuid.Prefix, discovery.Locators{UserDataUnicast: []string{"10.0.0.7:7711"}}, rtps.VendorHdds, time.Minute, time.Now())

	seq, err := p.Publish(guid, []byte("payload-2"), 0)
	require.NoError(t, err)

	p.drainPacers(time.Now())

	require.Len(t, tr.sends, 1)
	require.Equal(t, "10.0.0.7:7711", tr.sends[0].addr)
	res := rtps.Classify(tr.sends[0].payload)
	require.Equal(t, rtps.PacketKindData, res.Kind)
	require.Equal(t, seq, res.Seq)
}

func TestEmitHeartbeatsAnnouncesWriterRangeToReaders(t *testing.T) {
	p, tr := newTestParticipantWithFakeTransport(t)
	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P0)
	require.NoError(t, err)

	readerGuid := rtps.Guid{Prefix: peerPrefix(8), Entity: rtps.EntityId{0, 0, 1, byte(rtps.EntityKindReaderWithKey)}}
	p.remoteReaders[readerGuid] = discovery.SedpEndpointData{EndpointGuid: readerGuid, TopicName: "T", Kind: discovery.SedpSubscription}
	p.db.Upsert(readerGuid.Prefix, discovery.Locators{UserDataUnicast: []string{"10.0.0.8:7811"}}, rtps.VendorHdds, time.Minute, time.Now())

	_, err = p.Publish(guid, []byte("payload-3"), 0)
	require.NoError(t, err)

	p.emitHeartbeats(time.Now())

	require.Len(t, tr.sends, 1)
	res := rtps.Classify(tr.sends[0].payload)
	require.Equal(t, rtps.PacketKindHeartbeat, res.Kind)
	require.Equal(t, uint64(1), res.Heartbeat.First)
	require.Equal(t, uint64(1), res.Heartbeat.Last)
}
