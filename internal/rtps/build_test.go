package rtps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testGuidPrefix(seed byte) GuidPrefix {
	var p GuidPrefix
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestBuildDataMessageRoundTripsThroughClassify(t *testing.T) {
	prefix := testGuidPrefix(1)
	writerId := EntityIdSpdpBuiltinWriter
	readerId := EntityIdSpdpBuiltinReader
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}

	msg := BuildDataMessage(VendorHdds, prefix, readerId, writerId, 7, payload)

	res := Classify(msg)
	require.Equal(t, PacketKindSPDP, res.Kind)
	require.Equal(t, prefix, res.Header.GuidPrefix)
	require.Equal(t, Guid{Prefix: prefix, Entity: writerId}, res.WriterGuid)
	require.Equal(t, Guid{Prefix: prefix, Entity: readerId}, res.ReaderGuid)
	require.Equal(t, uint64(7), res.Seq)
	require.GreaterOrEqual(t, res.PayloadOffset, 0)
	require.Equal(t, payload, msg[res.PayloadOffset:res.PayloadOffset+res.PayloadLen])
}

func TestBuildDataMessageUserDataClassifiesAsData(t *testing.T) {
	prefix := testGuidPrefix(2)
	var writerId EntityId
	writerId[2] = 5
	writerId[3] = byte(EntityKindWriterWithKey)

	msg := BuildDataMessage(VendorHdds, prefix, EntityIdUnknown, writerId, 3, []byte("hello"))
	res := Classify(msg)
	require.Equal(t, PacketKindData, res.Kind)
	require.Equal(t, writerId, res.WriterGuid.Entity)
	require.Equal(t, uint64(3), res.Seq)
	require.Equal(t, []byte("hello"), msg[res.PayloadOffset:res.PayloadOffset+res.PayloadLen])
}

func TestBuildDataFragMessageRoundTripsAndPrefixesWriterGuid(t *testing.T) {
	prefix := testGuidPrefix(3)
	var writerId EntityId
	writerId[2] = 9
	writerId[3] = byte(EntityKindWriterWithKey)
	frag := []byte{1, 2, 3, 4}

	msg := BuildDataFragMessage(VendorHdds, prefix, EntityIdUnknown, writerId, 11, 2, 4, 4, 12, frag)

	res := Classify(msg)
	require.Equal(t, PacketKindDataFrag, res.Kind)
	require.NotNil(t, res.Fragment)
	require.Equal(t, prefix, res.Fragment.WriterGuid.Prefix)
	require.Equal(t, writerId, res.Fragment.WriterGuid.Entity)
	require.Equal(t, prefix, res.WriterGuid.Prefix)
	require.Equal(t, writerId, res.WriterGuid.Entity)
	require.Equal(t, uint32(2), res.Fragment.StartingFragmentNum)
	require.Equal(t, uint32(12), res.Fragment.TotalSampleSize)
	require.Equal(t, frag, msg[res.PayloadOffset:res.PayloadOffset+res.PayloadLen])
}

func TestBuildHeartbeatMessageRoundTrips(t *testing.T) {
	prefix := testGuidPrefix(4)
	var writerId, readerId EntityId
	writerId[3] = byte(EntityKindWriterWithKey)
	readerId[3] = byte(EntityKindReaderWithKey)

	msg := BuildHeartbeatMessage(VendorHdds, prefix, readerId, writerId, 1, 42, 5, true, false)
	res := Classify(msg)
	require.Equal(t, PacketKindHeartbeat, res.Kind)
	require.NotNil(t, res.Heartbeat)
	require.Equal(t, uint64(1), res.Heartbeat.First)
	require.Equal(t, uint64(42), res.Heartbeat.Last)
	require.Equal(t, uint32(5), res.Heartbeat.Count)
	require.True(t, res.Heartbeat.FinalFlag)
	require.False(t, res.Heartbeat.LivelinessFlag)
	require.Equal(t, writerId, res.WriterGuid.Entity)
	require.Equal(t, readerId, res.ReaderGuid.Entity)
}

func TestBuildAckNackMessageRoundTripsMissingSeqs(t *testing.T) {
	prefix := testGuidPrefix(5)
	var writerId, readerId EntityId
	writerId[3] = byte(EntityKindWriterWithKey)
	readerId[3] = byte(EntityKindReaderWithKey)

	missing := []uint64{10, 12, 13}
	msg := BuildAckNackMessage(VendorHdds, prefix, readerId, writerId, 10, missing, 3, false)
	res := Classify(msg)
	require.Equal(t, PacketKindAckNack, res.Kind)
	require.NotNil(t, res.AckNack)
	require.Equal(t, uint64(10), res.AckNack.BitmapBase)
	require.Equal(t, missing, res.AckNack.Missing)
	require.Equal(t, uint32(3), res.AckNack.Count)
	require.False(t, res.AckNack.FinalFlag)
}

func TestBuildAckNackMessagePositiveAckHasNoMissing(t *testing.T) {
	prefix := testGuidPrefix(6)
	var writerId, readerId EntityId
	writerId[3] = byte(EntityKindWriterWithKey)

	msg := BuildAckNackMessage(VendorHdds, prefix, readerId, writerId, 5, nil, 1, true)
	res := Classify(msg)
	require.Equal(t, PacketKindAckNack, res.Kind)
	require.NotNil(t, res.AckNack)
	require.Empty(t, res.AckNack.Missing)
	require.True(t, res.AckNack.FinalFlag)
}

func TestBuildNackFragMessageRoundTrips(t *testing.T) {
	prefix := testGuidPrefix(7)
	var writerId, readerId EntityId
	writerId[3] = byte(EntityKindWriterWithKey)

	missing := []uint32{2, 3, 5}
	msg := BuildNackFragMessage(VendorHdds, prefix, readerId, writerId, 99, missing, 2)
	res := Classify(msg)
	require.Equal(t, PacketKindNackFrag, res.Kind)
	require.NotNil(t, res.NackFrag)
	require.Equal(t, uint64(99), res.NackFrag.WriterSN)
	require.Equal(t, missing, res.NackFrag.Missing)
	require.Equal(t, uint32(2), res.NackFrag.Count)
}

func TestSequenceNumberSetRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	missing := []uint64{100, 102, 103, 140}
	next := EncodeSequenceNumberSet(buf, 0, true, 100, missing)

	base, decoded, decNext, ok := DecodeSequenceNumberSet(buf, 0, true)
	require.True(t, ok)
	require.Equal(t, next, decNext)
	require.Equal(t, uint64(100), base)
	require.Equal(t, missing, decoded)
}

func TestFragmentNumberSetRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	missing := []uint32{1, 2, 4, 33}
	next := EncodeFragmentNumberSet(buf, 0, true, 1, missing)

	base, decoded, decNext, ok := DecodeFragmentNumberSet(buf, 0, true)
	require.True(t, ok)
	require.Equal(t, next, decNext)
	require.Equal(t, uint32(1), base)
	require.Equal(t, missing, decoded)
}
