package rtps

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func appendSubHeader(buf []byte, id SubmessageId, flags byte, octetsToNext uint16) []byte {
	buf = append(buf, byte(id), flags, 0, 0)
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], octetsToNext)
	return buf
}

func newHeader(vendor VendorId, prefix GuidPrefix) []byte {
	buf := make([]byte, 0, HeaderLen)
	buf = append(buf, 'R', 'T', 'P', 'S', 2, 3)
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, uint16(vendor))
	buf = append(buf, v...)
	buf = append(buf, prefix[:]...)
	return buf
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	_, err := ParseHeader([]byte("XXXX0000000000000000"))
	require.Error(t, err)
}

func TestClassifyInfoTsThenHeartbeat(t *testing.T) {
	var prefix GuidPrefix
	for i := range prefix {
		prefix[i] = byte(i + 1)
	}
	buf := newHeader(VendorHdds, prefix)

	// INFO_TS: seconds=100, fraction=0
	buf = appendSubHeader(buf, SubInfoTs, 0x01, 8)
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint32(ts[0:4], 100)
	binary.LittleEndian.PutUint32(ts[4:8], 0)
	buf = append(buf, ts...)

	// HEARTBEAT (last submessage): readerId + writerId + firstSN(8) + lastSN(8) + count(4)
	buf = appendSubHeader(buf, SubHeartbeat, 0x01, 0)
	var readerID, writerID EntityId
	writerID[3] = byte(EntityKindWriterWithKey)
	body := make([]byte, 28)
	copy(body[0:4], readerID[:])
	copy(body[4:8], writerID[:])
	buf = append(buf, body...)

	res := Classify(buf)
	require.Equal(t, PacketKindHeartbeat, res.Kind)
	require.NotNil(t, res.Context.Timestamp)
	require.Equal(t, int32(100), res.Context.Timestamp.Seconds)
	require.Equal(t, writerID, res.WriterGuid.Entity)
}

func TestClassifyTruncatedHeaderIsInvalid(t *testing.T) {
	res := Classify([]byte("short"))
	require.Equal(t, PacketKindInvalid, res.Kind)
}

func TestClassifyNoSubmessagesIsInvalid(t *testing.T) {
	var prefix GuidPrefix
	buf := newHeader(VendorHdds, prefix)
	res := Classify(buf)
	require.Equal(t, PacketKindInvalid, res.Kind)
}

func TestClassifyRecoversFromBrokenOctetsToNext(t *testing.T) {
	var prefix GuidPrefix
	buf := newHeader(VendorHdds, prefix)

	// A broken ACKNACK claiming a length that overruns the buffer.
	buf = appendSubHeader(buf, SubAckNack, 0x01, 0xFFFF)
	buf = append(buf, make([]byte, 8)...) // not enough bytes to honor 0xFFFF

	// A valid trailing HEARTBEAT right after, 4-byte aligned.
	recoveryPoint := len(buf)
	buf = appendSubHeader(buf, SubHeartbeat, 0x01, 0)
	var readerID, writerID EntityId
	writerID[3] = byte(EntityKindWriterWithKey)
	body := make([]byte, 28)
	copy(body[4:8], writerID[:])
	buf = append(buf, body...)

	res := Classify(buf)
	require.Equal(t, PacketKindHeartbeat, res.Kind)
	require.True(t, recoveryPoint%4 == 0)
}

func TestClassifyInfoDstSetsContext(t *testing.T) {
	var prefix, dst GuidPrefix
	for i := range dst {
		dst[i] = byte(0xA0 + i)
	}
	buf := newHeader(VendorHdds, prefix)
	buf = appendSubHeader(buf, SubInfoDst, 0x01, uint16(GuidPrefixLen))
	buf = append(buf, dst[:]...)
	buf = appendSubHeader(buf, SubPad, 0x01, 0)

	res := Classify(buf)
	require.NotNil(t, res.Context.DstPrefix)
	require.Equal(t, dst, *res.Context.DstPrefix)
}
