package rtps

import "encoding/binary"

// Outbound messages are always built as a single, self-contained
// submessage marked "last" (octets_to_next = 0) — valid per the same
// isLast rule Classify uses to recover truncated length fields, and it
// sidesteps multi-submessage packing/length patching HDDS never needs
// since every Build* call here emits exactly one control or data
// submessage per datagram.
const (
	rtpsVersionMajor = 2
	rtpsVersionMinor = 3
)

// encapsulationPlCdrLE is the 4-byte representation-identifier header
// that precedes the CDR payload in a DATA/DATA_FRAG submessage body
// (spec §4.2 "payload starts after a 4-byte encapsulation header").
// Classify only skips these bytes without interpreting them, so the
// exact scheme id doesn't matter to HDDS's own reader, only that both
// ends agree on 4 bytes of header before the payload.
var encapsulationPlCdrLE = [4]byte{0x00, 0x03, 0x00, 0x00}

func writeUint16(buf []byte, little bool, v uint16) {
	if little {
		binary.LittleEndian.PutUint16(buf, v)
		return
	}
	binary.BigEndian.PutUint16(buf, v)
}

func writeUint32(buf []byte, little bool, v uint32) {
	if little {
		binary.LittleEndian.PutUint32(buf, v)
		return
	}
	binary.BigEndian.PutUint32(buf, v)
}

// BuildHeader writes the 20-byte fixed RTPS message header ParseHeader
// expects.
func BuildHeader(vendor VendorId, prefix GuidPrefix) []byte {
	buf := make([]byte, HeaderLen)
	copy(buf[0:4], rtpsMagic[:])
	buf[4] = rtpsVersionMajor
	buf[5] = rtpsVersionMinor
	binary.BigEndian.PutUint16(buf[6:8], uint16(vendor))
	copy(buf[8:20], prefix[:])
	return buf
}

// appendSubmessageHeader appends a 4-byte submessage header with
// octets_to_next left at 0 (this submessage is always the last, and
// only, one in the datagram).
func appendSubmessageHeader(buf []byte, id SubmessageId, flags byte) []byte {
	return append(buf, byte(id), flags, 0, 0)
}

// BuildDataMessage frames payload (already-CDR-encoded bytes) as a
// single-submessage RTPS message carrying one DATA submessage (spec
// §4.2/§6 "outbound Data submessage"). Used for SPDP/SEDP announcements
// and ordinary user-data writer samples.
func BuildDataMessage(vendor VendorId, prefix GuidPrefix, readerId, writerId EntityId, seq uint64, payload []byte) []byte {
	const little = true
	var flags byte = FlagEndianBit | flagData

	buf := BuildHeader(vendor, prefix)
	buf = appendSubmessageHeader(buf, SubData, flags)

	body := make([]byte, 0, 20+4+len(payload))
	body = appendUint16(body, little, 0) // extraFlags
	body = appendUint16(body, little, 16) // octetsToInlineQos: readerId+writerId+writerSN, no inline QoS
	body = append(body, readerId[:]...)
	body = append(body, writerId[:]...)
	body = appendUint32(body, little, uint32(seq>>32))
	body = appendUint32(body, little, uint32(seq))
	body = append(body, encapsulationPlCdrLE[:]...)
	body = append(body, payload...)

	buf = append(buf, body...)
	return buf
}

// BuildDataFragMessage frames one fragment of a larger sample as a
// single-submessage DATA_FRAG message (spec §4.2 "fragmented sample
// transmission"). fragNum is 1-based; fragsInSubmessage is always 1 in
// HDDS's own encoder — one fragment per submessage keeps reassembly at
// the reader a matter of keying by fragNum alone.
func BuildDataFragMessage(vendor VendorId, prefix GuidPrefix, readerId, writerId EntityId, seq uint64, fragNum uint32, fragSize uint16, fragmentLen uint16, sampleSize uint32, fragment []byte) []byte {
	const little = true
	var flags byte = FlagEndianBit | flagData

	buf := BuildHeader(vendor, prefix)
	buf = appendSubmessageHeader(buf, SubDataFrag, flags)

	body := make([]byte, 0, 28+len(fragment))
	body = appendUint16(body, little, 0)
	body = appendUint16(body, little, 16)
	body = append(body, readerId[:]...)
	body = append(body, writerId[:]...)
	body = appendUint32(body, little, uint32(seq>>32))
	body = appendUint32(body, little, uint32(seq))
	body = appendUint32(body, little, fragNum)
	body = appendUint16(body, little, 1) // fragmentsInSubmessage
	body = appendUint16(body, little, fragSize)
	body = appendUint32(body, little, sampleSize)
	body = append(body, fragment...)
	_ = fragmentLen

	buf = append(buf, body...)
	return buf
}

// BuildHeartbeatMessage frames a HEARTBEAT submessage announcing the
// [first,last] sequence-number range available in a writer's history
// cache (spec §4.4 "writer-side HEARTBEAT emission").
func BuildHeartbeatMessage(vendor VendorId, prefix GuidPrefix, readerId, writerId EntityId, first, last uint64, count uint32, final, liveliness bool) []byte {
	const little = true
	var flags byte = FlagEndianBit
	const finalFlag, livelinessFlag = 0x02, 0x04
	if final {
		flags |= finalFlag
	}
	if liveliness {
		flags |= livelinessFlag
	}

	buf := BuildHeader(vendor, prefix)
	buf = appendSubmessageHeader(buf, SubHeartbeat, flags)

	body := make([]byte, 0, 28)
	body = append(body, readerId[:]...)
	body = append(body, writerId[:]...)
	body = appendUint32(body, little, uint32(first>>32))
	body = appendUint32(body, little, uint32(first))
	body = appendUint32(body, little, uint32(last>>32))
	body = appendUint32(body, little, uint32(last))
	body = appendUint32(body, little, count)

	buf = append(buf, body...)
	return buf
}

// BuildAckNackMessage frames an ACKNACK submessage: a positive ack when
// missing is empty, or a NACK naming the seqs still wanted starting at
// bitmapBase (spec §4.4 "reader-side HEARTBEAT response").
func BuildAckNackMessage(vendor VendorId, prefix GuidPrefix, readerId, writerId EntityId, bitmapBase uint64, missing []uint64, count uint32, final bool) []byte {
	const little = true
	var flags byte = FlagEndianBit
	const finalFlag = 0x02
	if final {
		flags |= finalFlag
	}

	buf := BuildHeader(vendor, prefix)
	buf = appendSubmessageHeader(buf, SubAckNack, flags)

	// Worst case: 12-byte SequenceNumberSet prefix + maxBitmapBits/32 words.
	body := make([]byte, 8, 8+12+4*(maxBitmapBits/32)+4)
	copy(body[0:4], readerId[:])
	copy(body[4:8], writerId[:])
	body = body[:cap(body)]
	next := EncodeSequenceNumberSet(body, 8, little, bitmapBase, missing)
	body = body[:next+4]
	writeUint32(body[next:next+4], little, count)

	buf = append(buf, body...)
	return buf
}

// BuildNackFragMessage frames a NACK_FRAG submessage requesting
// retransmission of specific fragments of seq (spec §4.4 "NACK_FRAG
// handling").
func BuildNackFragMessage(vendor VendorId, prefix GuidPrefix, readerId, writerId EntityId, seq uint64, missing []uint32, count uint32) []byte {
	const little = true
	flags := byte(FlagEndianBit)

	buf := BuildHeader(vendor, prefix)
	buf = appendSubmessageHeader(buf, SubNackFrag, flags)

	// Worst case: 8-byte FragmentNumberSet prefix + maxBitmapBits/32 words.
	body := make([]byte, 16, 16+8+4*(maxBitmapBits/32)+4)
	copy(body[0:4], readerId[:])
	copy(body[4:8], writerId[:])
	writeUint32(body[8:12], little, uint32(seq>>32))
	writeUint32(body[12:16], little, uint32(seq))
	body = body[:cap(body)]
	var base uint32
	if len(missing) > 0 {
		base = missing[0]
	}
	next := EncodeFragmentNumberSet(body, 16, little, base, missing)
	body = body[:next+4]
	writeUint32(body[next:next+4], little, count)

	buf = append(buf, body...)
	return buf
}

func appendUint16(buf []byte, little bool, v uint16) []byte {
	var tmp [2]byte
	writeUint16(tmp[:], little, v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, little bool, v uint32) []byte {
	var tmp [4]byte
	writeUint32(tmp[:], little, v)
	return append(buf, tmp[:]...)
}
