package rtps

import "encoding/binary"

// SubmessageId identifies an RTPS submessage kind (spec §4.2).
type SubmessageId byte

const (
	SubPad          SubmessageId = 0x01
	SubAckNack      SubmessageId = 0x06
	SubHeartbeat    SubmessageId = 0x07
	SubGap          SubmessageId = 0x08
	SubInfoTs       SubmessageId = 0x09
	SubInfoSrc      SubmessageId = 0x0c
	SubInfoReplyIp4 SubmessageId = 0x0d
	SubInfoDst      SubmessageId = 0x0e
	SubInfoReply    SubmessageId = 0x0f
	SubNackFrag     SubmessageId = 0x12
	SubHeartbeatFrag SubmessageId = 0x13
	SubData         SubmessageId = 0x15
	SubDataFrag     SubmessageId = 0x16
)

// Vendor-specific submessage ids observed in the field (spec §4.2
// "Vendor escapes"). These are classified but carry no data-plane
// semantics in HDDS.
const (
	SubVendorA1 SubmessageId = 0x6e
	SubVendorA2 SubmessageId = 0x8f
	SubVendorA3 SubmessageId = 0x3f
	SubVendorB1 SubmessageId = 0x80
)

// submsgHeaderLen is the fixed size of a submessage header: id(1) +
// flags(1) + octets_to_next(2).
const submsgHeaderLen = 4

// FlagEndianBit is bit 0 of the flags byte: when set, the submessage body
// (including octets_to_next) is little-endian; otherwise big-endian.
const FlagEndianBit = 0x01

// SubmessageHeader is the parsed fixed-size header every submessage
// starts with.
type SubmessageHeader struct {
	ID             SubmessageId
	Flags          byte
	OctetsToNext   uint16
	LittleEndian   bool
	HeaderOffset   int // offset of this header within the packet
	BodyOffset     int // offset of the first body byte (HeaderOffset+4)
}

// littleEndianFlag reports whether the E-flag (bit 0) is set.
func littleEndianFlag(flags byte) bool { return flags&FlagEndianBit != 0 }

func readUint16(buf []byte, little bool) uint16 {
	if little {
		return binary.LittleEndian.Uint16(buf)
	}
	return binary.BigEndian.Uint16(buf)
}

func readUint32(buf []byte, little bool) uint32 {
	if little {
		return binary.LittleEndian.Uint32(buf)
	}
	return binary.BigEndian.Uint32(buf)
}

// parseSubmessageHeader reads the 4-byte header at offset off. The caller
// must ensure len(buf) >= off+4.
func parseSubmessageHeader(buf []byte, off int) SubmessageHeader {
	flags := buf[off+1]
	little := littleEndianFlag(flags)
	return SubmessageHeader{
		ID:           SubmessageId(buf[off]),
		Flags:        flags,
		OctetsToNext: readUint16(buf[off+2:off+4], little),
		LittleEndian: little,
		HeaderOffset: off,
		BodyOffset:   off + submsgHeaderLen,
	}
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int { return (n + 3) &^ 3 }

// isPlausibleSubmessageId reports whether id falls within the known or
// vendor-escape id space used by the recovery scan (spec §4.2
// "Recovery"): any of the standard ids, or a vendor escape, or a value a
// real implementation is unlikely to ever emit as noise. This check is
// intentionally permissive; the point is plausibility, not exhaustive
// validation.
func isPlausibleSubmessageId(id SubmessageId) bool {
	switch id {
	case SubPad, SubAckNack, SubHeartbeat, SubGap, SubInfoTs, SubInfoSrc,
		SubInfoReplyIp4, SubInfoDst, SubInfoReply, SubNackFrag,
		SubHeartbeatFrag, SubData, SubDataFrag,
		SubVendorA1, SubVendorA2, SubVendorA3, SubVendorB1:
		return true
	}
	return false
}
