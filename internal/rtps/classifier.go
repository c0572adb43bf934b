package rtps

// PacketKind is the overall classification produced for a datagram once
// every submessage in it has been scanned and the kind-promotion rule
// (spec §4.2) applied.
type PacketKind int

const (
	PacketKindUnknown PacketKind = iota
	PacketKindInvalid
	PacketKindData
	PacketKindDataFrag
	PacketKindHeartbeat
	PacketKindAckNack
	PacketKindNackFrag
	PacketKindHeartbeatFrag
	PacketKindGap
	PacketKindInfoDst
	PacketKindInfoSrc
	PacketKindInfoTs
	PacketKindInfoReply
	PacketKindPad
	PacketKindSPDP
	PacketKindSEDP
	PacketKindTypeLookup
)

func (k PacketKind) String() string {
	switch k {
	case PacketKindInvalid:
		return "Invalid"
	case PacketKindData:
		return "Data"
	case PacketKindDataFrag:
		return "DataFrag"
	case PacketKindHeartbeat:
		return "Heartbeat"
	case PacketKindAckNack:
		return "AckNack"
	case PacketKindNackFrag:
		return "NackFrag"
	case PacketKindHeartbeatFrag:
		return "HeartbeatFrag"
	case PacketKindGap:
		return "Gap"
	case PacketKindInfoDst:
		return "InfoDst"
	case PacketKindInfoSrc:
		return "InfoSrc"
	case PacketKindInfoTs:
		return "InfoTs"
	case PacketKindInfoReply:
		return "InfoReply"
	case PacketKindPad:
		return "Pad"
	case PacketKindSPDP:
		return "SPDP"
	case PacketKindSEDP:
		return "SEDP"
	case PacketKindTypeLookup:
		return "TypeLookup"
	default:
		return "Unknown"
	}
}

// promotionRank implements the kind-promotion priority order from spec
// §4.2: "SEDP/SPDP > Data/DataFrag > Heartbeat > others; INFO_* never
// wins." Higher wins. INFO_* kinds get rank -1 so they can never be
// selected as the packet's overall kind.
func promotionRank(k PacketKind) int {
	switch k {
	case PacketKindSPDP, PacketKindSEDP, PacketKindTypeLookup:
		return 3
	case PacketKindData, PacketKindDataFrag:
		return 2
	case PacketKindHeartbeat:
		return 1
	case PacketKindInfoDst, PacketKindInfoSrc, PacketKindInfoTs, PacketKindInfoReply:
		return -1
	default:
		return 0
	}
}

// Timestamp is the RTPS wire time representation: seconds + 2^-32
// fractional seconds, as carried by INFO_TS.
type Timestamp struct {
	Seconds  int32
	Fraction uint32
}

// Context accumulates INFO_* state across the submessage chain of one
// packet (spec §3 RtpsContext, §4.2 "Context accumulation"). It is fresh
// per incoming packet.
//
// Open question (spec §9): whether a dropped/unrecognized INFO_*
// submessage mid-packet should reset accumulated context. HDDS keeps
// whatever was accumulated so far — Context is never reset mid-scan,
// only re-created per packet by the caller.
type Context struct {
	SrcPrefix GuidPrefix
	DstPrefix *GuidPrefix
	Timestamp *Timestamp
}

// FragmentMetadata describes one DATA_FRAG submessage (spec §4.2).
type FragmentMetadata struct {
	WriterGuid            Guid
	Seq                   uint64
	StartingFragmentNum   uint32 // 1-based
	FragmentsInSubmessage uint16
	FragmentSize          uint16
	TotalSampleSize       uint32
}

// HeartbeatBody is the decoded body of a HEARTBEAT submessage (spec
// §4.4 "writer-side HEARTBEAT emission"): readerId(4) + writerId(4) +
// firstSN(8) + lastSN(8) + count(4).
type HeartbeatBody struct {
	First            uint64
	Last             uint64
	Count            uint32
	FinalFlag        bool
	LivelinessFlag   bool
}

// AckNackBody is the decoded body of an ACKNACK submessage (spec §4.4
// "ACKNACK"): readerId(4) + writerId(4) + SequenceNumberSet + count(4).
type AckNackBody struct {
	BitmapBase uint64
	Missing    []uint64
	Count      uint32
	FinalFlag  bool
}

// NackFragBody is the decoded body of a NACK_FRAG submessage (spec
// §4.4 "NACK_FRAG handling"): readerId(4) + writerId(4) + writerSN(8) +
// FragmentNumberSet + count(4).
type NackFragBody struct {
	WriterSN uint64
	Missing  []uint32
	Count    uint32
}

// Result is what Classify produces for one datagram.
type Result struct {
	Kind          PacketKind
	Header        Header
	Context       Context
	PayloadOffset int // offset of the CDR payload in the original buffer, or -1
	PayloadLen    int
	Fragment      *FragmentMetadata // non-nil only for PacketKindDataFrag
	WriterGuid    Guid              // valid for Data/DataFrag/Heartbeat/AckNack kinds
	ReaderGuid    Guid
	Seq           uint64         // valid for Data/DataFrag
	Heartbeat     *HeartbeatBody // non-nil only for PacketKindHeartbeat
	AckNack       *AckNackBody   // non-nil only for PacketKindAckNack
	NackFrag      *NackFragBody  // non-nil only for PacketKindNackFrag
}

// dataSubHeader is the subset of a DATA/DATA_FRAG submessage body HDDS
// needs: reader/writer ids, sequence number, and where the serialized
// payload starts.
type dataSubHeader struct {
	ReaderId          EntityId
	WriterId          EntityId
	Seq               uint64
	InlineQosPresent  bool
	DataPresent       bool
	KeyPresent        bool
	OctetsToInlineQos uint16
	bodyAfterFixed    int // offset just past writerSN, before inline QoS / fragment fields
}

const (
	flagInlineQos = 0x02
	flagData      = 0x04
	flagKey       = 0x08
)

// parseDataFixed parses the fixed-size prefix common to DATA and
// DATA_FRAG: extraFlags(2) + octetsToInlineQos(2) + readerId(4) +
// writerId(4) + writerSN(8).
func parseDataFixed(buf []byte, bodyOff int, little bool, flags byte) (dataSubHeader, bool) {
	const fixedLen = 2 + 2 + 4 + 4 + 8
	if bodyOff+fixedLen > len(buf) {
		return dataSubHeader{}, false
	}
	off := bodyOff + 2 // skip extraFlags
	octetsToInline := readUint16(buf[off:off+2], little)
	off += 2
	var rid, wid EntityId
	copy(rid[:], buf[off:off+4])
	off += 4
	copy(wid[:], buf[off:off+4])
	off += 4
	hi := readUint32(buf[off:off+4], little)
	lo := readUint32(buf[off+4:off+8], little)
	off += 8
	return dataSubHeader{
		ReaderId:          rid,
		WriterId:          wid,
		Seq:               uint64(hi)<<32 | uint64(lo),
		InlineQosPresent:  flags&flagInlineQos != 0,
		DataPresent:       flags&flagData != 0,
		KeyPresent:        flags&flagKey != 0,
		OctetsToInlineQos: octetsToInline,
		bodyAfterFixed:    off,
	}, true
}

// skipInlineQos walks a PID/length parameter list terminated by the
// sentinel (pid 0x0001, length 0), returning the offset just past it.
func skipInlineQos(buf []byte, off int, little bool) (int, bool) {
	for {
		if off+4 > len(buf) {
			return 0, false
		}
		pid := readUint16(buf[off:off+2], little)
		plen := readUint16(buf[off+2:off+4], little)
		off += 4
		if pid == 0x0001 {
			return off, true
		}
		off += align4(int(plen))
		if off > len(buf) {
			return 0, false
		}
	}
}

// discoveryKindFor classifies a DATA/DATA_FRAG submessage as SPDP, SEDP,
// TypeLookup, or plain user Data/DataFrag based on its writer entity id,
// honoring the "inline-QoS offset ≥ 16 or last submessage" heuristic from
// spec §4.2.
func discoveryKindFor(hdr dataSubHeader, isLast bool, baseKind PacketKind) PacketKind {
	qualifies := hdr.OctetsToInlineQos >= 16 || isLast
	if !qualifies {
		return baseKind
	}
	switch hdr.WriterId {
	case EntityIdSpdpBuiltinWriter, EntityIdSpdpBuiltinReader:
		return PacketKindSPDP
	case EntityIdSedpPubWriter, EntityIdSedpPubReader,
		EntityIdSedpSubWriter, EntityIdSedpSubReader,
		EntityIdSedpTopicWriter, EntityIdSedpTopicReader:
		return PacketKindSEDP
	case EntityIdTypeLookupRequestWriter, EntityIdTypeLookupRequestReader,
		EntityIdTypeLookupReplyWriter, EntityIdTypeLookupReplyReader:
		return PacketKindTypeLookup
	default:
		return baseKind
	}
}

// Classify scans an RTPS datagram: it validates and parses the fixed
// header, then iterates every submessage, accumulating INFO_* context and
// tracking the highest-priority kind seen (spec §4.2). It never panics on
// malformed input. A bad header, or a chain in which no submessage could
// be scanned (including an unrecoverable gap before the first one),
// yields PacketKindInvalid; an unrecoverable gap after a scanned
// submessage ends the scan and keeps the kind found so far.
func Classify(buf []byte) Result {
	hdr, err := ParseHeader(buf)
	if err != nil {
		return Result{Kind: PacketKindInvalid, PayloadOffset: -1}
	}

	ctx := Context{SrcPrefix: hdr.GuidPrefix}
	res := Result{Header: hdr, PayloadOffset: -1}
	best := PacketKindUnknown
	bestRank := promotionRank(PacketKindUnknown)
	sawAny := false

	off := HeaderLen
	for off+submsgHeaderLen <= len(buf) {
		sh := parseSubmessageHeader(buf, off)
		var bodyLen int
		isLast := sh.OctetsToNext == 0
		if isLast {
			bodyLen = len(buf) - sh.BodyOffset
		} else {
			bodyLen = int(sh.OctetsToNext)
		}
		nextOff := sh.BodyOffset + bodyLen
		if !isLast {
			nextOff = align4(nextOff)
		}

		if !isLast && (nextOff > len(buf) || nextOff <= sh.HeaderOffset) {
			recovered, ok := recoverScan(buf, sh.BodyOffset)
			if !ok {
				break
			}
			off = recovered
			continue
		}

		sawAny = true
		sub := classifySubmessage(buf, sh, isLast, &ctx)
		rank := promotionRank(sub.kind)
		if rank > bestRank {
			bestRank = rank
			best = sub.kind
			res.PayloadOffset = sub.payloadOff
			res.PayloadLen = sub.payloadLen
			res.Fragment = sub.frag
			res.WriterGuid = Guid{Prefix: ctx.SrcPrefix, Entity: sub.writerID}
			res.ReaderGuid = Guid{Prefix: ctx.SrcPrefix, Entity: sub.readerID}
			res.Seq = sub.seq
			res.Heartbeat = sub.heartbeat
			res.AckNack = sub.ackNack
			res.NackFrag = sub.nackFrag
		}

		if isLast {
			break
		}
		off = nextOff
	}

	res.Context = ctx
	if !sawAny {
		res.Kind = PacketKindInvalid
		return res
	}
	res.Kind = best
	return res
}

// subMsgResult is classifySubmessage's decoded view of one submessage.
type subMsgResult struct {
	kind               PacketKind
	frag               *FragmentMetadata
	payloadOff, payloadLen int
	writerID, readerID EntityId
	seq                uint64
	heartbeat          *HeartbeatBody
	ackNack            *AckNackBody
	nackFrag           *NackFragBody
}

func unknownSub() subMsgResult { return subMsgResult{kind: PacketKindUnknown, payloadOff: -1} }

// classifySubmessage handles one submessage: it updates ctx for INFO_DST
// / INFO_TS, and returns the submessage's native kind plus any payload
// location / fragment / control-body metadata.
func classifySubmessage(buf []byte, sh SubmessageHeader, isLast bool, ctx *Context) subMsgResult {
	bodyEnd := sh.BodyOffset + (func() int {
		if isLast {
			return len(buf) - sh.BodyOffset
		}
		return int(sh.OctetsToNext)
	}())

	switch sh.ID {
	case SubInfoDst:
		if sh.BodyOffset+GuidPrefixLen <= len(buf) {
			var p GuidPrefix
			copy(p[:], buf[sh.BodyOffset:sh.BodyOffset+GuidPrefixLen])
			ctx.DstPrefix = &p
		}
		return subMsgResult{kind: PacketKindInfoDst, payloadOff: -1}

	case SubInfoTs:
		const invalidateFlag = 0x02
		if sh.Flags&invalidateFlag != 0 {
			ctx.Timestamp = nil
			return subMsgResult{kind: PacketKindInfoTs, payloadOff: -1}
		}
		if sh.BodyOffset+8 <= len(buf) {
			secs := int32(readUint32(buf[sh.BodyOffset:sh.BodyOffset+4], sh.LittleEndian))
			frac := readUint32(buf[sh.BodyOffset+4:sh.BodyOffset+8], sh.LittleEndian)
			ctx.Timestamp = &Timestamp{Seconds: secs, Fraction: frac}
		}
		return subMsgResult{kind: PacketKindInfoTs, payloadOff: -1}

	case SubInfoSrc:
		return subMsgResult{kind: PacketKindInfoSrc, payloadOff: -1}

	case SubInfoReply, SubInfoReplyIp4:
		return subMsgResult{kind: PacketKindInfoReply, payloadOff: -1}

	case SubPad:
		return subMsgResult{kind: PacketKindPad, payloadOff: -1}

	case SubHeartbeat:
		var readerID, writerID EntityId
		const fixedLen = 4 + 4 + 8 + 8 + 4
		if sh.BodyOffset+fixedLen > len(buf) {
			return subMsgResult{kind: PacketKindHeartbeat, payloadOff: -1}
		}
		off := sh.BodyOffset
		copy(readerID[:], buf[off:off+4])
		copy(writerID[:], buf[off+4:off+8])
		off += 8
		firstHi := readUint32(buf[off:off+4], sh.LittleEndian)
		firstLo := readUint32(buf[off+4:off+8], sh.LittleEndian)
		off += 8
		lastHi := readUint32(buf[off:off+4], sh.LittleEndian)
		lastLo := readUint32(buf[off+4:off+8], sh.LittleEndian)
		off += 8
		count := readUint32(buf[off:off+4], sh.LittleEndian)
		const finalFlag, livelinessFlag = 0x02, 0x04
		hb := &HeartbeatBody{
			First:          uint64(firstHi)<<32 | uint64(firstLo),
			Last:           uint64(lastHi)<<32 | uint64(lastLo),
			Count:          count,
			FinalFlag:      sh.Flags&finalFlag != 0,
			LivelinessFlag: sh.Flags&livelinessFlag != 0,
		}
		return subMsgResult{kind: PacketKindHeartbeat, payloadOff: -1, writerID: writerID, readerID: readerID, heartbeat: hb}

	case SubAckNack:
		var readerID, writerID EntityId
		if sh.BodyOffset+8 > len(buf) {
			return subMsgResult{kind: PacketKindAckNack, payloadOff: -1}
		}
		copy(readerID[:], buf[sh.BodyOffset:sh.BodyOffset+4])
		copy(writerID[:], buf[sh.BodyOffset+4:sh.BodyOffset+8])
		base, missing, next, ok := DecodeSequenceNumberSet(buf, sh.BodyOffset+8, sh.LittleEndian)
		var an *AckNackBody
		if ok && next+4 <= len(buf) {
			const finalFlag = 0x02
			an = &AckNackBody{
				BitmapBase: base,
				Missing:    missing,
				Count:      readUint32(buf[next:next+4], sh.LittleEndian),
				FinalFlag:  sh.Flags&finalFlag != 0,
			}
		}
		return subMsgResult{kind: PacketKindAckNack, payloadOff: -1, writerID: writerID, readerID: readerID, ackNack: an}

	case SubNackFrag:
		var readerID, writerID EntityId
		if sh.BodyOffset+16 > len(buf) {
			return subMsgResult{kind: PacketKindNackFrag, payloadOff: -1}
		}
		off := sh.BodyOffset
		copy(readerID[:], buf[off:off+4])
		copy(writerID[:], buf[off+4:off+8])
		off += 8
		hi := readUint32(buf[off:off+4], sh.LittleEndian)
		lo := readUint32(buf[off+4:off+8], sh.LittleEndian)
		off += 8
		base, missing, next, ok := DecodeFragmentNumberSet(buf, off, sh.LittleEndian)
		var nf *NackFragBody
		if ok && next+4 <= len(buf) {
			_ = base
			nf = &NackFragBody{
				WriterSN: uint64(hi)<<32 | uint64(lo),
				Missing:  missing,
				Count:    readUint32(buf[next:next+4], sh.LittleEndian),
			}
		}
		return subMsgResult{kind: PacketKindNackFrag, payloadOff: -1, writerID: writerID, readerID: readerID, nackFrag: nf}

	case SubHeartbeatFrag:
		var readerID, writerID EntityId
		if sh.BodyOffset+8 <= len(buf) {
			copy(readerID[:], buf[sh.BodyOffset:sh.BodyOffset+4])
			copy(writerID[:], buf[sh.BodyOffset+4:sh.BodyOffset+8])
		}
		return subMsgResult{kind: PacketKindHeartbeatFrag, payloadOff: -1, writerID: writerID, readerID: readerID}

	case SubGap:
		return subMsgResult{kind: PacketKindGap, payloadOff: -1}

	case SubData:
		dh, ok := parseDataFixed(buf, sh.BodyOffset, sh.LittleEndian, sh.Flags)
		if !ok {
			return unknownSub()
		}
		cursor := dh.bodyAfterFixed
		if dh.InlineQosPresent {
			next, ok := skipInlineQos(buf, cursor, sh.LittleEndian)
			if !ok {
				return subMsgResult{kind: PacketKindData, payloadOff: -1, writerID: dh.WriterId, readerID: dh.ReaderId, seq: dh.Seq}
			}
			cursor = next
		}
		payloadOff, payloadLen := -1, 0
		if dh.DataPresent || dh.KeyPresent {
			// 4-byte encapsulation header precedes the CDR payload.
			if cursor+4 <= bodyEnd {
				payloadOff = cursor + 4
				payloadLen = bodyEnd - payloadOff
			}
		}
		baseKind := discoveryKindFor(dh, isLast, PacketKindData)
		return subMsgResult{kind: baseKind, payloadOff: payloadOff, payloadLen: payloadLen, writerID: dh.WriterId, readerID: dh.ReaderId, seq: dh.Seq}

	case SubDataFrag:
		dh, ok := parseDataFixed(buf, sh.BodyOffset, sh.LittleEndian, sh.Flags)
		if !ok {
			return unknownSub()
		}
		cursor := dh.bodyAfterFixed
		const fragFixedLen = 4 + 2 + 2 + 4
		if cursor+fragFixedLen > len(buf) {
			return unknownSub()
		}
		startingFrag := readUint32(buf[cursor:cursor+4], sh.LittleEndian)
		fragsInSub := readUint16(buf[cursor+4:cursor+6], sh.LittleEndian)
		fragSize := readUint16(buf[cursor+6:cursor+8], sh.LittleEndian)
		sampleSize := readUint32(buf[cursor+8:cursor+12], sh.LittleEndian)
		cursor += fragFixedLen
		if dh.InlineQosPresent {
			next, ok := skipInlineQos(buf, cursor, sh.LittleEndian)
			if ok {
				cursor = next
			}
		}
		payloadOff, payloadLen := -1, 0
		if cursor < bodyEnd {
			payloadOff = cursor
			payloadLen = bodyEnd - payloadOff
		}
		fm := &FragmentMetadata{
			WriterGuid:            Guid{Prefix: ctx.SrcPrefix, Entity: dh.WriterId},
			Seq:                   dh.Seq,
			StartingFragmentNum:   startingFrag,
			FragmentsInSubmessage: fragsInSub,
			FragmentSize:          fragSize,
			TotalSampleSize:       sampleSize,
		}
		baseKind := discoveryKindFor(dh, isLast, PacketKindDataFrag)
		return subMsgResult{kind: baseKind, frag: fm, payloadOff: payloadOff, payloadLen: payloadLen, writerID: dh.WriterId, readerID: dh.ReaderId, seq: dh.Seq}

	default:
		return unknownSub()
	}
}

// recoverScan implements the recovery heuristic from spec §4.2: when
// octets_to_next points past the buffer (or otherwise makes no sense),
// scan forward in 4-byte increments for a submessage header that looks
// plausible and whose own length is internally consistent.
func recoverScan(buf []byte, from int) (int, bool) {
	for off := align4(from); off+submsgHeaderLen <= len(buf); off += 4 {
		id := SubmessageId(buf[off])
		flags := buf[off+1]
		if !isPlausibleSubmessageId(id) || flags >= 0x20 {
			continue
		}
		little := littleEndianFlag(flags)
		length := readUint16(buf[off+2:off+4], little)
		next := off + submsgHeaderLen + int(length)
		if length == 0 || next <= len(buf) {
			return off, true
		}
	}
	return 0, false
}
