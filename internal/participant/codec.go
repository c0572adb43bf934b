package participant

import (
	"encoding/hex"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/cdr"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// spdpDescriptor and sedpDescriptor give the dynamic cdr encoder/decoder
// (spec §4.1) a concrete schema for the two built-in discovery payloads,
// mirroring the approach original_source/dds/discovery uses fixed C
// structs for the same announcements.
var spdpDescriptor = &cdr.Descriptor{
	Kind: cdr.KindStruct,
	Fields: []cdr.Field{
		{Name: "guid_prefix", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "entity_id", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "lease_duration_ns", Type: &cdr.Descriptor{Kind: cdr.KindI64}},
		{Name: "metatraffic", Type: &cdr.Descriptor{Kind: cdr.KindSequence, Elem: &cdr.Descriptor{Kind: cdr.KindString}}},
		{Name: "user_data", Type: &cdr.Descriptor{Kind: cdr.KindSequence, Elem: &cdr.Descriptor{Kind: cdr.KindString}}},
		{Name: "vendor", Type: &cdr.Descriptor{Kind: cdr.KindU16}},
		{Name: "protocol_major", Type: &cdr.Descriptor{Kind: cdr.KindU8}},
		{Name: "protocol_minor", Type: &cdr.Descriptor{Kind: cdr.KindU8}},
		{Name: "builtin_endpoint_set", Type: &cdr.Descriptor{Kind: cdr.KindU32}},
		{Name: "identity_token", Type: &cdr.Descriptor{Kind: cdr.KindSequence, Elem: &cdr.Descriptor{Kind: cdr.KindU8}}},
	},
}

// spdpSeqs/sedpSeqs allocate the RTPS-frame-level writer sequence
// number stamped on outbound SPDP/SEDP Data submessages. This is a
// distinct sequence space from discovery.SedpRegistry's own
// re-announcement counter (internal/discovery/sedp.go) — that
// one governs late-joiner cache replay semantics, this one is purely
// the wire-framing detail HEARTBEAT/ACKNACK bookkeeping would use if
// SPDP/SEDP were ever run in reliable mode, which HDDS's dialect rules
// do not require.
var (
	spdpSeqs = discovery.NewSequenceAllocator()
	sedpSeqs = discovery.NewSequenceAllocator()
)

var sedpDescriptor = &cdr.Descriptor{
	Kind: cdr.KindStruct,
	Fields: []cdr.Field{
		{Name: "guid_prefix", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "entity_id", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "topic_name", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "type_name", Type: &cdr.Descriptor{Kind: cdr.KindString}},
		{Name: "metatraffic", Type: &cdr.Descriptor{Kind: cdr.KindSequence, Elem: &cdr.Descriptor{Kind: cdr.KindString}}},
		{Name: "user_data", Type: &cdr.Descriptor{Kind: cdr.KindSequence, Elem: &cdr.Descriptor{Kind: cdr.KindString}}},
		{Name: "kind", Type: &cdr.Descriptor{Kind: cdr.KindI32}},
	},
}

func stringSeq(ss []string) *cdr.Value {
	elems := make([]*cdr.Value, len(ss))
	for i, s := range ss {
		elems[i] = cdr.NewString(s)
	}
	return cdr.NewSequence(elems)
}

func decodeStringSeq(v *cdr.Value) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.Seq))
	for i, e := range v.Seq {
		out[i] = e.Str
	}
	return out
}

// EncodeSpdp serializes ann into CDR2 bytes using spdpDescriptor and
// returns them framed as a complete RTPS message with one DATA
// submessage from the SPDP builtin writer.
func EncodeSpdp(ann discovery.SpdpAnnouncement) ([]byte, error) {
	idToken := make([]*cdr.Value, len(ann.IdentityToken))
	for i, b := range ann.IdentityToken {
		idToken[i] = cdr.NewU8(b)
	}
	v := cdr.NewStruct(nil, map[string]*cdr.Value{
		"guid_prefix":          cdr.NewString(hex.EncodeToString(ann.ParticipantGuid.Prefix[:])),
		"entity_id":            cdr.NewString(hex.EncodeToString(ann.ParticipantGuid.Entity[:])),
		"lease_duration_ns":    cdr.NewI64(int64(ann.LeaseDuration)),
		"metatraffic":          stringSeq(ann.Metatraffic),
		"user_data":            stringSeq(ann.UserData),
		"vendor":               cdr.NewU16(uint16(ann.Vendor)),
		"protocol_major":       cdr.NewU8(ann.ProtocolVersion[0]),
		"protocol_minor":       cdr.NewU8(ann.ProtocolVersion[1]),
		"builtin_endpoint_set": cdr.NewU32(ann.BuiltinEndpointSet),
		"identity_token":       cdr.NewSequence(idToken),
	})
	buf := make([]byte, 1<<16)
	n, err := cdr.Encode(v, spdpDescriptor, buf)
	if err != nil {
		return nil, err
	}
	framed := rtps.BuildDataMessage(ann.Vendor, ann.ParticipantGuid.Prefix, rtps.EntityIdSpdpBuiltinReader, rtps.EntityIdSpdpBuiltinWriter, spdpSeqs.Next(), buf[:n])
	return framed, nil
}

// DecodeSpdp parses CDR2 bytes produced by EncodeSpdp (the CDR payload
// slice a caller obtains via rtps.Classify's PayloadOffset, i.e. with
// the RTPS message/submessage framing already stripped).
func DecodeSpdp(data []byte) (discovery.SpdpAnnouncement, error) {
	v, err := cdr.Decode(data, spdpDescriptor)
	if err != nil {
		return discovery.SpdpAnnouncement{}, err
	}
	var ann discovery.SpdpAnnouncement
	if prefixBytes, err := hex.DecodeString(v.Fields["guid_prefix"].Str); err == nil {
		copy(ann.ParticipantGuid.Prefix[:], prefixBytes)
	}
	if entityBytes, err := hex.DecodeString(v.Fields["entity_id"].Str); err == nil {
		copy(ann.ParticipantGuid.Entity[:], entityBytes)
	}
	ann.LeaseDuration = time.Duration(v.Fields["lease_duration_ns"].I)
	ann.Metatraffic = decodeStringSeq(v.Fields["metatraffic"])
	ann.UserData = decodeStringSeq(v.Fields["user_data"])
	ann.Vendor = rtps.VendorId(v.Fields["vendor"].U)
	ann.ProtocolVersion = [2]byte{byte(v.Fields["protocol_major"].U), byte(v.Fields["protocol_minor"].U)}
	ann.BuiltinEndpointSet = uint32(v.Fields["builtin_endpoint_set"].U)
	for _, e := range v.Fields["identity_token"].Seq {
		ann.IdentityToken = append(ann.IdentityToken, byte(e.U))
	}
	return ann, nil
}

// sedpWriterEntity and sedpReaderEntity pick the builtin SEDP endpoint
// pair an announcement of kind travels on (spec §4.3 "SEDP publication/
// subscription/topic writers").
func sedpWriterEntity(kind discovery.SedpEndpointKind) rtps.EntityId {
	switch kind {
	case discovery.SedpPublication:
		return rtps.EntityIdSedpPubWriter
	case discovery.SedpSubscription:
		return rtps.EntityIdSedpSubWriter
	default:
		return rtps.EntityIdSedpTopicWriter
	}
}

func sedpReaderEntity(kind discovery.SedpEndpointKind) rtps.EntityId {
	switch kind {
	case discovery.SedpPublication:
		return rtps.EntityIdSedpPubReader
	case discovery.SedpSubscription:
		return rtps.EntityIdSedpSubReader
	default:
		return rtps.EntityIdSedpTopicReader
	}
}

// EncodeSedp serializes data using sedpDescriptor.
func EncodeSedp(data discovery.SedpEndpointData, locators discovery.Locators) ([]byte, error) {
	v := cdr.NewStruct(nil, map[string]*cdr.Value{
		"guid_prefix": cdr.NewString(hex.EncodeToString(data.EndpointGuid.Prefix[:])),
		"entity_id":   cdr.NewString(hex.EncodeToString(data.EndpointGuid.Entity[:])),
		"topic_name":  cdr.NewString(data.TopicName),
		"type_name":   cdr.NewString(data.TypeName),
		"metatraffic": stringSeq(locators.MetatrafficUnicast),
		"user_data":   stringSeq(locators.UserDataUnicast),
		"kind":        cdr.NewI32(int32(data.Kind)),
	})
	buf := make([]byte, 1<<16)
	n, err := cdr.Encode(v, sedpDescriptor, buf)
	if err != nil {
		return nil, err
	}
	framed := rtps.BuildDataMessage(rtps.VendorHdds, data.EndpointGuid.Prefix, sedpReaderEntity(data.Kind), sedpWriterEntity(data.Kind), sedpSeqs.Next(), buf[:n])
	return framed, nil
}

// DecodeSedp parses CDR2 bytes produced by EncodeSedp (the CDR payload
// slice obtained via rtps.Classify's PayloadOffset).
func DecodeSedp(raw []byte) (discovery.SedpEndpointData, discovery.Locators, error) {
	v, err := cdr.Decode(raw, sedpDescriptor)
	if err != nil {
		return discovery.SedpEndpointData{}, discovery.Locators{}, err
	}
	var data discovery.SedpEndpointData
	if prefixBytes, err := hex.DecodeString(v.Fields["guid_prefix"].Str); err == nil {
		copy(data.EndpointGuid.Prefix[:], prefixBytes)
	}
	if entityBytes, err := hex.DecodeString(v.Fields["entity_id"].Str); err == nil {
		copy(data.EndpointGuid.Entity[:], entityBytes)
	}
	data.TopicName = v.Fields["topic_name"].Str
	data.TypeName = v.Fields["type_name"].Str
	data.Kind = discovery.SedpEndpointKind(v.Fields["kind"].I)
	locators := discovery.Locators{
		MetatrafficUnicast: decodeStringSeq(v.Fields["metatraffic"]),
		UserDataUnicast:    decodeStringSeq(v.Fields["user_data"]),
	}
	return data, locators, nil
}
