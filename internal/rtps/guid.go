// Package rtps implements the RTPS 2.x wire-level concerns that sit below
// discovery and reliability: GUID/entity addressing and the packet
// classifier (spec §3, §4.2).
package rtps

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// GuidPrefixLen is the size in bytes of a participant's GUID prefix.
const GuidPrefixLen = 12

// EntityIdLen is the size in bytes of an entity id.
const EntityIdLen = 4

// GuidPrefix identifies a participant; it is generated once at
// participant creation and stable for its lifetime.
type GuidPrefix [GuidPrefixLen]byte

// EntityId identifies an endpoint within a participant: low 3 bytes are
// the entity key, the high byte is the entity kind.
type EntityId [EntityIdLen]byte

// EntityKind occupies the high byte of an EntityId.
type EntityKind byte

// Built-in entity kinds from the RTPS specification (the subset HDDS
// acts on).
const (
	EntityKindParticipant        EntityKind = 0xC1
	EntityKindWriterWithKey      EntityKind = 0xC2
	EntityKindWriterNoKey        EntityKind = 0xC3
	EntityKindReaderNoKey        EntityKind = 0xC4
	EntityKindReaderWithKey      EntityKind = 0xC7
	EntityKindWriterGroup        EntityKind = 0xC9
	EntityKindReaderGroup        EntityKind = 0xC8
	EntityKindBuiltinWriterGroup EntityKind = 0xC9 | 0x40
	EntityKindBuiltinReaderGroup EntityKind = 0xC8 | 0x40
)

// Built-in entity ids, fixed constants from the RTPS specification.
var (
	EntityIdUnknown           = EntityId{0x00, 0x00, 0x00, 0x00}
	EntityIdParticipant       = EntityId{0x00, 0x00, 0x01, byte(EntityKindParticipant)}
	EntityIdSpdpBuiltinWriter = EntityId{0x00, 0x01, 0x00, 0xC2}
	EntityIdSpdpBuiltinReader = EntityId{0x00, 0x01, 0x00, 0xC7}
	EntityIdSedpPubWriter     = EntityId{0x00, 0x00, 0x03, 0xC2}
	EntityIdSedpPubReader     = EntityId{0x00, 0x00, 0x03, 0xC7}
	EntityIdSedpSubWriter     = EntityId{0x00, 0x00, 0x04, 0xC2}
	EntityIdSedpSubReader     = EntityId{0x00, 0x00, 0x04, 0xC7}
	EntityIdSedpTopicWriter   = EntityId{0x00, 0x00, 0x02, 0xC2}
	EntityIdSedpTopicReader   = EntityId{0x00, 0x00, 0x02, 0xC7}
	EntityIdTypeLookupRequestWriter  = EntityId{0x00, 0x01, 0x08, 0xC3}
	EntityIdTypeLookupRequestReader  = EntityId{0x00, 0x01, 0x08, 0xC4}
	EntityIdTypeLookupReplyWriter    = EntityId{0x00, 0x01, 0x09, 0xC3}
	EntityIdTypeLookupReplyReader    = EntityId{0x00, 0x01, 0x09, 0xC4}
)

// Kind returns the entity kind encoded in the high byte.
func (e EntityId) Kind() EntityKind { return EntityKind(e[3]) }

// Key returns the low 3 bytes (the per-participant entity key).
func (e EntityId) Key() [3]byte { return [3]byte{e[0], e[1], e[2]} }

// IsBuiltin reports whether this entity id belongs to one of the fixed
// discovery built-in endpoints (SPDP, SEDP pubs/subs/topics, TypeLookup).
func (e EntityId) IsBuiltin() bool {
	switch e {
	case EntityIdSpdpBuiltinWriter, EntityIdSpdpBuiltinReader,
		EntityIdSedpPubWriter, EntityIdSedpPubReader,
		EntityIdSedpSubWriter, EntityIdSedpSubReader,
		EntityIdSedpTopicWriter, EntityIdSedpTopicReader,
		EntityIdTypeLookupRequestWriter, EntityIdTypeLookupRequestReader,
		EntityIdTypeLookupReplyWriter, EntityIdTypeLookupReplyReader:
		return true
	}
	return false
}

// Guid is the 16-byte globally unique endpoint identifier: 12-byte
// participant prefix + 4-byte entity id.
type Guid struct {
	Prefix GuidPrefix
	Entity EntityId
}

// String renders the GUID as the prefix and the entity id in hex, joined
// by a colon.
func (g Guid) String() string {
	return fmt.Sprintf("%s:%s", hex.EncodeToString(g.Prefix[:]), hex.EncodeToString(g.Entity[:]))
}

// Bytes returns the 16-byte wire representation.
func (g Guid) Bytes() [16]byte {
	var b [16]byte
	copy(b[0:12], g.Prefix[:])
	copy(b[12:16], g.Entity[:])
	return b
}

// GuidFromBytes parses a 16-byte wire GUID.
func GuidFromBytes(b []byte) (Guid, error) {
	if len(b) < 16 {
		return Guid{}, fmt.Errorf("guid: need 16 bytes, got %d", len(b))
	}
	var g Guid
	copy(g.Prefix[:], b[0:12])
	copy(g.Entity[:], b[12:16])
	return g, nil
}

// NewGuidPrefix generates a random participant prefix. All 12 bytes are
// cryptographically random so that two participants on the same host
// practically never collide.
func NewGuidPrefix() (GuidPrefix, error) {
	var p GuidPrefix
	if _, err := rand.Read(p[:]); err != nil {
		return p, fmt.Errorf("guid prefix: %w", err)
	}
	return p, nil
}

// NewGuidPrefixForParticipant derives a prefix that embeds the domain id
// and participant id in its first three bytes (domain id big-endian in
// bytes 0-1, participant id in byte 2) (for debuggability in
// packet captures) with the rest random, mirroring how vendors commonly
// bias their prefixes without losing global uniqueness.
func NewGuidPrefixForParticipant(domainID uint16, participantID uint8) (GuidPrefix, error) {
	p, err := NewGuidPrefix()
	if err != nil {
		return p, err
	}
	binary.BigEndian.PutUint16(p[0:2], domainID)
	p[2] = participantID
	return p, nil
}
