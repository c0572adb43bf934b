package rtps

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed RTPS message header size: magic(4) + version(2) +
// vendor(2) + guid prefix(12).
const HeaderLen = 20

var rtpsMagic = [4]byte{'R', 'T', 'P', 'S'}

// VendorId identifies the DDS implementation that produced a packet
// (spec §1: "four vendors, identified by 16-bit vendor ids").
type VendorId uint16

// Known vendor ids used for dialect detection (spec §4.5). The exact
// numeric assignments below follow the RTPS vendor registry; HDDS only
// needs to tell the four interoperability-relevant vendors apart from
// "unknown".
const (
	VendorUnknown  VendorId = 0x0000
	VendorEProsima VendorId = 0x010F // eProsima Fast DDS
	VendorRTI      VendorId = 0x0101 // RTI Connext
	VendorOCI      VendorId = 0x0103 // OpenDDS
	VendorEclipse  VendorId = 0x010C // Eclipse Cyclone DDS
	VendorHdds     VendorId = 0x9999 // this implementation
)

// Header is the parsed fixed RTPS message header.
type Header struct {
	VersionMajor byte
	VersionMinor byte
	Vendor       VendorId
	GuidPrefix   GuidPrefix
}

// ParseHeader validates the magic/version and extracts the fixed header.
// It never returns PacketKindInvalid itself — that promotion decision is
// the classifier's job once the submessage chain has been scanned.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("rtps: truncated header (%d bytes)", len(buf))
	}
	if buf[0] != rtpsMagic[0] || buf[1] != rtpsMagic[1] || buf[2] != rtpsMagic[2] || buf[3] != rtpsMagic[3] {
		return Header{}, fmt.Errorf("rtps: bad magic %q", buf[0:4])
	}
	if buf[4] != 2 {
		return Header{}, fmt.Errorf("rtps: unsupported major version %d", buf[4])
	}
	h := Header{
		VersionMajor: buf[4],
		VersionMinor: buf[5],
		Vendor:       VendorId(binary.BigEndian.Uint16(buf[6:8])),
	}
	copy(h.GuidPrefix[:], buf[8:20])
	return h, nil
}
