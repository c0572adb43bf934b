// Package transport defines the capability-set contract every RTPS
// wire transport must satisfy (spec §9 "Trait-object / dynamic-dispatch
// transport"), plus concrete UDP sockets and locator-resolution support
// for NAT/mobility (a supplemented feature per the original
// implementation's locator-rewriting behavior).
package transport

// Port numbers follow spec §6's "Ports (formula)": every RTPS socket a
// participant binds is a deterministic function of the domain id and
// participant id, so peers never need out-of-band port discovery.
const (
	portBase          = 7400
	portsPerDomain    = 250
	spdpMulticastOff  = 0
	metaMulticastOff  = 1
	dataMulticastOff  = 2
	metaUnicastOff    = 10
	userDataUnicastOff = 11
)

// SpdpMulticastPort returns the well-known SPDP multicast port for
// domain d.
func SpdpMulticastPort(domainID uint16) int {
	return portBase + portsPerDomain*int(domainID) + spdpMulticastOff
}

// MetatrafficMulticastPort returns the metatraffic multicast port.
func MetatrafficMulticastPort(domainID uint16) int {
	return portBase + portsPerDomain*int(domainID) + metaMulticastOff
}

// DataMulticastPort returns the vendor-extension data-multicast port,
// listened on for cross-vendor compatibility (spec §6).
func DataMulticastPort(domainID uint16) int {
	return portBase + portsPerDomain*int(domainID) + dataMulticastOff
}

// MetatrafficUnicastPort returns participant p's metatraffic unicast
// port within domain d.
func MetatrafficUnicastPort(domainID uint16, participantID int) int {
	return portBase + portsPerDomain*int(domainID) + metaUnicastOff + 2*participantID
}

// UserDataUnicastPort returns participant p's user-data unicast port
// within domain d.
func UserDataUnicastPort(domainID uint16, participantID int) int {
	return portBase + portsPerDomain*int(domainID) + userDataUnicastOff + 2*participantID
}

// SpdpMulticastGroup is the well-known SPDP/data-multicast group (spec
// §6 "Multicast groups").
const SpdpMulticastGroup = "239.255.0.1"

// MaxParticipantID bounds the formula's valid participant-id range
// (spec §6 "0-119").
const MaxParticipantID = 119
