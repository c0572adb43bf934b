package transport

import (
	"context"
	"errors"
	"net"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

// Endpoint identifies where a datagram is headed: either a specific
// unicast locator or the well-known multicast group for metatraffic.
type Endpoint struct {
	Addr      string // "host:port"
	Multicast bool
}

// Datagram is one received packet, tagged with its source so the
// classifier and discovery code can attribute it to a peer.
type Datagram struct {
	Payload []byte
	Source  Endpoint
}

// Transport is the narrow capability set spec §9 asks for in place of
// an open interface: "send_to_endpoint, recv,
// metatraffic_unicast_socket". Every concrete transport (UDP, TCP,
// QUIC, intra-process) implements exactly this surface so participant
// code never branches on transport kind.
type Transport interface {
	// SendToEndpoint writes payload to ep.
	SendToEndpoint(ep Endpoint, payload []byte) error
	// Recv blocks until a datagram arrives on sock, ctx is cancelled, or
	// the underlying socket is closed.
	Recv(ctx context.Context, sock Socket) (Datagram, error)
	// MetatrafficUnicastSocket returns the handle used for metatraffic
	// unicast sends/receives.
	MetatrafficUnicastSocket() Socket
	// UserDataUnicastSocket returns the handle used for user-data
	// unicast sends/receives.
	UserDataUnicastSocket() Socket
	// Close tears down every socket the transport owns.
	Close() error
}

// Socket is an opaque handle a Transport hands back to identify one of
// its listening sockets; only the Transport that produced it knows how
// to read from it.
type Socket interface {
	// LocalAddr is exposed for diagnostics and for binding probes (spec
	// §6 "probe P = 0...255").
	LocalAddr() net.Addr
}

// ErrUnsupportedTransport is returned by variants that only document a
// contract rather than implement one end-to-end (spec §1 "The concrete
// UDP/TCP/QUIC/shared-memory sockets themselves... only the abstract
// Transport contract is specified").
var ErrUnsupportedTransport = errors.New("transport: operation not implemented by this variant")

func wrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return hddserr.Wrap(hddserr.Io, "%s: %v", op, err)
}

// LocatorResolver rewrites a peer's advertised locator before the
// transport sends to it (supplemented NAT/mobility feature: the
// original implementation rewrites SPDP-advertised locators when a
// peer is observed behind a NAT whose public mapping differs from what
// it announced). No participant code calls a LocatorResolver; sends go
// to the advertised locator as is.
type LocatorResolver func(prefix rtps.GuidPrefix, advertised Endpoint, observedSource Endpoint) Endpoint
