package transport

import (
	"context"
	"net"
)

// TcpTransport documents the contract a TCP-based RTPS transport would
// satisfy (spec §1/§9: concrete non-UDP sockets are out of scope for
// this implementation, only the abstract contract is specified).
// SendToEndpoint and Recv return ErrUnsupportedTransport, the socket
// accessors return nil and Close does nothing; the type exists so
// Config.Transport can name `Tcp+peers` and fail predictably rather
// than the caller needing a type switch.
type TcpTransport struct{ Peers []string }

func (*TcpTransport) SendToEndpoint(Endpoint, []byte) error        { return ErrUnsupportedTransport }
func (*TcpTransport) Recv(context.Context, Socket) (Datagram, error) {
	return Datagram{}, ErrUnsupportedTransport
}
func (*TcpTransport) MetatrafficUnicastSocket() Socket { return nil }
func (*TcpTransport) UserDataUnicastSocket() Socket    { return nil }
func (*TcpTransport) Close() error                     { return nil }

// QuicTransport documents the QUIC variant's contract; see TcpTransport.
type QuicTransport struct{ Peers []string }

func (*QuicTransport) SendToEndpoint(Endpoint, []byte) error { return ErrUnsupportedTransport }
func (*QuicTransport) Recv(context.Context, Socket) (Datagram, error) {
	return Datagram{}, ErrUnsupportedTransport
}
func (*QuicTransport) MetatrafficUnicastSocket() Socket { return nil }
func (*QuicTransport) UserDataUnicastSocket() Socket    { return nil }
func (*QuicTransport) Close() error                     { return nil }

// IntraProcessTransport is the one variant beyond UDP that HDDS
// actually implements end-to-end: two participants inside the same
// process exchange datagrams over Go channels instead of sockets,
// useful for the test harness and for same-host fast paths (spec §6
// "transport: { UdpMulticast | IntraProcess | ... }").
type IntraProcessTransport struct {
	name string
	bus  *IntraProcessBus
	meta chan Datagram
	data chan Datagram
}

// IntraProcessBus is the shared channel registry every
// IntraProcessTransport in a process attaches to, keyed by participant
// name so SendToEndpoint can find the right peer's channel.
type IntraProcessBus struct {
	participants map[string]*IntraProcessTransport
}

// NewIntraProcessBus constructs an empty bus.
func NewIntraProcessBus() *IntraProcessBus {
	return &IntraProcessBus{participants: make(map[string]*IntraProcessTransport)}
}

// Register attaches a new participant and returns its transport.
func (b *IntraProcessBus) Register(name string, queueDepth int) *IntraProcessTransport {
	t := &IntraProcessTransport{
		name: name,
		bus:  b,
		meta: make(chan Datagram, queueDepth),
		data: make(chan Datagram, queueDepth),
	}
	b.participants[name] = t
	return t
}

type intraSocket struct{ ch chan Datagram }

func (s *intraSocket) LocalAddr() net.Addr { return nilAddr{} }

// nilAddr satisfies net.Addr trivially for intra-process sockets,
// which have no real network address.
type nilAddr struct{}

func (nilAddr) Network() string { return "intra" }
func (nilAddr) String() string  { return "intra" }

// SendToEndpoint delivers payload directly into the target
// participant's channel; Endpoint.Addr is interpreted as the target
// participant's registered name for this transport.
func (t *IntraProcessTransport) SendToEndpoint(ep Endpoint, payload []byte) error {
	peer, ok := t.bus.participants[ep.Addr]
	if !ok {
		return ErrUnsupportedTransport
	}
	dg := Datagram{Payload: append([]byte(nil), payload...), Source: Endpoint{Addr: t.name}}
	target := peer.data
	if ep.Multicast {
		target = peer.meta
	}
	select {
	case target <- dg:
		return nil
	default:
		return ErrUnsupportedTransport // queue full, analogous to ENOBUFS
	}
}

// Recv implements Transport by reading from the channel the given
// Socket wraps.
func (t *IntraProcessTransport) Recv(ctx context.Context, sock Socket) (Datagram, error) {
	is, ok := sock.(*intraSocket)
	if !ok {
		return Datagram{}, ErrUnsupportedTransport
	}
	select {
	case dg := <-is.ch:
		return dg, nil
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

// MetatrafficUnicastSocket implements Transport.
func (t *IntraProcessTransport) MetatrafficUnicastSocket() Socket { return &intraSocket{ch: t.meta} }

// UserDataUnicastSocket implements Transport.
func (t *IntraProcessTransport) UserDataUnicastSocket() Socket { return &intraSocket{ch: t.data} }

// Close implements Transport; there is no socket to release, only the
// bus registration, which the bus itself owns.
func (t *IntraProcessTransport) Close() error { return nil }
