package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
)

// udpSocket wraps a net.UDPConn so it satisfies Socket.
type udpSocket struct {
	conn *net.UDPConn
}

func (s *udpSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// UdpTransport is the only Transport variant exercised end-to-end
// (spec §1: concrete sockets beyond UDP are out of scope). It binds
// the metatraffic and user-data unicast sockets the port formula (spec
// §6) assigns this participant, plus the SPDP and metatraffic
// multicast sockets.
type UdpTransport struct {
	metaUnicast *udpSocket
	dataUnicast *udpSocket
	spdpMcast   *udpSocket
	metaMcast   *udpSocket

	multicastGroup  string
	spdpMcastPort   int

	recvBufSize int
}

// UdpTransportConfig names every socket a participant's UdpTransport
// needs bound, derived from spec §6's port formula by the caller.
type UdpTransportConfig struct {
	DomainID          uint16
	ParticipantID     int
	BindAddr          string // interface address to bind unicast sockets on, "" = all interfaces
	MulticastGroup    string // spec §6 SpdpMulticastGroup unless overridden
	RecvBufferBytes   int
}

// DefaultRecvBufferBytes is a generous per-socket receive buffer so
// bursts of SPDP/SEDP/DATA traffic don't get dropped at the kernel
// socket queue before the listener thread can drain it.
const DefaultRecvBufferBytes = 1 << 20

// NewUdpTransport binds all four sockets per spec §6's port formula.
// participant_id probing (unspecified P) is the caller's
// responsibility (spec §6: "probe P = 0...255 and take the first one
// whose both unicast ports are bindable"); this constructor always
// binds a concrete, already-resolved participant id.
func NewUdpTransport(cfg UdpTransportConfig) (*UdpTransport, error) {
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = SpdpMulticastGroup
	}
	if cfg.RecvBufferBytes == 0 {
		cfg.RecvBufferBytes = DefaultRecvBufferBytes
	}

	metaUnicast, err := bindUnicast(cfg.BindAddr, MetatrafficUnicastPort(cfg.DomainID, cfg.ParticipantID), cfg.RecvBufferBytes)
	if err != nil {
		return nil, wrapIo("bind metatraffic unicast", err)
	}
	dataUnicast, err := bindUnicast(cfg.BindAddr, UserDataUnicastPort(cfg.DomainID, cfg.ParticipantID), cfg.RecvBufferBytes)
	if err != nil {
		metaUnicast.conn.Close()
		return nil, wrapIo("bind user-data unicast", err)
	}
	spdpMcast, err := bindMulticast(cfg.MulticastGroup, SpdpMulticastPort(cfg.DomainID), cfg.RecvBufferBytes)
	if err != nil {
		metaUnicast.conn.Close()
		dataUnicast.conn.Close()
		return nil, wrapIo("bind spdp multicast", err)
	}
	metaMcast, err := bindMulticast(cfg.MulticastGroup, MetatrafficMulticastPort(cfg.DomainID), cfg.RecvBufferBytes)
	if err != nil {
		metaUnicast.conn.Close()
		dataUnicast.conn.Close()
		spdpMcast.conn.Close()
		return nil, wrapIo("bind metatraffic multicast", err)
	}

	return &UdpTransport{
		metaUnicast:    metaUnicast,
		dataUnicast:    dataUnicast,
		spdpMcast:      spdpMcast,
		metaMcast:      metaMcast,
		multicastGroup: cfg.MulticastGroup,
		spdpMcastPort:  SpdpMulticastPort(cfg.DomainID),
		recvBufSize:    cfg.RecvBufferBytes,
	}, nil
}

func bindUnicast(bindAddr string, port int, recvBuf int) (*udpSocket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindAddr), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(recvBuf)
	return &udpSocket{conn: conn}, nil
}

func bindMulticast(group string, port int, recvBuf int) (*udpSocket, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(recvBuf)
	return &udpSocket{conn: conn}, nil
}

// SendToEndpoint implements Transport.
func (t *UdpTransport) SendToEndpoint(ep Endpoint, payload []byte) error {
	addr, err := net.ResolveUDPAddr("udp", ep.Addr)
	if err != nil {
		return wrapIo("resolve endpoint", err)
	}
	sock := t.dataUnicast
	if ep.Multicast {
		sock = t.metaMcast
	}
	if _, err := sock.conn.WriteToUDP(payload, addr); err != nil {
		return wrapIo("send", err)
	}
	return nil
}

// Recv implements Transport. It blocks on a read, honoring ctx
// cancellation by polling via a short read deadline so a single
// Recv call never outlives its context by more than ~200ms.
func (t *UdpTransport) Recv(ctx context.Context, sock Socket) (Datagram, error) {
	us, ok := sock.(*udpSocket)
	if !ok {
		return Datagram{}, hddserr.Wrap(hddserr.Io, "recv: socket not owned by this transport")
	}

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return Datagram{}, ctx.Err()
		default:
		}
		_ = us.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := us.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return Datagram{}, wrapIo("recv", err)
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		return Datagram{Payload: payload, Source: Endpoint{Addr: addr.String()}}, nil
	}
}

// MetatrafficUnicastSocket implements Transport.
func (t *UdpTransport) MetatrafficUnicastSocket() Socket { return t.metaUnicast }

// UserDataUnicastSocket implements Transport.
func (t *UdpTransport) UserDataUnicastSocket() Socket { return t.dataUnicast }

// SpdpMulticastSocket returns the SPDP multicast listener socket.
func (t *UdpTransport) SpdpMulticastSocket() Socket { return t.spdpMcast }

// MetatrafficMulticastSocket returns the metatraffic multicast listener
// socket.
func (t *UdpTransport) MetatrafficMulticastSocket() Socket { return t.metaMcast }

// Close implements Transport.
func (t *UdpTransport) Close() error {
	var firstErr error
	for _, s := range []*udpSocket{t.metaUnicast, t.dataUnicast, t.spdpMcast, t.metaMcast} {
		if s == nil {
			continue
		}
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return wrapIo("close", firstErr)
	}
	return nil
}

// MulticastSpdp implements discovery.Sender by writing to the SPDP
// multicast group (spec §6 "Multicast groups").
func (t *UdpTransport) MulticastSpdp(payload []byte) error {
	dest := net.JoinHostPort(t.multicastGroup, strconv.Itoa(t.spdpMcastPort))
	return t.SendToEndpoint(Endpoint{Addr: dest, Multicast: true}, payload)
}

// UnicastTo implements discovery.Sender by writing to addr on the
// metatraffic unicast socket.
func (t *UdpTransport) UnicastTo(addr string, payload []byte) error {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return wrapIo("resolve static peer", err)
	}
	if _, err := t.metaUnicast.conn.WriteToUDP(payload, resolved); err != nil {
		return wrapIo("unicast", err)
	}
	return nil
}
