package transport

import (
	"context"
	"testing"
	"time"

	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/stretchr/testify/require"
)

func TestPortFormula(t *testing.T) {
	require.Equal(t, 7400, SpdpMulticastPort(0))
	require.Equal(t, 7401, MetatrafficMulticastPort(0))
	require.Equal(t, 7402, DataMulticastPort(0))
	require.Equal(t, 7410, MetatrafficUnicastPort(0, 0))
	require.Equal(t, 7411, UserDataUnicastPort(0, 0))

	require.Equal(t, 7650, SpdpMulticastPort(1))
	require.Equal(t, 7414, MetatrafficUnicastPort(0, 2))
	require.Equal(t, 7415, UserDataUnicastPort(0, 2))
}

func TestIntraProcessTransportDeliversDatagram(t *testing.T) {
	bus := NewIntraProcessBus()
	a := bus.Register("participant-a", 4)
	b := bus.Register("participant-b", 4)

	err := a.SendToEndpoint(Endpoint{Addr: "participant-b"}, []byte("hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dg, err := b.Recv(ctx, b.UserDataUnicastSocket())
	require.NoError(t, err)
	require.Equal(t, "hello", string(dg.Payload))
	require.Equal(t, "participant-a", dg.Source.Addr)
}

func TestIntraProcessTransportMulticastUsesMetaChannel(t *testing.T) {
	bus := NewIntraProcessBus()
	a := bus.Register("a", 4)
	b := bus.Register("b", 4)

	require.NoError(t, a.SendToEndpoint(Endpoint{Addr: "b", Multicast: true}, []byte("spdp")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dg, err := b.Recv(ctx, b.MetatrafficUnicastSocket())
	require.NoError(t, err)
	require.Equal(t, "spdp", string(dg.Payload))
}

func TestIntraProcessTransportUnknownPeerFails(t *testing.T) {
	bus := NewIntraProcessBus()
	a := bus.Register("a", 4)
	err := a.SendToEndpoint(Endpoint{Addr: "nonexistent"}, []byte("x"))
	require.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestTcpTransportVariantIsUnimplemented(t *testing.T) {
	var tr Transport = &TcpTransport{}
	err := tr.SendToEndpoint(Endpoint{}, nil)
	require.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestNatRewriterTrustsObservedSourceOnMismatch(t *testing.T) {
	r := NatRewriter{TrustObservedSource: true}
	var prefix rtps.GuidPrefix

	advertised := Endpoint{Addr: "192.168.1.5:7411"}
	observed := Endpoint{Addr: "203.0.113.9:54321"}

	got := r.Resolve(prefix, advertised, observed)
	require.Equal(t, observed, got)
}

func TestNatRewriterKeepsAdvertisedWhenHostsMatch(t *testing.T) {
	r := NatRewriter{TrustObservedSource: true}
	var prefix rtps.GuidPrefix

	advertised := Endpoint{Addr: "10.0.0.5:7411"}
	observed := Endpoint{Addr: "10.0.0.5:54321"}

	got := r.Resolve(prefix, advertised, observed)
	require.Equal(t, advertised, got)
}

func TestNatRewriterDisabledAlwaysUsesAdvertised(t *testing.T) {
	r := NatRewriter{TrustObservedSource: false}
	var prefix rtps.GuidPrefix
	advertised := Endpoint{Addr: "10.0.0.5:7411"}
	observed := Endpoint{Addr: "203.0.113.9:54321"}
	require.Equal(t, advertised, r.Resolve(prefix, advertised, observed))
}
