package participant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds-sub002/internal/config"
	"github.com/hdds-team/hdds-sub002/internal/transport"
)

func TestNewBuildsWithoutBindingAnySocket(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)
	require.NotNil(t, p.controlHandler)
	require.NotNil(t, p.orchestrator) // Default() enables congestion control
	require.Nil(t, p.tr)              // Start, not New, binds sockets
}

func TestGuidPrefixEmbedsDomainAndParticipantId(t *testing.T) {
	cfg := config.Default()
	cfg.DomainID = 7
	var participantID uint8 = 3
	cfg.ParticipantID = &participantID

	p, err := New(cfg)
	require.NoError(t, err)

	prefix := p.GuidPrefix()
	require.EqualValues(t, 0, prefix[0])
	require.EqualValues(t, 7, prefix[1])
	require.EqualValues(t, 3, prefix[2])
}

func TestSelfAnnouncementBeforeStartHasNoLocators(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	ann := p.selfAnnouncement()
	require.Equal(t, p.guidPrefix, ann.ParticipantGuid.Prefix)
	require.Nil(t, ann.Metatraffic)
	require.Nil(t, ann.UserData)
	require.Nil(t, ann.IdentityToken) // no security.Validator configured
}

func TestWriterRosterEmptyUntilWritersRegistered(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)
	require.Empty(t, p.writerRoster())
}

func TestBindTransportTcpAndQuicAreUnsupportedVariants(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = config.TransportTcp
	p, err := New(cfg)
	require.NoError(t, err)
	tr, err := p.bindTransport()
	require.NoError(t, err)
	_, isTcp := tr.(*transport.TcpTransport)
	require.True(t, isTcp)

	cfg.Transport = config.TransportQuic
	p, err = New(cfg)
	require.NoError(t, err)
	tr, err = p.bindTransport()
	require.NoError(t, err)
	_, isQuic := tr.(*transport.QuicTransport)
	require.True(t, isQuic)
}

func TestBindTransportIntraProcessIsUnsupportedAtThisLayer(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = config.TransportIntraProcess
	p, err := New(cfg)
	require.NoError(t, err)
	_, err = p.bindTransport()
	require.ErrorIs(t, err, transport.ErrUnsupportedTransport)
}

func TestSpdpSenderFallsBackToNoopForNonUdpTransport(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)
	p.tr = &transport.TcpTransport{}

	sender := p.spdpSender()
	require.ErrorIs(t, sender.MulticastSpdp([]byte("x")), transport.ErrUnsupportedTransport)
	require.ErrorIs(t, sender.UnicastTo("peer", []byte("x")), transport.ErrUnsupportedTransport)
}

func TestCollectSignalsIsQuiescentWithoutLiveTraffic(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)
	sig := p.collectSignals()
	require.False(t, sig.Eagain)
	require.False(t, sig.RttInflated)
	require.False(t, sig.EcnCe)
	require.Zero(t, sig.NackRate)
}

func TestShutdownBeforeStartIsANoop(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}
