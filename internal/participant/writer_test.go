package participant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds-sub002/internal/config"
	"github.com/hdds-team/hdds-sub002/internal/congestion"
	"github.com/hdds-team/hdds-sub002/internal/discovery"
	"github.com/hdds-team/hdds-sub002/internal/history"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
)

func TestRegisterLocalWriterPopulatesRosterAndSedpRegistry(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	guid, err := p.RegisterLocalWriter("Topic", "Type", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)
	require.Equal(t, p.guidPrefix, guid.Prefix)

	roster := p.writerRoster()
	require.Len(t, roster, 1)
	require.Equal(t, guid, roster[0].WriterGuid)
	require.Equal(t, congestion.P1, roster[0].Priority)

	require.Equal(t, []rtps.Guid{guid}, p.endpointsOf(p.guidPrefix))

	replay := p.sedp.ReplayAll(discovery.SedpPublication)
	require.Len(t, replay, 1)
}

func TestRegisterLocalWriterTwiceYieldsDistinctGuids(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	first, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)
	second, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)

	require.NotEqual(t, first.Entity, second.Entity)
	require.Len(t, p.writerRoster(), 2)
}

func TestPublishAllocatesStrictlyIncreasingSeqsAndFeedsPacer(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P0)
	require.NoError(t, err)

	first, err := p.Publish(guid, []byte("sample-1"), 42)
	require.NoError(t, err)
	second, err := p.Publish(guid, []byte("sample-2"), 42)
	require.NoError(t, err)
	require.Less(t, first, second)

	pacer, ok := p.orchestrator.Pacer(guid)
	require.True(t, ok)
	_, prio, _, ok := pacer.TrySend(time.Now())
	require.True(t, ok)
	require.Equal(t, congestion.P0, prio)
}

func TestPublishToUnregisteredWriterFails(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	var unknown rtps.Guid
	_, err = p.Publish(unknown, []byte("x"), 0)
	require.Error(t, err)
}

func TestUnregisterLocalWriterClearsRosterAndPacer(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	guid, err := p.RegisterLocalWriter("T", "TT", history.DefaultLimits(), congestion.P1)
	require.NoError(t, err)
	require.Len(t, p.writerRoster(), 1)

	p.UnregisterLocalWriter(guid)
	require.Empty(t, p.writerRoster())
	_, ok := p.orchestrator.Pacer(guid)
	require.False(t, ok)
}
