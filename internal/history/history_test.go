package history

import (
	"testing"

	"github.com/hdds-team/hdds-sub002/internal/hddserr"
	"github.com/stretchr/testify/require"
)

func TestKeepLastEviction(t *testing.T) {
	// spec §8 S6: max_samples=3, insert seqs 1..5 with empty payloads.
	c := NewCache(Limits{
		Kind:                  KeepLast,
		Depth:                 3,
		MaxSamples:            3,
		MaxQuotaBytes:         1 << 20,
		MaxInstances:          1 << 20,
		MaxSamplesPerInstance: 1 << 20,
	})
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, c.InsertKeyed(seq, nil, 0))
	}
	oldest, ok := c.OldestSeq()
	require.True(t, ok)
	require.Equal(t, uint64(3), oldest)

	newest, ok := c.NewestSeq()
	require.True(t, ok)
	require.Equal(t, uint64(5), newest)

	require.Equal(t, 3, c.Len())
}

func TestKeepAllRejectsBeyondLimit(t *testing.T) {
	c := NewCache(Limits{
		Kind:                  KeepAll,
		MaxSamples:            2,
		MaxQuotaBytes:         1 << 20,
		MaxInstances:          1 << 20,
		MaxSamplesPerInstance: 1 << 20,
	})
	require.NoError(t, c.InsertKeyed(1, []byte("a"), 0))
	require.NoError(t, c.InsertKeyed(2, []byte("b"), 0))
	err := c.InsertKeyed(3, []byte("c"), 0)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.WouldBlock))
	require.Equal(t, 2, c.Len())
}

func TestInsertRejectsNonIncreasingSeq(t *testing.T) {
	c := NewCache(DefaultLimits())
	require.NoError(t, c.InsertKeyed(5, nil, 0))
	err := c.InsertKeyed(5, nil, 0)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.Config))
}

func TestRemoveAcknowledgedShrinksToEmpty(t *testing.T) {
	// spec §8 S2: after remove_acknowledged(999), history cache shrinks
	// to empty.
	limits := DefaultLimits()
	limits.Depth = 0 // unbounded KeepLast depth, bounded only by MaxSamples
	c := NewCache(limits)
	for seq := uint64(0); seq < 1000; seq++ {
		require.NoError(t, c.InsertKeyed(seq, []byte{byte(seq)}, 0))
	}
	c.RemoveAcknowledged(999)
	require.Equal(t, 0, c.Len())
	require.Equal(t, int64(0), c.Bytes())
}

func TestPerInstanceOverflowEvictsOldestOfThatInstance(t *testing.T) {
	c := NewCache(Limits{
		Kind:                  KeepLast,
		Depth:                 0,
		MaxSamples:            1 << 20,
		MaxQuotaBytes:         1 << 20,
		MaxInstances:          1 << 20,
		MaxSamplesPerInstance: 2,
	})
	require.NoError(t, c.InsertKeyed(1, nil, 100))
	require.NoError(t, c.InsertKeyed(2, nil, 100))
	require.NoError(t, c.InsertKeyed(3, nil, 100)) // evicts seq 1 for instance 100
	require.NoError(t, c.InsertKeyed(4, nil, 200))

	require.Equal(t, 2, c.SamplesForInstance(100))
	require.Equal(t, 1, c.SamplesForInstance(200))
	_, ok := c.Get(1)
	require.False(t, ok)
	_, ok = c.Get(3)
	require.True(t, ok)
}

func TestInstanceCountLimit(t *testing.T) {
	c := NewCache(Limits{
		Kind:                  KeepAll,
		MaxSamples:            1 << 20,
		MaxQuotaBytes:         1 << 20,
		MaxInstances:          1,
		MaxSamplesPerInstance: 1 << 20,
	})
	require.NoError(t, c.InsertKeyed(1, nil, 1))
	err := c.InsertKeyed(2, nil, 2)
	require.Error(t, err)
	require.True(t, hddserr.Of(err, hddserr.WouldBlock))
	require.Equal(t, 1, c.InstanceCount())
}

func TestSnapshotPayloadsLimited(t *testing.T) {
	limits := DefaultLimits()
	limits.Depth = 0
	c := NewCache(limits)
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, c.InsertKeyed(seq, []byte{byte(seq)}, 0))
	}
	snap := c.SnapshotPayloadsLimited(2)
	require.Equal(t, [][]byte{{4}, {5}}, snap)
}

func TestSnapshotForDurabilityServiceClampsToCacheLen(t *testing.T) {
	// spec §9 open question: replay depth = min(DurabilityService depth,
	// history_cache.len()).
	limits := DefaultLimits()
	limits.Depth = 0
	c := NewCache(limits)
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, c.InsertKeyed(seq, []byte{byte(seq)}, 0))
	}
	snap := c.SnapshotForDurabilityService(10)
	require.Len(t, snap, 3)

	snapSmaller := c.SnapshotForDurabilityService(2)
	require.Equal(t, [][]byte{{2}, {3}}, snapSmaller)
}

func TestQuotaBytesEviction(t *testing.T) {
	c := NewCache(Limits{
		Kind:                  KeepLast,
		Depth:                 0,
		MaxSamples:            1 << 20,
		MaxQuotaBytes:         10,
		MaxInstances:          1 << 20,
		MaxSamplesPerInstance: 1 << 20,
	})
	require.NoError(t, c.InsertKeyed(1, make([]byte, 6), 0))
	require.NoError(t, c.InsertKeyed(2, make([]byte, 6), 0))
	require.LessOrEqual(t, c.Bytes(), int64(10))
	require.Equal(t, 1, c.Len())
}
