package discovery

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// SpdpDefaultSweepInterval matches spec §4.5's default lease-sweep
// cadence ("Background thread sweeps the database at a fixed cadence
// (default 1 s)").
const SpdpDefaultSweepInterval = 1 * time.Second

// OnParticipantLost and OnEndpointLost fire when the lease tracker
// evicts a peer (spec §4.5 "Lease tracker", spec §7 "Observable failure
// behavior": "Participant lease expiry fires on_participant_lost and
// per-endpoint on_endpoint_lost callbacks").
type OnParticipantLost func(prefix rtps.GuidPrefix)
type OnEndpointLost func(prefix rtps.GuidPrefix, endpoint rtps.Guid)

// LeaseTracker is spec §5's thread 8: a periodic sweep of the
// participant database evicting expired leases.
type LeaseTracker struct {
	scheduler gocron.Scheduler
	db        *PeerDatabase

	OnParticipantLost OnParticipantLost
	// EndpointsOf resolves which endpoints a peer owned, for firing
	// per-endpoint lost callbacks; supplied by the participant since
	// this package does not own the topic registry.
	EndpointsOf func(prefix rtps.GuidPrefix) []rtps.Guid
	OnEndpointLost OnEndpointLost
}

// NewLeaseTracker builds a tracker over db.
func NewLeaseTracker(db *PeerDatabase) (*LeaseTracker, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &LeaseTracker{scheduler: s, db: db}, nil
}

// Start registers the periodic sweep job and starts the scheduler.
func (t *LeaseTracker) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = SpdpDefaultSweepInterval
	}
	_, err := t.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(t.sweepOnce),
	)
	if err != nil {
		return err
	}
	t.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler.
func (t *LeaseTracker) Shutdown() error {
	return t.scheduler.Shutdown()
}

func (t *LeaseTracker) sweepOnce() {
	evicted := t.db.SweepExpired(time.Now())
	for _, peer := range evicted {
		log.Infof("discovery: participant lease expired, evicting %x", peer.Prefix)
		if t.OnEndpointLost != nil && t.EndpointsOf != nil {
			for _, endpoint := range t.EndpointsOf(peer.Prefix) {
				t.OnEndpointLost(peer.Prefix, endpoint)
			}
		}
		if t.OnParticipantLost != nil {
			t.OnParticipantLost(peer.Prefix)
		}
	}
}
