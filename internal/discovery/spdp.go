package discovery

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hdds-team/hdds-sub002/internal/rtps"
	"github.com/hdds-team/hdds-sub002/internal/security"
	"github.com/hdds-team/hdds-sub002/pkg/log"
)

// SpdpDefaultAnnounceInterval and SpdpDefaultLease match spec §4.5's
// defaults ("every periodically (default 3 s, default lease 100 s)").
const (
	SpdpDefaultAnnounceInterval = 3 * time.Second
	SpdpDefaultLease            = 100 * time.Second
)

// SpdpAnnouncement is the content of one participant's SPDP DATA (spec
// §4.5 "SPDP").
type SpdpAnnouncement struct {
	ParticipantGuid    rtps.Guid
	LeaseDuration      time.Duration
	Metatraffic        []string
	UserData           []string
	Vendor             rtps.VendorId
	ProtocolVersion    [2]byte
	BuiltinEndpointSet uint32
	IdentityToken      []byte
}

// Sender abstracts the transport's outbound path so this package
// depends only on the narrow capability it needs (spec §9 "Trait-object
// / dynamic-dispatch transport": prefer a small method set).
type Sender interface {
	MulticastSpdp(payload []byte) error
	UnicastTo(addr string, payload []byte) error
}

// Encoder produces the wire bytes for an SpdpAnnouncement; supplied by
// the participant so this package stays free of a CDR dependency on a
// specific struct layout.
type Encoder func(SpdpAnnouncement) ([]byte, error)

// OnPeerSeen is invoked when HandleIncomingSpdp learns about a peer for
// the first time (spec §4.5 step 2): the callback is expected to
// enqueue SEDP re-announcements. HandleIncomingSpdp notifies the
// dialect detector itself (step 3).
type OnPeerSeen func(entry *PeerEntry)

// SpdpAnnouncer periodically multicasts this participant's SPDP DATA
// and unicasts it to every configured static peer (spec §4.5 "SPDP",
// spec §5 thread 7 "SPDP announcer"). Scheduling is gocron-driven,
// grounded on the teacher's taskManager periodic-job idiom.
type SpdpAnnouncer struct {
	scheduler gocron.Scheduler
	sender    Sender
	encode    Encoder
	self      func() SpdpAnnouncement
	staticPeers func() []string
}

// NewSpdpAnnouncer builds an announcer. self is called fresh on every
// tick so the announcement reflects current locators/lease.
func NewSpdpAnnouncer(sender Sender, encode Encoder, self func() SpdpAnnouncement, staticPeers func() []string) (*SpdpAnnouncer, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &SpdpAnnouncer{scheduler: s, sender: sender, encode: encode, self: self, staticPeers: staticPeers}, nil
}

// Start registers the periodic announce job and starts the scheduler.
func (a *SpdpAnnouncer) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = SpdpDefaultAnnounceInterval
	}
	_, err := a.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(a.announceOnce),
	)
	if err != nil {
		return err
	}
	a.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler.
func (a *SpdpAnnouncer) Shutdown() error {
	return a.scheduler.Shutdown()
}

func (a *SpdpAnnouncer) announceOnce() {
	payload, err := a.encode(a.self())
	if err != nil {
		log.Errorf("discovery: failed to encode spdp announcement: %v", err)
		return
	}
	if err := a.sender.MulticastSpdp(payload); err != nil {
		log.Warnf("discovery: spdp multicast send failed: %v", err)
	}
	// SPDP announcements continue to multicast but also unicast to
	// every static peer (spec §4.5 "Static peers").
	for _, addr := range a.staticPeers() {
		if err := a.sender.UnicastTo(addr, payload); err != nil {
			log.Warnf("discovery: spdp unicast to static peer %s failed: %v", addr, err)
		}
	}
}

// HandleIncomingSpdp implements spec §4.5's three receive-path steps.
// validator is optional (spec §4.5 "Security hook (optional)"): when
// present and authentication is required, an announcement lacking a
// valid identity token is rejected before insertion.
func HandleIncomingSpdp(
	db *PeerDatabase,
	detector *DialectDetector,
	validator security.Validator,
	requireAuthentication bool,
	ann SpdpAnnouncement,
	now time.Time,
	onFirstSeen OnPeerSeen,
) error {
	if requireAuthentication && validator != nil {
		if _, err := validator.ValidateIdentityToken(ann.IdentityToken); err != nil {
			return err
		}
	}

	locators := Locators{MetatrafficUnicast: ann.Metatraffic, UserDataUnicast: ann.UserData}
	entry, isNew := db.Upsert(ann.ParticipantGuid.Prefix, locators, ann.Vendor, ann.LeaseDuration, now)
	if ann.IdentityToken != nil {
		db.AttachIdentityToken(ann.ParticipantGuid.Prefix, ann.IdentityToken)
	}

	if isNew && onFirstSeen != nil {
		onFirstSeen(entry)
	}

	detector.Observe(ann.ParticipantGuid.Prefix, ann.Vendor)
	return nil
}
