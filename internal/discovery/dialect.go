package discovery

import "github.com/hdds-team/hdds-sub002/internal/rtps"

// DialectRules captures the vendor-specific behaviors spec §4.5 names:
// "whether to send INFO_DST with SEDP re-announcements; whether to send
// a confirmation ACKNACK after receiving SEDP DATA; whether to expect
// Reader re-announcements with fresh seqs."
type DialectRules struct {
	Vendor                    rtps.VendorId
	RequiresInfoDstOnSedp     bool
	SendsConfirmationAckNack  bool
	ExpectsFreshSeqReannounce bool
}

// knownDialects is the fixed interoperability table for the four
// vendors spec §1/§4.5 require, plus HDDS's own dialect which needs no
// workarounds against itself.
var knownDialects = map[rtps.VendorId]DialectRules{
	rtps.VendorEProsima: {Vendor: rtps.VendorEProsima, RequiresInfoDstOnSedp: true, SendsConfirmationAckNack: false, ExpectsFreshSeqReannounce: false},
	rtps.VendorRTI:      {Vendor: rtps.VendorRTI, RequiresInfoDstOnSedp: false, SendsConfirmationAckNack: true, ExpectsFreshSeqReannounce: false},
	rtps.VendorOCI:      {Vendor: rtps.VendorOCI, RequiresInfoDstOnSedp: false, SendsConfirmationAckNack: false, ExpectsFreshSeqReannounce: true},
	rtps.VendorEclipse:  {Vendor: rtps.VendorEclipse, RequiresInfoDstOnSedp: false, SendsConfirmationAckNack: false, ExpectsFreshSeqReannounce: false},
	rtps.VendorHdds:     {Vendor: rtps.VendorHdds},
}

// defaultDialectRules is used for peers whose vendor id is not yet
// locked onto a known dialect: the conservative no-workarounds set.
var defaultDialectRules = DialectRules{Vendor: rtps.VendorUnknown}

const confirmingObservationsToLock = 3

// DialectDetector observes vendor_id and packet-shape signatures from
// incoming SPDP/SEDP packets and locks onto a dialect after a few
// confirming observations (spec §4.5 "Dialect detector").
type DialectDetector struct {
	observations map[rtps.GuidPrefix]dialectObservation
}

type dialectObservation struct {
	vendor   rtps.VendorId
	count    int
	locked   bool
}

// NewDialectDetector constructs an empty detector.
func NewDialectDetector() *DialectDetector {
	return &DialectDetector{observations: make(map[rtps.GuidPrefix]dialectObservation)}
}

// Observe records one more sighting of vendor for peer, locking the
// dialect once confirmingObservationsToLock consistent observations
// have been seen. A vendor change before locking resets the counter; a
// vendor change after locking re-opens detection (a peer restarting
// with different software is rare but not impossible).
func (d *DialectDetector) Observe(peer rtps.GuidPrefix, vendor rtps.VendorId) {
	obs, ok := d.observations[peer]
	if !ok || obs.vendor != vendor {
		d.observations[peer] = dialectObservation{vendor: vendor, count: 1}
		return
	}
	obs.count++
	if obs.count >= confirmingObservationsToLock {
		obs.locked = true
	}
	d.observations[peer] = obs
}

// RulesFor returns the locked-in dialect rules for peer, or the
// conservative default if detection has not yet locked on.
func (d *DialectDetector) RulesFor(peer rtps.GuidPrefix) DialectRules {
	obs, ok := d.observations[peer]
	if !ok || !obs.locked {
		return defaultDialectRules
	}
	if rules, ok := knownDialects[obs.vendor]; ok {
		return rules
	}
	return defaultDialectRules
}
