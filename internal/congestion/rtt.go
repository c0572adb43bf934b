package congestion

import (
	"time"
)

// RttConfig tunes the inflation detector (spec §4.6 "RTT tracking").
type RttConfig struct {
	EwmaAlpha           float64       // smoothing factor for the EWMA
	InflationRatio       float64       // α: smoothed/base ratio that counts as inflated
	ConsecutiveToInflate int           // β: consecutive inflated samples before reporting
	BaseWindow           time.Duration // sliding window over which base RTT (min) is tracked
}

// DefaultRttConfig matches spec §4.6's stated defaults.
func DefaultRttConfig() RttConfig {
	return RttConfig{
		EwmaAlpha:            0.125,
		InflationRatio:       2.0,
		ConsecutiveToInflate: 3,
		BaseWindow:           30 * time.Second,
	}
}

type rttSample struct {
	value time.Duration
	at    time.Time
}

// RttTracker maintains a per-peer smoothed RTT and a sliding-window
// base (minimum) RTT, flagging inflation once the smoothed value
// exceeds InflationRatio×base for ConsecutiveToInflate samples in a
// row (spec §4.6 "RTT tracking").
type RttTracker struct {
	cfg RttConfig

	smoothed time.Duration
	hasValue bool

	window    []rttSample
	inflatedN int
}

// NewRttTracker constructs an empty tracker.
func NewRttTracker(cfg RttConfig) *RttTracker {
	return &RttTracker{cfg: cfg}
}

// Observe records one RTT sample (e.g. measured between a HEARTBEAT and
// its ACKNACK) and reports whether the connection now looks inflated.
func (t *RttTracker) Observe(sample time.Duration, now time.Time) bool {
	if !t.hasValue {
		t.smoothed = sample
		t.hasValue = true
	} else {
		t.smoothed = time.Duration(float64(t.smoothed)*(1-t.cfg.EwmaAlpha) + float64(sample)*t.cfg.EwmaAlpha)
	}

	t.window = append(t.window, rttSample{value: sample, at: now})
	t.pruneWindow(now)

	base := t.baseRtt()
	if base <= 0 {
		t.inflatedN = 0
		return false
	}

	if float64(t.smoothed) > t.cfg.InflationRatio*float64(base) {
		t.inflatedN++
	} else {
		t.inflatedN = 0
	}
	return t.inflatedN >= t.cfg.ConsecutiveToInflate
}

func (t *RttTracker) pruneWindow(now time.Time) {
	cutoff := now.Add(-t.cfg.BaseWindow)
	i := 0
	for ; i < len(t.window); i++ {
		if t.window[i].at.After(cutoff) {
			break
		}
	}
	t.window = t.window[i:]
}

func (t *RttTracker) baseRtt() time.Duration {
	if len(t.window) == 0 {
		return 0
	}
	base := t.window[0].value
	for _, s := range t.window[1:] {
		if s.value < base {
			base = s.value
		}
	}
	return base
}

// Smoothed returns the current EWMA RTT.
func (t *RttTracker) Smoothed() time.Duration {
	return t.smoothed
}

// Base returns the current sliding-window base (minimum) RTT.
func (t *RttTracker) Base() time.Duration {
	return t.baseRtt()
}
