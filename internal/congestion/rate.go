package congestion

import "sync"

// RateConfig bounds and steps the AIMD rate controller (spec §4.6 "Rate
// controller (AIMD)").
type RateConfig struct {
	Min          float64 // bytes/sec
	Max          float64
	AiStep       float64
	MdFactorSoft float64
	MdFactorHard float64
}

// DefaultRateConfig matches spec §4.6's stated defaults.
func DefaultRateConfig(min, max float64) RateConfig {
	return RateConfig{
		Min:          min,
		Max:          max,
		AiStep:       max * 0.05,
		MdFactorSoft: 0.85,
		MdFactorHard: 0.5,
	}
}

// RateController maintains rate ∈ [min, max], starting at max (spec
// §4.6 "Initial rate = max").
type RateController struct {
	mu   sync.Mutex
	cfg  RateConfig
	rate float64
}

// NewRateController builds a controller at its initial (max) rate.
func NewRateController(cfg RateConfig) *RateController {
	return &RateController{cfg: cfg, rate: cfg.Max}
}

// Apply updates the rate in response to an Action (spec §4.6 "On
// Increase... On DecreaseSoft... On DecreaseHard...").
func (r *RateController) Apply(action Action) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch action {
	case ActionIncrease:
		r.rate = min(r.rate+r.cfg.AiStep, r.cfg.Max)
	case ActionDecreaseSoft:
		r.rate = max(r.rate*r.cfg.MdFactorSoft, r.cfg.Min)
	case ActionDecreaseHard:
		r.rate = max(r.rate*r.cfg.MdFactorHard, r.cfg.Min)
	}
	return r.rate
}

// Rate returns the current rate.
func (r *RateController) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}
