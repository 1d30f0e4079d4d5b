package srs

import (
	"fmt"
	"time"
)

// Params holds the tunables of the scheduling algorithm.
type Params struct {
	LearningSteps      []time.Duration // short delays of the learning ladder
	EaseFloor          float64         // ease never drops below this
	MaxIntervalDays    int
	GraduatingInterval int // days, when leaving the ladder with Good
	EasyInterval       int // days, when leaving the ladder with Easy
	HardMultiplier     float64
	EasyBonus          float64
	LapseEasePenalty   float64
	HardEasePenalty    float64
	EasyEaseBonus      float64
	LeechThreshold     int
}

// DefaultParams returns the stock ladder (1m, 10m) and SM-2 style factors.
func DefaultParams() Params {
	return Params{
		LearningSteps:      []time.Duration{time.Minute, 10 * time.Minute},
		EaseFloor:          1.3,
		MaxIntervalDays:    36500,
		GraduatingInterval: 1,
		EasyInterval:       4,
		HardMultiplier:     1.2,
		EasyBonus:          1.3,
		LapseEasePenalty:   0.20,
		HardEasePenalty:    0.15,
		EasyEaseBonus:      0.15,
		LeechThreshold:     8,
	}
}

// Validate checks that p can drive the algorithm.
func (p Params) Validate() error {
	if len(p.LearningSteps) == 0 {
		return fmt.Errorf("%w: at least one learning step is required", ErrInvalidParams)
	}
	for i, d := range p.LearningSteps {
		if d <= 0 {
			return fmt.Errorf("%w: learning step %d is %v", ErrInvalidParams, i, d)
		}
	}
	if p.EaseFloor <= 1.0 {
		return fmt.Errorf("%w: ease floor %.2f must be above 1.0", ErrInvalidParams, p.EaseFloor)
	}
	if p.MaxIntervalDays < 1 {
		return fmt.Errorf("%w: maximum interval %d must be positive", ErrInvalidParams, p.MaxIntervalDays)
	}
	if p.GraduatingInterval < 1 || p.EasyInterval < 1 {
		return fmt.Errorf("%w: graduating intervals must be at least one day", ErrInvalidParams)
	}
	if p.HardMultiplier < 1 || p.EasyBonus < 1 {
		return fmt.Errorf("%w: hard multiplier and easy bonus must be at least 1", ErrInvalidParams)
	}
	if p.LapseEasePenalty < 0 || p.HardEasePenalty < 0 || p.EasyEaseBonus < 0 {
		return fmt.Errorf("%w: ease adjustments must not be negative", ErrInvalidParams)
	}
	if p.LeechThreshold < 1 {
		return fmt.Errorf("%w: leech threshold %d must be positive", ErrInvalidParams, p.LeechThreshold)
	}
	return nil
}
