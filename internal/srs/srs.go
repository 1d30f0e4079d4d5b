// Package srs implements the card scheduling algorithm: a short learning
// ladder followed by SM-2 style interval growth.
package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/lexideck/internal/domain"
)

const day = 24 * time.Hour

// Requeue asks the caller to show the card again later in the same session.
type Requeue struct {
	Delay time.Duration
}

// DelayMinutes returns the delay rounded to whole minutes.
func (r Requeue) DelayMinutes() int {
	return int(math.Round(r.Delay.Minutes()))
}

// Outcome is the result of reviewing a card with one particular quality.
type Outcome struct {
	Card    domain.Card
	Requeue *Requeue
}

// Algorithm computes the next scheduling state of a card. It holds no
// mutable state and is safe for concurrent use.
type Algorithm struct {
	p Params
}

// New creates an Algorithm from validated parameters.
func New(p Params) (*Algorithm, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	steps := make([]time.Duration, len(p.LearningSteps))
	copy(steps, p.LearningSteps)
	p.LearningSteps = steps
	return &Algorithm{p: p}, nil
}

// Params returns a copy of the parameters the algorithm was built with.
func (a *Algorithm) Params() Params {
	p := a.p
	p.LearningSteps = append([]time.Duration(nil), a.p.LearningSteps...)
	return p
}

// IsLeech reports whether the card has reached the leech threshold.
func (a *Algorithm) IsLeech(card domain.Card) bool {
	return card.SRS.IsLeech(a.p.LeechThreshold)
}

// ComputeNext applies a review of quality q at time now to card. The input
// card is not mutated. A non-nil Requeue means the card stays on the learning
// ladder and should come back after Requeue.Delay.
func (a *Algorithm) ComputeNext(card domain.Card, q Quality, now time.Time) (domain.Card, *Requeue, error) {
	if !q.IsValid() {
		return card, nil, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	if err := a.check(card.SRS); err != nil {
		return card, nil, fmt.Errorf("card %s: %w", card.ID, err)
	}

	c := card.Clone()
	s := &c.SRS
	phase := s.Phase()
	if s.EaseFactor < a.p.EaseFloor {
		if phase == domain.PhaseNew && s.EaseFactor == 0 {
			s.EaseFactor = domain.InitialEase
		} else {
			s.EaseFactor = a.p.EaseFloor
		}
	}

	var rq *Requeue
	switch phase {
	case domain.PhaseNew:
		s.LearningStep = 0
		rq = a.learn(s, q, now)
	case domain.PhaseLearning, domain.PhaseRelearning:
		if s.LearningStep >= len(a.p.LearningSteps) {
			s.LearningStep = len(a.p.LearningSteps) - 1
		}
		rq = a.learn(s, q, now)
	default:
		rq = a.review(s, q, now)
	}

	reviewed := now
	s.LastReviewedAt = &reviewed
	return c, rq, nil
}

// Preview returns what each of the four qualities would do to card.
func (a *Algorithm) Preview(card domain.Card, now time.Time) (map[Quality]Outcome, error) {
	out := make(map[Quality]Outcome, len(Qualities))
	for _, q := range Qualities {
		c, rq, err := a.ComputeNext(card, q, now)
		if err != nil {
			return nil, err
		}
		out[q] = Outcome{Card: c, Requeue: rq}
	}
	return out, nil
}

func (a *Algorithm) check(s domain.SRS) error {
	switch {
	case s.Repetitions < 0:
		return fmt.Errorf("%w: repetitions %d", ErrInvalidCard, s.Repetitions)
	case s.Lapses < 0:
		return fmt.Errorf("%w: lapses %d", ErrInvalidCard, s.Lapses)
	case s.LearningStep < -1:
		return fmt.Errorf("%w: learning step %d", ErrInvalidCard, s.LearningStep)
	case s.EaseFactor < 0:
		return fmt.Errorf("%w: ease factor %.2f", ErrInvalidCard, s.EaseFactor)
	case s.Phase() == domain.PhaseReview && s.IntervalDays < 1:
		return fmt.Errorf("%w: review card with interval %d", ErrInvalidCard, s.IntervalDays)
	}
	return nil
}

// learn moves a card along the learning ladder. It returns nil once the card
// graduates.
func (a *Algorithm) learn(s *domain.SRS, q Quality, now time.Time) *Requeue {
	steps := a.p.LearningSteps
	switch q {
	case Again:
		s.LearningStep = 0
	case Hard:
		// stays on the current step
	default:
		s.LearningStep++
		if s.LearningStep >= len(steps) {
			a.graduate(s, q, now)
			return nil
		}
	}
	delay := steps[s.LearningStep]
	s.DueAt = now.Add(delay)
	return &Requeue{Delay: delay}
}

func (a *Algorithm) graduate(s *domain.SRS, q Quality, now time.Time) {
	days := a.p.GraduatingInterval
	if q == Easy {
		days = a.p.EasyInterval
	}
	s.LearningStep = -1
	s.Repetitions = 1
	s.IntervalDays = a.clampInterval(days)
	s.DueAt = now.Add(time.Duration(s.IntervalDays) * day)
}

func (a *Algorithm) review(s *domain.SRS, q Quality, now time.Time) *Requeue {
	ivl := float64(s.IntervalDays)
	switch q {
	case Again:
		s.Lapses++
		s.Repetitions = 0
		s.EaseFactor = a.floorEase(s.EaseFactor - a.p.LapseEasePenalty)
		s.LearningStep = 0
		delay := a.p.LearningSteps[0]
		s.DueAt = now.Add(delay)
		return &Requeue{Delay: delay}
	case Hard:
		s.IntervalDays = a.clampInterval(int(math.Round(ivl * a.p.HardMultiplier)))
		s.EaseFactor = a.floorEase(s.EaseFactor - a.p.HardEasePenalty)
	case Good:
		s.IntervalDays = a.clampInterval(int(math.Round(ivl * s.EaseFactor)))
	case Easy:
		s.IntervalDays = a.clampInterval(int(math.Round(ivl * s.EaseFactor * a.p.EasyBonus)))
		s.EaseFactor = roundEase(s.EaseFactor + a.p.EasyEaseBonus)
	}
	s.Repetitions++
	s.DueAt = now.Add(time.Duration(s.IntervalDays) * day)
	return nil
}

func (a *Algorithm) clampInterval(days int) int {
	return min(max(days, 1), a.p.MaxIntervalDays)
}

func (a *Algorithm) floorEase(e float64) float64 {
	return math.Max(a.p.EaseFloor, roundEase(e))
}

// roundEase rounds e to two decimals.
func roundEase(e float64) float64 {
	return math.Round(e*100) / 100
}
