package domain

import (
	"fmt"
	"time"
)

const (
	// InitialEase is the ease factor every new card starts with.
	InitialEase = 2.5
	// DefaultLeechThreshold is the lapse count at which a card becomes a leech.
	DefaultLeechThreshold = 8
)

// Phase is the derived stage of a card in the repetition cycle.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseLearning
	PhaseReview
	PhaseRelearning
)

var phaseNames = [...]string{
	PhaseNew:        "new",
	PhaseLearning:   "learning",
	PhaseReview:     "review",
	PhaseRelearning: "relearning",
}

func (p Phase) String() string {
	if p >= PhaseNew && p <= PhaseRelearning {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// SRS is the durable scheduling record of a card.
type SRS struct {
	Repetitions    int
	IntervalDays   int
	EaseFactor     float64
	DueAt          time.Time
	Lapses         int
	LearningStep   int        // -1 when not on the learning ladder.
	LastReviewedAt *time.Time // nil before the first review.
}

// NewSRS returns the record of a card that has never been reviewed.
func NewSRS(now time.Time) SRS {
	return SRS{
		EaseFactor:   InitialEase,
		DueAt:        now,
		LearningStep: -1,
	}
}

// Phase derives the card's stage from its fields.
func (s SRS) Phase() Phase {
	switch {
	case s.LearningStep >= 0 && s.Lapses > 0:
		return PhaseRelearning
	case s.LearningStep >= 0:
		return PhaseLearning
	case s.Repetitions == 0 && s.LastReviewedAt == nil:
		return PhaseNew
	default:
		return PhaseReview
	}
}

// IsLeech reports whether the card has lapsed at least threshold times.
// Lapses never decrease, so once set the flag stays set.
func (s SRS) IsLeech(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultLeechThreshold
	}
	return s.Lapses >= threshold
}

// Clone returns a copy that shares no pointers with s.
func (s SRS) Clone() SRS {
	out := s
	if s.LastReviewedAt != nil {
		v := *s.LastReviewedAt
		out.LastReviewedAt = &v
	}
	return out
}
