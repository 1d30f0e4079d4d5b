package queue

import (
	"slices"

	"github.com/conorfennell/lexideck/internal/domain"
)

// Status groups cards by where they are in the repetition cycle. Leeches form
// their own group regardless of phase.
type Status string

const (
	StatusNew      Status = "new"
	StatusLearning Status = "learning"
	StatusReview   Status = "review"
	StatusLeech    Status = "leech"
)

// StatusOf classifies a card for status filtering.
func StatusOf(c domain.Card, leechThreshold int) Status {
	if c.SRS.IsLeech(leechThreshold) {
		return StatusLeech
	}
	switch c.SRS.Phase() {
	case domain.PhaseNew:
		return StatusNew
	case domain.PhaseLearning, domain.PhaseRelearning:
		return StatusLearning
	default:
		return StatusReview
	}
}

// Filters selects which cards make it into a study queue.
type Filters struct {
	// CardTypes enables card types; a type that is absent or false is skipped.
	CardTypes map[domain.CardType]bool `json:"card_types"`
	// Attributes restricts cards of a type to the listed attribute values,
	// e.g. {Vocabulary: {"level": ["A1", "A2"]}}.
	Attributes map[domain.CardType]map[string][]string `json:"attributes,omitempty"`
	// Statuses limits the queue to the listed groups. Empty means all.
	Statuses []Status `json:"statuses,omitempty" validate:"dive,oneof=new learning review leech"`
}

// AllTypes returns filters with every card type enabled and no restrictions.
func AllTypes() Filters {
	f := Filters{CardTypes: make(map[domain.CardType]bool, len(domain.CardTypes))}
	for _, t := range domain.CardTypes {
		f.CardTypes[t] = true
	}
	return f
}

// Enabled reports whether cards of type t should be studied.
func (f Filters) Enabled(t domain.CardType) bool {
	return f.CardTypes[t]
}

// HasStatus reports whether s is selected. An empty selection selects all.
func (f Filters) HasStatus(s Status) bool {
	return len(f.Statuses) == 0 || slices.Contains(f.Statuses, s)
}

// FilterPredicate decides whether a card of a given type passes the
// type-specific filters.
type FilterPredicate func(card domain.Card, f Filters) bool

// StatusPredicate decides whether a card passes the SRS status filter.
type StatusPredicate func(card domain.Card, f Filters) bool

// MatchAttributes is the default FilterPredicate: every attribute listed for
// the card's type must hold one of the allowed values.
func MatchAttributes(card domain.Card, f Filters) bool {
	for key, allowed := range f.Attributes[card.Type] {
		if len(allowed) == 0 {
			continue
		}
		if !slices.Contains(allowed, card.Attr(key)) {
			return false
		}
	}
	return true
}

// MatchStatus returns the default StatusPredicate for the given leech threshold.
func MatchStatus(leechThreshold int) StatusPredicate {
	return func(card domain.Card, f Filters) bool {
		return f.HasStatus(StatusOf(card, leechThreshold))
	}
}
