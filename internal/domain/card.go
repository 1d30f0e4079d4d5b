package domain

import (
	"fmt"
	"time"
)

// CardType identifies which kind of study material a card holds.
type CardType int

const (
	Vocabulary CardType = iota + 1
	Grammar
	Verse
)

// CardTypes lists every card type in interleave priority order.
var CardTypes = []CardType{Vocabulary, Grammar, Verse}

var cardTypeNames = [...]string{Vocabulary: "vocabulary", Grammar: "grammar", Verse: "verse"}

// IsValid reports whether t is one of the known card types.
func (t CardType) IsValid() bool {
	return t >= Vocabulary && t <= Verse
}

func (t CardType) String() string {
	if t.IsValid() {
		return cardTypeNames[t]
	}
	return fmt.Sprintf("CardType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t CardType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid card type: %d", int(t))
	}
	return []byte(cardTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *CardType) UnmarshalText(text []byte) error {
	v, err := ParseCardType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseCardType converts a name into a CardType. Besides the full names,
// "vocab", "v" and "g" are accepted.
func ParseCardType(s string) (CardType, error) {
	switch s {
	case "vocabulary", "vocab", "v":
		return Vocabulary, nil
	case "grammar", "g":
		return Grammar, nil
	case "verse":
		return Verse, nil
	}
	return 0, fmt.Errorf("invalid card type: %q", s)
}

// Card represents a single study item together with its scheduling record.
type Card struct {
	ID         string
	Type       CardType
	Front      string
	Back       string
	Context    string
	Attributes map[string]string
	SRS        SRS
}

// NewCard returns a card of the given type that has never been studied.
// The card is due immediately.
func NewCard(id string, t CardType, now time.Time) Card {
	return Card{
		ID:   id,
		Type: t,
		SRS:  NewSRS(now),
	}
}

// Attr returns the named attribute, or "" when it is unset.
func (c Card) Attr(key string) string {
	return c.Attributes[key]
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	if c.Attributes != nil {
		out.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	out.SRS = c.SRS.Clone()
	return out
}

// ReviewLog records a single review event for a card.
// Quality follows the four-button scale:
// 1: Again
// 2: Hard
// 3: Good
// 4: Easy
type ReviewLog struct {
	ID           string
	CardID       string
	SessionID    string
	Quality      int
	ReviewedAt   time.Time
	PhaseBefore  Phase
	IntervalDays int
	EaseFactor   float64
	DueAt        time.Time
}
