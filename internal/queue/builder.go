// Package queue assembles the ordered card sequence of a study session from
// due and new cards, applying filters and interleaving card types.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
)

// Entry is one position in a study queue.
type Entry struct {
	CardType domain.CardType `json:"card_type"`
	CardID   string          `json:"card_id"`
}

// CardStore is the read side of the card store used to fill a queue.
type CardStore interface {
	FetchDue(ctx context.Context, t domain.CardType, now time.Time) ([]domain.Card, error)
	FetchNew(ctx context.Context, t domain.CardType, limit int) ([]domain.Card, error)
}

// Queue is a built session order together with the cards it refers to.
type Queue struct {
	Entries []Entry
	Cards   map[string]domain.Card
}

// Len returns the number of entries.
func (q Queue) Len() int {
	return len(q.Entries)
}

// BuilderConfig configures a Builder. Zero values select defaults.
type BuilderConfig struct {
	Clock          clock.Clock                         // nil -> clock.Real
	Interleaver    Interleaver                         // nil -> TargetRatio
	TypeFilters    map[domain.CardType]FilterPredicate // missing -> MatchAttributes
	StatusFilter   StatusPredicate                     // nil -> MatchStatus(LeechThreshold)
	LeechThreshold int                                 // zero -> domain.DefaultLeechThreshold
}

// Builder builds study queues. It is safe for concurrent use.
type Builder struct {
	store        CardStore
	clock        clock.Clock
	interleaver  Interleaver
	typeFilters  map[domain.CardType]FilterPredicate
	statusFilter StatusPredicate
	validate     *validator.Validate
}

// NewBuilder creates a Builder reading from store.
func NewBuilder(store CardStore, cfg BuilderConfig) *Builder {
	b := &Builder{
		store:        store,
		clock:        cfg.Clock,
		interleaver:  cfg.Interleaver,
		typeFilters:  make(map[domain.CardType]FilterPredicate, len(domain.CardTypes)),
		statusFilter: cfg.StatusFilter,
		validate:     newValidator(),
	}
	if b.clock == nil {
		b.clock = clock.Real{}
	}
	if b.interleaver == nil {
		b.interleaver = NewTargetRatio(nil)
	}
	for _, t := range domain.CardTypes {
		b.typeFilters[t] = MatchAttributes
		if p, ok := cfg.TypeFilters[t]; ok && p != nil {
			b.typeFilters[t] = p
		}
	}
	if b.statusFilter == nil {
		threshold := cfg.LeechThreshold
		if threshold == 0 {
			threshold = domain.DefaultLeechThreshold
		}
		b.statusFilter = MatchStatus(threshold)
	}
	return b
}

// Build fetches the due cards and a bounded number of new cards for every
// enabled type, filters them and interleaves the result. A selection that
// matches nothing yields an empty queue, not an error.
func (b *Builder) Build(ctx context.Context, f Filters, s Settings) (Queue, error) {
	if err := validate(b.validate, f, s); err != nil {
		return Queue{}, err
	}

	now := b.clock.Now()
	q := Queue{Cards: make(map[string]domain.Card)}
	groups := make(map[domain.CardType][]Entry, len(domain.CardTypes))

	for _, t := range domain.CardTypes {
		if !f.Enabled(t) {
			continue
		}
		due, err := b.store.FetchDue(ctx, t, now)
		if err != nil {
			return Queue{}, fmt.Errorf("fetch due %s cards: %w", t, err)
		}
		fresh, err := b.store.FetchNew(ctx, t, s.NewCardLimit(t))
		if err != nil {
			return Queue{}, fmt.Errorf("fetch new %s cards: %w", t, err)
		}

		var skipped int
		for _, c := range append(due, fresh...) {
			if _, dup := q.Cards[c.ID]; dup {
				continue
			}
			if c.Type != t || !b.typeFilters[t](c, f) || !b.statusFilter(c, f) {
				skipped++
				continue
			}
			q.Cards[c.ID] = c
			groups[t] = append(groups[t], Entry{CardType: t, CardID: c.ID})
		}
		slog.Debug("queue group collected",
			"type", t,
			"due", len(due),
			"new", len(fresh),
			"kept", len(groups[t]),
			"filtered", skipped,
		)
	}

	q.Entries = b.interleaver.Interleave(groups, s.InterleaveRatio)
	return q, nil
}
