// Package session runs a single study session: it walks the built queue,
// applies reviews, and holds cards on the learning ladder until they are due
// again.
package session

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/srs"
)

// State is the lifecycle state of a Scheduler.
type State int

const (
	Idle State = iota
	Active
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CardStore persists reviewed cards.
type CardStore interface {
	Save(ctx context.Context, card domain.Card) error
}

// ReviewRecorder is implemented by stores that keep a review history.
type ReviewRecorder interface {
	RecordReview(ctx context.Context, log domain.ReviewLog) error
}

// QueueBuilder produces the initial session order.
type QueueBuilder interface {
	Build(ctx context.Context, f queue.Filters, s queue.Settings) (queue.Queue, error)
}

// Hold is a card waiting on the learning ladder.
type Hold struct {
	CardID string    `json:"card_id"`
	DueAt  time.Time `json:"due_at"`
}

// Result describes the outcome of one review.
type Result struct {
	Card    domain.Card
	Requeue *srs.Requeue
	Leech   bool
}

// Stats summarises the unconsumed part of a session.
type Stats struct {
	Total         int `json:"total"`
	Remaining     int `json:"remaining"`
	NewCount      int `json:"new"`
	ReviewCount   int `json:"review"`
	LearningCount int `json:"learning"`
}

// Scheduler is the state machine of one study session. All methods are safe
// for concurrent use; mutations are serialised.
type Scheduler struct {
	id      string
	store   CardStore
	alg     *srs.Algorithm
	builder QueueBuilder
	clock   clock.Clock

	mu    sync.Mutex
	state State
	queue []queue.Entry
	cards map[string]domain.Card
	pos   int // entries before pos have been answered
	holds []Hold
}

// New creates an idle scheduler. A nil clock uses the system clock.
func New(store CardStore, alg *srs.Algorithm, builder QueueBuilder, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		id:      uuid.NewString(),
		store:   store,
		alg:     alg,
		builder: builder,
		clock:   clk,
		cards:   make(map[string]domain.Card),
	}
}

// ID returns the session's unique identifier.
func (s *Scheduler) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Build replaces the session queue with a freshly built one. Pending learning
// holds are dropped; their cards are persisted with a due time and return in
// a later build. An empty queue moves the session straight to Complete.
func (s *Scheduler) Build(ctx context.Context, f queue.Filters, set queue.Settings) error {
	q, err := s.builder.Build(ctx, f, set)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = q.Entries
	s.cards = q.Cards
	if s.cards == nil {
		s.cards = make(map[string]domain.Card)
	}
	s.pos = 0
	s.holds = nil
	s.state = Active
	s.settle()

	slog.Info("session built", "session", s.id, "cards", len(s.queue), "state", s.state)
	return nil
}

// Current returns the entry and card to answer next. ok is false when the
// queue is exhausted.
func (s *Scheduler) Current() (queue.Entry, domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.queue) {
		return queue.Entry{}, domain.Card{}, false
	}
	e := s.queue[s.pos]
	return e, s.cards[e.CardID].Clone(), true
}

// Review answers the current card with quality q. An invalid quality leaves
// the session untouched. When the card store rejects the write, the review
// stays applied in memory, the position still advances, and a *StoreError is
// returned.
func (s *Scheduler) Review(ctx context.Context, q srs.Quality) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.queue) {
		return Result{}, ErrNoCurrentCard
	}
	entry := s.queue[s.pos]
	before := s.cards[entry.CardID]
	now := s.clock.Now()

	next, rq, err := s.alg.ComputeNext(before, q, now)
	if err != nil {
		return Result{}, err
	}

	s.cards[entry.CardID] = next
	if rq != nil {
		s.hold(Hold{CardID: entry.CardID, DueAt: now.Add(rq.Delay)})
	}
	s.pos++
	s.settle()

	res := Result{Card: next.Clone(), Requeue: rq, Leech: s.alg.IsLeech(next)}
	if res.Leech && !s.alg.IsLeech(before) {
		slog.Info("card became a leech", "session", s.id, "card", entry.CardID, "lapses", next.SRS.Lapses)
	}

	if err := s.store.Save(ctx, next); err != nil {
		slog.Warn("failed to persist review", "session", s.id, "card", entry.CardID, "error", err)
		return res, &StoreError{CardID: entry.CardID, Err: err}
	}
	if rec, ok := s.store.(ReviewRecorder); ok {
		err := rec.RecordReview(ctx, domain.ReviewLog{
			CardID:       entry.CardID,
			SessionID:    s.id,
			Quality:      int(q),
			ReviewedAt:   now,
			PhaseBefore:  before.SRS.Phase(),
			IntervalDays: next.SRS.IntervalDays,
			EaseFactor:   next.SRS.EaseFactor,
			DueAt:        next.SRS.DueAt,
		})
		if err != nil {
			slog.Warn("failed to record review", "session", s.id, "card", entry.CardID, "error", err)
			return res, &StoreError{CardID: entry.CardID, Err: err}
		}
	}
	return res, nil
}

// Tick promotes every held card due at now back into the queue, right after
// the current card, in the order they became due. It returns the number of
// cards promoted.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(s.holds) && !s.holds[n].DueAt.After(now) {
		n++
	}
	if n == 0 {
		s.settle()
		return 0
	}

	due := s.holds[:n]
	promoted := make([]queue.Entry, len(due))
	for i, h := range due {
		promoted[i] = queue.Entry{CardType: s.cards[h.CardID].Type, CardID: h.CardID}
	}
	s.holds = slices.Clone(s.holds[n:])

	at := s.pos
	if at < len(s.queue) {
		at++
	}
	s.queue = slices.Insert(s.queue, at, promoted...)

	slog.Debug("learning cards promoted", "session", s.id, "count", n, "held", len(s.holds))
	return n
}

// WaitSeconds returns the whole seconds until the next held card is due,
// never negative. ok is false when nothing is held.
func (s *Scheduler) WaitSeconds() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.holds) == 0 {
		return 0, false
	}
	d := s.holds[0].DueAt.Sub(s.clock.Now())
	return max(0, int(math.Ceil(d.Seconds()))), true
}

// Stats scans the unconsumed part of the queue and the hold list. A card
// counts as new while its repetitions are zero.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:         len(s.queue),
		LearningCount: len(s.holds),
	}
	for _, e := range s.queue[s.pos:] {
		if s.cards[e.CardID].SRS.Repetitions == 0 {
			st.NewCount++
		} else {
			st.ReviewCount++
		}
	}
	st.Remaining = st.NewCount + st.ReviewCount + st.LearningCount
	return st
}

// Queue returns a copy of the full queue, answered entries included, and the
// current position within it.
func (s *Scheduler) Queue() ([]queue.Entry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue), s.pos
}

// Holds returns a copy of the learning hold list, earliest first.
func (s *Scheduler) Holds() []Hold {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.holds)
}

// Preview reports what each quality would do to the current card.
func (s *Scheduler) Preview() (map[srs.Quality]srs.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.queue) {
		return nil, ErrNoCurrentCard
	}
	return s.alg.Preview(s.cards[s.queue[s.pos].CardID], s.clock.Now())
}

// Run calls Tick on every tick of a ticker with period every until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.clock.Now())
		}
	}
}

// hold inserts h after every hold due at or before h.DueAt.
func (s *Scheduler) hold(h Hold) {
	i, _ := slices.BinarySearchFunc(s.holds, h.DueAt, func(e Hold, t time.Time) int {
		if e.DueAt.After(t) {
			return 1
		}
		return -1
	})
	s.holds = slices.Insert(s.holds, i, h)
}

// settle moves an exhausted session with no holds to Complete.
func (s *Scheduler) settle() {
	if s.state == Active && s.pos >= len(s.queue) && len(s.holds) == 0 {
		s.state = Complete
	}
}
