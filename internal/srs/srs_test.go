package srs

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/lexideck/internal/domain"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func mustAlgorithm(t *testing.T) *Algorithm {
	t.Helper()
	a, err := New(DefaultParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func reviewCard(interval int, ease float64) domain.Card {
	last := t0.Add(-time.Duration(interval) * day)
	c := domain.NewCard("c1", domain.Vocabulary, last)
	c.SRS.Repetitions = 3
	c.SRS.IntervalDays = interval
	c.SRS.EaseFactor = ease
	c.SRS.DueAt = t0
	c.SRS.LastReviewedAt = &last
	return c
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.LearningSteps = nil
	if _, err := New(p); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for empty ladder, got %v", err)
	}

	p = DefaultParams()
	p.EaseFloor = 1.0
	if _, err := New(p); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for ease floor 1.0, got %v", err)
	}
}

func TestInvalidQuality(t *testing.T) {
	a := mustAlgorithm(t)
	card := domain.NewCard("c1", domain.Vocabulary, t0)
	for _, q := range []Quality{0, 5, -1} {
		if _, _, err := a.ComputeNext(card, q, t0); !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("Expected ErrInvalidQuality for %d, got %v", q, err)
		}
	}
}

func TestInvalidCard(t *testing.T) {
	a := mustAlgorithm(t)
	card := reviewCard(10, 2.5)
	card.SRS.IntervalDays = 0
	if _, _, err := a.ComputeNext(card, Good, t0); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("Expected ErrInvalidCard for review card without interval, got %v", err)
	}

	card = domain.NewCard("c2", domain.Grammar, t0)
	card.SRS.Lapses = -1
	if _, _, err := a.ComputeNext(card, Good, t0); !errors.Is(err, ErrInvalidCard) {
		t.Errorf("Expected ErrInvalidCard for negative lapses, got %v", err)
	}
}

func TestLearningPhase(t *testing.T) {
	a := mustAlgorithm(t)

	t.Run("First review Good advances the ladder", func(t *testing.T) {
		card := domain.NewCard("c1", domain.Vocabulary, t0)
		next, rq, err := a.ComputeNext(card, Good, t0)
		if err != nil {
			t.Fatalf("ComputeNext: %v", err)
		}
		if next.SRS.LearningStep != 1 {
			t.Errorf("Expected learning step 1, got %d", next.SRS.LearningStep)
		}
		if rq == nil || rq.DelayMinutes() != 10 {
			t.Fatalf("Expected a 10 minute requeue, got %+v", rq)
		}
		if next.SRS.Repetitions != 0 {
			t.Errorf("Expected repetitions to stay 0 until graduation, got %d", next.SRS.Repetitions)
		}
		if !next.SRS.DueAt.Equal(t0.Add(10 * time.Minute)) {
			t.Errorf("Expected due in 10 minutes, got %v", next.SRS.DueAt)
		}
		if next.SRS.Phase() != domain.PhaseLearning {
			t.Errorf("Expected learning phase, got %v", next.SRS.Phase())
		}
	})

	t.Run("Again resets to the first step", func(t *testing.T) {
		card := domain.NewCard("c1", domain.Vocabulary, t0)
		card.SRS.LearningStep = 1
		next, rq, err := a.ComputeNext(card, Again, t0)
		if err != nil {
			t.Fatalf("ComputeNext: %v", err)
		}
		if next.SRS.LearningStep != 0 || rq == nil || rq.DelayMinutes() != 1 {
			t.Errorf("Expected step 0 with 1 minute requeue, got step %d, requeue %+v", next.SRS.LearningStep, rq)
		}
		if next.SRS.Lapses != 0 {
			t.Errorf("Again during learning must not count as a lapse, got %d", next.SRS.Lapses)
		}
	})

	t.Run("Hard repeats the current step", func(t *testing.T) {
		card := domain.NewCard("c1", domain.Vocabulary, t0)
		card.SRS.LearningStep = 1
		next, rq, _ := a.ComputeNext(card, Hard, t0)
		if next.SRS.LearningStep != 1 || rq == nil || rq.DelayMinutes() != 10 {
			t.Errorf("Expected step 1 with 10 minute requeue, got step %d, requeue %+v", next.SRS.LearningStep, rq)
		}
	})

	t.Run("Good on the last step graduates", func(t *testing.T) {
		card := domain.NewCard("c1", domain.Vocabulary, t0)
		card.SRS.LearningStep = 1
		next, rq, _ := a.ComputeNext(card, Good, t0)
		if rq != nil {
			t.Fatalf("Expected no requeue after graduation, got %+v", rq)
		}
		if next.SRS.LearningStep != -1 || next.SRS.Phase() != domain.PhaseReview {
			t.Errorf("Expected review phase, got %v (step %d)", next.SRS.Phase(), next.SRS.LearningStep)
		}
		if next.SRS.IntervalDays != 1 || next.SRS.Repetitions != 1 {
			t.Errorf("Expected interval 1 and repetitions 1, got %d and %d", next.SRS.IntervalDays, next.SRS.Repetitions)
		}
		if !next.SRS.DueAt.Equal(t0.Add(day)) {
			t.Errorf("Expected due in one day, got %v", next.SRS.DueAt)
		}
	})

	t.Run("Easy on the last step graduates with the easy interval", func(t *testing.T) {
		card := domain.NewCard("c1", domain.Vocabulary, t0)
		card.SRS.LearningStep = 1
		next, _, _ := a.ComputeNext(card, Easy, t0)
		if next.SRS.IntervalDays != 4 {
			t.Errorf("Expected easy graduation interval 4, got %d", next.SRS.IntervalDays)
		}
	})
}

func TestReviewPhase(t *testing.T) {
	a := mustAlgorithm(t)

	t.Run("Good multiplies by ease", func(t *testing.T) {
		next, rq, err := a.ComputeNext(reviewCard(10, 2.5), Good, t0)
		if err != nil {
			t.Fatalf("ComputeNext: %v", err)
		}
		if rq != nil {
			t.Errorf("Expected no requeue, got %+v", rq)
		}
		if next.SRS.IntervalDays != 25 {
			t.Errorf("Expected interval 25, got %d", next.SRS.IntervalDays)
		}
		if next.SRS.Repetitions != 4 {
			t.Errorf("Expected repetitions 4, got %d", next.SRS.Repetitions)
		}
		if !next.SRS.DueAt.Equal(t0.Add(25 * day)) {
			t.Errorf("Expected due in 25 days, got %v", next.SRS.DueAt)
		}
	})

	t.Run("Hard grows by 1.2 and lowers ease", func(t *testing.T) {
		next, _, _ := a.ComputeNext(reviewCard(10, 2.5), Hard, t0)
		if next.SRS.IntervalDays != 12 {
			t.Errorf("Expected interval 12, got %d", next.SRS.IntervalDays)
		}
		if next.SRS.EaseFactor != 2.35 {
			t.Errorf("Expected ease 2.35, got %.2f", next.SRS.EaseFactor)
		}
	})

	t.Run("Easy applies the bonus and raises ease", func(t *testing.T) {
		next, _, _ := a.ComputeNext(reviewCard(10, 2.5), Easy, t0)
		if next.SRS.IntervalDays != 33 { // round(10 * 2.5 * 1.3) = round(32.5)
			t.Errorf("Expected interval 33, got %d", next.SRS.IntervalDays)
		}
		if next.SRS.EaseFactor != 2.65 {
			t.Errorf("Expected ease 2.65, got %.2f", next.SRS.EaseFactor)
		}
	})

	t.Run("Again lapses into relearning", func(t *testing.T) {
		next, rq, _ := a.ComputeNext(reviewCard(10, 2.5), Again, t0)
		if next.SRS.Lapses != 1 {
			t.Errorf("Expected 1 lapse, got %d", next.SRS.Lapses)
		}
		if next.SRS.Repetitions != 0 {
			t.Errorf("Expected repetitions reset to 0, got %d", next.SRS.Repetitions)
		}
		if next.SRS.LearningStep != 0 || next.SRS.Phase() != domain.PhaseRelearning {
			t.Errorf("Expected relearning at step 0, got %v step %d", next.SRS.Phase(), next.SRS.LearningStep)
		}
		if next.SRS.EaseFactor != 2.3 {
			t.Errorf("Expected ease 2.3, got %.2f", next.SRS.EaseFactor)
		}
		if rq == nil || rq.DelayMinutes() != 1 {
			t.Fatalf("Expected a 1 minute requeue, got %+v", rq)
		}
		if next.SRS.DueAt.Sub(t0) >= time.Hour {
			t.Errorf("Expected minute-scale due horizon, got %v", next.SRS.DueAt.Sub(t0))
		}
	})

	t.Run("Interval is clamped to the maximum", func(t *testing.T) {
		p := DefaultParams()
		p.MaxIntervalDays = 30
		capped, err := New(p)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		next, _, _ := capped.ComputeNext(reviewCard(20, 2.5), Easy, t0)
		if next.SRS.IntervalDays != 30 {
			t.Errorf("Expected interval clamped to 30, got %d", next.SRS.IntervalDays)
		}
	})
}

func TestSuccessfulReviewsPushDueDateForward(t *testing.T) {
	a := mustAlgorithm(t)
	for _, ivl := range []int{1, 2, 5, 40} {
		for _, q := range []Quality{Hard, Good, Easy} {
			next, _, _ := a.ComputeNext(reviewCard(ivl, 1.3), q, t0)
			if !next.SRS.DueAt.After(t0) {
				t.Errorf("interval %d, %v: due %v is not after now", ivl, q, next.SRS.DueAt)
			}
			if next.SRS.DueAt.Sub(t0) < day {
				t.Errorf("interval %d, %v: due horizon %v below one day", ivl, q, next.SRS.DueAt.Sub(t0))
			}
		}
	}
}

func TestEaseNeverDropsBelowFloor(t *testing.T) {
	a := mustAlgorithm(t)
	card := reviewCard(10, 2.5)
	now := t0
	for i := 0; i < 30; i++ {
		var err error
		var rq *Requeue
		card, rq, err = a.ComputeNext(card, Again, now)
		if err != nil {
			t.Fatalf("ComputeNext: %v", err)
		}
		if card.SRS.EaseFactor < 1.3 {
			t.Fatalf("Ease dropped to %.2f after %d lapses", card.SRS.EaseFactor, i+1)
		}
		// Walk the card back out of relearning so the next Again is a lapse again.
		now = now.Add(rq.Delay)
		card, _, _ = a.ComputeNext(card, Good, now)
		now = now.Add(10 * time.Minute)
		card, _, _ = a.ComputeNext(card, Good, now)
		now = card.SRS.DueAt
		card, _, _ = a.ComputeNext(card, Hard, now)
		if card.SRS.EaseFactor < 1.3 {
			t.Fatalf("Ease dropped to %.2f after Hard", card.SRS.EaseFactor)
		}
		now = card.SRS.DueAt
	}
}

func TestLapsesCountOnlyInReviewPhase(t *testing.T) {
	a := mustAlgorithm(t)
	card := reviewCard(10, 2.5)

	card, _, _ = a.ComputeNext(card, Again, t0)
	if card.SRS.Lapses != 1 {
		t.Fatalf("Expected 1 lapse, got %d", card.SRS.Lapses)
	}
	// Further Again ratings while relearning do not add lapses.
	for i := 0; i < 3; i++ {
		card, _, _ = a.ComputeNext(card, Again, t0.Add(time.Duration(i+1)*time.Minute))
	}
	if card.SRS.Lapses != 1 {
		t.Errorf("Expected lapses to stay 1 while relearning, got %d", card.SRS.Lapses)
	}
}

func TestLeechFlag(t *testing.T) {
	a := mustAlgorithm(t)
	card := reviewCard(10, 2.5)
	now := t0
	for i := 1; i <= 10; i++ {
		card, _, _ = a.ComputeNext(card, Again, now)
		if got, want := a.IsLeech(card), i >= 8; got != want {
			t.Errorf("After %d lapses IsLeech = %v, want %v", i, got, want)
		}
		now = now.Add(time.Minute)
		card, _, _ = a.ComputeNext(card, Good, now)
		card, _, _ = a.ComputeNext(card, Good, now)
		now = card.SRS.DueAt
		if i >= 8 && !a.IsLeech(card) {
			t.Errorf("Leech flag cleared after graduating again (lapses %d)", card.SRS.Lapses)
		}
	}
}

func TestComputeNextIsPure(t *testing.T) {
	a := mustAlgorithm(t)
	card := reviewCard(10, 2.5)
	before := card.Clone()

	first, rq1, err1 := a.ComputeNext(card, Hard, t0)
	second, rq2, err2 := a.ComputeNext(card, Hard, t0)

	if err1 != nil || err2 != nil {
		t.Fatalf("ComputeNext errors: %v, %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(rq1, rq2) {
		t.Error("Expected identical output for identical input")
	}
	if !reflect.DeepEqual(card, before) {
		t.Error("ComputeNext mutated its input card")
	}
}

func TestPreview(t *testing.T) {
	a := mustAlgorithm(t)
	out, err := a.Preview(reviewCard(10, 2.5), t0)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("Expected 4 outcomes, got %d", len(out))
	}
	if out[Again].Requeue == nil {
		t.Error("Expected Again to requeue")
	}
	if out[Good].Card.SRS.IntervalDays != 25 {
		t.Errorf("Expected Good preview interval 25, got %d", out[Good].Card.SRS.IntervalDays)
	}
}

func TestParseQuality(t *testing.T) {
	testCases := []struct {
		in      string
		want    Quality
		wantErr bool
	}{
		{"1", Again, false},
		{"4", Easy, false},
		{"good", Good, false},
		{"hard", Hard, false},
		{"0", 0, true},
		{"meh", 0, true},
	}
	for _, tc := range testCases {
		got, err := ParseQuality(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidQuality) {
				t.Errorf("ParseQuality(%q): expected ErrInvalidQuality, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseQuality(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}
