package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	c := NewManual(start)

	if !c.Now().Equal(start) {
		t.Errorf("Expected %v, got %v", start, c.Now())
	}

	got := c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Expected clock at %v after Advance, got %v", want, c.Now())
	}

	later := start.Add(24 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Expected %v after Set, got %v", later, c.Now())
	}
}

func TestReal(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	if got.Before(before) {
		t.Errorf("Real clock went backwards: %v before %v", got, before)
	}
}
