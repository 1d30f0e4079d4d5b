package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/session"
)

type cardView struct {
	ID           string            `json:"id"`
	Type         domain.CardType   `json:"type"`
	Front        string            `json:"front"`
	Back         string            `json:"back"`
	Context      string            `json:"context,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Phase        string            `json:"phase"`
	Repetitions  int               `json:"repetitions"`
	IntervalDays int               `json:"interval_days"`
	EaseFactor   float64           `json:"ease_factor"`
	DueAt        time.Time         `json:"due_at"`
	Lapses       int               `json:"lapses"`
	Leech        bool              `json:"leech"`
}

func newCardView(c domain.Card, leech bool) cardView {
	return cardView{
		ID:           c.ID,
		Type:         c.Type,
		Front:        c.Front,
		Back:         c.Back,
		Context:      c.Context,
		Attributes:   c.Attributes,
		Phase:        c.SRS.Phase().String(),
		Repetitions:  c.SRS.Repetitions,
		IntervalDays: c.SRS.IntervalDays,
		EaseFactor:   c.SRS.EaseFactor,
		DueAt:        c.SRS.DueAt,
		Lapses:       c.SRS.Lapses,
		Leech:        leech,
	}
}

type sessionView struct {
	ID          string        `json:"id"`
	State       session.State `json:"state"`
	Current     *cardView     `json:"current,omitempty"`
	Stats       session.Stats `json:"stats"`
	WaitSeconds *int          `json:"wait_seconds,omitempty"`
}

func (s *Server) sessionView(sch *session.Scheduler) sessionView {
	v := sessionView{
		ID:    sch.ID(),
		State: sch.State(),
		Stats: sch.Stats(),
	}
	if _, card, ok := sch.Current(); ok {
		cv := newCardView(card, s.deps.Algorithm.IsLeech(card))
		v.Current = &cv
	}
	if wait, ok := sch.WaitSeconds(); ok {
		v.WaitSeconds = &wait
	}
	return v
}

var errEmptyBody = errors.New("request body is empty")

type errorResponse struct {
	Error string `json:"error"`
}

func readJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
