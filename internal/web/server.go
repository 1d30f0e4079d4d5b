// Package web exposes study sessions, the deck and its sources over a JSON
// HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/session"
	"github.com/conorfennell/lexideck/internal/srs"
	"github.com/conorfennell/lexideck/internal/storage"
	"github.com/conorfennell/lexideck/internal/sync"
)

const maxBodyBytes = 1 << 20

// CompleteGrace is how long a completed session stays readable before the
// ticker evicts it.
const CompleteGrace = 10 * time.Minute

// Deps are the collaborators a Server needs.
type Deps struct {
	DB        *storage.DB
	Syncer    *sync.Syncer
	Algorithm *srs.Algorithm
	Builder   *queue.Builder
	Settings  queue.Settings
	Clock     clock.Clock
}

// Server holds the dependencies for the HTTP server and the live sessions.
type Server struct {
	deps   Deps
	router *http.ServeMux

	mu          gosync.Mutex
	sessions    map[string]*session.Scheduler
	completedAt map[string]time.Time
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	s := &Server{
		deps:     deps,
		router:   http.NewServeMux(),
		sessions:    make(map[string]*session.Scheduler),
		completedAt: make(map[string]time.Time),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /sessions", s.handleCreateSession())
	s.router.HandleFunc("GET /sessions/{id}", s.handleGetSession())
	s.router.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession())
	s.router.HandleFunc("POST /sessions/{id}/review", s.handleReview())
	s.router.HandleFunc("GET /sessions/{id}/stats", s.handleStats())
	s.router.HandleFunc("GET /sessions/{id}/preview", s.handlePreview())

	s.router.HandleFunc("GET /deck", s.handleGetDeck())

	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

// RunTicker promotes due learning cards in every live session and evicts
// sessions that completed more than CompleteGrace ago, until ctx is done.
func (s *Server) RunTicker(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(s.deps.Clock.Now())
		}
	}
}

func (s *Server) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sch := range s.sessions {
		if sch.State() != session.Complete {
			delete(s.completedAt, id)
			sch.Tick(now)
			continue
		}
		done, seen := s.completedAt[id]
		if !seen {
			s.completedAt[id] = now
			continue
		}
		if now.Sub(done) >= CompleteGrace {
			delete(s.sessions, id)
			delete(s.completedAt, id)
			slog.Debug("completed session evicted", "session", id)
		}
	}
}

func (s *Server) session(id string) (*session.Scheduler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.sessions[id]
	return sch, ok
}

type createSessionRequest struct {
	// CardTypes lists the enabled types; omitted means all.
	CardTypes      *[]domain.CardType                      `json:"card_types"`
	Attributes     map[domain.CardType]map[string][]string `json:"attributes"`
	Statuses       []queue.Status                          `json:"statuses"`
	NewCardsPerDay int                                     `json:"new_cards_per_day"`
	Ratio          map[domain.CardType]float64             `json:"ratio"`
}

func (req createSessionRequest) filters() queue.Filters {
	f := queue.AllTypes()
	if req.CardTypes != nil {
		f.CardTypes = make(map[domain.CardType]bool, len(*req.CardTypes))
		for _, t := range *req.CardTypes {
			f.CardTypes[t] = true
		}
	}
	f.Attributes = req.Attributes
	f.Statuses = req.Statuses
	return f
}

func (req createSessionRequest) settings(defaults queue.Settings) queue.Settings {
	set := defaults
	if req.NewCardsPerDay != 0 {
		set.NewCardsPerDay = req.NewCardsPerDay
	}
	if req.Ratio != nil {
		set.InterleaveRatio = req.Ratio
	}
	return set
}

// handleCreateSession builds a new study session.
func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := readJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sch := session.New(s.deps.DB, s.deps.Algorithm, s.deps.Builder, s.deps.Clock)
		if err := sch.Build(r.Context(), req.filters(), req.settings(s.deps.Settings)); err != nil {
			s.handleErr(w, err)
			return
		}

		s.mu.Lock()
		s.sessions[sch.ID()] = sch
		s.mu.Unlock()

		writeJSON(w, http.StatusCreated, s.sessionView(sch))
	}
}

// handleGetSession returns the current card, stats and wait time.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := s.session(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, s.sessionView(sch))
	}
}

// handleDeleteSession abandons a session. Reviews already saved are kept.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.mu.Lock()
		_, ok := s.sessions[id]
		delete(s.sessions, id)
		delete(s.completedAt, id)
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type reviewRequest struct {
	Quality qualityParam `json:"quality"`
}

// qualityParam accepts either 1-4 or "again", "hard", "good", "easy".
type qualityParam struct {
	srs.Quality
}

func (q *qualityParam) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		q.Quality = srs.Quality(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("%w: %s", srs.ErrInvalidQuality, b)
	}
	v, err := srs.ParseQuality(name)
	if err != nil {
		return err
	}
	q.Quality = v
	return nil
}

type reviewResponse struct {
	Card           cardView    `json:"card"`
	RequeueMinutes *int        `json:"requeue_minutes,omitempty"`
	Leech          bool        `json:"leech"`
	Session        sessionView `json:"session"`
}

// handleReview answers the session's current card.
func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := s.session(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}

		var req reviewRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		res, err := sch.Review(r.Context(), req.Quality.Quality)
		if err != nil {
			s.handleErr(w, err)
			return
		}

		resp := reviewResponse{
			Card:    newCardView(res.Card, res.Leech),
			Leech:   res.Leech,
			Session: s.sessionView(sch),
		}
		if res.Requeue != nil {
			m := res.Requeue.DelayMinutes()
			resp.RequeueMinutes = &m
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleStats returns the session counters.
func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := s.session(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, sch.Stats())
	}
}

type previewView struct {
	IntervalDays   int       `json:"interval_days"`
	DueAt          time.Time `json:"due_at"`
	RequeueMinutes *int      `json:"requeue_minutes,omitempty"`
}

// handlePreview shows what each answer would do to the current card.
func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sch, ok := s.session(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		out, err := sch.Preview()
		if err != nil {
			s.handleErr(w, err)
			return
		}
		view := make(map[string]previewView, len(out))
		for q, o := range out {
			pv := previewView{IntervalDays: o.Card.SRS.IntervalDays, DueAt: o.Card.SRS.DueAt}
			if o.Requeue != nil {
				m := o.Requeue.DelayMinutes()
				pv.RequeueMinutes = &m
			}
			view[q.String()] = pv
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type deckCounts struct {
	Due int `json:"due"`
	New int `json:"new"`
}

// handleGetDeck reports due and new cards per card type.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.deps.DB.CountDue(r.Context(), s.deps.Clock.Now())
		if err != nil {
			slog.Error("failed to count due cards", "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}
		view := make(map[string]deckCounts, len(domain.CardTypes))
		for _, t := range domain.CardTypes {
			c := counts[t]
			view[t.String()] = deckCounts{Due: c.Due, New: c.New}
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type sourceView struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

func newSourceView(src storage.Source) sourceView {
	return sourceView{ID: src.ID, Path: src.Path, Type: src.Type, LastScanned: src.LastScanned}
}

// handleGetSources lists the configured sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.deps.DB.GetAllSources(r.Context())
		if err != nil {
			slog.Error("failed to get sources", "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}
		out := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			out = append(out, newSourceView(src))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type addSourceRequest struct {
	Path string `json:"path"`
}

// handlePostSource adds a new source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Path == "" {
			writeError(w, http.StatusBadRequest, errors.New("path cannot be empty"))
			return
		}
		src, err := s.deps.Syncer.AddSource(r.Context(), req.Path)
		if errors.Is(err, sync.ErrSourceExists) {
			writeError(w, http.StatusConflict, err)
			return
		}
		if err != nil {
			slog.Error("failed to add source", "path", req.Path, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to add source"))
			return
		}
		writeJSON(w, http.StatusCreated, newSourceView(src))
	}
}

// handleDeleteSource deletes a source and its cards.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid source ID"))
			return
		}
		if err := s.deps.DB.DeleteSource(r.Context(), id); err != nil {
			s.handleErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncResult struct {
	SourceID int64    `json:"source_id"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

// handlePostSync runs a sync in the foreground and reports per source.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.deps.Syncer.RunSync(r.Context())
		if err != nil {
			slog.Error("sync failed", "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("sync failed"))
			return
		}
		out := make([]syncResult, 0, len(results))
		for _, res := range results {
			sr := syncResult{
				SourceID: res.SourceID,
				Path:     res.Path,
				Parsed:   res.Parsed,
				Inserted: res.Inserted,
				Updated:  res.Updated,
				Deleted:  res.Deleted,
			}
			for _, e := range res.Errors {
				sr.Errors = append(sr.Errors, e.Error())
			}
			out = append(out, sr)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleErr maps domain errors to status codes.
func (s *Server) handleErr(w http.ResponseWriter, err error) {
	var verr *queue.ValidationError
	var serr *session.StoreError
	switch {
	case errors.As(err, &verr), errors.Is(err, srs.ErrInvalidQuality):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, session.ErrNoCurrentCard):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &serr):
		// checked before ErrNotFound: a card deleted by a sync also fails the save
		slog.Error("review not persisted", "card", serr.CardID, "error", serr.Err)
		writeError(w, http.StatusServiceUnavailable, errors.New("review applied but not saved, retry later"))
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}
