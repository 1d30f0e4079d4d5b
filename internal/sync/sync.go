// Package sync reconciles the card store with the deck sources: new cards
// are inserted as never studied, cards that disappeared from their source
// are removed together with their review history.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/gitsource"
	"github.com/conorfennell/lexideck/internal/knol"
	"github.com/conorfennell/lexideck/internal/parser"
	"github.com/conorfennell/lexideck/internal/storage"
)

// Source types stored with each source.
const (
	TypeLocal = "local"
	TypeGit   = "git"
)

// ErrSourceExists is returned by AddSource when the path is already
// registered.
var ErrSourceExists = errors.New("source already exists")

// FetchFunc brings a git source's checkout at dir up to date.
type FetchFunc func(ctx context.Context, url, dir string) error

// Result summarises the reconciliation of one source.
type Result struct {
	SourceID int64   `json:"source_id"`
	Path     string  `json:"path"`
	Parsed   int     `json:"parsed"`
	Inserted int     `json:"inserted"`
	Updated  int     `json:"updated"`
	Deleted  int     `json:"deleted"`
	Errors   []error `json:"-"`
}

// Syncer walks sources and updates the store to match them.
type Syncer struct {
	db       *storage.DB
	reposDir string
	clock    clock.Clock
	fetch    FetchFunc
}

// New creates a Syncer that checks git sources out below reposDir.
func New(db *storage.DB, reposDir string, clk clock.Clock) *Syncer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Syncer{db: db, reposDir: reposDir, clock: clk, fetch: gitsource.Sync}
}

// WithFetch replaces the git fetcher.
func (s *Syncer) WithFetch(f FetchFunc) *Syncer {
	s.fetch = f
	return s
}

// SourceType classifies a path given by the user.
func SourceType(path string) string {
	if gitsource.IsGitURL(path) {
		return TypeGit
	}
	return TypeLocal
}

// AddSource registers a new source, classifying it as local or git. A path
// that is already registered returns the existing source and
// ErrSourceExists.
func (s *Syncer) AddSource(ctx context.Context, path string) (storage.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return storage.Source{}, errors.New("source path cannot be empty")
	}
	typ := SourceType(path)
	if typ == TypeLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return storage.Source{}, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
	}
	existing, err := s.db.FindSourceByPath(ctx, path)
	switch {
	case err == nil:
		return existing, fmt.Errorf("%w: %s", ErrSourceExists, path)
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Source{}, err
	}
	id, err := s.db.InsertSource(ctx, path, typ)
	if err != nil {
		return storage.Source{}, err
	}
	slog.Info("source added", "id", id, "type", typ, "path", path)
	return storage.Source{ID: id, Path: path, Type: typ}, nil
}

// RunSync reconciles every configured source. A failing source is logged
// and reported in its Result; the remaining sources are still synced.
func (s *Syncer) RunSync(ctx context.Context) ([]Result, error) {
	slog.Info("starting sync for all sources")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil, nil
	}

	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.SyncSource(ctx, src)
		if err != nil {
			slog.Error("failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			res.Errors = append(res.Errors, err)
		}
		results = append(results, res)
	}
	slog.Info("sync complete", "sources", len(sources))
	return results, nil
}

// SyncSource reconciles a single source.
func (s *Syncer) SyncSource(ctx context.Context, src storage.Source) (Result, error) {
	res := Result{SourceID: src.ID, Path: src.Path}
	dir := src.Path

	if src.Type == TypeGit {
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			return res, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return res, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := s.fetch(ctx, src.Path, local); err != nil {
			return res, err
		}
		dir = local
	}

	if err := s.reconcile(ctx, src.ID, dir, &res); err != nil {
		return res, err
	}
	if err := s.db.UpdateSourceLastScanned(ctx, src.ID, s.clock.Now()); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", src.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"orphaned_deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *Syncer) reconcile(ctx context.Context, sourceID int64, dir string, res *Result) error {
	found := make(map[string]bool)
	now := s.clock.Now()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, err := parser.ParseFile(path)
		if err != nil {
			res.Errors = append(res.Errors, err)
			return nil
		}
		for _, card := range cards {
			card.ID = knol.Hash(card)
			res.Parsed++
			if found[card.ID] {
				continue
			}
			found[card.ID] = true

			inserted, updated, err := s.upsert(ctx, card, sourceID, now)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if inserted {
				res.Inserted++
			}
			if updated {
				res.Updated++
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	// A file that failed to parse would make all of its cards look orphaned.
	if len(res.Errors) > 0 {
		slog.Warn("skipping orphan removal after parse errors", "source_id", sourceID, "errors", len(res.Errors))
		return nil
	}

	ids, err := s.db.CardIDsBySource(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if found[id] {
			continue
		}
		slog.Info("orphaned card, deleting", "id", id)
		if err := s.db.DeleteCard(ctx, id); err != nil {
			slog.Warn("failed to delete orphaned card", "id", id, "error", err)
			continue
		}
		res.Deleted++
	}
	return nil
}

// upsert inserts a card that is not stored yet as never studied. A stored
// card keeps its progress; only its attributes follow the deck.
func (s *Syncer) upsert(ctx context.Context, card domain.Card, sourceID int64, now time.Time) (inserted, updated bool, err error) {
	stored, err := s.db.Get(ctx, card.ID)
	if err == nil {
		if maps.Equal(stored.Attributes, card.Attributes) {
			return false, false, nil
		}
		if err := s.db.UpdateAttributes(ctx, card.ID, card.Attributes); err != nil {
			return false, false, err
		}
		slog.Debug("card attributes updated", "id", card.ID)
		return false, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, false, err
	}
	card.SRS = domain.NewSRS(now)
	if err := s.db.InsertCard(ctx, card, sourceID); err != nil {
		return false, false, err
	}
	slog.Debug("new card inserted", "id", card.ID, "type", card.Type)
	return true, false, nil
}
