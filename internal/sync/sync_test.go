package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/storage"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const deck = `T: vocabulary
@level: A1

Q: el perro
A: the dog

Q: el gato
A: the cat

Q: ser vs estar
T: grammar
A: permanent vs temporary
`

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeDeck(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSourceType(t *testing.T) {
	assert.Equal(t, TypeGit, SourceType("https://github.com/acme/decks.git"))
	assert.Equal(t, TypeGit, SourceType("git@github.com:acme/decks.git"))
	assert.Equal(t, TypeLocal, SourceType("./decks"))
}

func TestRunSyncLocalSource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	writeDeck(t, dir, "spanish.md", deck)
	writeDeck(t, dir, "notes.txt", "Q: ignored\nA: not markdown")

	s := New(db, t.TempDir(), clock.NewManual(t0))
	src, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, TypeLocal, src.Type)

	results, err := s.RunSync(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Parsed)
	assert.Equal(t, 3, results[0].Inserted)
	assert.Zero(t, results[0].Deleted)
	assert.Empty(t, results[0].Errors)

	ids, err := db.CardIDsBySource(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	counts, err := db.CountDue(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.Vocabulary].New)
	assert.Equal(t, 1, counts[domain.Grammar].New)

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.NotNil(t, sources[0].LastScanned)
	assert.True(t, sources[0].LastScanned.Equal(t0))

	// a second run is a no-op
	results, err = s.RunSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, results[0].Inserted)
	assert.Zero(t, results[0].Deleted)
}

func TestRunSyncRemovesOrphansAndKeepsProgress(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	writeDeck(t, dir, "spanish.md", deck)

	s := New(db, t.TempDir(), clock.NewManual(t0))
	src, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	_, err = s.RunSync(ctx)
	require.NoError(t, err)

	// study the dog card so that it has progress worth keeping
	due, err := db.FetchNew(ctx, domain.Vocabulary, 10)
	require.NoError(t, err)
	var dog domain.Card
	for _, c := range due {
		if c.Front == "el perro" {
			dog = c
		}
	}
	require.NotEmpty(t, dog.ID)
	dog.SRS.Repetitions = 1
	dog.SRS.IntervalDays = 1
	reviewed := t0
	dog.SRS.LastReviewedAt = &reviewed
	require.NoError(t, db.Save(ctx, dog))

	// drop the cat, retag the dog
	writeDeck(t, dir, "spanish.md", `T: vocabulary
@level: A2

Q: el perro
A: the dog

Q: ser vs estar
T: grammar
A: permanent vs temporary
`)
	results, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Deleted)
	assert.Zero(t, results[0].Inserted)
	assert.Equal(t, 2, results[0].Updated)

	ids, err := db.CardIDsBySource(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	got, err := db.Get(ctx, dog.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SRS.Repetitions, "retagging must not reset progress")
	assert.Equal(t, "A2", got.Attr("level"))
}

func TestRunSyncRetaggedCardMatchesNewFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	writeDeck(t, dir, "spanish.md", "@level: A1\n\nQ: el perro\nA: the dog\n")

	clk := clock.NewManual(t0)
	s := New(db, t.TempDir(), clk)
	_, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	_, err = s.RunSync(ctx)
	require.NoError(t, err)

	writeDeck(t, dir, "spanish.md", "@level: B1\n\nQ: el perro\nA: the dog\n")
	results, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Updated)
	assert.Zero(t, results[0].Inserted)

	cards, err := db.FetchNew(ctx, domain.Vocabulary, 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "B1", cards[0].Attr("level"))

	f := queue.AllTypes()
	f.Attributes = map[domain.CardType]map[string][]string{domain.Vocabulary: {"level": {"B1"}}}
	b := queue.NewBuilder(db, queue.BuilderConfig{Clock: clk, Interleaver: queue.WeightedRoundRobin{}})
	q, err := b.Build(ctx, f, queue.Settings{
		NewCardsPerDay:  10,
		InterleaveRatio: map[domain.CardType]float64{domain.Vocabulary: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// a third run with unchanged attributes touches nothing
	results, err = s.RunSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, results[0].Updated)
}

func TestAddSourceRejectsDuplicatePath(t *testing.T) {
	ctx := context.Background()
	s := New(newTestDB(t), t.TempDir(), nil)
	dir := t.TempDir()

	first, err := s.AddSource(ctx, dir)
	require.NoError(t, err)

	again, err := s.AddSource(ctx, dir)
	assert.ErrorIs(t, err, ErrSourceExists)
	assert.Equal(t, first.ID, again.ID)
}

func TestRunSyncKeepsCardsWhenAFileFailsToParse(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	writeDeck(t, dir, "spanish.md", deck)

	s := New(db, t.TempDir(), clock.NewManual(t0))
	src, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	_, err = s.RunSync(ctx)
	require.NoError(t, err)

	writeDeck(t, dir, "spanish.md", "T: idioms\nQ: broken")
	results, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Len(t, results[0].Errors, 1)
	assert.Zero(t, results[0].Deleted)

	ids, err := db.CardIDsBySource(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRunSyncGitSource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reposDir := t.TempDir()

	var fetched []string
	s := New(db, reposDir, clock.NewManual(t0)).WithFetch(func(_ context.Context, url, dir string) error {
		fetched = append(fetched, url)
		writeDeck(t, dir, "deck.md", "T: verse\n@book: Juan\nQ: En el principio era el Verbo\nA: In the beginning was the Word\n")
		return nil
	})

	src, err := s.AddSource(ctx, "https://github.com/acme/verses.git")
	require.NoError(t, err)
	assert.Equal(t, TypeGit, src.Type)

	results, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/acme/verses.git"}, fetched)
	assert.Equal(t, 1, results[0].Inserted)
	assert.DirExists(t, filepath.Join(reposDir, "github.com", "acme", "verses"))

	cards, err := db.FetchNew(ctx, domain.Verse, 5)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Juan", cards[0].Attr("book"))
}

func TestAddSourceRejectsEmptyPath(t *testing.T) {
	s := New(newTestDB(t), t.TempDir(), nil)
	_, err := s.AddSource(context.Background(), "  ")
	assert.Error(t, err)
}
