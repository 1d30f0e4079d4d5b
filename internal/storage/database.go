package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/lexideck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when a card or source does not exist.
var ErrNotFound = errors.New("not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, card_type, front, back, context, attributes,
	repetitions, interval_days, ease_factor, due_at, lapses, learning_step, last_review`

// isNew matches cards that have never been reviewed.
const isNew = `last_review IS NULL AND learning_step = -1 AND repetitions = 0`

// InsertCard inserts a card that has never been studied.
func (db *DB) InsertCard(ctx context.Context, card domain.Card, sourceID int64) error {
	attrs, err := encodeAttributes(card.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes for card %s: %w", card.ID, err)
	}
	srs := card.SRS
	if srs.EaseFactor == 0 {
		srs = domain.NewSRS(srs.DueAt)
	}
	if srs.DueAt.IsZero() {
		srs.DueAt = time.Now()
	}

	var source sql.NullInt64
	if sourceID > 0 {
		source = sql.NullInt64{Int64: sourceID, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.Type.String(),
		card.Front,
		card.Back,
		card.Context,
		attrs,
		srs.Repetitions,
		srs.IntervalDays,
		srs.EaseFactor,
		toMillis(srs.DueAt),
		srs.Lapses,
		srs.LearningStep,
		nullMillis(srs.LastReviewedAt),
		source,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// Get retrieves a card by its ID. It returns ErrNotFound when no such card exists.
func (db *DB) Get(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return card, nil
}

// Save writes the card's scheduling record. Content fields are owned by the
// deck sync and are left untouched.
func (db *DB) Save(ctx context.Context, card domain.Card) error {
	s := card.SRS
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET repetitions = ?, interval_days = ?, ease_factor = ?, due_at = ?,
			lapses = ?, learning_step = ?, last_review = ?
		WHERE id = ?
	`,
		s.Repetitions,
		s.IntervalDays,
		s.EaseFactor,
		toMillis(s.DueAt),
		s.Lapses,
		s.LearningStep,
		nullMillis(s.LastReviewedAt),
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save card %s: %w", card.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save card %s: %w", card.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("card %s: %w", card.ID, ErrNotFound)
	}
	return nil
}

// UpdateAttributes replaces the attributes of an existing card. The
// scheduling record is left untouched.
func (db *DB) UpdateAttributes(ctx context.Context, id string, attrs map[string]string) error {
	encoded, err := encodeAttributes(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes of card %s: %w", id, err)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE cards SET attributes = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update attributes of card %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	return nil
}

// FetchDue returns the already-studied cards of type t that are due at now,
// earliest first.
func (db *DB) FetchDue(ctx context.Context, t domain.CardType, now time.Time) ([]domain.Card, error) {
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE card_type = ? AND due_at <= ? AND NOT (`+isNew+`)
		ORDER BY due_at, id
	`, t.String(), toMillis(now))
}

// FetchNew returns up to limit never-studied cards of type t in insertion order.
func (db *DB) FetchNew(ctx context.Context, t domain.CardType, limit int) ([]domain.Card, error) {
	if limit <= 0 {
		return nil, nil
	}
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE card_type = ? AND `+isNew+`
		ORDER BY created_at, id
		LIMIT ?
	`, t.String(), limit)
}

// DeckCounts holds the number of due and new cards of one type.
type DeckCounts struct {
	Due int
	New int
}

// CountDue reports, per card type, how many studied cards are due at now and
// how many cards have never been studied.
func (db *DB) CountDue(ctx context.Context, now time.Time) (map[domain.CardType]DeckCounts, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_type,
			SUM(CASE WHEN due_at <= ? AND NOT (`+isNew+`) THEN 1 ELSE 0 END),
			SUM(CASE WHEN `+isNew+` THEN 1 ELSE 0 END)
		FROM cards GROUP BY card_type
	`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count due cards: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.CardType]DeckCounts)
	for rows.Next() {
		var name string
		var c DeckCounts
		if err := rows.Scan(&name, &c.Due, &c.New); err != nil {
			return nil, fmt.Errorf("failed to scan due counts: %w", err)
		}
		t, err := domain.ParseCardType(name)
		if err != nil {
			return nil, err
		}
		counts[t] = c
	}
	return counts, rows.Err()
}

// CardIDsBySource retrieves the IDs of all cards imported from a source.
func (db *DB) CardIDsBySource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM cards WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteCard removes a card and its review history.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_logs WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete review logs of card %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return tx.Commit()
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (domain.Card, error) {
	var (
		c        domain.Card
		typeName string
		attrs    sql.NullString
		due      int64
		last     sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&typeName,
		&c.Front,
		&c.Back,
		&c.Context,
		&attrs,
		&c.SRS.Repetitions,
		&c.SRS.IntervalDays,
		&c.SRS.EaseFactor,
		&due,
		&c.SRS.Lapses,
		&c.SRS.LearningStep,
		&last,
	)
	if err != nil {
		return domain.Card{}, err
	}
	if c.Type, err = domain.ParseCardType(typeName); err != nil {
		return domain.Card{}, err
	}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &c.Attributes); err != nil {
			return domain.Card{}, fmt.Errorf("decode attributes of card %s: %w", c.ID, err)
		}
	}
	c.SRS.DueAt = fromMillis(due)
	if last.Valid {
		t := fromMillis(last.Int64)
		c.SRS.LastReviewedAt = &t
	}
	return c, nil
}

func encodeAttributes(attrs map[string]string) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
