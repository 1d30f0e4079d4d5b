package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/conorfennell/lexideck/internal/domain"
)

// RecordReview appends a review log entry. An empty log.ID is replaced by a
// ULID derived from the review time.
func (db *DB) RecordReview(ctx context.Context, log domain.ReviewLog) error {
	if log.ID == "" {
		log.ID = ulid.MustNew(ulid.Timestamp(log.ReviewedAt), ulid.DefaultEntropy()).String()
	}
	var session sql.NullString
	if log.SessionID != "" {
		session = sql.NullString{String: log.SessionID, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_logs (id, card_id, session_id, quality, reviewed_at, phase_before, interval_days, ease_factor, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.ID,
		log.CardID,
		session,
		log.Quality,
		toMillis(log.ReviewedAt),
		log.PhaseBefore.String(),
		log.IntervalDays,
		log.EaseFactor,
		toMillis(log.DueAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record review of card %s: %w", log.CardID, err)
	}
	return nil
}

// ReviewLogs returns the review history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, session_id, quality, reviewed_at, phase_before, interval_days, ease_factor, due_at
		FROM review_logs WHERE card_id = ?
		ORDER BY reviewed_at, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l        domain.ReviewLog
			session  sql.NullString
			phase    string
			reviewed int64
			due      int64
		)
		if err := rows.Scan(&l.ID, &l.CardID, &session, &l.Quality, &reviewed, &phase, &l.IntervalDays, &l.EaseFactor, &due); err != nil {
			return nil, fmt.Errorf("failed to scan review log for card %s: %w", cardID, err)
		}
		l.SessionID = session.String
		l.PhaseBefore = parsePhase(phase)
		l.ReviewedAt = fromMillis(reviewed)
		l.DueAt = fromMillis(due)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func parsePhase(s string) domain.Phase {
	for _, p := range []domain.Phase{domain.PhaseNew, domain.PhaseLearning, domain.PhaseReview, domain.PhaseRelearning} {
		if p.String() == s {
			return p
		}
	}
	return domain.PhaseNew
}
