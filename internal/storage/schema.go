package storage

// Timestamps are stored as unix milliseconds so due-date comparisons in SQL
// are plain integer comparisons.
const schema = `
-- The 'sources' table tracks where decks come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);

-- The 'cards' table stores each study item and its scheduling record.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    card_type TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    attributes TEXT,
    repetitions INTEGER NOT NULL DEFAULT 0,
    interval_days INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    due_at INTEGER NOT NULL,
    lapses INTEGER NOT NULL DEFAULT 0,
    learning_step INTEGER NOT NULL DEFAULT -1, -- -1: not on the learning ladder
    last_review INTEGER,
    source_id INTEGER,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);
CREATE INDEX IF NOT EXISTS idx_cards_type_due ON cards(card_type, due_at);
CREATE INDEX IF NOT EXISTS idx_cards_source ON cards(source_id);

-- The 'review_logs' table keeps one row per answered card.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    session_id TEXT,
    quality INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    phase_before TEXT,
    interval_days INTEGER,
    ease_factor REAL,
    due_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id, reviewed_at);
`
