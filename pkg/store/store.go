// Package store manages all SQLite persistence for mimic.
//
// The registry is saved and loaded as one unit: every chain, every
// distribution entry and every coverage tracker is rewritten inside a single
// transaction, so the database never holds a model from one run next to a
// tracker from another. Ingestion runs are appended to a separate log.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daviddao/mimic/pkg/model"

	_ "modernc.org/sqlite"
)

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations use this to ride out transient SQLite errors
// when the CLI and a running server share the database.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chains (
		author_id      TEXT PRIMARY KEY,
		total_messages INTEGER NOT NULL,
		pending        INTEGER NOT NULL,
		finalized      INTEGER NOT NULL
	);

	-- One row per distribution of a chain: the length and starter
	-- distributions (context '') and one successor distribution per word.
	CREATE TABLE IF NOT EXISTS distributions (
		author_id TEXT NOT NULL REFERENCES chains(author_id) ON DELETE CASCADE,
		kind      TEXT NOT NULL,
		context   TEXT NOT NULL DEFAULT '',
		finalized INTEGER NOT NULL,
		PRIMARY KEY (author_id, kind, context)
	);

	CREATE TABLE IF NOT EXISTS distribution_entries (
		author_id  TEXT NOT NULL,
		kind       TEXT NOT NULL,
		context    TEXT NOT NULL DEFAULT '',
		position   INTEGER NOT NULL,
		key_text   TEXT,
		key_int    INTEGER,
		count      INTEGER NOT NULL,
		cumulative REAL NOT NULL,
		PRIMARY KEY (author_id, kind, context, position),
		FOREIGN KEY (author_id, kind, context)
			REFERENCES distributions(author_id, kind, context) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS trackers (
		source_id     TEXT PRIMARY KEY,
		first_message INTEGER,
		last_update   INTEGER
	);

	CREATE TABLE IF NOT EXISTS covered_ranges (
		source_id TEXT NOT NULL REFERENCES trackers(source_id) ON DELETE CASCADE,
		min_ts    INTEGER NOT NULL,
		max_ts    INTEGER NOT NULL,
		PRIMARY KEY (source_id, min_ts)
	);

	CREATE TABLE IF NOT EXISTS runs (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		source_id     TEXT NOT NULL,
		observed      INTEGER NOT NULL,
		skipped       INTEGER NOT NULL,
		ignored       INTEGER NOT NULL,
		authors       TEXT NOT NULL DEFAULT '[]',
		covered_min   INTEGER,
		covered_max   INTEGER,
		reached_start INTEGER NOT NULL DEFAULT 0,
		started_at    TEXT NOT NULL,
		finished_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// InsertRun appends a finished ingestion run to the log.
func (s *Store) InsertRun(r model.Run) error {
	authors, err := json.Marshal(nonNil(r.Authors))
	if err != nil {
		return fmt.Errorf("encode authors: %w", err)
	}
	var minTS, maxTS sql.NullInt64
	if r.Covered != nil {
		minTS = sql.NullInt64{Int64: int64(r.Covered.Min), Valid: true}
		maxTS = sql.NullInt64{Int64: int64(r.Covered.Max), Valid: true}
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO runs (id, source_id, observed, skipped, ignored, authors,
			                   covered_min, covered_max, reached_start, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SourceID, r.Observed, r.Skipped, r.Ignored, string(authors),
			minTS, maxTS, boolToInt(r.ReachedStart),
			r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// ListRuns returns the most recent runs, newest first. An empty sourceID
// lists runs over every source.
func (s *Store) ListRuns(sourceID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, source_id, observed, skipped, ignored, authors,
		        covered_min, covered_max, reached_start, started_at, finished_at
		 FROM runs WHERE ? = '' OR source_id = ?
		 ORDER BY seq DESC LIMIT ?`,
		sourceID, sourceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r                model.Run
			authors          string
			minTS, maxTS     sql.NullInt64
			reached          int
			startStr, finStr string
		)
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Observed, &r.Skipped, &r.Ignored, &authors,
			&minTS, &maxTS, &reached, &startStr, &finStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(authors), &r.Authors); err != nil {
			return nil, fmt.Errorf("decode authors of run %s: %w", r.ID, err)
		}
		if len(r.Authors) == 0 {
			r.Authors = nil
		}
		if minTS.Valid && maxTS.Valid {
			r.Covered = &model.Range{Min: model.Timestamp(minTS.Int64), Max: model.Timestamp(maxTS.Int64)}
		}
		r.ReachedStart = reached != 0
		var parseErr error
		r.StartedAt, parseErr = time.Parse(time.RFC3339Nano, startStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse started_at for run %s: %w", r.ID, parseErr)
		}
		r.FinishedAt, parseErr = time.Parse(time.RFC3339Nano, finStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse finished_at for run %s: %w", r.ID, parseErr)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the total number of runs in the log.
func (s *Store) CountRuns() int64 {
	var n int64
	s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
