// Package feedback captures per-response calibration feedback. Recording is
// fire-and-forget: the orchestrator never waits on, or fails because of,
// the sink.
package feedback

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"querycore/pkg/logx"
)

// Feedback is one recorded orchestration outcome, keyed by its feedbackId
// and consumed later by offline calibration.
type Feedback struct {
	Query      string
	Path       string
	Confidence float64
	CreatedAt  time.Time
}

// Sink records feedback. Implementations must be safe for concurrent use
// and must never block the caller on I/O failures.
type Sink interface {
	Record(feedbackID string, fb Feedback)
}

// NopSink discards all feedback.
type NopSink struct{}

func (NopSink) Record(string, Feedback) {}

// SQLiteSink persists feedback rows to a local SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	logger *logx.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	feedback_id TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	path        TEXT NOT NULL,
	confidence  REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
`

// NewSQLiteSink opens (or creates) the database at dbPath in WAL mode and
// ensures the schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping feedback database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize feedback schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteSink{
		db:     db,
		logger: logx.NewLogger("feedback"),
	}, nil
}

// Record inserts one feedback row asynchronously. Failures are logged, not
// returned.
func (s *SQLiteSink) Record(feedbackID string, fb Feedback) {
	go func() {
		createdAt := fb.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO feedback (feedback_id, query, path, confidence, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			feedbackID, fb.Query, fb.Path, fb.Confidence, createdAt.UTC(),
		)
		if err != nil {
			s.logger.Warn("failed to record feedback %s: %v", feedbackID, err)
		}
	}()
}

// Recent returns feedback recorded since the cutoff, newest first. Offline
// calibration reads the accumulated rows through this.
func (s *SQLiteSink) Recent(since time.Time, limit int) ([]Feedback, error) {
	rows, err := s.db.Query(
		`SELECT query, path, confidence, created_at FROM feedback
		 WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.Query, &fb.Path, &fb.Confidence, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
