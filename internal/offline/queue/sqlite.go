package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"example.com/fittrack/pkg/workout"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pending_workouts (
		local_id    TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		captured_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS pending_workouts_by_captured_at ON pending_workouts (captured_at)`,
}

// SQLiteStore keeps the queue in an embedded SQLite database file so it
// survives restarts of the agent.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  Clock
}

// SQLiteOption customises a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithClock overrides the clock used by DeleteOlderThan.
func WithClock(clock Clock) SQLiteOption {
	return func(s *SQLiteStore) {
		s.now = clock
	}
}

// OpenSQLite opens (creating if needed) the queue database at path.
// The caller must Close the store.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageError("create queue directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=%s&_pragma=%s",
		path,
		url.QueryEscape("journal_mode(WAL)"),
		url.QueryEscape("busy_timeout(5000)"),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageError("open", err)
	}
	// One connection: writers are serialised.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageError("ping", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, storageError("init schema", err)
		}
	}

	s := &SQLiteStore{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close checkpoints the WAL and releases the database.
func (s *SQLiteStore) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		_ = s.db.Close()
		return storageError("checkpoint", err)
	}
	return s.db.Close()
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec PendingRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return storageError("encode payload", err)
	}

	const stmt = `INSERT INTO pending_workouts (local_id, kind, payload, captured_at, retry_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			captured_at = excluded.captured_at,
			retry_count = excluded.retry_count`

	if _, err := s.db.ExecContext(ctx, stmt, rec.LocalID, string(rec.Kind), string(payload), rec.CapturedAt, rec.RetryCount); err != nil {
		return storageError("put", err)
	}
	return nil
}

// GetAll implements Store.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]PendingRecord, error) {
	const query = `SELECT local_id, kind, payload, captured_at, retry_count
		FROM pending_workouts ORDER BY captured_at, local_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("get all", err)
	}
	defer rows.Close()

	records := make([]PendingRecord, 0)
	for rows.Next() {
		var (
			rec     PendingRecord
			kind    string
			payload string
		)
		if err := rows.Scan(&rec.LocalID, &kind, &payload, &rec.CapturedAt, &rec.RetryCount); err != nil {
			return nil, storageError("scan", err)
		}
		rec.Kind = workout.Kind(kind)
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, storageError(fmt.Sprintf("decode payload of %s", rec.LocalID), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get all", err)
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_workouts WHERE local_id = ?`, localID); err != nil {
		return storageError("delete", err)
	}
	return nil
}

// IncrementRetryCount implements Store.
func (s *SQLiteStore) IncrementRetryCount(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE pending_workouts SET retry_count = retry_count + 1 WHERE local_id = ?`, localID); err != nil {
		return storageError("increment retry count", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_workouts`).Scan(&count); err != nil {
		return 0, storageError("count", err)
	}
	return count, nil
}

// DeleteOlderThan implements Store.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_workouts WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, storageError("delete older than", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("delete older than", err)
	}
	return int(removed), nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_workouts`); err != nil {
		return storageError("clear", err)
	}
	return nil
}
