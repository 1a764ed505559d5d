// Package store persists finished matches in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/store/migrations"
)

// ErrNotConfigured is returned by a nil or closed store.
var ErrNotConfigured = errors.New("store: not configured")

// MatchRecord is one persisted match result.
type MatchRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Participants []string  `json:"participants"`
	PlaySeconds  float64   `json:"playSeconds"`
	EndedAt      time.Time `json:"endedAt"`
}

// Store provides SQLite-backed match persistence.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordMatch persists a finished match and returns the stored record.
func (s *Store) RecordMatch(ctx context.Context, result session.Result) (MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return MatchRecord{}, err
	}
	if s == nil || s.db == nil {
		return MatchRecord{}, ErrNotConfigured
	}
	if strings.TrimSpace(result.SessionID) == "" {
		return MatchRecord{}, fmt.Errorf("session id is required")
	}
	record := MatchRecord{
		ID:           uuid.NewString(),
		SessionID:    result.SessionID,
		Completed:    result.Completed,
		Failed:       result.Failed,
		Participants: append([]string{}, result.Participants...),
		PlaySeconds:  result.PlaySeconds,
		EndedAt:      result.EndedAt.UTC(),
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	participants, err := sonic.ConfigStd.MarshalToString(record.Participants)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("encode participants: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO matches (
	id,
	session_id,
	completed,
	failed,
	participants,
	play_seconds,
	ended_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.SessionID,
		record.Completed,
		record.Failed,
		participants,
		record.PlaySeconds,
		record.EndedAt.UnixMilli(),
	)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("record match: %w", err)
	}
	record.EndedAt = time.UnixMilli(record.EndedAt.UnixMilli()).UTC()
	return record, nil
}

// RecentMatches lists newest-first match records.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
	id,
	session_id,
	completed,
	failed,
	participants,
	play_seconds,
	ended_at
FROM matches
ORDER BY ended_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	records := make([]MatchRecord, 0, limit)
	for rows.Next() {
		var (
			record       MatchRecord
			participants string
			endedAt      int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Completed,
			&record.Failed,
			&participants,
			&record.PlaySeconds,
			&endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := sonic.ConfigStd.UnmarshalFromString(participants, &record.Participants); err != nil {
			return nil, fmt.Errorf("decode participants of %s: %w", record.ID, err)
		}
		record.EndedAt = time.UnixMilli(endedAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return records, nil
}
