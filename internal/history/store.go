// Package history keeps a durable log of completed generations. Live
// conversation state stays in memory; this log only records outcomes, for
// the history CLI command.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    prompt TEXT NOT NULL,
    image_url TEXT NOT NULL,
    with_reference INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_generations_user_id ON generations(user_id);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
`

// Generation is one completed generation. ID and CreatedAt are filled by
// Record when unset.
type Generation struct {
	ID            string
	UserID        int64
	Prompt        string
	ImageURL      string
	WithReference bool
	Duration      time.Duration
	CreatedAt     time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore() (*Store, error) {
	dbPath, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".genbot", "history.db"), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, gen *Generation) error {
	if gen.ID == "" {
		gen.ID = uuid.New().String()
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, user_id, prompt, image_url, with_reference, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		gen.ID, gen.UserID, gen.Prompt, gen.ImageURL, gen.WithReference,
		gen.Duration.Milliseconds(), gen.CreatedAt)
	return err
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, prompt, image_url, with_reference, duration_ms, created_at
		 FROM generations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var generations []*Generation
	for rows.Next() {
		gen := &Generation{}
		var durationMS int64
		if err := rows.Scan(&gen.ID, &gen.UserID, &gen.Prompt, &gen.ImageURL,
			&gen.WithReference, &durationMS, &gen.CreatedAt); err != nil {
			return nil, err
		}
		gen.Duration = time.Duration(durationMS) * time.Millisecond
		generations = append(generations, gen)
	}
	return generations, rows.Err()
}

func (s *Store) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generations WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}
