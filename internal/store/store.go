// Package store persists per-user calendar credentials and scan history in
// SQLite. Conversation transcripts are deliberately not stored here; they
// are ephemeral, process-lifetime state owned by the session registry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no row exists for the requested user.
var ErrNotFound = errors.New("not found")

// Credential is a stored OAuth credential. Token is the opaque serialized
// form; the store never inspects it.
type Credential struct {
	UserID    string
	Token     string
	UpdatedAt time.Time
}

// Scan is one persisted biomarker report.
type Scan struct {
	ID        int64
	UserID    string
	Report    string
	CreatedAt time.Time
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and if needed creates) the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("Store opened")

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		report TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scans_user_created ON scans(user_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Token returns the serialized credential for a user, with its update time.
// Returns ErrNotFound if the user has never connected a calendar.
func (s *Store) Token(ctx context.Context, userID string) (string, time.Time, error) {
	var token string
	var updatedAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT token, updated_at FROM credentials WHERE user_id = ?`, userID,
	).Scan(&token, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load credential: %w", err)
	}

	return token, updatedAt, nil
}

// SaveToken upserts the serialized credential for a user.
func (s *Store) SaveToken(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		userID, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	s.logger.Debug().Str("user_id", userID).Msg("Credential saved")
	return nil
}

// SaveScan persists a biomarker report for a user.
func (s *Store) SaveScan(ctx context.Context, userID, report string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (user_id, report, created_at) VALUES (?, ?, ?)`,
		userID, report, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read scan id: %w", err)
	}
	return id, nil
}

// LatestScan returns the most recent report for a user.
func (s *Store) LatestScan(ctx context.Context, userID string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, report, created_at FROM scans
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)

	var scan Scan
	err := row.Scan(&scan.ID, &scan.UserID, &scan.Report, &scan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}

	return &scan, nil
}

// ListScans returns a user's reports, oldest first, capped at limit.
func (s *Store) ListScans(ctx context.Context, userID string, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, report, created_at FROM scans
		WHERE user_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var scan Scan
		if err := rows.Scan(&scan.ID, &scan.UserID, &scan.Report, &scan.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, scan)
	}

	return scans, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
