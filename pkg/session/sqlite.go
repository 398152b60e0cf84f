package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteStore persists sessions in a local sqlite database so they survive a
// restart within their TTL.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the database at path and prepares the
// sessions table.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			state      BLOB NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	log.Info().Str("path", path).Dur("ttl", ttl).Msg("SQLite session store initialized")

	return &SQLiteStore{db: db, ttl: ttl}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sid string) ([]byte, error) {
	var state []byte
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx,
		"SELECT state, expires_at FROM sessions WHERE id = ?", sid,
	).Scan(&state, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, ErrNotFound
	}
	return state, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sid string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, expires_at = excluded.expires_at
	`, sid, state, time.Now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sid string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sid); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return sweptCount(res)
}

// sweptCount reads the affected-row count of a sweep. The count feeds the
// swept-sessions metric, so a driver that cannot report it is an error rather
// than a silent zero.
func sweptCount(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE expires_at >= ?", time.Now(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
