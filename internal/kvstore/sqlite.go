package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at) WHERE expires_at > 0;
`

// sweepInterval controls how often expired rows are physically removed.
// Expired rows are already invisible to Get; the sweep only reclaims space.
const sweepInterval = time.Minute

// SQLite is a Store backed by a local SQLite database.
type SQLite struct {
	db     *sql.DB
	now    func() time.Time
	done   chan struct{}
	logger *slog.Logger
}

// OpenSQLite opens (and if needed creates) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral store in tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY without a retry loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLite{
		db:     db,
		now:    time.Now,
		done:   make(chan struct{}),
		logger: slog.With("component", "kvstore"),
	}
	go s.sweep()
	return s, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Get implements Store. Expired rows are treated as absent even if the
// sweep has not removed them yet.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if expiresAt > 0 && expiresAt <= s.now().UnixMilli() {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLite) Close() error {
	close(s.done)
	return s.db.Close()
}

// sweep periodically deletes expired rows.
func (s *SQLite) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			res, err := s.db.Exec(
				`DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`,
				s.now().UnixMilli())
			if err != nil {
				s.logger.Warn("Expiry sweep failed", "error", err)
				continue
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				s.logger.Debug("Expired keys removed", "count", n)
			}
		}
	}
}

// Verify SQLite implements Store
var _ Store = (*SQLite)(nil)
