package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages KV persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// IndexEntry is one member of a sorted index.
type IndexEntry struct {
	Score  int64
	Member string
}

// Open initializes or connects to the KV database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SetClock overrides the time source (used in tests).
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Set writes a value under key. A ttl of zero stores the value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is empty")
	}
	now := s.now().UTC()
	var expires any
	if ttl > 0 {
		expires = now.Add(ttl).Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO kv_entries (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key,
		value,
		now.Format(time.RFC3339Nano),
		expires,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key, or nil when the key is absent or
// its TTL has elapsed. Expired rows are left for Sweep to collect.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key)
	var value []byte
	var expires sql.NullString
	if err := row.Scan(&value, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if s.expired(expires) {
		return nil, nil
	}
	return value, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// KeysByPrefix returns live keys starting with prefix, ascending. This is the
// degraded read path when a sorted index is missing entries.
func (s *Store) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, expires_at FROM kv_entries WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("scan prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		var expires sql.NullString
		if err := rows.Scan(&key, &expires); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		if s.expired(expires) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// IndexInsert adds or updates a member in a sorted index.
func (s *Store) IndexInsert(ctx context.Context, indexKey string, score int64, member string) error {
	if indexKey == "" || member == "" {
		return errors.New("index key and member are required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO kv_index (index_key, score, member) VALUES (?, ?, ?)
         ON CONFLICT(index_key, member) DO UPDATE SET score = excluded.score`,
		indexKey,
		score,
		member,
	)
	if err != nil {
		return fmt.Errorf("index insert %q: %w", indexKey, err)
	}
	return nil
}

// IndexRev returns index members ordered by descending score. A limit of
// zero returns every member.
func (s *Store) IndexRev(ctx context.Context, indexKey string, limit int) ([]IndexEntry, error) {
	query := `SELECT score, member FROM kv_index WHERE index_key = ? ORDER BY score DESC`
	args := []any{indexKey}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index range %q: %w", indexKey, err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var entry IndexEntry
		if err := rows.Scan(&entry.Score, &entry.Member); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// IndexRemove deletes a member from a sorted index.
func (s *Store) IndexRemove(ctx context.Context, indexKey, member string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_index WHERE index_key = ? AND member = ?`, indexKey, member); err != nil {
		return fmt.Errorf("index remove %q: %w", indexKey, err)
	}
	return nil
}

// Sweep deletes expired entries and index members whose payload key no
// longer exists. Returns the number of entries removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep entries: %w", err)
	}
	removed, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx, `DELETE FROM kv_index WHERE member NOT IN (SELECT key FROM kv_entries)`)
	if err != nil {
		return int(removed), fmt.Errorf("sweep index: %w", err)
	}
	return int(removed), nil
}

// CheckHealth verifies the database answers a trivial query.
func (s *Store) CheckHealth(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("kv health: %w", err)
	}
	return nil
}

func (s *Store) expired(expires sql.NullString) bool {
	if !expires.Valid || expires.String == "" {
		return false
	}
	when, err := time.Parse(time.RFC3339Nano, expires.String)
	if err != nil {
		return false
	}
	return !s.now().UTC().Before(when)
}

func escapeLike(value string) string {
	replaced := make([]rune, 0, len(value))
	for _, r := range value {
		switch r {
		case '%', '_', '\\':
			replaced = append(replaced, '\\', r)
		default:
			replaced = append(replaced, r)
		}
	}
	return string(replaced)
}
