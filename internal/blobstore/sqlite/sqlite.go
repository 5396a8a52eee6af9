// Package sqlite implements the blob store on a SQLite database file.
//
// A single objects table keyed by (bucket, key) holds everything. The
// created_at column is stored as RFC3339Nano TEXT: modernc.org/sqlite
// gives time values TEXT affinity anyway, and strings round-trip
// losslessly and stay readable in a database browser.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"cpstats/internal/blobstore"
)

func init() {
	blobstore.Register("sqlite", New)
}

// Store implements blobstore.Store on one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const createObjectsSQL = `CREATE TABLE IF NOT EXISTS objects (
    bucket       TEXT NOT NULL,
    key          TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    body         BLOB NOT NULL,
    created_at   TEXT NOT NULL,
    PRIMARY KEY (bucket, key)
)`

// INSERT OR REPLACE gives Put its replace-on-rewrite semantics via the
// primary key, the SQLite spelling of the Postgres ON CONFLICT upsert.
const (
	upsertObjectSQL = `INSERT OR REPLACE INTO objects (bucket, key, content_type, body, created_at) VALUES (?, ?, ?, ?, ?)`
	getObjectSQL    = `SELECT body FROM objects WHERE bucket = ? AND key = ?`
	statObjectSQL   = `SELECT content_type, length(body), created_at FROM objects WHERE bucket = ? AND key = ?`
	deleteObjectSQL = `DELETE FROM objects WHERE bucket = ? AND key = ?`
	// substr comparison instead of LIKE: prefixes are data, not patterns,
	// and must not need % or _ escaping.
	listObjectsSQL = `SELECT key FROM objects WHERE bucket = ? AND substr(key, 1, ?) = ? ORDER BY key`
)

// New opens (or creates) the database at cfg.DSN and ensures the objects
// table exists.
func New(ctx context.Context, cfg blobstore.Config) (blobstore.Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite: missing dsn (database path)")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createObjectsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create objects table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	// substr counts characters, so the length argument must too.
	rows, err := s.db.QueryContext(ctx, listObjectsSQL, bucket, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s/%s: %w", bucket, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: list %s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list %s/%s: %w", bucket, prefix, err)
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, getObjectSQL, bucket, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if body == nil {
		// A nil slice would bind as NULL and trip the NOT NULL constraint;
		// an empty object is still an object.
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, upsertObjectSQL,
		bucket, key, contentType, body, formatCreatedAt(s.now()))
	if err != nil {
		return fmt.Errorf("sqlite: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (blobstore.ObjectInfo, error) {
	var (
		contentType string
		size        int64
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, statObjectSQL, bucket, key).Scan(&contentType, &size, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return blobstore.ObjectInfo{}, fmt.Errorf("sqlite: stat %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("sqlite: stat %s/%s: %w", bucket, key, err)
	}

	modTime, err := parseCreatedAt(createdAt)
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("sqlite: stat %s/%s: %w", bucket, key, err)
	}
	return blobstore.ObjectInfo{
		Key:         key,
		ContentType: contentType,
		Size:        size,
		ModTime:     modTime,
	}, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	res, err := s.db.ExecContext(ctx, deleteObjectSQL, bucket, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", bucket, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", bucket, key, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: delete %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	return nil
}

// formatCreatedAt formats a time as RFC3339Nano in UTC, the one layout
// this package ever writes.
func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseCreatedAt parses timestamps read back from SQLite.
//
// Rows written by this package are RFC3339Nano, but databases touched by
// other tools show up with close cousins, so a few common layouts are
// accepted. The bare datetime layout is interpreted as UTC.
func parseCreatedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if layout == "2006-01-02 15:04:05" {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.UTC(), nil
			}
			continue
		}
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
