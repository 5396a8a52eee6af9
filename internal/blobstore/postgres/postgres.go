// Package postgres implements the blob store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cpstats/internal/blobstore"
)

func init() {
	blobstore.Register("postgres", New)
}

// pgxConn is the subset of *pgxpool.Pool this store uses. Tests substitute
// a fake; production always wraps a real pool.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements blobstore.Store on one objects table.
type Store struct {
	db pgxConn
}

const createObjectsSQL = `CREATE TABLE IF NOT EXISTS objects (
    bucket       TEXT NOT NULL,
    key          TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    body         BYTEA NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (bucket, key)
)`

const (
	upsertObjectSQL = `INSERT INTO objects (bucket, key, content_type, body, created_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (bucket, key) DO UPDATE
SET content_type = EXCLUDED.content_type, body = EXCLUDED.body, created_at = now()`
	getObjectSQL    = `SELECT body FROM objects WHERE bucket = $1 AND key = $2`
	statObjectSQL   = `SELECT content_type, octet_length(body), created_at FROM objects WHERE bucket = $1 AND key = $2`
	deleteObjectSQL = `DELETE FROM objects WHERE bucket = $1 AND key = $2`
	// starts_with instead of LIKE: prefixes are data, not patterns, and
	// must not need % or _ escaping.
	listObjectsSQL = `SELECT key FROM objects WHERE bucket = $1 AND starts_with(key, $2) ORDER BY key`
)

// New connects a pool to cfg.DSN and ensures the objects table exists.
func New(ctx context.Context, cfg blobstore.Config) (blobstore.Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: missing dsn")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createObjectsSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create objects table: %w", err)
	}
	return &Store{db: pool}, nil
}

func (s *Store) Close() { s.db.Close() }

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx, listObjectsSQL, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s/%s: %w", bucket, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgres: list %s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %s/%s: %w", bucket, prefix, err)
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(ctx, getObjectSQL, bucket, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: get %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if body == nil {
		body = []byte{}
	}
	if _, err := s.db.Exec(ctx, upsertObjectSQL, bucket, key, contentType, body); err != nil {
		return fmt.Errorf("postgres: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (blobstore.ObjectInfo, error) {
	info := blobstore.ObjectInfo{Key: key}
	err := s.db.QueryRow(ctx, statObjectSQL, bucket, key).Scan(&info.ContentType, &info.Size, &info.ModTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return blobstore.ObjectInfo{}, fmt.Errorf("postgres: stat %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("postgres: stat %s/%s: %w", bucket, key, err)
	}
	return info, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	tag, err := s.db.Exec(ctx, deleteObjectSQL, bucket, key)
	if err != nil {
		return fmt.Errorf("postgres: delete %s/%s: %w", bucket, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	return nil
}
