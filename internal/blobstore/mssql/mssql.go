// Package mssql implements the blob store on SQL Server.
//
// Key differences from the Postgres backend:
//   - "key" is reserved in T-SQL, so the column is bracketed everywhere.
//   - There is no ON CONFLICT; Put is an UPDATE followed by a conditional
//     INSERT in one batch, keyed on @@ROWCOUNT.
//   - Prefix listing uses CHARINDEX(prefix, [key]) = 1 so the prefix stays
//     data and never needs LIKE escaping.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"cpstats/internal/blobstore"
)

func init() {
	blobstore.Register("mssql", New)
}

// Store implements blobstore.Store on one objects table.
type Store struct {
	db  dbConn
	now func() time.Time
}

// The clustered primary key limits index width to 900 bytes; NVARCHAR
// counts two bytes per character, hence the column sizes.
const createObjectsSQL = `IF OBJECT_ID(N'objects', N'U') IS NULL
BEGIN
CREATE TABLE objects (
    bucket       NVARCHAR(128) NOT NULL,
    [key]        NVARCHAR(320) NOT NULL,
    content_type NVARCHAR(255) NOT NULL DEFAULT '',
    body         VARBINARY(MAX) NOT NULL,
    created_at   DATETIME2 NOT NULL,
    PRIMARY KEY (bucket, [key])
);
END;`

const (
	upsertObjectSQL = `UPDATE objects SET content_type = @p3, body = @p4, created_at = @p5 WHERE bucket = @p1 AND [key] = @p2;
IF @@ROWCOUNT = 0
INSERT INTO objects (bucket, [key], content_type, body, created_at) VALUES (@p1, @p2, @p3, @p4, @p5);`
	getObjectSQL    = `SELECT body FROM objects WHERE bucket = @p1 AND [key] = @p2`
	statObjectSQL   = `SELECT content_type, DATALENGTH(body), created_at FROM objects WHERE bucket = @p1 AND [key] = @p2`
	deleteObjectSQL = `DELETE FROM objects WHERE bucket = @p1 AND [key] = @p2`
)

// buildListSQL returns the listing statement and arguments for a prefix.
// CHARINDEX at position 1 is the T-SQL spelling of starts-with; an empty
// prefix gets its own statement because CHARINDEX with an empty search
// string does not report a match.
func buildListSQL(bucket, prefix string) (string, []any) {
	if prefix == "" {
		return `SELECT [key] FROM objects WHERE bucket = @p1 ORDER BY [key]`, []any{bucket}
	}
	return `SELECT [key] FROM objects WHERE bucket = @p1 AND CHARINDEX(@p2, [key]) = 1 ORDER BY [key]`,
		[]any{bucket, prefix}
}

// New connects to cfg.DSN and ensures the objects table exists.
func New(ctx context.Context, cfg blobstore.Config) (blobstore.Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mssql: missing dsn")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createObjectsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: create objects table: %w", err)
	}
	return &Store{db: &sqlDB{db: db}, now: time.Now}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	query, args := buildListSQL(bucket, prefix)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mssql: list %s/%s: %w", bucket, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("mssql: list %s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: list %s/%s: %w", bucket, prefix, err)
	}
	return keys, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, getObjectSQL, bucket, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mssql: get %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("mssql: get %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, upsertObjectSQL,
		bucket, key, contentType, body, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mssql: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (blobstore.ObjectInfo, error) {
	info := blobstore.ObjectInfo{Key: key}
	err := s.db.QueryRowContext(ctx, statObjectSQL, bucket, key).Scan(&info.ContentType, &info.Size, &info.ModTime)
	if errors.Is(err, sql.ErrNoRows) {
		return blobstore.ObjectInfo{}, fmt.Errorf("mssql: stat %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("mssql: stat %s/%s: %w", bucket, key, err)
	}
	return info, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	res, err := s.db.ExecContext(ctx, deleteObjectSQL, bucket, key)
	if err != nil {
		return fmt.Errorf("mssql: delete %s/%s: %w", bucket, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mssql: delete %s/%s: %w", bucket, key, err)
	}
	if n == 0 {
		return fmt.Errorf("mssql: delete %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	return nil
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package
// testable. It intentionally includes only the methods this file needs.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
