package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cpstats/internal/blobstore"
)

// fakePool records the last statement and serves canned results, keeping
// these tests free of a live server.
type fakePool struct {
	lastSQL  string
	lastArgs []any

	execTag  pgconn.CommandTag
	execErr  error
	rows     pgx.Rows
	queryErr error
	row      pgx.Row
	closed   int
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.lastSQL, p.lastArgs = sql, args
	return p.execTag, p.execErr
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.lastSQL, p.lastArgs = sql, args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.lastSQL, p.lastArgs = sql, args
	return p.row
}

func (p *fakePool) Close() { p.closed++ }

type fakeRows struct {
	keys []string
	i    int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.keys)
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.keys[r.i-1]
	return nil
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func TestPut_UpsertStatement(t *testing.T) {
	t.Parallel()

	pool := &fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	st := &Store{db: pool}

	err := st.Put(context.Background(), "profiles", "r1/summary.json", []byte("{}"), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !strings.Contains(pool.lastSQL, "ON CONFLICT (bucket, key) DO UPDATE") {
		t.Fatalf("Put must upsert, got:\n%s", pool.lastSQL)
	}
	want := []any{"profiles", "r1/summary.json", "application/json", []byte("{}")}
	if len(pool.lastArgs) != len(want) {
		t.Fatalf("args: %#v", pool.lastArgs)
	}
	for i := range want {
		switch w := want[i].(type) {
		case []byte:
			if string(pool.lastArgs[i].([]byte)) != string(w) {
				t.Fatalf("arg %d: %#v", i, pool.lastArgs[i])
			}
		default:
			if pool.lastArgs[i] != w {
				t.Fatalf("arg %d: %#v, want %#v", i, pool.lastArgs[i], w)
			}
		}
	}
}

func TestPut_NilBodyBecomesEmpty(t *testing.T) {
	t.Parallel()

	pool := &fakePool{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	st := &Store{db: pool}

	if err := st.Put(context.Background(), "profiles", "k", nil, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, ok := pool.lastArgs[3].([]byte)
	if !ok || body == nil || len(body) != 0 {
		t.Fatalf("nil body must bind as empty bytes, got %#v", pool.lastArgs[3])
	}
}

func TestGet_MapsNoRowsToErrNotExist(t *testing.T) {
	t.Parallel()

	pool := &fakePool{row: fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}}
	st := &Store{db: pool}

	_, err := st.Get(context.Background(), "profiles", "missing")
	if !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestGet_ReturnsBody(t *testing.T) {
	t.Parallel()

	pool := &fakePool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*[]byte)) = []byte("snapshot")
		return nil
	}}}
	st := &Store{db: pool}

	body, err := st.Get(context.Background(), "profiles", "r1/raw/leetcode.gz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "snapshot" {
		t.Fatalf("body: %q", body)
	}
	if pool.lastArgs[0] != "profiles" || pool.lastArgs[1] != "r1/raw/leetcode.gz" {
		t.Fatalf("args: %#v", pool.lastArgs)
	}
}

func TestStat_MapsRowAndNoRows(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pool := &fakePool{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "application/gzip"
		*(dest[1].(*int64)) = 512
		*(dest[2].(*time.Time)) = created
		return nil
	}}}
	st := &Store{db: pool}

	info, err := st.Stat(context.Background(), "profiles", "r1/raw/leetcode.gz")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Key != "r1/raw/leetcode.gz" || info.ContentType != "application/gzip" ||
		info.Size != 512 || !info.ModTime.Equal(created) {
		t.Fatalf("unexpected info: %+v", info)
	}

	pool.row = fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
	if _, err := st.Stat(context.Background(), "profiles", "missing"); !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestDelete_RowsAffectedDecidesExistence(t *testing.T) {
	t.Parallel()

	pool := &fakePool{execTag: pgconn.NewCommandTag("DELETE 1")}
	st := &Store{db: pool}

	if err := st.Delete(context.Background(), "profiles", "r1/raw/leetcode.gz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	pool.execTag = pgconn.NewCommandTag("DELETE 0")
	err := st.Delete(context.Background(), "profiles", "already-gone")
	if !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestList_CollectsKeysInOrder(t *testing.T) {
	t.Parallel()

	pool := &fakePool{rows: &fakeRows{keys: []string{"r1/raw/codechef.gz", "r1/raw/leetcode.gz"}}}
	st := &Store{db: pool}

	keys, err := st.List(context.Background(), "profiles", "r1/raw/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "r1/raw/codechef.gz" || keys[1] != "r1/raw/leetcode.gz" {
		t.Fatalf("keys: %v", keys)
	}
	if !strings.Contains(pool.lastSQL, "starts_with(key, $2)") {
		t.Fatalf("list must filter by prefix, got:\n%s", pool.lastSQL)
	}
	if pool.lastArgs[1] != "r1/raw/" {
		t.Fatalf("args: %#v", pool.lastArgs)
	}
}

func TestList_SurfacesRowsErr(t *testing.T) {
	t.Parallel()

	pool := &fakePool{rows: &fakeRows{keys: []string{"r1/raw/leetcode.gz"}, err: errors.New("conn reset")}}
	st := &Store{db: pool}

	if _, err := st.List(context.Background(), "profiles", "r1/"); err == nil {
		t.Fatalf("expected rows error to surface")
	}
}
