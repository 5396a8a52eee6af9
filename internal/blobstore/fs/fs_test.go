package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cpstats/internal/blobstore"
)

func newStore(t *testing.T) blobstore.Store {
	t.Helper()
	st, err := blobstore.Open(context.Background(), blobstore.Config{Kind: "fs", DSN: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	body := []byte("snapshot bytes")
	if err := st.Put(ctx, "profiles", "alice/2024-05-01/raw/leetcode.gz", body, "application/gzip"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := st.Get(ctx, "profiles", "alice/2024-05-01/raw/leetcode.gz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("Get returned %q, want %q", got, body)
	}
}

func TestPut_ReplacesExistingObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	if err := st.Put(ctx, "profiles", "r1/summary.json", []byte("first"), "application/json"); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := st.Put(ctx, "profiles", "r1/summary.json", []byte("second"), "application/json"); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := st.Get(ctx, "profiles", "r1/summary.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected replacement, got %q", got)
	}
}

func TestGetStatDelete_MissingObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	if _, err := st.Get(ctx, "profiles", "nope/raw/leetcode.gz"); !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("Get: expected ErrNotExist, got %v", err)
	}
	if _, err := st.Stat(ctx, "profiles", "nope/summary.json"); !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("Stat: expected ErrNotExist, got %v", err)
	}
	if err := st.Delete(ctx, "profiles", "nope/raw/leetcode.gz"); !errors.Is(err, blobstore.ErrNotExist) {
		t.Fatalf("Delete: expected ErrNotExist, got %v", err)
	}
}

func TestList_PrefixAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	objects := []string{
		"r1/raw/leetcode.gz",
		"r1/raw/codechef.gz",
		"r1/summary.json",
		"r2/raw/codeforces.gz",
	}
	for _, key := range objects {
		if err := st.Put(ctx, "profiles", key, []byte("x"), ""); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	keys, err := st.List(ctx, "profiles", "r1/raw/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "r1/raw/codechef.gz" || keys[1] != "r1/raw/leetcode.gz" {
		t.Fatalf("unexpected listing: %v", keys)
	}

	all, err := st.List(ctx, "profiles", "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != len(objects) {
		t.Fatalf("expected %d keys, got %v", len(objects), all)
	}
}

func TestList_MissingBucketIsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	keys, err := st.List(ctx, "never-written", "r1/raw/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestList_SkipsInFlightTempFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	st, err := New(ctx, blobstore.Config{Kind: "fs", DSN: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer st.Close()

	if err := st.Put(ctx, "profiles", "r1/raw/leetcode.gz", []byte("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stray := filepath.Join(root, "profiles", "r1", "raw", ".cpstats-12345")
	if err := os.WriteFile(stray, []byte("partial"), 0o644); err != nil {
		t.Fatalf("plant temp file: %v", err)
	}

	keys, err := st.List(ctx, "profiles", "r1/raw/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "r1/raw/leetcode.gz" {
		t.Fatalf("temp file leaked into listing: %v", keys)
	}
}

func TestStat_DescribesObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	body := []byte(`{"leetcode": {}}`)
	if err := st.Put(ctx, "profiles", "r1/summary.json", body, "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := st.Stat(ctx, "profiles", "r1/summary.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("size: expected %d, got %d", len(body), info.Size)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("content type: got %q", info.ContentType)
	}
	if info.Key != "r1/summary.json" {
		t.Fatalf("key: got %q", info.Key)
	}
	if info.ModTime.IsZero() {
		t.Fatalf("mod time must be set")
	}
}

func TestObjectPath_RejectsEscapes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	for _, key := range []string{
		"../outside",
		"a/../../outside",
		"/etc/passwd",
		"",
	} {
		if err := st.Put(ctx, "profiles", key, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q): expected rejection", key)
		}
		if _, err := st.Get(ctx, "profiles", key); err == nil || errors.Is(err, blobstore.ErrNotExist) {
			t.Errorf("Get(%q): expected a validation error, got %v", key, err)
		}
	}

	if err := st.Put(ctx, "pro/files", "r1/raw/leetcode.gz", []byte("x"), ""); err == nil {
		t.Errorf("bucket with separator must be rejected")
	}
}

func TestContentTypeForKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  string
		want string
	}{
		{"r1/summary.json", "application/json"},
		{"r1/raw/leetcode.gz", "application/gzip"},
		{"r1/raw/notes.txt", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := contentTypeForKey(tc.key); got != tc.want {
			t.Errorf("contentTypeForKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestNew_RequiresRoot(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), blobstore.Config{Kind: "fs"}); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}
