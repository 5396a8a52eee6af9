// Package blobstore defines the object-store abstraction that snapshots
// and summaries live in, plus the backend registry.
//
// Backends register themselves from init() and are selected by kind at
// runtime, so binaries choose their storage with a blank import:
//
//	import _ "cpstats/internal/blobstore/all"
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config is the minimal configuration needed to open a store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; its meaning and
//     validation are backend-specific (a directory for fs, a connection
//     string for the SQL backends).
type Config struct {
	Kind string
	DSN  string
}

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key         string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// ErrNotExist reports an operation on a missing object. Every backend
// wraps it, so callers test with errors.Is regardless of kind.
var ErrNotExist = errors.New("blobstore: object does not exist")

// Store is bucket/key object storage.
//
// IMPORTANT: this interface is intentionally minimal and focused on what
// report aggregation needs. Each backend implements the semantics in its
// own idiomatic way (filesystem rename, INSERT OR REPLACE, ON CONFLICT,
// guarded UPDATE-then-INSERT).
type Store interface {
	// List returns the keys under prefix in bucket, sorted. A prefix with
	// no objects yields an empty slice, not an error.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Get returns the object body. Missing objects satisfy
	// errors.Is(err, ErrNotExist).
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error

	// Stat describes an object without reading its body. Missing objects
	// satisfy errors.Is(err, ErrNotExist).
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// Delete removes an object. Deleting a missing object satisfies
	// errors.Is(err, ErrNotExist).
	Delete(ctx context.Context, bucket, key string) error

	// Close releases backend resources (connections, pools). Treat as
	// "call once" at shutdown.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "fs", "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package. The kind
//     string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. Failing fast here avoids ambiguous
//     backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("blobstore: Register called with empty kind")
	}
	if f == nil {
		panic("blobstore: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("blobstore: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - If cfg.Kind is empty or unregistered; the error names the registered
//     kinds so a typo in configuration is self-explanatory.
//   - Whatever error the backend factory returns.
//
// Concurrency:
//   - Safe for concurrent use with Register; Open takes a read lock while
//     selecting the factory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("blobstore: missing store.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported store.kind=%q (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
