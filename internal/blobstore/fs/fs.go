// Package fs implements the blob store on a local directory tree.
//
// Objects live at <root>/<bucket>/<key>, with key slashes becoming
// directories. This is the default backend: it needs no services and the
// resulting tree is directly inspectable.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cpstats/internal/blobstore"
)

// tmpPattern names in-flight writes. List skips them so a concurrent
// reader never sees a half-written object.
const tmpPattern = ".cpstats-*"

func init() {
	blobstore.Register("fs", New)
}

type store struct {
	root string
}

// New opens a filesystem store rooted at cfg.DSN, creating the directory
// if needed.
func New(ctx context.Context, cfg blobstore.Config) (blobstore.Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("fs: missing dsn (root directory)")
	}
	if err := os.MkdirAll(cfg.DSN, 0o755); err != nil {
		return nil, fmt.Errorf("fs: create root: %w", err)
	}
	return &store{root: cfg.DSN}, nil
}

// objectPath maps bucket/key to a filesystem path, rejecting anything that
// would escape the root.
func (s *store) objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", fmt.Errorf("fs: invalid bucket %q", bucket)
	}
	if key == "" {
		return "", errors.New("fs: empty key")
	}
	clean := path.Clean(key)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("fs: key %q escapes the store root", key)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

func (s *store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucketDir := filepath.Join(s.root, bucket)

	var keys []string
	err := filepath.WalkDir(bucketDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if matched, _ := filepath.Match(tmpPattern, d.Name()); matched {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fs: list %s/%s: %w", bucket, prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fs: get %s/%s: %w", bucket, key, blobstore.ErrNotExist)
		}
		return nil, fmt.Errorf("fs: get %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// Put writes atomically: a temp file in the destination directory, then a
// rename into place. Readers see either the old object or the new one.
func (s *store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fs: put %s/%s: %w", bucket, key, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("fs: put %s/%s: %w", bucket, key, err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(body)
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs: put %s/%s: %w", bucket, key, writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs: put %s/%s: %w", bucket, key, closeErr)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fs: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *store) Stat(ctx context.Context, bucket, key string) (blobstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return blobstore.ObjectInfo{}, err
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return blobstore.ObjectInfo{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return blobstore.ObjectInfo{}, fmt.Errorf("fs: stat %s/%s: %w", bucket, key, blobstore.ErrNotExist)
		}
		return blobstore.ObjectInfo{}, fmt.Errorf("fs: stat %s/%s: %w", bucket, key, err)
	}
	if info.IsDir() {
		// Directories are an artifact of the layout, not objects.
		return blobstore.ObjectInfo{}, fmt.Errorf("fs: stat %s/%s: %w", bucket, key, blobstore.ErrNotExist)
	}
	return blobstore.ObjectInfo{
		Key:         key,
		ContentType: contentTypeForKey(key),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

func (s *store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("fs: delete %s/%s: %w", bucket, key, blobstore.ErrNotExist)
		}
		return fmt.Errorf("fs: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *store) Close() {}

// contentTypeForKey derives the content type from the key extension. The
// filesystem has nowhere to persist the type given to Put, and the two
// object kinds this store exists for are unambiguous from their names.
func contentTypeForKey(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
