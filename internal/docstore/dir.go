package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore maps buckets to directories under a root, so
// s3://b/uploads/doc1.txt lives at {root}/b/uploads/doc1.txt.
// Content types are not persisted.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

// NewDirStore returns a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (d *DirStore) path(bucket, key string) (string, error) {
	dir := filepath.Join(d.root, bucket)
	if !within(d.root, dir) || dir == filepath.Clean(d.root) {
		return "", fmt.Errorf("bucket %q escapes store root", bucket)
	}
	p := filepath.Join(dir, filepath.FromSlash(key))
	if !within(dir, p) {
		return "", fmt.Errorf("key %q escapes bucket %s", key, bucket)
	}
	return p, nil
}

// within reports whether p is base or lies below it.
func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *DirStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := d.path(bucket, key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return body, nil
}

func (d *DirStore) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	p, err := d.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", p, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}

func (d *DirStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	base, err := d.path(bucket, "")
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
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
		return nil, fmt.Errorf("walk %s: %w", base, err)
	}
	sort.Strings(keys)
	return keys, nil
}
