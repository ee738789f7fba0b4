package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BaseCache holds the merge-base Markdown snapshot for each page as a flat
// file per page id. Writes are atomic so a crash never leaves a torn base.
type BaseCache struct {
	dir string
}

// NewBaseCache returns a cache rooted at dir, creating it if needed.
func NewBaseCache(dir string) (*BaseCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create base cache dir: %w", err)
	}
	return &BaseCache{dir: dir}, nil
}

func (c *BaseCache) path(pageID string) string {
	return filepath.Join(c.dir, pageID+".base")
}

// Read returns the stored base content for pageID, or ErrNotFound when the
// page has no base snapshot.
func (c *BaseCache) Read(pageID string) (string, error) {
	data, err := os.ReadFile(c.path(pageID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("base of page %s: %w", pageID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read base of page %s: %w", pageID, err)
	}
	return string(data), nil
}

// Write replaces the base snapshot for pageID via a temp file and rename.
func (c *BaseCache) Write(pageID, content string) error {
	tmp, err := os.CreateTemp(c.dir, pageID+".base.tmp-*")
	if err != nil {
		return fmt.Errorf("write base of page %s: %w", pageID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write base of page %s: %w", pageID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write base of page %s: %w", pageID, err)
	}
	if err := os.Rename(tmpName, c.path(pageID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace base of page %s: %w", pageID, err)
	}
	return nil
}

// Remove deletes the base snapshot for pageID. Removing an absent snapshot
// is not an error.
func (c *BaseCache) Remove(pageID string) error {
	err := os.Remove(c.path(pageID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove base of page %s: %w", pageID, err)
	}
	return nil
}
