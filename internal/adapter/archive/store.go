// Package archive persists encoded templates to one or more stores.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists one named object and returns where it landed.
type Store interface {
	Name() string
	Put(ctx context.Context, name string, data []byte) (location string, err error)
}

// DirStore writes templates into a local directory. Writes go to a
// temporary file first and are renamed into place, so readers never see a
// partial template and concurrent units can share the directory.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir. The directory is created on
// first write.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (s *DirStore) Name() string { return "dir" }

// Put writes data to {dir}/{name}, replacing any previous file.
func (s *DirStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir %s: %w", s.dir, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("archive: create tmp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("archive: write tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("archive: close tmp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("archive: chmod tmp: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("archive: rename: %w", err)
	}
	return target, nil
}
