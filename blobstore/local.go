package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/docstash/internal/mmap"
)

const tempPrefix = ".tmp-"

// LocalStore implements BlobStore using the local file system.
//
// Blobs live under a two-character fan-out directory derived from the
// reference, so no single directory grows unbounded. Writes go to a temporary
// file that is renamed into place, so readers never observe partial blobs.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// The directory is created if it does not exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the directory the store writes to.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(ref Ref) (string, error) {
	r := string(ref)
	if len(r) < 3 || strings.ContainsAny(r, `/\`) || strings.HasPrefix(r, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, r)
	}
	return filepath.Join(s.root, r[:2], r), nil
}

// Put writes data atomically.
func (s *LocalStore) Put(ctx context.Context, data []byte) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := NewRef()
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return ref, nil
}

// Get returns a copy of the blob.
func (s *LocalStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	var data []byte
	err := s.View(ctx, ref, func(b []byte) error {
		data = bytes.Clone(b)
		return nil
	})
	return data, err
}

// View maps the blob file and lends the mapping to fn.
func (s *LocalStore) View(ctx context.Context, ref Ref, fn func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ref)
	if err != nil {
		return err
	}

	m, err := mmap.Open(path)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m.Bytes())
}

// Delete removes a blob.
func (s *LocalStore) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	// Fan-out directories are kept so a concurrent Put into the same one
	// never loses its directory between MkdirAll and CreateTemp.
	return os.Remove(path)
}

// List returns all references in sorted order.
func (s *LocalStore) List(ctx context.Context) ([]Ref, error) {
	var refs []Ref
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		refs = append(refs, Ref(d.Name()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(refs)
	return refs, nil
}
