// Package blob stores uploaded binary objects under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists blobs and resolves them to public URLs.
type Store interface {
	// Put writes data under a fresh key ending in ext and returns the key.
	Put(ctx context.Context, data []byte, ext string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URLFor returns the public URL of key.
	URLFor(key string) string
}

// LocalStore keeps blobs on the local filesystem below root.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore returns a store rooted at dir whose files are served under baseURL.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{
		root:    filepath.Clean(dir),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Root returns the directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	key := "posts/" + uuid.NewString() + ext
	path, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := writeBytesToFile(path, data); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return key, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URLFor(key string) string {
	if key == "" {
		return ""
	}
	return s.baseURL + "/" + key
}

// pathFor maps key below root and rejects keys that escape it.
func (s *LocalStore) pathFor(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return path, nil
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
