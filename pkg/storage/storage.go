// Package storage is the blob-store boundary of the pipeline: bytes go in
// under a key, a stable retrievable URL comes out.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStore accepts a byte buffer under a key and returns a URL the bytes
// can be fetched from. Key deconfliction is the caller's responsibility; see
// UniqueKey.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// FileStore keeps blobs under a local directory that is served at baseURL.
type FileStore struct {
	root    string
	baseURL string
}

var _ BlobStore = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory blobs are written to.
func (s *FileStore) Root() string { return s.root }

// Upload writes the blob and returns its URL. Keys are cleaned so they can
// never escape the root.
func (s *FileStore) Upload(_ context.Context, key string, data []byte) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("storage: empty key")
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// UniqueKey derives a collision-free storage key from an original filename:
// a date prefix for bucketing, a short random id, and the original
// extension.
func UniqueKey(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "." {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = sanitize(base)
	if base == "" {
		base = "photo"
	}
	return fmt.Sprintf("%s/%s-%s%s",
		time.Now().UTC().Format("2006/01/02"), base, uuid.NewString()[:8], ext)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
