package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobStore holds uploaded file bytes.
type BlobStore interface {
	// Put stores data under the slash-separated relative path and returns
	// the public URL it is served from.
	Put(ctx context.Context, relPath string, data []byte) (url string, err error)

	// Get returns the stored bytes.
	Get(ctx context.Context, relPath string) ([]byte, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, relPath string) error
}

// LocalBlobStore keeps blobs on the local file system under root and
// serves them from baseURL.
type LocalBlobStore struct {
	root    string
	baseURL string
}

// NewLocalBlobStore creates a LocalBlobStore. An empty baseURL defaults to
// "/media".
func NewLocalBlobStore(root, baseURL string) *LocalBlobStore {
	if baseURL == "" {
		baseURL = "/media"
	}
	return &LocalBlobStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Root returns the directory blobs are written under.
func (b *LocalBlobStore) Root() string {
	return b.root
}

func (b *LocalBlobStore) Put(_ context.Context, relPath string, data []byte) (string, error) {
	full, err := b.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return b.baseURL + "/" + relPath, nil
}

func (b *LocalBlobStore) Get(_ context.Context, relPath string) ([]byte, error) {
	full, err := b.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (b *LocalBlobStore) Delete(_ context.Context, relPath string) error {
	full, err := b.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// resolve maps relPath under root, refusing paths that escape it.
func (b *LocalBlobStore) resolve(relPath string) (string, error) {
	clean := path.Clean(relPath)
	if relPath == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob path %q", relPath)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}
