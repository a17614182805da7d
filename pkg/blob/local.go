package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore persists blobs on disk under a base directory, keyed by blob id.
type LocalStore struct {
	baseDir string
}

// NewLocalStore ensures the base directory exists and returns a handle.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Put writes the payload to a new blob and returns its id.
func (s *LocalStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	id := fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006/01"), uuid.NewString())
	path := s.resolve(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return id, nil
}

// Get reads the full payload of a stored blob.
func (s *LocalStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	data, err := os.ReadFile(s.resolve(id))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStore) Open(id string) (*os.File, error) {
	file, err := os.Open(s.resolve(id))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	return file, nil
}

// Delete removes a stored blob if present.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := os.Remove(s.resolve(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

func (s *LocalStore) resolve(id string) string {
	clean := filepath.Clean(strings.TrimPrefix(id, "/"))
	return filepath.Join(s.baseDir, clean)
}
