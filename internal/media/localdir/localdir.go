// Package localdir stores uploaded media on the local filesystem for direct
// mode. Objects keep their caller-chosen path under a root directory; the
// returned reference is a file URL.
package localdir

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
)

// Store implements store.MediaStore over a directory.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localdir.New: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("localdir.New: %w", err)
	}
	return &Store{root: abs}, nil
}

// Upload writes the object and returns its file URL. The path is cleaned and
// confined to the root; traversal outside it is rejected.
func (s *Store) Upload(ctx context.Context, objPath, contentType string, r io.Reader) (string, error) {
	defer logger.DeferLogDuration("localdir.Upload", time.Now())()

	// Rooted Clean keeps the object inside the store directory.
	clean := path.Clean("/" + objPath)
	dst := filepath.Join(s.root, filepath.FromSlash(clean))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("localdir.Upload: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("localdir.Upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("localdir.Upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("localdir.Upload: %w", err)
	}
	return "file://" + filepath.ToSlash(dst), nil
}
