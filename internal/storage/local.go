package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidhive/vidhive/internal/config"
)

// Local stores objects on the local filesystem under a base directory.
// Object paths map to files relative to the base; URLs are served under
// the configured base URL by whatever fronts the directory.
type Local struct {
	basePath string
	baseURL  string
}

// NewLocal creates a filesystem-backed gateway, creating the base directory
// if it does not exist.
func NewLocal(cfg config.StorageConfig) (*Local, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{
		basePath: cfg.LocalPath,
		baseURL:  strings.TrimSuffix(cfg.LocalBaseURL, "/"),
	}, nil
}

func (l *Local) fullPath(path string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(path))
}

func (l *Local) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full := l.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	// Write to a temp file and rename so a cancelled transfer never leaves
	// a partial object at the final path.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, readerContext(ctx, body))
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpName)
		if err == nil {
			err = closeErr
		}
		return fmt.Errorf("write object: %w", err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize object: %w", err)
	}

	slog.Debug("object stored", "path", path, "bytes", written)
	return nil
}

func (l *Local) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.fullPath(path))
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	err := os.Remove(l.fullPath(path))
	if os.IsNotExist(err) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (l *Local) URL(path string) string {
	return l.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (l *Local) Ping(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}

// readerContext wraps r so long copies observe context cancellation.
func readerContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
