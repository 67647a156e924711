// Package storage provides the object store gateway for uploaded media and
// derived artifacts. Paths are opaque strings scoped under the owner's
// namespace; an object's bytes are never rewritten once stored.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vidhive/vidhive/internal/config"
)

var ErrObjectNotFound = errors.New("object not found")

// Gateway is the byte storage interface consumed by the upload coordinator
// and the processing stages. Implementations must be safe for concurrent use.
type Gateway interface {
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
	Ping(ctx context.Context) error
}

// New builds the configured storage backend.
func New(ctx context.Context, cfg config.StorageConfig) (Gateway, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
