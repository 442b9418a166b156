// Package archive persists run artifacts to the local filesystem or S3.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// ErrNotFound is returned when a path holds no data
var ErrNotFound = errors.New("archive: not found")

// Storage defines the interface for archive storage backends.
// Paths are slash-separated and relative to the backend root.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend types
const (
	TypeLocalFS = "localfs"
	TypeS3      = "s3"
)

// Config selects and configures a backend
type Config struct {
	Type string
	Path string // For localfs
	S3   S3Config
}

// New opens the configured backend
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocalFS, "":
		return NewLocalFS(cfg.Path)
	case TypeS3:
		return NewS3(cfg.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
	}
}
