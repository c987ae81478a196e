package storage

import (
	"context"
	"fmt"
	"io"
)

// Storage defines the minimal interface for file storage backends.
// Intentionally simple: put a file, get it back, delete it, get its URL.
type Storage interface {
	// Put stores a file at the given key and returns an error on failure.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get retrieves the file stored at the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file by its key. Returns nil if the file doesn't exist.
	Delete(ctx context.Context, key string) error

	// GetURL returns the public URL for a file given its logical key.
	GetURL(key string) string
}

// Config holds backend selection and connection settings
type Config struct {
	Backend       string // "local" or "s3"
	LocalPath     string
	PublicBaseURL string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
}

// New creates the storage backend selected by configuration.
// Exactly one backend is active per process.
func New(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.PublicBaseURL)
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
