package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gallery-app/apiserver/config"
)

// ErrForeignURL is returned by KeyFromURL for URLs outside the public base.
var ErrForeignURL = errors.New("url is not served by this bucket")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	// PresignPut returns a URL that accepts a single PUT of the object with
	// the given content type until expiry elapses.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	// DefaultPublicBaseURL is the URL prefix objects are readable under when
	// no CDN domain is configured.
	DefaultPublicBaseURL() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend       ObjectStorage
	publicBaseURL string
}

// NewStorage constructs a Storage wrapper for the provided backend. An empty
// publicBaseURL falls back to the backend default.
func NewStorage(backend ObjectStorage, publicBaseURL string) *Storage {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = strings.TrimRight(backend.DefaultPublicBaseURL(), "/")
	}
	return &Storage{backend: backend, publicBaseURL: base}
}

// New constructs the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Backend {
	case "", "minio":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return NewStorage(backend, cfg.PublicBaseURL), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PresignPut returns a presigned upload URL for key.
func (s *Storage) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return s.backend.PresignPut(ctx, key, contentType, expiry)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// PublicURL returns the read URL of key.
func (s *Storage) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL recovers the object key from a URL produced by PublicURL.
func (s *Storage) KeyFromURL(raw string) (string, error) {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(raw, prefix) {
		return "", ErrForeignURL
	}
	key := strings.TrimPrefix(raw, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	key, err := url.PathUnescape(key)
	if err != nil || key == "" {
		return "", ErrForeignURL
	}
	return key, nil
}
