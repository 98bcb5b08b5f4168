package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct{ base string }

func (s stubBackend) EnsureBucket(context.Context) error { return nil }
func (s stubBackend) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return s.base + "/" + key + "?signed=1", nil
}
func (s stubBackend) Delete(context.Context, string) error { return nil }
func (s stubBackend) Bucket() string                       { return "gallery" }
func (s stubBackend) DefaultPublicBaseURL() string         { return s.base }

func TestPublicURLUsesBackendDefault(t *testing.T) {
	s := NewStorage(stubBackend{base: "http://localhost:9000/gallery"}, "")
	assert.Equal(t, "http://localhost:9000/gallery/posts/a.png", s.PublicURL("posts/a.png"))
}

func TestPublicURLPrefersConfiguredBase(t *testing.T) {
	s := NewStorage(stubBackend{base: "http://localhost:9000/gallery"}, "https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/posts/a.png", s.PublicURL("/posts/a.png"))
}

func TestKeyFromURL(t *testing.T) {
	s := NewStorage(stubBackend{base: "https://cdn.example.com"}, "")

	key, err := s.KeyFromURL("https://cdn.example.com/posts/a%20b.png?v=2")
	require.NoError(t, err)
	assert.Equal(t, "posts/a b.png", key)

	_, err = s.KeyFromURL("https://elsewhere.example.com/posts/a.png")
	assert.ErrorIs(t, err, ErrForeignURL)

	_, err = s.KeyFromURL("https://cdn.example.com/")
	assert.ErrorIs(t, err, ErrForeignURL)
}

func TestRoundTripPublicURL(t *testing.T) {
	s := NewStorage(stubBackend{base: "http://minio:9000/gallery"}, "")
	key, err := s.KeyFromURL(s.PublicURL("posts/123.webp"))
	require.NoError(t, err)
	assert.Equal(t, "posts/123.webp", key)
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Statement []struct {
			Effect   string
			Action   []string
			Resource []string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("gallery")), &policy))
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, "Allow", policy.Statement[0].Effect)
	assert.Equal(t, []string{"s3:GetObject"}, policy.Statement[0].Action)
	assert.Equal(t, []string{"arn:aws:s3:::gallery/*"}, policy.Statement[0].Resource)
}
