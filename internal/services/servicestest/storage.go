package servicestest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gallery-app/apiserver/internal/storage"
)

// PublicBase is the URL prefix under which Objects serves keys.
const PublicBase = "https://storage.test/bucket/"

// Presigner returns deterministic upload URLs under PublicBase.
type Presigner struct {
	Err  error
	Keys []string
}

func (p *Presigner) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	p.Keys = append(p.Keys, key)
	return PublicBase + key + "?X-Signature=test", nil
}

func (p *Presigner) PublicURL(key string) string {
	return PublicBase + key
}

func (p *Presigner) KeyFromURL(raw string) (string, error) {
	return keyFromURL(raw)
}

// Objects records deletions of keys under PublicBase.
type Objects struct {
	mu      sync.Mutex
	Err     error
	deleted []string
}

func (o *Objects) KeyFromURL(raw string) (string, error) {
	return keyFromURL(raw)
}

func keyFromURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, PublicBase) {
		return "", storage.ErrForeignURL
	}
	return strings.TrimPrefix(raw, PublicBase), nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.deleted = append(o.deleted, key)
	return nil
}

// Deleted returns the keys deleted so far.
func (o *Objects) Deleted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.deleted...)
}
