// Package client is a Go client for the gallery REST API.
//
// Every authenticated call passes through a session guard: the stored token's
// expiry is decoded locally before the request is sent, and an expired token
// or a 401 from the server clears the token and invokes the registered
// UnauthorizedHandler with the destination the caller was trying to reach.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrUnauthenticated means there is no usable session; the caller should log in again.
	ErrUnauthenticated = errors.New("client: not authenticated")
	// ErrUpstreamStorage means the direct upload to object storage failed.
	ErrUpstreamStorage = errors.New("client: upload to storage failed")
	// ErrFileTooLarge means a file exceeded the client upload ceiling.
	ErrFileTooLarge = errors.New("client: file too large")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// UnauthorizedHandler is invoked when the session is found to be unusable.
// destination is the API path of the request that was refused, or the value
// passed to CheckSession.
type UnauthorizedHandler func(destination string)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

func WithUnauthorizedHandler(handler UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = handler }
}

// WithMaxUploadBytes sets the ceiling checked before an upload slot is requested.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) { c.maxUploadBytes = n }
}

// WithClock replaces the time source used to judge token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client calls the gallery API.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         TokenStore
	now            func() time.Time
	maxUploadBytes int64

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

// New constructs a client for the API rooted at baseURL. Without options it
// keeps the token in memory and registers no unauthorized handler.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := &Client{
		baseURL:        u,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		tokens:         NewMemoryTokenStore(),
		now:            time.Now,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetUnauthorizedHandler replaces the registered handler. nil disables it.
func (c *Client) SetUnauthorizedHandler(handler UnauthorizedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = handler
}

// CheckSession reports whether a stored, unexpired token exists. When it does
// not, any stale token is cleared and the handler is invoked with destination.
// Call it on navigation to catch expiry between requests.
func (c *Client) CheckSession(destination string) bool {
	token, err := c.tokens.Token()
	if err == nil && token != "" && !c.expired(token) {
		return true
	}
	c.endSession(destination)
	return false
}

// Logout discards the stored token.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	out    any
	auth   bool
}

// do is the single choke point for API requests.
func (c *Client) do(ctx context.Context, req call) error {
	var token string
	if req.auth {
		var err error
		token, err = c.tokens.Token()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if token == "" || c.expired(token) {
			c.endSession(req.path)
			return ErrUnauthenticated
		}
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && req.auth {
		c.endSession(req.path)
		return fmt.Errorf("%w: %s", ErrUnauthenticated, readErrorMessage(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp)}
	}
	if req.out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// expired decodes the token's exp claim without verifying the signature.
// A token is usable only while now is strictly before exp.
func (c *Client) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

func (c *Client) endSession(destination string) {
	_ = c.tokens.Clear()
	c.mu.RLock()
	handler := c.onUnauthorized
	c.mu.RUnlock()
	if handler != nil {
		handler(destination)
	}
}

func readErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
