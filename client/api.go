package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gallery-app/apiserver/types"
)

// Session is the response of every login endpoint.
type Session struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        types.UserProfile `json:"user"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Password string `json:"password"`
}

// GoogleLogin carries a Google ID token, or the identity fields the caller
// already verified when the server has no client id configured.
type GoogleLogin struct {
	Credential string `json:"credential,omitempty"`
	GoogleID   string `json:"google_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

// PostPage is one page of a post listing.
type PostPage struct {
	Items []types.Post `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// Signup creates an account and stores its session token.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (Session, error) {
	return c.login(ctx, "/auth/signup", req)
}

// Login stores the session token for username.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	return c.login(ctx, "/auth/login", map[string]string{"username": username, "password": password})
}

// LoginWithGoogle stores the session token for an external identity.
func (c *Client) LoginWithGoogle(ctx context.Context, req GoogleLogin) (Session, error) {
	return c.login(ctx, "/auth/google", req)
}

func (c *Client) login(ctx context.Context, path string, body any) (Session, error) {
	var session Session
	if err := c.do(ctx, call{method: http.MethodPost, path: path, body: body, out: &session}); err != nil {
		return Session{}, err
	}
	if err := c.tokens.SetToken(session.AccessToken); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (c *Client) Me(ctx context.Context) (types.UserProfile, error) {
	var profile types.UserProfile
	err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", out: &profile, auth: true})
	return profile, err
}

func (c *Client) UpdateProfile(ctx context.Context, patch types.ProfilePatch) (types.UserProfile, error) {
	var profile types.UserProfile
	err := c.do(ctx, call{method: http.MethodPatch, path: "/auth/me", body: patch, out: &profile, auth: true})
	return profile, err
}

// Feed lists all posts, most recent first. Zero page or limit uses the server default.
func (c *Client) Feed(ctx context.Context, page, limit int) (PostPage, error) {
	var out PostPage
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/posts", query: pageQuery(page, limit), out: &out})
	return out, err
}

func (c *Client) UserPosts(ctx context.Context, userID, page, limit int) (PostPage, error) {
	var out PostPage
	err := c.do(ctx, call{method: http.MethodGet, path: "/api/posts/user/" + strconv.Itoa(userID), query: pageQuery(page, limit), out: &out})
	return out, err
}

func (c *Client) Post(ctx context.Context, id int) (types.Post, error) {
	var post types.Post
	err := c.do(ctx, call{method: http.MethodGet, path: postPath(id), out: &post})
	return post, err
}

// RecordView increments the post's view counter and returns the new count.
func (c *Client) RecordView(ctx context.Context, id int) (int, error) {
	var out types.ViewCount
	err := c.do(ctx, call{method: http.MethodPost, path: postPath(id) + "/view", out: &out})
	return out.Views, err
}

// RecordDownload increments the post's download counter and returns the new count.
func (c *Client) RecordDownload(ctx context.Context, id int) (int, error) {
	var out types.DownloadCount
	err := c.do(ctx, call{method: http.MethodPost, path: postPath(id) + "/download", out: &out})
	return out.Downloads, err
}

func (c *Client) RequestUploadSlot(ctx context.Context, req types.UploadRequest) (types.UploadSlot, error) {
	var slot types.UploadSlot
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/posts/presigned-url", body: req, out: &slot, auth: true})
	return slot, err
}

func (c *Client) ConfirmUpload(ctx context.Context, draft types.PostDraft) (types.Post, error) {
	var post types.Post
	err := c.do(ctx, call{method: http.MethodPost, path: "/api/posts/confirm-upload", body: draft, out: &post, auth: true})
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, id int) error {
	return c.do(ctx, call{method: http.MethodDelete, path: postPath(id), auth: true})
}

// Health returns nil when the server reports its database reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/health"})
}

func postPath(id int) string {
	return "/api/posts/" + strconv.Itoa(id)
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}
