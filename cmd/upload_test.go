package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gallery-app/apiserver/client"
	"github.com/gallery-app/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGalleryStub(t *testing.T, slotStatus int) *httptest.Server {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("stub"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			_ = json.NewEncoder(w).Encode(client.Session{AccessToken: token, TokenType: "bearer"})
		case "/api/posts/presigned-url":
			w.WriteHeader(slotStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "slot unavailable"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func uploadPixel(t *testing.T, session *uploadSession) error {
	t.Helper()
	_, err := session.api.UploadImage(context.Background(),
		client.UploadFile{Filename: "a.png", ContentType: "image/png", Data: []byte("png")},
		types.PostDraft{Title: "a"},
	)
	require.Error(t, err)
	return session.wrap(err)
}

func TestUploadSessionLoginClearsExpiry(t *testing.T) {
	server := newGalleryStub(t, http.StatusBadGateway)
	session, err := newUploadSession(server.URL, client.WithTokenStore(client.NewMemoryTokenStore()))
	require.NoError(t, err)

	require.NoError(t, session.ensure(context.Background(), "alice", "secret123"))
	assert.False(t, session.expired)

	err = uploadPixel(t, session)
	assert.NotContains(t, err.Error(), "session expired")
	assert.Contains(t, err.Error(), "slot unavailable")
}

func TestUploadSessionReportsServerExpiry(t *testing.T) {
	server := newGalleryStub(t, http.StatusUnauthorized)
	session, err := newUploadSession(server.URL, client.WithTokenStore(client.NewMemoryTokenStore()))
	require.NoError(t, err)
	require.NoError(t, session.ensure(context.Background(), "alice", "secret123"))

	err = uploadPixel(t, session)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.Contains(t, err.Error(), "session expired")
}

func TestUploadSessionRequiresUsername(t *testing.T) {
	session, err := newUploadSession("http://localhost:1", client.WithTokenStore(client.NewMemoryTokenStore()))
	require.NoError(t, err)
	assert.Error(t, session.ensure(context.Background(), "", ""))
}
