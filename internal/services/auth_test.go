package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/gallery-app/apiserver/internal/services/servicestest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

func newTestAuth(t *testing.T) (*AuthService, *servicestest.Users) {
	t.Helper()
	tokens, err := NewTokenIssuer("test-secret", "HS256", time.Hour)
	require.NoError(t, err)
	users := servicestest.NewUsers()
	return NewAuthService(users, tokens, zap.NewNop()), users
}

func TestTokenIssuer_ExpiresAfterTTL(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := issued
	tokens, err := NewTokenIssuer("secret", "", 30*time.Minute)
	require.NoError(t, err)
	tokens.WithClock(func() time.Time { return clock })

	token, expiresAt, err := tokens.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(30*time.Minute), expiresAt)

	clock = issued.Add(30*time.Minute - time.Second)
	id, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	clock = issued.Add(30*time.Minute + time.Second)
	_, err = tokens.Validate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenIssuer_SubSecondIssueLastsFullTTL(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 700_000_000, time.UTC)
	clock := issued
	tokens, err := NewTokenIssuer("secret", "HS256", 30*time.Minute)
	require.NoError(t, err)
	tokens.WithClock(func() time.Time { return clock })

	token, expiresAt, err := tokens.Issue(7)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 34, 6, 0, time.UTC), expiresAt)

	clock = issued.Add(30*time.Minute - 100*time.Millisecond)
	_, err = tokens.Validate(token)
	require.NoError(t, err)

	clock = expiresAt
	_, err = tokens.Validate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	tokens, err := NewTokenIssuer("secret", "HS256", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenIssuer("other-secret", "HS256", time.Hour)
	require.NoError(t, err)

	token, _, err := other.Issue(1)
	require.NoError(t, err)
	_, err = tokens.Validate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = tokens.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: strconv.Itoa(1)}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Validate(noExpiry)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	_, err := NewTokenIssuer("", "HS256", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenIssuer("secret", "RS256", time.Hour)
	assert.Error(t, err)

	tokens, err := NewTokenIssuer("secret", "hs512", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTokenTTL, tokens.TTL())
}

func TestAuthService_SignupThenLogin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	signed, err := auth.Signup(ctx, SignupInput{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice A",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", signed.User.Username)
	assert.NotEmpty(t, signed.Token)
	assert.NotEqual(t, "secret123", signed.User.PasswordHash)

	logged, err := auth.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, logged.User.ID)

	id, err := auth.Authenticate(logged.Token)
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, id)
}

func TestAuthService_SignupConflicts(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Signup(ctx, SignupInput{Username: "alice", Email: "alice@example.com", FullName: "Test User", Password: "secret123"})
	require.NoError(t, err)

	_, err = auth.Signup(ctx, SignupInput{Username: "alice", Email: "other@example.com", FullName: "Test User", Password: "secret123"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "username already registered")

	_, err = auth.Signup(ctx, SignupInput{Username: "bob", Email: "ALICE@example.com", FullName: "Test User", Password: "secret123"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "email already registered")
}

func TestAuthService_SignupValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	cases := map[string]SignupInput{
		"short username": {Username: "al", Email: "al@example.com", Password: "secret123"},
		"bad email":      {Username: "alice", Email: "not-an-email", Password: "secret123"},
		"short password": {Username: "alice", Email: "alice@example.com", FullName: "Alice", Password: "123"},
		"missing name":   {Username: "alice", Email: "alice@example.com", FullName: "  ", Password: "secret123"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Signup(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	auth, users := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Signup(ctx, SignupInput{Username: "alice", Email: "alice@example.com", FullName: "Test User", Password: "secret123"})
	require.NoError(t, err)
	_, err = auth.LoginWithIdentity(ctx, Identity{ID: "g-1", Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)
	bob, err := users.GetByGoogleID(ctx, "g-1")
	require.NoError(t, err)

	_, err = auth.Login(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, bob.Username, "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthService_IdentityCreatesPasswordlessAccount(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	first, err := auth.LoginWithIdentity(ctx, Identity{ID: "g-123", Email: "carol.smith@example.com", Name: "Carol"})
	require.NoError(t, err)
	assert.Equal(t, "carol.smith", first.User.Username)
	assert.Equal(t, "Carol", first.User.FullName)
	assert.False(t, first.User.HasPassword())
	assert.True(t, first.User.HasExternalIdentity())

	again, err := auth.LoginWithIdentity(ctx, Identity{ID: "g-123", Email: "carol.smith@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
}

func TestAuthService_IdentityUsernameCollision(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Signup(ctx, SignupInput{Username: "dave", Email: "dave@other.com", FullName: "Test User", Password: "secret123"})
	require.NoError(t, err)

	res, err := auth.LoginWithIdentity(ctx, Identity{ID: "g-9", Email: "dave@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, "dave", res.User.Username)
	assert.Contains(t, res.User.Username, "dave_")
}

func TestAuthService_IdentityEmailConflict(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Signup(ctx, SignupInput{Username: "erin", Email: "erin@example.com", FullName: "Test User", Password: "secret123"})
	require.NoError(t, err)

	_, err = auth.LoginWithIdentity(ctx, Identity{ID: "g-5", Email: "erin@example.com"})
	assert.ErrorIs(t, err, ErrIdentityConflict)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "frank", usernameFromEmail("Frank@example.com", 0))
	assert.Equal(t, "userab", usernameFromEmail("a+b@example.com", 0))
	assert.Regexp(t, `^frank_[0-9a-f]{6}$`, usernameFromEmail("frank@example.com", 1))
}

func TestTrustedVerifier(t *testing.T) {
	identity, err := TrustedVerifier{}.Verify(context.Background(), IdentityAssertion{GoogleID: " g-1 ", Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "g-1", Email: "a@example.com", Name: "A"}, identity)

	_, err = TrustedVerifier{}.Verify(context.Background(), IdentityAssertion{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGoogleVerifier(t *testing.T) {
	verifier := NewGoogleVerifier("client-id")
	verifier.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		assert.Equal(t, "client-id", audience)
		if token != "good" {
			return nil, errBoom
		}
		return &idtoken.Payload{
			Subject: "g-77",
			Claims:  map[string]any{"email": "g@example.com", "name": "Gina", "email_verified": true},
		}, nil
	}

	identity, err := verifier.Verify(context.Background(), IdentityAssertion{Credential: "good"})
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "g-77", Email: "g@example.com", Name: "Gina"}, identity)

	_, err = verifier.Verify(context.Background(), IdentityAssertion{Credential: "bad"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = verifier.Verify(context.Background(), IdentityAssertion{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewIdentityVerifier(t *testing.T) {
	assert.IsType(t, TrustedVerifier{}, NewIdentityVerifier(""))
	assert.IsType(t, &GoogleVerifier{}, NewIdentityVerifier("client"))
}
