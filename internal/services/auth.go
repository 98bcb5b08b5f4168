package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gallery-app/apiserver/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameAttempts = 5

var usernameStrip = regexp.MustCompile(`[^a-z0-9_.-]+`)

// SignupInput holds the fields of a new password account.
type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Bio      string `json:"bio"`
	Password string `json:"password"`
}

// AuthResult is a freshly issued session.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      types.User
}

// AuthService issues sessions after password or external-identity verification.
type AuthService struct {
	users  UserRepository
	tokens *TokenIssuer
	logger *zap.Logger
}

func NewAuthService(users UserRepository, tokens *TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// Tokens exposes the issuer used to validate bearer tokens.
func (s *AuthService) Tokens() *TokenIssuer {
	return s.tokens
}

// Signup creates a password account and logs it in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return AuthResult{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return AuthResult{}, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if err := validateFullName(fullName); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		s.logger.Warn("signup rejected: username taken", zap.String("username", username))
		return AuthResult{}, newError(ErrConflict, "username already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.logger.Warn("signup rejected: email taken", zap.String("username", username))
		return AuthResult{}, newError(ErrConflict, "email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Bio:          strings.TrimSpace(in.Bio),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return AuthResult{}, newError(ErrConflict, "username or email already registered")
		}
		return AuthResult{}, err
	}

	s.logger.Info("user created", zap.Int("user_id", user.ID), zap.String("username", user.Username))
	return s.issue(user)
}

// Login verifies a username and password.
func (s *AuthService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return AuthResult{}, validationError("missing credentials")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("login failed: unknown username", zap.String("username", username))
			return AuthResult{}, newError(ErrInvalidCredentials, "incorrect username or password")
		}
		return AuthResult{}, err
	}

	if !user.HasPassword() {
		s.logger.Warn("login failed: account has no password", zap.Int("user_id", user.ID))
		return AuthResult{}, newError(ErrInvalidCredentials, "incorrect username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login failed: password mismatch", zap.Int("user_id", user.ID))
		return AuthResult{}, newError(ErrInvalidCredentials, "incorrect username or password")
	}

	s.logger.Info("login succeeded", zap.Int("user_id", user.ID))
	return s.issue(user)
}

// LoginWithIdentity logs in the account linked to identity, creating one on
// first use. An email already owned by an account that is not linked to this
// identity is rejected with ErrIdentityConflict rather than linked.
func (s *AuthService) LoginWithIdentity(ctx context.Context, identity Identity) (AuthResult, error) {
	if err := checkIdentity(identity); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByGoogleID(ctx, identity.ID)
	if err == nil {
		s.logger.Info("identity login succeeded", zap.Int("user_id", user.ID))
		return s.issue(user)
	}
	if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	if existing, err := s.users.GetByEmail(ctx, identity.Email); err == nil {
		s.logger.Warn("identity login rejected: email belongs to another account", zap.Int("user_id", existing.ID))
		return AuthResult{}, newError(ErrIdentityConflict, "an account with this email already exists; log in with its password")
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, err
	}

	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		user, err = s.users.Create(ctx, types.User{
			Username: usernameFromEmail(identity.Email, attempt),
			Email:    identity.Email,
			FullName: identity.Name,
			GoogleID: identity.ID,
		})
		if err == nil {
			s.logger.Info("user created from identity", zap.Int("user_id", user.ID), zap.String("username", user.Username))
			return s.issue(user)
		}
		if !errors.Is(err, ErrConflict) {
			return AuthResult{}, err
		}
	}
	return AuthResult{}, newError(ErrConflict, "could not allocate a username")
}

// Authenticate resolves a bearer token to the user id it was issued for.
func (s *AuthService) Authenticate(token string) (int, error) {
	return s.tokens.Validate(token)
}

func (s *AuthService) issue(user types.User) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// usernameFromEmail derives a handle from the local part of an email. Later
// attempts append a random suffix.
func usernameFromEmail(email string, attempt int) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	base := usernameStrip.ReplaceAllString(local, "")
	if len(base) > 40 {
		base = base[:40]
	}
	if len(base) < 3 {
		base = "user" + base
	}
	if attempt == 0 {
		return base
	}
	return base + "_" + uuid.NewString()[:6]
}
