package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gallery-app/apiserver/internal/services"
	"github.com/gallery-app/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const tokenTypeBearer = "bearer"

// AuthHandler provides signup, login and profile endpoints.
type AuthHandler struct {
	auth     *services.AuthService
	users    *services.UserService
	verifier services.IdentityVerifier
	logger   *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *services.AuthService, users *services.UserService, verifier services.IdentityVerifier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, verifier: verifier, logger: logger}
}

// AuthRouter registers auth routes on the given router. limit, when non-nil,
// guards the credential-accepting routes.
func AuthRouter(r chi.Router, handler *AuthHandler, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/signup", handler.Signup)
		r.Post("/login", handler.Login)
		r.Post("/google", handler.Google)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(handler.auth.Tokens()))
		r.Get("/me", handler.Me)
		r.Patch("/me", handler.UpdateMe)
	})
}

// RequireAuth enforces bearer-token authentication and injects the user id into context.
func RequireAuth(tokens *services.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := tokens.Validate(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "could not validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// Signup creates a new password account and returns a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		h.logFailure("signup failed", err)
		writeServiceError(w, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, newAuthResponse(result))
}

// Login verifies credentials and returns a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logFailure("login failed", err)
		writeServiceError(w, err, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

// Google logs in with an external identity assertion, creating the account on first use.
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req services.IdentityAssertion
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.verifier.Verify(r.Context(), req)
	if err != nil {
		h.logFailure("identity verification failed", err)
		writeServiceError(w, err, "failed to verify identity")
		return
	}

	result, err := h.auth.LoginWithIdentity(r.Context(), identity)
	if err != nil {
		h.logFailure("identity login failed", err)
		writeServiceError(w, err, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// UpdateMe applies a partial profile update to the current user.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var patch types.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logFailure("profile update failed", err, zap.Int("user_id", userID))
		writeServiceError(w, err, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *AuthHandler) logFailure(msg string, err error, fields ...zap.Field) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		h.logger.Info(msg, append(fields, zap.String("reason", svcErr.Message))...)
		return
	}
	h.logger.Error(msg, append(fields, zap.Error(err))...)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        types.UserProfile `json:"user"`
}

func newAuthResponse(result services.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken: result.Token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   result.ExpiresAt,
		User:        result.User.Profile(),
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
