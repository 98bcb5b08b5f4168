package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gallery-app/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	// bcrypt rejects passwords longer than 72 bytes.
	maxPasswordBytes  = 72
	maxFullNameLength = 255
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates profile use-cases.
type UserService struct {
	repo   UserRepository
	logger *zap.Logger
}

func NewUserService(repo UserRepository, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies the non-nil fields of patch to the user's account.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, patch types.ProfilePatch) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if err := validateFullName(name); err != nil {
			return types.User{}, err
		}
		user.FullName = name
	}
	if patch.Bio != nil {
		user.Bio = strings.TrimSpace(*patch.Bio)
	}

	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if err := validateUsername(username); err != nil {
			return types.User{}, err
		}
		if username != user.Username {
			if err := s.ensureUnclaimed(ctx, userID, s.repo.GetByUsername, username, "username already taken"); err != nil {
				return types.User{}, err
			}
			user.Username = username
		}
	}

	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return types.User{}, err
		}
		if !strings.EqualFold(email, user.Email) {
			if err := s.ensureUnclaimed(ctx, userID, s.repo.GetByEmail, email, "email already taken"); err != nil {
				return types.User{}, err
			}
		}
		user.Email = email
	}

	if patch.Password != nil {
		hash, err := hashPassword(*patch.Password)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = hash
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return types.User{}, newError(ErrConflict, "username or email already taken")
		}
		return types.User{}, err
	}

	s.logger.Info("profile updated", zap.Int("user_id", userID))
	return updated, nil
}

func (s *UserService) ensureUnclaimed(
	ctx context.Context,
	userID int,
	lookup func(context.Context, string) (types.User, error),
	value, message string,
) error {
	existing, err := lookup(ctx, value)
	if err == nil && existing.ID != userID {
		return newError(ErrConflict, message)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return validationError("username is required")
	}
	if !usernamePattern.MatchString(username) {
		return validationError("username must be 3-50 letters, digits, '.', '-' or '_'")
	}
	return nil
}

func validateFullName(name string) error {
	if name == "" {
		return validationError("full_name is required")
	}
	if len(name) > maxFullNameLength {
		return validationError(fmt.Sprintf("full_name must be at most %d characters", maxFullNameLength))
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationError("invalid email")
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", validationError("password must be at least 6 characters")
	}
	if len(password) > maxPasswordBytes {
		return "", validationError("password must be at most 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
