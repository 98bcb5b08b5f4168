package services

import (
	"context"
	"testing"

	"github.com/gallery-app/apiserver/internal/services/servicestest"
	"github.com/gallery-app/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func ptr(s string) *string { return &s }

func TestUserService_UpdateProfile(t *testing.T) {
	users := servicestest.NewUsers()
	service := NewUserService(users, zap.NewNop())
	ctx := context.Background()

	alice, err := users.Create(ctx, types.User{Username: "alice", Email: "alice@example.com", GoogleID: "g-1"})
	require.NoError(t, err)
	_, err = users.Create(ctx, types.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	updated, err := service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{
		FullName: ptr(" Alice Liddell "),
		Bio:      ptr("down the hole"),
		Password: ptr("rabbit123"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", updated.FullName)
	assert.Equal(t, "down the hole", updated.Bio)
	assert.Equal(t, "alice", updated.Username)
	require.True(t, updated.HasPassword())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("rabbit123")))

	_, err = service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Username: ptr("bob")})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Email: ptr("BOB@example.com")})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Username: ptr("a")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{FullName: ptr(" ")})
	assert.ErrorIs(t, err, ErrValidation)

	same, err := service.UpdateProfile(ctx, alice.ID, types.ProfilePatch{Username: ptr("alice"), Email: ptr("Alice@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "Alice@example.com", same.Email)

	_, err = service.UpdateProfile(ctx, 999, types.ProfilePatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}
