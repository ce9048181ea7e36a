package services

import (
	"context"
	"testing"

	"github.com/schoolhub/social-api/internal/apperrors"
	"github.com/schoolhub/social-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the account with a hashed password", func(t *testing.T) {
		store := newMemStore()
		svc := NewUserService(store)

		user, err := svc.RegisterUser(ctx, &models.User{
			Username: "alice",
			Email:    "alice@school.test",
			Role:     models.RoleStudent,
		}, "s3cret")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret", user.HashedPassword)
		assert.NotEmpty(t, user.ExternalID)

		authed, err := svc.AuthenticateUser(ctx, "alice", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, user.ID, authed.ID)

		_, err = svc.AuthenticateUser(ctx, "alice", "wrong")
		assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("validates input", func(t *testing.T) {
		svc := NewUserService(newMemStore())

		_, err := svc.RegisterUser(ctx, &models.User{Username: "x", Email: "not-an-email", Role: models.RoleStudent}, "pw")
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))

		_, err = svc.RegisterUser(ctx, &models.User{Username: "x", Email: "x@school.test", Role: "janitor"}, "pw")
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))

		_, err = svc.RegisterUser(ctx, &models.User{Email: "x@school.test", Role: models.RoleStudent}, "pw")
		assert.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err))
	})

	t.Run("rejects a duplicate username within the same role", func(t *testing.T) {
		store := newMemStore()
		svc := NewUserService(store)
		store.addUser("alice", models.RoleStudent)

		_, err := svc.RegisterUser(ctx, &models.User{
			Username: "alice",
			Email:    "other@school.test",
			Role:     models.RoleStudent,
		}, "pw")
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	})

	t.Run("same-role duplicate is caught behind a cross-role collision", func(t *testing.T) {
		store := newMemStore()
		svc := NewUserService(store)
		store.addUser("alice", models.RoleAdmin)
		store.addUser("alice", models.RoleStudent)

		// The student duplicate must conflict even though the admin
		// collection is scanned first for cross-role lookups.
		_, err := svc.RegisterUser(ctx, &models.User{
			Username: "alice",
			Email:    "dup@school.test",
			Role:     models.RoleStudent,
		}, "pw")
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

		// A third role is still free to use the name.
		_, err = svc.RegisterUser(ctx, &models.User{
			Username: "alice",
			Email:    "teacher@school.test",
			Role:     models.RoleTeacher,
		}, "pw")
		assert.NoError(t, err)
	})
}

func TestResolveCaller(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewUserService(store)
	alice := store.addUser("alice", models.RoleParent)

	user, err := svc.ResolveCaller(ctx, alice.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, models.RoleParent, user.Role)

	_, err = svc.ResolveCaller(ctx, "ext-ghost")
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
}
