package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"seclabel/core"
)

func TestUsers_CreateListDelete(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteUserStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := &core.User{Username: "alice", Description: "tier 1", Role: core.RoleAdmin}
	require.NoError(t, s.CreateUser(ctx, alice))
	assert.NotZero(t, alice.ID)

	bob := &core.User{Username: "bob"}
	require.NoError(t, s.CreateUser(ctx, bob))
	assert.Equal(t, core.RoleAnalyst, bob.Role)

	assert.ErrorIs(t, s.CreateUser(ctx, &core.User{Username: "alice"}), ErrUserExists)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "tier 1", users[0].Description)
	assert.False(t, users[0].CreatedAt.IsZero())

	require.NoError(t, s.DeleteUser(ctx, alice.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, alice.ID), ErrUserNotFound)

	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}
