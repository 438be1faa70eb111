package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoles(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.UserRole(ctx, "alice")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.SetUserRole(ctx, "alice", "editor", "root"))
	role, err := s.UserRole(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "editor", role)

	require.NoError(t, s.SetUserRole(ctx, "alice", "admin", "root"))
	role, err = s.UserRole(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	roles, err := s.ListUserRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "root", roles[0].GrantedBy)

	removed, err := s.RemoveUserRole(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestUserRoles_RejectsUnknownRole(t *testing.T) {
	s, _ := createTestStore(t)
	err := s.SetUserRole(context.Background(), "alice", "owner", "root")
	assert.Error(t, err)
}

func TestGrantAdminIfNone(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	granted, err := s.GrantAdminIfNone(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = s.GrantAdminIfNone(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, granted)

	_, err = s.UserRole(ctx, "bob")
	assert.True(t, IsNotFound(err))
}
