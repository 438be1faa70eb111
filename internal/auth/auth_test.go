package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/store"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name       string
		id         Identity
		editorOK   bool
		adminOK    bool
		wantAnonym bool
	}{
		{name: "anonymous", id: Identity{}, wantAnonym: true},
		{name: "no role", id: Identity{UserID: "u"}},
		{name: "editor", id: Identity{UserID: "u", Role: RoleEditor}, editorOK: true},
		{name: "admin", id: Identity{UserID: "u", Role: RoleAdmin}, editorOK: true, adminOK: true},
		{name: "role without user", id: Identity{Role: RoleAdmin}, wantAnonym: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireEditor(tt.id)
			assert.Equal(t, tt.editorOK, err == nil)
			if err != nil {
				var ae *Error
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, tt.wantAnonym, ae.Unauthenticated())
			}
			assert.Equal(t, tt.adminOK, RequireAdmin(tt.id) == nil)
		})
	}
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "authentication required", (&Error{Required: RoleEditor}).Error())
	assert.Equal(t, "user u is editor, requires admin", (&Error{UserID: "u", Required: RoleAdmin, Held: RoleEditor}).Error())
	assert.Equal(t, "user u has no editor access (requires editor)", (&Error{UserID: "u", Required: RoleEditor}).Error())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}

func TestResolver(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.SetUserRole(ctx, "alice", "editor", "root"))
	r := NewResolver(s)

	id, err := r.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "alice", Role: RoleEditor}, id)

	id, err = r.Resolve(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "mallory"}, id)
	assert.False(t, id.CanEdit())

	id, err = r.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id)
}
