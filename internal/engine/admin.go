package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

// GrantRole gives userID the role. Only admins may change roles.
func (e *Engine) GrantRole(ctx context.Context, id auth.Identity, userID string, role auth.Role) error {
	if err := authorize(auth.RequireAdmin, id); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return validationFailed("", "", []validate.Violation{{Path: "user_id", Message: "User ID is required"}})
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return validationFailed("", "", []validate.Violation{{Path: "role", Message: "Role must be one of: admin, editor"}})
	}
	if err := e.store.SetUserRole(ctx, userID, string(role), id.UserID); err != nil {
		return storeFailure("", "", err)
	}
	e.logger.Info("role granted", "user", userID, "role", role, "by", id.UserID)
	return nil
}

// RevokeRole removes every role of userID. Admins cannot revoke
// themselves, so a site always keeps at least the acting admin.
func (e *Engine) RevokeRole(ctx context.Context, id auth.Identity, userID string) (bool, error) {
	if err := authorize(auth.RequireAdmin, id); err != nil {
		return false, err
	}
	if userID == id.UserID {
		return false, invalidState("", "", "admins cannot revoke their own role")
	}
	removed, err := e.store.RemoveUserRole(ctx, userID)
	if err != nil {
		return false, storeFailure("", "", err)
	}
	e.logger.Info("role revoked", "user", userID, "by", id.UserID, "existed", removed)
	return removed, nil
}

// Roles lists every granted role.
func (e *Engine) Roles(ctx context.Context, id auth.Identity) ([]store.UserRole, error) {
	if err := authorize(auth.RequireAdmin, id); err != nil {
		return nil, err
	}
	roles, err := e.store.ListUserRoles(ctx)
	if err != nil {
		return nil, storeFailure("", "", err)
	}
	return roles, nil
}

// BootstrapAdmin makes userID the first admin. It does nothing once any
// admin exists and reports whether the grant happened. It needs no
// identity and is meant for server-side setup only.
func (e *Engine) BootstrapAdmin(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, validationFailed("", "", []validate.Violation{{Path: "user_id", Message: "User ID is required"}})
	}
	granted, err := e.store.GrantAdminIfNone(ctx, userID)
	if err != nil {
		return false, storeFailure("", "", err)
	}
	if granted {
		e.logger.Info("bootstrap admin granted", "user", userID)
	}
	return granted, nil
}

// SaveTheme creates or replaces a named palette. Every color must be a
// hex color.
func (e *Engine) SaveTheme(ctx context.Context, id auth.Identity, name string, colors map[string]string) (store.Theme, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return store.Theme{}, err
	}

	var vs []validate.Violation
	if strings.TrimSpace(name) == "" {
		vs = append(vs, validate.Violation{Path: "name", Message: "Theme name is required"})
	}
	keys := make([]string, 0, len(colors))
	for k := range colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !validate.Color(colors[k]) {
			vs = append(vs, validate.Violation{
				Path:    "colors." + k,
				Message: fmt.Sprintf("%s must be a hex color like #1f3a5f", k),
			})
		}
	}
	if len(vs) > 0 {
		return store.Theme{}, validationFailed("", "", vs)
	}

	th, err := e.store.SaveTheme(ctx, name, colors)
	if err != nil {
		return store.Theme{}, storeFailure("", "", err)
	}
	e.logger.Info("theme saved", "theme", name, "user", id.UserID)
	return th, nil
}

// ActivateTheme makes name the theme served to the public site.
func (e *Engine) ActivateTheme(ctx context.Context, id auth.Identity, name string) error {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return err
	}
	if err := e.store.ActivateTheme(ctx, name); err != nil {
		return storeFailure("", "", err)
	}
	e.logger.Info("theme activated", "theme", name, "user", id.UserID)
	return nil
}

// Themes lists stored themes.
func (e *Engine) Themes(ctx context.Context, id auth.Identity) ([]store.Theme, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return nil, err
	}
	themes, err := e.store.ListThemes(ctx)
	if err != nil {
		return nil, storeFailure("", "", err)
	}
	return themes, nil
}
