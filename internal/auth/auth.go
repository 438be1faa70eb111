// Package auth resolves editor identities and checks roles before any
// write reaches the store.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sitecms/internal/store"
)

// Role is an editor permission level.
type Role string

const (
	RoleNone   Role = ""
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ParseRole accepts "admin" or "editor".
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleEditor:
		return Role(s), nil
	}
	return RoleNone, fmt.Errorf("unknown role %q (want admin or editor)", s)
}

// Identity is the acting user of an operation. The zero value is an
// anonymous visitor.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// System is the identity used by maintenance commands run on the server.
func System() Identity {
	return Identity{UserID: "system", Role: RoleAdmin}
}

// CanEdit reports whether the identity may change content.
func (id Identity) CanEdit() bool {
	return id.UserID != "" && (id.Role == RoleEditor || id.Role == RoleAdmin)
}

// IsAdmin reports whether the identity may manage users.
func (id Identity) IsAdmin() bool {
	return id.UserID != "" && id.Role == RoleAdmin
}

// Error is a missing or insufficient role.
type Error struct {
	UserID   string
	Required Role
	Held     Role
}

func (e *Error) Error() string {
	if e.UserID == "" {
		return "authentication required"
	}
	if e.Held == RoleNone {
		return fmt.Sprintf("user %s has no editor access (requires %s)", e.UserID, e.Required)
	}
	return fmt.Sprintf("user %s is %s, requires %s", e.UserID, e.Held, e.Required)
}

// Unauthenticated reports whether no identity was supplied at all.
func (e *Error) Unauthenticated() bool {
	return e.UserID == ""
}

// IsError reports whether err is an authorization failure.
func IsError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// RequireEditor fails unless id is an editor or admin.
func RequireEditor(id Identity) error {
	if id.CanEdit() {
		return nil
	}
	return &Error{UserID: id.UserID, Required: RoleEditor, Held: id.Role}
}

// RequireAdmin fails unless id is an admin.
func RequireAdmin(id Identity) error {
	if id.IsAdmin() {
		return nil
	}
	return &Error{UserID: id.UserID, Required: RoleAdmin, Held: id.Role}
}

// RoleStore looks up stored roles.
type RoleStore interface {
	UserRole(ctx context.Context, userID string) (string, error)
}

// Resolver turns a user id from the identity provider into an Identity.
type Resolver struct {
	roles RoleStore
}

// NewResolver creates a Resolver backed by roles.
func NewResolver(roles RoleStore) *Resolver {
	return &Resolver{roles: roles}
}

// Resolve returns the identity of userID. An empty id is anonymous and a
// user without a stored role gets RoleNone; neither is an error.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Identity, error) {
	if userID == "" {
		return Identity{}, nil
	}
	role, err := r.roles.UserRole(ctx, userID)
	if store.IsNotFound(err) {
		return Identity{UserID: userID}, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity %s: %w", userID, err)
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity %s: %w", userID, err)
	}
	return Identity{UserID: userID, Role: parsed}, nil
}
