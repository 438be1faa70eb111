package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UserRole is one row of user_roles.
type UserRole struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	GrantedBy string    `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRole returns the role held by userID, wrapping ErrNotFound when the
// user has none.
func (s *Store) UserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("user role", "role for user "+userID)
	}
	if err != nil {
		return "", fail("user role", "could not load role", err)
	}
	return role, nil
}

// SetUserRole grants role to userID, replacing any previous role.
func (s *Store) SetUserRole(ctx context.Context, userID, role, grantedBy string) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, granted_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			role = excluded.role, granted_by = excluded.granted_by, updated_at = excluded.updated_at
	`, userID, role, grantedBy, now, now)
	if err != nil {
		return fail("set user role", "could not save role", err)
	}
	return nil
}

// RemoveUserRole revokes every role of userID. Reports whether a role
// existed.
func (s *Store) RemoveUserRole(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID)
	if err != nil {
		return false, fail("remove user role", "could not remove role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail("remove user role", "could not remove role", err)
	}
	return n > 0, nil
}

// ListUserRoles returns every granted role ordered by user id.
func (s *Store) ListUserRoles(ctx context.Context) ([]UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, granted_by, created_at, updated_at
		FROM user_roles
		ORDER BY user_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fail("list user roles", "could not load roles", err)
	}
	defer rows.Close()

	out := []UserRole{}
	for rows.Next() {
		var (
			r                UserRole
			created, updated string
		)
		if err := rows.Scan(&r.UserID, &r.Role, &r.GrantedBy, &created, &updated); err != nil {
			return nil, fail("list user roles", "could not decode role", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, fail("list user roles", "could not decode role", err)
		}
		if r.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fail("list user roles", "could not decode role", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list user roles", "could not load roles", err)
	}
	return out, nil
}

// GrantAdminIfNone grants admin to userID only while no admin exists.
// Reports whether the grant happened.
func (s *Store) GrantAdminIfNone(ctx context.Context, userID string) (bool, error) {
	const op = "bootstrap admin"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fail(op, "could not start transaction", err)
	}
	defer tx.Rollback()

	var admins int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_roles WHERE role = 'admin'`).Scan(&admins); err != nil {
		return false, fail(op, "could not count admins", err)
	}
	if admins > 0 {
		return false, nil
	}

	now := formatTime(s.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, granted_by, created_at, updated_at)
		VALUES (?, 'admin', ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET role = 'admin', granted_by = excluded.granted_by, updated_at = excluded.updated_at
	`, userID, userID, now, now)
	if err != nil {
		return false, fail(op, "could not grant admin", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fail(op, "could not commit grant", err)
	}
	return true, nil
}
