package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Theme is a named palette. At most one theme is active.
type Theme struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Colors    map[string]string `json:"colors"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

const themeColumns = `id, name, colors, is_active, created_at, updated_at`

// SaveTheme creates the named theme or replaces its colors.
func (s *Store) SaveTheme(ctx context.Context, name string, colors map[string]string) (Theme, error) {
	const op = "save theme"
	if colors == nil {
		colors = map[string]string{}
	}
	data, err := json.Marshal(colors)
	if err != nil {
		return Theme{}, fail(op, "could not encode colors", err)
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO themes (id, name, colors, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(name) DO UPDATE SET colors = excluded.colors, updated_at = excluded.updated_at
	`, s.ids.Generate(), name, string(data), now, now)
	if err != nil {
		return Theme{}, fail(op, "could not save theme", err)
	}
	return s.GetTheme(ctx, name)
}

// GetTheme returns the theme with the given name.
func (s *Store) GetTheme(ctx context.Context, name string) (Theme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+themeColumns+` FROM themes WHERE name = ?`, name)
	th, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Theme{}, notFound("get theme", "theme "+name)
	}
	if err != nil {
		return Theme{}, fail("get theme", "could not load theme", err)
	}
	return th, nil
}

// ListThemes returns every theme ordered by name.
func (s *Store) ListThemes(ctx context.Context) ([]Theme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+themeColumns+` FROM themes ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fail("list themes", "could not load themes", err)
	}
	defer rows.Close()

	out := []Theme{}
	for rows.Next() {
		th, err := scanTheme(rows)
		if err != nil {
			return nil, fail("list themes", "could not decode theme", err)
		}
		out = append(out, th)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list themes", "could not load themes", err)
	}
	return out, nil
}

// ActiveTheme returns the active theme, or nil when none is active.
func (s *Store) ActiveTheme(ctx context.Context) (*Theme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+themeColumns+` FROM themes WHERE is_active = 1`)
	th, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("active theme", "could not load theme", err)
	}
	return &th, nil
}

// ActivateTheme makes name the only active theme.
func (s *Store) ActivateTheme(ctx context.Context, name string) error {
	const op = "activate theme"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(op, "could not start transaction", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	if _, err := tx.ExecContext(ctx, `UPDATE themes SET is_active = 0, updated_at = ? WHERE is_active = 1 AND name <> ?`, now, name); err != nil {
		return fail(op, "could not deactivate theme", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE themes SET is_active = 1, updated_at = ? WHERE name = ?`, now, name)
	if err != nil {
		return fail(op, "could not activate theme", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fail(op, "could not activate theme", err)
	} else if n == 0 {
		return notFound(op, "theme "+name)
	}

	if err := tx.Commit(); err != nil {
		return fail(op, "could not commit theme", err)
	}
	return nil
}

func scanTheme(row scanner) (Theme, error) {
	var (
		th               Theme
		colors           string
		active           int
		created, updated string
	)
	if err := row.Scan(&th.ID, &th.Name, &colors, &active, &created, &updated); err != nil {
		return Theme{}, err
	}
	if err := json.Unmarshal([]byte(colors), &th.Colors); err != nil {
		return Theme{}, fmt.Errorf("theme %s colors: %w", th.Name, err)
	}
	th.IsActive = active != 0
	var err error
	if th.CreatedAt, err = parseTime(created); err != nil {
		return Theme{}, err
	}
	if th.UpdatedAt, err = parseTime(updated); err != nil {
		return Theme{}, err
	}
	return th, nil
}
