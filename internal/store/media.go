package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Optimization states of a media row.
const (
	OptimizationPending   = "pending"
	OptimizationOptimized = "optimized"
	OptimizationSkipped   = "skipped"
	OptimizationFailed    = "failed"
)

// Media is uploaded file metadata. OptimizedURL and WebPURL are filled in
// later by the optimization back-fill and may be empty.
type Media struct {
	ID                 string    `json:"id"`
	Filename           string    `json:"filename"`
	StoragePath        string    `json:"storage_path"`
	OriginalURL        string    `json:"original_url"`
	OptimizedURL       string    `json:"optimized_url,omitempty"`
	WebPURL            string    `json:"webp_url,omitempty"`
	AltText            string    `json:"alt_text"`
	MimeType           string    `json:"mime_type"`
	SizeBytes          int64     `json:"size_bytes"`
	Width              int       `json:"width,omitempty"`
	Height             int       `json:"height,omitempty"`
	Folder             string    `json:"folder"`
	OptimizationStatus string    `json:"optimization_status"`
	OptimizationError  string    `json:"optimization_error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// BestURL prefers the WebP rendition, then the optimized one, then the
// original upload.
func (m Media) BestURL() string {
	switch {
	case m.WebPURL != "":
		return m.WebPURL
	case m.OptimizedURL != "":
		return m.OptimizedURL
	default:
		return m.OriginalURL
	}
}

const mediaColumns = `id, filename, storage_path, original_url, optimized_url, webp_url, alt_text,
	mime_type, size_bytes, width, height, folder, optimization_status, optimization_error, created_at`

// InsertMedia stores a new media row with status pending. ID and CreatedAt
// are assigned by the store.
func (s *Store) InsertMedia(ctx context.Context, m Media) (Media, error) {
	m.ID = s.ids.Generate()
	m.CreatedAt = s.now()
	m.OptimizationStatus = OptimizationPending
	m.OptimizedURL, m.WebPURL, m.OptimizationError = "", "", ""

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, m.ID, m.Filename, m.StoragePath, m.OriginalURL, m.AltText,
		m.MimeType, m.SizeBytes, nullInt(m.Width), nullInt(m.Height), m.Folder,
		m.OptimizationStatus, formatTime(m.CreatedAt))
	if err != nil {
		return Media{}, fail("insert media", "could not save media", err)
	}
	return m, nil
}

// GetMedia returns one media row.
func (s *Store) GetMedia(ctx context.Context, id string) (Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Media{}, notFound("get media", "media "+id)
	}
	if err != nil {
		return Media{}, fail("get media", "could not load media", err)
	}
	return m, nil
}

// ListMedia returns media newest first. An empty folder lists everything.
func (s *Store) ListMedia(ctx context.Context, folder string) ([]Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE ? = '' OR folder = ?
		ORDER BY created_at DESC, id DESC
	`, folder, folder)
	if err != nil {
		return nil, fail("list media", "could not load media", err)
	}
	defer rows.Close()

	out := []Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fail("list media", "could not decode media", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list media", "could not load media", err)
	}
	return out, nil
}

// ListPendingMedia returns media still waiting for optimization, oldest
// first.
func (s *Store) ListPendingMedia(ctx context.Context) ([]Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE optimization_status = ?
		ORDER BY created_at ASC, id ASC
	`, OptimizationPending)
	if err != nil {
		return nil, fail("list pending media", "could not load media", err)
	}
	defer rows.Close()

	out := []Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fail("list pending media", "could not decode media", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list pending media", "could not load media", err)
	}
	return out, nil
}

// MediaOptimization is the terminal outcome of an optimization job.
type MediaOptimization struct {
	Status       string
	OptimizedURL string
	WebPURL      string
	Error        string
}

// SetMediaOptimization records the outcome of the background optimizer.
func (s *Store) SetMediaOptimization(ctx context.Context, id string, o MediaOptimization) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE media
		SET optimization_status = ?, optimized_url = ?, webp_url = ?, optimization_error = ?
		WHERE id = ?
	`, o.Status, nullString(o.OptimizedURL), nullString(o.WebPURL), nullString(o.Error), id)
	if err != nil {
		return fail("set media optimization", "could not update media", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fail("set media optimization", "could not update media", err)
	} else if n == 0 {
		return notFound("set media optimization", "media "+id)
	}
	return nil
}

func scanMedia(row scanner) (Media, error) {
	var (
		m                       Media
		optimized, webp, errMsg sql.NullString
		width, height           sql.NullInt64
		created                 string
	)
	err := row.Scan(&m.ID, &m.Filename, &m.StoragePath, &m.OriginalURL, &optimized, &webp, &m.AltText,
		&m.MimeType, &m.SizeBytes, &width, &height, &m.Folder, &m.OptimizationStatus, &errMsg, &created)
	if err != nil {
		return Media{}, err
	}
	m.OptimizedURL = optimized.String
	m.WebPURL = webp.String
	m.OptimizationError = errMsg.String
	m.Width = int(width.Int64)
	m.Height = int(height.Int64)
	if m.CreatedAt, err = parseTime(created); err != nil {
		return Media{}, err
	}
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
