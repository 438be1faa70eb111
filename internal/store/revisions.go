package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sitecms/internal/content"
)

// DefaultRevisionLimit bounds ListRevisions when the caller passes no limit.
const DefaultRevisionLimit = 20

// Revision is an immutable snapshot of a content item's previous value.
type Revision struct {
	ID          string        `json:"id"`
	ContentID   string        `json:"content_id"`
	Seq         int64         `json:"seq"`
	Content     content.Value `json:"content"`
	ContentHash string        `json:"content_hash"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
}

const revisionColumns = `id, content_id, seq, content, content_hash, created_by, created_at`

// recordRevision snapshots prev inside tx. It must run before the UPDATE
// that replaces prev.Content, in the same transaction, so the snapshot is
// exactly the value this write overwrites.
func (s *Store) recordRevision(ctx context.Context, tx *sql.Tx, prev Item, actor string, now time.Time) (Revision, error) {
	const op = "record revision"

	data, err := content.Canonical(prev.Content)
	if err != nil {
		return Revision{}, fail(op, "could not encode previous content", err)
	}
	hash, err := content.Hash(prev.Content)
	if err != nil {
		return Revision{}, fail(op, "could not hash previous content", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM content_revisions WHERE content_id = ?
	`, prev.ID).Scan(&seq)
	if err != nil {
		return Revision{}, fail(op, "could not number revision", err)
	}

	rev := Revision{
		ID:          s.ids.Generate(),
		ContentID:   prev.ID,
		Seq:         seq,
		Content:     prev.Content,
		ContentHash: hash,
		CreatedBy:   actor,
		CreatedAt:   now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_revisions (`+revisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rev.ID, rev.ContentID, rev.Seq, string(data), rev.ContentHash, rev.CreatedBy, formatTime(now))
	if err != nil {
		return Revision{}, fail(op, "could not save revision", err)
	}
	return rev, nil
}

// ListRevisions returns revisions of a content item, newest first. A
// non-positive limit uses DefaultRevisionLimit.
func (s *Store) ListRevisions(ctx context.Context, contentID string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = DefaultRevisionLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revisionColumns+`
		FROM content_revisions
		WHERE content_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, contentID, limit)
	if err != nil {
		return nil, fail("list revisions", "could not load revisions", err)
	}
	defer rows.Close()

	revs := []Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fail("list revisions", "could not decode revision", err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list revisions", "could not load revisions", err)
	}
	return revs, nil
}

// GetRevision returns one revision by id.
func (s *Store) GetRevision(ctx context.Context, id string) (Revision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM content_revisions WHERE id = ?`, id)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, notFound("get revision", "revision "+id)
	}
	if err != nil {
		return Revision{}, fail("get revision", "could not load revision", err)
	}
	return rev, nil
}

func scanRevision(row scanner) (Revision, error) {
	var (
		rev     Revision
		data    string
		created string
	)
	if err := row.Scan(&rev.ID, &rev.ContentID, &rev.Seq, &data, &rev.ContentHash, &rev.CreatedBy, &created); err != nil {
		return Revision{}, err
	}
	v, err := content.ParseJSON([]byte(data))
	if err != nil {
		return Revision{}, fmt.Errorf("revision %s content: %w", rev.ID, err)
	}
	rev.Content = v
	if rev.CreatedAt, err = parseTime(created); err != nil {
		return Revision{}, err
	}
	return rev, nil
}
