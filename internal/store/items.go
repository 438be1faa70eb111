package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sitecms/internal/content"
)

// Item is one persisted (section, key) content unit.
type Item struct {
	ID           string        `json:"id"`
	Section      string        `json:"section"`
	Key          string        `json:"key"`
	Content      content.Value `json:"content"`
	IsDraft      bool          `json:"is_draft"`
	PublishedAt  *time.Time    `json:"published_at,omitempty"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
	CreatedBy    string        `json:"created_by"`
	UpdatedBy    string        `json:"updated_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// VisibleAt reports whether the public site may show the item at now.
func (it Item) VisibleAt(now time.Time) bool {
	if it.IsDraft {
		return false
	}
	return it.ScheduledFor == nil || !it.ScheduledFor.After(now)
}

// UpsertResult describes a completed UpsertField.
type UpsertResult struct {
	Item Item `json:"item"`

	// Revision is the snapshot of the replaced value; nil on insert.
	Revision *Revision `json:"revision,omitempty"`
}

const itemColumns = `id, section_key, content_key, content, is_draft, published_at, scheduled_for,
	created_by, updated_by, created_at, updated_at`

// ReadSection returns the items of a section ordered by key. An empty key
// returns every key. No match is an empty slice, not an error.
func (s *Store) ReadSection(ctx context.Context, section, key string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM content
		WHERE section_key = ? AND (? = '' OR content_key = ?)
		ORDER BY content_key COLLATE BINARY ASC
	`, section, key, key)
	if err != nil {
		return nil, fail("read section", "could not load content", err)
	}
	return collectItems("read section", rows)
}

// ReadPublished returns every item visible to the public at now: not a
// draft and not scheduled after now.
func (s *Store) ReadPublished(ctx context.Context, now time.Time) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM content
		WHERE is_draft = 0 AND (scheduled_for IS NULL OR scheduled_for <= ?)
		ORDER BY section_key COLLATE BINARY ASC, content_key COLLATE BINARY ASC
	`, formatTime(now))
	if err != nil {
		return nil, fail("read published", "could not load published content", err)
	}
	return collectItems("read published", rows)
}

// ReadAll returns every item regardless of state, for the editor view.
func (s *Store) ReadAll(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM content
		ORDER BY section_key COLLATE BINARY ASC, content_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fail("read all", "could not load content", err)
	}
	return collectItems("read all", rows)
}

// GetItem returns the item with the given id.
func (s *Store) GetItem(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, notFound("get item", "content item "+id)
	}
	if err != nil {
		return Item{}, fail("get item", "could not load content item", err)
	}
	return it, nil
}

// FindItem returns the item stored under (section, key).
func (s *Store) FindItem(ctx context.Context, section, key string) (Item, error) {
	it, err := findItem(ctx, s.db, section, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, notFound("find item", fmt.Sprintf("content %s/%s", section, key))
	}
	if err != nil {
		return Item{}, fail("find item", "could not load content item", err)
	}
	return it, nil
}

// UpsertField writes value under (section, key).
//
// When a row exists its current content is snapshotted as a revision and
// then overwritten, all in one transaction, so the revision always holds
// the value live immediately before this write. A new row records no
// revision.
//
// Any write clears scheduled_for. asDraft=false also stamps published_at;
// a draft write keeps the previous published_at for reference.
func (s *Store) UpsertField(ctx context.Context, section, key string, value content.Value, asDraft bool, actor string) (UpsertResult, error) {
	const op = "upsert"

	data, err := content.Canonical(value)
	if err != nil {
		return UpsertResult{}, fail(op, "content is not valid JSON", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fail(op, "could not start transaction", err)
	}
	defer tx.Rollback()

	now := s.now()
	var published any
	if !asDraft {
		published = formatTime(now)
	}

	var result UpsertResult
	existing, err := findItem(ctx, tx, section, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := s.ids.Generate()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO content
			(id, section_key, content_key, content, is_draft, published_at, scheduled_for,
			 created_by, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?)
		`, id, section, key, string(data), boolToInt(asDraft), published,
			actor, actor, formatTime(now), formatTime(now))
		if err != nil {
			return UpsertResult{}, fail(op, "could not save content", err)
		}
		result.Item.ID = id

	case err != nil:
		return UpsertResult{}, fail(op, "could not load existing content", err)

	default:
		rev, err := s.recordRevision(ctx, tx, existing, actor, now)
		if err != nil {
			return UpsertResult{}, err
		}
		result.Revision = &rev

		_, err = tx.ExecContext(ctx, `
			UPDATE content
			SET content = ?, is_draft = ?, published_at = COALESCE(?, published_at),
			    scheduled_for = NULL, updated_by = ?, updated_at = ?
			WHERE id = ?
		`, string(data), boolToInt(asDraft), published, actor, formatTime(now), existing.ID)
		if err != nil {
			return UpsertResult{}, fail(op, "could not save content", err)
		}
		result.Item.ID = existing.ID
	}

	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content WHERE id = ?`, result.Item.ID)
	if result.Item, err = scanItem(row); err != nil {
		return UpsertResult{}, fail(op, "could not reload content", err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fail(op, "could not commit content", err)
	}
	return result, nil
}

// MarkPublished makes stored content public without touching it: is_draft
// is cleared, published_at stamped and any pending schedule dropped. An
// empty key publishes every unit of the section.
//
// Rows that are already public are left untouched, so repeating the call
// changes nothing. Returns the number of rows that changed state.
func (s *Store) MarkPublished(ctx context.Context, section, key, actor string) (int64, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE content
		SET is_draft = 0, published_at = ?, scheduled_for = NULL, updated_by = ?, updated_at = ?
		WHERE section_key = ? AND (? = '' OR content_key = ?)
		  AND (is_draft = 1 OR (scheduled_for IS NOT NULL AND scheduled_for > ?))
	`, now, actor, now, section, key, key, now)
	if err != nil {
		return 0, fail("publish", "could not publish content", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail("publish", "could not publish content", err)
	}
	return n, nil
}

// Schedule stores the unit as published but hidden until at. published_at
// is set to the moment it becomes visible.
func (s *Store) Schedule(ctx context.Context, section, key string, at time.Time, actor string) (Item, error) {
	const op = "schedule"
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE content
		SET is_draft = 0, scheduled_for = ?, published_at = ?, updated_by = ?, updated_at = ?
		WHERE section_key = ? AND content_key = ?
	`, formatTime(at), formatTime(at), actor, now, section, key)
	if err != nil {
		return Item{}, fail(op, "could not schedule content", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Item{}, fail(op, "could not schedule content", err)
	} else if n == 0 {
		return Item{}, notFound(op, fmt.Sprintf("content %s/%s", section, key))
	}
	return s.FindItem(ctx, section, key)
}

// DeleteItem removes the unit and, by cascade, its revisions. Reports
// whether a row existed.
func (s *Store) DeleteItem(ctx context.Context, section, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM content WHERE section_key = ? AND content_key = ?
	`, section, key)
	if err != nil {
		return false, fail("delete item", "could not delete content", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail("delete item", "could not delete content", err)
	}
	return n > 0, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findItem(ctx context.Context, q queryer, section, key string) (Item, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM content
		WHERE section_key = ? AND content_key = ?
	`, section, key)
	return scanItem(row)
}

func collectItems(op string, rows *sql.Rows) ([]Item, error) {
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fail(op, "could not decode content", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(op, "could not load content", err)
	}
	return items, nil
}

func scanItem(row scanner) (Item, error) {
	var (
		it                   Item
		data                 string
		isDraft              int
		published, scheduled sql.NullString
		created, updated     string
	)
	err := row.Scan(&it.ID, &it.Section, &it.Key, &data, &isDraft, &published, &scheduled,
		&it.CreatedBy, &it.UpdatedBy, &created, &updated)
	if err != nil {
		return Item{}, err
	}

	if it.Content, err = content.ParseJSON([]byte(data)); err != nil {
		return Item{}, fmt.Errorf("item %s content: %w", it.ID, err)
	}
	it.IsDraft = isDraft != 0
	if it.PublishedAt, err = parseNullTime(published); err != nil {
		return Item{}, err
	}
	if it.ScheduledFor, err = parseNullTime(scheduled); err != nil {
		return Item{}, err
	}
	if it.CreatedAt, err = parseTime(created); err != nil {
		return Item{}, err
	}
	if it.UpdatedAt, err = parseTime(updated); err != nil {
		return Item{}, err
	}
	return it, nil
}
