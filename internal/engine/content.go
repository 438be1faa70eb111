package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/resolve"
	"github.com/roach88/sitecms/internal/schema"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

// Save validates value and stores it as a draft of (section, key). Any
// state becomes Draft; a scheduled publish is cancelled. The replaced
// value is kept as a revision.
func (e *Engine) Save(ctx context.Context, id auth.Identity, section, key string, value content.Value) (store.UpsertResult, error) {
	return e.save(ctx, id, section, key, value, true)
}

// SaveDraft stores value as a draft without validation, so incomplete
// work in progress can be kept. Used by autosave.
func (e *Engine) SaveDraft(ctx context.Context, id auth.Identity, section, key string, value content.Value) (store.UpsertResult, error) {
	return e.save(ctx, id, section, key, value, false)
}

func (e *Engine) save(ctx context.Context, id auth.Identity, section, key string, value content.Value, validated bool) (store.UpsertResult, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return store.UpsertResult{}, err
	}
	u, err := e.unitFor(section, key)
	if err != nil {
		return store.UpsertResult{}, err
	}
	if value == nil {
		value = content.Null{}
	}

	clean := u.sanitize(value)
	if validated {
		if vs := u.validate(clean); len(vs) > 0 {
			return store.UpsertResult{}, validationFailed(section, key, vs)
		}
	}

	res, err := e.store.UpsertField(ctx, section, key, clean, true, id.UserID)
	if err != nil {
		e.logger.Error("save failed", "section", section, "key", key, "user", id.UserID, "error", err)
		return store.UpsertResult{}, storeFailure(section, key, err)
	}

	attrs := []any{"section", section, "key", key, "user", id.UserID, "validated", validated}
	if res.Revision != nil {
		attrs = append(attrs, "revision", res.Revision.ID)
	}
	e.logger.Info("content saved", attrs...)
	return res, nil
}

// Validate checks value for (section, key) without storing anything.
func (e *Engine) Validate(section, key string, value content.Value) ([]validate.Violation, error) {
	u, err := e.unitFor(section, key)
	if err != nil {
		return nil, err
	}
	return u.validate(u.sanitize(value)), nil
}

// PublishResult reports what Publish changed.
type PublishResult struct {
	Section   string `json:"section"`
	Key       string `json:"key,omitempty"`
	Published int64  `json:"published"`
}

// Publish makes stored drafts of a section public. An empty key publishes
// every unit of the section; otherwise only (section, key). Content is not
// changed. Every unit that would change state is validated first and all
// violations are reported together; nothing is published if any fail.
// Publishing already public content is a no-op.
func (e *Engine) Publish(ctx context.Context, id auth.Identity, section, key string) (PublishResult, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return PublishResult{}, err
	}
	if _, ok := e.registry.Lookup(section); !ok {
		return PublishResult{}, notFound(section, key, fmt.Sprintf("unknown section %q", section))
	}
	if key != "" {
		if _, err := e.unitFor(section, key); err != nil {
			return PublishResult{}, err
		}
	}

	items, err := e.store.ReadSection(ctx, section, key)
	if err != nil {
		return PublishResult{}, storeFailure(section, key, err)
	}
	if key != "" && len(items) == 0 {
		return PublishResult{}, notFound(section, key, "nothing saved to publish")
	}

	now := e.clock.Now()
	var violations []validate.Violation
	for _, it := range items {
		if !needsPublish(StateOf(it, now)) {
			continue
		}
		u, err := e.unitFor(it.Section, it.Key)
		if err != nil {
			violations = append(violations, validate.Violation{
				Path:    it.Key,
				Message: fmt.Sprintf("%s is no longer part of section %s; reset it before publishing", it.Key, section),
			})
			continue
		}
		violations = append(violations, u.validate(it.Content)...)
	}
	if len(violations) > 0 {
		return PublishResult{}, validationFailed(section, key, violations)
	}

	n, err := e.store.MarkPublished(ctx, section, key, id.UserID)
	if err != nil {
		e.logger.Error("publish failed", "section", section, "key", key, "error", err)
		return PublishResult{}, storeFailure(section, key, err)
	}
	e.logger.Info("content published", "section", section, "key", key, "user", id.UserID, "units", n)
	return PublishResult{Section: section, Key: key, Published: n}, nil
}

// Schedule publishes (section, key) at a future instant. The unit must be
// Draft or Scheduled and its content must validate. Until at passes the
// public resolver keeps showing the previous value; afterwards it shows
// the scheduled content with no further write.
func (e *Engine) Schedule(ctx context.Context, id auth.Identity, section, key string, at time.Time) (ItemState, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return ItemState{}, err
	}
	u, err := e.unitFor(section, key)
	if err != nil {
		return ItemState{}, err
	}

	it, err := e.store.FindItem(ctx, section, key)
	if err != nil {
		return ItemState{}, storeFailure(section, key, err)
	}

	now := e.clock.Now()
	if !at.After(now) {
		return ItemState{}, invalidState(section, key, "scheduled time must be in the future")
	}
	if st := StateOf(it, now); !canSchedule(st) {
		return ItemState{}, invalidState(section, key, fmt.Sprintf("cannot schedule %s content; save a draft first", st))
	}
	if vs := u.validate(it.Content); len(vs) > 0 {
		return ItemState{}, validationFailed(section, key, vs)
	}

	item, err := e.store.Schedule(ctx, section, key, at, id.UserID)
	if err != nil {
		return ItemState{}, storeFailure(section, key, err)
	}
	e.logger.Info("content scheduled", "section", section, "key", key, "user", id.UserID, "at", at.UTC())
	return ItemState{Item: item, State: StateOf(item, now)}, nil
}

// RollbackResult reports a rollback. When the revision does not exist
// Applied is false and Warning explains why; that is not an error.
type RollbackResult struct {
	Applied bool       `json:"applied"`
	Warning string     `json:"warning,omitempty"`
	Item    *ItemState `json:"item,omitempty"`

	// Restored is the revision whose content is now the draft.
	Restored *store.Revision `json:"restored,omitempty"`

	// Replaced is the snapshot of the value the rollback overwrote.
	Replaced *store.Revision `json:"replaced,omitempty"`
}

// Rollback writes the content of a revision back as a draft through the
// normal save path, so the replaced value gets a revision of its own. The
// published copy is untouched until the editor publishes again.
func (e *Engine) Rollback(ctx context.Context, id auth.Identity, revisionID string) (RollbackResult, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return RollbackResult{}, err
	}

	rev, err := e.store.GetRevision(ctx, revisionID)
	if store.IsNotFound(err) {
		warning := fmt.Sprintf("revision %s not found; nothing rolled back", revisionID)
		e.logger.Warn("rollback skipped", "revision", revisionID, "user", id.UserID)
		return RollbackResult{Warning: warning}, nil
	}
	if err != nil {
		return RollbackResult{}, storeFailure("", "", err)
	}

	it, err := e.store.GetItem(ctx, rev.ContentID)
	if err != nil {
		return RollbackResult{}, storeFailure("", "", err)
	}

	res, err := e.store.UpsertField(ctx, it.Section, it.Key, rev.Content, true, id.UserID)
	if err != nil {
		return RollbackResult{}, storeFailure(it.Section, it.Key, err)
	}
	e.logger.Info("content rolled back",
		"section", it.Section, "key", it.Key, "revision", rev.ID, "user", id.UserID)

	return RollbackResult{
		Applied:  true,
		Item:     &ItemState{Item: res.Item, State: StateDraft},
		Restored: &rev,
		Replaced: res.Revision,
	}, nil
}

// Revisions lists revisions of a content item, newest first. A
// non-positive limit uses the configured default. An unknown item has no
// revisions.
func (e *Engine) Revisions(ctx context.Context, id auth.Identity, contentID string, limit int) ([]store.Revision, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.revisionLimit
	}
	revs, err := e.store.ListRevisions(ctx, contentID, limit)
	if err != nil {
		return nil, storeFailure("", "", err)
	}
	return revs, nil
}

// Reset deletes the stored unit so the section falls back to its
// defaults. Its revisions are deleted with it. Reports whether anything
// was stored.
func (e *Engine) Reset(ctx context.Context, id auth.Identity, section, key string) (bool, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return false, err
	}
	if _, ok := e.registry.Lookup(section); !ok {
		return false, notFound(section, key, fmt.Sprintf("unknown section %q", section))
	}
	existed, err := e.store.DeleteItem(ctx, section, key)
	if err != nil {
		return false, storeFailure(section, key, err)
	}
	e.logger.Info("content reset", "section", section, "key", key, "user", id.UserID, "existed", existed)
	return existed, nil
}

// SectionView is the editor's view of one section.
type SectionView struct {
	Key   string      `json:"key"`
	Label string      `json:"label"`
	Keyed bool        `json:"keyed"`
	Items []ItemState `json:"items"`

	// Preview overlays every stored unit, drafts included.
	Preview content.Value `json:"preview"`

	// Live is what the public site shows right now.
	Live content.Value `json:"live"`
}

// Section returns stored units of a section with their states and the
// draft and live renderings.
func (e *Engine) Section(ctx context.Context, id auth.Identity, section string) (SectionView, error) {
	if err := authorize(auth.RequireEditor, id); err != nil {
		return SectionView{}, err
	}
	sec, ok := e.registry.Lookup(section)
	if !ok {
		return SectionView{}, notFound(section, "", fmt.Sprintf("unknown section %q", section))
	}

	items, err := e.store.ReadSection(ctx, section, "")
	if err != nil {
		return SectionView{}, storeFailure(section, "", err)
	}

	now := e.clock.Now()
	view := SectionView{Key: sec.Key, Label: sec.Label, Keyed: sec.Keyed, Items: make([]ItemState, 0, len(items))}
	var live []store.Item
	for _, it := range items {
		view.Items = append(view.Items, ItemState{Item: it, State: StateOf(it, now)})
		if it.VisibleAt(now) {
			live = append(live, it)
		}
	}

	preview, _ := resolve.Assemble(e.registry, items)
	current, _ := resolve.Assemble(e.registry, live)
	view.Preview = preview[section]
	view.Live = current[section]
	return view, nil
}

// Sections returns the declared sections in order.
func (e *Engine) Sections() []*schema.Section {
	return e.registry.Sections()
}
