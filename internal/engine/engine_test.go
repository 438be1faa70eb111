package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/resolve"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

var (
	epoch  = time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)
	editor = auth.Identity{UserID: "alice", Role: auth.RoleEditor}
	admin  = auth.Identity{UserID: "root", Role: auth.RoleAdmin}
)

type fixture struct {
	engine   *Engine
	store    *store.Store
	clock    *clock.FakeClock
	resolver *resolve.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		engine:   New(s, WithClock(clk), WithLogger(logger)),
		store:    s,
		clock:    clk,
		resolver: resolve.New(s, resolve.WithClock(clk), resolve.WithLogger(logger)),
	}
}

func (f *fixture) live(t *testing.T, path ...string) content.Value {
	t.Helper()
	v, _ := content.Lookup(f.resolver.Resolve(context.Background()).Tree, path...)
	return v
}

func TestSave_RequiresEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []auth.Identity{{}, {UserID: "mallory"}} {
		_, err := f.engine.Save(ctx, id, "contact", "phone", content.String("555"))
		require.Error(t, err)
		assert.True(t, IsAuthorization(err))
	}

	items, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "rejected callers must not reach the store")
}

func TestSave_ValidationListsEveryViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "testimonials", "default", content.Object{
		"items": content.Array{
			content.Object{"author": content.String("Jane"), "quote": content.String("")},
			content.Object{"author": content.String(""), "quote": content.String("Great"), "rating": content.Number(7)},
		},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, []string{
		"Item 1: Quote is required",
		"Item 2: Author is required",
		"Item 2: Rating must be at most 5",
	}, messages(ViolationsOf(err)))

	items, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSaveDraft_SkipsValidation(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.SaveDraft(context.Background(), editor, "contact", "phone", content.String(""))
	require.NoError(t, err)
	assert.True(t, res.Item.IsDraft)
	assert.Equal(t, content.String(""), res.Item.Content)
}

func TestSave_UnknownTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "pricing", "default", content.Object{})
	assert.True(t, IsNotFound(err))

	_, err = f.engine.Save(ctx, editor, "contact", "fax", content.String("1"))
	assert.True(t, IsNotFound(err))

	_, err = f.engine.Save(ctx, editor, "service_areas", "Bad Key", content.Object{"name": content.String("x")})
	assert.True(t, IsValidation(err))
}

func TestSave_SanitizesRichText(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Save(context.Background(), editor, "about", "body",
		content.String(`<p>Hello<script>alert(1)</script></p>`))
	require.NoError(t, err)
	assert.Equal(t, content.String("<p>Hello</p>"), res.Item.Content)
}

func TestSave_KeyedEntryUsesEntryDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// springfield already has a name in the defaults, so a partial
	// overlay validates.
	_, err := f.engine.Save(ctx, editor, "service_areas", "springfield", content.Object{
		"description": content.String("<p>New copy</p>"),
	})
	require.NoError(t, err)

	// A new entry must bring its own name.
	_, err = f.engine.Save(ctx, editor, "service_areas", "ogdenville", content.Object{})
	require.Error(t, err)
	assert.Equal(t, []string{"ogdenville: Region name is required"}, messages(ViolationsOf(err)))
}

func TestSave_KeyedSectionRejectsDefaultKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "service_areas", "default", content.Object{
		"name": content.String("Capital"),
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, []string{`Key "default" is reserved`}, messages(ViolationsOf(err)))

	_, err = f.engine.SaveDraft(ctx, editor, "service_areas", "default", content.Object{})
	assert.True(t, IsValidation(err))

	stored, err := f.store.ReadSection(ctx, "service_areas", "")
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, atRoot := content.Lookup(f.live(t, "service_areas"), "name")
	assert.False(t, atRoot)
}

func TestPublish_NewKeyedEntryResolvesWithFieldDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "service_areas", "capital_city", content.Object{
		"name": content.String("Capital City"),
	})
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, editor, "service_areas", "capital_city")
	require.NoError(t, err)

	assert.Equal(t, content.String("Capital City"), f.live(t, "service_areas", "capital_city", "name"))
	assert.Equal(t, content.String("secondary"), f.live(t, "service_areas", "capital_city", "priority"))
}

func TestSave_StoreFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.engine.Save(context.Background(), editor, "contact", "phone", content.String("555"))
	require.Error(t, err)
	assert.True(t, IsStore(err))
	assert.Contains(t, err.Error(), "please retry")
}

func TestPublish_ValidatesDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.SaveDraft(ctx, editor, "contact", "phone", content.String(""))
	require.NoError(t, err)
	_, err = f.engine.SaveDraft(ctx, editor, "contact", "heading", content.String(""))
	require.NoError(t, err)

	_, err = f.engine.Publish(ctx, editor, "contact", "")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ElementsMatch(t, []string{"Heading is required", "Phone is required"}, messages(ViolationsOf(err)))

	items, err := f.store.ReadSection(ctx, "contact", "")
	require.NoError(t, err)
	for _, it := range items {
		assert.True(t, it.IsDraft, "nothing is published when validation fails")
	}
}

func TestPublish_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "contact", "phone", content.String("555-0199"))
	require.NoError(t, err)

	res, err := f.engine.Publish(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Published)
	first, err := f.store.FindItem(ctx, "contact", "phone")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err = f.engine.Publish(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Published)

	second, err := f.store.FindItem(ctx, "contact", "phone")
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, *first.PublishedAt, *second.PublishedAt)
	assert.Equal(t, content.String("555-0199"), f.live(t, "contact", "phone"))
}

func TestPublish_NothingStored(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Publish(context.Background(), editor, "contact", "phone")
	assert.True(t, IsNotFound(err))

	res, err := f.engine.Publish(context.Background(), editor, "contact", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Published)
}

func TestSchedule_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Schedule(ctx, editor, "cta", "heading", epoch.Add(time.Hour))
	assert.True(t, IsNotFound(err), "nothing stored yet")

	_, err = f.engine.Save(ctx, editor, "cta", "heading", content.String("Spring sale"))
	require.NoError(t, err)

	_, err = f.engine.Schedule(ctx, editor, "cta", "heading", epoch)
	assert.True(t, IsInvalidState(err), "time must be in the future")

	st, err := f.engine.Schedule(ctx, editor, "cta", "heading", epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, st.State)

	// Rescheduling while scheduled is allowed.
	st, err = f.engine.Schedule(ctx, editor, "cta", "heading", epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(2*time.Hour), *st.ScheduledFor)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, content.String("Spring sale"), f.live(t, "cta", "heading"))

	_, err = f.engine.Schedule(ctx, editor, "cta", "heading", f.clock.Now().Add(time.Hour))
	assert.True(t, IsInvalidState(err), "published content cannot be scheduled")
}

func TestSchedule_SaveDuringWindowResetsSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "cta", "heading", content.String("v1"))
	require.NoError(t, err)
	_, err = f.engine.Schedule(ctx, editor, "cta", "heading", epoch.Add(time.Hour))
	require.NoError(t, err)

	res, err := f.engine.Save(ctx, editor, "cta", "heading", content.String("v2"))
	require.NoError(t, err)
	assert.Equal(t, StateDraft, StateOf(res.Item, f.clock.Now()))
	assert.Nil(t, res.Item.ScheduledFor)
	require.NotNil(t, res.Revision)
	assert.Equal(t, content.String("v1"), res.Revision.Content)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, content.String("Ready to start your project?"), f.live(t, "cta", "heading"))
}

func TestRevisions_ContainPreviousNotCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "contact", "phone", content.String("v1"))
	require.NoError(t, err)
	res, err := f.engine.Save(ctx, editor, "contact", "phone", content.String("v2"))
	require.NoError(t, err)

	revs, err := f.engine.Revisions(ctx, editor, res.Item.ID, 0)
	require.NoError(t, err)
	var values []content.Value
	for _, r := range revs {
		values = append(values, r.Content)
	}
	assert.Contains(t, values, content.Value(content.String("v1")))
	assert.NotContains(t, values, content.Value(content.String("v2")))

	_, err = f.engine.Revisions(ctx, auth.Identity{}, res.Item.ID, 0)
	assert.True(t, IsAuthorization(err))
}

func TestRollback_ThenPublishRestoresRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := content.String("555-0101")
	v2 := content.String("555-0202")

	_, err := f.engine.Save(ctx, editor, "contact", "phone", v1)
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	res, err := f.engine.Save(ctx, editor, "contact", "phone", v2)
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	require.Equal(t, v2, f.live(t, "contact", "phone"))

	rb, err := f.engine.Rollback(ctx, editor, res.Revision.ID)
	require.NoError(t, err)
	require.True(t, rb.Applied)
	assert.Equal(t, StateDraft, rb.Item.State)
	assert.Equal(t, v1, rb.Item.Content)
	require.NotNil(t, rb.Replaced)
	assert.Equal(t, v2, rb.Replaced.Content, "rollback snapshots the value it replaced")

	_, err = f.engine.Publish(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	assert.Equal(t, v1, f.live(t, "contact", "phone"))
}

func TestRollback_MissingRevisionIsWarning(t *testing.T) {
	f := newFixture(t)

	rb, err := f.engine.Rollback(context.Background(), editor, "no-such-revision")
	require.NoError(t, err)
	assert.False(t, rb.Applied)
	assert.Contains(t, rb.Warning, "no-such-revision")

	_, err = f.engine.Rollback(context.Background(), auth.Identity{}, "no-such-revision")
	assert.True(t, IsAuthorization(err))
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "contact", "phone", content.String("555"))
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, editor, "contact", "")
	require.NoError(t, err)

	existed, err := f.engine.Reset(ctx, editor, "contact", "phone")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, content.String("(555) 010-0100"), f.live(t, "contact", "phone"))
}

func TestSection_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Save(ctx, editor, "contact", "phone", content.String("draft"))
	require.NoError(t, err)
	_, err = f.engine.Save(ctx, editor, "contact", "email", content.String("new@example.com"))
	require.NoError(t, err)
	_, err = f.engine.Publish(ctx, editor, "contact", "email")
	require.NoError(t, err)

	view, err := f.engine.Section(ctx, editor, "contact")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "email", view.Items[0].Key)
	assert.Equal(t, StatePublished, view.Items[0].State)
	assert.Equal(t, StateDraft, view.Items[1].State)

	phone, _ := content.Lookup(view.Preview, "phone")
	assert.Equal(t, content.String("draft"), phone)
	phone, _ = content.Lookup(view.Live, "phone")
	assert.Equal(t, content.String("(555) 010-0100"), phone)
	email, _ := content.Lookup(view.Live, "email")
	assert.Equal(t, content.String("new@example.com"), email)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)

	vs, err := f.engine.Validate("cta", "background", content.String("blue"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Background color must be a hex color like #1f3a5f"}, messages(vs))

	_, err = f.engine.Validate("nope", "default", content.Object{})
	assert.True(t, IsNotFound(err))
}

func TestStateOf(t *testing.T) {
	past, future := epoch.Add(-time.Minute), epoch.Add(time.Minute)

	assert.Equal(t, StateDraft, StateOf(store.Item{IsDraft: true, ScheduledFor: &future}, epoch))
	assert.Equal(t, StateScheduled, StateOf(store.Item{ScheduledFor: &future}, epoch))
	assert.Equal(t, StatePublished, StateOf(store.Item{ScheduledFor: &past}, epoch))
	assert.Equal(t, StatePublished, StateOf(store.Item{}, epoch))
}

func messages(vs []validate.Violation) []string {
	return validate.Messages(vs)
}
