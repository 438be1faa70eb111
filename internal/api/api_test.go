package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/contact"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/ids"
	"github.com/roach88/sitecms/internal/media"
	"github.com/roach88/sitecms/internal/resolve"
	"github.com/roach88/sitecms/internal/store"
)

var epoch = time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)

type recordingMailer struct {
	sent []contact.Submission
}

func (m *recordingMailer) Send(_ context.Context, s contact.Submission) error {
	m.sent = append(m.sent, s)
	return nil
}

type fixture struct {
	handler http.Handler
	store   *store.Store
	clock   *clock.FakeClock
	mailer  *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	clk := clock.Fake(epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(dir, "api.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SetUserRole(ctx, "alice", "editor", "test"))
	require.NoError(t, st.SetUserRole(ctx, "root", "admin", "test"))

	eng := engine.New(st, engine.WithClock(clk), engine.WithLogger(logger))
	mailer := &recordingMailer{}
	srv := NewServer(eng,
		WithLogger(logger),
		WithResolver(resolve.New(st, resolve.WithClock(clk), resolve.WithLogger(logger))),
		WithSessions(autosave.NewRegistry(eng, ids.NewSequential("sess"), autosave.WithClock(clk), autosave.WithLogger(logger))),
		WithMedia(media.NewService(st, media.NewLocalBlobStore(filepath.Join(dir, "media"), "/media"), media.WithLogger(logger))),
		WithMediaDir(filepath.Join(dir, "media")),
		WithContact(contact.NewForm(mailer, contact.WithLogger(logger))),
	)
	return &fixture{handler: srv.Handler(), store: st, clock: clk, mailer: mailer}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) livePhone(t *testing.T) any {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/content", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode(t, rec)["content"].(map[string]any)
	return tree["contact"].(map[string]any)["phone"]
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode(t, rec)["error"].(map[string]any)["code"].(string)
}

func TestContent_ServesDefaults(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "(555) 010-0100", f.livePhone(t))
}

func TestSaveAndPublish(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "alice", map[string]any{"value": "555-0199"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "(555) 010-0100", f.livePhone(t), "drafts are not public")

	rec = f.do(t, http.MethodPost, "/api/admin/sections/contact/phone/publish", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["published"])
	assert.Equal(t, "555-0199", f.livePhone(t))

	rec = f.do(t, http.MethodPost, "/api/admin/sections/contact/publish", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["published"], "publishing twice is a no-op")
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"value": "555"}

	rec := f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "mallory", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/users/bob/role", "alice", map[string]any{"role": "editor"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "editors cannot manage users")

	rec = f.do(t, http.MethodPut, "/api/admin/users/bob/role", "root", map[string]any{"role": "editor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "bob", body)
	assert.Equal(t, http.StatusOK, rec.Code, "granted role takes effect on the next request")
}

func TestSave_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "alice", map[string]any{"value": ""})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", detail["code"])
	violations := detail["violations"].([]any)
	require.Len(t, violations, 1)
	assert.Equal(t, "Phone is required", violations[0].(map[string]any)["message"])

	rec = f.do(t, http.MethodPut, "/api/admin/sections/contact/phone?autosave=true", "alice", map[string]any{"value": ""})
	assert.Equal(t, http.StatusOK, rec.Code, "autosave keeps invalid drafts")
}

func TestSave_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "alice", map[string]any{"value": "x", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/sections/nope/default", "alice", map[string]any{"value": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/admin/sections/contact/phone", "alice", map[string]any{"value": "555-0142"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/sections/contact/phone/schedule", "alice", map[string]any{"at": epoch.Add(-time.Hour)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/admin/sections/contact/phone/schedule", "alice", map[string]any{"at": epoch.Add(time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "scheduled", decode(t, rec)["state"])
	assert.Equal(t, "(555) 010-0100", f.livePhone(t))

	f.clock.Advance(time.Hour)
	assert.Equal(t, "555-0142", f.livePhone(t))
}

func TestRevisionsAndRollback(t *testing.T) {
	f := newFixture(t)
	path := "/api/admin/sections/contact/phone"

	rec := f.do(t, http.MethodPut, path, "alice", map[string]any{"value": "555-0001"})
	require.Equal(t, http.StatusOK, rec.Code)
	itemID := decode(t, rec)["item"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodPut, path, "alice", map[string]any{"value": "555-0002"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/items/"+itemID+"/revisions?limit=5", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var revs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &revs))
	require.Len(t, revs, 1)
	assert.Equal(t, "555-0001", revs[0]["content"])

	rec = f.do(t, http.MethodPost, "/api/admin/revisions/"+revs[0]["id"].(string)+"/rollback", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["applied"])

	rec = f.do(t, http.MethodPost, path+"/publish", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "555-0001", f.livePhone(t))

	rec = f.do(t, http.MethodPost, "/api/admin/revisions/missing/rollback", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["applied"])
	assert.NotEmpty(t, body["warning"])

	rec = f.do(t, http.MethodGet, "/api/admin/items/"+itemID+"/revisions?limit=zero", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	path := "/api/admin/sections/contact/phone"

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, path, "alice", map[string]any{"value": "1"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/publish", "alice", nil).Code)
	assert.Equal(t, "1", f.livePhone(t))

	rec := f.do(t, http.MethodDelete, path, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["reset"])
	assert.Equal(t, "(555) 010-0100", f.livePhone(t))
}

func TestAutosaveSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/sessions", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)
	assert.Equal(t, "sess-1", id)

	edit := func(value string) {
		rec := f.do(t, http.MethodPut, "/api/admin/sessions/"+id+"/edits", "alice",
			map[string]any{"section": "contact", "key": "phone", "value": value})
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}
	edit("555-0100")
	f.clock.Advance(2 * time.Second)
	edit("555-0199")

	_, err := f.store.FindItem(context.Background(), "contact", "phone")
	assert.True(t, store.IsNotFound(err), "nothing written inside the idle window")

	f.clock.Advance(autosave.DefaultIdleDelay)
	it, err := f.store.FindItem(context.Background(), "contact", "phone")
	require.NoError(t, err)
	assert.Equal(t, content.String("555-0199"), it.Content)
}

func TestAutosaveSession_OtherUsersCannotUseIt(t *testing.T) {
	f := newFixture(t)
	id := decode(t, f.do(t, http.MethodPost, "/api/admin/sessions", "alice", nil))["id"].(string)

	rec := f.do(t, http.MethodGet, "/api/admin/sessions/"+id, "root", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAutosaveSession_SaveReportsViolations(t *testing.T) {
	f := newFixture(t)
	id := decode(t, f.do(t, http.MethodPost, "/api/admin/sessions", "alice", nil))["id"].(string)

	rec := f.do(t, http.MethodPut, "/api/admin/sessions/"+id+"/edits", "alice",
		map[string]any{"section": "contact", "key": "phone", "value": ""})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/sessions/"+id+"/save", "alice", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	violations := decode(t, rec)["error"].(map[string]any)["violations"].([]any)
	require.Len(t, violations, 1)
	assert.Equal(t, "contact/phone:phone", violations[0].(map[string]any)["path"])

	rec = f.do(t, http.MethodGet, "/api/admin/sessions/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["pending"], 1, "failed edits stay pending")

	rec = f.do(t, http.MethodDelete, "/api/admin/sessions/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["written"], 1, "closing keeps the edit as a draft")

	rec = f.do(t, http.MethodGet, "/api/admin/sessions/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThemes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/admin/themes/brand", "alice", map[string]any{"colors": map[string]string{"primary": "navy"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/themes/brand", "alice", map[string]any{"colors": map[string]string{"primary": "#1f3a5f"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/admin/themes/brand/activate", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/content", "", nil)
	theme := decode(t, rec)["theme"].(map[string]any)
	assert.Equal(t, "brand", theme["name"])

	rec = f.do(t, http.MethodPost, "/api/admin/themes/missing/activate", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/sections", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var secs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &secs))
	require.NotEmpty(t, secs)
	assert.Equal(t, "hero", secs[0]["key"])
	assert.NotEmpty(t, secs[0]["fields"])

	rec = f.do(t, http.MethodGet, "/api/admin/sections/contact", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "contact", body["key"])
	assert.NotNil(t, body["schema"])

	rec = f.do(t, http.MethodPost, "/api/admin/sections/contact/phone/validate", "alice", map[string]any{"value": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["valid"])
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/me", "root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decode(t, rec)["role"])

	rec = f.do(t, http.MethodGet, "/api/admin/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContactForm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "", "email": "x", "message": "hi"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, decode(t, rec)["error"].(map[string]any)["violations"], 2)

	rec = f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "Jane", "email": "jane@example.com", "message": "Call me"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, f.mailer.sent, 1)
}

func TestMediaUpload(t *testing.T) {
	f := newFixture(t)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("folder", "hero"))
	fw, err := mw.CreateFormFile("file", "slide.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, "alice")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	m := decode(t, rec)
	assert.Equal(t, "image/png", m["mime_type"])
	assert.EqualValues(t, 3, m["width"])

	rec = f.do(t, http.MethodGet, "/api/admin/media/"+m["id"].(string), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, m["original_url"], decode(t, rec)["best_url"])

	rec = f.do(t, http.MethodGet, m["original_url"].(string), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "uploads are served under /media")

	rec = f.do(t, http.MethodGet, "/api/admin/media/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil).Code)
}
