package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/ids"
	"github.com/roach88/sitecms/internal/resolve"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

// Harness holds the components one scenario runs against.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	resolver *resolve.Resolver
	clock    *clock.FakeClock
	logger   *slog.Logger
	users    map[string]auth.Identity
	sessions map[string]*autosave.Session
}

// Run executes a scenario in a fresh database and returns the result.
// The returned error reports harness failures (database setup, bad
// content in the scenario); step and assertion failures are recorded in
// the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "sitecms-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := newHarness(filepath.Join(dir, "scenario.db"), scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		result.record(ev)
		checkExpect(result, i, step, ev)
	}

	for _, s := range h.sessions {
		s.Discard()
	}

	res := h.resolver.Resolve(ctx)
	result.Tree = res.Tree
	result.Warnings = res.Warnings

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %s", i, err))
		}
	}
	return result, nil
}

func newHarness(path string, scenario *Scenario) (*Harness, error) {
	start := DefaultStart
	if scenario.Start != nil {
		start = scenario.Start.UTC()
	}
	clk := clock.Fake(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(path, store.WithClock(clk), store.WithIDGenerator(ids.NewSequential("id")))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	h := &Harness{
		store:    st,
		engine:   engine.New(st, engine.WithClock(clk), engine.WithLogger(logger)),
		resolver: resolve.New(st, resolve.WithClock(clk), resolve.WithLogger(logger)),
		clock:    clk,
		logger:   logger,
		users:    make(map[string]auth.Identity),
		sessions: make(map[string]*autosave.Session),
	}

	roles := make(map[string]auth.Role, len(DefaultUsers)+len(scenario.Users))
	for user, role := range DefaultUsers {
		roles[user] = role
	}
	for user, name := range scenario.Users {
		role, err := auth.ParseRole(name)
		if err != nil {
			st.Close()
			return nil, err
		}
		roles[user] = role
	}

	ctx := context.Background()
	for user, role := range roles {
		if err := st.SetUserRole(ctx, user, string(role), "harness"); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to grant %s: %w", user, err)
		}
		h.users[user] = auth.Identity{UserID: user, Role: role}
	}
	return h, nil
}

// identity returns the acting user. Unknown ids act without a role.
func (h *Harness) identity(user string) auth.Identity {
	if user == "" {
		user = "editor"
	}
	if id, ok := h.users[user]; ok {
		return id
	}
	return auth.Identity{UserID: user}
}

func (h *Harness) session(id auth.Identity) *autosave.Session {
	s, ok := h.sessions[id.UserID]
	if !ok {
		s = autosave.NewSession(h.engine, id,
			autosave.WithClock(h.clock),
			autosave.WithLogger(h.logger),
			autosave.WithID("harness-"+id.UserID))
		h.sessions[id.UserID] = s
	}
	return s
}

// execute runs one step. Engine failures become the event's outcome; only
// malformed scenario content is returned as an error.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	id := h.identity(step.As)
	ev := TraceEvent{Op: step.Op, User: id.UserID, Section: step.Section, Key: step.Key}

	var opErr error
	switch step.Op {
	case OpSave, OpSaveDraft, OpEdit:
		value, err := content.FromAny(step.Value)
		if err != nil {
			return ev, fmt.Errorf("value: %w", err)
		}
		switch step.Op {
		case OpSave:
			_, opErr = h.engine.Save(ctx, id, step.Section, step.Key, value)
		case OpSaveDraft:
			_, opErr = h.engine.SaveDraft(ctx, id, step.Section, step.Key, value)
		default:
			opErr = h.session(id).Edit(step.Section, step.Key, value)
		}

	case OpPublish:
		var res engine.PublishResult
		res, opErr = h.engine.Publish(ctx, id, step.Section, step.Key)
		if opErr == nil {
			ev.Detail = fmt.Sprintf("published %d", res.Published)
		}

	case OpSchedule:
		_, opErr = h.engine.Schedule(ctx, id, step.Section, step.Key, h.clock.Now().Add(step.In))

	case OpRollback:
		revisionID := step.RevisionID
		if revisionID == "" {
			var err error
			revisionID, err = h.revisionAt(ctx, step.Section, step.Key, *step.Revision)
			if err != nil {
				return ev, err
			}
		}
		var res engine.RollbackResult
		res, opErr = h.engine.Rollback(ctx, id, revisionID)
		if opErr == nil && !res.Applied {
			ev.Outcome = OutcomeSkipped
			ev.Detail = res.Warning
			return ev, nil
		}

	case OpReset:
		var existed bool
		existed, opErr = h.engine.Reset(ctx, id, step.Section, step.Key)
		if opErr == nil && !existed {
			ev.Detail = "nothing stored"
		}

	case OpAdvance:
		h.clock.Advance(step.By)
		ev.Detail = step.By.String()

	case OpSessionSave, OpFlush:
		s := h.session(id)
		var res autosave.Result
		if step.Op == OpFlush {
			res, opErr = s.Flush(ctx)
		} else {
			res, opErr = s.Save(ctx)
		}
		ev.Detail = fmt.Sprintf("wrote %d", len(res.Written))
	}

	ev.Outcome = outcomeOf(opErr)
	ev.Violations = validate.Messages(engine.ViolationsOf(opErr))
	return ev, nil
}

// revisionAt returns the id of the n-th newest revision of a unit.
func (h *Harness) revisionAt(ctx context.Context, section, key string, n int) (string, error) {
	it, err := h.store.FindItem(ctx, section, key)
	if err != nil {
		return "", fmt.Errorf("rollback target %s/%s: %w", section, key, err)
	}
	revs, err := h.store.ListRevisions(ctx, it.ID, n+1)
	if err != nil {
		return "", fmt.Errorf("rollback target %s/%s: %w", section, key, err)
	}
	if n < 0 || n >= len(revs) {
		return "", fmt.Errorf("rollback target %s/%s: revision %d of %d", section, key, n, len(revs))
	}
	return revs[n].ID, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	if errors.Is(err, autosave.ErrClosed) {
		return "CLOSED"
	}
	return "ERROR"
}

func checkExpect(result *Result, i int, step Step, ev TraceEvent) {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if ev.Outcome != want && !(want == OutcomeOK && ev.Outcome == OutcomeSkipped) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): outcome %s, want %s", i, step.Op, ev.Outcome, want))
	}
	if step.Expect == nil {
		return
	}
	if step.Expect.Violations != nil && !equalStrings(ev.Violations, step.Expect.Violations) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): violations %q, want %q", i, step.Op, ev.Violations, step.Expect.Violations))
	}
	if step.Expect.Detail != nil && ev.Detail != *step.Expect.Detail {
		result.AddError(fmt.Sprintf("steps[%d] (%s): detail %q, want %q", i, step.Op, ev.Detail, *step.Expect.Detail))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
