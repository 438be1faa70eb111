package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/store"
)

// StateNone is the state of a unit with nothing stored.
const StateNone = "none"

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (h *Harness) evaluate(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertResolved:
		return assertResolved(result.Tree, a)
	case AssertAbsent:
		if v, ok := lookupPath(result.Tree, a.Path); ok {
			return &AssertionError{Type: a.Type, Expected: "nothing at " + a.Path, Actual: render(v)}
		}
		return nil
	case AssertState:
		return h.assertState(ctx, a)
	case AssertStored:
		return h.assertStored(ctx, a)
	case AssertRevisions:
		return h.assertRevisions(ctx, a)
	case AssertTraceCount:
		if n := result.Count(a.Op, a.Outcome); n != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s step(s)", *a.Count, describeOp(a)),
				Actual:   strconv.Itoa(n),
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertResolved(tree content.Object, a Assertion) error {
	want, err := content.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("equals: %w", err)
	}
	got, ok := lookupPath(tree, a.Path)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: render(want) + " at " + a.Path, Actual: "nothing"}
	}
	if !content.Equal(got, want) {
		return &AssertionError{Type: a.Type, Expected: render(want) + " at " + a.Path, Actual: render(got)}
	}
	return nil
}

func (h *Harness) assertState(ctx context.Context, a Assertion) error {
	got := StateNone
	it, err := h.store.FindItem(ctx, a.Section, a.Key)
	switch {
	case store.IsNotFound(err):
	case err != nil:
		return err
	default:
		got = string(engine.StateOf(it, h.clock.Now()))
	}
	if got != a.State {
		return &AssertionError{Type: a.Type, Expected: a.State + " for " + unitName(a), Actual: got}
	}
	return nil
}

func (h *Harness) assertStored(ctx context.Context, a Assertion) error {
	want, err := content.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("equals: %w", err)
	}
	it, err := h.store.FindItem(ctx, a.Section, a.Key)
	if store.IsNotFound(err) {
		return &AssertionError{Type: a.Type, Expected: render(want) + " for " + unitName(a), Actual: "nothing stored"}
	}
	if err != nil {
		return err
	}
	if !content.Equal(it.Content, want) {
		return &AssertionError{Type: a.Type, Expected: render(want) + " for " + unitName(a), Actual: render(it.Content)}
	}
	return nil
}

func (h *Harness) assertRevisions(ctx context.Context, a Assertion) error {
	got := 0
	it, err := h.store.FindItem(ctx, a.Section, a.Key)
	switch {
	case store.IsNotFound(err):
	case err != nil:
		return err
	default:
		// One past the expected count, so extra revisions are seen.
		revs, err := h.store.ListRevisions(ctx, it.ID, *a.Count+1)
		if err != nil {
			return err
		}
		got = len(revs)
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d revision(s) of %s", *a.Count, unitName(a)),
			Actual:   strconv.Itoa(got),
		}
	}
	return nil
}

// lookupPath walks a dot-separated path. Numeric segments index arrays.
func lookupPath(v content.Value, path string) (content.Value, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case content.Object:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case content.Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func render(v content.Value) string {
	data, err := content.Canonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func unitName(a Assertion) string {
	return a.Section + "/" + a.Key
}

func describeOp(a Assertion) string {
	if a.Outcome == "" {
		return a.Op
	}
	return a.Op + "=" + a.Outcome
}
