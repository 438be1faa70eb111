// Package autosave coalesces rapid edits into periodic draft saves.
//
// Each editing session owns a Session: edits land in a pending map keyed by
// (section, key), overwriting earlier values for the same key, and a
// single idle timer is re-armed on every edit. When the editor pauses for
// the idle delay every pending value is written once as an unvalidated
// draft. An explicit Save writes the pending values with validation and
// cancels the timer, so no stale autosave follows it.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/store"
)

// DefaultIdleDelay is how long the editor must pause before an autosave.
const DefaultIdleDelay = 30 * time.Second

// DefaultMaxAttempts is how many idle periods a failing draft write is
// retried before it is dropped.
const DefaultMaxAttempts = 3

// ErrClosed is returned by Edit after Close.
var ErrClosed = errors.New("autosave: session closed")

// Writer persists content. *engine.Engine implements it.
type Writer interface {
	Save(ctx context.Context, id auth.Identity, section, key string, value content.Value) (store.UpsertResult, error)
	SaveDraft(ctx context.Context, id auth.Identity, section, key string, value content.Value) (store.UpsertResult, error)
}

// Key addresses one pending edit.
type Key struct {
	Section string `json:"section"`
	Key     string `json:"key"`
}

func (k Key) String() string {
	return k.Section + "/" + k.Key
}

// Failure is a pending edit that could not be written.
type Failure struct {
	Key Key   `json:"key"`
	Err error `json:"-"`
}

// Result reports one flush or save.
type Result struct {
	Written []Key     `json:"written"`
	Failed  []Failure `json:"failed,omitempty"`
}

type pendingEdit struct {
	value    content.Value
	version  uint64
	attempts int
}

// Session buffers the edits of one editor.
//
// Safe for concurrent use. Store writes happen outside mu, so an edit
// arriving during a flush is kept for the next one. Flushes themselves
// are serialized by flushMu: an idle autosave and an explicit Save or
// Flush never send the same edit twice, and a slow autosave cannot land
// after a later Save.
type Session struct {
	id          string
	writer      Writer
	identity    auth.Identity
	clock       clock.Clock
	idle        time.Duration
	maxAttempts int
	logger      *slog.Logger

	flushMu sync.Mutex

	mu      sync.Mutex
	pending map[Key]*pendingEdit
	version uint64
	timer   clock.Timer
	armGen  uint64
	closed  bool
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock driving the idle timer.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithIdleDelay sets the pause after which pending edits are saved.
//
// Default: DefaultIdleDelay (30s)
func WithIdleDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMaxAttempts sets how many autosaves a failing edit survives.
//
// Default: DefaultMaxAttempts (3)
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithID names the session in logs and in a Registry.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession creates a session writing through w on behalf of identity.
func NewSession(w Writer, identity auth.Identity, opts ...Option) *Session {
	s := &Session{
		writer:      w,
		identity:    identity,
		clock:       clock.Real(),
		idle:        DefaultIdleDelay,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		pending:     make(map[Key]*pendingEdit),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id, "user", identity.UserID)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Owner returns the identity the session writes as.
func (s *Session) Owner() auth.Identity {
	return s.identity
}

// Edit records value as the latest edit of (section, key), replacing any
// pending value for the same key, and restarts the idle timer.
func (s *Session) Edit(section, key string, value content.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.version++
	k := Key{Section: section, Key: key}
	s.pending[k] = &pendingEdit{value: content.Clone(value), version: s.version}
	s.armLocked()
	return nil
}

// Pending returns a copy of the buffered edits.
func (s *Session) Pending() map[Key]content.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]content.Value, len(s.pending))
	for k, p := range s.pending {
		out[k] = content.Clone(p.value)
	}
	return out
}

// Save writes every pending edit with validation and cancels the idle
// timer. Edits that fail stay pending and the timer is re-armed, so they
// are still kept as drafts by the next autosave. The returned error joins
// every failure; engine.IsValidation reports validation failures in it.
func (s *Session) Save(ctx context.Context) (Result, error) {
	res := s.write(ctx, s.writer.Save, false)
	return res, res.err()
}

// Flush writes every pending edit as an unvalidated draft now, as when
// the editor navigates away.
func (s *Session) Flush(ctx context.Context) (Result, error) {
	res := s.write(ctx, s.writer.SaveDraft, true)
	return res, res.err()
}

// Discard drops every pending edit and cancels the timer. Returns how many
// edits were dropped.
func (s *Session) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	s.stopLocked()
	s.pending = make(map[Key]*pendingEdit)
	if n > 0 {
		s.logger.Info("autosave discarded", "edits", n)
	}
	return n
}

// Close flushes pending edits and rejects further ones.
func (s *Session) Close(ctx context.Context) (Result, error) {
	res, err := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	return res, err
}

type writeFunc func(ctx context.Context, id auth.Identity, section, key string, value content.Value) (store.UpsertResult, error)

type batchEntry struct {
	key     Key
	value   content.Value
	version uint64
}

// write sends a snapshot of the pending map through fn. Successful entries
// are removed unless a newer edit replaced them meanwhile. An entry
// replaced before its turn is skipped and left for the next flush. With
// countFails set (autosave), a failed entry is dropped after maxAttempts.
func (s *Session) write(ctx context.Context, fn writeFunc, countFails bool) Result {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	s.stopLocked()
	batch := make([]batchEntry, 0, len(s.pending))
	for k, p := range s.pending {
		batch = append(batch, batchEntry{key: k, value: p.value, version: p.version})
	}
	s.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].key.Section != batch[j].key.Section {
			return batch[i].key.Section < batch[j].key.Section
		}
		return batch[i].key.Key < batch[j].key.Key
	})

	res := Result{Written: []Key{}}
	for _, e := range batch {
		s.mu.Lock()
		cur, ok := s.pending[e.key]
		s.mu.Unlock()
		if !ok || cur.version != e.version {
			continue
		}

		_, err := fn(ctx, s.identity, e.key.Section, e.key.Key, e.value)

		s.mu.Lock()
		cur, ok = s.pending[e.key]
		current := ok && cur.version == e.version
		switch {
		case err == nil:
			res.Written = append(res.Written, e.key)
			if current {
				delete(s.pending, e.key)
			}
		case countFails && current:
			cur.attempts++
			if cur.attempts >= s.maxAttempts {
				delete(s.pending, e.key)
				s.logger.Error("autosave dropped edit", "key", e.key.String(), "attempts", cur.attempts, "error", err)
			} else {
				s.logger.Warn("autosave failed, will retry", "key", e.key.String(), "attempt", cur.attempts, "error", err)
			}
			res.Failed = append(res.Failed, Failure{Key: e.key, Err: err})
		default:
			res.Failed = append(res.Failed, Failure{Key: e.key, Err: err})
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if len(s.pending) > 0 && s.timer == nil && !s.closed {
		s.armLocked()
	}
	s.mu.Unlock()

	if len(res.Written)+len(res.Failed) > 0 {
		s.logger.Info("autosave batch written", "written", len(res.Written), "failed", len(res.Failed), "validated", !countFails)
	}
	return res
}

// armLocked (re)starts the idle timer. Callers hold s.mu.
func (s *Session) armLocked() {
	s.stopLocked()
	s.armGen++
	gen := s.armGen
	s.timer = s.clock.AfterFunc(s.idle, func() { s.onIdle(gen) })
}

// stopLocked cancels the idle timer. Callers hold s.mu.
func (s *Session) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armGen++
}

func (s *Session) onIdle(gen uint64) {
	s.mu.Lock()
	stale := gen != s.armGen
	if !stale {
		s.timer = nil
	}
	s.mu.Unlock()
	if stale {
		return
	}
	s.write(context.Background(), s.writer.SaveDraft, true)
}

func (r Result) err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Key, f.Err))
	}
	return errors.Join(errs...)
}
