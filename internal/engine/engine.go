package engine

import (
	"log/slog"

	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/schema"
	"github.com/roach88/sitecms/internal/store"
)

// Engine is the content versioning and publishing facade.
//
// Every write runs the same pipeline: authorization, schema lookup,
// sanitizing, validation (except draft saves), then one store call. The
// store records revisions; the engine decides which transitions are legal.
//
// Engine holds no mutable state of its own and is safe for concurrent use.
// Concurrent writes to the same unit are last-write-wins.
type Engine struct {
	store         *store.Store
	registry      *schema.Registry
	clock         clock.Clock
	logger        *slog.Logger
	revisionLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for schedule checks and state derivation.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRegistry replaces the embedded section registry.
func WithRegistry(reg *schema.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithRevisionLimit sets how many revisions Revisions returns when the
// caller passes no limit.
//
// Default: store.DefaultRevisionLimit (20)
func WithRevisionLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.revisionLimit = n
		}
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		registry:      schema.Default(),
		clock:         clock.Real(),
		logger:        slog.Default(),
		revisionLimit: store.DefaultRevisionLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the section registry the engine validates against.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Store returns the underlying content store.
func (e *Engine) Store() *store.Store {
	return e.store
}
