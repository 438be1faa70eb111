package autosave

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/ids"
)

// Registry tracks the open sessions of a server, one per editor tab.
type Registry struct {
	writer Writer
	ids    ids.Generator
	opts   []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry whose sessions write through w and are
// configured with opts.
func NewRegistry(w Writer, gen ids.Generator, opts ...Option) *Registry {
	return &Registry{
		writer:   w,
		ids:      gen,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for identity.
func (r *Registry) Open(identity auth.Identity) *Session {
	id := r.ids.Generate()
	opts := append(append([]Option{}, r.opts...), WithID(id))
	s := NewSession(r.writer, identity, opts...)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close flushes and removes the session. A missing session reports false.
func (r *Registry) Close(ctx context.Context, id string) (Result, bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return Result{}, false, nil
	}
	res, err := s.Close(ctx)
	return res, true, err
}

// CloseAll flushes every session, e.g. on shutdown. Sessions are closed in
// id order; the first error is returned after all were attempted.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })

	var firstErr error
	for _, s := range all {
		if _, err := s.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
