// Package resolve assembles the content tree the public site renders.
//
// The tree starts from the schema defaults and is overlaid with published
// rows only. Drafts and rows scheduled for a later instant never reach it.
// A store outage degrades to defaults with a warning instead of an error,
// so the site always has something to render.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/sitecms/internal/clock"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/schema"
	"github.com/roach88/sitecms/internal/store"
)

// Reader is the subset of the store the resolver needs.
type Reader interface {
	ReadPublished(ctx context.Context, now time.Time) ([]store.Item, error)
	ActiveTheme(ctx context.Context) (*store.Theme, error)
}

// Result is a resolved content tree.
type Result struct {
	Tree     content.Object `json:"content"`
	Theme    *store.Theme   `json:"theme,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Resolver builds Results from a Reader.
type Resolver struct {
	reader   Reader
	registry *schema.Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock deciding which scheduled rows are due.
func WithClock(c clock.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithLogger sets the logger for degraded reads.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithRegistry replaces the embedded section registry.
func WithRegistry(reg *schema.Registry) Option {
	return func(r *Resolver) { r.registry = reg }
}

// New creates a Resolver reading from reader.
func New(reader Reader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:   reader,
		registry: schema.Default(),
		clock:    clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns defaults overlaid with content that is public right now.
// It never fails; read problems are reported in Warnings.
func (r *Resolver) Resolve(ctx context.Context) Result {
	var res Result

	items, err := r.reader.ReadPublished(ctx, r.clock.Now())
	if err != nil {
		r.logger.Warn("content read failed, serving defaults", "error", err)
		res.Warnings = append(res.Warnings, "published content unavailable, showing defaults")
		items = nil
	}

	tree, unknown := Assemble(r.registry, items)
	res.Tree = tree
	for _, section := range unknown {
		r.logger.Debug("ignoring content for unknown section", "section", section)
	}

	theme, err := r.reader.ActiveTheme(ctx)
	if err != nil {
		r.logger.Warn("theme read failed", "error", err)
		res.Warnings = append(res.Warnings, "theme unavailable, using site colors")
	} else {
		res.Theme = theme
	}
	return res
}

// Assemble overlays items onto the registry defaults. In a singleton
// section a "default" row merges into the section root and any other key
// into that field; the root row applies first so finer rows win. In a
// keyed section every key is an entry, and an entry missing from the
// defaults starts from the section's field defaults.
//
// Rows for sections the registry does not declare are left out and their
// section keys returned.
func Assemble(reg *schema.Registry, items []store.Item) (content.Object, []string) {
	tree := reg.Defaults()

	ordered := make([]store.Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if (a.Key == schema.DefaultContentKey) != (b.Key == schema.DefaultContentKey) {
			return a.Key == schema.DefaultContentKey
		}
		return a.Key < b.Key
	})

	var unknown []string
	for _, it := range ordered {
		sec, ok := reg.Lookup(it.Section)
		if !ok {
			if len(unknown) == 0 || unknown[len(unknown)-1] != it.Section {
				unknown = append(unknown, it.Section)
			}
			continue
		}
		sectionObj, _ := tree[it.Section].(content.Object)
		if sec.Keyed {
			if _, ok := sectionObj[it.Key]; !ok {
				sectionObj = content.MergeAt(sectionObj, it.Key, sec.EntryDefaults())
			}
			tree[it.Section] = content.MergeAt(sectionObj, it.Key, it.Content)
			continue
		}
		if it.Key == schema.DefaultContentKey {
			tree[it.Section] = content.Merge(sectionObj, it.Content)
			continue
		}
		tree[it.Section] = content.MergeAt(sectionObj, it.Key, it.Content)
	}
	return tree, unknown
}

// Section returns the resolved value of one section, for callers that only
// render part of the page.
func (res Result) Section(key string) (content.Object, error) {
	v, ok := res.Tree[key]
	if !ok {
		return nil, fmt.Errorf("section %q not resolved", key)
	}
	obj, ok := v.(content.Object)
	if !ok {
		return nil, fmt.Errorf("section %q is %s, not an object", key, content.Kind(v))
	}
	return obj, nil
}
