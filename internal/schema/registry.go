package schema

import (
	_ "embed"
	"sync"

	"github.com/roach88/sitecms/internal/content"
)

//go:embed sections.cue
var sectionsCUE []byte

// DefaultContentKey addresses the singleton row of a section.
const DefaultContentKey = "default"

// Registry is the read-only set of editable sections.
type Registry struct {
	order    []string
	sections map[string]*Section
}

func newRegistry() *Registry {
	return &Registry{sections: make(map[string]*Section)}
}

func (r *Registry) add(s *Section) {
	if _, exists := r.sections[s.Key]; !exists {
		r.order = append(r.order, s.Key)
	}
	r.sections[s.Key] = s
}

// Lookup returns the section declared under key. Absence is a normal
// result, not an error.
func (r *Registry) Lookup(key string) (*Section, bool) {
	s, ok := r.sections[key]
	return s, ok
}

// Sections returns every section in declaration order.
func (r *Registry) Sections() []*Section {
	out := make([]*Section, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.sections[key])
	}
	return out
}

// Defaults returns the compiled default content of every section keyed by
// section key. The result is a fresh copy.
func (r *Registry) Defaults() content.Object {
	out := make(content.Object, len(r.sections))
	for key, s := range r.sections {
		out[key] = s.DefaultObject()
	}
	return out
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry compiled from the embedded sections.cue.
// The file ships with the binary, so a compile failure is a programming
// error and panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Compile("sections.cue", sectionsCUE)
		if err != nil {
			panic("schema: embedded sections.cue: " + err.Error())
		}
		defaultReg = reg
	})
	return defaultReg
}
