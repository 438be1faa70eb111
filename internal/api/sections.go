package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/schema"
	"github.com/roach88/sitecms/internal/validate"
)

// fieldView describes a field to the admin editor.
type fieldView struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Kind        schema.Kind   `json:"kind"`
	Help        string        `json:"help,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Default     content.Value `json:"default,omitempty"`
	MaxLength   int           `json:"max_length,omitempty"`
	Multiline   bool          `json:"multiline,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Options     []string      `json:"options,omitempty"`
	MaxItems    int           `json:"max_items,omitempty"`
	Item        []fieldView   `json:"item,omitempty"`
}

type sectionView struct {
	Key         string        `json:"key"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	Keyed       bool          `json:"keyed"`
	Fields      []fieldView   `json:"fields"`
	Default     content.Value `json:"default"`
}

func presentSection(sec *schema.Section) sectionView {
	return sectionView{
		Key:         sec.Key,
		Label:       sec.Label,
		Description: sec.Description,
		Keyed:       sec.Keyed,
		Fields:      presentFields(sec.Fields),
		Default:     sec.Default,
	}
}

func presentFields(fields []schema.Field) []fieldView {
	out := make([]fieldView, 0, len(fields))
	for _, f := range fields {
		meta := f.Meta()
		v := fieldView{
			Name:     meta.Name,
			Label:    meta.Label,
			Kind:     f.Kind(),
			Help:     meta.Help,
			Required: meta.Required,
			Default:  meta.Default,
		}
		switch f := f.(type) {
		case *schema.TextField:
			v.MaxLength, v.Multiline, v.Placeholder = f.MaxLength, f.Multiline, f.Placeholder
		case *schema.RichTextField:
			v.MaxLength = f.MaxLength
		case *schema.LinkField:
			v.MaxLength = f.MaxLength
		case *schema.NumberField:
			v.Min, v.Max = f.Min, f.Max
		case *schema.SelectField:
			v.Options = f.Options
		case *schema.ArrayField:
			v.MaxItems = f.MaxItems
			v.Item = presentFields(f.Item)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) error {
	id := IdentityFrom(r.Context())
	if id.UserID == "" {
		return &auth.Error{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id.UserID, "role": id.Role, "can_edit": id.CanEdit()})
	return nil
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) error {
	if err := auth.RequireEditor(IdentityFrom(r.Context())); err != nil {
		return err
	}
	secs := s.engine.Sections()
	out := make([]sectionView, 0, len(secs))
	for _, sec := range secs {
		out = append(out, presentSection(sec))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) error {
	view, err := s.engine.Section(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "section"))
	if err != nil {
		return err
	}
	sec, _ := s.engine.Registry().Lookup(view.Key)
	writeJSON(w, http.StatusOK, struct {
		engine.SectionView
		Schema sectionView `json:"schema"`
	}{view, presentSection(sec)})
	return nil
}

type saveRequest struct {
	Value json.RawMessage `json:"value"`
}

func (req saveRequest) content() (content.Value, error) {
	if len(req.Value) == 0 {
		return nil, badRequest("value is required")
	}
	v, err := content.ParseJSON(req.Value)
	if err != nil {
		return nil, badRequest("invalid value: %v", err)
	}
	return v, nil
}

// handleSave stores a draft. It validates unless ?autosave=true.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) error {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	v, err := req.content()
	if err != nil {
		return err
	}

	save := s.engine.Save
	if r.URL.Query().Get("autosave") == "true" {
		save = s.engine.SaveDraft
	}
	res, err := save(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "section"), chi.URLParam(r, "key"), v)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) error {
	if err := auth.RequireEditor(IdentityFrom(r.Context())); err != nil {
		return err
	}
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	v, err := req.content()
	if err != nil {
		return err
	}
	vs, err := s.engine.Validate(chi.URLParam(r, "section"), chi.URLParam(r, "key"), v)
	if err != nil {
		return err
	}
	if vs == nil {
		vs = []validate.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(vs) == 0, "violations": vs})
	return nil
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) error {
	res, err := s.engine.Publish(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "section"), chi.URLParam(r, "key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

type scheduleRequest struct {
	At time.Time `json:"at"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) error {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.At.IsZero() {
		return badRequest("at is required")
	}
	item, err := s.engine.Schedule(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "section"), chi.URLParam(r, "key"), req.At)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, item)
	return nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) error {
	existed, err := s.engine.Reset(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "section"), chi.URLParam(r, "key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": existed})
	return nil
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest("limit must be a positive integer")
		}
		limit = n
	}
	revs, err := s.engine.Revisions(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, revs)
	return nil
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) error {
	res, err := s.engine.Rollback(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}
