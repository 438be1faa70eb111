package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/validate"
)

type sessionView struct {
	ID      string         `json:"id"`
	Pending []autosave.Key `json:"pending"`
}

type failureView struct {
	Key   autosave.Key `json:"key"`
	Error string       `json:"error"`
}

type flushView struct {
	Written []autosave.Key `json:"written"`
	Failed  []failureView  `json:"failed,omitempty"`
}

func presentResult(res autosave.Result) flushView {
	out := flushView{Written: res.Written}
	if out.Written == nil {
		out.Written = []autosave.Key{}
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, failureView{Key: f.Key, Error: f.Err.Error()})
	}
	return out
}

// session returns the caller's session named in the path. Sessions of
// other users are reported as missing.
func (s *Server) session(r *http.Request) (*autosave.Session, error) {
	id := IdentityFrom(r.Context())
	if err := auth.RequireEditor(id); err != nil {
		return nil, err
	}
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok || sess.Owner().UserID != id.UserID {
		return nil, notFound("editing session not found")
	}
	return sess, nil
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) error {
	id := IdentityFrom(r.Context())
	if err := auth.RequireEditor(id); err != nil {
		return err
	}
	sess := s.sessions.Open(id)
	writeJSON(w, http.StatusCreated, sessionView{ID: sess.ID(), Pending: []autosave.Key{}})
	return nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sessionView{ID: sess.ID(), Pending: pendingKeys(sess)})
	return nil
}

type editRequest struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	saveRequest
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Section == "" || req.Key == "" {
		return badRequest("section and key are required")
	}
	v, err := req.content()
	if err != nil {
		return err
	}
	if err := sess.Edit(req.Section, req.Key, v); err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, sessionView{ID: sess.ID(), Pending: pendingKeys(sess)})
	return nil
}

// handleSessionSave is the explicit save button: pending edits are
// written with validation. Validation failures of all keys are reported
// together; the edits stay pending for autosave.
func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	res, err := sess.Save(r.Context())
	if err != nil {
		return saveFailure(res)
	}
	writeJSON(w, http.StatusOK, presentResult(res))
	return nil
}

func (s *Server) handleSessionFlush(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	res, _ := sess.Flush(r.Context())
	writeJSON(w, http.StatusOK, presentResult(res))
	return nil
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	res, _, _ := s.sessions.Close(r.Context(), sess.ID())
	writeJSON(w, http.StatusOK, presentResult(res))
	return nil
}

// saveFailure folds per-key failures into one error. Any non-validation
// failure wins, since retrying is then the editor's next step.
func saveFailure(res autosave.Result) error {
	var violations []validate.Violation
	for _, f := range res.Failed {
		if !engine.IsValidation(f.Err) {
			return f.Err
		}
		for _, v := range engine.ViolationsOf(f.Err) {
			v.Path = f.Key.String() + ":" + v.Path
			violations = append(violations, v)
		}
	}
	return &engine.Error{
		Code:       engine.ErrCodeValidation,
		Message:    fmt.Sprintf("%d validation error(s)", len(violations)),
		Violations: violations,
	}
}

func pendingKeys(sess *autosave.Session) []autosave.Key {
	out := []autosave.Key{}
	for k := range sess.Pending() {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
