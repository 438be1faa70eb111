package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/media"
	"github.com/roach88/sitecms/internal/store"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	id := IdentityFrom(r.Context())
	if err := auth.RequireEditor(id); err != nil {
		return err
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return badRequest("invalid upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return badRequest("file is required")
	}
	defer file.Close()

	m, err := s.media.Upload(r.Context(), id, media.Upload{
		Filename: header.Filename,
		Folder:   r.FormValue("folder"),
		AltText:  r.FormValue("alt_text"),
		Body:     file,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, m)
	return nil
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) error {
	if err := auth.RequireEditor(IdentityFrom(r.Context())); err != nil {
		return err
	}
	list, err := s.media.List(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) error {
	if err := auth.RequireEditor(IdentityFrom(r.Context())); err != nil {
		return err
	}
	m, err := s.media.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct {
		store.Media
		BestURL string `json:"best_url"`
	}{m, m.BestURL()})
	return nil
}

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) error {
	themes, err := s.engine.Themes(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, themes)
	return nil
}

type themeRequest struct {
	Colors map[string]string `json:"colors"`
}

func (s *Server) handleSaveTheme(w http.ResponseWriter, r *http.Request) error {
	var req themeRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	theme, err := s.engine.SaveTheme(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "name"), req.Colors)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, theme)
	return nil
}

func (s *Server) handleActivateTheme(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	if err := s.engine.ActivateTheme(r.Context(), IdentityFrom(r.Context()), name); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": name})
	return nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) error {
	roles, err := s.engine.Roles(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, roles)
	return nil
}

type roleRequest struct {
	Role auth.Role `json:"role"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) error {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	userID := chi.URLParam(r, "userID")
	if err := s.engine.GrantRole(r.Context(), IdentityFrom(r.Context()), userID, req.Role); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role": req.Role})
	return nil
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) error {
	removed, err := s.engine.RevokeRole(r.Context(), IdentityFrom(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": removed})
	return nil
}
