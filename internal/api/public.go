package api

import (
	"net/http"

	"github.com/roach88/sitecms/internal/contact"
)

// handleContent serves the resolved public tree. It never fails: a store
// outage yields defaults with warnings.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) error {
	res := s.resolver.Resolve(r.Context())
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) error {
	var sub contact.Submission
	if err := decodeJSON(r, &sub); err != nil {
		return err
	}
	if err := s.contact.Submit(r.Context(), sub); err != nil {
		if contact.IsValidation(err) {
			return err
		}
		return &httpError{
			Status:  http.StatusBadGateway,
			Code:    "DELIVERY_FAILED",
			Message: "your message could not be sent, please try again later",
			cause:   err,
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		return &httpError{Status: http.StatusServiceUnavailable, Code: "STORE_FAILURE", Message: "store unavailable", cause: err}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}
