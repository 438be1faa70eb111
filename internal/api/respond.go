package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/contact"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/media"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

const contentTypeJSON = "application/json; charset=utf-8"

// maxJSONBody caps request bodies other than uploads.
const maxJSONBody = 1 << 20

// appHandler is an http handler that reports failure by returning an
// error instead of writing it.
type appHandler func(w http.ResponseWriter, r *http.Request) error

// httpError is an error with a status code and a message safe to show.
type httpError struct {
	Status     int
	Code       string
	Message    string
	Violations []validate.Violation
	cause      error
}

func (e *httpError) Error() string {
	return e.Message
}

func (e *httpError) Unwrap() error {
	return e.cause
}

func badRequest(format string, args ...any) *httpError {
	return &httpError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: fmt.Sprintf(format, args...)}
}

func notFound(message string) *httpError {
	return &httpError{Status: http.StatusNotFound, Code: string(engine.ErrCodeNotFound), Message: message}
}

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string               `json:"code"`
	Message    string               `json:"message"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

// handle adapts an appHandler, turning returned errors into JSON error
// responses.
func (s *Server) handle(h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		he := classify(err)

		level := slog.LevelWarn
		if he.Status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", he.Status,
			"code", he.Code,
			"error", err,
		)

		writeJSON(w, he.Status, errorBody{Error: errorDetail{
			Code:       he.Code,
			Message:    he.Message,
			Violations: he.Violations,
		}})
	}
}

// classify maps domain errors to HTTP responses.
func classify(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var ae *auth.Error
	if errors.As(err, &ae) {
		if ae.Unauthenticated() {
			return &httpError{Status: http.StatusUnauthorized, Code: string(engine.ErrCodeUnauthorized), Message: ae.Error(), cause: err}
		}
		return &httpError{Status: http.StatusForbidden, Code: string(engine.ErrCodeUnauthorized), Message: ae.Error(), cause: err}
	}

	var ee *engine.Error
	if errors.As(err, &ee) {
		out := &httpError{Code: string(ee.Code), Message: ee.Message, Violations: ee.Violations, cause: err}
		switch ee.Code {
		case engine.ErrCodeValidation:
			out.Status = http.StatusUnprocessableEntity
		case engine.ErrCodeNotFound:
			out.Status = http.StatusNotFound
		case engine.ErrCodeInvalidState:
			out.Status = http.StatusConflict
		case engine.ErrCodeStore:
			out.Status = http.StatusServiceUnavailable
		default:
			out.Status = http.StatusInternalServerError
		}
		return out
	}

	var ce *contact.ValidationError
	if errors.As(err, &ce) {
		return &httpError{
			Status:     http.StatusUnprocessableEntity,
			Code:       string(engine.ErrCodeValidation),
			Message:    fmt.Sprintf("%d validation error(s)", len(ce.Violations)),
			Violations: ce.Violations,
			cause:      err,
		}
	}

	var se *store.Error
	if errors.As(err, &se) {
		if store.IsNotFound(err) {
			return &httpError{Status: http.StatusNotFound, Code: string(engine.ErrCodeNotFound), Message: se.Message, cause: err}
		}
		return &httpError{Status: http.StatusServiceUnavailable, Code: string(engine.ErrCodeStore), Message: "could not reach the content store, please retry", cause: err}
	}

	switch {
	case errors.Is(err, media.ErrEmpty):
		return &httpError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "file is empty", cause: err}
	case errors.Is(err, media.ErrTooLarge):
		return &httpError{Status: http.StatusRequestEntityTooLarge, Code: "TOO_LARGE", Message: err.Error(), cause: err}
	case errors.Is(err, media.ErrUnsupportedType):
		return &httpError{Status: http.StatusUnsupportedMediaType, Code: "UNSUPPORTED_TYPE", Message: err.Error(), cause: err}
	case errors.Is(err, autosave.ErrClosed):
		return &httpError{Status: http.StatusConflict, Code: string(engine.ErrCodeInvalidState), Message: "editing session is closed", cause: err}
	}

	return &httpError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal server error", cause: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
