package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/roach88/sitecms/internal/auth"
)

// HeaderUserID carries the user id set by the fronting identity proxy.
const HeaderUserID = "X-User-ID"

type identityKey struct{}

// IdentityFrom returns the identity attached by the identity middleware.
// Requests without one are anonymous.
func IdentityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

// identify resolves HeaderUserID into an auth.Identity for the rest of the
// chain. Role checks happen in the operations, not here.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		id, err := s.identities.Resolve(r.Context(), userID)
		if err != nil {
			s.handle(func(http.ResponseWriter, *http.Request) error {
				return &httpError{
					Status:  http.StatusServiceUnavailable,
					Code:    "STORE_FAILURE",
					Message: "could not check permissions, please retry",
					cause:   err,
				}
			})(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}
