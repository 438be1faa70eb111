// Package api exposes the CMS over HTTP.
//
// Public routes serve the resolved site content and accept contact form
// posts. Admin routes under /api/admin need an X-User-ID header from the
// identity proxy; roles are checked by the operations themselves.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/contact"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/ids"
	"github.com/roach88/sitecms/internal/media"
	"github.com/roach88/sitecms/internal/resolve"
)

const (
	apiBasePath   = "/api"
	adminBasePath = "/admin"
	mediaBasePath = "/media"
)

// Server wires HTTP routes to the engine and its companions.
type Server struct {
	engine     *engine.Engine
	resolver   *resolve.Resolver
	sessions   *autosave.Registry
	media      *media.Service
	contact    *contact.Form
	identities *auth.Resolver
	logger     *slog.Logger
	mediaDir   string
	timeout    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithResolver sets the public content resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithSessions sets the autosave session registry.
func WithSessions(reg *autosave.Registry) Option {
	return func(s *Server) { s.sessions = reg }
}

// WithMedia enables the media routes.
func WithMedia(m *media.Service) Option {
	return func(s *Server) { s.media = m }
}

// WithMediaDir serves uploaded files from dir under /media.
func WithMediaDir(dir string) Option {
	return func(s *Server) { s.mediaDir = dir }
}

// WithContact sets the contact form.
func WithContact(f *contact.Form) Option {
	return func(s *Server) { s.contact = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTimeout bounds each request.
//
// Default: 60s
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a Server for eng. Companions that are not supplied get
// defaults built on the engine's store, except media, whose routes are
// only mounted when configured.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:     eng,
		identities: auth.NewResolver(eng.Store()),
		logger:     slog.Default(),
		timeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolve.New(eng.Store(), resolve.WithRegistry(eng.Registry()), resolve.WithLogger(s.logger))
	}
	if s.sessions == nil {
		s.sessions = autosave.NewRegistry(eng, ids.UUIDv7{}, autosave.WithLogger(s.logger))
	}
	if s.contact == nil {
		s.contact = contact.NewForm(contact.LogMailer{Logger: s.logger}, contact.WithLogger(s.logger))
	}
	return s
}

// Sessions returns the autosave registry, e.g. to flush it on shutdown.
func (s *Server) Sessions() *autosave.Registry {
	return s.sessions
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.handle(s.handleHealth))

	if s.mediaDir != "" {
		fs := http.StripPrefix(mediaBasePath+"/", http.FileServer(http.Dir(s.mediaDir)))
		r.Handle(mediaBasePath+"/*", fs)
	}

	r.Route(apiBasePath, func(r chi.Router) {
		r.Get("/content", s.handle(s.handleContent))
		r.Post("/contact", s.handle(s.handleContact))

		r.Route(adminBasePath, func(r chi.Router) {
			r.Use(s.identify)
			r.Get("/me", s.handle(s.handleMe))
			configureSectionRoutes(r, s)
			configureRevisionRoutes(r, s)
			configureSessionRoutes(r, s)
			configureMediaRoutes(r, s)
			configureThemeRoutes(r, s)
			configureUserRoutes(r, s)
		})
	})
	return r
}

func configureSectionRoutes(r chi.Router, s *Server) {
	r.Route("/sections", func(r chi.Router) {
		r.Get("/", s.handle(s.handleListSections))
		r.Route("/{section}", func(r chi.Router) {
			r.Get("/", s.handle(s.handleGetSection))
			r.Post("/publish", s.handle(s.handlePublish))
			r.Route("/{key}", func(r chi.Router) {
				r.Put("/", s.handle(s.handleSave))
				r.Delete("/", s.handle(s.handleReset))
				r.Post("/validate", s.handle(s.handleValidate))
				r.Post("/publish", s.handle(s.handlePublish))
				r.Post("/schedule", s.handle(s.handleSchedule))
			})
		})
	})
}

func configureRevisionRoutes(r chi.Router, s *Server) {
	r.Get("/items/{id}/revisions", s.handle(s.handleRevisions))
	r.Post("/revisions/{id}/rollback", s.handle(s.handleRollback))
}

func configureSessionRoutes(r chi.Router, s *Server) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handle(s.handleOpenSession))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handle(s.handleGetSession))
			r.Delete("/", s.handle(s.handleCloseSession))
			r.Put("/edits", s.handle(s.handleEdit))
			r.Post("/save", s.handle(s.handleSessionSave))
			r.Post("/flush", s.handle(s.handleSessionFlush))
		})
	})
}

func configureMediaRoutes(r chi.Router, s *Server) {
	if s.media == nil {
		return
	}
	r.Route("/media", func(r chi.Router) {
		r.Get("/", s.handle(s.handleListMedia))
		r.Post("/", s.handle(s.handleUpload))
		r.Get("/{id}", s.handle(s.handleGetMedia))
	})
}

func configureThemeRoutes(r chi.Router, s *Server) {
	r.Route("/themes", func(r chi.Router) {
		r.Get("/", s.handle(s.handleListThemes))
		r.Put("/{name}", s.handle(s.handleSaveTheme))
		r.Post("/{name}/activate", s.handle(s.handleActivateTheme))
	})
}

func configureUserRoutes(r chi.Router, s *Server) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handle(s.handleListUsers))
		r.Put("/{userID}/role", s.handle(s.handleGrantRole))
		r.Delete("/{userID}/role", s.handle(s.handleRevokeRole))
	})
}

// logRequests logs each request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
