package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sitecms/internal/api"
	"github.com/roach88/sitecms/internal/autosave"
	"github.com/roach88/sitecms/internal/contact"
	"github.com/roach88/sitecms/internal/ids"
	"github.com/roach88/sitecms/internal/media"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the public content endpoint and the editor API.

Pending autosave edits are flushed and queued media jobs drained on
shutdown (SIGINT or SIGTERM).

Example:
  sitecms serve --config sitecms.yaml
  sitecms serve --db ./site.db --listen :9000 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.Listen != "" {
				a.cfg.Listen = opts.Listen
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ln, err := net.Listen("tcp", a.cfg.Listen)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to listen", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", ln.Addr())
			if err := newServer(a).run(ctx, ln); err != nil {
				return WrapExitError(ExitFailure, "server error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}

// server is the assembled HTTP stack with its background workers.
type server struct {
	app   *app
	api   *api.Server
	media *media.Service
}

func newServer(a *app) *server {
	cfg := a.cfg
	logger := a.logger

	mediaOpts := []media.Option{media.WithLogger(logger), media.WithMaxBytes(cfg.MaxUploadBytes)}
	if cfg.OptimizerURL != "" {
		mediaOpts = append(mediaOpts, media.WithOptimizer(media.NewHTTPOptimizer(cfg.OptimizerURL)))
	}
	blobs := media.NewLocalBlobStore(cfg.MediaDir, cfg.MediaBaseURL)
	mediaSvc := media.NewService(a.store, blobs, mediaOpts...)

	var mailer contact.Mailer = contact.LogMailer{Logger: logger}
	if cfg.MailRelayURL != "" {
		mailer = contact.WebhookMailer{URL: cfg.MailRelayURL, Token: cfg.MailRelayToken}
	}
	form := contact.NewForm(mailer, contact.WithServices(cfg.ContactServices...), contact.WithLogger(logger))

	sessions := autosave.NewRegistry(a.engine, ids.UUIDv7{},
		autosave.WithIdleDelay(cfg.AutosaveIdle.Std()),
		autosave.WithLogger(logger))

	return &server{
		app:   a,
		media: mediaSvc,
		api: api.NewServer(a.engine,
			api.WithResolver(a.resolver),
			api.WithSessions(sessions),
			api.WithMedia(mediaSvc),
			api.WithMediaDir(cfg.MediaDir),
			api.WithContact(form),
			api.WithLogger(logger)),
	}
}

// run serves on ln until ctx is done, then shuts down: stop accepting
// requests, flush autosave sessions, drain media jobs.
func (s *server) run(ctx context.Context, ln net.Listener) error {
	logger := s.app.logger
	httpServer := &http.Server{
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if n, err := s.media.Requeue(context.WithoutCancel(ctx)); err != nil {
		logger.Error("could not requeue pending media", "error", err)
	} else if n > 0 {
		logger.Info("requeued pending media", "count", n)
	}

	mediaDone := make(chan error, 1)
	go func() {
		mediaDone <- s.media.Run(context.WithoutCancel(ctx))
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", ln.Addr().String(), "db", s.app.cfg.Database)
		serveErr <- httpServer.Serve(ln)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := s.api.Sessions().CloseAll(shutdownCtx); err != nil {
		logger.Error("autosave flush on shutdown failed", "error", err)
	}

	s.media.Close()
	select {
	case err := <-mediaDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("media worker stopped with error", "error", err)
		}
	case <-shutdownCtx.Done():
		logger.Warn("media worker did not drain before timeout", "queued", s.media.Queued())
	}

	logger.Info("server stopped")
	return runErr
}
