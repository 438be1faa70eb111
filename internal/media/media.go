// Package media stores uploaded images and back-fills optimized
// renditions.
//
// Upload sniffs the real content type, probes dimensions, writes the bytes
// to a BlobStore and records a pending media row. Optimization runs later
// on the Run loop: each job ends in exactly one terminal state (optimized,
// skipped or failed) and the site falls back to the original file until
// then, see store.Media.BestURL.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/ids"
	"github.com/roach88/sitecms/internal/store"
)

// DefaultMaxBytes caps the size of one upload.
const DefaultMaxBytes = 10 << 20

// DefaultFolder is used when an upload names no folder.
const DefaultFolder = "general"

var (
	// ErrEmpty is returned for a zero-byte upload.
	ErrEmpty = errors.New("media: file is empty")

	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("media: file is too large")

	// ErrUnsupportedType is returned for anything but JPEG, PNG, GIF, WebP
	// and SVG images.
	ErrUnsupportedType = errors.New("media: unsupported file type")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml"}

var folderPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Store is the subset of *store.Store the service uses.
type Store interface {
	InsertMedia(ctx context.Context, m store.Media) (store.Media, error)
	GetMedia(ctx context.Context, id string) (store.Media, error)
	ListMedia(ctx context.Context, folder string) ([]store.Media, error)
	ListPendingMedia(ctx context.Context) ([]store.Media, error)
	SetMediaOptimization(ctx context.Context, id string, o store.MediaOptimization) error
}

// Upload is one file submitted by an editor.
type Upload struct {
	Filename string
	Folder   string
	AltText  string
	Body     io.Reader
}

// Service handles uploads and their optimization back-fill.
type Service struct {
	store      Store
	blobs      BlobStore
	optimizer  Optimizer
	ids        ids.Generator
	logger     *slog.Logger
	maxBytes   int64
	jobTimeout time.Duration
	queue      *jobQueue
}

// Option configures a Service.
type Option func(*Service)

// WithOptimizer sets the optimizer. Without one, every job is recorded as
// skipped.
func WithOptimizer(o Optimizer) Option {
	return func(s *Service) { s.optimizer = o }
}

// WithIDGenerator sets the generator for blob names.
//
// Default: ids.UUIDv7{}
func WithIDGenerator(g ids.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxBytes sets the upload size limit.
//
// Default: DefaultMaxBytes (10 MiB)
func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithJobTimeout bounds a single optimizer call.
//
// Default: 2m
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// NewService creates a media service.
func NewService(st Store, blobs BlobStore, opts ...Option) *Service {
	s := &Service{
		store:      st,
		blobs:      blobs,
		ids:        ids.UUIDv7{},
		logger:     slog.Default(),
		maxBytes:   DefaultMaxBytes,
		jobTimeout: 2 * time.Minute,
		queue:      newJobQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores the file and queues its optimization. The returned row is
// pending; its BestURL is the original file.
func (s *Service) Upload(ctx context.Context, id auth.Identity, up Upload) (store.Media, error) {
	if err := auth.RequireEditor(id); err != nil {
		return store.Media{}, err
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, s.maxBytes+1))
	if err != nil {
		return store.Media{}, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return store.Media{}, ErrEmpty
	case int64(len(data)) > s.maxBytes:
		return store.Media{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}

	mime := mimetype.Detect(data)
	if !mimetype.EqualsAny(mime.String(), allowedTypes...) {
		return store.Media{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}
	mimeType := baseType(mime.String())

	folder := up.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	if !folderPattern.MatchString(folder) {
		return store.Media{}, fmt.Errorf("invalid folder %q", up.Folder)
	}

	relPath := path.Join(folder, s.ids.Generate()+mime.Extension())
	url, err := s.blobs.Put(ctx, relPath, data)
	if err != nil {
		return store.Media{}, fmt.Errorf("store upload: %w", err)
	}

	width, height := dimensions(data)
	m, err := s.store.InsertMedia(ctx, store.Media{
		Filename:    displayName(up.Filename, relPath),
		StoragePath: relPath,
		OriginalURL: url,
		AltText:     strings.TrimSpace(up.AltText),
		MimeType:    mimeType,
		SizeBytes:   int64(len(data)),
		Width:       width,
		Height:      height,
		Folder:      folder,
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, relPath); derr != nil {
			s.logger.Warn("orphaned upload", "path", relPath, "error", derr)
		}
		return store.Media{}, err
	}

	job := Job{MediaID: m.ID, StoragePath: relPath, MimeType: mimeType, skip: skipReason(mimeType, data)}
	if !s.queue.Enqueue(job) {
		s.logger.Warn("optimization queue closed, media stays pending", "media", m.ID)
	}

	s.logger.Info("media uploaded",
		"media", m.ID,
		"user", id.UserID,
		"mime", mimeType,
		"bytes", m.SizeBytes,
	)
	return m, nil
}

// Get returns one media row.
func (s *Service) Get(ctx context.Context, id string) (store.Media, error) {
	return s.store.GetMedia(ctx, id)
}

// List returns media newest first, optionally limited to a folder.
func (s *Service) List(ctx context.Context, folder string) ([]store.Media, error) {
	return s.store.ListMedia(ctx, folder)
}

// Requeue queues a job for every media row still pending, oldest first.
// The queue lives in memory, so rows uploaded before a restart would
// otherwise stay pending forever. It returns how many jobs were queued.
func (s *Service) Requeue(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingMedia(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range pending {
		data, err := s.blobs.Get(ctx, m.StoragePath)
		if err != nil {
			s.logger.Warn("pending media original unreadable", "media", m.ID, "error", err)
		}
		job := Job{MediaID: m.ID, StoragePath: m.StoragePath, MimeType: m.MimeType, skip: skipReason(m.MimeType, data)}
		if !s.queue.Enqueue(job) {
			return n, fmt.Errorf("requeue media %s: queue closed", m.ID)
		}
		n++
	}
	return n, nil
}

// Queued returns the number of jobs waiting for Run.
func (s *Service) Queued() int {
	return s.queue.Len()
}

// Run processes optimization jobs until ctx is cancelled or Close is
// called.
func (s *Service) Run(ctx context.Context) error {
	for {
		s.ProcessPending(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-s.queue.Wait():
			if !ok {
				s.ProcessPending(ctx)
				return nil
			}
		}
	}
}

// ProcessPending runs every queued job now and returns how many ran.
func (s *Service) ProcessPending(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		job, ok := s.queue.TryDequeue()
		if !ok {
			break
		}
		s.process(ctx, job)
		n++
	}
	return n
}

// Close stops accepting jobs. Run drains what is queued and returns.
func (s *Service) Close() {
	s.queue.Close()
}

func (s *Service) process(ctx context.Context, job Job) {
	var out Outcome
	switch {
	case job.skip != "":
		out = Outcome{Status: store.OptimizationSkipped}
	case s.optimizer == nil:
		out = Outcome{Status: store.OptimizationSkipped, Error: "optimizer not configured"}
	default:
		jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
		out = terminal(s.optimizer.Optimize(jobCtx, job))
		cancel()
	}

	if err := s.store.SetMediaOptimization(ctx, job.MediaID, out.record()); err != nil {
		s.logger.Error("could not record optimization", "media", job.MediaID, "error", err)
		return
	}

	attrs := []any{"media", job.MediaID, "status", out.Status}
	if job.skip != "" {
		attrs = append(attrs, "reason", job.skip)
	}
	if out.Status == store.OptimizationFailed {
		s.logger.Warn("media optimization failed", append(attrs, "error", out.Error)...)
		return
	}
	s.logger.Info("media optimized", attrs...)
}

// skipReason reports why an upload is not worth optimizing.
func skipReason(mimeType string, data []byte) string {
	switch mimeType {
	case "image/svg+xml":
		return "svg"
	case "image/gif":
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err == nil && len(g.Image) > 1 {
			return "animated gif"
		}
	}
	return ""
}

// dimensions probes raster images. Formats without a registered decoder
// (WebP, SVG) report zero.
func dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func displayName(filename, relPath string) string {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return path.Base(relPath)
	}
	return name
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}
