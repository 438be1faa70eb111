package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/sitecms/internal/store"
)

// Job asks the optimizer to produce web renditions of an upload.
type Job struct {
	MediaID     string `json:"media_id"`
	StoragePath string `json:"storage_path"`
	MimeType    string `json:"mime_type"`

	// skip names why the job is recorded as skipped without calling the
	// optimizer, e.g. "svg".
	skip string
}

// Outcome is the terminal result of a Job. Status is one of
// store.OptimizationOptimized, store.OptimizationSkipped or
// store.OptimizationFailed.
type Outcome struct {
	Status       string `json:"status"`
	OptimizedURL string `json:"optimized_url,omitempty"`
	WebPURL      string `json:"webp_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (o Outcome) record() store.MediaOptimization {
	return store.MediaOptimization{
		Status:       o.Status,
		OptimizedURL: o.OptimizedURL,
		WebPURL:      o.WebPURL,
		Error:        o.Error,
	}
}

// Optimizer produces compressed and WebP renditions of stored images.
type Optimizer interface {
	Optimize(ctx context.Context, job Job) (Outcome, error)
}

// HTTPOptimizer calls a remote image optimization function with a JSON
// POST of the Job and decodes an Outcome from the response.
type HTTPOptimizer struct {
	url    string
	client *http.Client
}

// HTTPOption configures an HTTPOptimizer.
type HTTPOption func(*HTTPOptimizer)

// WithHTTPClient sets the client used for requests.
//
// Default: a client with a 2 minute timeout
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOptimizer) { o.client = c }
}

// NewHTTPOptimizer creates an optimizer posting to url.
func NewHTTPOptimizer(url string, opts ...HTTPOption) *HTTPOptimizer {
	o := &HTTPOptimizer{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *HTTPOptimizer) Optimize(ctx context.Context, job Job) (Outcome, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode optimize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build optimize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("call optimizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Outcome{}, fmt.Errorf("optimizer returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Outcome{}, fmt.Errorf("decode optimize response: %w", err)
	}
	return out, nil
}

// terminal normalizes an optimizer result into a recordable outcome.
func terminal(out Outcome, err error) Outcome {
	if err != nil {
		return Outcome{Status: store.OptimizationFailed, Error: err.Error()}
	}
	switch out.Status {
	case store.OptimizationOptimized:
		if out.OptimizedURL == "" && out.WebPURL == "" {
			return Outcome{Status: store.OptimizationFailed, Error: "optimizer reported success without renditions"}
		}
		return Outcome{Status: out.Status, OptimizedURL: out.OptimizedURL, WebPURL: out.WebPURL}
	case store.OptimizationSkipped:
		return Outcome{Status: out.Status, Error: out.Error}
	case store.OptimizationFailed:
		if out.Error == "" {
			out.Error = "optimization failed"
		}
		return Outcome{Status: out.Status, Error: out.Error}
	default:
		return Outcome{Status: store.OptimizationFailed, Error: fmt.Sprintf("optimizer returned unknown status %q", out.Status)}
	}
}
