// Package contact validates public contact form submissions and hands
// them to a Mailer.
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/sitecms/internal/validate"
)

// Field limits, in characters.
const (
	MaxNameLength    = 100
	MaxPhoneLength   = 30
	MaxMessageLength = 2000
)

// Submission is one contact form post.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Service string `json:"service,omitempty"`
	Message string `json:"message"`
}

// ValidationError lists every problem with a submission.
type ValidationError struct {
	Violations []validate.Violation
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(validate.Messages(e.Violations), "; ")
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Mailer delivers a submission to the site owner.
type Mailer interface {
	Send(ctx context.Context, s Submission) error
}

var plainText = bluemonday.StrictPolicy()

// Form validates submissions against a closed list of services.
type Form struct {
	mailer   Mailer
	services []string
	logger   *slog.Logger
}

// Option configures a Form.
type Option func(*Form)

// WithServices sets the accepted values of Submission.Service. With no
// list any service name is accepted.
func WithServices(services ...string) Option {
	return func(f *Form) { f.services = services }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Form) { f.logger = l }
}

// NewForm creates a Form delivering through m.
func NewForm(m Mailer, opts ...Option) *Form {
	f := &Form{mailer: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Services returns the accepted service names.
func (f *Form) Services() []string {
	return append([]string(nil), f.services...)
}

// Clean trims whitespace and strips markup.
func Clean(s Submission) Submission {
	clean := func(v string) string {
		return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(v)))
	}
	return Submission{
		Name:    clean(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Phone:   clean(s.Phone),
		Service: clean(s.Service),
		Message: clean(s.Message),
	}
}

// Validate returns every problem with s. It expects a cleaned submission.
func (f *Form) Validate(s Submission) []validate.Violation {
	var out []validate.Violation
	add := func(path, msg string) {
		out = append(out, validate.Violation{Path: path, Message: msg})
	}

	switch {
	case s.Name == "":
		add("name", "Name is required")
	case utf8.RuneCountInString(s.Name) > MaxNameLength:
		add("name", fmt.Sprintf("Name must be at most %d characters", MaxNameLength))
	}

	if s.Email == "" {
		add("email", "Email is required")
	} else if !validEmail(s.Email) {
		add("email", "Email must be a valid address")
	}

	if utf8.RuneCountInString(s.Phone) > MaxPhoneLength {
		add("phone", fmt.Sprintf("Phone must be at most %d characters", MaxPhoneLength))
	}

	if s.Service != "" && len(f.services) > 0 && !contains(f.services, s.Service) {
		add("service", "Service must be one of: "+strings.Join(f.services, ", "))
	}

	switch {
	case s.Message == "":
		add("message", "Message is required")
	case utf8.RuneCountInString(s.Message) > MaxMessageLength:
		add("message", fmt.Sprintf("Message must be at most %d characters", MaxMessageLength))
	}
	return out
}

// Submit cleans and validates s, then sends it.
func (f *Form) Submit(ctx context.Context, s Submission) error {
	s = Clean(s)
	if vs := f.Validate(s); len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	if err := f.mailer.Send(ctx, s); err != nil {
		f.logger.Error("contact submission not delivered", "email", s.Email, "error", err)
		return fmt.Errorf("send contact submission: %w", err)
	}
	f.logger.Info("contact submission sent", "email", s.Email, "service", s.Service)
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LogMailer records submissions in the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, s Submission) error {
	l := m.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("contact submission",
		"name", s.Name,
		"email", s.Email,
		"phone", s.Phone,
		"service", s.Service,
		"message", s.Message,
	)
	return nil
}

// WebhookMailer posts submissions as JSON to an email relay.
type WebhookMailer struct {
	URL    string
	Token  string
	Client *http.Client
}

func (m WebhookMailer) Send(ctx context.Context, s Submission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
