// Package config loads server settings from a YAML or JSONC file and
// SITECMS_* environment variables.
//
// Precedence, lowest first: Default, the file, the environment, then
// command-line flags applied by the caller.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SITECMS_"

// Config holds server settings.
type Config struct {
	Database        string   `yaml:"database" json:"database"`
	Listen          string   `yaml:"listen" json:"listen"`
	MediaDir        string   `yaml:"media_dir" json:"media_dir"`
	MediaBaseURL    string   `yaml:"media_base_url" json:"media_base_url"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	OptimizerURL    string   `yaml:"optimizer_url" json:"optimizer_url"`
	AutosaveIdle    Duration `yaml:"autosave_idle" json:"autosave_idle"`
	RevisionLimit   int      `yaml:"revision_limit" json:"revision_limit"`
	LogFormat       string   `yaml:"log_format" json:"log_format"`
	MailRelayURL    string   `yaml:"mail_relay_url" json:"mail_relay_url"`
	MailRelayToken  string   `yaml:"mail_relay_token" json:"mail_relay_token"`
	ContactServices []string `yaml:"contact_services" json:"contact_services"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Database:       "sitecms.db",
		Listen:         ":8080",
		MediaDir:       "media",
		MediaBaseURL:   "/media",
		MaxUploadBytes: 10 << 20,
		AutosaveIdle:   Duration(30 * time.Second),
		RevisionLimit:  20,
		LogFormat:      "text",
	}
}

// Duration is a time.Duration written as "30s" or "1m30s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.set(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load reads path over Default, applies the environment and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := c.Parse(data, filepath.Ext(path)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Parse decodes data over c. ext selects the format: ".json" and ".jsonc"
// are JSON with comments and trailing commas, anything else is YAML.
// Unknown keys are rejected.
func (c *Config) Parse(data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from SITECMS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("DATABASE", &c.Database)
	str("LISTEN", &c.Listen)
	str("MEDIA_DIR", &c.MediaDir)
	str("MEDIA_BASE_URL", &c.MediaBaseURL)
	str("OPTIMIZER_URL", &c.OptimizerURL)
	str("LOG_FORMAT", &c.LogFormat)
	str("MAIL_RELAY_URL", &c.MailRelayURL)
	str("MAIL_RELAY_TOKEN", &c.MailRelayToken)

	if v, ok := lookup(EnvPrefix + "AUTOSAVE_IDLE"); ok {
		if err := c.AutosaveIdle.set(v); err != nil {
			return fmt.Errorf("%sAUTOSAVE_IDLE: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup(EnvPrefix + "REVISION_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREVISION_LIMIT: %w", EnvPrefix, err)
		}
		c.RevisionLimit = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := lookup(EnvPrefix + "CONTACT_SERVICES"); ok {
		c.ContactServices = splitList(v)
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.MediaDir == "" {
		errs = append(errs, errors.New("media_dir is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	if c.AutosaveIdle.Std() < time.Second {
		errs = append(errs, fmt.Errorf("autosave_idle must be at least 1s, got %s", c.AutosaveIdle))
	}
	if c.RevisionLimit < 1 {
		errs = append(errs, errors.New("revision_limit must be at least 1"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
