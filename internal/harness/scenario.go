package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sitecms/internal/auth"
)

// DefaultStart is the fake clock's starting instant when a scenario does
// not set one.
var DefaultStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// DefaultUsers are granted before every scenario. Scenario users are
// added on top.
var DefaultUsers = map[string]auth.Role{
	"editor": auth.RoleEditor,
	"admin":  auth.RoleAdmin,
}

// Step operations.
const (
	OpSave        = "save"
	OpSaveDraft   = "save_draft"
	OpPublish     = "publish"
	OpSchedule    = "schedule"
	OpRollback    = "rollback"
	OpReset       = "reset"
	OpAdvance     = "advance"
	OpEdit        = "edit"
	OpSessionSave = "session_save"
	OpFlush       = "flush"
)

// Assertion types.
const (
	AssertResolved   = "resolved"
	AssertAbsent     = "absent"
	AssertState      = "state"
	AssertStored     = "stored"
	AssertRevisions  = "revisions"
	AssertTraceCount = "trace_count"
)

// Scenario is a scripted editing session run against a fresh store with
// a fake clock.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start sets the fake clock. Defaults to DefaultStart.
	Start *time.Time `yaml:"start,omitempty"`

	// Users maps extra user ids to roles.
	Users map[string]string `yaml:"users,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one editor action or clock movement.
type Step struct {
	Op string `yaml:"op"`

	// As is the acting user id. Defaults to "editor".
	As string `yaml:"as,omitempty"`

	Section string `yaml:"section,omitempty"`
	Key     string `yaml:"key,omitempty"`

	// Value is the content for save, save_draft and edit.
	Value any `yaml:"value,omitempty"`

	// In is the schedule offset from the current fake time.
	In time.Duration `yaml:"in,omitempty"`

	// By is how far advance moves the fake clock.
	By time.Duration `yaml:"by,omitempty"`

	// Revision picks the rollback target by position in the unit's
	// revision list, newest first.
	Revision *int `yaml:"revision,omitempty"`

	// RevisionID names the rollback target directly.
	RevisionID string `yaml:"revision_id,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Without it the step must succeed.
type Expect struct {
	// Error is the expected engine error code; empty means success.
	Error string `yaml:"error,omitempty"`

	// Violations must equal the validation messages, in order.
	Violations []string `yaml:"violations,omitempty"`

	// Detail must equal the trace detail.
	Detail *string `yaml:"detail,omitempty"`
}

// Assertion checks the state after the last step.
type Assertion struct {
	Type string `yaml:"type"`

	// Path is a dot-separated path into the public tree.
	Path string `yaml:"path,omitempty"`

	Section string `yaml:"section,omitempty"`
	Key     string `yaml:"key,omitempty"`

	Equals any    `yaml:"equals,omitempty"`
	State  string `yaml:"state,omitempty"`
	Count  *int   `yaml:"count,omitempty"`

	// Op and Outcome select trace events for trace_count.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}
	for user, role := range s.Users {
		if _, err := auth.ParseRole(role); err != nil {
			return fmt.Errorf("users[%s]: %w", user, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	needsUnit := func() error {
		if step.Section == "" || step.Key == "" {
			return fmt.Errorf("%s requires section and key", step.Op)
		}
		return nil
	}
	switch step.Op {
	case OpSave, OpSaveDraft, OpEdit:
		if err := needsUnit(); err != nil {
			return err
		}
		if step.Value == nil {
			return fmt.Errorf("%s requires value", step.Op)
		}
	case OpSchedule:
		if err := needsUnit(); err != nil {
			return err
		}
		if step.In == 0 {
			return fmt.Errorf("schedule requires in")
		}
	case OpPublish, OpReset:
		if step.Section == "" {
			return fmt.Errorf("%s requires section", step.Op)
		}
	case OpRollback:
		if step.RevisionID == "" {
			if err := needsUnit(); err != nil {
				return err
			}
			if step.Revision == nil {
				return fmt.Errorf("rollback requires revision or revision_id")
			}
		}
	case OpAdvance:
		if step.By <= 0 {
			return fmt.Errorf("advance requires a positive by")
		}
	case OpSessionSave, OpFlush:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertResolved:
		if a.Path == "" {
			return fmt.Errorf("resolved requires path")
		}
		if a.Equals == nil {
			return fmt.Errorf("resolved requires equals")
		}
	case AssertAbsent:
		if a.Path == "" {
			return fmt.Errorf("absent requires path")
		}
	case AssertState:
		if a.Section == "" || a.Key == "" || a.State == "" {
			return fmt.Errorf("state requires section, key and state")
		}
	case AssertStored:
		if a.Section == "" || a.Key == "" || a.Equals == nil {
			return fmt.Errorf("stored requires section, key and equals")
		}
	case AssertRevisions:
		if a.Section == "" || a.Key == "" || a.Count == nil {
			return fmt.Errorf("revisions requires section, key and count")
		}
	case AssertTraceCount:
		if a.Op == "" || a.Count == nil {
			return fmt.Errorf("trace_count requires op and count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
