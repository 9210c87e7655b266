package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/formforge/internal/session"
)

// Scenario is a scripted sequence of form-builder operations.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against one database.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpSave    = "save"
	OpRebuild = "rebuild"
	OpDelete  = "delete"
)

// Step is one operation on a form.
type Step struct {
	Op string `yaml:"op"`

	// Form is the scenario-local handle of the form. The first save of a
	// handle creates the form.
	Form string `yaml:"form"`

	// Name is the form name; required when a save creates the form.
	Name string `yaml:"name,omitempty"`

	// Session is the snapshot a save commits, in session file format.
	// Kept as a node so entry order survives decoding.
	Session yaml.Node `yaml:"session,omitempty"`

	// Expect is checked after the step. If nil, the step must succeed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected outcome of a step.
type StepExpect struct {
	// Error is the expected error code; empty means success.
	Error string `yaml:"error,omitempty"`

	// Fields are the expected field aliases after a save, in order.
	Fields []string `yaml:"fields,omitempty"`

	// Columns are the expected results-table columns after the step.
	Columns []string `yaml:"columns,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Form is the form handle (all types but form_count).
	Form string `yaml:"form,omitempty"`

	// Expect lists the expected columns (columns).
	Expect []string `yaml:"expect,omitempty"`

	// Count is the expected number of forms (form_count).
	Count int `yaml:"count,omitempty"`

	// Action is the 1-based action position (mapped_field).
	Action int `yaml:"action,omitempty"`

	// Mapping is the mappedFields key (mapped_field).
	Mapping string `yaml:"mapping,omitempty"`

	// Field is the alias the mapping must resolve to (mapped_field).
	Field string `yaml:"field,omitempty"`
}

// Assertion type constants.
const (
	AssertColumns     = "columns"
	AssertTableExists = "table_exists"
	AssertTableAbsent = "table_absent"
	AssertFormCount   = "form_count"
	AssertMappedField = "mapped_field"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// snapshot decodes the step's session. An absent session is empty.
func (s *Step) snapshot() (*session.Snapshot, error) {
	if s.Session.Kind == 0 {
		return &session.Snapshot{}, nil
	}
	data, err := yaml.Marshal(&s.Session)
	if err != nil {
		return nil, err
	}
	return session.DecodeYAML(data)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	known := make(map[string]bool)
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Form == "" {
			return fmt.Errorf("steps[%d]: form is required", i)
		}
		switch step.Op {
		case OpSave:
			if !known[step.Form] && step.Name == "" {
				return fmt.Errorf("steps[%d]: name is required for the first save of %q", i, step.Form)
			}
			if _, err := step.snapshot(); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		case OpRebuild, OpDelete:
			if step.Session.Kind != 0 {
				return fmt.Errorf("steps[%d]: session is only valid for save", i)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		known[step.Form] = true
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertColumns:
		if a.Form == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: form and expect are required for columns", index)
		}
	case AssertTableExists, AssertTableAbsent:
		if a.Form == "" {
			return fmt.Errorf("assertions[%d]: form is required for %s", index, a.Type)
		}
	case AssertFormCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for form_count", index)
		}
	case AssertMappedField:
		if a.Form == "" || a.Action < 1 || a.Mapping == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: form, action, mapping and field are required for mapped_field", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
