package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/moments/internal/ir"
)

// Scenario defines a sequence of turns against one subject and the state
// expected afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the moment catalog (YAML or CUE), relative to the scenario file.
	Catalog string `yaml:"catalog"`

	// Subject defaults to "subject".
	Subject string `yaml:"subject,omitempty"`

	// Generators scripts outcomes per artifact id.
	Generators map[string][]GeneratorOutcome `yaml:"generators,omitempty"`

	// Steps run in order. Each is a turn, a dismissal or a reset.
	Steps []Step `yaml:"steps"`

	// Assertions validate final subject state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// GeneratorOutcome is one scripted generator response. Exactly one field is set.
type GeneratorOutcome struct {
	Content map[string]any `yaml:"content,omitempty"`
	Error   string         `yaml:"error,omitempty"`
	Panic   string         `yaml:"panic,omitempty"`
}

// Step is one interaction with the engine.
type Step struct {
	// Advance moves the wall clock forward before the step (e.g. "90s").
	Advance string `yaml:"advance,omitempty"`

	// Turn is the turn context. A present map, even empty, makes this a turn.
	Turn map[string]any `yaml:"turn,omitempty"`

	// Dismiss is a card instance id to dismiss.
	Dismiss string `yaml:"dismiss,omitempty"`
	// Cause is the dismissal cause: user (default) or action.
	Cause string `yaml:"cause,omitempty"`

	// Reset is an artifact id whose error state and attempts are cleared.
	Reset string `yaml:"reset,omitempty"`

	// Expect checks the turn result. Lists are compared exactly and in order.
	Expect *TurnExpect `yaml:"expect,omitempty"`
}

// TurnExpect is the expected result of a turn step. Nil lists are not checked.
type TurnExpect struct {
	Fired      []string `yaml:"fired,omitempty"`
	Generating []string `yaml:"generating,omitempty"`
	Created    []string `yaml:"created,omitempty"`
	Dismissed  []string `yaml:"dismissed,omitempty"`
	Visible    []string `yaml:"visible,omitempty"`
}

// Assertion validates final subject state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Artifact string         `yaml:"artifact,omitempty"`
	Status   string         `yaml:"status,omitempty"`
	Attempt  *int           `yaml:"attempt,omitempty"`
	Error    string         `yaml:"error,omitempty"`
	Content  map[string]any `yaml:"content,omitempty"`

	// Count is the expected attempt counter (attempts).
	Count *int `yaml:"count,omitempty"`

	Card      string `yaml:"card,omitempty"`
	Dismissed *bool  `yaml:"dismissed,omitempty"`

	// Cards is the expected visible card id order (visible).
	Cards []string `yaml:"cards,omitempty"`

	Action  string         `yaml:"action,omitempty"`
	Context map[string]any `yaml:"context,omitempty"`
	Expect  *bool          `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertArtifact = "artifact"
	AssertAttempts = "attempts"
	AssertCard     = "card"
	AssertVisible  = "visible"
	AssertFeasible = "feasible"
)

// DefaultSubject is used when a scenario names none.
const DefaultSubject = "subject"

// Kind reports what the step does.
func (s Step) Kind() string {
	switch {
	case s.Turn != nil:
		return "turn"
	case s.Dismiss != "":
		return "dismiss"
	case s.Reset != "":
		return "reset"
	}
	return ""
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Subject == "" {
		scenario.Subject = DefaultSubject
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
		return fmt.Errorf("catalog file not found: %s", s.Catalog)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for id, outcomes := range s.Generators {
		for i, o := range outcomes {
			set := 0
			for _, present := range []bool{o.Content != nil, o.Error != "", o.Panic != ""} {
				if present {
					set++
				}
			}
			if set != 1 {
				return fmt.Errorf("generators.%s[%d]: exactly one of content, error, panic is required", id, i)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	kinds := 0
	if s.Turn != nil {
		kinds++
	}
	if s.Dismiss != "" {
		kinds++
	}
	if s.Reset != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of turn, dismiss, reset is required", index)
	}

	if s.Advance != "" {
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}

	switch ir.DismissCause(s.Cause) {
	case "", ir.DismissUser, ir.DismissAction:
	default:
		return fmt.Errorf("steps[%d]: cause must be user or action, got %q", index, s.Cause)
	}
	if s.Cause != "" && s.Dismiss == "" {
		return fmt.Errorf("steps[%d]: cause is only valid with dismiss", index)
	}

	if s.Expect != nil && s.Turn == nil {
		return fmt.Errorf("steps[%d]: expect is only valid on turns", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertArtifact:
		if a.Artifact == "" {
			return fmt.Errorf("assertions[%d]: artifact is required for artifact", index)
		}
		if a.Status != "" && !ir.ArtifactStatus(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertAttempts:
		if a.Artifact == "" {
			return fmt.Errorf("assertions[%d]: artifact is required for attempts", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for attempts", index)
		}
	case AssertCard:
		if a.Card == "" {
			return fmt.Errorf("assertions[%d]: card is required for card", index)
		}
	case AssertVisible:
	case AssertFeasible:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for feasible", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for feasible", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
