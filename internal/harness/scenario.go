package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dataver/internal/criteria"
	"github.com/roach88/dataver/internal/mapping"
	"github.com/roach88/dataver/internal/version"
)

// Scenario defines a versioning scenario.
// A scenario ingests data set definitions in order, drives versions
// through review and publication, and asserts on the resulting versions
// and query results.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are executed in order against a fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: version_status, live_version, version_count, resolves
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation of a scenario.
//
// Version ids are assigned in ingestion order: the first ingested version
// is "v-0001", the second "v-0002" and so on, whether or not the version
// survives.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// DataSet names the definition to ingest (ingest) or the data set id
	// to query (query).
	DataSet string `yaml:"dataset,omitempty"`

	// Version is the version id the step acts on.
	Version string `yaml:"version,omitempty"`

	// Label selects the version to query: "latest", "1.2" or "1.*".
	Label string `yaml:"label,omitempty"`

	// Patch republishes an unchanged ingestion as a patch.
	Patch bool `yaml:"patch,omitempty"`

	// Reason is recorded by cancel and deprecate.
	Reason string `yaml:"reason,omitempty"`

	// Map lists mapping decisions as "kind:source=target".
	Map []string `yaml:"map,omitempty"`

	// Query is the request of a query step.
	Query *criteria.Request `yaml:"query,omitempty"`

	// Expect is checked against the step outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step. Empty fields are not
// checked.
type Expect struct {
	// Error is the expected error code. A step that expects an error
	// fails when it succeeds.
	Error string `yaml:"error,omitempty"`

	Number  string `yaml:"number,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Bump    string `yaml:"bump,omitempty"`
	Blocked *bool  `yaml:"blocked,omitempty"`

	// Reasons must each appear among the decision's reasons.
	Reasons []string `yaml:"reasons,omitempty"`

	// Version is the id a query resolved to.
	Version string `yaml:"version,omitempty"`

	// Total is the number of rows matching a query.
	Total *int `yaml:"total,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "version_status": version Version has Status
	// - "live_version": data set DataSet's live version is Version ("" for none)
	// - "version_count": data set DataSet has Count stored versions
	// - "resolves": Label of data set DataSet resolves to Version
	Type string `yaml:"type"`

	DataSet string `yaml:"dataset,omitempty"`
	Version string `yaml:"version,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Label   string `yaml:"label,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// Step action constants.
const (
	ActionIngest    = "ingest"
	ActionChanges   = "changes"
	ActionResolve   = "resolve"
	ActionPublish   = "publish"
	ActionCancel    = "cancel"
	ActionDeprecate = "deprecate"
	ActionQuery     = "query"
)

// Assertion type constants.
const (
	AssertVersionStatus = "version_status"
	AssertLiveVersion   = "live_version"
	AssertVersionCount  = "version_count"
	AssertResolves      = "resolves"
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

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	switch step.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case ActionIngest:
		if step.DataSet == "" {
			return fmt.Errorf("steps[%d]: dataset is required for ingest", index)
		}
	case ActionChanges, ActionPublish, ActionCancel, ActionDeprecate:
		if step.Version == "" {
			return fmt.Errorf("steps[%d]: version is required for %s", index, step.Action)
		}
	case ActionResolve:
		if step.Version == "" {
			return fmt.Errorf("steps[%d]: version is required for resolve", index)
		}
		if len(step.Map) == 0 {
			return fmt.Errorf("steps[%d]: map is required for resolve", index)
		}
		for _, m := range step.Map {
			if _, err := mapping.ParseResolution(m); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
	case ActionQuery:
		if step.DataSet == "" {
			return fmt.Errorf("steps[%d]: dataset is required for query", index)
		}
		if step.Query == nil {
			return fmt.Errorf("steps[%d]: query is required for query", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}

	if e := step.Expect; e != nil && e.Number != "" {
		if _, err := version.Parse(e.Number); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", index, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertVersionStatus:
		if a.Version == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: version and status are required for version_status", index)
		}
	case AssertLiveVersion:
		if a.DataSet == "" {
			return fmt.Errorf("assertions[%d]: dataset is required for live_version", index)
		}
	case AssertVersionCount:
		if a.DataSet == "" {
			return fmt.Errorf("assertions[%d]: dataset is required for version_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for version_count", index)
		}
	case AssertResolves:
		if a.DataSet == "" || a.Label == "" {
			return fmt.Errorf("assertions[%d]: dataset and label are required for resolves", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
