package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the clock start for scenarios that do not set one.
var DefaultStart = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// Scenario defines a multi-replica ledger scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock time. Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Replicas names the independent devices. Each gets its own store.
	Replicas []string `yaml:"replicas"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Replica is the acting replica (add, sync).
	Replica string `yaml:"replica,omitempty"`

	// Transaction fields (add, remote_put). Date is YYYY-MM-DD.
	Amount   string `yaml:"amount,omitempty"`
	Merchant string `yaml:"merchant,omitempty"`
	Category string `yaml:"category,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Date     string `yaml:"date,omitempty"`

	// ID names the remote record (remote_put, remote_delete).
	ID string `yaml:"id,omitempty"`

	// Duration is how far to move the clock (advance), e.g. "1h".
	Duration string `yaml:"duration,omitempty"`

	// ExpectError, if set, requires the step to fail with an error whose
	// message contains it.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionAdd          = "add"
	ActionSync         = "sync"
	ActionOffline      = "offline"
	ActionOnline       = "online"
	ActionRemotePut    = "remote_put"
	ActionRemoteDelete = "remote_delete"
	ActionAdvance      = "advance"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Replica is the replica checked (balance, transaction_count,
	// contains, absent).
	Replica string `yaml:"replica,omitempty"`

	// Equals is the expected balance as a decimal string (balance).
	Equals string `yaml:"equals,omitempty"`

	// Count is the expected number of records (transaction_count,
	// remote_count).
	Count *int `yaml:"count,omitempty"`

	// ID is the record looked for (contains, absent).
	ID string `yaml:"id,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance          = "balance"
	AssertTransactionCount = "transaction_count"
	AssertContains         = "contains"
	AssertAbsent           = "absent"
	AssertRemoteCount      = "remote_count"
	AssertConverged        = "converged"
)

// dateLayout is the step date format.
const dateLayout = "2006-01-02"

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

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Start.IsZero() {
		scenario.Start = DefaultStart
	}
	scenario.Start = scenario.Start.UTC()
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, ordered by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	seen := make(map[string]bool)
	for i, name := range s.Replicas {
		if name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, name)
		}
		seen[name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step, s.Replicas); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.Replicas); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its action.
func validateStep(index int, st *Step, replicas []string) error {
	needReplica := func() error {
		if st.Replica == "" {
			return fmt.Errorf("steps[%d]: replica is required for %s", index, st.Action)
		}
		if !slices.Contains(replicas, st.Replica) {
			return fmt.Errorf("steps[%d]: unknown replica %q", index, st.Replica)
		}
		return nil
	}
	checkDate := func() error {
		if st.Date == "" {
			return nil
		}
		if _, err := time.Parse(dateLayout, st.Date); err != nil {
			return fmt.Errorf("steps[%d]: date %q must be YYYY-MM-DD", index, st.Date)
		}
		return nil
	}

	switch st.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case ActionAdd:
		if err := needReplica(); err != nil {
			return err
		}
		return checkDate()
	case ActionSync:
		return needReplica()
	case ActionOffline, ActionOnline:
		return nil
	case ActionRemotePut:
		if st.ID == "" || st.Amount == "" {
			return fmt.Errorf("steps[%d]: id and amount are required for remote_put", index)
		}
		return checkDate()
	case ActionRemoteDelete:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for remote_delete", index)
		}
	case ActionAdvance:
		d, err := time.ParseDuration(st.Duration)
		if err != nil || d <= 0 {
			return fmt.Errorf("steps[%d]: advance needs a positive duration, got %q", index, st.Duration)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, replicas []string) error {
	needReplica := func() error {
		if a.Replica == "" {
			return fmt.Errorf("assertions[%d]: replica is required for %s", index, a.Type)
		}
		if !slices.Contains(replicas, a.Replica) {
			return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
		}
		return nil
	}
	needCount := func() error {
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertBalance:
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for balance", index)
		}
		return needReplica()
	case AssertTransactionCount:
		if err := needReplica(); err != nil {
			return err
		}
		return needCount()
	case AssertContains, AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
		return needReplica()
	case AssertRemoteCount:
		return needCount()
	case AssertConverged:
		return nil
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
}
