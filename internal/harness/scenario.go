package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Setup Setup `yaml:"setup,omitempty"`

	// Flow is executed in order. Background drains are awaited after every
	// step, so the trace is deterministic.
	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Setup is the initial environment.
type Setup struct {
	// Online is the initial API reachability. Defaults to true.
	Online *bool `yaml:"online,omitempty"`

	// LoggedOut starts without a stored session.
	LoggedOut bool `yaml:"logged_out,omitempty"`

	// Pending records are appended to the queue before the flow starts.
	Pending []ScanStep `yaml:"pending,omitempty"`
}

// ScanStep is one scan.
type ScanStep struct {
	Operator  string `yaml:"operator"`
	Container string `yaml:"container"`
	Shipment  string `yaml:"shipment"`
}

// Response is one scripted API answer.
type Response struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
}

// LoginStep logs in against the scripted API.
type LoginStep struct {
	Surname  string `yaml:"surname"`
	Password string `yaml:"password"`
}

// FlowStep is one step of a scenario. Exactly one action field is set.
type FlowStep struct {
	Submit       *ScanStep  `yaml:"submit,omitempty"`
	Server       string     `yaml:"server,omitempty"`
	Respond      []Response `yaml:"respond,omitempty"`
	Connectivity string     `yaml:"connectivity,omitempty"`
	Sync         bool       `yaml:"sync,omitempty"`
	Login        *LoginStep `yaml:"login,omitempty"`
	Logout       bool       `yaml:"logout,omitempty"`
	Restart      bool       `yaml:"restart,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// action returns the name of the step's action, or "" if none or several
// are set.
func (s FlowStep) action() string {
	var names []string
	if s.Submit != nil {
		names = append(names, "submit")
	}
	if s.Server != "" {
		names = append(names, "server")
	}
	if len(s.Respond) > 0 {
		names = append(names, "respond")
	}
	if s.Connectivity != "" {
		names = append(names, "connectivity")
	}
	if s.Sync {
		names = append(names, "sync")
	}
	if s.Login != nil {
		names = append(names, "login")
	}
	if s.Logout {
		names = append(names, "logout")
	}
	if s.Restart {
		names = append(names, "restart")
	}
	if len(names) != 1 {
		return ""
	}
	return names[0]
}

// ExpectClause checks the outcome of a submit or sync step.
type ExpectClause struct {
	// Result is the expected intake result kind (submit steps).
	Result string `yaml:"result,omitempty"`

	// Synced, Quarantined, Remaining and Stopped check the drain report
	// (sync steps). nil means unchecked.
	Synced      *int   `yaml:"synced,omitempty"`
	Quarantined *int   `yaml:"quarantined,omitempty"`
	Remaining   *int   `yaml:"remaining,omitempty"`
	Stopped     string `yaml:"stopped,omitempty"`
}

// Assertion validates the trace or the final store.
type Assertion struct {
	Type       string   `yaml:"type"`
	Count      int      `yaml:"count,omitempty"`
	Container  string   `yaml:"container,omitempty"`
	Containers []string `yaml:"containers,omitempty"`
	Outcome    string   `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertQueueLength     = "queue_length"
	AssertQuarantined     = "quarantined"
	AssertAttemptCount    = "attempt_count"
	AssertAttemptOrder    = "attempt_order"
	AssertAttemptContains = "attempt_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
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

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, scan := range s.Setup.Pending {
		if scan.Container == "" || scan.Shipment == "" {
			return fmt.Errorf("setup.pending[%d]: container and shipment are required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
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

func validateStep(i int, step FlowStep) error {
	action := step.action()
	if action == "" {
		return fmt.Errorf("flow[%d]: exactly one action is required", i)
	}

	switch action {
	case "server", "connectivity":
		state := step.Server + step.Connectivity
		if state != "online" && state != "offline" {
			return fmt.Errorf("flow[%d].%s: must be online or offline, got %q", i, action, state)
		}
	case "respond":
		for j, r := range step.Respond {
			if r.Status < 100 || r.Status > 599 {
				return fmt.Errorf("flow[%d].respond[%d]: invalid status %d", i, j, r.Status)
			}
		}
	case "login":
		if step.Login.Surname == "" {
			return fmt.Errorf("flow[%d].login: surname is required", i)
		}
	}

	if step.Expect != nil {
		switch action {
		case "submit":
			if step.Expect.Result == "" {
				return fmt.Errorf("flow[%d].expect: result is required for submit", i)
			}
		case "sync":
		default:
			return fmt.Errorf("flow[%d].expect: only submit and sync steps take expect", i)
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertQueueLength, AssertAttemptCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertQuarantined:
	case AssertAttemptOrder:
		if len(a.Containers) == 0 {
			return fmt.Errorf("assertions[%d]: containers list is required for attempt_order", index)
		}
	case AssertAttemptContains:
		if a.Container == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: container and outcome are required for attempt_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
