package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/worldpurpose/internal/config"
	"github.com/roach88/worldpurpose/internal/ir"
)

// DefaultTxToken is used when a scenario does not set tx_token.
const DefaultTxToken = "scenario-tx"

// Scenario defines a ledger test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TxToken is the fixed tx token stamped on every call.
	TxToken string `yaml:"tx_token,omitempty"`

	// Units for every amount in the file: "ether" (default) or "wei".
	Units string `yaml:"units,omitempty"`

	// Wallets sets opening external balances.
	Wallets map[string]string `yaml:"wallets,omitempty"`

	// RejectTransfers lists identities whose payouts fail.
	RejectTransfers []string `yaml:"reject_transfers,omitempty"`

	// Setup steps run before the flow and must all succeed.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow is the main sequence of calls with optional expectations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one call made on behalf of an identity.
type FlowStep struct {
	// As is the calling identity.
	As string `yaml:"as"`

	// Invoke is the action name (setPurpose, withdraw, getBalance, getCurrentPurpose).
	Invoke string `yaml:"invoke"`

	// Args contains the action arguments.
	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected receipt. If nil, nothing is checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected receipt.
type ExpectClause struct {
	// Case is the expected output case ("Success", "SelfOverride", ...).
	Case string `yaml:"case"`

	// Result is a subset match on the receipt result.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// As is the identity under test (balance, withdrawable, locked, wallet).
	As string `yaml:"as,omitempty"`

	// Equals is the expected amount (balance, withdrawable, locked, wallet).
	Equals string `yaml:"equals,omitempty"`

	// Expect is a subset match on the current record (current_purpose).
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// None asserts there is no current purpose (current_purpose).
	None bool `yaml:"none,omitempty"`

	// Count is the expected number of notifications (event_count) or of
	// successful payouts (payout_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance        = "balance"
	AssertWithdrawable   = "withdrawable"
	AssertLocked         = "locked"
	AssertCurrentPurpose = "current_purpose"
	AssertWallet         = "wallet"
	AssertEventCount     = "event_count"
	AssertPayoutCount    = "payout_count"
	AssertConservation   = "conservation"
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
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
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
	switch s.Units {
	case "", config.UnitsEther, config.UnitsWei:
	default:
		return fmt.Errorf("units must be %q or %q, got %q", config.UnitsEther, config.UnitsWei, s.Units)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
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

func validateStep(where string, step FlowStep) error {
	if step.Invoke == "" {
		return fmt.Errorf("%s: invoke is required", where)
	}
	if !ir.Action(step.Invoke).Valid() {
		return fmt.Errorf("%s: unknown action %q", where, step.Invoke)
	}
	if step.As == "" && step.Invoke != string(ir.ActionGetCurrentPurpose) {
		return fmt.Errorf("%s: as is required", where)
	}
	if step.Args == nil {
		return fmt.Errorf("%s: args is required (use empty map if no args)", where)
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("%s.expect: case is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertBalance, AssertWithdrawable, AssertLocked, AssertWallet:
		if a.As == "" {
			return fmt.Errorf("assertions[%d]: as is required for %s", index, a.Type)
		}
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for %s", index, a.Type)
		}
	case AssertCurrentPurpose:
		if a.None == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: current_purpose needs exactly one of expect or none", index)
		}
	case AssertEventCount, AssertPayoutCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertConservation:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
