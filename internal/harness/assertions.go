package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Step, ev.Action)
			if ev.Replica != "" {
				fmt.Fprintf(&buf, " %s", ev.Replica)
			}
			if ev.ID != "" {
				fmt.Fprintf(&buf, " id=%s", ev.ID)
			}
			if ev.Balance != "" {
				fmt.Fprintf(&buf, " balance=%s", ev.Balance)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%q", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertBalance:
		return assertBalance(result, a)
	case AssertTransactionCount:
		return assertTransactionCount(result, a)
	case AssertContains:
		return assertListed(result, a, true)
	case AssertAbsent:
		return assertListed(result, a, false)
	case AssertRemoteCount:
		return assertRemoteCount(result, a)
	case AssertConverged:
		return assertConverged(result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func replicaState(result *Result, a Assertion) (ReplicaState, error) {
	state, ok := result.State.Replicas[a.Replica]
	if !ok {
		return ReplicaState{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("replica %q", a.Replica),
			Actual:   "no such replica",
		}
	}
	return state, nil
}

// assertBalance compares balances numerically, so "20" matches "20.00".
func assertBalance(result *Result, a Assertion) error {
	state, err := replicaState(result, a)
	if err != nil {
		return err
	}

	want, err := decimal.NewFromString(a.Equals)
	if err != nil {
		return fmt.Errorf("balance: invalid expected value %q: %w", a.Equals, err)
	}
	got, err := decimal.NewFromString(state.Balance)
	if err == nil && got.Equal(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertBalance,
		Expected: fmt.Sprintf("replica %s balance %s", a.Replica, want),
		Actual:   state.Balance,
		Trace:    result.Trace,
	}
}

func assertTransactionCount(result *Result, a Assertion) error {
	state, err := replicaState(result, a)
	if err != nil {
		return err
	}
	if len(state.Transactions) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTransactionCount,
		Expected: fmt.Sprintf("replica %s lists %d transactions", a.Replica, *a.Count),
		Actual:   fmt.Sprintf("%d: %v", len(state.Transactions), transactionIDs(state)),
		Trace:    result.Trace,
	}
}

func assertListed(result *Result, a Assertion, want bool) error {
	state, err := replicaState(result, a)
	if err != nil {
		return err
	}

	ids := transactionIDs(state)
	if slices.Contains(ids, a.ID) == want {
		return nil
	}

	expected := fmt.Sprintf("replica %s lists %s", a.Replica, a.ID)
	if !want {
		expected = fmt.Sprintf("replica %s does not list %s", a.Replica, a.ID)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("%v", ids),
		Trace:    result.Trace,
	}
}

func assertRemoteCount(result *Result, a Assertion) error {
	if len(result.State.Remote) == *a.Count {
		return nil
	}
	ids := make([]string, len(result.State.Remote))
	for i, r := range result.State.Remote {
		ids[i] = r.ID
	}
	return &AssertionError{
		Type:     AssertRemoteCount,
		Expected: fmt.Sprintf("remote stores %d records", *a.Count),
		Actual:   fmt.Sprintf("%d: %v", len(ids), ids),
		Trace:    result.Trace,
	}
}

// assertConverged requires every replica to list exactly the remote's live
// records, with identical balances.
func assertConverged(result *Result) error {
	var live []string
	for _, r := range result.State.Remote {
		if !r.Deleted {
			live = append(live, r.ID)
		}
	}
	slices.Sort(live)

	names := make([]string, 0, len(result.State.Replicas))
	for name := range result.State.Replicas {
		names = append(names, name)
	}
	slices.Sort(names)

	var balance string
	for i, name := range names {
		state := result.State.Replicas[name]

		ids := transactionIDs(state)
		slices.Sort(ids)
		if !slices.Equal(ids, live) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("replica %s lists remote live records %v", name, live),
				Actual:   fmt.Sprintf("%v", ids),
				Trace:    result.Trace,
			}
		}

		if i == 0 {
			balance = state.Balance
			continue
		}
		if state.Balance != balance {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("replica %s balance %s (as %s)", name, balance, names[0]),
				Actual:   state.Balance,
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func transactionIDs(state ReplicaState) []string {
	ids := make([]string, len(state.Transactions))
	for i, t := range state.Transactions {
		ids[i] = t.ID
	}
	return ids
}
