package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/scansync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the attempts made during the run for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nAttempts:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == EventAttempt {
				n++
				fmt.Fprintf(&buf, "  [%d] %s seq=%d %s (%s)\n", n, event.Container, event.Seq, event.Outcome, event.Detail)
			}
		}
	}

	return buf.String()
}

// AssertionContext provides what store assertions need.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertQueueLength:
		return assertQueueLength(actx, a)
	case AssertQuarantined:
		return assertQuarantined(actx, a)
	case AssertAttemptCount:
		return assertAttemptCount(result.Trace, a)
	case AssertAttemptOrder:
		return assertAttemptOrder(result.Trace, a)
	case AssertAttemptContains:
		return assertAttemptContains(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertQueueLength(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("queue_length assertion requires a store")
	}
	pending, err := actx.Store.LoadAll(actx.Ctx)
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	if len(pending) != a.Count {
		containers := make([]string, len(pending))
		for i, rec := range pending {
			containers[i] = rec.ContainerID
		}
		return &AssertionError{
			Type:     AssertQueueLength,
			Expected: fmt.Sprintf("%d pending records", a.Count),
			Actual:   fmt.Sprintf("%d pending records %v", len(pending), containers),
		}
	}
	return nil
}

func assertQuarantined(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("quarantined assertion requires a store")
	}
	quarantined, err := actx.Store.ListQuarantined(actx.Ctx)
	if err != nil {
		return fmt.Errorf("list quarantined: %w", err)
	}
	got := make([]string, len(quarantined))
	for i, rec := range quarantined {
		got[i] = rec.ContainerID
	}
	if strings.Join(got, ",") != strings.Join(a.Containers, ",") {
		return &AssertionError{
			Type:     AssertQuarantined,
			Expected: fmt.Sprintf("quarantined %v", a.Containers),
			Actual:   fmt.Sprintf("quarantined %v", got),
		}
	}
	return nil
}

// assertAttemptCount counts attempts, optionally for one container.
func assertAttemptCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventAttempt && (a.Container == "" || event.Container == a.Container) {
			count++
		}
	}

	if count != a.Count {
		what := "attempts"
		if a.Container != "" {
			what = "attempts of " + a.Container
		}
		return &AssertionError{
			Type:     AssertAttemptCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    trace,
		}
	}
	return nil
}

// assertAttemptOrder checks containers were first attempted in the given
// order. Other attempts may come in between.
func assertAttemptOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	n := 0
	for _, event := range trace {
		if event.Type != EventAttempt {
			continue
		}
		n++
		if positions[event.Container] == 0 {
			positions[event.Container] = n
		}
	}

	for _, container := range a.Containers {
		if positions[container] == 0 {
			return &AssertionError{
				Type:     AssertAttemptOrder,
				Expected: fmt.Sprintf("all containers attempted: %v", a.Containers),
				Actual:   fmt.Sprintf("never attempted: %s", container),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Containers); i++ {
		prev, curr := a.Containers[i-1], a.Containers[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertAttemptOrder,
				Expected: fmt.Sprintf("containers in order: %v", a.Containers),
				Actual: fmt.Sprintf("%s (attempt %d) should be before %s (attempt %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertAttemptContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type == EventAttempt && event.Container == a.Container && event.Outcome == a.Outcome {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertAttemptContains,
		Expected: fmt.Sprintf("attempt of %s with outcome %s", a.Container, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}
