package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scansync/internal/testutil"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		scenario, err := LoadScenario(f)
		require.NoError(t, err)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %s", strings.Join(result.Errors, "\n"))
		})
	}
}

func intp(n int) *int { return &n }

func TestRun_FailedExpectationIsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectation",
		Description: "expects a queued scan while online",
		Flow: []FlowStep{
			{
				Submit: &ScanStep{Operator: "A", Container: "B1", Shipment: "T1"},
				Expect: &ExpectClause{Result: "queued_offline"},
			},
			{Sync: true, Expect: &ExpectClause{Synced: intp(5)}},
		},
		Assertions: []Assertion{{Type: AssertQueueLength, Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `expected result "queued_offline", got "accepted"`)
	assert.Contains(t, result.Errors[1], "expected synced=5, got 0")
	assert.Contains(t, result.Errors[2], "queue_length")
}

func TestRun_LogoutQueuesScans(t *testing.T) {
	scenario := &Scenario{
		Name:        "logout",
		Description: "scans after logout are queued",
		Flow: []FlowStep{
			{Logout: true},
			{
				Submit: &ScanStep{Operator: "A", Container: "B1", Shipment: "T1"},
				Expect: &ExpectClause{Result: "queued_offline"},
			},
		},
		Assertions: []Assertion{{Type: AssertQueueLength, Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, EventLogout, result.Trace[0].Type)
}

func TestRun_ValidationRejectedScan(t *testing.T) {
	scenario := &Scenario{
		Name:        "blank",
		Description: "blank container is rejected locally",
		Flow: []FlowStep{
			{
				Submit: &ScanStep{Operator: "A", Container: "   ", Shipment: "T1"},
				Expect: &ExpectClause{Result: "validation_rejected"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertQueueLength, Count: 0},
			{Type: AssertAttemptCount, Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_OfflineConnectivityEventDoesNotDrain(t *testing.T) {
	scenario := &Scenario{
		Name:        "offline_event",
		Description: "became-offline is only logged",
		Setup: Setup{
			Pending: []ScanStep{{Operator: "A", Container: "B1", Shipment: "T1"}},
		},
		Flow:       []FlowStep{{Connectivity: "offline"}},
		Assertions: []Assertion{{Type: AssertQueueLength, Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Attempts())
}

func TestHarness_CloseAfterRestart(t *testing.T) {
	api := newAPIServer(true)
	defer api.Close()

	h := &Harness{
		dbPath: filepath.Join(t.TempDir(), "queue.db"),
		clock:  testutil.NewStepClock(harnessEpoch, time.Second),
		api:    api,
		trace:  &traceLog{},
	}
	require.NoError(t, h.open())

	result := NewResult()
	require.NoError(t, h.execute(context.Background(), 0, FlowStep{Restart: true}, result))
	assert.Empty(t, result.Errors)

	require.NoError(t, h.close())
	require.NoError(t, h.close(), "closing twice is harmless")

	trace := h.trace.snapshot()
	require.Len(t, trace, 1)
	assert.Equal(t, TraceEvent{Type: EventRestart, Detail: "pending=0"}, trace[0])
}
