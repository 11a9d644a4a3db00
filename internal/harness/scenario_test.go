package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
setup:
  online: false
  pending:
    - { operator: A, container: B0, shipment: T0 }
flow:
  - submit: { operator: A, container: B1, shipment: T1 }
    expect: { result: queued_offline }
  - server: online
  - respond:
      - status: 409
        body: '{"detail":"conflict"}'
  - sync: true
    expect: { synced: 1, stopped: empty }
assertions:
  - type: queue_length
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	require.NotNil(t, scenario.Setup.Online)
	assert.False(t, *scenario.Setup.Online)
	require.Len(t, scenario.Setup.Pending, 1)
	require.Len(t, scenario.Flow, 4)
	assert.Equal(t, "B1", scenario.Flow[0].Submit.Container)
	assert.Equal(t, "queued_offline", scenario.Flow[0].Expect.Result)
	assert.Equal(t, "server", scenario.Flow[1].action())
	assert.Equal(t, 409, scenario.Flow[2].Respond[0].Status)
	require.NotNil(t, scenario.Flow[3].Expect.Synced)
	assert.Equal(t, 1, *scenario.Flow[3].Expect.Synced)
	assert.Nil(t, scenario.Flow[3].Expect.Remaining)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "assertion instead of assertions"
flow:
  - sync: true
assertion:
  - type: queue_length
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
flow: [{ sync: true }]
assertions: [{ type: queue_length }]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
flow: [{ sync: true }]
assertions: [{ type: queue_length }]
`,
			wantErr: "description is required",
		},
		{
			name: "empty flow",
			content: `
name: x
description: "x"
assertions: [{ type: queue_length }]
`,
			wantErr: "flow list is required",
		},
		{
			name: "no assertions",
			content: `
name: x
description: "x"
flow: [{ sync: true }]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "two actions in one step",
			content: `
name: x
description: "x"
flow: [{ sync: true, logout: true }]
assertions: [{ type: queue_length }]
`,
			wantErr: "exactly one action",
		},
		{
			name: "bad server state",
			content: `
name: x
description: "x"
flow: [{ server: flaky }]
assertions: [{ type: queue_length }]
`,
			wantErr: "must be online or offline",
		},
		{
			name: "bad status",
			content: `
name: x
description: "x"
flow: [{ respond: [{ status: 700 }] }]
assertions: [{ type: queue_length }]
`,
			wantErr: "invalid status 700",
		},
		{
			name: "expect on server step",
			content: `
name: x
description: "x"
flow: [{ server: online, expect: { result: accepted } }]
assertions: [{ type: queue_length }]
`,
			wantErr: "only submit and sync steps take expect",
		},
		{
			name: "submit expect without result",
			content: `
name: x
description: "x"
flow: [{ submit: { container: B1, shipment: T1 }, expect: { stopped: empty } }]
assertions: [{ type: queue_length }]
`,
			wantErr: "result is required for submit",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: "x"
flow: [{ sync: true }]
assertions: [{ type: final_state }]
`,
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name: "attempt_order without containers",
			content: `
name: x
description: "x"
flow: [{ sync: true }]
assertions: [{ type: attempt_order }]
`,
			wantErr: "containers list is required",
		},
		{
			name: "pending without shipment",
			content: `
name: x
description: "x"
setup:
  pending: [{ container: B1 }]
flow: [{ sync: true }]
assertions: [{ type: queue_length }]
`,
			wantErr: "setup.pending[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ShippedScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			require.NoError(t, err)
		})
	}
}
