package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, sc)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{
			{Seq: 1, Op: OpStore, URI: "docs/Header:a@1", Outcome: OutcomeOK, Result: StoreOutput{Created: true}},
			{Seq: 2, Op: OpGet, URI: "docs/Header:b@1", Outcome: "NOT_FOUND"},
		},
	}
	first, err := MarshalSnapshot(snapshot)
	require.NoError(t, err)
	second, err := MarshalSnapshot(snapshot)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"created": true`)
	assert.NotContains(t, string(first), `"batch_id"`)
	assert.Equal(t, byte('\n'), first[len(first)-1])
}
