package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/types"
)

func decayTranscript(scenarioName, branch string, metrics []types.MetricRecord) *results.Transcript {
	return &results.Transcript{
		RunID:    "2026-01-02T03-04-05Z",
		Scenario: scenarioName,
		Branch:   branch,
		Model:    "mock-model",
		Messages: []types.Message{{Role: types.RoleUser, Content: "Hi"}},
		Metrics:  metrics,
	}
}

// Two baseline runs plus one probe-persisting run of the same scenario.
func decayTranscripts() []*results.Transcript {
	first := decayTranscript("boundary_decay", "baseline", []types.MetricRecord{
		{types.MetricTurn: 0, types.MetricBranch: "baseline", "pushback_level": 3, "anchor_polarity": -1.0, types.MetricTokensPrimary: 40},
		{types.MetricTurn: 1, types.MetricBranch: "baseline", "pushback_level": 2, "anchor_polarity": -1.0},
		{types.MetricTurn: 2, types.MetricBranch: "baseline", "pushback_level": 2},
		{types.MetricTurn: 4, types.MetricBranch: "baseline", "pushback_level": 1, "response_pattern": "consistent"},
		{types.MetricTurn: 5, types.MetricBranch: "baseline", "pushback_level": 0},
	})
	second := decayTranscript("boundary_decay", "baseline", []types.MetricRecord{
		{types.MetricTurn: 0, "pushback_level": 3},
		{types.MetricTurn: 1, "pushback_level": 2},
	})
	guard := decayTranscript("boundary_decay", "anchor_guard", []types.MetricRecord{
		{types.MetricTurn: 0, "pushback_level": 3},
	})
	return []*results.Transcript{guard, first, second}
}

func TestSummarizeGroupsAndSorts(t *testing.T) {
	transcripts := decayTranscripts()
	transcripts = append(transcripts, decayTranscript("alpha", "baseline", []types.MetricRecord{
		{types.MetricTurn: 0, "pushback_level": 1},
	}))

	summary := Summarize(transcripts)

	require.Len(t, summary.Groups, 3)
	assert.Equal(t, "alpha", summary.Groups[0].Scenario)
	assert.Equal(t, "anchor_guard", summary.Groups[1].Branch)
	assert.Equal(t, "baseline", summary.Groups[2].Branch)
	assert.Equal(t, 2, summary.Groups[2].Transcripts)
	assert.Equal(t, 5, summary.Groups[2].MaxTurn)
}

func TestGroupMeanPushback(t *testing.T) {
	summary := Summarize(decayTranscripts())
	baseline := summary.Groups[1]
	require.Equal(t, "baseline", baseline.Branch)

	mean, ok := baseline.MeanPushback(0)
	require.True(t, ok)
	assert.InDelta(t, 3.0, mean, 1e-9)

	mean, ok = baseline.MeanPushback(1)
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-9)

	_, ok = baseline.MeanPushback(3)
	assert.False(t, ok, "no observations at turn 3")
}

func TestGroupMetricsSkipsCountersAndStrings(t *testing.T) {
	summary := Summarize(decayTranscripts())
	baseline := summary.Groups[1]

	assert.Equal(t, []string{"anchor_polarity", "pushback_level"}, baseline.Metrics())
}

func TestGroupSlope(t *testing.T) {
	summary := Summarize(decayTranscripts())
	baseline := summary.Groups[1]

	// Observations (turn, pushback): (0,3) (1,2) (2,2) (4,1) (5,0) (0,3) (1,2)
	// give a least-squares slope of -85/160.
	slope, ok := baseline.Slope("pushback_level")
	require.True(t, ok)
	assert.InDelta(t, -0.53125, slope, 1e-9)

	// Flat series at two points fits a zero slope.
	slope, ok = baseline.Slope("anchor_polarity")
	require.True(t, ok)
	assert.InDelta(t, 0.0, slope, 1e-9)
}

func TestGroupSlopeNeedsSpread(t *testing.T) {
	summary := Summarize(decayTranscripts())
	guard := summary.Groups[0]
	require.Equal(t, "anchor_guard", guard.Branch)

	// Single observation.
	_, ok := guard.Slope("pushback_level")
	assert.False(t, ok)

	// Two observations on the same turn: no x spread.
	stacked := Summarize([]*results.Transcript{
		decayTranscript("s", "b", []types.MetricRecord{{types.MetricTurn: 0, "pushback_level": 1}}),
		decayTranscript("s", "b", []types.MetricRecord{{types.MetricTurn: 0, "pushback_level": 3}}),
	})
	_, ok = stacked.Groups[0].Slope("pushback_level")
	assert.False(t, ok)
}

func TestGroupWindowMeansAndDecayPercent(t *testing.T) {
	summary := Summarize(decayTranscripts())
	baseline := summary.Groups[1]

	early, late, ok := baseline.WindowMeans("pushback_level")
	require.True(t, ok)
	assert.InDelta(t, 2.4, early, 1e-9)
	assert.InDelta(t, 0.5, late, 1e-9)

	pct, ok := baseline.DecayPercent("pushback_level")
	require.True(t, ok)
	assert.InDelta(t, 100*1.9/2.4, pct, 1e-9)

	// No late-window observations.
	_, _, ok = baseline.WindowMeans("anchor_polarity")
	assert.False(t, ok)
	_, ok = baseline.DecayPercent("anchor_polarity")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	summary := Summarize(decayTranscripts())

	var buf strings.Builder
	require.NoError(t, summary.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "MEAN PUSHBACK BY TURN")
	assert.Contains(t, out, "SCENARIO")
	assert.Contains(t, out, "T0")
	assert.Contains(t, out, "T5")
	assert.Contains(t, out, "3.00")
	assert.Contains(t, out, "DECAY SLOPES")
	assert.Contains(t, out, "pushback_level")
	assert.Contains(t, out, "-0.531")
	assert.Contains(t, out, "79.2")
	assert.Contains(t, out, missingCell)
}

func TestRenderEmptySummary(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, Summarize(nil).Render(&buf))
	assert.Contains(t, buf.String(), "no transcripts found")
}

func TestSummarizeDir(t *testing.T) {
	writer, err := results.NewWriter(t.TempDir())
	require.NoError(t, err)
	for _, tr := range decayTranscripts() {
		_, err := writer.Write(tr)
		require.NoError(t, err)
	}

	summary, err := SummarizeDir(writer.TranscriptsDir())
	require.NoError(t, err)

	require.Len(t, summary.Groups, 2)
	assert.Equal(t, 2, summary.Groups[1].Transcripts)

	// Loaded records arrive as JSON numbers and still aggregate.
	mean, ok := summary.Groups[1].MeanPushback(0)
	require.True(t, ok)
	assert.InDelta(t, 3.0, mean, 1e-9)
}
