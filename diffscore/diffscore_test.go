package diffscore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/diffscore"
	"github.com/builtwithtofu/binfmt/run"
)

func artifactWithStats(stats run.RunStats, createdAt time.Time) *run.RunArtifact {
	return &run.RunArtifact{RunID: "run-test", Stats: stats, CreatedAt: createdAt}
}

func TestDiffAndScore_AgainstBaseline(t *testing.T) {
	baseline := artifactWithStats(run.RunStats{
		CoveragePercentage:    50.0,
		ErrorCount:            2,
		AnomalyCount:          0,
		HighSeverityAnomalies: 0,
		RecordCount:           1,
	}, time.Unix(0, 0))
	candidate := artifactWithStats(run.RunStats{
		CoveragePercentage:    80.0,
		ErrorCount:            0,
		AnomalyCount:          1,
		HighSeverityAnomalies: 0,
		RecordCount:           1,
	}, time.Unix(1, 0))

	d := diffscore.Diff(baseline, candidate)
	assert.InDelta(t, 30.0, d.CoverageDelta, 1e-9)
	assert.Equal(t, -2, d.ErrorDelta)
	assert.True(t, d.IsImprovement)

	score := diffscore.Score(candidate, nil)
	require.True(t, score.PassedHardGates)
	assert.InDelta(t, 83.0, score.TotalScore, 1e-9)
}

func TestScore_HardGateFailureZerosTotal(t *testing.T) {
	r := artifactWithStats(run.RunStats{
		CoveragePercentage:    90.0,
		ErrorCount:            0,
		AnomalyCount:          0,
		HighSeverityAnomalies: 1,
		RecordCount:           5,
		ParseStoppedAt:        100,
	}, time.Unix(0, 0))

	score := diffscore.Score(r, nil)
	assert.False(t, score.PassedHardGates)
	assert.Contains(t, score.FailedHardGates, diffscore.GateNoSafetyViolations)
	assert.Equal(t, 0.0, score.TotalScore)
}

// parse_advanced passes with zero records only when parse_stopped_at
// is positive; here neither holds, so the gate fails.
func TestScore_ParseAdvancedFailsWithNoRecordsAndNoProgress(t *testing.T) {
	r := artifactWithStats(run.RunStats{
		RecordCount:    0,
		ParseStoppedAt: 0,
	}, time.Unix(0, 0))

	score := diffscore.Score(r, nil)
	assert.False(t, score.PassedHardGates)
	assert.Contains(t, score.FailedHardGates, diffscore.GateParseAdvanced)
	assert.Equal(t, 0.0, score.TotalScore)
}

func TestScore_QualityClampsToZero(t *testing.T) {
	r := artifactWithStats(run.RunStats{
		CoveragePercentage:    10.0,
		ErrorCount:            20,
		AnomalyCount:          5,
		HighSeverityAnomalies: 0,
		RecordCount:           1,
		ParseStoppedAt:        10,
	}, time.Unix(0, 0))

	score := diffscore.Score(r, nil)
	require.True(t, score.PassedHardGates)
	assert.Equal(t, 0.0, score.QualityScore)
	assert.InDelta(t, 7.0, score.CoverageScore, 1e-9)
}

func TestRank_OrdersByTieBreakChain(t *testing.T) {
	high := artifactWithStats(run.RunStats{CoveragePercentage: 90, RecordCount: 1, ParseStoppedAt: 10}, time.Unix(2, 0))
	tiedButMoreErrors := artifactWithStats(run.RunStats{CoveragePercentage: 90, RecordCount: 1, ParseStoppedAt: 10, ErrorCount: 1}, time.Unix(3, 0))
	low := artifactWithStats(run.RunStats{CoveragePercentage: 10, RecordCount: 1, ParseStoppedAt: 10}, time.Unix(1, 0))

	rankings := diffscore.Rank([]*run.RunArtifact{tiedButMoreErrors, low, high}, nil)
	require.Len(t, rankings, 3)
	assert.Same(t, high, rankings[0].Run)
	assert.Same(t, tiedButMoreErrors, rankings[1].Run)
	assert.Same(t, low, rankings[2].Run)
}
