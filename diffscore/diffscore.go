// Package diffscore compares two run artifacts and reduces a single
// run to a bounded 0-100 quality score with hard gates and soft
// metrics.
package diffscore

import (
	"fmt"
	"math"
	"sort"

	"github.com/builtwithtofu/binfmt/run"
)

// RunDiff compares a baseline run against a candidate run.
type RunDiff struct {
	CoverageDelta    float64
	ErrorDelta       int
	AnomalyDelta     int
	RecordCountDelta int
	IsImprovement    bool
	Summary          string
}

// Diff computes candidate's delta against baseline.
func Diff(baseline, candidate *run.RunArtifact) RunDiff {
	coverageDelta := candidate.Stats.CoveragePercentage - baseline.Stats.CoveragePercentage
	errorDelta := candidate.Stats.ErrorCount - baseline.Stats.ErrorCount
	anomalyDelta := candidate.Stats.AnomalyCount - baseline.Stats.AnomalyCount
	recordCountDelta := candidate.Stats.RecordCount - baseline.Stats.RecordCount

	highDidNotIncrease := candidate.Stats.HighSeverityAnomalies <= baseline.Stats.HighSeverityAnomalies
	isImprovement := coverageDelta >= 0 && errorDelta <= 0 && highDidNotIncrease

	verb := "regresses"
	if isImprovement {
		verb = "improves"
	}

	return RunDiff{
		CoverageDelta:    coverageDelta,
		ErrorDelta:       errorDelta,
		AnomalyDelta:     anomalyDelta,
		RecordCountDelta: recordCountDelta,
		IsImprovement:    isImprovement,
		Summary: fmt.Sprintf(
			"candidate %s on baseline: coverage %+.1f pts, errors %+d, anomalies %+d, records %+d",
			verb, coverageDelta, errorDelta, anomalyDelta, recordCountDelta,
		),
	}
}

// HardGate names a pass/fail precondition a run must clear before any
// soft metric contributes to its score.
type HardGate string

const (
	GateParseAdvanced      HardGate = "parse_advanced"
	GateNoSafetyViolations HardGate = "no_safety_violations"
)

// SoftMetrics holds the bounded sub-scores that sum into TotalScore
// when all hard gates pass.
type SoftMetrics struct {
	CoverageScore float64 // 0..70
	QualityScore  float64 // 0..30
}

// ScoreBreakdown is the immutable outcome of Score.
type ScoreBreakdown struct {
	TotalScore      float64
	PassedHardGates bool
	FailedHardGates []HardGate
	CoverageScore   float64
	QualityScore    float64
	SoftMetrics     SoftMetrics
	Penalties       []string
	Summary         string
	BaselineDiff    *RunDiff
}

// Score reduces r to a bounded score. When baseline is non-nil, the
// breakdown additionally carries the diff against it, but the total
// score is always derived from r alone.
func Score(r *run.RunArtifact, baseline *run.RunArtifact) ScoreBreakdown {
	var failed []HardGate
	if !(r.Stats.ParseStoppedAt > 0 || r.Stats.RecordCount > 0) {
		failed = append(failed, GateParseAdvanced)
	}
	if r.Stats.HighSeverityAnomalies != 0 {
		failed = append(failed, GateNoSafetyViolations)
	}

	breakdown := ScoreBreakdown{
		PassedHardGates: len(failed) == 0,
		FailedHardGates: failed,
		Penalties:       nil,
	}

	if baseline != nil {
		d := Diff(baseline, r)
		breakdown.BaselineDiff = &d
	}

	if !breakdown.PassedHardGates {
		breakdown.TotalScore = 0.0
		breakdown.Summary = fmt.Sprintf("failed hard gate(s): %v", failed)
		return breakdown
	}

	coverageScore := r.Stats.CoveragePercentage * 0.7
	// Penalize errors and anomalies equally at 3 points apiece: a run
	// with zero errors and one anomaly (coverage 80, quality 27, total
	// 83.0) is the calibration point this weighting is pinned to.
	qualityScore := math.Max(0, 30-3*float64(r.Stats.ErrorCount)-3*float64(r.Stats.AnomalyCount))

	breakdown.CoverageScore = coverageScore
	breakdown.QualityScore = qualityScore
	breakdown.SoftMetrics = SoftMetrics{CoverageScore: coverageScore, QualityScore: qualityScore}

	total := clamp(round1(coverageScore+qualityScore), 0, 100)
	breakdown.TotalScore = total
	breakdown.Summary = fmt.Sprintf("score %.1f (coverage %.1f, quality %.1f)", total, coverageScore, qualityScore)
	return breakdown
}

// Ranking pairs a run with its score for ordering candidates
// best-first by (total_score desc, coverage desc, error_count asc,
// anomaly_count asc, created_at asc).
type Ranking struct {
	Run   *run.RunArtifact
	Score ScoreBreakdown
}

// Rank scores every run against baseline (nil for an absolute score) and
// returns them ordered best-first.
func Rank(runs []*run.RunArtifact, baseline *run.RunArtifact) []Ranking {
	rankings := make([]Ranking, len(runs))
	for i, r := range runs {
		rankings[i] = Ranking{Run: r, Score: Score(r, baseline)}
	}
	sortRankings(rankings)
	return rankings
}

func sortRankings(rankings []Ranking) {
	sort.SliceStable(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.Score.TotalScore != b.Score.TotalScore {
			return a.Score.TotalScore > b.Score.TotalScore
		}
		if a.Run.Stats.CoveragePercentage != b.Run.Stats.CoveragePercentage {
			return a.Run.Stats.CoveragePercentage > b.Run.Stats.CoveragePercentage
		}
		if a.Run.Stats.ErrorCount != b.Run.Stats.ErrorCount {
			return a.Run.Stats.ErrorCount < b.Run.Stats.ErrorCount
		}
		if a.Run.Stats.AnomalyCount != b.Run.Stats.AnomalyCount {
			return a.Run.Stats.AnomalyCount < b.Run.Stats.AnomalyCount
		}
		return a.Run.CreatedAt.Before(b.Run.CreatedAt)
	})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
