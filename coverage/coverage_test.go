package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/coverage"
	"github.com/builtwithtofu/binfmt/parser"
)

func recordAt(offset, size int64) *parser.ParsedRecord {
	return &parser.ParsedRecord{Offset: offset, Size: size}
}

func TestAnalyze_CoverageWithGaps(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{
		recordAt(0, 4),
		recordAt(10, 6),
	}}

	report := coverage.Analyze(result, 20)

	require.Len(t, report.Gaps, 2)
	assert.Equal(t, coverage.Gap{Start: 4, End: 10}, report.Gaps[0])
	assert.Equal(t, coverage.Gap{Start: 16, End: 20}, report.Gaps[1])
	assert.Equal(t, 50.0, report.CoveragePercentage)
	require.NotNil(t, report.LargestGap)
	assert.Equal(t, coverage.Gap{Start: 4, End: 10}, *report.LargestGap)
}

func TestAnalyze_EmptyFile(t *testing.T) {
	report := coverage.Analyze(&parser.ParseResult{}, 0)
	assert.Zero(t, report.CoveragePercentage)
	assert.Empty(t, report.Gaps)
}

func TestAnalyze_NoRecords(t *testing.T) {
	report := coverage.Analyze(&parser.ParseResult{}, 100)
	assert.Zero(t, report.CoveragePercentage)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, coverage.Gap{Start: 0, End: 100}, report.Gaps[0])
}

func TestAnalyze_ErroredRecordsExcluded(t *testing.T) {
	errored := recordAt(0, 4)
	errored.Error = "boom"
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{errored}}

	report := coverage.Analyze(result, 10)
	assert.Equal(t, int64(0), report.BytesCovered)
	assert.Equal(t, 0, report.RecordCount)
}

func TestAnalyze_OverlappingRecordsMerge(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{
		recordAt(0, 5),
		recordAt(3, 5), // overlaps [0,5) -> merges to [0,8)
	}}
	report := coverage.Analyze(result, 10)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, coverage.Gap{Start: 8, End: 10}, report.Gaps[0])
}

func TestLargestGap_TieBreaksOnSmallerStart(t *testing.T) {
	gaps := []coverage.Gap{{Start: 10, End: 15}, {Start: 0, End: 5}}
	best, ok := coverage.LargestGap(gaps)
	require.True(t, ok)
	assert.Equal(t, coverage.Gap{Start: 0, End: 5}, best)
}
