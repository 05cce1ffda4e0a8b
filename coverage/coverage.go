// Package coverage merges the byte ranges claimed by successfully
// parsed records, finds the gaps between them, and reports a percentage
// coverage of the input.
package coverage

import (
	"sort"

	"github.com/builtwithtofu/binfmt/parser"
)

// Gap is a half-open, uncovered byte range [Start, End).
type Gap struct {
	Start int64
	End   int64
}

// Len reports the gap's byte width.
func (g Gap) Len() int64 { return g.End - g.Start }

// Report is the immutable outcome of Analyze.
type Report struct {
	FileSize           int64
	BytesCovered       int64
	BytesUncovered     int64
	CoveragePercentage float64
	Gaps               []Gap
	RecordCount        int
	LargestGap         *Gap // nil when there are no gaps
}

// Analyze computes a Report over result's successfully parsed records
// (Error == "") against a file of fileSize bytes.
func Analyze(result *parser.ParseResult, fileSize int64) *Report {
	ranges := coveredRanges(result)
	merged := mergeRanges(ranges)

	var covered int64
	for _, r := range merged {
		covered += r.End - r.Start
	}

	gaps := gapsOf(merged, fileSize)

	report := &Report{
		FileSize:       fileSize,
		BytesCovered:   covered,
		BytesUncovered: fileSize - covered,
		Gaps:           gaps,
		RecordCount:    countCovered(result),
	}
	if fileSize > 0 {
		report.CoveragePercentage = 100 * float64(covered) / float64(fileSize)
	}
	if lg, ok := LargestGap(gaps); ok {
		report.LargestGap = &lg
	}
	return report
}

// LargestGap returns the gap with the maximum width, ties broken by the
// smaller Start. Exposed standalone so callers holding an already-
// computed gap list (diffscore, a future UI) need not re-run the full
// analyzer.
func LargestGap(gaps []Gap) (Gap, bool) {
	if len(gaps) == 0 {
		return Gap{}, false
	}
	best := gaps[0]
	for _, g := range gaps[1:] {
		if g.Len() > best.Len() || (g.Len() == best.Len() && g.Start < best.Start) {
			best = g
		}
	}
	return best, true
}

func coveredRanges(result *parser.ParseResult) []Gap {
	var ranges []Gap
	for _, rec := range result.Records {
		if rec.Error != "" {
			continue
		}
		ranges = append(ranges, Gap{Start: rec.Offset, End: rec.Offset + rec.Size})
	}
	return ranges
}

func countCovered(result *parser.ParseResult) int {
	n := 0
	for _, rec := range result.Records {
		if rec.Error == "" {
			n++
		}
	}
	return n
}

// mergeRanges sorts ranges by Start and merges overlapping/adjacent
// ones in one linear pass.
func mergeRanges(ranges []Gap) []Gap {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Gap(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []Gap{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// gapsOf computes the complement of merged (already sorted, disjoint)
// ranges within [0, fileSize), including leading and trailing gaps.
func gapsOf(merged []Gap, fileSize int64) []Gap {
	if fileSize <= 0 {
		return nil
	}
	var gaps []Gap
	cursor := int64(0)
	for _, r := range merged {
		if r.Start > cursor {
			gaps = append(gaps, Gap{Start: cursor, End: r.Start})
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < fileSize {
		gaps = append(gaps, Gap{Start: cursor, End: fileSize})
	}
	return gaps
}
