package run

import (
	"fmt"
	"sort"
	"strings"

	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/parser"
)

// AnomalyType enumerates the kinds of anomaly the scan can flag.
type AnomalyType int

const (
	AnomalyParseError AnomalyType = iota
	AnomalyRecordError
	AnomalyAbsurdLength
	AnomalyFieldOverflow
	AnomalyBoundaryMismatch
)

func (t AnomalyType) String() string {
	names := [...]string{"parse_error", "record_error", "absurd_length", "field_overflow", "boundary_mismatch"}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// Severity grades an Anomaly.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Anomaly flags one suspicious value or structural breach found while
// scanning a ParseResult.
type Anomaly struct {
	Type         AnomalyType
	Severity     Severity
	RecordOffset int64
	FieldName    string
	Message      string
	Value        int64
}

const million = 1 << 20 // 1_048_576, the absurd-length ceiling's fixed half

// detectAnomalies scans result's records for suspicious lengths,
// overflows, and structural breaches.
func detectAnomalies(g *grammar.Grammar, result *parser.ParseResult, fileSize int64) []Anomaly {
	lengthTargets := lengthFieldTargets(g)

	var anomalies []Anomaly

	for _, err := range result.Errors {
		anomalies = append(anomalies, Anomaly{
			Type:         AnomalyParseError,
			Severity:     SeverityHigh,
			RecordOffset: result.ParseStoppedAt,
			Message:      err,
		})
	}

	for _, rec := range result.Records {
		if rec.Error != "" {
			anomalies = append(anomalies, Anomaly{
				Type:         AnomalyRecordError,
				Severity:     SeverityHigh,
				RecordOffset: rec.Offset,
				FieldName:    rec.ErrorField,
				Message:      rec.Error,
			})
		}

		if rec.Size > fileSize-rec.Offset {
			anomalies = append(anomalies, Anomaly{
				Type:         AnomalyFieldOverflow,
				Severity:     SeverityHigh,
				RecordOffset: rec.Offset,
				Message:      fmt.Sprintf("declared size %d exceeds %d remaining byte(s) in file", rec.Size, fileSize-rec.Offset),
				Value:        rec.Size,
			})
		}

		if rec.Error == "" {
			var topLevelSum int64
			for _, f := range rec.Fields {
				topLevelSum += f.Size
			}
			if topLevelSum != rec.Size {
				anomalies = append(anomalies, Anomaly{
					Type:         AnomalyBoundaryMismatch,
					Severity:     SeverityMedium,
					RecordOffset: rec.Offset,
					Message:      fmt.Sprintf("record size %d does not equal sum of top-level field sizes %d", rec.Size, topLevelSum),
				})
			}
		}

		anomalies = append(anomalies, absurdLengthAnomalies(rec.Offset, rec.Fields, fileSize, lengthTargets)...)
	}

	sortAnomalies(anomalies)
	return anomalies
}

// absurdLengthAnomalies walks a field tree (recursing into nested
// records) looking for integer fields that look like lengths.
func absurdLengthAnomalies(recordOffset int64, fields []*parser.ParsedField, fileSize int64, lengthTargets map[string]bool) []Anomaly {
	var out []Anomaly
	for _, f := range fields {
		switch f.Value.Kind {
		case parser.ValueInt:
			if isLengthNamed(f.Name) || lengthTargets[f.Name] {
				v := f.Value.Int
				remaining := fileSize - (f.Offset + f.Size)
				switch {
				case v >= minInt64(fileSize, million):
					out = append(out, Anomaly{
						Type:         AnomalyAbsurdLength,
						Severity:     SeverityHigh,
						RecordOffset: recordOffset,
						FieldName:    f.Name,
						Message:      fmt.Sprintf("length field %q = %d meets or exceeds the absurd-length ceiling", f.Name, v),
						Value:        v,
					})
				case v > remaining:
					out = append(out, Anomaly{
						Type:         AnomalyAbsurdLength,
						Severity:     SeverityMedium,
						RecordOffset: recordOffset,
						FieldName:    f.Name,
						Message:      fmt.Sprintf("length field %q = %d exceeds the %d byte(s) remaining in the file after the field", f.Name, v, remaining),
						Value:        v,
					})
				}
			}
		case parser.ValueRecord:
			out = append(out, absurdLengthAnomalies(recordOffset, f.Value.Record, fileSize, lengthTargets)...)
		}
	}
	return out
}

// isLengthNamed is the fallback name heuristic: *_len, length*, len_*.
func isLengthNamed(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_len") ||
		strings.HasPrefix(lower, "length") ||
		strings.HasPrefix(lower, "len_")
}

// lengthFieldTargets collects every field name referenced as a
// length_field target anywhere in the grammar -- the primary, fully
// deterministic criterion for "this integer is a length".
func lengthFieldTargets(g *grammar.Grammar) map[string]bool {
	targets := make(map[string]bool)
	if g == nil {
		return targets
	}
	for _, td := range g.Types {
		for _, fd := range td.Fields {
			if fd.Length.Kind == grammar.LengthField {
				targets[fd.Length.Field] = true
			}
		}
	}
	return targets
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// sortAnomalies orders anomalies by (record_offset, severity_desc).
func sortAnomalies(anomalies []Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].RecordOffset != anomalies[j].RecordOffset {
			return anomalies[i].RecordOffset < anomalies[j].RecordOffset
		}
		return anomalies[i].Severity > anomalies[j].Severity
	})
}
