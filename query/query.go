// Package query is a pure filter over a ParseResult. Query never
// raises; an invalid filter produces an empty RecordSet describing the
// rejection.
package query

import (
	"fmt"

	"github.com/builtwithtofu/binfmt/parser"
)

// FilterKind enumerates the filter vocabulary.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterType
	FilterOffsetRange
	FilterHasField
)

// Filter is the tagged-variant query input. Only the fields relevant to
// Kind are read.
type Filter struct {
	Kind      FilterKind
	TypeName  string // FilterType
	RangeFrom int64  // FilterOffsetRange
	RangeTo   int64  // FilterOffsetRange, exclusive
	FieldName string // FilterHasField
}

// RecordSet is the frozen outcome of Query: the matched records plus the
// original record count, so callers can report a match proportion.
type RecordSet struct {
	Records       []*parser.ParsedRecord
	OriginalCount int
	FilterApplied string
	Rejected      bool
	RejectReason  string
}

// Query filters result.Records by f.
func Query(result *parser.ParseResult, f Filter) RecordSet {
	base := RecordSet{OriginalCount: len(result.Records)}

	switch f.Kind {
	case FilterAll:
		base.Records = result.Records
		base.FilterApplied = "all"
	case FilterType:
		if f.TypeName == "" {
			return rejected(base, "InvalidFilterValue", "type filter requires a non-empty type name")
		}
		base.FilterApplied = fmt.Sprintf("type(%s)", f.TypeName)
		for _, rec := range result.Records {
			if rec.TypeName == f.TypeName {
				base.Records = append(base.Records, rec)
			}
		}
	case FilterOffsetRange:
		if f.RangeTo <= f.RangeFrom {
			return rejected(base, "InvalidFilterValue", "offset_range requires RangeTo > RangeFrom")
		}
		base.FilterApplied = fmt.Sprintf("offset_range(%d,%d)", f.RangeFrom, f.RangeTo)
		for _, rec := range result.Records {
			if overlaps(rec.Offset, rec.Offset+rec.Size, f.RangeFrom, f.RangeTo) {
				base.Records = append(base.Records, rec)
			}
		}
	case FilterHasField:
		if f.FieldName == "" {
			return rejected(base, "InvalidFilterValue", "has_field requires a non-empty field name")
		}
		base.FilterApplied = fmt.Sprintf("has_field(%s)", f.FieldName)
		for _, rec := range result.Records {
			if _, ok := rec.Field(f.FieldName); ok {
				base.Records = append(base.Records, rec)
			}
		}
	default:
		return rejected(base, "UnknownFilter", fmt.Sprintf("unrecognized filter kind %d", f.Kind))
	}

	return base
}

func rejected(base RecordSet, reason, detail string) RecordSet {
	base.Rejected = true
	base.RejectReason = detail
	base.FilterApplied = reason
	base.Records = nil
	return base
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any
// byte, the same half-open overlap predicate spanindex uses.
func overlaps(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart < bEnd && bStart < aEnd
}
