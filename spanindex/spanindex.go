// Package spanindex maps byte offsets to the leaf field that owns them
// within a viewport, for visualization and navigation by external
// collaborators (the hex view, the tree view).
package spanindex

import (
	"sort"

	"github.com/builtwithtofu/binfmt/parser"
)

// Group classifies a Span's display kind, derived from its field's
// FieldValue tag.
type Group string

const (
	GroupInt     Group = "int"
	GroupString  Group = "string"
	GroupBytes   Group = "bytes"
	GroupFloat   Group = "float"
	GroupUnknown Group = "unknown"
)

// Span is a leaf-level [Offset, Offset+Length) interval tagged with a
// dotted field path and a display group. Spans never cover another
// span's bytes.
type Span struct {
	Offset        int64
	Length        int64
	Path          string
	Group         Group
	ColorOverride string
}

// End returns the half-open end of the span's byte range.
func (s Span) End() int64 { return s.Offset + s.Length }

// SpanIndex supports O(log n) offset -> Span lookup over a built set of
// spans, ordered by Offset.
type SpanIndex struct {
	spans []Span
}

// Spans returns the index's spans in offset order. The returned slice
// must not be mutated by the caller.
func (si *SpanIndex) Spans() []Span {
	if si == nil {
		return nil
	}
	return si.spans
}

// Find returns the Span with Offset <= offset < Offset+Length, or
// nothing -- never two different spans for the same offset, since spans
// tile disjoint ranges.
func (si *SpanIndex) Find(offset int64) (Span, bool) {
	if si == nil {
		return Span{}, false
	}
	spans := si.spans
	i := sort.Search(len(spans), func(i int) bool { return spans[i].Offset > offset })
	if i == 0 {
		return Span{}, false
	}
	candidate := spans[i-1]
	if offset >= candidate.Offset && offset < candidate.End() {
		return candidate, true
	}
	return Span{}, false
}

// recordOffset is the (offset, size) key used to locate records overlapping
// a viewport without re-walking every record's field tree.
type recordOffset struct {
	offset int64
	size   int64
	index  int
}

// Index is built once per ParseResult: a sorted array of record offsets
// plus a one-entry viewport-query cache, since the most recent (vs, ve)
// query is the one most likely to repeat (a UI re-rendering the same
// scroll position).
type Index struct {
	result   *parser.ParseResult
	offsets  []recordOffset
	cachedVS int64
	cachedVE int64
	cached   *SpanIndex
	hasCache bool
}

// Build constructs an Index over result, once per ParseResult. The Index
// does not detect later mutation of result, so a cached viewport query
// would go stale -- ParseResult is immutable by contract, so in practice
// Build is called once per parse and the Index is discarded with it.
func Build(result *parser.ParseResult) *Index {
	offsets := make([]recordOffset, 0, len(result.Records))
	for i, rec := range result.Records {
		if rec.Error != "" {
			continue
		}
		offsets = append(offsets, recordOffset{offset: rec.Offset, size: rec.Size, index: i})
	}
	// Records are already in byte order (parser invariant); offsets is
	// therefore already sorted, but sort defensively for callers building
	// an Index from a hand-assembled ParseResult in tests.
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].offset < offsets[j].offset })
	return &Index{result: result, offsets: offsets}
}

// UpdateViewport returns the SpanIndex for the half-open byte range
// [vs, ve). Identical consecutive queries return the same *SpanIndex
// without recomputation.
func (idx *Index) UpdateViewport(vs, ve int64) *SpanIndex {
	if idx.hasCache && idx.cachedVS == vs && idx.cachedVE == ve {
		return idx.cached
	}

	start := sort.Search(len(idx.offsets), func(i int) bool { return idx.offsets[i].offset > vs })
	if start > 0 {
		start--
	}

	var spans []Span
	for i := start; i < len(idx.offsets); i++ {
		ro := idx.offsets[i]
		if ro.offset >= ve {
			break
		}
		if ro.offset+ro.size <= vs {
			continue
		}
		rec := idx.result.Records[ro.index]
		emitRecordSpans(rec, &spans)
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	si := &SpanIndex{spans: spans}
	idx.cachedVS, idx.cachedVE, idx.cached, idx.hasCache = vs, ve, si, true
	return si
}

// emitRecordSpans walks rec's field tree post-order, appending one Span
// per leaf field (nested "record"-kind fields are never leaves).
func emitRecordSpans(rec *parser.ParsedRecord, out *[]Span) {
	var walk func(prefix string, fields []*parser.ParsedField)
	walk = func(prefix string, fields []*parser.ParsedField) {
		for _, f := range fields {
			path := prefix + "." + f.Name
			if f.Value.Kind == parser.ValueRecord {
				walk(path, f.Value.Record)
				continue
			}
			*out = append(*out, Span{
				Offset:        f.Offset,
				Length:        f.Size,
				Path:          path,
				Group:         classify(f.Value.Kind),
				ColorOverride: f.Color,
			})
		}
	}
	walk(rec.TypeName, rec.Fields)
}

func classify(kind parser.ValueKind) Group {
	switch kind {
	case parser.ValueInt:
		return GroupInt
	case parser.ValueText:
		return GroupString
	case parser.ValueBytes:
		return GroupBytes
	default:
		return GroupUnknown
	}
}
