package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/parser"
	"github.com/builtwithtofu/binfmt/query"
)

func rec(typeName string, offset, size int64) *parser.ParsedRecord {
	return &parser.ParsedRecord{TypeName: typeName, Offset: offset, Size: size}
}

func TestQuery_All(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{rec("A", 0, 4), rec("B", 4, 4)}}
	set := query.Query(result, query.Filter{Kind: query.FilterAll})
	assert.Len(t, set.Records, 2)
	assert.Equal(t, 2, set.OriginalCount)
}

func TestQuery_ByType(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{rec("A", 0, 4), rec("B", 4, 4), rec("A", 8, 4)}}
	set := query.Query(result, query.Filter{Kind: query.FilterType, TypeName: "A"})
	require.Len(t, set.Records, 2)
	for _, r := range set.Records {
		assert.Equal(t, "A", r.TypeName)
	}
	assert.Equal(t, 3, set.OriginalCount)
}

func TestQuery_OffsetRangeOverlap(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{rec("A", 0, 4), rec("B", 4, 4), rec("C", 20, 4)}}
	set := query.Query(result, query.Filter{Kind: query.FilterOffsetRange, RangeFrom: 2, RangeTo: 6})
	require.Len(t, set.Records, 2)
}

func TestQuery_HasField(t *testing.T) {
	withField := rec("A", 0, 4)
	withField.Fields = []*parser.ParsedField{{Name: "magic"}}
	withoutField := rec("B", 4, 4)
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{withField, withoutField}}

	set := query.Query(result, query.Filter{Kind: query.FilterHasField, FieldName: "magic"})
	require.Len(t, set.Records, 1)
	assert.Equal(t, "A", set.Records[0].TypeName)
}

func TestQuery_InvalidFilterValueNeverRaises(t *testing.T) {
	result := &parser.ParseResult{Records: []*parser.ParsedRecord{rec("A", 0, 4)}}
	set := query.Query(result, query.Filter{Kind: query.FilterType, TypeName: ""})
	assert.True(t, set.Rejected)
	assert.Empty(t, set.Records)
	assert.Equal(t, 1, set.OriginalCount)
}

func TestQuery_UnknownFilterKind(t *testing.T) {
	result := &parser.ParseResult{}
	set := query.Query(result, query.Filter{Kind: query.FilterKind(99)})
	assert.True(t, set.Rejected)
}
