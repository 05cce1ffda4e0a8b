package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/parser"
	"github.com/builtwithtofu/binfmt/reader"
)

func mustLint(t *testing.T, text string) *grammar.Grammar {
	t.Helper()
	g, errs, _ := grammar.Lint(text)
	require.Empty(t, errs, "lint errors: %v", errs)
	require.NotNil(t, g)
	return g
}

func TestParse_MinimalLengthPrefixedLoop(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing:
  repeat: until_eof
types:
  R:
    fields:
      - {name: t, type: u16}
      - {name: n, type: u8}
      - {name: p, type: bytes, length: n}
record:
  use: R
`
	g := mustLint(t, text)
	data := []byte{0x01, 0x00, 0x03, 0x41, 0x42, 0x43, 0x02, 0x00, 0x00}
	r := reader.NewBytes(data)

	result := parser.Parse(g, r, "sample.bin", parser.Options{})

	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 2)

	rec0 := result.Records[0]
	assert.Equal(t, int64(0), rec0.Offset)
	assert.Equal(t, int64(6), rec0.Size)
	tField, ok := rec0.Field("t")
	require.True(t, ok)
	assert.Equal(t, int64(1), tField.Value.Int)
	nField, _ := rec0.Field("n")
	assert.Equal(t, int64(3), nField.Value.Int)
	pField, _ := rec0.Field("p")
	assert.Equal(t, []byte("ABC"), pField.Value.Bytes)

	rec1 := result.Records[1]
	assert.Equal(t, int64(6), rec1.Offset)
	assert.Equal(t, int64(3), rec1.Size)
	nField1, _ := rec1.Field("n")
	assert.Equal(t, int64(0), nField1.Value.Int)
	pField1, _ := rec1.Field("p")
	assert.Equal(t, []byte{}, pField1.Value.Bytes)

	assert.Equal(t, int64(9), result.TotalBytesParsed)
}

func TestParse_SwitchDispatchReusesPreamble(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  Hdr:
    fields:
      - {name: type_raw, type: u16}
      - {name: eid, type: u16}
  Rec:
    fields:
      - {name: header, type: Hdr}
      - {name: len, type: u8}
      - {name: payload, type: bytes, length: len}
record:
  switch:
    expr: Hdr.type_raw
    cases:
      "0x0065": Rec
    default: Rec
registry:
  "0x0065":
    decode: {as: string, field: payload, encoding: ascii}
`
	g := mustLint(t, text)
	data := []byte{0x65, 0x00, 0x07, 0x00, 0x05, 0x41, 0x6C, 0x69, 0x63, 0x65}
	r := reader.NewBytes(data)

	result := parser.Parse(g, r, "dispatch.bin", parser.Options{})

	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, "Rec", rec.TypeName)
	assert.Equal(t, "0x0065", rec.Discriminator)

	payload, ok := rec.Field("payload")
	require.True(t, ok)
	assert.Equal(t, []byte("Alice"), payload.Value.Bytes)

	header, ok := rec.Field("header")
	require.True(t, ok)
	require.Equal(t, parser.ValueRecord, header.Value.Kind)
	eid, ok := indexByName(header.Value.Record, "eid")
	require.True(t, ok)
	assert.Equal(t, int64(7), eid.Value.Int)
}

func TestParse_ExpressionLength(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: total, type: u16, endian: little}
      - {name: text, type: bytes, length: "total - 4"}
record:
  use: R
`
	g := mustLint(t, text)
	data := append([]byte{0x0A, 0x00}, []byte("abcdef")...)
	r := reader.NewBytes(data)

	result := parser.Parse(g, r, "expr.bin", parser.Options{})

	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 1)
	textField, ok := result.Records[0].Field("text")
	require.True(t, ok)
	assert.Equal(t, int64(6), textField.Size)
	assert.Equal(t, []byte("abcdef"), textField.Value.Bytes)
}

func TestParse_ShortReadAtTruncatedTail(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: n, type: u16}
record:
  use: R
`
	g := mustLint(t, text)
	data := []byte{0x01} // declares a u16 but only one byte remains
	r := reader.NewBytes(data)

	result := parser.Parse(g, r, "truncated.bin", parser.Options{})

	require.Len(t, result.Errors, 1)
	require.Len(t, result.Records, 1)
	assert.NotEmpty(t, result.Records[0].Error)
	assert.Equal(t, int64(0), result.ParseStoppedAt)
}

func TestParse_ZeroLengthRecordRejected(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: p, type: bytes, length: 0}
record:
  use: R
`
	g := mustLint(t, text)
	data := []byte{0x01, 0x02}
	r := reader.NewBytes(data)

	result := parser.Parse(g, r, "zero.bin", parser.Options{})
	require.Len(t, result.Errors, 1)
}

func indexByName(fields []*parser.ParsedField, name string) (*parser.ParsedField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}
