package run_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/parser"
	"github.com/builtwithtofu/binfmt/reader"
	"github.com/builtwithtofu/binfmt/run"
)

func mustLint(t *testing.T, text string) *grammar.Grammar {
	t.Helper()
	g, errs, _ := grammar.Lint(text)
	require.Empty(t, errs)
	require.NotNil(t, g)
	return g
}

const minimalText = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: t, type: u16}
      - {name: n, type: u8}
      - {name: p, type: bytes, length: n}
record:
  use: R
`

func TestBuild_CleanRunHasNoAnomalies(t *testing.T) {
	g := mustLint(t, minimalText)
	data := []byte{0x01, 0x00, 0x03, 0x41, 0x42, 0x43, 0x02, 0x00, 0x00}
	result := parser.Parse(g, reader.NewBytes(data), "sample.bin", parser.Options{})

	artifact, err := run.Build(g, result, int64(len(data)), "spec-0001", "sample.bin", time.Unix(0, 0), "")
	require.NoError(t, err)

	assert.Empty(t, artifact.Anomalies)
	assert.Equal(t, 0, artifact.Stats.HighSeverityAnomalies)
	assert.Equal(t, 100.0, artifact.Stats.CoveragePercentage)
	assert.Equal(t, 0, artifact.Stats.ErrorCount)
	assert.NotEmpty(t, artifact.RunID)
}

func TestBuild_AbsurdLengthHighSeverity(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: payload_len, type: u32}
      - {name: p, type: bytes, length: payload_len}
record:
  use: R
`
	g := mustLint(t, text)
	// payload_len declares a length far beyond the remaining file bytes,
	// which also makes the record fail with ShortRead.
	data := []byte{0x00, 0x00, 0x10, 0x00, 0x01, 0x02}
	result := parser.Parse(g, reader.NewBytes(data), "absurd.bin", parser.Options{})
	require.NotEmpty(t, result.Errors)

	artifact, err := run.Build(g, result, int64(len(data)), "spec-0001", "absurd.bin", time.Unix(0, 0), "")
	require.NoError(t, err)

	var sawAbsurd, sawParseError, sawRecordError bool
	for _, a := range artifact.Anomalies {
		if a.Type == run.AnomalyAbsurdLength && a.Severity == run.SeverityHigh {
			sawAbsurd = true
		}
		if a.Type == run.AnomalyParseError {
			sawParseError = true
		}
		if a.Type == run.AnomalyRecordError {
			sawRecordError = true
		}
	}
	assert.True(t, sawAbsurd)
	assert.True(t, sawParseError)
	assert.True(t, sawRecordError)
	// parse_error, record_error, and the absurd length are all high.
	assert.Equal(t, 3, artifact.Stats.HighSeverityAnomalies)
}

func TestBuild_RecordEndingAtEOFNotFlagged(t *testing.T) {
	const text = `
format: record_stream
endian: little
framing: {repeat: until_eof}
types:
  R:
    fields:
      - {name: n, type: u8, validate: {equals: 0}}
      - {name: p, type: bytes, length: n}
record:
  use: R
`
	g := mustLint(t, text)
	data := []byte{0x00}
	result := parser.Parse(g, reader.NewBytes(data), "ok.bin", parser.Options{})
	require.Empty(t, result.Errors)

	artifact, err := run.Build(g, result, int64(len(data)), "spec-0001", "ok.bin", time.Unix(0, 0), "")
	require.NoError(t, err)
	assert.Empty(t, artifact.Anomalies)
}

func TestComputeRunID_IsDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	id1, err := run.ComputeRunID("spec-0001", "sample.bin", 9, ts)
	require.NoError(t, err)
	id2, err := run.ComputeRunID("spec-0001", "sample.bin", 9, ts)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := run.ComputeRunID("spec-0002", "sample.bin", 9, ts)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestMarshalUnmarshal_RoundTrips(t *testing.T) {
	g := mustLint(t, minimalText)
	data := []byte{0x01, 0x00, 0x03, 0x41, 0x42, 0x43, 0x02, 0x00, 0x00}
	result := parser.Parse(g, reader.NewBytes(data), "sample.bin", parser.Options{})

	artifact, err := run.Build(g, result, int64(len(data)), "spec-0001", "sample.bin", time.Unix(0, 0), "run-fixed-id")
	require.NoError(t, err)

	encoded, err := run.Marshal(artifact)
	require.NoError(t, err)

	decoded, err := run.Unmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, artifact.RunID, decoded.RunID)
	assert.Equal(t, artifact.Stats, decoded.Stats)
	assert.Len(t, decoded.ParseResult.Records, len(artifact.ParseResult.Records))

	// CBOR round-trips every exported field of the ParsedRecord tree
	// (equal modulo the lazily built, unexported fieldIndex cache and
	// CreatedAt, which ParseResult stamps with time.Now() and the
	// canonical encoder only preserves to whole-second precision).
	diff := cmp.Diff(artifact.ParseResult, decoded.ParseResult,
		cmpopts.IgnoreUnexported(parser.ParsedRecord{}),
		cmpopts.IgnoreFields(parser.ParseResult{}, "CreatedAt"))
	assert.Empty(t, diff)
}
