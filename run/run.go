// Package run freezes one parse attempt into an immutable RunArtifact:
// given a ParseResult and the file size it was produced from, compute
// coverage-backed RunStats, scan for suspicious field values and
// structural breaches, and attach a content-addressable run id.
package run

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/builtwithtofu/binfmt/coverage"
	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/parser"
)

// RunStats summarizes a run.
type RunStats struct {
	RecordCount           int
	TotalBytesParsed      int64
	ParseStoppedAt        int64
	FileSize              int64
	CoveragePercentage    float64
	ErrorCount            int
	AnomalyCount          int
	HighSeverityAnomalies int
}

// RunArtifact is the immutable record of one parse attempt. It
// references a grammar version by id only (lookup, not ownership).
type RunArtifact struct {
	RunID         string
	SpecVersionID string
	CreatedAt     time.Time
	ParseResult   *parser.ParseResult
	FilePath      string
	FileSize      int64
	Anomalies     []Anomaly
	Stats         RunStats
}

// Build computes RunStats and anomalies for result and freezes a
// RunArtifact. runID, if empty, is computed via ComputeRunID; callers
// that already have an externally supplied id may pass it directly.
func Build(g *grammar.Grammar, result *parser.ParseResult, fileSize int64, specVersionID, filePath string, createdAt time.Time, runID string) (*RunArtifact, error) {
	covReport := coverage.Analyze(result, fileSize)
	anomalies := detectAnomalies(g, result, fileSize)

	high := 0
	for _, a := range anomalies {
		if a.Severity == SeverityHigh {
			high++
		}
	}

	stats := RunStats{
		RecordCount:           result.RecordCount,
		TotalBytesParsed:      result.TotalBytesParsed,
		ParseStoppedAt:        result.ParseStoppedAt,
		FileSize:              fileSize,
		CoveragePercentage:    covReport.CoveragePercentage,
		ErrorCount:            len(result.Errors),
		AnomalyCount:          len(anomalies),
		HighSeverityAnomalies: high,
	}

	if runID == "" {
		id, err := ComputeRunID(specVersionID, filePath, fileSize, createdAt)
		if err != nil {
			return nil, fmt.Errorf("run: computing run id: %w", err)
		}
		runID = id
	}

	return &RunArtifact{
		RunID:         runID,
		SpecVersionID: specVersionID,
		CreatedAt:     createdAt,
		ParseResult:   result,
		FilePath:      filePath,
		FileSize:      fileSize,
		Anomalies:     anomalies,
		Stats:         stats,
	}, nil
}

// canonicalRunKey is the narrow projection hashed to produce a run id;
// hashing a fixed four-field key rather than the whole artifact keeps
// the id stable across representation changes.
type canonicalRunKey struct {
	SpecVersionID   string
	FilePath        string
	FileSize        int64
	CreatedAtUnixNS int64
}

// ComputeRunID produces a stable, content-addressable run id: a
// canonical CBOR encoding of (spec_version_id, file_path, file_size,
// created_at) hashed with BLAKE2b-256, hex-encoded.
func ComputeRunID(specVersionID, filePath string, fileSize int64, createdAt time.Time) (string, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return "", fmt.Errorf("run: building canonical CBOR encoder: %w", err)
	}

	key := canonicalRunKey{
		SpecVersionID:   specVersionID,
		FilePath:        filePath,
		FileSize:        fileSize,
		CreatedAtUnixNS: createdAt.UnixNano(),
	}
	data, err := encMode.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("run: canonical CBOR encoding failed: %w", err)
	}

	sum := blake2b.Sum256(data)
	return "run-" + hex.EncodeToString(sum[:]), nil
}

// Marshal encodes a RunArtifact as canonical CBOR, for callers keeping
// an append-only persisted run log. CreatedAt round-trips to
// whole-second precision under the canonical encoder's default time
// mode.
func Marshal(a *RunArtifact) ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("run: building canonical CBOR encoder: %w", err)
	}
	data, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("run: CBOR encoding failed: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a RunArtifact previously produced by Marshal.
func Unmarshal(data []byte) (*RunArtifact, error) {
	var a RunArtifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("run: CBOR decoding failed: %w", err)
	}
	return &a, nil
}
