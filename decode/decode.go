// Package decode implements the registry-driven field decoder: given a
// parsed record and the grammar it came from, render a registry entry's
// target field as a display string. Decode never raises; every failure
// mode is returned as a DecodedValue with Success == false and a Reason.
package decode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/parser"
)

// Reason enumerates Decode's failure vocabulary.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoDiscriminator Reason = "NoDiscriminator"
	ReasonNoRegistry      Reason = "NoRegistry"
	ReasonNoField         Reason = "NoField"
	ReasonInsufficient    Reason = "Insufficient"
	ReasonInvalidEncoding Reason = "InvalidEncoding"
)

// DecodedValue is the outcome of Decode: always populated, never an
// error return.
type DecodedValue struct {
	Success     bool
	Value       string
	DecoderType string
	FieldPath   string
	Reason      Reason
	Error       string
}

func fail(reason Reason, format string, args ...interface{}) DecodedValue {
	return DecodedValue{Success: false, Reason: reason, Error: fmt.Sprintf(format, args...)}
}

// Decode renders rec's registry-annotated field. When fieldName is
// non-empty it overrides the registry entry's own field selection.
func Decode(rec *parser.ParsedRecord, g *grammar.Grammar, fieldName string) DecodedValue {
	if rec.Discriminator == "" {
		return fail(ReasonNoDiscriminator, "record has no discriminator (dispatch is not a switch, or no registry entry applies)")
	}

	entry, ok := lookupEntry(g, rec.Discriminator)
	if !ok {
		return fail(ReasonNoRegistry, "no registry entry for discriminator %s", rec.Discriminator)
	}

	targetName := fieldName
	if targetName == "" {
		targetName = entry.Decode.Field
	}

	var field *parser.ParsedField
	if targetName != "" {
		field, ok = rec.Field(targetName)
		if !ok {
			return fail(ReasonNoField, "field %q not found on record", targetName)
		}
	} else {
		field, ok = autoSelect(rec, g, entry.Decode.Kind)
		if !ok {
			return fail(ReasonNoField, "no suitable field for decoder kind %v", entry.Decode.Kind)
		}
	}

	return applyDecode(field, entry.Decode, g)
}

// lookupEntry resolves a registry entry for disc, matching first on the
// normalized literal and then on the integer value, so an entry keyed
// "0x65" still matches a u16 discriminator formatted as "0x0065".
func lookupEntry(g *grammar.Grammar, disc string) (*grammar.RegistryEntry, bool) {
	if entry, ok := g.Registry[disc]; ok {
		return entry, true
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(disc, "0x"), 16, 64)
	if err != nil {
		return nil, false
	}
	entry, ok := g.RegistryByValue()[v]
	return entry, ok
}

// autoSelect picks the registry entry's implicit target field: the first
// bytes-typed field for string/hex/packed_date_v1, or the first integer
// field of the matching width for u16/u32.
func autoSelect(rec *parser.ParsedRecord, g *grammar.Grammar, kind grammar.DecodeKind) (*parser.ParsedField, bool) {
	td, ok := g.Types[rec.TypeName]
	if !ok {
		return nil, false
	}
	var want string
	switch kind {
	case grammar.DecodeString, grammar.DecodeHex, grammar.DecodePackedDateV1:
		want = grammar.TypeBytes
	case grammar.DecodeU16:
		want = grammar.TypeU16
	case grammar.DecodeU32:
		want = grammar.TypeU32
	default:
		return nil, false
	}
	for _, fd := range td.Fields {
		if fd.Type == want {
			return rec.Field(fd.Name)
		}
	}
	return nil, false
}

func applyDecode(field *parser.ParsedField, spec grammar.DecodeSpec, g *grammar.Grammar) DecodedValue {
	path := field.Name
	switch spec.Kind {
	case grammar.DecodeString:
		return DecodedValue{Success: true, Value: parser.DecodeText(spec.Encoding, field.RawBytes), DecoderType: "string", FieldPath: path}
	case grammar.DecodeHex:
		return DecodedValue{Success: true, Value: fmt.Sprintf("%x", field.RawBytes), DecoderType: "hex", FieldPath: path}
	case grammar.DecodeU16:
		return decodeUint(field, spec, g, 2, "u16")
	case grammar.DecodeU32:
		return decodeUint(field, spec, g, 4, "u32")
	case grammar.DecodePackedDateV1:
		return decodePackedDateV1(field, path)
	default:
		return fail(ReasonNoField, "unrecognized decoder kind")
	}
}

func decodeUint(field *parser.ParsedField, spec grammar.DecodeSpec, g *grammar.Grammar, width int, label string) DecodedValue {
	if len(field.RawBytes) < width {
		v := fail(ReasonInsufficient, "need %d byte(s), got %d", width, len(field.RawBytes))
		v.DecoderType = label
		v.FieldPath = field.Name
		return v
	}
	endian := spec.Endian
	if endian == grammar.EndianUnspecified {
		endian = g.EndianDefault
	}
	var value uint64
	raw := field.RawBytes[:width]
	if endian == grammar.EndianBig {
		for _, b := range raw {
			value = value<<8 | uint64(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			value = value<<8 | uint64(raw[i])
		}
	}
	return DecodedValue{Success: true, Value: fmt.Sprintf("%d", value), DecoderType: label, FieldPath: field.Name}
}

// decodePackedDateV1 decodes the 4-byte packed date structure
// [day<<3|flags, month<<1|reserved, year_lo, year_hi] as YYYY-MM-DD.
func decodePackedDateV1(field *parser.ParsedField, path string) DecodedValue {
	raw := field.RawBytes
	if len(raw) < 4 {
		return DecodedValue{Success: false, Reason: ReasonInsufficient, DecoderType: "packed_date_v1", FieldPath: path,
			Error: fmt.Sprintf("need 4 byte(s), got %d", len(raw))}
	}
	b0, b1, b2, b3 := raw[0], raw[1], raw[2], raw[3]
	if b1&0x01 != 0 {
		return DecodedValue{Success: false, Reason: ReasonInvalidEncoding, DecoderType: "packed_date_v1", FieldPath: path,
			Error: "low bit of byte 1 must be 0"}
	}
	day := int(b0 >> 3)
	month := int(b1 >> 1)
	year := int(b2) | int(b3)<<8
	if month < 1 || month > 12 {
		return DecodedValue{Success: false, Reason: ReasonInvalidEncoding, DecoderType: "packed_date_v1", FieldPath: path,
			Error: fmt.Sprintf("month %d out of range [1,12]", month)}
	}
	if day < 1 || day > 31 {
		return DecodedValue{Success: false, Reason: ReasonInvalidEncoding, DecoderType: "packed_date_v1", FieldPath: path,
			Error: fmt.Sprintf("day %d out of range [1,31]", day)}
	}
	return DecodedValue{Success: true, Value: fmt.Sprintf("%04d-%02d-%02d", year, month, day), DecoderType: "packed_date_v1", FieldPath: path}
}
