// Package grammar defines the AST of a record-stream grammar, a static
// validator (lint pass) that rejects malformed grammar text, and the YAML
// text-format boundary the rest of the toolkit is insulated from.
//
// A Grammar is immutable once built by Lint: callers never mutate an *AST
// directly. Structural edits go through the patch package, which operates
// on the document's serialized (map-of-maps) form and re-runs Lint to
// rebuild the AST.
package grammar

// Endian identifies byte order for multi-byte integer fields.
type Endian int

const (
	EndianUnspecified Endian = iota
	EndianLittle
	EndianBig
)

func (e Endian) String() string {
	switch e {
	case EndianLittle:
		return "little"
	case EndianBig:
		return "big"
	default:
		return "unspecified"
	}
}

// Primitive field types. Any FieldDef.Type not equal to one of these is a
// reference to a key in Grammar.Types.
const (
	TypeU8    = "u8"
	TypeU16   = "u16"
	TypeU32   = "u32"
	TypeBytes = "bytes"
)

// IsPrimitive reports whether t names one of the four built-in field types.
func IsPrimitive(t string) bool {
	switch t {
	case TypeU8, TypeU16, TypeU32, TypeBytes:
		return true
	default:
		return false
	}
}

// LengthKind tags a FieldDef's length resolution strategy.
type LengthKind int

const (
	LengthNone LengthKind = iota
	LengthStatic
	LengthField
	LengthExpr
)

// LengthSpec is the resolved tagged-variant length of a bytes field.
type LengthSpec struct {
	Kind   LengthKind
	Static int64  // valid when Kind == LengthStatic
	Field  string // valid when Kind == LengthField
	Expr   string // valid when Kind == LengthExpr
}

// ValidateKind tags a FieldDef's post-parse validation rule.
type ValidateKind int

const (
	ValidateNone ValidateKind = iota
	ValidateEquals
	ValidateEqualsField
	ValidateAllBytes
)

// ValidateSpec is the resolved tagged-variant validation rule of a field.
type ValidateSpec struct {
	Kind    ValidateKind
	Literal int64  // valid when Kind == ValidateEquals
	Field   string // valid when Kind == ValidateEqualsField
	Byte    byte   // valid when Kind == ValidateAllBytes
}

// FieldDef is one field within a TypeDef, in declaration order.
type FieldDef struct {
	Name     string
	Type     string // primitive name or a key in Grammar.Types
	Endian   Endian // EndianUnspecified means "inherit"
	Length   LengthSpec
	Encoding string // optional text encoding, bytes fields only
	Validate ValidateSpec
	Color    string // normalized #rrggbb, or "" if unset
}

// TypeDef is a named, ordered sequence of fields.
type TypeDef struct {
	Name   string
	Fields []*FieldDef
}

// FramingKind tags the record-stream framing strategy. until_eof is the
// only framing implemented; the tag is an extension point.
type FramingKind int

const (
	FramingUntilEOF FramingKind = iota
)

// Framing describes how the record stream is delimited.
type Framing struct {
	Kind FramingKind
}

// DispatchKind tags how the parser selects a record's type.
type DispatchKind int

const (
	DispatchUseType DispatchKind = iota
	DispatchSwitch
)

// SwitchCase is one literal -> type-name arm of a switch dispatch. Lint
// builds the cases sorted by their written literal, so their order is
// deterministic.
type SwitchCase struct {
	Literal  string // normalized "0x" + uppercase hex, for display/serialization
	Value    uint64 // parsed integer value, used for runtime dispatch lookup
	TypeName string
}

// SwitchDispatch selects a record's type by evaluating Expr (a dotted path
// into the discriminator preamble) and looking up the result in Cases,
// falling back to Default when non-empty.
type SwitchDispatch struct {
	Expr    string
	Cases   []SwitchCase
	Default string // empty means "no default"
}

// RecordDispatch is the tagged variant selecting how records are typed.
type RecordDispatch struct {
	Kind    DispatchKind
	UseType string          // valid when Kind == DispatchUseType
	Switch  *SwitchDispatch // valid when Kind == DispatchSwitch
}

// DecodeKind tags a RegistryEntry's decoder.
type DecodeKind int

const (
	DecodeString DecodeKind = iota
	DecodeU16
	DecodeU32
	DecodeHex
	DecodePackedDateV1
)

// DecodeSpec is the tagged-variant decoder attached to a registry entry.
type DecodeSpec struct {
	Kind     DecodeKind
	Field    string // explicit target field name, or "" to auto-select
	Encoding string // valid when Kind == DecodeString
	Endian   Endian // valid when Kind == DecodeU16 or DecodeU32
}

// RegistryEntry is a semantic annotation describing how to decode the
// payload of records whose discriminator matches Discriminator.
type RegistryEntry struct {
	Discriminator string // normalized "0x" + uppercase hex
	Decode        DecodeSpec
}

// Grammar is the immutable, validated AST of a record-stream format.
type Grammar struct {
	Format        string
	EndianDefault Endian
	Framing       Framing
	Types         map[string]*TypeDef
	Dispatch      RecordDispatch
	Registry      map[string]*RegistryEntry // keyed by normalized "0x"+hex literal
}

// RegistryByValue returns Registry re-keyed by the discriminator's integer
// value, used by the field decoder to look an entry up without caring how
// wide the grammar author wrote the hex literal.
func (g *Grammar) RegistryByValue() map[uint64]*RegistryEntry {
	byValue := make(map[uint64]*RegistryEntry, len(g.Registry))
	for literal, entry := range g.Registry {
		if v, err := parseHexLiteralValue(literal); err == nil {
			byValue[v] = entry
		}
	}
	return byValue
}

// EffectiveEndian resolves a field's byte order: field override first,
// then the grammar default. There is no TypeDef-level override tier.
func (g *Grammar) EffectiveEndian(f *FieldDef) Endian {
	if f.Endian != EndianUnspecified {
		return f.Endian
	}
	return g.EndianDefault
}

// TargetTypeName returns the TypeDef name to parse a record as, without
// evaluating any switch expression; callers needing the actual dispatch
// decision for a switch use the parser.
func (g *Grammar) TargetTypeName() (string, bool) {
	switch g.Dispatch.Kind {
	case DispatchUseType:
		return g.Dispatch.UseType, true
	case DispatchSwitch:
		return "", false
	default:
		return "", false
	}
}
