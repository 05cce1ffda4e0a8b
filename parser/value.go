package parser

import "fmt"

// ValueKind tags the tagged-variant FieldValue carried by a ParsedField.
type ValueKind int

const (
	ValueInt ValueKind = iota
	ValueBytes
	ValueText
	ValueRecord
)

func (k ValueKind) String() string {
	switch k {
	case ValueInt:
		return "int"
	case ValueBytes:
		return "bytes"
	case ValueText:
		return "text"
	case ValueRecord:
		return "record"
	default:
		return "unknown"
	}
}

// FieldValue is the parsed value of a single field: exactly one of its
// payload fields is meaningful, selected by Kind.
type FieldValue struct {
	Kind   ValueKind
	Int    int64          // valid when Kind == ValueInt; u32 stored unsigned-safe in int64
	Bytes  []byte         // valid when Kind == ValueBytes (no Encoding set)
	Text   string         // valid when Kind == ValueText (Encoding set on a bytes field)
	Record []*ParsedField // valid when Kind == ValueRecord (nested type)
}

func (v FieldValue) String() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueBytes:
		return fmt.Sprintf("% x", v.Bytes)
	case ValueText:
		return v.Text
	case ValueRecord:
		return fmt.Sprintf("<%d field(s)>", len(v.Record))
	default:
		return "<invalid>"
	}
}

// ParsedField is one field of a parsed record, in declaration order.
type ParsedField struct {
	Name     string
	Value    FieldValue
	Offset   int64
	Size     int64
	RawBytes []byte
	Color    string // normalized #rrggbb propagated from FieldDef, or ""
}

// ParsedRecord is one decoded record: offset, size, resolved type, and its
// ordered field tree. Records with Error != "" are excluded from span and
// coverage generation but remain in ParseResult.Records.
type ParsedRecord struct {
	Offset        int64
	Size          int64
	TypeName      string
	Fields        []*ParsedField
	fieldIndex    map[string]*ParsedField
	Discriminator string // normalized "0x"+hex, only set for switch dispatch
	Error         string
	ErrorKind     FieldErrorKind // zero value (ErrShortRead) is meaningless unless Error != ""
	ErrorField    string         // the field name the failure occurred on, or ""
}

// Field looks up a top-level field by name, O(1) after the first call.
func (r *ParsedRecord) Field(name string) (*ParsedField, bool) {
	if r.fieldIndex == nil {
		r.fieldIndex = make(map[string]*ParsedField, len(r.Fields))
		for _, f := range r.Fields {
			if _, exists := r.fieldIndex[f.Name]; !exists {
				r.fieldIndex[f.Name] = f
			}
		}
	}
	f, ok := r.fieldIndex[name]
	return f, ok
}
