// Package patch implements typed, path-addressed edit operations
// against a grammar's serialized (map-of-maps) form, applied atomically
// against a deep copy and re-validated with the full lint pass before
// being accepted.
package patch

import (
	"fmt"

	"github.com/builtwithtofu/binfmt/grammar"
)

// OpKind enumerates the six frozen edit-operation variants.
type OpKind int

const (
	OpInsertField OpKind = iota
	OpUpdateField
	OpDeleteField
	OpAddType
	OpUpdateType
	OpAddRegistryEntry
)

func (k OpKind) String() string {
	names := [...]string{"InsertField", "UpdateField", "DeleteField", "AddType", "UpdateType", "AddRegistryEntry"}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Path navigates the grammar document tree; each element is a string
// map key or an int slice index.
type Path []interface{}

func (p Path) String() string {
	s := ""
	for i, el := range p {
		if i > 0 {
			s += "."
		}
		switch v := el.(type) {
		case string:
			s += v
		case int:
			s += fmt.Sprintf("[%d]", v)
		default:
			s += fmt.Sprintf("%v", v)
		}
	}
	return s
}

// Op is one structural edit. Only the fields relevant to Kind are read
// -- the same tagged-variant style as grammar.LengthSpec/ValidateSpec
// rather than an interface per variant, since ops are data
// (serialized/logged) rather than behavior.
type Op struct {
	Kind          OpKind
	Path          Path
	Index         int         // InsertField; -1 means append
	FieldDef      grammar.Doc // InsertField
	Updates       grammar.Doc // UpdateField, UpdateType
	TypeDef       grammar.Doc // AddType
	RegistryEntry grammar.Doc // AddRegistryEntry
}

// OpErrorKind enumerates the structural failure modes of a single op
// (post-apply lint errors are reported separately by Apply).
type OpErrorKind int

const (
	ErrUnknownPath OpErrorKind = iota
	ErrIndexOutOfRange
	ErrDuplicateKey
	ErrInvalidOp
)

func (k OpErrorKind) String() string {
	names := [...]string{"UnknownPath", "IndexOutOfRange", "DuplicateKey", "InvalidOp"}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// OpError is a structural failure of a single PatchOp, either at
// Validate() time or during Apply.
type OpError struct {
	Kind    OpErrorKind
	Op      OpKind
	Path    Path
	Message string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Kind, e.Path, e.Message)
}

func opErr(kind OpErrorKind, op Op, format string, args ...interface{}) *OpError {
	return &OpError{Kind: kind, Op: op.Kind, Path: op.Path, Message: fmt.Sprintf(format, args...)}
}

// Patch is an atomically applied, ordered sequence of Ops.
type Patch struct {
	Ops         []Op
	Description string
}

// Validate checks an Op's structural shape only; it does not require a
// grammar. Referential checks happen at Apply time and in the post-
// apply lint pass.
func (op Op) Validate() error {
	switch op.Kind {
	case OpInsertField:
		if len(op.Path) != 2 || op.Path[0] != "types" {
			return opErr(ErrUnknownPath, op, `path must be ("types", T)`)
		}
		if _, ok := op.Path[1].(string); !ok {
			return opErr(ErrUnknownPath, op, "type name must be a string")
		}
		if op.Index < -1 {
			return opErr(ErrInvalidOp, op, "index must be -1 (append) or >= 0")
		}
		if op.FieldDef == nil || op.FieldDef["name"] == "" || op.FieldDef["name"] == nil {
			return opErr(ErrInvalidOp, op, "field_def must have a non-empty name")
		}
		if t, _ := op.FieldDef["type"].(string); t == "" {
			return opErr(ErrInvalidOp, op, "field_def must have a non-empty type")
		}
		return nil
	case OpUpdateField:
		if err := validateFieldPath(op); err != nil {
			return err
		}
		if op.Updates == nil {
			return opErr(ErrInvalidOp, op, "updates must not be nil")
		}
		return nil
	case OpDeleteField:
		return validateFieldPath(op)
	case OpAddType:
		if len(op.Path) != 2 || op.Path[0] != "types" {
			return opErr(ErrUnknownPath, op, `path must be ("types", T)`)
		}
		if _, ok := op.Path[1].(string); !ok {
			return opErr(ErrUnknownPath, op, "type name must be a string")
		}
		if op.TypeDef == nil {
			return opErr(ErrInvalidOp, op, "type_def must not be nil")
		}
		return nil
	case OpUpdateType:
		if len(op.Path) != 2 || op.Path[0] != "types" {
			return opErr(ErrUnknownPath, op, `path must be ("types", T)`)
		}
		if op.Updates == nil {
			return opErr(ErrInvalidOp, op, "updates must not be nil")
		}
		return nil
	case OpAddRegistryEntry:
		if len(op.Path) != 2 || op.Path[0] != "registry" {
			return opErr(ErrUnknownPath, op, `path must be ("registry", discriminator)`)
		}
		if _, ok := op.Path[1].(string); !ok {
			return opErr(ErrUnknownPath, op, "discriminator must be a string")
		}
		if op.RegistryEntry == nil || op.RegistryEntry["decode"] == nil {
			return opErr(ErrInvalidOp, op, "registry entry must have a decode block")
		}
		return nil
	default:
		return opErr(ErrInvalidOp, op, "unrecognized op kind")
	}
}

func validateFieldPath(op Op) error {
	if len(op.Path) != 4 || op.Path[0] != "types" || op.Path[2] != "fields" {
		return opErr(ErrUnknownPath, op, `path must be ("types", T, "fields", i)`)
	}
	if _, ok := op.Path[1].(string); !ok {
		return opErr(ErrUnknownPath, op, "type name must be a string")
	}
	if _, ok := op.Path[3].(int); !ok {
		return opErr(ErrUnknownPath, op, "field index must be an int")
	}
	return nil
}

// Result is the outcome of a successful Apply.
type Result struct {
	Doc      grammar.Doc
	Grammar  *grammar.Grammar
	Warnings []grammar.LintWarning
}

// Apply validates every op, then applies the whole Patch against a deep
// copy of baseDoc. If any op fails structurally, or the applied result
// fails the full lint pass, the copy is discarded and baseDoc is
// untouched -- Apply is atomic.
func Apply(baseDoc grammar.Doc, p Patch) (*Result, []error) {
	for _, op := range p.Ops {
		if err := op.Validate(); err != nil {
			return nil, []error{err}
		}
	}

	working, ok := deepCopyDoc(baseDoc).(grammar.Doc)
	if !ok {
		return nil, []error{fmt.Errorf("patch: base document is not a valid grammar document")}
	}

	for i, op := range p.Ops {
		if err := applyOp(working, op); err != nil {
			return nil, []error{fmt.Errorf("op %d (%s): %w", i, op.Kind, err)}
		}
	}

	g, lintErrs, lintWarnings := grammar.LintDoc(working)
	if len(lintErrs) > 0 {
		errs := make([]error, len(lintErrs))
		for i := range lintErrs {
			e := lintErrs[i]
			errs[i] = &e
		}
		return nil, errs
	}

	return &Result{Doc: working, Grammar: g, Warnings: lintWarnings}, nil
}

func applyOp(doc grammar.Doc, op Op) error {
	switch op.Kind {
	case OpInsertField:
		return applyInsertField(doc, op)
	case OpUpdateField:
		return applyUpdateField(doc, op)
	case OpDeleteField:
		return applyDeleteField(doc, op)
	case OpAddType:
		return applyAddType(doc, op)
	case OpUpdateType:
		return applyUpdateType(doc, op)
	case OpAddRegistryEntry:
		return applyAddRegistryEntry(doc, op)
	default:
		return opErr(ErrInvalidOp, op, "unrecognized op kind")
	}
}

func typeDoc(doc grammar.Doc, op Op, name string) (grammar.Doc, error) {
	types, _ := doc["types"].(grammar.Doc)
	if types == nil {
		return nil, opErr(ErrUnknownPath, op, "document has no types")
	}
	td, ok := types[name].(grammar.Doc)
	if !ok {
		return nil, opErr(ErrUnknownPath, op, "type %q does not exist", name)
	}
	return td, nil
}

func applyInsertField(doc grammar.Doc, op Op) error {
	typeName := op.Path[1].(string)
	td, err := typeDoc(doc, op, typeName)
	if err != nil {
		return err
	}
	fields, _ := td["fields"].([]interface{})

	idx := op.Index
	if idx == -1 {
		idx = len(fields)
	}
	if idx < 0 || idx > len(fields) {
		return opErr(ErrIndexOutOfRange, op, "index %d out of range [0,%d]", idx, len(fields))
	}

	fieldType, _ := op.FieldDef["type"].(string)
	if !grammar.IsPrimitive(fieldType) {
		types, _ := doc["types"].(grammar.Doc)
		if _, ok := types[fieldType]; !ok {
			return opErr(ErrInvalidOp, op, "field_def type %q is neither a primitive nor an existing type", fieldType)
		}
	}

	newFields := make([]interface{}, 0, len(fields)+1)
	newFields = append(newFields, fields[:idx]...)
	newFields = append(newFields, deepCopyDoc(op.FieldDef))
	newFields = append(newFields, fields[idx:]...)
	td["fields"] = newFields
	return nil
}

func fieldsAndIndex(doc grammar.Doc, op Op) ([]interface{}, int, grammar.Doc, error) {
	typeName := op.Path[1].(string)
	td, err := typeDoc(doc, op, typeName)
	if err != nil {
		return nil, 0, nil, err
	}
	fields, _ := td["fields"].([]interface{})
	idx := op.Path[3].(int)
	if idx < 0 || idx >= len(fields) {
		return nil, 0, nil, opErr(ErrIndexOutOfRange, op, "index %d out of range [0,%d)", idx, len(fields))
	}
	return fields, idx, td, nil
}

var recognizedFieldKeys = map[string]bool{
	"name": true, "type": true, "endian": true, "length": true,
	"encoding": true, "validate": true, "color": true,
}

func applyUpdateField(doc grammar.Doc, op Op) error {
	fields, idx, _, err := fieldsAndIndex(doc, op)
	if err != nil {
		return err
	}
	fieldDoc, ok := fields[idx].(grammar.Doc)
	if !ok {
		return opErr(ErrInvalidOp, op, "field at index %d is not a valid field document", idx)
	}
	for k, v := range op.Updates {
		if !recognizedFieldKeys[k] {
			continue
		}
		fieldDoc[k] = deepCopyDoc(v)
	}
	return nil
}

func applyDeleteField(doc grammar.Doc, op Op) error {
	fields, idx, td, err := fieldsAndIndex(doc, op)
	if err != nil {
		return err
	}
	newFields := make([]interface{}, 0, len(fields)-1)
	newFields = append(newFields, fields[:idx]...)
	newFields = append(newFields, fields[idx+1:]...)
	td["fields"] = newFields
	return nil
}

func applyAddType(doc grammar.Doc, op Op) error {
	typeName := op.Path[1].(string)
	types, _ := doc["types"].(grammar.Doc)
	if types == nil {
		types = grammar.Doc{}
		doc["types"] = types
	}
	if _, exists := types[typeName]; exists {
		return opErr(ErrDuplicateKey, op, "type %q already exists", typeName)
	}
	types[typeName] = deepCopyDoc(op.TypeDef)
	return nil
}

func applyUpdateType(doc grammar.Doc, op Op) error {
	typeName := op.Path[1].(string)
	td, err := typeDoc(doc, op, typeName)
	if err != nil {
		return err
	}
	for k, v := range op.Updates {
		td[k] = deepCopyDoc(v)
	}
	return nil
}

func applyAddRegistryEntry(doc grammar.Doc, op Op) error {
	discriminator := op.Path[1].(string)
	registry, _ := doc["registry"].(grammar.Doc)
	if registry == nil {
		registry = grammar.Doc{}
		doc["registry"] = registry
	}
	if _, exists := registry[discriminator]; exists {
		return opErr(ErrDuplicateKey, op, "registry entry %q already exists", discriminator)
	}
	registry[discriminator] = deepCopyDoc(op.RegistryEntry)
	return nil
}

// deepCopyDoc recursively copies a grammar.Doc tree so Apply can mutate a
// working copy without ever touching baseDoc.
func deepCopyDoc(v interface{}) interface{} {
	switch val := v.(type) {
	case grammar.Doc:
		out := make(grammar.Doc, len(val))
		for k, e := range val {
			out[k] = deepCopyDoc(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = deepCopyDoc(e)
		}
		return out
	default:
		return v
	}
}
