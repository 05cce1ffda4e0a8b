package grammar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/builtwithtofu/binfmt/exprlang"
)

// Lint parses grammar text, builds its AST, and performs the static
// checks. A Grammar is valid iff the returned error slice is empty; the
// returned *Grammar is nil when not valid.
func Lint(text string) (*Grammar, []LintError, []LintWarning) {
	doc, err := ParseText(text)
	if err != nil {
		return nil, []LintError{*newLintError(ErrInvalidFormat, "", "%v", err)}, nil
	}
	return LintDoc(doc)
}

// LintDoc validates an already-decoded Doc (used by the patch package after
// an edit, to avoid a redundant text round-trip).
func LintDoc(doc Doc) (*Grammar, []LintError, []LintWarning) {
	if shapeErr := validateShape(doc); shapeErr != nil {
		return nil, []LintError{*shapeErr}, nil
	}

	var errs []LintError
	var warnings []LintWarning

	format, _ := doc["format"].(string)
	if format != "record_stream" {
		errs = append(errs, *newLintError(ErrInvalidFormat, "format", "expected \"record_stream\", got %q", format))
		return nil, errs, warnings
	}

	endianDefault := EndianUnspecified
	if raw, ok := doc["endian"]; ok {
		s, _ := raw.(string)
		switch s {
		case "little":
			endianDefault = EndianLittle
		case "big":
			endianDefault = EndianBig
		default:
			errs = append(errs, *newLintError(ErrInvalidFormat, "endian", "expected \"little\" or \"big\", got %q", s))
		}
	}

	typesRaw, _ := doc["types"].(Doc)
	typeNames := make(map[string]bool, len(typesRaw))
	for name := range typesRaw {
		typeNames[name] = true
	}
	allFields := declaredFieldNames(typesRaw)

	types := make(map[string]*TypeDef, len(typesRaw))
	typeOrder := sortedKeys(typesRaw)
	for _, name := range typeOrder {
		tdRaw, _ := typesRaw[name].(Doc)
		td, fieldErrs, fieldWarnings := buildTypeDef(name, tdRaw, typeNames, allFields)
		types[name] = td
		errs = append(errs, fieldErrs...)
		warnings = append(warnings, fieldWarnings...)
	}

	// Check 6 needs the resolved grammar default; run after all fields
	// are built since field endian was already resolved independently.
	for _, name := range typeOrder {
		td := types[name]
		for i, f := range td.Fields {
			if (f.Type == TypeU16 || f.Type == TypeU32) && f.Endian == EndianUnspecified && endianDefault == EndianUnspecified {
				errs = append(errs, *newLintError(ErrMissingEndian,
					fmt.Sprintf("types.%s.fields[%d]", name, i),
					"field %q has no endian and grammar has no endian_default", f.Name))
			}
		}
	}

	recordRaw, _ := doc["record"].(Doc)
	dispatch, dispatchErrs, dispatchWarnings := buildDispatch(recordRaw, typeNames)
	errs = append(errs, dispatchErrs...)
	warnings = append(warnings, dispatchWarnings...)

	registryRaw, _ := doc["registry"].(Doc)
	registry, registryErrs, registryWarnings := buildRegistry(registryRaw, dispatch)
	errs = append(errs, registryErrs...)
	warnings = append(warnings, registryWarnings...)

	if len(errs) > 0 {
		return nil, errs, warnings
	}

	g := &Grammar{
		Format:        format,
		EndianDefault: endianDefault,
		Framing:       Framing{Kind: FramingUntilEOF},
		Types:         types,
		Dispatch:      dispatch,
		Registry:      registry,
	}

	warnings = append(warnings, unusedTypeWarnings(g)...)
	warnings = append(warnings, shadowedLengthRefWarnings(g)...)

	return g, errs, warnings
}

// shadowedLengthRefWarnings flags TypeDefs where a nested type contributes
// a field name that collides with another field name visible at the same
// flattening level; the parser resolves such collisions first-declaration-
// wins. This is a best-effort, per-TypeDef approximation: the parser's
// actual context at any given record also depends on the dispatch path
// taken for that record, which lint time cannot fully enumerate.
func shadowedLengthRefWarnings(g *Grammar) []LintWarning {
	var warnings []LintWarning
	for _, typeName := range sortedTypeNames(g.Types) {
		td := g.Types[typeName]
		seen := map[string]bool{}
		for _, f := range td.Fields {
			names := []string{f.Name}
			if nested, ok := g.Types[f.Type]; ok {
				for _, nf := range nested.Fields {
					names = append(names, nf.Name)
				}
			}
			for _, n := range names {
				if seen[n] {
					warnings = append(warnings, newLintWarning(WarnShadowedLengthRef,
						fmt.Sprintf("types.%s", typeName),
						"field name %q is contributed by more than one field at this scope; first declaration wins", n))
				}
				seen[n] = true
			}
		}
	}
	return warnings
}

// declaredFieldNames collects every field name declared by any type in
// the document. A length may name a field parsed at another nesting
// level (resolved against the record's flattened scope at parse time),
// so referential length checks run against this set rather than only
// the fields declared earlier in the same type.
func declaredFieldNames(typesRaw Doc) map[string]bool {
	names := map[string]bool{}
	for _, raw := range typesRaw {
		tdRaw, _ := raw.(Doc)
		fieldsRaw, _ := tdRaw["fields"].([]interface{})
		for _, f := range fieldsRaw {
			fieldDoc, _ := f.(Doc)
			if n, _ := fieldDoc["name"].(string); n != "" {
				names[n] = true
			}
		}
	}
	return names
}

func sortedKeys(d Doc) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildTypeDef(name string, tdRaw Doc, typeNames, allFields map[string]bool) (*TypeDef, []LintError, []LintWarning) {
	var errs []LintError
	var warnings []LintWarning

	fieldsRaw, _ := tdRaw["fields"].([]interface{})
	if len(fieldsRaw) == 0 {
		errs = append(errs, *newLintError(ErrEmptyType, "types."+name, "type must declare at least one field"))
	}

	seen := map[string]bool{}
	fields := make([]*FieldDef, 0, len(fieldsRaw))
	for i, raw := range fieldsRaw {
		fieldDoc, ok := raw.(Doc)
		if !ok {
			errs = append(errs, *newLintError(ErrInvalidFieldDef, fmt.Sprintf("types.%s.fields[%d]", name, i), "field must be a mapping"))
			continue
		}
		path := fmt.Sprintf("types.%s.fields[%d]", name, i)
		f, fErrs, fWarnings := buildFieldDef(path, fieldDoc, typeNames, seen, allFields)
		errs = append(errs, fErrs...)
		warnings = append(warnings, fWarnings...)
		if f != nil {
			fields = append(fields, f)
			seen[f.Name] = true
		}
	}

	return &TypeDef{Name: name, Fields: fields}, errs, warnings
}

func buildFieldDef(path string, d Doc, typeNames, priorFields, allFields map[string]bool) (*FieldDef, []LintError, []LintWarning) {
	var errs []LintError
	var warnings []LintWarning

	name, _ := d["name"].(string)
	if name == "" {
		errs = append(errs, *newLintError(ErrInvalidFieldDef, path, "field name must not be empty"))
	}
	typ, _ := d["type"].(string)
	if typ == "" {
		errs = append(errs, *newLintError(ErrInvalidFieldDef, path, "field type must not be empty"))
	} else if !IsPrimitive(typ) && !typeNames[typ] {
		errs = append(errs, *newLintError(ErrUnknownType, path, "field type %q is neither a primitive nor a declared type", typ))
	}

	f := &FieldDef{Name: name, Type: typ}

	if raw, ok := d["endian"]; ok {
		s, _ := raw.(string)
		switch s {
		case "little":
			f.Endian = EndianLittle
		case "big":
			f.Endian = EndianBig
		default:
			errs = append(errs, *newLintError(ErrInvalidFieldDef, path, "invalid endian %q", s))
		}
	}

	if typ == TypeBytes {
		length, lengthErrs := resolveLength(path, d["length"], priorFields, allFields)
		errs = append(errs, lengthErrs...)
		f.Length = length
	} else if _, has := d["length"]; has {
		errs = append(errs, *newLintError(ErrInvalidFieldDef, path, "only bytes fields may specify length"))
	}

	if raw, ok := d["encoding"]; ok {
		f.Encoding, _ = raw.(string)
	}

	if raw, ok := d["validate"]; ok {
		vd, _ := raw.(Doc)
		spec, vErrs := resolveValidate(path, vd)
		errs = append(errs, vErrs...)
		f.Validate = spec
	}

	if raw, ok := d["color"]; ok {
		s, _ := raw.(string)
		normalized, err := normalizeColor(s)
		if err != nil {
			errs = append(errs, *newLintError(ErrInvalidColor, path, "%v", err))
		} else {
			f.Color = normalized
		}
	}

	return f, errs, warnings
}

func resolveLength(path string, raw interface{}, priorFields, allFields map[string]bool) (LengthSpec, []LintError) {
	if raw == nil {
		return LengthSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "bytes field must specify length_static, length_field, or length_expr")}
	}
	switch v := raw.(type) {
	case int:
		if v < 0 {
			return LengthSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "length_static must be >= 0, got %d", v)}
		}
		return LengthSpec{Kind: LengthStatic, Static: int64(v)}, nil
	case int64:
		if v < 0 {
			return LengthSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "length_static must be >= 0, got %d", v)}
		}
		return LengthSpec{Kind: LengthStatic, Static: v}, nil
	case string:
		if n, ok := exprlang.IsLiteralInt(v); ok {
			if n < 0 {
				return LengthSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "length_static must be >= 0, got %d", n)}
			}
			return LengthSpec{Kind: LengthStatic, Static: n}, nil
		}
		if priorFields[v] {
			return LengthSpec{Kind: LengthField, Field: v}, nil
		}
		if err := exprlang.Validate(v); err != nil {
			return LengthSpec{}, []LintError{*newLintError(ErrUnresolvedLengthRef, path, "length %q is neither a known prior field nor a valid expression", v)}
		}
		ids, _ := exprlang.Identifiers(v)
		if len(ids) == 1 && strings.TrimSpace(v) == ids[0] {
			// A bare identifier is a field reference, never an expression.
			// It may name a field declared in another type (resolved
			// against the record's flattened scope at parse time), but a
			// name declared nowhere can never resolve.
			if allFields[ids[0]] {
				return LengthSpec{Kind: LengthField, Field: ids[0]}, nil
			}
			return LengthSpec{}, []LintError{*newLintError(ErrUnresolvedLengthRef, path, "length field %q is not declared by any type", ids[0])}
		}
		for _, id := range ids {
			if !priorFields[id] && !allFields[id] {
				return LengthSpec{}, []LintError{*newLintError(ErrUnresolvedLengthRef, path, "length expression %q references undeclared field %q", v, id)}
			}
		}
		return LengthSpec{Kind: LengthExpr, Expr: v}, nil
	default:
		return LengthSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "length must be an integer or string")}
	}
}

func resolveValidate(path string, d Doc) (ValidateSpec, []LintError) {
	if d == nil {
		return ValidateSpec{}, nil
	}
	if raw, ok := d["equals"]; ok {
		n, err := toInt64(raw)
		if err != nil {
			return ValidateSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "validate.equals: %v", err)}
		}
		return ValidateSpec{Kind: ValidateEquals, Literal: n}, nil
	}
	if raw, ok := d["equals_field"]; ok {
		s, _ := raw.(string)
		return ValidateSpec{Kind: ValidateEqualsField, Field: s}, nil
	}
	if raw, ok := d["all_bytes"]; ok {
		n, err := toInt64(raw)
		if err != nil || n < 0 || n > 255 {
			return ValidateSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "validate.all_bytes must be a byte value 0-255")}
		}
		return ValidateSpec{Kind: ValidateAllBytes, Byte: byte(n)}, nil
	}
	return ValidateSpec{}, []LintError{*newLintError(ErrInvalidFieldDef, path, "validate must specify equals, equals_field, or all_bytes")}
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", raw)
	}
}

func buildDispatch(recordRaw Doc, typeNames map[string]bool) (RecordDispatch, []LintError, []LintWarning) {
	var errs []LintError
	var warnings []LintWarning

	if use, ok := recordRaw["use"].(string); ok {
		if !typeNames[use] {
			errs = append(errs, *newLintError(ErrInvalidDispatch, "record.use", "referenced type %q does not exist", use))
		}
		return RecordDispatch{Kind: DispatchUseType, UseType: use}, errs, warnings
	}

	switchRaw, ok := recordRaw["switch"].(Doc)
	if !ok {
		errs = append(errs, *newLintError(ErrInvalidDispatch, "record", "record must specify either use or switch"))
		return RecordDispatch{}, errs, warnings
	}

	expr, _ := switchRaw["expr"].(string)
	if expr == "" {
		errs = append(errs, *newLintError(ErrInvalidDispatch, "record.switch.expr", "switch expr must not be empty"))
	}

	casesRaw, _ := switchRaw["cases"].(Doc)
	var cases []SwitchCase
	for _, literal := range sortedKeys(casesRaw) {
		typeName, _ := casesRaw[literal].(string)
		normalized, err := normalizeDiscriminator(literal)
		if err != nil {
			errs = append(errs, *newLintError(ErrInvalidDispatch, "record.switch.cases", "%v", err))
			continue
		}
		if !typeNames[typeName] {
			errs = append(errs, *newLintError(ErrInvalidDispatch, "record.switch.cases."+literal, "referenced type %q does not exist", typeName))
			continue
		}
		value, _ := parseHexLiteralValue(normalized)
		cases = append(cases, SwitchCase{Literal: normalized, Value: value, TypeName: typeName})
	}
	if len(cases) == 0 {
		warnings = append(warnings, newLintWarning(WarnEmptyDispatchCases, "record.switch.cases", "switch has no cases"))
	}

	def, _ := switchRaw["default"].(string)
	if def != "" && !typeNames[def] {
		errs = append(errs, *newLintError(ErrInvalidDispatch, "record.switch.default", "referenced type %q does not exist", def))
	}

	return RecordDispatch{
		Kind: DispatchSwitch,
		Switch: &SwitchDispatch{
			Expr:    expr,
			Cases:   cases,
			Default: def,
		},
	}, errs, warnings
}

func buildRegistry(registryRaw Doc, dispatch RecordDispatch) (map[string]*RegistryEntry, []LintError, []LintWarning) {
	var errs []LintError
	var warnings []LintWarning
	registry := make(map[string]*RegistryEntry, len(registryRaw))

	dispatchLiterals := map[string]bool{}
	if dispatch.Kind == DispatchSwitch && dispatch.Switch != nil {
		for _, c := range dispatch.Switch.Cases {
			dispatchLiterals[c.Literal] = true
		}
	}

	for _, key := range sortedKeys(registryRaw) {
		normalized, err := normalizeDiscriminator(key)
		if err != nil {
			errs = append(errs, *newLintError(ErrInvalidRegistry, "registry."+key, "%v", err))
			continue
		}
		entryRaw, _ := registryRaw[key].(Doc)
		decodeRaw, _ := entryRaw["decode"].(Doc)
		spec, decodeErrs := resolveDecodeSpec("registry."+key+".decode", decodeRaw)
		errs = append(errs, decodeErrs...)
		registry[normalized] = &RegistryEntry{Discriminator: normalized, Decode: spec}

		if dispatch.Kind == DispatchSwitch && len(dispatchLiterals) > 0 && !dispatchLiterals[normalized] {
			warnings = append(warnings, newLintWarning(WarnUnmatchedRegistryKey, "registry."+key, "no switch case matches discriminator %s", normalized))
		}
	}

	return registry, errs, warnings
}

func resolveDecodeSpec(path string, d Doc) (DecodeSpec, []LintError) {
	var errs []LintError
	as, _ := d["as"].(string)
	spec := DecodeSpec{}
	switch as {
	case "string":
		spec.Kind = DecodeString
		spec.Encoding, _ = d["encoding"].(string)
	case "u16":
		spec.Kind = DecodeU16
	case "u32":
		spec.Kind = DecodeU32
	case "hex":
		spec.Kind = DecodeHex
	case "packed_date_v1":
		spec.Kind = DecodePackedDateV1
	default:
		errs = append(errs, *newLintError(ErrInvalidRegistry, path, "unrecognized decoder kind %q", as))
	}
	if field, ok := d["field"].(string); ok {
		spec.Field = field
	}
	if spec.Kind == DecodeU16 || spec.Kind == DecodeU32 {
		if s, ok := d["endian"].(string); ok {
			switch s {
			case "little":
				spec.Endian = EndianLittle
			case "big":
				spec.Endian = EndianBig
			default:
				errs = append(errs, *newLintError(ErrInvalidRegistry, path, "invalid endian %q", s))
			}
		}
	}
	return spec, errs
}

// parseHexLiteralValue parses an already-normalized "0x" + hex literal back
// to its integer value, for building value-keyed lookup maps.
func parseHexLiteralValue(normalized string) (uint64, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(normalized, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// normalizeDiscriminator normalizes a discriminator literal to "0x" +
// uppercase hex, width padded to the smallest multiple of two hex digits
// that fits the written literal. Normalization is idempotent.
func normalizeDiscriminator(literal string) (string, error) {
	s := strings.TrimSpace(literal)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" || !isHex(s) {
		return "", fmt.Errorf("invalid discriminator literal %q: expected 0x[0-9A-Fa-f]+", literal)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid discriminator literal %q: %v", literal, err)
	}
	digits := len(s)
	if digits%2 != 0 {
		digits++
	}
	return fmt.Sprintf("0x%0*X", digits, v), nil
}

func unusedTypeWarnings(g *Grammar) []LintWarning {
	reachable := map[string]bool{}
	var roots []string
	switch g.Dispatch.Kind {
	case DispatchUseType:
		roots = append(roots, g.Dispatch.UseType)
	case DispatchSwitch:
		if g.Dispatch.Switch != nil {
			for _, c := range g.Dispatch.Switch.Cases {
				roots = append(roots, c.TypeName)
			}
			if g.Dispatch.Switch.Default != "" {
				roots = append(roots, g.Dispatch.Switch.Default)
			}
		}
	}

	var walk func(name string)
	walk = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		td, ok := g.Types[name]
		if !ok {
			return
		}
		for _, f := range td.Fields {
			if !IsPrimitive(f.Type) {
				walk(f.Type)
			}
		}
	}
	for _, r := range roots {
		walk(r)
	}

	var warnings []LintWarning
	for _, name := range sortedTypeNames(g.Types) {
		if !reachable[name] {
			warnings = append(warnings, newLintWarning(WarnUnusedType, "types."+name, "type %q is not reachable from record_dispatch", name))
		}
	}
	return warnings
}

func sortedTypeNames(m map[string]*TypeDef) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
