package grammar

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Doc is the raw, untyped serialized form of a grammar document: a nested
// tree of maps, slices, strings, and numbers decoded from YAML text. Doc is
// the form the patch package edits; Lint rebuilds a typed *Grammar from a
// Doc (or from text, which is decoded into a Doc first).
type Doc = map[string]interface{}

// ParseText decodes YAML grammar text into its raw Doc form. It performs
// no semantic validation; use Lint to obtain a validated *Grammar.
func ParseText(text string) (Doc, error) {
	var raw interface{}
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("grammar: invalid YAML: %w", err)
	}
	doc, ok := normalizeDoc(raw).(Doc)
	if !ok {
		return nil, fmt.Errorf("grammar: document root must be a mapping")
	}
	return doc, nil
}

// normalizeDoc recursively converts yaml.v3's decoded values into
// map[string]interface{} / []interface{} form (yaml.v3 already does this
// for string-keyed maps, but defensively re-keys any map[interface{}]interface{}
// that could arise from non-string keys such as bare hex-looking keys).
func normalizeDoc(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(Doc, len(val))
		for k, e := range val {
			out[k] = normalizeDoc(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(Doc, len(val))
		for k, e := range val {
			out[fmt.Sprintf("%v", k)] = normalizeDoc(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeDoc(e)
		}
		return out
	default:
		return v
	}
}

// Serialize renders a validated Grammar back to canonical YAML text. It
// is the inverse of Lint: for any validated g, Lint(Serialize(g)) must
// produce an equal AST.
func Serialize(g *Grammar) (string, error) {
	doc := toDoc(g)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("grammar: serialize failed: %w", err)
	}
	return string(out), nil
}

func toDoc(g *Grammar) Doc {
	doc := Doc{
		"format": g.Format,
	}
	if g.EndianDefault != EndianUnspecified {
		doc["endian"] = g.EndianDefault.String()
	}
	doc["framing"] = Doc{"repeat": "until_eof"}

	types := Doc{}
	for name, td := range g.Types {
		types[name] = typeDefToDoc(td)
	}
	doc["types"] = types

	record := Doc{}
	switch g.Dispatch.Kind {
	case DispatchUseType:
		record["use"] = g.Dispatch.UseType
	case DispatchSwitch:
		cases := Doc{}
		for _, c := range g.Dispatch.Switch.Cases {
			cases[c.Literal] = c.TypeName
		}
		sw := Doc{"expr": g.Dispatch.Switch.Expr, "cases": cases}
		if g.Dispatch.Switch.Default != "" {
			sw["default"] = g.Dispatch.Switch.Default
		}
		record["switch"] = sw
	}
	doc["record"] = record

	if len(g.Registry) > 0 {
		registry := Doc{}
		for disc, entry := range g.Registry {
			registry[disc] = registryEntryToDoc(entry)
		}
		doc["registry"] = registry
	}
	return doc
}

func typeDefToDoc(td *TypeDef) Doc {
	fields := make([]interface{}, 0, len(td.Fields))
	for _, f := range td.Fields {
		fields = append(fields, fieldDefToDoc(f))
	}
	return Doc{"fields": fields}
}

func fieldDefToDoc(f *FieldDef) Doc {
	d := Doc{
		"name": f.Name,
		"type": f.Type,
	}
	if f.Endian != EndianUnspecified {
		d["endian"] = f.Endian.String()
	}
	switch f.Length.Kind {
	case LengthStatic:
		d["length"] = f.Length.Static
	case LengthField:
		d["length"] = f.Length.Field
	case LengthExpr:
		d["length"] = f.Length.Expr
	}
	if f.Encoding != "" {
		d["encoding"] = f.Encoding
	}
	switch f.Validate.Kind {
	case ValidateEquals:
		d["validate"] = Doc{"equals": f.Validate.Literal}
	case ValidateEqualsField:
		d["validate"] = Doc{"equals_field": f.Validate.Field}
	case ValidateAllBytes:
		d["validate"] = Doc{"all_bytes": int(f.Validate.Byte)}
	}
	if f.Color != "" {
		d["color"] = f.Color
	}
	return d
}

func registryEntryToDoc(e *RegistryEntry) Doc {
	decode := Doc{}
	switch e.Decode.Kind {
	case DecodeString:
		decode["as"] = "string"
		decode["encoding"] = e.Decode.Encoding
	case DecodeU16:
		decode["as"] = "u16"
	case DecodeU32:
		decode["as"] = "u32"
	case DecodeHex:
		decode["as"] = "hex"
	case DecodePackedDateV1:
		decode["as"] = "packed_date_v1"
	}
	if e.Decode.Field != "" {
		decode["field"] = e.Decode.Field
	}
	if e.Decode.Kind == DecodeU16 || e.Decode.Kind == DecodeU32 {
		if e.Decode.Endian != EndianUnspecified {
			decode["endian"] = e.Decode.Endian.String()
		}
	}
	return Doc{"decode": decode}
}
