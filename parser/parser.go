// Package parser implements the record parser: a deterministic, bounded
// binary decoder that turns a validated grammar and a byte reader into
// an ordered sequence of typed records, halting the stream on the first
// field or record error.
package parser

import (
	"fmt"
	"math"
	"time"

	"github.com/builtwithtofu/binfmt/exprlang"
	"github.com/builtwithtofu/binfmt/grammar"
	"github.com/builtwithtofu/binfmt/invariant"
	"github.com/builtwithtofu/binfmt/reader"
)

// Options bounds a parse call. A nil limit means unbounded.
type Options struct {
	Offset      int64
	ByteLimit   *int64
	RecordLimit *int
}

// ParseResult is the immutable outcome of a parse call.
type ParseResult struct {
	Records          []*ParsedRecord
	Errors           []string
	FilePath         string
	TotalBytesParsed int64
	ParseStoppedAt   int64
	GrammarFormat    string
	CreatedAt        time.Time
	RecordCount      int
}

// Parse decodes records from r starting at opts.Offset until EOF, the
// byte limit, the record limit, or the first failing record.
func Parse(g *grammar.Grammar, r reader.Reader, filePath string, opts Options) *ParseResult {
	invariant.NotNil(g, "grammar")
	invariant.NotNil(r, "reader")

	start := opts.Offset
	stopOffset := int64(math.MaxInt64)
	if opts.ByteLimit != nil {
		stopOffset = start + *opts.ByteLimit
	}
	recordLimit := math.MaxInt
	if opts.RecordLimit != nil {
		recordLimit = *opts.RecordLimit
	}

	fileSize, sizeKnown := r.Size()

	result := &ParseResult{
		FilePath:      filePath,
		GrammarFormat: g.Format,
		CreatedAt:     time.Now(),
	}

	offset := start
	for {
		if sizeKnown && offset >= fileSize {
			break
		}
		if offset >= stopOffset {
			break
		}
		if len(result.Records) >= recordLimit {
			break
		}

		rec, err := parseRecord(g, r, offset, stopOffset)
		if err != nil {
			rec.Error = err.Error()
			rec.ErrorKind = err.Kind
			rec.ErrorField = err.Field
			result.Records = append(result.Records, rec)
			result.Errors = append(result.Errors, err.Error())
			result.ParseStoppedAt = offset
			offset = rec.Offset // no advance; the failing record never completed
			break
		}

		result.Records = append(result.Records, rec)
		offset = rec.Offset + rec.Size
	}

	result.TotalBytesParsed = offset - start
	if len(result.Errors) == 0 {
		result.ParseStoppedAt = offset
	}
	result.RecordCount = len(result.Records)
	return result
}

// parseRecord parses one record starting at recordStart, performing type
// dispatch before parsing the target type's fields.
func parseRecord(g *grammar.Grammar, r reader.Reader, recordStart, stopOffset int64) (*ParsedRecord, *FieldError) {
	rec := &ParsedRecord{Offset: recordStart}

	targetType, discriminator, preambleFields, preambleSize, preambleTypeName, ferr := dispatchType(g, r, recordStart, stopOffset)
	if ferr != nil {
		rec.Size = 0
		return rec, ferr
	}
	rec.TypeName = targetType
	rec.Discriminator = discriminator

	td, ok := g.Types[targetType]
	if !ok {
		return rec, &FieldError{Kind: ErrNoDispatch, Message: fmt.Sprintf("dispatch target type %q does not exist", targetType)}
	}

	var reuse map[string]reuseEntry
	if preambleTypeName != "" {
		reuse = map[string]reuseEntry{
			preambleTypeName: {offset: recordStart, fields: preambleFields, size: preambleSize},
		}
	}

	sc := newScope()
	fields, size, ferr := parseFields(g, r, td, recordStart, stopOffset, sc, reuse)
	if ferr != nil {
		rec.Fields = fields
		rec.Size = size
		return rec, ferr
	}

	if size == 0 {
		return rec, &FieldError{Kind: ErrZeroLengthRecord, Message: fmt.Sprintf("record at offset %d parsed to zero length", recordStart)}
	}

	rec.Fields = fields
	rec.Size = size
	return rec, nil
}

// reuseEntry lets parseFields skip re-reading a nested type's bytes when
// it was already parsed as the switch dispatch's discriminator preamble.
type reuseEntry struct {
	offset int64
	fields []*ParsedField
	size   int64
}

// dispatchType resolves the TypeDef name to parse a record as. For a
// switch dispatch it also returns the tentatively-parsed discriminator
// preamble so the caller can reuse it, plus the preamble's own type name
// (the identifier's first path segment) so parseFields knows when a
// nested field may reuse it.
func dispatchType(g *grammar.Grammar, r reader.Reader, recordStart, stopOffset int64) (targetType, discriminator string, preambleFields []*ParsedField, preambleSize int64, preambleTypeName string, ferr *FieldError) {
	switch g.Dispatch.Kind {
	case grammar.DispatchUseType:
		return g.Dispatch.UseType, "", nil, 0, "", nil
	case grammar.DispatchSwitch:
		sw := g.Dispatch.Switch
		preambleTypeName, fieldName, err := splitDottedPath(sw.Expr)
		if err != nil {
			return "", "", nil, 0, "", exprFailed("", err)
		}
		preambleType, ok := g.Types[preambleTypeName]
		if !ok {
			return "", "", nil, 0, "", &FieldError{Kind: ErrNoDispatch, Message: fmt.Sprintf("switch expr references unknown type %q", preambleTypeName)}
		}
		sc := newScope()
		fields, size, ferr := parseFields(g, r, preambleType, recordStart, stopOffset, sc, nil)
		if ferr != nil {
			return "", "", fields, size, preambleTypeName, ferr
		}
		var discField *ParsedField
		for _, f := range fields {
			if f.Name == fieldName {
				discField = f
				break
			}
		}
		if discField == nil || discField.Value.Kind != ValueInt {
			return "", "", fields, size, preambleTypeName, &FieldError{Kind: ErrNoDispatch, Message: fmt.Sprintf("discriminator field %q not found or not integer-typed", fieldName)}
		}
		literal := formatDiscriminator(discField.Value.Int, discField.Size)
		// Cases match on the parsed integer value, not the literal text, so
		// a case written "0x65" still selects a u16 discriminator formatted
		// as "0x0065".
		for _, c := range sw.Cases {
			if c.Value == uint64(discField.Value.Int) {
				return c.TypeName, literal, fields, size, preambleTypeName, nil
			}
		}
		if sw.Default != "" {
			return sw.Default, literal, fields, size, preambleTypeName, nil
		}
		return "", "", fields, size, preambleTypeName, noDispatch(literal)
	default:
		return "", "", nil, 0, "", &FieldError{Kind: ErrNoDispatch, Message: "grammar has no record dispatch"}
	}
}

// splitDottedPath splits "TypeName.field" into its two components.
func splitDottedPath(expr string) (typeName, field string, err error) {
	ids, err := exprlang.Identifiers(expr)
	if err != nil {
		return "", "", err
	}
	if len(ids) != 1 {
		return "", "", fmt.Errorf("switch expr %q must be a single dotted TypeName.field identifier", expr)
	}
	dot := -1
	for i := len(ids[0]) - 1; i >= 0; i-- {
		if ids[0][i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return "", "", fmt.Errorf("switch expr %q is not a dotted path", expr)
	}
	return ids[0][:dot], ids[0][dot+1:], nil
}

// formatDiscriminator formats v as "0x" + uppercase hex, width matching
// the discriminator field's byte size.
func formatDiscriminator(v int64, byteSize int64) string {
	digits := byteSize * 2
	return fmt.Sprintf("0x%0*X", digits, uint64(v))
}

// parseFields parses td's fields in declaration order starting at offset,
// returning the parsed fields and the total size consumed.
func parseFields(g *grammar.Grammar, r reader.Reader, td *grammar.TypeDef, start, stopOffset int64, sc *scope, reuse map[string]reuseEntry) ([]*ParsedField, int64, *FieldError) {
	offset := start
	fields := make([]*ParsedField, 0, len(td.Fields))

	for _, fd := range td.Fields {
		pf, ferr := parseOneField(g, r, fd, offset, stopOffset, sc, reuse)
		if ferr != nil {
			return fields, offset - start, ferr
		}
		fields = append(fields, pf)
		if pf.Value.Kind == ValueInt {
			sc.set(fd.Name, pf.Value.Int)
		}
		if pf.Value.Kind == ValueRecord {
			sc.absorb(pf.Value.Record)
		}
		offset = pf.Offset + pf.Size
	}

	return fields, offset - start, nil
}

func parseOneField(g *grammar.Grammar, r reader.Reader, fd *grammar.FieldDef, offset, stopOffset int64, sc *scope, reuse map[string]reuseEntry) (*ParsedField, *FieldError) {
	switch fd.Type {
	case grammar.TypeU8:
		return parseIntField(r, fd, offset, stopOffset, 1, grammar.EndianUnspecified, sc)
	case grammar.TypeU16:
		return parseIntField(r, fd, offset, stopOffset, 2, g.EffectiveEndian(fd), sc)
	case grammar.TypeU32:
		return parseIntField(r, fd, offset, stopOffset, 4, g.EffectiveEndian(fd), sc)
	case grammar.TypeBytes:
		return parseBytesField(fd, r, offset, stopOffset, sc)
	default:
		if entry, ok := reuse[fd.Type]; ok && entry.offset == offset {
			pf := &ParsedField{
				Name:   fd.Name,
				Value:  FieldValue{Kind: ValueRecord, Record: entry.fields},
				Offset: offset,
				Size:   entry.size,
				Color:  fd.Color,
			}
			return applyValidate(pf, fd, sc)
		}
		nested, ok := g.Types[fd.Type]
		if !ok {
			return nil, &FieldError{Kind: ErrNoDispatch, Field: fd.Name, Message: fmt.Sprintf("unknown nested type %q", fd.Type)}
		}
		nestedScope := newScope()
		fields, size, ferr := parseFields(g, r, nested, offset, stopOffset, nestedScope, reuse)
		if ferr != nil {
			return nil, ferr
		}
		pf := &ParsedField{
			Name:   fd.Name,
			Value:  FieldValue{Kind: ValueRecord, Record: fields},
			Offset: offset,
			Size:   size,
			Color:  fd.Color,
		}
		return applyValidate(pf, fd, sc)
	}
}

func parseIntField(r reader.Reader, fd *grammar.FieldDef, offset, stopOffset int64, size int64, endian grammar.Endian, sc *scope) (*ParsedField, *FieldError) {
	if offset+size > stopOffset {
		return nil, boundaryOverrun(fd.Name, offset, size, stopOffset)
	}
	raw, _ := r.Read(offset, size)
	if int64(len(raw)) < size {
		return nil, shortRead(fd.Name, int(size), len(raw))
	}
	v := decodeUint(raw, endian)
	pf := &ParsedField{
		Name:     fd.Name,
		Value:    FieldValue{Kind: ValueInt, Int: int64(v)},
		Offset:   offset,
		Size:     size,
		RawBytes: raw,
		Color:    fd.Color,
	}
	return applyValidate(pf, fd, sc)
}

func parseBytesField(fd *grammar.FieldDef, r reader.Reader, offset, stopOffset int64, sc *scope) (*ParsedField, *FieldError) {
	length, ferr := resolveLength(fd, sc)
	if ferr != nil {
		return nil, ferr
	}
	if offset+length > stopOffset {
		return nil, boundaryOverrun(fd.Name, offset, length, stopOffset)
	}
	raw, _ := r.Read(offset, length)
	if int64(len(raw)) < length {
		return nil, shortRead(fd.Name, int(length), len(raw))
	}
	if raw == nil {
		// A zero-length field at end of input still carries an empty value.
		raw = []byte{}
	}
	pf := &ParsedField{
		Name:     fd.Name,
		Offset:   offset,
		Size:     length,
		RawBytes: raw,
		Color:    fd.Color,
	}
	if fd.Encoding != "" {
		pf.Value = FieldValue{Kind: ValueText, Text: decodeWithEncoding(fd.Encoding, raw)}
	} else {
		pf.Value = FieldValue{Kind: ValueBytes, Bytes: raw}
	}
	return applyValidate(pf, fd, sc)
}

func resolveLength(fd *grammar.FieldDef, sc *scope) (int64, *FieldError) {
	switch fd.Length.Kind {
	case grammar.LengthStatic:
		return fd.Length.Static, nil
	case grammar.LengthField:
		v, ok := sc.get(fd.Length.Field)
		if !ok {
			return 0, &FieldError{Kind: ErrExprFailed, Field: fd.Name, Message: fmt.Sprintf("length field %q not in scope", fd.Length.Field)}
		}
		if v < 0 {
			return 0, &FieldError{Kind: ErrExprFailed, Field: fd.Name, Message: fmt.Sprintf("length field %q is negative (%d)", fd.Length.Field, v)}
		}
		return v, nil
	case grammar.LengthExpr:
		v, err := exprlang.Eval(fd.Length.Expr, sc.exprContext())
		if err != nil {
			return 0, exprFailed(fd.Name, err)
		}
		return v, nil
	default:
		return 0, &FieldError{Kind: ErrExprFailed, Field: fd.Name, Message: "bytes field has no length specification"}
	}
}

func applyValidate(pf *ParsedField, fd *grammar.FieldDef, sc *scope) (*ParsedField, *FieldError) {
	switch fd.Validate.Kind {
	case grammar.ValidateNone:
		return pf, nil
	case grammar.ValidateEquals:
		if pf.Value.Kind != ValueInt || pf.Value.Int != fd.Validate.Literal {
			return pf, validationFailed(fd.Name, fmt.Sprintf("expected %d, got %s", fd.Validate.Literal, pf.Value.String()))
		}
	case grammar.ValidateEqualsField:
		want, ok := sc.get(fd.Validate.Field)
		if !ok || pf.Value.Kind != ValueInt || pf.Value.Int != want {
			return pf, validationFailed(fd.Name, fmt.Sprintf("expected field %q's value, got %s", fd.Validate.Field, pf.Value.String()))
		}
	case grammar.ValidateAllBytes:
		raw := pf.RawBytes
		for _, b := range raw {
			if b != fd.Validate.Byte {
				return pf, validationFailed(fd.Name, fmt.Sprintf("expected all bytes == 0x%02X", fd.Validate.Byte))
			}
		}
	}
	return pf, nil
}

func decodeUint(raw []byte, endian grammar.Endian) uint64 {
	var v uint64
	if endian == grammar.EndianBig {
		for _, b := range raw {
			v = v<<8 | uint64(b)
		}
		return v
	}
	for i := len(raw) - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v
}
