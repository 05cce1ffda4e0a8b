package grammar

import "fmt"

// LintErrorKind enumerates the structural/referential fault kinds a
// Grammar can fail with.
type LintErrorKind int

const (
	ErrInvalidFormat LintErrorKind = iota
	ErrUnknownType
	ErrUnresolvedLengthRef
	ErrMissingEndian
	ErrInvalidColor
	ErrDuplicateType
	ErrEmptyType
	ErrInvalidFieldDef
	ErrInvalidDispatch
	ErrInvalidRegistry
	ErrSchemaShape
)

func (k LintErrorKind) String() string {
	names := map[LintErrorKind]string{
		ErrInvalidFormat:       "InvalidFormat",
		ErrUnknownType:         "UnknownType",
		ErrUnresolvedLengthRef: "UnresolvedLengthRef",
		ErrMissingEndian:       "MissingEndian",
		ErrInvalidColor:        "InvalidColor",
		ErrDuplicateType:       "DuplicateType",
		ErrEmptyType:           "EmptyType",
		ErrInvalidFieldDef:     "InvalidFieldDef",
		ErrInvalidDispatch:     "InvalidDispatch",
		ErrInvalidRegistry:     "InvalidRegistry",
		ErrSchemaShape:         "SchemaShape",
	}
	if s, ok := names[k]; ok {
		return s
	}
	return "Unknown"
}

// LintError is one fatal fault found while validating grammar text. Path
// points at the offending element (e.g. "types.Hdr.fields[1]").
type LintError struct {
	Kind    LintErrorKind
	Path    string
	Message string
}

func (e *LintError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newLintError(kind LintErrorKind, path, format string, args ...interface{}) *LintError {
	return &LintError{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// LintWarningKind enumerates non-fatal lint findings.
type LintWarningKind int

const (
	WarnUnusedType LintWarningKind = iota
	WarnEmptyDispatchCases
	WarnUnmatchedRegistryKey
	WarnShadowedLengthRef
)

func (k LintWarningKind) String() string {
	names := map[LintWarningKind]string{
		WarnUnusedType:           "UnusedType",
		WarnEmptyDispatchCases:   "EmptyDispatchCases",
		WarnUnmatchedRegistryKey: "UnmatchedRegistryKey",
		WarnShadowedLengthRef:    "ShadowedLengthRef",
	}
	if s, ok := names[k]; ok {
		return s
	}
	return "Unknown"
}

// LintWarning is a non-fatal finding surfaced alongside a valid Grammar.
type LintWarning struct {
	Kind    LintWarningKind
	Path    string
	Message string
}

func (w *LintWarning) String() string {
	if w.Path != "" {
		return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

func newLintWarning(kind LintWarningKind, path, format string, args ...interface{}) LintWarning {
	return LintWarning{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}
