package parser

import "fmt"

// FieldErrorKind enumerates the ways a record can fail mid-parse.
// ErrExprFailed carries an underlying exprlang.Error encountered while
// resolving a length_expr or a switch dispatch expression.
type FieldErrorKind int

const (
	ErrShortRead FieldErrorKind = iota
	ErrBoundaryOverrun
	ErrZeroLengthRecord
	ErrNoDispatch
	ErrValidationFailed
	ErrExprFailed
)

func (k FieldErrorKind) String() string {
	names := [...]string{"ShortRead", "BoundaryOverrun", "ZeroLengthRecord", "NoDispatch", "ValidationFailed", "ExprFailed"}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// FieldError is the single error captured on a failed ParsedRecord; it
// halts the record stream. Recovery is not attempted.
type FieldError struct {
	Kind    FieldErrorKind
	Field   string // field name in scope when the failure occurred, or ""
	Message string
}

func (e *FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func shortRead(field string, need, got int) *FieldError {
	return &FieldError{Kind: ErrShortRead, Field: field, Message: fmt.Sprintf("need %d byte(s), got %d", need, got)}
}

func boundaryOverrun(field string, offset, size, stop int64) *FieldError {
	return &FieldError{Kind: ErrBoundaryOverrun, Field: field, Message: fmt.Sprintf("field at %d size %d overruns stop offset %d", offset, size, stop)}
}

func noDispatch(value string) *FieldError {
	return &FieldError{Kind: ErrNoDispatch, Message: fmt.Sprintf("no switch case or default for discriminator %s", value)}
}

func validationFailed(field, detail string) *FieldError {
	return &FieldError{Kind: ErrValidationFailed, Field: field, Message: detail}
}

func exprFailed(field string, err error) *FieldError {
	return &FieldError{Kind: ErrExprFailed, Field: field, Message: err.Error()}
}
