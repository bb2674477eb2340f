// Package errors provides the error taxonomy shared by the dispatch layer,
// the lazy planner and every backend. All failures are reported as a
// *DataFrameError carrying a Kind, the operation name and, when relevant,
// the offending column. Callers match categories with errors.Is against the
// Err* sentinels and recover details with errors.As.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a DataFrameError.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindColumnNotFound
	KindType
	KindShape
	KindExecution
	KindCancelled
	KindBackendMismatch
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindColumnNotFound:
		return "column not found"
	case KindType:
		return "type error"
	case KindShape:
		return "shape error"
	case KindExecution:
		return "execution error"
	case KindCancelled:
		return "cancelled"
	case KindBackendMismatch:
		return "backend mismatch"
	case KindInternal:
		return "internal error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DataFrameError represents standardized errors across all DataFrame operations
type DataFrameError struct {
	Kind    Kind
	Op      string // Operation name (e.g., "Sort", "Filter", "Join")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause

	sentinel bool
}

// Error implements the error interface
func (e *DataFrameError) Error() string {
	if e.sentinel {
		return e.Kind.String()
	}

	var msg string
	if e.Column != "" {
		msg = fmt.Sprintf("%s operation failed on column '%s': %s", e.Op, e.Column, e.Message)
	} else {
		msg = fmt.Sprintf("%s operation failed: %s", e.Op, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error wrapping support
func (e *DataFrameError) Unwrap() error {
	return e.Cause
}

// Is reports whether target describes the same failure. Sentinel targets
// (ErrColumnNotFound, ErrType, ...) match any error of their Kind.
func (e *DataFrameError) Is(target error) bool {
	df, ok := target.(*DataFrameError)
	if !ok {
		return false
	}
	if df.sentinel {
		return e.Kind == df.Kind
	}
	return e.Kind == df.Kind && e.Op == df.Op && e.Column == df.Column && e.Message == df.Message
}

// KindOf returns the Kind of the first DataFrameError in err's chain.
func KindOf(err error) (Kind, bool) {
	var df *DataFrameError
	if stderrors.As(err, &df) {
		return df.Kind, true
	}
	return 0, false
}

// Sentinels for errors.Is matching by category.
var (
	ErrInvalidInput    = &DataFrameError{Kind: KindInvalidInput, sentinel: true}
	ErrColumnNotFound  = &DataFrameError{Kind: KindColumnNotFound, sentinel: true}
	ErrType            = &DataFrameError{Kind: KindType, sentinel: true}
	ErrShape           = &DataFrameError{Kind: KindShape, sentinel: true}
	ErrExecution       = &DataFrameError{Kind: KindExecution, sentinel: true}
	ErrCancelled       = &DataFrameError{Kind: KindCancelled, sentinel: true}
	ErrBackendMismatch = &DataFrameError{Kind: KindBackendMismatch, sentinel: true}
	ErrInternal        = &DataFrameError{Kind: KindInternal, sentinel: true}
)

// NewColumnNotFoundError creates an error for operations on non-existent columns
func NewColumnNotFoundError(op, column string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindColumnNotFound,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewTypeError reports operand types without a defined result type, or a
// missing explicit cast.
func NewTypeError(op, column, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindType,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewShapeError reports a length or dimension mismatch outside the
// scalar broadcast rule.
func NewShapeError(op, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindShape,
		Op:      op,
		Message: message,
	}
}

// NewExecutionError wraps a backend failure observed while materializing a value.
func NewExecutionError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindExecution,
		Op:      op,
		Message: "backend execution failed",
		Cause:   cause,
	}
}

// NewCancelledError reports that cooperative cancellation was observed.
func NewCancelledError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindCancelled,
		Op:      op,
		Message: "execution cancelled",
		Cause:   cause,
	}
}

// NewBackendMismatchError reports an operation mixing values owned by two
// different backend instances.
func NewBackendMismatchError(op, left, right string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindBackendMismatch,
		Op:      op,
		Message: fmt.Sprintf("values belong to different backends (%s and %s)", left, right),
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported data types
func NewUnsupportedTypeError(op, typeName string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindType,
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInvalidInput,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *DataFrameError {
	return &DataFrameError{
		Kind:    KindInternal,
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// Reframe returns err re-attributed to op, filling in column when the
// original carried none. Errors that are not DataFrameErrors are returned
// unchanged.
func Reframe(err error, op, column string) error {
	var dfErr *DataFrameError
	if !stderrors.As(err, &dfErr) || dfErr.sentinel {
		return err
	}
	out := *dfErr
	out.Op = op
	if out.Column == "" {
		out.Column = column
	}
	return &out
}
