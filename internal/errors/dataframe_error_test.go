package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/errors"
)

func TestDataFrameError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.DataFrameError
		expected string
	}{
		{
			name: "Error with column",
			err: &errors.DataFrameError{
				Op:      "Sort",
				Column:  "age",
				Message: "column does not exist",
			},
			expected: "Sort operation failed on column 'age': column does not exist",
		},
		{
			name: "Error without column",
			err: &errors.DataFrameError{
				Op:      "Join",
				Message: "mismatched lengths",
			},
			expected: "Join operation failed: mismatched lengths",
		},
		{
			name:     "Error with cause",
			err:      errors.NewExecutionError("Collect", stderrors.New("integer overflow")),
			expected: "Collect operation failed: backend execution failed: integer overflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDataFrameError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying error")
	err := &errors.DataFrameError{
		Op:      "Filter",
		Message: "evaluation failed",
		Cause:   cause,
	}

	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestDataFrameError_Is(t *testing.T) {
	err1 := errors.NewColumnNotFoundError("Sort", "age")
	err2 := errors.NewColumnNotFoundError("Sort", "age")
	err3 := errors.NewColumnNotFoundError("Filter", "age")

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(stderrors.New("different error")))
}

func TestSentinelsMatchByKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"column not found", errors.NewColumnNotFoundError("Select", "x"), errors.ErrColumnNotFound},
		{"type", errors.NewTypeError("Add", "a", "explicit cast required"), errors.ErrType},
		{"shape", errors.NewShapeError("Mutate", "length 2 does not match 3"), errors.ErrShape},
		{"execution", errors.NewExecutionError("Collect", stderrors.New("boom")), errors.ErrExecution},
		{"cancelled", errors.NewCancelledError("Collect", nil), errors.ErrCancelled},
		{"backend mismatch", errors.NewBackendMismatchError("Join", "a", "b"), errors.ErrBackendMismatch},
		{"invalid input", errors.NewInvalidInputError("Slice", "negative length"), errors.ErrInvalidInput},
		{"internal", errors.NewInternalError("GroupBy", stderrors.New("oops")), errors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}

	assert.NotErrorIs(t, errors.NewShapeError("Mutate", "x"), errors.ErrType)
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.NewBackendMismatchError("Join", "native", "other"))

	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindBackendMismatch, kind)
	assert.Equal(t, "backend mismatch", kind.String())

	_, ok = errors.KindOf(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestExecutionErrorKeepsUnderlyingKind(t *testing.T) {
	cause := errors.NewShapeError("Filter", "mask length 2 does not match 3")
	err := errors.NewExecutionError("Collect", cause)

	assert.ErrorIs(t, err, errors.ErrExecution)
	assert.ErrorIs(t, err, errors.ErrShape)

	var df *errors.DataFrameError
	require.ErrorAs(t, err, &df)
	assert.Equal(t, errors.KindExecution, df.Kind)
}

func TestConstructors(t *testing.T) {
	err := errors.NewColumnNotFoundError("Sort", "missing_column")
	assert.Equal(t, "Sort operation failed on column 'missing_column': column does not exist", err.Error())

	unsupported := errors.NewUnsupportedTypeError("series creation", "[]complex128")
	assert.Equal(t, errors.KindType, unsupported.Kind)
	assert.Equal(t, "unsupported type: []complex128", unsupported.Message)

	validation := errors.NewValidationError("Sort", "age", "index out of bounds")
	assert.Equal(t, errors.KindInvalidInput, validation.Kind)
	assert.Equal(t, "age", validation.Column)

	mismatch := errors.NewBackendMismatchError("Join", "native#a", "native#b")
	assert.Equal(t, "Join operation failed: values belong to different backends (native#a and native#b)", mismatch.Error())

	assert.Equal(t, "cancelled", errors.ErrCancelled.Error())
}
