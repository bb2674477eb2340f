package backend

import (
	"context"
	"errors"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Fail converts a failure raised while executing op into the error a caller
// sees: context cancellation and deadlines become cancelled errors, errors
// that are already classified keep their kind with op recorded, and
// anything else becomes an execution error wrapping the cause.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, dferrors.ErrCancelled) {
			return err
		}
		return dferrors.NewCancelledError(op, err)
	}
	var dfErr *dferrors.DataFrameError
	if errors.As(err, &dfErr) {
		return err
	}
	return dferrors.NewExecutionError(op, err)
}

// Check returns a cancelled error once ctx is done.
func Check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return dferrors.NewCancelledError(op, err)
	}
	return nil
}
