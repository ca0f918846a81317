package mapping

import (
	"context"
	"errors"
	"time"
)

// callBackend runs fn under the per-call timeout and wraps any error with the
// operation and DN. A transport failure observed after the deadline passed is
// reported as a timeout.
func callBackend(ctx context.Context, timeout time.Duration, op, dn string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}

	kind := KindOf(err)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && (kind == "" || kind == KindConnection) {
		return &Error{
			Kind:    KindConnection,
			Op:      op,
			DN:      dn,
			Message: "backend call timed out after " + timeout.String(),
			Timeout: true,
			Cause:   err,
		}
	}

	return WrapError(op, dn, err)
}
