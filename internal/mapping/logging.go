package mapping

import (
	"context"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const subsystem = "mapping"

// WithLogging registers the mapping log subsystem on ctx.
// Pattern: TF_LOG_PROVIDER_DIRSRV_<SUBSYSTEM>
func WithLogging(ctx context.Context) context.Context {
	return tflog.NewSubsystem(ctx, subsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_DIRSRV_MAPPING"))
}

// logOperation runs fn and logs its outcome with timing. Expected
// outcomes such as a missing entry are logged at debug level.
func logOperation(ctx context.Context, operation, dn string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation
	if dn != "" {
		fields["dn"] = dn
	}

	tflog.SubsystemTrace(ctx, subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", fields)
	case IsNotFoundError(err), IsValidationError(err):
		fields["error"] = err.Error()
		tflog.SubsystemDebug(ctx, subsystem, "Operation rejected", fields)
	default:
		fields["error"] = err.Error()
		fields["kind"] = string(KindOf(err))
		tflog.SubsystemError(ctx, subsystem, "Operation failed", fields)
	}

	return err
}
