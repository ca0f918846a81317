package provider

import (
	"context"
	"maps"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

const subsystem = "provider"

// initializeLogging initializes the provider subsystem, plus the mapping and
// ldap subsystems used beneath it. Call it at the top of every resource and
// data source method.
func initializeLogging(ctx context.Context) context.Context {
	// Pattern: TF_LOG_PROVIDER_DIRSRV_<SUBSYSTEM>
	ctx = tflog.NewSubsystem(ctx, subsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_DIRSRV_PROVIDER"))
	ctx = mapping.WithLogging(ctx)
	return ldap.WithLogging(ctx)
}

// logResourceOperation logs the start of a resource operation and returns a
// function that logs its outcome.
func logResourceOperation(ctx context.Context, resource, operation string, fields map[string]any) func(error) {
	return logOperation(ctx, "resource", resource, operation, fields)
}

// logDataSourceOperation is logResourceOperation for data sources.
func logDataSourceOperation(ctx context.Context, dataSource, operation string, fields map[string]any) func(error) {
	return logOperation(ctx, "data_source", dataSource, operation, fields)
}

func logOperation(ctx context.Context, kind, name, operation string, fields map[string]any) func(error) {
	start := time.Now()

	entryFields := make(map[string]any, len(fields)+2)
	maps.Copy(entryFields, fields)
	entryFields[kind] = name
	entryFields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting "+kind+" operation", ldap.SanitizeFields(entryFields))

	return func(err error) {
		exitFields := maps.Clone(entryFields)
		exitFields["duration_ms"] = time.Since(start).Milliseconds()
		exitFields["has_error"] = err != nil

		if err != nil {
			exitFields["error"] = err.Error()
			exitFields["error_kind"] = string(mapping.KindOf(err))
			tflog.SubsystemError(ctx, subsystem, kind+" operation failed", ldap.SanitizeFields(exitFields))
			return
		}
		tflog.SubsystemDebug(ctx, subsystem, kind+" operation completed", ldap.SanitizeFields(exitFields))
	}
}

// addErrorDiagnostic reports err under summary with a hint for the error kinds
// practitioners can act on.
func addErrorDiagnostic(diags *diag.Diagnostics, summary string, err error) {
	detail := err.Error()

	switch mapping.KindOf(err) {
	case mapping.KindConflict:
		detail += "\n\nThe entry was changed outside Terraform since it was read. Refresh and apply again."
	case mapping.KindProtected:
		detail += "\n\nEntries of this type are protected from deletion."
	case mapping.KindAccessDenied:
		detail += "\n\nThe server refused this operation for the bound identity. Check its access controls."
	case mapping.KindAmbiguous:
		detail += "\n\nMore than one entry matched. Use a distinguished name to select a single entry."
	case mapping.KindConnection:
		if mapping.IsTimeout(err) {
			detail += "\n\nThe operation timed out. Consider raising connect_timeout."
		}
	}

	diags.AddError(summary, detail)
}
