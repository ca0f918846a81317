package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	subsystem         = "ldap"
	kerberosSubsystem = "kerberos"
)

// WithLogging returns ctx with the ldap and kerberos subsystem loggers
// configured. Levels follow TF_LOG_PROVIDER_DIRSRV_LDAP and
// TF_LOG_PROVIDER_DIRSRV_KERBEROS.
func WithLogging(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, subsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_DIRSRV_LDAP"),
		tflog.WithAdditionalLocationOffset(1),
	)
	ctx = tflog.NewSubsystem(ctx, kerberosSubsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_DIRSRV_KERBEROS"),
	)
	return ctx
}

// LogOperation runs fn and logs its outcome with timing.
func LogOperation(ctx context.Context, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemTrace(ctx, subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		LogLDAPError(ctx, operation, err, fields)
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", fields)
	}

	LogPerformance(ctx, operation, time.Since(start), nil)

	return err
}

// LogPerformance warns about slow operations.
func LogPerformance(ctx context.Context, operation string, duration time.Duration, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > 5*time.Second:
		tflog.SubsystemWarn(ctx, subsystem, "Slow operation detected", fields)
	case duration > time.Second:
		tflog.SubsystemInfo(ctx, subsystem, "Operation performance", fields)
	}
}

// LogLDAPError logs an operation failure with the LDAP result code and
// diagnostic message when available. Expected outcomes such as a missing or
// occupied entry are logged at debug level.
func LogLDAPError(ctx context.Context, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		fields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			fields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}

		switch ldapErr.ResultCode {
		case ldap.LDAPResultNoSuchObject, ldap.LDAPResultEntryAlreadyExists, resultAssertionFailed:
			tflog.SubsystemDebug(ctx, subsystem, "LDAP operation rejected", fields)
			return
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", fields)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "connection_established", "authentication_success":
		tflog.SubsystemInfo(ctx, subsystem, "Connection event", SanitizeFields(fields))
	case "connection_failed", "authentication_failed", "connection_lost":
		tflog.SubsystemError(ctx, subsystem, "Connection event", SanitizeFields(fields))
	default:
		tflog.SubsystemDebug(ctx, subsystem, "Connection event", SanitizeFields(fields))
	}
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "ticket_acquired", "keytab_loaded", "ccache_loaded":
		tflog.SubsystemInfo(ctx, kerberosSubsystem, "Kerberos event", SanitizeFields(fields))
	case "ticket_acquisition_failed", "authentication_failed":
		tflog.SubsystemError(ctx, kerberosSubsystem, "Kerberos event", SanitizeFields(fields))
	default:
		tflog.SubsystemDebug(ctx, kerberosSubsystem, "Kerberos event", SanitizeFields(fields))
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"token":       true,
		"key":         true,
		"private_key": true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"userpassword:",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
