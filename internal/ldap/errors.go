package ldap

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// resultAssertionFailed is returned when the assertion control's filter does
// not match the target entry (RFC 4528).
const resultAssertionFailed uint16 = 122

// resultKinds maps LDAP result codes to mapping error kinds. Codes not listed
// are treated as transport failures.
var resultKinds = map[uint16]mapping.ErrorKind{
	ldap.LDAPResultNoSuchObject: mapping.KindNotFound,

	ldap.LDAPResultEntryAlreadyExists: mapping.KindAlreadyExists,

	ldap.LDAPResultNotAllowedOnNonLeaf:    mapping.KindConflict,
	ldap.LDAPResultAttributeOrValueExists: mapping.KindConflict,
	ldap.LDAPResultNoSuchAttribute:        mapping.KindConflict,
	resultAssertionFailed:                 mapping.KindConflict,

	ldap.LDAPResultObjectClassViolation:      mapping.KindValidation,
	ldap.LDAPResultNamingViolation:           mapping.KindValidation,
	ldap.LDAPResultConstraintViolation:       mapping.KindValidation,
	ldap.LDAPResultInvalidAttributeSyntax:    mapping.KindValidation,
	ldap.LDAPResultInvalidDNSyntax:           mapping.KindValidation,
	ldap.LDAPResultUndefinedAttributeType:    mapping.KindValidation,
	ldap.LDAPResultNotAllowedOnRDN:           mapping.KindValidation,
	ldap.LDAPResultObjectClassModsProhibited: mapping.KindValidation,
	ldap.LDAPResultFilterError:               mapping.KindValidation,

	ldap.LDAPResultInsufficientAccessRights: mapping.KindAccessDenied,
	ldap.LDAPResultUnwillingToPerform:       mapping.KindAccessDenied,
}

// resultMessages holds human-readable text for the result codes the backend
// commonly sees.
var resultMessages = map[uint16]string{
	ldap.LDAPResultOperationsError:              "LDAP operations error",
	ldap.LDAPResultProtocolError:                "LDAP protocol error",
	ldap.LDAPResultTimeLimitExceeded:            "LDAP time limit exceeded",
	ldap.LDAPResultSizeLimitExceeded:            "LDAP size limit exceeded",
	ldap.LDAPResultAuthMethodNotSupported:       "Authentication method not supported",
	ldap.LDAPResultStrongAuthRequired:           "Strong authentication required",
	ldap.LDAPResultAdminLimitExceeded:           "Administrative limit exceeded",
	ldap.LDAPResultUnavailableCriticalExtension: "Critical extension unavailable",
	ldap.LDAPResultConfidentialityRequired:      "Confidentiality required",
	ldap.LDAPResultNoSuchAttribute:              "Attribute value changed concurrently",
	ldap.LDAPResultUndefinedAttributeType:       "Attribute type is not defined",
	ldap.LDAPResultConstraintViolation:          "Constraint violation",
	ldap.LDAPResultAttributeOrValueExists:       "Attribute or value already exists",
	ldap.LDAPResultInvalidAttributeSyntax:       "Invalid attribute syntax",
	ldap.LDAPResultNoSuchObject:                 "Entry does not exist",
	ldap.LDAPResultInvalidDNSyntax:              "Invalid DN syntax",
	ldap.LDAPResultInappropriateAuthentication:  "Inappropriate authentication method",
	ldap.LDAPResultInvalidCredentials:           "Invalid credentials",
	ldap.LDAPResultInsufficientAccessRights:     "Insufficient access rights",
	ldap.LDAPResultBusy:                         "Server is busy",
	ldap.LDAPResultUnavailable:                  "Server is unavailable",
	ldap.LDAPResultUnwillingToPerform:           "Server is unwilling to perform the operation",
	ldap.LDAPResultNamingViolation:              "Naming violation",
	ldap.LDAPResultObjectClassViolation:         "Object class violation",
	ldap.LDAPResultNotAllowedOnNonLeaf:          "Operation not allowed on non-leaf entry",
	ldap.LDAPResultNotAllowedOnRDN:              "Operation not allowed on RDN",
	ldap.LDAPResultEntryAlreadyExists:           "Entry already exists",
	ldap.LDAPResultObjectClassModsProhibited:    "Object class modifications prohibited",
	ldap.LDAPResultServerDown:                   "Server is down",
	ldap.LDAPResultTimeout:                      "Operation timed out",
	ldap.LDAPResultFilterError:                  "Invalid search filter",
	ldap.LDAPResultConnectError:                 "Connection error",
	resultAssertionFailed:                       "Entry was modified since it was read",
}

// getLDAPCodeMessage returns a human-readable message for an LDAP result code.
func getLDAPCodeMessage(code uint16) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("LDAP error (code %d)", code)
}

// kindForCode returns the mapping error kind for an LDAP result code.
func kindForCode(code uint16) mapping.ErrorKind {
	if kind, ok := resultKinds[code]; ok {
		return kind
	}
	return mapping.KindConnection
}

// translateError converts an error from go-ldap into a *mapping.Error so that
// callers can branch on the kind without knowing about LDAP result codes.
func translateError(op, dn string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) {
		return mapping.WrapError(op, dn, err)
	}

	code := ldapErr.ResultCode
	message := getLDAPCodeMessage(code)
	if ldapErr.Err != nil {
		if diag := ldapErr.Err.Error(); diag != "" && !strings.EqualFold(diag, message) {
			message = fmt.Sprintf("%s (server: %s)", message, diag)
		}
	}

	return &mapping.Error{
		Kind:    kindForCode(code),
		Op:      op,
		DN:      dn,
		Message: message,
		Timeout: isTimeoutError(ldapErr),
		Cause:   err,
	}
}

func isTimeoutError(err *ldap.Error) bool {
	switch err.ResultCode {
	case ldap.LDAPResultTimeout, ldap.LDAPResultTimeLimitExceeded:
		return true
	case ldap.ErrorNetwork:
		return err.Err != nil && strings.Contains(err.Err.Error(), "timed out")
	}
	return false
}

// isRetryableError reports whether a dial or bind failure is worth retrying.
// Authentication failures are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.LDAPResultBusy,
			ldap.LDAPResultUnavailable,
			ldap.LDAPResultServerDown,
			ldap.LDAPResultConnectError,
			ldap.LDAPResultTimeout,
			ldap.ErrorNetwork:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
