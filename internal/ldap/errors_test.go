package ldap

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    mapping.ErrorKind
		timeout bool
	}{
		{name: "no such object", err: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("")), kind: mapping.KindNotFound},
		{name: "already exists", err: ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("")), kind: mapping.KindAlreadyExists},
		{name: "assertion failed", err: ldap.NewError(resultAssertionFailed, errors.New("")), kind: mapping.KindConflict},
		{name: "non-leaf", err: ldap.NewError(ldap.LDAPResultNotAllowedOnNonLeaf, errors.New("")), kind: mapping.KindConflict},
		{name: "object class violation", err: ldap.NewError(ldap.LDAPResultObjectClassViolation, errors.New("missing cn")), kind: mapping.KindValidation},
		{name: "access", err: ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("")), kind: mapping.KindAccessDenied},
		{name: "unwilling", err: ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("")), kind: mapping.KindAccessDenied},
		{name: "busy", err: ldap.NewError(ldap.LDAPResultBusy, errors.New("")), kind: mapping.KindConnection},
		{
			name:    "request timeout",
			err:     ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection timed out")),
			kind:    mapping.KindConnection,
			timeout: true,
		},
		{name: "plain error", err: errors.New("connection reset by peer"), kind: mapping.KindConnection},
		{name: "deadline", err: context.DeadlineExceeded, kind: mapping.KindConnection, timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError("modify", "cn=web01,ou=Services,dc=example,dc=com", tt.err)
			require.Error(t, err)

			assert.Equal(t, tt.kind, mapping.KindOf(err))
			assert.Equal(t, tt.timeout, mapping.IsTimeout(err))
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "cn=web01")
		})
	}

	assert.NoError(t, translateError("search", "", nil))
}

func TestTranslateError_Message(t *testing.T) {
	err := translateError("add", "cn=web01", ldap.NewError(ldap.LDAPResultObjectClassViolation, errors.New("missing attribute \"cn\" required by object class \"netscapeServer\"")))

	var mErr *mapping.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "add", mErr.Op)
	assert.Contains(t, mErr.Message, "Object class violation")
	assert.Contains(t, mErr.Message, "server: missing attribute")
}

func TestGetLDAPCodeMessage(t *testing.T) {
	assert.Equal(t, "Entry already exists", getLDAPCodeMessage(ldap.LDAPResultEntryAlreadyExists))
	assert.Equal(t, "Entry was modified since it was read", getLDAPCodeMessage(resultAssertionFailed))
	assert.Equal(t, "LDAP error (code 4242)", getLDAPCodeMessage(4242))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(ldap.NewError(ldap.LDAPResultUnavailable, errors.New(""))))
	assert.True(t, isRetryableError(ldap.NewError(ldap.ErrorNetwork, errors.New("dial tcp: connection refused"))))
	assert.True(t, isRetryableError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, isRetryableError(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(""))))
	assert.False(t, isRetryableError(errors.New("kerberos realm is required")))
	assert.False(t, isRetryableError(nil))
}
