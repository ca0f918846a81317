/*
Package ldap implements mapping.Backend against a 389 Directory Server (or any
LDAPv3 server) using go-ldap.

# Connection Management

Dial resolves the servers to try, opens a single connection and binds:

  - Explicit ldap:// and ldaps:// URLs, or DNS SRV discovery for a domain
  - LDAPS, or StartTLS on plain connections unless TLS is skipped
  - Simple bind, Kerberos (GSSAPI) or SASL EXTERNAL with a client certificate
  - Exponential backoff across all servers while dialing and binding

Directory operations are never retried. A dropped connection is re-established
on the next operation.

# Optimistic Concurrency

After connecting, the root DSE is read. When the server advertises the
assertion control (1.3.6.1.1.12) the Backend also implements ModifyIfUnchanged:
the modify carries the caller's filter as a critical assertion, and a failed
assertion is reported as mapping.KindConflict. The version attribute is
entryUSN when the root DSE publishes lastusn counters and modifyTimestamp
otherwise. Otherwise VersionAttribute is empty and callers fall back to
last-write-wins.

# Error Handling

LDAP result codes are translated to mapping error kinds:

  - noSuchObject is KindNotFound
  - entryAlreadyExists is KindAlreadyExists
  - assertionFailed and notAllowedOnNonLeaf are KindConflict
  - schema and naming violations are KindValidation
  - access refusals are KindAccessDenied
  - everything else, including network failures, is KindConnection

# Binary Attributes

Attributes such as objectSid, objectGUID and jpegPhoto, and any value that is
not valid UTF-8, are returned as binary values. FormatValue renders them for
display.
*/
package ldap
