package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// assertionControlOID identifies the LDAP assertion control (RFC 4528).
const assertionControlOID = "1.3.6.1.1.12"

// Backend is a mapping.Backend talking to a directory server over LDAP. A
// single connection is shared and re-established when the server drops it.
type Backend struct {
	mu        sync.Mutex
	config    *ConnectionConfig
	discovery *SRVDiscovery
	servers   []*ServerInfo
	conn      *ldap.Conn
	server    *ServerInfo

	// Root DSE capabilities, probed once after the first connection
	supportedControls []string
	namingContexts    []string
	defaultContext    string
	usn               bool
}

var (
	_ mapping.Backend          = (*Backend)(nil)
	_ mapping.VersionedBackend = (*Backend)(nil)
	_ mapping.Renamer          = (*Backend)(nil)
)

// Dial connects and binds to the configured directory, then reads the
// server's root DSE. Dial and bind are retried with exponential backoff;
// directory operations are not.
func Dial(ctx context.Context, config *ConnectionConfig) (*Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tflog.SubsystemDebug(ctx, subsystem, "Creating directory backend", map[string]any{
		"domain":          config.Domain,
		"ldap_urls_count": len(config.LDAPURLs),
		"auth_method":     config.GetAuthMethod().String(),
		"use_tls":         config.UseTLS,
	})

	b := &Backend{
		config:    config,
		discovery: NewSRVDiscovery(),
	}

	servers, err := resolveServers(ctx, config, b.discovery)
	if err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers discovered")
	}
	b.servers = servers

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connect(ctx); err != nil {
		return nil, err
	}

	if err := b.probe(ctx); err != nil {
		b.conn.Close()
		return nil, fmt.Errorf("failed to read root DSE: %w", err)
	}

	return b, nil
}

// connect dials the servers in order until one accepts the connection and
// the bind, retrying the whole list with backoff. Callers hold b.mu.
func (b *Backend) connect(ctx context.Context) error {
	var lastErr error
	backoff := b.config.InitialBackoff

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		for _, server := range b.servers {
			LogConnectionEvent(ctx, "connection_attempt", map[string]any{
				"server":  ServerInfoToURL(server),
				"attempt": attempt + 1,
			})

			conn, err := b.dialServer(ctx, server)
			if err == nil {
				b.conn = conn
				b.server = server
				LogConnectionEvent(ctx, "connection_established", map[string]any{
					"server":      ServerInfoToURL(server),
					"auth_method": b.config.GetAuthMethod().String(),
				})
				return nil
			}

			lastErr = err
			LogConnectionEvent(ctx, "connection_failed", map[string]any{
				"server": ServerInfoToURL(server),
				"error":  err.Error(),
			})

			if !isRetryableError(err) {
				return mapping.WrapError("connect", "", err)
			}
		}

		if attempt < b.config.MaxRetries {
			select {
			case <-ctx.Done():
				return mapping.WrapError("connect", "", ctx.Err())
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*b.config.BackoffFactor), b.config.MaxBackoff)
			}
		}
	}

	return mapping.WrapError("connect", "", fmt.Errorf("failed to connect after %d attempts: %w", b.config.MaxRetries+1, lastErr))
}

// dialServer opens and authenticates a connection to one server.
func (b *Backend) dialServer(ctx context.Context, server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)

	tlsConfig, err := b.tlsConfig(server)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: b.config.Timeout}
	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	if !server.UseTLS && b.config.UseTLS && !b.config.SkipTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("StartTLS with %s failed: %w", url, err)
		}
	}

	conn.SetTimeout(b.config.Timeout)

	if err := b.authenticate(ctx, conn, server); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to authenticate to %s: %w", url, err)
	}

	return conn, nil
}

func (b *Backend) tlsConfig(server *ServerInfo) (*tls.Config, error) {
	var config *tls.Config
	if b.config.TLSConfig != nil {
		config = b.config.TLSConfig.Clone()
	} else {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.ServerName == "" {
		config.ServerName = server.Host
	}

	if b.config.TLSClientCertFile != "" && b.config.TLSClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.config.TLSClientCertFile, b.config.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = append(config.Certificates, cert)
	}

	return config, nil
}

// authenticate binds conn with the configured method.
func (b *Backend) authenticate(ctx context.Context, conn *ldap.Conn, server *ServerInfo) error {
	method := b.config.GetAuthMethod()

	var err error
	switch method {
	case AuthMethodAnonymous:
		return nil
	case AuthMethodSimpleBind:
		err = conn.Bind(b.config.Username, b.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ctx, conn, b.config, server)
	case AuthMethodExternal:
		err = conn.ExternalBind()
	default:
		err = fmt.Errorf("unsupported authentication method: %s", method.String())
	}

	if err != nil {
		LogConnectionEvent(ctx, "authentication_failed", map[string]any{
			"auth_method": method.String(),
			"username":    b.config.Username,
			"error":       err.Error(),
		})
		return err
	}

	LogConnectionEvent(ctx, "authentication_success", map[string]any{
		"auth_method": method.String(),
		"username":    b.config.Username,
	})
	return nil
}

// probe reads supportedControl, the naming contexts and any lastusn counters
// from the root DSE. Callers hold b.mu.
func (b *Backend) probe(ctx context.Context) error {
	req := ldap.NewSearchRequest("", ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", []string{"supportedControl", "namingContexts", "defaultNamingContext", "lastusn"}, nil)

	result, err := b.conn.Search(req)
	if err != nil {
		return translateError("probe", "", err)
	}
	if len(result.Entries) == 0 {
		return nil
	}

	rootDSE := result.Entries[0]
	b.supportedControls = rootDSE.GetAttributeValues("supportedControl")
	b.namingContexts = rootDSE.GetAttributeValues("namingContexts")
	b.defaultContext = rootDSE.GetAttributeValue("defaultNamingContext")
	b.usn = hasUSNCounter(rootDSE)

	tflog.SubsystemDebug(ctx, subsystem, "Read root DSE", map[string]any{
		"assertions":        b.supportsAssertions(),
		"naming_contexts":   b.namingContexts,
		"version_attribute": b.versionAttribute(),
	})
	return nil
}

// hasUSNCounter reports whether the USN plugin publishes lastusn, usually
// per backend as lastusn;<backend>.
func hasUSNCounter(rootDSE *ldap.Entry) bool {
	for _, attr := range rootDSE.Attributes {
		name := strings.ToLower(attr.Name)
		if (name == "lastusn" || strings.HasPrefix(name, "lastusn;")) && len(attr.Values) > 0 {
			return true
		}
	}
	return false
}

func (b *Backend) supportsAssertions() bool {
	return !b.config.DisableAssertions && slices.Contains(b.supportedControls, assertionControlOID)
}

// connection returns the live connection, reconnecting when the previous one
// was closed. Callers hold b.mu.
func (b *Backend) connection(ctx context.Context) (*ldap.Conn, error) {
	if b.conn != nil && !b.conn.IsClosing() {
		return b.conn, nil
	}

	LogConnectionEvent(ctx, "connection_lost", nil)
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b.conn, nil
}

// do runs fn against the connection with the request timeout taken from the
// context deadline, translating the result into a mapping error.
func (b *Backend) do(ctx context.Context, op, dn string, fn func(conn *ldap.Conn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return mapping.WrapError(op, dn, err)
	}

	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}

	timeout := b.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return mapping.WrapError(op, dn, context.DeadlineExceeded)
		}
	}
	conn.SetTimeout(timeout)

	return LogOperation(ctx, op, map[string]any{"dn": dn}, func() error {
		return translateError(op, dn, fn(conn))
	})
}

// Search implements mapping.Backend.
func (b *Backend) Search(ctx context.Context, req *mapping.SearchRequest) ([]mapping.RawEntry, error) {
	if req == nil {
		return nil, mapping.NewError(mapping.KindValidation, "search", "", "search request cannot be nil")
	}

	searchReq := ldap.NewSearchRequest(
		req.BaseDN,
		toLDAPScope(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		0,
		false,
		req.FilterString(),
		req.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	err := b.do(ctx, "search", req.BaseDN, func(conn *ldap.Conn) error {
		var searchErr error
		result, searchErr = conn.Search(searchReq)
		if searchErr != nil && ldap.IsErrorWithCode(searchErr, ldap.LDAPResultSizeLimitExceeded) && result != nil {
			tflog.SubsystemWarn(ctx, subsystem, "Search truncated by size limit", map[string]any{
				"base_dn":    req.BaseDN,
				"size_limit": req.SizeLimit,
			})
			return nil
		}
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	entries := make([]mapping.RawEntry, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, toRawEntry(e))
	}
	return entries, nil
}

// Add implements mapping.Backend.
func (b *Backend) Add(ctx context.Context, dn string, attrs []mapping.RawAttribute) error {
	addReq := ldap.NewAddRequest(dn, nil)
	for _, attr := range attrs {
		addReq.Attribute(attr.Name, wireValues(attr))
	}

	return b.do(ctx, "add", dn, func(conn *ldap.Conn) error {
		return conn.Add(addReq)
	})
}

// Modify implements mapping.Backend.
func (b *Backend) Modify(ctx context.Context, dn string, changes []mapping.AttributeChange) error {
	modifyReq := buildModifyRequest(dn, changes, nil)
	return b.do(ctx, "modify", dn, func(conn *ldap.Conn) error {
		return conn.Modify(modifyReq)
	})
}

// VersionAttribute implements mapping.VersionedBackend. It is empty when the
// server does not advertise the assertion control.
func (b *Backend) VersionAttribute() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.versionAttribute()
}

// versionAttribute prefers a configured attribute, then entryUSN when the
// server keeps update sequence numbers, then modifyTimestamp. Callers hold
// b.mu.
func (b *Backend) versionAttribute() string {
	switch {
	case !b.supportsAssertions():
		return ""
	case b.config.VersionAttribute != "":
		return b.config.VersionAttribute
	case b.usn:
		return "entryUSN"
	default:
		return "modifyTimestamp"
	}
}

// ModifyIfUnchanged implements mapping.VersionedBackend by attaching
// assertion as a critical assertion control.
func (b *Backend) ModifyIfUnchanged(ctx context.Context, dn string, assertion mapping.Filter, changes []mapping.AttributeChange) error {
	if b.VersionAttribute() == "" {
		return mapping.NewError(mapping.KindValidation, "modify", dn, "server does not support the assertion control")
	}
	if err := mapping.CheckFilter(assertion); err != nil {
		return mapping.WrapError("modify", dn, err)
	}

	control, err := assertionControl(assertion)
	if err != nil {
		return mapping.WrapError("modify", dn, err)
	}

	modifyReq := buildModifyRequest(dn, changes, []ldap.Control{control})
	return b.do(ctx, "modify", dn, func(conn *ldap.Conn) error {
		return conn.Modify(modifyReq)
	})
}

// Delete implements mapping.Backend.
func (b *Backend) Delete(ctx context.Context, dn string) error {
	delReq := ldap.NewDelRequest(dn, nil)
	return b.do(ctx, "delete", dn, func(conn *ldap.Conn) error {
		return conn.Del(delReq)
	})
}

// Rename implements mapping.Renamer. The old RDN value is removed.
func (b *Backend) Rename(ctx context.Context, dn, newRDN string) error {
	modDNReq := ldap.NewModifyDNRequest(dn, newRDN, true, "")
	return b.do(ctx, "rename", dn, func(conn *ldap.Conn) error {
		return conn.ModifyDN(modDNReq)
	})
}

// WhoAmI returns the authorization identity of the bound connection.
func (b *Backend) WhoAmI(ctx context.Context) (string, error) {
	var authzID string
	err := b.do(ctx, "whoami", "", func(conn *ldap.Conn) error {
		result, err := conn.WhoAmI(nil)
		if err != nil {
			return err
		}
		authzID = result.AuthzID
		return nil
	})
	return authzID, err
}

// BaseDN returns the configured suffix, falling back to the server's default
// or only naming context.
func (b *Backend) BaseDN() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.BaseDN != "" {
		return b.config.BaseDN
	}
	if b.defaultContext != "" {
		return b.defaultContext
	}
	if len(b.namingContexts) == 1 {
		return b.namingContexts[0]
	}
	return ""
}

// Server returns the URL of the connected server.
func (b *Backend) Server() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server == nil {
		return ""
	}
	return ServerInfoToURL(b.server)
}

// Close closes the connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

func toLDAPScope(scope mapping.Scope) int {
	switch scope {
	case mapping.ScopeBase:
		return ldap.ScopeBaseObject
	case mapping.ScopeOneLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// toRawEntry converts a go-ldap entry, keeping binary attributes as bytes.
func toRawEntry(e *ldap.Entry) mapping.RawEntry {
	raw := mapping.RawEntry{
		DN:         e.DN,
		Attributes: make([]mapping.RawAttribute, 0, len(e.Attributes)),
	}

	for _, attr := range e.Attributes {
		out := mapping.RawAttribute{Name: attr.Name}
		if isBinaryAttribute(attr.Name, attr.ByteValues) {
			out.ByteValues = attr.ByteValues
		} else {
			out.Values = attr.Values
		}
		raw.Attributes = append(raw.Attributes, out)
	}

	return raw
}

// wireValues flattens text and binary values into the octet strings go-ldap
// sends.
func wireValues(attr mapping.RawAttribute) []string {
	values := make([]string, 0, len(attr.Values)+len(attr.ByteValues))
	values = append(values, attr.Values...)
	for _, b := range attr.ByteValues {
		values = append(values, string(b))
	}
	return values
}

func buildModifyRequest(dn string, changes []mapping.AttributeChange, controls []ldap.Control) *ldap.ModifyRequest {
	req := ldap.NewModifyRequest(dn, controls)
	for _, change := range changes {
		values := wireValues(change.Attribute)
		switch change.Op {
		case mapping.ChangeAdd:
			req.Add(change.Name(), values)
		case mapping.ChangeDelete:
			req.Delete(change.Name(), values)
		case mapping.ChangeReplace:
			req.Replace(change.Name(), values)
		}
	}
	return req
}

// assertionControl encodes filter as the value of a critical assertion
// control.
func assertionControl(filter mapping.Filter) (ldap.Control, error) {
	packet, err := ldap.CompileFilter(filter.String())
	if err != nil {
		return nil, fmt.Errorf("invalid assertion filter %s: %w", strings.TrimSpace(filter.String()), err)
	}
	return ldap.NewControlString(assertionControlOID, true, string(packet.Bytes())), nil
}
