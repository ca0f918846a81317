package ldap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// ConnectionConfig holds configuration for a directory server connection.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        // Domain for SRV discovery
	LDAPURLs []string      // Direct LDAP URLs (overrides domain)
	BaseDN   string        // Suffix under which entries are managed
	Timeout  time.Duration `default:"30s"` // Per-operation timeout

	// Authentication settings
	Username               string // Bind DN for simple bind, principal for Kerberos
	Password               string // Password for simple bind or Kerberos
	KerberosRealm          string // Kerberos realm for GSSAPI authentication
	KerberosKeytab         string // Path to Kerberos keytab file
	KerberosConfig         string // Path to Kerberos config file (krb5.conf)
	KerberosCCache         string // Path to Kerberos credential cache
	KerberosSPN            string // Service principal override
	KerberosDNSLookupKDC   bool   `default:"true"` // Runtime krb5.conf: locate KDCs via DNS
	KerberosDNSLookupRealm bool   // Runtime krb5.conf: locate realm via DNS

	// TLS settings
	TLSConfig         *tls.Config // Custom TLS configuration
	UseTLS            bool        `default:"true"` // Upgrade plain connections with StartTLS
	SkipTLS           bool        // Skip TLS entirely (not recommended)
	TLSClientCertFile string      // Path to client certificate file
	TLSClientKeyFile  string      // Path to client private key file

	// Retry settings, applied to dial and bind only
	MaxRetries     int           `default:"3"`
	InitialBackoff time.Duration `default:"500ms"`
	MaxBackoff     time.Duration `default:"30s"`
	BackoffFactor  float64       `default:"2.0"`

	// Optimistic concurrency
	VersionAttribute  string // Version token attribute; empty selects entryUSN or modifyTimestamp from the root DSE
	DisableAssertions bool   // Never send the assertion control, even if advertised
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	config := &ConnectionConfig{}
	if err := defaults.Set(config); err != nil {
		panic(fmt.Sprintf("ldap: invalid config defaults: %v", err))
	}
	config.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	return config
}

// Validate checks the configuration before dialing.
func (c *ConnectionConfig) Validate() error {
	if len(c.LDAPURLs) == 0 && c.Domain == "" {
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if c.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}

	if c.UseTLS && c.SkipTLS {
		return errors.New("UseTLS and SkipTLS are mutually exclusive")
	}

	return nil
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "fallback"
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodAnonymous  AuthMethod = iota // No bind
	AuthMethodSimpleBind                   // Bind DN and password
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodExternal                     // SASL EXTERNAL over a client certificate
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.Username != "") {
		return AuthMethodKerberos
	}

	if c.Username != "" && c.Password != "" {
		return AuthMethodSimpleBind
	}

	if c.TLSClientCertFile != "" && c.TLSClientKeyFile != "" {
		return AuthMethodExternal
	}

	return AuthMethodAnonymous
}

// HasAuthentication checks if any authentication method is configured.
func (c *ConnectionConfig) HasAuthentication() bool {
	return c.GetAuthMethod() != AuthMethodAnonymous
}
