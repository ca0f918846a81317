package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
)

const defaultKrb5ConfPath = "/etc/krb5.conf"

// performKerberosAuth performs a GSSAPI bind on conn.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	if err := prepareKerberosConfig(cfg); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(ctx, cfg)
	if err != nil {
		LogKerberosEvent(ctx, "ticket_acquisition_failed", map[string]any{
			"realm": cfg.KerberosRealm,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	LogKerberosEvent(ctx, "principal_resolved", map[string]any{"spn": spn})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{
			"spn":   spn,
			"error": err.Error(),
		})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// loadKrb5Config reads krb5.conf, or generates a DNS-discovery configuration
// when no file is present.
func loadKrb5Config(ctx context.Context, cfg *ConnectionConfig) (*krb5config.Config, error) {
	if fileExists(cfg.KerberosConfig) {
		return krb5config.Load(cfg.KerberosConfig)
	}

	if err := validateKerberosAutoDiscoveryConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("kerberos configuration file not found at %s and auto-discovery is not possible: %w",
			cfg.KerberosConfig, err)
	}

	conf, err := generateRuntimeKrb5Conf(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return krb5config.NewFromString(conf)
}

// createGSSAPIClient creates a GSSAPI client.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig) (*gssapi.Client, error) {
	krb5conf, err := loadKrb5Config(ctx, cfg)
	if err != nil {
		return nil, err
	}

	settings := krb5client.DisablePAFXFAST(true)

	if path := firstExisting(cfg.KerberosCCache, getDefaultCCachePath()); path != "" {
		ccache, err := credentials.LoadCCache(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load credential cache %s: %w", path, err)
		}
		cl, err := krb5client.NewFromCCache(ccache, krb5conf, settings)
		if err != nil {
			return nil, fmt.Errorf("failed to use credential cache %s: %w", path, err)
		}
		LogKerberosEvent(ctx, "ccache_loaded", map[string]any{"path": path})
		return &gssapi.Client{Client: cl}, nil
	}

	var cl *krb5client.Client
	if path := firstExisting(cfg.KerberosKeytab, getDefaultKeytabPath()); path != "" && cfg.Username != "" {
		kt, err := keytab.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load keytab %s: %w", path, err)
		}
		LogKerberosEvent(ctx, "keytab_loaded", map[string]any{"path": path})
		cl = krb5client.NewWithKeytab(cfg.Username, cfg.KerberosRealm, kt, krb5conf, settings)
	} else if cfg.Username != "" && cfg.Password != "" {
		cl = krb5client.NewWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krb5conf, settings)
	} else {
		return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
	}

	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("kerberos login failed: %w", err)
	}
	LogKerberosEvent(ctx, "ticket_acquired", map[string]any{
		"principal": cfg.Username,
		"realm":     cfg.KerberosRealm,
	})

	return &gssapi.Client{Client: cl}, nil
}

// buildServicePrincipal returns the LDAP service principal for server. An
// explicit KerberosSPN wins.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + server.Host, nil
}

// prepareKerberosConfig fills defaults and validates the Kerberos settings.
func prepareKerberosConfig(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if cfg.KerberosConfig == "" {
		cfg.KerberosConfig = defaultKrb5ConfPath
	}

	// user@REALM
	if cfg.KerberosRealm == "" {
		if user, realm, ok := strings.Cut(cfg.Username, "@"); ok && user != "" && realm != "" {
			cfg.Username = user
			cfg.KerberosRealm = realm
		}
	}

	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}

	if !hasKerberosCredentials(cfg) {
		return fmt.Errorf("no suitable Kerberos credentials found: provide kerberos_ccache, kerberos_keytab, password, or ensure default credential cache/keytab exists")
	}

	return nil
}

func hasKerberosCredentials(cfg *ConnectionConfig) bool {
	if firstExisting(cfg.KerberosCCache, getDefaultCCachePath()) != "" {
		return true
	}

	if cfg.Username == "" {
		return false
	}

	return cfg.Password != "" || firstExisting(cfg.KerberosKeytab, getDefaultKeytabPath()) != ""
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if kt := os.Getenv("KRB5_KTNAME"); kt != "" {
		return strings.TrimPrefix(kt, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
