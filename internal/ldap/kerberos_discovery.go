package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// generateRuntimeKrb5Conf renders a krb5.conf that locates KDCs through DNS.
// It is used when no configuration file is available.
func generateRuntimeKrb5Conf(ctx context.Context, cfg *ConnectionConfig) (string, error) {
	if cfg.KerberosRealm == "" {
		return "", errors.New("kerberos realm is required for auto-discovery")
	}

	realm := strings.ToUpper(cfg.KerberosRealm)
	domain := strings.ToLower(cfg.KerberosRealm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	tflog.SubsystemDebug(ctx, kerberosSubsystem, "Generating runtime krb5.conf", map[string]any{
		"realm":            realm,
		"domain":           domain,
		"dns_lookup_kdc":   cfg.KerberosDNSLookupKDC,
		"dns_lookup_realm": cfg.KerberosDNSLookupRealm,
	})

	var b strings.Builder
	b.WriteString("[libdefaults]\n")
	fmt.Fprintf(&b, "    default_realm = %s\n", realm)
	fmt.Fprintf(&b, "    dns_lookup_kdc = %t\n", cfg.KerberosDNSLookupKDC)
	fmt.Fprintf(&b, "    dns_lookup_realm = %t\n", cfg.KerberosDNSLookupRealm)
	b.WriteString("    rdns = false\n    forwardable = true\n\n")
	fmt.Fprintf(&b, "[realms]\n    %s = {\n    }\n\n", realm)
	fmt.Fprintf(&b, "[domain_realm]\n    .%s = %s\n    %s = %s\n", domain, realm, domain, realm)
	return b.String(), nil
}

// realmFromBaseDN derives a realm from the dc= components of a suffix, so
// dc=example,dc=com gives EXAMPLE.COM. It returns "" when the suffix has
// none.
func realmFromBaseDN(baseDN string) string {
	parsed, err := mapping.ParseDN(baseDN)
	if err != nil {
		return ""
	}

	var labels []string
	for _, rdn := range parsed.RDNs {
		for _, ava := range rdn.Attributes {
			if strings.EqualFold(ava.Type, "dc") {
				labels = append(labels, ava.Value)
			}
		}
	}
	return strings.ToUpper(strings.Join(labels, "."))
}

// validateKerberosAutoDiscoveryConfig checks that a runtime krb5.conf can be
// generated. A missing realm is derived from the domain, or failing that
// from the base DN.
func validateKerberosAutoDiscoveryConfig(ctx context.Context, cfg *ConnectionConfig) error {
	if cfg == nil {
		return errors.New("configuration cannot be nil")
	}

	if cfg.KerberosRealm == "" {
		source, realm := "domain", strings.ToUpper(cfg.Domain)
		if realm == "" {
			source, realm = "base_dn", realmFromBaseDN(cfg.BaseDN)
		}
		if realm == "" {
			return errors.New("one of kerberos_realm, domain or a dc= base_dn is required for auto-discovery")
		}
		cfg.KerberosRealm = realm
		tflog.SubsystemDebug(ctx, kerberosSubsystem, "Derived Kerberos realm", map[string]any{
			"source": source,
			"realm":  realm,
		})
	}

	if !cfg.KerberosDNSLookupKDC {
		return errors.New("DNS KDC lookup is disabled and no krb5.conf is available")
	}

	return nil
}
