package provider_test

import (
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	this "github.com/isometry/terraform-provider-dirsrv/internal/provider"
)

func newProvider(t *testing.T, version string) provider.Provider {
	t.Helper()
	p := this.New(version)()
	require.NotNil(t, p)
	return p
}

// TestProviderMetadata tests the provider metadata.
func TestProviderMetadata(t *testing.T) {
	resp := &provider.MetadataResponse{}
	newProvider(t, "test").Metadata(t.Context(), provider.MetadataRequest{}, resp)

	assert.Equal(t, "dirsrv", resp.TypeName)
	assert.Equal(t, "test", resp.Version)
}

// TestProviderSchema tests the provider schema.
func TestProviderSchema(t *testing.T) {
	resp := &provider.SchemaResponse{}
	newProvider(t, "test").Schema(t.Context(), provider.SchemaRequest{}, resp)
	require.False(t, resp.Diagnostics.HasError(), "schema diagnostics: %v", resp.Diagnostics)

	expected := []string{
		"domain", "ldap_url", "base_dn",
		"username", "password",
		"kerberos_realm", "kerberos_keytab", "kerberos_config", "kerberos_ccache", "kerberos_spn",
		"use_tls", "skip_tls_verify", "tls_ca_cert_file", "tls_ca_cert",
		"tls_client_cert_file", "tls_client_key_file",
		"connect_timeout", "max_retries", "initial_backoff", "max_backoff",
		"disable_assertions", "services_rdn", "entry_types_file",
	}

	for _, attr := range expected {
		assert.Contains(t, resp.Schema.Attributes, attr)
	}
	assert.True(t, resp.Schema.Attributes["password"].IsSensitive())
}

// TestProviderResources tests the provider resources.
func TestProviderResources(t *testing.T) {
	p := newProvider(t, "test")

	var names []string
	for _, factory := range p.Resources(t.Context()) {
		r := factory()
		require.NotNil(t, r)
		resp := &resource.MetadataResponse{}
		r.Metadata(t.Context(), resource.MetadataRequest{ProviderTypeName: "dirsrv"}, resp)
		names = append(names, resp.TypeName)
	}

	assert.ElementsMatch(t, []string{
		"dirsrv_service_account",
		"dirsrv_organizational_unit",
		"dirsrv_group",
		"dirsrv_group_membership",
	}, names)
}

// TestProviderDataSources tests the provider data sources.
func TestProviderDataSources(t *testing.T) {
	p := newProvider(t, "test")

	var names []string
	for _, factory := range p.DataSources(t.Context()) {
		d := factory()
		require.NotNil(t, d)
		resp := &datasource.MetadataResponse{}
		d.Metadata(t.Context(), datasource.MetadataRequest{ProviderTypeName: "dirsrv"}, resp)
		names = append(names, resp.TypeName)
	}

	assert.ElementsMatch(t, []string{
		"dirsrv_service_account",
		"dirsrv_service_accounts",
		"dirsrv_entries",
		"dirsrv_whoami",
	}, names)
}

// TestProviderConfigValidators tests the provider config validators.
func TestProviderConfigValidators(t *testing.T) {
	p, ok := newProvider(t, "test").(provider.ProviderWithConfigValidators)
	require.True(t, ok)

	validators := p.ConfigValidators(t.Context())
	require.NotEmpty(t, validators)
	for _, v := range validators {
		assert.NotNil(t, v)
	}
}

// TestProviderFunctions tests the provider functions.
func TestProviderFunctions(t *testing.T) {
	p, ok := newProvider(t, "test").(provider.ProviderWithFunctions)
	require.True(t, ok)

	var names []string
	for _, factory := range p.Functions(t.Context()) {
		resp := &function.MetadataResponse{}
		factory().Metadata(t.Context(), function.MetadataRequest{}, resp)
		names = append(names, resp.Name)
	}

	assert.ElementsMatch(t, []string{"normalize_dn", "service_account_dn"}, names)
}

// TestProviderEphemeralResources tests the provider ephemeral resources.
func TestProviderEphemeralResources(t *testing.T) {
	p, ok := newProvider(t, "test").(provider.ProviderWithEphemeralResources)
	require.True(t, ok)

	assert.Empty(t, p.EphemeralResources(t.Context()))
}

// TestNewProvider tests the New provider function.
func TestNewProvider(t *testing.T) {
	for _, version := range []string{"test", "dev", "1.0.0", ""} {
		t.Run("version "+version, func(t *testing.T) {
			resp := &provider.MetadataResponse{}
			newProvider(t, version).Metadata(t.Context(), provider.MetadataRequest{}, resp)
			assert.Equal(t, version, resp.Version)
		})
	}
}

// TestProviderServer tests provider server creation.
func TestProviderServer(t *testing.T) {
	serverFactory := providerserver.NewProtocol6WithError(this.New("test")())
	require.NotNil(t, serverFactory)

	server, err := serverFactory()
	require.NoError(t, err)
	assert.NotNil(t, server)
}

// TestProviderEnvironmentVariables checks that every DIRSRV_* variable is documented.
func TestProviderEnvironmentVariables(t *testing.T) {
	envVars := []string{
		"DIRSRV_DOMAIN",
		"DIRSRV_LDAP_URL",
		"DIRSRV_BASE_DN",
		"DIRSRV_USERNAME",
		"DIRSRV_PASSWORD",
		"DIRSRV_KERBEROS_REALM",
		"DIRSRV_KERBEROS_KEYTAB",
		"DIRSRV_KERBEROS_CONFIG",
		"DIRSRV_USE_TLS",
		"DIRSRV_SKIP_TLS_VERIFY",
		"DIRSRV_TLS_CA_CERT_FILE",
		"DIRSRV_TLS_CA_CERT",
		"DIRSRV_TLS_CLIENT_CERT_FILE",
		"DIRSRV_TLS_CLIENT_KEY_FILE",
		"DIRSRV_SERVICES_RDN",
		"DIRSRV_ENTRY_TYPES_FILE",
	}

	resp := &provider.SchemaResponse{}
	newProvider(t, "test").Schema(t.Context(), provider.SchemaRequest{}, resp)

	for _, envVar := range envVars {
		found := false
		for _, attr := range resp.Schema.Attributes {
			if strings.Contains(attr.GetMarkdownDescription(), envVar) {
				found = true
				break
			}
		}
		assert.True(t, found, "environment variable %s not documented", envVar)
	}
}
