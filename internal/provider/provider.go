package provider

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/ephemeral"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	ldapclient "github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure DirsrvProvider satisfies various provider interfaces.
var _ provider.Provider = &DirsrvProvider{}
var _ provider.ProviderWithFunctions = &DirsrvProvider{}
var _ provider.ProviderWithEphemeralResources = &DirsrvProvider{}
var _ provider.ProviderWithConfigValidators = &DirsrvProvider{}

// DirsrvProvider defines the provider implementation.
type DirsrvProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string
}

// DirsrvProviderModel describes the provider data model.
type DirsrvProviderModel struct {
	// Connection settings - mutually exclusive
	Domain  types.String `tfsdk:"domain"`
	LdapURL types.String `tfsdk:"ldap_url"`
	BaseDN  types.String `tfsdk:"base_dn"`

	// Authentication settings
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// TLS settings
	UseTLS            types.Bool   `tfsdk:"use_tls"`
	SkipTLSVerify     types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile     types.String `tfsdk:"tls_ca_cert_file"`
	TLSCACert         types.String `tfsdk:"tls_ca_cert"`
	TLSClientCertFile types.String `tfsdk:"tls_client_cert_file"`
	TLSClientKeyFile  types.String `tfsdk:"tls_client_key_file"`

	// Timing and retry settings
	ConnectTimeout types.Int64 `tfsdk:"connect_timeout"`
	MaxRetries     types.Int64 `tfsdk:"max_retries"`
	InitialBackoff types.Int64 `tfsdk:"initial_backoff"`
	MaxBackoff     types.Int64 `tfsdk:"max_backoff"`

	// Mapping settings
	DisableAssertions types.Bool   `tfsdk:"disable_assertions"`
	ServicesRDN       types.String `tfsdk:"services_rdn"`
	EntryTypesFile    types.String `tfsdk:"entry_types_file"`
}

func (p *DirsrvProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "dirsrv"
	resp.Version = p.version
}

func (p *DirsrvProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The dirsrv provider manages entries in an LDAP directory server such as 389 Directory Server. " +
			"It supports SRV-based server discovery, simple, Kerberos and TLS client certificate binds, " +
			"and optimistic concurrency through the LDAP assertion control where the server offers it.",
		Attributes: map[string]schema.Attribute{
			// Connection settings - mutually exclusive
			"domain": schema.StringAttribute{
				MarkdownDescription: "DNS domain for SRV-based discovery of directory servers (e.g., `example.com`). " +
					"Mutually exclusive with `ldap_url`. Can be set via the `DIRSRV_DOMAIN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"ldap_url": schema.StringAttribute{
				MarkdownDescription: "Direct LDAP/LDAPS URL (e.g., `ldaps://ds1.example.com:636`). Several URLs may be given separated by spaces. " +
					"Mutually exclusive with `domain`. Can be set via the `DIRSRV_LDAP_URL` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Suffix under which entries are managed (e.g., `dc=example,dc=com`). " +
					"If not specified, it is discovered from the root DSE. " +
					"Can be set via the `DIRSRV_BASE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},

			// Authentication settings
			"username": schema.StringAttribute{
				MarkdownDescription: "Bind DN for simple authentication (e.g., `cn=Directory Manager`), or Kerberos principal. " +
					"Can be set via the `DIRSRV_USERNAME` environment variable.",
				Optional: true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for simple or Kerberos authentication. " +
					"Can be set via the `DIRSRV_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Kerberos settings
			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: "Kerberos realm for GSSAPI authentication (e.g., `EXAMPLE.COM`). " +
					"Can be set via the `DIRSRV_KERBEROS_REALM` environment variable.",
				Optional: true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos keytab file for authentication. " +
					"Can be set via the `DIRSRV_KERBEROS_KEYTAB` environment variable.",
				Optional: true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos configuration file. Defaults to `/etc/krb5.conf`; when absent a configuration " +
					"using DNS KDC lookup is generated. Can be set via the `DIRSRV_KERBEROS_CONFIG` environment variable.",
				Optional: true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos credential cache file. When specified, existing tickets are used. " +
					"Can be set via the `DIRSRV_KERBEROS_CCACHE` environment variable.",
				Optional: true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: "Override Service Principal Name for Kerberos authentication, for example when connecting by IP address. " +
					"Format: `ldap/<hostname>`. Can be set via the `DIRSRV_KERBEROS_SPN` environment variable.",
				Optional: true,
			},

			// TLS settings
			"use_tls": schema.BoolAttribute{
				MarkdownDescription: "Upgrade `ldap://` connections with StartTLS. Defaults to `true`. " +
					"Can be set via the `DIRSRV_USE_TLS` environment variable.",
				Optional: true,
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `DIRSRV_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to a PEM CA certificate bundle for TLS verification. " +
					"Can be set via the `DIRSRV_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_ca_cert": schema.StringAttribute{
				MarkdownDescription: "PEM CA certificate content for TLS verification. " +
					"Can be set via the `DIRSRV_TLS_CA_CERT` environment variable.",
				Optional:  true,
				Sensitive: true,
			},
			"tls_client_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to client certificate file for mutual TLS and SASL EXTERNAL binds. " +
					"Can be set via the `DIRSRV_TLS_CLIENT_CERT_FILE` environment variable.",
				Optional: true,
			},
			"tls_client_key_file": schema.StringAttribute{
				MarkdownDescription: "Path to client private key file for mutual TLS. " +
					"Can be set via the `DIRSRV_TLS_CLIENT_KEY_FILE` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Timing and retry settings
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Timeout in seconds for connecting and for each directory operation. Defaults to `30`. " +
					"Can be set via the `DIRSRV_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of retry attempts when connecting. Writes are never retried. Defaults to `3`. " +
					"Can be set via the `DIRSRV_MAX_RETRIES` environment variable.",
				Optional: true,
			},
			"initial_backoff": schema.Int64Attribute{
				MarkdownDescription: "Initial backoff delay in milliseconds between connection attempts. Defaults to `500`. " +
					"Can be set via the `DIRSRV_INITIAL_BACKOFF` environment variable.",
				Optional: true,
			},
			"max_backoff": schema.Int64Attribute{
				MarkdownDescription: "Maximum backoff delay in seconds between connection attempts. Defaults to `30`. " +
					"Can be set via the `DIRSRV_MAX_BACKOFF` environment variable.",
				Optional: true,
			},

			// Mapping settings
			"disable_assertions": schema.BoolAttribute{
				MarkdownDescription: "Never send the LDAP assertion control, falling back to last-write-wins updates. Defaults to `false`. " +
					"Can be set via the `DIRSRV_DISABLE_ASSERTIONS` environment variable.",
				Optional: true,
			},
			"services_rdn": schema.StringAttribute{
				MarkdownDescription: "Container RDN holding service accounts below the base DN. Defaults to `ou=Services`. " +
					"Can be set via the `DIRSRV_SERVICES_RDN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"entry_types_file": schema.StringAttribute{
				MarkdownDescription: "Path to a YAML document declaring additional entry types for the `dirsrv_entries` data source. " +
					"Can be set via the `DIRSRV_ENTRY_TYPES_FILE` environment variable.",
				Optional: true,
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *DirsrvProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("domain"),
			path.MatchRoot("ldap_url"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("tls_ca_cert_file"),
			path.MatchRoot("tls_ca_cert"),
		),
		providervalidator.RequiredTogether(
			path.MatchRoot("tls_client_cert_file"),
			path.MatchRoot("tls_client_key_file"),
		),
	}
}

func (p *DirsrvProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data DirsrvProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring dirsrv provider", map[string]any{
		"version": p.version,
	})

	config := p.buildLDAPConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	if !config.HasAuthentication() {
		resp.Diagnostics.AddWarning(
			"Anonymous Bind",
			"No credentials are configured, so the provider binds anonymously. Most servers refuse writes from anonymous clients. "+
				"Set username and password, Kerberos settings or a TLS client certificate.",
		)
	}

	registry, err := p.buildRegistry(p.getStringValue(data.EntryTypesFile, "DIRSRV_ENTRY_TYPES_FILE"))
	if err != nil {
		resp.Diagnostics.AddAttributeError(
			path.Root("entry_types_file"),
			"Invalid Entry Types",
			"Could not load additional entry types: "+err.Error(),
		)
		return
	}

	start := time.Now()
	backend, err := ldapclient.Dial(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Failed to connect to directory server", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Connect to Directory Server",
			"The provider could not connect and bind to the directory server. "+
				"Please verify your connection and authentication settings.\n\n"+
				"Connection Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Connection established successfully", map[string]any{
		"server":      backend.Server(),
		"auth_method": config.GetAuthMethod().String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	baseDN := backend.BaseDN()
	if baseDN == "" {
		resp.Diagnostics.AddWarning(
			"Base DN Not Determined",
			"No base_dn is configured and the server does not advertise a single naming context. "+
				"Resources and data sources must set base_dn or an explicit path.",
		)
	}

	providerData := &ProviderData{
		Backend:     backend,
		Registry:    registry,
		BaseDN:      baseDN,
		ServicesRDN: p.getStringValue(data.ServicesRDN, "DIRSRV_SERVICES_RDN"),
		Timeout:     config.Timeout,
	}

	tflog.Info(ctx, "dirsrv provider configured successfully", map[string]any{
		"base_dn":          baseDN,
		"versioned_writes": backend.VersionAttribute() != "",
	})

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

// configureLogging sets up logging configuration based on environment variables.
func (p *DirsrvProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "dirsrv")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	ctx = initializeLogging(ctx)

	tflog.Debug(ctx, "dirsrv provider logging configured")

	return ctx
}

// buildRegistry returns the built-in entry types plus any declared in file.
func (p *DirsrvProvider) buildRegistry(file string) (*mapping.Registry, error) {
	registry := idm.NewRegistry()
	if file == "" {
		return registry, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := registry.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return registry, nil
}

// buildLDAPConfig constructs the connection configuration from provider config and environment variables.
func (p *DirsrvProvider) buildLDAPConfig(data *DirsrvProviderModel, diags *diag.Diagnostics) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	// Connection settings
	if domain := p.getStringValue(data.Domain, "DIRSRV_DOMAIN"); domain != "" {
		config.Domain = domain
	}

	if ldapURL := p.getStringValue(data.LdapURL, "DIRSRV_LDAP_URL"); ldapURL != "" {
		config.LDAPURLs = strings.Fields(ldapURL)
	}

	if config.Domain == "" && len(config.LDAPURLs) == 0 {
		diags.AddError(
			"Missing Connection Configuration",
			"Either domain or ldap_url must be configured, or the DIRSRV_DOMAIN or DIRSRV_LDAP_URL environment variable set.",
		)
		return config
	}

	config.BaseDN = p.getStringValue(data.BaseDN, "DIRSRV_BASE_DN")

	// Authentication settings
	config.Username = p.getStringValue(data.Username, "DIRSRV_USERNAME")
	config.Password = p.getStringValue(data.Password, "DIRSRV_PASSWORD")
	config.KerberosRealm = p.getStringValue(data.KerberosRealm, "DIRSRV_KERBEROS_REALM")
	config.KerberosKeytab = p.getStringValue(data.KerberosKeytab, "DIRSRV_KERBEROS_KEYTAB")
	config.KerberosConfig = p.getStringValue(data.KerberosConfig, "DIRSRV_KERBEROS_CONFIG")
	config.KerberosCCache = p.getStringValue(data.KerberosCCache, "DIRSRV_KERBEROS_CCACHE")
	config.KerberosSPN = p.getStringValue(data.KerberosSPN, "DIRSRV_KERBEROS_SPN")

	if config.Username != "" && config.Password == "" && config.KerberosRealm == "" {
		diags.AddError(
			"Incomplete Authentication Configuration",
			"A username was configured without a password. For simple binds provide 'password' or set DIRSRV_PASSWORD. "+
				"For Kerberos provide 'kerberos_realm' with a keytab, credential cache or password.",
		)
		return config
	}

	// TLS settings
	config.UseTLS = p.getBoolValue(data.UseTLS, "DIRSRV_USE_TLS", true)

	if p.getBoolValue(data.SkipTLSVerify, "DIRSRV_SKIP_TLS_VERIFY", false) {
		config.TLSConfig.InsecureSkipVerify = true
	}

	caFile := p.getStringValue(data.TLSCACertFile, "DIRSRV_TLS_CA_CERT_FILE")
	caPEM := p.getStringValue(data.TLSCACert, "DIRSRV_TLS_CA_CERT")
	if caFile != "" || caPEM != "" {
		pool, err := loadCACertPool(caFile, caPEM)
		if err != nil {
			diags.AddError("Invalid CA Certificate", err.Error())
			return config
		}
		config.TLSConfig.RootCAs = pool
	}

	config.TLSClientCertFile = p.getStringValue(data.TLSClientCertFile, "DIRSRV_TLS_CLIENT_CERT_FILE")
	config.TLSClientKeyFile = p.getStringValue(data.TLSClientKeyFile, "DIRSRV_TLS_CLIENT_KEY_FILE")

	// Timing and retry settings
	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "DIRSRV_CONNECT_TIMEOUT", 30); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}

	if maxRetries := p.getInt64Value(data.MaxRetries, "DIRSRV_MAX_RETRIES", 3); maxRetries >= 0 {
		config.MaxRetries = int(maxRetries)
	}

	if initialBackoff := p.getInt64Value(data.InitialBackoff, "DIRSRV_INITIAL_BACKOFF", 500); initialBackoff > 0 {
		config.InitialBackoff = time.Duration(initialBackoff) * time.Millisecond
	}

	if maxBackoff := p.getInt64Value(data.MaxBackoff, "DIRSRV_MAX_BACKOFF", 30); maxBackoff > 0 {
		config.MaxBackoff = time.Duration(maxBackoff) * time.Second
	}

	config.DisableAssertions = p.getBoolValue(data.DisableAssertions, "DIRSRV_DISABLE_ASSERTIONS", false)

	if err := config.Validate(); err != nil {
		diags.AddError("Invalid Provider Configuration", err.Error())
	}

	return config
}

// loadCACertPool reads PEM certificates from file or from pemData.
func loadCACertPool(file, pemData string) (*x509.CertPool, error) {
	data := []byte(pemData)
	if file != "" {
		var err error
		if data, err = os.ReadFile(file); err != nil {
			return nil, fmt.Errorf("reading CA certificate file: %w", err)
		}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("no PEM certificates found in CA certificate data")
	}
	return pool, nil
}

// Helper functions for configuration value resolution

func (p *DirsrvProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *DirsrvProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *DirsrvProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *DirsrvProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewServiceAccountResource,
		NewOrganizationalUnitResource,
		NewGroupResource,
		NewGroupMembershipResource,
	}
}

func (p *DirsrvProvider) EphemeralResources(ctx context.Context) []func() ephemeral.EphemeralResource {
	return nil
}

func (p *DirsrvProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewServiceAccountDataSource,
		NewServiceAccountsDataSource,
		NewEntriesDataSource,
		NewWhoAmIDataSource,
	}
}

func (p *DirsrvProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewNormalizeDNFunction,
		NewServiceAccountDNFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &DirsrvProvider{
			version: version,
		}
	}
}
