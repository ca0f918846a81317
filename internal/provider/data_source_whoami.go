package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &WhoAmIDataSource{}

func NewWhoAmIDataSource() datasource.DataSource {
	return &WhoAmIDataSource{}
}

// WhoAmIDataSource defines the data source implementation.
type WhoAmIDataSource struct {
	data *ProviderData
}

// WhoAmIDataSourceModel describes the data source data model.
type WhoAmIDataSourceModel struct {
	ID      types.String `tfsdk:"id"`
	AuthzID types.String `tfsdk:"authz_id"`
	DN      types.String `tfsdk:"dn"`
	UserID  types.String `tfsdk:"user_id"`
	Format  types.String `tfsdk:"format"`
}

func (d *WhoAmIDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_whoami"
}

func (d *WhoAmIDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Returns the identity the provider is bound as, using the LDAP \"Who Am I?\" extended operation (RFC 4532).",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `authz_id`, or `anonymous` for an anonymous bind.",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "The raw authorization ID returned by the server, e.g. `dn:cn=Directory Manager`.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The bound distinguished name, when the authorization ID is in `dn:` form.",
				Computed:            true,
			},
			"user_id": schema.StringAttribute{
				MarkdownDescription: "The user ID, when the authorization ID is in `u:` form.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "The form of the authorization ID: `dn`, `user`, `empty` (anonymous) or `unknown`.",
				Computed:            true,
			},
		},
	}
}

func (d *WhoAmIDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *WhoAmIDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data WhoAmIDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logDataSourceOperation(ctx, "whoami", "read", nil)

	authzID, err := whoAmI(ctx, d.data)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Performing WhoAmI Operation", err)
		return
	}

	parseAuthzID(authzID, &data)

	tflog.Debug(ctx, "Performed WhoAmI operation", map[string]any{
		"authz_id": authzID,
		"format":   data.Format.ValueString(),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func whoAmI(ctx context.Context, data *ProviderData) (string, error) {
	if data == nil {
		return "", errProviderNotConfigured
	}
	w, ok := data.Backend.(whoAmIer)
	if !ok {
		return "", errors.New("the configured backend does not support the Who Am I? operation")
	}
	return w.WhoAmI(ctx)
}

// parseAuthzID fills model from an RFC 4513 authorization identity.
func parseAuthzID(authzID string, model *WhoAmIDataSourceModel) {
	model.AuthzID = types.StringValue(authzID)
	model.ID = types.StringValue(authzID)
	model.DN = types.StringNull()
	model.UserID = types.StringNull()

	switch {
	case authzID == "":
		model.ID = types.StringValue("anonymous")
		model.Format = types.StringValue("empty")
	case strings.HasPrefix(strings.ToLower(authzID), "dn:"):
		dn := strings.TrimSpace(authzID[3:])
		if _, err := mapping.ParseDN(dn); err != nil {
			model.Format = types.StringValue("unknown")
			return
		}
		model.DN = types.StringValue(dn)
		model.Format = types.StringValue("dn")
	case strings.HasPrefix(strings.ToLower(authzID), "u:"):
		model.UserID = helpers.StringOrNull(authzID[2:])
		model.Format = types.StringValue("user")
	default:
		model.Format = types.StringValue("unknown")
	}
}
