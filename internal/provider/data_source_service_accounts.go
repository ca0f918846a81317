package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-framework/types/basetypes"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &ServiceAccountsDataSource{}

func NewServiceAccountsDataSource() datasource.DataSource {
	return &ServiceAccountsDataSource{}
}

// ServiceAccountsDataSource defines the data source implementation.
type ServiceAccountsDataSource struct {
	data *ProviderData
}

// ServiceAccountsDataSourceModel describes the data source data model.
type ServiceAccountsDataSourceModel struct {
	ID              types.String `tfsdk:"id"`
	BaseDN          types.String `tfsdk:"base_dn"`
	ContainerRDN    types.String `tfsdk:"container_rdn"`
	Filter          types.Object `tfsdk:"filter"`
	ServiceAccounts types.List   `tfsdk:"service_accounts"`
	Count           types.Int64  `tfsdk:"count"`
}

// ServiceAccountFilterModel narrows the listing. All criteria must match.
type ServiceAccountFilterModel struct {
	NamePrefix          types.String `tfsdk:"name_prefix"`
	NameSuffix          types.String `tfsdk:"name_suffix"`
	NameContains        types.String `tfsdk:"name_contains"`
	DescriptionContains types.String `tfsdk:"description_contains"`
	LDAPFilter          types.String `tfsdk:"ldap_filter"`
}

var serviceAccountSummaryAttrTypes = map[string]attr.Type{
	"name":        types.StringType,
	"dn":          types.StringType,
	"description": types.StringType,
}

func (d *ServiceAccountsDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_service_accounts"
}

func (d *ServiceAccountsDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the service accounts in a services container. A missing container yields an empty list.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "A digest of the container and filter used for the listing.",
				Computed:            true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The suffix holding the services container. Defaults to the provider's base DN.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"container_rdn": schema.StringAttribute{
				MarkdownDescription: "RDN of the services container. Defaults to the provider's `services_rdn`.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"filter": schema.SingleNestedAttribute{
				MarkdownDescription: "Criteria narrowing the listing. All specified criteria must match.",
				Optional:            true,
				Attributes: map[string]schema.Attribute{
					"name_prefix": schema.StringAttribute{
						MarkdownDescription: "Only names starting with this value. Case-insensitive.",
						Optional:            true,
					},
					"name_suffix": schema.StringAttribute{
						MarkdownDescription: "Only names ending with this value. Case-insensitive.",
						Optional:            true,
					},
					"name_contains": schema.StringAttribute{
						MarkdownDescription: "Only names containing this value. Case-insensitive.",
						Optional:            true,
					},
					"description_contains": schema.StringAttribute{
						MarkdownDescription: "Only accounts whose description contains this value. Case-insensitive.",
						Optional:            true,
					},
					"ldap_filter": schema.StringAttribute{
						MarkdownDescription: "An additional RFC 4515 filter, e.g. `(l=Berlin)`.",
						Optional:            true,
						Validators: []validator.String{
							stringvalidator.LengthAtLeast(3),
						},
					},
				},
			},
			"service_accounts": schema.ListNestedAttribute{
				MarkdownDescription: "The matching service accounts, in the order the server returned them.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "The common name of the service account.",
							Computed:            true,
						},
						"dn": schema.StringAttribute{
							MarkdownDescription: "The distinguished name of the service account.",
							Computed:            true,
						},
						"description": schema.StringAttribute{
							MarkdownDescription: "The description of the service account.",
							Computed:            true,
						},
					},
				},
			},
			"count": schema.Int64Attribute{
				MarkdownDescription: "The number of matching service accounts.",
				Computed:            true,
			},
		},
	}
}

func (d *ServiceAccountsDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *ServiceAccountsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data ServiceAccountsDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var filter ServiceAccountFilterModel
	if !data.Filter.IsNull() && !data.Filter.IsUnknown() {
		resp.Diagnostics.Append(data.Filter.As(ctx, &filter, basetypes.ObjectAsOptions{})...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	searchFilter, err := buildServiceAccountFilter(filter)
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("filter").AtName("ldap_filter"), "Invalid LDAP Filter", err.Error())
		return
	}

	done := logDataSourceOperation(ctx, "service_accounts", "read", map[string]any{
		"base_dn":       data.BaseDN.ValueString(),
		"container_rdn": data.ContainerRDN.ValueString(),
		"filter":        filterString(searchFilter),
	})

	err = listServiceAccounts(ctx, d.data, &data, searchFilter, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Listing Service Accounts", err)
		return
	}

	tflog.Debug(ctx, "Listed service accounts", map[string]any{
		"count": data.Count.ValueInt64(),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// buildServiceAccountFilter turns the filter block into a search filter. The
// type's objectClass clause is added by the collection.
func buildServiceAccountFilter(f ServiceAccountFilterModel) (mapping.Filter, error) {
	var clauses []mapping.Filter

	if v := f.NamePrefix.ValueString(); v != "" {
		clauses = append(clauses, mapping.Substring("cn", v, nil, ""))
	}
	if v := f.NameSuffix.ValueString(); v != "" {
		clauses = append(clauses, mapping.Substring("cn", "", nil, v))
	}
	if v := f.NameContains.ValueString(); v != "" {
		clauses = append(clauses, mapping.Substring("cn", "", []string{v}, ""))
	}
	if v := f.DescriptionContains.ValueString(); v != "" {
		clauses = append(clauses, mapping.Substring("description", "", []string{v}, ""))
	}
	if v := f.LDAPFilter.ValueString(); v != "" {
		parsed, err := mapping.ParseFilter(v)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, parsed)
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	return mapping.And(clauses...), nil
}

func listServiceAccounts(ctx context.Context, data *ProviderData, model *ServiceAccountsDataSourceModel, filter mapping.Filter, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	services, err := data.ServiceAccounts(model.BaseDN.ValueString(), model.ContainerRDN.ValueString())
	if err != nil {
		return err
	}

	summaryType := types.ObjectType{AttrTypes: serviceAccountSummaryAttrTypes}
	var items []attr.Value
	for obj, err := range services.List(ctx, filter) {
		if err != nil {
			return err
		}
		e, err := obj.Entry(ctx)
		if err != nil {
			return err
		}
		_, name, err := mapping.RDN(obj.DN())
		if err != nil {
			return err
		}

		item, d := types.ObjectValue(serviceAccountSummaryAttrTypes, map[string]attr.Value{
			"name":        types.StringValue(name),
			"dn":          types.StringValue(obj.DN()),
			"description": helpers.StringOrNull(e.First("description")),
		})
		diags.Append(d...)
		items = append(items, item)
	}

	list, d := types.ListValue(summaryType, items)
	diags.Append(d...)

	model.ServiceAccounts = list
	model.Count = types.Int64Value(int64(len(items)))
	model.ID = types.StringValue(listingID(services.BaseDN(), filterString(filter)))
	return nil
}

func filterString(f mapping.Filter) string {
	if f == nil {
		return ""
	}
	return f.String()
}

// listingID derives a stable identifier for a listing.
func listingID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}
