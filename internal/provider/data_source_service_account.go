package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/datasourcevalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &ServiceAccountDataSource{}
var _ datasource.DataSourceWithConfigValidators = &ServiceAccountDataSource{}

func NewServiceAccountDataSource() datasource.DataSource {
	return &ServiceAccountDataSource{}
}

// ServiceAccountDataSource defines the data source implementation.
type ServiceAccountDataSource struct {
	data *ProviderData
}

// ServiceAccountDataSourceModel describes the data source data model.
type ServiceAccountDataSourceModel struct {
	ID            types.String              `tfsdk:"id"`
	Name          types.String              `tfsdk:"name"`
	DN            customtypes.DNStringValue `tfsdk:"dn"`
	BaseDN        types.String              `tfsdk:"base_dn"`
	ContainerRDN  types.String              `tfsdk:"container_rdn"`
	Description   types.String              `tfsdk:"description"`
	Locked        types.Bool                `tfsdk:"locked"`
	ObjectClasses types.List                `tfsdk:"object_classes"`
	Attributes    types.Map                 `tfsdk:"attributes"`
}

func (d *ServiceAccountDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_service_account"
}

func (d *ServiceAccountDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves a single service account by name or distinguished name.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the service account.",
				Computed:            true,
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The common name of the service account, looked up in the services container. " +
					"Exactly one of `name` or `dn` must be set.",
				Optional: true,
				Computed: true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the service account.",
				Optional:            true,
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The suffix holding the services container when looking up by `name`. Defaults to the provider's base DN.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"container_rdn": schema.StringAttribute{
				MarkdownDescription: "RDN of the services container when looking up by `name`. Defaults to the provider's `services_rdn`.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "The description of the service account.",
				Computed:            true,
			},
			"locked": schema.BoolAttribute{
				MarkdownDescription: "Whether binds as the account are refused (`nsAccountLock`).",
				Computed:            true,
			},
			"object_classes": schema.ListAttribute{
				MarkdownDescription: "The object classes of the entry.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Every attribute returned for the entry. Binary values are base64 encoded.",
				Computed:            true,
				ElementType:         helpers.AttributeMapElemType,
			},
		},
	}
}

// ConfigValidators implements datasource.DataSourceWithConfigValidators.
func (d *ServiceAccountDataSource) ConfigValidators(ctx context.Context) []datasource.ConfigValidator {
	return []datasource.ConfigValidator{
		datasourcevalidator.ExactlyOneOf(
			path.MatchRoot("name"),
			path.MatchRoot("dn"),
		),
		datasourcevalidator.Conflicting(
			path.MatchRoot("dn"),
			path.MatchRoot("base_dn"),
		),
		datasourcevalidator.Conflicting(
			path.MatchRoot("dn"),
			path.MatchRoot("container_rdn"),
		),
	}
}

func (d *ServiceAccountDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *ServiceAccountDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data ServiceAccountDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logDataSourceOperation(ctx, "service_account", "read", map[string]any{
		"name": data.Name.ValueString(),
		"dn":   data.DN.ValueString(),
	})

	err := lookupServiceAccount(ctx, d.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Reading Service Account", err)
		return
	}

	tflog.Debug(ctx, "Read service account", map[string]any{
		"dn": data.ID.ValueString(),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func lookupServiceAccount(ctx context.Context, data *ProviderData, model *ServiceAccountDataSourceModel, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	var obj *mapping.Object
	if dn := model.DN.ValueString(); dn != "" {
		o, err := idm.ServiceAccountObject(data.Backend, dn, data.Options()...)
		if err != nil {
			return err
		}
		if err := o.Load(ctx); err != nil {
			return err
		}
		obj = o
	} else {
		services, err := data.ServiceAccounts(model.BaseDN.ValueString(), model.ContainerRDN.ValueString())
		if err != nil {
			return err
		}
		if obj, err = services.Get(ctx, model.Name.ValueString()); err != nil {
			return err
		}
	}

	e, err := obj.Entry(ctx)
	if err != nil {
		return err
	}
	_, name, err := mapping.RDN(obj.DN())
	if err != nil {
		return err
	}

	model.ID = types.StringValue(obj.DN())
	model.DN = customtypes.DNString(obj.DN())
	model.Name = types.StringValue(name)
	model.Description = helpers.StringOrNull(e.First("description"))
	model.Locked = types.BoolValue(strings.EqualFold(e.First(idm.LockAttribute), "true"))
	model.ObjectClasses = helpers.StringList(e.ObjectClasses())

	attrs, d := entryAttributes(ctx, e)
	diags.Append(d...)
	model.Attributes = attrs
	return nil
}

// entryAttributes renders every attribute of e for display.
func entryAttributes(ctx context.Context, e *mapping.Entry) (types.Map, diag.Diagnostics) {
	return helpers.EntryAttributeMap(ctx, e, e.Names(), ldap.FormatValue)
}
