package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &EntriesDataSource{}

func NewEntriesDataSource() datasource.DataSource {
	return &EntriesDataSource{}
}

// EntriesDataSource searches for entries of any registered entry type.
type EntriesDataSource struct {
	data *ProviderData
}

// EntriesDataSourceModel describes the data source data model.
type EntriesDataSourceModel struct {
	ID         types.String `tfsdk:"id"`
	Type       types.String `tfsdk:"type"`
	BaseDN     types.String `tfsdk:"base_dn"`
	Scope      types.String `tfsdk:"scope"`
	Filter     types.String `tfsdk:"filter"`
	Attributes types.List   `tfsdk:"attributes"`
	Entries    types.List   `tfsdk:"entries"`
	Count      types.Int64  `tfsdk:"count"`
}

var entryAttrTypes = map[string]attr.Type{
	"dn":             types.StringType,
	"object_classes": types.ListType{ElemType: types.StringType},
	"attributes":     types.MapType{ElemType: helpers.AttributeMapElemType},
}

func (d *EntriesDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entries"
}

func (d *EntriesDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Searches for entries of a registered entry type. Built-in types are `service`, `organizationalunit`, `group` and `domain`; " +
			"more can be declared in the provider's `entry_types_file`.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "A digest of the search parameters.",
				Computed:            true,
			},
			"type": schema.StringAttribute{
				MarkdownDescription: "The registered entry type to search for. Case-insensitive.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The search base. Defaults to the provider's base DN. " +
					"Types with a default container search below that container.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "The search scope: `base`, `one` or `sub`. Defaults to `sub`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.OneOfCaseInsensitive("base", "one", "onelevel", "sub", "subtree"),
				},
			},
			"filter": schema.StringAttribute{
				MarkdownDescription: "An additional RFC 4515 filter ANDed with the type's object class filter.",
				Optional:            true,
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to return for each entry. Defaults to every attribute the server returns.",
				Optional:            true,
				ElementType:         types.StringType,
				Validators: []validator.List{
					listvalidator.ValueStringsAre(validators.IsAttributeName()),
				},
			},
			"entries": schema.ListNestedAttribute{
				MarkdownDescription: "The matching entries.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"dn": schema.StringAttribute{
							MarkdownDescription: "The distinguished name of the entry.",
							Computed:            true,
						},
						"object_classes": schema.ListAttribute{
							MarkdownDescription: "The object classes of the entry, lower-cased.",
							Computed:            true,
							ElementType:         types.StringType,
						},
						"attributes": schema.MapAttribute{
							MarkdownDescription: "The requested attributes. Binary values are base64 encoded.",
							Computed:            true,
							ElementType:         helpers.AttributeMapElemType,
						},
					},
				},
			},
			"count": schema.Int64Attribute{
				MarkdownDescription: "The number of matching entries.",
				Computed:            true,
			},
		},
	}
}

func (d *EntriesDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *EntriesDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data EntriesDataSourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	filter, err := parseOptionalFilter(data.Filter.ValueString())
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("filter"), "Invalid LDAP Filter", err.Error())
		return
	}

	done := logDataSourceOperation(ctx, "entries", "read", map[string]any{
		"type":    data.Type.ValueString(),
		"base_dn": data.BaseDN.ValueString(),
		"scope":   data.Scope.ValueString(),
		"filter":  data.Filter.ValueString(),
	})

	err = searchEntries(ctx, d.data, &data, filter, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Searching Entries", err)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func parseOptionalFilter(text string) (mapping.Filter, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return mapping.ParseFilter(text)
}

func searchEntries(ctx context.Context, data *ProviderData, model *EntriesDataSourceModel, filter mapping.Filter, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	typ, err := data.Registry.Lookup(model.Type.ValueString())
	if err != nil {
		return err
	}
	scope, err := mapping.ParseScope(strings.ToLower(model.Scope.ValueString()))
	if err != nil {
		return err
	}
	base, err := data.ResolveBaseDN(model.BaseDN.ValueString())
	if err != nil {
		return err
	}

	var names []string
	if !model.Attributes.IsNull() && !model.Attributes.IsUnknown() {
		diags.Append(model.Attributes.ElementsAs(ctx, &names, false)...)
		if diags.HasError() {
			return nil
		}
	}

	col, err := mapping.NewCollection(data.Backend, typ, base, data.Options(mapping.WithScope(scope))...)
	if err != nil {
		return err
	}

	entryType := types.ObjectType{AttrTypes: entryAttrTypes}
	var items []attr.Value
	for obj, err := range col.List(ctx, filter) {
		if err != nil {
			return err
		}
		e, err := obj.Entry(ctx)
		if err != nil {
			return err
		}

		selected := names
		if selected == nil {
			selected = e.Names()
		}
		attrs, d := helpers.EntryAttributeMap(ctx, e, selected, ldap.FormatValue)
		diags.Append(d...)

		item, d := types.ObjectValue(entryAttrTypes, map[string]attr.Value{
			"dn":             types.StringValue(obj.DN()),
			"object_classes": helpers.StringList(e.ObjectClasses()),
			"attributes":     attrs,
		})
		diags.Append(d...)
		items = append(items, item)
	}

	list, d := types.ListValue(entryType, items)
	diags.Append(d...)

	model.Entries = list
	model.Count = types.Int64Value(int64(len(items)))
	model.ID = types.StringValue(listingID(typ.Name, col.BaseDN(), scope.String(), filterString(filter)))
	return nil
}
