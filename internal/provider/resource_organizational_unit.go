package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/planmodifiers"
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &OrganizationalUnitResource{}
var _ resource.ResourceWithImportState = &OrganizationalUnitResource{}

func NewOrganizationalUnitResource() resource.Resource {
	return &OrganizationalUnitResource{}
}

// OrganizationalUnitResource defines the resource implementation.
type OrganizationalUnitResource struct {
	data *ProviderData
}

// OrganizationalUnitResourceModel describes the resource data model.
type OrganizationalUnitResourceModel struct {
	ID          types.String              `tfsdk:"id"`
	Name        types.String              `tfsdk:"name"`
	Path        types.String              `tfsdk:"path"`
	Description types.String              `tfsdk:"description"`
	Protected   types.Bool                `tfsdk:"protected"`
	DN          customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *OrganizationalUnitResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_organizational_unit"
}

func (r *OrganizationalUnitResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	dnFromName := planmodifiers.DNFromName("ou", path.Root("path"))

	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages an organizational unit (OU), the container used to group entries such as service accounts and groups.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the OU.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The name (`ou`) of the organizational unit. Changing it renames the entry in place.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 64),
					stringvalidator.RegexMatches(
						regexp.MustCompile(`^[^\r\n]+$`),
						"OU name cannot contain line breaks",
					),
				},
			},
			"path": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the parent entry. Defaults to the provider's base DN.",
				Optional:            true,
				Computed:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
					stringplanmodifier.RequiresReplace(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "A description of the organizational unit.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 1024),
				},
			},
			"protected": schema.BoolAttribute{
				MarkdownDescription: "Refuse to delete the OU while `true`. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the OU.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
		},
	}
}

func (r *OrganizationalUnitResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (r *OrganizationalUnitResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data OrganizationalUnitResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "organizational_unit", "create", map[string]any{
		"name": data.Name.ValueString(),
		"path": data.Path.ValueString(),
	})

	err := createOrganizationalUnit(ctx, r.data, &data)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Creating Organizational Unit", err)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *OrganizationalUnitResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data OrganizationalUnitResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "organizational_unit", "read", map[string]any{
		"dn": data.ID.ValueString(),
	})

	found, err := readOrganizationalUnit(ctx, r.data, &data)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Reading Organizational Unit",
			fmt.Errorf("could not read organizational unit %s: %w", data.ID.ValueString(), err))
		return
	}
	if !found {
		tflog.Info(ctx, "Organizational unit no longer exists, removing from state", map[string]any{
			"dn": data.ID.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *OrganizationalUnitResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state OrganizationalUnitResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "organizational_unit", "update", map[string]any{
		"dn": state.ID.ValueString(),
	})

	err := updateOrganizationalUnit(ctx, r.data, &plan, &state)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Updating Organizational Unit", err)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *OrganizationalUnitResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data OrganizationalUnitResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "organizational_unit", "delete", map[string]any{
		"dn":        data.ID.ValueString(),
		"protected": data.Protected.ValueBool(),
	})

	err := deleteOrganizationalUnit(ctx, r.data, &data)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Deleting Organizational Unit", err)
	}
}

func (r *OrganizationalUnitResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	importID := strings.TrimSpace(req.ID)

	tflog.Debug(ctx, "Importing organizational unit", map[string]any{
		"import_id": importID,
	})

	if _, err := mapping.ParseDN(importID); err != nil {
		resp.Diagnostics.AddError(
			"Error Importing Organizational Unit",
			fmt.Sprintf("Import ID %q must be the distinguished name of the OU: %s", importID, err),
		)
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), importID)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("protected"), false)...)
}

// organizationalUnitObject returns a handle on dn. A protected OU refuses
// deletion before any request is sent.
func organizationalUnitObject(data *ProviderData, dn string, protected bool) (*mapping.Object, error) {
	if data == nil {
		return nil, errProviderNotConfigured
	}

	typ, err := data.Registry.Lookup(idm.OrganizationalUnitType)
	if err != nil {
		return nil, err
	}
	typ.Protected = protected
	return mapping.NewObject(data.Backend, typ, dn, data.Options()...)
}

func createOrganizationalUnit(ctx context.Context, data *ProviderData, model *OrganizationalUnitResourceModel) error {
	if data == nil {
		return errProviderNotConfigured
	}

	parent, err := data.ResolveBaseDN(model.Path.ValueString())
	if err != nil {
		return err
	}

	dn := mapping.JoinDN("ou", model.Name.ValueString(), parent)
	obj, err := organizationalUnitObject(data, dn, model.Protected.ValueBool())
	if err != nil {
		return err
	}

	attrs := map[string][]mapping.Value{
		"ou": mapping.Texts(model.Name.ValueString()),
	}
	if !model.Description.IsNull() {
		attrs["description"] = mapping.Texts(model.Description.ValueString())
	}
	if err := obj.Create(ctx, attrs); err != nil {
		return err
	}

	model.Path = types.StringValue(parent)
	return organizationalUnitIntoModel(ctx, obj, model)
}

func readOrganizationalUnit(ctx context.Context, data *ProviderData, model *OrganizationalUnitResourceModel) (bool, error) {
	obj, err := organizationalUnitObject(data, model.ID.ValueString(), false)
	if err != nil {
		return false, err
	}
	if err := obj.Load(ctx); err != nil {
		if mapping.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	if model.Path.IsNull() || model.Path.IsUnknown() {
		parent, err := mapping.ParentDN(obj.DN())
		if err != nil {
			return false, err
		}
		model.Path = types.StringValue(parent)
	}
	if model.Protected.IsNull() {
		model.Protected = types.BoolValue(false)
	}

	return true, organizationalUnitIntoModel(ctx, obj, model)
}

func updateOrganizationalUnit(ctx context.Context, data *ProviderData, plan, state *OrganizationalUnitResourceModel) error {
	obj, err := organizationalUnitObject(data, state.ID.ValueString(), plan.Protected.ValueBool())
	if err != nil {
		return err
	}

	if err := setOptionalString(ctx, obj, "description", plan.Description); err != nil {
		return err
	}
	if err := obj.Save(ctx); err != nil {
		return err
	}

	if plan.Name.ValueString() != state.Name.ValueString() {
		if err := obj.Rename(ctx, plan.Name.ValueString()); err != nil {
			return err
		}
	}

	return organizationalUnitIntoModel(ctx, obj, plan)
}

func deleteOrganizationalUnit(ctx context.Context, data *ProviderData, model *OrganizationalUnitResourceModel) error {
	obj, err := organizationalUnitObject(data, model.ID.ValueString(), model.Protected.ValueBool())
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !mapping.IsNotFoundError(err) {
		return err
	}
	return nil
}

func organizationalUnitIntoModel(ctx context.Context, obj *mapping.Object, model *OrganizationalUnitResourceModel) error {
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
	return nil
}

