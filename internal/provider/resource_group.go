package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/setvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
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
var _ resource.Resource = &GroupResource{}
var _ resource.ResourceWithImportState = &GroupResource{}

func NewGroupResource() resource.Resource {
	return &GroupResource{}
}

// GroupResource defines the resource implementation.
type GroupResource struct {
	data *ProviderData
}

// GroupResourceModel describes the resource data model.
type GroupResourceModel struct {
	ID          types.String                 `tfsdk:"id"`
	Name        types.String                 `tfsdk:"name"`
	Path        types.String                 `tfsdk:"path"`
	Description types.String                 `tfsdk:"description"`
	Members     customtypes.DNStringSetValue `tfsdk:"members"`
	DN          customtypes.DNStringValue    `tfsdk:"dn"`
}

func (r *GroupResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_group"
}

func (r *GroupResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	dnFromName := planmodifiers.DNFromName("cn", path.Root("path"))

	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a `groupOfNames` group. Service accounts are typically granted access by group membership.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the group.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The common name (`cn`) of the group. Changing it renames the entry in place.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 64),
					stringvalidator.RegexMatches(
						regexp.MustCompile(`^[^\r\n]+$`),
						"Group name cannot contain line breaks",
					),
				},
			},
			"path": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the container holding the group. " +
					"Defaults to `ou=Groups` below the provider's base DN, which is created when missing.",
				Optional: true,
				Computed: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
					stringplanmodifier.RequiresReplace(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "A description of the group.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthBetween(1, 1024),
				},
			},
			"members": schema.SetAttribute{
				MarkdownDescription: "Distinguished names of the group's members. When set, membership is authoritative: " +
					"members not listed are removed. Leave unset to manage membership with `dirsrv_group_membership`.",
				Optional:    true,
				ElementType: types.StringType,
				CustomType:  customtypes.NewDNStringSetType(),
				Validators: []validator.Set{
					setvalidator.ValueStringsAre(validators.IsValidDN()),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the group.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
		},
	}
}

func (r *GroupResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (r *GroupResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data GroupResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group", "create", map[string]any{
		"name": data.Name.ValueString(),
	})

	err := createGroup(ctx, r.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Creating Group", err)
		return
	}
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data GroupResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group", "read", map[string]any{
		"dn": data.ID.ValueString(),
	})

	found, err := readGroup(ctx, r.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Reading Group",
			fmt.Errorf("could not read group %s: %w", data.ID.ValueString(), err))
		return
	}
	if !found {
		tflog.Info(ctx, "Group no longer exists, removing from state", map[string]any{
			"dn": data.ID.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state GroupResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group", "update", map[string]any{
		"dn": state.ID.ValueString(),
	})

	err := updateGroup(ctx, r.data, &plan, &state, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Updating Group", err)
		return
	}
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *GroupResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data GroupResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group", "delete", map[string]any{
		"dn": data.ID.ValueString(),
	})

	err := deleteEntry(ctx, r.data, idm.GroupType, data.ID.ValueString())
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Deleting Group", err)
	}
}

func (r *GroupResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	importID := strings.TrimSpace(req.ID)

	tflog.Debug(ctx, "Importing group", map[string]any{
		"import_id": importID,
	})

	if _, err := mapping.ParseDN(importID); err != nil {
		resp.Diagnostics.AddError(
			"Error Importing Group",
			fmt.Sprintf("Import ID %q must be the distinguished name of the group: %s", importID, err),
		)
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), importID)...)
	// Imported groups track membership authoritatively.
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("members"), customtypes.DNStringSetUnknown())...)
}

// groupCollection opens the collection a new group is created in. Without
// an explicit path the default ou=Groups container is used.
func groupCollection(data *ProviderData, parent string) (*mapping.Collection, bool, error) {
	typ, err := data.Registry.Lookup(idm.GroupType)
	if err != nil {
		return nil, false, err
	}

	if parent != "" {
		typ.DefaultRDN = ""
		col, err := mapping.NewCollection(data.Backend, typ, parent, data.Options()...)
		return col, false, err
	}

	base, err := data.ResolveBaseDN("")
	if err != nil {
		return nil, false, err
	}
	col, err := mapping.NewCollection(data.Backend, typ, base, data.Options()...)
	return col, true, err
}

func createGroup(ctx context.Context, data *ProviderData, model *GroupResourceModel, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	groups, isDefault, err := groupCollection(data, model.Path.ValueString())
	if err != nil {
		return err
	}
	if isDefault {
		if _, err := groups.Ensure(ctx); err != nil {
			return err
		}
	}

	attrs := make(map[string][]mapping.Value)
	if !model.Description.IsNull() {
		attrs["description"] = mapping.Texts(model.Description.ValueString())
	}
	members, d := model.Members.ValueStrings(ctx)
	diags.Append(d...)
	if diags.HasError() {
		return nil
	}
	if len(members) > 0 {
		attrs["member"] = mapping.Texts(members...)
	}

	obj, err := groups.Create(ctx, model.Name.ValueString(), attrs)
	if err != nil {
		return err
	}

	model.Path = types.StringValue(groups.BaseDN())
	return groupIntoModel(ctx, obj, model, diags)
}

func readGroup(ctx context.Context, data *ProviderData, model *GroupResourceModel, diags *diag.Diagnostics) (bool, error) {
	if data == nil {
		return false, errProviderNotConfigured
	}

	obj, err := data.Object(idm.GroupType, model.ID.ValueString())
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

	return true, groupIntoModel(ctx, obj, model, diags)
}

func updateGroup(ctx context.Context, data *ProviderData, plan, state *GroupResourceModel, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	obj, err := data.Object(idm.GroupType, state.ID.ValueString())
	if err != nil {
		return err
	}

	if err := setOptionalString(ctx, obj, "description", plan.Description); err != nil {
		return err
	}
	if !plan.Members.IsNull() || !state.Members.IsNull() {
		members, d := plan.Members.ValueStrings(ctx)
		diags.Append(d...)
		if diags.HasError() {
			return nil
		}
		if err := obj.Set(ctx, "member", mapping.Texts(members...)...); err != nil {
			return err
		}
	}
	if err := obj.Save(ctx); err != nil {
		return err
	}

	if plan.Name.ValueString() != state.Name.ValueString() {
		if err := obj.Rename(ctx, plan.Name.ValueString()); err != nil {
			return err
		}
	}

	return groupIntoModel(ctx, obj, plan, diags)
}

// groupIntoModel copies the loaded group into model. A null members value
// stays null so membership can be managed elsewhere.
func groupIntoModel(ctx context.Context, obj *mapping.Object, model *GroupResourceModel, diags *diag.Diagnostics) error {
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

	if !model.Members.IsNull() {
		members, d := customtypes.DNStringSet(ctx, e.Strings("member"))
		diags.Append(d...)
		model.Members = members
	}
	return nil
}
