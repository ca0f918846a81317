package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/setvalidator"
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
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &GroupMembershipResource{}
var _ resource.ResourceWithImportState = &GroupMembershipResource{}

func NewGroupMembershipResource() resource.Resource {
	return &GroupMembershipResource{}
}

// GroupMembershipResource defines the resource implementation.
type GroupMembershipResource struct {
	data *ProviderData
}

// GroupMembershipResourceModel describes the resource data model.
type GroupMembershipResourceModel struct {
	ID      types.String                 `tfsdk:"id"`
	GroupDN types.String                 `tfsdk:"group_dn"`
	Members customtypes.DNStringSetValue `tfsdk:"members"`
}

func (r *GroupMembershipResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_group_membership"
}

func (r *GroupMembershipResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Adds members to an existing group without taking ownership of its other members. " +
			"Only the members listed here are added, tracked for drift and removed on destroy. " +
			"Do not combine with the `members` argument of `dirsrv_group` on the same group.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the group. This is the same value as `group_dn`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"group_dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the group.",
				Required:            true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"members": schema.SetAttribute{
				MarkdownDescription: "Distinguished names to add to the group.",
				Required:            true,
				ElementType:         types.StringType,
				CustomType:          customtypes.NewDNStringSetType(),
				Validators: []validator.Set{
					setvalidator.SizeAtLeast(1),
					setvalidator.ValueStringsAre(validators.IsValidDN()),
				},
			},
		},
	}
}

func (r *GroupMembershipResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (r *GroupMembershipResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data GroupMembershipResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	members, diags := data.Members.ValueStrings(ctx)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group_membership", "create", map[string]any{
		"group_dn":     data.GroupDN.ValueString(),
		"member_count": len(members),
	})

	err := changeGroupMembers(ctx, r.data, data.GroupDN.ValueString(), members, nil)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Adding Group Members", err)
		return
	}

	data.ID = data.GroupDN
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupMembershipResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data GroupMembershipResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group_membership", "read", map[string]any{
		"group_dn": data.GroupDN.ValueString(),
	})

	found, err := readGroupMembership(ctx, r.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Reading Group Members", err)
		return
	}
	if !found {
		tflog.Info(ctx, "Group no longer exists, removing membership from state", map[string]any{
			"group_dn": data.GroupDN.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *GroupMembershipResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state GroupMembershipResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	planned, diags := plan.Members.ValueStrings(ctx)
	resp.Diagnostics.Append(diags...)
	prior, diags := state.Members.ValueStrings(ctx)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	add, remove := diffMembers(prior, planned)

	done := logResourceOperation(ctx, "group_membership", "update", map[string]any{
		"group_dn": plan.GroupDN.ValueString(),
		"adding":   len(add),
		"removing": len(remove),
	})

	err := changeGroupMembers(ctx, r.data, plan.GroupDN.ValueString(), add, remove)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Updating Group Members", err)
		return
	}

	plan.ID = plan.GroupDN
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *GroupMembershipResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data GroupMembershipResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	members, diags := data.Members.ValueStrings(ctx)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "group_membership", "delete", map[string]any{
		"group_dn":     data.GroupDN.ValueString(),
		"member_count": len(members),
	})

	err := changeGroupMembers(ctx, r.data, data.GroupDN.ValueString(), nil, members)
	if mapping.IsNotFoundError(err) {
		err = nil
	}
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Removing Group Members", err)
	}
}

// ImportState takes "<group DN>|<member DN>|<member DN>...". Only the listed
// members are adopted.
func (r *GroupMembershipResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	parts := strings.Split(req.ID, "|")
	groupDN := strings.TrimSpace(parts[0])
	if _, err := mapping.ParseDN(groupDN); err != nil || len(parts) < 2 {
		resp.Diagnostics.AddError(
			"Error Importing Group Membership",
			fmt.Sprintf("Import ID must be \"<group DN>|<member DN>[|<member DN>...]\", got %q", req.ID),
		)
		return
	}

	members := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			members = append(members, p)
		}
	}

	tflog.Debug(ctx, "Importing group membership", map[string]any{
		"group_dn":     groupDN,
		"member_count": len(members),
	})

	set, diags := customtypes.DNStringSet(ctx, members)
	resp.Diagnostics.Append(diags...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), groupDN)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("group_dn"), groupDN)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("members"), set)...)
}

// changeGroupMembers adds and removes member values in a single modify.
// Comparison is by DN equality so differently cased spellings are not
// added twice.
func changeGroupMembers(ctx context.Context, data *ProviderData, groupDN string, add, remove []string) error {
	if data == nil {
		return errProviderNotConfigured
	}

	group, err := data.Object(idm.GroupType, groupDN)
	if err != nil {
		return err
	}
	current, err := group.Get(ctx, "member")
	if err != nil {
		return err
	}

	for _, dn := range remove {
		if i := memberIndex(current, dn); i >= 0 {
			if err := group.RemoveValue(ctx, "member", current[i]); err != nil {
				return err
			}
		}
	}
	for _, dn := range add {
		if memberIndex(current, dn) < 0 {
			if err := group.Add(ctx, "member", mapping.Text(dn)); err != nil {
				return err
			}
		}
	}

	return group.Save(ctx)
}

// readGroupMembership narrows the tracked members to those still present.
func readGroupMembership(ctx context.Context, data *ProviderData, model *GroupMembershipResourceModel, diags *diag.Diagnostics) (bool, error) {
	if data == nil {
		return false, errProviderNotConfigured
	}

	group, err := data.Object(idm.GroupType, model.GroupDN.ValueString())
	if err != nil {
		return false, err
	}
	current, err := group.Get(ctx, "member")
	if err != nil {
		if mapping.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	tracked, d := model.Members.ValueStrings(ctx)
	diags.Append(d...)
	if diags.HasError() {
		return true, nil
	}

	present := slices.DeleteFunc(slices.Clone(tracked), func(dn string) bool {
		return memberIndex(current, dn) < 0
	})

	members, d := customtypes.DNStringSet(ctx, present)
	diags.Append(d...)
	model.Members = members
	model.ID = model.GroupDN
	return true, nil
}

func memberIndex(values []mapping.Value, dn string) int {
	return slices.IndexFunc(values, func(v mapping.Value) bool {
		return mapping.EqualDN(v.String(), dn)
	})
}

// diffMembers returns the DNs in planned but not prior, and those in prior
// but not planned.
func diffMembers(prior, planned []string) (add, remove []string) {
	contains := func(list []string, dn string) bool {
		return slices.ContainsFunc(list, func(s string) bool { return mapping.EqualDN(s, dn) })
	}
	for _, dn := range planned {
		if !contains(prior, dn) {
			add = append(add, dn)
		}
	}
	for _, dn := range prior {
		if !contains(planned, dn) {
			remove = append(remove, dn)
		}
	}
	return add, remove
}
