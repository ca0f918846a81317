package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/mapvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/boolplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/helpers"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/planmodifiers"
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &ServiceAccountResource{}
var _ resource.ResourceWithImportState = &ServiceAccountResource{}

// serviceAccountReserved are attributes with a dedicated argument.
var serviceAccountReserved = []string{"objectClass", "cn", "description", idm.PasswordAttribute, idm.LockAttribute}

func NewServiceAccountResource() resource.Resource {
	return &ServiceAccountResource{}
}

// ServiceAccountResource defines the resource implementation.
type ServiceAccountResource struct {
	data *ProviderData
}

// ServiceAccountResourceModel describes the resource data model.
type ServiceAccountResourceModel struct {
	ID              types.String              `tfsdk:"id"`
	Name            types.String              `tfsdk:"name"`
	BaseDN          types.String              `tfsdk:"base_dn"`
	ContainerRDN    types.String              `tfsdk:"container_rdn"`
	CreateContainer types.Bool                `tfsdk:"create_container"`
	Description     types.String              `tfsdk:"description"`
	Password        types.String              `tfsdk:"password"`
	Locked          types.Bool                `tfsdk:"locked"`
	Attributes      types.Map                 `tfsdk:"attributes"`
	DN              customtypes.DNStringValue `tfsdk:"dn"`
}

func (r *ServiceAccountResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_service_account"
}

func (r *ServiceAccountResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	dnFromName := planmodifiers.DNFromName("cn", path.Root("container_rdn"), path.Root("base_dn"))

	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a service account: a `netscapeServer` entry below `ou=Services` that applications bind as. " +
			"Renaming changes the entry's RDN in place.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the service account.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
			"name": schema.StringAttribute{
				MarkdownDescription: "The common name (`cn`) of the service account. This forms the RDN of the entry.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The suffix below which the services container lives. Defaults to the provider's base DN.",
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
			"container_rdn": schema.StringAttribute{
				MarkdownDescription: "RDN of the container holding service accounts, relative to `base_dn`. " +
					"Defaults to the provider's `services_rdn`, itself defaulting to `ou=Services`.",
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
			"create_container": schema.BoolAttribute{
				MarkdownDescription: "Create the container as an `organizationalUnit` when it does not exist. Defaults to `true`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(true),
				PlanModifiers: []planmodifier.Bool{
					boolplanmodifier.UseStateForUnknown(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "A description of the service account.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "The bind password (`userPassword`). The server stores it hashed, so it is written but never read back.",
				Optional:            true,
				Sensitive:           true,
			},
			"locked": schema.BoolAttribute{
				MarkdownDescription: "Whether binds as the account are refused (`nsAccountLock`). When omitted the server's value is reported and left unchanged.",
				Optional:            true,
				Computed:            true,
				PlanModifiers: []planmodifier.Bool{
					boolplanmodifier.UseStateForUnknown(),
				},
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Additional attributes to manage, as lists of string values. Only the attributes named here are tracked for drift.",
				Optional:            true,
				ElementType:         helpers.AttributeMapElemType,
				Validators: []validator.Map{
					mapvalidator.KeysAre(validators.IsAttributeName(serviceAccountReserved...)),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the service account.",
				Computed:            true,
				CustomType:          customtypes.DNStringType{},
				PlanModifiers: []planmodifier.String{
					dnFromName,
				},
			},
		},
	}
}

func (r *ServiceAccountResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	r.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (r *ServiceAccountResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ServiceAccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "service_account", "create", map[string]any{
		"name": data.Name.ValueString(),
	})

	err := createServiceAccount(ctx, r.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Creating Service Account", err)
		return
	}
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Created service account", map[string]any{
		"dn": data.ID.ValueString(),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ServiceAccountResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ServiceAccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "service_account", "read", map[string]any{
		"dn": data.ID.ValueString(),
	})

	found, err := readServiceAccount(ctx, r.data, &data, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Reading Service Account",
			fmt.Errorf("could not read service account %s: %w", data.ID.ValueString(), err))
		return
	}
	if !found {
		tflog.Info(ctx, "Service account no longer exists, removing from state", map[string]any{
			"dn": data.ID.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ServiceAccountResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state ServiceAccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "service_account", "update", map[string]any{
		"dn": state.ID.ValueString(),
	})

	err := updateServiceAccount(ctx, r.data, &plan, &state, &resp.Diagnostics)
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Updating Service Account", err)
		return
	}
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *ServiceAccountResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ServiceAccountResourceModel

	ctx = initializeLogging(ctx)

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	done := logResourceOperation(ctx, "service_account", "delete", map[string]any{
		"dn": data.ID.ValueString(),
	})

	err := deleteEntry(ctx, r.data, idm.ServiceAccountType, data.ID.ValueString())
	done(err)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Deleting Service Account", err)
	}
}

// ImportState accepts a distinguished name or the name of a service account
// in the provider's default services container.
func (r *ServiceAccountResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	ctx = initializeLogging(ctx)

	importID := strings.TrimSpace(req.ID)

	tflog.Debug(ctx, "Importing service account", map[string]any{
		"import_id": importID,
	})

	dn, err := resolveServiceAccountDN(ctx, r.data, importID)
	if err != nil {
		addErrorDiagnostic(&resp.Diagnostics, "Error Importing Service Account",
			fmt.Errorf("could not resolve %q: %w", importID, err))
		return
	}

	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), dn)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("create_container"), true)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("attributes"), types.MapNull(helpers.AttributeMapElemType))...)
}

// resolveServiceAccountDN maps an import ID to a DN. Anything that parses as a
// DN is taken literally; other values select by cn in the default container.
func resolveServiceAccountDN(ctx context.Context, data *ProviderData, importID string) (string, error) {
	if data == nil {
		return "", errProviderNotConfigured
	}
	if strings.Contains(importID, "=") {
		if _, err := mapping.ParseDN(importID); err == nil {
			return importID, nil
		}
	}

	services, err := data.ServiceAccounts("", "")
	if err != nil {
		return "", err
	}
	obj, err := services.Get(ctx, importID)
	if err != nil {
		return "", err
	}
	return obj.DN(), nil
}

// createServiceAccount creates the entry described by model and fills in its
// computed attributes.
func createServiceAccount(ctx context.Context, data *ProviderData, model *ServiceAccountResourceModel, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	baseDN, err := data.ResolveBaseDN(model.BaseDN.ValueString())
	if err != nil {
		return err
	}
	containerRDN := model.ContainerRDN.ValueString()
	if containerRDN == "" {
		containerRDN = data.ServicesRDN
	}
	if containerRDN == "" {
		containerRDN = idm.ServicesRDN
	}

	services, err := data.ServiceAccounts(baseDN, containerRDN)
	if err != nil {
		return err
	}

	if model.CreateContainer.IsNull() || model.CreateContainer.IsUnknown() || model.CreateContainer.ValueBool() {
		created, err := services.Ensure(ctx)
		if err != nil {
			return err
		}
		if created {
			tflog.Info(ctx, "Created services container", map[string]any{
				"dn": services.BaseDN(),
			})
		}
	}

	attrs, d := helpers.AttributeMapToValues(ctx, model.Attributes)
	diags.Append(d...)
	if diags.HasError() {
		return nil
	}
	if attrs == nil {
		attrs = make(map[string][]mapping.Value)
	}
	if !model.Description.IsNull() {
		attrs["description"] = mapping.Texts(model.Description.ValueString())
	}
	if !model.Password.IsNull() {
		attrs[idm.PasswordAttribute] = mapping.Texts(model.Password.ValueString())
	}
	if !model.Locked.IsNull() && !model.Locked.IsUnknown() && model.Locked.ValueBool() {
		attrs[idm.LockAttribute] = mapping.Texts("true")
	}

	obj, err := services.Create(ctx, model.Name.ValueString(), attrs)
	if err != nil {
		return err
	}

	model.ID = types.StringValue(obj.DN())
	model.BaseDN = types.StringValue(baseDN)
	model.ContainerRDN = types.StringValue(containerRDN)
	if model.CreateContainer.IsNull() || model.CreateContainer.IsUnknown() {
		model.CreateContainer = types.BoolValue(true)
	}

	return serviceAccountIntoModel(ctx, obj, model, diags)
}

// readServiceAccount refreshes model from the directory. It reports false
// when the entry no longer exists.
func readServiceAccount(ctx context.Context, data *ProviderData, model *ServiceAccountResourceModel, diags *diag.Diagnostics) (bool, error) {
	if data == nil {
		return false, errProviderNotConfigured
	}

	obj, err := idm.ServiceAccountObject(data.Backend, model.ID.ValueString(), data.Options()...)
	if err != nil {
		return false, err
	}
	if err := obj.Load(ctx); err != nil {
		if mapping.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	// Imported state carries only the DN.
	if model.BaseDN.IsNull() || model.ContainerRDN.IsNull() {
		container, err := mapping.ParentDN(obj.DN())
		if err != nil {
			return false, err
		}
		rdnAttr, rdnValue, err := mapping.RDN(container)
		if err != nil {
			return false, err
		}
		base, err := mapping.ParentDN(container)
		if err != nil {
			return false, err
		}
		model.ContainerRDN = types.StringValue(mapping.JoinDN(rdnAttr, rdnValue, ""))
		model.BaseDN = types.StringValue(base)
	}

	return true, serviceAccountIntoModel(ctx, obj, model, diags)
}

// updateServiceAccount applies the difference between state and plan: one
// conditional modify for attribute and lock edits, then a rename if the name
// changed.
func updateServiceAccount(ctx context.Context, data *ProviderData, plan, state *ServiceAccountResourceModel, diags *diag.Diagnostics) error {
	if data == nil {
		return errProviderNotConfigured
	}

	obj, err := idm.ServiceAccountObject(data.Backend, state.ID.ValueString(), data.Options()...)
	if err != nil {
		return err
	}
	if err := obj.Load(ctx); err != nil {
		return err
	}

	if err := setOptionalString(ctx, obj, "description", plan.Description); err != nil {
		return err
	}
	if !plan.Password.Equal(state.Password) {
		if err := setOptionalString(ctx, obj, idm.PasswordAttribute, plan.Password); err != nil {
			return err
		}
	}
	if !plan.Locked.IsNull() && !plan.Locked.IsUnknown() {
		if err := idm.SetLocked(ctx, obj, plan.Locked.ValueBool()); err != nil {
			return err
		}
	}
	if err := applyAttributeMap(ctx, obj, plan.Attributes, state.Attributes, diags); err != nil || diags.HasError() {
		return err
	}

	if err := obj.Save(ctx); err != nil {
		return err
	}

	if plan.Name.ValueString() != state.Name.ValueString() {
		tflog.Debug(ctx, "Renaming service account", map[string]any{
			"dn":       obj.DN(),
			"new_name": plan.Name.ValueString(),
		})
		if err := obj.Rename(ctx, plan.Name.ValueString()); err != nil {
			return err
		}
	}

	plan.ID = types.StringValue(obj.DN())
	return serviceAccountIntoModel(ctx, obj, plan, diags)
}

// serviceAccountIntoModel copies the loaded entry into model. The password
// is left as configured.
func serviceAccountIntoModel(ctx context.Context, obj *mapping.Object, model *ServiceAccountResourceModel, diags *diag.Diagnostics) error {
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

	locked, err := idm.IsLocked(ctx, obj)
	if err != nil {
		return err
	}
	model.Locked = types.BoolValue(locked)

	if !model.Attributes.IsNull() && !model.Attributes.IsUnknown() {
		attrs, d := helpers.EntryAttributeMap(ctx, e, helpers.AttributeMapKeys(model.Attributes), ldap.FormatValue)
		diags.Append(d...)
		model.Attributes = attrs
	}
	return nil
}

// deleteEntry removes dn, treating an already missing entry as success.
func deleteEntry(ctx context.Context, data *ProviderData, typeName, dn string) error {
	if data == nil {
		return errProviderNotConfigured
	}

	obj, err := data.Object(typeName, dn)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !mapping.IsNotFoundError(err) {
		return err
	}
	return nil
}

// setOptionalString replaces attr with value, or removes it when value is null.
func setOptionalString(ctx context.Context, obj *mapping.Object, attr string, value types.String) error {
	if value.IsNull() || value.IsUnknown() {
		return obj.RemoveAll(ctx, attr)
	}
	return obj.Set(ctx, attr, mapping.Text(value.ValueString()))
}

// applyAttributeMap sets every attribute in planned and removes those that
// were managed in prior but are no longer.
func applyAttributeMap(ctx context.Context, obj *mapping.Object, planned, prior types.Map, diags *diag.Diagnostics) error {
	attrs, d := helpers.AttributeMapToValues(ctx, planned)
	diags.Append(d...)
	if diags.HasError() {
		return nil
	}

	for _, name := range helpers.AttributeMapKeys(prior) {
		if _, kept := attrs[name]; !kept {
			if err := obj.RemoveAll(ctx, name); err != nil {
				return err
			}
		}
	}
	for name, values := range attrs {
		if err := obj.Set(ctx, name, values...); err != nil {
			return err
		}
	}
	return nil
}
