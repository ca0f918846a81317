package planmodifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// dnFromName implements the plan modifier.
type dnFromName struct {
	rdnAttribute string
	parents      []path.Path
}

// DNFromName returns a plan modifier that computes a distinguished name from
// the planned name attribute and the parent components found at parents,
// joined in order. Null or empty parents are skipped. The plan value is left
// untouched while any input is unknown.
func DNFromName(rdnAttribute string, parents ...path.Path) planmodifier.String {
	return dnFromName{
		rdnAttribute: rdnAttribute,
		parents:      parents,
	}
}

// Description returns a human-readable description of the plan modifier.
func (m dnFromName) Description(_ context.Context) string {
	return fmt.Sprintf("computes the distinguished name as %s=<name> below its parent", m.rdnAttribute)
}

// MarkdownDescription returns a markdown description of the plan modifier.
func (m dnFromName) MarkdownDescription(_ context.Context) string {
	return fmt.Sprintf("computes the distinguished name as `%s=<name>` below its parent", m.rdnAttribute)
}

// PlanModifyString implements the plan modification logic.
func (m dnFromName) PlanModifyString(ctx context.Context, req planmodifier.StringRequest, resp *planmodifier.StringResponse) {
	// Destroy plans carry a null plan.
	if req.Plan.Raw.IsNull() {
		return
	}

	var name types.String
	resp.Diagnostics.Append(req.Plan.GetAttribute(ctx, path.Root("name"), &name)...)
	if resp.Diagnostics.HasError() || name.IsUnknown() || name.IsNull() {
		return
	}

	var parts []string
	for _, p := range m.parents {
		var parent types.String
		resp.Diagnostics.Append(req.Plan.GetAttribute(ctx, p, &parent)...)
		if resp.Diagnostics.HasError() || parent.IsUnknown() {
			return
		}
		if value := strings.TrimSpace(parent.ValueString()); value != "" {
			parts = append(parts, value)
		}
	}

	dn := mapping.JoinDN(m.rdnAttribute, name.ValueString(), strings.Join(parts, ","))

	// Keep the server's spelling when the DN is unchanged.
	if !req.StateValue.IsNull() && !req.StateValue.IsUnknown() && mapping.EqualDN(req.StateValue.ValueString(), dn) {
		resp.PlanValue = req.StateValue
		return
	}

	resp.PlanValue = types.StringValue(dn)
}
