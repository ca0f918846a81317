package planmodifiers_test

import (
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/provider/planmodifiers"
)

func TestDNFromName_Description(t *testing.T) {
	modifier := planmodifiers.DNFromName("cn", path.Root("path"))
	assert.Equal(t, "computes the distinguished name as cn=<name> below its parent", modifier.Description(t.Context()))
	assert.Equal(t, "computes the distinguished name as `cn=<name>` below its parent", modifier.MarkdownDescription(t.Context()))
}

func TestDNFromName_PlanModifyString(t *testing.T) {
	tests := map[string]struct {
		name         types.String
		containerRDN types.String
		baseDN       types.String
		state        types.String
		expected     types.String
	}{
		"joined": {
			name:         types.StringValue("web01"),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringNull(),
			expected:     types.StringValue("cn=web01,ou=Services,dc=example,dc=com"),
		},
		"escaped name": {
			name:         types.StringValue("web,01"),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringNull(),
			expected:     types.StringValue(`cn=web\,01,ou=Services,dc=example,dc=com`),
		},
		"empty container": {
			name:         types.StringValue("web01"),
			containerRDN: types.StringValue(""),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringNull(),
			expected:     types.StringValue("cn=web01,dc=example,dc=com"),
		},
		"unknown base": {
			name:         types.StringValue("web01"),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringUnknown(),
			state:        types.StringNull(),
			expected:     types.StringUnknown(),
		},
		"unknown name": {
			name:         types.StringUnknown(),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringNull(),
			expected:     types.StringUnknown(),
		},
		"state spelling kept": {
			name:         types.StringValue("web01"),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringValue("CN=web01,OU=Services,DC=example,DC=com"),
			expected:     types.StringValue("CN=web01,OU=Services,DC=example,DC=com"),
		},
		"renamed": {
			name:         types.StringValue("web02"),
			containerRDN: types.StringValue("ou=Services"),
			baseDN:       types.StringValue("dc=example,dc=com"),
			state:        types.StringValue("cn=web01,ou=Services,dc=example,dc=com"),
			expected:     types.StringValue("cn=web02,ou=Services,dc=example,dc=com"),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			values := map[string]tftypes.Value{}
			for attr, v := range map[string]types.String{
				"name":          test.name,
				"container_rdn": test.containerRDN,
				"base_dn":       test.baseDN,
				"dn":            types.StringUnknown(),
			} {
				tv, err := v.ToTerraformValue(t.Context())
				require.NoError(t, err)
				values[attr] = tv
			}

			plan := tfsdk.Plan{
				Raw: tftypes.NewValue(tftypes.Object{
					AttributeTypes: map[string]tftypes.Type{
						"name":          tftypes.String,
						"container_rdn": tftypes.String,
						"base_dn":       tftypes.String,
						"dn":            tftypes.String,
					},
				}, values),
				Schema: schema.Schema{
					Attributes: map[string]schema.Attribute{
						"name":          schema.StringAttribute{Required: true},
						"container_rdn": schema.StringAttribute{Optional: true},
						"base_dn":       schema.StringAttribute{Optional: true, Computed: true},
						"dn":            schema.StringAttribute{Computed: true},
					},
				},
			}

			req := planmodifier.StringRequest{
				Path:       path.Root("dn"),
				Plan:       plan,
				PlanValue:  types.StringUnknown(),
				StateValue: test.state,
			}
			resp := &planmodifier.StringResponse{PlanValue: types.StringUnknown()}

			planmodifiers.DNFromName("cn", path.Root("container_rdn"), path.Root("base_dn")).PlanModifyString(t.Context(), req, resp)

			require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
			assert.Equal(t, test.expected, resp.PlanValue)
		})
	}
}
