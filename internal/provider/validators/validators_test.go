package validators_test

import (
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/provider/validators"
)

func runStringValidator(t *testing.T, v validator.String, value types.String) validator.StringResponse {
	t.Helper()

	request := validator.StringRequest{
		Path:        path.Root("test"),
		ConfigValue: value,
	}
	response := validator.StringResponse{}
	v.ValidateString(t.Context(), request, &response)
	return response
}

func TestDNValidator(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		val         types.String
		expectError bool
	}{
		"simple":            {val: types.StringValue("cn=web01,ou=Services,dc=example,dc=com")},
		"escaped comma":     {val: types.StringValue(`cn=web\, 01,ou=Services,dc=example,dc=com`)},
		"spaces":            {val: types.StringValue("cn=Directory Manager")},
		"empty":             {val: types.StringValue(""), expectError: true},
		"blank":             {val: types.StringValue("   "), expectError: true},
		"malformed":         {val: types.StringValue("invalid-dn"), expectError: true},
		"missing attribute": {val: types.StringValue("=web01,dc=example,dc=com"), expectError: true},
		"null value":        {val: types.StringNull()},
		"unknown value":     {val: types.StringUnknown()},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			response := runStringValidator(t, validators.IsValidDN(), test.val)
			if !test.expectError {
				assert.False(t, response.Diagnostics.HasError(), "%v", response.Diagnostics)
				return
			}

			require.Len(t, response.Diagnostics, 1)
			assert.Equal(t, "Invalid Distinguished Name", response.Diagnostics[0].Summary())
			assert.Contains(t, response.Diagnostics[0].Detail(), "is not a valid Distinguished Name")
		})
	}
}

func TestDNValidatorDescription(t *testing.T) {
	v := validators.IsValidDN()
	assert.Equal(t, "value must be a valid Distinguished Name (DN)", v.Description(t.Context()))
	assert.Equal(t, v.Description(t.Context()), v.MarkdownDescription(t.Context()))
}

func TestAttributeNameValidator(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		val     types.String
		summary string
	}{
		"keystring":       {val: types.StringValue("seeAlso")},
		"with option":     {val: types.StringValue("userCertificate;binary")},
		"numeric oid":     {val: types.StringValue("2.5.4.13")},
		"hyphen":          {val: types.StringValue("nsAccount-Lock")},
		"leading digit":   {val: types.StringValue("1abc"), summary: "Invalid Attribute Name"},
		"space":           {val: types.StringValue("see also"), summary: "Invalid Attribute Name"},
		"reserved":        {val: types.StringValue("CN"), summary: "Reserved Attribute Name"},
		"reserved option": {val: types.StringValue("description;lang-en"), summary: "Reserved Attribute Name"},
		"null":            {val: types.StringNull()},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			response := runStringValidator(t, validators.IsAttributeName("cn", "description"), test.val)
			if test.summary == "" {
				assert.False(t, response.Diagnostics.HasError(), "%v", response.Diagnostics)
				return
			}

			require.Len(t, response.Diagnostics, 1)
			assert.Equal(t, test.summary, response.Diagnostics[0].Summary())
		})
	}
}

func TestAttributeNameValidatorDescription(t *testing.T) {
	assert.Equal(t, "value must be an LDAP attribute name", validators.IsAttributeName().Description(t.Context()))
	assert.Equal(t,
		"value must be an LDAP attribute name other than: cn, description",
		validators.IsAttributeName("cn", "description").Description(t.Context()),
	)
}
