package validators

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

var _ validator.String = attributeNameValidator{}

type attributeNameValidator struct {
	reserved []string
}

func (v attributeNameValidator) Description(_ context.Context) string {
	if len(v.reserved) == 0 {
		return "value must be an LDAP attribute name"
	}
	return fmt.Sprintf("value must be an LDAP attribute name other than: %s", strings.Join(v.reserved, ", "))
}

func (v attributeNameValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v attributeNameValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if !mapping.ValidAttributeName(value) {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Attribute Name",
			fmt.Sprintf("The value %q is not a valid LDAP attribute name.", value),
		)
		return
	}

	base, _, _ := strings.Cut(value, ";")
	if slices.ContainsFunc(v.reserved, func(r string) bool { return strings.EqualFold(r, base) }) {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Reserved Attribute Name",
			fmt.Sprintf("The attribute %q is managed by a dedicated argument and cannot be set here.", value),
		)
	}
}

// IsAttributeName returns a validator which ensures the value is an LDAP
// attribute description and not one of reserved, compared case-insensitively.
func IsAttributeName(reserved ...string) validator.String {
	return attributeNameValidator{reserved: reserved}
}
