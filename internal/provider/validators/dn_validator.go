// Package validators holds schema validators for directory values.
package validators

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

var _ validator.String = dnValidator{}

// dnValidator validates that a string is a distinguished name.
type dnValidator struct{}

func (v dnValidator) Description(_ context.Context) string {
	return "value must be a valid Distinguished Name (DN)"
}

func (v dnValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v dnValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	if _, err := mapping.ParseDN(value); err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Distinguished Name",
			fmt.Sprintf("The value %q is not a valid Distinguished Name: %s", value, err.Error()),
		)
	}
}

// IsValidDN returns a validator which ensures that any configured attribute
// value parses as a Distinguished Name. Unknown and null values are skipped.
func IsValidDN() validator.String {
	return dnValidator{}
}
