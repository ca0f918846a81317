// Package helpers converts between Terraform values and directory attribute
// values for resources and data sources.
package helpers

import (
	"context"
	"maps"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// AttributeMapElemType is the element type of attribute maps: map(list(string)).
var AttributeMapElemType = types.ListType{ElemType: types.StringType}

// AttributeMapToValues converts a map(list(string)) to directory values.
// Null and unknown maps yield nil.
func AttributeMapToValues(ctx context.Context, m types.Map) (map[string][]mapping.Value, diag.Diagnostics) {
	if m.IsNull() || m.IsUnknown() {
		return nil, nil
	}

	var raw map[string][]string
	diags := m.ElementsAs(ctx, &raw, false)
	if diags.HasError() {
		return nil, diags
	}

	attrs := make(map[string][]mapping.Value, len(raw))
	for name, values := range raw {
		attrs[name] = mapping.Texts(values...)
	}
	return attrs, diags
}

// AttributeMapKeys returns the sorted keys of a map(list(string)).
func AttributeMapKeys(m types.Map) []string {
	if m.IsNull() || m.IsUnknown() {
		return nil
	}
	return slices.Sorted(maps.Keys(m.Elements()))
}

// AttributeMapFromStrings builds a map(list(string)) value. A nil map yields
// a null value.
func AttributeMapFromStrings(ctx context.Context, attrs map[string][]string) (types.Map, diag.Diagnostics) {
	if attrs == nil {
		return types.MapNull(AttributeMapElemType), nil
	}
	return types.MapValueFrom(ctx, AttributeMapElemType, attrs)
}

// EntryAttributeMap renders the named attributes of e. Attributes absent from
// e are omitted; render formats each value for display.
func EntryAttributeMap(ctx context.Context, e *mapping.Entry, names []string, render func(attr string, v mapping.Value) string) (types.Map, diag.Diagnostics) {
	attrs := make(map[string][]string, len(names))
	for _, name := range names {
		values := e.Get(name)
		if len(values) == 0 {
			continue
		}
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = render(name, v)
		}
		attrs[name] = rendered
	}
	return AttributeMapFromStrings(ctx, attrs)
}

// StringOrNull returns a null string for "".
func StringOrNull(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}

// StringList builds a list(string) value.
func StringList(values []string) types.List {
	elems := make([]attr.Value, len(values))
	for i, v := range values {
		elems[i] = types.StringValue(v)
	}
	return types.ListValueMust(types.StringType, elems)
}
