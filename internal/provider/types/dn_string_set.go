package types

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types/basetypes"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
)

var (
	_ basetypes.SetTypable                    = DNStringSetType{}
	_ basetypes.SetValuable                   = DNStringSetValue{}
	_ basetypes.SetValuableWithSemanticEquals = DNStringSetValue{}
)

// DNStringSetType is a set of distinguished names compared by entry identity,
// used for DN-valued attributes such as group members.
type DNStringSetType struct {
	basetypes.SetType
}

// NewDNStringSetType returns a DNStringSetType with string elements.
func NewDNStringSetType() DNStringSetType {
	return DNStringSetType{SetType: basetypes.SetType{ElemType: basetypes.StringType{}}}
}

func (t DNStringSetType) String() string {
	return "DNStringSetType"
}

func (t DNStringSetType) ValueType(ctx context.Context) attr.Value {
	return DNStringSetValue{}
}

func (t DNStringSetType) Equal(o attr.Type) bool {
	other, ok := o.(DNStringSetType)
	if !ok {
		return false
	}
	return t.SetType.Equal(other.SetType)
}

func (t DNStringSetType) ValueFromSet(ctx context.Context, in basetypes.SetValue) (basetypes.SetValuable, diag.Diagnostics) {
	return DNStringSetValue{SetValue: in}, nil
}

func (t DNStringSetType) ValueFromTerraform(ctx context.Context, in tftypes.Value) (attr.Value, error) {
	attrValue, err := t.SetType.ValueFromTerraform(ctx, in)
	if err != nil {
		return nil, err
	}

	setValue, ok := attrValue.(basetypes.SetValue)
	if !ok {
		return nil, fmt.Errorf("expected basetypes.SetValue, got: %T", attrValue)
	}

	return DNStringSetValue{SetValue: setValue}, nil
}

// DNStringSetValue is a set of distinguished names.
type DNStringSetValue struct {
	basetypes.SetValue
}

func (v DNStringSetValue) Equal(o attr.Value) bool {
	other, ok := o.(DNStringSetValue)
	if !ok {
		return false
	}
	return v.SetValue.Equal(other.SetValue)
}

func (v DNStringSetValue) Type(ctx context.Context) attr.Type {
	return NewDNStringSetType()
}

// SetSemanticEquals reports whether both sets name the same entries.
func (v DNStringSetValue) SetSemanticEquals(ctx context.Context, newValuable basetypes.SetValuable) (bool, diag.Diagnostics) {
	var diags diag.Diagnostics

	newValue, ok := newValuable.(DNStringSetValue)
	if !ok {
		diags.AddError(
			"Semantic Equality Check Error",
			"An unexpected value type was received while attempting to perform semantic equality checks. "+
				"This is always an error in the provider. Please report the following to the provider developer:\n\n"+
				fmt.Sprintf("Expected DNStringSetValue, but got: %T", newValuable),
		)
		return false, diags
	}

	if v.IsNull() || v.IsUnknown() || newValue.IsNull() || newValue.IsUnknown() {
		return v.Equal(newValue), diags
	}

	var oldDNs, newDNs []string
	diags.Append(v.ElementsAs(ctx, &oldDNs, false)...)
	diags.Append(newValue.ElementsAs(ctx, &newDNs, false)...)
	if diags.HasError() {
		return false, diags
	}

	return sameDNs(oldDNs, newDNs), diags
}

// sameDNs compares two DN lists as sets of folded DNs.
func sameDNs(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, dn := range a {
		left[foldDN(dn)] = struct{}{}
	}

	right := make(map[string]struct{}, len(b))
	for _, dn := range b {
		key := foldDN(dn)
		if _, ok := left[key]; !ok {
			return false
		}
		right[key] = struct{}{}
	}

	return len(left) == len(right)
}

// ValueStrings returns the set elements. Null and unknown sets yield nil.
func (v DNStringSetValue) ValueStrings(ctx context.Context) ([]string, diag.Diagnostics) {
	if v.IsNull() || v.IsUnknown() {
		return nil, nil
	}
	var dns []string
	diags := v.ElementsAs(ctx, &dns, false)
	return dns, diags
}

// DNStringSet returns a known DNStringSetValue holding elements.
func DNStringSet(ctx context.Context, elements []string) (DNStringSetValue, diag.Diagnostics) {
	values := make([]attr.Value, len(elements))
	for i, element := range elements {
		values[i] = basetypes.NewStringValue(element)
	}

	setValue, diags := basetypes.NewSetValue(basetypes.StringType{}, values)
	if diags.HasError() {
		return DNStringSetNull(), diags
	}
	return DNStringSetValue{SetValue: setValue}, diags
}

// DNStringSetNull returns a null DNStringSetValue.
func DNStringSetNull() DNStringSetValue {
	return DNStringSetValue{SetValue: basetypes.NewSetNull(basetypes.StringType{})}
}

// DNStringSetUnknown returns an unknown DNStringSetValue.
func DNStringSetUnknown() DNStringSetValue {
	return DNStringSetValue{SetValue: basetypes.NewSetUnknown(basetypes.StringType{})}
}
