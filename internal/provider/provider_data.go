package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/diag"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

var errProviderNotConfigured = errors.New("provider is not configured")

// ProviderData is handed to every resource and data source after Configure.
type ProviderData struct {
	Backend     mapping.Backend
	Registry    *mapping.Registry
	BaseDN      string
	ServicesRDN string
	Timeout     time.Duration
}

// whoAmIer is implemented by backends that can report the bound identity.
type whoAmIer interface {
	WhoAmI(ctx context.Context) (string, error)
}

// Options returns the mapping options shared by all objects and collections.
func (d *ProviderData) Options(opts ...mapping.Option) []mapping.Option {
	return append([]mapping.Option{
		mapping.WithTimeout(d.Timeout),
		mapping.WithRegistry(d.Registry),
	}, opts...)
}

// ResolveBaseDN returns override when set, otherwise the provider base DN.
func (d *ProviderData) ResolveBaseDN(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if d.BaseDN == "" {
		return "", errors.New("no base DN configured and none discovered from the server; set base_dn")
	}
	return d.BaseDN, nil
}

// ServiceAccounts opens the service account collection.
func (d *ProviderData) ServiceAccounts(baseDN, rdn string) (*mapping.Collection, error) {
	base, err := d.ResolveBaseDN(baseDN)
	if err != nil {
		return nil, err
	}
	if rdn == "" {
		rdn = d.ServicesRDN
	}
	return idm.ServiceAccounts(d.Backend, base, rdn, d.Options()...)
}

// Object returns an unloaded handle on dn typed by the named entry type.
func (d *ProviderData) Object(typeName, dn string) (*mapping.Object, error) {
	typ, err := d.Registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return mapping.NewObject(d.Backend, typ, dn, d.Options()...)
}

// providerDataFrom unwraps the value passed to Configure methods. A nil result
// with no diagnostics means the provider is not configured yet.
func providerDataFrom(data any, diags *diag.Diagnostics) *ProviderData {
	if data == nil {
		return nil
	}

	providerData, ok := data.(*ProviderData)
	if !ok {
		diags.AddError(
			"Unexpected Configure Type",
			fmt.Sprintf("Expected *provider.ProviderData, got: %T. Please report this issue to the provider developers.", data),
		)
		return nil
	}
	return providerData
}
