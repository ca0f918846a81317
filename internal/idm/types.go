// Package idm declares the identity-management entry types shipped with the
// provider and helpers to open their collections.
package idm

import (
	"fmt"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// Registered entry type names.
const (
	ServiceAccountType     = "service"
	OrganizationalUnitType = "organizationalunit"
	GroupType              = "group"
	DomainType             = "domain"
)

// ServicesRDN is the container holding service accounts below a suffix.
const ServicesRDN = "ou=Services"

// ServiceAccount describes a netscapeServer entry used as a bind identity by
// applications, stored under ou=Services.
func ServiceAccount() mapping.EntryType {
	return mapping.EntryType{
		Name:                ServiceAccountType,
		RDNAttribute:        "cn",
		MustAttributes:      []string{"cn"},
		CreateObjectClasses: []string{"top", "netscapeServer"},
		FilterObjectClasses: []string{"netscapeServer"},
		FilterAttributes:    []string{"cn"},
		DefaultRDN:          ServicesRDN,
	}
}

// OrganizationalUnit describes an organizationalUnit container.
func OrganizationalUnit() mapping.EntryType {
	return mapping.EntryType{
		Name:                OrganizationalUnitType,
		RDNAttribute:        "ou",
		MustAttributes:      []string{"ou"},
		CreateObjectClasses: []string{"top", "organizationalUnit"},
		FilterObjectClasses: []string{"organizationalUnit"},
		FilterAttributes:    []string{"ou"},
	}
}

// Group describes a groupOfNames entry under ou=Groups.
func Group() mapping.EntryType {
	return mapping.EntryType{
		Name:                GroupType,
		RDNAttribute:        "cn",
		MustAttributes:      []string{"cn"},
		CreateObjectClasses: []string{"top", "groupOfNames", "nsMemberOf"},
		FilterObjectClasses: []string{"groupOfNames"},
		FilterAttributes:    []string{"cn"},
		DefaultRDN:          "ou=Groups",
	}
}

// Domain describes a suffix entry. Suffixes are never deleted through the
// mapping layer.
func Domain() mapping.EntryType {
	return mapping.EntryType{
		Name:                DomainType,
		RDNAttribute:        "dc",
		MustAttributes:      []string{"dc"},
		CreateObjectClasses: []string{"top", "domain"},
		FilterObjectClasses: []string{"domain"},
		FilterAttributes:    []string{"dc"},
		Child:               OrganizationalUnitType,
		Protected:           true,
	}
}

// Types returns every built-in entry type.
func Types() []mapping.EntryType {
	return []mapping.EntryType{
		ServiceAccount(),
		OrganizationalUnit(),
		Group(),
		Domain(),
	}
}

// Register adds the built-in entry types to reg.
func Register(reg *mapping.Registry) error {
	for _, typ := range Types() {
		if err := reg.Register(typ); err != nil {
			return fmt.Errorf("registering %s: %w", typ.Name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in entry types.
func NewRegistry() *mapping.Registry {
	reg := mapping.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// ServiceAccounts opens the service account collection below baseDN. An empty
// rdn selects ou=Services.
func ServiceAccounts(backend mapping.Backend, baseDN, rdn string, opts ...mapping.Option) (*mapping.Collection, error) {
	typ := ServiceAccount()
	if rdn != "" {
		typ.DefaultRDN = rdn
	}
	return mapping.NewCollection(backend, typ, baseDN, opts...)
}

// ServiceAccountObject returns an unloaded handle on the service account at dn.
func ServiceAccountObject(backend mapping.Backend, dn string, opts ...mapping.Option) (*mapping.Object, error) {
	return mapping.NewObject(backend, ServiceAccount(), dn, opts...)
}
