package idm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/memdir"
)

const suffix = "dc=example,dc=com"

func newDirectory(t *testing.T) *memdir.Directory {
	t.Helper()

	dir := memdir.New(memdir.WithSuffix(suffix))
	require.NoError(t, dir.Seed(mapping.NewEntryFromStrings(suffix, map[string][]string{
		"objectClass": {"top", "domain"},
		"dc":          {"example"},
	})))
	return dir
}

func TestTypesValidate(t *testing.T) {
	for _, typ := range Types() {
		t.Run(typ.Name, func(t *testing.T) {
			assert.NoError(t, typ.Validate())
		})
	}
}

func TestRegister(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"domain", "group", "organizationalunit", "service"}, reg.Names())

	svc, err := reg.Lookup("Service")
	require.NoError(t, err)
	assert.Equal(t, "ou=Services", svc.DefaultRDN)
	assert.False(t, svc.Protected)

	err = Register(reg)
	assert.ErrorIs(t, err, mapping.ErrAlreadyExists)
}

func TestServiceAccounts(t *testing.T) {
	dir := newDirectory(t)

	services, err := ServiceAccounts(dir, suffix, "")
	require.NoError(t, err)
	assert.Equal(t, "ou=Services,dc=example,dc=com", services.BaseDN())

	created, err := services.Ensure(t.Context())
	require.NoError(t, err)
	assert.True(t, created)

	o, err := services.Create(t.Context(), "web01", map[string][]mapping.Value{
		"description": mapping.Texts("frontend"),
	})
	require.NoError(t, err)

	stored, ok := dir.Entry("cn=web01,ou=Services,dc=example,dc=com")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"top", "netscapeServer"}, stored.Strings("objectClass"))

	handle, err := ServiceAccountObject(dir, o.DN())
	require.NoError(t, err)
	desc, err := handle.First(t.Context(), "description")
	require.NoError(t, err)
	assert.Equal(t, "frontend", desc)

	found, err := services.Get(t.Context(), "WEB01")
	require.NoError(t, err)
	assert.True(t, mapping.EqualDN(o.DN(), found.DN()))
}

func TestServiceAccounts_CustomContainer(t *testing.T) {
	services, err := ServiceAccounts(newDirectory(t), suffix, "ou=Applications")
	require.NoError(t, err)
	assert.Equal(t, "ou=Applications,dc=example,dc=com", services.BaseDN())
	assert.Equal(t, "ou=Services", ServiceAccount().DefaultRDN)
}

func TestDomainIsProtected(t *testing.T) {
	dir := newDirectory(t)

	o, err := mapping.NewObject(dir, Domain(), suffix, mapping.WithRegistry(NewRegistry()))
	require.NoError(t, err)
	assert.ErrorIs(t, o.Delete(t.Context()), mapping.ErrProtected)

	_, ok := dir.Entry(suffix)
	assert.True(t, ok)

	children, err := o.Children()
	require.NoError(t, err)
	assert.Equal(t, OrganizationalUnitType, children.Type().Name)

	_, err = children.Create(t.Context(), "People", nil)
	require.NoError(t, err)

	units, err := children.All(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "ou=People,dc=example,dc=com", units[0].DN())
}
