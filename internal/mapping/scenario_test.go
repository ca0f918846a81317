package mapping_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/memdir"
)

const suffix = "dc=example,dc=com"

func serviceType() mapping.EntryType {
	return mapping.EntryType{
		Name:                "service",
		RDNAttribute:        "cn",
		MustAttributes:      []string{"cn"},
		CreateObjectClasses: []string{"top", "netscapeServer"},
		FilterObjectClasses: []string{"netscapeServer"},
		DefaultRDN:          "ou=Services",
	}
}

func newDirectory(t *testing.T, opts ...memdir.Option) *memdir.Directory {
	t.Helper()

	dir := memdir.New(append([]memdir.Option{memdir.WithSuffix(suffix)}, opts...)...)
	require.NoError(t, dir.Seed(
		mapping.NewEntryFromStrings(suffix, map[string][]string{
			"objectClass": {"top", "domain"},
			"dc":          {"example"},
		}),
		mapping.NewEntryFromStrings("ou=Services,"+suffix, map[string][]string{
			"objectClass": {"top", "organizationalUnit"},
			"ou":          {"Services"},
		}),
	))
	return dir
}

func TestServicesListScenario(t *testing.T) {
	dir := newDirectory(t)
	for i := range 3 {
		require.NoError(t, dir.Seed(mapping.NewEntryFromStrings(fmt.Sprintf("cn=svc%d,ou=Services,%s", i, suffix), map[string][]string{
			"objectClass": {"top", "netscapeServer"},
			"cn":          {fmt.Sprintf("svc%d", i)},
		})))
	}
	require.NoError(t, dir.Seed(
		mapping.NewEntryFromStrings("cn=admins,ou=Services,"+suffix, map[string][]string{
			"objectClass": {"top", "groupOfNames"},
			"cn":          {"admins"},
		}),
		mapping.NewEntryFromStrings("cn=elsewhere,"+suffix, map[string][]string{
			"objectClass": {"top", "netscapeServer"},
			"cn":          {"elsewhere"},
		}),
	))

	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)
	assert.Equal(t, "ou=Services,dc=example,dc=com", services.BaseDN())

	var names []string
	for o, err := range services.List(t.Context(), nil) {
		require.NoError(t, err)
		assert.Equal(t, "cn", o.Type().RDNAttribute)

		cn, err := o.First(t.Context(), "cn")
		require.NoError(t, err)
		names = append(names, cn)
	}
	assert.ElementsMatch(t, []string{"svc0", "svc1", "svc2"}, names)
	assert.Equal(t, 1, dir.Calls(memdir.OpSearch), "listed objects arrive loaded")
}

func TestServicesCreateScenario(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	o, err := services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)
	assert.Equal(t, "cn=web01,ou=Services,dc=example,dc=com", o.DN())

	stored, ok := dir.Entry("cn=web01,ou=Services,dc=example,dc=com")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"top", "netscapeServer"}, stored.Strings("objectClass"))
	assert.Equal(t, []string{"web01"}, stored.Strings("cn"))

	// Without the RDN attribute the same create is rejected locally.
	bare, err := mapping.NewObject(dir, serviceType(), "cn=web02,ou=Services,dc=example,dc=com")
	require.NoError(t, err)
	dir.ResetCalls()

	err = bare.Create(t.Context(), map[string][]mapping.Value{})
	assert.True(t, mapping.IsValidationError(err))
	assert.Zero(t, dir.TotalCalls())
}

func TestCreateOnOccupiedDNLeavesEntryUnchanged(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	_, err = services.Create(t.Context(), "web01", map[string][]mapping.Value{"description": mapping.Texts("original")})
	require.NoError(t, err)
	before, _ := dir.Entry("cn=web01,ou=Services,dc=example,dc=com")

	_, err = services.Create(t.Context(), "WEB01", map[string][]mapping.Value{"description": mapping.Texts("clobbered")})
	assert.ErrorIs(t, err, mapping.ErrAlreadyExists)

	after, _ := dir.Entry("cn=web01,ou=Services,dc=example,dc=com")
	assert.True(t, before.Equal(after))
}

func TestGetOrCreateScenario(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	first, created, err := services.GetOrCreate(t.Context(), "cn", "web01", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, dir.Len())

	second, created, err := services.GetOrCreate(t.Context(), "cn", "web01", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, mapping.EqualDN(first.DN(), second.DN()))
	assert.Equal(t, 3, dir.Len())

	for _, name := range []string{"a", "b"} {
		_, err := services.Create(t.Context(), name, map[string][]mapping.Value{"description": mapping.Texts("shared")})
		require.NoError(t, err)
	}
	_, _, err = services.GetOrCreate(t.Context(), "description", "shared", nil)
	assert.ErrorIs(t, err, mapping.ErrAmbiguous)
}

func TestSaveLifecycle(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	o, err := services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)

	require.NoError(t, o.Set(t.Context(), "description", mapping.Text("frontend")))
	dir.ResetCalls()
	require.NoError(t, o.Save(t.Context()))
	require.NoError(t, o.Save(t.Context()))
	assert.Equal(t, 1, dir.Calls(memdir.OpModify))

	stored, _ := dir.Entry(o.DN())
	assert.Equal(t, []string{"frontend"}, stored.Strings("description"))
}

func TestConcurrentEditConflict(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	_, err = services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)

	a, err := services.Get(t.Context(), "web01")
	require.NoError(t, err)
	b, err := services.Get(t.Context(), "web01")
	require.NoError(t, err)

	require.NoError(t, a.Set(t.Context(), "description", mapping.Text("from a")))
	require.NoError(t, a.Save(t.Context()))

	require.NoError(t, b.Set(t.Context(), "description", mapping.Text("from b")))
	assert.ErrorIs(t, b.Save(t.Context()), mapping.ErrConflict)

	require.NoError(t, b.Load(t.Context()))
	require.NoError(t, b.Set(t.Context(), "description", mapping.Text("from b")))
	require.NoError(t, b.Save(t.Context()))

	stored, _ := dir.Entry(b.DN())
	assert.Equal(t, []string{"from b"}, stored.Strings("description"))
}

func TestLastWriteWinsWithoutVersioning(t *testing.T) {
	dir := newDirectory(t, memdir.WithoutVersioning())
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	_, err = services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)

	a, _ := services.Get(t.Context(), "web01")
	b, _ := services.Get(t.Context(), "web01")

	require.NoError(t, a.Set(t.Context(), "description", mapping.Text("from a")))
	require.NoError(t, a.Save(t.Context()))
	require.NoError(t, b.Set(t.Context(), "description", mapping.Text("from b")))
	require.NoError(t, b.Save(t.Context()))

	stored, _ := dir.Entry(b.DN())
	assert.Equal(t, []string{"from b"}, stored.Strings("description"))
}

func TestRenameAndDelete(t *testing.T) {
	dir := newDirectory(t)
	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	o, err := services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)

	require.NoError(t, o.Rename(t.Context(), "web02"))
	assert.Equal(t, "cn=web02,ou=Services,dc=example,dc=com", o.DN())
	cn, err := o.Get(t.Context(), "cn")
	require.NoError(t, err)
	assert.Equal(t, []mapping.Value{mapping.Text("web02")}, cn)

	exists, err := services.Object("web01").Exists(t.Context())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, o.Delete(t.Context()))
	assert.Equal(t, mapping.StateStale, o.State())
	_, ok := dir.Entry("cn=web02,ou=Services,dc=example,dc=com")
	assert.False(t, ok)
}

func TestEnsureContainer(t *testing.T) {
	dir := memdir.New(memdir.WithSuffix(suffix))
	require.NoError(t, dir.Seed(mapping.NewEntryFromStrings(suffix, map[string][]string{
		"objectClass": {"top", "domain"},
		"dc":          {"example"},
	})))

	services, err := mapping.NewCollection(dir, serviceType(), suffix)
	require.NoError(t, err)

	objects, err := services.All(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, objects, "a missing container lists as empty")

	created, err := services.Ensure(t.Context())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = services.Ensure(t.Context())
	require.NoError(t, err)
	assert.False(t, created)

	_, err = services.Create(t.Context(), "web01", nil)
	require.NoError(t, err)
}
