package provider

import (
	"context"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
	"github.com/isometry/terraform-provider-dirsrv/internal/memdir"
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
)

// seedServiceAccounts creates web01, web02 and batch below ou=Services.
func seedServiceAccounts(t *testing.T, data *ProviderData) {
	t.Helper()

	services, err := data.ServiceAccounts("", "")
	require.NoError(t, err)
	_, err = services.Ensure(t.Context())
	require.NoError(t, err)

	for name, description := range map[string]string{
		"web01": "frontend",
		"web02": "frontend",
		"batch": "nightly jobs",
	} {
		_, err := services.Create(t.Context(), name, map[string][]mapping.Value{
			"description": mapping.Texts(description),
		})
		require.NoError(t, err)
	}
}

func TestLookupServiceAccount(t *testing.T) {
	data, _ := newTestProviderData(t)
	seedServiceAccounts(t, data)
	var diags diag.Diagnostics

	byName := &ServiceAccountDataSourceModel{Name: types.StringValue("web01")}
	require.NoError(t, lookupServiceAccount(t.Context(), data, byName, &diags))
	require.False(t, diags.HasError())
	assert.Equal(t, "cn=web01,ou=Services,dc=example,dc=com", byName.ID.ValueString())
	assert.Equal(t, "frontend", byName.Description.ValueString())
	assert.False(t, byName.Locked.ValueBool())

	var classes []string
	require.False(t, byName.ObjectClasses.ElementsAs(t.Context(), &classes, false).HasError())
	assert.ElementsMatch(t, []string{"top", "netscapeserver"}, classes)

	var attrs map[string][]string
	require.False(t, byName.Attributes.ElementsAs(t.Context(), &attrs, false).HasError())
	assert.Equal(t, []string{"frontend"}, attrs["description"])

	byDN := &ServiceAccountDataSourceModel{DN: customtypes.DNString("cn=batch,ou=Services,dc=example,dc=com")}
	require.NoError(t, lookupServiceAccount(t.Context(), data, byDN, &diags))
	assert.Equal(t, "batch", byDN.Name.ValueString())

	missing := &ServiceAccountDataSourceModel{Name: types.StringValue("nope")}
	err := lookupServiceAccount(t.Context(), data, missing, &diags)
	assert.True(t, mapping.IsNotFoundError(err))
}

func TestBuildServiceAccountFilter(t *testing.T) {
	f, err := buildServiceAccountFilter(ServiceAccountFilterModel{})
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = buildServiceAccountFilter(ServiceAccountFilterModel{
		NamePrefix: types.StringValue("web"),
		LDAPFilter: types.StringValue("(description=frontend)"),
	})
	require.NoError(t, err)
	assert.Equal(t, "(&(cn=web*)(description=frontend))", f.String())

	_, err = buildServiceAccountFilter(ServiceAccountFilterModel{LDAPFilter: types.StringValue("(broken")})
	assert.Error(t, err)
}

func TestListServiceAccounts(t *testing.T) {
	data, _ := newTestProviderData(t)
	var diags diag.Diagnostics

	// Missing container lists as empty.
	model := &ServiceAccountsDataSourceModel{}
	require.NoError(t, listServiceAccounts(t.Context(), data, model, nil, &diags))
	assert.Equal(t, int64(0), model.Count.ValueInt64())
	assert.NotEmpty(t, model.ID.ValueString())

	seedServiceAccounts(t, data)

	require.NoError(t, listServiceAccounts(t.Context(), data, model, nil, &diags))
	assert.Equal(t, int64(3), model.Count.ValueInt64())

	filter, err := buildServiceAccountFilter(ServiceAccountFilterModel{NamePrefix: types.StringValue("web")})
	require.NoError(t, err)
	filtered := &ServiceAccountsDataSourceModel{}
	require.NoError(t, listServiceAccounts(t.Context(), data, filtered, filter, &diags))
	require.False(t, diags.HasError())
	assert.Equal(t, int64(2), filtered.Count.ValueInt64())
	assert.NotEqual(t, model.ID.ValueString(), filtered.ID.ValueString())

	var items []struct {
		Name        types.String `tfsdk:"name"`
		DN          types.String `tfsdk:"dn"`
		Description types.String `tfsdk:"description"`
	}
	require.False(t, filtered.ServiceAccounts.ElementsAs(t.Context(), &items, false).HasError())
	for _, item := range items {
		assert.Contains(t, []string{"web01", "web02"}, item.Name.ValueString())
		assert.Equal(t, "frontend", item.Description.ValueString())
	}
}

func TestSearchEntries(t *testing.T) {
	data, _ := newTestProviderData(t)
	seedServiceAccounts(t, data)
	var diags diag.Diagnostics

	attrs, d := types.ListValueFrom(t.Context(), types.StringType, []string{"description"})
	require.False(t, d.HasError())

	filter, err := parseOptionalFilter("(description=frontend)")
	require.NoError(t, err)

	model := &EntriesDataSourceModel{
		Type:       types.StringValue("Service"),
		Scope:      types.StringValue("ONE"),
		Attributes: attrs,
	}
	require.NoError(t, searchEntries(t.Context(), data, model, filter, &diags))
	require.False(t, diags.HasError())
	assert.Equal(t, int64(2), model.Count.ValueInt64())

	var entries []struct {
		DN            types.String `tfsdk:"dn"`
		ObjectClasses types.List   `tfsdk:"object_classes"`
		Attributes    types.Map    `tfsdk:"attributes"`
	}
	require.False(t, model.Entries.ElementsAs(t.Context(), &entries, false).HasError())
	for _, e := range entries {
		var got map[string][]string
		require.False(t, e.Attributes.ElementsAs(t.Context(), &got, false).HasError())
		assert.Equal(t, map[string][]string{"description": {"frontend"}}, got)
	}

	ous := &EntriesDataSourceModel{Type: types.StringValue("organizationalunit")}
	require.NoError(t, searchEntries(t.Context(), data, ous, nil, &diags))
	assert.Equal(t, int64(1), ous.Count.ValueInt64())

	unknown := &EntriesDataSourceModel{Type: types.StringValue("printer")}
	err = searchEntries(t.Context(), data, unknown, nil, &diags)
	assert.True(t, mapping.IsNotFoundError(err))
}

func TestParseOptionalFilter(t *testing.T) {
	f, err := parseOptionalFilter("  ")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = parseOptionalFilter("cn=web01)")
	assert.Error(t, err)
}

type whoAmIDirectory struct {
	*memdir.Directory
	authzID string
}

func (d whoAmIDirectory) WhoAmI(context.Context) (string, error) {
	return d.authzID, nil
}

func TestWhoAmI(t *testing.T) {
	data, dir := newTestProviderData(t)

	_, err := whoAmI(t.Context(), data)
	assert.ErrorContains(t, err, "does not support")

	data.Backend = whoAmIDirectory{Directory: dir, authzID: "dn:cn=Directory Manager"}
	authzID, err := whoAmI(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, "dn:cn=Directory Manager", authzID)

	_, err = whoAmI(t.Context(), nil)
	assert.ErrorIs(t, err, errProviderNotConfigured)
}

func TestParseAuthzID(t *testing.T) {
	tests := map[string]struct {
		authzID string
		format  string
		dn      string
		userID  string
		id      string
	}{
		"dn":        {authzID: "dn:cn=Directory Manager", format: "dn", dn: "cn=Directory Manager", id: "dn:cn=Directory Manager"},
		"dn upper":  {authzID: "DN: uid=svc,ou=Services,dc=example,dc=com", format: "dn", dn: "uid=svc,ou=Services,dc=example,dc=com", id: "DN: uid=svc,ou=Services,dc=example,dc=com"},
		"user":      {authzID: "u:svc-web", format: "user", userID: "svc-web", id: "u:svc-web"},
		"anonymous": {authzID: "", format: "empty", id: "anonymous"},
		"bad dn":    {authzID: "dn:not a dn", format: "unknown", id: "dn:not a dn"},
		"other":     {authzID: "x:whatever", format: "unknown", id: "x:whatever"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var model WhoAmIDataSourceModel
			parseAuthzID(tt.authzID, &model)

			assert.Equal(t, tt.format, model.Format.ValueString())
			assert.Equal(t, tt.dn, model.DN.ValueString())
			assert.Equal(t, tt.userID, model.UserID.ValueString())
			assert.Equal(t, tt.id, model.ID.ValueString())
		})
	}
}
