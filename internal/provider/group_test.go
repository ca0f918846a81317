package provider

import (
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/terraform-provider-dirsrv/internal/memdir"
	customtypes "github.com/isometry/terraform-provider-dirsrv/internal/provider/types"
)

const (
	aliceDN = "uid=alice,ou=People,dc=example,dc=com"
	bobDN   = "uid=bob,ou=People,dc=example,dc=com"
	web01DN = "cn=web01,ou=Services,dc=example,dc=com"
)

func groupModel(t *testing.T, name string, members ...string) *GroupResourceModel {
	t.Helper()

	set := customtypes.DNStringSetNull()
	if members != nil {
		var diags diag.Diagnostics
		set, diags = customtypes.DNStringSet(t.Context(), members)
		require.False(t, diags.HasError())
	}

	return &GroupResourceModel{
		Name:        types.StringValue(name),
		Path:        types.StringUnknown(),
		Description: types.StringNull(),
		Members:     set,
	}
}

func TestCreateGroupDefaultContainer(t *testing.T) {
	data, dir := newTestProviderData(t)
	var diags diag.Diagnostics

	model := groupModel(t, "web-readers", aliceDN, web01DN)
	require.NoError(t, createGroup(t.Context(), data, model, &diags))
	require.False(t, diags.HasError())

	assert.Equal(t, "cn=web-readers,ou=Groups,dc=example,dc=com", model.ID.ValueString())
	assert.Equal(t, "ou=Groups,dc=example,dc=com", model.Path.ValueString())

	e, ok := dir.Entry(model.ID.ValueString())
	require.True(t, ok)
	assert.ElementsMatch(t, []string{aliceDN, web01DN}, e.Strings("member"))
	assert.Contains(t, e.Strings("objectClass"), "groupOfNames")
}

func TestCreateGroupExplicitPath(t *testing.T) {
	data, _ := newTestProviderData(t)
	var diags diag.Diagnostics

	model := groupModel(t, "admins")
	model.Path = types.StringValue(testSuffix)
	require.NoError(t, createGroup(t.Context(), data, model, &diags))

	assert.Equal(t, "cn=admins,dc=example,dc=com", model.ID.ValueString())
	assert.True(t, model.Members.IsNull())
}

func TestUpdateGroupMembers(t *testing.T) {
	data, dir := newTestProviderData(t)
	var diags diag.Diagnostics

	state := groupModel(t, "web-readers", aliceDN)
	require.NoError(t, createGroup(t.Context(), data, state, &diags))

	plan := groupModel(t, "web-readers", bobDN, web01DN)
	plan.ID = state.ID
	plan.Path = state.Path
	require.NoError(t, updateGroup(t.Context(), data, plan, state, &diags))
	require.False(t, diags.HasError())

	e, _ := dir.Entry(state.ID.ValueString())
	assert.ElementsMatch(t, []string{bobDN, web01DN}, e.Strings("member"))

	// Dropping the argument stops tracking but still empties the group.
	next := groupModel(t, "web-readers")
	next.ID = plan.ID
	next.Path = plan.Path
	require.NoError(t, updateGroup(t.Context(), data, next, plan, &diags))
	e, _ = dir.Entry(state.ID.ValueString())
	assert.False(t, e.Has("member"))
	assert.True(t, next.Members.IsNull())
}

func TestReadGroupUntrackedMembers(t *testing.T) {
	data, _ := newTestProviderData(t)
	var diags diag.Diagnostics

	model := groupModel(t, "ops")
	require.NoError(t, createGroup(t.Context(), data, model, &diags))
	require.NoError(t, changeGroupMembers(t.Context(), data, model.ID.ValueString(), []string{aliceDN}, nil))

	found, err := readGroup(t.Context(), data, model, &diags)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, model.Members.IsNull())

	model.Members = customtypes.DNStringSetUnknown()
	_, err = readGroup(t.Context(), data, model, &diags)
	require.NoError(t, err)
	members, _ := model.Members.ValueStrings(t.Context())
	assert.Equal(t, []string{aliceDN}, members)
}

func TestGroupMembership(t *testing.T) {
	data, dir := newTestProviderData(t)
	var diags diag.Diagnostics

	group := groupModel(t, "ops", aliceDN)
	require.NoError(t, createGroup(t.Context(), data, group, &diags))
	groupDN := group.ID.ValueString()

	// Differently cased DN is not added twice.
	dir.ResetCalls()
	require.NoError(t, changeGroupMembers(t.Context(), data, groupDN, []string{"UID=Alice,OU=People,DC=example,DC=com"}, nil))
	assert.Zero(t, dir.Calls(memdir.OpModify))

	require.NoError(t, changeGroupMembers(t.Context(), data, groupDN, []string{bobDN, web01DN}, nil))
	e, _ := dir.Entry(groupDN)
	assert.ElementsMatch(t, []string{aliceDN, bobDN, web01DN}, e.Strings("member"))

	set, _ := customtypes.DNStringSet(t.Context(), []string{bobDN, web01DN})
	model := &GroupMembershipResourceModel{GroupDN: types.StringValue(groupDN), Members: set}

	// web01 removed out of band.
	require.NoError(t, changeGroupMembers(t.Context(), data, groupDN, nil, []string{web01DN}))
	found, err := readGroupMembership(t.Context(), data, model, &diags)
	require.NoError(t, err)
	require.True(t, found)
	members, _ := model.Members.ValueStrings(t.Context())
	assert.Equal(t, []string{bobDN}, members)
	assert.Equal(t, groupDN, model.ID.ValueString())

	// Only tracked members are removed.
	require.NoError(t, changeGroupMembers(t.Context(), data, groupDN, nil, members))
	e, _ = dir.Entry(groupDN)
	assert.Equal(t, []string{aliceDN}, e.Strings("member"))
}

func TestGroupMembershipMissingGroup(t *testing.T) {
	data, _ := newTestProviderData(t)
	var diags diag.Diagnostics

	model := &GroupMembershipResourceModel{
		GroupDN: types.StringValue("cn=ghost,ou=Groups,dc=example,dc=com"),
		Members: customtypes.DNStringSetNull(),
	}
	found, err := readGroupMembership(t.Context(), data, model, &diags)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiffMembers(t *testing.T) {
	add, remove := diffMembers(
		[]string{aliceDN, bobDN},
		[]string{"UID=BOB,ou=People,dc=example,dc=com", web01DN},
	)
	assert.Equal(t, []string{web01DN}, add)
	assert.Equal(t, []string{aliceDN}, remove)
}
