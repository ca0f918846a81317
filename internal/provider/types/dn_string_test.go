package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNStringSemanticEquals(t *testing.T) {
	tests := map[string]struct {
		old, new DNStringValue
		equal    bool
	}{
		"case":          {DNString("cn=web01,ou=Services,dc=example,dc=com"), DNString("CN=Web01,OU=services,DC=Example,DC=com"), true},
		"different":     {DNString("cn=web01,ou=Services"), DNString("cn=web02,ou=Services"), false},
		"null and null": {DNStringNull(), DNStringNull(), true},
		"null and set":  {DNStringNull(), DNString("cn=web01"), false},
		"unknown":       {DNStringUnknown(), DNString("cn=web01"), false},
		"unparseable":   {DNString("not a dn"), DNString("NOT A DN"), true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			equal, diags := tt.old.StringSemanticEquals(t.Context(), tt.new)
			require.False(t, diags.HasError())
			assert.Equal(t, tt.equal, equal)
		})
	}
}

func TestDNStringSetSemanticEquals(t *testing.T) {
	ctx := t.Context()

	a, diags := DNStringSet(ctx, []string{"cn=alice,ou=People,dc=example,dc=com", "cn=bob,ou=People,dc=example,dc=com"})
	require.False(t, diags.HasError())
	b, diags := DNStringSet(ctx, []string{"CN=Bob,OU=People,DC=example,DC=com", "CN=Alice,OU=People,DC=example,DC=com"})
	require.False(t, diags.HasError())
	c, diags := DNStringSet(ctx, []string{"cn=alice,ou=People,dc=example,dc=com"})
	require.False(t, diags.HasError())

	equal, diags := a.SetSemanticEquals(ctx, b)
	require.False(t, diags.HasError())
	assert.True(t, equal)

	equal, _ = a.SetSemanticEquals(ctx, c)
	assert.False(t, equal)

	equal, _ = DNStringSetNull().SetSemanticEquals(ctx, DNStringSetNull())
	assert.True(t, equal)

	dns, diags := b.ValueStrings(ctx)
	require.False(t, diags.HasError())
	assert.Len(t, dns, 2)

	dns, _ = DNStringSetUnknown().ValueStrings(ctx)
	assert.Nil(t, dns)
}

func TestSameDNs(t *testing.T) {
	assert.True(t, sameDNs(nil, nil))
	assert.True(t, sameDNs([]string{"cn=a,dc=x", "CN=A,DC=X"}, []string{"cn=a,dc=x"}))
	assert.False(t, sameDNs([]string{"cn=a,dc=x"}, []string{"cn=a,dc=x", "cn=b,dc=x"}))
}
