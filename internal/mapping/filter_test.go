package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterString(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{name: "equality", filter: Eq("cn", "web01"), want: "(cn=web01)"},
		{name: "escaped", filter: Eq("cn", `a*(b)\c`), want: `(cn=a\2a\28b\29\5cc)`},
		{name: "present", filter: Present("mail"), want: "(mail=*)"},
		{name: "substring", filter: Substring("cn", "web", []string{"0"}, "1"), want: "(cn=web*0*1)"},
		{name: "and", filter: And(Eq("a", "1"), nil, Eq("b", "2")), want: "(&(a=1)(b=2))"},
		{name: "single and unwrapped", filter: And(nil, Eq("a", "1")), want: "(a=1)"},
		{name: "or", filter: Or(Eq("a", "1"), Eq("b", "2")), want: "(|(a=1)(b=2))"},
		{name: "not", filter: Not(Present("a")), want: "(!(a=*))"},
		{name: "empty substring is presence", filter: Substring("cn", "", nil, ""), want: "(cn=*)"},
		{name: "substring of empty parts", filter: Substring("cn", "", []string{"", ""}, ""), want: "(cn=*)"},
		{name: "attribute options", filter: Eq("cn;lang-en", "web"), want: "(cn;lang-en=web)"},
		{name: "numeric oid", filter: Present("2.5.4.3"), want: "(2.5.4.3=*)"},
		{name: "invalid name matches nothing", filter: Eq("cn)(uid=*", "x"), want: "(!(objectClass=*))"},
		{name: "objectclass", filter: ObjectClassFilter("top", "netscapeServer"), want: "(&(objectClass=top)(objectClass=netscapeServer))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.String())
		})
	}

	assert.Nil(t, And())
	assert.Nil(t, Or(nil))
}

func TestFilterMatches(t *testing.T) {
	e := NewEntryFromStrings("cn=web01,ou=Services,dc=example,dc=com", map[string][]string{
		"objectClass": {"top", "netscapeServer"},
		"cn":          {"web01"},
		"description": {"Frontend (public)"},
	})

	tests := []struct {
		filter string
		want   bool
	}{
		{filter: "(objectClass=netscapeserver)", want: true},
		{filter: "(cn=WEB01)", want: true},
		{filter: "(cn=web02)", want: false},
		{filter: "(mail=*)", want: false},
		{filter: "(objectClass=*)", want: true},
		{filter: "(cn=web*)", want: true},
		{filter: "(cn=*01)", want: true},
		{filter: "(cn=w*b*1)", want: true},
		{filter: "(cn=*x*)", want: false},
		{filter: `(description=Frontend \28public\29)`, want: true},
		{filter: "(&(objectClass=netscapeServer)(cn=web01))", want: true},
		{filter: "(|(cn=nope)(cn=web01))", want: true},
		{filter: "(!(cn=web01))", want: false},
		{filter: "cn=web01", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(e))
		})
	}
}

func TestParseFilterRoundTrip(t *testing.T) {
	filters := []Filter{
		Eq("cn", `odd*(value)\`),
		And(ObjectClassFilter("netscapeServer"), Or(Eq("cn", "a"), Not(Present("mail")))),
		Substring("cn", "", []string{"mid"}, "end"),
	}

	for _, f := range filters {
		parsed, err := ParseFilter(f.String())
		require.NoError(t, err, f.String())
		assert.Equal(t, f.String(), parsed.String())
	}
}

func TestParseFilterErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"(cn=a",
		"(=a)",
		"(cn>=a)",
		"(cn~=a)",
		"(&)",
		"(cn=a)(cn=b)",
		`(cn=\4)`,
		`(cn=\zz)`,
		"(!(a=1)(b=2))",
		"(c n=a)",
		"(1cn=a)",
		"(cn;=a)",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseFilter(input)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestRaw(t *testing.T) {
	f, err := Raw("uid=jdoe")
	require.NoError(t, err)
	assert.Equal(t, "(uid=jdoe)", f.String())
	assert.True(t, f.Matches(NewEntryFromStrings("uid=jdoe", map[string][]string{"uid": {"jdoe"}})))

	_, err = Raw("(uid=jdoe")
	assert.True(t, IsValidationError(err))
}

func TestCheckFilter(t *testing.T) {
	e := NewEntryFromStrings("cn=web01", map[string][]string{"cn": {"web01"}})

	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{name: "nil", filter: nil},
		{name: "valid", filter: And(ObjectClassFilter("netscapeServer"), Or(Eq("cn", "a"), Not(Present("mail"))))},
		{name: "equality", filter: Eq("c n", "a"), wantErr: true},
		{name: "presence", filter: Present(""), wantErr: true},
		{name: "substring", filter: Substring("cn*", "web", nil, ""), wantErr: true},
		{name: "nested in and", filter: And(Eq("cn", "a"), Eq("-cn", "b")), wantErr: true},
		{name: "nested in or", filter: Or(Eq("cn", "a"), Present("(cn")), wantErr: true},
		{name: "nested in not", filter: Not(Eq("cn=", "a")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFilter(tt.filter)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}

	assert.False(t, Eq("c n", "web01").Matches(e))
	assert.False(t, Present("c n").Matches(e))
}

func TestEmptySubstringMatchesPresence(t *testing.T) {
	with := NewEntryFromStrings("cn=web01", map[string][]string{"cn": {"web01"}, "description": {"x"}})
	without := NewEntryFromStrings("cn=web02", map[string][]string{"cn": {"web02"}})

	f := Substring("description", "", nil, "")
	assert.True(t, f.Matches(with))
	assert.False(t, f.Matches(without))
}
