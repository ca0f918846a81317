package mapping

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *Entry {
	e := NewEntry("cn=web01,ou=Services,dc=example,dc=com")
	e.Add("objectClass", Texts("top", "netscapeServer")...)
	e.Add("cn", Text("web01"))
	e.Add("description", Text("frontend"), Text("Frontend"))
	e.Add("userCertificate;binary", Binary([]byte{0x30, 0x82, 0x00, 0xff}))
	return e
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	entries := []*Entry{
		NewEntry("dc=example,dc=com"),
		sampleEntry(),
		NewEntryFromStrings("ou=People,dc=example,dc=com", map[string][]string{
			"objectClass": {"organizationalUnit"},
			"ou":          {"People"},
			"seeAlso":     {"cn=a,dc=example,dc=com", "cn=b,dc=example,dc=com"},
		}),
	}

	for _, e := range entries {
		t.Run(e.DN, func(t *testing.T) {
			decoded, err := Decode(Encode(e))
			require.NoError(t, err)
			assert.True(t, e.Equal(decoded), "round trip changed entry:\n%s\nvs\n%s", e.LDIF(), decoded.LDIF())
		})
	}
}

func TestEncodeKeepsBinaryApart(t *testing.T) {
	raw := Encode(sampleEntry())

	var found bool
	for _, attr := range raw.Attributes {
		if attr.Name == "userCertificate;binary" {
			found = true
			assert.Empty(t, attr.Values)
			assert.Equal(t, [][]byte{{0x30, 0x82, 0x00, 0xff}}, attr.ByteValues)
		}
	}
	assert.True(t, found)

	names := make([]string, len(raw.Attributes))
	for i, a := range raw.Attributes {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"cn", "description", "objectClass", "userCertificate;binary"}, names)
}

func TestDecode(t *testing.T) {
	t.Run("merges case variants", func(t *testing.T) {
		e, err := Decode(RawEntry{
			DN: "cn=x,dc=example,dc=com",
			Attributes: []RawAttribute{
				{Name: "mail", Values: []string{"a@example.com"}},
				{Name: "MAIL", Values: []string{"b@example.com"}},
				{Name: "empty"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, e.Strings("Mail"))
		assert.False(t, e.Has("empty"))
		assert.Equal(t, []string{"mail"}, e.Names())
	})

	t.Run("missing DN", func(t *testing.T) {
		_, err := Decode(RawEntry{Attributes: []RawAttribute{{Name: "cn", Values: []string{"x"}}}})
		assert.ErrorIs(t, err, ErrCodec)
	})

	t.Run("empty attribute name", func(t *testing.T) {
		_, err := Decode(RawEntry{DN: "cn=x", Attributes: []RawAttribute{{Name: " ", Values: []string{"x"}}}})
		assert.ErrorIs(t, err, ErrCodec)
	})
}

func TestDiff(t *testing.T) {
	base := func() *Entry {
		return NewEntryFromStrings("cn=x,dc=example,dc=com", map[string][]string{
			"objectClass": {"top", "netscapeServer"},
			"cn":          {"x"},
			"description": {"one", "two"},
		})
	}

	tests := []struct {
		name   string
		mutate func(e *Entry)
		want   []AttributeChange
	}{
		{
			name:   "identical",
			mutate: func(e *Entry) {},
		},
		{
			name: "reordered values",
			mutate: func(e *Entry) {
				e.Set("description", Texts("two", "one")...)
			},
		},
		{
			name: "attribute added",
			mutate: func(e *Entry) {
				e.Set("seeAlso", Text("cn=y"))
			},
			want: []AttributeChange{{Op: ChangeAdd, Attribute: RawAttribute{Name: "seeAlso", Values: []string{"cn=y"}}}},
		},
		{
			name: "attribute removed",
			mutate: func(e *Entry) {
				e.RemoveAll("description")
			},
			want: []AttributeChange{{Op: ChangeDelete, Attribute: RawAttribute{Name: "description"}}},
		},
		{
			name: "value replaced",
			mutate: func(e *Entry) {
				e.RemoveValue("description", Text("two"))
			},
			want: []AttributeChange{{Op: ChangeReplace, Attribute: RawAttribute{Name: "description", Values: []string{"one"}}}},
		},
		{
			name: "sorted by name",
			mutate: func(e *Entry) {
				e.Set("zeta", Text("z"))
				e.Set("alpha", Text("a"))
			},
			want: []AttributeChange{
				{Op: ChangeAdd, Attribute: RawAttribute{Name: "alpha", Values: []string{"a"}}},
				{Op: ChangeAdd, Attribute: RawAttribute{Name: "zeta", Values: []string{"z"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := base()
			updated := old.Clone()
			tt.mutate(updated)

			changes := Diff(old, updated)
			assert.Equal(t, tt.want, changes)
			assert.Equal(t, len(changes) == 0, equalAttributes(old, updated))

			applied := Apply(old, changes)
			assert.True(t, applied.Equal(updated))
		})
	}
}

func TestChangeOpString(t *testing.T) {
	assert.Equal(t, "add", ChangeAdd.String())
	assert.Equal(t, "delete", ChangeDelete.String())
	assert.Equal(t, "replace", ChangeReplace.String())
	assert.Equal(t, "unknown", ChangeOp(42).String())
}

// randomEntry builds an entry from a fixed pool of attribute names, spelled
// in random case, holding distinct text or binary values.
func randomEntry(rng *rand.Rand, dn string) *Entry {
	names := []string{"cn", "description", "mail", "seeAlso", "l", "jpegPhoto", "userCertificate;binary"}
	e := NewEntry(dn)
	for _, name := range names {
		if rng.IntN(3) == 0 {
			continue
		}
		for range 1 + rng.IntN(3) {
			e.Add(randomCase(rng, name), randomValue(rng))
		}
	}
	return e
}

func randomCase(rng *rand.Rand, name string) string {
	var b strings.Builder
	for _, r := range name {
		if rng.IntN(2) == 0 {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomValue(rng *rand.Rand) Value {
	if rng.IntN(4) == 0 {
		b := make([]byte, 1+rng.IntN(8))
		for i := range b {
			b[i] = byte(rng.IntN(256))
		}
		return Binary(b)
	}

	const alphabet = "abcXYZ019 *()\\=,+é"
	runes := []rune(alphabet)
	var b strings.Builder
	for range 1 + rng.IntN(10) {
		b.WriteRune(runes[rng.IntN(len(runes))])
	}
	return Text(b.String())
}

// reordered copies e with every attribute name in random case and its
// values in reverse order.
func reordered(rng *rand.Rand, e *Entry) *Entry {
	out := NewEntry(e.DN)
	for _, name := range e.Names() {
		values := e.Get(name)
		for i := len(values) - 1; i >= 0; i-- {
			out.Add(randomCase(rng, name), values[i])
		}
	}
	return out
}

func TestCodecRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(20261018, 389))
	const dn = "cn=web01,ou=Services,dc=example,dc=com"

	for i := range 500 {
		a := randomEntry(rng, dn)
		b := randomEntry(rng, dn)

		decoded, err := Decode(Encode(a))
		require.NoError(t, err, "iteration %d", i)
		require.True(t, a.Equal(decoded), "iteration %d: round trip changed entry:\n%s", i, a.LDIF())

		shuffled := reordered(rng, a)
		require.True(t, a.Equal(shuffled), "iteration %d", i)
		require.Empty(t, Diff(a, shuffled), "iteration %d: order or case produced changes", i)

		changes := Diff(a, b)
		require.Equal(t, a.Equal(b), len(changes) == 0, "iteration %d", i)
		require.True(t, b.Equal(Apply(a, changes)), "iteration %d: applying the diff did not reach the target", i)
		require.Empty(t, Diff(b, Apply(a, changes)), "iteration %d", i)
	}
}
