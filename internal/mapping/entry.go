package mapping

import (
	"bytes"
	"slices"
	"strings"
)

// Value is a single attribute value. Binary values carry raw bytes that are
// not guaranteed to be valid UTF-8; text values are strings.
type Value struct {
	data   string
	binary bool
}

// Text returns a text value.
func Text(s string) Value {
	return Value{data: s}
}

// Binary returns a raw byte value. The slice is copied.
func Binary(b []byte) Value {
	return Value{data: string(b), binary: true}
}

// Texts converts strings to text values.
func Texts(values ...string) []Value {
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = Text(v)
	}
	return out
}

// String returns the value as a string. Binary values are returned verbatim.
func (v Value) String() string {
	return v.data
}

// Bytes returns a copy of the value's bytes.
func (v Value) Bytes() []byte {
	return []byte(v.data)
}

// IsBinary reports whether the value was supplied as raw bytes.
func (v Value) IsBinary() bool {
	return v.binary
}

// Equal compares the encoded bytes of two values. The text/binary marker is a
// presentation hint and does not take part in equality.
func (v Value) Equal(o Value) bool {
	return v.data == o.data
}

// foldName is the single place attribute names are case-folded.
func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type attribute struct {
	name   string // first-seen spelling
	values []Value
}

// Entry is a DN plus an attribute multimap keyed by case-folded attribute name.
// The zero value is not usable; use NewEntry.
type Entry struct {
	DN    string
	attrs map[string]*attribute
}

// NewEntry creates an empty entry for dn.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:    dn,
		attrs: make(map[string]*attribute),
	}
}

// NewEntryFromStrings creates an entry from a map of text attribute values.
func NewEntryFromStrings(dn string, attrs map[string][]string) *Entry {
	e := NewEntry(dn)
	for name, values := range attrs {
		e.Add(name, Texts(values...)...)
	}
	return e
}

// Get returns the values of name, or nil if the attribute is absent.
// The returned slice is a copy.
func (e *Entry) Get(name string) []Value {
	a, ok := e.attrs[foldName(name)]
	if !ok {
		return nil
	}
	return slices.Clone(a.values)
}

// Strings returns the values of name as strings.
func (e *Entry) Strings(name string) []string {
	values := e.Get(name)
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

// First returns the first value of name as a string, or "".
func (e *Entry) First(name string) string {
	a, ok := e.attrs[foldName(name)]
	if !ok || len(a.values) == 0 {
		return ""
	}
	return a.values[0].String()
}

// Has reports whether name has at least one value.
func (e *Entry) Has(name string) bool {
	a, ok := e.attrs[foldName(name)]
	return ok && len(a.values) > 0
}

// HasValue reports whether name holds value. Text comparison is
// case-insensitive, binary comparison exact.
func (e *Entry) HasValue(name string, value Value) bool {
	a, ok := e.attrs[foldName(name)]
	if !ok {
		return false
	}
	return slices.ContainsFunc(a.values, func(v Value) bool {
		return valueMatches(v, value)
	})
}

// Set replaces all values of name. Setting no values removes the attribute.
func (e *Entry) Set(name string, values ...Value) {
	key := foldName(name)
	if len(values) == 0 {
		delete(e.attrs, key)
		return
	}
	if a, ok := e.attrs[key]; ok {
		a.values = slices.Clone(values)
		return
	}
	e.attrs[key] = &attribute{name: strings.TrimSpace(name), values: slices.Clone(values)}
}

// Add appends values to name, skipping values already present.
func (e *Entry) Add(name string, values ...Value) {
	if len(values) == 0 {
		return
	}
	key := foldName(name)
	a, ok := e.attrs[key]
	if !ok {
		a = &attribute{name: strings.TrimSpace(name)}
		e.attrs[key] = a
	}
	for _, v := range values {
		if !slices.ContainsFunc(a.values, v.Equal) {
			a.values = append(a.values, v)
		}
	}
}

// RemoveValue removes value from name and reports whether it was present.
// The attribute disappears when its last value is removed.
func (e *Entry) RemoveValue(name string, value Value) bool {
	key := foldName(name)
	a, ok := e.attrs[key]
	if !ok {
		return false
	}
	idx := slices.IndexFunc(a.values, func(v Value) bool {
		return valueMatches(v, value)
	})
	if idx < 0 {
		return false
	}
	a.values = slices.Delete(a.values, idx, idx+1)
	if len(a.values) == 0 {
		delete(e.attrs, key)
	}
	return true
}

// RemoveAll removes name entirely.
func (e *Entry) RemoveAll(name string) {
	delete(e.attrs, foldName(name))
}

// Names returns the display names of all attributes, sorted by folded name.
func (e *Entry) Names() []string {
	keys := e.keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = e.attrs[k].name
	}
	return names
}

func (e *Entry) keys() []string {
	keys := make([]string, 0, len(e.attrs))
	for k, a := range e.attrs {
		if len(a.values) > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of attributes with at least one value.
func (e *Entry) Len() int {
	return len(e.keys())
}

// ObjectClasses returns the entry's objectClass values folded to lower case.
func (e *Entry) ObjectClasses() []string {
	values := e.Get("objectClass")
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v.String()))
	}
	return out
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := NewEntry(e.DN)
	for k, a := range e.attrs {
		c.attrs[k] = &attribute{name: a.name, values: slices.Clone(a.values)}
	}
	return c
}

// Equal reports whether both entries have the same DN (case-insensitive) and
// the same attribute multimap, ignoring value order.
func (e *Entry) Equal(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if !EqualDN(e.DN, o.DN) {
		return false
	}
	return equalAttributes(e, o)
}

func equalAttributes(a, b *Entry) bool {
	ak, bk := a.keys(), b.keys()
	if !slices.Equal(ak, bk) {
		return false
	}
	for _, k := range ak {
		if !sameValues(a.attrs[k].values, b.attrs[k].values) {
			return false
		}
	}
	return true
}

// sameValues compares two value lists as multisets of encoded bytes.
func sameValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i := range a {
		as[i] = a[i].data
		bs[i] = b[i].data
	}
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// valueMatches is the comparison used for value lookups: text values match
// case-insensitively, anything involving bytes matches exactly.
func valueMatches(a, b Value) bool {
	if a.binary || b.binary {
		return bytes.Equal([]byte(a.data), []byte(b.data))
	}
	return strings.EqualFold(a.data, b.data)
}
