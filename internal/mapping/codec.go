package mapping

import (
	"slices"
	"strings"
)

// RawAttribute is an attribute as exchanged with a Backend. Text values and
// binary values travel in separate slices so their encoding survives a round
// trip.
type RawAttribute struct {
	Name       string
	Values     []string
	ByteValues [][]byte
}

// RawEntry is a (DN, attributes) pair as returned by Backend.Search.
type RawEntry struct {
	DN         string
	Attributes []RawAttribute
}

// Decode converts a raw backend entry into an Entry. Attribute names differing
// only in case are merged.
func Decode(raw RawEntry) (*Entry, error) {
	if strings.TrimSpace(raw.DN) == "" {
		return nil, NewError(KindCodec, "decode", "", "entry has no distinguished name")
	}

	e := NewEntry(raw.DN)
	for _, attr := range raw.Attributes {
		if strings.TrimSpace(attr.Name) == "" {
			return nil, NewError(KindCodec, "decode", raw.DN, "attribute with empty name")
		}

		values := make([]Value, 0, len(attr.Values)+len(attr.ByteValues))
		for _, v := range attr.Values {
			values = append(values, Text(v))
		}
		for _, b := range attr.ByteValues {
			values = append(values, Binary(b))
		}
		if len(values) == 0 {
			continue
		}

		key := foldName(attr.Name)
		if existing, ok := e.attrs[key]; ok {
			existing.values = append(existing.values, values...)
			continue
		}
		e.attrs[key] = &attribute{name: strings.TrimSpace(attr.Name), values: values}
	}

	return e, nil
}

// Encode converts an Entry into its raw form, attributes sorted by folded name.
func Encode(e *Entry) RawEntry {
	raw := RawEntry{DN: e.DN}
	for _, key := range e.keys() {
		raw.Attributes = append(raw.Attributes, encodeAttribute(e.attrs[key].name, e.attrs[key].values))
	}
	return raw
}

func encodeAttribute(name string, values []Value) RawAttribute {
	attr := RawAttribute{Name: name}
	for _, v := range values {
		if v.binary {
			attr.ByteValues = append(attr.ByteValues, v.Bytes())
		} else {
			attr.Values = append(attr.Values, v.data)
		}
	}
	return attr
}

// ChangeOp is the kind of an attribute modification.
type ChangeOp int

const (
	ChangeAdd ChangeOp = iota
	ChangeDelete
	ChangeReplace
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeAdd:
		return "add"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// AttributeChange is one unit of a modify request. Delete changes carry no
// values and remove the whole attribute.
type AttributeChange struct {
	Op        ChangeOp
	Attribute RawAttribute
}

// Name returns the attribute name the change applies to.
func (c AttributeChange) Name() string {
	return c.Attribute.Name
}

// Diff computes the minimal list of changes turning old into new. Value order
// is ignored. Changes are sorted by folded attribute name.
func Diff(old, new *Entry) []AttributeChange {
	keys := make([]string, 0, len(old.attrs)+len(new.attrs))
	keys = append(keys, old.keys()...)
	keys = append(keys, new.keys()...)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var changes []AttributeChange
	for _, key := range keys {
		before, hadBefore := old.attrs[key]
		after, hasAfter := new.attrs[key]
		hadBefore = hadBefore && len(before.values) > 0
		hasAfter = hasAfter && len(after.values) > 0

		switch {
		case !hadBefore && hasAfter:
			changes = append(changes, AttributeChange{
				Op:        ChangeAdd,
				Attribute: encodeAttribute(after.name, after.values),
			})
		case hadBefore && !hasAfter:
			changes = append(changes, AttributeChange{
				Op:        ChangeDelete,
				Attribute: RawAttribute{Name: before.name},
			})
		case hadBefore && hasAfter && !sameValues(before.values, after.values):
			changes = append(changes, AttributeChange{
				Op:        ChangeReplace,
				Attribute: encodeAttribute(after.name, after.values),
			})
		}
	}

	return changes
}

// Apply applies changes to a copy of e and returns it. Backends without a
// native modify primitive use it.
func Apply(e *Entry, changes []AttributeChange) *Entry {
	out := e.Clone()
	for _, c := range changes {
		values := make([]Value, 0, len(c.Attribute.Values)+len(c.Attribute.ByteValues))
		for _, v := range c.Attribute.Values {
			values = append(values, Text(v))
		}
		for _, b := range c.Attribute.ByteValues {
			values = append(values, Binary(b))
		}

		switch c.Op {
		case ChangeAdd:
			out.Add(c.Attribute.Name, values...)
		case ChangeDelete:
			if len(values) == 0 {
				out.RemoveAll(c.Attribute.Name)
				continue
			}
			for _, v := range values {
				out.RemoveValue(c.Attribute.Name, v)
			}
		case ChangeReplace:
			out.Set(c.Attribute.Name, values...)
		}
	}
	return out
}
