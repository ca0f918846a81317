package mapping

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Collection is the set of entries of one type below an effective base DN.
// It holds no state between calls.
type Collection struct {
	backend Backend
	typ     EntryType
	base    string
	opts    Options
}

// NewCollection creates a collection of typ entries. When the type declares a
// DefaultRDN the effective base is "DefaultRDN,baseDN".
func NewCollection(backend Backend, typ EntryType, baseDN string, opts ...Option) (*Collection, error) {
	typ = typ.clone()
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseDN(baseDN); err != nil {
		return nil, validationError("new_collection", baseDN, "%v", err)
	}

	base := baseDN
	if typ.DefaultRDN != "" {
		base = typ.DefaultRDN + "," + baseDN
	}
	return newCollection(backend, typ, base, NewOptions(opts...)), nil
}

func newCollection(backend Backend, typ EntryType, base string, opts Options) *Collection {
	return &Collection{
		backend: backend,
		typ:     typ,
		base:    base,
		opts:    opts,
	}
}

// BaseDN returns the effective base DN.
func (c *Collection) BaseDN() string {
	return c.base
}

// Type returns a copy of the collection's entry type.
func (c *Collection) Type() EntryType {
	return c.typ.clone()
}

// Object binds an object of the collection's type to the entry whose RDN
// value is rdnValue. Nothing is fetched.
func (c *Collection) Object(rdnValue string) *Object {
	return newObject(c.backend, c.typ, JoinDN(c.typ.RDNAttribute, rdnValue, c.base), c.opts)
}

func (c *Collection) searchAttributes() []string {
	if vb, ok := c.backend.(VersionedBackend); ok && vb.VersionAttribute() != "" {
		return []string{"*", vb.VersionAttribute()}
	}
	return nil
}

// search runs one search for entries of this type matching filter. A missing
// container yields no entries.
func (c *Collection) search(ctx context.Context, op string, filter Filter) ([]*Object, error) {
	if err := CheckFilter(filter); err != nil {
		return nil, err
	}

	req := &SearchRequest{
		BaseDN:     c.base,
		Scope:      c.opts.Scope,
		Filter:     And(ObjectClassFilter(c.typ.FilterObjectClasses...), filter),
		Attributes: c.searchAttributes(),
	}

	var raw []RawEntry
	fields := map[string]any{"filter": req.FilterString(), "scope": req.Scope.String()}
	err := logOperation(ctx, op, c.base, fields, func() error {
		err := callBackend(ctx, c.opts.Timeout, op, c.base, func(ctx context.Context) error {
			var err error
			raw, err = c.backend.Search(ctx, req)
			return err
		})
		if IsNotFoundError(err) {
			return nil
		}
		fields["results"] = len(raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	objects := make([]*Object, 0, len(raw))
	for _, r := range raw {
		e, err := Decode(r)
		if err != nil {
			return nil, WrapError(op, c.base, err)
		}
		objects = append(objects, newLoadedObject(c.backend, c.typ, e, c.opts))
	}
	return objects, nil
}

// List returns the entries of this type matching filter (nil for all). Each
// iteration issues a new search. On error the sequence yields a nil object
// and the error, then stops.
func (c *Collection) List(ctx context.Context, filter Filter) iter.Seq2[*Object, error] {
	return func(yield func(*Object, error) bool) {
		objects, err := c.search(ctx, "list", filter)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, o := range objects {
			if !yield(o, nil) {
				return
			}
		}
	}
}

// All collects List into a slice.
func (c *Collection) All(ctx context.Context, filter Filter) ([]*Object, error) {
	return c.search(ctx, "list", filter)
}

// Get returns the single entry whose filter attributes match selector.
func (c *Collection) Get(ctx context.Context, selector string) (*Object, error) {
	clauses := make([]Filter, 0, len(c.typ.FilterAttributes))
	for _, attr := range c.typ.FilterAttributes {
		clauses = append(clauses, Eq(attr, selector))
	}
	return c.one(ctx, "get", Or(clauses...), selector)
}

func (c *Collection) one(ctx context.Context, op string, filter Filter, selector string) (*Object, error) {
	objects, err := c.search(ctx, op, filter)
	if err != nil {
		return nil, err
	}

	switch len(objects) {
	case 0:
		return nil, NewError(KindNotFound, op, c.base, fmt.Sprintf("no %s entry matches %q", c.typ.Name, selector))
	case 1:
		return objects[0], nil
	default:
		dns := make([]string, len(objects))
		for i, o := range objects {
			dns[i] = o.DN()
		}
		return nil, NewError(KindAmbiguous, op, c.base,
			fmt.Sprintf("%d %s entries match %q: %s", len(objects), c.typ.Name, selector, strings.Join(dns, "; ")))
	}
}

// GetOrCreate returns the single entry with uniqueAttr=value, creating
// "uniqueAttr=value,base" from defaults when there is none. The boolean
// reports whether the entry was created.
func (c *Collection) GetOrCreate(ctx context.Context, uniqueAttr, value string, defaults map[string][]Value) (*Object, bool, error) {
	o, err := c.one(ctx, "get_or_create", Eq(uniqueAttr, value), value)
	switch {
	case err == nil:
		return o, false, nil
	case !IsNotFoundError(err):
		return nil, false, err
	}

	attrs := cloneAttrs(defaults)
	attrs[uniqueAttr] = appendValue(attrs[uniqueAttr], Text(value))

	o = newObject(c.backend, c.typ, JoinDN(uniqueAttr, value, c.base), c.opts)
	if err := o.Create(ctx, attrs); err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// Create adds "rdnAttr=rdnValue,base". The RDN attribute is set from
// rdnValue.
func (c *Collection) Create(ctx context.Context, rdnValue string, attrs map[string][]Value) (*Object, error) {
	if strings.TrimSpace(rdnValue) == "" {
		return nil, validationError("create", c.base, "RDN value cannot be empty")
	}

	attrs = cloneAttrs(attrs)
	attrs[c.typ.RDNAttribute] = appendValue(attrs[c.typ.RDNAttribute], Text(rdnValue))

	o := c.Object(rdnValue)
	if err := o.Create(ctx, attrs); err != nil {
		return nil, err
	}
	return o, nil
}

// Ensure creates the container entry named by the type's DefaultRDN when it
// does not exist, and reports whether it did so.
func (c *Collection) Ensure(ctx context.Context) (bool, error) {
	if c.typ.DefaultRDN == "" {
		return false, nil
	}

	attr, value, err := RDN(c.base)
	if err != nil {
		return false, validationError("ensure", c.base, "%v", err)
	}

	var class string
	switch strings.ToLower(attr) {
	case "ou":
		class = "organizationalUnit"
	case "cn":
		class = "nsContainer"
	default:
		return false, validationError("ensure", c.base, "cannot create a container with RDN attribute %q", attr)
	}

	container := newObject(c.backend, containerType(attr, class), c.base, c.opts)
	exists, err := container.Exists(ctx)
	if err != nil || exists {
		return false, err
	}

	err = container.Create(ctx, map[string][]Value{attr: {Text(value)}})
	if IsAlreadyExistsError(err) {
		return false, nil
	}
	return err == nil, err
}

// containerType describes the container entry Ensure creates. It is built
// already in the form Validate would produce.
func containerType(attr, class string) EntryType {
	return EntryType{
		Name:                "container",
		RDNAttribute:        attr,
		MustAttributes:      []string{attr},
		CreateObjectClasses: []string{"top", class},
		FilterObjectClasses: []string{class},
		FilterAttributes:    []string{attr},
	}
}

func cloneAttrs(attrs map[string][]Value) map[string][]Value {
	out := make(map[string][]Value, len(attrs)+1)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		out[k] = slices.Clone(attrs[k])
	}
	return out
}

// appendValue adds v unless an equal text value is already present.
func appendValue(values []Value, v Value) []Value {
	if slices.ContainsFunc(values, func(x Value) bool { return valueMatches(x, v) }) {
		return values
	}
	return append(values, v)
}
