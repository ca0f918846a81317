package mapping

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// State is the lifecycle state of an Object.
type State int

const (
	// StateUnloaded objects have not been fetched yet. The entry may not exist.
	StateUnloaded State = iota
	// StateLoaded objects hold a fetched or freshly written snapshot.
	StateLoaded
	// StateStale objects were deleted; every operation fails.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Object is one directory entry bound to a DN and an entry type.
//
// Mutators only touch the pending snapshot; Save sends the difference from the
// loaded snapshot. An Object is not safe for concurrent use.
type Object struct {
	dn      string
	backend Backend
	typ     EntryType
	opts    Options

	state   State
	loaded  *Entry
	pending *Entry
	version string
}

// NewObject binds an object of type typ to dn. The entry need not exist.
func NewObject(backend Backend, typ EntryType, dn string, opts ...Option) (*Object, error) {
	typ = typ.clone()
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseDN(dn); err != nil {
		return nil, validationError("new_object", dn, "%v", err)
	}
	return newObject(backend, typ, dn, NewOptions(opts...)), nil
}

func newObject(backend Backend, typ EntryType, dn string, opts Options) *Object {
	return &Object{
		dn:      dn,
		backend: backend,
		typ:     typ,
		opts:    opts,
		state:   StateUnloaded,
	}
}

// newLoadedObject wraps an entry returned by a search.
func newLoadedObject(backend Backend, typ EntryType, e *Entry, opts Options) *Object {
	o := newObject(backend, typ, e.DN, opts)
	o.setLoaded(e)
	return o
}

// DN returns the object's distinguished name. Valid in every state.
func (o *Object) DN() string {
	return o.dn
}

// State returns the lifecycle state.
func (o *Object) State() State {
	return o.state
}

// Type returns a copy of the object's entry type.
func (o *Object) Type() EntryType {
	return o.typ.clone()
}

// Version returns the optimistic concurrency token of the loaded snapshot, or
// "" when the backend does not provide one.
func (o *Object) Version() string {
	return o.version
}

func (o *Object) versionAttribute() string {
	if vb, ok := o.backend.(VersionedBackend); ok {
		return vb.VersionAttribute()
	}
	return ""
}

func (o *Object) searchAttributes() []string {
	if v := o.versionAttribute(); v != "" {
		return []string{"*", v}
	}
	return nil
}

// setLoaded installs e as the loaded snapshot. The version attribute is
// operational and kept out of both snapshots.
func (o *Object) setLoaded(e *Entry) {
	e = e.Clone()
	if v := o.versionAttribute(); v != "" {
		o.version = e.First(v)
		e.RemoveAll(v)
	}
	e.DN = o.dn
	o.loaded = e
	o.pending = e.Clone()
	o.state = StateLoaded
}

func (o *Object) checkLive(op string) error {
	if o.state == StateStale {
		return staleError(op, o.dn)
	}
	return nil
}

// fetch reads the entry at o.dn. A missing entry, or one lacking the type's
// filter objectclasses, is KindNotFound.
func (o *Object) fetch(ctx context.Context, op string) (*Entry, error) {
	var raw []RawEntry
	err := callBackend(ctx, o.opts.Timeout, op, o.dn, func(ctx context.Context) error {
		var err error
		raw, err = o.backend.Search(ctx, &SearchRequest{
			BaseDN:     o.dn,
			Scope:      ScopeBase,
			Filter:     ObjectClassFilter(o.typ.FilterObjectClasses...),
			Attributes: o.searchAttributes(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, NewError(KindNotFound, op, o.dn, fmt.Sprintf("entry does not exist or is not a %s entry", o.typ.Name))
	}

	e, err := Decode(raw[0])
	if err != nil {
		return nil, WrapError(op, o.dn, err)
	}
	return e, nil
}

// Load fetches the entry, replacing both snapshots and discarding pending
// edits.
func (o *Object) Load(ctx context.Context) error {
	if err := o.checkLive("load"); err != nil {
		return err
	}

	return logOperation(ctx, "load", o.dn, nil, func() error {
		e, err := o.fetch(ctx, "load")
		if err != nil {
			return err
		}
		o.setLoaded(e)
		return nil
	})
}

// ensureLoaded performs the implicit first load.
func (o *Object) ensureLoaded(ctx context.Context, op string) error {
	switch o.state {
	case StateStale:
		return staleError(op, o.dn)
	case StateUnloaded:
		return o.Load(ctx)
	default:
		return nil
	}
}

// Exists reports whether the entry is present in the directory. It does not
// change the object's snapshots.
func (o *Object) Exists(ctx context.Context) (bool, error) {
	if err := o.checkLive("exists"); err != nil {
		return false, err
	}

	_, err := o.fetch(ctx, "exists")
	switch {
	case err == nil:
		return true, nil
	case IsNotFoundError(err):
		return false, nil
	default:
		return false, err
	}
}

// Get returns the pending values of attr, loading the entry on first use.
// An absent attribute yields an empty result, not an error.
func (o *Object) Get(ctx context.Context, attr string) ([]Value, error) {
	if err := o.ensureLoaded(ctx, "get"); err != nil {
		return nil, err
	}
	return o.pending.Get(attr), nil
}

// First returns the first pending value of attr as a string, or "".
func (o *Object) First(ctx context.Context, attr string) (string, error) {
	if err := o.ensureLoaded(ctx, "get"); err != nil {
		return "", err
	}
	return o.pending.First(attr), nil
}

// Entry returns a copy of the pending snapshot.
func (o *Object) Entry(ctx context.Context) (*Entry, error) {
	if err := o.ensureLoaded(ctx, "get"); err != nil {
		return nil, err
	}
	return o.pending.Clone(), nil
}

// Set replaces the pending values of attr. Setting no values removes it.
func (o *Object) Set(ctx context.Context, attr string, values ...Value) error {
	return o.mutate(ctx, "set", attr, func(e *Entry) {
		e.Set(attr, values...)
	})
}

// Add appends values to attr in the pending snapshot.
func (o *Object) Add(ctx context.Context, attr string, values ...Value) error {
	return o.mutate(ctx, "add", attr, func(e *Entry) {
		e.Add(attr, values...)
	})
}

// RemoveValue removes one value of attr from the pending snapshot. Removing a
// value that is not present is not an error.
func (o *Object) RemoveValue(ctx context.Context, attr string, value Value) error {
	return o.mutate(ctx, "remove", attr, func(e *Entry) {
		e.RemoveValue(attr, value)
	})
}

// RemoveAll removes attr from the pending snapshot.
func (o *Object) RemoveAll(ctx context.Context, attr string) error {
	return o.mutate(ctx, "remove", attr, func(e *Entry) {
		e.RemoveAll(attr)
	})
}

// mutate applies fn to a scratch copy of the pending snapshot and keeps the
// result only if it still satisfies the per-attribute constraints.
func (o *Object) mutate(ctx context.Context, op, attr string, fn func(e *Entry)) error {
	if err := o.ensureLoaded(ctx, op); err != nil {
		return err
	}

	next := o.pending.Clone()
	fn(next)

	if o.typ.isMust(attr) && !next.Has(attr) {
		return validationError(op, o.dn, "attribute %q is required and cannot be left empty", attr)
	}
	if err := o.checkRDN(op, next); err != nil {
		return err
	}

	o.pending = next
	return nil
}

// checkRDN verifies that e still carries the value named in the DN's RDN.
func (o *Object) checkRDN(op string, e *Entry) error {
	rdnAttr, rdnValue, err := RDN(o.dn)
	if err != nil {
		return validationError(op, o.dn, "%v", err)
	}
	if !e.HasValue(rdnAttr, Text(rdnValue)) {
		return validationError(op, o.dn, "attribute %q must contain the RDN value %q", rdnAttr, rdnValue)
	}
	return nil
}

// validate runs the local checks that precede every write.
func (o *Object) validate(op string, e *Entry) error {
	var missing []string
	for _, attr := range o.typ.MustAttributes {
		if !e.Has(attr) {
			missing = append(missing, attr)
		}
	}
	if len(missing) > 0 {
		return validationError(op, o.dn, "missing required attributes: %s", strings.Join(missing, ", "))
	}
	return o.checkRDN(op, e)
}

// Changes returns the modifications Save would send, or nil when there are
// none or the object is not loaded.
func (o *Object) Changes() []AttributeChange {
	if o.state != StateLoaded {
		return nil
	}
	return Diff(o.loaded, o.pending)
}

// Save writes pending edits. An empty difference issues no backend call. When
// the backend supports conditional modifies the write asserts the loaded
// version token and the loaded values of every attribute it touches. If
// another client changed them the save fails with KindConflict and the
// pending edits are kept so the caller can reload and reapply.
func (o *Object) Save(ctx context.Context) error {
	if err := o.checkLive("save"); err != nil {
		return err
	}
	if o.state == StateUnloaded {
		return nil
	}

	if err := o.validate("save", o.pending); err != nil {
		return err
	}
	for _, oc := range o.typ.FilterObjectClasses {
		if o.loaded.HasValue("objectClass", Text(oc)) && !o.pending.HasValue("objectClass", Text(oc)) {
			return validationError("save", o.dn, "objectclass %q cannot be removed from a %s entry", oc, o.typ.Name)
		}
	}

	changes := Diff(o.loaded, o.pending)
	if len(changes) == 0 {
		return nil
	}

	fields := map[string]any{"changes": len(changes)}
	return logOperation(ctx, "save", o.dn, fields, func() error {
		vb, versioned := o.backend.(VersionedBackend)
		var assertion Filter
		if versioned && vb.VersionAttribute() != "" {
			assertion = o.saveAssertion(vb.VersionAttribute(), changes)
		}
		fields["conditional"] = assertion != nil

		err := callBackend(ctx, o.opts.Timeout, "save", o.dn, func(ctx context.Context) error {
			if assertion != nil {
				return vb.ModifyIfUnchanged(ctx, o.dn, assertion, changes)
			}
			return o.backend.Modify(ctx, o.dn, changes)
		})
		if err != nil {
			return err
		}

		o.loaded = o.pending.Clone()
		o.refreshVersion(ctx)
		return nil
	})
}

// saveAssertion builds the condition for a conditional save: the version
// token when one is held, plus the loaded values of each changed attribute.
// Write-only and binary attributes are covered by the token alone.
func (o *Object) saveAssertion(versionAttr string, changes []AttributeChange) Filter {
	var clauses []Filter
	if o.version != "" {
		clauses = append(clauses, Eq(versionAttr, o.version))
	}

	seen := make(map[string]bool, len(changes))
	for _, c := range changes {
		name := c.Name()
		if seen[foldName(name)] || isWriteOnly(name) {
			continue
		}
		seen[foldName(name)] = true

		values := o.loaded.Get(name)
		if len(values) == 0 {
			clauses = append(clauses, Not(Present(name)))
			continue
		}
		if slices.ContainsFunc(values, Value.IsBinary) {
			continue
		}
		for _, v := range values {
			clauses = append(clauses, Eq(name, v.String()))
		}
	}
	return And(clauses...)
}

// writeOnlyAttributes are stored in a form that never reads back as written.
var writeOnlyAttributes = []string{"userpassword", "unicodepwd"}

func isWriteOnly(name string) bool {
	return slices.Contains(writeOnlyAttributes, foldName(name))
}

// refreshVersion rereads the entry after a write to pick up its new token.
// The token is installed only when the entry reads back as the loaded
// snapshot. Otherwise another client wrote in between and the token is
// cleared, leaving the next save guarded by its value assertions.
func (o *Object) refreshVersion(ctx context.Context) {
	attr := o.versionAttribute()
	if attr == "" {
		return
	}

	o.version = ""
	e, err := o.fetch(ctx, "refresh_version")
	if err != nil {
		return
	}

	token := e.First(attr)
	e.RemoveAll(attr)
	if !sameContent(e, o.loaded) {
		tflog.SubsystemDebug(ctx, subsystem, "Entry changed after write, version token discarded", map[string]any{
			"dn": o.dn,
		})
		return
	}
	o.version = token
}

// sameContent compares two entries the way the server does: names and text
// values case-insensitively, write-only attributes ignored.
func sameContent(a, b *Entry) bool {
	ak, bk := writableKeys(a), writableKeys(b)
	if !slices.Equal(ak, bk) {
		return false
	}
	for _, k := range ak {
		av, bv := a.attrs[k].values, b.attrs[k].values
		if len(av) != len(bv) {
			return false
		}
		for _, v := range av {
			if !b.HasValue(k, v) {
				return false
			}
		}
	}
	return true
}

func writableKeys(e *Entry) []string {
	return slices.DeleteFunc(e.keys(), isWriteOnly)
}

// Create adds the entry. The type's create objectclasses are merged into
// attrs, then defaults fill required attributes the caller left unset. The
// RDN attribute must already carry the DN's RDN value.
func (o *Object) Create(ctx context.Context, attrs map[string][]Value) error {
	if err := o.checkLive("create"); err != nil {
		return err
	}
	if o.state == StateLoaded {
		return NewError(KindAlreadyExists, "create", o.dn, "entry already exists")
	}

	e := NewEntry(o.dn)
	for name, values := range attrs {
		e.Add(name, values...)
	}
	for _, oc := range o.typ.CreateObjectClasses {
		if !e.HasValue("objectClass", Text(oc)) {
			e.Add("objectClass", Text(oc))
		}
	}
	for name, values := range o.typ.Defaults {
		if !e.Has(name) {
			e.Set(name, Texts(values...)...)
		}
	}

	if err := o.validate("create", e); err != nil {
		return err
	}

	raw := Encode(e)
	fields := map[string]any{"attributes": len(raw.Attributes)}
	return logOperation(ctx, "create", o.dn, fields, func() error {
		err := callBackend(ctx, o.opts.Timeout, "create", o.dn, func(ctx context.Context) error {
			return o.backend.Add(ctx, o.dn, raw.Attributes)
		})
		if err != nil {
			return err
		}

		o.setLoaded(e)
		o.refreshVersion(ctx)
		return nil
	})
}

// Delete removes the entry. Protected types fail without contacting the
// backend. An object that was never loaded is first read to confirm the entry
// is of its type. After a successful delete the object is stale.
func (o *Object) Delete(ctx context.Context) error {
	if err := o.checkLive("delete"); err != nil {
		return err
	}
	if o.typ.Protected {
		return NewError(KindProtected, "delete", o.dn, fmt.Sprintf("%s entries are protected from deletion", o.typ.Name))
	}

	return logOperation(ctx, "delete", o.dn, nil, func() error {
		if o.state == StateUnloaded {
			if _, err := o.fetch(ctx, "delete"); err != nil {
				return err
			}
		}

		err := callBackend(ctx, o.opts.Timeout, "delete", o.dn, func(ctx context.Context) error {
			return o.backend.Delete(ctx, o.dn)
		})
		if err != nil {
			return err
		}

		o.state = StateStale
		o.loaded = nil
		o.pending = nil
		o.version = ""
		return nil
	})
}

// Rename changes the RDN value within the same parent. The old RDN value is
// removed from the RDN attribute. Pending edits must be saved first.
func (o *Object) Rename(ctx context.Context, newValue string) error {
	if err := o.checkLive("rename"); err != nil {
		return err
	}

	renamer, ok := o.backend.(Renamer)
	if !ok {
		return validationError("rename", o.dn, "backend does not support rename")
	}
	if len(o.Changes()) > 0 {
		return validationError("rename", o.dn, "object has unsaved changes")
	}
	if strings.TrimSpace(newValue) == "" {
		return validationError("rename", o.dn, "new RDN value cannot be empty")
	}

	rdnAttr, oldValue, err := RDN(o.dn)
	if err != nil {
		return validationError("rename", o.dn, "%v", err)
	}
	parent, err := ParentDN(o.dn)
	if err != nil {
		return validationError("rename", o.dn, "%v", err)
	}

	newRDN := JoinDN(rdnAttr, newValue, "")
	newDN := JoinDN(rdnAttr, newValue, parent)
	fields := map[string]any{"new_dn": newDN}

	return logOperation(ctx, "rename", o.dn, fields, func() error {
		err := callBackend(ctx, o.opts.Timeout, "rename", o.dn, func(ctx context.Context) error {
			return renamer.Rename(ctx, o.dn, newRDN)
		})
		if err != nil {
			return err
		}

		o.dn = newDN
		if o.state == StateLoaded {
			for _, e := range []*Entry{o.loaded, o.pending} {
				e.DN = newDN
				e.RemoveValue(rdnAttr, Text(oldValue))
				e.Add(rdnAttr, Text(newValue))
			}
			o.refreshVersion(ctx)
		}
		return nil
	})
}

// Children returns the collection of entries directly below this one, typed
// by the entry type's child declaration.
func (o *Object) Children() (*Collection, error) {
	if err := o.checkLive("children"); err != nil {
		return nil, err
	}
	if o.typ.Child == "" {
		return nil, validationError("children", o.dn, "%s entries have no child type", o.typ.Name)
	}
	if o.opts.Registry == nil {
		return nil, validationError("children", o.dn, "no registry configured to resolve child type %q", o.typ.Child)
	}

	child, err := o.opts.Registry.Lookup(o.typ.Child)
	if err != nil {
		return nil, WrapError("children", o.dn, err)
	}

	opts := o.opts
	opts.Scope = ScopeOneLevel
	return newCollection(o.backend, child, o.dn, opts), nil
}
