// Package memdir provides an in-memory directory implementing the mapping
// backend interfaces. It backs unit tests of everything above the backend.
package memdir

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

const (
	// DefaultVersionAttribute is the operational attribute maintained on every
	// write.
	DefaultVersionAttribute = "modifyTimestamp"

	subsystem = "memdir"
)

// Op names a backend operation for call accounting and error injection.
type Op string

const (
	OpSearch Op = "search"
	OpAdd    Op = "add"
	OpModify Op = "modify"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

type record struct {
	entry   *mapping.Entry
	version string
}

// Directory is a thread-safe in-memory DIT.
type Directory struct {
	mu sync.Mutex

	entries   map[string]*record // keyed by normalized DN
	suffixes  []string
	versioned bool
	serial    uint64

	calls    map[Op]int
	failures map[Op][]error
}

// Option configures a Directory.
type Option func(*Directory)

// WithSuffix declares a naming context. Its root entry may be added without a
// parent.
func WithSuffix(dn string) Option {
	return func(d *Directory) {
		if n, err := mapping.NormalizeDN(dn); err == nil {
			d.suffixes = append(d.suffixes, n)
		}
	}
}

// WithoutVersioning disables conditional modifies so the directory behaves
// like a server without the assertion control.
func WithoutVersioning() Option {
	return func(d *Directory) {
		d.versioned = false
	}
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		entries:   make(map[string]*record),
		versioned: true,
		calls:     make(map[Op]int),
		failures:  make(map[Op][]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var (
	_ mapping.Backend          = (*Directory)(nil)
	_ mapping.VersionedBackend = (*Directory)(nil)
	_ mapping.Renamer          = (*Directory)(nil)
)

// Seed stores entries without parent checks or call accounting.
func (d *Directory) Seed(entries ...*mapping.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range entries {
		key, err := mapping.NormalizeDN(e.DN)
		if err != nil {
			return mapping.NewError(mapping.KindValidation, "seed", e.DN, err.Error())
		}
		d.entries[key] = &record{entry: e.Clone(), version: d.nextVersion()}
	}
	return nil
}

// Calls returns how many times op was invoked.
func (d *Directory) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// TotalCalls returns the number of backend calls of any kind.
func (d *Directory) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

// ResetCalls zeroes the call counters.
func (d *Directory) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.calls)
}

// FailNext makes the next call of op return err instead of executing.
func (d *Directory) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], err)
}

// Entry returns a copy of the entry at dn.
func (d *Directory) Entry(dn string) (*mapping.Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, err := mapping.NormalizeDN(dn)
	if err != nil {
		return nil, false
	}
	r, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	return d.withVersion(r), true
}

// Len returns the number of stored entries.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// VersionAttribute implements mapping.VersionedBackend.
func (d *Directory) VersionAttribute() string {
	if !d.versioned {
		return ""
	}
	return DefaultVersionAttribute
}

// begin accounts for a call and returns any injected failure. The caller
// holds d.mu.
func (d *Directory) begin(ctx context.Context, op Op, dn string) error {
	d.calls[op]++
	tflog.SubsystemTrace(ctx, subsystem, "Backend call", map[string]any{"operation": string(op), "dn": dn})

	if err := ctx.Err(); err != nil {
		return err
	}
	if queue := d.failures[op]; len(queue) > 0 {
		err := queue[0]
		d.failures[op] = queue[1:]
		return err
	}
	return nil
}

func (d *Directory) nextVersion() string {
	d.serial++
	return fmt.Sprintf("%s.%06dZ", time.Now().UTC().Format("20060102150405"), d.serial)
}

func (d *Directory) withVersion(r *record) *mapping.Entry {
	e := r.entry.Clone()
	if d.versioned {
		e.Set(DefaultVersionAttribute, mapping.Text(r.version))
	}
	return e
}

func (d *Directory) lookup(op, dn string) (string, *record, error) {
	key, err := mapping.NormalizeDN(dn)
	if err != nil {
		return "", nil, mapping.NewError(mapping.KindValidation, op, dn, err.Error())
	}
	r, ok := d.entries[key]
	if !ok {
		return key, nil, mapping.NewError(mapping.KindNotFound, op, dn, "no such object")
	}
	return key, r, nil
}

func (d *Directory) hasChildren(key string) bool {
	for k := range d.entries {
		if mapping.DNDepth(k, key) > 0 {
			return true
		}
	}
	return false
}

// Search implements mapping.Backend. A missing base entry is KindNotFound.
func (d *Directory) Search(ctx context.Context, req *mapping.SearchRequest) ([]mapping.RawEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpSearch, req.BaseDN); err != nil {
		return nil, err
	}

	baseKey, _, err := d.lookup("search", req.BaseDN)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var results []mapping.RawEntry
	for _, k := range keys {
		if !inScope(k, baseKey, req.Scope) {
			continue
		}

		e := d.withVersion(d.entries[k])
		if req.Filter != nil && !req.Filter.Matches(e) {
			continue
		}

		results = append(results, project(e, req.Attributes))
		if req.SizeLimit > 0 && len(results) >= req.SizeLimit {
			break
		}
	}

	return results, nil
}

func inScope(key, baseKey string, scope mapping.Scope) bool {
	depth := mapping.DNDepth(key, baseKey)
	switch scope {
	case mapping.ScopeBase:
		return depth == 0
	case mapping.ScopeOneLevel:
		return depth == 1
	case mapping.ScopeSubtree:
		return depth >= 0
	default:
		return false
	}
}

// project keeps the requested attributes. No list or "*" returns user
// attributes; the version attribute is operational and must be named.
func project(e *mapping.Entry, attrs []string) mapping.RawEntry {
	all := len(attrs) == 0 || slices.Contains(attrs, "*")
	out := mapping.NewEntry(e.DN)
	for _, name := range e.Names() {
		requested := slices.ContainsFunc(attrs, func(a string) bool { return strings.EqualFold(a, name) })
		operational := strings.EqualFold(name, DefaultVersionAttribute)
		if requested || (all && !operational) || (operational && slices.Contains(attrs, "+")) {
			out.Set(name, e.Get(name)...)
		}
	}
	return mapping.Encode(out)
}

func decodeAttributes(op, dn string, attrs []mapping.RawAttribute) (*mapping.Entry, error) {
	e, err := mapping.Decode(mapping.RawEntry{DN: dn, Attributes: attrs})
	if err != nil {
		return nil, mapping.WrapError(op, dn, err)
	}
	return e, nil
}

// Add implements mapping.Backend. The parent must exist unless dn is a
// declared suffix.
func (d *Directory) Add(ctx context.Context, dn string, attrs []mapping.RawAttribute) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpAdd, dn); err != nil {
		return err
	}

	key, err := mapping.NormalizeDN(dn)
	if err != nil {
		return mapping.NewError(mapping.KindValidation, "add", dn, err.Error())
	}
	if _, ok := d.entries[key]; ok {
		return mapping.NewError(mapping.KindAlreadyExists, "add", dn, "entry already exists")
	}

	if !slices.Contains(d.suffixes, key) {
		parent, err := mapping.ParentDN(dn)
		if err != nil {
			return mapping.NewError(mapping.KindValidation, "add", dn, err.Error())
		}
		if _, _, err := d.lookup("add", parent); err != nil {
			return mapping.NewError(mapping.KindNotFound, "add", dn, "parent entry "+parent+" does not exist")
		}
	}

	e, err := decodeAttributes("add", dn, attrs)
	if err != nil {
		return err
	}
	if !e.Has("objectClass") {
		return mapping.NewError(mapping.KindValidation, "add", dn, "entry has no objectClass")
	}

	d.entries[key] = &record{entry: e, version: d.nextVersion()}
	return nil
}

// Modify implements mapping.Backend.
func (d *Directory) Modify(ctx context.Context, dn string, changes []mapping.AttributeChange) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpModify, dn); err != nil {
		return err
	}
	return d.modify(dn, nil, changes)
}

// ModifyIfUnchanged implements mapping.VersionedBackend. The assertion is
// evaluated against the stored entry, version attribute included, under the
// same lock as the write.
func (d *Directory) ModifyIfUnchanged(ctx context.Context, dn string, assertion mapping.Filter, changes []mapping.AttributeChange) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpModify, dn); err != nil {
		return err
	}
	return d.modify(dn, assertion, changes)
}

func (d *Directory) modify(dn string, assertion mapping.Filter, changes []mapping.AttributeChange) error {
	_, r, err := d.lookup("modify", dn)
	if err != nil {
		return err
	}
	if assertion != nil && !assertion.Matches(d.withVersion(r)) {
		return mapping.NewError(mapping.KindConflict, "modify", dn, "entry changed since it was read")
	}

	next := mapping.Apply(r.entry, changes)
	if !next.Has("objectClass") {
		return mapping.NewError(mapping.KindValidation, "modify", dn, "objectClass cannot be removed")
	}

	r.entry = next
	r.version = d.nextVersion()
	return nil
}

// Delete implements mapping.Backend. Entries with children cannot be deleted.
func (d *Directory) Delete(ctx context.Context, dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpDelete, dn); err != nil {
		return err
	}

	key, _, err := d.lookup("delete", dn)
	if err != nil {
		return err
	}
	if d.hasChildren(key) {
		return mapping.NewError(mapping.KindConflict, "delete", dn, "operation not allowed on non-leaf entry")
	}

	delete(d.entries, key)
	return nil
}

// Rename implements mapping.Renamer. The old RDN value is removed from the
// entry, matching modrdn with deleteoldrdn set. Only leaf entries move.
func (d *Directory) Rename(ctx context.Context, dn, newRDN string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(ctx, OpRename, dn); err != nil {
		return err
	}

	key, r, err := d.lookup("rename", dn)
	if err != nil {
		return err
	}
	if d.hasChildren(key) {
		return mapping.NewError(mapping.KindConflict, "rename", dn, "operation not allowed on non-leaf entry")
	}

	oldAttr, oldValue, err := mapping.RDN(dn)
	if err != nil {
		return mapping.NewError(mapping.KindValidation, "rename", dn, err.Error())
	}
	newAttr, newValue, err := mapping.RDN(newRDN)
	if err != nil {
		return mapping.NewError(mapping.KindValidation, "rename", dn, err.Error())
	}
	parent, err := mapping.ParentDN(dn)
	if err != nil {
		return mapping.NewError(mapping.KindValidation, "rename", dn, err.Error())
	}

	newDN := mapping.JoinDN(newAttr, newValue, parent)
	newKey, err := mapping.NormalizeDN(newDN)
	if err != nil {
		return mapping.NewError(mapping.KindValidation, "rename", dn, err.Error())
	}
	if _, ok := d.entries[newKey]; ok && newKey != key {
		return mapping.NewError(mapping.KindAlreadyExists, "rename", newDN, "entry already exists")
	}

	e := r.entry.Clone()
	e.DN = newDN
	e.RemoveValue(oldAttr, mapping.Text(oldValue))
	e.Add(newAttr, mapping.Text(newValue))

	delete(d.entries, key)
	d.entries[newKey] = &record{entry: e, version: d.nextVersion()}
	return nil
}
