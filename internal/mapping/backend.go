package mapping

import "context"

// Scope is the depth of a search relative to its base DN.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseScope converts base, one/onelevel or sub/subtree into a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel", "one-level":
		return ScopeOneLevel, nil
	case "sub", "subtree", "":
		return ScopeSubtree, nil
	default:
		return 0, validationError("parse_scope", "", "unknown search scope %q", s)
	}
}

// SearchRequest describes a single search.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     Filter   // nil means (objectClass=*)
	Attributes []string // nil means all user attributes
	SizeLimit  int
}

// FilterString renders the request filter, defaulting to (objectClass=*).
func (r *SearchRequest) FilterString() string {
	if r.Filter == nil {
		return "(objectClass=*)"
	}
	return r.Filter.String()
}

// Backend performs raw directory operations. Implementations are not required
// to be safe for concurrent use; callers serialise access or use one backend
// per goroutine.
//
// Search returns an empty slice, not an error, when nothing matches. Add fails
// with KindAlreadyExists when the DN is occupied; Modify and Delete fail with
// KindNotFound when it is not. Transport failures are KindConnection.
type Backend interface {
	Search(ctx context.Context, req *SearchRequest) ([]RawEntry, error)
	Add(ctx context.Context, dn string, attrs []RawAttribute) error
	Modify(ctx context.Context, dn string, changes []AttributeChange) error
	Delete(ctx context.Context, dn string) error
}

// VersionedBackend is implemented by backends able to perform a modify that
// only succeeds when the entry still satisfies an assertion.
//
// VersionAttribute names the operational attribute carrying the change token,
// or "" when the capability was not detected. ModifyIfUnchanged applies
// changes atomically only if the entry at dn matches assertion, and fails
// with KindConflict when it does not.
type VersionedBackend interface {
	Backend
	VersionAttribute() string
	ModifyIfUnchanged(ctx context.Context, dn string, assertion Filter, changes []AttributeChange) error
}

// Renamer is implemented by backends supporting modrdn within the same parent.
// newRDN is a complete RDN such as "cn=web02".
type Renamer interface {
	Rename(ctx context.Context, dn, newRDN string) error
}
