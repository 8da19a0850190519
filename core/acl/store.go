package acl

import "context"

// Range bounds an ordered key traversal. Keys are compared as strings,
// ascending. The zero value is unbounded and unlimited.
//
// Bound conventions, used consistently by every implementation:
//   - Start is inclusive
//   - Stop is inclusive
//   - After is exclusive, and takes precedence over Start (it is the
//     cursor position of a resumed page)
//   - Limit caps the number of keys returned; 0 means no cap
type Range struct {
	After string
	Start string
	Stop  string
	Limit int
}

// Contains reports whether key falls within the range bounds.
func (r Range) Contains(key string) bool {
	if r.After != "" && key <= r.After {
		return false
	}
	if r.After == "" && r.Start != "" && key < r.Start {
		return false
	}
	if r.Stop != "" && key > r.Stop {
		return false
	}
	return true
}

// Store is the persistence contract for the engine: five ordered logical
// indices plus role metadata and the ACL instance record.
//
// Mutating engine operations run inside Update, which must apply either
// every write or none. Methods that create records report whether the
// record was new, so the caller can maintain the path reference count
// exactly once per distinct referencing pair.
//
// The reverse index (path -> roles) is maintained by the store itself as
// part of SaveRolePath / DeleteRolePath, so forward and reverse can
// never diverge.
type Store interface {
	// Update runs fn against a transactional view of the store. If fn
	// returns an error, no write made inside fn is visible afterward.
	Update(ctx context.Context, fn func(tx Store) error) error

	// Direct principal -> path grants.
	SaveDirectGrant(ctx context.Context, principal, path string, g Grant) (created bool, err error)
	GetDirectGrant(ctx context.Context, principal, path string) (*Grant, error)
	DeleteDirectGrant(ctx context.Context, principal, path string) (existed bool, err error)
	DirectGrantsByPrincipal(ctx context.Context, principal string, rng Range) ([]PathGrant, error)

	// Principal -> role assignments.
	SavePrincipalRole(ctx context.Context, principal, role string, g Grant) (created bool, err error)
	GetPrincipalRole(ctx context.Context, principal, role string) (*Grant, error)
	DeletePrincipalRole(ctx context.Context, principal, role string) (existed bool, err error)
	RolesByPrincipal(ctx context.Context, principal string) ([]RoleGrant, error)

	// Role -> path pairs, bidirectionally indexed.
	SaveRolePath(ctx context.Context, role, path string) (created bool, err error)
	HasRolePath(ctx context.Context, role, path string) (bool, error)
	DeleteRolePath(ctx context.Context, role, path string) (existed bool, err error)
	PathsByRole(ctx context.Context, role string, rng Range) ([]string, error)
	RolesByPath(ctx context.Context, path string) ([]string, error)

	// Role metadata, ordered by name.
	SaveRoleInfo(ctx context.Context, info RoleInfo) error
	GetRoleInfo(ctx context.Context, name string) (*RoleInfo, error)
	RoleInfos(ctx context.Context) ([]RoleInfo, error)

	// Path reference counts. DecrementPathRef removes the entry when the
	// count reaches zero and returns ErrCorrupt if the entry is absent:
	// a decrement without a matching increment is a bookkeeping bug.
	IncrementPathRef(ctx context.Context, path string) error
	DecrementPathRef(ctx context.Context, path string) error
	ReferencedPaths(ctx context.Context, rng Range) ([]string, error)

	// ACL instance record. GetMetadata returns (nil, nil) before
	// initialization.
	SaveMetadata(ctx context.Context, m Metadata) error
	GetMetadata(ctx context.Context) (*Metadata, error)
}
