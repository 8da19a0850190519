// Package acl implements a hierarchical, role-aware access-control engine.
//
// Authorization combines direct principal-to-path grants and role-to-path
// grants, both optionally time-bounded. Paths inherit down the tree: a
// grant on "/api" authorizes "/api/users/123" and everything else beneath
// it. Expiry is evaluated lazily against a caller-supplied clock; expired
// grants stop authorizing immediately but remain in storage until revoked.
//
// The package provides:
//   - Store: the persistence contract (five logical indices)
//   - MemoryStore: in-memory Store for tests and single-instance use
//   - Engine: mutations, the resolution algorithm, role lifecycle, and
//     cursor-paginated path enumeration
//   - Operator / Checker: the identity permitted to call mutations
//
// See the aclgorm package for a GORM-backed Store.
package acl

import "time"

// Length limits for ACL and role names and descriptions.
const (
	MaxNameLen = 100
	MaxDescLen = 1000
)

// Grant is an authorization record with an optional expiry.
// A nil ExpiresAt never expires.
type Grant struct {
	ExpiresAt *time.Time
}

// Active reports whether the grant authorizes at the given instant.
// A grant is inactive from its expiry onward.
func (g Grant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// PathGrant is a path together with the expiry of the grant that
// references it, as returned by path enumeration.
type PathGrant struct {
	Path      string     `json:"path"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RoleGrant is a role assignment held by a principal.
type RoleGrant struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RoleInfo is the stored metadata for a role.
type RoleInfo struct {
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
	NumPrincipals uint32    `json:"n_principals"`
}

// RoleSummary is RoleInfo annotated with a principal's assignment expiry
// when the query was scoped to a principal. The expiry is reported even
// if already past; authorization ignores expired assignments but
// enumeration reflects what is recorded.
type RoleSummary struct {
	RoleInfo
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Requirement selects how multiple path checks combine in IsAllowed.
type Requirement string

const (
	// RequireAll demands every path be authorized (AND). An empty path
	// list is vacuously authorized.
	RequireAll Requirement = "all"
	// RequireAny demands at least one path be authorized (OR). An empty
	// path list is never authorized.
	RequireAny Requirement = "any"
)

// SubjectKind discriminates path-enumeration subjects.
type SubjectKind string

const (
	SubjectACL       SubjectKind = "acl"
	SubjectRole      SubjectKind = "role"
	SubjectPrincipal SubjectKind = "principal"
)

// Subject identifies whose paths to enumerate: the whole ACL, a single
// role, or a principal. Name is empty for SubjectACL.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	Name string      `json:"name,omitempty"`
}

// Metadata is the ACL instance record written at initialization.
type Metadata struct {
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	Operator    Operator  `json:"operator"`
}
