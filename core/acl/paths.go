package acl

import (
	"context"
	"fmt"
	"sort"

	"github.com/pathkeep/pathkeep/core/path"
)

// Pagination limits for Paths.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

// PathsParams selects and bounds a path enumeration.
//
// Ordering is lexicographic by path, ascending. Start and Stop are
// inclusive bounds on the path range; Cursor resumes exactly after the
// last item of the previous page and overrides Start. Limit defaults to
// DefaultPageLimit and is capped at MaxPageLimit.
type PathsParams struct {
	Subject Subject
	Limit   int
	Start   string
	Stop    string
	Cursor  string
}

// PathsPage is one page of enumerated paths. Cursor is set when another
// page may follow; passing it back continues the traversal without
// duplicates or omissions.
type PathsPage struct {
	Paths  []PathGrant `json:"paths"`
	Cursor string      `json:"cursor,omitempty"`
}

// Paths enumerates authorized paths for a subject:
//
//   - SubjectACL: every path with a nonzero reference count
//   - SubjectRole: the paths directly associated with the role
//     (ErrNotFound if the role is absent)
//   - SubjectPrincipal: the union of the principal's direct grants and
//     the paths of every role assigned to it, annotated with expiries;
//     expired-but-unrevoked grants are included with their past expiry
//
// Concatenating successive pages with no mutation in between yields one
// complete, duplicate-free traversal.
func (e *Engine) Paths(ctx context.Context, p PathsParams) (*PathsPage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	rng, err := pageRange(p, limit)
	if err != nil {
		return nil, err
	}

	var items []PathGrant
	switch p.Subject.Kind {
	case SubjectACL:
		paths, err := e.store.ReferencedPaths(ctx, rng)
		if err != nil {
			return nil, err
		}
		items = bare(paths)

	case SubjectRole:
		if err := requireRole(ctx, e.store, p.Subject.Name); err != nil {
			return nil, err
		}
		paths, err := e.store.PathsByRole(ctx, p.Subject.Name, rng)
		if err != nil {
			return nil, err
		}
		items = bare(paths)

	case SubjectPrincipal:
		items, err = e.principalPaths(ctx, p.Subject.Name, rng)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidInput, p.Subject.Kind)
	}

	page := &PathsPage{Paths: items}
	// A full page may have more behind it; resume after its last path.
	if len(items) == limit {
		page.Cursor = items[len(items)-1].Path
	}
	return page, nil
}

// principalPaths merges the principal's direct grants with the path sets
// of all its roles. Each source is already bounded and limited, so
// merging and re-cutting to the page limit preserves pagination
// completeness. When a path is reachable through several grants, the
// longest-lived expiry wins (a grant without expiry beats any expiry).
func (e *Engine) principalPaths(ctx context.Context, principal string, rng Range) ([]PathGrant, error) {
	merged := make(map[string]*PathGrant)

	direct, err := e.store.DirectGrantsByPrincipal(ctx, principal, rng)
	if err != nil {
		return nil, err
	}
	for _, g := range direct {
		mergeGrant(merged, g)
	}

	roles, err := e.store.RolesByPrincipal(ctx, principal)
	if err != nil {
		return nil, err
	}
	for _, rg := range roles {
		paths, err := e.store.PathsByRole(ctx, rg.Role, rng)
		if err != nil {
			return nil, err
		}
		for _, rp := range paths {
			mergeGrant(merged, PathGrant{Path: rp, ExpiresAt: rg.ExpiresAt})
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if rng.Limit > 0 && len(keys) > rng.Limit {
		keys = keys[:rng.Limit]
	}

	items := make([]PathGrant, len(keys))
	for i, k := range keys {
		items[i] = *merged[k]
	}
	return items, nil
}

func mergeGrant(merged map[string]*PathGrant, g PathGrant) {
	existing, ok := merged[g.Path]
	if !ok {
		merged[g.Path] = &PathGrant{Path: g.Path, ExpiresAt: g.ExpiresAt}
		return
	}
	if existing.ExpiresAt == nil {
		return
	}
	if g.ExpiresAt == nil || g.ExpiresAt.After(*existing.ExpiresAt) {
		existing.ExpiresAt = g.ExpiresAt
	}
}

func pageRange(p PathsParams, limit int) (Range, error) {
	rng := Range{Limit: limit, After: p.Cursor}
	var err error
	if p.Start != "" {
		if rng.Start, err = path.Normalize(p.Start); err != nil {
			return rng, err
		}
	}
	if p.Stop != "" {
		if rng.Stop, err = path.Normalize(p.Stop); err != nil {
			return rng, err
		}
	}
	return rng, nil
}

func bare(paths []string) []PathGrant {
	items := make([]PathGrant, len(paths))
	for i, cp := range paths {
		items[i] = PathGrant{Path: cp}
	}
	return items
}
