package acl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store. It is suitable
// for tests, development, and single-instance deployments; use the
// aclgorm package for persistent storage.
//
// Update takes a snapshot of the whole state and swaps it in only if
// the transaction function succeeds, so a failed mutation leaves no
// partial writes behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := s.state.clone()
	if err := fn(memoryTx{clone}); err != nil {
		return err
	}
	s.state = clone
	return nil
}

func (s *MemoryStore) SaveDirectGrant(ctx context.Context, principal, path string, g Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaveDirectGrant(ctx, principal, path, g)
}

func (s *MemoryStore) GetDirectGrant(ctx context.Context, principal, path string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetDirectGrant(ctx, principal, path)
}

func (s *MemoryStore) DeleteDirectGrant(ctx context.Context, principal, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteDirectGrant(ctx, principal, path)
}

func (s *MemoryStore) DirectGrantsByPrincipal(ctx context.Context, principal string, rng Range) ([]PathGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.DirectGrantsByPrincipal(ctx, principal, rng)
}

func (s *MemoryStore) SavePrincipalRole(ctx context.Context, principal, role string, g Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SavePrincipalRole(ctx, principal, role, g)
}

func (s *MemoryStore) GetPrincipalRole(ctx context.Context, principal, role string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetPrincipalRole(ctx, principal, role)
}

func (s *MemoryStore) DeletePrincipalRole(ctx context.Context, principal, role string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeletePrincipalRole(ctx, principal, role)
}

func (s *MemoryStore) RolesByPrincipal(ctx context.Context, principal string) ([]RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RolesByPrincipal(ctx, principal)
}

func (s *MemoryStore) SaveRolePath(ctx context.Context, role, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaveRolePath(ctx, role, path)
}

func (s *MemoryStore) HasRolePath(ctx context.Context, role, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.HasRolePath(ctx, role, path)
}

func (s *MemoryStore) DeleteRolePath(ctx context.Context, role, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteRolePath(ctx, role, path)
}

func (s *MemoryStore) PathsByRole(ctx context.Context, role string, rng Range) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.PathsByRole(ctx, role, rng)
}

func (s *MemoryStore) RolesByPath(ctx context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RolesByPath(ctx, path)
}

func (s *MemoryStore) SaveRoleInfo(ctx context.Context, info RoleInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaveRoleInfo(ctx, info)
}

func (s *MemoryStore) GetRoleInfo(ctx context.Context, name string) (*RoleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetRoleInfo(ctx, name)
}

func (s *MemoryStore) RoleInfos(ctx context.Context) ([]RoleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RoleInfos(ctx)
}

func (s *MemoryStore) IncrementPathRef(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IncrementPathRef(ctx, path)
}

func (s *MemoryStore) DecrementPathRef(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DecrementPathRef(ctx, path)
}

func (s *MemoryStore) ReferencedPaths(ctx context.Context, rng Range) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ReferencedPaths(ctx, rng)
}

func (s *MemoryStore) SaveMetadata(ctx context.Context, m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaveMetadata(ctx, m)
}

func (s *MemoryStore) GetMetadata(ctx context.Context) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetMetadata(ctx)
}

// memoryTx is the transactional view handed to Update callbacks. The
// outer store holds the write lock for the duration, so no locking is
// needed here. A nested Update reuses the same transaction.
type memoryTx struct {
	*memoryState
}

func (tx memoryTx) Update(ctx context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

// memoryState holds the five logical indices plus role and instance
// metadata. All methods assume the caller serializes access.
type memoryState struct {
	direct    map[string]map[string]Grant // principal -> path -> grant
	proles    map[string]map[string]Grant // principal -> role -> grant
	rolePaths map[string]map[string]bool  // role -> set of paths
	pathRoles map[string]map[string]bool  // path -> set of roles (reverse)
	refs      map[string]uint32           // path -> reference count
	roles     map[string]RoleInfo
	meta      *Metadata
}

func newMemoryState() *memoryState {
	return &memoryState{
		direct:    make(map[string]map[string]Grant),
		proles:    make(map[string]map[string]Grant),
		rolePaths: make(map[string]map[string]bool),
		pathRoles: make(map[string]map[string]bool),
		refs:      make(map[string]uint32),
		roles:     make(map[string]RoleInfo),
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		direct:    cloneNested(st.direct),
		proles:    cloneNested(st.proles),
		rolePaths: cloneNested(st.rolePaths),
		pathRoles: cloneNested(st.pathRoles),
		refs:      make(map[string]uint32, len(st.refs)),
		roles:     make(map[string]RoleInfo, len(st.roles)),
	}
	for k, v := range st.refs {
		c.refs[k] = v
	}
	for k, v := range st.roles {
		c.roles[k] = v
	}
	if st.meta != nil {
		m := *st.meta
		c.meta = &m
	}
	return c
}

func cloneNested[V any](src map[string]map[string]V) map[string]map[string]V {
	dst := make(map[string]map[string]V, len(src))
	for k, inner := range src {
		m := make(map[string]V, len(inner))
		for ik, iv := range inner {
			m[ik] = iv
		}
		dst[k] = m
	}
	return dst
}

func (st *memoryState) SaveDirectGrant(_ context.Context, principal, path string, g Grant) (bool, error) {
	grants, ok := st.direct[principal]
	if !ok {
		grants = make(map[string]Grant)
		st.direct[principal] = grants
	}
	_, existed := grants[path]
	grants[path] = g
	return !existed, nil
}

func (st *memoryState) GetDirectGrant(_ context.Context, principal, path string) (*Grant, error) {
	if g, ok := st.direct[principal][path]; ok {
		return &g, nil
	}
	return nil, nil
}

func (st *memoryState) DeleteDirectGrant(_ context.Context, principal, path string) (bool, error) {
	if _, ok := st.direct[principal][path]; !ok {
		return false, nil
	}
	delete(st.direct[principal], path)
	return true, nil
}

func (st *memoryState) DirectGrantsByPrincipal(_ context.Context, principal string, rng Range) ([]PathGrant, error) {
	grants := st.direct[principal]
	result := make([]PathGrant, 0, len(grants))
	for _, p := range orderedKeys(grants, rng) {
		g := grants[p]
		result = append(result, PathGrant{Path: p, ExpiresAt: g.ExpiresAt})
	}
	return result, nil
}

func (st *memoryState) SavePrincipalRole(_ context.Context, principal, role string, g Grant) (bool, error) {
	grants, ok := st.proles[principal]
	if !ok {
		grants = make(map[string]Grant)
		st.proles[principal] = grants
	}
	_, existed := grants[role]
	grants[role] = g
	return !existed, nil
}

func (st *memoryState) GetPrincipalRole(_ context.Context, principal, role string) (*Grant, error) {
	if g, ok := st.proles[principal][role]; ok {
		return &g, nil
	}
	return nil, nil
}

func (st *memoryState) DeletePrincipalRole(_ context.Context, principal, role string) (bool, error) {
	if _, ok := st.proles[principal][role]; !ok {
		return false, nil
	}
	delete(st.proles[principal], role)
	return true, nil
}

func (st *memoryState) RolesByPrincipal(_ context.Context, principal string) ([]RoleGrant, error) {
	grants := st.proles[principal]
	result := make([]RoleGrant, 0, len(grants))
	for _, r := range orderedKeys(grants, Range{}) {
		g := grants[r]
		result = append(result, RoleGrant{Role: r, ExpiresAt: g.ExpiresAt})
	}
	return result, nil
}

func (st *memoryState) SaveRolePath(_ context.Context, role, path string) (bool, error) {
	if st.rolePaths[role][path] {
		return false, nil
	}
	if st.rolePaths[role] == nil {
		st.rolePaths[role] = make(map[string]bool)
	}
	if st.pathRoles[path] == nil {
		st.pathRoles[path] = make(map[string]bool)
	}
	st.rolePaths[role][path] = true
	st.pathRoles[path][role] = true
	return true, nil
}

func (st *memoryState) HasRolePath(_ context.Context, role, path string) (bool, error) {
	return st.rolePaths[role][path], nil
}

func (st *memoryState) DeleteRolePath(_ context.Context, role, path string) (bool, error) {
	if !st.rolePaths[role][path] {
		return false, nil
	}
	delete(st.rolePaths[role], path)
	delete(st.pathRoles[path], role)
	return true, nil
}

func (st *memoryState) PathsByRole(_ context.Context, role string, rng Range) ([]string, error) {
	return orderedKeys(st.rolePaths[role], rng), nil
}

func (st *memoryState) RolesByPath(_ context.Context, path string) ([]string, error) {
	return orderedKeys(st.pathRoles[path], Range{}), nil
}

func (st *memoryState) SaveRoleInfo(_ context.Context, info RoleInfo) error {
	st.roles[info.Name] = info
	return nil
}

func (st *memoryState) GetRoleInfo(_ context.Context, name string) (*RoleInfo, error) {
	if info, ok := st.roles[name]; ok {
		return &info, nil
	}
	return nil, nil
}

func (st *memoryState) RoleInfos(_ context.Context) ([]RoleInfo, error) {
	result := make([]RoleInfo, 0, len(st.roles))
	for _, name := range orderedKeys(st.roles, Range{}) {
		result = append(result, st.roles[name])
	}
	return result, nil
}

func (st *memoryState) IncrementPathRef(_ context.Context, path string) error {
	st.refs[path]++
	return nil
}

func (st *memoryState) DecrementPathRef(_ context.Context, path string) error {
	n, ok := st.refs[path]
	if !ok || n == 0 {
		return fmt.Errorf("%w: reference count underflow for path %s", ErrCorrupt, path)
	}
	if n == 1 {
		delete(st.refs, path)
		return nil
	}
	st.refs[path] = n - 1
	return nil
}

func (st *memoryState) ReferencedPaths(_ context.Context, rng Range) ([]string, error) {
	return orderedKeys(st.refs, rng), nil
}

func (st *memoryState) SaveMetadata(_ context.Context, m Metadata) error {
	st.meta = &m
	return nil
}

func (st *memoryState) GetMetadata(_ context.Context) (*Metadata, error) {
	if st.meta == nil {
		return nil, nil
	}
	m := *st.meta
	return &m, nil
}

// orderedKeys returns the keys of m that fall inside rng, ascending,
// capped at rng.Limit.
func orderedKeys[V any](m map[string]V, rng Range) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if rng.Contains(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if rng.Limit > 0 && len(keys) > rng.Limit {
		keys = keys[:rng.Limit]
	}
	return keys
}

// Compile-time interface checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = memoryTx{}
)
