package acl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pathkeep/pathkeep/core/path"
)

// CreateRoleParams describes a new role. Initial paths are granted
// atomically with the role itself.
type CreateRoleParams struct {
	Name        string
	Description string
	Paths       []string
	// CreatedBy is the principal creating the role, recorded in the
	// role's metadata.
	CreatedBy string
}

// CreateRole registers a new role. It returns ErrAlreadyExists if the
// name is taken. A role starts with zero principals; paths and
// assignments are mutated independently of its identity, and a role
// with neither remains a valid, queryable role.
func (e *Engine) CreateRole(ctx context.Context, now time.Time, p CreateRoleParams) error {
	if p.Name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if len(p.Name) > MaxNameLen {
		return fmt.Errorf("%w: role name cannot be longer than %d characters", ErrInvalidInput, MaxNameLen)
	}
	if len(p.Description) > MaxDescLen {
		return fmt.Errorf("%w: role description cannot be longer than %d characters", ErrInvalidInput, MaxDescLen)
	}

	// Normalize every initial path before any write, so a bad path
	// cannot leave a half-created role behind.
	canonical := make([]string, 0, len(p.Paths))
	for _, raw := range p.Paths {
		cp, err := path.Normalize(raw)
		if err != nil {
			return err
		}
		canonical = append(canonical, cp)
	}

	return e.store.Update(ctx, func(tx Store) error {
		existing, err := tx.GetRoleInfo(ctx, p.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: role %s already exists", ErrAlreadyExists, p.Name)
		}
		info := RoleInfo{
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   now,
			CreatedBy:   p.CreatedBy,
		}
		if err := tx.SaveRoleInfo(ctx, info); err != nil {
			return err
		}
		for _, cp := range canonical {
			if err := addRolePath(ctx, tx, p.Name, cp); err != nil {
				return err
			}
		}
		e.log.Info("role created",
			zap.String("role", p.Name),
			zap.Int("n_paths", len(canonical)),
		)
		return nil
	})
}

// AllowRolePath adds a path to a role, granting it to every principal
// holding the role. It returns ErrNotFound if the role does not exist.
func (e *Engine) AllowRolePath(ctx context.Context, role, rawPath string) error {
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		if err := requireRole(ctx, tx, role); err != nil {
			return err
		}
		if err := addRolePath(ctx, tx, role, canonical); err != nil {
			return err
		}
		e.log.Info("role path allowed",
			zap.String("role", role),
			zap.String("path", canonical),
		)
		return nil
	})
}

// DenyRolePath removes a path from a role. It returns ErrNotFound if
// the role or the pair does not exist.
func (e *Engine) DenyRolePath(ctx context.Context, role, rawPath string) error {
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		if err := requireRole(ctx, tx, role); err != nil {
			return err
		}
		existed, err := tx.DeleteRolePath(ctx, role, canonical)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("%w: role %s has no path %s", ErrNotFound, role, canonical)
		}
		if err := tx.DecrementPathRef(ctx, canonical); err != nil {
			return err
		}
		e.log.Info("role path denied",
			zap.String("role", role),
			zap.String("path", canonical),
		)
		return nil
	})
}

// GrantRole assigns a role to a principal with an optional TTL. The
// role's principal count grows only on the first assignment of the
// pair; re-granting overwrites the expiry. Returns ErrNotFound if the
// role does not exist.
func (e *Engine) GrantRole(ctx context.Context, now time.Time, principal, role string, ttl *time.Duration) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	expiresAt, err := expiryFromTTL(now, ttl)
	if err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		info, err := tx.GetRoleInfo(ctx, role)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: role %s does not exist", ErrNotFound, role)
		}
		created, err := tx.SavePrincipalRole(ctx, principal, role, Grant{ExpiresAt: expiresAt})
		if err != nil {
			return err
		}
		if created {
			info.NumPrincipals++
			if err := tx.SaveRoleInfo(ctx, *info); err != nil {
				return err
			}
		}
		e.log.Info("role granted",
			zap.String("principal", principal),
			zap.String("role", role),
			zap.Timep("expires_at", expiresAt),
		)
		return nil
	})
}

// RevokeRole removes a principal's role assignment, shrinking the
// role's principal count. Returns ErrNotFound if the role or the
// assignment does not exist.
func (e *Engine) RevokeRole(ctx context.Context, principal, role string) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}

	return e.store.Update(ctx, func(tx Store) error {
		info, err := tx.GetRoleInfo(ctx, role)
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("%w: role %s does not exist", ErrNotFound, role)
		}
		existed, err := tx.DeletePrincipalRole(ctx, principal, role)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("%w: %s does not hold role %s", ErrNotFound, principal, role)
		}
		if info.NumPrincipals == 0 {
			return fmt.Errorf("%w: principal count underflow for role %s", ErrCorrupt, role)
		}
		info.NumPrincipals--
		if err := tx.SaveRoleInfo(ctx, *info); err != nil {
			return err
		}
		e.log.Info("role revoked",
			zap.String("principal", principal),
			zap.String("role", role),
		)
		return nil
	})
}

// Role returns a single role's metadata, or ErrNotFound.
func (e *Engine) Role(ctx context.Context, name string) (*RoleSummary, error) {
	info, err := e.store.GetRoleInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: role %s does not exist", ErrNotFound, name)
	}
	return &RoleSummary{RoleInfo: *info}, nil
}

// Roles lists role summaries. With a principal it returns the roles the
// principal holds, each annotated with the assignment's expiry (past
// expiries included); with an empty principal it returns every role.
func (e *Engine) Roles(ctx context.Context, principal string) ([]RoleSummary, error) {
	if principal == "" {
		infos, err := e.store.RoleInfos(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]RoleSummary, len(infos))
		for i, info := range infos {
			summaries[i] = RoleSummary{RoleInfo: info}
		}
		return summaries, nil
	}

	grants, err := e.store.RolesByPrincipal(ctx, principal)
	if err != nil {
		return nil, err
	}
	summaries := make([]RoleSummary, 0, len(grants))
	for _, g := range grants {
		info, err := e.store.GetRoleInfo(ctx, g.Role)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, fmt.Errorf("%w: assignment references missing role %s", ErrCorrupt, g.Role)
		}
		summaries = append(summaries, RoleSummary{RoleInfo: *info, ExpiresAt: g.ExpiresAt})
	}
	return summaries, nil
}

// RolesForPath returns the roles that directly carry the given path, via
// the reverse index. It does not consider ancestors.
func (e *Engine) RolesForPath(ctx context.Context, rawPath string) ([]string, error) {
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return nil, err
	}
	return e.store.RolesByPath(ctx, canonical)
}

// addRolePath records a role-path pair and bumps the path's reference
// count when the pair is new. Every mutating role-path site goes through
// here so the forward index, reverse index, and count stay consistent.
func addRolePath(ctx context.Context, tx Store, role, canonical string) error {
	created, err := tx.SaveRolePath(ctx, role, canonical)
	if err != nil {
		return err
	}
	if created {
		return tx.IncrementPathRef(ctx, canonical)
	}
	return nil
}

func requireRole(ctx context.Context, tx Store, role string) error {
	info, err := tx.GetRoleInfo(ctx, role)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("%w: role %s does not exist", ErrNotFound, role)
	}
	return nil
}
