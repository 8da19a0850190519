package acl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pathkeep/pathkeep/core/path"
)

// Engine is the access-control engine. It owns all grant records and the
// path reference-count index; every mutation runs inside a single store
// transaction that keeps the two consistent.
//
// All time-dependent methods take an explicit "now". The caller samples
// the clock once per call, so every expiry comparison within one call
// observes the same instant.
type Engine struct {
	store Store
	log   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger to the engine.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine backed by the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitParams describes the ACL instance record written by Initialize.
type InitParams struct {
	// CreatedBy is the principal initializing the ACL. It becomes the
	// operator when Operator is left zero.
	CreatedBy   string
	Operator    Operator
	Name        string
	Description string
}

// Initialize writes the ACL instance metadata. It runs once per store;
// a second call returns ErrAlreadyExists.
func (e *Engine) Initialize(ctx context.Context, now time.Time, p InitParams) error {
	if p.CreatedBy == "" {
		return fmt.Errorf("%w: created_by principal is required", ErrInvalidInput)
	}
	if len(p.Name) > MaxNameLen {
		return fmt.Errorf("%w: ACL name cannot be longer than %d characters", ErrInvalidInput, MaxNameLen)
	}
	if len(p.Description) > MaxDescLen {
		return fmt.Errorf("%w: ACL description cannot be longer than %d characters", ErrInvalidInput, MaxDescLen)
	}

	op := p.Operator
	if op == (Operator{}) {
		op = Operator{Kind: OperatorAddress, Value: p.CreatedBy}
	}
	if err := op.Validate(); err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		existing, err := tx.GetMetadata(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: ACL is already initialized", ErrAlreadyExists)
		}
		return tx.SaveMetadata(ctx, Metadata{
			Name:        p.Name,
			Description: p.Description,
			CreatedBy:   p.CreatedBy,
			CreatedAt:   now,
			Operator:    op,
		})
	})
}

// Metadata returns the ACL instance record, or ErrNotFound before
// initialization.
func (e *Engine) Metadata(ctx context.Context) (*Metadata, error) {
	m, err := e.store.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: ACL is not initialized", ErrNotFound)
	}
	return m, nil
}

// SetOperator replaces the identity permitted to call mutations.
func (e *Engine) SetOperator(ctx context.Context, op Operator) error {
	if err := op.Validate(); err != nil {
		return err
	}
	return e.store.Update(ctx, func(tx Store) error {
		m, err := tx.GetMetadata(ctx)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: ACL is not initialized", ErrNotFound)
		}
		old := m.Operator
		m.Operator = op
		if err := tx.SaveMetadata(ctx, *m); err != nil {
			return err
		}
		e.log.Info("operator changed",
			zap.String("old_operator", old.String()),
			zap.String("new_operator", op.String()),
		)
		return nil
	})
}

// Allow grants a principal direct access to a path and everything
// beneath it. A nil ttl never expires; re-allowing an existing pair
// overwrites its expiry without touching the reference count.
func (e *Engine) Allow(ctx context.Context, now time.Time, principal, rawPath string, ttl *time.Duration) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return err
	}
	expiresAt, err := expiryFromTTL(now, ttl)
	if err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		created, err := tx.SaveDirectGrant(ctx, principal, canonical, Grant{ExpiresAt: expiresAt})
		if err != nil {
			return err
		}
		if created {
			if err := tx.IncrementPathRef(ctx, canonical); err != nil {
				return err
			}
		}
		e.log.Info("allow",
			zap.String("principal", principal),
			zap.String("path", canonical),
			zap.Timep("expires_at", expiresAt),
		)
		return nil
	})
}

// Deny removes a principal's direct grant on a path. It returns
// ErrNotFound if no such grant exists.
func (e *Engine) Deny(ctx context.Context, principal, rawPath string) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return err
	}

	return e.store.Update(ctx, func(tx Store) error {
		existed, err := tx.DeleteDirectGrant(ctx, principal, canonical)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("%w: %s has no grant on %s", ErrNotFound, principal, canonical)
		}
		if err := tx.DecrementPathRef(ctx, canonical); err != nil {
			return err
		}
		e.log.Info("deny",
			zap.String("principal", principal),
			zap.String("path", canonical),
		)
		return nil
	})
}

// IsAuthorized reports whether the principal may access the path at the
// given instant, via a direct grant or an assigned role, on the path
// itself or any of its ancestors.
func (e *Engine) IsAuthorized(ctx context.Context, now time.Time, principal, rawPath string) (bool, error) {
	canonical, err := path.Normalize(rawPath)
	if err != nil {
		return false, err
	}

	// Walk from the full path up toward the root. Authorization is an
	// existence check over all matching grants, so the order only
	// affects how soon a hit short-circuits the walk.
	for _, prefix := range path.AncestorChain(canonical) {
		g, err := e.store.GetDirectGrant(ctx, principal, prefix)
		if err != nil {
			return false, err
		}
		if g != nil && g.Active(now) {
			return true, nil
		}

		// No live direct grant at this level; check every role that
		// carries the prefix against the principal's assignments.
		roles, err := e.store.RolesByPath(ctx, prefix)
		if err != nil {
			return false, err
		}
		for _, role := range roles {
			rg, err := e.store.GetPrincipalRole(ctx, principal, role)
			if err != nil {
				return false, err
			}
			if rg != nil && rg.Active(now) {
				return true, nil
			}
		}
	}
	return false, nil
}

// IsAllowedParams are the inputs to IsAllowed.
type IsAllowedParams struct {
	Principal string
	Paths     []string
	// Require selects the aggregation mode; empty means RequireAll.
	Require Requirement
	// Raise converts a negative aggregate result into ErrUnauthorized
	// instead of a false value.
	Raise bool
}

// IsAllowed checks the principal against every path and combines the
// results per the requirement. With RequireAll an empty path list is
// vacuously true; with RequireAny it is false.
func (e *Engine) IsAllowed(ctx context.Context, now time.Time, p IsAllowedParams) (bool, error) {
	if p.Principal == "" {
		return false, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	require := p.Require
	if require == "" {
		require = RequireAll
	}
	if require != RequireAll && require != RequireAny {
		return false, fmt.Errorf("%w: unknown requirement %q", ErrInvalidInput, require)
	}

	var misses []string
	for _, rawPath := range p.Paths {
		ok, err := e.IsAuthorized(ctx, now, p.Principal, rawPath)
		if err != nil {
			return false, err
		}
		if ok {
			if require == RequireAny {
				return true, nil
			}
			continue
		}
		if require == RequireAll {
			return e.denied(p, fmt.Sprintf("%s not authorized to %s", p.Principal, rawPath))
		}
		misses = append(misses, fmt.Sprintf("%s not authorized to %s", p.Principal, rawPath))
	}

	if require == RequireAny {
		// No path passed. An empty list never passes Any.
		reason := strings.Join(misses, ", ")
		if reason == "" {
			reason = "no paths to check"
		}
		return e.denied(p, reason)
	}
	return true, nil
}

func (e *Engine) denied(p IsAllowedParams, reason string) (bool, error) {
	if p.Raise {
		return false, fmt.Errorf("%w: %s", ErrUnauthorized, reason)
	}
	return false, nil
}

// expiryFromTTL converts an optional TTL into an absolute expiry.
func expiryFromTTL(now time.Time, ttl *time.Duration) (*time.Time, error) {
	if ttl == nil {
		return nil, nil
	}
	if *ttl < 0 {
		return nil, fmt.Errorf("%w: ttl cannot be negative", ErrInvalidInput)
	}
	t := now.Add(*ttl)
	return &t, nil
}
