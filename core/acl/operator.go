package acl

import (
	"context"
	"fmt"
	"time"
)

// OperatorKind discriminates how the operator identity is verified.
type OperatorKind string

const (
	// OperatorAddress is a plain principal: the caller must be exactly
	// this identity.
	OperatorAddress OperatorKind = "address"
	// OperatorACL delegates the check to another ACL: the caller must be
	// authorized by that ACL for this instance's control path.
	OperatorACL OperatorKind = "acl"
)

// Operator is the identity permitted to call mutating operations.
type Operator struct {
	Kind  OperatorKind `json:"kind"`
	Value string       `json:"value"`
}

// Validate reports whether the descriptor is well formed.
func (o Operator) Validate() error {
	if o.Kind != OperatorAddress && o.Kind != OperatorACL {
		return fmt.Errorf("%w: unknown operator kind %q", ErrInvalidInput, o.Kind)
	}
	if o.Value == "" {
		return fmt.Errorf("%w: operator value is required", ErrInvalidInput)
	}
	return nil
}

func (o Operator) String() string {
	return string(o.Kind) + ":" + o.Value
}

// Checker answers whether a principal may act on a path. Both operator
// variants implement it, so call sites never switch on the kind.
type Checker interface {
	Check(ctx context.Context, principal, path string) (bool, error)
}

// AddressChecker authorizes exactly one principal; the path is
// irrelevant.
type AddressChecker struct {
	Address string
}

func (c AddressChecker) Check(_ context.Context, principal, _ string) (bool, error) {
	return principal == c.Address, nil
}

// EngineChecker delegates the check to a local Engine, for operators of
// kind OperatorACL whose controlling ACL lives in the same process. The
// client package provides the remote equivalent.
type EngineChecker struct {
	Engine *Engine
	Now    func() time.Time
}

func (c EngineChecker) Check(ctx context.Context, principal, checkPath string) (bool, error) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	return c.Engine.IsAllowed(ctx, now, IsAllowedParams{
		Principal: principal,
		Paths:     []string{checkPath},
		Require:   RequireAll,
	})
}

var (
	_ Checker = AddressChecker{}
	_ Checker = EngineChecker{}
)
