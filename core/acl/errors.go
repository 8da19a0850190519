package acl

import (
	"errors"

	"github.com/pathkeep/pathkeep/core/path"
)

// Sentinel errors returned by the engine. Callers branch with errors.Is;
// the api package maps them to HTTP status codes.
var (
	// ErrInvalidPath reports a path that failed normalization.
	ErrInvalidPath = path.ErrInvalid

	// ErrInvalidInput reports malformed input other than paths: names or
	// descriptions over their length limits, a negative TTL, an empty
	// principal.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound reports a deny, revoke, or describe against a grant,
	// role, or role-path pair that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists reports creation of a role whose name is taken,
	// or re-initialization of an already-initialized ACL.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized reports a failed operator check, or a negative
	// IsAllowed result when the caller asked for raise semantics.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCorrupt reports an internal bookkeeping invariant violation,
	// such as a path reference count decremented below zero. It is a bug
	// in the engine or a corrupted store, never a user error.
	ErrCorrupt = errors.New("store corrupted")
)
