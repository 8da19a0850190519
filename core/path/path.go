// Package path implements the canonical path model for the ACL engine.
//
// Paths are hierarchical, forward-slash separated resource locators.
// They are normalized to a canonical form before storage or matching:
//
//   - Leading and trailing slashes are trimmed, then a single leading
//     slash is added
//   - Spaces are replaced with hyphens
//   - Non-printable (non-ASCII-graphic) characters are removed
//
// Normalization is idempotent: normalizing an already-canonical path
// yields the same string.
//
// Canonical paths form an implicit tree: "/api/users/123" is a
// descendant of "/api/users" and "/api". A grant on an ancestor
// authorizes every descendant.
package path

import (
	"errors"
	"strings"
)

// Root is the distinguished root path.
const Root = "/"

// ErrInvalid reports a path that cannot be normalized: the input is
// empty, or nothing printable remains after normalization.
var ErrInvalid = errors.New("invalid path")

// Normalize converts a raw path string to canonical form.
//
//	Normalize("//foo/bar//") == "/foo/bar"
//	Normalize("foo bar")     == "/foo-bar"
//	Normalize("/")           == "/"
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalid
	}

	trimmed := strings.Trim(raw, "/")
	canonical := sanitize("/" + strings.ReplaceAll(trimmed, " ", "-"))

	// Only the literal root may normalize to "/". Anything else that
	// collapses to the root had no usable segments.
	if canonical == Root && raw != Root {
		return "", ErrInvalid
	}
	return canonical, nil
}

// sanitize removes every character that is not ASCII-graphic.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c > ' ' && c <= '~' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// AncestorChain returns the canonical path followed by each of its
// ancestors, most specific first, stopping above the root:
//
//	AncestorChain("/api/users/123") == ["/api/users/123", "/api/users", "/api"]
//	AncestorChain("/api")           == ["/api"]
//	AncestorChain("/")              == ["/"]
//
// The root itself never appears in the chain of a non-root path: a
// grant on a top-level segment such as "/api" is the most general
// grant for everything beneath it.
func AncestorChain(canonical string) []string {
	if canonical == Root {
		return []string{Root}
	}

	segments := strings.Split(strings.TrimPrefix(canonical, "/"), "/")
	chain := make([]string, 0, len(segments))
	for i := len(segments); i > 0; i-- {
		chain = append(chain, "/"+strings.Join(segments[:i], "/"))
	}
	return chain
}
