package path

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"/foo/bar", "/foo/bar"},
		{"//foo/bar//", "/foo/bar"},
		{"foo/bar", "/foo/bar"},
		{"foo bar", "/foo-bar"},
		{"   ", "/---"},
		{"/api/users/123", "/api/users/123"},
		{"/", "/"},
		{"/foo\x01bar", "/foobar"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"//a b//", "/x/y/z", "weird path/here", "/"} {
		once, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", raw, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("normalization not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, raw := range []string{"", "///", "\x01\x02"} {
		if _, err := Normalize(raw); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q) = %v, want ErrInvalid", raw, err)
		}
	}
}

func TestAncestorChain(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/api/users/123/edit", []string{"/api/users/123/edit", "/api/users/123", "/api/users", "/api"}},
		{"/api/users", []string{"/api/users", "/api"}},
		{"/api", []string{"/api"}},
		{"/", []string{"/"}},
	}
	for _, tc := range cases {
		if got := AncestorChain(tc.path); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("AncestorChain(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
