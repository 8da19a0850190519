package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/pathkeep/pathkeep/api"
	"github.com/pathkeep/pathkeep/client"
	"github.com/pathkeep/pathkeep/core/acl"
)

var (
	testSecret = []byte("test-secret")
	t0         = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	engine := acl.New(acl.NewMemoryStore())
	if err := engine.Initialize(context.Background(), t0, acl.InitParams{CreatedBy: "root", Name: "main"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	h := api.NewHandler(engine, testSecret, api.WithClock(func() time.Time { return t0 }))
	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "root"}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := client.New(srv.URL, client.WithToken(operatorToken(t)))

	m, err := c.Acl(ctx)
	if err != nil {
		t.Fatalf("Acl: %v", err)
	}
	if m.Name != "main" || m.Operator.Value != "root" {
		t.Errorf("unexpected metadata: %+v", m)
	}

	if err := c.Allow(ctx, "alice", "/api/users", nil); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if err := c.CreateRole(ctx, "mod", "moderators", []string{"/api/ban"}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	ttl := int64(3600)
	if err := c.GrantRole(ctx, "bob", "mod", &ttl); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	ok, err := c.IsAllowed(ctx, acl.IsAllowedParams{Principal: "alice", Paths: []string{"/api/users/1"}})
	if err != nil || !ok {
		t.Errorf("IsAllowed(alice) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.IsAllowed(ctx, acl.IsAllowedParams{Principal: "bob", Paths: []string{"/api/ban/7"}})
	if err != nil || !ok {
		t.Errorf("IsAllowed(bob) = (%v, %v), want (true, nil)", ok, err)
	}

	roles, err := c.Roles(ctx, "bob")
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "mod" || roles[0].ExpiresAt == nil {
		t.Errorf("bob's roles = %+v, want [mod with expiry]", roles)
	}

	role, err := c.Role(ctx, "mod")
	if err != nil {
		t.Fatalf("Role: %v", err)
	}
	if role.Description != "moderators" || role.NumPrincipals != 1 {
		t.Errorf("unexpected role: %+v", role)
	}

	page, err := c.Paths(ctx, acl.PathsParams{Subject: acl.Subject{Kind: acl.SubjectACL}})
	if err != nil {
		t.Fatalf("Paths: %v", err)
	}
	if len(page.Paths) != 2 {
		t.Errorf("paths = %+v, want 2 entries", page.Paths)
	}

	if err := c.Deny(ctx, "alice", "/api/users"); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if err := c.RevokeRole(ctx, "bob", "mod"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	ok, _ = c.IsAllowed(ctx, acl.IsAllowedParams{Principal: "bob", Paths: []string{"/api/ban"}})
	if ok {
		t.Error("bob should have lost mod access after revoke")
	}
}

func TestClientErrorMapping(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := client.New(srv.URL, client.WithToken(operatorToken(t)))

	if _, err := c.Role(ctx, "ghost"); !errors.Is(err, acl.ErrNotFound) {
		t.Errorf("Role(ghost) = %v, want ErrNotFound", err)
	}
	if err := c.Deny(ctx, "nobody", "/x"); !errors.Is(err, acl.ErrNotFound) {
		t.Errorf("Deny absent = %v, want ErrNotFound", err)
	}
	if err := c.Allow(ctx, "alice", "///", nil); !errors.Is(err, acl.ErrInvalidInput) {
		t.Errorf("Allow bad path = %v, want ErrInvalidInput", err)
	}

	if err := c.CreateRole(ctx, "mod", "", nil); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := c.CreateRole(ctx, "mod", "", nil); !errors.Is(err, acl.ErrAlreadyExists) {
		t.Errorf("duplicate CreateRole = %v, want ErrAlreadyExists", err)
	}

	_, err := c.IsAllowed(ctx, acl.IsAllowedParams{Principal: "alice", Paths: []string{"/x"}, Raise: true})
	if !errors.Is(err, acl.ErrUnauthorized) {
		t.Errorf("raised IsAllowed = %v, want ErrUnauthorized", err)
	}

	// Unauthenticated mutation
	anon := client.New(srv.URL)
	if err := anon.Allow(ctx, "alice", "/x", nil); !errors.Is(err, acl.ErrUnauthorized) {
		t.Errorf("anonymous Allow = %v, want ErrUnauthorized", err)
	}
}

func TestDelegatedChecker(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	op := client.New(srv.URL, client.WithToken(operatorToken(t)))
	if err := op.Allow(ctx, "admin", "/other", nil); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	checker := client.NewDelegatedChecker(srv.URL)
	if ok, err := checker.Check(ctx, "admin", "/other"); err != nil || !ok {
		t.Errorf("Check(admin) = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := checker.Check(ctx, "mallory", "/other"); err != nil || ok {
		t.Errorf("Check(mallory) = (%v, %v), want (false, nil)", ok, err)
	}
}
