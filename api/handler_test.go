package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/pathkeep/pathkeep/core/acl"
)

var (
	testSecret = []byte("test-secret")
	t0         = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func newTestServer(t *testing.T, opts ...Option) (*echo.Echo, *acl.Engine) {
	t.Helper()

	engine := acl.New(acl.NewMemoryStore())
	if err := engine.Initialize(context.Background(), t0, acl.InitParams{CreatedBy: "root", Name: "main"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	h := NewHandler(engine, testSecret, opts...)

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, engine
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: sub}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(e *echo.Echo, method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIIntegration(t *testing.T) {
	e, _ := newTestServer(t)
	root := signToken(t, "root")

	// 1. Metadata
	rec := doRequest(e, http.MethodGet, "/api/v1/acl", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata failed with code %d: %s", rec.Code, rec.Body.String())
	}
	var meta acl.Metadata
	json.Unmarshal(rec.Body.Bytes(), &meta)
	if meta.Name != "main" || meta.Operator.Value != "root" {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	// 2. Direct grant
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", root, map[string]any{
		"principal": "alice",
		"path":      "/api/users",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("allow failed with code %d: %s", rec.Code, rec.Body.String())
	}

	// 3. Hierarchical check
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/is-allowed", "", map[string]any{
		"principal": "alice",
		"paths":     []string{"/api/users/123/profile"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("is-allowed failed with code %d: %s", rec.Code, rec.Body.String())
	}
	var allowed struct {
		Allowed bool `json:"allowed"`
	}
	json.Unmarshal(rec.Body.Bytes(), &allowed)
	if !allowed.Allowed {
		t.Error("alice should inherit access to /api/users/123/profile")
	}

	// 4. Role lifecycle
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/roles", root, map[string]any{
		"name":  "mod",
		"paths": []string{"/api/ban"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create role failed with code %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/roles/mod/grant", root, map[string]any{
		"principal": "bob",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("grant role failed with code %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/acl/roles/mod", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get role failed with code %d: %s", rec.Code, rec.Body.String())
	}
	var role acl.RoleSummary
	json.Unmarshal(rec.Body.Bytes(), &role)
	if role.CreatedBy != "root" || role.NumPrincipals != 1 {
		t.Errorf("unexpected role: %+v", role)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/acl/roles?principal=bob", "", nil)
	var roles []acl.RoleSummary
	json.Unmarshal(rec.Body.Bytes(), &roles)
	if len(roles) != 1 || roles[0].Name != "mod" {
		t.Errorf("bob's roles = %+v, want [mod]", roles)
	}

	// 5. Paths for the whole instance
	rec = doRequest(e, http.MethodGet, "/api/v1/acl/paths?subject=acl", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("paths failed with code %d: %s", rec.Code, rec.Body.String())
	}
	var page acl.PathsPage
	json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.Paths) != 2 {
		t.Errorf("paths = %+v, want /api/ban and /api/users", page.Paths)
	}

	// 6. Deny removes access
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/deny", root, map[string]any{
		"principal": "alice",
		"path":      "/api/users",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deny failed with code %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/is-allowed", "", map[string]any{
		"principal": "alice",
		"paths":     []string{"/api/users"},
	})
	json.Unmarshal(rec.Body.Bytes(), &allowed)
	if allowed.Allowed {
		t.Error("alice should have lost access after deny")
	}
}

func TestOperatorAuthentication(t *testing.T) {
	e, _ := newTestServer(t)
	body := map[string]any{"principal": "alice", "path": "/x"}

	// No token
	rec := doRequest(e, http.MethodPost, "/api/v1/acl/allow", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d, want 401", rec.Code)
	}

	// Token signed with the wrong secret
	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "root"}).SignedString([]byte("other"))
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", bad, body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token: code = %d, want 401", rec.Code)
	}

	// Valid token for a principal that is not the operator
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", signToken(t, "mallory"), body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-operator: code = %d, want 403", rec.Code)
	}
}

func TestSetOperatorHandsOff(t *testing.T) {
	e, _ := newTestServer(t)
	root := signToken(t, "root")

	rec := doRequest(e, http.MethodPost, "/api/v1/acl/operator", root, map[string]any{
		"kind":  "address",
		"value": "carol",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set operator failed with code %d: %s", rec.Code, rec.Body.String())
	}

	// The old operator is locked out, the new one works.
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", root, map[string]any{
		"principal": "alice", "path": "/x",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("old operator: code = %d, want 403", rec.Code)
	}
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", signToken(t, "carol"), map[string]any{
		"principal": "alice", "path": "/x",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("new operator: code = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestErrorStatuses(t *testing.T) {
	e, _ := newTestServer(t)
	root := signToken(t, "root")

	// Denying a grant that never existed
	rec := doRequest(e, http.MethodPost, "/api/v1/acl/deny", root, map[string]any{
		"principal": "nobody", "path": "/x",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("deny absent: code = %d, want 404", rec.Code)
	}

	// Invalid path
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", root, map[string]any{
		"principal": "alice", "path": "///",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid path: code = %d, want 400", rec.Code)
	}

	// Duplicate role
	doRequest(e, http.MethodPost, "/api/v1/acl/roles", root, map[string]any{"name": "mod"})
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/roles", root, map[string]any{"name": "mod"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate role: code = %d, want 409", rec.Code)
	}

	// Missing role
	rec = doRequest(e, http.MethodGet, "/api/v1/acl/roles/ghost", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing role: code = %d, want 404", rec.Code)
	}

	// Raise converts a negative check into 403
	rec = doRequest(e, http.MethodPost, "/api/v1/acl/is-allowed", "", map[string]any{
		"principal": "alice", "paths": []string{"/x"}, "raise": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("raised check: code = %d, want 403", rec.Code)
	}
}

func TestDelegatedOperator(t *testing.T) {
	// The controlling ACL authorizes "admin" on the controlled
	// instance's name path.
	controller := acl.New(acl.NewMemoryStore())
	if err := controller.Allow(context.Background(), t0, "admin", "/main", nil); err != nil {
		t.Fatalf("Allow on controller: %v", err)
	}

	engine := acl.New(acl.NewMemoryStore())
	err := engine.Initialize(context.Background(), t0, acl.InitParams{
		CreatedBy: "root",
		Name:      "main",
		Operator:  acl.Operator{Kind: acl.OperatorACL, Value: "controller"},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	h := NewHandler(engine, testSecret,
		WithClock(func() time.Time { return t0 }),
		WithCheckerFactory(func(acl.Operator) acl.Checker {
			return acl.EngineChecker{Engine: controller, Now: func() time.Time { return t0 }}
		}),
	)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	rec := doRequest(e, http.MethodPost, "/api/v1/acl/allow", signToken(t, "admin"), map[string]any{
		"principal": "alice", "path": "/data",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("delegated operator: code = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodPost, "/api/v1/acl/allow", signToken(t, "mallory"), map[string]any{
		"principal": "alice", "path": "/data",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("delegated non-operator: code = %d, want 403", rec.Code)
	}
}
