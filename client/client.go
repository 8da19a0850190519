// Package client provides a typed HTTP client for a Pathkeep server.
//
// It mirrors the api package's surface: queries need no credentials,
// mutations carry the caller's bearer token. The client also backs
// DelegatedChecker, which lets one ACL defer its operator check to
// another Pathkeep instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pathkeep/pathkeep/core/acl"
)

// Client talks to one Pathkeep server.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on mutating calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the server at base, e.g. "http://acl:8080".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acl returns the instance metadata.
func (c *Client) Acl(ctx context.Context) (*acl.Metadata, error) {
	var m acl.Metadata
	if err := c.do(ctx, http.MethodGet, "/acl", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsAllowed checks the principal against the given paths. With raise
// set, a negative result surfaces as acl.ErrUnauthorized.
func (c *Client) IsAllowed(ctx context.Context, p acl.IsAllowedParams) (bool, error) {
	body := map[string]any{
		"principal": p.Principal,
		"paths":     p.Paths,
		"raise":     p.Raise,
	}
	if p.Require != "" {
		body["require"] = p.Require
	}
	var out struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.do(ctx, http.MethodPost, "/acl/is-allowed", body, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// Roles lists role summaries, optionally scoped to a principal.
func (c *Client) Roles(ctx context.Context, principal string) ([]acl.RoleSummary, error) {
	endpoint := "/acl/roles"
	if principal != "" {
		endpoint += "?principal=" + url.QueryEscape(principal)
	}
	var roles []acl.RoleSummary
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// Role returns a single role summary.
func (c *Client) Role(ctx context.Context, name string) (*acl.RoleSummary, error) {
	var role acl.RoleSummary
	if err := c.do(ctx, http.MethodGet, "/acl/roles/"+url.PathEscape(name), nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// Paths enumerates one page of paths for a subject.
func (c *Client) Paths(ctx context.Context, p acl.PathsParams) (*acl.PathsPage, error) {
	q := url.Values{}
	q.Set("subject", string(p.Subject.Kind))
	if p.Subject.Name != "" {
		q.Set("name", p.Subject.Name)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Start != "" {
		q.Set("start", p.Start)
	}
	if p.Stop != "" {
		q.Set("stop", p.Stop)
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	var page acl.PathsPage
	if err := c.do(ctx, http.MethodGet, "/acl/paths?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Allow grants a principal direct access to a path. TTL is in seconds.
func (c *Client) Allow(ctx context.Context, principal, path string, ttl *int64) error {
	return c.do(ctx, http.MethodPost, "/acl/allow", map[string]any{
		"principal": principal,
		"path":      path,
		"ttl":       ttl,
	}, nil)
}

// Deny removes a principal's direct grant on a path.
func (c *Client) Deny(ctx context.Context, principal, path string) error {
	return c.do(ctx, http.MethodPost, "/acl/deny", map[string]any{
		"principal": principal,
		"path":      path,
	}, nil)
}

// SetOperator replaces the operator descriptor.
func (c *Client) SetOperator(ctx context.Context, op acl.Operator) error {
	return c.do(ctx, http.MethodPost, "/acl/operator", op, nil)
}

// CreateRole registers a new role with optional initial paths.
func (c *Client) CreateRole(ctx context.Context, name, description string, paths []string) error {
	return c.do(ctx, http.MethodPost, "/acl/roles", map[string]any{
		"name":        name,
		"description": description,
		"paths":       paths,
	}, nil)
}

// AllowRolePath adds a path to a role.
func (c *Client) AllowRolePath(ctx context.Context, role, path string) error {
	return c.do(ctx, http.MethodPost, "/acl/roles/"+url.PathEscape(role)+"/allow", map[string]any{"path": path}, nil)
}

// DenyRolePath removes a path from a role.
func (c *Client) DenyRolePath(ctx context.Context, role, path string) error {
	return c.do(ctx, http.MethodPost, "/acl/roles/"+url.PathEscape(role)+"/deny", map[string]any{"path": path}, nil)
}

// GrantRole assigns a role to a principal. TTL is in seconds.
func (c *Client) GrantRole(ctx context.Context, principal, role string, ttl *int64) error {
	return c.do(ctx, http.MethodPost, "/acl/roles/"+url.PathEscape(role)+"/grant", map[string]any{
		"principal": principal,
		"ttl":       ttl,
	}, nil)
}

// RevokeRole removes a principal's role assignment.
func (c *Client) RevokeRole(ctx context.Context, principal, role string) error {
	return c.do(ctx, http.MethodPost, "/acl/roles/"+url.PathEscape(role)+"/revoke", map[string]any{
		"principal": principal,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError converts an error response back into the engine's sentinel
// errors, so callers branch on errors.Is the same way locally and
// remotely.
func apiError(resp *http.Response) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	msg := envelope.Message
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", acl.ErrInvalidInput, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", acl.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", acl.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", acl.ErrAlreadyExists, msg)
	default:
		return fmt.Errorf("pathkeep: server error: %s", msg)
	}
}

// DelegatedChecker implements acl.Checker against a remote Pathkeep
// instance, for operators of kind acl.OperatorACL.
type DelegatedChecker struct {
	Client *Client
}

// NewDelegatedChecker builds a checker for the ACL at base.
func NewDelegatedChecker(base string) DelegatedChecker {
	return DelegatedChecker{Client: New(base)}
}

func (d DelegatedChecker) Check(ctx context.Context, principal, path string) (bool, error) {
	return d.Client.IsAllowed(ctx, acl.IsAllowedParams{
		Principal: principal,
		Paths:     []string{path},
		Require:   acl.RequireAll,
	})
}

var _ acl.Checker = DelegatedChecker{}
