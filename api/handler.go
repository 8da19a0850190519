// Package api exposes the ACL engine over HTTP.
//
// Queries are open; mutations sit behind the operator check. The caller
// authenticates with an HS256 bearer token whose subject is their
// principal, and the configured operator decides whether that principal
// may mutate: an address operator matches the principal directly, an
// ACL operator delegates the decision to another Pathkeep instance.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pathkeep/pathkeep/client"
	"github.com/pathkeep/pathkeep/core/acl"
)

const principalKey = "principal"

type Handler struct {
	engine     *acl.Engine
	secret     []byte
	now        func() time.Time
	log        *zap.Logger
	checkerFor func(acl.Operator) acl.Checker
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock replaces the clock used to evaluate grant expiry.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithCheckerFactory replaces how an operator descriptor becomes a
// Checker. The default resolves address operators locally and ACL
// operators through an HTTP client against the operator's base URL.
func WithCheckerFactory(f func(acl.Operator) acl.Checker) Option {
	return func(h *Handler) { h.checkerFor = f }
}

// NewHandler creates a handler for the given engine. The secret signs
// and verifies caller bearer tokens.
func NewHandler(engine *acl.Engine, secret []byte, opts ...Option) *Handler {
	h := &Handler{
		engine:     engine,
		secret:     secret,
		now:        time.Now,
		log:        zap.NewNop(),
		checkerFor: defaultChecker,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func defaultChecker(op acl.Operator) acl.Checker {
	if op.Kind == acl.OperatorACL {
		return client.NewDelegatedChecker(op.Value)
	}
	return acl.AddressChecker{Address: op.Value}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.Use(h.RequestIDMiddleware)

	g.GET("/acl", h.HandleMetadata)
	g.GET("/acl/roles", h.HandleRoles)
	g.GET("/acl/roles/:role", h.HandleRole)
	g.GET("/acl/paths", h.HandlePaths)
	g.POST("/acl/is-allowed", h.HandleIsAllowed)

	// Mutations require the operator check
	protected := g.Group("", h.OperatorMiddleware)
	protected.POST("/acl/operator", h.HandleSetOperator)
	protected.POST("/acl/allow", h.HandleAllow)
	protected.POST("/acl/deny", h.HandleDeny)
	protected.POST("/acl/roles", h.HandleCreateRole)
	protected.POST("/acl/roles/:role/allow", h.HandleAllowRolePath)
	protected.POST("/acl/roles/:role/deny", h.HandleDenyRolePath)
	protected.POST("/acl/roles/:role/grant", h.HandleGrantRole)
	protected.POST("/acl/roles/:role/revoke", h.HandleRevokeRole)
}

func (h *Handler) RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

// OperatorMiddleware authenticates the caller's bearer token and checks
// the resulting principal against the ACL's operator.
func (h *Handler) OperatorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal, err := h.callerPrincipal(c)
		if err != nil {
			return h.Error(c, http.StatusUnauthorized, "Unauthorized", err)
		}

		m, err := h.engine.Metadata(c.Request().Context())
		if err != nil {
			return h.httpError(c, err)
		}

		checker := h.checkerFor(m.Operator)
		ok, err := checker.Check(c.Request().Context(), principal, controlPath(m))
		if err != nil {
			return h.httpError(c, err)
		}
		if !ok {
			h.log.Warn("operator check rejected",
				zap.String("principal", principal),
				zap.String("operator", m.Operator.String()),
			)
			return h.Error(c, http.StatusForbidden, "Forbidden",
				fmt.Errorf("%s is not the operator", principal))
		}

		c.Set(principalKey, principal)
		return next(c)
	}
}

// controlPath is the path a delegating ACL is asked about when the
// operator is of kind "acl".
func controlPath(m *acl.Metadata) string {
	if m.Name == "" {
		return "/"
	}
	return "/" + m.Name
}

func (h *Handler) callerPrincipal(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", errors.New("bearer token required")
	}

	token, err := jwt.Parse(header[len(prefix):], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func (h *Handler) HandleMetadata(c echo.Context) error {
	m, err := h.engine.Metadata(c.Request().Context())
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) HandleIsAllowed(c echo.Context) error {
	var body struct {
		Principal string   `json:"principal"`
		Paths     []string `json:"paths"`
		Require   string   `json:"require"`
		Raise     bool     `json:"raise"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	ok, err := h.engine.IsAllowed(c.Request().Context(), h.now(), acl.IsAllowedParams{
		Principal: body.Principal,
		Paths:     body.Paths,
		Require:   acl.Requirement(body.Require),
		Raise:     body.Raise,
	})
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"allowed": ok})
}

func (h *Handler) HandleRoles(c echo.Context) error {
	roles, err := h.engine.Roles(c.Request().Context(), c.QueryParam("principal"))
	if err != nil {
		return h.httpError(c, err)
	}
	if roles == nil {
		roles = []acl.RoleSummary{}
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *Handler) HandleRole(c echo.Context) error {
	role, err := h.engine.Role(c.Request().Context(), c.Param("role"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, role)
}

func (h *Handler) HandlePaths(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return h.Error(c, http.StatusBadRequest, "Invalid limit", err)
		}
		limit = n
	}

	page, err := h.engine.Paths(c.Request().Context(), acl.PathsParams{
		Subject: acl.Subject{
			Kind: acl.SubjectKind(c.QueryParam("subject")),
			Name: c.QueryParam("name"),
		},
		Limit:  limit,
		Start:  c.QueryParam("start"),
		Stop:   c.QueryParam("stop"),
		Cursor: c.QueryParam("cursor"),
	})
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) HandleSetOperator(c echo.Context) error {
	var op acl.Operator
	if err := c.Bind(&op); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.SetOperator(c.Request().Context(), op); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleAllow(c echo.Context) error {
	var body struct {
		Principal string `json:"principal"`
		Path      string `json:"path"`
		TTL       *int64 `json:"ttl"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.Allow(c.Request().Context(), h.now(), body.Principal, body.Path, ttlDuration(body.TTL)); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleDeny(c echo.Context) error {
	var body struct {
		Principal string `json:"principal"`
		Path      string `json:"path"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.Deny(c.Request().Context(), body.Principal, body.Path); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleCreateRole(c echo.Context) error {
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Paths       []string `json:"paths"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	err := h.engine.CreateRole(c.Request().Context(), h.now(), acl.CreateRoleParams{
		Name:        body.Name,
		Description: body.Description,
		Paths:       body.Paths,
		CreatedBy:   c.Get(principalKey).(string),
	})
	if err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleAllowRolePath(c echo.Context) error {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.AllowRolePath(c.Request().Context(), c.Param("role"), body.Path); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleDenyRolePath(c echo.Context) error {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.DenyRolePath(c.Request().Context(), c.Param("role"), body.Path); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleGrantRole(c echo.Context) error {
	var body struct {
		Principal string `json:"principal"`
		TTL       *int64 `json:"ttl"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.GrantRole(c.Request().Context(), h.now(), body.Principal, c.Param("role"), ttlDuration(body.TTL)); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) HandleRevokeRole(c echo.Context) error {
	var body struct {
		Principal string `json:"principal"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}
	if err := h.engine.RevokeRole(c.Request().Context(), body.Principal, c.Param("role")); err != nil {
		return h.httpError(c, err)
	}
	return h.ok(c)
}

func (h *Handler) ok(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

// httpError maps engine errors onto HTTP statuses.
func (h *Handler) httpError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, acl.ErrInvalidInput), errors.Is(err, acl.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, acl.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, acl.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, acl.ErrAlreadyExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	return h.Error(c, status, http.StatusText(status), err)
}

func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	resp := map[string]any{
		"error": message,
	}
	if err != nil {
		resp["message"] = err.Error()
	}
	return c.JSON(code, resp)
}

func ttlDuration(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}
