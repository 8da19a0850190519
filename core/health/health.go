// Package health provides liveness and readiness probes for the
// Pathkeep server.
//
// A Manager runs named checks, typically one against the database and
// one against the ACL store, and serves Kubernetes-style /healthz and
// /ready endpoints through Echo.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Status of a check or of the whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Check is the recorded outcome of one probe.
type Check struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report aggregates all checks.
type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Manager runs registered checks with a shared timeout.
type Manager struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]CheckFunc
	version string
	timeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout bounds a full probe run. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// NewManager creates a manager reporting the given version string.
func NewManager(version string, opts ...Option) *Manager {
	m := &Manager{
		checks:  make(map[string]CheckFunc),
		version: version,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a named check. Registration order is report order.
func (m *Manager) Register(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checks[name]; !ok {
		m.names = append(m.names, name)
	}
	m.checks[name] = fn
}

// Check runs every registered probe and aggregates the results.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	names := make([]string, len(m.names))
	copy(names, m.names)
	checks := make(map[string]CheckFunc, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    make([]Check, 0, len(names)),
	}
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)
		c := Check{
			Name:      name,
			Status:    StatusHealthy,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			c.Status = StatusUnhealthy
			c.Message = err.Error()
			report.Status = StatusUnhealthy
		}
		report.Checks = append(report.Checks, c)
	}
	return report
}

// LiveHandler answers liveness probes. The process being up is enough.
func (m *Manager) LiveHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler answers readiness probes by running every check.
func (m *Manager) ReadyHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		report := m.Check(c.Request().Context())
		if report.Status != StatusHealthy {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
