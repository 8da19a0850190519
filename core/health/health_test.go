package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestReportAggregation(t *testing.T) {
	m := NewManager("test")
	m.Register("db", func(ctx context.Context) error { return nil })
	m.Register("store", func(ctx context.Context) error { return errors.New("unreachable") })

	report := m.Check(context.Background())
	if report.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("checks = %d, want 2", len(report.Checks))
	}
	if report.Checks[0].Name != "db" || report.Checks[0].Status != StatusHealthy {
		t.Errorf("db check = %+v", report.Checks[0])
	}
	if report.Checks[1].Status != StatusUnhealthy || report.Checks[1].Message != "unreachable" {
		t.Errorf("store check = %+v", report.Checks[1])
	}
}

func TestReadyHandler(t *testing.T) {
	m := NewManager("test")
	m.Register("db", func(ctx context.Context) error { return nil })

	e := echo.New()
	e.GET("/ready", m.ReadyHandler())
	e.GET("/healthz", m.LiveHandler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready = %d, want 200", rec.Code)
	}
	var report Report
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Status != StatusHealthy || report.Version != "test" {
		t.Errorf("unexpected report: %+v", report)
	}

	m.Register("store", func(ctx context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with failing check = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}
