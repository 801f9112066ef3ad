package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if m == nil {
		t.Fatal("Expected non-nil metrics")
	}

	// Registering twice must panic via MustRegister
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	NewMetrics(registry)
}

func TestMetrics_ObservePermissionCheck(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObservePermissionCheck("system", true, 5*time.Millisecond)
	m.ObservePermissionCheck("tenant", true, 3*time.Millisecond)
	m.ObservePermissionCheck("none", false, 7*time.Millisecond)
	m.ObservePermissionCheck("error", false, time.Millisecond)

	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("system", "allowed")); got != 1 {
		t.Errorf("Expected 1 system allowed check, got %v", got)
	}
	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("none", "denied")); got != 1 {
		t.Errorf("Expected 1 denied check, got %v", got)
	}
	if got := testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("error", "denied")); got != 1 {
		t.Errorf("Expected 1 fail-closed check, got %v", got)
	}
}

func TestMetrics_ObserveTenantResolution(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveTenantResolution("session")
	m.ObserveTenantResolution("session")
	m.ObserveTenantResolution("default_membership")

	if got := testutil.ToFloat64(m.TenantResolutionsTotal.WithLabelValues("session")); got != 2 {
		t.Errorf("Expected 2 session resolutions, got %v", got)
	}
	if got := testutil.ToFloat64(m.TenantResolutionsTotal.WithLabelValues("default_membership")); got != 1 {
		t.Errorf("Expected 1 default membership resolution, got %v", got)
	}
}

func TestMetrics_ObserveAuthAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveAuthAttempt("success")
	m.ObserveAuthAttempt("expired")
	m.ObserveAuthAttempt("expired")

	if got := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("expired")); got != 2 {
		t.Errorf("Expected 2 expired attempts, got %v", got)
	}
}

func TestMetrics_ObserveAuditWrite(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveAuditWrite(nil)
	m.ObserveAuditWrite(errors.New("sink unavailable"))

	if got := testutil.ToFloat64(m.AuditWritesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful write, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuditWritesTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failed write, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuditWriteFailuresTotal); got != 1 {
		t.Errorf("Expected 1 write failure, got %v", got)
	}
}

func TestMetrics_ObserveDenial(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveDenial("projects.delete")

	if got := testutil.ToFloat64(m.AccessDenialsTotal.WithLabelValues("projects.delete")); got != 1 {
		t.Errorf("Expected 1 denial, got %v", got)
	}
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/v1/projects", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/projects", "418")); got != 1 {
		t.Errorf("Expected 1 request counted, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveAuthAttempt("success")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "fieldline_auth_attempts_total") {
		t.Error("Expected exposition to contain fieldline_auth_attempts_total")
	}
}
