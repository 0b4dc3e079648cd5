package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeHealthChecker struct {
	err error
}

func (c *fakeHealthChecker) Ping(context.Context) error {
	return c.err
}

func TestHealth_OK(t *testing.T) {
	router := NewRouter(&RouterDeps{HealthChecker: &fakeHealthChecker{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("ボディ = %q", rec.Body.String())
	}
}

func TestHealth_StoreUnreachable(t *testing.T) {
	router := NewRouter(&RouterDeps{
		HealthChecker: &fakeHealthChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), "unhealthy") {
		t.Errorf("ボディ = %q", rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("toonman_fetch_success_total 0"))
	})
	router := NewRouter(&RouterDeps{
		HealthChecker:  &fakeHealthChecker{},
		MetricsHandler: metricsHandler,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "toonman_fetch_success_total") {
		t.Errorf("ボディ = %q", rec.Body.String())
	}
}

func TestMetricsRoute_Disabled(t *testing.T) {
	router := NewRouter(&RouterDeps{HealthChecker: &fakeHealthChecker{}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
