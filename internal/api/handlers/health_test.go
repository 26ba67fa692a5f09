package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
)

func TestHealth(t *testing.T) {
	m := newTestCache(t)
	m.Set("a", 1)

	rr := httptest.NewRecorder()
	NewHealthHandler(m, nil).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode[healthResponse](t, rr)
	if resp.Status != "ok" || resp.Entries != 1 || resp.Storage != "disabled" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestHealthDegradedWhenBreakerOpen(t *testing.T) {
	m := newTestCache(t)
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "test", FailureThreshold: 1, Timeout: time.Hour})
	_ = cb.Call(func() error { return errors.New("boom") })

	rr := httptest.NewRecorder()
	NewHealthHandler(m, cb).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health should stay 200, got %d", rr.Code)
	}
	resp := decode[healthResponse](t, rr)
	if resp.Status != "degraded" || resp.Storage != "open" {
		t.Errorf("unexpected health: %+v", resp)
	}
}
