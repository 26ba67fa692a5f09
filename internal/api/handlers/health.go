package handlers

import (
	"net/http"

	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
)

// HealthHandler reports liveness and the state of the storage mirror.
type HealthHandler struct {
	cache   CacheService
	breaker *circuitbreaker.CircuitBreaker
}

// NewHealthHandler creates a health handler. breaker may be nil when the
// cache does not persist.
func NewHealthHandler(c CacheService, breaker *circuitbreaker.CircuitBreaker) *HealthHandler {
	return &HealthHandler{cache: c, breaker: breaker}
}

type healthResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
	Storage string `json:"storage"`
}

// Health returns 200 while the process is serving. An open storage breaker
// degrades the status but the cache keeps working in memory.
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Entries: h.cache.Stats().Entries,
		Storage: "disabled",
	}
	if h.breaker != nil {
		state := h.breaker.GetState()
		resp.Storage = state.String()
		if state == circuitbreaker.StateOpen {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
