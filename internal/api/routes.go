package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/caseace-cache/internal/api/handlers"
	"github.com/onnwee/caseace-cache/internal/circuitbreaker"
	"github.com/onnwee/caseace-cache/internal/invalidation"
	"github.com/onnwee/caseace-cache/internal/middleware"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Cache handlers.CacheService
	// Breaker guards the storage mirror; nil when the cache does not persist.
	Breaker *circuitbreaker.CircuitBreaker
	// Hub serves the stats stream; nil disables the route.
	Hub *handlers.Hub
	// Graph is the invalidation graph; nil uses the default one.
	Graph       invalidation.Graph
	AdminToken  string
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
}

// NewRouter builds the public and admin routes and wraps them in the common
// middleware chain.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestMetrics)

	health := handlers.NewHealthHandler(d.Cache, d.Breaker)
	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin/cache").Subrouter()
	if d.RateLimiter != nil {
		admin.Use(d.RateLimiter.Limit)
	}
	admin.Use(middleware.AdminAuth(d.AdminToken))

	h := handlers.NewCacheAdminHandler(d.Cache, d.Graph)
	admin.HandleFunc("/stats", h.GetCacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/keys", h.ListKeys).Methods(http.MethodGet)
	admin.HandleFunc("/keys/{key}", h.GetKey).Methods(http.MethodGet)
	admin.HandleFunc("/keys/{key}", h.DeleteKey).Methods(http.MethodDelete)
	admin.HandleFunc("/invalidate", h.InvalidatePattern).Methods(http.MethodPost)
	admin.HandleFunc("/domains", h.ListDomains).Methods(http.MethodGet)
	admin.HandleFunc("/domains/{domain}/invalidate", h.InvalidateDomain).Methods(http.MethodPost)
	admin.HandleFunc("/cleanup", h.Cleanup).Methods(http.MethodPost)
	admin.HandleFunc("/clear", h.ClearCache).Methods(http.MethodPost)
	if d.Hub != nil {
		admin.HandleFunc("/stream", d.Hub.ServeWS).Methods(http.MethodGet)
	}

	var handler http.Handler = r
	handler = middleware.Compress(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.RecoverWithSentry(handler)
	handler = middleware.RequestID(handler)
	return handler
}
