package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/caseace-cache/internal/apierr"
	"github.com/onnwee/caseace-cache/internal/cache"
	"github.com/onnwee/caseace-cache/internal/errorreporting"
	"github.com/onnwee/caseace-cache/internal/invalidation"
	"github.com/onnwee/caseace-cache/internal/logger"
	"github.com/onnwee/caseace-cache/internal/tracing"
)

// lazyExpiryNote accompanies key listings: expired entries stay listed until
// they are read, swept or cleaned up.
const lazyExpiryNote = "Expired entries are removed lazily and may still be listed until the next read or cleanup."

// maxPatternBytes bounds the invalidation request body.
const maxPatternBytes = 4 << 10

// CacheService is the part of the cache manager the admin API drives.
type CacheService interface {
	Options() cache.Options
	Stats() cache.Stats
	Keys() []string
	Has(key string) bool
	Inspect(key string) (cache.Entry, bool)
	Delete(key string)
	InvalidatePattern(re *regexp.Regexp) int
	Cleanup() int
	Clear()
}

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	cache       CacheService
	invalidator *invalidation.Invalidator
}

// NewCacheAdminHandler creates a new cache admin handler. A nil graph uses
// the default domain graph.
func NewCacheAdminHandler(c CacheService, graph invalidation.Graph) *CacheAdminHandler {
	return &CacheAdminHandler{
		cache:       c,
		invalidator: invalidation.NewInvalidator(c, graph),
	}
}

type keysResponse struct {
	Keys           []string `json:"keys"`
	Count          int      `json:"count"`
	LazyExpiryNote string   `json:"lazyExpiryNote"`
}

type entryResponse struct {
	Key            string     `json:"key"`
	Size           int64      `json:"size"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	AccessCount    uint64     `json:"accessCount"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

type removedResponse struct {
	Removed int `json:"removed"`
}

type domainInvalidateResponse struct {
	Domain  string   `json:"domain"`
	Domains []string `json:"domains"`
	Removed int      `json:"removed"`
}

func (h *CacheAdminHandler) namespace() string {
	return h.cache.Options().StorageNamespace
}

// GetCacheStats returns current cache statistics.
// GET /api/admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.CacheOp(r.Context(), "stats", h.namespace())
	defer span.End()

	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// ListKeys returns every cached key, sorted.
// GET /api/admin/cache/keys
func (h *CacheAdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.CacheOp(r.Context(), "keys", h.namespace())
	defer span.End()

	keys := h.cache.Keys()
	span.SetAttributes(attribute.Int("cache.keys", len(keys)))
	writeJSON(w, http.StatusOK, keysResponse{Keys: keys, Count: len(keys), LazyExpiryNote: lazyExpiryNote})
}

// GetKey reports whether key is live and returns its metadata. Hit and miss
// counters are not touched.
// GET /api/admin/cache/keys/{key}
func (h *CacheAdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	_, span := tracing.CacheOp(r.Context(), "has", h.namespace(), attribute.String("cache.key", key))
	defer span.End()

	if !h.cache.Has(key) {
		apierr.WriteErrorWithContext(w, r, apierr.CacheKeyNotFound(key))
		return
	}
	e, ok := h.cache.Inspect(key)
	if !ok {
		// Removed between the two calls.
		apierr.WriteErrorWithContext(w, r, apierr.CacheKeyNotFound(key))
		return
	}
	resp := entryResponse{
		Key:            e.Key,
		Size:           e.Size,
		CreatedAt:      e.CreatedAt,
		AccessCount:    e.AccessCount,
		LastAccessedAt: e.LastAccessedAt,
	}
	if !e.ExpiresAt.IsZero() {
		exp := e.ExpiresAt
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteKey removes key. Deleting an absent key is not an error.
// DELETE /api/admin/cache/keys/{key}
func (h *CacheAdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	_, span := tracing.CacheOp(r.Context(), "delete", h.namespace(), attribute.String("cache.key", key))
	defer span.End()

	_, existed := h.cache.Inspect(key)
	h.cache.Delete(key)
	removed := 0
	if existed {
		removed = 1
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: removed})
}

// InvalidatePattern removes every key matching the regular expression in the
// request body.
// POST /api/admin/cache/invalidate
func (h *CacheAdminHandler) InvalidatePattern(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.CacheOp(r.Context(), "invalidate_pattern", h.namespace())
	defer span.End()

	var req invalidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatternBytes)).Decode(&req); err != nil {
		tracing.RecordError(span, err)
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if req.Pattern == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("pattern"))
		return
	}
	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		tracing.RecordError(span, err)
		apierr.WriteErrorWithContext(w, r, apierr.CacheInvalidPattern(req.Pattern, err.Error()))
		return
	}

	n := h.cache.InvalidatePattern(re)
	span.SetAttributes(attribute.String("cache.pattern", req.Pattern), attribute.Int("cache.removed", n))
	logger.InfoContext(ctx, "Cache keys invalidated by pattern", "pattern", req.Pattern, "removed", n)
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

// InvalidateDomain removes a domain's keys. With ?related=true the domains
// that depend on it are cleared too; with ?id=<id> only that record is.
// POST /api/admin/cache/domains/{domain}/invalidate
func (h *CacheAdminHandler) InvalidateDomain(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	ctx, span := tracing.CacheOp(r.Context(), "invalidate_domain", h.namespace(), attribute.String("cache.domain", domain))
	defer span.End()

	if !h.knownDomain(domain) {
		apierr.WriteErrorWithContext(w, r, apierr.CacheUnknownDomain(domain))
		return
	}

	q := r.URL.Query()
	related, _ := strconv.ParseBool(q.Get("related"))
	resp := domainInvalidateResponse{Domain: domain, Domains: []string{domain}}
	switch id := q.Get("id"); {
	case id != "":
		resp.Removed = h.invalidator.InvalidateDetail(domain, id)
	case related:
		resp.Domains = h.invalidator.Related(domain)
		resp.Removed = h.invalidator.InvalidateRelated(domain)
	default:
		resp.Removed = h.invalidator.Invalidate(domain)
	}

	span.SetAttributes(attribute.Int("cache.removed", resp.Removed))
	logger.InfoContext(ctx, "Cache domain invalidated", "domain", domain, "related", related, "removed", resp.Removed)
	writeJSON(w, http.StatusOK, resp)
}

func (h *CacheAdminHandler) knownDomain(domain string) bool {
	for _, d := range h.invalidator.Domains() {
		if d == domain {
			return true
		}
	}
	return false
}

// Cleanup removes every expired entry now.
// POST /api/admin/cache/cleanup
func (h *CacheAdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.CacheOp(r.Context(), "cleanup", h.namespace())
	defer span.End()

	n := h.cache.Cleanup()
	span.SetAttributes(attribute.Int("cache.removed", n))
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

// ClearCache empties the cache and its persisted mirror.
// POST /api/admin/cache/clear
func (h *CacheAdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.CacheOp(r.Context(), "clear", h.namespace())
	defer span.End()

	h.cache.Clear()
	errorreporting.AddBreadcrumb("cache", "cache cleared via admin API", sentry.LevelInfo)
	logger.InfoContext(ctx, "Cache cleared via admin API", "namespace", h.namespace())
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Cache cleared successfully",
	})
}

// ListDomains returns the invalidation graph's domains.
// GET /api/admin/cache/domains
func (h *CacheAdminHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains := h.invalidator.Domains()
	related := make(map[string][]string, len(domains))
	for _, d := range domains {
		related[d] = h.invalidator.Related(d)[1:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains, "related": related})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}
