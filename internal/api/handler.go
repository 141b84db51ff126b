package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/search/cache"
	"github.com/collectivehq/pagesearch/internal/service"
	pkgerrors "github.com/collectivehq/pagesearch/pkg/errors"
	"github.com/collectivehq/pagesearch/pkg/logger"
)

type Handler struct {
	engine       *service.Engine
	cache        *cache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(engine *service.Engine, queryCache *cache.QueryCache, defaultLimit, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Collective string                `json:"collective"`
	Query      string                `json:"query"`
	Results    []store.DocumentScore `json:"results"`
	CacheHit   bool                  `json:"cache_hit"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	collective := r.PathValue("collective")
	if collective == "" {
		h.writeError(w, http.StatusBadRequest, "collective path segment is required")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	results, cacheHit, err := h.engine.Search(ctx, collective, query, limit)
	if err != nil {
		log.Error("search failed", "collective", collective, "query", query, "error", err)
		if errors.Is(err, pkgerrors.ErrSearchUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "search failed")
		return
	}

	log.Info("search completed",
		"collective", collective,
		"query", query,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Collective: collective,
		Query:      query,
		Results:    results,
		CacheHit:   cacheHit,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	collective := r.PathValue("collective")
	if collective == "" {
		h.writeError(w, http.StatusBadRequest, "collective path segment is required")
		return
	}

	if err := h.cache.InvalidateCollective(r.Context(), collective); err != nil {
		h.logger.Error("cache invalidation failed", "collective", collective, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
