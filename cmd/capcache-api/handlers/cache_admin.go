// Package handlers provides HTTP handlers for the capcache admin API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mobr-ai/capcache/internal/cache"
	"github.com/mobr-ai/capcache/internal/observability"
)

// CacheAdminHandler handles cache administration requests.
type CacheAdminHandler struct {
	logger      *observability.Logger
	nlCache     *cache.NLClient
	maxFileSize int64
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(logger *observability.Logger, nlCache *cache.NLClient, maxFileSize int64) *CacheAdminHandler {
	if maxFileSize <= 0 {
		maxFileSize = 4 << 20
	}
	return &CacheAdminHandler{
		logger:      logger,
		nlCache:     nlCache,
		maxFileSize: maxFileSize,
	}
}

// PrecacheRequestDTO represents the API request for file-path precaching.
type PrecacheRequestDTO struct {
	FilePath string `json:"file_path"`
	TTL      int64  `json:"ttl,omitempty"` // seconds
}

// ClearResponseDTO represents the API response for cache clearing.
type ClearResponseDTO struct {
	Message        string `json:"message"`
	EntriesDeleted int    `json:"entries_deleted"`
}

// InfoResponseDTO represents the API response for cache info.
type InfoResponseDTO struct {
	TotalCachedQueries   int               `json:"total_cached_queries"`
	PrecachedQueries     int               `json:"precached_queries"`
	DynamicCachedQueries int               `json:"dynamic_cached_queries"`
	PopularQueries       []PopularQueryDTO `json:"popular_queries"`
}

// PopularQueryDTO represents one ranked popular query.
type PopularQueryDTO struct {
	Rank      int    `json:"rank"`
	Query     string `json:"query"`
	Frequency int64  `json:"frequency"`
}

// PrecacheFile handles POST /api/v1/admin/cache/precache/file.
func (h *CacheAdminHandler) PrecacheFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO PrecacheRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if reqDTO.FilePath == "" {
		h.writeError(w, http.StatusBadRequest, "file_path is required", "")
		return
	}

	if _, err := os.Stat(reqDTO.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.writeError(w, http.StatusNotFound, "file not found", reqDTO.FilePath)
			return
		}
		h.writeError(w, http.StatusForbidden, "file not readable", err.Error())
		return
	}

	stats, err := h.nlCache.PrecacheFromFile(ctx, reqDTO.FilePath, time.Duration(reqDTO.TTL)*time.Second)
	if err != nil {
		h.logger.Error().Err(err).Str("file", reqDTO.FilePath).Msg("Precache from file failed")
		h.writeError(w, http.StatusInternalServerError, "precache failed", err.Error())
		return
	}

	h.logger.Info().
		Str("file", reqDTO.FilePath).
		Int("cached", stats.Cached).
		Int("skipped", stats.Skipped).
		Msg("Precache from file complete")

	h.writeJSON(w, http.StatusOK, stats)
}

// PrecacheUpload handles POST /api/v1/admin/cache/precache/upload.
func (h *CacheAdminHandler) PrecacheUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "upload too large", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required", err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	var ttl time.Duration
	if v := r.FormValue("ttl"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			ttl = d
		}
	}

	stats := h.nlCache.Precache(ctx, string(content), ttl)

	h.logger.Info().
		Str("filename", header.Filename).
		Int("cached", stats.Cached).
		Int("skipped", stats.Skipped).
		Msg("Precache from upload complete")

	h.writeJSON(w, http.StatusOK, stats)
}

// Clear handles DELETE /api/v1/admin/cache/clear.
func (h *CacheAdminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.nlCache.CacheInfo(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "cache info failed", err.Error())
		return
	}

	if err := h.nlCache.Clear(ctx); err != nil {
		h.logger.Error().Err(err).Msg("Cache clear failed")
		h.writeError(w, http.StatusInternalServerError, "cache clear failed", err.Error())
		return
	}

	h.logger.Info().Int("entries", info.Entries).Msg("Cache cleared")

	h.writeJSON(w, http.StatusOK, ClearResponseDTO{
		Message:        "Cache cleared successfully",
		EntriesDeleted: info.Entries,
	})
}

// Info handles GET /api/v1/admin/cache/info.
func (h *CacheAdminHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.nlCache.CacheInfo(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "cache info failed", err.Error())
		return
	}

	popular, err := h.nlCache.PopularQueries(ctx, 10)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "popular queries failed", err.Error())
		return
	}

	resp := InfoResponseDTO{
		TotalCachedQueries:   info.Entries,
		PrecachedQueries:     info.Precached,
		DynamicCachedQueries: info.Entries - info.Precached,
		PopularQueries:       make([]PopularQueryDTO, 0, len(popular)),
	}
	for i, q := range popular {
		resp.PopularQueries = append(resp.PopularQueries, PopularQueryDTO{
			Rank:      i + 1,
			Query:     q.Query,
			Frequency: q.Count,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Popular handles GET /api/v1/admin/cache/popular.
func (h *CacheAdminHandler) Popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	popular, err := h.nlCache.PopularQueries(ctx, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "popular queries failed", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"queries": popular})
}

func (h *CacheAdminHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *CacheAdminHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
