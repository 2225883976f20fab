// Package handlers provides HTTP handlers for the price cache.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/utils"
)

// CacheService is the part of prices.Service the handlers use.
type CacheService interface {
	Coverage() ([]prices.Coverage, error)
	Refresh(ctx context.Context, tickers []string) (int, error)
}

// Handler handles price cache HTTP requests
type Handler struct {
	service CacheService
	log     zerolog.Logger
}

// NewHandler creates a new prices handler
func NewHandler(service CacheService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "prices").Logger(),
	}
}

// RefreshRequest is the body of POST /api/prices/refresh
type RefreshRequest struct {
	Tickers []string `json:"tickers"`
}

// HandleGetCoverage handles GET /api/prices/coverage
func (h *Handler) HandleGetCoverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := h.service.Coverage()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list price coverage")
		h.writeError(w, http.StatusInternalServerError, "Failed to list price coverage")
		return
	}

	h.writeData(w, map[string]interface{}{
		"symbols": coverage,
		"count":   len(coverage),
	})
}

// HandleRefresh handles POST /api/prices/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tickers := utils.ParseTickers(req.Tickers...)
	if len(tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	rows, err := h.service.Refresh(r.Context(), tickers)
	if err != nil {
		status := utils.StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Strs("tickers", tickers).Msg("Price refresh failed")
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeData(w, map[string]interface{}{
		"tickers": tickers,
		"rows":    rows,
	})
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
