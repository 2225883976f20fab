// Package handlers provides HTTP handlers for chart data.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/utils"
)

// Handler provides HTTP handlers for chart endpoints
type Handler struct {
	service        *charts.Service
	frontierPoints int
	log            zerolog.Logger
}

// NewHandler creates a new charts handler
func NewHandler(service *charts.Service, frontierPoints int, log zerolog.Logger) *Handler {
	return &Handler{
		service:        service,
		frontierPoints: frontierPoints,
		log:            log.With().Str("handler", "charts").Logger(),
	}
}

// HandleGetPrices handles GET /api/charts/prices?tickers=AAPL,MSFT&range=1Y
// Returns a PNG by default; format=json returns the rebased series grouped
// by group_by (day, week or month).
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tickers := utils.ParseTickers(q["tickers"]...)
	if len(tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	if q.Get("format") == "json" {
		data, err := h.service.GetPriceChart(r.Context(), tickers, q.Get("range"), q.Get("group_by"))
		if err != nil {
			h.fail(w, err, "Failed to get price chart data")
			return
		}
		h.writeJSON(w, http.StatusOK, data)
		return
	}

	png, err := h.service.GetPricesPNG(r.Context(), tickers, q.Get("range"))
	if err != nil {
		h.fail(w, err, "Failed to render price chart")
		return
	}
	writePNG(w, png)
}

// HandleGetFrontier handles GET /api/charts/frontier?tickers=...&points=50&short=true
func (h *Handler) HandleGetFrontier(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tickers := utils.ParseTickers(q["tickers"]...)
	if len(tickers) == 0 {
		h.writeError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	opts := optimization.FrontierOptions{Points: h.frontierPoints}
	if s := q.Get("points"); s != "" {
		points, err := strconv.Atoi(s)
		if err != nil || points < 1 {
			h.writeError(w, http.StatusBadRequest, "points must be a positive integer")
			return
		}
		opts.Points = points
	}
	if s := q.Get("short"); s != "" {
		short, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "short must be a boolean")
			return
		}
		opts.AllowShort = short
	}

	png, err := h.service.GetFrontierPNG(r.Context(), tickers, q.Get("range"), opts)
	if err != nil {
		h.fail(w, err, "Failed to render frontier chart")
		return
	}
	writePNG(w, png)
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, status, msg)
		return
	}
	h.writeError(w, status, err.Error())
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
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
