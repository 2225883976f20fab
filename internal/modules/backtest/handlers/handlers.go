// Package handlers provides HTTP handlers for rolling backtests.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/utils"
)

// PriceLoader loads the price history selected by a request
type PriceLoader interface {
	LoadRequest(ctx context.Context, r prices.Request) (*domain.PriceSeries, error)
}

// RunStore persists results so they can be fetched again by id
type RunStore interface {
	Save(kind string, payload interface{}) (string, error)
}

// Handler handles backtest HTTP requests
type Handler struct {
	prices     PriceLoader
	backtester *backtest.Backtester
	optimizer  *optimization.MVOptimizer
	runs       RunStore
	defaults   backtest.Params
	log        zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(
	prices PriceLoader,
	backtester *backtest.Backtester,
	optimizer *optimization.MVOptimizer,
	runs RunStore,
	defaults backtest.Params,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		prices:     prices,
		backtester: backtester,
		optimizer:  optimizer,
		runs:       runs,
		defaults:   defaults,
		log:        log.With().Str("handler", "backtest").Logger(),
	}
}

// Request is the body of POST /api/backtest
type Request struct {
	prices.Request
	Strategy               string   `json:"strategy,omitempty"`
	AllowShort             bool     `json:"allow_short"`
	LookbackWindowDays     int      `json:"lookback_window_days,omitempty"`
	RebalanceFrequencyDays int      `json:"rebalance_frequency_days,omitempty"`
	RiskFreeRate           *float64 `json:"risk_free_rate,omitempty"`
}

// Response is the stored and returned backtest
type Response struct {
	Strategy string           `json:"strategy" msgpack:"strategy"`
	Params   backtest.Params  `json:"params" msgpack:"params"`
	Trace    *backtest.Trace  `json:"trace" msgpack:"trace"`
	Summary  backtest.Summary `json:"summary" msgpack:"summary"`
	RunID    string           `json:"run_id,omitempty" msgpack:"-"`
}

// params overlays the request on the configured defaults.
func (h *Handler) params(req Request) backtest.Params {
	p := h.defaults
	if req.LookbackWindowDays > 0 {
		p.LookbackWindowDays = req.LookbackWindowDays
	}
	if req.RebalanceFrequencyDays > 0 {
		p.RebalanceFrequencyDays = req.RebalanceFrequencyDays
	}
	if req.RiskFreeRate != nil {
		p.RiskFreeRate = *req.RiskFreeRate
	}
	return p
}

// HandleBacktest handles POST /api/backtest. With ?format=png the equity
// curve is returned as an image instead of JSON.
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("backtest", h.log)()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := req.Strategy
	if name == "" {
		name = backtest.StrategyMaxSharpe
	}
	strategy, ok := backtest.NewStrategy(name, h.optimizer, req.AllowShort)
	if !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown strategy %q", req.Strategy))
		return
	}

	params := h.params(req)
	if err := params.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ps, err := h.prices.LoadRequest(r.Context(), req.Request)
	if err != nil {
		h.fail(w, err, "Failed to load price history")
		return
	}

	trace, err := h.backtester.Run(r.Context(), ps, strategy, params)
	if err != nil {
		h.fail(w, err, "Backtest failed")
		return
	}

	if r.URL.Query().Get("format") == "png" {
		png, err := charts.RenderBacktest(trace)
		if err != nil {
			h.fail(w, err, "Failed to render backtest chart")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
		return
	}

	resp := Response{
		Strategy: name,
		Params:   params,
		Trace:    trace,
		Summary:  backtest.Summarize(trace, params.RebalanceFrequencyDays, params.TradingDaysPerYear),
	}
	if h.runs != nil {
		if id, err := h.runs.Save(runs.KindBacktest, resp); err != nil {
			h.log.Warn().Err(err).Msg("Failed to save backtest run")
		} else {
			resp.RunID = id
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": resp,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error, message string) {
	status := utils.StatusForError(err)
	if errors.Is(err, charts.ErrNoData) {
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(message)
	}
	h.writeError(w, status, fmt.Sprintf("%s: %v", message, err))
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
