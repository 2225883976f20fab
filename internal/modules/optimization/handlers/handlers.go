// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
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

// Defaults are applied to request fields that are left out
type Defaults struct {
	RiskFreeRate   float64
	FrontierPoints int
}

// Handler handles optimization HTTP requests
type Handler struct {
	prices    PriceLoader
	risk      *optimization.RiskModelBuilder
	optimizer *optimization.MVOptimizer
	runs      RunStore
	defaults  Defaults
	log       zerolog.Logger
}

// NewHandler creates a new optimization handler. runs may be nil, in which
// case results are not persisted.
func NewHandler(
	prices PriceLoader,
	risk *optimization.RiskModelBuilder,
	optimizer *optimization.MVOptimizer,
	runs RunStore,
	defaults Defaults,
	log zerolog.Logger,
) *Handler {
	if defaults.FrontierPoints <= 0 {
		defaults.FrontierPoints = optimization.DefaultFrontierPoints
	}
	return &Handler{
		prices:    prices,
		risk:      risk,
		optimizer: optimizer,
		runs:      runs,
		defaults:  defaults,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

// OptimizeRequest is the body of POST /api/optimize
type OptimizeRequest struct {
	prices.Request
	AllowShort   bool     `json:"allow_short"`
	TargetReturn *float64 `json:"target_return,omitempty"`
	RiskFreeRate *float64 `json:"risk_free_rate,omitempty"`
}

// OptimizeResponse is the stored and returned optimization result
type OptimizeResponse struct {
	Symbols      []string            `json:"symbols" msgpack:"symbols"`
	Observations int                 `json:"observations" msgpack:"observations"`
	RiskFreeRate float64             `json:"risk_free_rate" msgpack:"risk_free_rate"`
	Result       optimization.Result `json:"result" msgpack:"result"`
	RunID        string              `json:"run_id,omitempty" msgpack:"-"`
}

// FrontierRequest is the body of POST /api/frontier
type FrontierRequest struct {
	prices.Request
	AllowShort bool `json:"allow_short"`
	Points     int  `json:"points,omitempty"`
}

// Validate rejects grids larger than a single sweep allows.
func (r FrontierRequest) Validate() error {
	if r.Points > optimization.MaxFrontierPoints {
		return fmt.Errorf("%w: points must be at most %d, got %d", domain.ErrInvalidRequest, optimization.MaxFrontierPoints, r.Points)
	}
	return nil
}

// FrontierResponse is the stored and returned frontier
type FrontierResponse struct {
	Symbols []string                    `json:"symbols" msgpack:"symbols"`
	Assets  []AssetStats                `json:"assets" msgpack:"assets"`
	Curve   *optimization.FrontierCurve `json:"curve" msgpack:"curve"`
	RunID   string                      `json:"run_id,omitempty" msgpack:"-"`
}

// AssetStats is the annualized profile of a single asset
type AssetStats struct {
	Symbol     string  `json:"symbol" msgpack:"symbol"`
	Return     float64 `json:"expected_return" msgpack:"expected_return"`
	Volatility float64 `json:"volatility" msgpack:"volatility"`
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("optimize", h.log)()

	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	moments, err := h.moments(r.Context(), req.Request)
	if err != nil {
		h.fail(w, err, "Failed to load price history")
		return
	}

	rf := h.defaults.RiskFreeRate
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}

	result, err := h.optimizer.Solve(moments.ExpectedReturns, moments.Covariance, rf, optimization.SolveOptions{
		TargetReturn: req.TargetReturn,
		AllowShort:   req.AllowShort,
	})
	if err != nil {
		h.fail(w, err, "Optimization failed")
		return
	}

	resp := OptimizeResponse{
		Symbols:      moments.Symbols,
		Observations: moments.Observations,
		RiskFreeRate: rf,
		Result:       *result,
	}
	resp.RunID = h.save(runs.KindOptimize, resp)

	h.writeData(w, resp)
}

// HandleFrontier handles POST /api/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("frontier", h.log)()

	var req FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, err, "Invalid frontier request")
		return
	}

	moments, err := h.moments(r.Context(), req.Request)
	if err != nil {
		h.fail(w, err, "Failed to load price history")
		return
	}

	points := req.Points
	if points <= 0 {
		points = h.defaults.FrontierPoints
	}

	curve, err := h.optimizer.Frontier(r.Context(), moments.ExpectedReturns, moments.Covariance, optimization.FrontierOptions{
		Points:     points,
		AllowShort: req.AllowShort,
	})
	if err != nil {
		h.fail(w, err, "Frontier computation failed")
		return
	}

	resp := FrontierResponse{
		Symbols: moments.Symbols,
		Assets:  h.assetStats(moments),
		Curve:   curve,
	}
	resp.RunID = h.save(runs.KindFrontier, resp)

	h.writeData(w, resp)
}

// HandleAssets handles GET /api/assets?tickers=SPY,AGG&start=&end=&threshold=0.8
func (h *Handler) HandleAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := prices.Request{
		Tickers: []string{q.Get("tickers")},
		Start:   q.Get("start"),
		End:     q.Get("end"),
	}

	threshold := optimization.HighCorrelationThreshold
	if v := q.Get("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			h.writeError(w, http.StatusBadRequest, "threshold must be a number between 0 and 1")
			return
		}
		threshold = parsed
	}

	moments, err := h.moments(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to load price history")
		return
	}

	h.writeData(w, map[string]interface{}{
		"assets":            h.assetStats(moments),
		"observations":      moments.Observations,
		"high_correlations": h.risk.Correlations(moments, threshold),
		"threshold":         threshold,
	})
}

func (h *Handler) moments(ctx context.Context, req prices.Request) (*optimization.Moments, error) {
	ps, err := h.prices.LoadRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.risk.Build(ps)
}

func (h *Handler) assetStats(m *optimization.Moments) []AssetStats {
	returns, vols := h.risk.AssetStats(m)
	out := make([]AssetStats, len(m.Symbols))
	for i, s := range m.Symbols {
		out[i] = AssetStats{Symbol: s, Return: returns[i], Volatility: vols[i]}
	}
	return out
}

// save stores the payload and returns its run id, or "" when persistence is
// disabled or fails. A failed save never fails the request.
func (h *Handler) save(kind string, payload interface{}) string {
	if h.runs == nil {
		return ""
	}
	id, err := h.runs.Save(kind, payload)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Failed to save run")
		return ""
	}
	return id
}

func (h *Handler) fail(w http.ResponseWriter, err error, message string) {
	status := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(message)
	}
	h.writeError(w, status, fmt.Sprintf("%s: %v", message, err))
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
