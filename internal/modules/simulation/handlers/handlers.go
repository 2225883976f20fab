// Package handlers provides HTTP handlers for Monte Carlo simulation.
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
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/utils"
)

// maxSamplePaths caps the number of raw paths echoed back in a response
const maxSamplePaths = 100

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
	Options      simulation.Options
	RiskFreeRate float64
}

// Handler handles simulation HTTP requests
type Handler struct {
	prices    PriceLoader
	simulator *simulation.Simulator
	risk      *optimization.RiskModelBuilder
	optimizer *optimization.MVOptimizer
	runs      RunStore
	defaults  Defaults
	log       zerolog.Logger
}

// NewHandler creates a new simulation handler
func NewHandler(
	prices PriceLoader,
	simulator *simulation.Simulator,
	risk *optimization.RiskModelBuilder,
	optimizer *optimization.MVOptimizer,
	runs RunStore,
	defaults Defaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		prices:    prices,
		simulator: simulator,
		risk:      risk,
		optimizer: optimizer,
		runs:      runs,
		defaults:  defaults,
		log:       log.With().Str("handler", "simulation").Logger(),
	}
}

// Request is the body of POST /api/simulate. Without weights the max-Sharpe
// portfolio of the loaded history is simulated.
type Request struct {
	prices.Request
	Weights     []float64 `json:"weights,omitempty"`
	AllowShort  bool      `json:"allow_short"`
	Simulations int       `json:"simulations,omitempty"`
	HorizonDays int       `json:"horizon_days,omitempty"`
	Seed        *uint64   `json:"seed,omitempty"`
	SamplePaths int       `json:"sample_paths,omitempty"`
}

// Validate rejects run sizes the simulator would refuse.
func (r Request) Validate() error {
	if r.Simulations > simulation.MaxSimulations {
		return fmt.Errorf("%w: simulations must be at most %d, got %d", domain.ErrInvalidRequest, simulation.MaxSimulations, r.Simulations)
	}
	if r.HorizonDays > simulation.MaxHorizonDays {
		return fmt.Errorf("%w: horizon_days must be at most %d, got %d", domain.ErrInvalidRequest, simulation.MaxHorizonDays, r.HorizonDays)
	}
	return nil
}

// Response is the stored and returned simulation outcome. Only a sample of
// the paths is kept.
type Response struct {
	Symbols     []string           `json:"symbols" msgpack:"symbols"`
	Weights     []float64          `json:"weights" msgpack:"weights"`
	HorizonDays int                `json:"horizon_days" msgpack:"horizon_days"`
	Method      string             `json:"method" msgpack:"method"`
	Seed        uint64             `json:"seed" msgpack:"seed"`
	Summary     simulation.Summary `json:"summary" msgpack:"summary"`
	Paths       [][]float64        `json:"paths,omitempty" msgpack:"paths,omitempty"`
	RunID       string             `json:"run_id,omitempty" msgpack:"-"`
}

func (h *Handler) options(req Request) simulation.Options {
	opts := h.defaults.Options
	if req.Simulations > 0 {
		opts.Simulations = req.Simulations
	}
	if req.HorizonDays > 0 {
		opts.HorizonDays = req.HorizonDays
	}
	if req.Seed != nil {
		opts.Seed = req.Seed
	}
	return opts
}

// HandleSimulate handles POST /api/simulate. With ?format=png the percentile
// bands of portfolio value are returned as an image instead of JSON.
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("simulate", h.log)()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	opts := h.options(req)
	if err := req.Validate(); err != nil {
		h.fail(w, err, "Invalid simulation request")
		return
	}
	if err := opts.Validate(); err != nil {
		h.fail(w, err, "Invalid simulation request")
		return
	}

	ps, err := h.prices.LoadRequest(r.Context(), req.Request)
	if err != nil {
		h.fail(w, err, "Failed to load price history")
		return
	}
	returns := ps.LogReturns()

	weights := req.Weights
	if len(weights) == 0 {
		weights, err = h.maxSharpeWeights(returns, req.AllowShort)
		if err != nil {
			h.fail(w, err, "Failed to derive portfolio weights")
			return
		}
	}

	bundle, err := h.simulator.Simulate(r.Context(), weights, returns, opts)
	if err != nil {
		h.fail(w, err, "Simulation failed")
		return
	}

	if r.URL.Query().Get("format") == "png" {
		png, err := charts.RenderSimulation(bundle)
		if err != nil {
			h.fail(w, err, "Failed to render simulation chart")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
		return
	}

	summary, err := simulation.Summarize(bundle)
	if err != nil {
		h.fail(w, err, "Failed to summarize simulation")
		return
	}

	resp := Response{
		Symbols:     ps.Symbols,
		Weights:     weights,
		HorizonDays: opts.HorizonDays,
		Method:      bundle.Method,
		Seed:        bundle.Seed,
		Summary:     summary,
		Paths:       bundle.Paths[:max(0, min(req.SamplePaths, maxSamplePaths, len(bundle.Paths)))],
	}
	if len(resp.Paths) == 0 {
		resp.Paths = nil
	}
	if h.runs != nil {
		if id, err := h.runs.Save(runs.KindSimulate, resp); err != nil {
			h.log.Warn().Err(err).Msg("Failed to save simulation run")
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

func (h *Handler) maxSharpeWeights(returns *domain.LogReturnSeries, allowShort bool) ([]float64, error) {
	moments, err := h.risk.BuildFromReturns(returns)
	if err != nil {
		return nil, err
	}
	res, err := h.optimizer.Solve(moments.ExpectedReturns, moments.Covariance, h.defaults.RiskFreeRate, optimization.SolveOptions{AllowShort: allowShort})
	if err != nil {
		return nil, err
	}
	return res.MaxSharpe.Weights, nil
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
