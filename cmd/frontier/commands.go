package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/clients/csvprices"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	backtesthandlers "github.com/aristath/frontier/internal/modules/backtest/handlers"
	"github.com/aristath/frontier/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/simulation"
	simulationhandlers "github.com/aristath/frontier/internal/modules/simulation/handlers"
	"github.com/aristath/frontier/internal/utils"
)

func (a *app) load(ctx context.Context) (*domain.PriceSeries, error) {
	req, err := a.request()
	if err != nil {
		return nil, err
	}
	return a.container.PriceService.LoadRequest(ctx, req)
}

func (a *app) moments(ctx context.Context) (*optimization.Moments, error) {
	ps, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return a.container.RiskBuilder.Build(ps)
}

func newOptimizeCommand(a *app) *cobra.Command {
	var (
		target       float64
		riskFreeRate float64
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Solve the max-Sharpe and min-volatility portfolios",
		RunE: func(cmd *cobra.Command, args []string) error {
			moments, err := a.moments(cmd.Context())
			if err != nil {
				return err
			}

			rf := a.container.RiskFreeRate
			if cmd.Flags().Changed("rf") {
				rf = riskFreeRate
			}
			opts := optimization.SolveOptions{AllowShort: a.short}
			if cmd.Flags().Changed("target") {
				opts.TargetReturn = &target
			}

			result, err := a.container.Optimizer.Solve(moments.ExpectedReturns, moments.Covariance, rf, opts)
			if err != nil {
				return err
			}

			resp := optimizationhandlers.OptimizeResponse{
				Symbols:      moments.Symbols,
				Observations: moments.Observations,
				RiskFreeRate: rf,
				Result:       *result,
			}
			resp.RunID = a.store(runs.KindOptimize, resp)
			return a.print(resp)
		},
	}

	cmd.Flags().Float64Var(&target, "target", 0, "annualized target return for the efficient-return portfolio")
	cmd.Flags().Float64Var(&riskFreeRate, "rf", 0, "annualized risk-free rate (default from RISK_FREE_RATE)")
	return cmd
}

func newFrontierCommand(a *app) *cobra.Command {
	var points int

	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "Trace the efficient frontier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if points <= 0 {
				points = a.container.FrontierPoints
			}
			if points > optimization.MaxFrontierPoints {
				return fmt.Errorf("%w: --points must be at most %d", domain.ErrInvalidRequest, optimization.MaxFrontierPoints)
			}
			moments, err := a.moments(cmd.Context())
			if err != nil {
				return err
			}

			curve, err := a.container.Optimizer.Frontier(cmd.Context(), moments.ExpectedReturns, moments.Covariance, optimization.FrontierOptions{
				Points:     points,
				AllowShort: a.short,
			})
			if err != nil {
				return err
			}

			rets, vols := a.container.RiskBuilder.AssetStats(moments)
			assets := make([]optimizationhandlers.AssetStats, len(moments.Symbols))
			for i, s := range moments.Symbols {
				assets[i] = optimizationhandlers.AssetStats{Symbol: s, Return: rets[i], Volatility: vols[i]}
			}

			resp := optimizationhandlers.FrontierResponse{
				Symbols: moments.Symbols,
				Assets:  assets,
				Curve:   curve,
			}
			resp.RunID = a.store(runs.KindFrontier, resp)
			return a.print(resp)
		},
	}

	cmd.Flags().IntVar(&points, "points", 0, "number of target returns (default from FRONTIER_POINTS)")
	return cmd
}

func newBacktestCommand(a *app) *cobra.Command {
	var (
		strategy  string
		lookback  int
		rebalance int
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a rolling out-of-sample backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			strat, ok := backtest.NewStrategy(strategy, a.container.Optimizer, a.short)
			if !ok {
				return fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidRequest, strategy)
			}

			ps, err := a.load(cmd.Context())
			if err != nil {
				return err
			}

			params := a.container.BacktestParams
			if lookback > 0 {
				params.LookbackWindowDays = lookback
			}
			if rebalance > 0 {
				params.RebalanceFrequencyDays = rebalance
			}

			trace, err := a.container.Backtester.Run(cmd.Context(), ps, strat, params)
			if err != nil {
				return err
			}

			resp := backtesthandlers.Response{
				Strategy: strategy,
				Params:   params,
				Trace:    trace,
				Summary:  backtest.Summarize(trace, params.RebalanceFrequencyDays, params.TradingDaysPerYear),
			}
			resp.RunID = a.store(runs.KindBacktest, resp)
			return a.print(resp)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", backtest.StrategyMaxSharpe, "max_sharpe, min_volatility or equal_weight")
	cmd.Flags().IntVar(&lookback, "lookback", 0, "training window in trading days (default from LOOKBACK_WINDOW_DAYS)")
	cmd.Flags().IntVar(&rebalance, "rebalance", 0, "rebalance period in trading days (default from REBALANCE_FREQUENCY_DAYS)")
	return cmd
}

func newSimulateCommand(a *app) *cobra.Command {
	var (
		weights     []float64
		seed        uint64
		simulations int
		horizon     int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Monte Carlo simulate portfolio log returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.container.SimulationOptions
			if cmd.Flags().Changed("seed") {
				opts.Seed = &seed
			}
			if simulations > 0 {
				opts.Simulations = simulations
			}
			if horizon > 0 {
				opts.HorizonDays = horizon
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			ps, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			returns := ps.LogReturns()

			if len(weights) == 0 {
				moments, err := a.container.RiskBuilder.BuildFromReturns(returns)
				if err != nil {
					return err
				}
				res, err := a.container.Optimizer.Solve(moments.ExpectedReturns, moments.Covariance, a.container.RiskFreeRate, optimization.SolveOptions{AllowShort: a.short})
				if err != nil {
					return err
				}
				weights = res.MaxSharpe.Weights
			}

			bundle, err := a.container.Simulator.Simulate(cmd.Context(), weights, returns, opts)
			if err != nil {
				return err
			}
			summary, err := simulation.Summarize(bundle)
			if err != nil {
				return err
			}

			resp := simulationhandlers.Response{
				Symbols:     ps.Symbols,
				Weights:     weights,
				HorizonDays: opts.HorizonDays,
				Method:      bundle.Method,
				Seed:        bundle.Seed,
				Summary:     summary,
			}
			resp.RunID = a.store(runs.KindSimulate, resp)
			return a.print(resp)
		},
	}

	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "portfolio weights in ticker order (default max-Sharpe)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default from SIMULATION_SEED)")
	cmd.Flags().IntVar(&simulations, "simulations", 0, "number of trials (default from SIMULATION_COUNT)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "trading days per trial (default from SIMULATION_HORIZON_DAYS)")
	return cmd
}

// fetchedSymbol summarizes one symbol of a fetch.
type fetchedSymbol struct {
	Symbol           string  `json:"symbol"`
	First            string  `json:"first"`
	Last             string  `json:"last"`
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_volatility"`
}

func newFetchCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch prices into the cache, optionally exporting them as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer utils.OperationTimer("fetch", a.log)()

			ps, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			if ps.Len() == 0 {
				return fmt.Errorf("%w: no prices for %v", domain.ErrInsufficientHistory, ps.Symbols)
			}

			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				if err := csvprices.Encode(f, ps); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				a.log.Info().Str("path", out).Int("rows", ps.Len()).Msg("Prices exported")
			}

			rets, vols := a.container.RiskBuilder.ReturnStats(ps.LogReturns())
			summary := make([]fetchedSymbol, len(ps.Symbols))
			for j, s := range ps.Symbols {
				summary[j] = fetchedSymbol{
					Symbol:           s,
					First:            ps.Dates[0].Format("2006-01-02"),
					Last:             ps.Dates[ps.Len()-1].Format("2006-01-02"),
					AnnualizedReturn: rets[j],
					AnnualizedVol:    vols[j],
				}
			}
			return a.print(summary)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the aligned price table to this CSV file")
	return cmd
}
