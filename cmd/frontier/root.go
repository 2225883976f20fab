package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/utils"
	"github.com/aristath/frontier/pkg/logger"
)

// app holds what every subcommand needs once the root command has run.
type app struct {
	cfg       *config.Config
	container *di.Container
	log       zerolog.Logger
	out       io.Writer

	tickers []string
	start   string
	end     string
	short   bool
	save    bool
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "frontier",
		Short:         "Mean-variance portfolio optimization, backtesting and simulation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.container != nil {
				a.container.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.tickers, "tickers", nil, "comma separated ticker symbols")
	flags.StringVar(&a.start, "start", "", "first date (YYYY-MM-DD), default five years ago")
	flags.StringVar(&a.end, "end", "", "last date (YYYY-MM-DD), default today")
	flags.BoolVar(&a.short, "short", false, "allow short positions")
	flags.BoolVar(&a.save, "save", false, "store the result in the runs database")

	root.AddCommand(
		newOptimizeCommand(a),
		newFrontierCommand(a),
		newBacktestCommand(a),
		newSimulateCommand(a),
		newFetchCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	// Logs go to stderr so stdout stays valid JSON
	a.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true, Out: os.Stderr})
	logger.SetGlobalLogger(a.log)

	container, _, err := di.Wire(cfg, nil, a.log)
	if err != nil {
		return err
	}
	a.container = container
	return nil
}

func (a *app) request() (prices.Request, error) {
	tickers := utils.ParseTickers(a.tickers...)
	if len(tickers) == 0 {
		tickers = a.cfg.Tickers
	}
	if len(tickers) == 0 {
		return prices.Request{}, fmt.Errorf("%w: --tickers is required", domain.ErrInvalidRequest)
	}
	return prices.Request{Tickers: tickers, Start: a.start, End: a.end}, nil
}

// store saves v as a run when --save is set and returns the run id.
func (a *app) store(kind string, v interface{}) string {
	if !a.save {
		return ""
	}
	id, err := a.container.RunRepo.Save(kind, v)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to save run")
		return ""
	}
	a.log.Info().Str("run_id", id).Str("kind", kind).Msg("Run saved")
	return id
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
