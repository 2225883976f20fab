package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/clients/csvprices"
	"github.com/aristath/frontier/internal/domain"
	testingpkg "github.com/aristath/frontier/internal/testing"
)

// setupCSV points the configuration at a fixture price file.
func setupCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "prices.csv")
	f, err := os.Create(csvPath)
	require.NoError(t, err)
	require.NoError(t, csvprices.Encode(f, testingpkg.NewPriceFixture([]string{"AAA", "BBB", "CCC"}, 300)))
	require.NoError(t, f.Close())

	t.Setenv("FRONTIER_DATA_DIR", dir)
	t.Setenv("FRONTIER_DATA_SOURCE", "csv")
	t.Setenv("FRONTIER_PRICES_CSV", csvPath)
	t.Setenv("FRONTIER_TICKERS", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SIMULATION_COUNT", "50")
	t.Setenv("SIMULATION_HORIZON_DAYS", "10")
	return dir
}

func run(t *testing.T, args ...string) map[string]interface{} {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append(args, "--tickers", "AAA,BBB,CCC", "--start", "2022-01-03", "--end", "2022-12-31"))
	require.NoError(t, cmd.Execute())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, resp map[string]interface{})
	}{
		{
			name: "optimize",
			args: []string{"optimize", "--target", "0.05"},
			check: func(t *testing.T, resp map[string]interface{}) {
				result := resp["result"].(map[string]interface{})
				assert.Contains(t, result, "max_sharpe")
				assert.Contains(t, result, "min_volatility")
				assert.Len(t, resp["symbols"], 3)
			},
		},
		{
			name: "frontier",
			args: []string{"frontier", "--points", "5"},
			check: func(t *testing.T, resp map[string]interface{}) {
				assert.Len(t, resp["assets"], 3)
				assert.NotNil(t, resp["curve"])
			},
		},
		{
			name: "backtest",
			args: []string{"backtest", "--strategy", "equal_weight", "--lookback", "63", "--rebalance", "21"},
			check: func(t *testing.T, resp map[string]interface{}) {
				assert.Equal(t, "equal_weight", resp["strategy"])
				summary := resp["summary"].(map[string]interface{})
				assert.Greater(t, summary["periods"].(float64), 0.0)
			},
		},
		{
			name: "simulate",
			args: []string{"simulate", "--seed", "7", "--weights", "0.5,0.25,0.25"},
			check: func(t *testing.T, resp map[string]interface{}) {
				assert.Equal(t, 7.0, resp["seed"])
				assert.Equal(t, 10.0, resp["horizon_days"])
				assert.Equal(t, []interface{}{0.5, 0.25, 0.25}, resp["weights"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCSV(t)
			resp := run(t, tt.args...)
			assert.NotContains(t, resp, "run_id")
			tt.check(t, resp)
		})
	}
}

func TestCommands_Save(t *testing.T) {
	setupCSV(t)
	resp := run(t, "optimize", "--save")
	assert.NotEmpty(t, resp["run_id"])
}

func TestFetchCommand(t *testing.T) {
	dir := setupCSV(t)
	outPath := filepath.Join(dir, "export.csv")

	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"fetch", "--tickers", "AAA,BBB,CCC", "--start", "2022-01-03", "--end", "2022-12-31", "--out", outPath})
	require.NoError(t, cmd.Execute())

	var summary []fetchedSymbol
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Len(t, summary, 3)
	assert.Equal(t, "AAA", summary[0].Symbol)
	assert.Equal(t, "2022-01-03", summary[0].First)
	assert.Greater(t, summary[0].AnnualizedVol, 0.0)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	obs, err := csvprices.Decode(f)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, o := range obs {
		seen[o.Symbol] = true
	}
	assert.Len(t, seen, 3)
}

func TestCommands_MissingTickers(t *testing.T) {
	setupCSV(t)

	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"optimize"})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestCommands_OversizedRuns(t *testing.T) {
	setupCSV(t)

	tests := []struct {
		name string
		args []string
	}{
		{"frontier points", []string{"frontier", "--points", "5000"}},
		{"simulations", []string{"simulate", "--simulations", "2000000000"}},
		{"horizon", []string{"simulate", "--horizon", "100000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand(&bytes.Buffer{})
			cmd.SetArgs(append(tt.args, "--tickers", "AAA,BBB,CCC"))
			cmd.SetErr(&bytes.Buffer{})
			assert.ErrorIs(t, cmd.Execute(), domain.ErrInvalidRequest)
		})
	}
}
