package simulation

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Summary describes the distribution of simulated total log returns.
type Summary struct {
	Simulations       int     `json:"simulations"`
	Mean              float64 `json:"mean"`
	StdDev            float64 `json:"std_dev"`
	Percentile5       float64 `json:"p5"`
	Median            float64 `json:"p50"`
	Percentile95      float64 `json:"p95"`
	ProbabilityOfLoss float64 `json:"probability_of_loss"`
	// ExpectedGrowth is the mean of exp(return), the expected terminal value of 1 invested.
	ExpectedGrowth float64 `json:"expected_growth"`
}

// Summarize computes summary statistics of the bundle's returns.
func Summarize(b *Bundle) (Summary, error) {
	data := b.Returns
	if len(data) == 0 {
		return Summary{}, nil
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute mean: %w", err)
	}
	p5, err := stats.PercentileNearestRank(data, 5)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute 5th percentile: %w", err)
	}
	median, err := stats.Median(data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute median: %w", err)
	}
	p95, err := stats.PercentileNearestRank(data, 95)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute 95th percentile: %w", err)
	}
	var std float64
	if len(data) > 1 {
		if std, err = stats.StandardDeviationSample(data); err != nil {
			return Summary{}, fmt.Errorf("failed to compute standard deviation: %w", err)
		}
	}

	losses := 0
	growth := make([]float64, len(data))
	for i, r := range data {
		if r < 0 {
			losses++
		}
		growth[i] = math.Exp(r)
	}
	expectedGrowth, err := stats.Mean(growth)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute expected growth: %w", err)
	}

	return Summary{
		Simulations:       len(data),
		Mean:              mean,
		StdDev:            std,
		Percentile5:       p5,
		Median:            median,
		Percentile95:      p95,
		ProbabilityOfLoss: float64(losses) / float64(len(data)),
		ExpectedGrowth:    expectedGrowth,
	}, nil
}
