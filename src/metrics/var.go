package metrics

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidConfidence = errors.New("confidence must be in (0,1)")
)

const DefaultSimulations = 1000

// Returns converts a value series into simple period returns.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (values[i]-prev)/prev)
	}
	return out
}

// HistoricalVaR returns the (1-confidence) percentile of returns, linearly
// interpolated between adjacent order statistics. The result is a return,
// so a loss is negative.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("historical var with %d returns: %w", len(returns), ErrInsufficientData)
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, ErrInvalidConfidence
	}

	sorted := sortedCopy(returns)
	return percentile(sorted, 1-confidence), nil
}

// CVaR is the mean of all returns at or below the VaR cutoff.
func CVaR(returns []float64, confidence float64) (float64, error) {
	v, err := HistoricalVaR(returns, confidence)
	if err != nil {
		return 0, err
	}

	tail := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r <= v {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return v, nil
	}
	return math.Min(stat.Mean(tail, nil), v), nil
}

// MonteCarloVaR bootstraps the empirical distribution and reads the VaR of
// the simulated sample. A nil rng seeds from the data length so results stay
// reproducible for the same input.
func MonteCarloVaR(returns []float64, confidence float64, simulations int, rng *rand.Rand) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("monte carlo var with %d returns: %w", len(returns), ErrInsufficientData)
	}
	if simulations <= 0 {
		simulations = DefaultSimulations
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(len(returns))))
	}

	sample := make([]float64, simulations)
	for i := range sample {
		sample[i] = returns[rng.Intn(len(returns))]
	}
	return HistoricalVaR(sample, confidence)
}

func sortedCopy(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	sort.Float64s(out)
	return out
}

// percentile expects ascending input and p in [0,1]. It interpolates at
// p*(n-1), which stat.Quantile's LinInterp (p*n) does not.
func percentile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
