package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Candle is the minimal OHLC bar the volatility helpers need.
type Candle struct {
	High  float64
	Low   float64
	Close float64
}

const DefaultATRPeriod = 14

// ATR is the simple average of the last `period` true ranges.
func ATR(candles []Candle, period int) (float64, error) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) < 2 {
		return 0, fmt.Errorf("atr with %d candles: %w", len(candles), ErrInsufficientData)
	}

	ranges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		cur, prevClose := candles[i], candles[i-1].Close
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
		ranges = append(ranges, tr)
	}
	if period > len(ranges) {
		period = len(ranges)
	}

	return floats.Sum(ranges[len(ranges)-period:]) / float64(period), nil
}

// ReturnVolatility is the sample standard deviation of the returns.
func ReturnVolatility(returns []float64) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("volatility with %d returns: %w", len(returns), ErrInsufficientData)
	}
	return stat.StdDev(returns, nil), nil
}
