package tp_sl

import (
	"riskengine/src/model"

	"github.com/shopspring/decimal"
)

const DefaultCandleLookback = 20

func IsBullish(c model.Candle) bool { return c.Close.GreaterThan(c.Open) }
func IsBearish(c model.Candle) bool { return c.Close.LessThan(c.Open) }

func avgOf(candles []model.Candle, pick func(model.Candle) decimal.Decimal) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(pick(c))
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

func AvgLow(candles []model.Candle) decimal.Decimal {
	return avgOf(candles, func(c model.Candle) decimal.Decimal { return c.Low })
}

func AvgHigh(candles []model.Candle) decimal.Decimal {
	return avgOf(candles, func(c model.Candle) decimal.Decimal { return c.High })
}

// SuggestCandleStop proposes a structure based stop from closed candles.
//
// Long: only after a bullish previous candle; candidate is the average low
// of the window clamped to the previous low; the stop only rises.
//
// Short: mirrored on highs after a bearish previous candle; the stop only
// falls.
func SuggestCandleStop(
	side model.Side,
	currentStop decimal.Decimal,
	candles []model.Candle,
	lookback int,
) (decimal.Decimal, bool) {
	if len(candles) < 2 {
		return currentStop, false
	}
	if lookback <= 0 {
		lookback = DefaultCandleLookback
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	prev := candles[len(candles)-2]
	window := candles[len(candles)-lookback:]

	switch side {
	case model.SideLong:
		if !IsBullish(prev) {
			return currentStop, false
		}
		candidate := decimal.Min(AvgLow(window), prev.Low)
		if candidate.GreaterThan(currentStop) {
			return candidate, true
		}
	case model.SideShort:
		if !IsBearish(prev) {
			return currentStop, false
		}
		candidate := decimal.Max(AvgHigh(window), prev.High)
		if currentStop.IsZero() || candidate.LessThan(currentStop) {
			return candidate, true
		}
	}
	return currentStop, false
}
