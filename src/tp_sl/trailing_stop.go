package tp_sl

import (
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
)

const (
	StrategyTrendFollowing = "trend_following"
	StrategyHTF            = "htf"
)

var hundred = decimal.NewFromInt(100)

// Params are the trailing stop settings of a strategy, in percent units.
type Params struct {
	TrailingDistancePct    decimal.Decimal
	ActivationThresholdPct decimal.Decimal
	TighteningIncrementPct decimal.Decimal
}

var strategyParams = map[string]Params{
	StrategyTrendFollowing: {
		TrailingDistancePct:    decimal.RequireFromString("0.5"),
		ActivationThresholdPct: decimal.RequireFromString("1"),
		TighteningIncrementPct: decimal.RequireFromString("0.2"),
	},
	StrategyHTF: {
		TrailingDistancePct:    decimal.RequireFromString("1.0"),
		ActivationThresholdPct: decimal.RequireFromString("1.5"),
		TighteningIncrementPct: decimal.RequireFromString("0.5"),
	},
}

// ParamsFor reports whether the strategy tag is eligible for trailing stops.
func ParamsFor(tag string) (Params, bool) {
	p, ok := strategyParams[tag]
	return p, ok
}

type Transition int

const (
	TransitionNone Transition = iota
	TransitionArmed
	TransitionTightened
	TransitionTriggered
)

func (t Transition) String() string {
	switch t {
	case TransitionArmed:
		return "armed"
	case TransitionTightened:
		return "tightened"
	case TransitionTriggered:
		return "triggered"
	default:
		return "none"
	}
}

// NewState returns the initial state for a position.
func NewState(p Params) model.TrailingStopState {
	return model.TrailingStopState{
		Status:                 model.TrailingStopInactive,
		ActivationThresholdPct: p.ActivationThresholdPct,
		TrailingDistancePct:    p.TrailingDistancePct,
		TighteningIncrementPct: p.TighteningIncrementPct,
		CurrentDistancePct:     p.TrailingDistancePct,
	}
}

// Evaluate advances one position's trailing stop on a new price.
// It is pure: the caller stores the returned state.
//
// Every full activation threshold of profit beyond activation tightens the
// distance by one increment, never below one increment. The stop only moves
// in the profit protecting direction and Triggered is terminal.
func Evaluate(state model.TrailingStopState, pos model.Position, price decimal.Decimal, ts time.Time) (model.TrailingStopState, Transition) {
	if state.Status == model.TrailingStopTriggered {
		return state, TransitionNone
	}
	if !state.ActivationThresholdPct.IsPositive() {
		return state, TransitionNone
	}

	profit := pos.ProfitPct(price)
	if profit.GreaterThan(state.HighWaterProfitPct) {
		state.HighWaterProfitPct = profit
	}

	if state.Status == model.TrailingStopInactive {
		if profit.LessThan(state.ActivationThresholdPct) {
			return state, TransitionNone
		}
		steps := tighteningSteps(state)
		state.CurrentDistancePct = effectiveDistance(state, steps)
		state.StopPrice = stopFor(pos.Side, price, state.CurrentDistancePct)
		state.Status = model.TrailingStopArmed
		if steps > 0 {
			state.Status = model.TrailingStopTightening
		}
		return state, TransitionArmed
	}

	transition := TransitionNone
	steps := tighteningSteps(state)
	distance := effectiveDistance(state, steps)
	if distance.LessThan(state.CurrentDistancePct) {
		state.CurrentDistancePct = distance
		state.Status = model.TrailingStopTightening
		transition = TransitionTightened
	}

	candidate := stopFor(pos.Side, price, state.CurrentDistancePct)
	if improves(pos.Side, candidate, state.StopPrice) {
		state.StopPrice = candidate
	}

	if crossed(pos.Side, price, state.StopPrice) {
		state.Status = model.TrailingStopTriggered
		at := ts
		state.TriggeredAt = &at
		return state, TransitionTriggered
	}
	return state, transition
}

func tighteningSteps(s model.TrailingStopState) int64 {
	beyond := s.HighWaterProfitPct.Sub(s.ActivationThresholdPct)
	if beyond.IsNegative() {
		return 0
	}
	return beyond.Div(s.ActivationThresholdPct).Floor().IntPart()
}

func effectiveDistance(s model.TrailingStopState, steps int64) decimal.Decimal {
	d := s.TrailingDistancePct.Sub(s.TighteningIncrementPct.Mul(decimal.NewFromInt(steps)))
	return decimal.Max(d, s.TighteningIncrementPct)
}

func stopFor(side model.Side, price, distancePct decimal.Decimal) decimal.Decimal {
	frac := distancePct.Div(hundred)
	if side == model.SideShort {
		return price.Mul(decimal.NewFromInt(1).Add(frac))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(frac))
}

func improves(side model.Side, candidate, current decimal.Decimal) bool {
	if side == model.SideShort {
		return candidate.LessThan(current)
	}
	return candidate.GreaterThan(current)
}

func crossed(side model.Side, price, stop decimal.Decimal) bool {
	if side == model.SideShort {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}
