package breaker

import (
	"errors"
	"fmt"
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
)

var (
	ErrStateCorruption    = errors.New("circuit breaker state corruption")
	ErrOverrideNotAllowed = errors.New("override only accepted while breached or in cooldown")
)

// Limits are loss magnitudes in percent, e.g. 2 for a 2% daily loss.
type Limits struct {
	WarningLossPct decimal.Decimal
	BreachLossPct  decimal.Decimal
	Cooldown       time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		WarningLossPct: decimal.RequireFromString("1.5"),
		BreachLossPct:  decimal.NewFromInt(2),
		Cooldown:       24 * time.Hour,
	}
}

type Effect int

const (
	EffectDailyLossWarning Effect = iota + 1
	EffectWarningCleared
	EffectDailyLossBreach
	EffectActivated
	EffectCooldownStarted
	EffectReset
)

// Input is one evaluation. DailyPct is signed, a loss is negative.
type Input struct {
	Now      time.Time
	DailyPct decimal.Decimal
	Override bool
}

// Transition is the pure state function of the breaker. It never reads the
// clock and never mutates its argument.
func Transition(state model.CircuitBreakerState, in Input, limits Limits) (model.CircuitBreakerState, []Effect, error) {
	if err := validate(state); err != nil {
		return state, nil, err
	}

	if in.Override {
		switch state.Status {
		case model.BreakerBreached, model.BreakerCooldown:
			return normal(in.Now), []Effect{EffectReset}, nil
		default:
			return state, nil, fmt.Errorf("status %s: %w", state.Status, ErrOverrideNotAllowed)
		}
	}

	loss := in.DailyPct.Neg()

	switch state.Status {
	case model.BreakerNormal, model.BreakerWarning:
		if loss.GreaterThanOrEqual(limits.BreachLossPct) {
			return breached(in.Now, limits.Cooldown), []Effect{EffectDailyLossBreach, EffectActivated}, nil
		}
		if state.Status == model.BreakerNormal && loss.GreaterThanOrEqual(limits.WarningLossPct) {
			next := state
			next.Status = model.BreakerWarning
			next.LastTransition = in.Now
			return next, []Effect{EffectDailyLossWarning}, nil
		}
		if state.Status == model.BreakerWarning && loss.LessThan(limits.WarningLossPct) {
			return normal(in.Now), []Effect{EffectWarningCleared}, nil
		}
		return state, nil, nil

	case model.BreakerBreached:
		if !in.Now.Before(*state.CooldownUntil) {
			return normal(in.Now), []Effect{EffectReset}, nil
		}
		next := copyState(state)
		next.Status = model.BreakerCooldown
		next.LastTransition = in.Now
		return next, []Effect{EffectCooldownStarted}, nil

	case model.BreakerCooldown:
		if !in.Now.Before(*state.CooldownUntil) {
			return normal(in.Now), []Effect{EffectReset}, nil
		}
		return state, nil, nil
	}

	return state, nil, fmt.Errorf("unknown status %q: %w", state.Status, ErrStateCorruption)
}

func validate(s model.CircuitBreakerState) error {
	switch s.Status {
	case model.BreakerNormal, model.BreakerWarning:
		return nil
	case model.BreakerBreached, model.BreakerCooldown:
		if s.BreachTime == nil || s.CooldownUntil == nil {
			return fmt.Errorf("status %s without breach window: %w", s.Status, ErrStateCorruption)
		}
		if s.CooldownUntil.Before(*s.BreachTime) {
			return fmt.Errorf("cooldown ends before breach: %w", ErrStateCorruption)
		}
		return nil
	default:
		return fmt.Errorf("unknown status %q: %w", s.Status, ErrStateCorruption)
	}
}

func normal(now time.Time) model.CircuitBreakerState {
	return model.CircuitBreakerState{Status: model.BreakerNormal, LastTransition: now}
}

func breached(now time.Time, cooldown time.Duration) model.CircuitBreakerState {
	at := now
	until := now.Add(cooldown)
	return model.CircuitBreakerState{
		Status:         model.BreakerBreached,
		BreachTime:     &at,
		CooldownUntil:  &until,
		LastTransition: now,
	}
}

func copyState(s model.CircuitBreakerState) model.CircuitBreakerState {
	out := s
	if s.BreachTime != nil {
		t := *s.BreachTime
		out.BreachTime = &t
	}
	if s.CooldownUntil != nil {
		t := *s.CooldownUntil
		out.CooldownUntil = &t
	}
	return out
}
