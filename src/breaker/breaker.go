package breaker

import (
	"sync"
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Edge keys of breaker events. The warning key is released when the loss
// recovers so the next episode can warn again.
const (
	EdgeDailyLossWarning = string(model.EventDailyLossWarning)
	EdgeBreach           = string(model.EventDailyLossBreach)
)

// Outcome is what one evaluation produced.
type Outcome struct {
	State    model.CircuitBreakerState
	Events   []model.RiskEvent
	Critical []model.RiskEvent
	Released []string
}

// Breaker is the single authority over the global breaker state. Reading,
// deciding and writing happen under one lock.
type Breaker struct {
	mu     sync.Mutex
	logger *logrus.Entry
	limits Limits
	state  model.CircuitBreakerState
}

func NewBreaker(logger *logrus.Entry, limits Limits) *Breaker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Breaker{
		logger: logger.WithField("component", "breaker"),
		limits: limits,
		state:  model.CircuitBreakerState{Status: model.BreakerNormal},
	}
}

// Evaluate applies the latest daily change to the breaker.
func (b *Breaker) Evaluate(now time.Time, dailyPct decimal.Decimal) (Outcome, error) {
	return b.apply(Input{Now: now, DailyPct: dailyPct})
}

// Override leaves Breached or Cooldown immediately.
func (b *Breaker) Override(now time.Time) (Outcome, error) {
	return b.apply(Input{Now: now, Override: true})
}

func (b *Breaker) apply(in Input) (Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	next, effects, err := Transition(b.state, in, b.limits)
	if err != nil {
		return Outcome{State: copyState(b.state)}, err
	}
	b.state = next

	if prev.Status != next.Status {
		b.logger.WithFields(map[string]interface{}{
			"from":      prev.Status,
			"to":        next.Status,
			"daily_pct": in.DailyPct.StringFixed(4),
			"override":  in.Override,
		}).Warn("circuit breaker transition")
	}

	out := Outcome{State: copyState(next)}
	value := in.DailyPct.InexactFloat64()
	for _, e := range effects {
		switch e {
		case EffectDailyLossWarning:
			out.Events = append(out.Events,
				model.NewRiskEvent(model.EventDailyLossWarning, model.SeverityHigh, value, in.Now).
					WithEdgeKey(EdgeDailyLossWarning))
		case EffectWarningCleared:
			out.Released = append(out.Released, EdgeDailyLossWarning)
		case EffectDailyLossBreach:
			out.Critical = append(out.Critical,
				model.NewRiskEvent(model.EventDailyLossBreach, model.SeverityCritical, value, in.Now).
					WithCommand(model.CommandCloseAll).
					WithEdgeKey(EdgeBreach))
		case EffectActivated:
			out.Critical = append(out.Critical,
				model.NewRiskEvent(model.EventCircuitBreakerActivated, model.SeverityCritical, value, in.Now).
					WithCommand(model.CommandPauseTrading).
					WithEdgeKey(string(model.EventCircuitBreakerActivated)))
		case EffectCooldownStarted:
			b.logger.WithField("cooldown_until", next.CooldownUntil).Info("circuit breaker cooling down")
		case EffectReset:
			out.Events = append(out.Events,
				model.NewRiskEvent(model.EventCircuitBreakerReset, model.SeverityMedium, value, in.Now))
			out.Released = append(out.Released,
				EdgeDailyLossWarning,
				EdgeBreach,
				string(model.EventCircuitBreakerActivated))
		}
	}
	return out, nil
}

// State returns a copy of the current state.
func (b *Breaker) State() model.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyState(b.state)
}

// Halted is true while new risk must not be taken.
func (b *Breaker) Halted() bool {
	s := b.State()
	return s.Status == model.BreakerBreached || s.Status == model.BreakerCooldown
}
