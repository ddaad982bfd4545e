package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"riskengine/src/model"

	"github.com/sirupsen/logrus"
)

// CorrelationWarning flags a pair moving together above the threshold.
type CorrelationWarning struct {
	Pair        string  `json:"pair"`
	Correlation float64 `json:"correlation"`
}

// RiskAdjustment scales new exposure. Warnings never change the multipliers.
type RiskAdjustment struct {
	PositionSizeMultiplier float64              `json:"position_size_multiplier"`
	StopDistanceMultiplier float64              `json:"stop_distance_multiplier"`
	VolatilityRatio        float64              `json:"volatility_ratio"`
	Session                Session              `json:"session,omitempty"`
	Warnings               []CorrelationWarning `json:"warnings,omitempty"`
	Timestamp              time.Time            `json:"timestamp"`
}

// Adjust is the pure adjustment for a set of market conditions.
func Adjust(mc model.MarketConditions, cfg Config) RiskAdjustment {
	adj := RiskAdjustment{
		PositionSizeMultiplier: 1,
		StopDistanceMultiplier: 1,
		VolatilityRatio:        1,
		Timestamp:              mc.Timestamp,
	}

	if mc.HistoricalVolatility > 0 && mc.Volatility > 0 {
		adj.VolatilityRatio = mc.Volatility / mc.HistoricalVolatility
	}
	if adj.VolatilityRatio > cfg.VolatilityRatioThreshold {
		adj.PositionSizeMultiplier = cfg.VolatilityRatioThreshold / adj.VolatilityRatio
		adj.StopDistanceMultiplier = math.Min(adj.VolatilityRatio, cfg.MaxStopMultiplier)
	}

	if mc.LiquidityScore > 0 && mc.LiquidityScore < cfg.LowLiquidityScore {
		adj.PositionSizeMultiplier *= cfg.LowLiquidityMultiplier
	}

	adj.Warnings = correlationWarnings(mc, cfg.CorrelationThreshold)

	adj.PositionSizeMultiplier = math.Max(adj.PositionSizeMultiplier, cfg.MinSizeMultiplier)
	return adj
}

func correlationWarnings(mc model.MarketConditions, threshold float64) []CorrelationWarning {
	var out []CorrelationWarning
	for i, row := range mc.CorrelationMatrix {
		for j := i + 1; j < len(row); j++ {
			// negative correlation diversifies
			if row[j] <= threshold {
				continue
			}
			out = append(out, CorrelationWarning{
				Pair:        symbolAt(mc.Symbols, i) + "/" + symbolAt(mc.Symbols, j),
				Correlation: row[j],
			})
		}
	}
	return out
}

func symbolAt(symbols []string, i int) string {
	if i < len(symbols) {
		return symbols[i]
	}
	return fmt.Sprintf("#%d", i)
}

// Adjuster tracks the current adjustment and reports changes as events.
type Adjuster struct {
	mu      sync.Mutex
	logger  *logrus.Entry
	cfg     Config
	session SessionSizeConfig
	current RiskAdjustment
	flagged map[string]struct{}
}

func NewAdjuster(logger *logrus.Entry, cfg Config) *Adjuster {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	session := DefaultSessionSizeConfig()
	session.EnableNoTradeWindow = cfg.NoTradeWindow
	return &Adjuster{
		logger:  logger.WithField("component", "risk_adjuster"),
		cfg:     cfg,
		session: session,
		current: RiskAdjustment{PositionSizeMultiplier: 1, StopDistanceMultiplier: 1, VolatilityRatio: 1},
		flagged: make(map[string]struct{}),
	}
}

// Evaluate recomputes the adjustment. PositionSizeAdjusted is emitted only
// when the size multiplier changes. A correlated pair is reported once when
// it crosses the threshold and again only after it has dropped below.
func (a *Adjuster) Evaluate(mc model.MarketConditions, now time.Time) (RiskAdjustment, []model.RiskEvent) {
	if mc.Timestamp.IsZero() {
		mc.Timestamp = now
	}
	adj := Adjust(mc, a.cfg)

	if a.cfg.SessionSizing {
		mult, s := SessionMultiplier(now, a.session)
		adj.Session = s
		adj.PositionSizeMultiplier = math.Max(adj.PositionSizeMultiplier*mult.InexactFloat64(), a.cfg.MinSizeMultiplier)
	}

	a.mu.Lock()
	prev := a.current
	a.current = adj
	fresh := a.updateFlagged(adj.Warnings)
	a.mu.Unlock()

	var events []model.RiskEvent
	if math.Abs(adj.PositionSizeMultiplier-prev.PositionSizeMultiplier) > 1e-9 {
		a.logger.WithFields(map[string]interface{}{
			"from":             prev.PositionSizeMultiplier,
			"to":               adj.PositionSizeMultiplier,
			"volatility_ratio": adj.VolatilityRatio,
			"session":          adj.Session,
		}).Info("position size multiplier adjusted")
		events = append(events, model.NewRiskEvent(model.EventPositionSizeAdjusted, model.SeverityMedium, adj.PositionSizeMultiplier, now))
	}

	for _, w := range fresh {
		a.logger.WithFields(map[string]interface{}{
			"pair":        w.Pair,
			"correlation": w.Correlation,
		}).Warn("diversification warning")
		evt := model.NewRiskEvent(model.EventDiversificationWarning, model.SeverityLow, w.Correlation, now).
			WithSymbol(w.Pair)
		events = append(events, evt)
	}
	return adj, events
}

// updateFlagged replaces the active pair set and returns the newly flagged
// warnings. Callers hold a.mu.
func (a *Adjuster) updateFlagged(warnings []CorrelationWarning) []CorrelationWarning {
	next := make(map[string]struct{}, len(warnings))
	var fresh []CorrelationWarning
	for _, w := range warnings {
		next[w.Pair] = struct{}{}
		if _, ok := a.flagged[w.Pair]; !ok {
			fresh = append(fresh, w)
		}
	}
	a.flagged = next
	return fresh
}

func (a *Adjuster) Current() RiskAdjustment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
