package engine

import (
	"time"

	"riskengine/src/model"
	"riskengine/src/risk"
	"riskengine/src/tp_sl"

	"github.com/shopspring/decimal"
)

// RiskMetrics holds the latest metric values. A nil field means the metric
// could not be computed on the last evaluation.
type RiskMetrics struct {
	VaR           *float64 `json:"var,omitempty"`
	CVaR          *float64 `json:"cvar,omitempty"`
	MonteCarloVaR *float64 `json:"monte_carlo_var,omitempty"`
	Entropy       *float64 `json:"entropy,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// Status is an immutable view of the engine after an evaluation.
type Status struct {
	Timestamp       time.Time                 `json:"timestamp"`
	Seq             uint64                    `json:"seq"`
	TotalValue      decimal.Decimal           `json:"total_value"`
	RealizedPnL     decimal.Decimal           `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal           `json:"unrealized_pnl"`
	DailyChangePct  *decimal.Decimal          `json:"daily_change_pct,omitempty"`
	WeeklyChangePct *decimal.Decimal          `json:"weekly_change_pct,omitempty"`
	MaxDrawdownPct  decimal.Decimal           `json:"max_drawdown_pct"`
	Metrics         RiskMetrics               `json:"metrics"`
	Breaker         model.CircuitBreakerState `json:"breaker"`
	Adjustment      risk.RiskAdjustment       `json:"adjustment"`
	OpenPositions   int                       `json:"open_positions"`
	TrailingStops   tp_sl.Summary             `json:"trailing_stops"`
	Halted          bool                      `json:"halted"`
}

func float64Ptr(v float64) *float64 { return &v }

func decimalPtr(v decimal.Decimal) *decimal.Decimal { return &v }
