package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is immutable once recorded.
type PortfolioSnapshot struct {
	Seq           uint64          `json:"seq"`
	Timestamp     time.Time       `json:"timestamp"`
	TotalValue    decimal.Decimal `json:"total_value"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

type CircuitBreakerStatus string

const (
	BreakerNormal   CircuitBreakerStatus = "normal"
	BreakerWarning  CircuitBreakerStatus = "warning"
	BreakerBreached CircuitBreakerStatus = "breached"
	BreakerCooldown CircuitBreakerStatus = "cooldown"
)

type CircuitBreakerState struct {
	Status         CircuitBreakerStatus `json:"status"`
	BreachTime     *time.Time           `json:"breach_time,omitempty"`
	CooldownUntil  *time.Time           `json:"cooldown_until,omitempty"`
	LastTransition time.Time            `json:"last_transition"`
}
