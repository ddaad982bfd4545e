package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

type FillAction string

const (
	FillOpen         FillAction = "open"
	FillPartialClose FillAction = "partial_close"
	FillClose        FillAction = "close"
)

type Fill struct {
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	StrategyTag string          `json:"strategy_tag"`
	Volume      decimal.Decimal `json:"volume"`
	Price       decimal.Decimal `json:"price"`
	Action      FillAction      `json:"action"`
	Timestamp   time.Time       `json:"timestamp"`
}

// MarketConditions is pushed by an external analytics process.
// CorrelationMatrix rows and columns follow Symbols.
type MarketConditions struct {
	Volatility           float64     `json:"volatility"`
	HistoricalVolatility float64     `json:"historical_volatility"`
	LiquidityScore       float64     `json:"liquidity_score"`
	Symbols              []string    `json:"symbols"`
	CorrelationMatrix    [][]float64 `json:"correlation_matrix"`
	Timestamp            time.Time   `json:"timestamp"`
}

const OverrideCooldownAction = "override_cooldown"

type OverrideCommand struct {
	Action   string `json:"action"`
	Operator string `json:"operator,omitempty"`
}
