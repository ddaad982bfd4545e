package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TrailingStopStatus string

const (
	TrailingStopInactive   TrailingStopStatus = "inactive"
	TrailingStopArmed      TrailingStopStatus = "armed"
	TrailingStopTightening TrailingStopStatus = "tightening"
	TrailingStopTriggered  TrailingStopStatus = "triggered"
)

// TrailingStopState carries percentages in percent units (0.5 == 0.5%).
type TrailingStopState struct {
	Status                 TrailingStopStatus `json:"status"`
	ActivationThresholdPct decimal.Decimal    `json:"activation_threshold_pct"`
	TrailingDistancePct    decimal.Decimal    `json:"trailing_distance_pct"`
	TighteningIncrementPct decimal.Decimal    `json:"tightening_increment_pct"`
	CurrentDistancePct     decimal.Decimal    `json:"current_distance_pct"`
	HighWaterProfitPct     decimal.Decimal    `json:"high_water_profit_pct"`
	StopPrice              decimal.Decimal    `json:"stop_price"`
	TriggeredAt            *time.Time         `json:"triggered_at,omitempty"`
}

func (s TrailingStopState) IsActive() bool {
	return s.Status == TrailingStopArmed || s.Status == TrailingStopTightening
}
