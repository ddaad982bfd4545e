package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is an open exposure tracked by the risk engine.
// CurrentPrice is only ever written from the price stream.
type Position struct {
	ID           string            `json:"id"`
	Symbol       string            `json:"symbol"`
	Side         Side              `json:"side"`
	StrategyTag  string            `json:"strategy_tag"`
	EntryPrice   decimal.Decimal   `json:"entry_price"`
	CurrentPrice decimal.Decimal   `json:"current_price"`
	Volume       decimal.Decimal   `json:"volume"`
	OpenedAt     time.Time         `json:"opened_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	TrailingStop TrailingStopState `json:"trailing_stop"`
}

// ProfitPct is the signed return against entry, in percent.
func (p Position) ProfitPct(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

func (p Position) UnrealizedPnL() decimal.Decimal {
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Volume)
}

func (p Position) Notional() decimal.Decimal {
	return p.CurrentPrice.Mul(p.Volume)
}
