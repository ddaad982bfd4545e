package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLCV bar. Datetime is the bucket open time.
type Candle struct {
	Symbol   string          `json:"symbol"`
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}
