package utils

import (
	"testing"
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfISOWeek(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{
			name: "wednesday",
			at:   time.Date(2025, time.March, 5, 15, 30, 0, 0, time.UTC),
			want: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monday midnight",
			at:   time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday late",
			at:   time.Date(2025, time.March, 9, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StartOfISOWeek(tt.at, time.UTC)
			if !got.Equal(tt.want) {
				t.Fatalf("got=%s want=%s", got, tt.want)
			}
		})
	}
}

func TestStartOfDay_Location(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 22:00 UTC is already the next day at UTC+3
	at := time.Date(2025, time.March, 4, 22, 0, 0, 0, time.UTC)

	assert.True(t, StartOfDay(at, nil).Equal(time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, StartOfDay(at, loc).Equal(time.Date(2025, time.March, 5, 0, 0, 0, 0, loc)))
}

func TestISOWeekKey(t *testing.T) {
	assert.Equal(t, "2025-W10", ISOWeekKey(time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), nil))
	// Dec 29 2025 belongs to ISO week 1 of 2026
	assert.Equal(t, "2026-W01", ISOWeekKey(time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC), nil))
}

func TestAggregateCandles(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, 0, 10)
	for i := 0; i < 10; i++ {
		p := decimal.NewFromInt(int64(100 + i))
		candles = append(candles, model.Candle{
			Symbol:   "BTCUSDT",
			Datetime: start.Add(time.Duration(i) * time.Minute),
			Open:     p,
			High:     p.Add(decimal.NewFromInt(1)),
			Low:      p.Sub(decimal.NewFromInt(1)),
			Close:    p,
			Volume:   decimal.NewFromInt(1),
		})
	}

	agg, err := AggregateCandles(candles, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, agg, 2)

	assert.True(t, agg[0].Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, agg[0].Close.Equal(decimal.NewFromInt(104)))
	assert.True(t, agg[0].High.Equal(decimal.NewFromInt(105)))
	assert.True(t, agg[0].Low.Equal(decimal.NewFromInt(99)))
	assert.True(t, agg[0].Volume.Equal(decimal.NewFromInt(5)))
	assert.True(t, agg[1].Datetime.Equal(start.Add(5*time.Minute)))

	_, err = AggregateCandles(candles, 7*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
