package risk

import (
	"testing"
	"time"

	"riskengine/src/model"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjust(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		mc       model.MarketConditions
		wantSize float64
		wantStop float64
	}{
		{
			name:     "calm market",
			mc:       model.MarketConditions{Volatility: 0.02, HistoricalVolatility: 0.02, LiquidityScore: 0.8},
			wantSize: 1,
			wantStop: 1,
		},
		{
			name:     "ratio at threshold is untouched",
			mc:       model.MarketConditions{Volatility: 3, HistoricalVolatility: 2},
			wantSize: 1,
			wantStop: 1,
		},
		{
			name:     "ratio 3 halves size",
			mc:       model.MarketConditions{Volatility: 0.06, HistoricalVolatility: 0.02},
			wantSize: 0.5,
			wantStop: 3,
		},
		{
			name:     "extreme ratio floors at 0.1",
			mc:       model.MarketConditions{Volatility: 1, HistoricalVolatility: 0.01},
			wantSize: 0.1,
			wantStop: 3,
		},
		{
			name:     "thin liquidity",
			mc:       model.MarketConditions{Volatility: 0.02, HistoricalVolatility: 0.02, LiquidityScore: 0.3},
			wantSize: 0.6,
			wantStop: 1,
		},
		{
			name:     "missing history keeps defaults",
			mc:       model.MarketConditions{Volatility: 0.05},
			wantSize: 1,
			wantStop: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Adjust(tt.mc, cfg)
			assert.InDelta(t, tt.wantSize, got.PositionSizeMultiplier, 1e-9)
			assert.InDelta(t, tt.wantStop, got.StopDistanceMultiplier, 1e-9)
			assert.GreaterOrEqual(t, got.PositionSizeMultiplier, cfg.MinSizeMultiplier)
		})
	}
}

func TestAdjust_CorrelationIsInformational(t *testing.T) {
	mc := model.MarketConditions{
		Volatility:           0.02,
		HistoricalVolatility: 0.02,
		Symbols:              []string{"BTCUSDT", "ETHUSDT", "XAUUSD"},
		CorrelationMatrix: [][]float64{
			{1, 0.85, 0.1},
			{0.85, 1, -0.72},
			{0.1, -0.72, 1},
		},
	}

	got := Adjust(mc, DefaultConfig())
	assert.InDelta(t, 1.0, got.PositionSizeMultiplier, 1e-9)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "BTCUSDT/ETHUSDT", got.Warnings[0].Pair)
}

func TestAdjust_NegativeCorrelationIsNotFlagged(t *testing.T) {
	mc := model.MarketConditions{
		Symbols:           []string{"BTC", "GOLD"},
		CorrelationMatrix: [][]float64{{1, -0.9}, {-0.9, 1}},
	}

	got := Adjust(mc, DefaultConfig())
	assert.Empty(t, got.Warnings)

	mc.CorrelationMatrix = [][]float64{{1, 0.9}, {0.9, 1}}
	got = Adjust(mc, DefaultConfig())
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "BTC/GOLD", got.Warnings[0].Pair)
	assert.InDelta(t, 0.9, got.Warnings[0].Correlation, 1e-12)
}

func TestAdjuster_EmitsOnlyOnChange(t *testing.T) {
	l, _ := logrustest.NewNullLogger()
	a := NewAdjuster(logrus.NewEntry(l), DefaultConfig())
	now := time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)

	hot := model.MarketConditions{Volatility: 0.06, HistoricalVolatility: 0.02}

	adj, events := a.Evaluate(hot, now)
	assert.InDelta(t, 0.5, adj.PositionSizeMultiplier, 1e-9)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPositionSizeAdjusted, events[0].Kind)
	assert.InDelta(t, 0.5, events[0].Value, 1e-9)

	_, events = a.Evaluate(hot, now.Add(time.Second))
	assert.Empty(t, events)

	_, events = a.Evaluate(model.MarketConditions{Volatility: 0.02, HistoricalVolatility: 0.02}, now.Add(2*time.Second))
	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, a.Current().PositionSizeMultiplier, 1e-9)
}

func TestAdjuster_SessionSizing(t *testing.T) {
	l, _ := logrustest.NewNullLogger()
	cfg := DefaultConfig()
	cfg.SessionSizing = true
	cfg.NoTradeWindow = true
	a := NewAdjuster(logrus.NewEntry(l), cfg)

	// Saturday is inside the no trade window, the floor still applies
	adj, _ := a.Evaluate(model.MarketConditions{}, nyDate(2025, time.March, 8, 12))
	assert.Equal(t, SessionNoTrade, adj.Session)
	assert.InDelta(t, 0.1, adj.PositionSizeMultiplier, 1e-9)

	// Tuesday US session, multiplier 1.25
	adj, _ = a.Evaluate(model.MarketConditions{}, nyDate(2025, time.March, 4, 10))
	assert.Equal(t, SessionUS, adj.Session)
	assert.InDelta(t, 1.25, adj.PositionSizeMultiplier, 1e-9)
}

func TestAdjuster_DiversificationWarningOnEdge(t *testing.T) {
	l, hook := logrustest.NewNullLogger()
	a := NewAdjuster(logrus.NewEntry(l), DefaultConfig())
	now := time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)

	correlated := model.MarketConditions{
		Symbols:           []string{"BTCUSDT", "ETHUSDT"},
		CorrelationMatrix: [][]float64{{1, 0.9}, {0.9, 1}},
	}
	calm := model.MarketConditions{
		Symbols:           []string{"BTCUSDT", "ETHUSDT"},
		CorrelationMatrix: [][]float64{{1, 0.2}, {0.2, 1}},
	}

	_, events := a.Evaluate(correlated, now)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDiversificationWarning, events[0].Kind)
	assert.Equal(t, "BTCUSDT/ETHUSDT", events[0].Symbol)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	_, events = a.Evaluate(correlated, now.Add(time.Second))
	assert.Empty(t, events)

	_, events = a.Evaluate(calm, now.Add(2*time.Second))
	assert.Empty(t, events)

	_, events = a.Evaluate(correlated, now.Add(3*time.Second))
	require.Len(t, events, 1)
}
