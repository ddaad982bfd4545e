package varreport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"riskengine/src/metrics"
	"riskengine/src/model"
	"riskengine/src/risk"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockBinanceServer() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`[
			[1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815", 1499043599999, "2434.19055334", 308, "1756.87402397", "28.46694368", "0"],
			[1499043600000, "0.01577100", "0.01600000", "0.01570000", "0.01590000", "1000.00000000", 1499047199999, "15.90000000", 12, "500.00000000", "7.95000000", "0"]
		]`))
		if err != nil {
			return
		}
	})
	return httptest.NewServer(handler)
}

func candle(ts time.Time, open, high, low, close float64) model.Candle {
	return model.Candle{
		Symbol:   "BTC_USDT",
		Datetime: ts,
		Open:     decimal.NewFromFloat(open),
		High:     decimal.NewFromFloat(high),
		Low:      decimal.NewFromFloat(low),
		Close:    decimal.NewFromFloat(close),
		Volume:   decimal.NewFromInt(1),
	}
}

func sampleCandles() []model.Candle {
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	return []model.Candle{
		candle(t0, 100, 102, 98, 101),
		candle(t0.Add(time.Hour), 101, 104, 100, 103),
		candle(t0.Add(2*time.Hour), 103, 103, 97, 98),
		candle(t0.Add(3*time.Hour), 98, 101, 96, 100),
		candle(t0.Add(4*time.Hour), 100, 105, 99, 104),
	}
}

func reportConfig() *Config {
	return &Config{
		DurationStr:      Duration1h,
		Confidence:       0.95,
		Simulations:      500,
		Seed:             7,
		EntropyBuckets:   20,
		EntropyWindow:    100,
		EntropyThreshold: 0.8,
		ATRPeriod:        2,
		Side:             string(model.SideLong),
		CandleLookback:   20,
	}
}

func TestVarReport_fetchCandles(t *testing.T) {
	server := setupMockBinanceServer()
	defer server.Close()

	report := VarReport{
		Log: logrus.NewEntry(logrus.New()),
		Config: &Config{
			Symbol:      "BTC",
			Quote:       "USDT",
			StartDt:     time.Now().Add(-24 * time.Hour),
			EndDt:       time.Now(),
			DurationStr: Duration1h,
			Limit:       1000,
		},
		exchange: binance.NewWithConfig(&goex.APIConfig{
			HttpClient: http.DefaultClient,
			Endpoint:   server.URL,
		}),
	}

	candles, err := report.fetchCandles()
	require.NoError(t, err)
	require.Len(t, candles, 2)
	require.True(t, candles[0].Datetime.Before(candles[1].Datetime))
	require.InDelta(t, 0.01634790, candles[0].Open.InexactFloat64(), 1e-12)
	require.InDelta(t, 0.0159, candles[1].Close.InexactFloat64(), 1e-12)
}

func TestVarReport_fetchCandles_AggregateNeedsMinuteCandles(t *testing.T) {
	server := setupMockBinanceServer()
	defer server.Close()

	report := VarReport{
		Config: &Config{
			Symbol:      "BTC",
			Quote:       "USDT",
			DurationStr: Duration1h,
			Aggregate:   15 * time.Minute,
		},
		exchange: binance.NewWithConfig(&goex.APIConfig{HttpClient: http.DefaultClient, Endpoint: server.URL}),
	}

	_, err := report.fetchCandles()
	require.Error(t, err)
}

func TestVarReport_buildReport(t *testing.T) {
	v := VarReport{Config: reportConfig()}

	report, err := v.buildReport(sampleCandles())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Candles)
	assert.Equal(t, "BTC_USDT", report.Symbol)
	assert.True(t, report.LastClose.Equal(decimal.NewFromInt(104)))

	require.NotNil(t, report.VaR)
	require.NotNil(t, report.CVaR)
	require.NotNil(t, report.MonteCarloVaR)
	require.NotNil(t, report.Volatility)
	require.NotNil(t, report.Entropy)
	assert.LessOrEqual(t, *report.CVaR, *report.VaR)
	assert.Less(t, *report.VaR, 0.0)

	require.NotNil(t, report.ATR)
	assert.InDelta(t, 5.5, *report.ATR, 1e-9)

	// previous candle is bullish, avg low 98 is clamped to its low 96
	assert.True(t, report.StopMoved)
	assert.True(t, report.SuggestedStop.Equal(decimal.NewFromInt(96)))
}

func TestVarReport_buildReport_SessionSize(t *testing.T) {
	tests := []struct {
		name    string
		endDt   time.Time
		session risk.Session
		want    string
	}{
		// 10:00 New York
		{name: "us session", endDt: time.Date(2024, 5, 7, 14, 0, 0, 0, time.UTC), session: risk.SessionUS, want: "2.5"},
		// 03:00 New York
		{name: "london session", endDt: time.Date(2024, 5, 7, 7, 0, 0, 0, time.UTC), session: risk.SessionLondon, want: "2"},
		{name: "saturday", endDt: time.Date(2024, 5, 11, 16, 0, 0, 0, time.UTC), session: risk.SessionNoTrade, want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := reportConfig()
			cfg.BaseSize = 2
			cfg.EndDt = tt.endDt
			v := VarReport{Config: cfg}

			report, err := v.buildReport(sampleCandles())
			require.NoError(t, err)
			assert.Equal(t, tt.session, report.Session)
			assert.True(t, report.SuggestedSize.Equal(decimal.RequireFromString(tt.want)), "got %s", report.SuggestedSize)
		})
	}
}

func TestVarReport_buildReport_NoBaseSize(t *testing.T) {
	v := VarReport{Config: reportConfig()}

	report, err := v.buildReport(sampleCandles())
	require.NoError(t, err)
	assert.Empty(t, report.Session)
	assert.True(t, report.SuggestedSize.IsZero())
}

func TestVarReport_buildReport_Deterministic(t *testing.T) {
	v := VarReport{Config: reportConfig()}

	a, err := v.buildReport(sampleCandles())
	require.NoError(t, err)
	b, err := v.buildReport(sampleCandles())
	require.NoError(t, err)
	assert.Equal(t, *a.MonteCarloVaR, *b.MonteCarloVaR)
}

func TestVarReport_buildReport_ShortSideNeedsBearishCandle(t *testing.T) {
	cfg := reportConfig()
	cfg.Side = string(model.SideShort)
	v := VarReport{Config: cfg}

	report, err := v.buildReport(sampleCandles())
	require.NoError(t, err)
	assert.False(t, report.StopMoved)
}

func TestVarReport_buildReport_InsufficientData(t *testing.T) {
	v := VarReport{Config: reportConfig()}

	_, err := v.buildReport(sampleCandles()[:2])
	require.ErrorIs(t, err, metrics.ErrInsufficientData)
}

func TestVarReport_logReport(t *testing.T) {
	log, hook := test.NewNullLogger()
	v := VarReport{Log: log.WithField("cmd", "varreport"), Config: reportConfig()}

	report, err := v.buildReport(sampleCandles())
	require.NoError(t, err)
	v.logReport(report)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "risk report", entry.Message)
	assert.Equal(t, "BTC_USDT", entry.Data["Symbol"])
	assert.Contains(t, entry.Data, "VaR")
	assert.Equal(t, "96", entry.Data["SuggestedStop"])
}

// Test parseDurationToGoex to verify translation to goex KlinePeriod.
func TestVarReport_parseDurationToGoex(t *testing.T) {
	tests := []struct {
		durationStr string
		expected    goex.KlinePeriod
		shouldPanic bool
	}{
		{"1m", goex.KLINE_PERIOD_1MIN, false},
		{"1h", goex.KLINE_PERIOD_1H, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.durationStr, func(t *testing.T) {
			v := VarReport{Config: &Config{DurationStr: tt.durationStr}}

			if tt.shouldPanic {
				require.Panics(t, func() { _ = v.parseDurationToGoex() })
			} else {
				require.Equal(t, tt.expected, v.parseDurationToGoex())
			}
		})
	}
}
