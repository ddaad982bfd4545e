package varreport

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"riskengine/src/metrics"
	"riskengine/src/model"
	"riskengine/src/risk"
	"riskengine/src/tp_sl"
	"riskengine/src/utils"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Report is the offline risk profile of one symbol.
type Report struct {
	Symbol          string          `json:"symbol"`
	Candles         int             `json:"candles"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	LastClose       decimal.Decimal `json:"last_close"`
	Confidence      float64         `json:"confidence"`
	VaR             *float64        `json:"var,omitempty"`
	CVaR            *float64        `json:"cvar,omitempty"`
	MonteCarloVaR   *float64        `json:"monte_carlo_var,omitempty"`
	Volatility      *float64        `json:"volatility,omitempty"`
	Entropy         *float64        `json:"entropy,omitempty"`
	HighUncertainty bool            `json:"high_uncertainty"`
	ATR             *float64        `json:"atr,omitempty"`
	SuggestedStop   decimal.Decimal `json:"suggested_stop"`
	StopMoved       bool            `json:"stop_moved"`
	SuggestedSize   decimal.Decimal `json:"suggested_size"`
	Session         risk.Session    `json:"session,omitempty"`
}

type VarReport struct {
	Log      *logger.Entry
	Config   *Config
	exchange goex.API
}

func (v *VarReport) Start() error {
	if v.Config == nil {
		v.Config = GetConfig()
	}
	if v.Log == nil {
		v.Log = logger.WithField("cmd", "varreport")
	}
	if v.Config.EndDt.IsZero() {
		v.Config.EndDt = time.Now().UTC()
	}
	if v.Config.StartDt.IsZero() {
		v.Config.StartDt = v.Config.EndDt.Add(-v.Config.Lookback)
	}

	v.exchange = v.newBinanceInstance()

	candles, err := v.fetchCandles()
	if err != nil {
		v.Log.WithError(err).Error("fetchCandles")
		return err
	}

	report, err := v.buildReport(candles)
	if err != nil {
		v.Log.WithError(err).Error("buildReport")
		return err
	}

	v.logReport(report)
	return nil
}

func (v *VarReport) newBinanceInstance() *binance.Binance {
	endpoint := v.Config.Endpoint
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   endpoint,
	}
	return binance.NewWithConfig(apiConfig)
}

func (v *VarReport) fetchOHLCVSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: v.Config.Symbol}, goex.Currency{Symbol: v.Config.Quote})

	const millis = 1000
	klines, err := v.exchange.GetKlineRecords(
		targetSymbol,
		v.parseDurationToGoex(),
		v.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", v.Config.StartDt.Unix()*millis).
			Optional("endTime", v.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

// fetchCandles returns ascending candles, aggregated when configured.
func (v *VarReport) fetchCandles() ([]model.Candle, error) {
	klines, err := v.fetchOHLCVSeries()
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, model.Candle{
			Symbol:   k.Pair.String(),
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}
	sortCandles(candles)

	if v.Config.Aggregate > 0 {
		if v.Config.DurationStr != Duration1m {
			return nil, fmt.Errorf("REPORT_AGGREGATE needs DURATION=%s, got %s", Duration1m, v.Config.DurationStr)
		}
		return utils.AggregateCandles(candles, v.Config.Aggregate)
	}
	return candles, nil
}

func sortCandles(candles []model.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Datetime.Before(candles[j].Datetime)
	})
}

func (v *VarReport) buildReport(candles []model.Candle) (Report, error) {
	if len(candles) < 3 {
		return Report{}, fmt.Errorf("report with %d candles: %w", len(candles), metrics.ErrInsufficientData)
	}

	cfg := v.Config
	last := candles[len(candles)-1]
	report := Report{
		Symbol:     last.Symbol,
		Candles:    len(candles),
		From:       candles[0].Datetime,
		To:         last.Datetime,
		LastClose:  last.Close,
		Confidence: cfg.Confidence,
	}

	closes := make([]float64, len(candles))
	bars := make([]metrics.Candle, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		bars[i] = metrics.Candle{High: c.High.InexactFloat64(), Low: c.Low.InexactFloat64(), Close: closes[i]}
	}
	returns := metrics.Returns(closes)

	if val, err := metrics.HistoricalVaR(returns, cfg.Confidence); err == nil {
		report.VaR = &val
	} else if !errors.Is(err, metrics.ErrInsufficientData) {
		return Report{}, err
	}
	if val, err := metrics.CVaR(returns, cfg.Confidence); err == nil {
		report.CVaR = &val
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if val, err := metrics.MonteCarloVaR(returns, cfg.Confidence, cfg.Simulations, rand.New(rand.NewSource(seed))); err == nil {
		report.MonteCarloVaR = &val
	}
	if val, err := metrics.ReturnVolatility(returns); err == nil {
		report.Volatility = &val
	}

	window := returns
	if cfg.EntropyWindow > 0 && len(window) > cfg.EntropyWindow {
		window = window[len(window)-cfg.EntropyWindow:]
	}
	if val, err := metrics.EntropyUncertainty(window, cfg.EntropyBuckets); err == nil {
		report.Entropy = &val
		report.HighUncertainty = metrics.IsHighUncertainty(val, cfg.EntropyThreshold)
	}

	if val, err := metrics.ATR(bars, cfg.ATRPeriod); err == nil {
		report.ATR = &val
	}

	report.SuggestedStop, report.StopMoved = tp_sl.SuggestCandleStop(
		model.Side(cfg.Side),
		decimal.NewFromFloat(cfg.CurrentStop),
		candles,
		cfg.CandleLookback,
	)

	if cfg.BaseSize > 0 {
		at := cfg.EndDt
		if at.IsZero() {
			at = last.Datetime
		}
		report.SuggestedSize, report.Session = risk.CalculateSizeByNYSession(
			decimal.NewFromFloat(cfg.BaseSize), at, risk.DefaultSessionSizeConfig())
	}

	return report, nil
}

func (v *VarReport) logReport(r Report) {
	fields := logger.Fields{
		"Symbol":          r.Symbol,
		"Candles":         r.Candles,
		"From":            r.From,
		"To":              r.To,
		"LastClose":       r.LastClose.String(),
		"Confidence":      r.Confidence,
		"HighUncertainty": r.HighUncertainty,
		"SuggestedStop":   r.SuggestedStop.String(),
		"StopMoved":       r.StopMoved,
	}
	if r.Session != "" {
		fields["Session"] = string(r.Session)
		fields["SuggestedSize"] = r.SuggestedSize.String()
	}
	for name, val := range map[string]*float64{
		"VaR":           r.VaR,
		"CVaR":          r.CVaR,
		"MonteCarloVaR": r.MonteCarloVaR,
		"Volatility":    r.Volatility,
		"Entropy":       r.Entropy,
		"ATR":           r.ATR,
	} {
		if val != nil {
			fields[name] = *val
		}
	}
	v.Log.WithFields(fields).Info("risk report")
}

func (v *VarReport) parseDurationToGoex() goex.KlinePeriod {
	var duration goex.KlinePeriod
	switch v.Config.DurationStr {
	case Duration1m:
		duration = goex.KLINE_PERIOD_1MIN
	case Duration1h:
		duration = goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
	return duration
}
