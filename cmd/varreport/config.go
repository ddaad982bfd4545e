package varreport

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartDt     time.Time     `envconfig:"START_DATE"`
	EndDt       time.Time     `envconfig:"END_DATE"`
	Lookback    time.Duration `envconfig:"REPORT_LOOKBACK" default:"720h"`
	DurationStr string        `envconfig:"DURATION" default:"1h"`
	Aggregate   time.Duration `envconfig:"REPORT_AGGREGATE"`
	Symbol      string        `envconfig:"SYMBOL" default:"BTC"`
	Quote       string        `envconfig:"QUOTE" default:"USDT"`
	Limit       int           `envconfig:"LIMIT" default:"1000"`
	Endpoint    string        `envconfig:"BINANCE_ENDPOINT"`

	Confidence       float64 `envconfig:"VAR_CONFIDENCE" default:"0.95"`
	Simulations      int     `envconfig:"MONTE_CARLO_SIMULATIONS" default:"1000"`
	Seed             int64   `envconfig:"MONTE_CARLO_SEED"`
	EntropyBuckets   int     `envconfig:"ENTROPY_BUCKETS" default:"20"`
	EntropyWindow    int     `envconfig:"ENTROPY_WINDOW" default:"100"`
	EntropyThreshold float64 `envconfig:"ENTROPY_THRESHOLD" default:"0.8"`
	ATRPeriod        int     `envconfig:"ATR_PERIOD" default:"14"`

	// candle stop suggestion for a hypothetical position
	Side           string  `envconfig:"REPORT_SIDE" default:"long"`
	CurrentStop    float64 `envconfig:"REPORT_CURRENT_STOP"`
	CandleLookback int     `envconfig:"CANDLE_LOOKBACK" default:"20"`

	// nominal size scaled by the New York session at END_DATE
	BaseSize float64 `envconfig:"REPORT_BASE_SIZE"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
