package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	TickInterval     time.Duration   `envconfig:"ENGINE_TICK_INTERVAL" default:"1s"`
	FastPathInterval time.Duration   `envconfig:"ENGINE_FAST_PATH_INTERVAL" default:"100ms"`
	InboxSize        int             `envconfig:"ENGINE_INBOX_SIZE" default:"4096"`
	StartingCapital  decimal.Decimal `envconfig:"ENGINE_STARTING_CAPITAL" default:"10000"`

	VaRConfidence         float64 `envconfig:"ENGINE_VAR_CONFIDENCE" default:"0.95"`
	MonteCarloSimulations int     `envconfig:"ENGINE_MONTE_CARLO_SIMULATIONS" default:"1000"`
	EntropyBuckets        int     `envconfig:"ENGINE_ENTROPY_BUCKETS" default:"20"`
	EntropyThreshold      float64 `envconfig:"ENGINE_ENTROPY_THRESHOLD" default:"0.8"`
	EntropyWindow         int     `envconfig:"ENGINE_ENTROPY_WINDOW" default:"100"`

	StaleStopMaxAge time.Duration `envconfig:"ENGINE_STALE_STOP_MAX_AGE" default:"24h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:          time.Second,
		FastPathInterval:      100 * time.Millisecond,
		InboxSize:             4096,
		StartingCapital:       decimal.NewFromInt(10000),
		VaRConfidence:         0.95,
		MonteCarloSimulations: 1000,
		EntropyBuckets:        20,
		EntropyThreshold:      0.8,
		EntropyWindow:         100,
		StaleStopMaxAge:       24 * time.Hour,
	}
}
