package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	VolatilityRatioThreshold float64 `envconfig:"RISK_VOLATILITY_RATIO_THRESHOLD" default:"1.5"`
	MinSizeMultiplier        float64 `envconfig:"RISK_MIN_SIZE_MULTIPLIER" default:"0.1"`
	MaxStopMultiplier        float64 `envconfig:"RISK_MAX_STOP_MULTIPLIER" default:"3.0"`
	LowLiquidityScore        float64 `envconfig:"RISK_LOW_LIQUIDITY_SCORE" default:"0.5"`
	LowLiquidityMultiplier   float64 `envconfig:"RISK_LOW_LIQUIDITY_MULTIPLIER" default:"0.6"`
	CorrelationThreshold     float64 `envconfig:"RISK_CORRELATION_THRESHOLD" default:"0.7"`
	SessionSizing            bool    `envconfig:"RISK_SESSION_SIZING" default:"false"`
	NoTradeWindow            bool    `envconfig:"RISK_NO_TRADE_WINDOW" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func DefaultConfig() Config {
	return Config{
		VolatilityRatioThreshold: 1.5,
		MinSizeMultiplier:        0.1,
		MaxStopMultiplier:        3.0,
		LowLiquidityScore:        0.5,
		LowLiquidityMultiplier:   0.6,
		CorrelationThreshold:     0.7,
	}
}
