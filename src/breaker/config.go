package breaker

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	DailyLossLimitPct decimal.Decimal `envconfig:"BREAKER_DAILY_LOSS_LIMIT_PCT" default:"2"`
	WarningRatio      decimal.Decimal `envconfig:"BREAKER_WARNING_RATIO" default:"0.75"`
	Cooldown          time.Duration   `envconfig:"BREAKER_COOLDOWN" default:"24h"`
	WeeklyTargetPct   decimal.Decimal `envconfig:"BREAKER_WEEKLY_TARGET_PCT" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Limits derives the transition thresholds from config.
func (c Config) Limits() Limits {
	return Limits{
		WarningLossPct: c.DailyLossLimitPct.Mul(c.WarningRatio),
		BreachLossPct:  c.DailyLossLimitPct,
		Cooldown:       c.Cooldown,
	}
}
