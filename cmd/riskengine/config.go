package riskengine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServiceName   string `envconfig:"APP_NAME" default:"risk_engine"`
	EnableServer  bool   `envconfig:"ENABLE_SERVER" default:"true"`
	EnableInbound bool   `envconfig:"ENABLE_REDIS_INBOUND" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
