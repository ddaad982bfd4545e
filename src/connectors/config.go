package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PriceFeedURL         string        `envconfig:"PRICE_FEED_URL"`
	PriceFeedSymbols     []string      `envconfig:"PRICE_FEED_SYMBOLS"`
	PriceFeedHandshake   time.Duration `envconfig:"PRICE_FEED_HANDSHAKE_TIMEOUT" default:"15s"`
	PriceFeedReadTimeout time.Duration `envconfig:"PRICE_FEED_READ_TIMEOUT" default:"60s"`
	ReconnectMinBackoff  time.Duration `envconfig:"PRICE_FEED_RECONNECT_MIN" default:"500ms"`
	ReconnectMaxBackoff  time.Duration `envconfig:"PRICE_FEED_RECONNECT_MAX" default:"30s"`

	InboundRedisAddr     string        `envconfig:"INBOUND_REDIS_ADDR"`
	InboundRedisPassword string        `envconfig:"INBOUND_REDIS_PASSWORD"`
	InboundRedisDB       int           `envconfig:"INBOUND_REDIS_DB" default:"0"`
	FillsChannel         string        `envconfig:"INBOUND_FILLS_CHANNEL" default:"risk_management:fills"`
	ConditionsChannel    string        `envconfig:"INBOUND_CONDITIONS_CHANNEL" default:"risk_management:conditions"`
	CommandsChannel      string        `envconfig:"INBOUND_COMMANDS_CHANNEL" default:"risk_management:commands"`
	CommandTimeout       time.Duration `envconfig:"INBOUND_COMMAND_TIMEOUT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
