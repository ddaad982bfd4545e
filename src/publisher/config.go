package publisher

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	QueueSize       int           `envconfig:"PUBLISHER_QUEUE_SIZE" default:"1024"`
	RetryAttempts   int           `envconfig:"PUBLISHER_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"PUBLISHER_RETRY_BASE_DELAY" default:"200ms"`
	RetryMaxBackoff time.Duration `envconfig:"PUBLISHER_RETRY_MAX_BACKOFF" default:"2s"`
	SendTimeout     time.Duration `envconfig:"PUBLISHER_SEND_TIMEOUT" default:"5s"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	RedisChannel    string        `envconfig:"REDIS_EVENT_CHANNEL" default:"execution_agent"`
	RedisCommandTTL time.Duration `envconfig:"REDIS_COMMAND_TTL" default:"1h"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_RISK_TOPIC" default:"risk-events"`

	WebhookURL     string        `envconfig:"RISK_WEBHOOK_URL"`
	WebhookTimeout time.Duration `envconfig:"RISK_WEBHOOK_TIMEOUT" default:"5s"`

	JournalEnabled bool `envconfig:"RISK_JOURNAL_ENABLED" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
