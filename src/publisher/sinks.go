package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riskengine/src/model"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Redis keys read by the execution agent.
const (
	CircuitBreakerKey      = "risk_management:circuit_breaker"
	PauseTradingKey        = "risk_management:pause_trading"
	closePositionKeyPrefix = "risk_management:close_position:"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink(logger *logrus.Entry) *LogSink {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogSink{logger: logger.WithField("sink", "log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, evt model.RiskEvent) error {
	entry := s.logger.WithFields(map[string]interface{}{
		"event_id":    evt.ID,
		"kind":        evt.Kind,
		"severity":    evt.Severity,
		"symbol":      evt.Symbol,
		"position_id": evt.PositionID,
		"value":       evt.Value,
		"command":     evt.Command,
	})
	switch evt.Severity {
	case model.SeverityCritical:
		entry.Error("risk event")
	case model.SeverityHigh:
		entry.Warn("risk event")
	default:
		entry.Info("risk event")
	}
	return nil
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSink publishes every event on the agent channel and stores command
// events under a key with a TTL so late subscribers still see them. A breaker
// reset clears the stored breaker commands.
type RedisSink struct {
	client  redisPublisher
	channel string
	ttl     time.Duration
}

func NewRedisSink(client redisPublisher, channel string, ttl time.Duration) *RedisSink {
	if channel == "" {
		channel = "execution_agent"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSink{client: client, channel: channel, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, evt model.RiskEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}

	if evt.Kind == model.EventCircuitBreakerReset {
		if err := s.client.Del(ctx, CircuitBreakerKey, PauseTradingKey).Err(); err != nil {
			return fmt.Errorf("redis del breaker keys: %w", err)
		}
		return nil
	}

	key := CommandKey(evt)
	if key == "" {
		return nil
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CommandKey is the Redis key a command event is stored under, or "".
func CommandKey(evt model.RiskEvent) string {
	switch evt.Command {
	case model.CommandCloseAll:
		return CircuitBreakerKey
	case model.CommandPauseTrading:
		return PauseTradingKey
	case model.CommandClosePosition:
		return closePositionKeyPrefix + evt.PositionID
	default:
		return ""
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink writes events keyed by kind so each kind keeps its order.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, evt model.RiskEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Kind),
		Value: payload,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(evt.Severity)},
			{Key: "version", Value: []byte(fmt.Sprintf("%d", evt.Version))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// WebhookSink POSTs the event JSON to an HTTP endpoint.
type WebhookSink struct {
	http *resty.Client
	url  string
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	// retries are handled by the publisher
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookSink{http: httpClient, url: url}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, evt model.RiskEvent) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(evt).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type journalStore interface {
	Create(ctx context.Context, record *model.RiskEventRecord) error
}

// JournalSink persists delivered events.
type JournalSink struct {
	repo journalStore
}

func NewJournalSink(repo journalStore) *JournalSink {
	return &JournalSink{repo: repo}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Send(ctx context.Context, evt model.RiskEvent) error {
	return s.repo.Create(ctx, model.NewRiskEventRecord(evt))
}
