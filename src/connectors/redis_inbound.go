package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"riskengine/src/auth"
	"riskengine/src/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrUnknownCommand = errors.New("unknown command")

// InboundSink is the engine side of fills, conditions and commands.
type InboundSink interface {
	SubmitFill(f model.Fill) error
	SubmitConditions(mc model.MarketConditions) error
	SubmitOverride(ctx context.Context) error
}

// RedisInbound subscribes to the execution and analytics channels and feeds
// decoded records into the sink.
type RedisInbound struct {
	logger         *logrus.Entry
	client         *redis.Client
	sink           InboundSink
	fills          string
	conditions     string
	commands       string
	commandTimeout time.Duration
}

func NewRedisInbound(logger *logrus.Entry, client *redis.Client, cfg Config, sink InboundSink) *RedisInbound {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	return &RedisInbound{
		logger:         logger.WithField("component", "redis_inbound"),
		client:         client,
		sink:           sink,
		fills:          cfg.FillsChannel,
		conditions:     cfg.ConditionsChannel,
		commands:       cfg.CommandsChannel,
		commandTimeout: cfg.CommandTimeout,
	}
}

func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.InboundRedisAddr,
		Password: cfg.InboundRedisPassword,
		DB:       cfg.InboundRedisDB,
	})
}

// Run blocks until ctx is done or the subscription fails.
func (r *RedisInbound) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.fills, r.conditions, r.commands)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.WithField("channels", []string{r.fills, r.conditions, r.commands}).Info("inbound subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			if err := r.dispatch(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
				r.logger.WithFields(map[string]interface{}{
					"channel": msg.Channel,
				}).WithError(err).Warn("inbound message rejected")
			}
		}
	}
}

func (r *RedisInbound) dispatch(ctx context.Context, channel string, payload []byte) error {
	switch channel {
	case r.fills:
		var f model.Fill
		if err := json.Unmarshal(payload, &f); err != nil {
			return fmt.Errorf("decode fill: %w", err)
		}
		return r.sink.SubmitFill(f)

	case r.conditions:
		var mc model.MarketConditions
		if err := json.Unmarshal(payload, &mc); err != nil {
			return fmt.Errorf("decode conditions: %w", err)
		}
		return r.sink.SubmitConditions(mc)

	case r.commands:
		var cmd model.OverrideCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decode command: %w", err)
		}
		if cmd.Action != model.OverrideCooldownAction {
			return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
		}
		operator := cmd.Operator
		if operator == "" {
			operator = "redis:" + channel
		}
		cctx, cancel := context.WithTimeout(auth.WithOperator(ctx, operator), r.commandTimeout)
		defer cancel()
		if err := r.sink.SubmitOverride(cctx); err != nil {
			return fmt.Errorf("override: %w", err)
		}
		r.logger.WithField("operator", operator).Warn("cooldown override applied from command channel")
		return nil

	default:
		return fmt.Errorf("unexpected channel %q", channel)
	}
}
