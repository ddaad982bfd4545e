package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sinks is the configured sink set plus the connections it owns.
type Sinks struct {
	List    []Sink
	closers []io.Closer
}

func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildSinks wires every sink enabled in cfg. The log sink is always on;
// journal is nil when no database is configured.
func BuildSinks(ctx context.Context, logger *logrus.Entry, cfg Config, journal journalStore) (*Sinks, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	out := &Sinks{List: []Sink{NewLogSink(logger)}}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = out.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		out.List = append(out.List, NewRedisSink(client, cfg.RedisChannel, cfg.RedisCommandTTL))
		out.closers = append(out.closers, client)
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		out.List = append(out.List, NewKafkaSink(writer))
		out.closers = append(out.closers, writer)
	}

	if cfg.WebhookURL != "" {
		out.List = append(out.List, NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout))
	}

	if cfg.JournalEnabled && journal != nil {
		out.List = append(out.List, NewJournalSink(journal))
	}

	names := make([]string, 0, len(out.List))
	for _, s := range out.List {
		names = append(names, s.Name())
	}
	logger.WithField("sinks", names).Info("publisher sinks configured")
	return out, nil
}
