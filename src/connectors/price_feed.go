package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"riskengine/src/model"
	"riskengine/src/monitoring"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TickSink receives decoded price ticks.
type TickSink interface {
	SubmitTick(t model.Tick) error
}

type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// PriceFeed reads JSON ticks from a websocket and forwards them to the sink,
// reconnecting with exponential backoff until the context ends.
type PriceFeed struct {
	logger      *logrus.Entry
	url         string
	header      http.Header
	symbols     []string
	sink        TickSink
	dialer      *websocket.Dialer
	readTimeout time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

func NewPriceFeed(logger *logrus.Entry, cfg Config, sink TickSink) *PriceFeed {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.PriceFeedHandshake <= 0 {
		cfg.PriceFeedHandshake = 15 * time.Second
	}
	if cfg.PriceFeedReadTimeout <= 0 {
		cfg.PriceFeedReadTimeout = 60 * time.Second
	}
	if cfg.ReconnectMinBackoff <= 0 {
		cfg.ReconnectMinBackoff = 500 * time.Millisecond
	}
	if cfg.ReconnectMaxBackoff < cfg.ReconnectMinBackoff {
		cfg.ReconnectMaxBackoff = cfg.ReconnectMinBackoff
	}

	return &PriceFeed{
		logger:  logger.WithField("component", "price_feed"),
		url:     cfg.PriceFeedURL,
		header:  http.Header{},
		symbols: cfg.PriceFeedSymbols,
		sink:    sink,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.PriceFeedHandshake,
			Proxy:            http.ProxyFromEnvironment,
		},
		readTimeout: cfg.PriceFeedReadTimeout,
		minBackoff:  cfg.ReconnectMinBackoff,
		maxBackoff:  cfg.ReconnectMaxBackoff,
		now:         time.Now,
	}
}

// Run blocks until ctx is done.
func (f *PriceFeed) Run(ctx context.Context) error {
	if f.url == "" {
		return errors.New("price feed url is empty")
	}

	backoff := f.minBackoff
	for {
		received, err := f.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			backoff = f.minBackoff
		}

		f.logger.WithFields(map[string]interface{}{
			"url":      f.url,
			"received": received,
			"backoff":  backoff,
		}).WithError(err).Warn("price feed disconnected, reconnecting")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

// consume holds one connection and returns how many ticks it forwarded.
func (f *PriceFeed) consume(ctx context.Context) (int, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return 0, fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if len(f.symbols) > 0 {
		if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: f.symbols}); err != nil {
			return 0, fmt.Errorf("ws subscribe failed: %w", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	f.logger.WithField("url", f.url).Info("price feed connected")

	received := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("ws read failed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		ticks, err := decodeTicks(msg)
		if err != nil {
			monitoring.TicksRejected.WithLabelValues("decode").Inc()
			f.logger.WithError(err).Debug("undecodable feed message")
			continue
		}
		for _, t := range ticks {
			if t.Timestamp.IsZero() {
				t.Timestamp = f.now().UTC()
			}
			if err := f.sink.SubmitTick(t); err != nil {
				f.logger.WithFields(map[string]interface{}{
					"symbol": t.Symbol,
					"price":  t.Price.String(),
				}).WithError(err).Warn("tick not accepted")
				continue
			}
			received++
		}
	}
}

// decodeTicks accepts a single tick object or an array of ticks.
func decodeTicks(msg []byte) ([]model.Tick, error) {
	var batch []model.Tick
	if err := json.Unmarshal(msg, &batch); err == nil {
		return batch, nil
	}
	var single model.Tick
	if err := json.Unmarshal(msg, &single); err != nil {
		return nil, err
	}
	if single.Symbol == "" {
		return nil, fmt.Errorf("tick without symbol: %s", string(msg))
	}
	return []model.Tick{single}, nil
}
