package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"riskengine/src/model"
	"riskengine/src/monitoring"

	"github.com/sirupsen/logrus"
)

var (
	ErrPublishFailure = errors.New("publish failure")
	ErrQueueFull      = errors.New("publisher queue full")
)

const (
	defaultQueueSize = 1024

	// Default retry configuration
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 200 * time.Millisecond
	defaultRetryMaxBackoff = 2 * time.Second
	defaultSendTimeout     = 5 * time.Second
)

// Sink is one delivery target for risk events.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt model.RiskEvent) error
}

// delivery is one queued event. A nil sinks slice means every sink.
type delivery struct {
	evt          model.RiskEvent
	sinks        []Sink
	firstAttempt int
}

// Publisher delivers events off the evaluation path. Publish never blocks;
// PublishCritical makes one synchronous attempt per sink, ignores the edge
// throttle and leaves the remaining retries to the worker.
type Publisher struct {
	logger *logrus.Entry
	sinks  []Sink
	queue  chan delivery

	attempts    int
	baseDelay   time.Duration
	maxBackoff  time.Duration
	sendTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	seen map[string]struct{}

	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewPublisher(logger *logrus.Entry, cfg Config, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryMaxBackoff <= 0 {
		cfg.RetryMaxBackoff = defaultRetryMaxBackoff
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	return &Publisher{
		logger:      logger.WithField("component", "publisher"),
		sinks:       sinks,
		queue:       make(chan delivery, cfg.QueueSize),
		attempts:    cfg.RetryAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		maxBackoff:  cfg.RetryMaxBackoff,
		sendTimeout: cfg.SendTimeout,
		sleep:       sleepCtx,
		seen:        make(map[string]struct{}),
	}
}

// Start runs the delivery worker until ctx is done. Events still queued at
// shutdown are delivered before the worker exits.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run(ctx)
	})
}

// Wait blocks until the worker has exited.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	p.logger.WithField("sinks", p.sinkNames()).Info("publisher started")

	for {
		select {
		case d := <-p.queue:
			_ = p.deliver(ctx, d)
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			p.logger.Info("publisher stopped")
			return
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case d := <-p.queue:
			_ = p.deliver(ctx, d)
		default:
			return
		}
	}
}

// Publish enqueues evt. It returns false when the event was throttled or the
// queue is full.
func (p *Publisher) Publish(evt model.RiskEvent) bool {
	if !p.mark(evt.EdgeKey) {
		monitoring.EventsDropped.WithLabelValues("throttled").Inc()
		p.logger.WithFields(map[string]interface{}{
			"kind":     evt.Kind,
			"edge_key": evt.EdgeKey,
		}).Debug("event throttled")
		return false
	}

	select {
	case p.queue <- delivery{evt: evt, firstAttempt: 1}:
		return true
	default:
		p.unmark(evt.EdgeKey)
		monitoring.EventsDropped.WithLabelValues("queue_full").Inc()
		p.logger.WithFields(map[string]interface{}{
			"kind":     evt.Kind,
			"event_id": evt.ID,
		}).WithError(ErrQueueFull).Warn("event dropped")
		return false
	}
}

// PublishCritical tries every sink once before returning. Sinks that fail
// are handed to the worker for the remaining attempts, so a dead sink costs
// the caller at most one send timeout. The edge key is marked so the same
// edge is not re-sent through Publish.
func (p *Publisher) PublishCritical(ctx context.Context, evt model.RiskEvent) error {
	p.mark(evt.EdgeKey)

	var failed []Sink
	var errs []error
	for _, sink := range p.sinks {
		if err := p.send(ctx, sink, evt); err != nil {
			failed = append(failed, sink)
			errs = append(errs, fmt.Errorf("%w: sink %s: %v", ErrPublishFailure, sink.Name(), err))
			continue
		}
		monitoring.EventsPublished.WithLabelValues(string(evt.Kind), sink.Name()).Inc()
	}
	if len(failed) == 0 {
		return nil
	}

	log := p.logger.WithFields(map[string]interface{}{
		"kind":     evt.Kind,
		"event_id": evt.ID,
	})
	if p.attempts > 1 {
		select {
		case p.queue <- delivery{evt: evt, sinks: failed, firstAttempt: 2}:
			log.WithField("sinks", len(failed)).Warn("critical event queued for retry")
			return errors.Join(errs...)
		default:
			monitoring.EventsDropped.WithLabelValues("queue_full").Inc()
			log.WithError(ErrQueueFull).Warn("critical retry dropped")
		}
	}
	for i, sink := range failed {
		p.recordFailure(sink, evt, errs[i])
	}
	return errors.Join(errs...)
}

// Release re-opens the given edges so their next occurrence is delivered.
func (p *Publisher) Release(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.seen, k)
	}
}

func (p *Publisher) mark(key string) bool {
	if key == "" {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

func (p *Publisher) unmark(key string) {
	if key == "" {
		return
	}
	p.Release(key)
}

func (p *Publisher) deliver(ctx context.Context, d delivery) error {
	sinks := d.sinks
	if sinks == nil {
		sinks = p.sinks
	}
	var errs []error
	for _, sink := range sinks {
		if err := p.sendWithRetry(ctx, sink, d.evt, d.firstAttempt); err != nil {
			p.recordFailure(sink, d.evt, err)
			errs = append(errs, err)
			continue
		}
		monitoring.EventsPublished.WithLabelValues(string(d.evt.Kind), sink.Name()).Inc()
	}
	return errors.Join(errs...)
}

func (p *Publisher) recordFailure(sink Sink, evt model.RiskEvent, err error) {
	monitoring.PublishFailures.WithLabelValues(string(evt.Kind), sink.Name()).Inc()
	p.logger.WithFields(map[string]interface{}{
		"sink":     sink.Name(),
		"kind":     evt.Kind,
		"event_id": evt.ID,
	}).WithError(err).Error("PublishFailure")
}

func (p *Publisher) send(ctx context.Context, sink Sink, evt model.RiskEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	return sink.Send(sendCtx, evt)
}

// sendWithRetry makes attempts first through p.attempts with capped
// exponential backoff between them.
func (p *Publisher) sendWithRetry(ctx context.Context, sink Sink, evt model.RiskEvent, first int) error {
	if first < 1 {
		first = 1
	}
	delay := p.baseDelay
	var err error
	for attempt := first; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			if serr := p.sleep(ctx, delay); serr != nil {
				return fmt.Errorf("%w: sink %s: %v", ErrPublishFailure, sink.Name(), serr)
			}
			delay *= 2
			if delay > p.maxBackoff {
				delay = p.maxBackoff
			}
		}

		err = p.send(ctx, sink, evt)
		if err == nil {
			return nil
		}
		if attempt < p.attempts {
			p.logger.WithFields(map[string]interface{}{
				"sink":    sink.Name(),
				"attempt": attempt,
			}).WithError(err).Warn("send failed, retrying")
		}
	}
	return fmt.Errorf("%w: sink %s after %d attempts: %v", ErrPublishFailure, sink.Name(), p.attempts, err)
}

func (p *Publisher) sinkNames() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
