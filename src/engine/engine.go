package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"riskengine/src/auth"
	"riskengine/src/breaker"
	"riskengine/src/metrics"
	"riskengine/src/model"
	"riskengine/src/monitoring"
	"riskengine/src/portfolio"
	"riskengine/src/positions"
	"riskengine/src/risk"
	"riskengine/src/tp_sl"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidTick = errors.New("invalid tick")
	ErrInboxFull   = errors.New("engine inbox full")
	ErrHalted      = errors.New("engine halted")
)

const serviceName = "risk_engine"

type eventPublisher interface {
	Publish(evt model.RiskEvent) bool
	PublishCritical(ctx context.Context, evt model.RiskEvent) error
	Release(keys ...string)
}

type circuitBreaker interface {
	Evaluate(now time.Time, dailyPct decimal.Decimal) (breaker.Outcome, error)
	Override(now time.Time) (breaker.Outcome, error)
	State() model.CircuitBreakerState
}

// Components are the collaborators the loop drives. Nil fields are built
// from defaults.
type Components struct {
	Store      *portfolio.Store
	Registry   *positions.Registry
	Stops      *tp_sl.Manager
	Breaker    circuitBreaker
	Weekly     *breaker.WeeklyTarget
	Adjuster   *risk.Adjuster
	Publisher  eventPublisher
	Exceptions exceptionStore
}

type inboundKind int

const (
	inboundTick inboundKind = iota
	inboundFill
	inboundConditions
	inboundOverride
)

type inbound struct {
	kind       inboundKind
	tick       model.Tick
	fill       model.Fill
	conditions model.MarketConditions
	operator   string
	reply      chan error
}

// Engine is the single writer of the registry and the portfolio store. All
// producers go through the bounded inbox; readers use Snapshot.
type Engine struct {
	logger *logrus.Entry
	cfg    Config

	store      *portfolio.Store
	registry   *positions.Registry
	stops      *tp_sl.Manager
	breaker    circuitBreaker
	weekly     *breaker.WeeklyTarget
	adjuster   *risk.Adjuster
	publisher  eventPublisher
	exceptions exceptionStore

	inbox  chan inbound
	status atomic.Pointer[Status]
	halted atomic.Bool
	now    func() time.Time

	// owned by the loop goroutine
	lastTick        map[string]time.Time
	metrics         RiskMetrics
	highUncertainty bool
	rng             *rand.Rand
}

func New(logger *logrus.Entry, cfg Config, c Components) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.FastPathInterval <= 0 {
		cfg.FastPathInterval = defaults.FastPathInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaults.InboxSize
	}
	if cfg.VaRConfidence <= 0 || cfg.VaRConfidence >= 1 {
		cfg.VaRConfidence = defaults.VaRConfidence
	}
	if cfg.EntropyWindow <= 1 {
		cfg.EntropyWindow = defaults.EntropyWindow
	}
	if cfg.StaleStopMaxAge <= 0 {
		cfg.StaleStopMaxAge = defaults.StaleStopMaxAge
	}

	if c.Store == nil {
		c.Store = portfolio.NewStore(logger, 0, time.UTC)
	}
	if c.Registry == nil {
		c.Registry = positions.NewRegistry(logger)
	}
	if c.Stops == nil {
		c.Stops = tp_sl.NewManager(logger)
	}
	if c.Breaker == nil {
		c.Breaker = breaker.NewBreaker(logger, breaker.DefaultLimits())
	}
	if c.Weekly == nil {
		c.Weekly = breaker.NewWeeklyTarget(decimal.NewFromInt(20), c.Store.Location())
	}
	if c.Adjuster == nil {
		c.Adjuster = risk.NewAdjuster(logger, risk.DefaultConfig())
	}

	e := &Engine{
		logger:     logger.WithField("component", "engine"),
		cfg:        cfg,
		store:      c.Store,
		registry:   c.Registry,
		stops:      c.Stops,
		breaker:    c.Breaker,
		weekly:     c.Weekly,
		adjuster:   c.Adjuster,
		publisher:  c.Publisher,
		exceptions: c.Exceptions,
		inbox:      make(chan inbound, cfg.InboxSize),
		now:        time.Now,
		lastTick:   make(map[string]time.Time),
		metrics:    RiskMetrics{Confidence: cfg.VaRConfidence},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.refreshStatus(time.Time{})
	return e
}

// SubmitTick enqueues a price tick. Obviously malformed ticks are rejected
// here; ordering is checked by the loop.
func (e *Engine) SubmitTick(t model.Tick) error {
	if err := validateTick(t); err != nil {
		monitoring.TicksRejected.WithLabelValues("malformed").Inc()
		return err
	}
	return e.enqueue(inbound{kind: inboundTick, tick: t})
}

func (e *Engine) SubmitFill(f model.Fill) error {
	return e.enqueue(inbound{kind: inboundFill, fill: f})
}

func (e *Engine) SubmitConditions(mc model.MarketConditions) error {
	return e.enqueue(inbound{kind: inboundConditions, conditions: mc})
}

// SubmitOverride asks the loop to leave Breached or Cooldown and waits for
// the outcome. The operator is taken from the context.
func (e *Engine) SubmitOverride(ctx context.Context) error {
	operator, ok := auth.GetOperatorFromContext(ctx)
	if !ok || operator == "" {
		operator = "unknown"
	}
	reply := make(chan error, 1)
	if err := e.enqueue(inbound{kind: inboundOverride, operator: operator, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) enqueue(msg inbound) error {
	if e.halted.Load() {
		return ErrHalted
	}
	select {
	case e.inbox <- msg:
		return nil
	default:
		monitoring.EventsDropped.WithLabelValues("inbox_full").Inc()
		return ErrInboxFull
	}
}

// Snapshot returns the status published by the last evaluation.
func (e *Engine) Snapshot() Status {
	s := *e.status.Load()
	if s.Adjustment.Warnings != nil {
		s.Adjustment.Warnings = append([]risk.CorrelationWarning(nil), s.Adjustment.Warnings...)
	}
	return s
}

// Positions returns copies of the open positions.
func (e *Engine) Positions() []model.Position {
	return e.registry.List()
}

// Run drives the loop until ctx is done or the breaker reports corrupted
// state. A price tick arms the fast path so the breaker sees the move within
// FastPathInterval instead of waiting for the next scan.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	var fastTimer *time.Timer
	var fast <-chan time.Time
	defer func() {
		if fastTimer != nil {
			fastTimer.Stop()
		}
	}()

	e.logger.WithFields(map[string]interface{}{
		"tick":      e.cfg.TickInterval,
		"fast_path": e.cfg.FastPathInterval,
	}).Info("evaluation loop started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluation loop stopped")
			return nil

		case msg := <-e.inbox:
			if e.handle(ctx, msg) && fast == nil {
				fastTimer = time.NewTimer(e.cfg.FastPathInterval)
				fast = fastTimer.C
			}

		case <-fast:
			fast = nil
			if err := e.evaluate(ctx, e.now()); err != nil {
				return err
			}

		case <-ticker.C:
			if err := e.evaluate(ctx, e.now()); err != nil {
				return err
			}
		}
	}
}

// handle applies one inbound record. It reports whether portfolio value may
// have moved.
func (e *Engine) handle(ctx context.Context, msg inbound) bool {
	switch msg.kind {
	case inboundTick:
		return e.applyTick(msg.tick)
	case inboundFill:
		return e.applyFill(msg.fill)
	case inboundConditions:
		_, events := e.adjuster.Evaluate(msg.conditions, e.now())
		e.publishAll(events)
		e.refreshStatus(e.now())
	case inboundOverride:
		msg.reply <- e.applyOverride(ctx, msg.operator)
	}
	return false
}

func validateTick(t model.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidTick)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: %s price must be positive, got %s", ErrInvalidTick, t.Symbol, t.Price)
	}
	if t.Volume.IsNegative() {
		return fmt.Errorf("%w: %s volume must not be negative, got %s", ErrInvalidTick, t.Symbol, t.Volume)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s missing timestamp", ErrInvalidTick, t.Symbol)
	}
	return nil
}

func (e *Engine) applyTick(t model.Tick) bool {
	if err := validateTick(t); err != nil {
		e.rejectTick(t, "malformed", err)
		return false
	}
	if last, ok := e.lastTick[t.Symbol]; ok && t.Timestamp.Before(last) {
		e.rejectTick(t, "out_of_order", fmt.Errorf("%w: %s tick at %s is older than %s",
			ErrInvalidTick, t.Symbol, t.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)))
		return false
	}
	e.lastTick[t.Symbol] = t.Timestamp

	for _, pos := range e.registry.UpdatePrice(t.Symbol, t.Price, t.Timestamp) {
		state, events := e.stops.OnPrice(pos, t.Price, t.Timestamp)
		if _, eligible := tp_sl.ParamsFor(pos.StrategyTag); eligible {
			if err := e.registry.SetTrailingStop(pos.ID, state); err != nil {
				e.logger.WithError(err).WithField("position_id", pos.ID).Warn("trailing stop update for stale position")
			}
		}
		e.publishAll(events)
	}
	return true
}

func (e *Engine) rejectTick(t model.Tick, reason string, err error) {
	monitoring.TicksRejected.WithLabelValues(reason).Inc()
	e.logger.WithFields(map[string]interface{}{
		"symbol": t.Symbol,
		"price":  t.Price.String(),
		"volume": t.Volume.String(),
	}).WithError(err).Warn("tick dropped")
}

func (e *Engine) applyFill(f model.Fill) bool {
	pos, closed, err := e.registry.ApplyFill(f)
	if err != nil {
		log := e.logger.WithFields(map[string]interface{}{
			"position_id": f.PositionID,
			"action":      f.Action,
		}).WithError(err)
		if errors.Is(err, positions.ErrPositionNotFound) {
			log.Warn("fill for unknown position ignored")
		} else {
			log.Warn("fill rejected")
		}
		return false
	}
	if closed {
		e.stops.Forget(pos.ID)
		if e.publisher != nil {
			e.publisher.Release(model.PositionEdgeKeys(pos.ID)...)
		}
	}
	return true
}

func (e *Engine) isOpen(positionID string) bool {
	_, err := e.registry.Get(positionID)
	return err == nil
}

func (e *Engine) applyOverride(ctx context.Context, operator string) error {
	now := e.now()
	log := e.logger.WithField("operator", operator)
	prev := e.breaker.State().Status
	out, err := e.breaker.Override(now)
	if err != nil {
		if errors.Is(err, breaker.ErrStateCorruption) {
			return e.halt(ctx, now, "Override", err)
		}
		log.WithError(err).Warn("override rejected")
		return err
	}
	log.WithFields(map[string]interface{}{
		"from":   prev,
		"status": out.State.Status,
	}).Warn("circuit breaker overridden")
	e.auditOverride(ctx, now, operator, prev)
	e.applyOutcome(ctx, out)
	e.refreshStatus(now)
	return nil
}

// auditOverride stores who lifted the breaker in the exceptions table.
func (e *Engine) auditOverride(ctx context.Context, now time.Time, operator string, from model.CircuitBreakerStatus) {
	if e.exceptions == nil {
		return
	}
	data, _ := json.Marshal(map[string]interface{}{
		"operator":       operator,
		"from":           from,
		"open_positions": e.registry.Len(),
	})
	exc := &model.Exception{
		Service:   serviceName,
		Module:    "breaker",
		Method:    "Override",
		Message:   fmt.Sprintf("circuit breaker overridden by %s", operator),
		Level:     "audit",
		Context:   string(data),
		CreatedAt: now,
	}
	if err := e.exceptions.Create(ctx, exc); err != nil {
		e.logger.WithError(err).Error("failed to persist override audit")
	}
}

// evaluate is one portfolio scan. Only breaker state corruption is returned.
func (e *Engine) evaluate(ctx context.Context, now time.Time) error {
	if e.halted.Load() {
		return ErrHalted
	}
	start := time.Now()
	defer func() {
		monitoring.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	realized := e.registry.RealizedPnL()
	unrealized := e.registry.UnrealizedPnL()
	total := e.cfg.StartingCapital.Add(realized).Add(unrealized)
	e.store.RecordSnapshot(now, total, realized, unrealized)

	e.computeMetrics(now)

	daily, err := e.store.DailyLossPct()
	if err != nil {
		e.logger.WithError(err).Error("daily change unavailable, breaker not evaluated")
	} else {
		out, err := e.breaker.Evaluate(now, daily)
		if err != nil {
			return e.halt(ctx, now, "Evaluate", err)
		}
		e.applyOutcome(ctx, out)
	}

	if weekly, err := e.store.WeeklyReturnPct(); err == nil {
		if evt, ok := e.weekly.Evaluate(now, weekly); ok {
			e.publishAll([]model.RiskEvent{evt})
		}
	}

	e.stops.CleanupStale(e.cfg.StaleStopMaxAge, e.isOpen)
	e.refreshStatus(now)
	return nil
}

// computeMetrics refreshes VaR, CVaR and entropy. A metric without enough
// data is cleared rather than kept stale.
func (e *Engine) computeMetrics(now time.Time) {
	returns := e.store.Returns()
	m := RiskMetrics{Confidence: e.cfg.VaRConfidence}

	if v, err := metrics.HistoricalVaR(returns, e.cfg.VaRConfidence); err == nil {
		m.VaR = float64Ptr(v)
		monitoring.ValueAtRisk.WithLabelValues("historical").Set(v)
	} else {
		e.logger.WithError(err).Debug("var skipped")
	}
	if v, err := metrics.CVaR(returns, e.cfg.VaRConfidence); err == nil {
		m.CVaR = float64Ptr(v)
		monitoring.ValueAtRisk.WithLabelValues("cvar").Set(v)
	}
	if v, err := metrics.MonteCarloVaR(returns, e.cfg.VaRConfidence, e.cfg.MonteCarloSimulations, e.rng); err == nil {
		m.MonteCarloVaR = float64Ptr(v)
		monitoring.ValueAtRisk.WithLabelValues("monte_carlo").Set(v)
	}

	window := returns
	if len(window) > e.cfg.EntropyWindow {
		window = window[len(window)-e.cfg.EntropyWindow:]
	}
	if len(window) >= 2 {
		if h, err := metrics.EntropyUncertainty(window, e.cfg.EntropyBuckets); err == nil {
			m.Entropy = float64Ptr(h)
			monitoring.ValueAtRisk.WithLabelValues("entropy").Set(h)
			e.trackUncertainty(h, now)
		}
	}
	e.metrics = m
}

func (e *Engine) trackUncertainty(h float64, now time.Time) {
	high := metrics.IsHighUncertainty(h, e.cfg.EntropyThreshold)
	if high && !e.highUncertainty {
		e.logger.WithField("entropy", h).Warn("high market uncertainty")
		e.publishAll([]model.RiskEvent{
			model.NewRiskEvent(model.EventHighUncertainty, model.SeverityMedium, h, now),
		})
	}
	e.highUncertainty = high
}

func (e *Engine) applyOutcome(ctx context.Context, out breaker.Outcome) {
	if e.publisher == nil {
		return
	}
	if len(out.Released) > 0 {
		e.publisher.Release(out.Released...)
	}
	for _, evt := range out.Critical {
		if err := e.publisher.PublishCritical(ctx, evt); err != nil {
			e.logger.WithError(err).WithField("kind", evt.Kind).Error("critical event not fully delivered")
		}
	}
	e.publishAll(out.Events)
}

func (e *Engine) publishAll(events []model.RiskEvent) {
	if e.publisher == nil {
		return
	}
	for _, evt := range events {
		e.publisher.Publish(evt)
	}
}

// halt stops trading after an undefined breaker transition: pause is sent
// synchronously, the failure is persisted and the loop exits.
func (e *Engine) halt(ctx context.Context, now time.Time, method string, cause error) error {
	e.halted.Store(true)
	e.logger.WithError(cause).Error("circuit breaker state corrupted, halting")

	if e.publisher != nil {
		evt := model.NewRiskEvent(model.EventCircuitBreakerActivated, model.SeverityCritical, 0, now).
			WithCommand(model.CommandPauseTrading)
		if err := e.publisher.PublishCritical(ctx, evt); err != nil {
			e.logger.WithError(err).Error("halt command not fully delivered")
		}
	}

	Capture(ctx, e.exceptions, serviceName, "breaker", method, "fatal", cause, map[string]interface{}{
		"breaker_status": e.breaker.State().Status,
		"open_positions": e.registry.Len(),
	})

	e.refreshStatus(now)
	return fmt.Errorf("%w: %w", ErrHalted, cause)
}

func (e *Engine) refreshStatus(now time.Time) {
	s := &Status{
		Timestamp:     now,
		RealizedPnL:   e.registry.RealizedPnL(),
		UnrealizedPnL: e.registry.UnrealizedPnL(),
		Metrics:       e.metrics,
		Breaker:       e.breaker.State(),
		Adjustment:    e.adjuster.Current(),
		OpenPositions: e.registry.Len(),
		TrailingStops: e.stops.Summary(),
		Halted:        e.halted.Load(),
	}
	s.TotalValue = e.cfg.StartingCapital.Add(s.RealizedPnL).Add(s.UnrealizedPnL)

	if latest, ok := e.store.Latest(); ok {
		s.Seq = latest.Seq
		s.TotalValue = latest.TotalValue
	}
	if d, err := e.store.DailyLossPct(); err == nil {
		s.DailyChangePct = decimalPtr(d)
		monitoring.DailyChangePct.Set(d.InexactFloat64())
	}
	if w, err := e.store.WeeklyReturnPct(); err == nil {
		s.WeeklyChangePct = decimalPtr(w)
		monitoring.WeeklyChangePct.Set(w.InexactFloat64())
	}
	s.MaxDrawdownPct = e.store.Stats().MaxDrawdownPct

	monitoring.PortfolioValue.Set(s.TotalValue.InexactFloat64())
	monitoring.OpenPositions.Set(float64(s.OpenPositions))
	monitoring.SetBreakerStatus(string(s.Breaker.Status))

	e.status.Store(s)
}
