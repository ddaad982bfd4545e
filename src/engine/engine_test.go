package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"riskengine/src/auth"
	"riskengine/src/breaker"
	"riskengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	mu       sync.Mutex
	events   []model.RiskEvent
	critical []model.RiskEvent
	released []string
}

func (p *recordingPublisher) Publish(evt model.RiskEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *recordingPublisher) PublishCritical(_ context.Context, evt model.RiskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.critical = append(p.critical, evt)
	return nil
}

func (p *recordingPublisher) Release(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, keys...)
}

func (p *recordingPublisher) kinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.EventKind
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func (p *recordingPublisher) criticalKinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.EventKind
	for _, e := range p.critical {
		out = append(out, e.Kind)
	}
	return out
}

type recordingExceptions struct {
	mu   sync.Mutex
	rows []*model.Exception
}

func (r *recordingExceptions) Create(_ context.Context, exc *model.Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, exc)
	return nil
}

type corruptBreaker struct{}

func (corruptBreaker) Evaluate(time.Time, decimal.Decimal) (breaker.Outcome, error) {
	return breaker.Outcome{}, breaker.ErrStateCorruption
}

func (corruptBreaker) Override(time.Time) (breaker.Outcome, error) {
	return breaker.Outcome{}, breaker.ErrStateCorruption
}

func (corruptBreaker) State() model.CircuitBreakerState {
	return model.CircuitBreakerState{Status: "unknown"}
}

var t0 = time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config, c Components) (*Engine, *recordingPublisher) {
	t.Helper()
	l, _ := logrustest.NewNullLogger()
	pub := &recordingPublisher{}
	if c.Publisher == nil {
		c.Publisher = pub
	}
	e := New(logrus.NewEntry(l), cfg, c)
	e.now = func() time.Time { return t0 }
	return e, pub
}

func openFill(id, symbol, tag, price string) model.Fill {
	return model.Fill{
		PositionID:  id,
		Symbol:      symbol,
		Side:        model.SideLong,
		StrategyTag: tag,
		Volume:      d("1"),
		Price:       d(price),
		Action:      model.FillOpen,
		Timestamp:   t0,
	}
}

func tick(symbol, price string, ts time.Time) inbound {
	return inbound{kind: inboundTick, tick: model.Tick{Symbol: symbol, Price: d(price), Volume: d("1"), Timestamp: ts}}
}

func TestEngine_BreachLifecycle(t *testing.T) {
	e, pub := newTestEngine(t, DefaultConfig(), Components{})
	ctx := context.Background()

	require.True(t, e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")}))
	require.NoError(t, e.evaluate(ctx, t0))
	assert.Equal(t, model.BreakerNormal, e.Snapshot().Breaker.Status)

	// 10000 -> 9799 is a 2.01% daily loss
	e.handle(ctx, tick("BTCUSDT", "799", t0.Add(time.Second)))
	require.NoError(t, e.evaluate(ctx, t0.Add(time.Second)))

	snap := e.Snapshot()
	assert.Equal(t, model.BreakerBreached, snap.Breaker.Status)
	assert.True(t, snap.TotalValue.Equal(d("9799")), "got %s", snap.TotalValue)
	require.NotNil(t, snap.DailyChangePct)
	assert.True(t, snap.DailyChangePct.Equal(d("-2.01")), "got %s", snap.DailyChangePct)
	assert.Equal(t, []model.EventKind{model.EventDailyLossBreach, model.EventCircuitBreakerActivated}, pub.criticalKinds())
	assert.Equal(t, model.CommandCloseAll, pub.critical[0].Command)
	assert.Equal(t, model.CommandPauseTrading, pub.critical[1].Command)

	// recovery inside the window never reverts to Normal
	e.handle(ctx, tick("BTCUSDT", "1000", t0.Add(2*time.Second)))
	require.NoError(t, e.evaluate(ctx, t0.Add(2*time.Second)))
	assert.Equal(t, model.BreakerCooldown, e.Snapshot().Breaker.Status)
	require.NoError(t, e.evaluate(ctx, t0.Add(23*time.Hour)))
	assert.Equal(t, model.BreakerCooldown, e.Snapshot().Breaker.Status)
	assert.Len(t, pub.criticalKinds(), 2, "breach effects fire once")

	require.NoError(t, e.evaluate(ctx, t0.Add(25*time.Hour)))
	assert.Equal(t, model.BreakerNormal, e.Snapshot().Breaker.Status)
	assert.Contains(t, pub.kinds(), model.EventCircuitBreakerReset)
	assert.Contains(t, pub.released, string(model.EventDailyLossBreach))
}

func TestEngine_Override(t *testing.T) {
	e, pub := newTestEngine(t, DefaultConfig(), Components{})
	ctx := context.Background()

	err := e.applyOverride(ctx, "ops")
	assert.ErrorIs(t, err, breaker.ErrOverrideNotAllowed)

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	require.NoError(t, e.evaluate(ctx, t0))
	e.handle(ctx, tick("BTCUSDT", "700", t0.Add(time.Second)))
	require.NoError(t, e.evaluate(ctx, t0.Add(time.Second)))
	require.Equal(t, model.BreakerBreached, e.Snapshot().Breaker.Status)

	require.NoError(t, e.applyOverride(ctx, "ops"))
	assert.Equal(t, model.BreakerNormal, e.Snapshot().Breaker.Status)
	assert.Contains(t, pub.kinds(), model.EventCircuitBreakerReset)
}

func TestEngine_OverrideRecordsOperator(t *testing.T) {
	exceptions := &recordingExceptions{}
	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	e, _ := newTestEngine(t, cfg, Components{Exceptions: exceptions})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	require.NoError(t, e.evaluate(ctx, t0))
	e.handle(ctx, tick("BTCUSDT", "700", t0.Add(time.Second)))
	require.NoError(t, e.evaluate(ctx, t0.Add(time.Second)))
	require.Equal(t, model.BreakerBreached, e.Snapshot().Breaker.Status)

	go func() { _ = e.Run(ctx) }()
	require.NoError(t, e.SubmitOverride(auth.WithOperator(ctx, "alice")))

	exceptions.mu.Lock()
	defer exceptions.mu.Unlock()
	require.Len(t, exceptions.rows, 1)
	row := exceptions.rows[0]
	assert.Equal(t, "audit", row.Level)
	assert.Equal(t, "Override", row.Method)
	assert.Contains(t, row.Message, "alice")
	assert.Contains(t, row.Context, `"operator":"alice"`)
	assert.Contains(t, row.Context, `"from":"breached"`)
}

func TestEngine_OverrideWithoutOperatorIsUnknown(t *testing.T) {
	exceptions := &recordingExceptions{}
	e, _ := newTestEngine(t, DefaultConfig(), Components{Exceptions: exceptions})
	ctx := context.Background()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	require.NoError(t, e.evaluate(ctx, t0))
	e.handle(ctx, tick("BTCUSDT", "700", t0.Add(time.Second)))
	require.NoError(t, e.evaluate(ctx, t0.Add(time.Second)))

	e.handle(ctx, inbound{kind: inboundOverride, operator: "unknown", reply: make(chan error, 1)})
	require.Len(t, exceptions.rows, 1)
	assert.Contains(t, exceptions.rows[0].Context, `"operator":"unknown"`)
}

func TestEngine_TickValidation(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), Components{})
	ctx := context.Background()

	tests := []struct {
		name string
		tick model.Tick
	}{
		{name: "zero price", tick: model.Tick{Symbol: "BTCUSDT", Price: d("0"), Timestamp: t0}},
		{name: "negative price", tick: model.Tick{Symbol: "BTCUSDT", Price: d("-1"), Timestamp: t0}},
		{name: "negative volume", tick: model.Tick{Symbol: "BTCUSDT", Price: d("1"), Volume: d("-1"), Timestamp: t0}},
		{name: "missing symbol", tick: model.Tick{Price: d("1"), Timestamp: t0}},
		{name: "missing timestamp", tick: model.Tick{Symbol: "BTCUSDT", Price: d("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.SubmitTick(tt.tick)
			if !errors.Is(err, ErrInvalidTick) {
				t.Fatalf("expected ErrInvalidTick, got %v", err)
			}
		})
	}

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	assert.True(t, e.handle(ctx, tick("BTCUSDT", "1010", t0.Add(2*time.Second))))
	assert.False(t, e.handle(ctx, tick("BTCUSDT", "900", t0.Add(time.Second))), "out of order tick must be dropped")

	pos := e.Positions()
	require.Len(t, pos, 1)
	assert.True(t, pos[0].CurrentPrice.Equal(d("1010")))
}

func TestEngine_TrailingStopTriggerAndClose(t *testing.T) {
	e, pub := newTestEngine(t, DefaultConfig(), Components{})
	ctx := context.Background()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "ETHUSDT", "trend_following", "100")})
	e.handle(ctx, tick("ETHUSDT", "101", t0.Add(time.Second)))
	e.handle(ctx, tick("ETHUSDT", "100.4", t0.Add(2*time.Second)))
	e.handle(ctx, tick("ETHUSDT", "100.3", t0.Add(3*time.Second)))

	assert.Equal(t, []model.EventKind{model.EventTrailingStopArmed, model.EventTrailingStopTriggered}, pub.kinds())
	assert.Equal(t, model.CommandClosePosition, pub.events[1].Command)
	assert.Equal(t, "p1", pub.events[1].PositionID)

	pos := e.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, model.TrailingStopTriggered, pos[0].TrailingStop.Status)
	assert.True(t, pos[0].TrailingStop.StopPrice.Equal(d("100.495")), "got %s", pos[0].TrailingStop.StopPrice)

	closeFill := openFill("p1", "ETHUSDT", "trend_following", "100.3")
	closeFill.Action = model.FillClose
	e.handle(ctx, inbound{kind: inboundFill, fill: closeFill})

	assert.Empty(t, e.Positions())
	_, tracked := e.stops.State("p1")
	assert.False(t, tracked)
	assert.ElementsMatch(t, model.PositionEdgeKeys("p1"), pub.released)
}

func TestEngine_StaleCleanupKeepsOpenStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleStopMaxAge = time.Nanosecond
	e, pub := newTestEngine(t, cfg, Components{})
	ctx := context.Background()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "ETHUSDT", "trend_following", "100")})
	e.handle(ctx, tick("ETHUSDT", "101", t0.Add(time.Second)))
	e.handle(ctx, tick("ETHUSDT", "102", t0.Add(2*time.Second)))

	time.Sleep(2 * time.Millisecond)
	weekend := t0.Add(25 * time.Hour)
	require.NoError(t, e.evaluate(ctx, weekend))

	state, tracked := e.stops.State("p1")
	require.True(t, tracked)
	assert.True(t, state.StopPrice.Equal(d("101.694")), "got %s", state.StopPrice)

	e.handle(ctx, tick("ETHUSDT", "101.5", weekend))
	assert.Equal(t, []model.EventKind{model.EventTrailingStopArmed, model.EventTrailingStopTriggered}, pub.kinds())
	pos := e.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, model.TrailingStopTriggered, pos[0].TrailingStop.Status)
}

func TestEngine_StateCorruptionHalts(t *testing.T) {
	exceptions := &recordingExceptions{}
	e, pub := newTestEngine(t, DefaultConfig(), Components{Breaker: corruptBreaker{}, Exceptions: exceptions})
	ctx := context.Background()

	err := e.evaluate(ctx, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, breaker.ErrStateCorruption)

	require.Len(t, pub.critical, 1)
	assert.Equal(t, model.EventCircuitBreakerActivated, pub.critical[0].Kind)
	assert.Equal(t, model.CommandPauseTrading, pub.critical[0].Command)

	require.Len(t, exceptions.rows, 1)
	assert.Equal(t, "fatal", exceptions.rows[0].Level)
	assert.Equal(t, "breaker", exceptions.rows[0].Module)

	assert.True(t, e.Snapshot().Halted)
	assert.ErrorIs(t, e.SubmitFill(openFill("p2", "BTCUSDT", "manual", "1")), ErrHalted)
}

func TestEngine_RunStopsOnCorruption(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	e, _ := newTestEngine(t, cfg, Components{Breaker: corruptBreaker{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Run(ctx)
	assert.ErrorIs(t, err, breaker.ErrStateCorruption)
}

func TestEngine_RunFastPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	cfg.FastPathInterval = 10 * time.Millisecond
	e, _ := newTestEngine(t, cfg, Components{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.NoError(t, e.SubmitFill(openFill("p1", "BTCUSDT", "manual", "1000")))
	require.NoError(t, e.SubmitTick(model.Tick{Symbol: "BTCUSDT", Price: d("1001"), Volume: d("1"), Timestamp: t0.Add(time.Second)}))

	require.Eventually(t, func() bool {
		return e.Snapshot().Seq >= 1
	}, 2*time.Second, 5*time.Millisecond, "price event must wake the loop before the main tick")
	assert.Equal(t, 1, e.Snapshot().OpenPositions)

	require.NoError(t, e.SubmitConditions(model.MarketConditions{Volatility: 0.06, HistoricalVolatility: 0.02}))
	require.Eventually(t, func() bool {
		return e.Snapshot().Adjustment.PositionSizeMultiplier < 0.6
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestEngine_SubmitOverrideThroughLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	e, _ := newTestEngine(t, cfg, Components{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	err := e.SubmitOverride(ctx)
	assert.ErrorIs(t, err, breaker.ErrOverrideNotAllowed)
}

func TestEngine_InboxFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InboxSize = 1
	e, _ := newTestEngine(t, cfg, Components{})

	require.NoError(t, e.SubmitFill(openFill("p1", "BTCUSDT", "manual", "1")))
	assert.ErrorIs(t, e.SubmitFill(openFill("p2", "BTCUSDT", "manual", "1")), ErrInboxFull)
}

func TestEngine_MetricsNeedHistory(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), Components{})
	ctx := context.Background()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	require.NoError(t, e.evaluate(ctx, t0))
	assert.Nil(t, e.Snapshot().Metrics.VaR, "one snapshot has no returns")

	prices := []string{"1010", "995", "1020", "990", "1005", "1015"}
	for i, p := range prices {
		ts := t0.Add(time.Duration(i+1) * time.Second)
		e.handle(ctx, tick("BTCUSDT", p, ts))
		require.NoError(t, e.evaluate(ctx, ts))
	}

	m := e.Snapshot().Metrics
	require.NotNil(t, m.VaR)
	require.NotNil(t, m.CVaR)
	require.NotNil(t, m.MonteCarloVaR)
	require.NotNil(t, m.Entropy)
	assert.LessOrEqual(t, *m.CVaR, *m.VaR)
	assert.Equal(t, 0.95, m.Confidence)
}

func TestEngine_HighUncertaintyIsEdgeDetected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntropyThreshold = 0.01
	cfg.EntropyBuckets = 2
	e, pub := newTestEngine(t, cfg, Components{})
	ctx := context.Background()

	e.handle(ctx, inbound{kind: inboundFill, fill: openFill("p1", "BTCUSDT", "manual", "1000")})
	prices := []string{"1000", "1010", "1000", "1010", "1000"}
	for i, p := range prices {
		ts := t0.Add(time.Duration(i) * time.Second)
		e.handle(ctx, tick("BTCUSDT", p, ts))
		require.NoError(t, e.evaluate(ctx, ts))
	}

	count := 0
	for _, k := range pub.kinds() {
		if k == model.EventHighUncertainty {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
