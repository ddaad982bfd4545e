package tp_sl

import (
	"sync"
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultStaleAfter = 24 * time.Hour

type tracked struct {
	state   model.TrailingStopState
	updated time.Time
}

// Summary counts tracked stops by phase.
type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Triggered int `json:"triggered"`
}

// Manager owns the trailing stop state of every eligible position.
type Manager struct {
	mu     sync.Mutex
	logger *logrus.Entry
	stops  map[string]*tracked
	now    func() time.Time
}

func NewManager(logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		logger: logger.WithField("component", "trailing_stop"),
		stops:  make(map[string]*tracked),
		now:    time.Now,
	}
}

// OnPrice evaluates the position at price and returns the new state plus the
// events produced by the transition, if any. Ineligible strategies stay
// Inactive and are not tracked.
func (m *Manager) OnPrice(pos model.Position, price decimal.Decimal, ts time.Time) (model.TrailingStopState, []model.RiskEvent) {
	params, ok := ParamsFor(pos.StrategyTag)
	if !ok {
		return model.TrailingStopState{Status: model.TrailingStopInactive}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.stops[pos.ID]
	if !ok {
		t = &tracked{state: seedState(pos, params)}
		m.stops[pos.ID] = t
	}

	next, transition := Evaluate(t.state, pos, price, ts)
	t.state = next
	t.updated = m.now()

	log := m.logger.WithFields(map[string]interface{}{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"price":       price.String(),
		"stop":        next.StopPrice.String(),
		"distance":    next.CurrentDistancePct.String(),
	})

	switch transition {
	case TransitionArmed:
		log.Info("trailing stop armed")
		evt := model.NewRiskEvent(model.EventTrailingStopArmed, model.SeverityMedium, next.StopPrice.InexactFloat64(), ts).
			WithPosition(pos.Symbol, pos.ID)
		return next, []model.RiskEvent{evt}
	case TransitionTightened:
		log.Debug("trailing stop tightened")
	case TransitionTriggered:
		log.Warn("trailing stop triggered")
		evt := model.NewRiskEvent(model.EventTrailingStopTriggered, model.SeverityHigh, next.StopPrice.InexactFloat64(), ts).
			WithPosition(pos.Symbol, pos.ID).
			WithCommand(model.CommandClosePosition)
		return next, []model.RiskEvent{evt}
	}
	return next, nil
}

// seedState resumes from the state the position already carries so a
// dropped entry never loosens or re-arms a known stop.
func seedState(pos model.Position, params Params) model.TrailingStopState {
	if pos.TrailingStop.ActivationThresholdPct.IsPositive() {
		return pos.TrailingStop
	}
	return NewState(params)
}

func (m *Manager) State(positionID string) (model.TrailingStopState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.stops[positionID]
	if !ok {
		return model.TrailingStopState{}, false
	}
	return t.state, true
}

// Forget drops the state of a closed position.
func (m *Manager) Forget(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stops, positionID)
}

func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	for _, t := range m.stops {
		s.Total++
		switch {
		case t.state.Status == model.TrailingStopTriggered:
			s.Triggered++
		case t.state.IsActive():
			s.Active++
		default:
			s.Pending++
		}
	}
	return s
}

// CleanupStale removes stops not evaluated within maxAge whose position is no
// longer open. A nil isOpen treats every position as closed.
func (m *Manager) CleanupStale(maxAge time.Duration, isOpen func(positionID string) bool) int {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, t := range m.stops {
		if !t.updated.Before(cutoff) {
			continue
		}
		if isOpen != nil && isOpen(id) {
			continue
		}
		delete(m.stops, id)
		removed++
	}
	if removed > 0 {
		m.logger.WithField("removed", removed).Info("stale trailing stops cleaned up")
	}
	return removed
}
