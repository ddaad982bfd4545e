package breaker

import (
	"sync"
	"time"

	"riskengine/src/model"
	"riskengine/src/utils"

	"github.com/shopspring/decimal"
)

// WeeklyTarget emits WeeklyTargetAchieved at most once per ISO week. It
// never touches the breaker state.
type WeeklyTarget struct {
	mu        sync.Mutex
	targetPct decimal.Decimal
	loc       *time.Location
	firedWeek string
}

func NewWeeklyTarget(targetPct decimal.Decimal, loc *time.Location) *WeeklyTarget {
	if loc == nil {
		loc = time.UTC
	}
	return &WeeklyTarget{targetPct: targetPct, loc: loc}
}

func (w *WeeklyTarget) Evaluate(now time.Time, weeklyPct decimal.Decimal) (model.RiskEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if weeklyPct.LessThan(w.targetPct) {
		return model.RiskEvent{}, false
	}
	week := utils.ISOWeekKey(now, w.loc)
	if week == w.firedWeek {
		return model.RiskEvent{}, false
	}
	w.firedWeek = week

	evt := model.NewRiskEvent(model.EventWeeklyTargetAchieved, model.SeverityLow, weeklyPct.InexactFloat64(), now).
		WithEdgeKey(string(model.EventWeeklyTargetAchieved) + ":" + week)
	return evt, true
}
