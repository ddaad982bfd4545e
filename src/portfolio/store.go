package portfolio

import (
	"fmt"
	"sync"
	"time"

	"riskengine/src/metrics"
	"riskengine/src/model"
	"riskengine/src/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultHistorySize = 1000

var (
	ErrEmptyHistory  = fmt.Errorf("portfolio history is empty: %w", metrics.ErrInsufficientData)
	ErrZeroBaseValue = fmt.Errorf("portfolio base value is zero: %w", metrics.ErrInsufficientData)

	hundred = decimal.NewFromInt(100)
)

// Stats are running marks kept alongside the history.
type Stats struct {
	DayHigh        decimal.Decimal `json:"day_high"`
	DayLow         decimal.Decimal `json:"day_low"`
	PeakValue      decimal.Decimal `json:"peak_value"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
}

// Store keeps a bounded ring of snapshots plus the day and week anchors.
// The evaluation loop is the only writer; readers receive copies.
type Store struct {
	mu     sync.RWMutex
	logger *logrus.Entry

	buf  []model.PortfolioSnapshot
	head int // index of the oldest entry
	size int
	seq  uint64

	loc       *time.Location
	dayKey    time.Time
	weekKey   time.Time
	dayStart  *model.PortfolioSnapshot
	weekStart *model.PortfolioSnapshot
	stats     Stats
}

func NewStore(logger *logrus.Entry, capacity int, loc *time.Location) *Store {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		logger: logger.WithField("component", "portfolio"),
		buf:    make([]model.PortfolioSnapshot, capacity),
		loc:    loc,
	}
}

// NewStoreFromConfig resolves the boundary timezone from config.
func NewStoreFromConfig(logger *logrus.Entry, cfg Config) (*Store, error) {
	loc, err := time.LoadLocation(cfg.BoundaryTZ)
	if err != nil {
		return nil, fmt.Errorf("load boundary timezone %q: %w", cfg.BoundaryTZ, err)
	}
	return NewStore(logger, cfg.HistorySize, loc), nil
}

// RecordSnapshot appends a snapshot, evicting the oldest when full.
func (s *Store) RecordSnapshot(ts time.Time, totalValue, realized, unrealized decimal.Decimal) model.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	snap := model.PortfolioSnapshot{
		Seq:           s.seq,
		Timestamp:     ts,
		TotalValue:    totalValue,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
	}

	capacity := len(s.buf)
	if s.size < capacity {
		s.buf[(s.head+s.size)%capacity] = snap
		s.size++
	} else {
		s.buf[s.head] = snap
		s.head = (s.head + 1) % capacity
	}

	s.rollBoundaries(snap)
	s.updateStats(snap)

	return snap
}

func (s *Store) rollBoundaries(snap model.PortfolioSnapshot) {
	day := utils.StartOfDay(snap.Timestamp, s.loc)
	if s.dayStart == nil || day.After(s.dayKey) {
		anchor := snap
		s.dayStart = &anchor
		s.dayKey = day
		s.stats.DayHigh = snap.TotalValue
		s.stats.DayLow = snap.TotalValue
		s.logger.WithFields(map[string]interface{}{
			"day":   day.Format("2006-01-02"),
			"value": snap.TotalValue.String(),
		}).Info("day start anchored")
	}

	week := utils.StartOfISOWeek(snap.Timestamp, s.loc)
	if s.weekStart == nil || week.After(s.weekKey) {
		anchor := snap
		s.weekStart = &anchor
		s.weekKey = week
		s.logger.WithFields(map[string]interface{}{
			"week":  utils.ISOWeekKey(snap.Timestamp, s.loc),
			"value": snap.TotalValue.String(),
		}).Info("week start anchored")
	}
}

func (s *Store) updateStats(snap model.PortfolioSnapshot) {
	v := snap.TotalValue
	if v.GreaterThan(s.stats.DayHigh) {
		s.stats.DayHigh = v
	}
	if v.LessThan(s.stats.DayLow) {
		s.stats.DayLow = v
	}
	if v.GreaterThan(s.stats.PeakValue) {
		s.stats.PeakValue = v
	}
	if s.stats.PeakValue.IsPositive() {
		dd := s.stats.PeakValue.Sub(v).Div(s.stats.PeakValue).Mul(hundred)
		if dd.GreaterThan(s.stats.MaxDrawdownPct) {
			s.stats.MaxDrawdownPct = dd
		}
	}
}

// DailyLossPct is the signed percent change of the latest value against the
// day start. A loss is negative.
func (s *Store) DailyLossPct() (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changeSince(s.dayStart)
}

// WeeklyReturnPct is the signed percent change against the ISO week start.
func (s *Store) WeeklyReturnPct() (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changeSince(s.weekStart)
}

func (s *Store) changeSince(anchor *model.PortfolioSnapshot) (decimal.Decimal, error) {
	if s.size == 0 || anchor == nil {
		return decimal.Zero, ErrEmptyHistory
	}
	if anchor.TotalValue.IsZero() {
		return decimal.Zero, ErrZeroBaseValue
	}
	cur := s.latestLocked().TotalValue
	return cur.Sub(anchor.TotalValue).Div(anchor.TotalValue).Mul(hundred), nil
}

func (s *Store) latestLocked() model.PortfolioSnapshot {
	return s.buf[(s.head+s.size-1)%len(s.buf)]
}

func (s *Store) Latest() (model.PortfolioSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.size == 0 {
		return model.PortfolioSnapshot{}, false
	}
	return s.latestLocked(), true
}

// History returns the retained snapshots oldest first.
func (s *Store) History() []model.PortfolioSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PortfolioSnapshot, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Capacity() int {
	return len(s.buf)
}

func (s *Store) DayStart() (model.PortfolioSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dayStart == nil {
		return model.PortfolioSnapshot{}, false
	}
	return *s.dayStart, true
}

func (s *Store) WeekStart() (model.PortfolioSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.weekStart == nil {
		return model.PortfolioSnapshot{}, false
	}
	return *s.weekStart, true
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Returns converts the retained value series into period returns.
func (s *Store) Returns() []float64 {
	hist := s.History()
	values := make([]float64, len(hist))
	for i, h := range hist {
		values[i] = h.TotalValue.InexactFloat64()
	}
	return metrics.Returns(values)
}

// Location is the timezone used for day and week boundaries.
func (s *Store) Location() *time.Location {
	return s.loc
}
