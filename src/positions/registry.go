package positions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"riskengine/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionExists   = errors.New("position already exists")
	ErrInvalidFill      = errors.New("invalid fill")
)

// Registry maps position id to position. All returned values are copies.
type Registry struct {
	mu        sync.Mutex
	logger    *logrus.Entry
	positions map[string]*model.Position
	realized  decimal.Decimal
}

func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		logger:    logger.WithField("component", "positions"),
		positions: make(map[string]*model.Position),
	}
}

func validateFill(f model.Fill) error {
	if f.PositionID == "" {
		return fmt.Errorf("%w: missing position id", ErrInvalidFill)
	}
	if !f.Volume.IsPositive() {
		return fmt.Errorf("%w: volume must be positive, got %s", ErrInvalidFill, f.Volume)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidFill, f.Price)
	}
	return nil
}

// Open registers a new position from an opening fill.
func (r *Registry) Open(f model.Fill) (model.Position, error) {
	if err := validateFill(f); err != nil {
		return model.Position{}, err
	}
	side := f.Side
	if side != model.SideShort {
		side = model.SideLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.positions[f.PositionID]; ok {
		return model.Position{}, fmt.Errorf("open %s: %w", f.PositionID, ErrPositionExists)
	}

	p := &model.Position{
		ID:           f.PositionID,
		Symbol:       f.Symbol,
		Side:         side,
		StrategyTag:  f.StrategyTag,
		EntryPrice:   f.Price,
		CurrentPrice: f.Price,
		Volume:       f.Volume,
		OpenedAt:     f.Timestamp,
		UpdatedAt:    f.Timestamp,
		TrailingStop: model.TrailingStopState{Status: model.TrailingStopInactive},
	}
	r.positions[p.ID] = p

	r.logger.WithFields(map[string]interface{}{
		"position_id": p.ID,
		"symbol":      p.Symbol,
		"side":        p.Side,
		"strategy":    p.StrategyTag,
		"entry":       p.EntryPrice.String(),
		"volume":      p.Volume.String(),
	}).Info("position opened")

	return *p, nil
}

// ApplyFill routes a fill by action. The returned bool is true when the
// position no longer exists afterwards.
func (r *Registry) ApplyFill(f model.Fill) (model.Position, bool, error) {
	switch f.Action {
	case model.FillOpen, "":
		p, err := r.Open(f)
		return p, false, err
	case model.FillClose:
		p, err := r.closeAt(f.PositionID, f.Price, f.Timestamp)
		return p, err == nil, err
	case model.FillPartialClose:
		return r.reduce(f)
	default:
		return model.Position{}, false, fmt.Errorf("%w: unknown action %q", ErrInvalidFill, f.Action)
	}
}

func (r *Registry) reduce(f model.Fill) (model.Position, bool, error) {
	if err := validateFill(f); err != nil {
		return model.Position{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[f.PositionID]
	if !ok {
		return model.Position{}, false, fmt.Errorf("partial close %s: %w", f.PositionID, ErrPositionNotFound)
	}

	qty := decimal.Min(f.Volume, p.Volume)
	r.realized = r.realized.Add(realizedPnL(*p, f.Price, qty))
	p.Volume = p.Volume.Sub(qty)
	p.UpdatedAt = f.Timestamp

	if !p.Volume.IsPositive() {
		delete(r.positions, p.ID)
		r.logger.WithField("position_id", p.ID).Info("position fully closed by partial fill")
		return *p, true, nil
	}
	return *p, false, nil
}

// Close removes the position at its last known price. Under concurrent calls
// for the same id exactly one succeeds.
func (r *Registry) Close(id string) (model.Position, error) {
	return r.closeAt(id, decimal.Zero, time.Time{})
}

func (r *Registry) closeAt(id string, price decimal.Decimal, ts time.Time) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[id]
	if !ok {
		return model.Position{}, fmt.Errorf("close %s: %w", id, ErrPositionNotFound)
	}
	if !price.IsPositive() {
		price = p.CurrentPrice
	}
	r.realized = r.realized.Add(realizedPnL(*p, price, p.Volume))
	delete(r.positions, id)
	if !ts.IsZero() {
		p.UpdatedAt = ts
	}

	r.logger.WithFields(map[string]interface{}{
		"position_id": id,
		"exit":        price.String(),
	}).Info("position closed")

	return *p, nil
}

// UpdatePrice marks every position on the symbol to the new price and
// returns the updated copies.
func (r *Registry) UpdatePrice(symbol string, price decimal.Decimal, ts time.Time) []model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Position
	for _, p := range r.positions {
		if p.Symbol != symbol {
			continue
		}
		p.CurrentPrice = price
		p.UpdatedAt = ts
		out = append(out, *p)
	}
	sortPositions(out)
	return out
}

// SetTrailingStop stores the latest trailing stop state on the position.
func (r *Registry) SetTrailingStop(id string, state model.TrailingStopState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[id]
	if !ok {
		return fmt.Errorf("set trailing stop %s: %w", id, ErrPositionNotFound)
	}
	p.TrailingStop = state
	return nil
}

func (r *Registry) Get(id string) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[id]
	if !ok {
		return model.Position{}, fmt.Errorf("get %s: %w", id, ErrPositionNotFound)
	}
	return *p, nil
}

// List returns every open position ordered by open time then id.
func (r *Registry) List() []model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, *p)
	}
	sortPositions(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

func (r *Registry) RealizedPnL() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realized
}

func (r *Registry) UnrealizedPnL() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := decimal.Zero
	for _, p := range r.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

func realizedPnL(p model.Position, exit, qty decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(p.EntryPrice)
	if p.Side == model.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

func sortPositions(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].OpenedAt.Before(ps[j].OpenedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
