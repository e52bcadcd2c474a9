package broker

import (
	"fmt"
	"math"

	"eetc/internal/domain"
)

// SimConfig holds the simulation parameters for a Sim.
type SimConfig struct {
	// InitialCash is the starting account balance.
	InitialCash float64

	// Slippage is the fractional price adjustment applied against the
	// trader: buys fill at close*(1+Slippage), sells at close*(1-Slippage).
	Slippage float64

	// CommissionPerShare is the fixed cost per share, subtracted from cash
	// on every fill.
	CommissionPerShare float64

	// AllowShort permits sells that exceed the current position.
	AllowShort bool
}

// Sim executes orders against historical bars and tracks cash, positions,
// and the fill log in memory. It is exclusively owned by a single engine run
// and is not safe for concurrent use; the replay loop is single-threaded by
// contract so that results are exactly reproducible.
type Sim struct {
	cfg       SimConfig
	cash      float64
	positions map[string]*domain.Position
	fills     []domain.Fill
	nextTrade int
}

// NewSim creates a Sim with the given configuration.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{
		cfg:       cfg,
		cash:      cfg.InitialCash,
		positions: make(map[string]*domain.Position),
		nextTrade: 1,
	}
}

// Execute converts the requested order into a fill against the given bar.
// On success cash and position are updated atomically and the fill is
// appended to the fill log. A rejected order (ErrInvalidOrder,
// ErrInsufficientFunds) leaves all state unchanged.
func (s *Sim) Execute(order domain.Order, bar domain.Bar) (domain.Fill, error) {
	if order.Qty <= 0 || math.IsNaN(order.Qty) {
		return domain.Fill{}, fmt.Errorf("%w: qty %v", ErrInvalidOrder, order.Qty)
	}

	var sign float64
	switch order.Side {
	case domain.OrderSideBuy:
		sign = 1
	case domain.OrderSideSell:
		sign = -1
	default:
		return domain.Fill{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}

	ref := bar.Close
	if math.IsNaN(ref) || ref <= 0 {
		return domain.Fill{}, fmt.Errorf("%w: bar %s has no usable close price", ErrInvalidOrder, bar.Timestamp.Format("2006-01-02"))
	}

	fillPrice := ref * (1 + sign*s.cfg.Slippage)
	commission := order.Qty * s.cfg.CommissionPerShare
	fillCost := -sign * order.Qty * fillPrice // cash delta before commission

	newCash := s.cash + fillCost - commission
	if sign > 0 && newCash < 0 {
		return domain.Fill{}, fmt.Errorf("%w: buy %v x %v needs %.2f, have %.2f",
			ErrInsufficientFunds, order.Qty, fillPrice, -fillCost+commission, s.cash)
	}

	pos := s.positions[order.Symbol]
	if sign < 0 && !s.cfg.AllowShort {
		held := 0.0
		if pos != nil {
			held = pos.Qty
		}
		if order.Qty > held {
			return domain.Fill{}, fmt.Errorf("%w: sell %v exceeds position %v",
				ErrInsufficientFunds, order.Qty, held)
		}
	}

	// Point of no return: apply cash and position together.
	s.cash = newCash
	if pos == nil {
		pos = &domain.Position{Symbol: order.Symbol}
		s.positions[order.Symbol] = pos
	}
	applyFill(pos, sign*order.Qty, fillPrice)

	fill := domain.Fill{
		TradeID:    fmt.Sprintf("t-%06d", s.nextTrade),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      fillPrice,
		Timestamp:  bar.Timestamp,
		Commission: commission,
		FillCost:   fillCost,
	}
	s.nextTrade++
	s.fills = append(s.fills, fill)

	return fill, nil
}

// applyFill updates pos for a signed fill quantity at the given price. The
// entry average blends only when the fill extends the position in its
// current direction. A fill that reduces the position keeps the existing
// average, a fill that crosses through flat restarts it at the fill price,
// and a fill that exactly flattens the position resets it to 0.
func applyFill(pos *domain.Position, qty, price float64) {
	prev := pos.Qty
	pos.Qty = prev + qty
	switch {
	case pos.Qty == 0:
		pos.AvgEntryPrice = 0
	case prev == 0 || (prev > 0) != (pos.Qty > 0):
		pos.AvgEntryPrice = price
	case (prev > 0) == (qty > 0):
		pos.AvgEntryPrice = (math.Abs(prev)*pos.AvgEntryPrice + math.Abs(qty)*price) / math.Abs(pos.Qty)
	}
}

// MarkToMarket returns cash plus the market value of all positions at the
// bar's close. It has no side effects; the engine decides whether to append
// the value to the equity curve.
func (s *Sim) MarkToMarket(bar domain.Bar) float64 {
	nav := s.cash
	for _, pos := range s.positions {
		nav += pos.Qty * bar.Close
	}
	return nav
}

// Cash returns the current cash balance.
func (s *Sim) Cash() float64 {
	return s.cash
}

// Position returns a copy of the current position for symbol. A symbol that
// was never traded yields a zero-quantity position.
func (s *Sim) Position(symbol string) domain.Position {
	if pos, ok := s.positions[symbol]; ok {
		return *pos
	}
	return domain.Position{Symbol: symbol}
}

// Fills returns the ordered log of executed fills.
func (s *Sim) Fills() []domain.Fill {
	return s.fills
}
