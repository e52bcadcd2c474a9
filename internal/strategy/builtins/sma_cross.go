// Package builtins provides built-in strategy implementations that ship with
// the backtesting toolkit.
package builtins

import (
	"fmt"
	"math"

	"eetc/internal/domain"
	"eetc/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It buys
// when the short-period SMA crosses above the long-period SMA and liquidates
// the position when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	closes []float64
	// prevShort/prevLong hold the SMAs of the previous bar, NaN until both
	// windows are full. Crossings are detected against these.
	prevShort float64
	prevLong  float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// OnStart validates the configured periods and resets rolling state.
func (s *SMACross) OnStart(_ *strategy.Context) error {
	if s.shortPeriod < 1 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: need 1 <= short < long, got short=%d long=%d",
			s.shortPeriod, s.longPeriod)
	}
	s.closes = make([]float64, 0, s.longPeriod)
	s.prevShort = math.NaN()
	s.prevLong = math.NaN()
	return nil
}

// OnData appends the bar close to the rolling window and trades on a
// crossover. Buys invest all available cash; sells liquidate the whole
// position.
func (s *SMACross) OnData(sctx *strategy.Context, bar domain.Bar) error {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[1:]
	}
	if len(s.closes) < s.longPeriod {
		return nil
	}

	short := mean(s.closes[len(s.closes)-s.shortPeriod:])
	long := mean(s.closes)

	defer func() {
		s.prevShort = short
		s.prevLong = long
	}()

	if math.IsNaN(s.prevShort) {
		// First bar with both windows full; no previous SMAs to cross.
		return nil
	}

	crossedUp := s.prevShort <= s.prevLong && short > long
	crossedDown := s.prevShort >= s.prevLong && short < long

	switch {
	case crossedUp:
		qty := math.Floor(sctx.Cash() / bar.Close)
		if qty < 1 {
			return nil
		}
		// Rejections are non-fatal; the next crossing gets another chance.
		_ = sctx.PlaceOrder(domain.OrderSideBuy, qty)
	case crossedDown:
		pos := sctx.Position()
		if pos.Qty <= 0 {
			return nil
		}
		_ = sctx.PlaceOrder(domain.OrderSideSell, pos.Qty)
	}
	return nil
}

// OnStop is a no-op; open positions are left to mark-to-market.
func (s *SMACross) OnStop(_ *strategy.Context) error {
	return nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
