// Package strategy defines the Strategy interface for trading strategies,
// the Context through which strategies interact with a running backtest, and
// a Registry for managing multiple strategy implementations.
package strategy

import (
	"sort"

	"eetc/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
// Strategies may hold arbitrary internal state across calls (rolling
// windows, fitted models) but must not mutate engine-owned state except
// through the Context. An error returned from any callback aborts
// the run.
type Strategy interface {
	// Name returns the unique identifier for this strategy. It is used in
	// result file names, so it should be filesystem-safe.
	Name() string

	// OnStart is called exactly once before any bar is processed. It houses
	// pre-processing, model initialization, and warm-up logic.
	OnStart(sctx *Context) error

	// OnData is called once per bar, in chronological order. Orders placed
	// through the context are executed against this bar.
	OnData(sctx *Context, bar domain.Bar) error

	// OnStop is called exactly once after the last bar, before performance
	// metrics are computed.
	OnStop(sctx *Context) error
}

// OrderPlacer issues a market order bound to the bar currently being
// processed. A rejected order returns ErrInvalidOrder or
// ErrInsufficientFunds from the broker package; rejections do not abort the
// run unless the strategy chooses to propagate them.
type OrderPlacer interface {
	PlaceOrder(side domain.OrderSide, qty float64) error
}

// AccountReader provides read-only access to simulated account state.
type AccountReader interface {
	Cash() float64
	Position(symbol string) domain.Position
	Equity() float64
}

// Context is the capability bundle passed to strategy callbacks. It exposes
// exactly what a strategy is allowed to do: place orders for the backtest
// symbol and read account state. It replaces ambient mutable engine state.
type Context struct {
	symbol  string
	orders  OrderPlacer
	account AccountReader
}

// NewContext creates a Context for the given symbol, backed by the engine's
// order and account capabilities.
func NewContext(symbol string, orders OrderPlacer, account AccountReader) *Context {
	return &Context{
		symbol:  symbol,
		orders:  orders,
		account: account,
	}
}

// Symbol returns the symbol this backtest run trades.
func (c *Context) Symbol() string {
	return c.symbol
}

// PlaceOrder issues a market order for the backtest symbol, executed
// immediately against the bar currently being processed. Orders are
// processed in the exact order they are placed.
func (c *Context) PlaceOrder(side domain.OrderSide, qty float64) error {
	return c.orders.PlaceOrder(side, qty)
}

// Cash returns the current simulated cash balance.
func (c *Context) Cash() float64 {
	return c.account.Cash()
}

// Position returns the current position in the backtest symbol.
func (c *Context) Position() domain.Position {
	return c.account.Position(c.symbol)
}

// Equity returns the current account value, cash plus positions marked to
// the most recent close.
func (c *Context) Equity() float64 {
	return c.account.Equity()
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
