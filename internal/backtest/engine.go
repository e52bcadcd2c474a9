// Package backtest implements the bar-replay backtesting engine. The engine
// wires a strategy to the broker simulator, maintains the equity curve,
// computes performance metrics at the end of the run, and persists the
// results.
//
// The entire run is one synchronous pass over an ordered bar series. No
// goroutines touch engine state, so two runs over identical input and
// configuration produce byte-identical trade logs and equity curves.
package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"eetc/internal/broker"
	"eetc/internal/domain"
	"eetc/internal/strategy"
)

// State tracks the engine lifecycle. An engine runs exactly once.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the simulation parameters for a backtest run.
type Config struct {
	InitialCapital     float64
	CommissionPerShare float64
	Slippage           float64
	AllowShort         bool

	// OutputDir is where result artifacts are written. Empty disables
	// artifact files (the Result is still returned).
	OutputDir string
}

// Result holds everything a completed run produced.
type Result struct {
	StrategyName string
	Symbol       string
	Fills        []domain.Fill
	EquityCurve  []domain.EquityPoint
	Perf         *domain.PerformanceReport
}

// Journal persists completed runs for later querying. It is optional; the
// file artifacts are the canonical output.
type Journal interface {
	SaveRun(ctx context.Context, res *Result) error
}

// Engine replays historical bars through a strategy against a simulated
// broker. It implements the strategy.OrderPlacer and strategy.AccountReader
// capabilities handed to the strategy via its Context.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	journal Journal

	state     State
	sim       *broker.Sim
	symbol    string
	bar       *domain.Bar // bar currently being processed, nil outside OnData
	nextOrder int
	rejected  int
}

// NewEngine creates an Engine with the given configuration. journal may be
// nil to skip database persistence.
func NewEngine(cfg Config, log *slog.Logger, journal Journal) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		log:       log.With("component", "backtest"),
		journal:   journal,
		state:     StateInitialized,
		nextOrder: 1,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Rejected returns how many orders the broker rejected during the run.
func (e *Engine) Rejected() int {
	return e.rejected
}

// Run replays bars through the strategy in order and returns the completed
// result. Bars must already be sorted chronologically; the engine neither
// reorders nor skips them.
//
// An error returned by a strategy callback is fatal: it aborts the run with
// no artifacts written, since strategy state is untrustworthy after an
// unhandled fault. A broker rejection of an individual order is not fatal;
// the order is skipped and the run continues.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, symbol string, bars []domain.Bar) (*Result, error) {
	if e.state != StateInitialized {
		return nil, fmt.Errorf("engine already used (state %s)", e.state)
	}

	e.symbol = symbol
	e.sim = broker.NewSim(broker.SimConfig{
		InitialCash:        e.cfg.InitialCapital,
		Slippage:           e.cfg.Slippage,
		CommissionPerShare: e.cfg.CommissionPerShare,
		AllowShort:         e.cfg.AllowShort,
	})
	sctx := strategy.NewContext(symbol, e, e)

	e.state = StateRunning
	e.log.Info("run starting",
		"strategy", strat.Name(),
		"symbol", symbol,
		"bars", len(bars),
		"initialCapital", e.cfg.InitialCapital,
	)

	if err := strat.OnStart(sctx); err != nil {
		e.state = StateStopped
		return nil, fmt.Errorf("bar processing: strategy %q OnStart: %w", strat.Name(), err)
	}

	curve := make([]domain.EquityPoint, 0, len(bars))
	for i := range bars {
		bar := bars[i]
		e.bar = &bar

		if err := strat.OnData(sctx, bar); err != nil {
			e.bar = nil
			e.state = StateStopped
			return nil, fmt.Errorf("bar processing: bar %s: strategy %q OnData: %w",
				bar.Timestamp.Format("2006-01-02"), strat.Name(), err)
		}

		equity := e.sim.MarkToMarket(bar)
		curve = append(curve, domain.EquityPoint{
			Timestamp: bar.Timestamp,
			Cash:      e.sim.Cash(),
			Equity:    equity,
		})
		e.bar = nil
	}

	e.state = StateStopped
	if err := strat.OnStop(sctx); err != nil {
		return nil, fmt.Errorf("bar processing: strategy %q OnStop: %w", strat.Name(), err)
	}

	perf, err := ComputePerf(curve)
	if err != nil {
		return nil, fmt.Errorf("reporting: %w", err)
	}

	fills := e.sim.Fills()
	if fills == nil {
		fills = []domain.Fill{}
	}
	res := &Result{
		StrategyName: strat.Name(),
		Symbol:       symbol,
		Fills:        fills,
		EquityCurve:  curve,
		Perf:         perf,
	}

	if e.cfg.OutputDir != "" {
		if err := e.writeArtifacts(res); err != nil {
			return nil, fmt.Errorf("reporting: %w", err)
		}
	}
	if e.journal != nil {
		if err := e.journal.SaveRun(ctx, res); err != nil {
			return nil, fmt.Errorf("reporting: saving run: %w", err)
		}
	}

	e.log.Info("run finished",
		"strategy", strat.Name(),
		"symbol", symbol,
		"fills", len(res.Fills),
		"rejected", e.rejected,
		"totalReturn", perf.TotalReturn,
		"sharpe", perf.SharpeRatio,
		"maxDrawdown", perf.MaxDrawdown,
	)
	return res, nil
}

// PlaceOrder executes a market order against the bar currently being
// processed. Rejections (broker.ErrInvalidOrder, broker.ErrInsufficientFunds)
// are logged and returned to the caller but do not abort the run.
func (e *Engine) PlaceOrder(side domain.OrderSide, qty float64) error {
	if e.state != StateRunning || e.bar == nil {
		return fmt.Errorf("%w: no active bar", broker.ErrInvalidOrder)
	}

	order := domain.Order{
		ID:        fmt.Sprintf("o-%06d", e.nextOrder),
		Symbol:    e.symbol,
		Side:      side,
		Qty:       qty,
		Price:     e.bar.Close,
		CreatedAt: e.bar.Timestamp,
	}
	e.nextOrder++

	fill, err := e.sim.Execute(order, *e.bar)
	if err != nil {
		if errors.Is(err, broker.ErrInvalidOrder) || errors.Is(err, broker.ErrInsufficientFunds) {
			e.rejected++
			e.log.Warn("order rejected",
				"order", order.ID,
				"bar", e.bar.Timestamp.Format("2006-01-02"),
				"err", err,
			)
			return err
		}
		return err
	}

	e.log.Debug("order filled",
		"trade", fill.TradeID,
		"side", fill.Side,
		"qty", fill.Qty,
		"price", fill.Price,
	)
	return nil
}

// Cash returns the current simulated cash balance.
func (e *Engine) Cash() float64 {
	return e.sim.Cash()
}

// Position returns the current position for symbol.
func (e *Engine) Position(symbol string) domain.Position {
	return e.sim.Position(symbol)
}

// Equity returns the current account value marked to the close of the bar
// being processed. Outside bar processing it equals the cash balance.
func (e *Engine) Equity() float64 {
	if e.bar == nil {
		return e.sim.Cash()
	}
	return e.sim.MarkToMarket(*e.bar)
}

// ---------------------------------------------------------------------------
// Artifact persistence
// ---------------------------------------------------------------------------

// writeArtifacts persists the trade log, equity curve, and performance
// report as {strategy}__{symbol}__{trades.json,equity.csv,perf.json}.
func (e *Engine) writeArtifacts(res *Result) error {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	base := fmt.Sprintf("%s__%s", res.StrategyName, res.Symbol)

	trades, err := json.MarshalIndent(res.Fills, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trades: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.cfg.OutputDir, base+"__trades.json"), trades, 0o644); err != nil {
		return err
	}

	if err := writeEquityCSV(filepath.Join(e.cfg.OutputDir, base+"__equity.csv"), res.EquityCurve); err != nil {
		return err
	}

	perf, err := json.MarshalIndent(res.Perf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding perf: %w", err)
	}
	return os.WriteFile(filepath.Join(e.cfg.OutputDir, base+"__perf.json"), perf, 0o644)
}

func writeEquityCSV(path string, curve []domain.EquityPoint) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			p.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
