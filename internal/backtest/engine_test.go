package backtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eetc/internal/broker"
	"eetc/internal/domain"
	"eetc/internal/strategy"
)

func barsFromCloses(symbol string, closes ...float64) []domain.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

// scriptStrategy places scripted orders keyed by bar index.
type scriptStrategy struct {
	name    string
	orders  map[int][]scriptOrder // bar index -> orders to place
	barSeen int
	started int
	stopped int

	failOnStart bool
	failOnData  int // 1-based bar index at which OnData fails, 0 disables
}

type scriptOrder struct {
	side domain.OrderSide
	qty  float64
}

func (s *scriptStrategy) Name() string {
	if s.name == "" {
		return "script"
	}
	return s.name
}

func (s *scriptStrategy) OnStart(_ *strategy.Context) error {
	s.started++
	if s.failOnStart {
		return errors.New("boom at start")
	}
	return nil
}

func (s *scriptStrategy) OnData(sctx *strategy.Context, _ domain.Bar) error {
	s.barSeen++
	if s.failOnData == s.barSeen {
		return errors.New("boom at bar")
	}
	for _, o := range s.orders[s.barSeen] {
		// Rejections are deliberately ignored: the engine continues.
		_ = sctx.PlaceOrder(o.side, o.qty)
	}
	return nil
}

func (s *scriptStrategy) OnStop(_ *strategy.Context) error {
	s.stopped++
	return nil
}

func TestRunScenario(t *testing.T) {
	// 3 bars [100, 105, 95], buy 10 at bar 1, sell all at bar 3, zero
	// slippage/commission, initial capital 1000.
	strat := &scriptStrategy{orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 10}},
		3: {{domain.OrderSideSell, 10}},
	}}
	e := NewEngine(Config{InitialCapital: 1000, OutputDir: t.TempDir()}, nil, nil)

	res, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 105, 95))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantEquity := []float64{1000, 1050, 950}
	if len(res.EquityCurve) != len(wantEquity) {
		t.Fatalf("equity curve has %d points, want %d", len(res.EquityCurve), len(wantEquity))
	}
	for i, want := range wantEquity {
		if got := res.EquityCurve[i].Equity; math.Abs(got-want) > 1e-9 {
			t.Errorf("equity[%d] = %v, want %v", i, got, want)
		}
	}

	if cash := res.EquityCurve[len(res.EquityCurve)-1].Cash; math.Abs(cash-950) > 1e-9 {
		t.Errorf("final cash = %v, want 950", cash)
	}
	if math.Abs(res.Perf.TotalReturn-(-0.05)) > 1e-9 {
		t.Errorf("TotalReturn = %v, want -0.05", res.Perf.TotalReturn)
	}
	if len(res.Fills) != 2 {
		t.Errorf("trade log has %d fills, want 2", len(res.Fills))
	}
}

func TestRunLifecycle(t *testing.T) {
	strat := &scriptStrategy{}
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)

	if e.State() != StateInitialized {
		t.Fatalf("state before run = %s, want initialized", e.State())
	}

	if _, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 101)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if e.State() != StateStopped {
		t.Errorf("state after run = %s, want stopped", e.State())
	}
	if strat.started != 1 {
		t.Errorf("OnStart called %d times, want 1", strat.started)
	}
	if strat.stopped != 1 {
		t.Errorf("OnStop called %d times, want 1", strat.stopped)
	}

	// An engine runs exactly once.
	if _, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100)); err == nil {
		t.Error("second Run succeeded, want error")
	}
}

func TestRunEquityCurveOnePointPerBar(t *testing.T) {
	strat := &scriptStrategy{}
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)

	bars := barsFromCloses("AAPL", 100, 101, 102, 103, 104, 105)
	res, err := e.Run(context.Background(), strat, "AAPL", bars)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity curve has %d points, want %d (one per bar)", len(res.EquityCurve), len(bars))
	}
	for i := range bars {
		if !res.EquityCurve[i].Timestamp.Equal(bars[i].Timestamp) {
			t.Errorf("equity[%d] timestamp %v, want %v", i, res.EquityCurve[i].Timestamp, bars[i].Timestamp)
		}
	}
}

func TestRunFIFOOrderProcessing(t *testing.T) {
	// Two orders on the same bar must fill in the order they were placed.
	strat := &scriptStrategy{orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 3}, {domain.OrderSideBuy, 7}},
	}}
	e := NewEngine(Config{InitialCapital: 10000}, nil, nil)

	res, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(res.Fills))
	}
	if res.Fills[0].Qty != 3 || res.Fills[1].Qty != 7 {
		t.Errorf("fill qtys = [%v %v], want [3 7] (stable FIFO)", res.Fills[0].Qty, res.Fills[1].Qty)
	}
	if res.Fills[0].TradeID != "t-000001" || res.Fills[1].TradeID != "t-000002" {
		t.Errorf("trade IDs = [%s %s], want sequential", res.Fills[0].TradeID, res.Fills[1].TradeID)
	}
}

func TestRunStrategyErrorIsFatal(t *testing.T) {
	outDir := t.TempDir()
	strat := &scriptStrategy{failOnData: 2}
	e := NewEngine(Config{InitialCapital: 1000, OutputDir: outDir}, nil, nil)

	_, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 101, 102))
	if err == nil {
		t.Fatal("Run succeeded despite strategy fault")
	}
	// The error names the stage and the offending bar.
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("bar processing")) {
		t.Errorf("error %q does not identify the bar processing stage", got)
	}

	// No partial artifacts.
	entries, readErr := os.ReadDir(outDir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("found %d artifacts after aborted run, want 0", len(entries))
	}
}

func TestRunRejectedOrderContinues(t *testing.T) {
	// Bar 1 tries to buy far beyond available cash; the run still finishes.
	strat := &scriptStrategy{orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 1000}},
		2: {{domain.OrderSideBuy, 5}},
	}}
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)

	res, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 100, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", e.Rejected())
	}
	if len(res.Fills) != 1 || res.Fills[0].Qty != 5 {
		t.Errorf("fills = %+v, want single buy of 5", res.Fills)
	}
}

func TestRunOversellLeavesPositionUnchanged(t *testing.T) {
	strat := &scriptStrategy{orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 5}},
		2: {{domain.OrderSideSell, 50}},
	}}
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)

	if _, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 100)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.Position("AAPL").Qty; got != 5 {
		t.Errorf("position qty = %v, want 5 (oversell rejected)", got)
	}
}

func TestRunInsufficientDataAtReporting(t *testing.T) {
	strat := &scriptStrategy{}
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)

	_, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Run over 1 bar returned %v, want ErrInsufficientData", err)
	}
	// Bar processing completed before the reporting stage aborted.
	if strat.barSeen != 1 || strat.stopped != 1 {
		t.Errorf("barSeen=%d stopped=%d, want 1/1 (failure confined to reporting)", strat.barSeen, strat.stopped)
	}
}

func TestRunWritesArtifacts(t *testing.T) {
	outDir := t.TempDir()
	strat := &scriptStrategy{name: "sma-cross", orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 10}},
	}}
	e := NewEngine(Config{InitialCapital: 10000, OutputDir: outDir}, nil, nil)

	if _, err := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 105, 95)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{
		"sma-cross__AAPL__trades.json",
		"sma-cross__AAPL__equity.csv",
		"sma-cross__AAPL__perf.json",
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	equity, err := os.ReadFile(filepath.Join(outDir, "sma-cross__AAPL__equity.csv"))
	if err != nil {
		t.Fatalf("reading equity.csv: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(equity), []byte("\n"))
	if len(lines) != 4 { // header + one row per bar
		t.Errorf("equity.csv has %d lines, want 4", len(lines))
	}
	if string(lines[0]) != "timestamp,equity" {
		t.Errorf("equity.csv header = %q, want %q", lines[0], "timestamp,equity")
	}
}

func TestRunDeterministic(t *testing.T) {
	run := func(outDir string) {
		t.Helper()
		strat := &scriptStrategy{orders: map[int][]scriptOrder{
			1: {{domain.OrderSideBuy, 10}},
			3: {{domain.OrderSideSell, 4}},
			5: {{domain.OrderSideSell, 6}},
		}}
		e := NewEngine(Config{
			InitialCapital:     10000,
			Slippage:           0.0005,
			CommissionPerShare: 0.01,
			OutputDir:          outDir,
		}, nil, nil)
		bars := barsFromCloses("AAPL", 100, 102, 99, 104, 101)
		if _, err := e.Run(context.Background(), strat, "AAPL", bars); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	dirA, dirB := t.TempDir(), t.TempDir()
	run(dirA)
	run(dirB)

	for _, name := range []string{"script__AAPL__trades.json", "script__AAPL__equity.csv"} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		b, err := os.ReadFile(filepath.Join(dirB, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between identical runs", name)
		}
	}
}

func TestPlaceOrderOutsideRun(t *testing.T) {
	e := NewEngine(Config{InitialCapital: 1000}, nil, nil)
	e.sim = broker.NewSim(broker.SimConfig{InitialCash: 1000})

	err := e.PlaceOrder(domain.OrderSideBuy, 10)
	if !errors.Is(err, broker.ErrInvalidOrder) {
		t.Fatalf("PlaceOrder outside a run returned %v, want ErrInvalidOrder", err)
	}
}

func ExampleEngine_Run() {
	strat := &scriptStrategy{orders: map[int][]scriptOrder{
		1: {{domain.OrderSideBuy, 100}},
	}}
	e := NewEngine(Config{InitialCapital: 10000}, nil, nil)
	res, _ := e.Run(context.Background(), strat, "AAPL", barsFromCloses("AAPL", 100, 110))
	fmt.Printf("fills=%d total_return=%.2f\n", len(res.Fills), res.Perf.TotalReturn)
	// Output: fills=1 total_return=0.10
}
