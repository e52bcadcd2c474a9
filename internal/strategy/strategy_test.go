package strategy

import (
	"testing"

	"eetc/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                          { return s.name }
func (s *stubStrategy) OnStart(_ *Context) error              { return nil }
func (s *stubStrategy) OnData(_ *Context, _ domain.Bar) error { return nil }
func (s *stubStrategy) OnStop(_ *Context) error               { return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha"})
	r.Register(&stubStrategy{name: "beta"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

// recordingPlacer captures order capability calls for Context tests.
type recordingPlacer struct {
	sides []domain.OrderSide
	qtys  []float64
}

func (p *recordingPlacer) PlaceOrder(side domain.OrderSide, qty float64) error {
	p.sides = append(p.sides, side)
	p.qtys = append(p.qtys, qty)
	return nil
}

type stubAccount struct{}

func (stubAccount) Cash() float64 { return 1234.5 }
func (stubAccount) Position(symbol string) domain.Position {
	return domain.Position{Symbol: symbol, Qty: 7}
}
func (stubAccount) Equity() float64 { return 2234.5 }

func TestContextCapabilities(t *testing.T) {
	placer := &recordingPlacer{}
	sctx := NewContext("AAPL", placer, stubAccount{})

	if sctx.Symbol() != "AAPL" {
		t.Errorf("Symbol() = %q, want %q", sctx.Symbol(), "AAPL")
	}
	if err := sctx.PlaceOrder(domain.OrderSideBuy, 10); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(placer.sides) != 1 || placer.sides[0] != domain.OrderSideBuy || placer.qtys[0] != 10 {
		t.Errorf("PlaceOrder forwarded (%v, %v), want (buy, 10)", placer.sides, placer.qtys)
	}
	if sctx.Cash() != 1234.5 {
		t.Errorf("Cash() = %v, want 1234.5", sctx.Cash())
	}
	if pos := sctx.Position(); pos.Symbol != "AAPL" || pos.Qty != 7 {
		t.Errorf("Position() = %+v, want AAPL qty 7", pos)
	}
	if sctx.Equity() != 2234.5 {
		t.Errorf("Equity() = %v, want 2234.5", sctx.Equity())
	}
}
