package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"eetc/internal/domain"
)

func curveOf(values ...float64) []domain.EquityPoint {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = domain.EquityPoint{
			Timestamp: base.AddDate(0, 0, i),
			Equity:    v,
		}
	}
	return curve
}

func TestComputePerfTotalReturn(t *testing.T) {
	perf, err := ComputePerf(curveOf(1000, 1050, 950))
	if err != nil {
		t.Fatalf("ComputePerf: %v", err)
	}
	if math.Abs(perf.TotalReturn-(-0.05)) > 1e-9 {
		t.Errorf("TotalReturn = %v, want -0.05", perf.TotalReturn)
	}
}

func TestComputePerfMaxDrawdown(t *testing.T) {
	// Peak 1200, trough 600: drawdown -50%.
	perf, err := ComputePerf(curveOf(1000, 1200, 900, 600, 1100))
	if err != nil {
		t.Fatalf("ComputePerf: %v", err)
	}
	if math.Abs(perf.MaxDrawdown-(-0.5)) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want -0.5", perf.MaxDrawdown)
	}
	if perf.MaxDrawdown > 0 || perf.MaxDrawdown < -1 {
		t.Errorf("MaxDrawdown = %v, want within [-1, 0]", perf.MaxDrawdown)
	}
}

func TestComputePerfMonotonicCurveHasZeroDrawdown(t *testing.T) {
	perf, err := ComputePerf(curveOf(1000, 1010, 1050, 1200))
	if err != nil {
		t.Fatalf("ComputePerf: %v", err)
	}
	if perf.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0 for a monotonically rising curve", perf.MaxDrawdown)
	}
}

func TestComputePerfZeroVarianceSharpe(t *testing.T) {
	// All periods identical: Sharpe must be 0, not NaN or an error.
	perf, err := ComputePerf(curveOf(1000, 1000, 1000, 1000))
	if err != nil {
		t.Fatalf("ComputePerf: %v", err)
	}
	if perf.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for zero-variance returns", perf.SharpeRatio)
	}
	if math.IsNaN(perf.SharpeRatio) || math.IsNaN(perf.AnnualVol) {
		t.Error("zero-variance curve produced NaN statistics")
	}
}

func TestComputePerfSharpeAnnualization(t *testing.T) {
	perf, err := ComputePerf(curveOf(1000, 1010, 1000, 1015, 1005))
	if err != nil {
		t.Fatalf("ComputePerf: %v", err)
	}

	// Recompute by hand from per-period returns.
	rets := []float64{1010.0/1000 - 1, 1000.0/1010 - 1, 1015.0/1000 - 1, 1005.0/1015 - 1}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	want := mean / std * math.Sqrt(252)

	if math.Abs(perf.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", perf.SharpeRatio, want)
	}
}

func TestComputePerfInsufficientData(t *testing.T) {
	if _, err := ComputePerf(nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("ComputePerf(nil) = %v, want ErrInsufficientData", err)
	}
	if _, err := ComputePerf(curveOf(1000)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("ComputePerf(1 point) = %v, want ErrInsufficientData", err)
	}
}
