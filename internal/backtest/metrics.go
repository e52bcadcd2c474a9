package backtest

import (
	"errors"
	"fmt"
	"math"

	"eetc/internal/domain"
)

// ErrInsufficientData marks an equity curve too short to derive a return
// series from. Bar processing has already completed when this surfaces; only
// the reporting stage aborts.
var ErrInsufficientData = errors.New("insufficient data")

// periodsPerYear annualizes per-bar statistics assuming daily bars.
const periodsPerYear = 252

// ComputePerf derives summary statistics from an equity curve. It is a pure
// function of the curve: per-period returns come from consecutive equity
// points, the Sharpe ratio is mean/stddev scaled by sqrt(252), and max
// drawdown is the deepest decline from a running peak.
//
// A return series with zero variance yields a Sharpe ratio of 0, not an
// error. A curve with fewer than two points yields ErrInsufficientData.
func ComputePerf(curve []domain.EquityPoint) (*domain.PerformanceReport, error) {
	if len(curve) < 2 {
		return nil, fmt.Errorf("%w: equity curve has %d points, need at least 2", ErrInsufficientData, len(curve))
	}

	initial := curve[0].Equity
	final := curve[len(curve)-1].Equity
	if initial == 0 {
		return nil, fmt.Errorf("%w: initial equity is zero", ErrInsufficientData)
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: no usable return periods", ErrInsufficientData)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	// Sample standard deviation, matching the convention of the rest of the
	// stats stack.
	std := 0.0
	if n := len(returns); n >= 2 {
		var ss float64
		for _, r := range returns {
			d := r - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(periodsPerYear)
	}

	return &domain.PerformanceReport{
		TotalReturn:  final/initial - 1,
		AnnualReturn: math.Pow(1+mean, periodsPerYear) - 1,
		AnnualVol:    std * math.Sqrt(periodsPerYear),
		SharpeRatio:  sharpe,
		MaxDrawdown:  maxDrawdown(curve),
	}, nil
}

// maxDrawdown returns the largest peak-to-trough fractional decline along
// the curve: min over i of (equity[i] - peak[i]) / peak[i]. The result is
// always <= 0 and, for non-negative equity, >= -1.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, dd float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if d := (p.Equity - peak) / peak; d < dd {
			dd = d
		}
	}
	return dd
}
