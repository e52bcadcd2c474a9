// Package finance provides standalone quantitative finance helpers: Kelly
// Criterion sizing, compound interest, DCF valuation and OHLC resampling.
// All functions are pure; they neither log nor touch shared state.
package finance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"eetc/internal/domain"
)

// ErrInsufficientData is returned when a calculation does not have enough
// observations to produce a meaningful result.
var ErrInsufficientData = errors.New("finance: insufficient data")

// PositionType selects the direction assumed by leverage calculations.
type PositionType string

const (
	PositionLong  PositionType = "LONG"
	PositionShort PositionType = "SHORT"
)

const tradingDaysPerYear = 252

// minKellyObservations is the minimum number of daily bars required for a
// stable historical-variance estimate.
const minKellyObservations = 30

// PositionSizeKelly calculates the position size for a bet using the classic
// Kelly Criterion f* = p - q/b, where p is the win probability, q the loss
// probability and b the profit/loss ratio. The result is in the same units
// as capital and can be negative when the edge is negative.
func PositionSizeKelly(capital, winProbability, profitLossRatio float64) float64 {
	p := winProbability
	q := 1 - p
	b := profitLossRatio
	return (p - q/b) * capital
}

// OptimalLeverageKelly calculates optimal leverage for a position using the
// continuous Kelly Criterion f* = mu / sigma^2 over daily log returns.
//
// Only bars dated on or after regimeStart and strictly before the latest bar
// are used, so the most recent bar never contributes to its own sizing.
// For short positions returns are inverted. fractionalMultiplier scales the
// raw Kelly fraction (0.5 for half-Kelly); pass 1 for full Kelly.
//
// A negative Kelly (negative expected return) yields 0, not an error.
func OptimalLeverageKelly(bars []domain.Bar, positionType PositionType, regimeStart time.Time, fractionalMultiplier float64) (float64, error) {
	if len(bars) == 0 {
		return 0, fmt.Errorf("finance: no bars")
	}
	if fractionalMultiplier <= 0 {
		return 0, fmt.Errorf("finance: fractional multiplier must be positive, got %v", fractionalMultiplier)
	}
	switch positionType {
	case PositionLong, PositionShort:
	default:
		return 0, fmt.Errorf("finance: position type must be LONG or SHORT, got %q", positionType)
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	lastDate := sorted[len(sorted)-1].Timestamp
	window := make([]float64, 0, len(sorted))
	for _, b := range sorted {
		if b.Timestamp.Before(regimeStart) || !b.Timestamp.Before(lastDate) {
			continue
		}
		window = append(window, b.Close)
	}
	if len(window) < minKellyObservations {
		return 0, fmt.Errorf("%w: %d observations in regime, need %d",
			ErrInsufficientData, len(window), minKellyObservations)
	}

	logReturns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		r := math.Log(window[i] / window[i-1])
		if positionType == PositionShort {
			r = -r
		}
		logReturns = append(logReturns, r)
	}

	annualizedReturn := mean(logReturns) * tradingDaysPerYear
	annualizedVariance := sampleVariance(logReturns) * tradingDaysPerYear
	if annualizedVariance == 0 || math.IsNaN(annualizedVariance) || math.IsInf(annualizedVariance, 0) {
		return 0, fmt.Errorf("finance: zero or invalid variance")
	}

	leverage := annualizedReturn / annualizedVariance
	if leverage < 0 {
		return 0, nil
	}
	return leverage * fractionalMultiplier, nil
}

// CompoundInterest applies the rate per period iteratively over the given
// number of periods. interest is a percentage (5 means 5% per period). The
// result is rounded to 2 decimal places.
func CompoundInterest(amount float64, periods int, interest float64) float64 {
	for i := 0; i < periods; i++ {
		amount += amount * (interest / 100)
	}
	return math.Round(amount*100) / 100
}

// PerformanceOverTime computes the percentage change from the first to the
// last close among bars dated within [start, end] inclusive. A 25.5% gain
// returns 25.5.
func PerformanceOverTime(bars []domain.Bar, start, end time.Time) (float64, error) {
	var first, last float64
	n := 0
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		if n == 0 {
			first = b.Close
		}
		last = b.Close
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no bars between %s and %s",
			ErrInsufficientData, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return (last/first)*100 - 100, nil
}

// DefaultDiscountRate is the discount rate used when no beta is available,
// as a multiplier (1.09 means 9%).
const DefaultDiscountRate = 1.09

// BetaToDiscountRate maps a stock beta to a discount rate multiplier for DCF
// analysis. Higher beta means higher systematic risk and a higher rate. Pass
// NaN when beta is unknown to get DefaultDiscountRate.
func BetaToDiscountRate(beta float64) float64 {
	switch {
	case math.IsNaN(beta):
		return DefaultDiscountRate
	case beta < 0.8:
		return 1.05
	case beta < 1:
		return 1.06
	case beta < 1.1:
		return 1.065
	case beta < 1.2:
		return 1.07
	case beta < 1.3:
		return 1.075
	case beta < 1.4:
		return 1.08
	case beta < 1.5:
		return 1.085
	default:
		return DefaultDiscountRate
	}
}

// DCFParams holds the inputs for a discounted cash flow valuation.
type DCFParams struct {
	// CashFlow is the most recent annual cash flow, typically operating or
	// free cash flow.
	CashFlow float64
	// GrowthYears is how many years of high growth to project.
	GrowthYears int
	// Shares is the total shares outstanding.
	Shares int64
	// GrowthRate is the expected annual growth as a multiplier (1.15 for
	// 15% growth).
	GrowthRate float64
	// Beta drives the discount rate. Leave as NaN (or zero) to use
	// DefaultDiscountRate.
	Beta float64
	// PerpetualGrowthRate is the terminal growth multiplier. Zero means
	// 1.02, roughly healthy GDP growth.
	PerpetualGrowthRate float64
}

// IntrinsicValueDCF calculates intrinsic value per share using a DCF model:
// cash flows grow at GrowthRate for GrowthYears, a terminal value captures
// everything beyond via perpetual growth, and all flows are discounted to
// present value.
func IntrinsicValueDCF(p DCFParams) (float64, error) {
	if p.Shares <= 0 {
		return 0, fmt.Errorf("finance: shares must be positive, got %d", p.Shares)
	}
	if p.GrowthYears < 1 {
		return 0, fmt.Errorf("finance: growth years must be positive, got %d", p.GrowthYears)
	}

	discountRate := DefaultDiscountRate
	if !math.IsNaN(p.Beta) && p.Beta != 0 {
		discountRate = BetaToDiscountRate(p.Beta)
	}
	perpetual := p.PerpetualGrowthRate
	if perpetual == 0 {
		perpetual = 1.02
	}
	if discountRate <= perpetual {
		return 0, fmt.Errorf("finance: discount rate %v must exceed perpetual growth %v",
			discountRate, perpetual)
	}

	var totalPV float64
	projected := p.CashFlow
	discountTotal := 1.0
	n := p.GrowthYears
	for i := 1; i <= n+1; i++ {
		if i == n+1 {
			// Terminal year: Gordon growth capitalization of all cash
			// flows beyond the projection horizon.
			projected *= perpetual
			projected /= discountRate - perpetual
		} else {
			projected *= p.GrowthRate
			discountTotal *= discountRate
		}
		totalPV += projected / discountTotal
	}

	return totalPV / float64(p.Shares), nil
}

// ConvertDailyToWeekly resamples daily OHLC bars into weekly bars: first
// open, max high, min low, last close and summed volume per calendar week.
// Each weekly bar is stamped with the Monday of its week. Input order does
// not matter; output is sorted chronologically.
func ConvertDailyToWeekly(bars []domain.Bar) []domain.Bar {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	weekly := make(map[time.Time]*domain.Bar)
	for _, b := range sorted {
		wk := weekStart(b.Timestamp)
		agg, ok := weekly[wk]
		if !ok {
			wb := b
			wb.Timestamp = wk
			wb.VWAP = 0 // not meaningful across a resample
			weekly[wk] = &wb
			continue
		}
		agg.High = math.Max(agg.High, b.High)
		agg.Low = math.Min(agg.Low, b.Low)
		agg.Close = b.Close
		agg.Volume += b.Volume
		agg.TradeCount += b.TradeCount
	}

	out := make([]domain.Bar, 0, len(weekly))
	for _, b := range weekly {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// weekStart truncates t to the Monday of its week, at midnight in t's
// location.
func weekStart(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -daysSinceMonday).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance is the unbiased (n-1) estimator.
func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}
