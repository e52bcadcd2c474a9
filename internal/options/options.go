// Package options implements Black-Scholes option pricing and related
// derivatives analytics. The cumulative normal distribution uses the
// Abramowitz & Stegun (1964) polynomial approximation rather than erf, which
// keeps results bit-for-bit reproducible across platforms.
package options

import (
	"fmt"
	"math"
)

// Right identifies an option as a call or a put.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// FindStrikesInRange returns the integer strike prices implied by a
// percentage move around the current price. rangeLengthPerc is a fraction
// (0.1 means +-10%). The upper bound is inclusive plus one extra strike,
// matching exchange strike ladders that bracket the range.
func FindStrikesInRange(rangeLengthPerc, price float64) []int {
	lower := int(price - rangeLengthPerc*price)
	upper := int(price + rangeLengthPerc*price)
	strikes := make([]int, 0, upper-lower+2)
	for k := lower; k <= upper+1; k++ {
		strikes = append(strikes, k)
	}
	return strikes
}

// Price calculates the option price using the Black-Scholes model.
// undPrice is the underlying price, rate the risk-free rate, tte the time to
// expiration in years, impliedVol the option's implied volatility and
// pvDividend the present value of dividends paid before expiration.
func Price(right Right, undPrice, strike, rate, tte, impliedVol, pvDividend float64) (float64, error) {
	if right != Call && right != Put {
		return 0, fmt.Errorf("options: right must be C or P, got %q", right)
	}
	if undPrice <= 0 || strike <= 0 {
		return 0, fmt.Errorf("options: price and strike must be positive, got %v and %v", undPrice, strike)
	}
	if tte <= 0 || impliedVol <= 0 {
		return 0, fmt.Errorf("options: tte and implied vol must be positive, got %v and %v", tte, impliedVol)
	}

	divYield := pvDividend / undPrice
	// With no dividends the forward price is just the compounded spot.
	f := undPrice * math.Exp((rate-divYield)*tte)
	d1 := D1(strike, impliedVol, tte, f)
	d2 := D2(d1, impliedVol, tte)

	if right == Put {
		cd1 := CND(-d1, PDF(-d1))
		cd2 := CND(-d2, PDF(-d2))
		return strike*math.Exp(-rate*tte)*cd2 - undPrice*cd1, nil
	}

	cd1 := CND(d1, PDF(d1))
	cd2 := CND(d2, PDF(d2))
	return (f*cd1 - strike*cd2) * math.Exp(-rate*tte), nil
}

// UnderlyingIVFromOptionIV converts the implied volatility of an ATM option
// into the implied move of the underlying over the period t (in years). A
// replacement for VIX-style indices when those look broken or manipulated.
func UnderlyingIVFromOptionIV(optionImpliedVol, t float64) float64 {
	return optionImpliedVol * math.Sqrt(t) * math.Sqrt(2/math.Pi)
}

// GEX calculates gamma exposure for a single option contract in shares,
// given the open interest at a strike and the contract gamma.
func GEX(openInterest, gamma float64) float64 {
	return gamma * openInterest * 100
}

// PDF is the standard normal probability density function.
func PDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// Abramowitz & Stegun (1964) approximation constants for CND.
const (
	cndP  = 0.2316419
	cndB1 = 0.319381350
	cndB2 = -0.356563782
	cndB3 = 1.781477937
	cndB4 = -1.821255978
	cndB5 = 1.330274429
)

// CND is the cumulative normal distribution of x, with sdx the density
// PDF(x) supplied by the caller so a shared value can be reused. Negative x
// is handled by symmetry. The t powers are built by repeated multiplication
// instead of math.Pow, which is considerably faster.
func CND(x, sdx float64) float64 {
	t1 := 1 / (1 + cndP*math.Abs(x))
	t2 := t1 * t1
	t3 := t2 * t1
	t4 := t3 * t1
	t5 := t4 * t1
	sum := cndB1*t1 + cndB2*t2 + cndB3*t3 + cndB4*t4 + cndB5*t5
	cd := 1 - sdx*sum
	if x < 0 {
		return 1 - cd
	}
	return cd
}

// D1 calculates the d1 term of Black-Scholes for strike x, implied vol iv,
// time to expiration t (years) and forward price f.
func D1(x, iv, t, f float64) float64 {
	return (math.Log(f/x) + iv*iv*t/2) / (iv * math.Sqrt(t))
}

// D2 calculates the d2 term of Black-Scholes from d1.
func D2(d1, iv, t float64) float64 {
	return d1 - iv*math.Sqrt(t)
}
