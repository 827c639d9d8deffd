// Package service contains the service layer for the Marketcore API
package service

import (
	"fmt"
	"math"
	"time"
)

// BlackScholesComputer is the reference Computer: implied volatility by
// bisection from the option's market price, then closed-form greeks.
type BlackScholesComputer struct{}

// NewBlackScholesComputer creates the reference computer.
func NewBlackScholesComputer() *BlackScholesComputer {
	return &BlackScholesComputer{}
}

const (
	ivLow        = 0.001
	ivHigh       = 5.0
	ivTolerance  = 1e-6
	ivIterations = 100
	expiryLayout = "2006-01-02"
)

// Compute derives IV, delta, gamma, vega and theta for an option input.
// Inputs that are not options, are expired, or lack a spot price return an
// error and produce no result.
func (c *BlackScholesComputer) Compute(in GreeksInput) (GreeksResult, error) {
	isCall := in.OptionType == "CE"
	if !isCall && in.OptionType != "PE" {
		return GreeksResult{}, fmt.Errorf("instrument type %q has no greeks", in.OptionType)
	}
	if in.Spot <= 0 {
		return GreeksResult{}, fmt.Errorf("no spot price for token %d", in.Token)
	}
	if in.Strike <= 0 {
		return GreeksResult{}, fmt.Errorf("invalid strike %f for token %d", in.Strike, in.Token)
	}
	expiry, err := time.Parse(expiryLayout, in.Expiry)
	if err != nil {
		return GreeksResult{}, fmt.Errorf("unparseable expiry %q: %w", in.Expiry, err)
	}
	t := time.Until(expiry.Add(15*time.Hour+30*time.Minute)).Hours() / 24 / 365
	if t <= 0 {
		return GreeksResult{}, fmt.Errorf("token %d expired on %s", in.Token, in.Expiry)
	}

	iv, err := impliedVol(in.Price, in.Spot, in.Strike, in.RiskFreeRate, t, isCall)
	if err != nil {
		return GreeksResult{}, err
	}

	d1 := (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate+iv*iv/2)*t) / (iv * math.Sqrt(t))
	d2 := d1 - iv*math.Sqrt(t)

	delta := normCDF(d1)
	if !isCall {
		delta = delta - 1
	}
	gamma := normPDF(d1) / (in.Spot * iv * math.Sqrt(t))
	vega := in.Spot * normPDF(d1) * math.Sqrt(t) / 100
	theta := -(in.Spot * normPDF(d1) * iv) / (2 * math.Sqrt(t))
	if isCall {
		theta -= in.RiskFreeRate * in.Strike * math.Exp(-in.RiskFreeRate*t) * normCDF(d2)
	} else {
		theta += in.RiskFreeRate * in.Strike * math.Exp(-in.RiskFreeRate*t) * normCDF(-d2)
	}
	theta /= 365

	return GreeksResult{
		Token:     in.Token,
		Seq:       in.Seq,
		InputTime: in.InputTime,
		Price:     in.Price,
		Spot:      in.Spot,
		IV:        iv,
		Delta:     delta,
		Gamma:     gamma,
		Vega:      vega,
		Theta:     theta,
	}, nil
}

// impliedVol inverts the pricing formula by bisection.
func impliedVol(price, spot, strike, r, t float64, isCall bool) (float64, error) {
	lo, hi := ivLow, ivHigh
	if price <= bsPrice(spot, strike, r, lo, t, isCall) {
		return lo, nil
	}
	if price >= bsPrice(spot, strike, r, hi, t, isCall) {
		return 0, fmt.Errorf("option price %f outside volatility bounds", price)
	}
	for i := 0; i < ivIterations; i++ {
		mid := (lo + hi) / 2
		diff := bsPrice(spot, strike, r, mid, t, isCall) - price
		if math.Abs(diff) < ivTolerance {
			return mid, nil
		}
		if diff > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2, nil
}

// bsPrice is the Black-Scholes price of a European option.
func bsPrice(spot, strike, r, sigma, t float64, isCall bool) float64 {
	d1 := (math.Log(spot/strike) + (r+sigma*sigma/2)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)
	if isCall {
		return spot*normCDF(d1) - strike*math.Exp(-r*t)*normCDF(d2)
	}
	return strike*math.Exp(-r*t)*normCDF(-d2) - spot*normCDF(-d1)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
