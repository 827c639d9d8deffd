package service

import (
	"math"
	"testing"
	"time"
)

func TestBlackScholes_IVRoundTrip(t *testing.T) {
	computer := NewBlackScholesComputer()
	expiry := time.Now().AddDate(0, 0, 30)

	spot, strike, rate := 24100.0, 24000.0, 0.07
	tYears := time.Until(expiry.Add(15*time.Hour+30*time.Minute)).Hours() / 24 / 365
	sigma := 0.18
	price := bsPrice(spot, strike, rate, sigma, tYears, true)

	result, err := computer.Compute(GreeksInput{
		Token:        300,
		Price:        price,
		Spot:         spot,
		Strike:       strike,
		OptionType:   "CE",
		Expiry:       expiry.Format("2006-01-02"),
		RiskFreeRate: rate,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if math.Abs(result.IV-sigma) > 1e-3 {
		t.Errorf("iv = %v, want %v", result.IV, sigma)
	}
	if result.Delta <= 0 || result.Delta >= 1 {
		t.Errorf("call delta = %v, want in (0, 1)", result.Delta)
	}
	if result.Gamma <= 0 || result.Vega <= 0 {
		t.Errorf("gamma = %v, vega = %v, want both positive", result.Gamma, result.Vega)
	}
	if result.Theta >= 0 {
		t.Errorf("theta = %v, want negative for a long call", result.Theta)
	}
}

func TestBlackScholes_PutDeltaNegative(t *testing.T) {
	computer := NewBlackScholesComputer()
	expiry := time.Now().AddDate(0, 0, 30)

	spot, strike, rate := 24100.0, 24500.0, 0.07
	tYears := time.Until(expiry.Add(15*time.Hour+30*time.Minute)).Hours() / 24 / 365
	price := bsPrice(spot, strike, rate, 0.2, tYears, false)

	result, err := computer.Compute(GreeksInput{
		Price:        price,
		Spot:         spot,
		Strike:       strike,
		OptionType:   "PE",
		Expiry:       expiry.Format("2006-01-02"),
		RiskFreeRate: rate,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.Delta >= 0 || result.Delta <= -1 {
		t.Errorf("put delta = %v, want in (-1, 0)", result.Delta)
	}
}

func TestBlackScholes_RejectsBadInputs(t *testing.T) {
	computer := NewBlackScholesComputer()
	expiry := time.Now().AddDate(0, 0, 30).Format("2006-01-02")

	cases := []struct {
		name string
		in   GreeksInput
	}{
		{"not an option", GreeksInput{OptionType: "FUT", Spot: 100, Strike: 100, Expiry: expiry}},
		{"no spot", GreeksInput{OptionType: "CE", Strike: 100, Expiry: expiry}},
		{"no strike", GreeksInput{OptionType: "CE", Spot: 100, Expiry: expiry}},
		{"expired", GreeksInput{OptionType: "CE", Spot: 100, Strike: 100, Price: 5, Expiry: "2020-01-01"}},
		{"bad expiry", GreeksInput{OptionType: "CE", Spot: 100, Strike: 100, Price: 5, Expiry: "soon"}},
	}
	for _, tc := range cases {
		if _, err := computer.Compute(tc.in); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestBlackScholes_PriceBelowIntrinsicClampsToFloor(t *testing.T) {
	computer := NewBlackScholesComputer()
	expiry := time.Now().AddDate(0, 0, 30)

	// A near-zero option price sits below the minimum-volatility price, so
	// the solver returns the volatility floor instead of failing.
	result, err := computer.Compute(GreeksInput{
		Price:        0.0001,
		Spot:         100,
		Strike:       200,
		OptionType:   "CE",
		Expiry:       expiry.Format("2006-01-02"),
		RiskFreeRate: 0.07,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.IV != ivLow {
		t.Errorf("iv = %v, want floor %v", result.IV, ivLow)
	}
}
