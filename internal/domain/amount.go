package domain

import (
	"fmt"
	"math/big"
)

// Amounts cross the API as base-10 decimal strings because they routinely
// exceed 64 bits. They are converted to big.Int at the boundary and never
// round-trip through floats.

var bpsDenominator = big.NewInt(10_000)

// ParseAmount converts a base-unit decimal string to an unbounded integer.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// ParseAmountOrZero is ParseAmount for fields that may legitimately be
// absent, treating "" as zero.
func ParseAmountOrZero(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	if v, err := ParseAmount(s); err == nil {
		return v
	}
	return new(big.Int)
}

// ApplySlippageBps returns out * (10000 - bps) / 10000 in integer math.
func ApplySlippageBps(out *big.Int, bps int64) *big.Int {
	if bps <= 0 {
		return new(big.Int).Set(out)
	}
	if bps >= 10_000 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(out, big.NewInt(10_000-bps))
	return v.Div(v, bpsDenominator)
}

// SlippageBps converts a percentage string like "0.5" to basis points.
// The fractional part is truncated below 0.01%.
func SlippageBps(pct string) (int64, error) {
	if pct == "" {
		return 0, nil
	}
	r, ok := new(big.Rat).SetString(pct)
	if !ok {
		return 0, fmt.Errorf("invalid slippage percentage %q", pct)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("negative slippage percentage %q", pct)
	}
	bps := new(big.Rat).Mul(r, big.NewRat(100, 1))
	v := new(big.Int).Quo(bps.Num(), bps.Denom())
	if !v.IsInt64() || v.Int64() > 10_000 {
		return 0, fmt.Errorf("slippage percentage %q out of range", pct)
	}
	return v.Int64(), nil
}

// PriceDifferencePct computes (best - worst) / worst * 100 with two decimal
// places, in integer arithmetic. Returns "0" when worst is zero.
func PriceDifferencePct(best, worst *big.Int) string {
	if worst == nil || worst.Sign() == 0 || best == nil {
		return "0"
	}
	diff := new(big.Int).Sub(best, worst)
	// Scale by 100 (percent) * 100 (two decimals).
	diff.Mul(diff, bpsDenominator)
	diff.Quo(diff, worst)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(diff, big.NewInt(100), frac)
	return fmt.Sprintf("%s.%02d", whole.String(), frac.Abs(frac).Int64())
}
