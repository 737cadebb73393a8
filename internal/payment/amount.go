package payment

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/interledger/publisher-tools/internal/openpayments"
)

// ToMinorUnits converts a human-entered decimal amount (e.g. "10.00")
// into an Amount in the asset's minor units. The conversion is exact:
// the decimal is scaled by 10^assetScale as a rational number and
// truncated toward zero, so values like 4.35 at scale 2 always yield
// "435" (naive float multiplication yields 434).
func ToMinorUnits(amount string, assetCode string, assetScale int) (openpayments.Amount, error) {
	var zero openpayments.Amount

	s := strings.TrimSpace(amount)
	if s == "" {
		return zero, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if assetScale < 0 {
		return zero, fmt.Errorf("%w: negative asset scale", ErrInvalidAmount)
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return zero, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, amount)
	}
	if r.Sign() <= 0 {
		return zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(assetScale)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	// Truncate fractional minor units toward zero
	value := new(big.Int).Quo(r.Num(), r.Denom())
	if value.Sign() <= 0 {
		return zero, fmt.Errorf("%w: amount rounds to zero at scale %d", ErrInvalidAmount, assetScale)
	}

	return openpayments.Amount{
		Value:      value.String(),
		AssetCode:  assetCode,
		AssetScale: assetScale,
	}, nil
}

// FormatAmount renders an Amount's minor-unit value as a decimal string
// for display (the inverse of ToMinorUnits, without loss).
func FormatAmount(a openpayments.Amount) string {
	v := a.Value
	neg := strings.HasPrefix(v, "-")
	if neg {
		v = v[1:]
	}
	if a.AssetScale <= 0 {
		if neg {
			return "-" + v
		}
		return v
	}
	for len(v) <= a.AssetScale {
		v = "0" + v
	}
	cut := len(v) - a.AssetScale
	out := v[:cut] + "." + v[cut:]
	if neg {
		out = "-" + out
	}
	return out
}
