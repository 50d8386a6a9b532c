package decimal_math

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fraction digits balances are shown with.
const DisplayPlaces = 4

const (
	// maxExponent bounds the scientific notation exponent of an amount, so
	// scaling never builds huge intermediate integers.
	maxExponent = 40
	// maxAmountLength bounds the digits parsed from user input.
	maxAmountLength = 64
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	maxRaw = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// ParseAmount parses a user supplied amount. It must be a finite, strictly
// positive decimal number.
func ParseAmount(display string) (decimal.Decimal, error) {
	s := strings.TrimSpace(display)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if len(s) > maxAmountLength {
		return decimal.Zero, fmt.Errorf("%w: amount is longer than %d characters", ErrInvalidAmount, maxAmountLength)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, display)
	}
	if err = checkExponent(d); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", err, display)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	return d, nil
}

// ToRaw returns round(amount * 10^decimals) as raw ledger units.
func ToRaw(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if err := checkExponent(amount); err != nil {
		return 0, err
	}
	if amount.GreaterThan(maxRaw.Shift(-int32(decimals))) {
		return 0, fmt.Errorf("%w: amount overflows a 64-bit raw amount at %d decimals", ErrInvalidAmount, decimals)
	}
	raw := amount.Mul(Pow10(int(decimals))).Round(0)
	if !raw.IsPositive() {
		return 0, fmt.Errorf("%w: %s is smaller than one unit at %d decimals", ErrInvalidAmount, amount, decimals)
	}
	if raw.GreaterThan(maxRaw) {
		return 0, fmt.Errorf("%w: amount overflows a 64-bit raw amount at %d decimals", ErrInvalidAmount, decimals)
	}
	return raw.BigInt().Uint64(), nil
}

func checkExponent(d decimal.Decimal) error {
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return fmt.Errorf("%w: exponent out of range", ErrInvalidAmount)
	}
	return nil
}

// ParseRaw combines ParseAmount and ToRaw.
func ParseRaw(display string, decimals uint8) (uint64, error) {
	amount, err := ParseAmount(display)
	if err != nil {
		return 0, err
	}
	return ToRaw(amount, decimals)
}

// FromRaw scales a raw amount down by decimals.
func FromRaw(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// Format renders a raw amount with a fixed number of fraction digits.
func Format(raw uint64, decimals uint8, places int32) string {
	return FromRaw(raw, decimals).StringFixed(places)
}
