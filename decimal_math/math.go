// Package decimal_math converts between the human readable token amounts a
// user types and the raw integer units the ledger stores. All scaling is
// done in arbitrary precision; float64 never touches an amount.
package decimal_math

import (
	"github.com/shopspring/decimal"
)

// Pow10 returns 10^n exactly.
func Pow10(n int) decimal.Decimal {
	return decimal.New(1, int32(n))
}
