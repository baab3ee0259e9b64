package domain

import (
	"math/big"
	"time"
)

// PriceReading is the latest sample returned by the price oracle.
// Value is a fixed-point integer scaled by 10^Decimals and may be
// negative if the feed misbehaves.
type PriceReading struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

func (p PriceReading) IsNegative() bool {
	return p.Value == nil || p.Value.Sign() < 0
}

func (p PriceReading) IsStale(threshold time.Duration, now time.Time) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(p.UpdatedAt) > threshold
}

// FiatValue converts a native amount expressed in base units of an asset
// with assetDecimals decimals into its fiat equivalent, scaled by the
// reading's decimals. All arithmetic is integer, there is no rounding
// drift across repeated evaluations:
//
//	fiat = amount * price / 10^assetDecimals
func FiatValue(amount uint64, assetDecimals uint8, reading PriceReading) *big.Int {
	fiat := new(big.Int).SetUint64(amount)
	fiat.Mul(fiat, reading.Value)
	return fiat.Div(fiat, pow10(assetDecimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
