package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.New(1, 9)

// Gwei renders a wei amount in gwei with up to 9 decimals.
func Gwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei).String()
}

// GweiFloat returns a wei amount in gwei as float64, for metrics.
func GweiFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, 0).Div(weiPerGwei).Float64()
	return f
}

// Fee returns gasUsed * price in wei.
func Fee(gasUsed uint64, price *big.Int) *big.Int {
	if price == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), price)
}
