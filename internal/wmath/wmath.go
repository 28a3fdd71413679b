// Package wmath provides overflow-safe integer math for pool arithmetic.
// Amounts are uint64 base units; every intermediate product or quotient is
// computed in math/big and checked back into the uint64 range.
package wmath

import (
	"errors"
	"math"
	"math/big"
)

// ErrOverflow reports a result that does not fit the uint64 balance range.
var ErrOverflow = errors.New("wmath: value exceeds uint64 range")

// ErrInvalidInput reports a zero amount or empty reserve.
var ErrInvalidInput = errors.New("wmath: invalid input")

// BasisPointDenominator is the fee/impact scale: 10000 bps = 100%.
const BasisPointDenominator = 10000

var (
	bpsDen = big.NewInt(BasisPointDenominator)
	maxU64 = new(big.Int).SetUint64(math.MaxUint64)
)

// Sqrt returns the integer square root of y by Newton's method:
// sqrt(y)^2 <= y < (sqrt(y)+1)^2.
func Sqrt(y uint64) uint64 {
	if y == 0 {
		return 0
	}
	if y < 4 {
		return 1
	}
	z := y
	x := y/2 + 1
	for x < z {
		z = x
		x = (y/x + x) / 2
	}
	return z
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// ConstantProductOutput computes the x*y=k swap output
// floor(in*(10000-feeBps)*reserveOut / (reserveIn*10000 + in*(10000-feeBps)))
// with all intermediates widened.
func ConstantProductOutput(amountIn, reserveIn, reserveOut, feeBps uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, ErrInvalidInput
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, ErrInvalidInput
	}
	if feeBps >= BasisPointDenominator {
		return 0, ErrInvalidInput
	}

	inAfterFee := new(big.Int).SetUint64(amountIn)
	inAfterFee.Mul(inAfterFee, big.NewInt(int64(BasisPointDenominator-feeBps)))

	numerator := new(big.Int).SetUint64(reserveOut)
	numerator.Mul(numerator, inAfterFee)

	denominator := new(big.Int).SetUint64(reserveIn)
	denominator.Mul(denominator, bpsDen)
	denominator.Add(denominator, inAfterFee)

	out := numerator.Div(numerator, denominator)
	return ToUint64(out)
}

// Quote returns floor(amountA*reserveB/reserveA). Estimation only; swap
// execution goes through the curve formulas.
func Quote(amountA, reserveA, reserveB uint64) (uint64, error) {
	if amountA == 0 {
		return 0, ErrInvalidInput
	}
	if reserveA == 0 || reserveB == 0 {
		return 0, ErrInvalidInput
	}
	q := new(big.Int).SetUint64(amountA)
	q.Mul(q, new(big.Int).SetUint64(reserveB))
	q.Div(q, new(big.Int).SetUint64(reserveA))
	return ToUint64(q)
}

// MulDiv returns floor(a*b/den) in widened arithmetic.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrInvalidInput
	}
	v := new(big.Int).SetUint64(a)
	v.Mul(v, new(big.Int).SetUint64(b))
	v.Div(v, new(big.Int).SetUint64(den))
	return ToUint64(v)
}

// ToUint64 converts a non-negative big.Int back into the balance range.
func ToUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || v.Cmp(maxU64) > 0 {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// AddU64 returns a+b or ErrOverflow.
func AddU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
