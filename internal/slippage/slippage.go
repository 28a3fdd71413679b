// Package slippage holds the curve-agnostic trade guards: request deadline,
// minimum output, and maximum execution price. Price-impact bounds are not
// here — each pool variant derives its own ideal rate from its curve shape.
package slippage

import (
	"errors"
	"math/big"

	"ammCore/internal/wmath"
)

// PriceScale is the fixed-point scale for execution-price limits.
const PriceScale = 1_000_000_000

var (
	// ErrExpired reports a request whose deadline has passed.
	ErrExpired = errors.New("slippage: deadline expired")
	// ErrMinOutput reports an output below the caller's minimum.
	ErrMinOutput = errors.New("slippage: output below minimum")
	// ErrPriceLimit reports an execution price over the caller's maximum.
	ErrPriceLimit = errors.New("slippage: price limit exceeded")
)

// CheckDeadline rejects a request observed after its deadline. Times are
// caller-supplied milliseconds; a zero deadline means no bound.
func CheckDeadline(nowMillis, deadlineMillis uint64) error {
	if deadlineMillis != 0 && nowMillis > deadlineMillis {
		return ErrExpired
	}
	return nil
}

// CheckMinOutput rejects an actual output below the caller's minimum.
func CheckMinOutput(actual, min uint64) error {
	if actual < min {
		return ErrMinOutput
	}
	return nil
}

// CheckPriceLimit rejects a trade whose realized price, amountIn/amountOut
// scaled by PriceScale, exceeds maxPriceScaled. A zero limit disables the
// check. Computed in widened arithmetic; a zero output is always rejected
// when a limit is set.
func CheckPriceLimit(amountIn, amountOut, maxPriceScaled uint64) error {
	if maxPriceScaled == 0 {
		return nil
	}
	if amountOut == 0 {
		return ErrPriceLimit
	}
	price := new(big.Int).SetUint64(amountIn)
	price.Mul(price, big.NewInt(PriceScale))
	price.Div(price, new(big.Int).SetUint64(amountOut))
	if price.Cmp(new(big.Int).SetUint64(maxPriceScaled)) > 0 {
		return ErrPriceLimit
	}
	return nil
}

// ImpactBps returns the price impact in basis points between an ideal
// (infinitesimal-trade) output and the realized one. An actual output at or
// above ideal is zero impact.
func ImpactBps(ideal, actual uint64) (uint64, error) {
	if ideal == 0 {
		return 0, wmath.ErrInvalidInput
	}
	if actual >= ideal {
		return 0, nil
	}
	return wmath.MulDiv(ideal-actual, wmath.BasisPointDenominator, ideal)
}
