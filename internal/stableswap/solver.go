// Package stableswap solves the two-asset amplified invariant
//
//	Ann*S + D = Ann*D + D^3/(4*x*y), Ann = 4*amp
//
// by bounded fixed-point iteration. Both solvers are pure: callers recompute
// the invariant around every state mutation and reject any decrease.
package stableswap

import (
	"errors"
	"math/big"

	"ammCore/internal/wmath"
)

// Amplification bounds. A ramp may move amp at most MaxAmpChangeFactor times
// in either direction and must run for at least MinRampDurationMillis.
const (
	MinAmp                = 1
	MaxAmp                = 1_000_000
	MaxAmpChangeFactor    = 10
	MinRampDurationMillis = 86_400_000
)

// MaxIterations caps both fixed-point loops. Convergence normally takes a
// handful of rounds; hitting the cap means a degenerate input and is fatal.
const MaxIterations = 64

var (
	// ErrNoConvergence reports a solver loop that failed to reach tolerance
	// within MaxIterations, or a non-positive iteration denominator.
	ErrNoConvergence = errors.New("stableswap: solver did not converge")
	// ErrInvalidAmp reports an amplification outside [MinAmp, MaxAmp].
	ErrInvalidAmp = errors.New("stableswap: amplification out of range")
	// ErrInvalidReserve reports a zero reserve where a positive one is required.
	ErrInvalidReserve = errors.New("stableswap: invalid reserve")
)

var (
	one    = big.NewInt(1)
	two    = big.NewInt(2)
	three  = big.NewInt(3)
	relTol = big.NewInt(1_000_000_000_000_000) // 1e15: |Δ|*1e15 <= D means Δ/D <= 1e-15
)

// GetD computes the invariant D for reserves x, y at amplification amp.
// Degenerate inputs: both reserves zero yields 0; exactly one zero yields the
// sum (the curve collapses to constant-sum). Non-convergence and overflow are
// errors, never truncated values.
func GetD(x, y, amp uint64) (uint64, error) {
	if amp < MinAmp || amp > MaxAmp {
		return 0, ErrInvalidAmp
	}
	if x == 0 && y == 0 {
		return 0, nil
	}
	if x == 0 || y == 0 {
		return wmath.AddU64(x, y)
	}

	bx := new(big.Int).SetUint64(x)
	by := new(big.Int).SetUint64(y)
	s := new(big.Int).Add(bx, by)
	ann := new(big.Int).SetUint64(amp)
	ann.Mul(ann, big.NewInt(4))
	annS := new(big.Int).Mul(ann, s)
	annMinusOne := new(big.Int).Sub(ann, one)
	twoX := new(big.Int).Lsh(bx, 1)
	twoY := new(big.Int).Lsh(by, 1)

	d := new(big.Int).Set(s)
	for i := 0; i < MaxIterations; i++ {
		// dp = D^3 / (4*x*y), built stepwise to keep intermediates narrow.
		dp := new(big.Int).Set(d)
		dp.Mul(dp, d)
		dp.Div(dp, twoX)
		dp.Mul(dp, d)
		dp.Div(dp, twoY)

		// D' = (Ann*S + 2*dp) * D / ((Ann-1)*D + 3*dp)
		num := new(big.Int).Lsh(dp, 1)
		num.Add(num, annS)
		num.Mul(num, d)
		den := new(big.Int).Mul(annMinusOne, d)
		den.Add(den, new(big.Int).Mul(three, dp))
		if den.Sign() <= 0 {
			return 0, ErrNoConvergence
		}
		next := num.Div(num, den)

		if converged(next, d) {
			return wmath.ToUint64(next)
		}
		d = next
	}
	return 0, ErrNoConvergence
}

// GetY solves for the post-trade opposing reserve y given the new reserve x
// of the input asset and a fixed invariant D:
//
//	y^2 + (x + D/Ann - D)*y = D^3/(4*x*Ann)
//
// via y' = (y^2 + c) / (2y + b - D). A non-positive denominator means the
// requested trade has no valid root and is rejected outright.
func GetY(x, d, amp uint64) (uint64, error) {
	if amp < MinAmp || amp > MaxAmp {
		return 0, ErrInvalidAmp
	}
	if x == 0 {
		return 0, ErrInvalidReserve
	}
	if d == 0 {
		return 0, nil
	}

	bx := new(big.Int).SetUint64(x)
	bd := new(big.Int).SetUint64(d)
	ann := new(big.Int).SetUint64(amp)
	ann.Mul(ann, big.NewInt(4))

	// c = D^3 / (4*x*Ann), stepwise.
	c := new(big.Int).Set(bd)
	c.Mul(c, bd)
	c.Div(c, new(big.Int).Lsh(bx, 1))
	c.Mul(c, bd)
	c.Div(c, new(big.Int).Lsh(ann, 1))

	// b = x + D/Ann; the iteration denominator uses b - D.
	b := new(big.Int).Div(bd, ann)
	b.Add(b, bx)
	bMinusD := new(big.Int).Sub(b, bd)

	y := new(big.Int).Set(bd)
	for i := 0; i < MaxIterations; i++ {
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Mul(two, y)
		den.Add(den, bMinusD)
		if den.Sign() <= 0 {
			return 0, ErrNoConvergence
		}
		next := num.Div(num, den)

		if converged(next, y) {
			return wmath.ToUint64(next)
		}
		y = next
	}
	return 0, ErrNoConvergence
}

// converged reports |next-prev| <= 1 or a relative change of at most 1e-15.
func converged(next, prev *big.Int) bool {
	diff := new(big.Int).Sub(next, prev)
	diff.Abs(diff)
	if diff.Cmp(one) <= 0 {
		return true
	}
	scaled := new(big.Int).Mul(diff, relTol)
	return scaled.Cmp(next) <= 0
}

// ValidAmp reports whether amp lies in the accepted range.
func ValidAmp(amp uint64) bool {
	return amp >= MinAmp && amp <= MaxAmp
}
