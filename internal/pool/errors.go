package pool

import "errors"

// Error taxonomy for the pool core. Every violation is a full-operation
// abort with no partial effects; callers classify with errors.Is.
var (
	// ErrInvalidInput reports zero amounts, out-of-range fee tiers or
	// amplification, or a mismatched pool/position pairing.
	ErrInvalidInput = errors.New("pool: invalid input")
	// ErrInsufficientLiquidity reports an empty pool, a payout below the
	// caller's minimum, or a post-trade invariant decrease.
	ErrInsufficientLiquidity = errors.New("pool: insufficient liquidity")
	// ErrExcessivePriceImpact reports a trade whose impact exceeds the
	// pool's configured cap.
	ErrExcessivePriceImpact = errors.New("pool: excessive price impact")
	// ErrOverflow reports an intermediate value outside the widened
	// integer's safe range.
	ErrOverflow = errors.New("pool: arithmetic overflow")
	// ErrConvergenceFailure reports an invariant solver that failed to
	// reach tolerance within its iteration cap.
	ErrConvergenceFailure = errors.New("pool: solver convergence failure")
	// ErrExpired reports a request observed after its deadline.
	ErrExpired = errors.New("pool: deadline expired")
	// ErrPaused reports a mutating call against a paused pool.
	ErrPaused = errors.New("pool: paused")
)
