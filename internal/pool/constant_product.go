package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/slippage"
	"ammCore/internal/wmath"
)

// ConstantProductPool trades on x*y=k. The first deposit mints the geometric
// mean of the amounts; later deposits mint against the current ratio with no
// refund of single-sided excess.
type ConstantProductPool struct {
	state *State
}

// NewConstantProduct creates an empty constant-product pool.
func NewConstantProduct(assetA, assetB common.Address, feeBps, protocolFeeBps uint64) (*ConstantProductPool, error) {
	s, err := newState(assetA, assetB, feeBps, protocolFeeBps, KindConstantProduct)
	if err != nil {
		return nil, err
	}
	return &ConstantProductPool{state: s}, nil
}

func (p *ConstantProductPool) Kind() Kind    { return KindConstantProduct }
func (p *ConstantProductPool) State() *State { return p.state }

// AddLiquidity mints floor(sqrt(a)*sqrt(b)) on the first deposit, burning
// the minimum-liquidity floor; afterwards it mints
// min(a*L/reserveA, b*L/reserveB). nowMillis is unused on this curve.
func (p *ConstantProductPool) AddLiquidity(amountA, amountB, nowMillis uint64) (uint64, error) {
	s := p.state
	if err := s.requireActive(); err != nil {
		return 0, err
	}
	if amountA == 0 || amountB == 0 {
		return 0, fmt.Errorf("%w: zero deposit amount", ErrInvalidInput)
	}

	if s.TotalLiquidity == 0 {
		minted := wmath.Sqrt(amountA) * wmath.Sqrt(amountB)
		return s.mintInitial(minted, amountA, amountB)
	}

	byA, err := wmath.MulDiv(amountA, s.TotalLiquidity, s.ReserveA)
	if err != nil {
		return 0, fmt.Errorf("%w: mint by A", ErrOverflow)
	}
	byB, err := wmath.MulDiv(amountB, s.TotalLiquidity, s.ReserveB)
	if err != nil {
		return 0, fmt.Errorf("%w: mint by B", ErrOverflow)
	}
	minted := wmath.Min(byA, byB)
	if minted == 0 {
		return 0, fmt.Errorf("%w: deposit too small to mint", ErrInsufficientLiquidity)
	}

	snap := s.clone()
	var aErr, bErr, lErr error
	s.ReserveA, aErr = wmath.AddU64(s.ReserveA, amountA)
	s.ReserveB, bErr = wmath.AddU64(s.ReserveB, amountB)
	s.TotalLiquidity, lErr = wmath.AddU64(s.TotalLiquidity, minted)
	if aErr != nil || bErr != nil || lErr != nil {
		s.restore(snap)
		return 0, fmt.Errorf("%w: reserve overflow on deposit", ErrOverflow)
	}
	return minted, nil
}

// RemoveShares burns shares and pays the proportional reserves. The burned
// minimum-liquidity floor can never be removed.
func (p *ConstantProductPool) RemoveShares(shares uint64) (uint64, uint64, error) {
	s := p.state
	if err := s.requireActive(); err != nil {
		return 0, 0, err
	}
	if shares == 0 || s.TotalLiquidity-MinimumLiquidity < shares {
		return 0, 0, fmt.Errorf("%w: cannot burn %d of %d shares", ErrInvalidInput, shares, s.TotalLiquidity)
	}
	outA, outB, err := s.proportionalPayout(shares)
	if err != nil {
		return 0, 0, err
	}
	s.ReserveA -= outA
	s.ReserveB -= outB
	s.TotalLiquidity -= shares
	return outA, outB, nil
}

func (p *ConstantProductPool) SwapAToB(params SwapParams) (SwapResult, error) {
	return p.swap(params, true)
}

func (p *ConstantProductPool) SwapBToA(params SwapParams) (SwapResult, error) {
	return p.swap(params, false)
}

func (p *ConstantProductPool) swap(params SwapParams, aToB bool) (SwapResult, error) {
	s := p.state
	if err := s.requireActive(); err != nil {
		return SwapResult{}, err
	}
	if err := slippage.CheckDeadline(params.NowMillis, params.DeadlineMillis); err != nil {
		return SwapResult{}, fmt.Errorf("%w: %w", ErrExpired, err)
	}
	if params.AmountIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: zero swap amount", ErrInvalidInput)
	}

	reserveIn, reserveOut := s.ReserveA, s.ReserveB
	if !aToB {
		reserveIn, reserveOut = s.ReserveB, s.ReserveA
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapResult{}, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}

	fee, err := wmath.MulDiv(params.AmountIn, s.FeeBps, wmath.BasisPointDenominator)
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: fee", ErrOverflow)
	}
	netIn := params.AmountIn - fee
	if netIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: amount consumed entirely by fee", ErrInvalidInput)
	}

	out, err := wmath.ConstantProductOutput(netIn, reserveIn, reserveOut, 0)
	if err != nil {
		return SwapResult{}, mapMathErr(err)
	}
	if out == 0 || out >= reserveOut {
		return SwapResult{}, fmt.Errorf("%w: output %d against reserve %d", ErrInsufficientLiquidity, out, reserveOut)
	}

	if err := slippage.CheckMinOutput(out, params.MinOut); err != nil {
		return SwapResult{}, fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}
	if err := slippage.CheckPriceLimit(params.AmountIn, out, params.MaxPriceScaled); err != nil {
		return SwapResult{}, fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}

	ideal, err := wmath.MulDiv(netIn, reserveOut, reserveIn)
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: ideal output", ErrOverflow)
	}
	impact, err := slippage.ImpactBps(ideal, out)
	if err != nil {
		return SwapResult{}, mapMathErr(err)
	}
	if impact > s.MaxPriceImpactBps {
		return SwapResult{}, fmt.Errorf("%w: %d bps over cap %d", ErrExcessivePriceImpact, impact, s.MaxPriceImpactBps)
	}

	snap := s.clone()
	if applyErr := p.applySwap(netIn, fee, out, aToB); applyErr != nil {
		s.restore(snap)
		return SwapResult{}, applyErr
	}

	// Anti-drain invariant on live balances: the product never decreases.
	before := new(big.Int).SetUint64(snap.ReserveA)
	before.Mul(before, new(big.Int).SetUint64(snap.ReserveB))
	after := new(big.Int).SetUint64(s.ReserveA)
	after.Mul(after, new(big.Int).SetUint64(s.ReserveB))
	if after.Cmp(before) < 0 {
		s.restore(snap)
		return SwapResult{}, fmt.Errorf("%w: constant product decreased", ErrInsufficientLiquidity)
	}

	return SwapResult{AmountIn: params.AmountIn, AmountOut: out, Fee: fee, ImpactBps: impact}, nil
}

func (p *ConstantProductPool) applySwap(netIn, fee, out uint64, aToB bool) error {
	s := p.state
	if aToB {
		reserveIn, err := wmath.AddU64(s.ReserveA, netIn)
		if err != nil {
			return fmt.Errorf("%w: reserve A", ErrOverflow)
		}
		s.ReserveA = reserveIn
		s.ReserveB -= out
	} else {
		reserveIn, err := wmath.AddU64(s.ReserveB, netIn)
		if err != nil {
			return fmt.Errorf("%w: reserve B", ErrOverflow)
		}
		s.ReserveB = reserveIn
		s.ReserveA -= out
	}
	if fee > 0 {
		if err := s.splitFee(fee, aToB); err != nil {
			return err
		}
	}
	return nil
}

// QuoteAToB prices a swap without mutating state. nowMillis is unused on
// this curve.
func (p *ConstantProductPool) QuoteAToB(amountIn, nowMillis uint64) (uint64, error) {
	return p.quote(amountIn, p.state.ReserveA, p.state.ReserveB)
}

func (p *ConstantProductPool) QuoteBToA(amountIn, nowMillis uint64) (uint64, error) {
	return p.quote(amountIn, p.state.ReserveB, p.state.ReserveA)
}

func (p *ConstantProductPool) quote(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	out, err := wmath.ConstantProductOutput(amountIn, reserveIn, reserveOut, p.state.FeeBps)
	if err != nil {
		return 0, mapMathErr(err)
	}
	return out, nil
}

func mapMathErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wmath.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	case errors.Is(err, wmath.ErrInvalidInput):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return err
	}
}
