package pool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/slippage"
	"ammCore/internal/stableswap"
	"ammCore/internal/wmath"
)

// StablePool trades on the amplified invariant solved by the stableswap
// package. Deposits at any ratio are rewarded by invariant growth, and the
// amplification coefficient can be ramped linearly over a bounded window.
type StablePool struct {
	state *State

	// Amp is the coefficient at ramp start; TargetAmp the ramp goal. With
	// no ramp in progress the two are equal and the window is zero.
	Amp             uint64
	TargetAmp       uint64
	RampStartMillis uint64
	RampEndMillis   uint64
}

// NewStable creates an empty stable pool at a fixed amplification.
func NewStable(assetA, assetB common.Address, feeBps, protocolFeeBps, amp uint64) (*StablePool, error) {
	if !stableswap.ValidAmp(amp) {
		return nil, fmt.Errorf("%w: amplification %d", ErrInvalidInput, amp)
	}
	s, err := newState(assetA, assetB, feeBps, protocolFeeBps, KindStable)
	if err != nil {
		return nil, err
	}
	return &StablePool{state: s, Amp: amp, TargetAmp: amp}, nil
}

func (p *StablePool) Kind() Kind    { return KindStable }
func (p *StablePool) State() *State { return p.state }

// CurrentAmp interpolates linearly between the ramp endpoints. Before the
// window it returns the stored amp; at or after the end, the target. A
// clock reading before the ramp start clamps elapsed time to zero.
func (p *StablePool) CurrentAmp(nowMillis uint64) uint64 {
	if p.RampEndMillis == 0 || nowMillis >= p.RampEndMillis {
		return p.TargetAmp
	}
	if nowMillis <= p.RampStartMillis {
		return p.Amp
	}
	elapsed := nowMillis - p.RampStartMillis
	total := p.RampEndMillis - p.RampStartMillis
	if p.TargetAmp >= p.Amp {
		delta, err := wmath.MulDiv(p.TargetAmp-p.Amp, elapsed, total)
		if err != nil {
			return p.Amp
		}
		return p.Amp + delta
	}
	delta, err := wmath.MulDiv(p.Amp-p.TargetAmp, elapsed, total)
	if err != nil {
		return p.Amp
	}
	return p.Amp - delta
}

// StartRamp begins a linear amp ramp toward target over durationMillis.
// Ramps are bounded: at most a factor-of-MaxAmpChangeFactor move and at
// least MinRampDurationMillis long.
func (p *StablePool) StartRamp(target, nowMillis, durationMillis uint64) error {
	if !stableswap.ValidAmp(target) {
		return fmt.Errorf("%w: target amplification %d", ErrInvalidInput, target)
	}
	if durationMillis < stableswap.MinRampDurationMillis {
		return fmt.Errorf("%w: ramp duration %dms below minimum %dms",
			ErrInvalidInput, durationMillis, uint64(stableswap.MinRampDurationMillis))
	}
	current := p.CurrentAmp(nowMillis)
	if target > current*stableswap.MaxAmpChangeFactor ||
		target*stableswap.MaxAmpChangeFactor < current {
		return fmt.Errorf("%w: ramp %d -> %d exceeds %dx bound",
			ErrInvalidInput, current, target, uint64(stableswap.MaxAmpChangeFactor))
	}
	end, err := wmath.AddU64(nowMillis, durationMillis)
	if err != nil {
		return fmt.Errorf("%w: ramp end time", ErrOverflow)
	}
	p.Amp = current
	p.TargetAmp = target
	p.RampStartMillis = nowMillis
	p.RampEndMillis = end
	return nil
}

// StopRamp freezes the amplification at its current interpolated value.
func (p *StablePool) StopRamp(nowMillis uint64) {
	current := p.CurrentAmp(nowMillis)
	p.Amp = current
	p.TargetAmp = current
	p.RampStartMillis = 0
	p.RampEndMillis = 0
}

// AddLiquidity mints by invariant growth: the first deposit mints D minus
// the burned floor; later deposits at any ratio mint L*(D1-D0)/D0.
func (p *StablePool) AddLiquidity(amountA, amountB, nowMillis uint64) (uint64, error) {
	s := p.state
	if err := s.requireActive(); err != nil {
		return 0, err
	}
	amp := p.CurrentAmp(nowMillis)

	if s.TotalLiquidity == 0 {
		if amountA == 0 || amountB == 0 {
			return 0, fmt.Errorf("%w: initial deposit needs both assets", ErrInvalidInput)
		}
		d, err := stableswap.GetD(amountA, amountB, amp)
		if err != nil {
			return 0, mapSolverErr(err)
		}
		return s.mintInitial(d, amountA, amountB)
	}

	if amountA == 0 && amountB == 0 {
		return 0, fmt.Errorf("%w: zero deposit", ErrInvalidInput)
	}

	d0, err := stableswap.GetD(s.ReserveA, s.ReserveB, amp)
	if err != nil {
		return 0, mapSolverErr(err)
	}
	newA, errA := wmath.AddU64(s.ReserveA, amountA)
	newB, errB := wmath.AddU64(s.ReserveB, amountB)
	if errA != nil || errB != nil {
		return 0, fmt.Errorf("%w: reserve overflow on deposit", ErrOverflow)
	}
	d1, err := stableswap.GetD(newA, newB, amp)
	if err != nil {
		return 0, mapSolverErr(err)
	}
	if d1 <= d0 {
		return 0, fmt.Errorf("%w: invariant did not grow", ErrInsufficientLiquidity)
	}
	minted, err := wmath.MulDiv(s.TotalLiquidity, d1-d0, d0)
	if err != nil {
		return 0, fmt.Errorf("%w: mint", ErrOverflow)
	}
	if minted == 0 {
		return 0, fmt.Errorf("%w: deposit too small to mint", ErrInsufficientLiquidity)
	}

	snap := s.clone()
	s.ReserveA = newA
	s.ReserveB = newB
	total, err := wmath.AddU64(s.TotalLiquidity, minted)
	if err != nil {
		s.restore(snap)
		return 0, fmt.Errorf("%w: total liquidity", ErrOverflow)
	}
	s.TotalLiquidity = total
	return minted, nil
}

// RemoveShares burns shares and pays the proportional reserves, identical to
// the constant-product variant: proportional removal preserves the ratio.
func (p *StablePool) RemoveShares(shares uint64) (uint64, uint64, error) {
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

func (p *StablePool) SwapAToB(params SwapParams) (SwapResult, error) {
	return p.swap(params, true)
}

func (p *StablePool) SwapBToA(params SwapParams) (SwapResult, error) {
	return p.swap(params, false)
}

func (p *StablePool) swap(params SwapParams, aToB bool) (SwapResult, error) {
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

	amp := p.CurrentAmp(params.NowMillis)
	fee, err := wmath.MulDiv(params.AmountIn, s.FeeBps, wmath.BasisPointDenominator)
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: fee", ErrOverflow)
	}
	netIn := params.AmountIn - fee
	if netIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: amount consumed entirely by fee", ErrInvalidInput)
	}

	d, err := stableswap.GetD(s.ReserveA, s.ReserveB, amp)
	if err != nil {
		return SwapResult{}, mapSolverErr(err)
	}
	newReserveIn, err := wmath.AddU64(reserveIn, netIn)
	if err != nil {
		return SwapResult{}, fmt.Errorf("%w: reserve in", ErrOverflow)
	}
	newReserveOut, err := stableswap.GetY(newReserveIn, d, amp)
	if err != nil {
		return SwapResult{}, mapSolverErr(err)
	}
	// Degenerate-root guard: the post-trade reserve must stay strictly
	// inside (0, reserveOut).
	if newReserveOut == 0 || newReserveOut >= reserveOut {
		return SwapResult{}, fmt.Errorf("%w: degenerate solver root %d against reserve %d",
			ErrInsufficientLiquidity, newReserveOut, reserveOut)
	}
	out := reserveOut - newReserveOut

	if err := slippage.CheckMinOutput(out, params.MinOut); err != nil {
		return SwapResult{}, fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}
	if err := slippage.CheckPriceLimit(params.AmountIn, out, params.MaxPriceScaled); err != nil {
		return SwapResult{}, fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}

	impact, err := p.priceImpact(netIn, out, reserveIn, reserveOut, d, amp)
	if err != nil {
		return SwapResult{}, err
	}
	if impact > s.MaxPriceImpactBps {
		return SwapResult{}, fmt.Errorf("%w: %d bps over cap %d", ErrExcessivePriceImpact, impact, s.MaxPriceImpactBps)
	}

	snap := s.clone()
	if aToB {
		s.ReserveA = newReserveIn
		s.ReserveB = newReserveOut
	} else {
		s.ReserveB = newReserveIn
		s.ReserveA = newReserveOut
	}
	if fee > 0 {
		if err := s.splitFee(fee, aToB); err != nil {
			s.restore(snap)
			return SwapResult{}, err
		}
	}

	// Invariant check on live balances: D may lose at most one unit to
	// rounding, never more.
	dAfter, err := stableswap.GetD(s.ReserveA, s.ReserveB, amp)
	if err != nil {
		s.restore(snap)
		return SwapResult{}, mapSolverErr(err)
	}
	if dAfter+1 < d {
		s.restore(snap)
		return SwapResult{}, fmt.Errorf("%w: invariant decreased %d -> %d", ErrInsufficientLiquidity, d, dAfter)
	}

	return SwapResult{AmountIn: params.AmountIn, AmountOut: out, Fee: fee, ImpactBps: impact}, nil
}

// priceImpact prices a one-unit micro-trade at the same D and amp to obtain
// the local marginal rate, then compares netIn at that rate against the
// realized output. The constant-product "ideal ratio" cannot be reused here:
// the curve's slope varies with amp and balance.
func (p *StablePool) priceImpact(netIn, out, reserveIn, reserveOut, d, amp uint64) (uint64, error) {
	microOut, err := stableswap.GetY(reserveIn+1, d, amp)
	if err != nil {
		return 0, mapSolverErr(err)
	}
	if microOut >= reserveOut {
		// Locally flat below one unit; no meaningful marginal rate.
		return 0, nil
	}
	marginal := reserveOut - microOut
	ideal, err := wmath.MulDiv(netIn, marginal, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: ideal output", ErrOverflow)
	}
	impact, err := slippage.ImpactBps(ideal, out)
	if err != nil {
		return 0, mapMathErr(err)
	}
	return impact, nil
}

// QuoteAToB prices a swap at the supplied time without mutating state.
func (p *StablePool) QuoteAToB(amountIn, nowMillis uint64) (uint64, error) {
	return p.quote(amountIn, nowMillis, true)
}

func (p *StablePool) QuoteBToA(amountIn, nowMillis uint64) (uint64, error) {
	return p.quote(amountIn, nowMillis, false)
}

func (p *StablePool) quote(amountIn, nowMillis uint64, aToB bool) (uint64, error) {
	s := p.state
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: zero amount", ErrInvalidInput)
	}
	reserveIn, reserveOut := s.ReserveA, s.ReserveB
	if !aToB {
		reserveIn, reserveOut = s.ReserveB, s.ReserveA
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}
	amp := p.CurrentAmp(nowMillis)
	fee, err := wmath.MulDiv(amountIn, s.FeeBps, wmath.BasisPointDenominator)
	if err != nil {
		return 0, fmt.Errorf("%w: fee", ErrOverflow)
	}
	netIn := amountIn - fee
	if netIn == 0 {
		return 0, fmt.Errorf("%w: amount consumed entirely by fee", ErrInvalidInput)
	}
	d, err := stableswap.GetD(s.ReserveA, s.ReserveB, amp)
	if err != nil {
		return 0, mapSolverErr(err)
	}
	newReserveIn, err := wmath.AddU64(reserveIn, netIn)
	if err != nil {
		return 0, fmt.Errorf("%w: reserve in", ErrOverflow)
	}
	newReserveOut, err := stableswap.GetY(newReserveIn, d, amp)
	if err != nil {
		return 0, mapSolverErr(err)
	}
	if newReserveOut == 0 || newReserveOut >= reserveOut {
		return 0, fmt.Errorf("%w: degenerate solver root", ErrInsufficientLiquidity)
	}
	return reserveOut - newReserveOut, nil
}

func mapSolverErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stableswap.ErrNoConvergence):
		return fmt.Errorf("%w: %w", ErrConvergenceFailure, err)
	case errors.Is(err, stableswap.ErrInvalidAmp), errors.Is(err, stableswap.ErrInvalidReserve):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, wmath.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	default:
		return err
	}
}
