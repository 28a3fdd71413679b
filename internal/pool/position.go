package pool

import (
	"fmt"
	"math/big"

	"ammCore/internal/wmath"
)

// Position is a holder's share ledger entry. It references its pool by ID
// only; the pool never stores or enumerates positions, so the number of
// holders is unbounded at no cost to the pool.
type Position struct {
	PoolID    ID
	Liquidity uint64

	// Fee debt is the accumulator value already credited, in token units:
	// floor(shares * accFeePerShare / FeeScale) at the last sync. Claimable
	// fee is the current product minus this debt.
	FeeDebtA *big.Int
	FeeDebtB *big.Int

	// Basis for impermanent-loss measurement. The entry price ratio is
	// recorded once, on the first deposit, and never averaged.
	OriginalDepositA uint64
	OriginalDepositB uint64
	EntryPriceRatio  *big.Int // reserveB * FeeScale / reserveA at entry
}

// NewPosition opens a position against a pool with freshly minted shares.
// Fee debt starts at the current accumulator level so nothing is owed
// retroactively. Call after the deposit has been applied to the pool.
func NewPosition(s *State, shares, amountA, amountB uint64) (*Position, error) {
	if shares == 0 {
		return nil, fmt.Errorf("%w: zero shares", ErrInvalidInput)
	}
	if s.ReserveA == 0 {
		return nil, fmt.Errorf("%w: empty reserve for entry price", ErrInsufficientLiquidity)
	}
	ratio := new(big.Int).SetUint64(s.ReserveB)
	ratio.Mul(ratio, feeScaleBig)
	ratio.Div(ratio, new(big.Int).SetUint64(s.ReserveA))

	return &Position{
		PoolID:           s.ID,
		Liquidity:        shares,
		FeeDebtA:         feeEntitlement(shares, s.AccFeePerShareA),
		FeeDebtB:         feeEntitlement(shares, s.AccFeePerShareB),
		OriginalDepositA: amountA,
		OriginalDepositB: amountB,
		EntryPriceRatio:  ratio,
	}, nil
}

// feeEntitlement returns floor(shares * acc / FeeScale) in token units.
func feeEntitlement(shares uint64, acc *big.Int) *big.Int {
	v := new(big.Int).SetUint64(shares)
	v.Mul(v, acc)
	v.Div(v, feeScaleBig)
	return v
}

// Increase adds shares and deposit amounts. The added shares are debited at
// the current accumulator so existing unclaimed fees stay intact; the entry
// price ratio is deliberately not recomputed.
func (pos *Position) Increase(s *State, sharesDelta, amountA, amountB uint64) error {
	if pos.PoolID != s.ID {
		return fmt.Errorf("%w: position belongs to another pool", ErrInvalidInput)
	}
	if sharesDelta == 0 {
		return fmt.Errorf("%w: zero share delta", ErrInvalidInput)
	}
	liq, err := wmath.AddU64(pos.Liquidity, sharesDelta)
	if err != nil {
		return fmt.Errorf("%w: liquidity", ErrOverflow)
	}
	depA, errA := wmath.AddU64(pos.OriginalDepositA, amountA)
	depB, errB := wmath.AddU64(pos.OriginalDepositB, amountB)
	if errA != nil || errB != nil {
		return fmt.Errorf("%w: deposit totals", ErrOverflow)
	}

	pos.Liquidity = liq
	pos.OriginalDepositA = depA
	pos.OriginalDepositB = depB
	pos.FeeDebtA.Add(pos.FeeDebtA, feeEntitlement(sharesDelta, s.AccFeePerShareA))
	pos.FeeDebtB.Add(pos.FeeDebtB, feeEntitlement(sharesDelta, s.AccFeePerShareB))
	return nil
}

// driftToleranceBps bounds the rounding drift allowed by a proportional
// decrease: one basis point of the prior recorded amount.
const driftToleranceBps = 1

// Decrease shrinks the position by sharesDelta, scaling recorded deposits
// and fee debt by exactly sharesDelta/liquidity in widened arithmetic, and
// pays out the removed fraction's unclaimed fees from the pool's balances.
// The scaled amounts are checked against the ideal ratio and rejected if the
// rounding drift exceeds tolerance. Returns the fee payout per asset.
func (pos *Position) Decrease(s *State, sharesDelta uint64) (uint64, uint64, error) {
	if pos.PoolID != s.ID {
		return 0, 0, fmt.Errorf("%w: position belongs to another pool", ErrInvalidInput)
	}
	if sharesDelta == 0 || sharesDelta > pos.Liquidity {
		return 0, 0, fmt.Errorf("%w: share delta %d of %d", ErrInvalidInput, sharesDelta, pos.Liquidity)
	}

	total := pos.Liquidity
	remaining := total - sharesDelta

	remA, err := scaledRemainder(pos.OriginalDepositA, remaining, total)
	if err != nil {
		return 0, 0, err
	}
	remB, err := scaledRemainder(pos.OriginalDepositB, remaining, total)
	if err != nil {
		return 0, 0, err
	}

	debtRemainA, claimA, err := splitDebt(pos.FeeDebtA, s.AccFeePerShareA, sharesDelta, remaining, total)
	if err != nil {
		return 0, 0, err
	}
	debtRemainB, claimB, err := splitDebt(pos.FeeDebtB, s.AccFeePerShareB, sharesDelta, remaining, total)
	if err != nil {
		return 0, 0, err
	}
	if claimA > s.FeeA || claimB > s.FeeB {
		return 0, 0, fmt.Errorf("%w: fee balance short of claim", ErrInsufficientLiquidity)
	}

	s.FeeA -= claimA
	s.FeeB -= claimB
	pos.Liquidity = remaining
	pos.OriginalDepositA = remA
	pos.OriginalDepositB = remB
	pos.FeeDebtA = debtRemainA
	pos.FeeDebtB = debtRemainB
	return claimA, claimB, nil
}

// splitDebt transfers exactly floor(debt*removed/total) of the stored debt
// with the removed shares and pays their unclaimed portion. The remaining
// debt is clamped to the remaining entitlement so a one-unit floor artifact
// can never leave the ledger with negative claimable.
func splitDebt(debt, acc *big.Int, removed, remaining, total uint64) (*big.Int, uint64, error) {
	debtRemoved := new(big.Int).Mul(debt, new(big.Int).SetUint64(removed))
	debtRemoved.Div(debtRemoved, new(big.Int).SetUint64(total))

	removedEntitlement := feeEntitlement(removed, acc)
	claim := new(big.Int).Sub(removedEntitlement, debtRemoved)
	if claim.Sign() < 0 {
		return nil, 0, fmt.Errorf("%w: fee debt exceeds removed entitlement", ErrOverflow)
	}
	claimOut, err := wmath.ToUint64(claim)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: fee claim", ErrOverflow)
	}

	debtRemain := new(big.Int).Sub(debt, debtRemoved)
	if limit := feeEntitlement(remaining, acc); debtRemain.Cmp(limit) > 0 {
		debtRemain = limit
	}
	return debtRemain, claimOut, nil
}

// scaledRemainder computes amount*remaining/total and asserts the floor
// rounding stayed within tolerance of the exact ratio.
func scaledRemainder(amount, remaining, total uint64) (uint64, error) {
	scaled, err := wmath.MulDiv(amount, remaining, total)
	if err != nil {
		return 0, fmt.Errorf("%w: proportional scale", ErrOverflow)
	}
	// Exact value lies in [scaled, scaled+1); drift beyond one basis point
	// of the prior amount means the arithmetic went wrong.
	exactLow := new(big.Int).SetUint64(amount)
	exactLow.Mul(exactLow, new(big.Int).SetUint64(remaining))
	check := new(big.Int).SetUint64(scaled)
	check.Mul(check, new(big.Int).SetUint64(total))
	drift := new(big.Int).Sub(exactLow, check)
	limit := new(big.Int).SetUint64(total)
	tol := new(big.Int).SetUint64(amount)
	tol.Mul(tol, big.NewInt(driftToleranceBps))
	tol.Div(tol, big.NewInt(wmath.BasisPointDenominator))
	tol.Add(tol, limit) // floor remainder is always < total
	if drift.Sign() < 0 || drift.Cmp(tol) > 0 {
		return 0, fmt.Errorf("%w: proportional drift out of tolerance", ErrOverflow)
	}
	return scaled, nil
}

// Claimable returns the never-yet-withdrawn fee per asset, in token units.
func (pos *Position) Claimable(s *State) (uint64, uint64, error) {
	if pos.PoolID != s.ID {
		return 0, 0, fmt.Errorf("%w: position belongs to another pool", ErrInvalidInput)
	}
	a, err := claimableOne(pos.Liquidity, s.AccFeePerShareA, pos.FeeDebtA)
	if err != nil {
		return 0, 0, err
	}
	b, err := claimableOne(pos.Liquidity, s.AccFeePerShareB, pos.FeeDebtB)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func claimableOne(shares uint64, acc, debt *big.Int) (uint64, error) {
	owed := feeEntitlement(shares, acc)
	owed.Sub(owed, debt)
	if owed.Sign() < 0 {
		// Debt above entitlement breaks the ledger invariant.
		return 0, fmt.Errorf("%w: fee debt exceeds entitlement", ErrOverflow)
	}
	return wmath.ToUint64(owed)
}

// WithdrawFees pays out the claimable fees from the pool's LP fee balances
// and resyncs the debt to the current accumulator.
func (pos *Position) WithdrawFees(s *State) (uint64, uint64, error) {
	claimA, claimB, err := pos.Claimable(s)
	if err != nil {
		return 0, 0, err
	}
	if claimA > s.FeeA || claimB > s.FeeB {
		return 0, 0, fmt.Errorf("%w: fee balance short of claim", ErrInsufficientLiquidity)
	}
	s.FeeA -= claimA
	s.FeeB -= claimB
	pos.FeeDebtA = feeEntitlement(pos.Liquidity, s.AccFeePerShareA)
	pos.FeeDebtB = feeEntitlement(pos.Liquidity, s.AccFeePerShareB)
	return claimA, claimB, nil
}

// ImpermanentLossBps measures the basis-point gap between holding the
// original deposit passively and the position's current value, both
// denominated in asset A at the supplied price ratio (FeeScale fixed point).
// Gains clamp to zero.
func (pos *Position) ImpermanentLossBps(currentValueA, currentValueB uint64, currentPriceRatio *big.Int) (uint64, error) {
	if currentPriceRatio == nil || currentPriceRatio.Sign() <= 0 {
		return 0, fmt.Errorf("%w: non-positive price ratio", ErrInvalidInput)
	}

	held := valueInA(pos.OriginalDepositA, pos.OriginalDepositB, currentPriceRatio)
	if held.Sign() == 0 {
		return 0, nil
	}
	lp := valueInA(currentValueA, currentValueB, currentPriceRatio)

	diff := new(big.Int).Sub(held, lp)
	if diff.Sign() <= 0 {
		return 0, nil
	}
	diff.Mul(diff, big.NewInt(wmath.BasisPointDenominator))
	diff.Div(diff, held)
	return wmath.ToUint64(diff)
}

// valueInA converts (a, b) holdings to asset-A units at ratio = priceB/priceA
// scaled by FeeScale: a + b*FeeScale/ratio.
func valueInA(a, b uint64, ratio *big.Int) *big.Int {
	v := new(big.Int).SetUint64(b)
	v.Mul(v, feeScaleBig)
	v.Div(v, ratio)
	v.Add(v, new(big.Int).SetUint64(a))
	return v
}

// View is a read-only snapshot of a position's real-time economics.
type View struct {
	PoolID     ID
	Liquidity  uint64
	ValueA     uint64
	ValueB     uint64
	ClaimableA uint64
	ClaimableB uint64
	ILBps      uint64
}

// BuildView computes current value, claimable fees, and impermanent loss
// without mutating the position or the pool.
func BuildView(s *State, pos *Position) (View, error) {
	if pos.PoolID != s.ID {
		return View{}, fmt.Errorf("%w: position belongs to another pool", ErrInvalidInput)
	}
	valueA, valueB, err := s.proportionalPayout(pos.Liquidity)
	if err != nil {
		return View{}, err
	}
	claimA, claimB, err := pos.Claimable(s)
	if err != nil {
		return View{}, err
	}

	var ilBps uint64
	if s.ReserveA > 0 {
		ratio := new(big.Int).SetUint64(s.ReserveB)
		ratio.Mul(ratio, feeScaleBig)
		ratio.Div(ratio, new(big.Int).SetUint64(s.ReserveA))
		if ratio.Sign() > 0 {
			ilBps, err = pos.ImpermanentLossBps(valueA, valueB, ratio)
			if err != nil {
				return View{}, err
			}
		}
	}

	return View{
		PoolID:     pos.PoolID,
		Liquidity:  pos.Liquidity,
		ValueA:     valueA,
		ValueB:     valueB,
		ClaimableA: claimA,
		ClaimableB: claimB,
		ILBps:      ilBps,
	}, nil
}
