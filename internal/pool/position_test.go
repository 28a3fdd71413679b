package pool

import (
	"errors"
	"math/big"
	"testing"
)

func fundedCP(t *testing.T) (*ConstantProductPool, *Position) {
	t.Helper()
	p := newTestCP(t, 30, 0)
	minted, err := p.AddLiquidity(1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pos, err := NewPosition(p.State(), minted, 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}
	return p, pos
}

func TestNewPositionStartsClean(t *testing.T) {
	p, pos := fundedCP(t)
	claimA, claimB, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	if claimA != 0 || claimB != 0 {
		t.Fatalf("fresh position claims (%d, %d), want zero", claimA, claimB)
	}
	// 1:1 reserves record a 1.0 entry ratio at FeeScale.
	if pos.EntryPriceRatio.Cmp(feeScaleBig) != 0 {
		t.Fatalf("entry ratio = %s, want %d", pos.EntryPriceRatio, int64(FeeScale))
	}
}

func TestClaimableTracksSwapFees(t *testing.T) {
	p, pos := fundedCP(t)
	if _, err := p.SwapAToB(SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	claimA, claimB, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	// Fee = 300 in asset A; this position holds 999000 of 1000000 shares.
	if claimA < 298 || claimA > 300 {
		t.Fatalf("claimable A = %d, want ~299", claimA)
	}
	if claimB != 0 {
		t.Fatalf("claimable B = %d, want 0", claimB)
	}
	if claimA > p.State().FeeA {
		t.Fatalf("claim %d exceeds pool fee balance %d", claimA, p.State().FeeA)
	}
}

func TestWithdrawFeesResyncs(t *testing.T) {
	p, pos := fundedCP(t)
	if _, err := p.SwapAToB(SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	gotA, _, err := pos.WithdrawFees(p.State())
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	if gotA == 0 {
		t.Fatal("withdrew nothing after a fee-paying swap")
	}
	claimA, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable after withdraw: %v", err)
	}
	if claimA != 0 {
		t.Fatalf("claimable after withdraw = %d, want 0", claimA)
	}

	// More swaps accrue fresh fees on top of the resynced debt.
	if _, err := p.SwapAToB(SwapParams{AmountIn: 50_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	claimA, _, err = pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	if claimA == 0 {
		t.Fatal("no claimable after post-withdraw swap")
	}
}

func TestIncreaseKeepsEntryRatioAndFees(t *testing.T) {
	p, pos := fundedCP(t)
	if _, err := p.SwapAToB(SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	claimBefore, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}

	entry := new(big.Int).Set(pos.EntryPriceRatio)
	minted, err := p.AddLiquidity(100_000, 100_000, 0)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if err := pos.Increase(p.State(), minted, 100_000, 100_000); err != nil {
		t.Fatalf("Increase: %v", err)
	}

	if pos.EntryPriceRatio.Cmp(entry) != 0 {
		t.Fatal("entry ratio was recomputed on increase")
	}
	claimAfter, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	// New shares owe nothing retroactively; old unclaimed fees survive.
	if diff := int64(claimAfter) - int64(claimBefore); diff < -1 || diff > 1 {
		t.Fatalf("claimable moved %d -> %d across increase", claimBefore, claimAfter)
	}
}

func TestDecreaseScalesRecordedAmounts(t *testing.T) {
	p, pos := fundedCP(t)

	// Removing 30% leaves exactly 70% of shares and recorded amounts:
	// 999000 shares, 1e6 recorded per asset.
	if _, _, err := pos.Decrease(p.State(), 299_700); err != nil {
		t.Fatalf("Decrease: %v", err)
	}
	if pos.Liquidity != 699_300 {
		t.Fatalf("liquidity = %d, want 699300", pos.Liquidity)
	}
	if pos.OriginalDepositA != 700_000 || pos.OriginalDepositB != 700_000 {
		t.Fatalf("recorded deposits = (%d, %d), want (700000, 700000)",
			pos.OriginalDepositA, pos.OriginalDepositB)
	}
}

func TestDecreaseRejectsBadDelta(t *testing.T) {
	p, pos := fundedCP(t)
	if _, _, err := pos.Decrease(p.State(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero delta: got %v", err)
	}
	if _, _, err := pos.Decrease(p.State(), pos.Liquidity+1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("over-removal: got %v", err)
	}
}

func TestDecreasePaysRemovedFractionFees(t *testing.T) {
	p, pos := fundedCP(t)
	if _, err := p.SwapAToB(SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	claimTotal, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}

	third := pos.Liquidity / 3
	paidA, _, err := pos.Decrease(p.State(), third)
	if err != nil {
		t.Fatalf("Decrease: %v", err)
	}
	remainA, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable after decrease: %v", err)
	}
	// Paid + remaining conserves the pre-decrease claim, within dust.
	sum := paidA + remainA
	if sum > claimTotal || claimTotal-sum > 2 {
		t.Fatalf("fee conservation: paid %d + remaining %d vs total %d", paidA, remainA, claimTotal)
	}
}

func TestImpermanentLoss(t *testing.T) {
	pos := &Position{
		OriginalDepositA: 1000,
		OriginalDepositB: 1000,
		EntryPriceRatio:  new(big.Int).SetUint64(FeeScale),
	}

	// Price doubled (ratio 2.0): holding would be worth 1500 in A terms;
	// the LP value 1410 lags by 90, i.e. 600 bps.
	ratio := new(big.Int).SetUint64(2 * FeeScale)
	il, err := pos.ImpermanentLossBps(700, 1420, ratio)
	if err != nil {
		t.Fatalf("ImpermanentLossBps: %v", err)
	}
	if il != 600 {
		t.Fatalf("IL = %d bps, want 600", il)
	}

	// LP value above held value clamps to zero.
	il, err = pos.ImpermanentLossBps(2000, 2000, ratio)
	if err != nil {
		t.Fatalf("ImpermanentLossBps: %v", err)
	}
	if il != 0 {
		t.Fatalf("IL = %d bps, want 0 for a gain", il)
	}

	if _, err := pos.ImpermanentLossBps(1, 1, new(big.Int)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ratio: got %v", err)
	}
}

func TestBuildView(t *testing.T) {
	p, pos := fundedCP(t)
	if _, err := p.SwapAToB(SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	v, err := BuildView(p.State(), pos)
	if err != nil {
		t.Fatalf("BuildView: %v", err)
	}
	if v.Liquidity != pos.Liquidity {
		t.Fatalf("view liquidity = %d", v.Liquidity)
	}
	if v.ValueA == 0 || v.ValueB == 0 {
		t.Fatalf("view values = (%d, %d)", v.ValueA, v.ValueB)
	}
	if v.ClaimableA == 0 {
		t.Fatal("view missing accrued fees")
	}

	// The view must not mutate anything.
	claimA, _, err := pos.Claimable(p.State())
	if err != nil {
		t.Fatalf("Claimable: %v", err)
	}
	if claimA != v.ClaimableA {
		t.Fatalf("view mutated fee state: %d vs %d", claimA, v.ClaimableA)
	}
}

func TestPositionPoolMismatch(t *testing.T) {
	p, pos := fundedCP(t)
	other := newTestStable(t, 30, 0, 100)
	if _, err := other.AddLiquidity(1_000_000, 1_000_000, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, _, err := pos.Claimable(other.State()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("mismatched pool: got %v", err)
	}
	if err := pos.Increase(other.State(), 1, 1, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("mismatched increase: got %v", err)
	}
	_ = p
}
