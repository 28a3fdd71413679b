package pool

import (
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) (*Registry, ID, uint64) {
	t.Helper()
	r := NewRegistry()
	poolID, posID, minted, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 0, 1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("CreateConstantProduct: %v", err)
	}
	if minted != 999_000 {
		t.Fatalf("first mint = %d, want 999000", minted)
	}
	return r, poolID, posID
}

func TestCreateIsAtomic(t *testing.T) {
	r := NewRegistry()
	// First deposit below the minimum threshold: no pool may be left behind.
	_, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 0, 50, 50, 0)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("tiny first deposit: got %v", err)
	}
	if n := len(r.PoolIDs()); n != 0 {
		t.Fatalf("failed create registered %d pools", n)
	}

	// The same tuple then succeeds cleanly.
	if _, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 0, 1_000_000, 1_000_000, 0); err != nil {
		t.Fatalf("create after failure: %v", err)
	}
}

func TestDuplicatePoolRejected(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 0, 1_000_000, 1_000_000, 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate pool: got %v", err)
	}
	// A different fee tier is a different pool.
	if _, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 100, 0, 1_000_000, 1_000_000, 0); err != nil {
		t.Fatalf("second fee tier: %v", err)
	}
	// So is the stable variant over the same assets and tier.
	if _, _, _, err := r.CreateStable(assetUSD, assetEUR, 30, 0, 100, 1_000_000, 1_000_000, 0); err != nil {
		t.Fatalf("stable variant: %v", err)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	r, poolID, _ := newTestRegistry(t)

	posID, minted, err := r.OpenPosition(poolID, 100_000, 100_000, 0, 0)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if minted != 100_000 {
		t.Fatalf("minted = %d, want 100000", minted)
	}

	outA, outB, err := r.RemoveLiquidity(posID, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	// No trades in between: the deposit comes back within one unit and no
	// fees are owed.
	if diff := int64(outA) - 100_000; diff < -1 || diff > 0 {
		t.Fatalf("payout A = %d, want 100000 (±1)", outA)
	}
	if diff := int64(outB) - 100_000; diff < -1 || diff > 0 {
		t.Fatalf("payout B = %d, want 100000 (±1)", outB)
	}

	if _, err := r.Position(posID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("position must be destroyed on full removal: %v", err)
	}
}

func TestRemoveLiquidityMinimums(t *testing.T) {
	r, poolID, _ := newTestRegistry(t)
	posID, _, err := r.OpenPosition(poolID, 100_000, 100_000, 0, 0)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	if _, _, err := r.RemoveLiquidity(posID, 100_001, 0, 0, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("min A violation: got %v", err)
	}
	// The abort left the position intact.
	if _, err := r.Position(posID); err != nil {
		t.Fatalf("position destroyed by failed removal: %v", err)
	}
	if _, _, err := r.RemoveLiquidity(posID, 99_000, 99_000, 0, 0); err != nil {
		t.Fatalf("removal within minimums: %v", err)
	}
}

func TestPartialRemoval(t *testing.T) {
	r, poolID, posID := newTestRegistry(t)

	// Accrue some fees first.
	if _, err := r.Swap(poolID, true, SwapParams{AmountIn: 100_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	pos, err := r.Position(posID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	before := pos.Liquidity

	outA, outB, err := r.RemoveLiquidityPartial(posID, before/4, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("RemoveLiquidityPartial: %v", err)
	}
	if outA == 0 || outB == 0 {
		t.Fatalf("payout = (%d, %d)", outA, outB)
	}
	if pos.Liquidity != before-before/4 {
		t.Fatalf("liquidity = %d, want %d", pos.Liquidity, before-before/4)
	}

	// Removing the full remainder through the partial path is invalid.
	if _, _, err := r.RemoveLiquidityPartial(posID, pos.Liquidity, 0, 0, 0, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("full removal via partial path: got %v", err)
	}
}

func TestFeeConservationAcrossSequence(t *testing.T) {
	r, poolID, posA := newTestRegistry(t)

	posB, _, err := r.OpenPosition(poolID, 500_000, 500_000, 0, 0)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := r.Swap(poolID, i%2 == 0, SwapParams{AmountIn: 50_000}); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	if _, _, err := r.RemoveLiquidityPartial(posB, 100_000, 0, 0, 0, 0); err != nil {
		t.Fatalf("partial removal: %v", err)
	}
	if _, err := r.Swap(poolID, true, SwapParams{AmountIn: 25_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	p, err := r.Pool(poolID)
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	s := p.State()

	var sumA, sumB uint64
	for _, id := range []uint64{posA, posB} {
		v, err := r.PositionView(id)
		if err != nil {
			t.Fatalf("PositionView(%d): %v", id, err)
		}
		sumA += v.ClaimableA
		sumB += v.ClaimableB
	}
	if sumA > s.FeeA || sumB > s.FeeB {
		t.Fatalf("claimable (%d, %d) exceeds held fees (%d, %d)", sumA, sumB, s.FeeA, s.FeeB)
	}
}

func TestPauseGating(t *testing.T) {
	r, poolID, posID := newTestRegistry(t)
	if err := r.Pause(poolID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if _, err := r.Swap(poolID, true, SwapParams{AmountIn: 1000}); !errors.Is(err, ErrPaused) {
		t.Fatalf("swap while paused: got %v", err)
	}
	if _, _, err := r.OpenPosition(poolID, 1000, 1000, 0, 0); !errors.Is(err, ErrPaused) {
		t.Fatalf("open while paused: got %v", err)
	}
	if _, _, err := r.WithdrawFees(posID); !errors.Is(err, ErrPaused) {
		t.Fatalf("withdraw while paused: got %v", err)
	}

	if err := r.Unpause(poolID); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if _, err := r.Swap(poolID, true, SwapParams{AmountIn: 1000}); err != nil {
		t.Fatalf("swap after unpause: %v", err)
	}
}

func TestProtocolFeeCollection(t *testing.T) {
	r := NewRegistry()
	poolID, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 2000, 1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Swap(poolID, true, SwapParams{AmountIn: 10_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	a, b, err := r.CollectProtocolFees(poolID)
	if err != nil {
		t.Fatalf("CollectProtocolFees: %v", err)
	}
	if a != 6 || b != 0 {
		t.Fatalf("collected (%d, %d), want (6, 0)", a, b)
	}
	a, b, err = r.CollectProtocolFees(poolID)
	if err != nil || a != 0 || b != 0 {
		t.Fatalf("second collect = (%d, %d), %v", a, b, err)
	}
}

func TestAmpRampEntryPoints(t *testing.T) {
	r := NewRegistry()
	poolID, _, _, err := r.CreateStable(assetUSD, assetEUR, 30, 0, 100, 1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("CreateStable: %v", err)
	}

	if err := r.StartAmpRamp(poolID, 200, 0, 86_400_000); err != nil {
		t.Fatalf("StartAmpRamp: %v", err)
	}
	if err := r.StopAmpRamp(poolID, 43_200_000); err != nil {
		t.Fatalf("StopAmpRamp: %v", err)
	}

	// Ramping a constant-product pool is meaningless.
	cpID, _, _, err := r.CreateConstantProduct(assetUSD, assetEUR, 30, 0, 1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("create CP: %v", err)
	}
	if err := r.StartAmpRamp(cpID, 200, 0, 86_400_000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ramp on CP pool: got %v", err)
	}
}

func TestQuoteDoesNotMutate(t *testing.T) {
	r, poolID, _ := newTestRegistry(t)
	q1, err := r.Quote(poolID, true, 10_000, 0)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	q2, err := r.Quote(poolID, true, 10_000, 0)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q1 != q2 {
		t.Fatalf("repeated quotes diverged: %d vs %d", q1, q2)
	}
	p, _ := r.Pool(poolID)
	if p.State().ReserveA != 1_000_000 {
		t.Fatal("quote mutated reserves")
	}
}
