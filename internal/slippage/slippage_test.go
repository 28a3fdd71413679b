package slippage

import (
	"errors"
	"math"
	"testing"
)

func TestCheckDeadline(t *testing.T) {
	if err := CheckDeadline(100, 100); err != nil {
		t.Fatalf("deadline not yet passed: %v", err)
	}
	if err := CheckDeadline(101, 100); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := CheckDeadline(math.MaxUint64, 0); err != nil {
		t.Fatalf("zero deadline must disable the check: %v", err)
	}
}

func TestCheckMinOutput(t *testing.T) {
	if err := CheckMinOutput(10, 10); err != nil {
		t.Fatalf("equal output rejected: %v", err)
	}
	if err := CheckMinOutput(9, 10); !errors.Is(err, ErrMinOutput) {
		t.Fatalf("expected ErrMinOutput, got %v", err)
	}
}

func TestCheckPriceLimit(t *testing.T) {
	// 1:1 trade, limit exactly 1.0.
	if err := CheckPriceLimit(1000, 1000, PriceScale); err != nil {
		t.Fatalf("at-limit trade rejected: %v", err)
	}
	// Paying 1001 for 1000: price 1.001, over a 1.0 limit.
	if err := CheckPriceLimit(1001, 1000, PriceScale); !errors.Is(err, ErrPriceLimit) {
		t.Fatalf("expected ErrPriceLimit, got %v", err)
	}
	// Zero limit disables the check entirely.
	if err := CheckPriceLimit(1_000_000, 1, 0); err != nil {
		t.Fatalf("disabled check rejected trade: %v", err)
	}
	// Zero output with a live limit can never satisfy it.
	if err := CheckPriceLimit(1, 0, PriceScale); !errors.Is(err, ErrPriceLimit) {
		t.Fatalf("expected ErrPriceLimit for zero output, got %v", err)
	}
}

func TestCheckPriceLimitWide(t *testing.T) {
	// amountIn*PriceScale overflows uint64; the widened path must still work.
	if err := CheckPriceLimit(math.MaxUint64, math.MaxUint64, PriceScale); err != nil {
		t.Fatalf("1:1 max-range trade rejected: %v", err)
	}
}

func TestImpactBps(t *testing.T) {
	got, err := ImpactBps(10_000, 9_900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 100 {
		t.Fatalf("impact = %d bps, want 100", got)
	}

	got, err = ImpactBps(10_000, 10_500)
	if err != nil || got != 0 {
		t.Fatalf("better-than-ideal output must be zero impact: %d, %v", got, err)
	}

	if _, err := ImpactBps(0, 1); err == nil {
		t.Fatal("zero ideal must error")
	}
}
