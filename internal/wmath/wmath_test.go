package wmath

import (
	"errors"
	"math"
	"testing"
)

func TestSqrtBounds(t *testing.T) {
	cases := []uint64{0, 1, 2, 3, 4, 5, 15, 16, 17, 999, 1000, 1_000_000,
		1_000_001, 999_999_999_999, math.MaxUint32, math.MaxUint64}
	for _, n := range cases {
		s := Sqrt(n)
		if n == 0 {
			if s != 0 {
				t.Fatalf("Sqrt(0) = %d, want 0", s)
			}
			continue
		}
		if s*s > n {
			t.Fatalf("Sqrt(%d) = %d: square exceeds input", n, s)
		}
		next := s + 1
		// next*next may wrap for inputs near MaxUint64; only check when it cannot.
		if next <= math.MaxUint32 && next*next <= n {
			t.Fatalf("Sqrt(%d) = %d: not the floor root", n, s)
		}
	}
}

func TestSqrtExact(t *testing.T) {
	if got := Sqrt(1_000_000 * 1_000_000); got != 1_000_000 {
		t.Fatalf("Sqrt(1e12) = %d, want 1000000", got)
	}
	for _, n := range []uint64{1, 2, 3} {
		if got := Sqrt(n); got != 1 {
			t.Fatalf("Sqrt(%d) = %d, want 1", n, got)
		}
	}
}

func TestConstantProductOutput(t *testing.T) {
	// 30 bps fee already removed by the caller: fee passed as 0 here.
	// floor(9970*1e6 / (1e6+9970)) = floor(9871.58) = 9871.
	out, err := ConstantProductOutput(9970, 1_000_000, 1_000_000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 9871 {
		t.Fatalf("output = %d, want 9871", out)
	}
}

func TestConstantProductOutputWithFee(t *testing.T) {
	// Same trade with the fee applied inside the formula.
	out, err := ConstantProductOutput(10_000, 1_000_000, 1_000_000, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 9871 {
		t.Fatalf("output = %d, want 9871", out)
	}
}

func TestConstantProductOutputInvalid(t *testing.T) {
	if _, err := ConstantProductOutput(0, 100, 100, 30); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := ConstantProductOutput(1, 0, 100, 30); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero reserve in: got %v", err)
	}
	if _, err := ConstantProductOutput(1, 100, 0, 30); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero reserve out: got %v", err)
	}
	if _, err := ConstantProductOutput(1, 100, 100, 10_000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("100%% fee: got %v", err)
	}
}

func TestConstantProductOutputNeverDrainsReserve(t *testing.T) {
	// Even an enormous input cannot pay out the full opposing reserve.
	out, err := ConstantProductOutput(math.MaxUint64/2, 1000, 1000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out >= 1000 {
		t.Fatalf("output %d >= reserve", out)
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(500, 1000, 4000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2000 {
		t.Fatalf("quote = %d, want 2000", got)
	}
	if _, err := Quote(0, 1000, 4000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero amount: got %v", err)
	}
}

func TestQuoteOverflow(t *testing.T) {
	if _, err := Quote(math.MaxUint64, 1, math.MaxUint64); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("got %d", got)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero denominator: got %v", err)
	}
	if _, err := MulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMin(t *testing.T) {
	if Min(3, 7) != 3 || Min(7, 3) != 3 || Min(5, 5) != 5 {
		t.Fatal("Min misbehaves")
	}
}

func TestAddU64(t *testing.T) {
	if v, err := AddU64(1, 2); err != nil || v != 3 {
		t.Fatalf("AddU64(1,2) = %d, %v", v, err)
	}
	if _, err := AddU64(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
