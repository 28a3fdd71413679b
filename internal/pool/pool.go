// Package pool implements the AMM core: two pool variants over a shared
// reserve/fee/share state machine, per-position fee accounting, and the
// registry that serializes operations against them.
package pool

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"ammCore/internal/wmath"
)

// Kind discriminates the bonding curve of a pool.
type Kind string

const (
	KindConstantProduct Kind = "constant_product"
	KindStable          Kind = "stable"
)

// ID identifies a pool: keccak over assets, fee tier, and curve kind.
type ID = common.Hash

// DeriveID computes the deterministic pool ID for an asset pair, fee tier,
// and curve kind. One pool exists per such tuple.
func DeriveID(assetA, assetB common.Address, feeBps uint64, kind Kind) ID {
	var fee [8]byte
	binary.BigEndian.PutUint64(fee[:], feeBps)
	return crypto.Keccak256Hash(assetA.Bytes(), assetB.Bytes(), fee[:], []byte(kind))
}

const (
	// FeeScale is the fixed-point scale of the fee-per-share accumulators
	// and the entry price ratio.
	FeeScale = 1_000_000_000_000
	// MinimumLiquidity is the share floor permanently burned on the first
	// deposit so total liquidity never returns to zero.
	MinimumLiquidity = 1000
	// MinInitialMint is the smallest acceptable first mint, ten times the
	// burned floor.
	MinInitialMint = 10 * MinimumLiquidity
	// MaxFeeBps bounds both the trade fee and the protocol fee tier.
	MaxFeeBps = 1000
	// DefaultMaxImpactBps is the price-impact cap applied to new pools
	// until changed through the risk-parameter entry point.
	DefaultMaxImpactBps = 1000
)

var feeScaleBig = big.NewInt(FeeScale)

// State is the reserve/fee/share state shared by both pool variants. A pool
// exclusively owns these balances; positions reference it by ID only.
type State struct {
	ID     ID
	AssetA common.Address
	AssetB common.Address

	ReserveA uint64
	ReserveB uint64

	// Undistributed LP fee balances, backing the accumulators below.
	FeeA uint64
	FeeB uint64

	ProtocolFeeA uint64
	ProtocolFeeB uint64

	TotalLiquidity uint64

	FeeBps            uint64
	ProtocolFeeBps    uint64
	MaxPriceImpactBps uint64

	// Monotonically increasing fee-per-share accumulators, FeeScale fixed
	// point. Never reset; positions track their high-water mark as debt.
	AccFeePerShareA *big.Int
	AccFeePerShareB *big.Int

	Paused bool
}

func newState(assetA, assetB common.Address, feeBps, protocolFeeBps uint64, kind Kind) (*State, error) {
	if feeBps > MaxFeeBps {
		return nil, fmt.Errorf("%w: fee %d bps over maximum %d", ErrInvalidInput, feeBps, MaxFeeBps)
	}
	if protocolFeeBps > MaxFeeBps {
		return nil, fmt.Errorf("%w: protocol fee %d bps over maximum %d", ErrInvalidInput, protocolFeeBps, MaxFeeBps)
	}
	if assetA == assetB {
		return nil, fmt.Errorf("%w: identical assets", ErrInvalidInput)
	}
	return &State{
		ID:                DeriveID(assetA, assetB, feeBps, kind),
		AssetA:            assetA,
		AssetB:            assetB,
		FeeBps:            feeBps,
		ProtocolFeeBps:    protocolFeeBps,
		MaxPriceImpactBps: DefaultMaxImpactBps,
		AccFeePerShareA:   new(big.Int),
		AccFeePerShareB:   new(big.Int),
	}, nil
}

// clone deep-copies the state for all-or-nothing mutation.
func (s *State) clone() *State {
	c := *s
	c.AccFeePerShareA = new(big.Int).Set(s.AccFeePerShareA)
	c.AccFeePerShareB = new(big.Int).Set(s.AccFeePerShareB)
	return &c
}

func (s *State) restore(snap *State) {
	*s = *snap
}

func (s *State) requireActive() error {
	if s.Paused {
		return ErrPaused
	}
	return nil
}

// splitFee divides a trade fee into protocol and LP portions and credits the
// LP portion to the asset-A or asset-B accumulator. Call only with
// TotalLiquidity > 0.
func (s *State) splitFee(fee uint64, assetAIn bool) error {
	protocol, err := wmath.MulDiv(fee, s.ProtocolFeeBps, wmath.BasisPointDenominator)
	if err != nil {
		return fmt.Errorf("%w: protocol fee split", ErrOverflow)
	}
	lp := fee - protocol

	perShare := new(big.Int).SetUint64(lp)
	perShare.Mul(perShare, feeScaleBig)
	perShare.Div(perShare, new(big.Int).SetUint64(s.TotalLiquidity))

	if assetAIn {
		s.ProtocolFeeA += protocol
		s.FeeA += lp
		s.AccFeePerShareA.Add(s.AccFeePerShareA, perShare)
	} else {
		s.ProtocolFeeB += protocol
		s.FeeB += lp
		s.AccFeePerShareB.Add(s.AccFeePerShareB, perShare)
	}
	return nil
}

// mintInitial books the first deposit: the minimum-liquidity floor is
// retired to an unrecoverable holder and the remainder goes to the caller.
func (s *State) mintInitial(minted, amountA, amountB uint64) (uint64, error) {
	if minted < MinInitialMint {
		return 0, fmt.Errorf("%w: initial mint %d below minimum %d", ErrInsufficientLiquidity, minted, MinInitialMint)
	}
	s.ReserveA = amountA
	s.ReserveB = amountB
	s.TotalLiquidity = minted
	return minted - MinimumLiquidity, nil
}

// proportionalPayout returns reserve*shares/total for both assets.
func (s *State) proportionalPayout(shares uint64) (uint64, uint64, error) {
	if shares == 0 || shares > s.TotalLiquidity {
		return 0, 0, fmt.Errorf("%w: shares %d of %d", ErrInvalidInput, shares, s.TotalLiquidity)
	}
	outA, err := wmath.MulDiv(s.ReserveA, shares, s.TotalLiquidity)
	if err != nil {
		return 0, 0, fmt.Errorf("payout A: %w", ErrOverflow)
	}
	outB, err := wmath.MulDiv(s.ReserveB, shares, s.TotalLiquidity)
	if err != nil {
		return 0, 0, fmt.Errorf("payout B: %w", ErrOverflow)
	}
	return outA, outB, nil
}

// SwapParams carries the caller-side bounds for a swap.
type SwapParams struct {
	AmountIn       uint64
	MinOut         uint64
	MaxPriceScaled uint64 // slippage.PriceScale fixed point, 0 disables
	NowMillis      uint64
	DeadlineMillis uint64 // 0 disables
}

// SwapResult reports the applied trade.
type SwapResult struct {
	AmountIn  uint64
	AmountOut uint64
	Fee       uint64
	ImpactBps uint64
}

// Pool is the operation vocabulary shared by both curve variants.
type Pool interface {
	Kind() Kind
	State() *State
	// AddLiquidity books a deposit at the supplied time and returns the
	// minted shares. Callers pre-balance amounts to the pool ratio for the
	// constant-product variant; excess is not refunded.
	AddLiquidity(amountA, amountB, nowMillis uint64) (uint64, error)
	// RemoveShares burns shares and pays the proportional reserves.
	RemoveShares(shares uint64) (uint64, uint64, error)
	SwapAToB(p SwapParams) (SwapResult, error)
	SwapBToA(p SwapParams) (SwapResult, error)
	// QuoteAToB/QuoteBToA price a trade without mutating state.
	QuoteAToB(amountIn, nowMillis uint64) (uint64, error)
	QuoteBToA(amountIn, nowMillis uint64) (uint64, error)
}
