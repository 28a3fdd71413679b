package pool

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/slippage"
	"ammCore/internal/wmath"
)

// Registry owns the pools and the position ledger and serializes every
// mutation behind one lock: an operation either fully applies or leaves no
// observable change. Privileged entry points assume the caller was
// authorized externally; the registry does not interpret authority.
type Registry struct {
	mu        sync.Mutex
	pools     map[ID]Pool
	positions map[uint64]*Position
	nextPos   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		pools:     make(map[ID]Pool),
		positions: make(map[uint64]*Position),
		nextPos:   1,
	}
}

// CreateConstantProduct registers a constant-product pool together with its
// first deposit, atomically: a failed deposit leaves no pool behind.
// Returns the pool ID, the opened position handle, and the minted shares.
func (r *Registry) CreateConstantProduct(assetA, assetB common.Address, feeBps, protocolFeeBps, amountA, amountB, nowMillis uint64) (ID, uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := NewConstantProduct(assetA, assetB, feeBps, protocolFeeBps)
	if err != nil {
		return ID{}, 0, 0, err
	}
	return r.register(p, amountA, amountB, nowMillis)
}

// CreateStable registers a stable pool together with its first deposit.
func (r *Registry) CreateStable(assetA, assetB common.Address, feeBps, protocolFeeBps, amp, amountA, amountB, nowMillis uint64) (ID, uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := NewStable(assetA, assetB, feeBps, protocolFeeBps, amp)
	if err != nil {
		return ID{}, 0, 0, err
	}
	return r.register(p, amountA, amountB, nowMillis)
}

func (r *Registry) register(p Pool, amountA, amountB, nowMillis uint64) (ID, uint64, uint64, error) {
	id := p.State().ID
	if _, exists := r.pools[id]; exists {
		return ID{}, 0, 0, fmt.Errorf("%w: pool %s already exists", ErrInvalidInput, id)
	}
	minted, err := p.AddLiquidity(amountA, amountB, nowMillis)
	if err != nil {
		return ID{}, 0, 0, err
	}
	pos, err := NewPosition(p.State(), minted, amountA, amountB)
	if err != nil {
		return ID{}, 0, 0, err
	}
	r.pools[id] = p
	posID := r.nextPos
	r.nextPos++
	r.positions[posID] = pos
	return id, posID, minted, nil
}

// OpenPosition deposits into an existing pool and opens a fresh position.
func (r *Registry) OpenPosition(poolID ID, amountA, amountB, nowMillis, deadlineMillis uint64) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(poolID)
	if err != nil {
		return 0, 0, err
	}
	if err := slippage.CheckDeadline(nowMillis, deadlineMillis); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrExpired, err)
	}
	minted, err := p.AddLiquidity(amountA, amountB, nowMillis)
	if err != nil {
		return 0, 0, err
	}
	pos, err := NewPosition(p.State(), minted, amountA, amountB)
	if err != nil {
		// AddLiquidity succeeded with minted > 0, so this cannot fire;
		// guard anyway rather than leave shares orphaned.
		return 0, 0, err
	}
	posID := r.nextPos
	r.nextPos++
	r.positions[posID] = pos
	return posID, minted, nil
}

// IncreasePosition deposits more into an existing position. Excess of an
// over-supplied asset is not refunded on the constant-product curve; callers
// pre-balance to the pool ratio.
func (r *Registry) IncreasePosition(posID uint64, amountA, amountB, nowMillis, deadlineMillis uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, p, err := r.positionAndPool(posID)
	if err != nil {
		return 0, err
	}
	if err := slippage.CheckDeadline(nowMillis, deadlineMillis); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExpired, err)
	}

	s := p.State()
	poolSnap := s.clone()
	minted, err := p.AddLiquidity(amountA, amountB, nowMillis)
	if err != nil {
		return 0, err
	}
	if err := pos.Increase(s, minted, amountA, amountB); err != nil {
		s.restore(poolSnap)
		return 0, err
	}
	return minted, nil
}

// RemoveLiquidity burns the whole position: proportional reserves plus all
// unclaimed fees, then destroys it. Aborts if either total payout is below
// its minimum.
func (r *Registry) RemoveLiquidity(posID uint64, minA, minB, nowMillis, deadlineMillis uint64) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, p, err := r.positionAndPool(posID)
	if err != nil {
		return 0, 0, err
	}
	if err := slippage.CheckDeadline(nowMillis, deadlineMillis); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrExpired, err)
	}

	s := p.State()
	poolSnap := s.clone()
	posSnap := pos.clone()

	outA, outB, err := p.RemoveShares(pos.Liquidity)
	if err != nil {
		return 0, 0, err
	}
	claimA, claimB, err := pos.WithdrawFees(s)
	if err != nil {
		s.restore(poolSnap)
		return 0, 0, err
	}

	totalA, errA := wmath.AddU64(outA, claimA)
	totalB, errB := wmath.AddU64(outB, claimB)
	if errA != nil || errB != nil {
		s.restore(poolSnap)
		pos.restoreFrom(posSnap)
		return 0, 0, fmt.Errorf("%w: payout", ErrOverflow)
	}
	if totalA < minA || totalB < minB {
		s.restore(poolSnap)
		pos.restoreFrom(posSnap)
		return 0, 0, fmt.Errorf("%w: payout (%d, %d) below minimum (%d, %d)",
			ErrInsufficientLiquidity, totalA, totalB, minA, minB)
	}

	delete(r.positions, posID)
	return totalA, totalB, nil
}

// RemoveLiquidityPartial burns part of a position: proportional reserves for
// the removed shares plus that fraction's unclaimed fees, with the stored
// fee debt transferred proportionally.
func (r *Registry) RemoveLiquidityPartial(posID, shares, minA, minB, nowMillis, deadlineMillis uint64) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, p, err := r.positionAndPool(posID)
	if err != nil {
		return 0, 0, err
	}
	if err := slippage.CheckDeadline(nowMillis, deadlineMillis); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrExpired, err)
	}
	if shares >= pos.Liquidity {
		return 0, 0, fmt.Errorf("%w: partial removal of %d from %d shares", ErrInvalidInput, shares, pos.Liquidity)
	}

	s := p.State()
	poolSnap := s.clone()
	posSnap := pos.clone()

	outA, outB, err := p.RemoveShares(shares)
	if err != nil {
		return 0, 0, err
	}
	claimA, claimB, err := pos.Decrease(s, shares)
	if err != nil {
		s.restore(poolSnap)
		return 0, 0, err
	}

	totalA, errA := wmath.AddU64(outA, claimA)
	totalB, errB := wmath.AddU64(outB, claimB)
	if errA != nil || errB != nil {
		s.restore(poolSnap)
		pos.restoreFrom(posSnap)
		return 0, 0, fmt.Errorf("%w: payout", ErrOverflow)
	}
	if totalA < minA || totalB < minB {
		s.restore(poolSnap)
		pos.restoreFrom(posSnap)
		return 0, 0, fmt.Errorf("%w: payout (%d, %d) below minimum (%d, %d)",
			ErrInsufficientLiquidity, totalA, totalB, minA, minB)
	}
	return totalA, totalB, nil
}

// Swap executes a trade against a pool.
func (r *Registry) Swap(poolID ID, aToB bool, params SwapParams) (SwapResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(poolID)
	if err != nil {
		return SwapResult{}, err
	}
	if aToB {
		return p.SwapAToB(params)
	}
	return p.SwapBToA(params)
}

// WithdrawFees pays a position's claimable fees and resyncs its debt.
func (r *Registry) WithdrawFees(posID uint64) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, p, err := r.positionAndPool(posID)
	if err != nil {
		return 0, 0, err
	}
	if err := p.State().requireActive(); err != nil {
		return 0, 0, err
	}
	return pos.WithdrawFees(p.State())
}

// Pause halts all mutating operations on a pool.
func (r *Registry) Pause(poolID ID) error {
	return r.withPool(poolID, func(p Pool) error {
		p.State().Paused = true
		return nil
	})
}

// Unpause resumes a paused pool.
func (r *Registry) Unpause(poolID ID) error {
	return r.withPool(poolID, func(p Pool) error {
		p.State().Paused = false
		return nil
	})
}

// SetProtocolFee changes a pool's protocol fee tier.
func (r *Registry) SetProtocolFee(poolID ID, bps uint64) error {
	return r.withPool(poolID, func(p Pool) error {
		if bps > MaxFeeBps {
			return fmt.Errorf("%w: protocol fee %d bps over maximum %d", ErrInvalidInput, bps, uint64(MaxFeeBps))
		}
		p.State().ProtocolFeeBps = bps
		return nil
	})
}

// SetMaxPriceImpact changes a pool's price-impact cap.
func (r *Registry) SetMaxPriceImpact(poolID ID, bps uint64) error {
	return r.withPool(poolID, func(p Pool) error {
		if bps == 0 || bps > wmath.BasisPointDenominator {
			return fmt.Errorf("%w: impact cap %d bps", ErrInvalidInput, bps)
		}
		p.State().MaxPriceImpactBps = bps
		return nil
	})
}

// CollectProtocolFees drains the accrued protocol fee balances.
func (r *Registry) CollectProtocolFees(poolID ID) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(poolID)
	if err != nil {
		return 0, 0, err
	}
	s := p.State()
	a, b := s.ProtocolFeeA, s.ProtocolFeeB
	s.ProtocolFeeA = 0
	s.ProtocolFeeB = 0
	return a, b, nil
}

// StartAmpRamp begins an amplification ramp on a stable pool.
func (r *Registry) StartAmpRamp(poolID ID, target, nowMillis, durationMillis uint64) error {
	return r.withPool(poolID, func(p Pool) error {
		sp, ok := p.(*StablePool)
		if !ok {
			return fmt.Errorf("%w: pool %s has no amplification", ErrInvalidInput, poolID)
		}
		return sp.StartRamp(target, nowMillis, durationMillis)
	})
}

// StopAmpRamp freezes an in-progress ramp at its interpolated value.
func (r *Registry) StopAmpRamp(poolID ID, nowMillis uint64) error {
	return r.withPool(poolID, func(p Pool) error {
		sp, ok := p.(*StablePool)
		if !ok {
			return fmt.Errorf("%w: pool %s has no amplification", ErrInvalidInput, poolID)
		}
		sp.StopRamp(nowMillis)
		return nil
	})
}

// Quote prices a swap without mutating state.
func (r *Registry) Quote(poolID ID, aToB bool, amountIn, nowMillis uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(poolID)
	if err != nil {
		return 0, err
	}
	if aToB {
		return p.QuoteAToB(amountIn, nowMillis)
	}
	return p.QuoteBToA(amountIn, nowMillis)
}

// PositionView builds a read-only value/fee/impermanent-loss view.
func (r *Registry) PositionView(posID uint64) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, p, err := r.positionAndPool(posID)
	if err != nil {
		return View{}, err
	}
	return BuildView(p.State(), pos)
}

// Pool returns a registered pool by ID.
func (r *Registry) Pool(poolID ID) (Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool(poolID)
}

// Position returns a position by handle.
func (r *Registry) Position(posID uint64) (*Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[posID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown position %d", ErrInvalidInput, posID)
	}
	return pos, nil
}

// PoolIDs returns the registered pool IDs in stable order.
func (r *Registry) PoolIDs() []ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ID, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Hex() < ids[j].Hex()
	})
	return ids
}

// PositionIDs returns the live position handles in ascending order.
func (r *Registry) PositionIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.positions))
	for id := range r.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) pool(poolID ID) (Pool, error) {
	p, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pool %s", ErrInvalidInput, poolID)
	}
	return p, nil
}

func (r *Registry) positionAndPool(posID uint64) (*Position, Pool, error) {
	pos, ok := r.positions[posID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown position %d", ErrInvalidInput, posID)
	}
	p, ok := r.pools[pos.PoolID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: position %d references unknown pool %s", ErrInvalidInput, posID, pos.PoolID)
	}
	return pos, p, nil
}

func (r *Registry) withPool(poolID ID, fn func(Pool) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(poolID)
	if err != nil {
		return err
	}
	return fn(p)
}

// clone deep-copies a position for all-or-nothing mutation.
func (pos *Position) clone() *Position {
	c := *pos
	c.FeeDebtA = new(big.Int).Set(pos.FeeDebtA)
	c.FeeDebtB = new(big.Int).Set(pos.FeeDebtB)
	c.EntryPriceRatio = new(big.Int).Set(pos.EntryPriceRatio)
	return &c
}

func (pos *Position) restoreFrom(snap *Position) {
	*pos = *snap
}
