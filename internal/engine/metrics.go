package engine

import (
	"math/big"

	"ammCore/internal/model"
	"ammCore/internal/pool"
)

// Accumulator holds running totals for a single pool over a replay.
type Accumulator struct {
	PoolID        pool.ID
	SwapCount     uint64
	RejectedCount uint64
	VolumeA       *big.Int
	VolumeB       *big.Int
	LPFeeA        *big.Int
	LPFeeB        *big.Int
	LastOperation uint64
}

func NewAccumulator(poolID pool.ID) *Accumulator {
	return &Accumulator{
		PoolID:  poolID,
		VolumeA: big.NewInt(0),
		VolumeB: big.NewInt(0),
		LPFeeA:  big.NewInt(0),
		LPFeeB:  big.NewInt(0),
	}
}

// AddSwap records an executed trade. The input side carries the fee.
func (a *Accumulator) AddSwap(res pool.SwapResult, aToB bool, opIndex uint64) {
	in := new(big.Int).SetUint64(res.AmountIn)
	out := new(big.Int).SetUint64(res.AmountOut)
	fee := new(big.Int).SetUint64(res.Fee)
	if aToB {
		a.VolumeA.Add(a.VolumeA, in)
		a.VolumeB.Add(a.VolumeB, out)
		a.LPFeeA.Add(a.LPFeeA, fee)
	} else {
		a.VolumeB.Add(a.VolumeB, in)
		a.VolumeA.Add(a.VolumeA, out)
		a.LPFeeB.Add(a.LPFeeB, fee)
	}
	a.SwapCount++
	a.LastOperation = opIndex
}

func (a *Accumulator) AddRejected(opIndex uint64) {
	a.RejectedCount++
	a.LastOperation = opIndex
}

func (a *Accumulator) Touch(opIndex uint64) {
	a.LastOperation = opIndex
}

// Metrics renders the accumulator as a storage record.
func (a *Accumulator) Metrics() model.PoolMetrics {
	return model.PoolMetrics{
		PoolID:        a.PoolID.Hex(),
		SwapCount:     a.SwapCount,
		RejectedCount: a.RejectedCount,
		VolumeA:       a.VolumeA.String(),
		VolumeB:       a.VolumeB.String(),
		LPFeeA:        a.LPFeeA.String(),
		LPFeeB:        a.LPFeeB.String(),
		LastOperation: a.LastOperation,
	}
}
