package model

// PoolSnapshot is a point-in-time record of a pool's state for storage.
// Accumulators are decimal strings: they outgrow uint64 by design.
type PoolSnapshot struct {
	PoolID            string `json:"pool_id"`
	Kind              string `json:"kind"`
	AssetA            string `json:"asset_a"`
	AssetB            string `json:"asset_b"`
	ReserveA          uint64 `json:"reserve_a"`
	ReserveB          uint64 `json:"reserve_b"`
	FeeA              uint64 `json:"fee_a"`
	FeeB              uint64 `json:"fee_b"`
	ProtocolFeeA      uint64 `json:"protocol_fee_a"`
	ProtocolFeeB      uint64 `json:"protocol_fee_b"`
	TotalLiquidity    uint64 `json:"total_liquidity"`
	FeeBps            uint64 `json:"fee_bps"`
	ProtocolFeeBps    uint64 `json:"protocol_fee_bps"`
	Amp               uint64 `json:"amp,omitempty"`
	AccFeePerShareA   string `json:"acc_fee_per_share_a"`
	AccFeePerShareB   string `json:"acc_fee_per_share_b"`
	Paused            bool   `json:"paused"`
	OperationIndex    uint64 `json:"operation_index"`
	SnapshotTimestamp uint64 `json:"snapshot_timestamp"`
}

// PositionSnapshot records a position's ledger entry and live view.
type PositionSnapshot struct {
	PositionID       uint64 `json:"position_id"`
	PoolID           string `json:"pool_id"`
	Liquidity        uint64 `json:"liquidity"`
	OriginalDepositA uint64 `json:"original_deposit_a"`
	OriginalDepositB uint64 `json:"original_deposit_b"`
	ValueA           uint64 `json:"value_a"`
	ValueB           uint64 `json:"value_b"`
	ClaimableA       uint64 `json:"claimable_a"`
	ClaimableB       uint64 `json:"claimable_b"`
	ILBps            uint64 `json:"il_bps"`
	OperationIndex   uint64 `json:"operation_index"`
}

// PoolMetrics aggregates replay activity per pool. Volume and fee totals are
// decimal strings so long replays cannot overflow the record.
type PoolMetrics struct {
	PoolID        string `json:"pool_id"`
	SwapCount     uint64 `json:"swap_count"`
	RejectedCount uint64 `json:"rejected_count"`
	VolumeA       string `json:"volume_a"`
	VolumeB       string `json:"volume_b"`
	LPFeeA        string `json:"lp_fee_a"`
	LPFeeB        string `json:"lp_fee_b"`
	LastOperation uint64 `json:"last_operation"`
}
