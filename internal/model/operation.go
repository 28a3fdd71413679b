package model

// Operation kinds accepted by the replay engine.
const (
	OpCreateConstantProduct = "create_constant_product"
	OpCreateStable          = "create_stable"
	OpOpenPosition          = "open_position"
	OpIncreasePosition      = "increase_position"
	OpRemoveLiquidity       = "remove_liquidity"
	OpRemovePartial         = "remove_liquidity_partial"
	OpSwap                  = "swap"
	OpWithdrawFees          = "withdraw_fees"
	OpPause                 = "pause"
	OpUnpause               = "unpause"
	OpSetProtocolFee        = "set_protocol_fee"
	OpSetMaxPriceImpact     = "set_max_price_impact"
	OpCollectProtocolFees   = "collect_protocol_fees"
	OpStartAmpRamp          = "start_amp_ramp"
	OpStopAmpRamp           = "stop_amp_ramp"
)

// Operation is one replayable instruction against the registry, one JSON
// line per operation. Fields are populated per kind; unused ones stay zero.
type Operation struct {
	Kind string `json:"kind"`

	// Pool creation.
	AssetA         string `json:"asset_a,omitempty"`
	AssetB         string `json:"asset_b,omitempty"`
	FeeBps         uint64 `json:"fee_bps,omitempty"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps,omitempty"`
	Amp            uint64 `json:"amp,omitempty"`

	// Targets. Pools are addressed by hex ID, positions by handle.
	PoolID     string `json:"pool_id,omitempty"`
	PositionID uint64 `json:"position_id,omitempty"`

	// Liquidity and swap amounts.
	AmountA  uint64 `json:"amount_a,omitempty"`
	AmountB  uint64 `json:"amount_b,omitempty"`
	AmountIn uint64 `json:"amount_in,omitempty"`
	Shares   uint64 `json:"shares,omitempty"`
	AToB     bool   `json:"a_to_b,omitempty"`

	// Caller-side bounds.
	MinA           uint64 `json:"min_a,omitempty"`
	MinB           uint64 `json:"min_b,omitempty"`
	MinOut         uint64 `json:"min_out,omitempty"`
	MaxPriceScaled uint64 `json:"max_price_scaled,omitempty"`

	// Privileged parameters.
	Bps            uint64 `json:"bps,omitempty"`
	TargetAmp      uint64 `json:"target_amp,omitempty"`
	DurationMillis uint64 `json:"duration_millis,omitempty"`

	// Injected clock, milliseconds.
	Timestamp uint64 `json:"timestamp"`
	Deadline  uint64 `json:"deadline,omitempty"`
}
