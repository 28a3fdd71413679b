package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammCore/internal/model"
)

// Store provides Postgres persistence for replay output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutPoolSnapshots inserts or updates pool snapshots keyed by pool and
// operation index.
func (s *Store) PutPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				pool_id, kind, asset_a, asset_b, reserve_a, reserve_b,
				fee_a, fee_b, protocol_fee_a, protocol_fee_b, total_liquidity,
				fee_bps, protocol_fee_bps, amp, acc_fee_per_share_a, acc_fee_per_share_b,
				paused, operation_index, snapshot_timestamp, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (pool_id, operation_index)
			DO UPDATE SET
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				protocol_fee_a = EXCLUDED.protocol_fee_a,
				protocol_fee_b = EXCLUDED.protocol_fee_b,
				total_liquidity = EXCLUDED.total_liquidity,
				protocol_fee_bps = EXCLUDED.protocol_fee_bps,
				amp = EXCLUDED.amp,
				acc_fee_per_share_a = EXCLUDED.acc_fee_per_share_a,
				acc_fee_per_share_b = EXCLUDED.acc_fee_per_share_b,
				paused = EXCLUDED.paused,
				snapshot_timestamp = EXCLUDED.snapshot_timestamp,
				updated_at = now()
		`,
			snap.PoolID,
			snap.Kind,
			snap.AssetA,
			snap.AssetB,
			int64(snap.ReserveA),
			int64(snap.ReserveB),
			int64(snap.FeeA),
			int64(snap.FeeB),
			int64(snap.ProtocolFeeA),
			int64(snap.ProtocolFeeB),
			int64(snap.TotalLiquidity),
			int64(snap.FeeBps),
			int64(snap.ProtocolFeeBps),
			int64(snap.Amp),
			snap.AccFeePerShareA,
			snap.AccFeePerShareB,
			snap.Paused,
			int64(snap.OperationIndex),
			int64(snap.SnapshotTimestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

// PutPositionSnapshots inserts or updates position snapshots.
func (s *Store) PutPositionSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO position_snapshots (
				position_id, pool_id, liquidity, original_deposit_a, original_deposit_b,
				value_a, value_b, claimable_a, claimable_b, il_bps, operation_index,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			ON CONFLICT (position_id, operation_index)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				original_deposit_a = EXCLUDED.original_deposit_a,
				original_deposit_b = EXCLUDED.original_deposit_b,
				value_a = EXCLUDED.value_a,
				value_b = EXCLUDED.value_b,
				claimable_a = EXCLUDED.claimable_a,
				claimable_b = EXCLUDED.claimable_b,
				il_bps = EXCLUDED.il_bps,
				updated_at = now()
		`,
			int64(snap.PositionID),
			snap.PoolID,
			int64(snap.Liquidity),
			int64(snap.OriginalDepositA),
			int64(snap.OriginalDepositB),
			int64(snap.ValueA),
			int64(snap.ValueB),
			int64(snap.ClaimableA),
			int64(snap.ClaimableB),
			int64(snap.ILBps),
			int64(snap.OperationIndex),
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

// PutPoolMetrics inserts or updates per-pool replay metrics.
func (s *Store) PutPoolMetrics(ctx context.Context, metrics []model.PoolMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_metrics (
				pool_id, swap_count, rejected_count, volume_a, volume_b,
				lp_fee_a, lp_fee_b, last_operation, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				swap_count = EXCLUDED.swap_count,
				rejected_count = EXCLUDED.rejected_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				lp_fee_a = EXCLUDED.lp_fee_a,
				lp_fee_b = EXCLUDED.lp_fee_b,
				last_operation = EXCLUDED.last_operation,
				updated_at = now()
		`,
			m.PoolID,
			int64(m.SwapCount),
			int64(m.RejectedCount),
			m.VolumeA,
			m.VolumeB,
			m.LPFeeA,
			m.LPFeeB,
			int64(m.LastOperation),
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
