package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammCore/internal/model"
	"ammCore/internal/pool"
	"ammCore/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	OpsPath           string
	SnapshotEvery     uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner replays an operation log against a pool registry and writes
// snapshots and metrics to storage.
type Runner struct {
	cfg        RunConfig
	registry   *pool.Registry
	storage    storage.Storage
	logger     *zap.Logger
	checkpoint *CheckpointStore
	metrics    map[pool.ID]*Accumulator
	lastTS     uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, registry *pool.Registry, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		registry:   registry,
		storage:    storageSink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		metrics:    make(map[pool.ID]*Accumulator),
	}
}

// Run executes the replay loop. Rejected operations are logged and counted
// but never stop the run; a malformed line is treated the same way. Because
// pool state lives in memory, a resumed run re-applies every operation up to
// the checkpoint to rebuild state, then starts emitting output again.
func (r *Runner) Run(ctx context.Context) error {
	if r.registry == nil {
		return fmt.Errorf("registry is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.OpsPath == "" {
		return fmt.Errorf("operations path is required")
	}

	var resumeAt uint64
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			resumeAt = cp.LastProcessedOp
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed_op", resumeAt))
		}
	}

	file, err := os.Open(r.cfg.OpsPath)
	if err != nil {
		return fmt.Errorf("open operations: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var index uint64
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		index++

		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			r.logger.Warn("skip malformed operation", zap.Uint64("op_index", index), zap.Error(err))
			continue
		}
		if op.Timestamp > r.lastTS {
			r.lastTS = op.Timestamp
		}

		poolID, err := r.apply(op, index)
		if err != nil {
			r.logger.Warn("operation rejected",
				zap.Uint64("op_index", index),
				zap.String("kind", op.Kind),
				zap.Error(err))
			if acc, ok := r.metrics[poolID]; ok {
				acc.AddRejected(index)
			}
			continue
		}

		if acc, ok := r.metrics[poolID]; ok && op.Kind != model.OpSwap {
			acc.Touch(index)
		}

		if index > resumeAt && r.cfg.SnapshotEvery > 0 && index%r.cfg.SnapshotEvery == 0 {
			if err := r.flush(ctx, index); err != nil {
				return fmt.Errorf("flush at op %d: %w", index, err)
			}
			if r.checkpoint != nil {
				if err := r.checkpoint.Save(index); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read operations: %w", err)
	}

	if index > resumeAt {
		if err := r.flush(ctx, index); err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(index); err != nil {
				return err
			}
		}
	}

	r.logger.Info("replay complete", zap.Uint64("operations", index), zap.Int("pools", len(r.metrics)))
	return nil
}

// apply dispatches one operation to the registry and reports which pool it
// touched. Position-addressed operations resolve their pool before the call
// because a full removal destroys the position.
func (r *Runner) apply(op model.Operation, index uint64) (pool.ID, error) {
	switch op.Kind {
	case model.OpCreateConstantProduct:
		id, posID, minted, err := r.registry.CreateConstantProduct(
			common.HexToAddress(op.AssetA), common.HexToAddress(op.AssetB),
			op.FeeBps, op.ProtocolFeeBps, op.AmountA, op.AmountB, op.Timestamp)
		if err != nil {
			return pool.ID{}, err
		}
		r.metrics[id] = NewAccumulator(id)
		r.metrics[id].Touch(index)
		r.logger.Info("pool created",
			zap.String("pool_id", id.Hex()),
			zap.String("kind", string(pool.KindConstantProduct)),
			zap.Uint64("position_id", posID),
			zap.Uint64("minted", minted))
		return id, nil

	case model.OpCreateStable:
		id, posID, minted, err := r.registry.CreateStable(
			common.HexToAddress(op.AssetA), common.HexToAddress(op.AssetB),
			op.FeeBps, op.ProtocolFeeBps, op.Amp, op.AmountA, op.AmountB, op.Timestamp)
		if err != nil {
			return pool.ID{}, err
		}
		r.metrics[id] = NewAccumulator(id)
		r.metrics[id].Touch(index)
		r.logger.Info("pool created",
			zap.String("pool_id", id.Hex()),
			zap.String("kind", string(pool.KindStable)),
			zap.Uint64("position_id", posID),
			zap.Uint64("minted", minted))
		return id, nil

	case model.OpOpenPosition:
		id := common.HexToHash(op.PoolID)
		_, _, err := r.registry.OpenPosition(id, op.AmountA, op.AmountB, op.Timestamp, op.Deadline)
		return id, err

	case model.OpIncreasePosition:
		id := r.positionPool(op.PositionID)
		_, err := r.registry.IncreasePosition(op.PositionID, op.AmountA, op.AmountB, op.Timestamp, op.Deadline)
		return id, err

	case model.OpRemoveLiquidity:
		id := r.positionPool(op.PositionID)
		_, _, err := r.registry.RemoveLiquidity(op.PositionID, op.MinA, op.MinB, op.Timestamp, op.Deadline)
		return id, err

	case model.OpRemovePartial:
		id := r.positionPool(op.PositionID)
		_, _, err := r.registry.RemoveLiquidityPartial(op.PositionID, op.Shares, op.MinA, op.MinB, op.Timestamp, op.Deadline)
		return id, err

	case model.OpSwap:
		id := common.HexToHash(op.PoolID)
		res, err := r.registry.Swap(id, op.AToB, pool.SwapParams{
			AmountIn:       op.AmountIn,
			MinOut:         op.MinOut,
			MaxPriceScaled: op.MaxPriceScaled,
			NowMillis:      op.Timestamp,
			DeadlineMillis: op.Deadline,
		})
		if err != nil {
			return id, err
		}
		if acc, ok := r.metrics[id]; ok {
			acc.AddSwap(res, op.AToB, index)
		}
		return id, nil

	case model.OpWithdrawFees:
		id := r.positionPool(op.PositionID)
		_, _, err := r.registry.WithdrawFees(op.PositionID)
		return id, err

	case model.OpPause:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.Pause(id)

	case model.OpUnpause:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.Unpause(id)

	case model.OpSetProtocolFee:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.SetProtocolFee(id, op.Bps)

	case model.OpSetMaxPriceImpact:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.SetMaxPriceImpact(id, op.Bps)

	case model.OpCollectProtocolFees:
		id := common.HexToHash(op.PoolID)
		_, _, err := r.registry.CollectProtocolFees(id)
		return id, err

	case model.OpStartAmpRamp:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.StartAmpRamp(id, op.TargetAmp, op.Timestamp, op.DurationMillis)

	case model.OpStopAmpRamp:
		id := common.HexToHash(op.PoolID)
		return id, r.registry.StopAmpRamp(id, op.Timestamp)

	default:
		return pool.ID{}, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (r *Runner) positionPool(posID uint64) pool.ID {
	pos, err := r.registry.Position(posID)
	if err != nil {
		return pool.ID{}
	}
	return pos.PoolID
}

// flush writes pool snapshots, position snapshots, and metrics for the
// current registry state.
func (r *Runner) flush(ctx context.Context, opIndex uint64) error {
	poolSnaps := r.poolSnapshots(opIndex)
	posSnaps, err := r.positionSnapshots(opIndex)
	if err != nil {
		return err
	}
	metrics := make([]model.PoolMetrics, 0, len(r.metrics))
	for _, id := range r.registry.PoolIDs() {
		if acc, ok := r.metrics[id]; ok {
			metrics = append(metrics, acc.Metrics())
		}
	}

	if err := r.putWithRetry(ctx, func(ctx context.Context) error {
		return r.storage.PutPoolSnapshots(ctx, poolSnaps)
	}); err != nil {
		return fmt.Errorf("store pool snapshots: %w", err)
	}
	if err := r.putWithRetry(ctx, func(ctx context.Context) error {
		return r.storage.PutPositionSnapshots(ctx, posSnaps)
	}); err != nil {
		return fmt.Errorf("store position snapshots: %w", err)
	}
	if err := r.putWithRetry(ctx, func(ctx context.Context) error {
		return r.storage.PutPoolMetrics(ctx, metrics)
	}); err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}

	r.logger.Info("snapshot flushed",
		zap.Uint64("op_index", opIndex),
		zap.Int("pools", len(poolSnaps)),
		zap.Int("positions", len(posSnaps)))
	return nil
}

func (r *Runner) poolSnapshots(opIndex uint64) []model.PoolSnapshot {
	ids := r.registry.PoolIDs()
	snaps := make([]model.PoolSnapshot, 0, len(ids))
	for _, id := range ids {
		p, err := r.registry.Pool(id)
		if err != nil {
			continue
		}
		s := p.State()
		snap := model.PoolSnapshot{
			PoolID:            id.Hex(),
			Kind:              string(p.Kind()),
			AssetA:            s.AssetA.Hex(),
			AssetB:            s.AssetB.Hex(),
			ReserveA:          s.ReserveA,
			ReserveB:          s.ReserveB,
			FeeA:              s.FeeA,
			FeeB:              s.FeeB,
			ProtocolFeeA:      s.ProtocolFeeA,
			ProtocolFeeB:      s.ProtocolFeeB,
			TotalLiquidity:    s.TotalLiquidity,
			FeeBps:            s.FeeBps,
			ProtocolFeeBps:    s.ProtocolFeeBps,
			AccFeePerShareA:   s.AccFeePerShareA.String(),
			AccFeePerShareB:   s.AccFeePerShareB.String(),
			Paused:            s.Paused,
			OperationIndex:    opIndex,
			SnapshotTimestamp: r.lastTS,
		}
		if sp, ok := p.(*pool.StablePool); ok {
			snap.Amp = sp.CurrentAmp(r.lastTS)
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

func (r *Runner) positionSnapshots(opIndex uint64) ([]model.PositionSnapshot, error) {
	ids := r.registry.PositionIDs()
	snaps := make([]model.PositionSnapshot, 0, len(ids))
	for _, posID := range ids {
		pos, err := r.registry.Position(posID)
		if err != nil {
			continue
		}
		view, err := r.registry.PositionView(posID)
		if err != nil {
			return nil, fmt.Errorf("position %d view: %w", posID, err)
		}
		snaps = append(snaps, model.PositionSnapshot{
			PositionID:       posID,
			PoolID:           view.PoolID.Hex(),
			Liquidity:        view.Liquidity,
			OriginalDepositA: pos.OriginalDepositA,
			OriginalDepositB: pos.OriginalDepositB,
			ValueA:           view.ValueA,
			ValueB:           view.ValueB,
			ClaimableA:       view.ClaimableA,
			ClaimableB:       view.ClaimableB,
			ILBps:            view.ILBps,
			OperationIndex:   opIndex,
		})
	}
	return snaps, nil
}

func (r *Runner) putWithRetry(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			r.logger.Warn("storage write failed", zap.Error(err))
		}
		return err
	})
}
