package storage

import (
	"context"

	"ammCore/internal/model"
)

// Storage defines a sink for replay output.
type Storage interface {
	PutPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error
	PutPositionSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error
	PutPoolMetrics(ctx context.Context, metrics []model.PoolMetrics) error
}
