package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammCore/internal/model"
)

// JsonlStorage appends replay records to JSONL files under one directory:
// pool_snapshots.jsonl, position_snapshots.jsonl, pool_metrics.jsonl.
type JsonlStorage struct {
	dir string
	mu  sync.Mutex
}

func NewJsonlStorage(dir string) *JsonlStorage {
	return &JsonlStorage{dir: dir}
}

func (s *JsonlStorage) PutPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	return appendLines(s, "pool_snapshots.jsonl", len(snapshots), func(i int) any { return snapshots[i] })
}

func (s *JsonlStorage) PutPositionSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error {
	return appendLines(s, "position_snapshots.jsonl", len(snapshots), func(i int) any { return snapshots[i] })
}

func (s *JsonlStorage) PutPoolMetrics(ctx context.Context, metrics []model.PoolMetrics) error {
	return appendLines(s, "pool_metrics.jsonl", len(metrics), func(i int) any { return metrics[i] })
}

func appendLines(s *JsonlStorage, name string, n int, record func(int) any) error {
	if n == 0 {
		return nil
	}

	if s.dir != "." && s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i := 0; i < n; i++ {
		line, err := json.Marshal(record(i))
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
