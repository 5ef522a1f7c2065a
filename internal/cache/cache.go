package cache

import (
	"context"
	"time"

	"fastpos/backend/internal/domain"
)

// SnapshotKey identifies one dashboard snapshot: the local business day it
// was computed for (YYYY-MM-DD) and the reporting window length in days.
type SnapshotKey struct {
	Day        string
	WindowDays int
}

// MetricsCache holds recent dashboard snapshots. It is a read-side
// convenience only and never consulted by checkout.
type MetricsCache interface {
	Get(ctx context.Context, key SnapshotKey) (*domain.MetricsSnapshot, bool, error)
	Set(ctx context.Context, key SnapshotKey, value *domain.MetricsSnapshot, ttl time.Duration) error
}

type NoopMetricsCache struct{}

func (NoopMetricsCache) Get(_ context.Context, _ SnapshotKey) (*domain.MetricsSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopMetricsCache) Set(_ context.Context, _ SnapshotKey, _ *domain.MetricsSnapshot, _ time.Duration) error {
	return nil
}
