package service

import (
	"context"

	"fastpos/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListInventory(ctx)
}

// Metrics returns the dashboard snapshot. It may lag behind the latest
// sales by up to the aggregator's cache TTL.
func (s *Service) Metrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	return s.metrics.Snapshot(ctx, s.now())
}
