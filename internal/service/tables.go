package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

func (s *Service) ListTables(ctx context.Context) ([]domain.Table, error) {
	return s.repo.ListTables(ctx)
}

func (s *Service) AssignTable(ctx context.Context, tableID string) (domain.Table, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return domain.Table{}, store.ErrNotFound
	}
	table, err := s.repo.AssignTable(ctx, tableID)
	if err != nil {
		return domain.Table{}, err
	}
	s.audit(ctx, "table_assign", "table", table.ID)
	return *table, nil
}

// ReleaseTable frees a table regardless of the orders bound to it. Those
// orders are left as they are and reported in the log.
func (s *Service) ReleaseTable(ctx context.Context, tableID string) (domain.Table, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Table{}, err
	}
	table, err := s.repo.ReleaseTable(ctx, strings.TrimSpace(tableID))
	if err != nil {
		return domain.Table{}, err
	}

	orphaned, err := s.activeOrderIDs(ctx, table.ID)
	if err != nil {
		return domain.Table{}, err
	}
	if len(orphaned) > 0 {
		s.logger.Warn("table released with active orders",
			zap.String("table_id", table.ID),
			zap.Strings("orphaned_order_ids", orphaned),
		)
	}
	s.audit(ctx, "table_release", "table", table.ID)
	return *table, nil
}

// EmergencyRelease frees a table outside the checkout flow. Active orders
// still bound to it are cancelled only when cancelOpenOrders is set;
// otherwise their IDs are returned for the caller to resolve.
func (s *Service) EmergencyRelease(ctx context.Context, tableID string, cancelOpenOrders bool) (domain.EmergencyReleaseResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.EmergencyReleaseResult{}, err
	}
	table, err := s.repo.ReleaseTable(ctx, strings.TrimSpace(tableID))
	if err != nil {
		return domain.EmergencyReleaseResult{}, err
	}

	active, err := s.activeOrderIDs(ctx, table.ID)
	if err != nil {
		return domain.EmergencyReleaseResult{}, err
	}

	result := domain.EmergencyReleaseResult{
		Table:             *table,
		OrphanedOrderIDs:  make([]string, 0, len(active)),
		CancelledOrderIDs: make([]string, 0, len(active)),
	}
	for _, orderID := range active {
		if !cancelOpenOrders {
			result.OrphanedOrderIDs = append(result.OrphanedOrderIDs, orderID)
			continue
		}
		if _, err := s.Cancel(ctx, orderID); err != nil {
			s.logger.Warn("emergency release could not cancel order",
				zap.String("table_id", table.ID),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			result.OrphanedOrderIDs = append(result.OrphanedOrderIDs, orderID)
			continue
		}
		result.CancelledOrderIDs = append(result.CancelledOrderIDs, orderID)
	}

	s.logger.Warn("emergency table release",
		zap.String("table_id", table.ID),
		zap.Bool("cancel_open_orders", cancelOpenOrders),
		zap.Strings("orphaned_order_ids", result.OrphanedOrderIDs),
		zap.Strings("cancelled_order_ids", result.CancelledOrderIDs),
	)
	s.audit(ctx, "table_emergency_release", "table", table.ID,
		zap.Int("orphaned", len(result.OrphanedOrderIDs)),
		zap.Int("cancelled", len(result.CancelledOrderIDs)),
	)
	return result, nil
}

func (s *Service) activeOrderIDs(ctx context.Context, tableID string) ([]string, error) {
	orders, err := s.repo.ListOrders(ctx, store.OrderFilter{TableID: tableID, States: domain.ActiveOrderStates})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	return ids, nil
}
