package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
	"fastpos/backend/internal/xid"
)

func (s *Service) OpenOrder(ctx context.Context, req domain.OpenOrderRequest) (domain.Order, error) {
	tableID := strings.TrimSpace(req.TableID)
	if tableID == "" {
		return domain.Order{}, store.ErrNotFound
	}

	now := s.now()
	created, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:        xid.New("order"),
		TableID:   tableID,
		Items:     []domain.CartItem{},
		State:     domain.OrderOpen,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.audit(ctx, "order_open", "order", created.ID, zap.String("table_id", tableID))
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, tableID string, states []domain.OrderState) ([]domain.Order, error) {
	for _, state := range states {
		if !state.Valid() {
			return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidTransition, state)
		}
	}
	return s.repo.ListOrders(ctx, store.OrderFilter{TableID: strings.TrimSpace(tableID), States: states})
}

func (s *Service) AddItem(ctx context.Context, orderID string, req domain.AddItemRequest) (domain.Order, error) {
	if req.Quantity < 1 || req.Quantity > domain.MaxItemQuantity {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	productID := strings.TrimSpace(req.ProductID)
	products, err := s.repo.GetProductsByIDs(ctx, []string{productID})
	if err != nil {
		return domain.Order{}, err
	}
	product, ok := products[productID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, productID)
	}

	now := s.now()
	return s.mutateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.AddItem(product, req.Quantity, now)
	})
}

func (s *Service) RemoveItem(ctx context.Context, orderID string, productID string) (domain.Order, error) {
	now := s.now()
	productID = strings.TrimSpace(productID)
	return s.mutateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.RemoveItem(productID, now)
	})
}

// Submit sends the order to the kitchen. The notification is best effort.
func (s *Service) Submit(ctx context.Context, orderID string) (domain.Order, error) {
	now := s.now()
	order, err := s.mutateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.Submit(now)
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.audit(ctx, "order_submit", "order", order.ID, zap.Int("items", len(order.Items)))
	submitted := order.Clone()
	s.dispatch(ctx, "order_submitted", func(ctx context.Context) error {
		return s.publisher.OrderSubmitted(ctx, submitted)
	})
	return order, nil
}

func (s *Service) MarkReady(ctx context.Context, orderID string) (domain.Order, error) {
	now := s.now()
	order, err := s.mutateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.MarkReady(now)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.audit(ctx, "order_ready", "order", order.ID)
	return order, nil
}

func (s *Service) Cancel(ctx context.Context, orderID string) (domain.Order, error) {
	now := s.now()
	order, err := s.mutateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.Cancel(now)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.audit(ctx, "order_cancel", "order", order.ID)
	return order, nil
}

// mutateOrder applies one transition as a compare-and-swap on the order
// version. When another writer got there first the transition is replayed
// against the fresh copy: if it no longer applies, that state error is
// returned, otherwise the caller gets ErrVersionConflict and may retry.
func (s *Service) mutateOrder(ctx context.Context, orderID string, apply func(*domain.Order) error) (domain.Order, error) {
	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	next := current.Clone()
	if err := apply(&next); err != nil {
		return domain.Order{}, err
	}

	saved, err := s.repo.UpdateOrder(ctx, next, current.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		latest, rerr := s.repo.GetOrder(ctx, orderID)
		if rerr != nil {
			return domain.Order{}, rerr
		}
		replay := latest.Clone()
		if aerr := apply(&replay); aerr != nil {
			return domain.Order{}, aerr
		}
		return domain.Order{}, err
	}
	if err != nil {
		return domain.Order{}, err
	}
	return *saved, nil
}
