package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fastpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrVersionConflict    = errors.New("record changed concurrently")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// ErrCommitOutcomeUnknown means a commit failed and its effect could not be
// confirmed either way. Re-read before retrying.
var ErrCommitOutcomeUnknown = errors.New("commit outcome unknown")

type OrderFilter struct {
	TableID string
	States  []domain.OrderState
}

// CheckoutCommit is everything a checkout writes. Implementations apply it
// all-or-nothing: the sale insert, every material decrement, the order
// moving to paid and the table release.
type CheckoutCommit struct {
	Sale         domain.Sale
	OrderID      string
	OrderVersion int64
	TableID      string
	Decrements   []domain.MaterialDecrement
	StockPolicy  domain.StockPolicy
	PaidAt       time.Time
}

type CheckoutResult struct {
	Sale       domain.Sale
	Order      domain.Order
	Shortfalls []domain.StockShortfall
}

type Repository interface {
	ListTables(ctx context.Context) ([]domain.Table, error)
	GetTable(ctx context.Context, tableID string) (*domain.Table, error)
	// AssignTable flips occupied from false to true in one conditional step.
	AssignTable(ctx context.Context, tableID string) (*domain.Table, error)
	ReleaseTable(ctx context.Context, tableID string) (*domain.Table, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)

	// CreateOrder requires the table to be occupied and free of other active orders.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	// UpdateOrder writes the order only if the stored version still equals
	// expectedVersion, and bumps the version on success.
	UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int64) (*domain.Order, error)

	CommitCheckout(ctx context.Context, commit CheckoutCommit) (*CheckoutResult, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
}

// InsufficientStockError wraps domain.ErrInsufficientStock with the materials that ran short.
func InsufficientStockError(shortfalls []domain.StockShortfall) error {
	parts := make([]string, 0, len(shortfalls))
	for _, sf := range shortfalls {
		parts = append(parts, fmt.Sprintf("%s needs %.3f, has %.3f", sf.MaterialID, sf.Requested, sf.OnHand))
	}
	return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, strings.Join(parts, "; "))
}
