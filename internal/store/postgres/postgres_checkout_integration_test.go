package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("FASTPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FASTPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if _, err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// seedFixture inserts a private table, material and product so the test
// does not depend on (or disturb) the seeded menu.
func seedFixture(t *testing.T, s *Store, dough float64) (tableID string, productID string, materialID string) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	tableID = fmt.Sprintf("table-it-%d", stamp)
	productID = fmt.Sprintf("pizza-it-%d", stamp)
	materialID = fmt.Sprintf("dough-it-%d", stamp)
	number := 1000 + int(stamp%1_000_000_000)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE table_id = $1`, tableID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE table_id = $1`, tableID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_materials WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE material_id = $1`, materialID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM dining_tables WHERE id = $1`, tableID)
	})

	if _, err := s.db.ExecContext(ctx, `INSERT INTO dining_tables (id, number, active) VALUES ($1, $2, true)`, tableID, number); err != nil {
		t.Fatalf("insert table: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO inventory_items (material_id, name, quantity_on_hand) VALUES ($1, 'Dough IT', $2)`, materialID, dough); err != nil {
		t.Fatalf("insert material: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO products (id, name, category, unit_price) VALUES ($1, 'Pizza IT', 'pizzas', 9000)`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO product_materials (product_id, material_id, quantity_per_unit) VALUES ($1, $2, 1.5)`, productID, materialID); err != nil {
		t.Fatalf("insert requirement: %v", err)
	}
	return tableID, productID, materialID
}

func TestAssignTableConcurrentlyHasSingleWinner(t *testing.T) {
	s := openTestStore(t)
	tableID, _, _ := seedFixture(t, s, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AssignTable(context.Background(), tableID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrAlreadyOccupied) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful assign, got %d", wins)
	}
}

func TestCommitCheckoutDecrementsStockAndReleasesTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tableID, productID, materialID := seedFixture(t, s, 10)

	if _, err := s.AssignTable(ctx, tableID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	orderID := "order-" + tableID
	created, err := s.CreateOrder(ctx, domain.Order{ID: orderID, TableID: tableID, State: domain.OrderOpen, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	next := created.Clone()
	next.Items = []domain.CartItem{{ProductID: productID, Name: "Pizza IT", UnitPrice: 9000, Quantity: 2}}
	if err := next.Submit(now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submitted, err := s.UpdateOrder(ctx, next, created.Version)
	if err != nil {
		t.Fatalf("update order: %v", err)
	}

	sale := domain.Sale{
		ID:                 "sale-" + tableID,
		OrderID:            orderID,
		TableID:            tableID,
		CashierID:          "cashier-it",
		Items:              []domain.SaleLine{{ProductID: productID, Name: "Pizza IT", UnitPrice: 9000, Quantity: 2, Subtotal: 18000}},
		GrossTotal:         18000,
		TaxRate:            decimal.RequireFromString("0.19"),
		BaseAmount:         15126,
		TaxAmount:          2874,
		DiscountPercentage: decimal.Zero,
		NetTotal:           18000,
		PaymentMethod:      domain.PaymentCash,
		AmountTendered:     20000,
		Change:             2000,
		CreatedAt:          now,
	}
	commit := store.CheckoutCommit{
		Sale:         sale,
		OrderID:      orderID,
		OrderVersion: submitted.Version,
		TableID:      tableID,
		Decrements:   []domain.MaterialDecrement{{MaterialID: materialID, Quantity: 3.0}},
		StockPolicy:  domain.StockStrict,
		PaidAt:       now,
	}
	if _, err := s.CommitCheckout(ctx, commit); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var qty float64
	if err := s.db.QueryRowContext(ctx, `SELECT quantity_on_hand FROM inventory_items WHERE material_id = $1`, materialID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 7.0 {
		t.Fatalf("expected stock 7.0, got %v", qty)
	}
	table, err := s.GetTable(ctx, tableID)
	if err != nil || table.Occupied {
		t.Fatalf("expected released table, got %+v (%v)", table, err)
	}
	stored, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.NetTotal != 18000 || stored.Change != 2000 || !stored.TaxRate.Equal(sale.TaxRate) {
		t.Fatalf("sale changed on the way through postgres: %+v", stored)
	}

	// Re-delivering the same checkout must not create a second sale.
	commit.Sale.ID = "sale-again-" + tableID
	if _, err := s.CommitCheckout(ctx, commit); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on replay, got %v", err)
	}
}
