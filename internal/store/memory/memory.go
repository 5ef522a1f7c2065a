package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

// Store keeps every record behind one RWMutex. Each repository call is a
// single critical section, which gives AssignTable and CommitCheckout the
// same isolation the postgres store gets from row locks.
type Store struct {
	mu           sync.RWMutex
	tables       map[string]domain.Table
	products     map[string]domain.Product
	inventory    map[string]domain.InventoryItem
	orders       map[string]domain.Order
	sales        map[string]domain.Sale
	saleByOrder  map[string]string
	salesOrdered []string
}

type Seed struct {
	Tables    []domain.Table
	Products  []domain.Product
	Inventory []domain.InventoryItem
}

func New(seed Seed) *Store {
	s := &Store{
		tables:      make(map[string]domain.Table, len(seed.Tables)),
		products:    make(map[string]domain.Product, len(seed.Products)),
		inventory:   make(map[string]domain.InventoryItem, len(seed.Inventory)),
		orders:      make(map[string]domain.Order),
		sales:       make(map[string]domain.Sale),
		saleByOrder: make(map[string]string),
	}
	for _, t := range seed.Tables {
		s.tables[t.ID] = t
	}
	for _, p := range seed.Products {
		s.products[p.ID] = cloneProduct(p)
	}
	for _, item := range seed.Inventory {
		s.inventory[item.MaterialID] = item
	}
	return s
}

func NewSeeded() *Store {
	return New(DefaultSeed())
}

// DefaultSeed is a small pizzeria menu used for local runs and tests.
func DefaultSeed() Seed {
	tables := make([]domain.Table, 0, 8)
	for n := 1; n <= 8; n++ {
		tables = append(tables, domain.Table{ID: fmt.Sprintf("table-%02d", n), Number: n, Active: n != 8})
	}

	req := func(pairs ...any) []domain.MaterialRequirement {
		out := make([]domain.MaterialRequirement, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			out = append(out, domain.MaterialRequirement{MaterialID: pairs[i].(string), QuantityPerUnit: pairs[i+1].(float64)})
		}
		return out
	}

	products := []domain.Product{
		{ID: "pizza-margarita", Name: "Pizza Margarita", UnitPrice: 12000, Category: "pizzas", Active: true,
			RequiredMaterials: req("dough", 1.5, "tomato-sauce", 0.2, "mozzarella", 0.25)},
		{ID: "pizza-pepperoni", Name: "Pizza Pepperoni", UnitPrice: 14000, Category: "pizzas", Active: true,
			RequiredMaterials: req("dough", 1.5, "tomato-sauce", 0.2, "mozzarella", 0.25, "pepperoni", 0.1)},
		{ID: "pizza-hawaiana", Name: "Pizza Hawaiana", UnitPrice: 13000, Category: "pizzas", Active: true,
			RequiredMaterials: req("dough", 1.5, "tomato-sauce", 0.2, "mozzarella", 0.25, "ham", 0.1, "pineapple", 0.15)},
		{ID: "pizza-vegetariana", Name: "Pizza Vegetariana", UnitPrice: 12500, Category: "pizzas", Active: true,
			RequiredMaterials: req("dough", 1.5, "tomato-sauce", 0.2, "mozzarella", 0.2, "vegetables", 0.3)},
		{ID: "soda-500", Name: "Gaseosa 500ml", UnitPrice: 3000, Category: "bebidas", Active: true,
			RequiredMaterials: req("soda-bottle", 1.0)},
		{ID: "water", Name: "Agua Mineral", UnitPrice: 2000, Category: "bebidas", Active: true,
			RequiredMaterials: req("water-bottle", 1.0)},
		{ID: "craft-beer", Name: "Cerveza Artesanal", UnitPrice: 5000, Category: "bebidas", Active: true,
			RequiredMaterials: req("beer-bottle", 1.0)},
		{ID: "tiramisu", Name: "Tiramisú", UnitPrice: 6000, Category: "postres", Active: true,
			RequiredMaterials: req("tiramisu-portion", 1.0)},
		{ID: "brownie", Name: "Brownie con Helado", UnitPrice: 7000, Category: "postres", Active: true,
			RequiredMaterials: req("brownie-portion", 1.0, "ice-cream", 0.1)},
		{ID: "combo-familiar", Name: "Combo Familiar", UnitPrice: 28000, Category: "combos", Active: true,
			RequiredMaterials: req("dough", 3.0, "tomato-sauce", 0.4, "mozzarella", 0.5, "soda-bottle", 2.0)},
	}

	inventory := []domain.InventoryItem{
		{MaterialID: "dough", Name: "Masa", Unit: "portion", QuantityOnHand: 120},
		{MaterialID: "tomato-sauce", Name: "Salsa de tomate", Unit: "l", QuantityOnHand: 20},
		{MaterialID: "mozzarella", Name: "Mozzarella", Unit: "kg", QuantityOnHand: 25},
		{MaterialID: "pepperoni", Name: "Pepperoni", Unit: "kg", QuantityOnHand: 6},
		{MaterialID: "ham", Name: "Jamón", Unit: "kg", QuantityOnHand: 5},
		{MaterialID: "pineapple", Name: "Piña", Unit: "kg", QuantityOnHand: 4},
		{MaterialID: "vegetables", Name: "Vegetales", Unit: "kg", QuantityOnHand: 8},
		{MaterialID: "soda-bottle", Name: "Gaseosa 500ml", Unit: "unit", QuantityOnHand: 100},
		{MaterialID: "water-bottle", Name: "Agua Mineral", Unit: "unit", QuantityOnHand: 120},
		{MaterialID: "beer-bottle", Name: "Cerveza Artesanal", Unit: "unit", QuantityOnHand: 60},
		{MaterialID: "tiramisu-portion", Name: "Tiramisú", Unit: "portion", QuantityOnHand: 25},
		{MaterialID: "brownie-portion", Name: "Brownie", Unit: "portion", QuantityOnHand: 20},
		{MaterialID: "ice-cream", Name: "Helado", Unit: "l", QuantityOnHand: 5},
	}

	return Seed{Tables: tables, Products: products, Inventory: inventory}
}

func (s *Store) ListTables(ctx context.Context) ([]domain.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tables := make([]domain.Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	return tables, nil
}

func (s *Store) GetTable(ctx context.Context, tableID string) (*domain.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.tables[tableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) AssignTable(ctx context.Context, tableID string) (*domain.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.tables[tableID]
	switch {
	case !ok:
		return nil, store.ErrNotFound
	case !t.Active:
		return nil, domain.ErrInactive
	case t.Occupied:
		return nil, domain.ErrAlreadyOccupied
	}
	t.Occupied = true
	s.tables[tableID] = t
	return &t, nil
}

func (s *Store) ReleaseTable(ctx context.Context, tableID string) (*domain.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.tables[tableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.Occupied = false
	s.tables[tableID] = t
	return &t, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, cloneProduct(p))
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category == products[j].Category {
			return products[i].Name < products[j].Name
		}
		return products[i].Category < products[j].Category
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].MaterialID < items[j].MaterialID })
	return items, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" || order.State != domain.OrderOpen {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.tables[order.TableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !t.Active {
		return nil, domain.ErrInactive
	}
	if !t.Occupied {
		return nil, domain.ErrTableNotOccupiedByCaller
	}
	for _, existing := range s.orders {
		if existing.TableID == order.TableID && !existing.State.Terminal() {
			return nil, domain.ErrTableHasActiveOrder
		}
	}
	if _, dup := s.orders[order.ID]; dup {
		return nil, store.ErrInvalidTransaction
	}

	order.Version = 1
	s.orders[order.ID] = order.Clone()
	out := order.Clone()
	return &out, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := order.Clone()
	return &out, nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0)
	for _, order := range s.orders {
		if filter.TableID != "" && order.TableID != filter.TableID {
			continue
		}
		if len(filter.States) > 0 && !slices.Contains(filter.States, order.State) {
			continue
		}
		orders = append(orders, order.Clone())
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := s.orders[order.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}
	if current.TableID != order.TableID || current.State.Terminal() {
		return nil, store.ErrInvalidTransaction
	}

	order.Version = expectedVersion + 1
	s.orders[order.ID] = order.Clone()
	out := order.Clone()
	return &out, nil
}

func (s *Store) CommitCheckout(ctx context.Context, commit store.CheckoutCommit) (*store.CheckoutResult, error) {
	if err := commit.Sale.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if commit.Sale.OrderID != commit.OrderID || commit.Sale.TableID != commit.TableID {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, ok := s.orders[commit.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Version != commit.OrderVersion {
		return nil, store.ErrVersionConflict
	}
	if _, dup := s.saleByOrder[order.ID]; dup {
		return nil, domain.ErrTerminalState
	}
	table, ok := s.tables[commit.TableID]
	if !ok || order.TableID != commit.TableID {
		return nil, store.ErrNotFound
	}
	if _, dup := s.sales[commit.Sale.ID]; dup {
		return nil, store.ErrInvalidTransaction
	}

	paid := order.Clone()
	if err := paid.MarkPaid(commit.PaidAt); err != nil {
		return nil, err
	}
	paid.Version = order.Version + 1

	// Work out every new stock level before touching anything.
	updated := make(map[string]domain.InventoryItem, len(commit.Decrements))
	shortfalls := make([]domain.StockShortfall, 0)
	for _, dec := range commit.Decrements {
		item, ok := updated[dec.MaterialID]
		if !ok {
			item, ok = s.inventory[dec.MaterialID]
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMaterial, dec.MaterialID)
		}
		after := decimal.NewFromFloat(item.QuantityOnHand).Sub(decimal.NewFromFloat(dec.Quantity)).InexactFloat64()
		if after < 0 {
			shortfalls = append(shortfalls, domain.StockShortfall{
				MaterialID: item.MaterialID,
				Name:       item.Name,
				Requested:  dec.Quantity,
				OnHand:     item.QuantityOnHand,
				After:      after,
			})
		}
		item.QuantityOnHand = after
		updated[dec.MaterialID] = item
	}
	if len(shortfalls) > 0 && commit.StockPolicy != domain.StockLenient {
		return nil, store.InsufficientStockError(shortfalls)
	}

	for id, item := range updated {
		s.inventory[id] = item
	}
	sale := commit.Sale
	sale.Items = append([]domain.SaleLine(nil), commit.Sale.Items...)
	s.sales[sale.ID] = sale
	s.saleByOrder[order.ID] = sale.ID
	s.salesOrdered = append(s.salesOrdered, sale.ID)
	s.orders[order.ID] = paid.Clone()
	table.Occupied = false
	s.tables[table.ID] = table

	result := &store.CheckoutResult{Sale: sale, Order: paid.Clone(), Shortfalls: shortfalls}
	result.Sale.Items = append([]domain.SaleLine(nil), sale.Items...)
	return result, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Items = append([]domain.SaleLine(nil), sale.Items...)
	return &sale, nil
}

// ListSales returns sales created in [from, to), oldest first.
func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0)
	for _, id := range s.salesOrdered {
		sale := s.sales[id]
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sale.Items = append([]domain.SaleLine(nil), sale.Items...)
		sales = append(sales, sale)
	}
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	return sales, nil
}

// PutSale records a historical sale as-is. It exists for imports and tests;
// checkouts go through CommitCheckout.
func (s *Store) PutSale(sale domain.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale.Items = append([]domain.SaleLine(nil), sale.Items...)
	s.sales[sale.ID] = sale
	s.saleByOrder[sale.OrderID] = sale.ID
	s.salesOrdered = append(s.salesOrdered, sale.ID)
}

func cloneProduct(p domain.Product) domain.Product {
	p.RequiredMaterials = append([]domain.MaterialRequirement(nil), p.RequiredMaterials...)
	return p
}
