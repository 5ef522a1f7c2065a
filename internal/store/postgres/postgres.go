package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

const activeOrderIndex = "orders_one_active_per_table"

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListTables(ctx context.Context) ([]domain.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, occupied, active
		FROM dining_tables
		ORDER BY number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]domain.Table, 0, 16)
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.Number, &t.Occupied, &t.Active); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *Store) GetTable(ctx context.Context, tableID string) (*domain.Table, error) {
	var t domain.Table
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, occupied, active FROM dining_tables WHERE id = $1
	`, tableID).Scan(&t.ID, &t.Number, &t.Occupied, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AssignTable is a single conditional UPDATE; when it matches nothing the
// row is read back only to report why.
func (s *Store) AssignTable(ctx context.Context, tableID string) (*domain.Table, error) {
	var t domain.Table
	err := s.db.QueryRowContext(ctx, `
		UPDATE dining_tables
		SET occupied = true, updated_at = now()
		WHERE id = $1 AND active AND NOT occupied
		RETURNING id, number, occupied, active
	`, tableID).Scan(&t.ID, &t.Number, &t.Occupied, &t.Active)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, domain.ErrInactive
	}
	return nil, domain.ErrAlreadyOccupied
}

func (s *Store) ReleaseTable(ctx context.Context, tableID string) (*domain.Table, error) {
	var t domain.Table
	err := s.db.QueryRowContext(ctx, `
		UPDATE dining_tables
		SET occupied = false, updated_at = now()
		WHERE id = $1
		RETURNING id, number, occupied, active
	`, tableID).Scan(&t.ID, &t.Number, &t.Occupied, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit_price, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	return s.attachMaterials(ctx, products)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit_price, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	products, err = s.attachMaterials(ctx, products)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	defer rows.Close()
	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) attachMaterials(ctx context.Context, products []domain.Product) ([]domain.Product, error) {
	if len(products) == 0 {
		return products, nil
	}
	ids := make([]string, 0, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids = append(ids, p.ID)
		index[p.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, material_id, quantity_per_unit
		FROM product_materials
		WHERE product_id = ANY($1)
		ORDER BY product_id, material_id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var req domain.MaterialRequirement
		if err := rows.Scan(&productID, &req.MaterialID, &req.QuantityPerUnit); err != nil {
			return nil, err
		}
		i := index[productID]
		products[i].RequiredMaterials = append(products[i].RequiredMaterials, req)
	}
	return products, rows.Err()
}

func (s *Store) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT material_id, name, unit, quantity_on_hand
		FROM inventory_items
		ORDER BY material_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 32)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.MaterialID, &item.Name, &item.Unit, &item.QuantityOnHand); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" || order.State != domain.OrderOpen {
		return nil, store.ErrInvalidTransaction
	}
	items, err := json.Marshal(nonNilItems(order.Items))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var occupied, active bool
	err = tx.QueryRowContext(ctx, `
		SELECT occupied, active FROM dining_tables WHERE id = $1 FOR SHARE
	`, order.TableID).Scan(&occupied, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, domain.ErrInactive
	}
	if !occupied {
		return nil, domain.ErrTableNotOccupiedByCaller
	}

	order.Version = 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, table_id, state, items, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.TableID, string(order.State), items, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if constraintViolated(err, activeOrderIndex) {
			return nil, domain.ErrTableHasActiveOrder
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := order.Clone()
	return &out, nil
}

const orderColumns = `id, table_id, state, items, version, created_at, updated_at, submitted_at, ready_at, paid_at, cancelled_at`

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.TableID != "" {
		args = append(args, filter.TableID)
		conditions = append(conditions, fmt.Sprintf("table_id = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, st := range filter.States {
			states = append(states, string(st))
		}
		args = append(args, states)
		conditions = append(conditions, fmt.Sprintf("state = ANY($%d)", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int64) (*domain.Order, error) {
	items, err := json.Marshal(nonNilItems(order.Items))
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE orders
		SET state = $3, items = $4, version = version + 1, updated_at = $5,
		    submitted_at = $6, ready_at = $7, paid_at = $8, cancelled_at = $9
		WHERE id = $1 AND version = $2 AND state NOT IN ('paid', 'cancelled')
		RETURNING `+orderColumns,
		order.ID, expectedVersion, string(order.State), items, order.UpdatedAt,
		nullTime(order.SubmittedAt), nullTime(order.ReadyAt), nullTime(order.PaidAt), nullTime(order.CancelledAt),
	)
	updated, err := scanOrder(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if _, err := s.GetOrder(ctx, order.ID); err != nil {
		return nil, err
	}
	return nil, store.ErrVersionConflict
}

// CommitCheckout runs the whole checkout in one SERIALIZABLE transaction.
// Order and inventory rows are locked with FOR UPDATE, inventory in
// material_id order, so concurrent checkouts cannot interleave.
func (s *Store) CommitCheckout(ctx context.Context, commit store.CheckoutCommit) (*store.CheckoutResult, error) {
	if err := commit.Sale.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if commit.Sale.OrderID != commit.OrderID || commit.Sale.TableID != commit.TableID {
		return nil, store.ErrInvalidTransaction
	}

	result, err := s.commitCheckout(ctx, commit)
	if isSerializationFailure(err) {
		return nil, store.ErrVersionConflict
	}
	return result, err
}

func (s *Store) commitCheckout(ctx context.Context, commit store.CheckoutCommit) (*store.CheckoutResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, commit.OrderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.Version != commit.OrderVersion {
		return nil, store.ErrVersionConflict
	}
	if order.TableID != commit.TableID {
		return nil, store.ErrNotFound
	}
	paid := order.Clone()
	if err := paid.MarkPaid(commit.PaidAt); err != nil {
		return nil, err
	}

	shortfalls, err := applyDecrements(ctx, tx, commit.Decrements, commit.StockPolicy)
	if err != nil {
		return nil, err
	}

	if err := insertSale(ctx, tx, commit.Sale); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrTerminalState
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET state = 'paid', paid_at = $3, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $2
	`, commit.OrderID, commit.OrderVersion, commit.PaidAt)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, store.ErrVersionConflict
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE dining_tables SET occupied = false, updated_at = now() WHERE id = $1
	`, commit.TableID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, store.ErrNotFound
	}

	paid.Version = order.Version + 1
	result := &store.CheckoutResult{Sale: commit.Sale, Order: paid, Shortfalls: shortfalls}
	if err := tx.Commit(); err != nil {
		return s.resolveCommit(commit, result, err)
	}
	return result, nil
}

const commitCheckTimeout = 3 * time.Second

// resolveCommit settles a failed COMMIT. A deadline can fire after the
// server has applied the transaction, so the sale row for the order decides
// the outcome. The lookup runs on its own short context because the
// caller's has usually ended by now.
func (s *Store) resolveCommit(commit store.CheckoutCommit, result *store.CheckoutResult, commitErr error) (*store.CheckoutResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commitCheckTimeout)
	defer cancel()

	var saleID string
	lookupErr := s.db.QueryRowContext(ctx, `SELECT id FROM sales WHERE order_id = $1`, commit.OrderID).Scan(&saleID)
	if errors.Is(lookupErr, sql.ErrNoRows) {
		saleID, lookupErr = "", nil
	}
	applied, err := commitOutcome(commit.Sale.ID, saleID, lookupErr, commitErr)
	if !applied {
		return nil, err
	}
	return result, nil
}

// commitOutcome decides a failed COMMIT from the sale found for the order:
// our sale means it landed, another sale means a concurrent checkout won,
// no sale means it rolled back. A failed lookup leaves it unknown.
func commitOutcome(wantSaleID string, foundSaleID string, lookupErr error, commitErr error) (bool, error) {
	switch {
	case lookupErr != nil:
		return false, fmt.Errorf("%w: commit: %v; lookup: %v", store.ErrCommitOutcomeUnknown, commitErr, lookupErr)
	case foundSaleID == "":
		return false, commitErr
	case foundSaleID == wantSaleID:
		return true, nil
	default:
		return false, fmt.Errorf("%w: order already settled by sale %s", domain.ErrTerminalState, foundSaleID)
	}
}

func applyDecrements(ctx context.Context, tx *sql.Tx, decrements []domain.MaterialDecrement, policy domain.StockPolicy) ([]domain.StockShortfall, error) {
	shortfalls := make([]domain.StockShortfall, 0)
	if len(decrements) == 0 {
		return shortfalls, nil
	}

	ids := make([]string, 0, len(decrements))
	for _, dec := range decrements {
		ids = append(ids, dec.MaterialID)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT material_id, name, quantity_on_hand
		FROM inventory_items
		WHERE material_id = ANY($1)
		ORDER BY material_id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	onHand := make(map[string]domain.InventoryItem, len(ids))
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.MaterialID, &item.Name, &item.QuantityOnHand); err != nil {
			_ = rows.Close()
			return nil, err
		}
		onHand[item.MaterialID] = item
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	next := make(map[string]float64, len(decrements))
	for _, dec := range decrements {
		item, ok := onHand[dec.MaterialID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMaterial, dec.MaterialID)
		}
		current := item.QuantityOnHand
		if v, seen := next[dec.MaterialID]; seen {
			current = v
		}
		after := decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(dec.Quantity)).InexactFloat64()
		if after < 0 {
			shortfalls = append(shortfalls, domain.StockShortfall{
				MaterialID: item.MaterialID,
				Name:       item.Name,
				Requested:  dec.Quantity,
				OnHand:     current,
				After:      after,
			})
		}
		next[dec.MaterialID] = after
	}
	if len(shortfalls) > 0 && policy != domain.StockLenient {
		return nil, store.InsufficientStockError(shortfalls)
	}

	for materialID, qty := range next {
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_items SET quantity_on_hand = $2, updated_at = now() WHERE material_id = $1
		`, materialID, qty); err != nil {
			return nil, err
		}
	}
	return shortfalls, nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, order_id, table_id, cashier_id, cashier_name, items, gross_total, tax_rate, tax_amount,
			base_amount, discount_code, discount_percentage, discount_amount, net_total, payment_method,
			amount_tendered, change_amount, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		sale.ID, sale.OrderID, sale.TableID, sale.CashierID, sale.CashierName, items, sale.GrossTotal,
		sale.TaxRate.String(), sale.TaxAmount, sale.BaseAmount, nullIfEmpty(sale.DiscountCode),
		sale.DiscountPercentage.String(), sale.DiscountAmount, sale.NetTotal, string(sale.PaymentMethod),
		sale.AmountTendered, sale.Change, sale.CreatedAt,
	)
	return err
}

const saleColumns = `id, order_id, table_id, cashier_id, cashier_name, items, gross_total, tax_rate, tax_amount,
	base_amount, discount_code, discount_percentage, discount_amount, net_total, payment_method,
	amount_tendered, change_amount, created_at`

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, saleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var state string
	var items []byte
	var submitted, ready, paid, cancelled sql.NullTime
	if err := row.Scan(&order.ID, &order.TableID, &state, &items, &order.Version, &order.CreatedAt, &order.UpdatedAt,
		&submitted, &ready, &paid, &cancelled); err != nil {
		return nil, err
	}
	decoded, err := domain.DecodeCartItems(items)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}
	order.Items = decoded
	order.State = domain.OrderState(state)
	order.SubmittedAt = timePtr(submitted)
	order.ReadyAt = timePtr(ready)
	order.PaidAt = timePtr(paid)
	order.CancelledAt = timePtr(cancelled)
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return &order, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var items []byte
	var discountCode sql.NullString
	var method string
	if err := row.Scan(&sale.ID, &sale.OrderID, &sale.TableID, &sale.CashierID, &sale.CashierName, &items,
		&sale.GrossTotal, &sale.TaxRate, &sale.TaxAmount, &sale.BaseAmount, &discountCode, &sale.DiscountPercentage,
		&sale.DiscountAmount, &sale.NetTotal, &method, &sale.AmountTendered, &sale.Change, &sale.CreatedAt); err != nil {
		return nil, err
	}
	lines, err := domain.DecodeSaleLines(items)
	if err != nil {
		return nil, fmt.Errorf("sale %s: %w", sale.ID, err)
	}
	sale.Items = lines
	sale.DiscountCode = discountCode.String
	sale.PaymentMethod = domain.PaymentMethod(method)
	if err := sale.Validate(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func nonNilItems(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return []domain.CartItem{}
	}
	return items
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func constraintViolated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}
