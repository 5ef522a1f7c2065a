package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Table struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Occupied bool   `json:"occupied"`
	Active   bool   `json:"active"`
}

type MaterialRequirement struct {
	MaterialID      string  `json:"material_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
}

// Product prices are tax-inclusive, in whole currency units.
type Product struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	UnitPrice         int64                 `json:"unit_price"`
	Category          string                `json:"category"`
	Active            bool                  `json:"active"`
	RequiredMaterials []MaterialRequirement `json:"required_materials"`
}

// MaxItemQuantity bounds a single cart line, merged quantities included.
const MaxItemQuantity = 999

type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Order struct {
	ID          string     `json:"id"`
	TableID     string     `json:"table_id"`
	Items       []CartItem `json:"items"`
	State       OrderState `json:"state"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

type SaleLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// Sale is written once at checkout and never updated.
type Sale struct {
	ID                 string          `json:"id"`
	OrderID            string          `json:"order_id"`
	TableID            string          `json:"table_id"`
	CashierID          string          `json:"cashier_id"`
	CashierName        string          `json:"cashier_name,omitempty"`
	Items              []SaleLine      `json:"items"`
	GrossTotal         int64           `json:"gross_total"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	TaxAmount          int64           `json:"tax_amount"`
	BaseAmount         int64           `json:"base_amount"`
	DiscountCode       string          `json:"discount_code,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     int64           `json:"discount_amount"`
	NetTotal           int64           `json:"net_total"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	AmountTendered     int64           `json:"amount_tendered"`
	Change             int64           `json:"change"`
	CreatedAt          time.Time       `json:"created_at"`
}

type InventoryItem struct {
	MaterialID     string  `json:"material_id"`
	Name           string  `json:"name"`
	Unit           string  `json:"unit,omitempty"`
	QuantityOnHand float64 `json:"quantity_on_hand"`
}

type StockPolicy string

const (
	// StockStrict aborts a checkout when any material would go below zero.
	StockStrict StockPolicy = "strict"
	// StockLenient lets stock go negative and reports the shortfall.
	StockLenient StockPolicy = "lenient"
)

func (p StockPolicy) Valid() bool {
	return p == StockStrict || p == StockLenient
}

type MaterialDecrement struct {
	MaterialID string  `json:"material_id"`
	Quantity   float64 `json:"quantity"`
}

// StockShortfall describes a material whose on-hand quantity could not cover a checkout.
type StockShortfall struct {
	MaterialID string  `json:"material_id"`
	Name       string  `json:"name,omitempty"`
	Requested  float64 `json:"requested"`
	OnHand     float64 `json:"on_hand"`
	After      float64 `json:"after"`
}

type ProductQuantity struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type DaySales struct {
	Label string `json:"label"`
	Date  string `json:"date"`
	Total int64  `json:"total"`
	Count int    `json:"count"`
}

type CashierTotals struct {
	CashierID     string `json:"cashier_id"`
	CashierName   string `json:"cashier_name,omitempty"`
	Total         int64  `json:"total"`
	OrderCount    int    `json:"order_count"`
	AverageTicket int64  `json:"average_ticket"`
}

// MetricsSnapshot is derived from sales and orders; it is never persisted as a source of truth.
type MetricsSnapshot struct {
	TodaysSalesTotal  int64             `json:"todays_sales_total"`
	TodaysOrderCount  int               `json:"todays_order_count"`
	AverageTicket     int64             `json:"average_ticket"`
	PendingOrderCount int               `json:"pending_order_count"`
	Top5Products      []ProductQuantity `json:"top5_products"`
	DailySalesLast7   []DaySales        `json:"daily_sales_last7"`
	PerCashierTotals  []CashierTotals   `json:"per_cashier_totals"`
	WindowStart       time.Time         `json:"window_start"`
	WindowEnd         time.Time         `json:"window_end"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

type Actor struct {
	CashierID string
	Name      string
	Role      string
}

type OpenOrderRequest struct {
	TableID string `json:"table_id"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	DiscountCode   string        `json:"discount_code"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	AmountTendered int64         `json:"amount_tendered"`
}

type CheckoutQuote struct {
	OrderID            string          `json:"order_id"`
	GrossTotal         int64           `json:"gross_total"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	TaxAmount          int64           `json:"tax_amount"`
	BaseAmount         int64           `json:"base_amount"`
	DiscountCode       string          `json:"discount_code,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     int64           `json:"discount_amount"`
	NetTotal           int64           `json:"net_total"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	AmountTendered     int64           `json:"amount_tendered"`
	Change             int64           `json:"change"`
}

type CheckoutResponse struct {
	Sale       Sale             `json:"sale"`
	Shortfalls []StockShortfall `json:"shortfalls,omitempty"`
}

type EmergencyReleaseRequest struct {
	ManagerPIN       string `json:"manager_pin"`
	CancelOpenOrders bool   `json:"cancel_open_orders"`
}

type EmergencyReleaseResult struct {
	Table             Table    `json:"table"`
	OrphanedOrderIDs  []string `json:"orphaned_order_ids"`
	CancelledOrderIDs []string `json:"cancelled_order_ids"`
}

type Receipt struct {
	SaleID       string `json:"sale_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}
