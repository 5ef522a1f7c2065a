package notify

import (
	"context"
	"time"

	"fastpos/backend/internal/domain"
)

// Publisher hands finished work to systems outside the core. Callers treat
// failures as non-fatal: a kitchen display or printer being down never
// undoes an order submission or a committed sale.
type Publisher interface {
	OrderSubmitted(ctx context.Context, order domain.Order) error
	SaleCompleted(ctx context.Context, sale domain.Sale) error
}

type Noop struct{}

func (Noop) OrderSubmitted(context.Context, domain.Order) error { return nil }
func (Noop) SaleCompleted(context.Context, domain.Sale) error   { return nil }

type KitchenTicketLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type OrderSubmittedMessage struct {
	OrderID     string              `json:"order_id"`
	TableID     string              `json:"table_id"`
	Items       []KitchenTicketLine `json:"items"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

type SaleCompletedMessage struct {
	Sale         domain.Sale `json:"sale"`
	ReceiptText  string      `json:"receipt_text"`
	EscposBase64 string      `json:"escpos_base64"`
}

func NewOrderSubmittedMessage(order domain.Order) OrderSubmittedMessage {
	lines := make([]KitchenTicketLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, KitchenTicketLine{ProductID: item.ProductID, Name: item.Name, Quantity: item.Quantity})
	}
	submittedAt := order.UpdatedAt
	if order.SubmittedAt != nil {
		submittedAt = *order.SubmittedAt
	}
	return OrderSubmittedMessage{
		OrderID:     order.ID,
		TableID:     order.TableID,
		Items:       lines,
		SubmittedAt: submittedAt,
	}
}
