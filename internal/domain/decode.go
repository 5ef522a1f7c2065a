package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Records read back from storage, caches or the wire go through these
// decoders. Unknown fields and missing required values are rejected.

func decodeStrict(data []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedRecord)
	}
	return nil
}

func DecodeOrder(data []byte) (Order, error) {
	var order Order
	if err := decodeStrict(data, &order); err != nil {
		return Order{}, err
	}
	return order, order.Validate()
}

func DecodeSale(data []byte) (Sale, error) {
	var sale Sale
	if err := decodeStrict(data, &sale); err != nil {
		return Sale{}, err
	}
	return sale, sale.Validate()
}

func DecodeCartItems(data []byte) ([]CartItem, error) {
	items := []CartItem{}
	if err := decodeStrict(data, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func DecodeSaleLines(data []byte) ([]SaleLine, error) {
	lines := []SaleLine{}
	if err := decodeStrict(data, &lines); err != nil {
		return nil, err
	}
	for _, line := range lines {
		if err := line.Validate(); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func DecodeMetricsSnapshot(data []byte) (MetricsSnapshot, error) {
	var snapshot MetricsSnapshot
	if err := decodeStrict(data, &snapshot); err != nil {
		return MetricsSnapshot{}, err
	}
	if snapshot.GeneratedAt.IsZero() {
		return MetricsSnapshot{}, malformed("metrics snapshot", "generated_at")
	}
	return snapshot, nil
}

func (t Table) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return malformed("table", "id")
	}
	if t.Number < 1 {
		return malformed("table", "number")
	}
	return nil
}

func (i CartItem) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return malformed("cart item", "product_id")
	}
	if i.UnitPrice < 0 {
		return malformed("cart item", "unit_price")
	}
	if i.Quantity < 1 || i.Quantity > MaxItemQuantity {
		return malformed("cart item", "quantity")
	}
	return nil
}

func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return malformed("order", "id")
	}
	if strings.TrimSpace(o.TableID) == "" {
		return malformed("order", "table_id")
	}
	if !o.State.Valid() {
		return malformed("order", "state")
	}
	if o.CreatedAt.IsZero() {
		return malformed("order", "created_at")
	}
	for _, item := range o.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if o.State == OrderPaid && o.PaidAt == nil {
		return malformed("order", "paid_at")
	}
	return nil
}

func (l SaleLine) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return malformed("sale line", "name")
	}
	if l.Quantity < 1 || l.UnitPrice < 0 {
		return malformed("sale line", "quantity")
	}
	if l.Subtotal != l.UnitPrice*int64(l.Quantity) {
		return malformed("sale line", "subtotal")
	}
	return nil
}

// Validate checks the arithmetic a Sale must satisfy, so a record that
// decodes cleanly is also internally consistent.
func (s Sale) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return malformed("sale", "id")
	case strings.TrimSpace(s.OrderID) == "":
		return malformed("sale", "order_id")
	case strings.TrimSpace(s.CashierID) == "":
		return malformed("sale", "cashier_id")
	case len(s.Items) == 0:
		return malformed("sale", "items")
	case !s.PaymentMethod.Valid():
		return malformed("sale", "payment_method")
	case s.CreatedAt.IsZero():
		return malformed("sale", "created_at")
	}
	gross := int64(0)
	for _, line := range s.Items {
		if err := line.Validate(); err != nil {
			return err
		}
		gross += line.Subtotal
	}
	if gross != s.GrossTotal {
		return malformed("sale", "gross_total")
	}
	if s.BaseAmount+s.TaxAmount != s.GrossTotal || s.TaxAmount < 0 {
		return malformed("sale", "tax_amount")
	}
	if s.DiscountAmount < 0 || s.NetTotal != s.GrossTotal-s.DiscountAmount {
		return malformed("sale", "net_total")
	}
	if s.AmountTendered-s.NetTotal != s.Change || s.Change < 0 {
		return malformed("sale", "change")
	}
	return nil
}

func malformed(record string, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMalformedRecord, record, field)
}
