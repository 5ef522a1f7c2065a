package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleSale() Sale {
	return Sale{
		ID:        "sale-1",
		OrderID:   "order-1",
		TableID:   "table-01",
		CashierID: "cashier-7",
		Items: []SaleLine{
			{ProductID: "pizza-margarita", Name: "Pizza Margarita", UnitPrice: 12000, Quantity: 1, Subtotal: 12000},
			{ProductID: "soda-500", Name: "Gaseosa 500ml", UnitPrice: 3000, Quantity: 2, Subtotal: 6000},
		},
		GrossTotal:         18000,
		TaxRate:            decimal.RequireFromString("0.19"),
		TaxAmount:          2874,
		BaseAmount:         15126,
		DiscountCode:       "ABC456",
		DiscountPercentage: decimal.RequireFromString("0.2"),
		DiscountAmount:     3600,
		NetTotal:           14400,
		PaymentMethod:      PaymentCash,
		AmountTendered:     20000,
		Change:             5600,
		CreatedAt:          testNow,
	}
}

func TestSaleSurvivesJSONRoundTrip(t *testing.T) {
	original := sampleSale()
	payload, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeSale(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.GrossTotal != original.GrossTotal || decoded.TaxAmount != original.TaxAmount ||
		decoded.BaseAmount != original.BaseAmount || decoded.DiscountAmount != original.DiscountAmount ||
		decoded.NetTotal != original.NetTotal || decoded.AmountTendered != original.AmountTendered ||
		decoded.Change != original.Change {
		t.Fatalf("monetary fields changed: %+v vs %+v", decoded, original)
	}
	if !decoded.TaxRate.Equal(original.TaxRate) || !decoded.DiscountPercentage.Equal(original.DiscountPercentage) {
		t.Fatalf("rates changed: %s/%s", decoded.TaxRate, decoded.DiscountPercentage)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("created_at changed: %v", decoded.CreatedAt)
	}
	if len(decoded.Items) != 2 || decoded.Items[1] != original.Items[1] {
		t.Fatalf("items changed: %+v", decoded.Items)
	}
	if decoded.DiscountCode != "ABC456" || decoded.CashierID != "cashier-7" || decoded.PaymentMethod != PaymentCash {
		t.Fatalf("identity fields changed: %+v", decoded)
	}
}

func TestDecodeSaleRejectsUnknownFields(t *testing.T) {
	payload, _ := json.Marshal(sampleSale())
	tampered := strings.Replace(string(payload), `{"id"`, `{"legacy_total":1,"id"`, 1)
	if _, err := DecodeSale([]byte(tampered)); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestDecodeSaleRejectsInconsistentTotals(t *testing.T) {
	sale := sampleSale()
	sale.NetTotal = 14000
	payload, _ := json.Marshal(sale)
	if _, err := DecodeSale(payload); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestDecodeOrderRejectsUnknownState(t *testing.T) {
	raw := `{"id":"order-1","table_id":"table-01","items":[],"state":"preparing","version":1,"created_at":"2026-10-15T12:00:00Z","updated_at":"2026-10-15T12:00:00Z"}`
	if _, err := DecodeOrder([]byte(raw)); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestDecodeCartItemsRejectsZeroQuantity(t *testing.T) {
	raw := `[{"product_id":"p1","name":"P","unit_price":100,"quantity":0}]`
	if _, err := DecodeCartItems([]byte(raw)); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}
