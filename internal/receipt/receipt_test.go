package receipt

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fastpos/backend/internal/domain"
)

func TestAmount(t *testing.T) {
	cases := map[int64]string{0: "$0", 900: "$900", 18000: "$18.000", 1234567: "$1.234.567", -5600: "-$5.600"}
	for in, want := range cases {
		if got := Amount(in); got != want {
			t.Fatalf("Amount(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderProducesPrintableReceipt(t *testing.T) {
	sale := domain.Sale{
		ID:                 "sale-1",
		TableID:            "table-03",
		CashierID:          "cashier-7",
		CashierName:        "Ana",
		Items:              []domain.SaleLine{{Name: "Pizza Margarita", UnitPrice: 12000, Quantity: 1, Subtotal: 12000}},
		GrossTotal:         12000,
		TaxRate:            decimal.RequireFromString("0.19"),
		BaseAmount:         10084,
		TaxAmount:          1916,
		DiscountCode:       "ABC456",
		DiscountPercentage: decimal.RequireFromString("0.2"),
		DiscountAmount:     2400,
		NetTotal:           9600,
		PaymentMethod:      domain.PaymentCash,
		AmountTendered:     10000,
		Change:             400,
		CreatedAt:          time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC),
	}

	got := Render(sale, "Pizzeria Roma", time.UTC)
	for _, want := range []string{"Pizzeria Roma", "Cajero: Ana", "IVA 19%", "Desc ABC456: -$2.400", "Total    : $9.600", "Cambio   : $400"} {
		if !strings.Contains(got.PreviewText, want) {
			t.Fatalf("preview missing %q:\n%s", want, got.PreviewText)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(got.EscposBase64)
	if err != nil {
		t.Fatalf("decode escpos: %v", err)
	}
	if !bytes.HasPrefix(raw, escposInit) || !bytes.HasSuffix(raw, escposCut) {
		t.Fatalf("escpos payload must start with init and end with cut")
	}
	if got.FileName != "receipt-sale-1.bin" {
		t.Fatalf("unexpected file name %s", got.FileName)
	}
}
