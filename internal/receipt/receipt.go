package receipt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"fastpos/backend/internal/domain"
)

var (
	escposInit = []byte{0x1b, 0x40}
	escposCut  = []byte{0x1d, 0x56, 0x41, 0x10}
)

// Lines lays out a sale as the text of a 32-column thermal receipt.
func Lines(sale domain.Sale, businessName string, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(businessName) == "" {
		businessName = "FastPOS"
	}

	lines := []string{
		businessName,
		"================================",
		"Venta: " + sale.ID,
		"Mesa: " + sale.TableID,
		"Cajero: " + cashierLabel(sale),
		"Fecha: " + sale.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
		"--------------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		lines = append(lines, fmt.Sprintf("  %s", Amount(item.Subtotal)))
	}
	lines = append(lines,
		"--------------------------------",
		fmt.Sprintf("Base     : %s", Amount(sale.BaseAmount)),
		fmt.Sprintf("IVA %s%%: %s", sale.TaxRate.Shift(2).StringFixed(0), Amount(sale.TaxAmount)),
		fmt.Sprintf("Bruto    : %s", Amount(sale.GrossTotal)),
	)
	if sale.DiscountAmount > 0 {
		lines = append(lines, fmt.Sprintf("Desc %s: -%s", sale.DiscountCode, Amount(sale.DiscountAmount)))
	}
	lines = append(lines,
		fmt.Sprintf("Total    : %s", Amount(sale.NetTotal)),
		fmt.Sprintf("Pago     : %s", sale.PaymentMethod),
		fmt.Sprintf("Recibido : %s", Amount(sale.AmountTendered)),
		fmt.Sprintf("Cambio   : %s", Amount(sale.Change)),
		"================================",
		"Gracias por su visita",
		"",
	)
	return lines
}

// ESCPOS wraps the receipt text in printer init and cut commands.
func ESCPOS(lines []string) []byte {
	out := append([]byte(nil), escposInit...)
	for _, line := range lines {
		out = append(out, []byte(line)...)
		out = append(out, '\n')
	}
	return append(out, escposCut...)
}

func Render(sale domain.Sale, businessName string, loc *time.Location) domain.Receipt {
	lines := Lines(sale, businessName, loc)
	return domain.Receipt{
		SaleID:       sale.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(ESCPOS(lines)),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}
}

// Amount formats whole currency units with dot thousands separators, e.g. $18.000.
func Amount(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := fmt.Sprintf("%d", v)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String()
}

func cashierLabel(sale domain.Sale) string {
	if sale.CashierName != "" {
		return sale.CashierName
	}
	return sale.CashierID
}
