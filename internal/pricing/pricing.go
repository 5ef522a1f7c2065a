package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fastpos/backend/internal/domain"
)

const DefaultTaxRate = "0.19"

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Policy carries everything a checkout needs to price an order. It is passed
// into each call so callers can vary it without touching shared state.
type Policy struct {
	TaxRate     decimal.Decimal
	Discounts   map[string]decimal.Decimal
	StockPolicy domain.StockPolicy
}

type Breakdown struct {
	GrossTotal         int64
	TaxRate            decimal.Decimal
	BaseAmount         int64
	TaxAmount          int64
	DiscountCode       string
	DiscountPercentage decimal.Decimal
	DiscountAmount     int64
	NetTotal           int64
}

type Payment struct {
	Method         domain.PaymentMethod
	AmountTendered int64
	Change         int64
}

func DefaultPolicy() Policy {
	return Policy{
		TaxRate:     decimal.RequireFromString(DefaultTaxRate),
		Discounts:   map[string]decimal.Decimal{"ABC456": decimal.RequireFromString("0.20")},
		StockPolicy: domain.StockStrict,
	}
}

// NewPolicy validates the inputs and normalizes discount codes to upper case.
func NewPolicy(taxRate decimal.Decimal, discounts map[string]decimal.Decimal, stock domain.StockPolicy) (Policy, error) {
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("tax rate must be in [0,1), got %s", taxRate)
	}
	if !stock.Valid() {
		return Policy{}, fmt.Errorf("stock policy must be %q or %q, got %q", domain.StockStrict, domain.StockLenient, stock)
	}
	normalized := make(map[string]decimal.Decimal, len(discounts))
	for code, pct := range discounts {
		key := normalizeCode(code)
		if key == "" {
			return Policy{}, fmt.Errorf("discount code must not be blank")
		}
		if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(1)) {
			return Policy{}, fmt.Errorf("discount %s must be in (0,1], got %s", key, pct)
		}
		normalized[key] = pct
	}
	return Policy{TaxRate: taxRate, Discounts: normalized, StockPolicy: stock}, nil
}

// ParsePolicy builds a Policy from its textual configuration, for example
// taxRate "0.19", discounts "ABC456=0.20,STAFF=0.5" and stock "strict".
func ParsePolicy(taxRate string, discounts string, stock string) (Policy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(taxRate))
	if err != nil {
		return Policy{}, fmt.Errorf("parse tax rate %q: %w", taxRate, err)
	}
	table, err := ParseDiscountTable(discounts)
	if err != nil {
		return Policy{}, err
	}
	return NewPolicy(rate, table, domain.StockPolicy(strings.ToLower(strings.TrimSpace(stock))))
}

func ParseDiscountTable(raw string) (map[string]decimal.Decimal, error) {
	table := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, pct, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("discount entry %q must look like CODE=0.20", entry)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return nil, fmt.Errorf("parse discount %q: %w", entry, err)
		}
		table[normalizeCode(code)] = value
	}
	return table, nil
}

func (p Policy) Codes() []string {
	codes := make([]string, 0, len(p.Discounts))
	for code := range p.Discounts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LookupDiscount resolves a code. A blank code means no discount.
func (p Policy) LookupDiscount(code string) (string, decimal.Decimal, error) {
	key := normalizeCode(code)
	if key == "" {
		return "", decimal.Zero, nil
	}
	pct, ok := p.Discounts[key]
	if !ok {
		return "", decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInvalidDiscountCode, strings.TrimSpace(code))
	}
	return key, pct, nil
}

// Compute prices a cart. Prices are tax-inclusive so the base is derived
// from the gross. Amounts are rounded once, when they leave this function.
//
// An unknown discount code yields ErrInvalidDiscountCode together with a
// breakdown that carries no discount at all.
func Compute(items []domain.CartItem, policy Policy, discountCode string) (Breakdown, error) {
	gross := decimal.Zero
	for _, item := range items {
		gross = gross.Add(decimal.NewFromInt(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if gross.GreaterThan(maxAmount) {
		return Breakdown{}, fmt.Errorf("%w: gross %s", domain.ErrAmountOutOfRange, gross.String())
	}

	base := gross.Div(decimal.NewFromInt(1).Add(policy.TaxRate)).Round(0)
	out := Breakdown{
		GrossTotal:         gross.IntPart(),
		TaxRate:            policy.TaxRate,
		BaseAmount:         base.IntPart(),
		TaxAmount:          gross.Sub(base).IntPart(),
		DiscountPercentage: decimal.Zero,
		NetTotal:           gross.IntPart(),
	}

	code, pct, err := policy.LookupDiscount(discountCode)
	if err != nil {
		return out, err
	}
	if code == "" {
		return out, nil
	}
	discount := gross.Mul(pct).Round(0)
	out.DiscountCode = code
	out.DiscountPercentage = pct
	out.DiscountAmount = discount.IntPart()
	out.NetTotal = gross.Sub(discount).IntPart()
	return out, nil
}

// SettlePayment validates the tendered amount against the net total.
func SettlePayment(method domain.PaymentMethod, tendered int64, netTotal int64) (Payment, error) {
	method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	switch method {
	case domain.PaymentCash:
		if tendered < netTotal {
			return Payment{}, fmt.Errorf("%w: tendered %d, due %d", domain.ErrInsufficientPayment, tendered, netTotal)
		}
		return Payment{Method: method, AmountTendered: tendered, Change: tendered - netTotal}, nil
	case domain.PaymentCard, domain.PaymentTransfer:
		return Payment{Method: method, AmountTendered: netTotal}, nil
	default:
		return Payment{}, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, method)
	}
}

// MaterialDecrements totals the stock a cart consumes per material, in a
// stable order so concurrent checkouts lock rows in the same sequence.
func MaterialDecrements(items []domain.CartItem, products map[string]domain.Product) ([]domain.MaterialDecrement, error) {
	totals := make(map[string]decimal.Decimal)
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, item.ProductID)
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		for _, req := range product.RequiredMaterials {
			per := decimal.NewFromFloat(req.QuantityPerUnit)
			totals[req.MaterialID] = totals[req.MaterialID].Add(per.Mul(qty))
		}
	}

	out := make([]domain.MaterialDecrement, 0, len(totals))
	for materialID, qty := range totals {
		out = append(out, domain.MaterialDecrement{MaterialID: materialID, Quantity: qty.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
