package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/pricing"
	"fastpos/backend/internal/receipt"
	"fastpos/backend/internal/store"
	"fastpos/backend/internal/xid"
)

type priced struct {
	products  map[string]domain.Product
	breakdown pricing.Breakdown
	payment   pricing.Payment
}

// Quote prices an order the way Checkout would, without writing anything.
func (s *Service) Quote(ctx context.Context, orderID string, req domain.CheckoutRequest, policy pricing.Policy) (domain.CheckoutQuote, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.CheckoutQuote{}, err
	}
	if err := order.CheckCheckout(); err != nil {
		return domain.CheckoutQuote{}, err
	}
	p, err := s.price(ctx, *order, req, policy)
	if err != nil {
		return domain.CheckoutQuote{}, err
	}
	b := p.breakdown
	return domain.CheckoutQuote{
		OrderID:            order.ID,
		GrossTotal:         b.GrossTotal,
		TaxRate:            b.TaxRate,
		TaxAmount:          b.TaxAmount,
		BaseAmount:         b.BaseAmount,
		DiscountCode:       b.DiscountCode,
		DiscountPercentage: b.DiscountPercentage,
		DiscountAmount:     b.DiscountAmount,
		NetTotal:           b.NetTotal,
		PaymentMethod:      p.payment.Method,
		AmountTendered:     p.payment.AmountTendered,
		Change:             p.payment.Change,
	}, nil
}

// Checkout turns a submitted or ready order into a Sale. The sale insert,
// the stock decrements, the order moving to paid and the table release are
// committed together or not at all.
func (s *Service) Checkout(ctx context.Context, orderID string, req domain.CheckoutRequest, policy pricing.Policy) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.CashierID) == "" {
		return domain.CheckoutResponse{}, domain.ErrMissingCashier
	}
	if !policy.StockPolicy.Valid() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: stock policy %q", store.ErrInvalidTransaction, policy.StockPolicy)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if err := order.CheckCheckout(); err != nil {
		return domain.CheckoutResponse{}, err
	}

	p, err := s.price(ctx, *order, req, policy)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	decrements, err := pricing.MaterialDecrements(order.Items, p.products)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	now := s.now()
	sale := newSale(*order, actor, p, now)

	result, err := s.repo.CommitCheckout(ctx, store.CheckoutCommit{
		Sale:         sale,
		OrderID:      order.ID,
		OrderVersion: order.Version,
		TableID:      order.TableID,
		Decrements:   decrements,
		StockPolicy:  policy.StockPolicy,
		PaidAt:       now,
	})
	if errors.Is(err, store.ErrVersionConflict) {
		if latest, rerr := s.repo.GetOrder(ctx, orderID); rerr == nil && latest.State.Terminal() {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: order %s is %s", domain.ErrTerminalState, latest.ID, latest.State)
		}
		return domain.CheckoutResponse{}, err
	}
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	for _, sf := range result.Shortfalls {
		s.logger.Warn("stock went negative",
			zap.String("sale_id", result.Sale.ID),
			zap.String("material_id", sf.MaterialID),
			zap.Float64("requested", sf.Requested),
			zap.Float64("on_hand", sf.OnHand),
			zap.Float64("after", sf.After),
		)
	}
	s.audit(ctx, "checkout", "sale", result.Sale.ID,
		zap.String("order_id", result.Sale.OrderID),
		zap.Int64("net_total", result.Sale.NetTotal),
		zap.String("payment_method", string(result.Sale.PaymentMethod)),
		zap.String("discount_code", result.Sale.DiscountCode),
	)

	completed := result.Sale
	s.dispatch(ctx, "sale_completed", func(ctx context.Context) error {
		return s.publisher.SaleCompleted(ctx, completed)
	})
	return domain.CheckoutResponse{Sale: result.Sale, Shortfalls: result.Shortfalls}, nil
}

func (s *Service) Receipt(ctx context.Context, saleID string) (domain.Receipt, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Render(*sale, s.businessName, s.metrics.Location()), nil
}

func (s *Service) price(ctx context.Context, order domain.Order, req domain.CheckoutRequest, policy pricing.Policy) (priced, error) {
	if len(order.Items) == 0 {
		return priced{}, domain.ErrEmptyOrder
	}

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return priced{}, err
	}
	for _, item := range order.Items {
		if _, ok := products[item.ProductID]; !ok {
			return priced{}, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, item.ProductID)
		}
	}

	breakdown, err := pricing.Compute(order.Items, policy, req.DiscountCode)
	if err != nil {
		return priced{}, err
	}
	payment, err := pricing.SettlePayment(req.PaymentMethod, req.AmountTendered, breakdown.NetTotal)
	if err != nil {
		return priced{}, err
	}
	return priced{products: products, breakdown: breakdown, payment: payment}, nil
}

func newSale(order domain.Order, actor domain.Actor, p priced, now time.Time) domain.Sale {
	lines := make([]domain.SaleLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, domain.SaleLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
		})
	}
	b := p.breakdown
	return domain.Sale{
		ID:                 xid.New("sale"),
		OrderID:            order.ID,
		TableID:            order.TableID,
		CashierID:          actor.CashierID,
		CashierName:        actor.Name,
		Items:              lines,
		GrossTotal:         b.GrossTotal,
		TaxRate:            b.TaxRate,
		TaxAmount:          b.TaxAmount,
		BaseAmount:         b.BaseAmount,
		DiscountCode:       b.DiscountCode,
		DiscountPercentage: b.DiscountPercentage,
		DiscountAmount:     b.DiscountAmount,
		NetTotal:           b.NetTotal,
		PaymentMethod:      p.payment.Method,
		AmountTendered:     p.payment.AmountTendered,
		Change:             p.payment.Change,
		CreatedAt:          now,
	}
}
