package domain

import (
	"fmt"
	"time"
)

type OrderState string

const (
	OrderOpen      OrderState = "open"
	OrderSubmitted OrderState = "submitted"
	OrderReady     OrderState = "ready"
	OrderPaid      OrderState = "paid"
	OrderCancelled OrderState = "cancelled"
)

// ActiveOrderStates are the states in which an order still holds its table.
var ActiveOrderStates = []OrderState{OrderOpen, OrderSubmitted, OrderReady}

// PendingOrderStates are orders waiting on the kitchen or the register.
var PendingOrderStates = []OrderState{OrderSubmitted, OrderReady}

var orderTransitions = map[OrderState][]OrderState{
	OrderOpen:      {OrderSubmitted, OrderCancelled},
	OrderSubmitted: {OrderReady, OrderPaid, OrderCancelled},
	OrderReady:     {OrderPaid, OrderCancelled},
}

func (s OrderState) Valid() bool {
	switch s {
	case OrderOpen, OrderSubmitted, OrderReady, OrderPaid, OrderCancelled:
		return true
	}
	return false
}

func (s OrderState) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (o Order) Clone() Order {
	out := o
	out.Items = append([]CartItem(nil), o.Items...)
	out.SubmittedAt = cloneTime(o.SubmittedAt)
	out.ReadyAt = cloneTime(o.ReadyAt)
	out.PaidAt = cloneTime(o.PaidAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	return out
}

func (o Order) GrossTotal() int64 {
	total := int64(0)
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// AddItem snapshots the product's current name and price. Adding a product
// already in the cart raises its quantity and keeps the original snapshot.
func (o *Order) AddItem(product Product, qty int, now time.Time) error {
	if o.State != OrderOpen {
		return ErrOrderNotOpen
	}
	if qty < 1 || qty > MaxItemQuantity {
		return ErrInvalidQuantity
	}
	if !product.Active {
		return fmt.Errorf("%w: %s", ErrProductUnavailable, product.ID)
	}
	for i := range o.Items {
		if o.Items[i].ProductID == product.ID {
			if o.Items[i].Quantity+qty > MaxItemQuantity {
				return fmt.Errorf("%w: %s would reach %d", ErrInvalidQuantity, product.ID, o.Items[i].Quantity+qty)
			}
			o.Items[i].Quantity += qty
			o.UpdatedAt = now
			return nil
		}
	}
	o.Items = append(o.Items, CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  qty,
	})
	o.UpdatedAt = now
	return nil
}

func (o *Order) RemoveItem(productID string, now time.Time) error {
	if o.State != OrderOpen {
		return ErrOrderNotOpen
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotInOrder, productID)
}

func (o *Order) Submit(now time.Time) error {
	if o.State != OrderOpen {
		return ErrOrderNotOpen
	}
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	o.State = OrderSubmitted
	o.SubmittedAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkReady(now time.Time) error {
	if o.State.Terminal() {
		return ErrTerminalState
	}
	if !o.State.CanTransitionTo(OrderReady) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, OrderReady)
	}
	o.State = OrderReady
	o.ReadyAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) Cancel(now time.Time) error {
	if o.State.Terminal() {
		return ErrTerminalState
	}
	o.State = OrderCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// CheckCheckout reports whether the order may be turned into a sale.
func (o Order) CheckCheckout() error {
	switch o.State {
	case OrderSubmitted, OrderReady:
	case OrderPaid, OrderCancelled:
		return ErrTerminalState
	default:
		return ErrOrderNotSubmitted
	}
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	return nil
}

func (o *Order) MarkPaid(now time.Time) error {
	if err := o.CheckCheckout(); err != nil {
		return err
	}
	o.State = OrderPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
