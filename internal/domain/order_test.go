package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func openOrder() Order {
	return Order{ID: "order-1", TableID: "table-01", State: OrderOpen, CreatedAt: testNow}
}

func pizza(price int64) Product {
	return Product{ID: "pizza-margarita", Name: "Pizza Margarita", UnitPrice: price, Active: true}
}

func TestAddItemSnapshotsPriceAndMergesQuantity(t *testing.T) {
	order := openOrder()
	if err := order.AddItem(pizza(12000), 1, testNow); err != nil {
		t.Fatalf("add item: %v", err)
	}
	// A later price change must not touch the existing line.
	if err := order.AddItem(pizza(15000), 2, testNow); err != nil {
		t.Fatalf("add item again: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(order.Items))
	}
	if order.Items[0].Quantity != 3 || order.Items[0].UnitPrice != 12000 {
		t.Fatalf("unexpected line %+v", order.Items[0])
	}
	if order.GrossTotal() != 36000 {
		t.Fatalf("expected gross 36000, got %d", order.GrossTotal())
	}
}

func TestAddItemRejectsBadInput(t *testing.T) {
	order := openOrder()
	if err := order.AddItem(pizza(12000), 0, testNow); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	inactive := pizza(12000)
	inactive.Active = false
	if err := order.AddItem(inactive, 1, testNow); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}

func TestCartIsFrozenAfterSubmit(t *testing.T) {
	order := openOrder()
	if err := order.Submit(testNow); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	_ = order.AddItem(pizza(12000), 1, testNow)
	if err := order.Submit(testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := order.AddItem(pizza(12000), 1, testNow); !errors.Is(err, ErrOrderNotOpen) {
		t.Fatalf("expected ErrOrderNotOpen on add, got %v", err)
	}
	if err := order.RemoveItem("pizza-margarita", testNow); !errors.Is(err, ErrOrderNotOpen) {
		t.Fatalf("expected ErrOrderNotOpen on remove, got %v", err)
	}
	if err := order.Submit(testNow); !errors.Is(err, ErrOrderNotOpen) {
		t.Fatalf("expected ErrOrderNotOpen on resubmit, got %v", err)
	}
}

func TestOrderStateTransitions(t *testing.T) {
	cases := []struct {
		name  string
		from  OrderState
		apply func(*Order) error
		want  error
		state OrderState
	}{
		{"ready from submitted", OrderSubmitted, func(o *Order) error { return o.MarkReady(testNow) }, nil, OrderReady},
		{"ready from open", OrderOpen, func(o *Order) error { return o.MarkReady(testNow) }, ErrInvalidTransition, OrderOpen},
		{"ready from paid", OrderPaid, func(o *Order) error { return o.MarkReady(testNow) }, ErrTerminalState, OrderPaid},
		{"cancel open", OrderOpen, func(o *Order) error { return o.Cancel(testNow) }, nil, OrderCancelled},
		{"cancel ready", OrderReady, func(o *Order) error { return o.Cancel(testNow) }, nil, OrderCancelled},
		{"cancel paid", OrderPaid, func(o *Order) error { return o.Cancel(testNow) }, ErrTerminalState, OrderPaid},
		{"cancel cancelled", OrderCancelled, func(o *Order) error { return o.Cancel(testNow) }, ErrTerminalState, OrderCancelled},
		{"pay open", OrderOpen, func(o *Order) error { return o.MarkPaid(testNow) }, ErrOrderNotSubmitted, OrderOpen},
		{"pay ready", OrderReady, func(o *Order) error { return o.MarkPaid(testNow) }, nil, OrderPaid},
		{"pay paid", OrderPaid, func(o *Order) error { return o.MarkPaid(testNow) }, ErrTerminalState, OrderPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := openOrder()
			order.Items = []CartItem{{ProductID: "p", Name: "P", UnitPrice: 100, Quantity: 1}}
			order.State = tc.from
			err := tc.apply(&order)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if order.State != tc.state {
				t.Fatalf("expected state %s, got %s", tc.state, order.State)
			}
		})
	}
}

func TestCloneDoesNotShareItems(t *testing.T) {
	order := openOrder()
	_ = order.AddItem(pizza(12000), 1, testNow)
	clone := order.Clone()
	clone.Items[0].Quantity = 9
	if order.Items[0].Quantity != 1 {
		t.Fatalf("clone mutated original items")
	}
}

func TestAddItemCapsLineQuantity(t *testing.T) {
	order := openOrder()
	if err := order.AddItem(pizza(3000), 1<<63/3000+1, testNow); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for huge quantity, got %v", err)
	}
	if err := order.AddItem(pizza(3000), MaxItemQuantity, testNow); err != nil {
		t.Fatalf("add item at cap: %v", err)
	}
	if err := order.AddItem(pizza(3000), 1, testNow); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected merge past cap to fail, got %v", err)
	}
	if order.Items[0].Quantity != MaxItemQuantity {
		t.Fatalf("expected quantity to stay at %d, got %d", MaxItemQuantity, order.Items[0].Quantity)
	}
	if order.GrossTotal() != 3000*MaxItemQuantity {
		t.Fatalf("unexpected gross %d", order.GrossTotal())
	}
}
