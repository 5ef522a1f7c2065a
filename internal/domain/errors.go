package domain

import "errors"

// Validation errors are returned before anything is written.
var (
	ErrInactive                 = errors.New("table is inactive")
	ErrTableNotOccupiedByCaller = errors.New("table must be assigned before an order can be opened")
	ErrOrderNotOpen             = errors.New("order is not open")
	ErrOrderNotSubmitted        = errors.New("order must be submitted before checkout")
	ErrEmptyOrder               = errors.New("order has no items")
	ErrTerminalState            = errors.New("order is already paid or cancelled")
	ErrInvalidTransition        = errors.New("invalid order state transition")
	ErrItemNotInOrder           = errors.New("product is not in the order")
	ErrInvalidQuantity          = errors.New("quantity must be between 1 and 999")
	ErrAmountOutOfRange         = errors.New("order total is too large")
	ErrProductUnavailable       = errors.New("product is unavailable")
	ErrInvalidDiscountCode      = errors.New("invalid discount code")
	ErrInsufficientPayment      = errors.New("amount tendered is less than the net total")
	ErrInvalidPaymentMethod     = errors.New("payment method must be cash, card or transfer")
	ErrMissingCashier           = errors.New("cashier identity required")
	ErrMalformedRecord          = errors.New("malformed record")
)

// Conflict errors mean the caller should re-read and decide whether to retry.
var (
	ErrAlreadyOccupied     = errors.New("table is already occupied")
	ErrTableHasActiveOrder = errors.New("table already has an active order")
)

// Consistency errors abort a checkout as a whole.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownMaterial   = errors.New("material is not tracked in inventory")
)
