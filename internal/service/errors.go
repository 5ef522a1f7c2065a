package service

import (
	"context"
	"errors"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindConflict       Kind = "conflict"
	KindConsistency    Kind = "consistency"
	KindTimeout        Kind = "timeout"
	KindInfrastructure Kind = "infrastructure"
)

var validationErrors = []error{
	domain.ErrInactive,
	domain.ErrTableNotOccupiedByCaller,
	domain.ErrOrderNotOpen,
	domain.ErrOrderNotSubmitted,
	domain.ErrEmptyOrder,
	domain.ErrTerminalState,
	domain.ErrInvalidTransition,
	domain.ErrItemNotInOrder,
	domain.ErrInvalidQuantity,
	domain.ErrAmountOutOfRange,
	domain.ErrProductUnavailable,
	domain.ErrInvalidDiscountCode,
	domain.ErrInsufficientPayment,
	domain.ErrInvalidPaymentMethod,
	domain.ErrMissingCashier,
	store.ErrInvalidTransaction,
}

var conflictErrors = []error{
	domain.ErrAlreadyOccupied,
	domain.ErrTableHasActiveOrder,
	store.ErrVersionConflict,
}

var consistencyErrors = []error{
	domain.ErrInsufficientStock,
	domain.ErrUnknownMaterial,
}

// KindOf classifies an error returned by the service. Anything it does not
// recognise, including malformed persisted records, is infrastructure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAdminRequired):
		return KindForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, domain.ErrMalformedRecord), errors.Is(err, store.ErrCommitOutcomeUnknown):
		return KindInfrastructure
	case isAny(err, consistencyErrors):
		return KindConsistency
	case isAny(err, conflictErrors):
		return KindConflict
	case isAny(err, validationErrors):
		return KindValidation
	}
	return KindInfrastructure
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
