package models

import "errors"

var (
	// ErrGatewayUnavailable is returned while the payment gateway circuit is open.
	// It is transient; callers may retry later.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrProviderRejected means the provider was reached but declined the payment.
	ErrProviderRejected = errors.New("payment rejected by provider")

	ErrCapacityExceeded = errors.New("event sold out")

	// ErrDuplicateReference is resolved to the idempotent path and never shown to buyers.
	ErrDuplicateReference = errors.New("reference already fulfilled")

	ErrNotFound           = errors.New("not found")
	ErrPaymentNotSettled  = errors.New("payment not yet settled by provider")
	ErrPaymentNotPending  = errors.New("payment is not pending")
	ErrTicketCodeConflict = errors.New("ticket code already exists")
	ErrLockTimeout        = errors.New("timed out waiting for reference lock")
)
