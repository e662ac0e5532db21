package domain

import "errors"

var (
	// ErrResourceMissing means an attachment's underlying resource vanished.
	// The attachment is skipped; the send continues without it.
	ErrResourceMissing = errors.New("attachment resource missing")

	// ErrBudgetExhausted means compression could not meet the allocated
	// sub-budget. The best-effort oversized result is kept.
	ErrBudgetExhausted = errors.New("compression budget exhausted")

	// ErrTransportRejected means the transport returned a terminal error for
	// a send attempt. The error code is preserved on the record.
	ErrTransportRejected = errors.New("transport rejected transaction")

	// ErrNotCreated means the store could not materialize a transaction.
	ErrNotCreated = errors.New("transaction not created")

	// ErrMessageNotFound is returned by repositories on a miss.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotScheduled means a cancel or send-now targeted a record with no
	// pending scheduled trigger.
	ErrNotScheduled = errors.New("message has no scheduled send")
)
