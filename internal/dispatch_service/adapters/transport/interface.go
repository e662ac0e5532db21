package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// Capabilities is the carrier-advertised sizing for this transport.
type Capabilities struct {
	MaxSingleSegmentBytes int
	MaxMultipartBytes     int
	SupportsReceipts      bool
}

// SendResult is the transport's synchronous acknowledgment of a send attempt.
type SendResult struct {
	Accepted  bool
	ErrorCode int32 // transport error code when not accepted
	Detail    string
}

// Transport physically transmits a transaction. Delivery receipts arrive
// asynchronously on the message broker, not through this interface.
type Transport interface {
	Name() string
	Capabilities(ctx context.Context) (Capabilities, error)
	Send(ctx context.Context, txn *domain.Transaction) (*SendResult, error)
	CancelScheduled(ctx context.Context, recordID uuid.UUID) error
}
