package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// MessageRepository is the local persistent store for delivery records.
type MessageRepository interface {
	// Create persists a new record for a transaction and assigns its
	// insertion-order sequence. Returns domain.ErrNotCreated on failure.
	Create(ctx context.Context, record *domain.DeliveryRecord) (*domain.DeliveryRecord, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryRecord, error)

	GetByThread(ctx context.Context, threadID uuid.UUID) ([]*domain.DeliveryRecord, error)

	// UpdateStatus moves the send-side state machine. errorCode is only
	// written when non-nil; sentAt stamps the sent timestamp when non-nil.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, errorCode *int32, sentAt *time.Time) error

	// UpdateDeliveryStatus applies an asynchronous delivery receipt: the
	// delivery status, the delivery timestamp, and the read flag.
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, deliveredAt time.Time, errorCode *int32) error

	// ListOrdered returns a snapshot of all records ascending by insertion
	// order. Records inserted after the snapshot are out of scope.
	ListOrdered(ctx context.Context) ([]*domain.DeliveryRecord, error)

	// DeleteBatch removes the given records in one operation.
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
}
