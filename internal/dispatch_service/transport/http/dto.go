package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// SendMessageRequest is the payload for POST /messages.
type SendMessageRequest struct {
	SubscriptionID int             `json:"subscription_id"`
	ThreadID       string          `json:"thread_id" validate:"omitempty,uuid"`
	Body           string          `json:"body"`
	Addresses      []string        `json:"addresses" validate:"required,min=1,dive,required"`
	Attachments    []AttachmentDTO `json:"attachments" validate:"omitempty,dive"`
	SendAsGroup    bool            `json:"send_as_group"`
	DelaySeconds   int             `json:"delay_seconds" validate:"gte=0"`
}

// AttachmentDTO references a resource by the resolver's naming scheme.
type AttachmentDTO struct {
	Ref      string `json:"ref" validate:"required"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// MessageResponse mirrors a stored delivery record.
type MessageResponse struct {
	ID             uuid.UUID  `json:"id"`
	ThreadID       uuid.UUID  `json:"thread_id"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	Kind           string     `json:"kind"`
	Address        string     `json:"address"`
	Body           string     `json:"body"`
	Status         string     `json:"status"`
	DeliveryStatus string     `json:"delivery_status"`
	ErrorCode      *int32     `json:"error_code,omitempty"`
	PartTypes      []string   `json:"part_types,omitempty"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SendMessageResponse lists every record a dispatch produced. An exploded send
// returns the placeholder plus one record per recipient.
type SendMessageResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// DedupResponse reports one deduplication pass.
type DedupResponse struct {
	Result  string `json:"result"`
	Scanned int    `json:"scanned"`
	Removed int    `json:"removed"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toMessageResponse(rec *domain.DeliveryRecord) MessageResponse {
	return MessageResponse{
		ID:             rec.ID,
		ThreadID:       rec.ThreadID,
		ParentID:       rec.ParentID,
		Kind:           string(rec.Kind),
		Address:        rec.Address,
		Body:           rec.Body,
		Status:         string(rec.Status),
		DeliveryStatus: string(rec.DeliveryStatus),
		ErrorCode:      rec.ErrorCode,
		PartTypes:      rec.PartTypes,
		ScheduledFor:   rec.ScheduledFor,
		SentAt:         rec.SentAt,
		DeliveredAt:    rec.DeliveredAt,
		CreatedAt:      rec.CreatedAt,
	}
}
