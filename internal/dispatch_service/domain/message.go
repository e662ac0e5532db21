package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStatus defines the send-side states of a delivery record.
type MessageStatus string

const (
	MessageStatusCreated   MessageStatus = "created"
	MessageStatusScheduled MessageStatus = "scheduled" // delayed send, trigger not yet fired
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
)

// Value implements driver.Valuer for MessageStatus.
func (ms MessageStatus) Value() (driver.Value, error) {
	return string(ms), nil
}

// Scan implements sql.Scanner for MessageStatus.
func (ms *MessageStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan MessageStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*ms = MessageStatus(strVal)
	switch *ms {
	case MessageStatusCreated, MessageStatusScheduled, MessageStatusSending, MessageStatusSent, MessageStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown MessageStatus value: %s", strVal)
	}
}

// IsTerminal reports whether no further send-side transition applies.
// Sent records may still receive a delivery receipt, but the send path is done.
func (ms MessageStatus) IsTerminal() bool {
	return ms == MessageStatusSent || ms == MessageStatusFailed
}

// DeliveryStatus tracks the asynchronous delivery receipt, which only applies
// to single-segment sends on transports that support receipts.
type DeliveryStatus string

const (
	DeliveryStatusNone      DeliveryStatus = "none"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Value implements driver.Valuer for DeliveryStatus.
func (ds DeliveryStatus) Value() (driver.Value, error) {
	return string(ds), nil
}

// Scan implements sql.Scanner for DeliveryStatus.
func (ds *DeliveryStatus) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan DeliveryStatus: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*ds = DeliveryStatus(strVal)
	switch *ds {
	case DeliveryStatusNone, DeliveryStatusDelivered, DeliveryStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown DeliveryStatus value: %s", strVal)
	}
}

// Direction of a stored message.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// DeliveryRecord is the persisted state of one transaction. Created when a
// transaction is first persisted, mutated only by the delivery state machine
// and by receipt callbacks, deleted only by explicit user deletion or dedup.
type DeliveryRecord struct {
	ID             uuid.UUID      `json:"id"`
	Seq            int64          `json:"seq"` // stable insertion-order key
	ThreadID       uuid.UUID      `json:"thread_id"`
	ParentID       *uuid.UUID     `json:"parent_id,omitempty"` // placeholder record for exploded sends
	Direction      Direction      `json:"direction"`
	Kind           TransactionKind `json:"kind"`
	Address        string         `json:"address"` // empty for a multi-recipient placeholder
	Body           string         `json:"body"`
	Status         MessageStatus  `json:"status"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	ErrorCode      *int32         `json:"error_code,omitempty"`
	Read           bool           `json:"read"`
	PartTypes      []string       `json:"part_types,omitempty"` // MIME types of attached parts, in order
	ScheduledFor   *time.Time     `json:"scheduled_for,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
