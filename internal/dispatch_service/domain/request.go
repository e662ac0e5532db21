package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver turns an attachment reference into raw bytes plus a MIME type.
// Implementations live in adapters; a missing underlying resource is reported
// as ErrResourceMissing.
type Resolver interface {
	Open(ctx context.Context, ref string) (*Resource, error)
}

// Resource is the resolved content behind an attachment reference.
type Resource struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// OutboundRequest is the immutable input to the dispatch engine, produced by
// the compose layer and consumed exactly once.
type OutboundRequest struct {
	SubscriptionID int
	ThreadID       uuid.UUID
	Body           string
	Addresses      []string
	Attachments    []*Attachment
	SendAsGroup    bool
	Delay          time.Duration
}

// Attachment references a byte resource. Bytes are loaded lazily through a
// Resolver and can be released after encoding to bound peak memory.
type Attachment struct {
	Ref      string
	Name     string
	MimeType string

	data   []byte
	loaded bool
}

// Load resolves the attachment's bytes if they are not already held.
func (a *Attachment) Load(ctx context.Context, resolver Resolver) error {
	if a.loaded {
		return nil
	}
	res, err := resolver.Open(ctx, a.Ref)
	if err != nil {
		return err
	}
	if a.Name == "" {
		a.Name = res.Name
	}
	if a.MimeType == "" {
		a.MimeType = res.MimeType
	}
	a.data = res.Bytes
	a.loaded = true
	return nil
}

// Bytes returns the loaded payload. Nil until Load succeeds or after Release.
func (a *Attachment) Bytes() []byte { return a.data }

// Release drops the byte buffer so it can be reclaimed while other large
// attachments are still being encoded.
func (a *Attachment) Release() {
	a.data = nil
	a.loaded = false
}

// IsImage reports whether the attachment can go through the compression path.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// IsAnimated reports whether re-encoding must preserve animation.
func (a *Attachment) IsAnimated() bool {
	return a.MimeType == "image/gif"
}

// EncodedPart is a finalized part destined for a transaction.
type EncodedPart struct {
	Name     string
	MimeType string
	Data     []byte
}

// TransactionKind tags a transaction as single-segment or multipart.
type TransactionKind string

const (
	TransactionSingleSegment TransactionKind = "sms"
	TransactionMultipart     TransactionKind = "mms"
)

// Protocol metadata baseline for multipart transactions.
const (
	DefaultMessageClass = "personal"
	DefaultExpiry       = 7 * 24 * time.Hour
	DefaultPriority     = 1 // normal
)

// Transaction is the unit of send: one wire-ready envelope. A multi-recipient
// transaction exists only when the request asked for a group send; otherwise
// the exploder pre-splits into single-recipient transactions.
type Transaction struct {
	ID             uuid.UUID
	Kind           TransactionKind
	SubscriptionID int
	ThreadID       uuid.UUID
	Recipients     []string
	Body           string
	Parts          []EncodedPart
	Group          bool

	MessageClass   string
	Expiry         time.Duration
	Priority       int
	DeliveryReport bool
	ReadReport     bool

	// MissingParts names attachments whose underlying resource vanished.
	// They are dropped from the wire payload but surfaced here so the stored
	// record can carry a missing-resource indicator instead of losing them
	// without trace.
	MissingParts []string

	PayloadSize int
}

// PartTypes returns the MIME types of the transaction's parts, in order.
func (t *Transaction) PartTypes() []string {
	if len(t.Parts) == 0 {
		return nil
	}
	types := make([]string, len(t.Parts))
	for i, p := range t.Parts {
		types[i] = p.MimeType
	}
	return types
}
