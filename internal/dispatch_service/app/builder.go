package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// BuilderConfig carries the compose-layer preferences the builder honors.
type BuilderConfig struct {
	Signature           string
	StripAccents        bool
	LongTextAsMultipart bool
}

// Builder assembles a transport-ready transaction from an outbound request:
// classification, budget allocation, compression, and part assembly.
type Builder struct {
	resolver   domain.Resolver
	allocator  *Allocator
	compressor *ImageCompressor
	cfg        BuilderConfig
	logger     *slog.Logger
}

func NewBuilder(resolver domain.Resolver, allocator *Allocator, compressor *ImageCompressor, cfg BuilderConfig, logger *slog.Logger) *Builder {
	return &Builder{
		resolver:   resolver,
		allocator:  allocator,
		compressor: compressor,
		cfg:        cfg,
		logger:     logger.With("component", "builder"),
	}
}

// Build produces one transaction addressed to all the request's recipients.
// Splitting a non-group multi-recipient transaction is the exploder's job,
// not the builder's.
func (b *Builder) Build(ctx context.Context, req *domain.OutboundRequest) (*domain.Transaction, error) {
	if len(req.Addresses) == 0 {
		return nil, errors.New("outbound request has no recipients")
	}

	body := b.signedBody(req.Body)

	kind := Classify(ClassifyInput{
		Body:                body,
		AttachmentCount:     len(req.Attachments),
		RecipientCount:      len(req.Addresses),
		SendAsGroup:         req.SendAsGroup,
		LongTextAsMultipart: b.cfg.LongTextAsMultipart,
		StripAccents:        b.cfg.StripAccents,
	})

	txn := &domain.Transaction{
		ID:             uuid.New(),
		Kind:           kind,
		SubscriptionID: req.SubscriptionID,
		ThreadID:       req.ThreadID,
		Recipients:     trimAddresses(req.Addresses),
		Group:          req.SendAsGroup,
		MessageClass:   domain.DefaultMessageClass,
		Expiry:         domain.DefaultExpiry,
		Priority:       domain.DefaultPriority,
		DeliveryReport: false,
		ReadReport:     false,
	}

	if kind == domain.TransactionSingleSegment {
		if b.cfg.StripAccents {
			body = StripAccents(body)
		}
		txn.Body = body
		txn.PayloadSize = len(body)
		return txn, nil
	}

	parts, missing, err := b.assembleParts(ctx, body, req.Attachments)
	if err != nil {
		return nil, err
	}

	txn.Body = body
	txn.Parts = parts
	txn.MissingParts = missing
	for _, p := range parts {
		txn.PayloadSize += len(p.Data)
	}
	return txn, nil
}

// signedBody appends the configured signature to the body. An empty body
// becomes just the signature.
func (b *Builder) signedBody(body string) string {
	switch {
	case b.cfg.Signature == "":
		return body
	case body != "":
		return body + "\n" + b.cfg.Signature
	default:
		return b.cfg.Signature
	}
}

// assembleParts encodes attachments under the transaction byte budget and
// prepends the compatibility document.
func (b *Builder) assembleParts(ctx context.Context, body string, attachments []*domain.Attachment) ([]domain.EncodedPart, []string, error) {
	bodyBytes := []byte(body)

	remaining, err := b.allocator.RemainingAfterBody(ctx, len(bodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("compute transaction budget: %w", err)
	}

	var parts []domain.EncodedPart
	var missing []string

	if len(bodyBytes) > 0 {
		parts = append(parts, domain.EncodedPart{Name: "text", MimeType: "text/plain", Data: bodyBytes})
	}

	// Non-images cannot be shrunk: include them at full size and charge them
	// against the budget before the image pass.
	var images []*domain.Attachment
	for _, att := range attachments {
		if err := att.Load(ctx, b.resolver); err != nil {
			b.logger.WarnContext(ctx, "skipping attachment with missing resource",
				"ref", att.Ref, "name", att.Name, "error", err)
			missing = append(missing, att.Name)
			continue
		}
		if att.IsImage() {
			images = append(images, att)
			continue
		}
		data := att.Bytes()
		remaining -= float64(len(data))
		parts = append(parts, domain.EncodedPart{Name: att.Name, MimeType: att.MimeType, Data: data})
		att.Release()
	}

	totalRawImageBytes := 0
	for _, att := range images {
		totalRawImageBytes += len(att.Bytes())
	}

	if float64(totalRawImageBytes) <= remaining {
		// Everything fits raw; no re-encoding.
		for _, att := range images {
			parts = append(parts, domain.EncodedPart{Name: att.Name, MimeType: att.MimeType, Data: att.Bytes()})
			att.Release()
		}
	} else {
		for _, att := range images {
			subBudget := ProportionalSubBudget(len(att.Bytes()), totalRawImageBytes, remaining)
			data, mimeType, err := b.compressor.ShrinkToFit(ctx, att, subBudget)
			if err != nil && !errors.Is(err, domain.ErrBudgetExhausted) {
				b.logger.WarnContext(ctx, "image re-encode failed, sending original bytes",
					"name", att.Name, "error", err)
			}
			compressionOutcomeCounter.WithLabelValues(outcomeLabel(err)).Inc()
			parts = append(parts, domain.EncodedPart{Name: att.Name, MimeType: mimeType, Data: data})
			att.Release()
		}
	}

	doc := buildCompatibilityDoc(parts)
	parts = append([]domain.EncodedPart{{Name: compatDocName, MimeType: compatDocMimeType, Data: doc}}, parts...)

	return parts, missing, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "fit"
	case errors.Is(err, domain.ErrBudgetExhausted):
		return "budget_exhausted"
	default:
		return "encode_error"
	}
}

func trimAddresses(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
