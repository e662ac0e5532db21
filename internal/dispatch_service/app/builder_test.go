package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/resource"
	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

func newTestBuilder(resolver domain.Resolver, cfg BuilderConfig) *Builder {
	log := testLogger()
	return NewBuilder(resolver, NewAllocator(MaxSizeUnlimited, nil), NewImageCompressor(log), cfg, log)
}

func TestBuilder_SingleSegment(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "hello",
		Addresses: []string{"+15551230001"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSingleSegment, txn.Kind)
	assert.Equal(t, "hello", txn.Body)
	assert.Empty(t, txn.Parts)
	assert.Equal(t, len("hello"), txn.PayloadSize)
	assert.Equal(t, []string{"+15551230001"}, txn.Recipients)
}

func TestBuilder_NoRecipients(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{})

	_, err := b.Build(context.Background(), &domain.OutboundRequest{Body: "hello"})
	assert.Error(t, err)
}

func TestBuilder_SignatureAppended(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{Signature: "-- sent from work"})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "hello",
		Addresses: []string{"+15551230001"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello\n-- sent from work", txn.Body)
}

func TestBuilder_SignatureOnEmptyBody(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{Signature: "sig"})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "",
		Addresses: []string{"+15551230001"},
	})

	require.NoError(t, err)
	assert.Equal(t, "sig", txn.Body)
}

func TestBuilder_StripAccentsOnSingleSegment(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{StripAccents: true})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "café",
		Addresses: []string{"+15551230001"},
	})

	require.NoError(t, err)
	assert.Equal(t, "cafe", txn.Body)
}

func TestBuilder_MultipartPrependsCompatibilityDoc(t *testing.T) {
	resolver := resource.NewMemoryResolver()
	resolver.Put("pic", domain.Resource{Name: "pic.jpg", MimeType: "image/jpeg", Bytes: noiseJPEG(t, 32, 32)})

	b := newTestBuilder(resolver, BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:        "look at this",
		Addresses:   []string{"+15551230001"},
		Attachments: []*domain.Attachment{{Ref: "pic"}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionMultipart, txn.Kind)
	require.GreaterOrEqual(t, len(txn.Parts), 3)

	first := txn.Parts[0]
	assert.Equal(t, "smil.xml", first.Name)
	assert.Equal(t, "application/smil", first.MimeType)
	assert.True(t, strings.HasPrefix(string(first.Data), "<smil>"))

	assert.Equal(t, "text/plain", txn.Parts[1].MimeType)
	assert.Equal(t, "image/jpeg", txn.Parts[2].MimeType)

	wantSize := 0
	for _, p := range txn.Parts {
		wantSize += len(p.Data)
	}
	assert.Equal(t, wantSize, txn.PayloadSize)
}

func TestBuilder_MissingAttachmentSurfaced(t *testing.T) {
	resolver := resource.NewMemoryResolver()
	resolver.Put("pic", domain.Resource{Name: "pic.jpg", MimeType: "image/jpeg", Bytes: noiseJPEG(t, 32, 32)})

	b := newTestBuilder(resolver, BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "two files",
		Addresses: []string{"+15551230001"},
		Attachments: []*domain.Attachment{
			{Ref: "pic"},
			{Ref: "gone", Name: "vacation.mp4"},
		},
	})

	require.NoError(t, err, "a vanished resource must not abort the send")
	assert.Equal(t, []string{"vacation.mp4"}, txn.MissingParts)

	for _, p := range txn.Parts {
		assert.NotEqual(t, "vacation.mp4", p.Name, "missing parts stay out of the wire payload")
	}
}

func TestBuilder_OversizedImageCompressedIntoBudget(t *testing.T) {
	raw := noiseJPEG(t, 400, 300)
	maxSize := len(raw) / 2 // body is empty, so the part budget is max*0.9

	resolver := resource.NewMemoryResolver()
	resolver.Put("pic", domain.Resource{Name: "pic.jpg", MimeType: "image/jpeg", Bytes: raw})

	log := testLogger()
	b := NewBuilder(resolver, NewAllocator(maxSize, nil), NewImageCompressor(log), BuilderConfig{}, log)

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:        "",
		Addresses:   []string{"+15551230001"},
		Attachments: []*domain.Attachment{{Ref: "pic"}},
	})

	require.NoError(t, err, "an image that cannot fit still goes out best effort")

	var image *domain.EncodedPart
	for i := range txn.Parts {
		if strings.HasPrefix(txn.Parts[i].MimeType, "image/") {
			image = &txn.Parts[i]
		}
	}
	require.NotNil(t, image)
	assert.Less(t, len(image.Data), len(raw), "the oversized image must be re-encoded smaller")
}

func TestBuilder_GroupSendStaysOneTransaction(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:        "party tonight",
		Addresses:   []string{"+1", "+2", "+3"},
		SendAsGroup: true,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionMultipart, txn.Kind)
	assert.True(t, txn.Group)
	assert.Len(t, txn.Recipients, 3)
}

func TestBuilder_NonImageAttachmentKeptRaw(t *testing.T) {
	payload := []byte("%PDF-1.4 pretend document")
	resolver := resource.NewMemoryResolver()
	resolver.Put("doc", domain.Resource{Name: "doc.pdf", MimeType: "application/pdf", Bytes: payload})

	b := newTestBuilder(resolver, BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:        "contract attached",
		Addresses:   []string{"+15551230001"},
		Attachments: []*domain.Attachment{{Ref: "doc"}},
	})

	require.NoError(t, err)

	var found bool
	for _, p := range txn.Parts {
		if p.MimeType == "application/pdf" {
			found = true
			assert.Equal(t, payload, p.Data)
		}
	}
	assert.True(t, found)
}

func TestBuilder_ProtocolDefaults(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:        "hi all",
		Addresses:   []string{"+1", "+2"},
		SendAsGroup: true,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMessageClass, txn.MessageClass)
	assert.Equal(t, domain.DefaultExpiry, txn.Expiry)
	assert.Equal(t, domain.DefaultPriority, txn.Priority)
	assert.False(t, txn.DeliveryReport)
	assert.False(t, txn.ReadReport)
}

func TestBuilder_TrimsBlankAddresses(t *testing.T) {
	b := newTestBuilder(resource.NewMemoryResolver(), BuilderConfig{})

	txn, err := b.Build(context.Background(), &domain.OutboundRequest{
		Body:      "hi",
		Addresses: []string{" +15551230001 ", "", "  "},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"+15551230001"}, txn.Recipients)
}
