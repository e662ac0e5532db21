package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
)

// MockTransport simulates a carrier transport for testing and development.
type MockTransport struct {
	logger       *slog.Logger
	name         string
	failRate     float64 // chance of a simulated rejection (0.0 to 1.0)
	minLatencyMs int
	maxLatencyMs int
	caps         Capabilities
}

// NewMockTransport creates a MockTransport with the given failure rate.
func NewMockTransport(logger *slog.Logger, name string, failRate float64, minLatencyMs, maxLatencyMs int) *MockTransport {
	if name == "" {
		name = "mock-transport"
	}
	return &MockTransport{
		logger:       logger.With("transport", name),
		name:         name,
		failRate:     failRate,
		minLatencyMs: minLatencyMs,
		maxLatencyMs: maxLatencyMs,
		caps: Capabilities{
			MaxSingleSegmentBytes: 160,
			MaxMultipartBytes:     1_000_000,
			SupportsReceipts:      true,
		},
	}
}

func (t *MockTransport) Name() string { return t.name }

func (t *MockTransport) Capabilities(ctx context.Context) (Capabilities, error) {
	return t.caps, nil
}

func (t *MockTransport) Send(ctx context.Context, txn *domain.Transaction) (*SendResult, error) {
	if t.maxLatencyMs > t.minLatencyMs {
		latency := t.minLatencyMs + rand.Intn(t.maxLatencyMs-t.minLatencyMs+1)
		select {
		case <-time.After(time.Duration(latency) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.logger.InfoContext(ctx, "MockTransport: Send called",
		"transaction_id", txn.ID,
		"kind", txn.Kind,
		"recipients", len(txn.Recipients),
		"parts", len(txn.Parts),
		"payload_size", txn.PayloadSize)

	if rand.Float64() < t.failRate {
		detail := fmt.Sprintf("MockTransport simulated rejection for transaction %s", txn.ID)
		t.logger.WarnContext(ctx, detail)
		return &SendResult{
			Accepted:  false,
			ErrorCode: 500,
			Detail:    detail,
		}, nil
	}

	return &SendResult{Accepted: true}, nil
}

func (t *MockTransport) CancelScheduled(ctx context.Context, recordID uuid.UUID) error {
	t.logger.InfoContext(ctx, "MockTransport: CancelScheduled called", "record_id", recordID)
	return nil
}
