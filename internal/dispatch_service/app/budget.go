package app

import (
	"context"
	"fmt"
	"math"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/transport"
)

// Sentinels for the configured maximum transaction size.
const (
	MaxSizeUnlimited     = 0
	MaxSizeFromTransport = -1
)

// envelopeReserve leaves headroom for container/envelope overhead the parts
// themselves don't account for.
const envelopeReserve = 0.9

// Allocator computes the byte budget available to a transaction's parts.
type Allocator struct {
	maxSize   int
	transport transport.Transport
}

func NewAllocator(maxSize int, t transport.Transport) *Allocator {
	return &Allocator{maxSize: maxSize, transport: t}
}

// RemainingAfterBody returns the byte budget left for attachment parts once
// the serialized body text is accounted for. Unlimited budgets come back as
// +Inf; a negative result means even the text overflows and attachments go
// out at best effort.
func (a *Allocator) RemainingAfterBody(ctx context.Context, bodyBytes int) (float64, error) {
	maxSize := a.maxSize
	if maxSize == MaxSizeFromTransport {
		caps, err := a.transport.Capabilities(ctx)
		if err != nil {
			return 0, fmt.Errorf("query transport capabilities: %w", err)
		}
		maxSize = caps.MaxMultipartBytes
	}
	if maxSize == MaxSizeUnlimited {
		return math.Inf(1), nil
	}
	return float64(maxSize)*envelopeReserve - float64(bodyBytes), nil
}

// ProportionalSubBudget apportions the remaining budget across images by
// their share of the combined raw image bytes.
func ProportionalSubBudget(rawBytes, totalRawBytes int, remaining float64) float64 {
	if totalRawBytes == 0 {
		return 0
	}
	return float64(rawBytes) / float64(totalRawBytes) * remaining
}
