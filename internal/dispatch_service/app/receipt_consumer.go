package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/smskit/dispatch/internal/platform/messagebroker"
)

// receiptHandleTimeout bounds processing of one receipt message.
const receiptHandleTimeout = 30 * time.Second

// ReceiptConsumer subscribes to the transport's delivery receipt subject and
// feeds receipts into the delivery state machine.
type ReceiptConsumer struct {
	dispatcher *Dispatcher
	broker     messagebroker.Client
	logger     *slog.Logger
	sub        messagebroker.Subscription
}

func NewReceiptConsumer(dispatcher *Dispatcher, broker messagebroker.Client, logger *slog.Logger) *ReceiptConsumer {
	return &ReceiptConsumer{
		dispatcher: dispatcher,
		broker:     broker,
		logger:     logger.With("service", "receipt_consumer"),
	}
}

// Start subscribes to the receipt subject with a queue group so multiple
// instances share the load.
func (c *ReceiptConsumer) Start(ctx context.Context, subject, queueGroup string) error {
	c.logger.Info("starting receipt consumer", "subject", subject, "queue_group", queueGroup)

	handler := func(msg messagebroker.Message) {
		var receipt DeliveryReceipt
		if err := json.Unmarshal(msg.Data(), &receipt); err != nil {
			c.logger.Error("failed to unmarshal delivery receipt",
				"error", err, "subject", msg.Subject(), "data_len", len(msg.Data()))
			receiptsProcessedCounter.WithLabelValues("error").Inc()
			return
		}

		handleCtx, cancel := context.WithTimeout(context.Background(), receiptHandleTimeout)
		defer cancel()

		if err := c.dispatcher.HandleReceipt(handleCtx, receipt); err != nil {
			c.logger.Error("failed to process delivery receipt",
				"error", err, "record_id", receipt.RecordID)
		}
	}

	sub, err := c.broker.SubscribeQueue(ctx, subject, queueGroup, handler)
	if err != nil {
		return fmt.Errorf("subscribe to receipt subject %q: %w", subject, err)
	}
	c.sub = sub
	return nil
}

// Stop unsubscribes from the receipt subject.
func (c *ReceiptConsumer) Stop() {
	if c.sub != nil && c.sub.IsValid() {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Error("failed to unsubscribe receipt consumer", "error", err)
		}
	}
}
