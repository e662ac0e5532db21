package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/scheduler"
	"github.com/smskit/dispatch/internal/dispatch_service/adapters/transport"
	"github.com/smskit/dispatch/internal/dispatch_service/domain"
	"github.com/smskit/dispatch/internal/dispatch_service/repository"
)

// transportErrorGeneric is recorded when the transport call itself errored
// rather than returning a carrier code.
const transportErrorGeneric int32 = 1

// scheduledFireTimeout bounds the dispatch work done when a delayed send's
// trigger fires off the request path.
const scheduledFireTimeout = 60 * time.Second

// DeliveryReceipt is the transport's asynchronous delivery notification,
// consumed from the message broker.
type DeliveryReceipt struct {
	RecordID  uuid.UUID `json:"record_id"`
	Delivered bool      `json:"delivered"`
	ErrorCode *int32    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher turns outbound requests into transactions and drives each
// through the delivery state machine.
type Dispatcher struct {
	repo      repository.MessageRepository
	transport transport.Transport
	sched     scheduler.Scheduler
	builder   *Builder
	logger    *slog.Logger

	// locks serializes status writers per record: the send path and the
	// asynchronous receipt path both go through here.
	locks sync.Map // uuid.UUID -> *sync.Mutex

	// pending holds wire payloads for scheduled and failed records so
	// send-now and retry can re-submit without re-encoding. Entries do not
	// survive a restart; a retry after restart falls back to a text-only
	// rebuild from the stored record.
	pending sync.Map // uuid.UUID -> *domain.Transaction
}

func NewDispatcher(
	repo repository.MessageRepository,
	t transport.Transport,
	sched scheduler.Scheduler,
	builder *Builder,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		transport: t,
		sched:     sched,
		builder:   builder,
		logger:    logger.With("service", "dispatcher"),
	}
}

// Dispatch consumes an outbound request: builds the transaction, explodes it
// when needed, and drives every resulting transaction to a terminal send
// state. The returned records reflect the state at return time.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.OutboundRequest) ([]*domain.DeliveryRecord, error) {
	txn, err := d.builder.Build(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	if req.Delay > 0 {
		rec, err := d.scheduleDelayed(ctx, txn, req.Delay)
		if err != nil {
			return nil, err
		}
		return []*domain.DeliveryRecord{rec}, nil
	}

	return d.send(ctx, txn)
}

func (d *Dispatcher) send(ctx context.Context, txn *domain.Transaction) ([]*domain.DeliveryRecord, error) {
	if !txn.Group && len(txn.Recipients) > 1 {
		return d.explode(ctx, txn, nil)
	}

	rec, err := d.createRecord(ctx, txn, nil, domain.MessageStatusCreated, nil)
	if err != nil {
		return nil, err
	}
	d.pending.Store(rec.ID, txn)
	d.drive(ctx, rec.ID, txn)

	updated, err := d.repo.GetByID(ctx, rec.ID)
	if err != nil {
		return []*domain.DeliveryRecord{rec}, nil
	}
	return []*domain.DeliveryRecord{updated}, nil
}

// explode splits a non-group multi-recipient transaction into independent
// single-recipient transactions sharing the same body and parts. Children
// dispatch concurrently; the parent placeholder is marked sent only after
// every child has been attempted, successfully or not.
func (d *Dispatcher) explode(ctx context.Context, txn *domain.Transaction, existingParentID *uuid.UUID) ([]*domain.DeliveryRecord, error) {
	parentID := existingParentID
	var records []*domain.DeliveryRecord

	if parentID == nil {
		parent, err := d.createRecord(ctx, txn, nil, domain.MessageStatusCreated, nil)
		if err != nil {
			// Children can still be attempted without a placeholder.
			d.logger.WarnContext(ctx, "failed to persist placeholder record for exploded send", "error", err)
		} else {
			parentID = &parent.ID
			records = append(records, parent)
		}
	}

	children := make([]*domain.DeliveryRecord, len(txn.Recipients))
	g, gctx := errgroup.WithContext(ctx)
	for i, recipient := range txn.Recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			child := *txn
			child.ID = uuid.New()
			child.Recipients = []string{recipient}
			child.Group = false

			rec, err := d.createRecord(gctx, &child, parentID, domain.MessageStatusCreated, nil)
			if err != nil {
				// Isolated: one bad recipient never blocks the siblings.
				d.logger.ErrorContext(gctx, "failed to persist exploded transaction",
					"recipient", recipient, "error", err)
				return nil
			}
			d.pending.Store(rec.ID, &child)
			d.drive(gctx, rec.ID, &child)
			children[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	// All children attempted: close the placeholder.
	if parentID != nil {
		d.markSent(ctx, *parentID)
	}

	for _, rec := range children {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// drive runs one transaction through Created -> Sending -> {Sent|Failed}.
func (d *Dispatcher) drive(ctx context.Context, id uuid.UUID, txn *domain.Transaction) {
	mu := d.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	d.driveLocked(ctx, id, txn)
}

func (d *Dispatcher) driveLocked(ctx context.Context, id uuid.UUID, txn *domain.Transaction) {
	if err := d.repo.UpdateStatus(ctx, id, domain.MessageStatusSending, nil, nil); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark record sending", "record_id", id, "error", err)
		return
	}

	timer := prometheus.NewTimer(transportSendDurationHist.WithLabelValues(d.transport.Name()))
	result, err := d.transport.Send(ctx, txn)
	timer.ObserveDuration()

	switch {
	case err != nil:
		d.logger.ErrorContext(ctx, "transport send errored", "record_id", id, "error", err)
		d.markFailedLocked(ctx, id, transportErrorGeneric)
	case !result.Accepted:
		d.logger.WarnContext(ctx, "transport rejected transaction",
			"record_id", id, "error_code", result.ErrorCode, "detail", result.Detail)
		d.markFailedLocked(ctx, id, result.ErrorCode)
	default:
		d.markSentLocked(ctx, id)
		d.pending.Delete(id)
	}
	transactionsDispatchedCounter.WithLabelValues(string(txn.Kind), sendOutcome(err, result)).Inc()
}

func (d *Dispatcher) markSent(ctx context.Context, id uuid.UUID) {
	mu := d.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	d.markSentLocked(ctx, id)
}

func (d *Dispatcher) markSentLocked(ctx context.Context, id uuid.UUID) {
	now := time.Now().UTC()
	if err := d.repo.UpdateStatus(ctx, id, domain.MessageStatusSent, nil, &now); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark record sent", "record_id", id, "error", err)
	}
}

// markFailedLocked records a terminal failure. A record already failed is
// left alone so retry storms don't repeat failure side effects.
func (d *Dispatcher) markFailedLocked(ctx context.Context, id uuid.UUID, code int32) {
	rec, err := d.repo.GetByID(ctx, id)
	if err == nil && rec.Status == domain.MessageStatusFailed {
		d.logger.DebugContext(ctx, "record already failed, skipping re-mark", "record_id", id)
		return
	}
	if err := d.repo.UpdateStatus(ctx, id, domain.MessageStatusFailed, &code, nil); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark record failed", "record_id", id, "error", err)
	}
}

// Retry re-enters Sending for a failed record and re-invokes the transport.
// The stored error code survives until the retry reaches a new terminal
// state.
func (d *Dispatcher) Retry(ctx context.Context, id uuid.UUID) error {
	mu := d.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	rec, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != domain.MessageStatusFailed {
		return fmt.Errorf("record %s is %s, only failed records can be retried", id, rec.Status)
	}

	txn := d.transactionFor(rec)
	d.driveLocked(ctx, id, txn)
	return nil
}

// scheduleDelayed persists the record in the scheduled state and arms the
// trigger.
func (d *Dispatcher) scheduleDelayed(ctx context.Context, txn *domain.Transaction, delay time.Duration) (*domain.DeliveryRecord, error) {
	fireAt := time.Now().UTC().Add(delay)
	rec, err := d.createRecord(ctx, txn, nil, domain.MessageStatusScheduled, &fireAt)
	if err != nil {
		return nil, err
	}
	d.pending.Store(rec.ID, txn)

	d.sched.Schedule(rec.ID, fireAt, func() {
		fireCtx, cancel := context.WithTimeout(context.Background(), scheduledFireTimeout)
		defer cancel()
		if err := d.dispatchScheduled(fireCtx, rec.ID); err != nil {
			d.logger.Error("scheduled send failed to dispatch", "record_id", rec.ID, "error", err)
		}
	})

	d.logger.InfoContext(ctx, "send scheduled", "record_id", rec.ID, "fire_at", fireAt)
	return rec, nil
}

// SendNow cancels a pending scheduled trigger and dispatches immediately.
// Removing the trigger is the prerequisite: with no trigger pending this is
// ErrNotScheduled.
func (d *Dispatcher) SendNow(ctx context.Context, id uuid.UUID) error {
	if !d.sched.Cancel(id) {
		return domain.ErrNotScheduled
	}
	return d.dispatchScheduled(ctx, id)
}

// CancelScheduled removes the trigger and deletes the never-sent record.
func (d *Dispatcher) CancelScheduled(ctx context.Context, id uuid.UUID) error {
	if !d.sched.Cancel(id) {
		return domain.ErrNotScheduled
	}
	if err := d.transport.CancelScheduled(ctx, id); err != nil {
		d.logger.WarnContext(ctx, "transport cancel failed", "record_id", id, "error", err)
	}
	d.pending.Delete(id)
	if err := d.repo.DeleteBatch(ctx, []uuid.UUID{id}); err != nil {
		return fmt.Errorf("delete cancelled record: %w", err)
	}
	d.logger.InfoContext(ctx, "scheduled send cancelled", "record_id", id)
	return nil
}

// dispatchScheduled runs a previously scheduled record through the pipeline.
// A multi-recipient non-group payload explodes here, with the scheduled
// record serving as the placeholder.
func (d *Dispatcher) dispatchScheduled(ctx context.Context, id uuid.UUID) error {
	txn := d.pendingTransaction(id)
	if txn == nil {
		rec, err := d.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		txn = d.transactionFor(rec)
	}

	if !txn.Group && len(txn.Recipients) > 1 {
		_, err := d.explode(ctx, txn, &id)
		return err
	}
	d.drive(ctx, id, txn)
	return nil
}

// HandleReceipt applies an asynchronous delivery receipt. A receipt for a
// record deleted in the meantime is a no-op rather than a resurrection.
func (d *Dispatcher) HandleReceipt(ctx context.Context, receipt DeliveryReceipt) error {
	mu := d.lockFor(receipt.RecordID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := d.repo.GetByID(ctx, receipt.RecordID); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			d.logger.InfoContext(ctx, "receipt for deleted record ignored", "record_id", receipt.RecordID)
			receiptsProcessedCounter.WithLabelValues("orphaned").Inc()
			return nil
		}
		receiptsProcessedCounter.WithLabelValues("error").Inc()
		return err
	}

	status := domain.DeliveryStatusDelivered
	label := "delivered"
	if !receipt.Delivered {
		status = domain.DeliveryStatusFailed
		label = "delivery_failed"
	}

	deliveredAt := receipt.Timestamp
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	if err := d.repo.UpdateDeliveryStatus(ctx, receipt.RecordID, status, deliveredAt, receipt.ErrorCode); err != nil {
		receiptsProcessedCounter.WithLabelValues("error").Inc()
		return fmt.Errorf("apply delivery receipt: %w", err)
	}
	if receipt.Delivered {
		d.pending.Delete(receipt.RecordID)
	}
	receiptsProcessedCounter.WithLabelValues(label).Inc()
	return nil
}

func (d *Dispatcher) createRecord(ctx context.Context, txn *domain.Transaction, parentID *uuid.UUID, status domain.MessageStatus, scheduledFor *time.Time) (*domain.DeliveryRecord, error) {
	address := ""
	if len(txn.Recipients) == 1 {
		address = txn.Recipients[0]
	}

	partTypes := txn.PartTypes()
	for _, name := range txn.MissingParts {
		partTypes = append(partTypes, "missing:"+name)
	}

	rec := &domain.DeliveryRecord{
		ID:             txn.ID,
		ThreadID:       txn.ThreadID,
		ParentID:       parentID,
		Direction:      domain.DirectionOutbound,
		Kind:           txn.Kind,
		Address:        address,
		Body:           txn.Body,
		Status:         status,
		DeliveryStatus: domain.DeliveryStatusNone,
		PartTypes:      partTypes,
		ScheduledFor:   scheduledFor,
	}

	created, err := d.repo.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotCreated, err)
	}
	return created, nil
}

// transactionFor rebuilds a wire payload from a stored record. Part payloads
// are not persisted, so this is text-only; retries of multipart sends rely
// on the in-memory pending cache.
func (d *Dispatcher) transactionFor(rec *domain.DeliveryRecord) *domain.Transaction {
	if txn := d.pendingTransaction(rec.ID); txn != nil {
		return txn
	}
	if len(rec.PartTypes) > 0 {
		d.logger.Warn("rebuilding transaction without original parts", "record_id", rec.ID)
	}
	return &domain.Transaction{
		ID:           rec.ID,
		Kind:         rec.Kind,
		ThreadID:     rec.ThreadID,
		Recipients:   []string{rec.Address},
		Body:         rec.Body,
		MessageClass: domain.DefaultMessageClass,
		Expiry:       domain.DefaultExpiry,
		Priority:     domain.DefaultPriority,
		PayloadSize:  len(rec.Body),
	}
}

func (d *Dispatcher) pendingTransaction(id uuid.UUID) *domain.Transaction {
	if v, ok := d.pending.Load(id); ok {
		return v.(*domain.Transaction)
	}
	return nil
}

func (d *Dispatcher) lockFor(id uuid.UUID) *sync.Mutex {
	v, _ := d.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func sendOutcome(err error, result *transport.SendResult) string {
	switch {
	case err != nil:
		return "transport_error"
	case !result.Accepted:
		return "rejected"
	default:
		return "sent"
	}
}
