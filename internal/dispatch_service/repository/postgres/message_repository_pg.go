package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
	"github.com/smskit/dispatch/internal/dispatch_service/repository"
)

type pgMessageRepository struct {
	db *pgxpool.Pool
}

// NewPgMessageRepository creates a PostgreSQL-backed message repository.
func NewPgMessageRepository(db *pgxpool.Pool) repository.MessageRepository {
	return &pgMessageRepository{db: db}
}

const messageColumns = `
	id, seq, thread_id, parent_id, direction, kind, address, body, status,
	delivery_status, error_code, read, part_types, scheduled_for, sent_at,
	delivered_at, created_at, updated_at`

func (r *pgMessageRepository) Create(ctx context.Context, rec *domain.DeliveryRecord) (*domain.DeliveryRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.MessageStatusCreated
	}
	if rec.DeliveryStatus == "" {
		rec.DeliveryStatus = domain.DeliveryStatusNone
	}
	if rec.Direction == "" {
		rec.Direction = domain.DirectionOutbound
	}

	query := `
		INSERT INTO delivery_records (
			id, thread_id, parent_id, direction, kind, address, body, status,
			delivery_status, error_code, read, part_types, scheduled_for,
			sent_at, delivered_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING seq
	`
	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.ThreadID, rec.ParentID, rec.Direction, rec.Kind, rec.Address, rec.Body, rec.Status,
		rec.DeliveryStatus, rec.ErrorCode, rec.Read, rec.PartTypes, rec.ScheduledFor,
		rec.SentAt, rec.DeliveredAt, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return nil, domain.ErrNotCreated
	}
	return rec, nil
}

func (r *pgMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM delivery_records WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *pgMessageRepository) GetByThread(ctx context.Context, threadID uuid.UUID) ([]*domain.DeliveryRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM delivery_records WHERE thread_id = $1 ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *pgMessageRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, errorCode *int32, sentAt *time.Time) error {
	now := time.Now().UTC()
	// Reaching sent is a new terminal state: a stale error code from a
	// failed attempt is cleared. Everywhere else the old code survives
	// until explicitly replaced.
	query := `
		UPDATE delivery_records
		SET status = $2,
		    error_code = CASE WHEN $2 = 'sent' THEN $3 ELSE COALESCE($3, error_code) END,
		    sent_at = COALESCE($4, sent_at),
		    updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, errorCode, sentAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *pgMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, deliveredAt time.Time, errorCode *int32) error {
	now := time.Now().UTC()
	query := `
		UPDATE delivery_records
		SET delivery_status = $2,
		    delivered_at = $3,
		    error_code = COALESCE($4, error_code),
		    read = TRUE,
		    updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, deliveredAt, errorCode, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *pgMessageRepository) ListOrdered(ctx context.Context) ([]*domain.DeliveryRecord, error) {
	query := `SELECT ` + messageColumns + ` FROM delivery_records ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *pgMessageRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `DELETE FROM delivery_records WHERE id = ANY($1)`, ids)
	return err
}

func scanRecord(row pgx.Row) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{}
	err := row.Scan(
		&rec.ID, &rec.Seq, &rec.ThreadID, &rec.ParentID, &rec.Direction, &rec.Kind, &rec.Address, &rec.Body, &rec.Status,
		&rec.DeliveryStatus, &rec.ErrorCode, &rec.Read, &rec.PartTypes, &rec.ScheduledFor, &rec.SentAt,
		&rec.DeliveredAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]*domain.DeliveryRecord, error) {
	var records []*domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
