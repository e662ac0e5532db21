package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/smskit/dispatch/internal/dispatch_service/domain"
	"github.com/smskit/dispatch/internal/dispatch_service/repository"
)

// DedupProgressInterval is how often the progress callback fires, in records.
const DedupProgressInterval = 100

// DedupResult distinguishes a pass that removed duplicates from one that
// found none.
type DedupResult string

const (
	DedupResultSuccess      DedupResult = "success"
	DedupResultNoDuplicates DedupResult = "no_duplicates"
)

// DedupReport summarizes one deduplication pass.
type DedupReport struct {
	Result  DedupResult `json:"result"`
	Scanned int         `json:"scanned"`
	Removed int         `json:"removed"`
}

// ProgressFunc receives (processed, total) at a fixed cadence and on
// completion.
type ProgressFunc func(processed, total int)

// Deduplicator removes content-identical historical records. It takes one
// ordered snapshot, holds no lock for the scan, and deletes duplicates in a
// single batch; records inserted after the snapshot are out of scope.
type Deduplicator struct {
	repo   repository.MessageRepository
	logger *slog.Logger
}

func NewDeduplicator(repo repository.MessageRepository, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		repo:   repo,
		logger: logger.With("service", "deduplicator"),
	}
}

// Run scans all records ascending by insertion order. The first record with
// a given signature is kept; later ones are collected and deleted in one
// batch. Per-record failures are skipped, never fatal.
func (d *Deduplicator) Run(ctx context.Context, progress ProgressFunc) (*DedupReport, error) {
	records, err := d.repo.ListOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot records for dedup: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	var duplicates []uuid.UUID

	for i, rec := range records {
		sig, err := recordSignature(rec)
		if err != nil {
			d.logger.DebugContext(ctx, "skipping record during dedup", "index", i, "error", err)
			continue
		}
		if _, ok := seen[sig]; ok {
			duplicates = append(duplicates, rec.ID)
		} else {
			seen[sig] = struct{}{}
		}

		if progress != nil && (i+1)%DedupProgressInterval == 0 {
			progress(i+1, len(records))
		}
	}
	if progress != nil {
		progress(len(records), len(records))
	}

	if len(duplicates) == 0 {
		d.logger.InfoContext(ctx, "dedup pass found no duplicates", "scanned", len(records))
		return &DedupReport{Result: DedupResultNoDuplicates, Scanned: len(records)}, nil
	}

	if err := d.repo.DeleteBatch(ctx, duplicates); err != nil {
		return nil, fmt.Errorf("delete %d duplicates: %w", len(duplicates), err)
	}

	dedupRecordsRemovedCounter.Add(float64(len(duplicates)))
	d.logger.InfoContext(ctx, "dedup pass removed duplicates",
		"scanned", len(records), "removed", len(duplicates))
	return &DedupReport{
		Result:  DedupResultSuccess,
		Scanned: len(records),
		Removed: len(duplicates),
	}, nil
}

// recordSignature hashes the fields that make two records the same message:
// address, sent timestamp, box status, body, and the attachment type
// fingerprint. Records differing in any one field never collide.
func recordSignature(rec *domain.DeliveryRecord) (string, error) {
	if rec == nil {
		return "", errors.New("nil record")
	}

	sentAt := int64(0)
	if rec.SentAt != nil {
		sentAt = rec.SentAt.UnixMilli()
	}

	h := sha256.New()
	h.Write([]byte(rec.Address))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(sentAt, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(rec.Status))
	h.Write([]byte{'|'})
	h.Write([]byte(rec.Body))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(rec.PartTypes, ",")))
	return hex.EncodeToString(h.Sum(nil)), nil
}
