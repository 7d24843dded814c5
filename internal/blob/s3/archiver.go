package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// archivePageSize bounds one store query while paging through old records.
const archivePageSize = 1000

// SettlementArchiveStore is the slice of the settlement store the archiver
// reads from.
type SettlementArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Settlement, error)
}

// AuditArchiveStore is the slice of the audit store the archiver reads from.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// Archiver copies old settlements and audit entries into object storage as
// JSONL files partitioned by year-month. It never deletes from the primary
// store; pruning is a separate explicit step once an archive is verified.
type Archiver struct {
	writer domain.BlobWriter
	settle SettlementArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
}

// NewArchiver creates an Archiver writing through the given BlobWriter.
func NewArchiver(writer domain.BlobWriter, settle SettlementArchiveStore, audit AuditArchiveStore, log domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		settle: settle,
		audit:  audit,
		log:    log,
	}
}

// ArchiveSettlements uploads every settlement created before the cutoff to
// archive/settlements/YYYY-MM.jsonl and records the run in the audit log.
// It returns the number of records archived.
func (a *Archiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	var all []domain.Settlement
	for offset := 0; ; offset += archivePageSize {
		page, err := a.settle.ListBefore(ctx, before, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	key := archiveKey("settlements", before)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	count := int64(len(all))
	if err := a.log.Log(ctx, "archive.settlements", map[string]any{
		"key":    key,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settlements audit log: %w", err)
	}
	return count, nil
}

// ArchiveAuditLog uploads every audit entry created before the cutoff to
// archive/audit/YYYY-MM.jsonl. It returns the number of records archived.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	var all []domain.AuditEntry
	for offset := 0; ; offset += archivePageSize {
		page, err := a.audit.ListBefore(ctx, before, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	if len(all) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(all)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	key := archiveKey("audit", before)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(all))
	if err := a.log.Log(ctx, "archive.audit", map[string]any{
		"key":    key,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}
	return count, nil
}

// archiveKey builds the object key, partitioned by the cutoff's year-month.
//
//	archive/settlements/2026-07.jsonl
//	archive/audit/2026-07.jsonl
func archiveKey(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
