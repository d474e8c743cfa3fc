// Package store provides the audit log for the summarization pipeline.
//
// Every Summarizer Worker invocation appends exactly one TrackingEntry,
// keyed by (document_id, processing_timestamp). Rows are never updated or
// deleted in normal operation, so a document that was retried three times
// has three rows; callers must not assume one row per document.
//
// The DynamoDB table carries two global secondary indexes so compliance
// reviewers can query by outcome and by computed risk level:
//
//	status-index      HASH status      RANGE processing_timestamp
//	risk-level-index  HASH risk_level  RANGE processing_timestamp
package store

import (
	"context"
	"time"

	"github.com/lifeproof/docsum/internal/document"
)

// Index names on the tracking table.
const (
	StatusIndex    = "status-index"
	RiskLevelIndex = "risk-level-index"
)

// TimestampLayout is the sort-key format: fixed-width UTC with nanoseconds,
// so lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// AuditLog is the append-only tracking table. Implementations must be safe
// for concurrent writers.
type AuditLog interface {
	// PutEntry appends a tracking row. It never updates an existing row.
	PutEntry(ctx context.Context, entry *document.TrackingEntry) error

	// ByDocument returns every attempt for a document in timestamp order.
	ByDocument(ctx context.Context, documentID string) ([]document.TrackingEntry, error)

	// ByStatus returns rows with the given status, newest first, up to limit (0 = all).
	ByStatus(ctx context.Context, status string, limit int) ([]document.TrackingEntry, error)

	// ByRiskLevel returns rows with the given risk level, newest first, up to limit (0 = all).
	ByRiskLevel(ctx context.Context, level document.RiskLevel, limit int) ([]document.TrackingEntry, error)
}

// FormatTimestamp renders t as a tracking sort key.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
