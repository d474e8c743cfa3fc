package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lifeproof/docsum/internal/document"
)

// MemAuditLog is an in-memory AuditLog used by tests and local CLI runs.
type MemAuditLog struct {
	mu      sync.Mutex
	entries []document.TrackingEntry
	keys    map[string]bool
}

var _ AuditLog = (*MemAuditLog)(nil)

// NewMemAuditLog returns an empty MemAuditLog.
func NewMemAuditLog() *MemAuditLog {
	return &MemAuditLog{keys: make(map[string]bool)}
}

func (m *MemAuditLog) PutEntry(_ context.Context, entry *document.TrackingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entry.DocumentID + "\x00" + entry.ProcessingTimestamp
	if m.keys[k] {
		return fmt.Errorf("tracking row %s@%s already exists", entry.DocumentID, entry.ProcessingTimestamp)
	}
	m.keys[k] = true
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemAuditLog) ByDocument(_ context.Context, documentID string) ([]document.TrackingEntry, error) {
	out := m.filter(func(e document.TrackingEntry) bool { return e.DocumentID == documentID })
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessingTimestamp < out[j].ProcessingTimestamp })
	return out, nil
}

func (m *MemAuditLog) ByStatus(_ context.Context, status string, limit int) ([]document.TrackingEntry, error) {
	return newestFirst(m.filter(func(e document.TrackingEntry) bool { return e.Status == status }), limit), nil
}

func (m *MemAuditLog) ByRiskLevel(_ context.Context, level document.RiskLevel, limit int) ([]document.TrackingEntry, error) {
	return newestFirst(m.filter(func(e document.TrackingEntry) bool { return e.RiskLevel == string(level) }), limit), nil
}

// Entries returns a copy of every row in insertion order.
func (m *MemAuditLog) Entries() []document.TrackingEntry {
	return m.filter(func(document.TrackingEntry) bool { return true })
}

func (m *MemAuditLog) filter(keep func(document.TrackingEntry) bool) []document.TrackingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []document.TrackingEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func newestFirst(entries []document.TrackingEntry, limit int) []document.TrackingEntry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProcessingTimestamp > entries[j].ProcessingTimestamp })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
