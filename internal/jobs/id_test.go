package jobs

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewProcessingIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewProcessingID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("NewProcessingID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate processing id %q", id)
		}
		seen[id] = true
	}
}

func TestNewBatchID(t *testing.T) {
	id := NewBatchID()
	if !strings.HasPrefix(id, BatchPrefix) {
		t.Errorf("NewBatchID() = %q, want prefix %q", id, BatchPrefix)
	}
	if got := len(strings.TrimPrefix(id, BatchPrefix)); got != 32 {
		t.Errorf("batch id suffix length = %d, want 32", got)
	}
}
