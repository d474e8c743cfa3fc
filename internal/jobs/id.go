// Package jobs generates identifiers for processing attempts and batches.
package jobs

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes keep identifiers recognizable in logs and audit rows.
const (
	BatchPrefix = "batch-"
)

// NewProcessingID returns a fresh identifier for one Worker invocation.
// Every attempt gets its own id, including retries of the same document.
func NewProcessingID() string {
	return uuid.NewString()
}

// NewBatchID returns an identifier for one orchestrator run.
func NewBatchID() string {
	return GenerateID(BatchPrefix)
}

// GenerateID creates a new random ID with the given prefix.
// The prefix should include a trailing dash, e.g. "batch-".
func GenerateID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
