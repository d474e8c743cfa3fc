package orchestrator

import (
	"time"

	"github.com/lifeproof/docsum/internal/document"
)

// BatchStatus is the overall result of a run.
type BatchStatus string

const (
	// StatusCompleted means every item reached a terminal state.
	StatusCompleted BatchStatus = "COMPLETED"
	// StatusNoItems means the input held nothing to process. It is
	// distinct from a completed run that processed zero of N.
	StatusNoItems BatchStatus = "NO_ITEMS"
	// StatusTimedOut means the wall-clock ceiling was hit first.
	StatusTimedOut BatchStatus = "TIMED_OUT"
	// StatusCancelled means the caller cancelled before every item finished.
	// A caller deadline (e.g. the Lambda timeout) reports TIMED_OUT instead.
	StatusCancelled BatchStatus = "CANCELLED"
)

// ItemOutcome is the per-document record in a BatchResult.
type ItemOutcome struct {
	Document        document.Reference `json:"document"`
	State           ItemState          `json:"state"`
	Attempts        int                `json:"attempts"`
	ProcessingID    string             `json:"processing_id,omitempty"`
	RiskLevel       string             `json:"risk_level,omitempty"`
	ModelUsed       string             `json:"model_used,omitempty"`
	SummaryLocation string             `json:"summary_location,omitempty"`
	Degraded        bool               `json:"degraded,omitempty"`
	ErrorType       string             `json:"error_type,omitempty"`
	Error           string             `json:"error,omitempty"`
	DeadLettered    bool               `json:"dead_lettered,omitempty"`
	History         []ItemState        `json:"history"`
}

// BatchResult aggregates one orchestrator run. Succeeded includes
// degraded summaries; Degraded counts them separately as well.
type BatchResult struct {
	BatchID     string        `json:"batch_id"`
	Status      BatchStatus   `json:"status"`
	Message     string        `json:"message,omitempty"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Degraded    int           `json:"degraded"`
	Failed      int           `json:"failed"`
	TimedOut    int           `json:"timed_out"`
	Skipped     int           `json:"skipped"`
	SkippedKeys []string      `json:"skipped_keys,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Items       []ItemOutcome `json:"items"`
}

// NoItems reports whether the run had nothing to process.
func (r *BatchResult) NoItems() bool {
	return r.Status == StatusNoItems
}

// Duration is the wall-clock time of the run.
func (r *BatchResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// tally recomputes the counters from Items.
func (r *BatchResult) tally() {
	r.Total = len(r.Items)
	r.Succeeded, r.Degraded, r.Failed, r.TimedOut = 0, 0, 0, 0
	for _, it := range r.Items {
		switch it.State {
		case StateSucceeded:
			r.Succeeded++
			if it.Degraded {
				r.Degraded++
			}
		case StateFailedTerminal:
			r.Failed++
		case StateTimedOut:
			r.TimedOut++
		}
	}
}
