package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/statemachine"
	"github.com/lifeproof/docsum/internal/summarizer"
)

const rule = "--------------------------------------------"

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintOutcome writes a one-document report.
func PrintOutcome(w io.Writer, out summarizer.Outcome) {
	fmt.Fprintf(w, "Document:   %s\n", out.Ref)
	fmt.Fprintf(w, "Outcome:    %s\n", out.Kind)
	if out.ProcessingID != "" {
		fmt.Fprintf(w, "Processing: %s\n", out.ProcessingID)
	}
	if out.ModelID != "" {
		fmt.Fprintf(w, "Model:      %s\n", out.ModelID)
	}
	if out.Succeeded() {
		fmt.Fprintf(w, "Risk:       %s\n", out.RiskLevel())
		fmt.Fprintf(w, "Summary:    %s\n", out.SummaryLocation)
		if out.Reason != "" {
			fmt.Fprintf(w, "Degraded:   %s\n", out.Reason)
		}
		return
	}
	if out.Err != nil {
		fmt.Fprintf(w, "Error:      %s (%s)\n", out.Err.Kind, out.Err.Message)
	}
}

// PrintBatchReport writes the batch totals followed by every item that did
// not succeed.
func PrintBatchReport(w io.Writer, r *orchestrator.BatchResult) {
	fmt.Fprintln(w, "============================================")
	fmt.Fprintf(w, "Batch %s: %s\n", r.BatchID, r.Status)
	fmt.Fprintln(w, "============================================")
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	}
	fmt.Fprintf(w, "Documents:  %d\n", r.Total)
	fmt.Fprintf(w, "Succeeded:  %d (degraded %d)\n", r.Succeeded, r.Degraded)
	fmt.Fprintf(w, "Failed:     %d\n", r.Failed)
	fmt.Fprintf(w, "Timed out:  %d\n", r.TimedOut)
	fmt.Fprintf(w, "Skipped:    %d\n", r.Skipped)
	fmt.Fprintf(w, "Duration:   %s\n", FormatDurationShort(r.Duration()))

	var problems []orchestrator.ItemOutcome
	for _, item := range r.Items {
		if item.State != orchestrator.StateSucceeded {
			problems = append(problems, item)
		}
	}
	if len(problems) == 0 {
		return
	}
	fmt.Fprintln(w, rule)
	for i, item := range problems {
		fmt.Fprintf(w, "   %2d. %s [%s after %d attempt(s)]\n", i+1, item.Document.Key, item.State, item.Attempts)
		if item.ErrorType != "" {
			fmt.Fprintf(w, "       %s: %s\n", item.ErrorType, item.Error)
		}
		if item.DeadLettered {
			fmt.Fprintln(w, "       sent to dead-letter queue")
		}
	}
}

// PrintExecution writes a state machine execution snapshot.
func PrintExecution(w io.Writer, e *statemachine.Execution) {
	fmt.Fprintf(w, "Execution: %s\n", e.ARN)
	fmt.Fprintf(w, "Status:    %s\n", e.Status)
	if !e.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:   %s\n", e.StartedAt.Format(time.RFC3339))
	}
	if e.StoppedAt != nil {
		fmt.Fprintf(w, "Stopped:   %s (%s)\n", e.StoppedAt.Format(time.RFC3339), FormatDurationShort(e.StoppedAt.Sub(e.StartedAt)))
	}
	if e.Error != "" {
		fmt.Fprintf(w, "Error:     %s: %s\n", e.Error, e.Cause)
	}
	if e.Output != "" {
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, e.Output)
	}
}

// PrintAuditRows writes tracking rows one per line.
func PrintAuditRows(w io.Writer, rows []document.TrackingEntry) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "   (no audit rows)")
		return
	}
	for _, row := range rows {
		line := fmt.Sprintf("%s  %-8s %-7s %s", row.ProcessingTimestamp, row.Status, row.RiskLevel, row.DocumentID)
		if row.ErrorType != "" {
			line += "  " + row.ErrorType
		}
		if row.Degraded {
			line += "  (degraded)"
		}
		fmt.Fprintln(w, line)
	}
}
