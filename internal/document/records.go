package document

// Tracking statuses written to the audit log.
const (
	TrackingCompleted = "COMPLETED"
	TrackingFailed    = "FAILED"
)

// maxErrorMessage bounds error text stored on FAILED audit rows.
const maxErrorMessage = 500

// TrackingEntry is one audit-log row per processing attempt, keyed by
// (DocumentID, ProcessingTimestamp). Rows are never updated in place: a
// retried document accumulates one row per attempt.
type TrackingEntry struct {
	DocumentID          string `json:"document_id" dynamodbav:"document_id"`
	ProcessingTimestamp string `json:"processing_timestamp" dynamodbav:"processing_timestamp"`
	ProcessingID        string `json:"processing_id" dynamodbav:"processing_id"`
	Status              string `json:"status" dynamodbav:"status"`
	RiskLevel           string `json:"risk_level" dynamodbav:"risk_level"`
	ModelUsed           string `json:"model_used,omitempty" dynamodbav:"model_used,omitempty"`
	SummaryLocation     string `json:"summary_location,omitempty" dynamodbav:"summary_location,omitempty"`
	ErrorType           string `json:"error_type,omitempty" dynamodbav:"error_type,omitempty"`
	ErrorMessage        string `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`
	ConfidenceScore     string `json:"confidence_score,omitempty" dynamodbav:"confidence_score,omitempty"`
	Degraded            bool   `json:"degraded,omitempty" dynamodbav:"degraded,omitempty"`
}

// TruncateErrorMessage bounds msg to the length stored on audit rows.
func TruncateErrorMessage(msg string) string {
	return TruncateRunes(msg, maxErrorMessage)
}

// FailureRecord is the artifact written to the failed-document area when a
// document cannot be summarized.
type FailureRecord struct {
	ProcessingID     string `json:"processing_id"`
	Bucket           string `json:"bucket"`
	Key              string `json:"key"`
	ErrorType        string `json:"error_type"`
	ErrorMessage     string `json:"error_message"`
	OriginalDocument string `json:"original_document"`
	FailedAt         string `json:"failed_at"`
}
