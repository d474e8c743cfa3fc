package summarizer

import (
	"strings"

	"github.com/lifeproof/docsum/internal/document"
)

// OutcomeKind tags the three ways a Process call can end.
type OutcomeKind int

const (
	// OutcomeSuccess carries a fully parsed summary.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeDegraded carries a flagged summary built from unparseable model output.
	OutcomeDegraded
	// OutcomeFailure carries a ProcessingError and no summary.
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeDegraded:
		return "DEGRADED"
	case OutcomeFailure:
		return "FAILURE"
	}
	return "UNKNOWN"
}

// Outcome is the tagged result of one Worker invocation. Exactly one of
// Summary (Success, Degraded) or Err (Failure) is set.
type Outcome struct {
	Kind         OutcomeKind
	Ref          document.Reference
	ProcessingID string
	ModelID      string

	Summary         *document.Summary
	SummaryLocation string
	Reason          string

	Err *ProcessingError
}

// Success builds an OutcomeSuccess.
func Success(ref document.Reference, summary *document.Summary, location string) Outcome {
	return Outcome{
		Kind:            OutcomeSuccess,
		Ref:             ref,
		ProcessingID:    summary.ProcessingID,
		ModelID:         summary.ModelUsed,
		Summary:         summary,
		SummaryLocation: location,
	}
}

// Degraded builds an OutcomeDegraded.
func Degraded(ref document.Reference, summary *document.Summary, location, reason string) Outcome {
	o := Success(ref, summary, location)
	o.Kind = OutcomeDegraded
	o.Reason = reason
	return o
}

// Failure builds an OutcomeFailure.
func Failure(ref document.Reference, processingID, modelID string, err *ProcessingError) Outcome {
	return Outcome{
		Kind:         OutcomeFailure,
		Ref:          ref,
		ProcessingID: processingID,
		ModelID:      modelID,
		Err:          err,
	}
}

// Succeeded reports whether the document produced a summary artifact,
// degraded or not.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeDegraded
}

// Error returns the failure as an error, or nil.
func (o Outcome) Error() error {
	if o.Kind != OutcomeFailure || o.Err == nil {
		return nil
	}
	return o.Err
}

// RiskLevel returns the summary risk level, or "" for failures.
func (o Outcome) RiskLevel() document.RiskLevel {
	if o.Summary == nil {
		return ""
	}
	return o.Summary.RiskLevel
}

// Response statuses returned across the Lambda boundary.
const (
	ResponseSuccess  = "SUCCESS"
	ResponseDegraded = "DEGRADED"
	ResponseSkipped  = "SKIPPED"
)

// Response is the JSON payload a successful remote invocation returns.
// Failures never produce a Response; they surface as typed errors.
type Response struct {
	Status          string `json:"status"`
	DocumentID      string `json:"document_id"`
	ProcessingID    string `json:"processing_id,omitempty"`
	RiskLevel       string `json:"risk_level,omitempty"`
	ConfidenceScore string `json:"confidence_score,omitempty"`
	ModelUsed       string `json:"model_used,omitempty"`
	SummaryLocation string `json:"summary_location,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Response renders a Success or Degraded outcome for the wire.
func (o Outcome) Response() Response {
	r := Response{
		Status:          ResponseSuccess,
		DocumentID:      o.Ref.ID(),
		ProcessingID:    o.ProcessingID,
		ModelUsed:       o.ModelID,
		SummaryLocation: o.SummaryLocation,
		Reason:          o.Reason,
	}
	if o.Kind == OutcomeDegraded {
		r.Status = ResponseDegraded
	}
	if o.Summary != nil {
		r.RiskLevel = string(o.Summary.RiskLevel)
		r.ConfidenceScore = string(o.Summary.Confidence)
	}
	return r
}

// SkippedResponse is returned for keys without a supported suffix.
func SkippedResponse(ref document.Reference) Response {
	return Response{
		Status:     ResponseSkipped,
		DocumentID: ref.ID(),
		Reason:     "unsupported document type " + ref.Ext(),
	}
}

// OutcomeFromResponse rebuilds an outcome from a remote Response. The
// summary carries only the fields present on the wire.
func OutcomeFromResponse(ref document.Reference, r Response) Outcome {
	summary := &document.Summary{
		ProcessingID: r.ProcessingID,
		RiskLevel:    document.RiskLevel(r.RiskLevel),
		Confidence:   document.Confidence(r.ConfidenceScore),
		ModelUsed:    r.ModelUsed,
	}
	if r.Status == ResponseDegraded {
		return Degraded(ref, summary, r.SummaryLocation, r.Reason)
	}
	return Success(ref, summary, r.SummaryLocation)
}

const processingIDTag = "[processing_id="

// TagMessage prefixes a function error message with the processing id so it
// survives the errorType/errorMessage wire format.
func TagMessage(processingID, msg string) string {
	if processingID == "" {
		return msg
	}
	return processingIDTag + processingID + "] " + msg
}

// UntagMessage splits a message produced by TagMessage. Untagged messages
// come back with an empty processing id.
func UntagMessage(msg string) (processingID, rest string) {
	after, ok := strings.CutPrefix(msg, processingIDTag)
	if !ok {
		return "", msg
	}
	id, rest, ok := strings.Cut(after, "] ")
	if !ok {
		return "", msg
	}
	return id, rest
}
