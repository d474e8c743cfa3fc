// Package summarizer turns one inbound medical document into a structured
// underwriting summary.
//
// Process runs a fixed pipeline: load text, reject empty input, pick a
// model, truncate, invoke, parse, persist, audit. A malformed model response
// is never an error; it produces a degraded summary that is persisted and
// flagged for human review. Every other failure writes a failure artifact
// and a FAILED audit row and is returned to the caller for retry.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/assets"
	"github.com/lifeproof/docsum/internal/chat"
	"github.com/lifeproof/docsum/internal/docstore"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/jobs"
	"github.com/lifeproof/docsum/internal/jsonutil"
	"github.com/lifeproof/docsum/internal/metrics"
	"github.com/lifeproof/docsum/internal/store"
)

// ParseFailureReason is recorded on degraded summaries.
const ParseFailureReason = "Failed to parse AI response"

var (
	pdfMagic = []byte("%PDF")
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Worker summarizes single documents. It is safe for concurrent use.
type Worker struct {
	cfg   Config
	docs  docstore.Store
	audit store.AuditLog
	model chat.Invoker

	now   func() time.Time
	newID func() string
}

// Option customizes a Worker.
type Option func(*Worker)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithIDGenerator overrides the processing id generator.
func WithIDGenerator(newID func() string) Option {
	return func(w *Worker) { w.newID = newID }
}

// New creates a Worker. Zero-valued Config fields take their defaults.
func New(cfg Config, docs docstore.Store, audit store.AuditLog, model chat.Invoker, opts ...Option) *Worker {
	w := &Worker{
		cfg:   cfg.withDefaults(),
		docs:  docs,
		audit: audit,
		model: model,
		now:   time.Now,
		newID: jobs.NewProcessingID,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the effective configuration.
func (w *Worker) Config() Config {
	return w.cfg
}

// Process summarizes the document at ref. It writes exactly one audit row
// per call, except for references rejected before processing begins
// (missing bucket/key or unsupported suffix), which have no side effects.
func (w *Worker) Process(ctx context.Context, ref document.Reference) Outcome {
	start := w.now()
	processingID := w.newID()
	logger := log.With().Str("key", ref.Key).Str("processingId", processingID).Logger()

	rec := metrics.New(metrics.Namespace).Dimension("Operation", "summarize")
	defer func() {
		rec.Metric("DocumentLatencyMs", float64(w.now().Sub(start).Milliseconds()), metrics.UnitMilliseconds)
		rec.Property("processingId", processingID)
		rec.Flush()
	}()

	if !ref.Valid() {
		return Failure(ref, processingID, "", newError(KindNotFound, nil, "reference requires bucket and key"))
	}
	if !ref.Supported() {
		logger.Info().Str("ext", ref.Ext()).Msg("Unsupported document type, not processing")
		return Failure(ref, processingID, "", newError(KindUnsupportedType, nil, "unsupported document type %q", ref.Ext()))
	}

	logger.Info().Str("bucket", ref.Bucket).Msg("Processing document")

	text, perr := w.loadText(ctx, ref)
	if perr != nil {
		rec.Count("DocumentsFailed")
		return w.fail(ctx, logger, ref, processingID, "", perr)
	}

	modelID := w.cfg.Router().Select(text)
	logger = logger.With().Str("model", modelID).Logger()
	rec.Metric("DocumentChars", float64(utf8.RuneCountInString(text)), metrics.UnitCount)

	prompt, truncated := chat.Truncate(text, w.cfg.InputCharCap)
	if truncated {
		logger.Warn().Int("cap", w.cfg.InputCharCap).Msg("Document exceeds input cap, truncated")
		rec.Count("DocumentsTruncated")
	}

	invokeStart := w.now()
	raw, err := w.model.Invoke(ctx, chat.InvokeRequest{
		ModelID:     modelID,
		System:      assets.UnderwritingRubricPrompt,
		Prompt:      assets.RenderSummarizePrompt(prompt, processingID, modelID),
		MaxTokens:   w.cfg.MaxOutputTokens,
		Temperature: 0,
	})
	rec.Metric("ModelLatencyMs", float64(w.now().Sub(invokeStart).Milliseconds()), metrics.UnitMilliseconds)
	if err != nil {
		rec.Count("DocumentsFailed")
		return w.fail(ctx, logger, ref, processingID, modelID, classifyModelError(modelID, err))
	}

	summary, reason := parseModelOutput(raw)
	summary.ProcessingID = processingID
	summary.ModelUsed = modelID
	summary.GeneratedAt = w.now().UTC().Format(time.RFC3339)
	summary.OriginalDocument = ref.String()

	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		rec.Count("DocumentsFailed")
		return w.fail(ctx, logger, ref, processingID, modelID, newError(KindInternal, err, "marshal summary"))
	}
	bucket := w.cfg.summaryBucket(ref.Bucket)
	if err := w.docs.Put(ctx, bucket, ref.SummaryKey(), body, docstore.ContentTypeJSON); err != nil {
		rec.Count("DocumentsFailed")
		return w.fail(ctx, logger, ref, processingID, modelID, newError(KindStorage, err, "write summary %s", ref.SummaryKey()))
	}
	location := document.Location(bucket, ref.SummaryKey())

	w.track(ctx, logger, &document.TrackingEntry{
		DocumentID:      ref.ID(),
		ProcessingID:    processingID,
		Status:          document.TrackingCompleted,
		RiskLevel:       string(summary.RiskLevel),
		ModelUsed:       modelID,
		SummaryLocation: location,
		ConfidenceScore: string(summary.Confidence),
		Degraded:        reason != "",
	})

	rec.Dimension("RiskLevel", string(summary.RiskLevel))
	if reason != "" {
		rec.Count("DocumentsDegraded")
		logger.Warn().Str("reason", reason).Str("location", location).Msg("Model output unparseable, degraded summary written")
		return Degraded(ref, summary, location, reason)
	}
	rec.Count("DocumentsSucceeded")
	logger.Info().
		Str("riskLevel", string(summary.RiskLevel)).
		Str("confidence", string(summary.Confidence)).
		Str("location", location).
		Dur("duration", w.now().Sub(start)).
		Msg("Document summarized")
	return Success(ref, summary, location)
}

// loadText fetches the document and decodes it as text.
func (w *Worker) loadText(ctx context.Context, ref document.Reference) (string, *ProcessingError) {
	data, err := w.docs.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", newError(KindNotFound, err, "document %s", ref)
		}
		return "", newError(KindStorage, err, "read %s", ref)
	}
	text, perr := extractText(data)
	if perr != nil {
		return "", perr
	}
	if strings.TrimSpace(text) == "" {
		return "", newError(KindEmptyDocument, nil, "document %s is empty", ref)
	}
	return text, nil
}

// extractText decodes plain-text content. Binary PDFs and other
// non-UTF-8 payloads need an external text extraction step first.
func extractText(data []byte) (string, *ProcessingError) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return "", newError(KindExtraction, nil, "binary PDF content requires text extraction before processing")
	}
	if !utf8.Valid(data) {
		return "", newError(KindExtraction, nil, "content is not valid UTF-8 text")
	}
	return string(data), nil
}

// parseModelOutput never fails: unparseable output yields a degraded
// summary and a non-empty reason.
func parseModelOutput(raw string) (*document.Summary, string) {
	obj, err := jsonutil.ObjectBytes(raw)
	if err == nil {
		if summary, perr := document.ParseSummary(obj); perr == nil {
			return summary, ""
		}
	}
	return document.NewDegradedSummary(ParseFailureReason, raw), ParseFailureReason
}

func classifyModelError(modelID string, err error) *ProcessingError {
	if chat.IsThrottled(err) {
		return newError(KindModelThrottled, err, "model %s throttled", modelID)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, err, "model %s timed out", modelID)
	}
	return newError(KindModelInvocation, err, "invoke model %s", modelID)
}

// fail persists the failure artifact and a FAILED audit row, then returns
// the Failure outcome. Artifact and audit write errors are logged only.
func (w *Worker) fail(ctx context.Context, logger zerolog.Logger, ref document.Reference, processingID, modelID string, perr *ProcessingError) Outcome {
	logger.Error().Err(perr).Str("errorType", perr.Kind.String()).Msg("Document processing failed")

	failedAt := w.now().UTC().Format(time.RFC3339)
	record := document.FailureRecord{
		ProcessingID:     processingID,
		Bucket:           ref.Bucket,
		Key:              ref.Key,
		ErrorType:        perr.Kind.String(),
		ErrorMessage:     perr.Error(),
		OriginalDocument: ref.String(),
		FailedAt:         failedAt,
	}
	if body, err := json.MarshalIndent(record, "", "  "); err == nil {
		bucket := w.cfg.failedBucket(ref.Bucket)
		if err := w.docs.Put(ctx, bucket, ref.FailureKey(), body, docstore.ContentTypeJSON); err != nil {
			logger.Error().Err(err).Str("failureKey", ref.FailureKey()).Msg("Failed to write failure record")
		}
	}

	w.track(ctx, logger, &document.TrackingEntry{
		DocumentID:   ref.ID(),
		ProcessingID: processingID,
		Status:       document.TrackingFailed,
		RiskLevel:    string(document.RiskError),
		ModelUsed:    modelID,
		ErrorType:    perr.Kind.String(),
		ErrorMessage: document.TruncateErrorMessage(perr.Error()),
	})
	return Failure(ref, processingID, modelID, perr)
}

// track appends the audit row. A failed audit write never changes the outcome.
func (w *Worker) track(ctx context.Context, logger zerolog.Logger, entry *document.TrackingEntry) {
	if w.audit == nil {
		return
	}
	entry.ProcessingTimestamp = store.FormatTimestamp(w.now())
	if err := w.audit.PutEntry(ctx, entry); err != nil {
		logger.Error().Err(err).Str("status", entry.Status).Msg("Failed to write tracking entry")
	}
}
