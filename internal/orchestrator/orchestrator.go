// Package orchestrator fans a batch of documents out to the Summarizer
// Worker with bounded concurrency, per-item retry tiers and dead-letter
// routing.
//
// Items are independent: a failing document never aborts the batch. The
// wall-clock timeout only stops waiting; an invocation already in flight is
// not interrupted, but no new attempt starts after the deadline and every
// unfinished item is reported as TIMED_OUT.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/jobs"
	"github.com/lifeproof/docsum/internal/metrics"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// Worker processes one document. *summarizer.Worker and *LambdaWorker
// implement it.
type Worker interface {
	Process(ctx context.Context, ref document.Reference) summarizer.Outcome
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, ref document.Reference) summarizer.Outcome

func (f WorkerFunc) Process(ctx context.Context, ref document.Reference) summarizer.Outcome {
	return f(ctx, ref)
}

// Orchestrator runs batches. It is safe to call Run concurrently.
type Orchestrator struct {
	worker     Worker
	policy     Policy
	deadLetter DeadLetter
	notifier   Notifier

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDeadLetter sets where exhausted items are routed.
func WithDeadLetter(dl DeadLetter) Option {
	return func(o *Orchestrator) { o.deadLetter = dl }
}

// WithNotifier publishes a completion event after every run.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. Zero-valued Policy fields take production
// defaults. Without WithDeadLetter, exhausted items are only logged.
func New(worker Worker, policy Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		worker: worker,
		policy: policy.WithDefaults(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// batch is the shared state of one run. Item slots are only touched under mu.
type batch struct {
	id    string
	mu    sync.Mutex
	items []ItemOutcome
}

// transition moves item i to next. It returns false when the item was
// already finalized (timed out), so late completions are dropped.
func (b *batch) transition(i int, next ItemState, update func(*ItemOutcome)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := &b.items[i]
	if err := it.State.Transition(next); err != nil {
		log.Warn().Err(err).Str("batchId", b.id).Str("key", it.Document.Key).Msg("Dropping item update")
		return false
	}
	it.History = append(it.History, next)
	if update != nil {
		update(it)
	}
	return true
}

// Run processes refs and returns the aggregate result. Refs without a
// supported suffix are skipped and counted, not failed.
func (o *Orchestrator) Run(ctx context.Context, refs []document.Reference) *BatchResult {
	b := &batch{id: jobs.NewBatchID()}
	result := &BatchResult{BatchID: b.id, StartedAt: o.now()}
	logger := log.With().Str("batchId", b.id).Logger()

	for _, ref := range refs {
		if !ref.Valid() || !ref.Supported() {
			result.Skipped++
			result.SkippedKeys = append(result.SkippedKeys, ref.Key)
			continue
		}
		b.items = append(b.items, ItemOutcome{
			Document: ref,
			State:    StatePending,
			History:  []ItemState{StatePending},
		})
	}

	if len(b.items) == 0 {
		result.Status = StatusNoItems
		result.Message = "No documents found for processing"
		result.Items = []ItemOutcome{}
		result.FinishedAt = o.now()
		logger.Info().Int("skipped", result.Skipped).Msg("Batch has no items to process")
		o.finish(ctx, result)
		return result
	}

	logger.Info().
		Int("items", len(b.items)).
		Int("skipped", result.Skipped).
		Int("maxConcurrency", o.policy.MaxConcurrency).
		Dur("timeout", o.policy.Timeout).
		Msg("Batch started")

	// waitCtx ends at the deadline or when the caller cancels. Workers run
	// on ctx so in-flight invocations survive the deadline.
	waitCtx, cancel := context.WithTimeout(ctx, o.policy.Timeout)
	defer cancel()

	docs := make([]document.Reference, len(b.items))
	for i, it := range b.items {
		docs[i] = it.Document
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(o.policy.MaxConcurrency)
		for i, ref := range docs {
			if waitCtx.Err() != nil {
				break
			}
			i, ref := i, ref
			g.Go(func() error {
				o.runItem(ctx, waitCtx, b, i, ref)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-waitCtx.Done():
	}

	b.mu.Lock()
	unfinished := 0
	for i := range b.items {
		it := &b.items[i]
		if it.State.Terminal() {
			continue
		}
		unfinished++
		if it.State.Transition(StateTimedOut) == nil {
			it.History = append(it.History, StateTimedOut)
		}
	}
	result.Items = make([]ItemOutcome, len(b.items))
	for i, it := range b.items {
		it.History = append([]ItemState(nil), it.History...)
		result.Items[i] = it
	}
	b.mu.Unlock()

	result.Status = StatusCompleted
	if unfinished > 0 {
		result.Status = StatusTimedOut
		if errors.Is(ctx.Err(), context.Canceled) {
			result.Status = StatusCancelled
		}
		logger.Warn().
			Str("status", string(result.Status)).
			Int("unfinished", unfinished).
			Msg("Batch stopped waiting for unfinished items")
	}
	result.FinishedAt = o.now()
	result.tally()
	logger.Info().
		Str("status", string(result.Status)).
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("degraded", result.Degraded).
		Int("failed", result.Failed).
		Int("timedOut", result.TimedOut).
		Dur("duration", result.Duration()).
		Msg("Batch finished")
	o.finish(ctx, result)
	return result
}

// runItem drives one item through attempts until it succeeds, exhausts its
// retry tier, or the batch stops waiting.
func (o *Orchestrator) runItem(ctx, waitCtx context.Context, b *batch, i int, ref document.Reference) {
	logger := log.With().Str("batchId", b.id).Str("key", ref.Key).Logger()
	used := make(map[summarizer.RetryClass]int)

	for {
		if waitCtx.Err() != nil {
			return
		}
		if !b.transition(i, StateInProgress, func(it *ItemOutcome) { it.Attempts++ }) {
			return
		}

		out := o.worker.Process(ctx, ref)
		if out.Succeeded() {
			b.transition(i, StateSucceeded, func(it *ItemOutcome) {
				it.ProcessingID = out.ProcessingID
				it.ModelUsed = out.ModelID
				it.RiskLevel = string(out.RiskLevel())
				it.SummaryLocation = out.SummaryLocation
				it.Degraded = out.Kind == summarizer.OutcomeDegraded
			})
			return
		}

		perr := out.Err
		if perr == nil {
			perr = summarizer.AsProcessingError(out.Error())
		}
		if perr == nil {
			perr = &summarizer.ProcessingError{Kind: summarizer.KindInternal, Message: "failure outcome without error"}
		}

		tier, retryable := o.policy.TierFor(perr.Kind)
		if retryable {
			used[perr.Kind.Class()]++
			if n := used[perr.Kind.Class()]; n < tier.MaxAttempts {
				delay := tier.Delay(n)
				logger.Warn().
					Err(perr).
					Str("tier", tier.Name).
					Int("retry", n).
					Dur("backoff", delay).
					Msg("Item failed, retrying")
				if !b.transition(i, StateFailedRetrying, nil) {
					return
				}
				if err := o.sleep(waitCtx, delay); err != nil {
					return
				}
				continue
			}
		}

		b.mu.Lock()
		attempts := b.items[i].Attempts
		b.mu.Unlock()

		deadLettered := o.routeDeadLetter(ctx, b.id, ref, out.ProcessingID, perr, attempts)
		b.transition(i, StateFailedTerminal, func(it *ItemOutcome) {
			it.ProcessingID = out.ProcessingID
			it.ModelUsed = out.ModelID
			it.ErrorType = perr.Kind.String()
			it.Error = perr.Error()
			it.DeadLettered = deadLettered
		})
		logger.Error().
			Err(perr).
			Int("attempts", attempts).
			Bool("retryable", retryable).
			Bool("deadLettered", deadLettered).
			Msg("Item failed terminally")
		return
	}
}

func (o *Orchestrator) routeDeadLetter(ctx context.Context, batchID string, ref document.Reference, processingID string, perr *summarizer.ProcessingError, attempts int) bool {
	if o.deadLetter == nil {
		return false
	}
	msg := DeadLetterMessage{
		BatchID:      batchID,
		Document:     ref,
		ProcessingID: processingID,
		ErrorType:    perr.Kind.String(),
		Error:        document.TruncateErrorMessage(perr.Error()),
		Attempts:     attempts,
		FailedAt:     o.now().UTC().Format(time.RFC3339),
	}
	if err := o.deadLetter.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("batchId", batchID).Str("key", ref.Key).Msg("Dead-letter routing failed")
		return false
	}
	return true
}

// finish emits batch metrics and the completion event.
func (o *Orchestrator) finish(ctx context.Context, result *BatchResult) {
	metrics.New(metrics.Namespace).
		Dimension("Operation", "batch").
		Metric("BatchItems", float64(result.Total), metrics.UnitCount).
		Metric("BatchSucceeded", float64(result.Succeeded), metrics.UnitCount).
		Metric("BatchDegraded", float64(result.Degraded), metrics.UnitCount).
		Metric("BatchFailed", float64(result.Failed), metrics.UnitCount).
		Metric("BatchTimedOut", float64(result.TimedOut), metrics.UnitCount).
		Metric("BatchSkipped", float64(result.Skipped), metrics.UnitCount).
		Metric("BatchDurationMs", float64(result.Duration().Milliseconds()), metrics.UnitMilliseconds).
		Property("batchId", result.BatchID).
		Property("status", string(result.Status)).
		Flush()

	if o.notifier != nil {
		if err := o.notifier.BatchCompleted(context.WithoutCancel(ctx), result); err != nil {
			log.Warn().Err(err).Str("batchId", result.BatchID).Msg("Batch completion event not published")
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
