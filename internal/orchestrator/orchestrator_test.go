package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/metrics"
	"github.com/lifeproof/docsum/internal/summarizer"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// scriptedWorker returns outcomes per key in order, repeating the last.
// Kinds are failure kinds; -1 means success.
type scriptedWorker struct {
	mu      sync.Mutex
	scripts map[string][]summarizer.Kind
	calls   map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	block       map[string]chan struct{}
}

const succeed summarizer.Kind = -1

func newScriptedWorker() *scriptedWorker {
	return &scriptedWorker{
		scripts: make(map[string][]summarizer.Kind),
		calls:   make(map[string]int),
		block:   make(map[string]chan struct{}),
	}
}

func (w *scriptedWorker) script(key string, kinds ...summarizer.Kind) *scriptedWorker {
	w.scripts[key] = kinds
	return w
}

func (w *scriptedWorker) Calls(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[key]
}

func (w *scriptedWorker) Process(_ context.Context, ref document.Reference) summarizer.Outcome {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		cur := w.maxInFlight.Load()
		if n <= cur || w.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	w.mu.Lock()
	w.calls[ref.Key]++
	call := w.calls[ref.Key]
	script := w.scripts[ref.Key]
	ch := w.block[ref.Key]
	w.mu.Unlock()

	if ch != nil {
		<-ch
	}

	kind := succeed
	if len(script) > 0 {
		i := call - 1
		if i >= len(script) {
			i = len(script) - 1
		}
		kind = script[i]
	}
	pid := fmt.Sprintf("%s#%d", ref.Key, call)
	if kind == succeed {
		s := &document.Summary{ProcessingID: pid, RiskLevel: document.RiskLow, ModelUsed: "fast"}
		return summarizer.Success(ref, s, "s3://out/summaries/"+ref.BaseName()+"_summary.json")
	}
	return summarizer.Failure(ref, pid, "fast", &summarizer.ProcessingError{Kind: kind, Message: "scripted"})
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func refs(keys ...string) []document.Reference {
	out := make([]document.Reference, len(keys))
	for i, k := range keys {
		out[i] = document.Reference{Bucket: "b", Key: k}
	}
	return out
}

func TestRun_ThrottledThenSucceeds(t *testing.T) {
	w := newScriptedWorker().script("uploads/a.txt",
		summarizer.KindModelThrottled, summarizer.KindModelThrottled, summarizer.KindModelThrottled, succeed)
	sleeps := &sleepRecorder{}
	dl := &MemDeadLetter{}
	o := New(w, ProductionPolicy(), WithSleep(sleeps.Sleep), WithDeadLetter(dl))

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, 4, w.Calls("uploads/a.txt"))
	require.LessOrEqual(t, w.Calls("uploads/a.txt"), 5)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeps.Delays())
	require.Empty(t, dl.Messages())

	it := res.Items[0]
	require.Equal(t, StateSucceeded, it.State)
	require.Equal(t, 4, it.Attempts)
	require.Equal(t, "uploads/a.txt#4", it.ProcessingID)
	require.Equal(t, []ItemState{
		StatePending,
		StateInProgress, StateFailedRetrying,
		StateInProgress, StateFailedRetrying,
		StateInProgress, StateFailedRetrying,
		StateInProgress, StateSucceeded,
	}, it.History)
}

func TestRun_TransientErrorTwoInvocationsThenDeadLetter(t *testing.T) {
	w := newScriptedWorker().script("uploads/a.txt", summarizer.KindModelInvocation)
	sleeps := &sleepRecorder{}
	dl := &MemDeadLetter{}
	o := New(w, ProductionPolicy(), WithSleep(sleeps.Sleep), WithDeadLetter(dl))

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, 2, w.Calls("uploads/a.txt"))
	require.Equal(t, []time.Duration{5 * time.Second}, sleeps.Delays())
	require.Equal(t, 1, res.Failed)
	require.Equal(t, StateFailedTerminal, res.Items[0].State)
	require.True(t, res.Items[0].DeadLettered)
	require.Equal(t, "ModelInvocationError", res.Items[0].ErrorType)

	msgs := dl.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "uploads/a.txt", msgs[0].Document.Key)
	require.Equal(t, "ModelInvocationError", msgs[0].ErrorType)
	require.Equal(t, 2, msgs[0].Attempts)
	require.Equal(t, res.BatchID, msgs[0].BatchID)
	require.Equal(t, "uploads/a.txt#2", msgs[0].ProcessingID)
}

func TestRun_ThrottleExhaustsAfterFiveInvocations(t *testing.T) {
	w := newScriptedWorker().script("uploads/a.txt", summarizer.KindModelThrottled)
	sleeps := &sleepRecorder{}
	o := New(w, ProductionPolicy(), WithSleep(sleeps.Sleep), WithDeadLetter(&MemDeadLetter{}))

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, 5, w.Calls("uploads/a.txt"))
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, sleeps.Delays())
	require.Equal(t, 1, res.Failed)
}

func TestRun_TiersCountIndependently(t *testing.T) {
	w := newScriptedWorker().script("uploads/a.txt",
		summarizer.KindModelThrottled, summarizer.KindStorage, summarizer.KindModelThrottled, succeed)
	o := New(w, ProductionPolicy(), WithSleep((&sleepRecorder{}).Sleep))

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, 4, w.Calls("uploads/a.txt"))
	require.Equal(t, 1, res.Succeeded)
}

func TestRun_TerminalErrorsNotRetried(t *testing.T) {
	for _, kind := range []summarizer.Kind{
		summarizer.KindNotFound, summarizer.KindEmptyDocument, summarizer.KindExtraction, summarizer.KindUnsupportedType,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			w := newScriptedWorker().script("uploads/a.txt", kind)
			sleeps := &sleepRecorder{}
			dl := &MemDeadLetter{}
			o := New(w, ProductionPolicy(), WithSleep(sleeps.Sleep), WithDeadLetter(dl))

			res := o.Run(context.Background(), refs("uploads/a.txt"))

			require.Equal(t, 1, w.Calls("uploads/a.txt"))
			require.Empty(t, sleeps.Delays())
			require.Equal(t, 1, res.Failed)
			require.Len(t, dl.Messages(), 1)
			require.Equal(t, kind.String(), dl.Messages()[0].ErrorType)
		})
	}
}

func TestRun_EmptyInputIsNoItems(t *testing.T) {
	w := newScriptedWorker()
	o := New(w, InteractivePolicy())

	res := o.Run(context.Background(), nil)

	require.Equal(t, StatusNoItems, res.Status)
	require.True(t, res.NoItems())
	require.Zero(t, res.Total)
	require.NotNil(t, res.Items)

	all := o.Run(context.Background(), refs("uploads/a.txt"))
	require.Equal(t, StatusCompleted, all.Status)
	require.False(t, all.NoItems())
}

func TestRun_UnsupportedKeysSkipped(t *testing.T) {
	w := newScriptedWorker()
	o := New(w, InteractivePolicy())

	res := o.Run(context.Background(), refs("uploads/a.txt", "uploads/photo.jpg", "uploads/", "uploads/b.PDF"))

	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, 2, res.Total)
	require.Equal(t, 2, res.Succeeded)
	require.Equal(t, 2, res.Skipped)
	require.ElementsMatch(t, []string{"uploads/photo.jpg", "uploads/"}, res.SkippedKeys)
	require.Zero(t, w.Calls("uploads/photo.jpg"))

	onlySkipped := o.Run(context.Background(), refs("uploads/photo.jpg"))
	require.Equal(t, StatusNoItems, onlySkipped.Status)
	require.Equal(t, 1, onlySkipped.Skipped)
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	w := newScriptedWorker().
		script("uploads/bad1.txt", summarizer.KindNotFound).
		script("uploads/bad2.txt", summarizer.KindModelInvocation)
	dl := &MemDeadLetter{}
	o := New(w, ProductionPolicy(), WithSleep((&sleepRecorder{}).Sleep), WithDeadLetter(dl))

	keys := []string{"uploads/bad1.txt", "uploads/bad2.txt"}
	for i := 0; i < 30; i++ {
		keys = append(keys, fmt.Sprintf("uploads/ok%02d.txt", i))
	}
	res := o.Run(context.Background(), refs(keys...))

	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, 32, res.Total)
	require.Equal(t, 30, res.Succeeded)
	require.Equal(t, 2, res.Failed)
	require.Len(t, dl.Messages(), 2)
	for _, it := range res.Items {
		require.True(t, it.State.Terminal(), "item %s left in %s", it.Document.Key, it.State)
	}
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	w := newScriptedWorker()
	p := InteractivePolicy()
	p.MaxConcurrency = 3
	o := New(w, p)

	keys := make([]string, 25)
	for i := range keys {
		keys[i] = fmt.Sprintf("uploads/doc%02d.txt", i)
	}
	res := o.Run(context.Background(), refs(keys...))

	require.Equal(t, 25, res.Succeeded)
	require.LessOrEqual(t, w.maxInFlight.Load(), int32(3))
}

func TestRun_TimeoutReportsUnfinishedItems(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	w := newScriptedWorker()
	w.block["uploads/slow.txt"] = release
	p := InteractivePolicy()
	p.MaxConcurrency = 1
	p.Timeout = 50 * time.Millisecond
	o := New(w, p)

	res := o.Run(context.Background(), refs("uploads/slow.txt", "uploads/next1.txt", "uploads/next2.txt"))

	require.Equal(t, StatusTimedOut, res.Status)
	require.Equal(t, 3, res.Total)
	require.Equal(t, 3, res.TimedOut)
	require.Equal(t, 0, res.Succeeded)
	require.Equal(t, StateTimedOut, res.Items[0].State)
	require.Equal(t, []ItemState{StatePending, StateInProgress, StateTimedOut}, res.Items[0].History)
	require.Equal(t, []ItemState{StatePending, StateTimedOut}, res.Items[1].History)
	require.Zero(t, w.Calls("uploads/next1.txt"))
}

func TestRun_BackoffInterruptedByTimeout(t *testing.T) {
	w := newScriptedWorker().script("uploads/a.txt", summarizer.KindModelThrottled)
	p := ProductionPolicy()
	p.Timeout = 30 * time.Millisecond
	o := New(w, p)

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, StatusTimedOut, res.Status)
	require.Equal(t, 1, w.Calls("uploads/a.txt"))
	require.Equal(t, StateTimedOut, res.Items[0].State)
	require.Equal(t, 1, res.TimedOut)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newScriptedWorker()
	o := New(w, InteractivePolicy())

	res := o.Run(ctx, refs("uploads/a.txt", "uploads/b.txt"))

	require.Equal(t, StatusCancelled, res.Status)
	require.Equal(t, 2, res.TimedOut)
	require.Zero(t, res.Succeeded)
	for _, it := range res.Items {
		require.Equal(t, StateTimedOut, it.State)
		require.Equal(t, []ItemState{StatePending, StateTimedOut}, it.History)
		require.Zero(t, w.Calls(it.Document.Key))
	}
}

func TestRun_DegradedCountsAsSucceeded(t *testing.T) {
	w := WorkerFunc(func(_ context.Context, ref document.Reference) summarizer.Outcome {
		s := document.NewDegradedSummary(summarizer.ParseFailureReason, "not json")
		s.ProcessingID = "p1"
		return summarizer.Degraded(ref, s, "s3://b/summaries/a_summary.json", summarizer.ParseFailureReason)
	})
	o := New(w, InteractivePolicy())

	res := o.Run(context.Background(), refs("uploads/a.txt"))

	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Degraded)
	require.True(t, res.Items[0].Degraded)
	require.Equal(t, "UNKNOWN", res.Items[0].RiskLevel)
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []*BatchResult
}

func (n *recordingNotifier) BatchCompleted(_ context.Context, r *BatchResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return nil
}

func TestRun_NotifiesCompletion(t *testing.T) {
	n := &recordingNotifier{}
	o := New(newScriptedWorker(), InteractivePolicy(), WithNotifier(n))

	res := o.Run(context.Background(), refs("uploads/a.txt"))
	empty := o.Run(context.Background(), nil)

	require.Len(t, n.results, 2)
	require.Same(t, res, n.results[0])
	require.Same(t, empty, n.results[1])
}
