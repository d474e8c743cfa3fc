package summarizer

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lifeproof/docsum/internal/chat"
	"github.com/lifeproof/docsum/internal/docstore"
	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/metrics"
	"github.com/lifeproof/docsum/internal/store"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const mediumSummaryJSON = `{
  "patient_id": "P-1001",
  "processing_id": "ignored",
  "risk_level": "MEDIUM",
  "risk_factors": ["Type 2 Diabetes"],
  "conditions": [{"name": "Type 2 Diabetes", "onset_date": "2019", "status": "managed"}],
  "medications": [{"name": "Metformin", "dosage": "500mg BID", "compliance": "compliant"}],
  "surgeries": [],
  "lifestyle_flags": {"tobacco": "never", "alcohol": "moderate", "hazardous_activities": []},
  "lab_values": {"HbA1c": "7.2%", "GFR": "Not found in report", "LVEF": "Not found in report", "LDL": "Not found in report"},
  "underwriter_notes": "Well-controlled diabetes on monotherapy.",
  "confidence_score": "HIGH",
  "model_used": "whatever"
}`

type reply struct {
	text string
	err  error
}

// stubModel returns scripted replies in order, repeating the last one.
type stubModel struct {
	mu      sync.Mutex
	replies []reply
	calls   []chat.InvokeRequest
}

func newStubModel(replies ...reply) *stubModel {
	return &stubModel{replies: replies}
}

func (s *stubModel) Invoke(_ context.Context, req chat.InvokeRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.replies) == 0 {
		return mediumSummaryJSON, nil
	}
	i := len(s.calls) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i].text, s.replies[i].err
}

func (s *stubModel) Calls() []chat.InvokeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.InvokeRequest(nil), s.calls...)
}

// stepClock advances by one millisecond on every read so audit sort keys
// stay unique within a test.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 11, 5, 22, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type failingAudit struct {
	store.MemAuditLog
}

func (f *failingAudit) PutEntry(context.Context, *document.TrackingEntry) error {
	return errors.New("dynamodb unavailable")
}

type failingPutStore struct {
	*docstore.MemStore
}

func (f failingPutStore) Put(context.Context, string, string, []byte, string) error {
	return errors.New("s3 put denied")
}

type fixture struct {
	docs  *docstore.MemStore
	audit *store.MemAuditLog
	model *stubModel
	w     *Worker
}

func newFixture(t *testing.T, cfg Config, model *stubModel) *fixture {
	t.Helper()
	f := &fixture{
		docs:  docstore.NewMemStore(),
		audit: store.NewMemAuditLog(),
		model: model,
	}
	ids := 0
	f.w = New(cfg, f.docs, f.audit, model,
		WithClock(newStepClock().Now),
		WithIDGenerator(func() string {
			ids++
			return "proc-" + string(rune('a'+ids-1))
		}),
	)
	return f
}
