package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// EventSource and BatchCompletedDetailType identify completion events.
const (
	EventSource              = "lifeproof.docsum"
	BatchCompletedDetailType = "BatchCompleted"
)

// Notifier is told when a batch finishes.
type Notifier interface {
	BatchCompleted(ctx context.Context, result *BatchResult) error
}

// BatchCompletedEvent is the EventBridge detail. Per-item outcomes are left
// out to stay under the 256 KB event limit.
type BatchCompletedEvent struct {
	BatchID    string      `json:"batch_id"`
	Status     BatchStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	Total      int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Degraded   int         `json:"degraded"`
	Failed     int         `json:"failed"`
	TimedOut   int         `json:"timed_out"`
	Skipped    int         `json:"skipped"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// NewBatchCompletedEvent summarizes result for publication.
func NewBatchCompletedEvent(result *BatchResult) BatchCompletedEvent {
	return BatchCompletedEvent{
		BatchID:    result.BatchID,
		Status:     result.Status,
		Message:    result.Message,
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Degraded:   result.Degraded,
		Failed:     result.Failed,
		TimedOut:   result.TimedOut,
		Skipped:    result.Skipped,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
}

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeAPI = (*eventbridge.Client)(nil)

// EventBridgeNotifier publishes BatchCompleted events to an event bus.
type EventBridgeNotifier struct {
	client  EventBridgeAPI
	busName string
}

var _ Notifier = (*EventBridgeNotifier)(nil)

// NewEventBridgeNotifier publishes to busName ("" for the default bus).
func NewEventBridgeNotifier(client EventBridgeAPI, busName string) *EventBridgeNotifier {
	return &EventBridgeNotifier{client: client, busName: busName}
}

func (n *EventBridgeNotifier) BatchCompleted(ctx context.Context, result *BatchResult) error {
	detail, err := json.Marshal(NewBatchCompletedEvent(result))
	if err != nil {
		return fmt.Errorf("marshal BatchCompleted: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(EventSource),
		DetailType: aws.String(BatchCompletedDetailType),
		Detail:     aws.String(string(detail)),
	}
	if n.busName != "" {
		entry.EventBusName = aws.String(n.busName)
	}

	out, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("batchId", result.BatchID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if out.FailedEntryCount > 0 {
		for i, e := range out.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("batchId", result.BatchID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("batchId", result.BatchID).Str("status", string(result.Status)).Msg("BatchCompleted emitted to EventBridge")
	return nil
}
