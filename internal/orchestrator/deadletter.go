package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/document"
)

// DeadLetterMessage is the payload routed for an item that exhausted its
// retries. The Worker has already written its failure artifact and audit
// rows; this message is the operator-facing queue entry.
type DeadLetterMessage struct {
	BatchID      string             `json:"batch_id"`
	Document     document.Reference `json:"document"`
	ProcessingID string             `json:"processing_id,omitempty"`
	ErrorType    string             `json:"error_type"`
	Error        string             `json:"error"`
	Attempts     int                `json:"attempts"`
	FailedAt     string             `json:"failed_at"`
}

// DeadLetter receives exhausted items. Implementations must be safe for
// concurrent senders.
type DeadLetter interface {
	Send(ctx context.Context, msg DeadLetterMessage) error
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ SQSAPI = (*sqs.Client)(nil)

// SQSDeadLetter sends exhausted items to an SQS queue.
type SQSDeadLetter struct {
	client   SQSAPI
	queueURL string
}

var _ DeadLetter = (*SQSDeadLetter)(nil)

// NewSQSDeadLetter creates a DeadLetter for the given queue URL.
func NewSQSDeadLetter(client SQSAPI, queueURL string) *SQSDeadLetter {
	return &SQSDeadLetter{client: client, queueURL: queueURL}
}

func (d *SQSDeadLetter) Send(ctx context.Context, msg DeadLetterMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead-letter message: %w", err)
	}
	out, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"error_type": {DataType: aws.String("String"), StringValue: aws.String(msg.ErrorType)},
			"batch_id":   {DataType: aws.String("String"), StringValue: aws.String(msg.BatchID)},
		},
	})
	if err != nil {
		return fmt.Errorf("SendMessage %s: %w", msg.Document.Key, err)
	}
	log.Debug().
		Str("key", msg.Document.Key).
		Str("messageId", aws.ToString(out.MessageId)).
		Str("errorType", msg.ErrorType).
		Msg("Item routed to dead-letter queue")
	return nil
}

// MemDeadLetter collects messages in memory for tests and local runs.
type MemDeadLetter struct {
	mu       sync.Mutex
	messages []DeadLetterMessage
}

var _ DeadLetter = (*MemDeadLetter)(nil)

func (m *MemDeadLetter) Send(_ context.Context, msg DeadLetterMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MemDeadLetter) Messages() []DeadLetterMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetterMessage(nil), m.messages...)
}
