package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/document"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoAuditLog.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoAuditLog implements AuditLog on the tracking table.
type DynamoAuditLog struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface check.
var _ AuditLog = (*DynamoAuditLog)(nil)

// NewDynamoAuditLog creates a DynamoAuditLog for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoAuditLog(client DynamoAPI, tableName string) *DynamoAuditLog {
	return &DynamoAuditLog{
		client:    client,
		tableName: tableName,
	}
}

// TableName returns the tracking table name.
func (s *DynamoAuditLog) TableName() string {
	return s.tableName
}

// PutEntry writes the row with a condition that the key does not exist yet,
// so an attempt can never overwrite an earlier one.
func (s *DynamoAuditLog) PutEntry(ctx context.Context, entry *document.TrackingEntry) error {
	if entry.DocumentID == "" || entry.ProcessingTimestamp == "" {
		return fmt.Errorf("tracking entry requires document_id and processing_timestamp")
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal tracking entry: %w", err)
	}

	start := time.Now()
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(document_id) AND attribute_not_exists(processing_timestamp)"),
	})
	duration := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("documentId", entry.DocumentID).Dur("duration", duration).Msg("PutEntry: DynamoDB PutItem failed")
		return fmt.Errorf("PutItem document_id=%s processing_timestamp=%s: %w", entry.DocumentID, entry.ProcessingTimestamp, err)
	}
	log.Debug().
		Str("documentId", entry.DocumentID).
		Str("status", entry.Status).
		Str("processingId", entry.ProcessingID).
		Dur("duration", duration).
		Msg("PutEntry: tracking row persisted")
	return nil
}

func (s *DynamoAuditLog) ByDocument(ctx context.Context, documentID string) ([]document.TrackingEntry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("document_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: documentID},
		},
		ScanIndexForward: aws.Bool(true),
	}, 0)
}

func (s *DynamoAuditLog) ByStatus(ctx context.Context, status string, limit int) ([]document.TrackingEntry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(StatusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
		},
		ScanIndexForward: aws.Bool(false),
	}, limit)
}

func (s *DynamoAuditLog) ByRiskLevel(ctx context.Context, level document.RiskLevel, limit int) ([]document.TrackingEntry, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(RiskLevelIndex),
		KeyConditionExpression: aws.String("risk_level = :level"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":level": &types.AttributeValueMemberS{Value: string(level)},
		},
		ScanIndexForward: aws.Bool(false),
	}, limit)
}

// query pages through a Query and unmarshals rows, stopping at limit when > 0.
func (s *DynamoAuditLog) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]document.TrackingEntry, error) {
	start := time.Now()
	var entries []document.TrackingEntry

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query %s: %w", aws.ToString(input.KeyConditionExpression), err)
		}
		for _, item := range result.Items {
			var e document.TrackingEntry
			if err := attributevalue.UnmarshalMap(item, &e); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal tracking row, skipping")
				continue
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				return entries, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	log.Debug().
		Str("index", aws.ToString(input.IndexName)).
		Int("count", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Tracking query completed")
	return entries, nil
}
