// Package trigger normalizes the event shapes that start work into a single
// Request. Every casing and envelope the pipeline accepts is handled here,
// at the boundary, so nothing downstream sees raw events.
//
// Accepted shapes:
//
//	{"documents":[{"bucket":"b","key":"uploads/a.txt"}, ...]}   explicit list
//	{"bucket":"b","key":"uploads/a.txt"}                        single document
//	{"Bucket":"b","Key":"uploads/a.txt"}                        legacy casing
//	{"trigger":"scheduled","timestamp":"..."}                   nightly schedule
//	{"detail-type":"Scheduled Event", ...}                      EventBridge rule
//	{"detail-type":"Object Created","detail":{...}}             EventBridge S3
//	{"Records":[{"eventSource":"aws:s3", ...}]}                 S3 notification
//	{"Records":[{"eventSource":"aws:sqs","body":"{...}"}]}      SQS-wrapped S3
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/lifeproof/docsum/internal/document"
)

// Source says where a Request came from.
type Source string

const (
	SourceDocuments Source = "documents"
	SourceSingle    Source = "single"
	SourceScheduled Source = "scheduled"
	SourceS3        Source = "s3"
)

// TriggerScheduled is the trigger value of the nightly schedule input.
const TriggerScheduled = "scheduled"

// ErrUnrecognized is returned for events that match no accepted shape.
var ErrUnrecognized = errors.New("unrecognized trigger event")

// Request is the normalized form of every trigger. A scheduled request has
// no documents; the receiver lists the inbound prefix itself.
type Request struct {
	Source    Source               `json:"source"`
	Documents []document.Reference `json:"documents,omitempty"`
	BatchID   string               `json:"batch_id,omitempty"`
	Timestamp string               `json:"timestamp,omitempty"`
}

// Scheduled reports whether the request asks for a listing of the inbound prefix.
func (r Request) Scheduled() bool {
	return r.Source == SourceScheduled
}

// ScheduledPayload is the input the nightly rule sends.
type ScheduledPayload struct {
	Trigger   string `json:"trigger"`
	Timestamp string `json:"timestamp"`
}

// NewScheduledPayload stamps a scheduled trigger at t.
func NewScheduledPayload(t time.Time) ScheduledPayload {
	return ScheduledPayload{Trigger: TriggerScheduled, Timestamp: t.UTC().Format(time.RFC3339)}
}

// DocumentsPayload is the explicit-list input of an interactive run.
type DocumentsPayload struct {
	Documents []document.Reference `json:"documents"`
}

// Normalize decodes raw into a Request.
func Normalize(raw []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if fields == nil {
		return Request{}, fmt.Errorf("%w: empty event", ErrUnrecognized)
	}

	if docs, ok := fields["documents"]; ok {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(docs, &items); err != nil {
			return Request{}, fmt.Errorf("decode documents: %w", err)
		}
		req := Request{Source: SourceDocuments, Documents: make([]document.Reference, 0, len(items))}
		for _, item := range items {
			req.Documents = append(req.Documents, referenceFrom(item))
		}
		return req, nil
	}

	if _, ok := fields["Records"]; ok {
		refs, err := recordsFrom(raw)
		if err != nil {
			return Request{}, err
		}
		return Request{Source: SourceS3, Documents: refs}, nil
	}

	if str(fields, "trigger") == TriggerScheduled {
		return Request{Source: SourceScheduled, Timestamp: str(fields, "timestamp")}, nil
	}

	switch str(fields, "detail-type") {
	case "Scheduled Event":
		return Request{Source: SourceScheduled, Timestamp: str(fields, "time")}, nil
	case "Object Created":
		var detail struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		}
		if err := json.Unmarshal(fields["detail"], &detail); err != nil {
			return Request{}, fmt.Errorf("decode object created detail: %w", err)
		}
		ref := document.Reference{Bucket: detail.Bucket.Name, Key: detail.Object.Key}
		return Request{Source: SourceS3, Documents: []document.Reference{ref}}, nil
	}

	ref := referenceFrom(fields)
	if ref.Bucket != "" || ref.Key != "" {
		return Request{
			Source:    SourceSingle,
			Documents: []document.Reference{ref},
			BatchID:   str(fields, "batchId", "batch_id"),
		}, nil
	}
	return Request{}, ErrUnrecognized
}

// FromS3Event extracts references from an S3 notification. Keys arrive
// URL-encoded with '+' for spaces.
func FromS3Event(ev events.S3Event) []document.Reference {
	refs := make([]document.Reference, 0, len(ev.Records))
	for _, r := range ev.Records {
		if r.EventSource != "" && r.EventSource != "aws:s3" {
			continue
		}
		refs = append(refs, document.Reference{Bucket: r.S3.Bucket.Name, Key: decodeKey(r.S3.Object.Key)})
	}
	return refs
}

// FromSQSMessage extracts references from one SQS message carrying an S3
// notification. S3 test events yield no references and no error.
func FromSQSMessage(msg events.SQSMessage) ([]document.Reference, error) {
	var probe struct {
		Event   string            `json:"Event"`
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal([]byte(msg.Body), &probe); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", msg.MessageId, err)
	}
	if probe.Event == "s3:TestEvent" {
		return nil, nil
	}
	var ev events.S3Event
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		return nil, fmt.Errorf("decode s3 event in message %s: %w", msg.MessageId, err)
	}
	return FromS3Event(ev), nil
}

// recordsFrom handles direct S3 notifications and SQS batches of them.
func recordsFrom(raw []byte) ([]document.Reference, error) {
	var probe struct {
		Records []struct {
			EventSource string `json:"eventSource"`
		} `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if len(probe.Records) == 0 {
		return []document.Reference{}, nil
	}

	if probe.Records[0].EventSource == "aws:sqs" {
		var ev events.SQSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode sqs event: %w", err)
		}
		var refs []document.Reference
		for _, msg := range ev.Records {
			got, err := FromSQSMessage(msg)
			if err != nil {
				return nil, err
			}
			refs = append(refs, got...)
		}
		return refs, nil
	}

	var ev events.S3Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode s3 event: %w", err)
	}
	return FromS3Event(ev), nil
}

func referenceFrom(fields map[string]json.RawMessage) document.Reference {
	return document.Reference{
		Bucket: str(fields, "bucket", "Bucket"),
		Key:    str(fields, "key", "Key"),
	}
}

// str returns the first of names present in fields as a string.
func str(fields map[string]json.RawMessage, names ...string) string {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return strings.ReplaceAll(key, "+", " ")
	}
	return decoded
}
