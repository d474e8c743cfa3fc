// Package statemachine renders the Amazon States Language definition of the
// managed batch and drives executions of it.
//
// The retry numbers come from orchestrator.Policy, the same value the
// in-process orchestrator uses. ASL counts retries, not invocations, so a
// tier with MaxAttempts 5 renders as "MaxAttempts": 4.
package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lifeproof/docsum/internal/document"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// Mode selects which variant of the state machine is rendered.
type Mode string

const (
	// ModeProduction lists the inbound prefix and fans out with a
	// distributed Map.
	ModeProduction Mode = "production"
	// ModeInteractive maps inline over an explicit $.documents list.
	ModeInteractive Mode = "interactive"
)

// State names, results and task resources.
const (
	StateListDocuments   = "ListDocumentsForProcessing"
	StateCheckDocuments  = "CheckForDocuments"
	StateNoDocuments     = "NoDocumentsFound"
	StateProcessBatch    = "ProcessDocumentsBatch"
	StateSummarize       = "SummarizeDocument"
	StateHandleFailed    = "HandleFailedDocument"
	NoDocumentsStatus    = "NO_DOCUMENTS"
	noDocumentsMessage   = "No documents found for processing"
	errorAll             = "States.ALL"
	resourceLambda       = "arn:aws:states:::lambda:invoke"
	resourceSQSSend      = "arn:aws:states:::sqs:sendMessage"
	resourceS3List       = "arn:aws:states:::aws-sdk:s3:listObjectsV2"
	resourceS3ItemReader = "arn:aws:states:::s3:listObjectsV2"
)

// Options configures Build.
type Options struct {
	Mode                  Mode
	Policy                orchestrator.Policy
	SummarizerFunctionARN string
	DocumentBucket        string
	InboundPrefix         string
	DeadLetterQueueURL    string
	Comment               string
}

// Definition is a complete state machine.
type Definition struct {
	Comment        string            `json:"Comment,omitempty"`
	StartAt        string            `json:"StartAt"`
	TimeoutSeconds int               `json:"TimeoutSeconds,omitempty"`
	States         map[string]*State `json:"States"`
}

// State is the union of the state fields this pipeline uses.
type State struct {
	Type     string `json:"Type"`
	Comment  string `json:"Comment,omitempty"`
	Resource string `json:"Resource,omitempty"`

	Parameters     map[string]any `json:"Parameters,omitempty"`
	ResultSelector map[string]any `json:"ResultSelector,omitempty"`
	ResultPath     string         `json:"ResultPath,omitempty"`
	OutputPath     string         `json:"OutputPath,omitempty"`
	Result         map[string]any `json:"Result,omitempty"`

	Choices []ChoiceRule `json:"Choices,omitempty"`
	Default string       `json:"Default,omitempty"`

	ItemsPath                  string         `json:"ItemsPath,omitempty"`
	ItemReader                 *ItemReader    `json:"ItemReader,omitempty"`
	ItemSelector               map[string]any `json:"ItemSelector,omitempty"`
	ItemProcessor              *ItemProcessor `json:"ItemProcessor,omitempty"`
	MaxConcurrency             int            `json:"MaxConcurrency,omitempty"`
	ToleratedFailurePercentage int            `json:"ToleratedFailurePercentage,omitempty"`

	Retry []Retrier `json:"Retry,omitempty"`
	Catch []Catcher `json:"Catch,omitempty"`

	Next string `json:"Next,omitempty"`
	End  bool   `json:"End,omitempty"`
}

// ChoiceRule is a single-comparison choice.
type ChoiceRule struct {
	Variable           string `json:"Variable"`
	NumericGreaterThan *int   `json:"NumericGreaterThan,omitempty"`
	IsPresent          *bool  `json:"IsPresent,omitempty"`
	Next               string `json:"Next"`
}

// ItemReader feeds a distributed Map from an S3 listing.
type ItemReader struct {
	Resource   string         `json:"Resource"`
	Parameters map[string]any `json:"Parameters"`
}

// ItemProcessor is the per-item sub-workflow of a Map state.
type ItemProcessor struct {
	ProcessorConfig ProcessorConfig   `json:"ProcessorConfig"`
	StartAt         string            `json:"StartAt"`
	States          map[string]*State `json:"States"`
}

// ProcessorConfig selects inline or distributed execution.
type ProcessorConfig struct {
	Mode          string `json:"Mode"`
	ExecutionType string `json:"ExecutionType,omitempty"`
}

// Retrier is one entry of a Task's Retry list. MaxAttempts is always
// serialized: 0 means "never retry".
type Retrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds int      `json:"IntervalSeconds,omitempty"`
	MaxAttempts     int      `json:"MaxAttempts"`
	BackoffRate     float64  `json:"BackoffRate,omitempty"`
}

// Catcher routes a failed Task to a fallback state.
type Catcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	ResultPath  string   `json:"ResultPath,omitempty"`
	Next        string   `json:"Next"`
}

// JSON renders the definition as indented ASL.
func (d *Definition) JSON() (string, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal state machine definition: %w", err)
	}
	return string(b), nil
}

// Build renders the state machine for opts.
func Build(opts Options) (*Definition, error) {
	if opts.SummarizerFunctionARN == "" {
		return nil, errors.New("summarizer function ARN is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeProduction
	}
	if opts.Policy.MaxConcurrency <= 0 && opts.Mode == ModeInteractive {
		opts.Policy = orchestrator.InteractivePolicy()
	}
	opts.Policy = opts.Policy.WithDefaults()
	if opts.InboundPrefix == "" {
		opts.InboundPrefix = document.InboundPrefix
	}

	switch opts.Mode {
	case ModeProduction:
		if opts.DocumentBucket == "" {
			return nil, errors.New("document bucket is required in production mode")
		}
		return buildProduction(opts), nil
	case ModeInteractive:
		return buildInteractive(opts), nil
	}
	return nil, fmt.Errorf("unknown state machine mode %q", opts.Mode)
}

func buildProduction(opts Options) *Definition {
	comment := opts.Comment
	if comment == "" {
		comment = "Nightly underwriting document summarization batch"
	}
	gt := 0
	return &Definition{
		Comment:        comment,
		StartAt:        StateListDocuments,
		TimeoutSeconds: seconds(opts.Policy.Timeout),
		States: map[string]*State{
			StateListDocuments: {
				Type:     "Task",
				Resource: resourceS3List,
				Parameters: map[string]any{
					"Bucket":  opts.DocumentBucket,
					"Prefix":  opts.InboundPrefix,
					"MaxKeys": 1,
				},
				ResultSelector: map[string]any{"KeyCount.$": "$.KeyCount"},
				ResultPath:     "$.listResult",
				Next:           StateCheckDocuments,
			},
			StateCheckDocuments: {
				Type: "Choice",
				Choices: []ChoiceRule{{
					Variable:           "$.listResult.KeyCount",
					NumericGreaterThan: &gt,
					Next:               StateProcessBatch,
				}},
				Default: StateNoDocuments,
			},
			StateNoDocuments: noDocumentsState(),
			StateProcessBatch: {
				Type: "Map",
				ItemReader: &ItemReader{
					Resource: resourceS3ItemReader,
					Parameters: map[string]any{
						"Bucket": opts.DocumentBucket,
						"Prefix": opts.InboundPrefix,
					},
				},
				ItemSelector: map[string]any{
					"bucket":    opts.DocumentBucket,
					"key.$":     "$$.Map.Item.Value.Key",
					"batchId.$": "$$.Execution.Name",
				},
				ItemProcessor: &ItemProcessor{
					ProcessorConfig: ProcessorConfig{Mode: "DISTRIBUTED", ExecutionType: "STANDARD"},
					StartAt:         StateSummarize,
					States:          itemStates(opts),
				},
				MaxConcurrency:             opts.Policy.MaxConcurrency,
				ToleratedFailurePercentage: 100,
				End:                        true,
			},
		},
	}
}

func buildInteractive(opts Options) *Definition {
	comment := opts.Comment
	if comment == "" {
		comment = "On-demand underwriting document summarization"
	}
	present := true
	return &Definition{
		Comment:        comment,
		StartAt:        StateCheckDocuments,
		TimeoutSeconds: seconds(opts.Policy.Timeout),
		States: map[string]*State{
			StateCheckDocuments: {
				Type: "Choice",
				Choices: []ChoiceRule{{
					Variable:  "$.documents[0]",
					IsPresent: &present,
					Next:      StateProcessBatch,
				}},
				Default: StateNoDocuments,
			},
			StateNoDocuments: noDocumentsState(),
			StateProcessBatch: {
				Type:      "Map",
				ItemsPath: "$.documents",
				ItemProcessor: &ItemProcessor{
					ProcessorConfig: ProcessorConfig{Mode: "INLINE"},
					StartAt:         StateSummarize,
					States:          itemStates(opts),
				},
				MaxConcurrency: opts.Policy.MaxConcurrency,
				ResultPath:     "$.results",
				End:            true,
			},
		},
	}
}

func noDocumentsState() *State {
	return &State{
		Type: "Pass",
		Result: map[string]any{
			"status":  NoDocumentsStatus,
			"message": noDocumentsMessage,
		},
		End: true,
	}
}

// itemStates is the per-document sub-workflow shared by both modes. Without
// a dead-letter queue the item simply fails and the Map tolerates it.
func itemStates(opts Options) map[string]*State {
	summarize := &State{
		Type:     "Task",
		Resource: resourceLambda,
		Parameters: map[string]any{
			"FunctionName": opts.SummarizerFunctionARN,
			"Payload.$":    "$",
		},
		OutputPath: "$.Payload",
		Retry:      Retriers(opts.Policy),
		End:        true,
	}
	states := map[string]*State{StateSummarize: summarize}
	if opts.DeadLetterQueueURL == "" {
		return states
	}
	summarize.Catch = []Catcher{{
		ErrorEquals: []string{errorAll},
		ResultPath:  "$.error",
		Next:        StateHandleFailed,
	}}
	states[StateHandleFailed] = &State{
		Type:     "Task",
		Resource: resourceSQSSend,
		Parameters: map[string]any{
			"QueueUrl":      opts.DeadLetterQueueURL,
			"MessageBody.$": "States.JsonToString($)",
		},
		End: true,
	}
	return states
}

// Retriers renders the Retry list for the summarize task. Terminal errors
// come first with MaxAttempts 0 so States.ALL never catches them.
func Retriers(p orchestrator.Policy) []Retrier {
	return []Retrier{
		{
			ErrorEquals: summarizer.ErrorNames(summarizer.ClassTerminal),
			MaxAttempts: 0,
		},
		tierRetrier(summarizer.ErrorNames(summarizer.ClassThrottle), p.Throttle),
		tierRetrier([]string{errorAll}, p.Transient),
	}
}

func tierRetrier(names []string, t orchestrator.RetryTier) Retrier {
	interval := seconds(t.Interval)
	if interval < 1 {
		interval = 1
	}
	return Retrier{
		ErrorEquals:     names,
		IntervalSeconds: interval,
		MaxAttempts:     t.Retries(),
		BackoffRate:     t.BackoffRate,
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
