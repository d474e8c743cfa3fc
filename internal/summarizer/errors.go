package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Kind classifies a processing failure. The orchestrator decides whether
// and how to retry from the kind alone.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindEmptyDocument
	KindExtraction
	KindUnsupportedType
	KindModelThrottled
	KindTimeout
	KindModelInvocation
	KindStorage
)

// kindNames are the error type names that cross process boundaries
// (Lambda errorType, dead-letter payloads, audit rows).
var kindNames = map[Kind]string{
	KindInternal:        "InternalError",
	KindNotFound:        "NotFoundError",
	KindEmptyDocument:   "EmptyDocumentError",
	KindExtraction:      "ExtractionError",
	KindUnsupportedType: "UnsupportedTypeError",
	KindModelThrottled:  "ModelThrottledError",
	KindTimeout:         "TimeoutError",
	KindModelInvocation: "ModelInvocationError",
	KindStorage:         "StorageError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// runtimeErrorNames are error names raised by Lambda and Step Functions
// themselves rather than by the Worker.
var runtimeErrorNames = map[string]Kind{
	"States.Timeout":                  KindTimeout,
	"Sandbox.Timedout":                KindTimeout,
	"Lambda.TooManyRequestsException": KindModelThrottled,
	"ThrottlingException":             KindModelThrottled,
	"TooManyRequestsException":        KindModelThrottled,
}

// KindFromName maps an error type name back to a Kind. Anything
// unrecognised is KindInternal.
func KindFromName(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	if k, ok := runtimeErrorNames[name]; ok {
		return k
	}
	return KindInternal
}

// ErrorNames lists every error name, Worker and runtime, that maps to a
// kind of the given class. The list is sorted.
func ErrorNames(class RetryClass) []string {
	var names []string
	for k, n := range kindNames {
		if k.Class() == class {
			names = append(names, n)
		}
	}
	for n, k := range runtimeErrorNames {
		if k.Class() == class {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// RetryClass groups kinds by how the orchestrator treats them.
type RetryClass int

const (
	// ClassTerminal failures are never retried.
	ClassTerminal RetryClass = iota
	// ClassThrottle covers throttling and timeouts (retry tier A).
	ClassThrottle
	// ClassTransient covers every other retryable failure (retry tier B).
	ClassTransient
)

// Class returns the retry class of k.
func (k Kind) Class() RetryClass {
	switch k {
	case KindNotFound, KindEmptyDocument, KindExtraction, KindUnsupportedType:
		return ClassTerminal
	case KindModelThrottled, KindTimeout:
		return ClassThrottle
	default:
		return ClassTransient
	}
}

// Retryable reports whether a failure of kind k may succeed on another attempt.
func (k Kind) Retryable() bool {
	return k.Class() != ClassTerminal
}

// ProcessingError is the typed failure returned by the Worker.
type ProcessingError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsProcessingError returns err as a *ProcessingError, classifying plain
// errors: context deadlines become KindTimeout, everything else KindInternal.
func AsProcessingError(err error) *ProcessingError {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProcessingError{Kind: KindTimeout, Message: "deadline exceeded", Err: err}
	}
	return &ProcessingError{Kind: KindInternal, Message: "unclassified failure", Err: err}
}
