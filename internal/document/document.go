// Package document holds the domain records that flow through the
// summarization pipeline: the reference to an inbound document, the
// structured underwriting summary produced for it, the failure artifact
// written when it cannot be summarized, and the audit row recorded for
// every processing attempt.
package document

import (
	"fmt"
	"path"
	"strings"
)

// Storage prefixes for the three logical areas of the document store.
const (
	InboundPrefix = "uploads/"
	SummaryPrefix = "summaries/"
	FailedPrefix  = "failed/"
)

// supportedSuffixes lists the only inbound file types the pipeline accepts.
// Anything else is skipped at the boundary, never treated as an error.
var supportedSuffixes = []string{".txt", ".pdf"}

// Reference identifies a single inbound document by its store location.
// References are immutable once created.
type Reference struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ID returns the document identifier used as the audit log partition key.
func (r Reference) ID() string {
	return r.Key
}

// String renders the reference as an s3 URI.
func (r Reference) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// Valid reports whether both bucket and key are present.
func (r Reference) Valid() bool {
	return r.Bucket != "" && r.Key != ""
}

// Ext returns the lowercased extension of the key, including the dot.
func (r Reference) Ext() string {
	return strings.ToLower(path.Ext(r.Key))
}

// Supported reports whether the key carries one of the accepted suffixes.
func (r Reference) Supported() bool {
	return IsSupportedKey(r.Key)
}

// BaseName strips the leading path and the trailing extension from the key:
// "uploads/2024/doc1.txt" becomes "doc1".
func (r Reference) BaseName() string {
	return BaseName(r.Key)
}

// SummaryKey is the derived output key for the summary artifact. It is a
// pure function of the input key, so repeated runs overwrite the same object.
func (r Reference) SummaryKey() string {
	return SummaryPrefix + r.BaseName() + "_summary.json"
}

// FailureKey is the derived output key for the failure artifact.
func (r Reference) FailureKey() string {
	return FailedPrefix + r.BaseName() + "_error.json"
}

// BaseName strips the leading path and the trailing extension from key.
func BaseName(key string) string {
	filename := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		filename = key[i+1:]
	}
	if i := strings.LastIndex(filename, "."); i > 0 {
		return filename[:i]
	}
	return filename
}

// IsSupportedKey reports whether key ends with an accepted document suffix.
func IsSupportedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range supportedSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// Location renders an s3 URI for bucket/key.
func Location(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
