// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// UnderwritingRubricPrompt is the fixed system rubric used to classify risk.
//
//go:embed prompts/underwriting-rubric.txt
var UnderwritingRubricPrompt string

// OutputSchemaPrompt is the JSON shape the model must return.
//
//go:embed prompts/output-schema.txt
var OutputSchemaPrompt string

//go:embed prompts/summarize-document.txt
var summarizeDocumentTemplate string

// Pre-parsed at init. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var summarizePromptTmpl = template.Must(template.New("summarize").Parse(summarizeDocumentTemplate))

// SummarizePromptData holds the dynamic data injected into the user prompt.
type SummarizePromptData struct {
	Document     string
	Schema       string
	ProcessingID string
	ModelID      string
}

// RenderSummarizePrompt renders the per-document user prompt. The output
// schema is always the embedded one.
func RenderSummarizePrompt(document, processingID, modelID string) string {
	var buf bytes.Buffer
	// Execution errors are not expected with this template; whatever was
	// rendered is returned.
	_ = summarizePromptTmpl.Execute(&buf, SummarizePromptData{
		Document:     document,
		Schema:       OutputSchemaPrompt,
		ProcessingID: processingID,
		ModelID:      modelID,
	})
	return buf.String()
}
