// Package jsonutil provides utilities for extracting and parsing JSON from
// LLM responses that may be wrapped in markdown code fences or embedded in prose.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripMarkdownFences removes a leading ```json or ``` fence and a trailing
// ``` fence from text. Fences may sit on their own lines or hug the content.
// Returns the trimmed original text if no opening fence is found.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	default:
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ExtractObject returns the outermost {...} span of text, ignoring any
// prose before the first { or after the last }.
func ExtractObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found")
	}
	return text[start : end+1], nil
}

// ObjectBytes strips fences and returns the JSON object found in raw.
// A bare fenced object is returned as-is; otherwise the outermost {...}
// span is extracted from surrounding prose.
func ObjectBytes(raw string) ([]byte, error) {
	text := StripMarkdownFences(raw)
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return []byte(text), nil
	}
	candidate, err := ExtractObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("invalid JSON object (raw length: %d)", len(raw))
	}
	return []byte(candidate), nil
}
