// Package llm provides the narrow chat-completion transport the contract
// builder depends on. The builder only needs "structured prompt in, raw text
// out"; retries, circuit breakers, and provider fallbacks belong to callers.
package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat-completion call. Description labels the call in
// logs and error messages; it never reaches the provider.
type Request struct {
	System      string
	Messages    []Message
	Description string
}

// Client is the chat-completion capability. Implementations must return the
// assistant's raw text content, or an error when the transport fails.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSONObject locates the JSON object in a model response, tolerating
// surrounding prose and markdown code fences, and unmarshals it. The returned
// error carries no response content; callers decide how much to quote.
func ExtractJSONObject(text string) (map[string]any, error) {
	candidate := strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	// Fall back to the outermost brace pair when the model added prose.
	if !strings.HasPrefix(candidate, "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start >= 0 && end > start {
			candidate = candidate[start : end+1]
		}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ExtractFenced returns the contents of the first markdown code fence in
// text, or "" when there is none.
func ExtractFenced(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Snippet returns the first n characters of text for error messages, so a
// malformed response can be diagnosed without dumping arbitrarily large
// payloads into logs.
func Snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
