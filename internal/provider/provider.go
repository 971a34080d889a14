// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider implements the uniform embed/chat adapter contract of
// spec.md §4.1: prefix-driven backend dispatch, batching, retry with
// backoff, and cost accounting, modeled as a tagged variant over
// {remote-batched, local-per-item, local-http} per spec.md §9.
package provider

import (
	"context"
	"time"
)

// ProgressFunc reports incremental progress during a batched embed call.
type ProgressFunc func(done, total int)

// EmbedResult is the outcome of an Embed call.
type EmbedResult struct {
	Vectors      [][]float32
	Dimension    int
	PromptTokens int
	CostUSD      float64
	Skipped      int // count of texts whose batch failed and were returned empty
}

// EmbedAdapter converts texts to dense vectors.
type EmbedAdapter interface {
	// Embed returns one vector per input text, in input order, regardless
	// of internal batch completion order (spec.md §4.1, §5).
	Embed(ctx context.Context, texts []string, progress ProgressFunc) (EmbedResult, error)
	// ModelID returns the "namespace/model" identifier for cost/config
	// reporting and dimension-mismatch detection.
	ModelID() string
	// Dimension returns the vector dimension recorded on first successful
	// call, or 0 if no call has succeeded yet.
	Dimension() int
}

// ChatOptions configures a single chat completion.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// ChatResult is the outcome of a Chat call.
type ChatResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// ChatAdapter produces assistant text from a system/user prompt pair.
type ChatAdapter interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (ChatResult, error)
	ModelID() string
}

// DefaultTimeout is the per-call timeout applied when the caller does not
// set one on the context (spec.md §5).
const DefaultTimeout = 60 * time.Second

// Defaults for batching and retry (spec.md §4.1).
const (
	DefaultBatchSize        = 20
	DefaultBatchConcurrency = 5
	DefaultLocalParallelism = 2
	DefaultMaxAttempts      = 3
	DefaultBackoffBase      = time.Second
	DefaultBackoffFactor    = 2.0
	// DefaultContextTokens is the fallback context length (in tokens) used
	// when a model is absent from the context-length table.
	DefaultContextTokens = 8192
	// CharsPerToken approximates token count from character count for
	// truncation purposes. Spec.md §9 calls this "a deliberate
	// approximation... acceptable but not required to be tokenizer-exact."
	CharsPerToken = 2
)

// contextLengths is the table-driven per-model context length referenced
// in spec.md §4.1. Models absent here fall back to DefaultContextTokens.
var contextLengths = map[string]int{
	"voyage-code-3":                 16000,
	"openrouter/qwen3-embedding-8b": 32000,
	"ollama/nomic-embed-text":       8192,
}

// ContextTokensFor returns the known context length for modelName, or the
// documented default.
func ContextTokensFor(modelName string) int {
	if n, ok := contextLengths[modelName]; ok {
		return n
	}
	return DefaultContextTokens
}

// TruncateToTokenBudget truncates text head-first to a safe character
// budget derived from the model's token limit, appending an ellipsis
// marker when truncation occurs (spec.md §4.1).
func TruncateToTokenBudget(text string, modelName string) string {
	maxChars := ContextTokensFor(modelName) * CharsPerToken
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= 1 {
		return "…"
	}
	return text[:maxChars-1] + "…"
}
