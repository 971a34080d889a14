// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/claudemem/claudemem/internal/apperr"
)

// langchainChatAdapter adapts a langchaingo llms.Model to the ChatAdapter
// contract. Shared by the cc/a (Anthropic), or (OpenRouter, OpenAI
// compatible), ollama, and lmstudio (Ollama compatible) backends.
type langchainChatAdapter struct {
	model     llms.Model
	modelID   string
	costAcct  *CostAccountant
}

// NewAnthropicChatAdapter builds a ChatAdapter for the "cc/*" and "a/*"
// prefixes, backed by langchaingo's Anthropic client.
func NewAnthropicChatAdapter(apiKey, modelName, modelID string, acct *CostAccountant) (ChatAdapter, error) {
	if apiKey == "" {
		return nil, apperr.Configuration("ANTHROPIC_API_KEY required for model "+modelID, nil)
	}
	m, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(modelName))
	if err != nil {
		return nil, apperr.Configuration("constructing anthropic client", err)
	}
	return &langchainChatAdapter{model: m, modelID: modelID, costAcct: acct}, nil
}

// NewOpenRouterChatAdapter builds a ChatAdapter for the "or/*" prefix,
// backed by langchaingo's OpenAI-compatible client pointed at OpenRouter.
func NewOpenRouterChatAdapter(apiKey, modelName, modelID, baseURL string, acct *CostAccountant) (ChatAdapter, error) {
	if apiKey == "" {
		return nil, apperr.Configuration("OPENROUTER_API_KEY required for model "+modelID, nil)
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	m, err := openai.New(openai.WithToken(apiKey), openai.WithModel(modelName), openai.WithBaseURL(baseURL))
	if err != nil {
		return nil, apperr.Configuration("constructing openrouter client", err)
	}
	return &langchainChatAdapter{model: m, modelID: modelID, costAcct: acct}, nil
}

// NewOllamaChatAdapter builds a ChatAdapter for the "ollama/*" and
// "lmstudio/*" prefixes — LM Studio exposes an Ollama-compatible local
// HTTP endpoint, so both route through the same client shape.
func NewOllamaChatAdapter(serverURL, modelName, modelID string, acct *CostAccountant) (ChatAdapter, error) {
	opts := []ollama.Option{ollama.WithModel(modelName)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, apperr.Configuration("constructing ollama client", err)
	}
	return &langchainChatAdapter{model: m, modelID: modelID, costAcct: acct}, nil
}

func (a *langchainChatAdapter) ModelID() string { return a.modelID }

func (a *langchainChatAdapter) Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (ChatResult, error) {
	messages := []llms.MessageContent{}
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	callOpts := []llms.CallOption{}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}

	var resp *llms.ContentResponse
	err := Retry(ctx, func(ctx context.Context) error {
		r, err := a.model.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return classifyChatErr(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return ChatResult{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ChatResult{}, apperr.Transient("chat adapter returned no choices", nil)
	}

	choice := resp.Choices[0]
	promptTokens, completionTokens := tokenUsageFromGenerationInfo(choice.GenerationInfo)
	cost := 0.0
	if a.costAcct != nil {
		cost = a.costAcct.ChatCost(a.modelID, promptTokens, completionTokens)
	}
	return ChatResult{
		Text:             choice.Content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          cost,
	}, nil
}

func tokenUsageFromGenerationInfo(info map[string]any) (prompt, completion int) {
	if info == nil {
		return 0, 0
	}
	if v, ok := info["PromptTokens"].(int); ok {
		prompt = v
	}
	if v, ok := info["CompletionTokens"].(int); ok {
		completion = v
	}
	return prompt, completion
}

// classifyChatErr maps a raw transport error onto the fail-fast categories
// (auth, connection-refused) vs. the retryable default (spec.md §4.1, §7).
func classifyChatErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if isConnRefused(err) || strings.Contains(msg, "connection refused") {
		return &ConnRefusedError{Err: err}
	}
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") {
		return &AuthError{Err: err}
	}
	return err
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	for e := err; e != nil; {
		if x, ok := e.(*net.OpError); ok {
			opErr = x
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return opErr != nil && strings.Contains(opErr.Error(), "refused")
}
