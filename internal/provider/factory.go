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
	"log/slog"
	"os"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/config"
	"github.com/claudemem/claudemem/internal/secret"
)

// Factory is the central creation point for embed and chat adapters,
// dispatching on a model spec's prefix (spec.md §4.1, §9 "Polymorphism
// over provider adapters").
type Factory struct {
	Endpoints map[string]string // override base URLs, keyed by prefix
	Logger    *slog.Logger
	Accountant *CostAccountant
	LocalEmbed LocalEmbedFunc // injected for "local/<custom>" specs
}

// NewFactory builds a Factory from loaded config.
func NewFactory(global config.Global, pricing config.PricingTable, logger *slog.Logger) *Factory {
	return &Factory{
		Endpoints:  global.EndpointURLs,
		Logger:     logger,
		Accountant: NewCostAccountant(pricing),
	}
}

// CreateEmbedAdapter builds the EmbedAdapter for the given model spec.
func (f *Factory) CreateEmbedAdapter(spec string) (EmbedAdapter, error) {
	ms, err := config.ParseModelSpec(spec)
	if err != nil {
		return nil, err
	}
	switch ms.Prefix {
	case config.PrefixVoyage:
		return NewVoyageEmbedAdapter(secret.EnvString(config.EnvVoyageAPIKey), f.Accountant, f.Logger)
	case config.PrefixOpenRouter:
		return NewOpenRouterEmbedAdapter(secret.EnvString(config.EnvOpenRouterAPIKey), ms.Name, f.Endpoints["openrouter"], f.Accountant, f.Logger)
	case config.PrefixOllama:
		return NewOllamaEmbedAdapter(f.Endpoints["ollama"], ms.Name, f.Accountant, f.Logger), nil
	case config.PrefixLocal:
		if f.LocalEmbed == nil {
			return nil, apperr.Configuration("local embed model %q requires an injected LocalEmbedFunc", nil)
		}
		return NewLocalEmbedAdapter(ms.Raw, f.LocalEmbed), nil
	default:
		return nil, apperr.Configuration("prefix %q is not a valid embedding backend", nil)
	}
}

// CreateChatAdapter builds the ChatAdapter for the given model spec.
func (f *Factory) CreateChatAdapter(spec string) (ChatAdapter, error) {
	ms, err := config.ParseModelSpec(spec)
	if err != nil {
		return nil, err
	}
	modelID := ms.Raw
	switch ms.Prefix {
	case config.PrefixCC, config.PrefixAnthropic:
		return NewAnthropicChatAdapter(secret.EnvString(config.EnvAnthropicAPIKey), ms.Name, modelID, f.Accountant)
	case config.PrefixOpenRouter:
		return NewOpenRouterChatAdapter(secret.EnvString(config.EnvOpenRouterAPIKey), ms.Name, modelID, f.Endpoints["openrouter"], f.Accountant)
	case config.PrefixOllama:
		return NewOllamaChatAdapter(f.Endpoints["ollama"], ms.Name, modelID, f.Accountant)
	case config.PrefixLMStudio:
		return NewOllamaChatAdapter(f.Endpoints["lmstudio"], ms.Name, modelID, f.Accountant)
	default:
		return nil, apperr.Configuration("prefix %q is not a valid chat backend", nil)
	}
}

// ResolveEmbedModel applies the CLAUDEMEM_MODEL override if set.
func ResolveEmbedModel(configured string) string {
	if v := os.Getenv(config.EnvEmbedModel); v != "" {
		return v
	}
	return configured
}

// ResolveChatModel applies the CLAUDEMEM_LLM override if set.
func ResolveChatModel(configured string) string {
	if v := os.Getenv(config.EnvChatModel); v != "" {
		return v
	}
	return configured
}
