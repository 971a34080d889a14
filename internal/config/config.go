// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the layered global (~/.claudemem/config.json) and
// project (<project>/claudemem.json) configuration described in spec.md §6,
// plus the YAML-overridable cost-accounting pricing table referenced in
// spec.md §4.1 and §9.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/claudemem/claudemem/internal/apperr"
)

// Global is the contents of ~/.claudemem/config.json.
type Global struct {
	DefaultProvider string `json:"default_provider,omitempty"`
	DefaultEmbedModel string `json:"default_embed_model"`
	DefaultChatModel  string `json:"default_chat_model"`
	EndpointURLs      map[string]string `json:"endpoint_urls,omitempty"`
}

// Project is the contents of the optional <project>/claudemem.json.
type Project struct {
	EmbedModel string   `json:"embed_model,omitempty"`
	ChatModel  string   `json:"chat_model,omitempty"`
	IgnoreGlobs []string `json:"ignore,omitempty"`

	// ContentHashAlgorithm documents the choice resolved in SPEC_FULL.md §3
	// (open question in spec.md §9). Always "sha256" in this implementation;
	// recorded so an index directory is self-describing.
	ContentHashAlgorithm string `json:"content_hash_algorithm,omitempty"`

	VectorBackend string `json:"vector_backend,omitempty"` // "badger" (default) or "weaviate"
	WeaviateURL   string `json:"weaviate_url,omitempty"`

	Pipeline PipelineLimits `json:"pipeline,omitempty"`
}

// PipelineLimits bounds the in-flight sets of the indexing pipeline
// (spec.md §5, "Backpressure").
type PipelineLimits struct {
	MaxInFlightParse  int `json:"max_in_flight_parse,omitempty"`
	MaxInFlightEnrich int `json:"max_in_flight_enrich,omitempty"`
	MaxInFlightEmbed  int `json:"max_in_flight_embed,omitempty"`
}

// DefaultPipelineLimits returns the engine defaults.
func DefaultPipelineLimits() PipelineLimits {
	return PipelineLimits{MaxInFlightParse: 32, MaxInFlightEnrich: 8, MaxInFlightEmbed: 5}
}

// Recognized environment variables (spec.md §6).
const (
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvVoyageAPIKey     = "VOYAGE_API_KEY"
	EnvEmbedModel       = "CLAUDEMEM_MODEL"
	EnvChatModel        = "CLAUDEMEM_LLM"
)

// GlobalConfigPath returns ~/.claudemem/config.json.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperr.Configuration("resolving home directory", err)
	}
	return filepath.Join(home, ".claudemem", "config.json"), nil
}

// ProjectDir returns <project>/.claudemem, the project index directory.
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".claudemem")
}

// ProjectConfigPath returns <project>/claudemem.json.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, "claudemem.json")
}

// LoadGlobal reads the global config. If the file does not exist it returns
// defaults naming ollama/nomic-embed-text and ollama/llama3.2 as the
// embedding and chat models.
func LoadGlobal() (Global, error) {
	path, err := GlobalConfigPath()
	if err != nil {
		return Global{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Global{DefaultEmbedModel: "ollama/nomic-embed-text", DefaultChatModel: "ollama/llama3.2"}, nil
	}
	if err != nil {
		return Global{}, apperr.Storage("reading global config", err)
	}
	var g Global
	if err := json.Unmarshal(data, &g); err != nil {
		return Global{}, apperr.Configuration("parsing global config "+path, err)
	}
	return g, nil
}

// SaveGlobal writes the global config, creating ~/.claudemem if needed.
func SaveGlobal(g Global) error {
	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return apperr.Storage("creating global config directory", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return apperr.Configuration("encoding global config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return apperr.Storage("writing global config", err)
	}
	return nil
}

// SaveProject writes the project config to <projectRoot>/claudemem.json.
func SaveProject(projectRoot string, p Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return apperr.Configuration("encoding project config", err)
	}
	if err := os.WriteFile(ProjectConfigPath(projectRoot), data, 0o644); err != nil {
		return apperr.Storage("writing project config", err)
	}
	return nil
}

// LoadProject reads the optional project config, returning documented
// defaults (SHA-256 content hashing, BadgerDB vector backend, default
// pipeline limits) when no file is present.
func LoadProject(projectRoot string) (Project, error) {
	path := ProjectConfigPath(projectRoot)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Project{ContentHashAlgorithm: "sha256", VectorBackend: "badger", Pipeline: DefaultPipelineLimits()}, nil
	}
	if err != nil {
		return Project{}, apperr.Storage("reading project config", err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return Project{}, apperr.Configuration("parsing project config "+path, err)
	}
	if p.ContentHashAlgorithm == "" {
		p.ContentHashAlgorithm = "sha256"
	}
	if p.VectorBackend == "" {
		p.VectorBackend = "badger"
	}
	if p.Pipeline == (PipelineLimits{}) {
		p.Pipeline = DefaultPipelineLimits()
	}
	return p, nil
}

// Pricing is the per-model cost-accounting rate, expressed as USD per
// million tokens for prompt and completion tokens respectively.
type Pricing struct {
	PromptPerMillion     float64 `yaml:"prompt_per_million"`
	CompletionPerMillion float64 `yaml:"completion_per_million"`
}

// PricingTable maps "namespace/model" to its Pricing.
type PricingTable map[string]Pricing

// DefaultPricing is used for any model absent from the table (spec.md §4.1,
// "unknown models fall back to a documented default").
var DefaultPricing = Pricing{PromptPerMillion: 0.20, CompletionPerMillion: 0.60}

// DefaultPricingTable seeds commonly used models; fully overridable via
// LoadPricingTable so pricing drift never requires a code change
// (spec.md §9, open question).
func DefaultPricingTable() PricingTable {
	return PricingTable{
		"a/opus":              {PromptPerMillion: 15, CompletionPerMillion: 75},
		"a/sonnet":             {PromptPerMillion: 3, CompletionPerMillion: 15},
		"cc/sonnet":            {PromptPerMillion: 3, CompletionPerMillion: 15},
		"or/openai/gpt-4o":     {PromptPerMillion: 2.5, CompletionPerMillion: 10},
		"voyage-code-3":        {PromptPerMillion: 0.18, CompletionPerMillion: 0},
		"openrouter/qwen3-embedding-8b": {PromptPerMillion: 0.10, CompletionPerMillion: 0},
	}
}

// LoadPricingTable loads an override table from path, merging over the
// documented defaults so a partial override file only needs to list the
// models it changes.
func LoadPricingTable(path string) (PricingTable, error) {
	table := DefaultPricingTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return table, nil
	}
	if err != nil {
		return nil, apperr.Storage("reading pricing table "+path, err)
	}
	var overrides PricingTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, apperr.Configuration("parsing pricing table "+path, err)
	}
	for model, p := range overrides {
		table[model] = p
	}
	return table, nil
}

// PriceFor returns the pricing for model, falling back to DefaultPricing.
func (t PricingTable) PriceFor(model string) Pricing {
	if p, ok := t[model]; ok {
		return p
	}
	return DefaultPricing
}
