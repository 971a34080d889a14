// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"strings"

	"github.com/claudemem/claudemem/internal/apperr"
)

// Prefix identifies a provider backend, auto-detected from a model spec's
// leading segment (spec.md §6, "Model-spec format").
type Prefix string

const (
	PrefixCC       Prefix = "cc"       // Anthropic via Claude Code-style alias
	PrefixAnthropic Prefix = "a"       // Anthropic direct
	PrefixOpenRouter Prefix = "or"     // OpenRouter (chat or embed)
	PrefixOllama   Prefix = "ollama"
	PrefixLMStudio Prefix = "lmstudio"
	PrefixVoyage   Prefix = "voyage"
	PrefixLocal    Prefix = "local"
)

// ModelSpec is a parsed "<prefix>/<name>" string.
type ModelSpec struct {
	Raw    string
	Prefix Prefix
	Name   string
}

// ParseModelSpec parses a model-spec string, auto-detecting the provider
// prefix. "openrouter/<name>" is accepted as the long form of "or/<name>".
// A spec with no "/" is rejected, except "voyage-code-3", which resolves to
// PrefixVoyage by exact-name match.
func ParseModelSpec(raw string) (ModelSpec, error) {
	if raw == "" {
		return ModelSpec{}, apperr.Configuration("empty model spec", nil)
	}
	if raw == "voyage-code-3" {
		return ModelSpec{Raw: raw, Prefix: PrefixVoyage, Name: raw}, nil
	}
	idx := strings.Index(raw, "/")
	if idx < 0 {
		return ModelSpec{}, apperr.Configuration("model spec %q missing prefix/name separator: "+raw, nil)
	}
	prefix := Prefix(raw[:idx])
	name := raw[idx+1:]
	if prefix == "openrouter" {
		prefix = PrefixOpenRouter
	}
	if name == "" {
		return ModelSpec{}, apperr.Configuration("model spec %q missing model name", nil)
	}
	switch prefix {
	case PrefixCC, PrefixAnthropic, PrefixOpenRouter, PrefixOllama, PrefixLMStudio, PrefixVoyage, PrefixLocal:
		return ModelSpec{Raw: raw, Prefix: prefix, Name: name}, nil
	default:
		return ModelSpec{}, apperr.Configuration("unrecognized provider prefix %q in model spec "+raw, nil)
	}
}
