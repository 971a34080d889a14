// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedder implements spec.md §4.5: composes a unit's indexable
// text, routes it to the configured embed adapter, and writes the
// resulting vector onto the unit while enforcing the single-dimension
// invariant of a collection.
package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/unit"
)

// Embedder writes embeddings onto units via an injected EmbedAdapter.
type Embedder struct {
	Adapter provider.EmbedAdapter

	mu        sync.Mutex
	dimension int
}

// New builds an Embedder over adapter.
func New(adapter provider.EmbedAdapter) *Embedder {
	return &Embedder{Adapter: adapter}
}

// ComposeText builds the per-unit indexable text: code concatenated with
// summary (spec.md §4.5).
func ComposeText(u unit.Unit) string {
	if u.Summary == "" {
		return u.Content
	}
	return u.Content + "\n\n" + u.Summary
}

// EmbedUnits embeds a batch of units in place, truncating each composed
// text to the adapter model's token budget and refusing to persist a
// vector whose dimension differs from the one recorded at first call
// (spec.md §4.5, §4.8 "Changing the embedding model invalidates all
// embeddings").
func (e *Embedder) EmbedUnits(ctx context.Context, units []*unit.Unit, progress provider.ProgressFunc) error {
	if len(units) == 0 {
		return nil
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = provider.TruncateToTokenBudget(ComposeText(*u), e.Adapter.ModelID())
	}

	result, err := e.Adapter.Embed(ctx, texts, progress)
	if err != nil {
		return fmt.Errorf("embed units: %w", err)
	}

	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = result.Dimension
	}
	dim := e.dimension
	e.mu.Unlock()

	for i, u := range units {
		if i >= len(result.Vectors) || len(result.Vectors[i]) == 0 {
			continue // skipped by the adapter (batch failure isolation)
		}
		vec := result.Vectors[i]
		if dim != 0 && len(vec) != dim {
			return apperr.Configuration(fmt.Sprintf("embedding dimension mismatch for unit %s: got %d, collection is %d", u.ID, len(vec), dim), nil)
		}
		u.Embedding = vec
		u.EmbeddingModel = e.Adapter.ModelID()
	}
	return nil
}

// Dimension reports the dimension recorded at first successful call, or 0.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}
