// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedder

import (
	"context"
	"testing"

	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/unit"
)

type fakeAdapter struct {
	modelID   string
	dimension int
	vectors   [][]float32
}

func (a *fakeAdapter) Embed(ctx context.Context, texts []string, progress provider.ProgressFunc) (provider.EmbedResult, error) {
	vecs := a.vectors
	if vecs == nil {
		vecs = make([][]float32, len(texts))
		for i := range texts {
			vecs[i] = make([]float32, a.dimension)
		}
	}
	return provider.EmbedResult{Vectors: vecs, Dimension: a.dimension}, nil
}

func (a *fakeAdapter) ModelID() string { return a.modelID }
func (a *fakeAdapter) Dimension() int  { return a.dimension }

func TestComposeText_ConcatenatesCodeAndSummary(t *testing.T) {
	u := unit.Unit{Content: "func Foo() {}", Summary: "creates a Foo"}
	got := ComposeText(u)
	if got != "func Foo() {}\n\ncreates a Foo" {
		t.Errorf("unexpected composed text: %q", got)
	}
}

func TestComposeText_NoSummary_ReturnsContentOnly(t *testing.T) {
	u := unit.Unit{Content: "func Foo() {}"}
	if got := ComposeText(u); got != "func Foo() {}" {
		t.Errorf("unexpected composed text: %q", got)
	}
}

func TestEmbedder_WritesEmbeddingAndModel(t *testing.T) {
	adapter := &fakeAdapter{modelID: "voyage/voyage-code-3", dimension: 3,
		vectors: [][]float32{{1, 2, 3}}}
	e := New(adapter)
	units := []*unit.Unit{{ID: "u1", Content: "func Foo() {}"}}

	if err := e.EmbedUnits(context.Background(), units, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units[0].Embedding) != 3 {
		t.Errorf("expected a 3-dim embedding, got %v", units[0].Embedding)
	}
	if units[0].EmbeddingModel != "voyage/voyage-code-3" {
		t.Errorf("expected embedding model to be recorded, got %q", units[0].EmbeddingModel)
	}
	if e.Dimension() != 3 {
		t.Errorf("expected recorded dimension 3, got %d", e.Dimension())
	}
}

func TestEmbedder_RejectsDimensionMismatch(t *testing.T) {
	adapter := &fakeAdapter{modelID: "voyage/voyage-code-3", dimension: 3}
	e := New(adapter)
	e.dimension = 3 // simulate a collection already pinned to dimension 3
	adapter.vectors = [][]float32{{1, 2}}

	units := []*unit.Unit{{ID: "u1", Content: "x"}}
	err := e.EmbedUnits(context.Background(), units, nil)
	if err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}
}

func TestEmbedder_SkipsFailedBatchEntries(t *testing.T) {
	adapter := &fakeAdapter{modelID: "voyage/voyage-code-3", dimension: 3,
		vectors: [][]float32{{1, 2, 3}, {}}}
	e := New(adapter)
	units := []*unit.Unit{{ID: "u1", Content: "a"}, {ID: "u2", Content: "b"}}

	if err := e.EmbedUnits(context.Background(), units, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units[0].Embedding == nil {
		t.Errorf("expected unit 1 to be embedded")
	}
	if units[1].Embedding != nil {
		t.Errorf("expected unit 2 to remain unembedded after a skipped batch entry")
	}
}
