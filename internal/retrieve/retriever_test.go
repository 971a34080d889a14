// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, nil)
}

func fakeEmbed(vecByText map[string][]float32) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = vecByText[t]
		}
		return out, nil
	}
}

func seedUnit(t *testing.T, s *store.Store, id, name, content string, embedding []float32) unit.Unit {
	t.Helper()
	u := unit.Unit{
		ID:        id,
		FilePath:  "a.go",
		UnitType:  unit.TypeFunction,
		Language:  unit.LangGo,
		Name:      name,
		Content:   content,
		Embedding: embedding,
		StartLine: 1,
		EndLine:   1,
	}
	if err := s.Upsert(context.Background(), "proj", u); err != nil {
		t.Fatalf("seed upsert %s: %v", id, err)
	}
	return u
}

func TestSearch_HybridFusesDenseAndLexical(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedUnit(t, s, "find_user", "FindUser", "func FindUser(id string) (*User, error) { return lookup(id) }", []float32{1, 0})
	seedUnit(t, s, "shutdown", "Shutdown", "func Shutdown() { close(done) }", []float32{0, 1})

	r := New(s, "proj", fakeEmbed(map[string][]float32{"find user": {1, 0}}), nil, nil)

	results, err := r.Search(ctx, "find user", Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].Unit.ID != "find_user" {
		t.Fatalf("expected find_user to rank first, got %+v", results)
	}
	if results[0].FusedScore <= 0 {
		t.Errorf("expected positive fused score, got %v", results[0].FusedScore)
	}
}

func TestSearch_KeywordOnlySkipsDenseFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUnit(t, s, "a", "FindUser", "func FindUser() {}", []float32{1, 0})

	called := false
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		called = true
		return nil, nil
	}
	r := New(s, "proj", embed, nil, nil)

	_, err := r.Search(ctx, "find user", Options{Mode: ModeKeywordOnly})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if called {
		t.Error("expected keyword-only mode to skip query embedding")
	}
}

func TestSearch_ContextExpansionAttachesParentAndCallees(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	class := unit.Unit{ID: "cls", FilePath: "a.go", UnitType: unit.TypeClass, Language: unit.LangGo, Name: "Server"}
	if err := s.Upsert(ctx, "proj", class); err != nil {
		t.Fatalf("upsert class: %v", err)
	}
	method := unit.Unit{
		ID: "handle", ParentID: "cls", FilePath: "a.go", UnitType: unit.TypeMethod,
		Language: unit.LangGo, Name: "Handle", Signature: "func (s *Server) Handle()",
		Embedding: []float32{1, 0},
	}
	if err := s.Upsert(ctx, "proj", method); err != nil {
		t.Fatalf("upsert method: %v", err)
	}
	callee := unit.Unit{ID: "log", FilePath: "a.go", UnitType: unit.TypeFunction, Language: unit.LangGo, Name: "Log", Signature: "func Log(s string)"}
	if err := s.Upsert(ctx, "proj", callee); err != nil {
		t.Fatalf("upsert callee: %v", err)
	}
	if err := s.UpsertEdges(ctx, "proj", []unit.Edge{{Source: "handle", Target: "log", Type: unit.EdgeCalls, Occurrence: 1}}); err != nil {
		t.Fatalf("UpsertEdges: %v", err)
	}

	r := New(s, "proj", fakeEmbed(map[string][]float32{"handle": {1, 0}}), nil, nil)
	results, err := r.Search(ctx, "handle", Options{Mode: ModeDense})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	got := results[0]
	if got.Parent == nil || got.Parent.ID != "cls" {
		t.Errorf("expected parent cls, got %+v", got.Parent)
	}
	if len(got.Callees) != 1 || got.Callees[0].UnitID != "log" {
		t.Errorf("expected one callee 'log', got %+v", got.Callees)
	}
}

func TestFeedback_HelpfulIncreasesDominantWeight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	r := New(s, "proj", nil, nil, nil)

	before := r.loadWeights(ctx)
	result := Result{DenseScore: 0.9, LexicalScore: 0.1, PageRankScore: 0.0}

	if err := r.Feedback(ctx, result, FeedbackHelpful); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	after := r.loadWeights(ctx)

	if after.Dense <= before.Dense {
		t.Errorf("expected dense weight to increase, before=%v after=%v", before.Dense, after.Dense)
	}
	sum := after.Dense + after.Lexical + after.PageRank
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected weights to sum to 1, got %v", sum)
	}
}

func TestWeights_ClampedWithinHardCaps(t *testing.T) {
	w := Weights{Dense: 0.05, Lexical: 0.05, PageRank: 0.9}
	clamped := Weights{Dense: clamp(w.Dense), Lexical: clamp(w.Lexical), PageRank: clamp(w.PageRank)}
	if clamped.Dense < minWeight || clamped.Lexical < minWeight || clamped.PageRank > maxWeight {
		t.Errorf("expected weights clamped to [%v,%v], got %+v", minWeight, maxWeight, clamped)
	}
}
