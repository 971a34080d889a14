// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

// openTestDB opens a BadgerDB rooted at a fresh temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testUnit(id, filePath, name string) unit.Unit {
	return unit.Unit{
		ID:        id,
		FilePath:  filePath,
		UnitType:  unit.TypeFunction,
		Language:  unit.LangGo,
		Name:      name,
		Content:   "func " + name + "() {}",
		StartLine: 1,
		EndLine:   1,
	}
}

func TestEnsureSchema_FreshProjectWritesVersion(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	if err := s.EnsureSchema(ctx, "proj"); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Calling again with the same version is a no-op, not a rebuild.
	if err := s.Upsert(ctx, "proj", testUnit("u1", "a.go", "F")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.EnsureSchema(ctx, "proj"); err != nil {
		t.Fatalf("EnsureSchema (second call): %v", err)
	}
	got, err := s.FindByID(ctx, "proj", "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected unit to survive a no-op schema check")
	}
}

func TestUpsertAndFindByID_RoundTrip(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	u := testUnit("u1", "a.go", "Foo")

	if err := s.Upsert(ctx, "proj", u); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.FindByID(ctx, "proj", "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.Name != "Foo" {
		t.Fatalf("expected round-tripped unit named Foo, got %+v", got)
	}
}

func TestFindByID_MissingReturnsNilNoError(t *testing.T) {
	s := New(openTestDB(t), nil)
	got, err := s.FindByID(context.Background(), "proj", "nope")
	if err != nil {
		t.Fatalf("expected no error on miss, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil unit on miss, got %+v", got)
	}
}

func TestDelete_RemovesUnitAndIncidentEdges(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	a := testUnit("a", "x.go", "A")
	b := testUnit("b", "x.go", "B")
	if err := s.Upsert(ctx, "proj", a); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := s.Upsert(ctx, "proj", b); err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	edges := []unit.Edge{
		{Source: "a", Target: "b", Type: unit.EdgeCalls, Occurrence: 1},
		{Source: "b", Target: "a", Type: unit.EdgeReferences, Occurrence: 1},
	}
	if err := s.UpsertEdges(ctx, "proj", edges); err != nil {
		t.Fatalf("UpsertEdges: %v", err)
	}

	if err := s.Delete(ctx, "proj", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := s.FindByID(ctx, "proj", "a")
	if err != nil {
		t.Fatalf("FindByID after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected unit a to be gone after delete")
	}

	// Both edges touched a, so deleting a must have removed them.
	out, in, err := s.EdgesForUnit(ctx, "proj", "b")
	if err != nil {
		t.Fatalf("EdgesForUnit b: %v", err)
	}
	if len(out) != 0 || len(in) != 0 {
		t.Errorf("expected no edges left on b, got out=%+v in=%+v", out, in)
	}

	// Deleting b, which has no incident edges left, must not error.
	if err := s.Delete(ctx, "proj", "b"); err != nil {
		t.Fatalf("Delete b: %v", err)
	}
	if got, err := s.FindByID(ctx, "proj", "b"); err != nil || got != nil {
		t.Errorf("expected b gone after delete, got unit=%+v err=%v", got, err)
	}
}

func TestUpsertEdges_AggregatesOccurrenceOnDuplicate(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	e := unit.Edge{Source: "a", Target: "b", Type: unit.EdgeCalls, Occurrence: 1}
	if err := s.UpsertEdges(ctx, "proj", []unit.Edge{e}); err != nil {
		t.Fatalf("first UpsertEdges: %v", err)
	}
	if err := s.UpsertEdges(ctx, "proj", []unit.Edge{e}); err != nil {
		t.Fatalf("second UpsertEdges: %v", err)
	}
	out, _, err := s.EdgesForUnit(ctx, "proj", "a")
	if err != nil {
		t.Fatalf("EdgesForUnit: %v", err)
	}
	if len(out) != 1 || out[0].Occurrence != 2 {
		t.Errorf("expected one merged edge with occurrence 2, got %+v", out)
	}
}

func TestIterByFile_OnlyReturnsMatchingFile(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	if err := s.Upsert(ctx, "proj", testUnit("a", "x.go", "A")); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := s.Upsert(ctx, "proj", testUnit("b", "y.go", "B")); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	var names []string
	err := s.IterByFile(ctx, "proj", "x.go", func(u unit.Unit) error {
		names = append(names, u.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("IterByFile: %v", err)
	}
	if len(names) != 1 || names[0] != "A" {
		t.Errorf("expected only [A], got %v", names)
	}
}

func TestKNN_OrdersByDescendingCosineSimilarity(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	close := testUnit("close", "a.go", "Close")
	close.Embedding = []float32{1, 0, 0}
	far := testUnit("far", "a.go", "Far")
	far.Embedding = []float32{0, 1, 0}

	for _, u := range []unit.Unit{close, far} {
		if err := s.Upsert(ctx, "proj", u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	results, err := s.KNN(ctx, "proj", []float32{1, 0, 0}, 2, Filters{})
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) != 2 || results[0].Unit.ID != "close" {
		t.Fatalf("expected close first, got %+v", results)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected descending scores, got %+v", results)
	}
}

func TestKNN_SkipsUnitsWithoutEmbeddings(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	if err := s.Upsert(ctx, "proj", testUnit("a", "a.go", "A")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	results, err := s.KNN(ctx, "proj", []float32{1, 0, 0}, 5, Filters{})
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for unembedded units, got %+v", results)
	}
}

func TestLexical_RanksExactTermMatchHighest(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	match := testUnit("match", "a.go", "FindUser")
	match.Content = "func FindUser(id string) (*User, error) { return lookup(id) }"
	other := testUnit("other", "a.go", "Shutdown")
	other.Content = "func Shutdown() { close(done) }"

	for _, u := range []unit.Unit{match, other} {
		if err := s.Upsert(ctx, "proj", u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	results, err := s.Lexical(ctx, "proj", "find user", 5, Filters{})
	if err != nil {
		t.Fatalf("Lexical: %v", err)
	}
	if len(results) == 0 || results[0].Unit.ID != "match" {
		t.Fatalf("expected match to rank first, got %+v", results)
	}
}

func TestFilters_RestrictByLanguageAndUnitType(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	goUnit := testUnit("go1", "a.go", "A")
	goUnit.Embedding = []float32{1, 0}
	pyUnit := testUnit("py1", "a.py", "B")
	pyUnit.Language = unit.LangPython
	pyUnit.Embedding = []float32{1, 0}

	for _, u := range []unit.Unit{goUnit, pyUnit} {
		if err := s.Upsert(ctx, "proj", u); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	results, err := s.KNN(ctx, "proj", []float32{1, 0}, 10, Filters{Language: unit.LangPython})
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) != 1 || results[0].Unit.ID != "py1" {
		t.Fatalf("expected only py1, got %+v", results)
	}
}

func TestClear_RemovesProjectKeepsOthers(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	if err := s.Upsert(ctx, "proj1", testUnit("a", "a.go", "A")); err != nil {
		t.Fatalf("upsert proj1: %v", err)
	}
	if err := s.Upsert(ctx, "proj2", testUnit("b", "b.go", "B")); err != nil {
		t.Fatalf("upsert proj2: %v", err)
	}

	if err := s.Clear(ctx, "proj1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := s.FindByID(ctx, "proj1", "a")
	if err != nil {
		t.Fatalf("FindByID proj1: %v", err)
	}
	if got != nil {
		t.Errorf("expected proj1 cleared, found %+v", got)
	}

	got2, err := s.FindByID(ctx, "proj2", "b")
	if err != nil {
		t.Fatalf("FindByID proj2: %v", err)
	}
	if got2 == nil {
		t.Errorf("expected proj2 to survive proj1's Clear")
	}
}

func TestCheckEmbeddingModel_ChangeInvalidatesExistingEmbeddings(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	u := testUnit("a", "a.go", "A")
	u.Embedding = []float32{1, 2, 3}
	u.EmbeddingModel = "model-v1"
	if err := s.Upsert(ctx, "proj", u); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	invalidated, err := s.CheckEmbeddingModel(ctx, "proj", "model-v1", 3)
	if err != nil {
		t.Fatalf("CheckEmbeddingModel (first call): %v", err)
	}
	if invalidated {
		t.Errorf("first call for a new project should not invalidate")
	}

	invalidated, err = s.CheckEmbeddingModel(ctx, "proj", "model-v2", 4)
	if err != nil {
		t.Fatalf("CheckEmbeddingModel (model change): %v", err)
	}
	if !invalidated {
		t.Fatal("expected invalidation when embedding model changes")
	}

	got, err := s.FindByID(ctx, "proj", "a")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected unit to survive invalidation")
	}
	if got.Embedding != nil {
		t.Errorf("expected embedding cleared after model change, got %v", got.Embedding)
	}
}
