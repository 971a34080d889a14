// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

const testProject = "proj"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, nil)
}

func mustUpsert(t *testing.T, s *store.Store, u unit.Unit) {
	t.Helper()
	if err := s.Upsert(context.Background(), testProject, u); err != nil {
		t.Fatalf("upsert %s: %v", u.ID, err)
	}
}

func mustUpsertEdges(t *testing.T, s *store.Store, edges ...unit.Edge) {
	t.Helper()
	if err := s.UpsertEdges(context.Background(), testProject, edges); err != nil {
		t.Fatalf("UpsertEdges: %v", err)
	}
}

func TestResolveByName_SkipsFileUnits(t *testing.T) {
	s := openTestStore(t)
	a := New(s, testProject, nil, nil)
	ctx := context.Background()

	mustUpsert(t, s, unit.Unit{ID: "file1", UnitType: unit.TypeFile, Name: "main.go", FilePath: "main.go"})
	mustUpsert(t, s, unit.Unit{ID: "fn1", UnitType: unit.TypeFunction, Name: "main.go", FilePath: "main.go"})

	matches, err := a.resolveByName(ctx, "main.go")
	if err != nil {
		t.Fatalf("resolveByName: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "fn1" {
		t.Fatalf("expected only the function unit to match, got %+v", matches)
	}
}
