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
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

func TestDeadCode_FlagsUnitsWithNoIncomingEdges(t *testing.T) {
	s := openTestStore(t)
	a := New(s, testProject, nil, nil)
	ctx := context.Background()

	mustUpsert(t, s, unit.Unit{ID: "used", UnitType: unit.TypeFunction, Name: "Used", FilePath: "a.go"})
	mustUpsert(t, s, unit.Unit{ID: "caller", UnitType: unit.TypeFunction, Name: "Caller", FilePath: "a.go"})
	mustUpsert(t, s, unit.Unit{ID: "orphan", UnitType: unit.TypeFunction, Name: "Orphan", FilePath: "a.go"})
	mustUpsertEdges(t, s, unit.Edge{Source: "caller", Target: "used", Type: unit.EdgeCalls, Occurrence: 1})

	results, err := a.DeadCode(ctx, DeadCodeOptions{})
	if err != nil {
		t.Fatalf("DeadCode: %v", err)
	}
	foundOrphan := false
	for _, r := range results {
		if r.Unit.ID == "used" {
			t.Errorf("did not expect 'used' to be reported dead")
		}
		if r.Unit.ID == "orphan" {
			foundOrphan = true
		}
	}
	if !foundOrphan {
		t.Errorf("expected orphan to be reported dead, got %+v", results)
	}
}

func TestDeadCode_ExcludesEntryPointsAndExported(t *testing.T) {
	s := openTestStore(t)
	a := New(s, testProject, nil, nil)
	ctx := context.Background()

	mustUpsert(t, s, unit.Unit{ID: "main1", UnitType: unit.TypeFunction, Name: "main", FilePath: "main.go"})
	mustUpsert(t, s, unit.Unit{ID: "exp1", UnitType: unit.TypeFunction, Name: "Exported", FilePath: "a.go", AST: unit.ASTMetadata{Exported: true}})

	results, err := a.DeadCode(ctx, DeadCodeOptions{})
	if err != nil {
		t.Fatalf("DeadCode: %v", err)
	}
	for _, r := range results {
		if r.Unit.ID == "main1" || r.Unit.ID == "exp1" {
			t.Errorf("did not expect entry point or exported symbol reported, got %+v", r)
		}
	}
}

func TestDeadCode_ExcludeTestsFiltersTestFiles(t *testing.T) {
	s := openTestStore(t)
	a := New(s, testProject, nil, nil)
	ctx := context.Background()

	mustUpsert(t, s, unit.Unit{ID: "helper", UnitType: unit.TypeFunction, Name: "helper", FilePath: "a_test.go"})

	results, err := a.DeadCode(ctx, DeadCodeOptions{ExcludeTests: true})
	if err != nil {
		t.Fatalf("DeadCode: %v", err)
	}
	for _, r := range results {
		if r.Unit.ID == "helper" {
			t.Errorf("expected test-file unit excluded when ExcludeTests is set")
		}
	}
}
