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

func TestTestGaps_FlagsHighPageRankUnitsWithoutTestCaller(t *testing.T) {
	s := openTestStore(t)
	pr := map[string]float64{"important": 0.05, "covered": 0.05, "minor": 0.0001}
	a := New(s, testProject, func(id string) float64 { return pr[id] }, nil)
	ctx := context.Background()

	mustUpsert(t, s, unit.Unit{ID: "important", UnitType: unit.TypeFunction, Name: "Important", FilePath: "a.go"})
	mustUpsert(t, s, unit.Unit{ID: "covered", UnitType: unit.TypeFunction, Name: "Covered", FilePath: "b.go"})
	mustUpsert(t, s, unit.Unit{ID: "minor", UnitType: unit.TypeFunction, Name: "Minor", FilePath: "c.go"})
	mustUpsert(t, s, unit.Unit{ID: "spec", UnitType: unit.TypeFunction, Name: "TestCovered", FilePath: "b_test.go"})
	mustUpsertEdges(t, s, unit.Edge{Source: "spec", Target: "covered", Type: unit.EdgeCalls, Occurrence: 1})

	results, err := a.TestGaps(ctx, TestGapOptions{})
	if err != nil {
		t.Fatalf("TestGaps: %v", err)
	}
	var gotImportant, gotCovered, gotMinor bool
	for _, r := range results {
		switch r.Unit.ID {
		case "important":
			gotImportant = true
		case "covered":
			gotCovered = true
		case "minor":
			gotMinor = true
		}
	}
	if !gotImportant {
		t.Errorf("expected 'important' flagged as a test gap, got %+v", results)
	}
	if gotCovered {
		t.Errorf("did not expect 'covered' flagged, it has a test caller")
	}
	if gotMinor {
		t.Errorf("did not expect 'minor' flagged, its PageRank is below the floor")
	}
}
