// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pagerank

import (
	"math"
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

func sumScores(r Result) float64 {
	var total float64
	for _, s := range r.Scores {
		total += s
	}
	return total
}

func TestCompute_ConvergesAndSumsToOne(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []unit.Edge{
		{Source: "a", Target: "b", Occurrence: 1},
		{Source: "b", Target: "c", Occurrence: 1},
		{Source: "c", Target: "a", Occurrence: 1},
		{Source: "c", Target: "d", Occurrence: 1},
		{Source: "d", Target: "a", Occurrence: 1},
	}
	result := Compute(nodes, edges, DefaultOptions())
	if !result.Converged {
		t.Fatalf("expected convergence within %d iterations", DefaultMaxIterations)
	}
	if math.Abs(sumScores(result)-1.0) > 1e-6 {
		t.Errorf("expected scores to sum to ~1, got %v", sumScores(result))
	}
}

func TestCompute_HubScoresHigherThanLeaf(t *testing.T) {
	nodes := []string{"hub", "a", "b", "c", "d"}
	var edges []unit.Edge
	for _, leaf := range []string{"a", "b", "c", "d"} {
		edges = append(edges, unit.Edge{Source: leaf, Target: "hub", Occurrence: 1})
	}
	result := Compute(nodes, edges, DefaultOptions())
	if result.Scores["hub"] <= result.Scores["a"] {
		t.Errorf("expected hub to outrank a leaf: hub=%v a=%v", result.Scores["hub"], result.Scores["a"])
	}
}

func TestCompute_DanglingNodeRedistributesMass(t *testing.T) {
	nodes := []string{"a", "dangling"}
	edges := []unit.Edge{{Source: "a", Target: "dangling", Occurrence: 1}}
	result := Compute(nodes, edges, DefaultOptions())
	if math.Abs(sumScores(result)-1.0) > 1e-6 {
		t.Errorf("expected mass conservation despite dangling node, got sum=%v", sumScores(result))
	}
}

func TestCompute_EmptyGraph(t *testing.T) {
	result := Compute(nil, nil, DefaultOptions())
	if len(result.Scores) != 0 {
		t.Errorf("expected no scores for an empty graph")
	}
}

func TestResult_Top_OrdersDescendingWithLexicographicTieBreak(t *testing.T) {
	r := Result{Scores: map[string]float64{"z": 0.5, "a": 0.5, "m": 0.9}}
	top := r.Top(2)
	if len(top) != 2 || top[0].ID != "m" {
		t.Fatalf("expected m first, got %+v", top)
	}
	if top[1].ID != "a" {
		t.Errorf("expected lexicographic tie-break to put 'a' before 'z', got %+v", top)
	}
}

func TestCompute_PersonalizedVectorBiasesRestart(t *testing.T) {
	nodes := []string{"a", "b"}
	opts := DefaultOptions()
	opts.Personalization = map[string]float64{"a": 1.0}
	result := Compute(nodes, nil, opts)
	if result.Scores["a"] <= result.Scores["b"] {
		t.Errorf("expected personalization toward 'a' to dominate an edgeless graph, got %+v", result.Scores)
	}
}
