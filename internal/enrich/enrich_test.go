// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"
	"math"
	"testing"

	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/unit"
)

type fakeChat struct {
	responses []string
	calls     int
}

func (f *fakeChat) Chat(ctx context.Context, system, user string, opts provider.ChatOptions) (provider.ChatResult, error) {
	text := f.responses[f.calls%len(f.responses)]
	f.calls++
	return provider.ChatResult{Text: text}, nil
}

func (f *fakeChat) ModelID() string { return "fake/model" }

type fixedStrategy struct {
	results []QualityResult
	calls   int
}

func (s *fixedStrategy) TestQuality(ctx context.Context, summary string) (QualityResult, error) {
	r := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return r, nil
}

func (s *fixedStrategy) GenerateFeedback(result QualityResult) string { return "be more specific" }
func (s *fixedStrategy) IsSuccess(result QualityResult) bool         { return result.Passed }
func (s *fixedStrategy) Name() string                                { return "fixed" }

func TestEnricher_NoStrategy_AcceptsBaseSummary(t *testing.T) {
	chat := &fakeChat{responses: []string{"does the thing"}}
	e := New(chat, nil)
	u := &unit.Unit{Name: "DoThing", UnitType: unit.TypeFunction}

	result, err := e.Enrich(context.Background(), u, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Summary != "does the thing" {
		t.Errorf("expected base summary to be written, got %q", u.Summary)
	}
	if !result.Success || result.Rounds != 0 {
		t.Errorf("expected round-0 success, got %+v", result)
	}
}

func TestEnricher_Refines_UntilSuccess(t *testing.T) {
	chat := &fakeChat{responses: []string{"initial", "revised"}}
	strategy := &fixedStrategy{results: []QualityResult{
		{Passed: false, Score: 0.2, Details: "rank 7"},
		{Passed: true, Score: 0.9, Details: "rank 2"},
	}}
	e := New(chat, strategy)
	u := &unit.Unit{Name: "DoThing", UnitType: unit.TypeFunction}

	result, err := e.Enrich(context.Background(), u, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.FinalSummary != "revised" {
		t.Errorf("expected the passing revised summary to be retained, got %q", result.FinalSummary)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("expected 2 tracked attempts, got %d", len(result.Attempts))
	}
}

func TestEnricher_StopsAtMaxRounds(t *testing.T) {
	chat := &fakeChat{responses: []string{"a", "b", "c", "d"}}
	strategy := &fixedStrategy{results: []QualityResult{
		{Passed: false, Score: 0.1},
	}}
	e := New(chat, strategy)
	e.Engine.MaxRounds = 2
	u := &unit.Unit{Name: "X"}

	result, err := e.Enrich(context.Background(), u, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure after exhausting max rounds")
	}
	if result.Rounds != 2 {
		t.Errorf("expected 2 rounds run, got %d", result.Rounds)
	}
}

func TestRefinementScore_MatchesFormula(t *testing.T) {
	cases := map[int]float64{0: 1.0, 1: 1 / math.Log2(3), 2: 0.5, 3: 1 / math.Log2(5)}
	for rounds, want := range cases {
		got := refinementScore(rounds)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("refinementScore(%d) = %v, want %v", rounds, got, want)
		}
	}
}

func TestRetrievalRankStrategy_PassesWithinTargetRank(t *testing.T) {
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		vecs := make([][]float32, len(texts))
		for i, t := range texts {
			switch t {
			case "candidate":
				vecs[i] = []float32{1, 0}
			case "competitor-far":
				vecs[i] = []float32{0, 1}
			case "query":
				vecs[i] = []float32{0.9, 0.1}
			}
		}
		return vecs, nil
	}
	s := NewRetrievalRankStrategy(embed, []string{"competitor-far"}, []string{"query"})
	s.TargetRank = 1

	result, err := s.TestQuality(context.Background(), "candidate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected candidate closest to query to pass, got %+v", result)
	}
}
