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
	"fmt"
	"math"
	"sort"
)

// QualityResult is the outcome of one quality-strategy test (spec.md §4.4's
// quality strategy contract).
type QualityResult struct {
	Passed  bool
	Rank    *int // nil when the strategy has no rank concept
	Score   float64
	Details string
}

// QualityStrategy is the pluggable oracle a summary is tested against.
type QualityStrategy interface {
	TestQuality(ctx context.Context, summary string) (QualityResult, error)
	GenerateFeedback(result QualityResult) string
	IsSuccess(result QualityResult) bool
	Name() string
}

// EmbedFunc embeds a batch of texts in input order. Injected rather than
// imported from internal/provider to keep the enrichment pipeline free of a
// dependency on a specific provider wiring; cmd/claudemem's benchmark-llm
// command supplies a concrete EmbedAdapter-backed implementation.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// RetrievalRankStrategy is the production quality strategy of spec.md §4.4:
// the candidate summary is embedded alongside a pool of competitor
// summaries, ranked against a set of reference queries about the target
// unit, and passes when its median rank is within TargetRank.
type RetrievalRankStrategy struct {
	Embed               EmbedFunc
	CompetitorSummaries []string // held-out or sibling-unit summaries, for contrast
	ReferenceQueries    []string // natural-language questions the unit should answer
	TargetRank          int      // e.g. 3 for "top-3"

	lastWinningCompetitor string
}

// NewRetrievalRankStrategy builds the strategy with spec.md §4.4's default
// top-3 target rank.
func NewRetrievalRankStrategy(embed EmbedFunc, competitors, queries []string) *RetrievalRankStrategy {
	return &RetrievalRankStrategy{Embed: embed, CompetitorSummaries: competitors, ReferenceQueries: queries, TargetRank: 3}
}

func (s *RetrievalRankStrategy) Name() string { return "retrieval-rank" }

// TestQuality embeds the candidate summary and its competitor pool, then for
// each reference query computes the candidate's rank by cosine similarity
// within that pool; the test result is the median rank across queries.
func (s *RetrievalRankStrategy) TestQuality(ctx context.Context, summary string) (QualityResult, error) {
	if len(s.ReferenceQueries) == 0 {
		return QualityResult{Passed: true, Score: 1.0, Details: "no reference queries configured"}, nil
	}

	pool := append([]string{summary}, s.CompetitorSummaries...)
	poolVecs, err := s.Embed(ctx, pool)
	if err != nil {
		return QualityResult{}, fmt.Errorf("embed candidate pool: %w", err)
	}
	queryVecs, err := s.Embed(ctx, s.ReferenceQueries)
	if err != nil {
		return QualityResult{}, fmt.Errorf("embed reference queries: %w", err)
	}

	ranks := make([]int, 0, len(queryVecs))
	worstWinner := ""
	for _, qv := range queryVecs {
		order := rankBySimilarity(qv, poolVecs)
		rank := indexOf(order, 0) + 1 // candidate is always pool index 0
		ranks = append(ranks, rank)
		if rank > 1 && len(order) > 0 {
			winnerIdx := order[0]
			if winnerIdx > 0 && winnerIdx-1 < len(s.CompetitorSummaries) {
				worstWinner = s.CompetitorSummaries[winnerIdx-1]
			}
		}
	}

	median := medianInt(ranks)
	s.lastWinningCompetitor = worstWinner
	passed := median <= s.TargetRank
	score := 1.0 / float64(median)
	if score > 1.0 {
		score = 1.0
	}
	rank := median
	return QualityResult{
		Passed:  passed,
		Rank:    &rank,
		Score:   score,
		Details: fmt.Sprintf("median rank %d across %d queries (target top-%d)", median, len(ranks), s.TargetRank),
	}, nil
}

// GenerateFeedback surfaces the winning alternative summary as contrastive
// information (spec.md §4.4: "Feedback surfaces the winning alternative
// summary as contrastive information").
func (s *RetrievalRankStrategy) GenerateFeedback(result QualityResult) string {
	if result.Passed {
		return ""
	}
	if s.lastWinningCompetitor == "" {
		return fmt.Sprintf("%s. Make the summary more specific about what distinguishes this unit from similar ones.", result.Details)
	}
	return fmt.Sprintf("%s. A competing summary ranked higher: %q. Make this summary at least as specific and distinguishing.", result.Details, s.lastWinningCompetitor)
}

func (s *RetrievalRankStrategy) IsSuccess(result QualityResult) bool { return result.Passed }

func rankBySimilarity(query []float32, pool [][]float32) []int {
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(pool))
	for i, v := range pool {
		scores[i] = scored{idx: i, score: cosineSimilarity(query, v)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = s.idx
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return len(xs) - 1
}

func medianInt(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}
