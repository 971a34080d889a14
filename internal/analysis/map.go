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
	"math"
	"sort"

	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultMapTopK is the result count when the caller does not specify one.
const DefaultMapTopK = 20

// RankedUnit pairs a unit with the score it was ranked by.
type RankedUnit struct {
	Unit  unit.Unit
	Score float64
}

// EmbedFunc embeds a single query string.
type EmbedFunc func(ctx context.Context, query string) ([]float32, error)

// Map returns the highest-PageRank units, optionally re-ranked by semantic
// similarity to query (spec.md §4.10). An empty query ranks by PageRank
// alone.
func (a *Analyzer) Map(ctx context.Context, query string, embed EmbedFunc, topK int) ([]RankedUnit, error) {
	if topK <= 0 {
		topK = DefaultMapTopK
	}

	var queryVec []float32
	if query != "" && embed != nil {
		vec, err := embed(ctx, query)
		if err != nil {
			a.Logger.Warn("analysis: map query embedding failed, ranking by pagerank alone", "error", err)
		} else {
			queryVec = vec
		}
	}

	var ranked []RankedUnit
	err := a.Store.IterAll(ctx, a.ProjectID, func(u unit.Unit) error {
		if u.IsFile() {
			return nil
		}
		pr := a.PageRank(u.ID)
		score := pr
		if queryVec != nil && len(u.Embedding) > 0 {
			score = pr * cosineSimilarity(queryVec, u.Embedding)
		} else if queryVec != nil {
			// Unit has no embedding yet; exclude it from a query-filtered map
			// rather than let bare PageRank dominate the ranking.
			return nil
		}
		ranked = append(ranked, RankedUnit{Unit: u, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Unit.ID < ranked[j].Unit.ID
	})
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked, nil
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
