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
	"sort"

	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultTestGapPageRankFloor is the PageRank score above which a unit with
// no incoming edge from a test file is flagged as an untested high-traffic
// symbol.
const DefaultTestGapPageRankFloor = 0.001

// DefaultTestGapLimit caps the number of results when the caller does not
// specify one.
const DefaultTestGapLimit = 50

// TestGapOptions configures a TestGaps query.
type TestGapOptions struct {
	PageRankFloor float64
	Limit         int
}

// TestGapResult is a unit whose importance outstrips its test coverage.
type TestGapResult struct {
	Unit     unit.Unit
	PageRank float64
}

// TestGaps returns units with PageRank at or above the floor that have no
// incoming reference from a unit whose file looks like a test file
// (spec.md §4.10). This is a coverage proxy, not a coverage tool: a symbol
// exercised only through an integration test in another language's runner
// will still be flagged.
func (a *Analyzer) TestGaps(ctx context.Context, opts TestGapOptions) ([]TestGapResult, error) {
	if opts.PageRankFloor <= 0 {
		opts.PageRankFloor = DefaultTestGapPageRankFloor
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultTestGapLimit
	}

	var results []TestGapResult
	err := a.Store.IterAll(ctx, a.ProjectID, func(u unit.Unit) error {
		if u.IsFile() {
			return nil
		}
		pr := a.PageRank(u.ID)
		if pr < opts.PageRankFloor {
			return nil
		}
		_, incoming, err := a.Store.EdgesForUnit(ctx, a.ProjectID, u.ID)
		if err != nil {
			return err
		}
		if a.hasTestCaller(ctx, incoming) {
			return nil
		}
		results = append(results, TestGapResult{Unit: u, PageRank: pr})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].PageRank != results[j].PageRank {
			return results[i].PageRank > results[j].PageRank
		}
		return results[i].Unit.ID < results[j].Unit.ID
	})
	if opts.Limit < len(results) {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (a *Analyzer) hasTestCaller(ctx context.Context, incoming []unit.Edge) bool {
	for _, e := range incoming {
		if e.Type != unit.EdgeCalls && e.Type != unit.EdgeReferences {
			continue
		}
		caller, err := a.Store.FindByID(ctx, a.ProjectID, e.Source)
		if err != nil || caller == nil {
			continue
		}
		if isTestPath(caller.FilePath) {
			return true
		}
	}
	return false
}
