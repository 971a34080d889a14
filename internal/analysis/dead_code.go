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
	"strings"

	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultDeadCodePageRankCeiling is the PageRank score below which a unit
// with no incoming edges is considered dead rather than merely low-traffic.
const DefaultDeadCodePageRankCeiling = 0.001

// DefaultDeadCodeLimit caps the number of results when the caller does not
// specify one, mirroring the teacher's find_dead_code default of 50.
const DefaultDeadCodeLimit = 50

// entryPointNames are symbol names automatically excluded from dead-code
// results regardless of their incoming-edge count, matching the teacher's
// find_dead_code tool.
var entryPointNames = map[string]bool{
	"main": true,
	"init": true,
}

// DeadCodeOptions configures a DeadCode query.
type DeadCodeOptions struct {
	IncludeExported bool
	ExcludeTests    bool
	PageRankCeiling float64
	Limit           int
}

// DeadCodeResult is a unit with no (or negligible) incoming references.
type DeadCodeResult struct {
	Unit   unit.Unit
	Reason string
}

// DeadCode returns units with zero incoming edges and PageRank below the
// ceiling (spec.md §4.10). Entry points (main, init) and names starting
// with Test are never reported; ExcludeTests additionally skips every unit
// in a test file. Exported symbols are excluded by default since they may
// be consumed outside this repository.
func (a *Analyzer) DeadCode(ctx context.Context, opts DeadCodeOptions) ([]DeadCodeResult, error) {
	if opts.PageRankCeiling <= 0 {
		opts.PageRankCeiling = DefaultDeadCodePageRankCeiling
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultDeadCodeLimit
	}

	var results []DeadCodeResult
	err := a.Store.IterAll(ctx, a.ProjectID, func(u unit.Unit) error {
		if u.IsFile() {
			return nil
		}
		if entryPointNames[u.Name] || strings.HasPrefix(u.Name, "Test") {
			return nil
		}
		if !opts.IncludeExported && u.AST.Exported {
			return nil
		}
		if opts.ExcludeTests && isTestPath(u.FilePath) {
			return nil
		}
		if a.PageRank(u.ID) > opts.PageRankCeiling {
			return nil
		}
		_, incoming, err := a.Store.EdgesForUnit(ctx, a.ProjectID, u.ID)
		if err != nil {
			return err
		}
		if hasCallOrReference(incoming) {
			return nil
		}
		results = append(results, DeadCodeResult{Unit: u, Reason: "no incoming calls or references found"})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Unit.FilePath != results[j].Unit.FilePath {
			return results[i].Unit.FilePath < results[j].Unit.FilePath
		}
		return results[i].Unit.StartLine < results[j].Unit.StartLine
	})
	if opts.Limit < len(results) {
		results = results[:opts.Limit]
	}
	return results, nil
}

func hasCallOrReference(edges []unit.Edge) bool {
	for _, e := range edges {
		if e.Type == unit.EdgeCalls || e.Type == unit.EdgeReferences {
			return true
		}
	}
	return false
}

// isTestPath reports whether filePath looks like a test file, generalizing
// across the languages this module indexes (Go's _test.go, Python's
// test_*.py / *_test.py, JS/TS's *.test.ts / *.spec.ts).
func isTestPath(filePath string) bool {
	lower := strings.ToLower(filePath)
	base := lower
	if idx := strings.LastIndexByte(lower, '/'); idx >= 0 {
		base = lower[idx+1:]
	}
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasPrefix(base, "test_"):
		return true
	case strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	case strings.Contains(lower, "/test/"), strings.Contains(lower, "/tests/"):
		return true
	default:
		return false
	}
}
