// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the one-hop and whole-graph analysis queries
// of spec.md §4.10 (map, callers, callees, dead-code, test-gaps, impact),
// generalized from the teacher's cli/tools find_callers/find_callees/
// find_dead_code/find_important/find_path tools from a symbol-table lookup
// over ast.Symbol to a brute-force scan over unit.Unit and unit.Edge — this
// module's target scale is a single repository's code-unit graph, not the
// teacher's multi-service symbol index.
package analysis

import (
	"context"
	"log/slog"

	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

// PageRankLookup returns a unit's PageRank score, 0 if unknown.
type PageRankLookup func(unitID string) float64

// Analyzer runs analysis queries against a project's Store.
type Analyzer struct {
	Store     *store.Store
	ProjectID string
	PageRank  PageRankLookup
	Logger    *slog.Logger
}

// New builds an Analyzer. pageRank may be nil, in which case every unit's
// PageRank contribution is 0.
func New(s *store.Store, projectID string, pageRank PageRankLookup, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if pageRank == nil {
		pageRank = func(string) float64 { return 0 }
	}
	return &Analyzer{Store: s, ProjectID: projectID, PageRank: pageRank, Logger: logger}
}

// resolveByName returns every non-file unit whose Name matches exactly,
// mirroring the teacher's SymbolIndex.GetByName lookup (here a linear scan,
// since the store keeps no secondary name index — see DESIGN.md).
func (a *Analyzer) resolveByName(ctx context.Context, name string) ([]unit.Unit, error) {
	var matches []unit.Unit
	err := a.Store.IterAll(ctx, a.ProjectID, func(u unit.Unit) error {
		if !u.IsFile() && u.Name == name {
			matches = append(matches, u)
		}
		return nil
	})
	return matches, err
}
