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

// DefaultImpactMaxDepth bounds the breadth-first walk over incoming edges.
const DefaultImpactMaxDepth = 5

// DefaultImpactMaxNodes caps the total number of units visited, protecting
// against a pathologically connected graph turning impact() into a full
// traversal.
const DefaultImpactMaxNodes = 500

// ImpactOptions configures an Impact query.
type ImpactOptions struct {
	MaxDepth int
	MaxNodes int
}

// ImpactedUnit is a unit reachable from the queried symbol by walking
// incoming call/reference edges, annotated with its distance.
type ImpactedUnit struct {
	Unit  unit.Unit
	Depth int
}

// Impact returns the bounded transitive closure of everything that would be
// affected by changing symbol: every unit reachable by walking incoming
// calls/references edges backward from the resolved unit(s), up to
// MaxDepth hops or MaxNodes total units, whichever comes first (spec.md
// §4.10). Truncation is reported via the truncated return value so callers
// can surface it rather than silently presenting a partial blast radius as
// complete.
func (a *Analyzer) Impact(ctx context.Context, symbol string, opts ImpactOptions) (units []ImpactedUnit, truncated bool, err error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultImpactMaxDepth
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultImpactMaxNodes
	}

	roots, err := a.resolveByName(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if len(roots) == 0 {
		return nil, false, ErrSymbolNotFound{Name: symbol}
	}

	visited := make(map[string]int)
	type frontierNode struct {
		id    string
		depth int
	}
	var frontier []frontierNode
	for _, r := range roots {
		visited[r.ID] = 0
		frontier = append(frontier, frontierNode{id: r.ID, depth: 0})
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= opts.MaxDepth {
			continue
		}
		if len(visited) >= opts.MaxNodes {
			truncated = true
			break
		}
		_, incoming, err := a.Store.EdgesForUnit(ctx, a.ProjectID, cur.id)
		if err != nil {
			return nil, false, err
		}
		for _, e := range incoming {
			if e.Type != unit.EdgeCalls && e.Type != unit.EdgeReferences {
				continue
			}
			if _, ok := visited[e.Source]; ok {
				continue
			}
			if len(visited) >= opts.MaxNodes {
				truncated = true
				break
			}
			visited[e.Source] = cur.depth + 1
			frontier = append(frontier, frontierNode{id: e.Source, depth: cur.depth + 1})
		}
	}

	rootSet := make(map[string]bool, len(roots))
	for _, r := range roots {
		rootSet[r.ID] = true
	}

	for id, depth := range visited {
		if rootSet[id] {
			continue
		}
		u, ferr := a.Store.FindByID(ctx, a.ProjectID, id)
		if ferr != nil {
			return nil, false, ferr
		}
		if u == nil {
			continue
		}
		units = append(units, ImpactedUnit{Unit: *u, Depth: depth})
	}

	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Depth != units[j].Depth {
			return units[i].Depth < units[j].Depth
		}
		return units[i].Unit.ID < units[j].Unit.ID
	})
	return units, truncated, nil
}
