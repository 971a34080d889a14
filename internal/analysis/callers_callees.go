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
	"fmt"
	"sort"

	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultNeighborLimit caps the number of callers/callees returned per
// resolved symbol when the caller does not specify a limit.
const DefaultNeighborLimit = 50

// NeighborUnit is a one-hop caller or callee, annotated with the number of
// call sites observed between it and the resolved symbol.
type NeighborUnit struct {
	Unit       unit.Unit
	Occurrence int
}

// ErrSymbolNotFound is returned when no unit matches the requested name.
type ErrSymbolNotFound struct{ Name string }

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("analysis: no symbol named %q", e.Name)
}

// Callees returns the one-hop outgoing call targets of every unit named
// symbol (spec.md §4.10). When symbol resolves to more than one unit — an
// overloaded method name across files, for instance — the limit applies
// per resolved unit, not as a global ceiling, mirroring the teacher's
// find_callees tool.
func (a *Analyzer) Callees(ctx context.Context, symbol string, limit int) ([]NeighborUnit, error) {
	return a.neighbors(ctx, symbol, limit, true)
}

// Callers returns the one-hop incoming call sites of every unit named
// symbol (spec.md §4.10).
func (a *Analyzer) Callers(ctx context.Context, symbol string, limit int) ([]NeighborUnit, error) {
	return a.neighbors(ctx, symbol, limit, false)
}

func (a *Analyzer) neighbors(ctx context.Context, symbol string, limit int, outgoing bool) ([]NeighborUnit, error) {
	if limit <= 0 {
		limit = DefaultNeighborLimit
	}

	matches, err := a.resolveByName(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrSymbolNotFound{Name: symbol}
	}

	var out []NeighborUnit
	seen := make(map[string]bool)
	for _, m := range matches {
		out1, in1, err := a.Store.EdgesForUnit(ctx, a.ProjectID, m.ID)
		if err != nil {
			return nil, err
		}
		edges := in1
		if outgoing {
			edges = out1
		}

		type ranked struct {
			id  string
			occ int
		}
		var rankedEdges []ranked
		for _, e := range edges {
			if e.Type != unit.EdgeCalls {
				continue
			}
			id := e.Target
			if !outgoing {
				id = e.Source
			}
			rankedEdges = append(rankedEdges, ranked{id: id, occ: e.Occurrence})
		}
		sort.SliceStable(rankedEdges, func(i, j int) bool {
			if rankedEdges[i].occ != rankedEdges[j].occ {
				return rankedEdges[i].occ > rankedEdges[j].occ
			}
			return rankedEdges[i].id < rankedEdges[j].id
		})
		taken := 0
		for _, re := range rankedEdges {
			if taken >= limit {
				break
			}
			if seen[re.id] {
				continue
			}
			seen[re.id] = true
			neighbor, err := a.Store.FindByID(ctx, a.ProjectID, re.id)
			if err != nil {
				return nil, err
			}
			if neighbor == nil {
				continue
			}
			out = append(out, NeighborUnit{Unit: *neighbor, Occurrence: re.occ})
			taken++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Occurrence != out[j].Occurrence {
			return out[i].Occurrence > out[j].Occurrence
		}
		return out[i].Unit.ID < out[j].Unit.ID
	})
	return out, nil
}
