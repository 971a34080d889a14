// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the symbol graph builder of spec.md §4.6:
// resolving referenced symbol names to unit ids (file-local first, then
// project-wide), emitting typed edges, and collapsing duplicates while
// aggregating occurrence counts.
package graph

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/claudemem/claudemem/internal/unit"
)

const tracerName = "github.com/claudemem/claudemem/internal/graph"

// ProgressPhase indicates which phase of the build is in progress.
type ProgressPhase int

const (
	ProgressPhaseIndexing ProgressPhase = iota
	ProgressPhaseResolving
	ProgressPhaseFinalizing
)

func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseIndexing:
		return "indexing"
	case ProgressPhaseResolving:
		return "resolving"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress reports incremental build progress.
type BuildProgress struct {
	Phase          ProgressPhase
	UnitsTotal     int
	UnitsProcessed int
	EdgesCreated   int
}

// ProgressFunc is called periodically during Build.
type ProgressFunc func(BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// WorkerCount is the number of parallel workers used for symbol
	// resolution. Default: runtime.NumCPU()-1, floored at 1.
	WorkerCount int

	// ProgressCallback is called periodically. May be nil.
	ProgressCallback ProgressFunc

	// SecondPass re-resolves ambiguous references after an initial
	// lexicographic tie-break, using ranks supplied via Ranks (spec.md
	// §4.6: "re-ranked after PageRank is computed and the graph is
	// rebuilt if a second pass is configured").
	SecondPass bool

	// Ranks supplies per-unit PageRank scores for the second pass'
	// highest-ranked-candidate tie-break. Ignored when SecondPass is false.
	Ranks map[string]float64
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return BuilderOptions{WorkerCount: workers}
}

// BuildResult holds the resolved graph and build statistics.
type BuildResult struct {
	Edges           []unit.Edge
	DanglingDropped int // references that resolved to nothing
	SelfDropped     int // self-edges dropped
	Duration        time.Duration
}

// Builder resolves symbol references across a set of units into a typed
// edge set. It is stateless and safe to reuse across builds.
type Builder struct {
	options BuilderOptions
}

// NewBuilder builds a Builder with opts applied over the defaults.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = DefaultBuilderOptions().WorkerCount
	}
	return &Builder{options: opts}
}

// nameIndex maps a symbol name to the candidate unit ids that declare it,
// split by file for the file-local resolution pass.
type nameIndex struct {
	byFile    map[string]map[string][]string // filePath -> name -> unit ids
	byName    map[string][]string            // name -> unit ids, project-wide
	fileOfUnit map[string]string              // unit id -> file path
}

func buildNameIndex(units []unit.Unit) *nameIndex {
	idx := &nameIndex{
		byFile:     make(map[string]map[string][]string),
		byName:     make(map[string][]string),
		fileOfUnit: make(map[string]string),
	}
	for _, u := range units {
		if u.IsFile() || u.Name == "" {
			continue
		}
		idx.fileOfUnit[u.ID] = u.FilePath
		if idx.byFile[u.FilePath] == nil {
			idx.byFile[u.FilePath] = make(map[string][]string)
		}
		idx.byFile[u.FilePath][u.Name] = append(idx.byFile[u.FilePath][u.Name], u.ID)
		idx.byName[u.Name] = append(idx.byName[u.Name], u.ID)
	}
	return idx
}

// resolve implements spec.md §4.6's two-tier lookup: file-local first, then
// project-wide via the name index, with ambiguities resolved lexicographically
// unless a second pass with ranks is configured.
func (idx *nameIndex) resolve(name, fromFile string, ranks map[string]float64) (string, bool) {
	if byName, ok := idx.byFile[fromFile]; ok {
		if candidates := byName[name]; len(candidates) > 0 {
			return bestCandidate(candidates, ranks), true
		}
	}
	if candidates := idx.byName[name]; len(candidates) > 0 {
		return bestCandidate(candidates, ranks), true
	}
	return "", false
}

func bestCandidate(candidates []string, ranks map[string]float64) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	if len(ranks) == 0 {
		return sorted[0]
	}
	best := sorted[0]
	bestRank := ranks[best]
	for _, c := range sorted[1:] {
		if ranks[c] > bestRank {
			best = c
			bestRank = ranks[c]
		}
	}
	return best
}

// Build resolves every unit's AST.ReferencedSymbols, AST.Imports, and
// AST.ExtendsImplements into typed edges against the full unit set.
func (b *Builder) Build(ctx context.Context, units []unit.Unit) (*BuildResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "graph.Builder.Build",
		trace.WithAttributes(attribute.Int("unit_count", len(units))))
	defer span.End()

	start := time.Now()
	idx := buildNameIndex(units)
	unitByID := make(map[string]unit.Unit, len(units))
	for _, u := range units {
		unitByID[u.ID] = u
	}

	type job struct {
		idx int
		u   unit.Unit
	}
	jobs := make(chan job)
	type partial struct {
		edges     []unit.Edge
		dangling  int
	}
	results := make([]partial, b.options.WorkerCount)

	ranks := b.options.Ranks
	if !b.options.SecondPass {
		ranks = nil
	}

	var wg sync.WaitGroup
	var processed int64
	var mu sync.Mutex

	for w := 0; w < b.options.WorkerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			local := partial{}
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}
				edges, dangling := resolveUnitEdges(j.u, idx, unitByID, ranks)
				local.edges = append(local.edges, edges...)
				local.dangling += dangling

				mu.Lock()
				processed++
				if b.options.ProgressCallback != nil {
					b.options.ProgressCallback(BuildProgress{
						Phase:          ProgressPhaseResolving,
						UnitsTotal:     len(units),
						UnitsProcessed: int(processed),
						EdgesCreated:   len(local.edges),
					})
				}
				mu.Unlock()
			}
			results[workerID] = local
		}(w)
	}

	for i, u := range units {
		jobs <- job{idx: i, u: u}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var allEdges []unit.Edge
	dangling := 0
	for _, r := range results {
		allEdges = append(allEdges, r.edges...)
		dangling += r.dangling
	}

	merged, selfDropped := mergeEdges(allEdges)

	if b.options.ProgressCallback != nil {
		b.options.ProgressCallback(BuildProgress{
			Phase:          ProgressPhaseFinalizing,
			UnitsTotal:     len(units),
			UnitsProcessed: len(units),
			EdgesCreated:   len(merged),
		})
	}

	span.SetAttributes(
		attribute.Int("edge_count", len(merged)),
		attribute.Int("dangling_dropped", dangling),
		attribute.Int("self_dropped", selfDropped),
	)

	return &BuildResult{
		Edges:           merged,
		DanglingDropped: dangling,
		SelfDropped:     selfDropped,
		Duration:        time.Since(start),
	}, nil
}

// resolveUnitEdges resolves one unit's references into edges, counting
// references that fail to resolve as dangling.
func resolveUnitEdges(u unit.Unit, idx *nameIndex, unitByID map[string]unit.Unit, ranks map[string]float64) ([]unit.Edge, int) {
	var edges []unit.Edge
	dangling := 0

	for _, name := range u.AST.ReferencedSymbols {
		targetID, ok := idx.resolve(name, u.FilePath, ranks)
		if !ok {
			dangling++
			continue
		}
		edges = append(edges, unit.Edge{Source: u.ID, Target: targetID, Type: unit.EdgeCalls, Occurrence: 1})
	}
	for _, name := range u.AST.ExtendsImplements {
		targetID, ok := idx.resolve(name, u.FilePath, ranks)
		if !ok {
			dangling++
			continue
		}
		edges = append(edges, unit.Edge{Source: u.ID, Target: targetID, Type: unit.EdgeExtends, Occurrence: 1})
	}
	for _, name := range u.AST.Imports {
		targetID, ok := idx.resolve(name, u.FilePath, ranks)
		if !ok {
			continue // an unresolved import is normal (external package), not dangling
		}
		edges = append(edges, unit.Edge{Source: u.ID, Target: targetID, Type: unit.EdgeImports, Occurrence: 1})
	}

	return edges, dangling
}

// mergeEdges drops self-edges and collapses duplicates at the
// (source, target, type) level, aggregating occurrence counts (spec.md
// §4.6).
func mergeEdges(edges []unit.Edge) ([]unit.Edge, int) {
	byKey := make(map[string]*unit.Edge)
	selfDropped := 0
	order := make([]string, 0, len(edges))

	for _, e := range edges {
		if e.Source == e.Target {
			selfDropped++
			continue
		}
		key := e.Key()
		if existing, ok := byKey[key]; ok {
			existing.Occurrence += e.Occurrence
			continue
		}
		cp := e
		byKey[key] = &cp
		order = append(order, key)
	}

	merged := make([]unit.Edge, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	return merged, selfDropped
}
