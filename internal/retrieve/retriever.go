// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieve implements the hybrid retriever of spec.md §4.9: embed
// the query, fetch dense and lexical candidates in parallel, fuse their
// max-normalized scores with PageRank, and expand each survivor with its
// immediate graph context.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

// Mode selects which candidate sources the retriever consults.
type Mode string

const (
	ModeHybrid      Mode = "hybrid"
	ModeDense       Mode = "dense"
	ModeLexical     Mode = "lexical"
	ModeKeywordOnly Mode = "keyword_only"
)

// DefaultTopK is the result count when the caller does not specify one.
const DefaultTopK = 10

// MaxContextNeighbors bounds the callers/callees attached per result.
const MaxContextNeighbors = 5

// PreviewSignatureLen bounds the signature preview attached to a context
// neighbor, shorter than unit.MaxSignatureLen since several may render
// alongside one result.
const PreviewSignatureLen = 120

// EmbedFunc embeds a batch of texts in input order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Weights is the fusion weight triple of spec.md §4.9, always summing to 1
// after renormalization.
type Weights struct {
	Dense    float64
	Lexical  float64
	PageRank float64
}

// DefaultWeights returns spec.md §4.9's starting fusion weights.
func DefaultWeights() Weights { return Weights{Dense: 0.5, Lexical: 0.3, PageRank: 0.2} }

// minWeight and maxWeight are the hard caps each adaptive weight is
// clamped within (spec.md §4.9).
const (
	minWeight = 0.1
	maxWeight = 0.8
)

func (w Weights) normalize() Weights {
	sum := w.Dense + w.Lexical + w.PageRank
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{Dense: w.Dense / sum, Lexical: w.Lexical / sum, PageRank: w.PageRank / sum}
}

func clamp(v float64) float64 {
	if v < minWeight {
		return minWeight
	}
	if v > maxWeight {
		return maxWeight
	}
	return v
}

// Options configures a Search call.
type Options struct {
	TopK    int
	Mode    Mode
	Filters store.Filters
}

// EdgePreview is a bounded, signature-truncated view of a context neighbor.
type EdgePreview struct {
	UnitID    string
	Name      string
	Signature string
}

// Result is one fused, context-expanded search hit.
type Result struct {
	Unit          unit.Unit
	DenseScore    float64
	LexicalScore  float64
	PageRankScore float64
	FusedScore    float64
	Parent        *unit.Unit
	Callees       []EdgePreview
	Callers       []EdgePreview
}

// FeedbackSignal is an externally reported relevance judgment used to drift
// the adaptive fusion weights (spec.md §4.9).
type FeedbackSignal string

const (
	FeedbackHelpful     FeedbackSignal = "helpful"
	FeedbackNotRelevant FeedbackSignal = "not_relevant"
)

// adaptiveStepSize is the EMA step applied per feedback event.
const adaptiveStepSize = 0.02

// Retriever implements hybrid search over a project's Store.
type Retriever struct {
	Store     *store.Store
	ProjectID string
	Embed     EmbedFunc
	// PageRank supplies the current PageRank score for a unit id, 0 if
	// absent. cmd/claudemem passes a lookup of the score persisted on each
	// stored unit.
	PageRank func(unitID string) float64
	Logger   *slog.Logger
}

// New builds a Retriever. pageRank may be nil, in which case every
// candidate's PageRank contribution is 0.
func New(s *store.Store, projectID string, embed EmbedFunc, pageRank func(string) float64, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if pageRank == nil {
		pageRank = func(string) float64 { return 0 }
	}
	return &Retriever{Store: s, ProjectID: projectID, Embed: embed, PageRank: pageRank, Logger: logger}
}

func weightsKey(projectID string) string { return "retrieve/weights/v1/" + projectID }

// loadWeights reads the persisted adaptive weights, or the defaults if none
// have been saved yet.
func (r *Retriever) loadWeights(ctx context.Context) Weights {
	var w Weights
	found, err := loadGob(ctx, r.Store.DB(), weightsKey(r.ProjectID), &w)
	if err != nil {
		r.Logger.Warn("retrieve: failed to load adaptive weights, using defaults", "error", err)
		return DefaultWeights()
	}
	if !found {
		return DefaultWeights()
	}
	return w
}

func (r *Retriever) saveWeights(ctx context.Context, w Weights) error {
	return saveGob(ctx, r.Store.DB(), weightsKey(r.ProjectID), w)
}

// Search runs the hybrid retrieval algorithm of spec.md §4.9.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	k := opts.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	kPrime := 4 * k
	if kPrime < 40 {
		kPrime = 40
	}

	weights := r.loadWeights(ctx)
	if mode == ModeKeywordOnly {
		// Skip the dense channel and query embedding entirely; fuse the
		// remaining two components renormalized over their own weight.
		weights = Weights{Lexical: weights.Lexical, PageRank: weights.PageRank}.normalize()
	}

	var denseResults, lexicalResults []store.ScoredUnit
	g, gctx := errgroup.WithContext(ctx)

	if mode == ModeHybrid || mode == ModeDense {
		g.Go(func() error {
			if r.Embed == nil {
				return nil
			}
			vecs, err := r.Embed(gctx, []string{query})
			if err != nil || len(vecs) == 0 {
				if err != nil {
					r.Logger.Warn("retrieve: query embedding failed, dense fetch skipped", "error", err)
				}
				return nil
			}
			results, err := r.Store.KNN(gctx, r.ProjectID, vecs[0], kPrime, opts.Filters)
			if err != nil {
				return apperr.Storage("dense fetch", err)
			}
			denseResults = results
			return nil
		})
	}

	if mode == ModeHybrid || mode == ModeLexical || mode == ModeKeywordOnly {
		g.Go(func() error {
			results, err := r.Store.Lexical(gctx, r.ProjectID, query, kPrime, opts.Filters)
			if err != nil {
				return apperr.Storage("lexical fetch", err)
			}
			lexicalResults = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := r.fuse(denseResults, lexicalResults, weights)
	if k < len(fused) {
		fused = fused[:k]
	}

	out := make([]Result, 0, len(fused))
	for _, c := range fused {
		expanded, err := r.expand(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

func (r *Retriever) fuse(dense, lexical []store.ScoredUnit, weights Weights) []Result {
	byID := make(map[string]*Result)
	order := make([]string, 0, len(dense)+len(lexical))

	get := func(u unit.Unit) *Result {
		if existing, ok := byID[u.ID]; ok {
			return existing
		}
		res := &Result{Unit: u, PageRankScore: r.PageRank(u.ID)}
		byID[u.ID] = res
		order = append(order, u.ID)
		return res
	}

	maxDense := 0.0
	for _, c := range dense {
		if c.Score > maxDense {
			maxDense = c.Score
		}
	}
	maxLexical := 0.0
	for _, c := range lexical {
		if c.Score > maxLexical {
			maxLexical = c.Score
		}
	}
	maxPageRank := 0.0
	for _, id := range order {
		if pr := r.PageRank(id); pr > maxPageRank {
			maxPageRank = pr
		}
	}
	for _, c := range dense {
		if pr := r.PageRank(c.Unit.ID); pr > maxPageRank {
			maxPageRank = pr
		}
	}
	for _, c := range lexical {
		if pr := r.PageRank(c.Unit.ID); pr > maxPageRank {
			maxPageRank = pr
		}
	}

	for _, c := range dense {
		res := get(c.Unit)
		res.DenseScore = normalize(c.Score, maxDense)
	}
	for _, c := range lexical {
		res := get(c.Unit)
		res.LexicalScore = normalize(c.Score, maxLexical)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		res := byID[id]
		res.PageRankScore = normalize(res.PageRankScore, maxPageRank)
		res.FusedScore = weights.Dense*res.DenseScore + weights.Lexical*res.LexicalScore + weights.PageRank*res.PageRankScore
		results = append(results, *res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].Unit.ID < results[j].Unit.ID
	})
	return results
}

func normalize(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max
}

func (r *Retriever) expand(ctx context.Context, c Result) (Result, error) {
	if c.Unit.ParentID != "" {
		parent, err := r.Store.FindByID(ctx, r.ProjectID, c.Unit.ParentID)
		if err != nil {
			return Result{}, err
		}
		c.Parent = parent
	}

	outgoing, incoming, err := r.Store.EdgesForUnit(ctx, r.ProjectID, c.Unit.ID)
	if err != nil {
		return Result{}, err
	}

	c.Callees, err = r.previewEdges(ctx, outgoing, func(e unit.Edge) string { return e.Target })
	if err != nil {
		return Result{}, err
	}
	c.Callers, err = r.previewEdges(ctx, incoming, func(e unit.Edge) string { return e.Source })
	if err != nil {
		return Result{}, err
	}
	return c, nil
}

func (r *Retriever) previewEdges(ctx context.Context, edges []unit.Edge, pick func(unit.Edge) string) ([]EdgePreview, error) {
	calls := make([]unit.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Type == unit.EdgeCalls {
			calls = append(calls, e)
		}
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Occurrence > calls[j].Occurrence })
	if len(calls) > MaxContextNeighbors {
		calls = calls[:MaxContextNeighbors]
	}

	previews := make([]EdgePreview, 0, len(calls))
	for _, e := range calls {
		id := pick(e)
		u, err := r.Store.FindByID(ctx, r.ProjectID, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			continue
		}
		previews = append(previews, EdgePreview{
			UnitID:    u.ID,
			Name:      u.Name,
			Signature: truncate(u.Signature, PreviewSignatureLen),
		})
	}
	return previews, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}

// Feedback nudges the adaptive fusion weights toward (Helpful) or away from
// (NotRelevant) whichever component contributed most to the given result,
// per spec.md §4.9's per-project EMA with hard caps.
func (r *Retriever) Feedback(ctx context.Context, result Result, signal FeedbackSignal) error {
	weights := r.loadWeights(ctx)

	dominant := "dense"
	dominantScore := result.DenseScore
	if result.LexicalScore > dominantScore {
		dominant, dominantScore = "lexical", result.LexicalScore
	}
	if result.PageRankScore > dominantScore {
		dominant = "pagerank"
	}

	target := 1.0
	if signal == FeedbackNotRelevant {
		target = 0.0
	}

	switch dominant {
	case "dense":
		weights.Dense = clamp(weights.Dense + adaptiveStepSize*(target-weights.Dense))
	case "lexical":
		weights.Lexical = clamp(weights.Lexical + adaptiveStepSize*(target-weights.Lexical))
	case "pagerank":
		weights.PageRank = clamp(weights.PageRank + adaptiveStepSize*(target-weights.PageRank))
	}
	weights = weights.normalize()

	if err := r.saveWeights(ctx, weights); err != nil {
		return fmt.Errorf("persist adaptive weights: %w", err)
	}
	return nil
}
