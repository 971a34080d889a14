// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pagerank implements the PageRank engine of spec.md §4.7: the
// canonical damped power method over a directed edge set, producing a
// per-node importance score for retrieval fusion and the importance-based
// analysis queries.
package pagerank

import (
	"sort"

	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultDamping is the damping factor d in r = d*M^T*r + (1-d)*v.
const DefaultDamping = 0.85

// DefaultTolerance is the L1 convergence threshold.
const DefaultTolerance = 1e-6

// DefaultMaxIterations bounds the power-method loop when convergence is
// never reached.
const DefaultMaxIterations = 100

// Options configures a Compute call.
type Options struct {
	Damping    float64
	Tolerance  float64
	MaxIterations int
	// Personalization supplies a non-uniform restart vector v, keyed by
	// node id. Nodes absent from the map get 0. If nil, v is uniform.
	Personalization map[string]float64
}

// DefaultOptions returns spec.md §4.7's defaults.
func DefaultOptions() Options {
	return Options{Damping: DefaultDamping, Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

// Node is one scored result, ordered by descending score.
type Node struct {
	ID    string
	Score float64
	Rank  int // 1-based position after sorting
}

// Result is the outcome of a Compute call.
type Result struct {
	Scores     map[string]float64
	Iterations int
	Converged  bool
}

// Top returns the top n nodes by score, 1-based ranked.
func (r *Result) Top(n int) []Node {
	nodes := make([]Node, 0, len(r.Scores))
	for id, score := range r.Scores {
		nodes = append(nodes, Node{ID: id, Score: score})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		return nodes[i].ID < nodes[j].ID // deterministic tie-break
	})
	if n > 0 && n < len(nodes) {
		nodes = nodes[:n]
	}
	for i := range nodes {
		nodes[i].Rank = i + 1
	}
	return nodes
}

// Compute runs the power method over nodeIDs and edges. edges need not be
// deduplicated; parallel edges between the same pair add weight.
func Compute(nodeIDs []string, edges []unit.Edge, opts Options) Result {
	if opts.Damping == 0 {
		opts.Damping = DefaultDamping
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	n := len(nodeIDs)
	if n == 0 {
		return Result{Scores: map[string]float64{}, Converged: true}
	}

	index := make(map[string]int, n)
	for i, id := range nodeIDs {
		index[id] = i
	}

	// out[i] = list of (target index, weight); outWeight[i] = sum of weights
	out := make([][]weightedEdge, n)
	outWeight := make([]float64, n)
	// in[i] = list of (source index, weight)
	in := make([][]weightedEdge, n)

	for _, e := range edges {
		si, sok := index[e.Source]
		ti, tok := index[e.Target]
		if !sok || !tok || si == ti {
			continue
		}
		w := float64(e.Occurrence)
		if w <= 0 {
			w = 1
		}
		out[si] = append(out[si], weightedEdge{idx: ti, weight: w})
		outWeight[si] += w
		in[ti] = append(in[ti], weightedEdge{idx: si, weight: w})
	}

	v := make([]float64, n)
	if opts.Personalization != nil {
		var sum float64
		for i, id := range nodeIDs {
			v[i] = opts.Personalization[id]
			sum += v[i]
		}
		if sum > 0 {
			for i := range v {
				v[i] /= sum
			}
		} else {
			uniformize(v)
		}
	} else {
		uniformize(v)
	}

	r := append([]float64(nil), v...)
	next := make([]float64, n)

	converged := false
	iterations := 0
	for iterations = 0; iterations < opts.MaxIterations; iterations++ {
		var danglingMass float64
		for i := 0; i < n; i++ {
			if outWeight[i] == 0 {
				danglingMass += r[i]
			}
		}

		for i := range next {
			next[i] = (1-opts.Damping)*v[i] + opts.Damping*danglingMass*v[i]
		}
		for i := 0; i < n; i++ {
			if outWeight[i] == 0 {
				continue
			}
			for _, e := range out[i] {
				next[e.idx] += opts.Damping * r[i] * (e.weight / outWeight[i])
			}
		}

		var l1 float64
		for i := range r {
			l1 += abs(next[i] - r[i])
		}
		r, next = next, r
		if l1 < opts.Tolerance {
			converged = true
			iterations++
			break
		}
	}

	scores := make(map[string]float64, n)
	for i, id := range nodeIDs {
		scores[id] = r[i]
	}
	return Result{Scores: scores, Iterations: iterations, Converged: converged}
}

type weightedEdge struct {
	idx    int
	weight float64
}

func uniformize(v []float64) {
	if len(v) == 0 {
		return
	}
	u := 1.0 / float64(len(v))
	for i := range v {
		v[i] = u
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
