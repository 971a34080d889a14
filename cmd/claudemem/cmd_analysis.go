// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/analysis"
)

func newMapCommand() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "map [query]",
		Short: "Rank units by PageRank, optionally filtered by semantic similarity to query",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(strings.Join(args, " "), topK)
		},
	}
	cmd.Flags().IntVarP(&topK, "topk", "n", analysis.DefaultMapTopK, "number of units")
	return cmd
}

func runMap(query string, topK int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	var embedFn analysis.EmbedFunc
	if query != "" {
		emb, err := eng.newEmbedder()
		if err != nil {
			return err
		}
		embedFn = eng.singleQueryEmbedFunc(emb)
	}

	a := eng.newAnalyzer(eng.pageRankLookup(ctx))
	ranked, err := a.Map(ctx, query, embedFn, topK)
	if err != nil {
		return err
	}
	for i, r := range ranked {
		fmt.Printf("%d. %s  [%s:%d]  score=%.5f\n", i+1, r.Unit.Name, r.Unit.FilePath, r.Unit.StartLine, r.Score)
	}
	return nil
}

func newCallersCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "callers <symbol>",
		Short: "List units that call the given symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNeighbors(args[0], limit, false)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", analysis.DefaultNeighborLimit, "maximum results")
	return cmd
}

func newCalleesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "callees <symbol>",
		Short: "List units the given symbol calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNeighbors(args[0], limit, true)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", analysis.DefaultNeighborLimit, "maximum results")
	return cmd
}

func runNeighbors(symbol string, limit int, callees bool) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	a := eng.newAnalyzer(eng.pageRankLookup(ctx))
	var results []analysis.NeighborUnit
	if callees {
		results, err = a.Callees(ctx, symbol, limit)
	} else {
		results, err = a.Callers(ctx, symbol, limit)
	}
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s  [%s:%d]  occurrences=%d\n", r.Unit.Name, r.Unit.FilePath, r.Unit.StartLine, r.Occurrence)
	}
	return nil
}

func newImpactCommand() *cobra.Command {
	var maxDepth, maxNodes int
	cmd := &cobra.Command{
		Use:   "impact <symbol>",
		Short: "Walk incoming call/reference edges to find blast radius",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(args[0], maxDepth, maxNodes)
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", analysis.DefaultImpactMaxDepth, "maximum BFS depth")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", analysis.DefaultImpactMaxNodes, "maximum nodes visited")
	return cmd
}

func runImpact(symbol string, maxDepth, maxNodes int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	a := eng.newAnalyzer(eng.pageRankLookup(ctx))
	units, truncated, err := a.Impact(ctx, symbol, analysis.ImpactOptions{MaxDepth: maxDepth, MaxNodes: maxNodes})
	if err != nil {
		return err
	}
	for _, u := range units {
		fmt.Printf("depth=%d  %s  [%s:%d]\n", u.Depth, u.Unit.Name, u.Unit.FilePath, u.Unit.StartLine)
	}
	if truncated {
		fmt.Println("(truncated: max-nodes reached before the walk completed)")
	}
	return nil
}

func newDeadCodeCommand() *cobra.Command {
	var includeExported, excludeTests bool
	var maxPageRank float64
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-code",
		Short: "Flag units with no incoming call/reference edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadCode(includeExported, excludeTests, maxPageRank, limit)
		},
	}
	cmd.Flags().BoolVar(&includeExported, "include-exported", false, "also consider exported symbols")
	cmd.Flags().BoolVar(&excludeTests, "exclude-tests", false, "exclude test files from the scan")
	cmd.Flags().Float64Var(&maxPageRank, "max-pagerank", analysis.DefaultDeadCodePageRankCeiling, "skip units above this PageRank score")
	cmd.Flags().IntVarP(&limit, "limit", "n", analysis.DefaultDeadCodeLimit, "maximum results")
	return cmd
}

func runDeadCode(includeExported, excludeTests bool, maxPageRank float64, limit int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	a := eng.newAnalyzer(eng.pageRankLookup(ctx))
	results, err := a.DeadCode(ctx, analysis.DeadCodeOptions{
		IncludeExported: includeExported,
		ExcludeTests:    excludeTests,
		PageRankCeiling: maxPageRank,
		Limit:           limit,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s  [%s:%d]  %s\n", r.Unit.Name, r.Unit.FilePath, r.Unit.StartLine, r.Reason)
	}
	return nil
}

func newTestGapsCommand() *cobra.Command {
	var minPageRank float64
	var limit int
	cmd := &cobra.Command{
		Use:   "test-gaps",
		Short: "Flag high-PageRank units with no test caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestGaps(minPageRank, limit)
		},
	}
	cmd.Flags().Float64Var(&minPageRank, "min-pagerank", analysis.DefaultTestGapPageRankFloor, "only consider units at/above this PageRank score")
	cmd.Flags().IntVarP(&limit, "limit", "n", analysis.DefaultTestGapLimit, "maximum results")
	return cmd
}

func runTestGaps(minPageRank float64, limit int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	a := eng.newAnalyzer(eng.pageRankLookup(ctx))
	results, err := a.TestGaps(ctx, analysis.TestGapOptions{PageRankFloor: minPageRank, Limit: limit})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s  [%s:%d]  pagerank=%.5f\n", r.Unit.Name, r.Unit.FilePath, r.Unit.StartLine, r.PageRank)
	}
	return nil
}
