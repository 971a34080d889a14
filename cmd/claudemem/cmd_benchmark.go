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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/enrich"
	"github.com/claudemem/claudemem/internal/retrieve"
)

// labeledQuery is one row of a benchmark query set: a natural-language
// query paired with the unit ID a correct retrieval should surface.
type labeledQuery struct {
	Query          string `json:"query"`
	ExpectedUnitID string `json:"expected_unit_id"`
}

func loadLabeledQueries(path string) ([]labeledQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Configuration("reading query set", err)
	}
	var queries []labeledQuery
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, apperr.Configuration("parsing query set", err)
	}
	if len(queries) == 0 {
		return nil, apperr.Configuration("query set is empty", nil)
	}
	return queries, nil
}

func sampleQueries(queries []labeledQuery, sampleSize int) []labeledQuery {
	if sampleSize <= 0 || sampleSize >= len(queries) {
		return queries
	}
	return queries[:sampleSize]
}

func newBenchmarkCommand() *cobra.Command {
	var queriesPath string
	var topK, parallelism, sampleSize int
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure retrieval precision and median rank against a labeled query set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd.Context(), queriesPath, topK, parallelism, sampleSize)
		},
	}
	cmd.Flags().StringVar(&queriesPath, "queries", "", "path to a JSON array of {query, expected_unit_id} rows")
	cmd.Flags().IntVarP(&topK, "topk", "n", retrieve.DefaultTopK, "number of results to consider a hit")
	cmd.Flags().IntVar(&parallelism, "local-parallelism", 4, "number of queries evaluated concurrently")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "evaluate only the first N queries (0 means all)")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}

type benchmarkRow struct {
	query string
	hit   bool
	rank  int // 0 when not found within topK
}

func runBenchmark(ctx context.Context, queriesPath string, topK, parallelism, sampleSize int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	queries, err := loadLabeledQueries(queriesPath)
	if err != nil {
		return err
	}
	queries = sampleQueries(queries, sampleSize)

	emb, err := eng.newEmbedder()
	if err != nil {
		return err
	}
	retriever := eng.newRetriever(eng.queryEmbedFunc(emb), eng.pageRankLookup(ctx))

	rows := make([]benchmarkRow, len(queries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			results, err := retriever.Search(gctx, q.Query, retrieve.Options{TopK: topK})
			if err != nil {
				return apperr.Transient("benchmark search", err)
			}
			row := benchmarkRow{query: q.Query}
			for rank, r := range results {
				if r.Unit.ID == q.ExpectedUnitID {
					row.hit = true
					row.rank = rank + 1
					break
				}
			}
			mu.Lock()
			rows[i] = row
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printBenchmarkReport(rows, topK)
	return nil
}

func printBenchmarkReport(rows []benchmarkRow, topK int) {
	var hits int
	ranks := make([]int, 0, len(rows))
	fmt.Printf("%-60s %-6s %s\n", "query", "hit", "rank")
	for _, r := range rows {
		rankStr := "-"
		if r.hit {
			hits++
			ranks = append(ranks, r.rank)
			rankStr = fmt.Sprintf("%d", r.rank)
		}
		fmt.Printf("%-60s %-6v %s\n", truncate(r.query, 60), r.hit, rankStr)
	}
	precision := float64(hits) / float64(len(rows))
	fmt.Printf("\nprecision@%d: %.4f (%d/%d)\n", topK, precision, hits, len(rows))
	fmt.Printf("median rank (hits only): %d\n", medianOfInts(ranks))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func medianOfInts(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

func newBenchmarkLLMCommand() *cobra.Command {
	var queriesPath string
	var parallelism, sampleSize, targetRank int
	cmd := &cobra.Command{
		Use:   "benchmark-llm",
		Short: "Score stored summaries against a labeled query set using the retrieval-rank quality strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmarkLLM(cmd.Context(), queriesPath, parallelism, sampleSize, targetRank)
		},
	}
	cmd.Flags().StringVar(&queriesPath, "queries", "", "path to a JSON array of {query, expected_unit_id} rows")
	cmd.Flags().IntVar(&parallelism, "local-parallelism", 4, "number of units judged concurrently")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "judge only the first N queries (0 means all)")
	cmd.Flags().IntVar(&targetRank, "target-rank", 3, "passing median rank for the retrieval-rank judge")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}

type benchmarkLLMRow struct {
	unitID string
	result enrich.QualityResult
}

func runBenchmarkLLM(ctx context.Context, queriesPath string, parallelism, sampleSize, targetRank int) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	queries, err := loadLabeledQueries(queriesPath)
	if err != nil {
		return err
	}
	queries = sampleQueries(queries, sampleSize)

	emb, err := eng.newEmbedder()
	if err != nil {
		return err
	}
	embedFn := eng.queryEmbedFunc(emb)

	rows := make([]benchmarkLLMRow, len(queries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			unit, err := eng.store.FindByID(gctx, eng.projectID, q.ExpectedUnitID)
			if err != nil {
				return apperr.Storage("loading benchmark unit", err)
			}
			if unit == nil {
				mu.Lock()
				rows[i] = benchmarkLLMRow{unitID: q.ExpectedUnitID, result: enrich.QualityResult{Details: "unit not found"}}
				mu.Unlock()
				return nil
			}
			strategy := enrich.NewRetrievalRankStrategy(enrich.EmbedFunc(embedFn), nil, []string{q.Query})
			strategy.TargetRank = targetRank
			result, err := strategy.TestQuality(gctx, unit.Summary)
			if err != nil {
				return apperr.Transient("judging summary quality", err)
			}
			mu.Lock()
			rows[i] = benchmarkLLMRow{unitID: unit.ID, result: result}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var passed int
	fmt.Printf("%-40s %-6s %-6s %s\n", "unit", "passed", "score", "details")
	for _, r := range rows {
		if r.result.Passed {
			passed++
		}
		fmt.Printf("%-40s %-6v %-6.3f %s\n", truncate(r.unitID, 40), r.result.Passed, r.result.Score, r.result.Details)
	}
	fmt.Printf("\npass rate: %.4f (%d/%d)\n", float64(passed)/float64(len(rows)), passed, len(rows))
	return nil
}
