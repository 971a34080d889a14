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

	"github.com/claudemem/claudemem/internal/retrieve"
	"github.com/claudemem/claudemem/internal/store"
)

func newSearchCommand() *cobra.Command {
	var topK int
	var language, pathGlob, unitTypeFlag string
	var keywordOnly, noReindex bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = noReindex // re-indexing before search is the caller's responsibility via `index`; always a no-op here
			return runSearch(strings.Join(args, " "), topK, language, pathGlob, unitTypeFlag, keywordOnly)
		},
	}
	cmd.Flags().IntVarP(&topK, "topk", "n", retrieve.DefaultTopK, "number of results")
	cmd.Flags().StringVarP(&language, "language", "l", "", "filter by language")
	cmd.Flags().StringVar(&pathGlob, "path", "", "filter by path glob")
	cmd.Flags().StringVarP(&unitTypeFlag, "type", "t", "", "filter by unit type (function, method, class, ...)")
	cmd.Flags().BoolVarP(&keywordOnly, "keyword-only", "k", false, "keyword-only (lexical) mode, skips embedding the query")
	cmd.Flags().BoolVar(&noReindex, "no-reindex", false, "do not re-index before searching (always the default)")
	return cmd
}

func runSearch(query string, topK int, language, pathGlob, unitTypeFlag string, keywordOnly bool) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	mode := retrieve.ModeHybrid
	var embedFn retrieve.EmbedFunc
	if keywordOnly {
		mode = retrieve.ModeKeywordOnly
	} else {
		emb, err := eng.newEmbedder()
		if err != nil {
			return err
		}
		embedFn = eng.queryEmbedFunc(emb)
	}

	retriever := eng.newRetriever(embedFn, eng.pageRankLookup(ctx))
	results, err := retriever.Search(ctx, query, retrieve.Options{
		TopK: topK,
		Mode: mode,
		Filters: store.Filters{
			Language: unitLanguage(language),
			PathGlob: pathGlob,
			UnitType: unitType(unitTypeFlag),
		},
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. %s  [%s:%d]  score=%.4f (dense=%.3f lex=%.3f pr=%.3f)\n",
			i+1, r.Unit.Name, r.Unit.FilePath, r.Unit.StartLine, r.FusedScore, r.DenseScore, r.LexicalScore, r.PageRankScore)
		if r.Unit.Summary != "" {
			fmt.Printf("   %s\n", r.Unit.Summary)
		}
		for _, c := range r.Callers {
			fmt.Printf("   called by: %s\n", c.Name)
		}
		for _, c := range r.Callees {
			fmt.Printf("   calls: %s\n", c.Name)
		}
	}
	return nil
}
