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

	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/pipeline"
)

func newIndexCommand() *cobra.Command {
	var force, noLLM bool
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Run the indexing pipeline over the project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				projectPath = args[0]
			}
			return runIndex(force, noLLM)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-extract, re-enrich, and re-embed every file regardless of content hash")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "skip enrichment; index with code-only text")
	return cmd
}

func runIndex(force, noLLM bool) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	emb, err := eng.newEmbedder()
	if err != nil {
		return err
	}
	var p *pipeline.Pipeline
	if noLLM {
		p = eng.newPipeline(nil, emb)
	} else {
		e, err := eng.newEnricher()
		if err != nil {
			return err
		}
		p = eng.newPipeline(e, emb)
	}

	ctx := context.Background()
	stats, err := p.Run(ctx, eng.project.IgnoreGlobs, pipeline.Options{
		Force: force,
		NoLLM: noLLM,
		Progress: func(s pipeline.Stats) {
			fmt.Printf("\rindexed %d/%d files...", s.FilesReindexed+s.FilesReused, s.FilesDiscovered)
		},
	})
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("files discovered:  %d\n", stats.FilesDiscovered)
	fmt.Printf("files reindexed:   %d\n", stats.FilesReindexed)
	fmt.Printf("files reused:      %d\n", stats.FilesReused)
	fmt.Printf("files tombstoned:  %d\n", stats.FilesTombstoned)
	fmt.Printf("units enriched:    %d\n", stats.UnitsEnriched)
	fmt.Printf("units embedded:    %d\n", stats.UnitsEmbedded)
	fmt.Printf("edges built:       %d (dangling dropped: %d)\n", stats.EdgesBuilt, stats.DanglingEdges)
	fmt.Printf("duration:          %s\n", stats.Duration)
	return nil
}
