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
	"os"

	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/toolserver"
)

// newMCPCommand and newAutocompleteServerCommand both drive the same
// line-delimited tool protocol over stdin/stdout; the distinct command names
// mirror the two integration points editors/agents dial into (spec.md §6),
// even though the wire protocol and handler set underneath are identical.

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tool protocol over stdin/stdout for editor/agent integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd)
		},
	}
}

func newAutocompleteServerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "autocomplete-server",
		Short: "Serve the tool protocol over stdin/stdout for autocomplete integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd)
		},
	}
}

func runServer(cmd *cobra.Command) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	emb, err := eng.newEmbedder()
	if err != nil {
		return err
	}

	retriever := eng.newRetriever(eng.queryEmbedFunc(emb), eng.pageRankLookup(ctx))
	analyzer := eng.newAnalyzer(eng.pageRankLookup(ctx))
	srv := toolserver.New(retriever, analyzer, eng.store, eng.projectID, eng.singleQueryEmbedFunc(emb), eng.logger)

	return srv.Run(ctx, os.Stdin, os.Stdout)
}
