// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command claudemem is the CLI front end for the local-first semantic code
// intelligence engine: indexing, hybrid search, graph analysis queries, and
// the line-delimited tool-protocol server used by editor/agent integrations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/apperr"
)

var projectPath string

func main() {
	root := &cobra.Command{
		Use:           "claudemem",
		Short:         "Local-first semantic code intelligence engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&projectPath, "project", "", "project root (defaults to the current working directory)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.AddCommand(
		newInitCommand(),
		newIndexCommand(),
		newSearchCommand(),
		newStatusCommand(),
		newClearCommand(),
		newMapCommand(),
		newCallersCommand(),
		newCalleesCommand(),
		newImpactCommand(),
		newDeadCodeCommand(),
		newTestGapsCommand(),
		newWatchCommand(),
		newHooksCommand(),
		newAICommand(),
		newBenchmarkCommand(),
		newBenchmarkLLMCommand(),
		newMCPCommand(),
		newAutocompleteServerCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		code := apperr.ExitCode(err)
		if code == 2 && isUsageError(err) {
			code = 1
		}
		slog.Error("claudemem: command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(code)
	}
}

// usageError marks an error that should map to exit code 1 (spec.md §6)
// rather than apperr's default runtime-error code.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

func resolveProjectRoot() (string, error) {
	if projectPath != "" {
		return projectPath, nil
	}
	return os.Getwd()
}
