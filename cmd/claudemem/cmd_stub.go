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
	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/apperr"
)

// newHooksCommand and newAICommand are intentionally thin. Git-hook
// installation and role-scoped AI assistants are outside this engine's
// scope; they return a clear configuration error instead of a silent no-op
// so callers don't mistake "not implemented" for "ran and did nothing".

func newHooksCommand() *cobra.Command {
	install := &cobra.Command{
		Use:   "install",
		Short: "Install git hooks that keep the index warm (not implemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apperr.Configuration("hooks install", notImplementedErr("hooks install"))
		},
	}
	hooks := &cobra.Command{
		Use:   "hooks",
		Short: "Manage git hooks (not implemented in this engine)",
	}
	hooks.AddCommand(install)
	return hooks
}

func newAICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ai <role>",
		Short: "Invoke a role-scoped AI assistant (not implemented in this engine)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return apperr.Configuration("ai "+args[0], notImplementedErr("ai "+args[0]))
		},
	}
}

type notImplementedErr string

func (e notImplementedErr) Error() string {
	return string(e) + " is not implemented in this engine; use index/search/map and the analysis commands instead"
}
