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

	"github.com/claudemem/claudemem/internal/unit"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print index unit/file counts for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	var units, files int
	err = eng.store.IterAll(ctx, eng.projectID, func(u unit.Unit) error {
		units++
		if u.IsFile() {
			files++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("project:   %s\n", eng.projectRoot)
	fmt.Printf("embed model: %s\n", eng.embedModel())
	fmt.Printf("chat model:  %s\n", eng.chatModel())
	fmt.Printf("files indexed: %d\n", files)
	fmt.Printf("units total:   %d\n", units)
	return nil
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the entire index for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()
			if err := eng.store.Clear(context.Background(), eng.projectID); err != nil {
				return err
			}
			fmt.Println("index cleared")
			return nil
		},
	}
}
