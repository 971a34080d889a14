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
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/pipeline"
)

// debounceWindow coalesces a burst of filesystem events (e.g. a git
// checkout touching hundreds of files) into a single re-index.
const debounceWindow = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var noLLM bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project for changes and re-index on debounce",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), noLLM)
		},
	}
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "skip enrichment on each re-index")
	return cmd
}

func runWatch(ctx context.Context, noLLM bool) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Storage("creating filesystem watcher", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(eng.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == ".claudemem" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return apperr.Storage("walking project tree for watch", err)
	}

	fmt.Printf("watching %s (ctrl-c to stop)\n", eng.projectRoot)

	reindex := func() {
		if err := indexOnce(eng, noLLM); err != nil {
			slog.Error("watch: re-index failed", "error", err)
			return
		}
		fmt.Println("re-indexed")
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounceWindow, reindex)
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: fsnotify error", "error", err)
		}
	}
}

func indexOnce(eng *engine, noLLM bool) error {
	emb, err := eng.newEmbedder()
	if err != nil {
		return err
	}
	var p *pipeline.Pipeline
	if noLLM {
		p = eng.newPipeline(nil, emb)
	} else {
		enr, err := eng.newEnricher()
		if err != nil {
			return err
		}
		p = eng.newPipeline(enr, emb)
	}
	_, err = p.Run(context.Background(), eng.project.IgnoreGlobs, pipeline.Options{NoLLM: noLLM})
	return err
}
