// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/claudemem/claudemem/internal/config"
	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

const testGoSource = `package sample

func Greet(name string) string {
	return "hello " + name
}

func main() {
	Greet("world")
}
`

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	projectRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(projectRoot, "main.go"), []byte(testGoSource), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := store.New(db, nil)

	p := New(projectRoot, "proj", s, nil, nil, nil, nil, config.DefaultPipelineLimits(), nil)
	return p, projectRoot
}

func TestRun_ExtractsUnitsAndBuildsGraphWithoutEnrichmentOrEmbedding(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	stats, err := p.Run(ctx, nil, Options{NoLLM: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.RunID == "" {
		t.Error("expected a generated RunID")
	}
	if stats.FilesDiscovered != 1 {
		t.Fatalf("expected 1 file discovered, got %d", stats.FilesDiscovered)
	}
	if stats.FilesReindexed != 1 {
		t.Fatalf("expected 1 file reindexed, got %d", stats.FilesReindexed)
	}
	if stats.EdgesBuilt == 0 {
		t.Errorf("expected at least one edge (main calls Greet), got 0")
	}

	var found []unit.Unit
	err = p.Store.IterAll(ctx, "proj", func(u unit.Unit) error {
		found = append(found, u)
		return nil
	})
	if err != nil {
		t.Fatalf("IterAll: %v", err)
	}
	if len(found) < 2 {
		t.Fatalf("expected at least a file unit and a function unit, got %d", len(found))
	}
}

func TestRun_SecondRunReusesUnchangedFile(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Run(ctx, nil, Options{NoLLM: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	stats, err := p.Run(ctx, nil, Options{NoLLM: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.FilesReused != 1 {
		t.Fatalf("expected the unchanged file to be reused, got stats=%+v", stats)
	}
	if stats.FilesReindexed != 0 {
		t.Fatalf("expected no re-extraction on the second run, got stats=%+v", stats)
	}
}

func TestRun_ForceReindexesEvenWhenUnchanged(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Run(ctx, nil, Options{NoLLM: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	stats, err := p.Run(ctx, nil, Options{NoLLM: true, Force: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.FilesReindexed != 1 {
		t.Fatalf("expected Force to re-extract the file, got stats=%+v", stats)
	}
}

func TestRun_TombstonesUnitsFromDeletedFiles(t *testing.T) {
	p, projectRoot := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Run(ctx, nil, Options{NoLLM: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := os.Remove(filepath.Join(projectRoot, "main.go")); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}

	stats, err := p.Run(ctx, nil, Options{NoLLM: true})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.FilesTombstoned != 1 {
		t.Fatalf("expected the deleted file's units to be tombstoned, got stats=%+v", stats)
	}

	var remaining int
	err = p.Store.IterAll(ctx, "proj", func(unit.Unit) error {
		remaining++
		return nil
	})
	if err != nil {
		t.Fatalf("IterAll: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected no remaining units after tombstoning, got %d", remaining)
	}
}
