// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, d *Discoverer) []unit.FileDescriptor {
	t.Helper()
	out, errc := d.Walk(context.Background())
	var fds []unit.FileDescriptor
	for fd := range out {
		fds = append(fds, fd)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Walk: %v", err)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i].Path < fds[j].Path })
	return fds
}

func TestWalk_EmitsOnlySupportedLanguagesAndHonorsDefaultIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "README.md", "# not a supported language\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")

	fds := collect(t, New(root, nil))
	if len(fds) != 1 {
		t.Fatalf("expected 1 discovered file, got %d: %+v", len(fds), fds)
	}
	if fds[0].Language != unit.LangGo {
		t.Errorf("expected go, got %s", fds[0].Language)
	}
}

func TestWalk_HonorsProjectIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/models.go", "package generated\n")

	d := New(root, []string{"generated/*"})
	fds := collect(t, d)
	if len(fds) != 1 || filepath.Base(fds[0].Path) != "main.go" {
		t.Fatalf("expected only main.go to survive the ignore glob, got %+v", fds)
	}
}

func TestWalk_SkipsFilesLargerThanMaxFileBytes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package main\n")
	writeFile(t, root, "big.go", "package main\n// padding\n")

	d := New(root, nil)
	d.MaxFileBytes = 15 // smaller than big.go's content, larger than small.go's

	fds := collect(t, d)
	if len(fds) != 1 || filepath.Base(fds[0].Path) != "small.go" {
		t.Fatalf("expected only small.go under the byte cap, got %+v", fds)
	}
}

func TestWalk_ContextCancellationStopsTheWalk(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("pkg", string(rune('a'+i%26))+string(rune('a'+i/26))+".go"), "package pkg\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(root, nil)
	out, errc := d.Walk(ctx)
	count := 0
	for range out {
		count++
	}
	<-errc
	if count == 50 {
		t.Error("expected the canceled walk to stop before emitting every file")
	}
}

func TestLanguageForPath_ResolvesByExtensionCaseInsensitively(t *testing.T) {
	tests := []struct {
		path string
		want unit.Language
		ok   bool
	}{
		{"main.go", unit.LangGo, true},
		{"App.TSX", unit.LangTypeScript, true},
		{"script.PY", unit.LangPython, true},
		{"README.md", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		lang, ok := LanguageForPath(tt.path)
		if ok != tt.ok || lang != tt.want {
			t.Errorf("LanguageForPath(%q) = (%q, %v), want (%q, %v)", tt.path, lang, ok, tt.want, tt.ok)
		}
	}
}

func TestHashContent_IsStableAndContentSensitive(t *testing.T) {
	a := HashContent([]byte("package main\n"))
	b := HashContent([]byte("package main\n"))
	c := HashContent([]byte("package other\n"))

	if a != b {
		t.Error("expected identical content to hash identically")
	}
	if a == c {
		t.Error("expected different content to hash differently")
	}
}
