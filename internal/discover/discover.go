// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discover implements source discovery (spec.md §4.2): it walks a
// project root, honors ignore rules, resolves languages by extension, hashes
// content, and emits a lazy sequence of file descriptors.
package discover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/claudemem/claudemem/internal/unit"
)

// defaultIgnoredDirs are engine-level default exclusions, always applied
// regardless of the project's own ignore file.
var defaultIgnoredDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	"node_modules": true, "vendor": true, "dist": true, "build": true,
	".claudemem": true, ".venv": true, "__pycache__": true, "target": true,
}

// extToLanguage maps file extensions to the closed set of detected
// languages (spec.md §3).
var extToLanguage = map[string]unit.Language{
	".ts":  unit.LangTypeScript,
	".tsx": unit.LangTypeScript,
	".js":  unit.LangJavaScript,
	".jsx": unit.LangJavaScript,
	".mjs": unit.LangJavaScript,
	".py":  unit.LangPython,
	".go":  unit.LangGo,
	".rs":  unit.LangRust,
	".c":   unit.LangC,
	".h":   unit.LangC,
	".cc":  unit.LangCPP,
	".cpp": unit.LangCPP,
	".hpp": unit.LangCPP,
	".java": unit.LangJava,
}

// LanguageForPath resolves a path's language tag by extension.
func LanguageForPath(path string) (unit.Language, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Discoverer walks a project root and emits file descriptors for files in
// supported languages that survive ignore-rule filtering.
type Discoverer struct {
	Root         string
	IgnoreGlobs  []string // additional project-specific ignore patterns
	MaxFileBytes int64
}

// DefaultMaxFileBytes bounds the size of files the discoverer will read.
const DefaultMaxFileBytes = 4 * 1024 * 1024

// New builds a Discoverer rooted at root.
func New(root string, ignoreGlobs []string) *Discoverer {
	return &Discoverer{Root: root, IgnoreGlobs: ignoreGlobs, MaxFileBytes: DefaultMaxFileBytes}
}

// Walk drives the filesystem walk and sends one FileDescriptor per
// surviving file on the returned channel. The channel is closed when the
// walk completes, the context is canceled, or a fatal walk error occurs
// (reported via errc). Callers drive consumption — the spec's "lazy finite
// sequence" (spec.md §4.2).
func (d *Discoverer) Walk(ctx context.Context) (<-chan unit.FileDescriptor, <-chan error) {
	out := make(chan unit.FileDescriptor)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		err := filepath.WalkDir(d.Root, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries, not fatal to the walk
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rel, relErr := filepath.Rel(d.Root, path)
			if relErr != nil {
				rel = path
			}

			if de.IsDir() {
				if defaultIgnoredDirs[de.Name()] || d.matchesIgnore(rel) {
					return filepath.SkipDir
				}
				return nil
			}

			if d.matchesIgnore(rel) {
				return nil
			}
			lang, ok := LanguageForPath(path)
			if !ok {
				return nil
			}

			info, err := de.Info()
			if err != nil || info.Size() > d.MaxFileBytes {
				return nil
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}

			fd := unit.FileDescriptor{
				Path:        path,
				Language:    lang,
				ByteLength:  int64(len(content)),
				ContentHash: HashContent(content),
			}
			select {
			case out <- fd:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && err != context.Canceled {
			errc <- err
		}
	}()

	return out, errc
}

// matchesIgnore reports whether rel matches any configured ignore glob.
func (d *Discoverer) matchesIgnore(rel string) bool {
	for _, g := range d.IgnoreGlobs {
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// HashContent returns the stable SHA-256 content hash used for change
// detection across runs (spec.md §3, content_hash; resolved open question
// in SPEC_FULL.md §3).
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
