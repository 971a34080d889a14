// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package unit defines the code-unit data model shared by every stage of the
// indexing and retrieval pipeline: discovery, extraction, enrichment,
// embedding, the symbol graph, the index store, and the retriever.
package unit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// UnitType classifies a code unit. Context-aware: a function nested in a
// class becomes a method; a Go type_spec wrapping a struct becomes a class,
// wrapping an interface becomes an interface, otherwise a type.
type UnitType string

const (
	TypeFile      UnitType = "file"
	TypeClass     UnitType = "class"
	TypeInterface UnitType = "interface"
	TypeEnum      UnitType = "enum"
	TypeType      UnitType = "type"
	TypeMethod    UnitType = "method"
	TypeFunction  UnitType = "function"
)

// Language is one of the closed set of detected source languages.
type Language string

const (
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangJava       Language = "java"
	LangUnknown    Language = "unknown"
)

// FileDescriptor identifies a single source file surviving discovery.
type FileDescriptor struct {
	Path        string
	Language    Language
	ByteLength  int64
	ContentHash string
}

// ASTMetadata holds structured facts extracted from a unit's AST node.
type ASTMetadata struct {
	Imports            []string `json:"imports,omitempty"`
	ReferencedSymbols  []string `json:"referenced_symbols,omitempty"`
	Modifiers          []string `json:"modifiers,omitempty"`
	Exported           bool     `json:"exported"`
	Parameters         []string `json:"parameters,omitempty"`
	ReturnType         string   `json:"return_type,omitempty"`
	ExtendsImplements  []string `json:"extends_implements,omitempty"`
}

// Unit is the atomic indexable record described in spec.md §3.
type Unit struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id,omitempty"`
	UnitType UnitType `json:"unit_type"`

	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Language  Language `json:"language"`
	Depth     int      `json:"depth"`

	Name      string `json:"name,omitempty"`
	Signature string `json:"signature,omitempty"`
	Content   string `json:"content,omitempty"`

	FileHash string `json:"file_hash"`

	AST ASTMetadata `json:"ast_metadata"`

	Summary string `json:"summary,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	PageRank float64 `json:"pagerank,omitempty"`
}

// IsFile reports whether the unit is the synthetic file-level unit.
func (u *Unit) IsFile() bool { return u.UnitType == TypeFile }

// MaxSignatureLen is the hard cap on a stored signature's length.
const MaxSignatureLen = 300

// MinContentChars is the minimum number of non-whitespace characters a
// non-file unit must contain to be retained (spec.md §4.3).
const MinContentChars = 10

// NewID derives the stable 16-hex-digit unit id from {file path, unit kind,
// name (or "anon"), starting row}. Deterministic so re-indexing the same
// file produces the same ids (spec.md §3, invariant 3; §8 property 3).
func NewID(filePath string, ut UnitType, name string, startLine int) string {
	if name == "" {
		name = "anon"
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", filePath, ut, name, startLine)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// EdgeType classifies a directed symbol-graph edge.
type EdgeType string

const (
	EdgeCalls      EdgeType = "calls"
	EdgeReferences EdgeType = "references"
	EdgeImports    EdgeType = "imports"
	EdgeExtends    EdgeType = "extends"
)

// Edge is a directed, typed reference between two units, with an
// aggregated occurrence count (spec.md §3).
type Edge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Type       EdgeType `json:"type"`
	Occurrence int      `json:"occurrence"`
}

// Key returns the (source, target, type) identity used to dedupe edges and
// aggregate occurrence counts at build time (spec.md §4.6).
func (e Edge) Key() string {
	return e.Source + "\x00" + e.Target + "\x00" + string(e.Type)
}
