// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract implements the AST Extractor of spec.md §4.3: a single
// generic, table-driven tree walker (see SPEC_FULL.md's REDESIGN FLAGS for
// why this replaces the teacher's per-language bespoke symbol extractors)
// that turns a file descriptor and its parse tree into a hierarchy of code
// units with parent links, depth, signatures, and AST metadata.
package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/claudemem/claudemem/internal/unit"
)

// callNodeTypes identifies call-expression nodes across the supported
// grammars, used to populate ASTMetadata.ReferencedSymbols for the symbol
// graph builder.
var callNodeTypes = map[string]bool{
	"call_expression":   true, // go, js, ts, rust, c, cpp
	"call":              true, // python
	"method_invocation": true, // java
}

// nameFieldCandidates are tried in order when extracting a unit's name.
var nameFieldCandidates = []string{"name", "declarator"}

// Extractor implements spec.md §4.3 over an injected ParserCapability.
type Extractor struct {
	Capability ParserCapability
}

// New builds an Extractor with the default tree-sitter-backed capability.
func New() *Extractor {
	return &Extractor{Capability: NewDefaultCapability()}
}

// NewWithCapability builds an Extractor over a caller-supplied capability,
// useful for tests or for languages the default capability does not cover.
func NewWithCapability(cap ParserCapability) *Extractor {
	return &Extractor{Capability: cap}
}

// Extract walks fd's parse tree and returns its hierarchy of code units,
// including the synthetic file-level unit. On parse failure it returns
// only the file-level unit so the file is still searchable by full-text or
// embedding means (spec.md §4.3, "Failure mode"; §7 "Parse" is non-fatal).
func (e *Extractor) Extract(ctx context.Context, fd unit.FileDescriptor, content []byte) ([]unit.Unit, error) {
	fileUnit := unit.Unit{
		ID:        unit.NewID(fd.Path, unit.TypeFile, fd.Path, 1),
		UnitType:  unit.TypeFile,
		FilePath:  fd.Path,
		StartLine: 1,
		EndLine:   countLines(content),
		Language:  fd.Language,
		Depth:     0,
		Name:      fd.Path,
		FileHash:  fd.ContentHash,
	}

	if !e.Capability.Supports(fd.Language) {
		return []unit.Unit{fileUnit}, nil
	}

	tree, err := ParseFile(ctx, e.Capability, fd.Language, fd.Path, content)
	if err != nil || tree == nil || tree.RootNode() == nil {
		return []unit.Unit{fileUnit}, nil
	}
	defer tree.Close()

	w := &walker{
		lang:     fd.Language,
		filePath: fd.Path,
		fileHash: fd.ContentHash,
		content:  content,
		units:    []unit.Unit{fileUnit},
	}
	w.walk(tree.RootNode(), fileUnit.ID, 0)

	out := make([]unit.Unit, 0, len(w.units))
	for _, u := range w.units {
		if u.UnitType == unit.TypeFile || nonWhitespaceLen(u.Content) >= unit.MinContentChars {
			out = append(out, u)
		}
	}
	return out, nil
}

type walker struct {
	lang     unit.Language
	filePath string
	fileHash string
	content  []byte
	units    []unit.Unit
}

// walk implements the top-down traversal of spec.md §4.3: a node matching
// the unit-type table becomes a unit and its id becomes the parent for its
// descendants; recognized containers pass the current parent through
// unchanged; everything else is walked transparently.
func (w *walker) walk(node *sitter.Node, parentID string, depth int) {
	if node == nil {
		return
	}
	nodeType := node.Type()

	ut, isUnit := UnitTypeFor(w.lang, nodeType)
	if isUnit {
		ut = w.refine(node, ut)
	}

	if isUnit {
		u := w.buildUnit(node, ut, parentID, depth+1)
		w.units = append(w.units, u)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			w.walk(node.NamedChild(i), u.ID, depth+1)
		}
		return
	}

	// Containers and everything else pass the current parent/depth through.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), parentID, depth)
	}
}

// refine applies the context-sensitive reclassification of spec.md §4.3:
// a Python function_definition nested under a class becomes a method; a Go
// type_spec is reclassified by inspecting its first structural child.
func (w *walker) refine(node *sitter.Node, ut unit.UnitType) unit.UnitType {
	switch w.lang {
	case unit.LangPython:
		if node.Type() == "function_definition" && w.hasAncestorType(node, "class_definition") {
			return unit.TypeMethod
		}
	case unit.LangGo:
		if node.Type() == "type_spec" {
			for i := 0; i < int(node.NamedChildCount()); i++ {
				switch node.NamedChild(i).Type() {
				case "struct_type":
					return unit.TypeClass
				case "interface_type":
					return unit.TypeInterface
				}
			}
			return unit.TypeType
		}
	}
	return ut
}

func (w *walker) hasAncestorType(node *sitter.Node, t string) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Type() == t {
			return true
		}
	}
	return false
}

func (w *walker) buildUnit(node *sitter.Node, ut unit.UnitType, parentID string, depth int) unit.Unit {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	name := w.extractName(node, ut)
	content := string(w.content[node.StartByte():node.EndByte()])

	u := unit.Unit{
		ID:        unit.NewID(w.filePath, ut, name, startLine),
		ParentID:  parentID,
		UnitType:  ut,
		FilePath:  w.filePath,
		StartLine: startLine,
		EndLine:   endLine,
		Language:  w.lang,
		Depth:     depth,
		Name:      name,
		Content:   content,
		FileHash:  w.fileHash,
		Signature: w.extractSignature(node, content),
	}
	u.AST = w.extractMetadata(node, ut)
	return u
}

// extractName tries the parser's declared name field, unwraps nested
// declarators for C/C++ functions, handles arrow functions bound to
// variable declarators, and prefixes Rust impl blocks with "impl "
// followed by the target type name (spec.md §4.3, "Name extraction").
func (w *walker) extractName(node *sitter.Node, ut unit.UnitType) string {
	if w.lang == unit.LangRust && node.Type() == "impl_item" {
		if t := node.ChildByFieldName("type"); t != nil {
			return "impl " + w.text(t)
		}
	}

	for _, field := range nameFieldCandidates {
		if n := node.ChildByFieldName(field); n != nil {
			name := w.unwrapDeclaratorName(n)
			if name != "" {
				return name
			}
		}
	}

	// Arrow function bound to a variable declarator: the name lives on the
	// enclosing declarator, not the arrow_function node itself.
	if node.Type() == "arrow_function" {
		if p := node.Parent(); p != nil && p.Type() == "variable_declarator" {
			if n := p.ChildByFieldName("name"); n != nil {
				return w.text(n)
			}
		}
	}

	return ""
}

// unwrapDeclaratorName descends into C/C++ nested function_declarator nodes
// to find the leaf identifier.
func (w *walker) unwrapDeclaratorName(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return w.text(n)
		case "function_declarator", "pointer_declarator":
			if d := n.ChildByFieldName("declarator"); d != nil {
				n = d
				continue
			}
		}
		return w.text(n)
	}
	return ""
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

// extractSignature implements spec.md §4.3's line-accumulation rule: take
// the starting line; if it does not terminate a signature (no "{", no
// ")", no ":"), append up to four additional lines until a terminator is
// found; truncate at the opening brace; strip the trailing colon for
// Python; limit to 300 characters.
func (w *walker) extractSignature(node *sitter.Node, content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return ""
	}
	sig := strings.TrimSpace(lines[0])
	for i := 1; i < len(lines) && i <= 4 && !terminatesSignature(sig); i++ {
		sig += " " + strings.TrimSpace(lines[i])
	}
	if idx := strings.Index(sig, "{"); idx >= 0 {
		sig = sig[:idx]
	}
	sig = strings.TrimSpace(sig)
	if w.lang == unit.LangPython {
		sig = strings.TrimSuffix(sig, ":")
	}
	if len(sig) > unit.MaxSignatureLen {
		sig = sig[:unit.MaxSignatureLen]
	}
	return strings.TrimSpace(sig)
}

func terminatesSignature(s string) bool {
	return strings.ContainsAny(s, "{") || strings.Contains(s, ")") || strings.Contains(s, ":")
}

// extractMetadata populates ASTMetadata: exported flag, parameters,
// return type, and referenced symbols (call sites) within the unit's body.
func (w *walker) extractMetadata(node *sitter.Node, ut unit.UnitType) unit.ASTMetadata {
	meta := unit.ASTMetadata{Exported: w.isExported(node)}

	if params := node.ChildByFieldName("parameters"); params != nil {
		meta.Parameters = splitParams(w.text(params))
	}
	if ret := node.ChildByFieldName("result"); ret != nil {
		meta.ReturnType = w.text(ret)
	} else if ret := node.ChildByFieldName("return_type"); ret != nil {
		meta.ReturnType = w.text(ret)
	}
	if heritage := node.ChildByFieldName("superclass"); heritage != nil {
		meta.ExtendsImplements = append(meta.ExtendsImplements, w.text(heritage))
	}

	meta.ReferencedSymbols = w.collectCalls(node)
	return meta
}

func (w *walker) isExported(node *sitter.Node) bool {
	name := w.extractName(node, "")
	switch w.lang {
	case unit.LangGo:
		return name != "" && strings.ToUpper(name[:1]) == name[:1]
	case unit.LangPython:
		return name != "" && !strings.HasPrefix(name, "_")
	case unit.LangTypeScript, unit.LangJavaScript:
		// export keyword precedes the declaration at the statement level;
		// approximated here by checking the immediate parent chain.
		for p := node.Parent(); p != nil; p = p.Parent() {
			if strings.HasPrefix(p.Type(), "export_statement") {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func splitParams(raw string) []string {
	raw = strings.Trim(raw, "()")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collectCalls walks node's subtree collecting callee identifiers from
// call-expression nodes, stopping at a nested unit boundary so a method's
// calls are not double-counted on its enclosing class.
func (w *walker) collectCalls(node *sitter.Node) []string {
	var out []string
	seen := map[string]bool{}
	var visit func(n *sitter.Node, isRoot bool)
	visit = func(n *sitter.Node, isRoot bool) {
		if n == nil {
			return
		}
		if !isRoot {
			if _, isUnit := UnitTypeFor(w.lang, n.Type()); isUnit {
				return // nested unit collects its own calls
			}
		}
		if callNodeTypes[n.Type()] {
			callee := n.ChildByFieldName("function")
			if callee == nil {
				callee = n.ChildByFieldName("name")
			}
			if callee != nil {
				name := calleeBaseName(w.text(callee))
				if name != "" && !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i), false)
		}
	}
	visit(node, true)
	return out
}

// calleeBaseName strips a receiver/namespace prefix from a call target
// expression, e.g. "pkg.Foo" or "obj.method" -> "Foo"/"method".
func calleeBaseName(expr string) string {
	expr = strings.TrimSpace(expr)
	if idx := strings.LastIndex(expr, "."); idx >= 0 {
		expr = expr[idx+1:]
	}
	if idx := strings.LastIndex(expr, "::"); idx >= 0 {
		expr = expr[idx+2:]
	}
	return expr
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 1
	}
	n := strings.Count(string(content), "\n") + 1
	return n
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r", r) {
			n++
		}
	}
	return n
}
