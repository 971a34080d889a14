// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/claudemem/claudemem/internal/unit"
)

// ParserCapability produces a tree-sitter parse tree for a given language
// and content. The AST extractor consumes this capability; it does not own
// grammar loading itself (spec.md §1, out-of-scope: "Tree-sitter grammar
// loading: the engine consumes a parser capability it does not implement").
type ParserCapability interface {
	Parse(ctx context.Context, lang unit.Language, content []byte) (*sitter.Tree, error)
	Supports(lang unit.Language) bool
}

// treeSitterCapability is the default ParserCapability, backed by
// github.com/smacker/go-tree-sitter's bundled grammars.
type treeSitterCapability struct{}

// NewDefaultCapability returns the default tree-sitter-backed
// ParserCapability. It covers Go, Python, TypeScript/TSX, JavaScript and
// Java; Rust, C and C++ are not supported, so Extract emits only the
// file-level unit for those files.
func NewDefaultCapability() ParserCapability {
	return treeSitterCapability{}
}

func languageFor(lang unit.Language, filePath string) *sitter.Language {
	switch lang {
	case unit.LangGo:
		return golang.GetLanguage()
	case unit.LangPython:
		return python.GetLanguage()
	case unit.LangTypeScript:
		if hasSuffix(filePath, ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	case unit.LangJavaScript:
		return javascript.GetLanguage()
	case unit.LangJava:
		return java.GetLanguage()
	default:
		return nil
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (treeSitterCapability) Supports(lang unit.Language) bool {
	switch lang {
	case unit.LangGo, unit.LangPython, unit.LangTypeScript, unit.LangJavaScript, unit.LangJava:
		return true
	default:
		return false
	}
}

func (treeSitterCapability) Parse(ctx context.Context, lang unit.Language, content []byte) (*sitter.Tree, error) {
	filePath := ""
	lng := languageFor(lang, filePath)
	if lng == nil {
		return nil, unsupportedLanguageError(lang)
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lng)
	return parser.ParseCtx(ctx, nil, content)
}

// ParseFile is like Parse but is suffix-aware for the TypeScript/TSX
// grammar split.
func ParseFile(ctx context.Context, cap ParserCapability, lang unit.Language, filePath string, content []byte) (*sitter.Tree, error) {
	if _, ok := cap.(treeSitterCapability); ok {
		lng := languageFor(lang, filePath)
		if lng == nil {
			return nil, unsupportedLanguageError(lang)
		}
		parser := sitter.NewParser()
		parser.SetLanguage(lng)
		return parser.ParseCtx(ctx, nil, content)
	}
	return cap.Parse(ctx, lang, content)
}

type unsupportedLangErr struct{ lang unit.Language }

func (e unsupportedLangErr) Error() string { return "no grammar available for language " + string(e.lang) }

func unsupportedLanguageError(lang unit.Language) error { return unsupportedLangErr{lang: lang} }
