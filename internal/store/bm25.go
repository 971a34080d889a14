// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"math"
	"regexp"
	"strings"
)

// BM25 tuning constants, the standard values recommended by Robertson et al.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize lowercases and splits on non-alphanumeric boundaries, additionally
// splitting camelCase and snake_case identifiers so "findUser" and "find
// user" match the same terms.
func tokenize(text string) []string {
	var tokens []string
	for _, raw := range tokenPattern.FindAllString(text, -1) {
		for _, part := range splitIdentifier(raw) {
			part = strings.ToLower(part)
			if part != "" {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// splitIdentifier breaks camelCase and snake_case into component words.
func splitIdentifier(s string) []string {
	var parts []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '_' {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			continue
		}
		if i > 0 && isUpper(r) && !isUpper(runes[i-1]) {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// bm25Doc is the indexed representation of one unit's lexical text.
type bm25Doc struct {
	id     string
	tf     map[string]int
	length int
}

// bm25Index is an in-memory inverted index over a candidate set's lexical
// text, built per-query from whatever units the caller supplies (the Index
// Store has no persistent lexical index; spec.md §4.8 describes `lexical`
// as a BM25-family score over code + summary text computed at query time).
type bm25Index struct {
	docs   []bm25Doc
	idf    map[string]float64
	avgLen float64
}

func buildBM25Index(docs map[string]string) *bm25Index {
	built := make([]bm25Doc, 0, len(docs))
	df := make(map[string]int)
	totalLen := 0

	for id, text := range docs {
		tf := make(map[string]int)
		for _, tok := range tokenize(text) {
			tf[tok]++
		}
		length := 0
		for _, c := range tf {
			length += c
		}
		built = append(built, bm25Doc{id: id, tf: tf, length: length})
		totalLen += length
		for term := range tf {
			df[term]++
		}
	}

	n := len(built)
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log(float64(n+1)/float64(freq+1)) + 1.0
	}
	avgLen := 0.0
	if n > 0 {
		avgLen = float64(totalLen) / float64(n)
	}

	return &bm25Index{docs: built, idf: idf, avgLen: avgLen}
}

// score returns unit id -> raw BM25 score for queryTerms, omitting zero
// scores.
func (idx *bm25Index) score(queryTerms []string) map[string]float64 {
	scores := make(map[string]float64)
	if len(idx.docs) == 0 || len(queryTerms) == 0 {
		return scores
	}
	for _, doc := range idx.docs {
		var s float64
		dl := float64(doc.length)
		for _, term := range queryTerms {
			tf, ok := doc.tf[term]
			if !ok {
				continue
			}
			termIDF, ok := idx.idf[term]
			if !ok {
				continue
			}
			tfFloat := float64(tf)
			numerator := tfFloat * (bm25K1 + 1)
			denominator := tfFloat + bm25K1*(1-bm25B+bm25B*dl/idx.avgLen)
			s += termIDF * (numerator / denominator)
		}
		if s > 0 {
			scores[doc.id] = s
		}
	}
	return scores
}
