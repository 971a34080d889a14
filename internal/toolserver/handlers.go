// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolserver

import (
	"context"
	"encoding/json"

	"github.com/claudemem/claudemem/internal/analysis"
	"github.com/claudemem/claudemem/internal/retrieve"
	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

type searchArgs struct {
	Query    string `json:"query" validate:"required"`
	TopK     int    `json:"top_k"`
	Mode     string `json:"mode"`
	Language string `json:"language"`
	UnitType string `json:"unit_type"`
	PathGlob string `json:"path_glob"`
}

func (s *Server) handleSearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args searchArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	mode := retrieve.ModeHybrid
	if args.Mode != "" {
		mode = retrieve.Mode(args.Mode)
	}
	opts := retrieve.Options{
		TopK: args.TopK,
		Mode: mode,
		Filters: store.Filters{
			Language: unit.Language(args.Language),
			UnitType: unit.UnitType(args.UnitType),
			PathGlob: args.PathGlob,
		},
	}
	return s.Retriever.Search(ctx, args.Query, opts)
}

type mapArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleMap(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args mapArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.Analyzer.Map(ctx, args.Query, s.Embed, args.TopK)
}

type symbolArgs struct {
	Symbol string `json:"symbol" validate:"required"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleCallers(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args symbolArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.Analyzer.Callers(ctx, args.Symbol, args.Limit)
}

func (s *Server) handleCallees(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args symbolArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.Analyzer.Callees(ctx, args.Symbol, args.Limit)
}

type impactArgs struct {
	Symbol   string `json:"symbol" validate:"required"`
	MaxDepth int    `json:"max_depth"`
	MaxNodes int    `json:"max_nodes"`
}

type impactResult struct {
	Units     []analysis.ImpactedUnit `json:"units"`
	Truncated bool                    `json:"truncated"`
}

func (s *Server) handleImpact(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args impactArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	units, truncated, err := s.Analyzer.Impact(ctx, args.Symbol, analysis.ImpactOptions{MaxDepth: args.MaxDepth, MaxNodes: args.MaxNodes})
	if err != nil {
		return nil, err
	}
	return impactResult{Units: units, Truncated: truncated}, nil
}

type deadCodeArgs struct {
	IncludeExported bool    `json:"include_exported"`
	ExcludeTests    bool    `json:"exclude_tests"`
	MaxPageRank     float64 `json:"max_pagerank"`
	Limit           int     `json:"limit"`
}

func (s *Server) handleDeadCode(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args deadCodeArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.Analyzer.DeadCode(ctx, analysis.DeadCodeOptions{
		IncludeExported: args.IncludeExported,
		ExcludeTests:    args.ExcludeTests,
		PageRankCeiling: args.MaxPageRank,
		Limit:           args.Limit,
	})
}

type testGapsArgs struct {
	MinPageRank float64 `json:"min_pagerank"`
	Limit       int     `json:"limit"`
}

func (s *Server) handleTestGaps(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args testGapsArgs
	if err := s.decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.Analyzer.TestGaps(ctx, analysis.TestGapOptions{PageRankFloor: args.MinPageRank, Limit: args.Limit})
}

type indexStatusResult struct {
	ProjectID string `json:"project_id"`
	UnitCount int    `json:"unit_count"`
	FileCount int    `json:"file_count"`
}

func (s *Server) handleIndexStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	result := indexStatusResult{ProjectID: s.ProjectID}
	err := s.Store.IterAll(ctx, s.ProjectID, func(u unit.Unit) error {
		result.UnitCount++
		if u.IsFile() {
			result.FileCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type clearResult struct {
	Cleared bool `json:"cleared"`
}

func (s *Server) handleClear(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if err := s.Store.Clear(ctx, s.ProjectID); err != nil {
		return nil, err
	}
	return clearResult{Cleared: true}, nil
}
