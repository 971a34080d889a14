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
	"log/slog"
	"path/filepath"

	"github.com/claudemem/claudemem/internal/analysis"
	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/config"
	"github.com/claudemem/claudemem/internal/embedder"
	"github.com/claudemem/claudemem/internal/enrich"
	"github.com/claudemem/claudemem/internal/pipeline"
	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/retrieve"
	"github.com/claudemem/claudemem/internal/store"
)

// engine bundles the components a non-init command needs, built once from
// the resolved project root and its layered config (spec.md §6, "Persisted
// state layout").
type engine struct {
	projectRoot string
	projectID   string
	global      config.Global
	project     config.Project
	logger      *slog.Logger

	db      *store.DB
	store   *store.Store
	factory *provider.Factory
}

// openEngine loads config and opens the project's BadgerDB-backed index
// store. Callers must call Close when done.
func openEngine() (*engine, error) {
	root, err := resolveProjectRoot()
	if err != nil {
		return nil, apperr.Storage("resolving project root", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Configuration("resolving absolute project path", err)
	}

	global, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}
	project, err := config.LoadProject(abs)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	pricing, err := config.LoadPricingTable("")
	if err != nil {
		return nil, err
	}

	db, err := store.OpenDB(filepath.Join(config.ProjectDir(abs), "index"), logger)
	if err != nil {
		return nil, apperr.Storage("opening index store", err)
	}

	idxStore := store.New(db, logger)
	if project.VectorBackend == "weaviate" && project.WeaviateURL != "" {
		vi, err := store.NewWeaviateIndex(context.Background(), project.WeaviateURL)
		if err != nil {
			return nil, err
		}
		idxStore = store.NewWithVectorIndex(db, logger, vi)
	}

	return &engine{
		projectRoot: abs,
		projectID:   abs,
		global:      global,
		project:     project,
		logger:      logger,
		db:          db,
		store:       idxStore,
		factory:     provider.NewFactory(global, pricing, logger),
	}, nil
}

func (e *engine) Close() error {
	return e.db.Close()
}

// embedModel resolves the effective embedding model spec, honoring the
// CLAUDEMEM_MODEL override.
func (e *engine) embedModel() string {
	configured := e.project.EmbedModel
	if configured == "" {
		configured = e.global.DefaultEmbedModel
	}
	return provider.ResolveEmbedModel(configured)
}

// chatModel resolves the effective chat model spec, honoring the
// CLAUDEMEM_LLM override.
func (e *engine) chatModel() string {
	configured := e.project.ChatModel
	if configured == "" {
		configured = e.global.DefaultChatModel
	}
	return provider.ResolveChatModel(configured)
}

// newEmbedder builds the embedder.Embedder for the resolved embedding model.
func (e *engine) newEmbedder() (*embedder.Embedder, error) {
	adapter, err := e.factory.CreateEmbedAdapter(e.embedModel())
	if err != nil {
		return nil, err
	}
	return embedder.New(adapter), nil
}

// newEnricher builds the enrichment pipeline stage (base summaries only, no
// quality strategy). It always returns an enricher; the caller decides
// whether to wire it into the pipeline.
func (e *engine) newEnricher() (*enrich.Enricher, error) {
	chatAdapter, err := e.factory.CreateChatAdapter(e.chatModel())
	if err != nil {
		return nil, err
	}
	return enrich.New(chatAdapter, nil), nil
}

// newPipeline builds an indexing Pipeline. enr/emb may be nil for a
// --no-llm / extraction-only run.
func (e *engine) newPipeline(enr *enrich.Enricher, emb *embedder.Embedder) *pipeline.Pipeline {
	return pipeline.New(e.projectRoot, e.projectID, e.store, nil, enr, emb, nil, e.project.Pipeline, e.logger)
}

// pageRankLookup returns a closure reading a unit's persisted PageRank
// score, shared by the retriever and the analyzer (spec.md §4.7).
func (e *engine) pageRankLookup(ctx context.Context) func(unitID string) float64 {
	return func(unitID string) float64 {
		u, err := e.store.FindByID(ctx, e.projectID, unitID)
		if err != nil || u == nil {
			return 0
		}
		return u.PageRank
	}
}

// queryEmbedFunc adapts an embedder.Embedder to retrieve.EmbedFunc (batch
// texts -> vectors).
func (e *engine) queryEmbedFunc(emb *embedder.Embedder) retrieve.EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		result, err := emb.Adapter.Embed(ctx, texts, nil)
		if err != nil {
			return nil, err
		}
		return result.Vectors, nil
	}
}

// singleQueryEmbedFunc adapts an embedder.Embedder to analysis.EmbedFunc
// (single query -> one vector), used by the map query and the tool server.
func (e *engine) singleQueryEmbedFunc(emb *embedder.Embedder) analysis.EmbedFunc {
	return func(ctx context.Context, query string) ([]float32, error) {
		result, err := emb.Adapter.Embed(ctx, []string{query}, nil)
		if err != nil {
			return nil, err
		}
		if len(result.Vectors) == 0 {
			return nil, nil
		}
		return result.Vectors[0], nil
	}
}

func (e *engine) newRetriever(embed retrieve.EmbedFunc, pr func(string) float64) *retrieve.Retriever {
	return retrieve.New(e.store, e.projectID, embed, pr, e.logger)
}

func (e *engine) newAnalyzer(pr analysis.PageRankLookup) *analysis.Analyzer {
	return analysis.New(e.store, e.projectID, pr, e.logger)
}

