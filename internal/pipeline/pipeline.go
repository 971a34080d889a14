// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the indexing data flow of spec.md §2:
// Discovery -> AST Extractor -> Enrichment -> Embedder -> Graph Builder ->
// Index Store, with per-stage bounded concurrency expressed as buffered
// channels (spec.md §5, "Backpressure") and cancellation honored at the
// next unit boundary.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/config"
	"github.com/claudemem/claudemem/internal/discover"
	"github.com/claudemem/claudemem/internal/embedder"
	"github.com/claudemem/claudemem/internal/enrich"
	"github.com/claudemem/claudemem/internal/extract"
	"github.com/claudemem/claudemem/internal/graph"
	"github.com/claudemem/claudemem/internal/pagerank"
	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

var (
	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudemem",
		Subsystem: "pipeline",
		Name:      "run_total",
		Help:      "Indexing runs by outcome: ok, error",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "claudemem",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full indexing run",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	})
)

// Stats summarizes one Run. RunID identifies the run for correlating log
// lines and progress callbacks emitted while it was in flight.
type Stats struct {
	RunID           string
	FilesDiscovered int
	FilesReindexed  int
	FilesReused     int // unchanged file_hash, Force not set
	FilesTombstoned int
	UnitsExtracted  int
	UnitsEnriched   int
	UnitsEmbedded   int
	EdgesBuilt      int
	DanglingEdges   int
	Duration        time.Duration
}

// ProgressFunc reports incremental indexing progress (spec.md §5's
// explicit progress-reporting callback suspension point).
type ProgressFunc func(Stats)

// Options configures a Run.
type Options struct {
	// Force re-extracts, re-enriches, and re-embeds every discovered file
	// regardless of a matching content hash.
	Force bool
	// NoLLM skips enrichment; units are indexed with empty summaries and
	// dense retrieval falls back to code-only text.
	NoLLM bool
	// Progress is called after each file completes. May be nil.
	Progress ProgressFunc
}

// fileUnits is one file's extracted (or reused) unit set as it flows
// through the pipeline's stages.
type fileUnits struct {
	fd     unit.FileDescriptor
	units  []unit.Unit
	reused bool // units came from the store unchanged; skip enrich/embed
}

// Pipeline wires the indexing stages together. Construct with New.
type Pipeline struct {
	ProjectRoot string
	ProjectID   string
	Store       *store.Store
	Extractor   *extract.Extractor
	Enricher    *enrich.Enricher // nil disables enrichment regardless of Options.NoLLM
	Embedder    *embedder.Embedder
	Builder     *graph.Builder
	Limits      config.PipelineLimits
	Logger      *slog.Logger
}

// New builds a Pipeline. Extractor and Builder default to their package
// defaults when nil; Enricher and Embedder may be nil to run an
// extraction-and-graph-only index. Store must not be nil.
func New(projectRoot, projectID string, s *store.Store, ext *extract.Extractor, enr *enrich.Enricher, emb *embedder.Embedder, builder *graph.Builder, limits config.PipelineLimits, logger *slog.Logger) *Pipeline {
	if ext == nil {
		ext = extract.New()
	}
	if builder == nil {
		builder = graph.NewBuilder(graph.DefaultBuilderOptions())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limits == (config.PipelineLimits{}) {
		limits = config.DefaultPipelineLimits()
	}
	return &Pipeline{
		ProjectRoot: projectRoot,
		ProjectID:   projectID,
		Store:       s,
		Extractor:   ext,
		Enricher:    enr,
		Embedder:    emb,
		Builder:     builder,
		Limits:      limits,
		Logger:      logger,
	}
}

// Run drives one full indexing pass over ProjectRoot and commits the
// result to Store. The index store's exclusive-writer role (spec.md §5,
// "Shared-resource policy") is the caller's responsibility — callers must
// not run two Runs against the same project concurrently.
func (p *Pipeline) Run(ctx context.Context, ignoreGlobs []string, opts Options) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString()}
	var statsMu sync.Mutex
	logger := p.Logger.With("run_id", stats.RunID)

	if err := p.Store.EnsureSchema(ctx, p.ProjectID); err != nil {
		runTotal.WithLabelValues("error").Inc()
		return stats, err
	}
	if p.Embedder != nil {
		if _, err := p.Store.CheckEmbeddingModel(ctx, p.ProjectID, p.Embedder.Adapter.ModelID(), p.Embedder.Dimension()); err != nil {
			runTotal.WithLabelValues("error").Inc()
			return stats, err
		}
	}
	logger.Info("pipeline: run starting", "project", p.ProjectID, "root", p.ProjectRoot)

	disc := discover.New(p.ProjectRoot, ignoreGlobs)
	fdCh, errc := disc.Walk(ctx)

	parseOut := make(chan fileUnits, p.Limits.MaxInFlightParse)
	enrichOut := make(chan fileUnits, p.Limits.MaxInFlightEnrich)
	embedOut := make(chan fileUnits, p.Limits.MaxInFlightEmbed)

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	fail := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	seenFiles := make(map[string]bool)
	var seenMu sync.Mutex

	// Stage 1: parse (extraction), bounded by MaxInFlightParse workers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(parseOut)
		var parseWG sync.WaitGroup
		sem := make(chan struct{}, max1(p.Limits.MaxInFlightParse))
		for fd := range fdCh {
			if ctx.Err() != nil {
				break
			}
			statsMu.Lock()
			stats.FilesDiscovered++
			statsMu.Unlock()
			seenMu.Lock()
			seenFiles[fd.Path] = true
			seenMu.Unlock()

			sem <- struct{}{}
			parseWG.Add(1)
			go func(fd unit.FileDescriptor) {
				defer parseWG.Done()
				defer func() { <-sem }()
				fu, err := p.parseFile(ctx, fd, opts.Force)
				if err != nil {
					fail(err)
					return
				}
				select {
				case parseOut <- fu:
				case <-ctx.Done():
				}
			}(fd)
		}
		parseWG.Wait()
	}()

	// Stage 2: enrichment, bounded by MaxInFlightEnrich workers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(enrichOut)
		var enrichWG sync.WaitGroup
		sem := make(chan struct{}, max1(p.Limits.MaxInFlightEnrich))
		for fu := range parseOut {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			enrichWG.Add(1)
			go func(fu fileUnits) {
				defer enrichWG.Done()
				defer func() { <-sem }()
				if !fu.reused && !opts.NoLLM && p.Enricher != nil {
					p.enrichFile(ctx, &fu, &stats, &statsMu)
				}
				select {
				case enrichOut <- fu:
				case <-ctx.Done():
				}
			}(fu)
		}
		enrichWG.Wait()
	}()

	// Stage 3: embedding, bounded by MaxInFlightEmbed workers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(embedOut)
		var embedWG sync.WaitGroup
		sem := make(chan struct{}, max1(p.Limits.MaxInFlightEmbed))
		for fu := range enrichOut {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			embedWG.Add(1)
			go func(fu fileUnits) {
				defer embedWG.Done()
				defer func() { <-sem }()
				if !fu.reused && p.Embedder != nil {
					if err := p.embedFile(ctx, &fu); err != nil {
						fail(err)
					} else {
						statsMu.Lock()
						stats.UnitsEmbedded += countNonFile(fu.units)
						statsMu.Unlock()
					}
				}
				select {
				case embedOut <- fu:
				case <-ctx.Done():
				}
			}(fu)
		}
		embedWG.Wait()
	}()

	// Final stage: commit units to the store and accumulate for graph
	// build, serially (the store tolerates concurrent readers but this
	// pipeline instance is the sole writer).
	var allUnits []unit.Unit
	for fu := range embedOut {
		if ctx.Err() != nil {
			continue
		}
		for _, u := range fu.units {
			if err := p.Store.Upsert(ctx, p.ProjectID, u); err != nil {
				fail(err)
				continue
			}
			allUnits = append(allUnits, u)
		}
		statsMu.Lock()
		if fu.reused {
			stats.FilesReused++
		} else {
			stats.FilesReindexed++
		}
		cur := stats
		statsMu.Unlock()
		if opts.Progress != nil {
			opts.Progress(cur)
		}
	}

	wg.Wait()
	if err := <-errc; err != nil {
		fail(err)
	}
	if firstErr != nil {
		runTotal.WithLabelValues("error").Inc()
		return stats, firstErr
	}
	if err := ctx.Err(); err != nil {
		runTotal.WithLabelValues("error").Inc()
		return stats, err
	}

	tombstoned, err := p.tombstoneRemovedFiles(ctx, seenFiles)
	if err != nil {
		runTotal.WithLabelValues("error").Inc()
		return stats, err
	}
	stats.FilesTombstoned = tombstoned

	buildResult, err := p.Builder.Build(ctx, allUnits)
	if err != nil {
		runTotal.WithLabelValues("error").Inc()
		return stats, apperr.Graph("building symbol graph", err)
	}
	if len(buildResult.Edges) > 0 {
		if err := p.Store.UpsertEdges(ctx, p.ProjectID, buildResult.Edges); err != nil {
			runTotal.WithLabelValues("error").Inc()
			return stats, err
		}
	}
	stats.EdgesBuilt = len(buildResult.Edges)
	stats.DanglingEdges = buildResult.DanglingDropped

	nodeIDs := make([]string, 0, len(allUnits))
	for _, u := range allUnits {
		if !u.IsFile() {
			nodeIDs = append(nodeIDs, u.ID)
		}
	}
	prResult := pagerank.Compute(nodeIDs, buildResult.Edges, pagerank.DefaultOptions())
	for id, score := range prResult.Scores {
		existing, err := p.Store.FindByID(ctx, p.ProjectID, id)
		if err != nil || existing == nil {
			continue
		}
		existing.PageRank = score
		if err := p.Store.Upsert(ctx, p.ProjectID, *existing); err != nil {
			runTotal.WithLabelValues("error").Inc()
			return stats, err
		}
	}

	stats.Duration = time.Since(start)
	runTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(stats.Duration.Seconds())
	logger.Info("pipeline: run complete", "files_reindexed", stats.FilesReindexed, "files_reused", stats.FilesReused, "edges_built", stats.EdgesBuilt, "duration", stats.Duration)
	return stats, nil
}

// parseFile decides whether fd's on-disk content has changed since the
// last index and either reuses the store's existing units or re-extracts.
func (p *Pipeline) parseFile(ctx context.Context, fd unit.FileDescriptor, force bool) (fileUnits, error) {
	if !force {
		var existing []unit.Unit
		err := p.Store.IterByFile(ctx, p.ProjectID, fd.Path, func(u unit.Unit) error {
			existing = append(existing, u)
			return nil
		})
		if err != nil {
			return fileUnits{}, err
		}
		for _, u := range existing {
			if u.IsFile() && u.FileHash == fd.ContentHash {
				return fileUnits{fd: fd, units: existing, reused: true}, nil
			}
		}
	}

	content, err := os.ReadFile(fd.Path)
	if err != nil {
		return fileUnits{}, apperr.Storage("reading "+fd.Path, err)
	}
	units, err := p.Extractor.Extract(ctx, fd, content)
	if err != nil {
		// Parse failures are non-fatal (spec.md §7): Extract already
		// falls back to a file-level-only unit on its own error path, so
		// surface this as a log, not a pipeline failure.
		p.Logger.Warn("pipeline: extraction failed, indexing file-level unit only", "file", fd.Path, "error", err)
	}
	return fileUnits{fd: fd, units: units}, nil
}

func (p *Pipeline) enrichFile(ctx context.Context, fu *fileUnits, stats *Stats, mu *sync.Mutex) {
	for i := range fu.units {
		u := &fu.units[i]
		if u.IsFile() || len(u.Content) < unit.MinContentChars {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := p.Enricher.Enrich(ctx, u, ctx.Done()); err != nil {
			p.Logger.Warn("pipeline: enrichment failed, indexing without summary", "unit", u.ID, "error", err)
			continue
		}
		mu.Lock()
		stats.UnitsEnriched++
		mu.Unlock()
	}
}

func (p *Pipeline) embedFile(ctx context.Context, fu *fileUnits) error {
	var targets []*unit.Unit
	for i := range fu.units {
		u := &fu.units[i]
		if u.IsFile() || len(u.Content) < unit.MinContentChars {
			continue
		}
		targets = append(targets, u)
	}
	if len(targets) == 0 {
		return nil
	}
	return p.Embedder.EmbedUnits(ctx, targets, nil)
}

// tombstoneRemovedFiles deletes every indexed unit whose file was not
// observed during this walk (spec.md §3, "Lifecycle": tombstoned together
// with children and incident edges when the file is deleted or no longer
// matches an ignore-adjusted inclusion rule).
func (p *Pipeline) tombstoneRemovedFiles(ctx context.Context, seenFiles map[string]bool) (int, error) {
	staleFiles := make(map[string]bool)
	err := p.Store.IterAll(ctx, p.ProjectID, func(u unit.Unit) error {
		if !seenFiles[u.FilePath] {
			staleFiles[u.FilePath] = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(staleFiles) == 0 {
		return 0, nil
	}

	var toDelete []string
	err = p.Store.IterAll(ctx, p.ProjectID, func(u unit.Unit) error {
		if staleFiles[u.FilePath] {
			toDelete = append(toDelete, u.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range toDelete {
		if err := p.Store.Delete(ctx, p.ProjectID, id); err != nil {
			return 0, err
		}
	}
	return len(staleFiles), nil
}

func countNonFile(units []unit.Unit) int {
	n := 0
	for _, u := range units {
		if !u.IsFile() {
			n++
		}
	}
	return n
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
