// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/claudemem/claudemem/internal/apperr"
)

// httpEmbedAdapter is a remote-batched embed adapter over a JSON HTTP API.
// It is the concrete shape shared by Voyage, the bare OpenRouter embeddings
// endpoint, and Ollama's /api/embed, modeled directly on the teacher's
// routing/embedder.go Ollama HTTP client (same request/response envelope
// idiom, same http.Client reuse).
type httpEmbedAdapter struct {
	url          string
	apiKey       string
	modelName    string
	modelID      string
	batchSize    int
	concurrency  int
	buildRequest func(texts []string, modelName string) (method string, body []byte, err error)
	parseResponse func(body []byte) ([][]float32, error)

	client *http.Client
	logger *slog.Logger
	acct   *CostAccountant

	mu        sync.Mutex
	dimension int
}

// NewVoyageEmbedAdapter builds the EmbedAdapter for "voyage-code-3".
func NewVoyageEmbedAdapter(apiKey string, acct *CostAccountant, logger *slog.Logger) (EmbedAdapter, error) {
	if apiKey == "" {
		return nil, apperr.Configuration("VOYAGE_API_KEY required for voyage-code-3", nil)
	}
	return &httpEmbedAdapter{
		url:         "https://api.voyageai.com/v1/embeddings",
		apiKey:      apiKey,
		modelName:   "voyage-code-3",
		modelID:     "voyage-code-3",
		batchSize:   DefaultBatchSize,
		concurrency: DefaultBatchConcurrency,
		buildRequest: func(texts []string, model string) (string, []byte, error) {
			body, err := json.Marshal(map[string]any{"input": texts, "model": model})
			return http.MethodPost, body, err
		},
		parseResponse: func(body []byte) ([][]float32, error) {
			var resp struct {
				Data []struct {
					Embedding []float32 `json:"embedding"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, err
			}
			out := make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				out[i] = d.Embedding
			}
			return out, nil
		},
		client: &http.Client{Timeout: DefaultTimeout},
		logger: nonNilLogger(logger),
		acct:   acct,
	}, nil
}

// NewOpenRouterEmbedAdapter builds the EmbedAdapter for bare
// "openrouter/<model>" specs (e.g. "openrouter/qwen3-embedding-8b").
func NewOpenRouterEmbedAdapter(apiKey, modelName, baseURL string, acct *CostAccountant, logger *slog.Logger) (EmbedAdapter, error) {
	if apiKey == "" {
		return nil, apperr.Configuration("OPENROUTER_API_KEY required for model openrouter/"+modelName, nil)
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &httpEmbedAdapter{
		url:         baseURL + "/embeddings",
		apiKey:      apiKey,
		modelName:   modelName,
		modelID:     "openrouter/" + modelName,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultBatchConcurrency,
		buildRequest: func(texts []string, model string) (string, []byte, error) {
			body, err := json.Marshal(map[string]any{"input": texts, "model": model})
			return http.MethodPost, body, err
		},
		parseResponse: func(body []byte) ([][]float32, error) {
			var resp struct {
				Data []struct {
					Embedding []float32 `json:"embedding"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, err
			}
			out := make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				out[i] = d.Embedding
			}
			return out, nil
		},
		client: &http.Client{Timeout: DefaultTimeout},
		logger: nonNilLogger(logger),
		acct:   acct,
	}, nil
}

// NewOllamaEmbedAdapter builds the EmbedAdapter for "ollama/<model>",
// grounded directly on the teacher's ollamaEmbedReq/ollamaEmbedResp shape
// in routing/embedder.go.
func NewOllamaEmbedAdapter(serverURL, modelName string, acct *CostAccountant, logger *slog.Logger) EmbedAdapter {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	return &httpEmbedAdapter{
		url:         serverURL + "/api/embed",
		modelName:   modelName,
		modelID:     "ollama/" + modelName,
		batchSize:   1, // Ollama's local/CPU path processes one text at a time (spec.md §4.1)
		concurrency: DefaultLocalParallelism,
		buildRequest: func(texts []string, model string) (string, []byte, error) {
			body, err := json.Marshal(map[string]any{"model": model, "input": texts[0]})
			return http.MethodPost, body, err
		},
		parseResponse: func(body []byte) ([][]float32, error) {
			var resp struct {
				Embeddings [][]float32 `json:"embeddings"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, err
			}
			return resp.Embeddings, nil
		},
		client: &http.Client{Timeout: DefaultTimeout},
		logger: nonNilLogger(logger),
		acct:   acct,
	}
}

func nonNilLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func (a *httpEmbedAdapter) ModelID() string { return a.modelID }

func (a *httpEmbedAdapter) Dimension() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dimension
}

func (a *httpEmbedAdapter) setDimension(d int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dimension == 0 {
		a.dimension = d
	}
}

// Embed batches texts per a.batchSize, dispatches batch groups with bounded
// parallelism a.concurrency, and writes results into a pre-sized slice at
// the correct index so the ordering guarantee of spec.md §4.1/§5 holds
// regardless of which batch completes first. A failing batch is isolated:
// its texts resolve to nil vectors and are counted in EmbedResult.Skipped
// (spec.md §4.1, §7).
func (a *httpEmbedAdapter) Embed(ctx context.Context, texts []string, progress ProgressFunc) (EmbedResult, error) {
	if len(texts) == 0 {
		return EmbedResult{}, nil
	}

	batchSize := a.batchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = TruncateToTokenBudget(t, a.modelID)
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(truncated); start += batchSize {
		end := start + batchSize
		if end > len(truncated) {
			end = len(truncated)
		}
		batches = append(batches, batch{start: start, texts: truncated[start:end]})
	}

	vectors := make([][]float32, len(texts))
	var (
		mu           sync.Mutex
		skipped      int
		promptTokens int
		doneBatches  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			method, body, err := a.buildRequest(b.texts, a.modelName)
			if err != nil {
				return err
			}
			var vecs [][]float32
			callErr := Retry(gctx, func(ctx context.Context) error {
				req, err := http.NewRequestWithContext(ctx, method, a.url, bytes.NewReader(body))
				if err != nil {
					return err
				}
				req.Header.Set("Content-Type", "application/json")
				if a.apiKey != "" {
					req.Header.Set("Authorization", "Bearer "+a.apiKey)
				}
				resp, err := a.client.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				respBody, err := io.ReadAll(resp.Body)
				if err != nil {
					return err
				}
				if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
					return &AuthError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
				}
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return apperr.Transient(fmt.Sprintf("embed provider status %d", resp.StatusCode), nil)
				}
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("embed provider status %d: %s", resp.StatusCode, respBody)
				}
				v, err := a.parseResponse(respBody)
				if err != nil {
					return err
				}
				vecs = v
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if callErr != nil {
				a.logger.Warn("embed batch failed, skipping", "model", a.modelID, "batch_start", b.start, "error", callErr)
				skipped += len(b.texts)
				doneBatches++
				if progress != nil {
					progress(doneBatches, len(batches))
				}
				return nil // isolate: failing batch does not fail the overall call
			}
			for i, v := range vecs {
				if b.start+i >= len(vectors) {
					break
				}
				vectors[b.start+i] = v
				if len(v) > 0 {
					a.setDimension(len(v))
				}
				promptTokens += len(b.texts[i]) / CharsPerToken
			}
			doneBatches++
			if progress != nil {
				progress(doneBatches, len(batches))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EmbedResult{}, err
	}

	cost := 0.0
	if a.acct != nil {
		cost = a.acct.EmbedCost(a.modelID, promptTokens)
	}
	return EmbedResult{
		Vectors:      vectors,
		Dimension:    a.Dimension(),
		PromptTokens: promptTokens,
		CostUSD:      cost,
		Skipped:      skipped,
	}, nil
}

// LocalEmbedFunc is the process-local embedding capability the engine
// consumes for "local/<custom>" model specs. Per spec.md §1, the embedding
// and LLM providers themselves are out of scope — only this adapter
// contract is specified.
type LocalEmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// localEmbedAdapter wraps an injected LocalEmbedFunc, processing one text
// at a time per spec.md §4.1 ("Local/CPU embedders process one text at a
// time").
type localEmbedAdapter struct {
	fn        LocalEmbedFunc
	modelID   string
	mu        sync.Mutex
	dimension int
}

// NewLocalEmbedAdapter builds the EmbedAdapter for "local/<custom>" specs.
func NewLocalEmbedAdapter(modelID string, fn LocalEmbedFunc) EmbedAdapter {
	return &localEmbedAdapter{fn: fn, modelID: modelID}
}

func (a *localEmbedAdapter) ModelID() string { return a.modelID }
func (a *localEmbedAdapter) Dimension() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dimension
}

func (a *localEmbedAdapter) Embed(ctx context.Context, texts []string, progress ProgressFunc) (EmbedResult, error) {
	vectors := make([][]float32, len(texts))
	var skipped int
	for i, t := range texts {
		select {
		case <-ctx.Done():
			return EmbedResult{}, ctx.Err()
		default:
		}
		vs, err := a.fn(ctx, []string{t})
		if err != nil || len(vs) == 0 {
			skipped++
			if progress != nil {
				progress(i+1, len(texts))
			}
			continue
		}
		vectors[i] = vs[0]
		a.mu.Lock()
		if a.dimension == 0 {
			a.dimension = len(vs[0])
		}
		a.mu.Unlock()
		if progress != nil {
			progress(i+1, len(texts))
		}
	}
	return EmbedResult{Vectors: vectors, Dimension: a.Dimension(), Skipped: skipped}, nil
}
