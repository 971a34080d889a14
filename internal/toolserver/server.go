// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolserver implements the line-delimited JSON tool protocol of
// spec.md §4.11/§6: one request object per line, one response object per
// line, each response echoing the request's correlation id. This is the
// backing implementation for the CLI's mcp and autocomplete-server
// subcommands (SPEC_FULL.md §6). Unlike the teacher's Gin-based HTTP API
// (services/trace/routes.go), the protocol here is a raw stdin/stdout
// stream — the simplest possible framing, with no third-party transport
// library, since no example in the pack wraps line-JSON decoding in one
// (see DESIGN.md).
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/go-playground/validator/v10"

	"github.com/claudemem/claudemem/internal/analysis"
	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/retrieve"
	"github.com/claudemem/claudemem/internal/store"
)

var (
	toolCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudemem",
		Subsystem: "toolserver",
		Name:      "call_total",
		Help:      "Tool calls by tool name and outcome: ok, error",
	}, []string{"tool", "outcome"})

	toolCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "claudemem",
		Subsystem: "toolserver",
		Name:      "call_latency_seconds",
		Help:      "Latency of tool dispatch calls",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"tool"})
)

// ToolNames is the fixed set of tools exposed by the server (spec.md
// §4.11).
var ToolNames = []string{
	"search", "map", "callers", "callees", "impact",
	"dead_code", "test_gaps", "index_status", "clear",
}

// Request is one line of the protocol's input stream.
type Request struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// ToolError is the structured error shape of spec.md §6's tool protocol.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is one line of the protocol's output stream. Exactly one of
// Result or Error is populated.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// Server dispatches protocol requests against a single project's
// retriever, analyzer, and store.
type Server struct {
	Retriever *retrieve.Retriever
	Analyzer  *analysis.Analyzer
	Store     *store.Store
	ProjectID string
	// Embed, if set, is used by the map tool to re-rank by semantic
	// similarity to a query. nil disables query-filtered map results.
	Embed  analysis.EmbedFunc
	Logger *slog.Logger

	validate *validator.Validate
	handlers map[string]func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// New builds a Server wired against the given components.
func New(retriever *retrieve.Retriever, analyzer *analysis.Analyzer, s *store.Store, projectID string, embed analysis.EmbedFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		Retriever: retriever,
		Analyzer:  analyzer,
		Store:     s,
		ProjectID: projectID,
		Embed:     embed,
		Logger:    logger,
		validate:  validator.New(),
	}
	srv.handlers = map[string]func(ctx context.Context, args json.RawMessage) (interface{}, error){
		"search":       srv.handleSearch,
		"map":          srv.handleMap,
		"callers":      srv.handleCallers,
		"callees":      srv.handleCallees,
		"impact":       srv.handleImpact,
		"dead_code":    srv.handleDeadCode,
		"test_gaps":    srv.handleTestGaps,
		"index_status": srv.handleIndexStatus,
		"clear":        srv.handleClear,
	}
	return srv
}

// Run reads one JSON request per line from in until EOF or ctx is
// canceled, dispatches it, and writes one JSON response per line to out.
// A malformed line produces an error response rather than terminating the
// stream, matching spec.md §7's non-fatal treatment of per-request
// failures.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatchLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) dispatchLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Error: &ToolError{Kind: "invalid_request", Message: err.Error()}}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	handler, ok := s.handlers[req.Tool]
	if !ok {
		toolCallTotal.WithLabelValues(req.Tool, "error").Inc()
		return Response{ID: req.ID, Error: &ToolError{Kind: "unknown_tool", Message: "no tool named " + req.Tool}}
	}

	start := time.Now()
	result, err := handler(ctx, req.Args)
	toolCallLatency.WithLabelValues(req.Tool).Observe(time.Since(start).Seconds())
	if err != nil {
		toolCallTotal.WithLabelValues(req.Tool, "error").Inc()
		return Response{ID: req.ID, Error: toToolError(err)}
	}
	toolCallTotal.WithLabelValues(req.Tool, "ok").Inc()
	return Response{ID: req.ID, Result: result}
}

// invalidArgsError reports a request argument that failed JSON decoding or
// validator.v10 validation, kept distinct from the apperr taxonomy since it
// is a protocol-level client error, not one of spec.md §7's error kinds.
type invalidArgsError struct{ err error }

func (e invalidArgsError) Error() string { return e.err.Error() }
func (e invalidArgsError) Unwrap() error { return e.err }

// decodeArgs unmarshals and validates a tool's argument struct.
func (s *Server) decodeArgs(args json.RawMessage, dst interface{}) error {
	if len(args) > 0 {
		if err := json.Unmarshal(args, dst); err != nil {
			return invalidArgsError{err}
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		return invalidArgsError{err}
	}
	return nil
}

func toToolError(err error) *ToolError {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return &ToolError{Kind: string(ae.Kind), Message: ae.Error()}
	}
	var iae invalidArgsError
	if errors.As(err, &iae) {
		return &ToolError{Kind: "invalid_args", Message: iae.Error()}
	}
	var symErr analysis.ErrSymbolNotFound
	if errors.As(err, &symErr) {
		return &ToolError{Kind: "not_found", Message: symErr.Error()}
	}
	return &ToolError{Kind: "internal", Message: err.Error()}
}
