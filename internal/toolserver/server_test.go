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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/claudemem/claudemem/internal/analysis"
	"github.com/claudemem/claudemem/internal/retrieve"
	"github.com/claudemem/claudemem/internal/store"
	"github.com/claudemem/claudemem/internal/unit"
)

const testProject = "proj"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := store.New(db, nil)

	ctx := context.Background()
	unitA := unit.Unit{ID: "a", UnitType: unit.TypeFunction, Language: unit.LangGo, Name: "Handle", FilePath: "a.go", Content: "func Handle() {}"}
	unitB := unit.Unit{ID: "b", UnitType: unit.TypeFunction, Language: unit.LangGo, Name: "Helper", FilePath: "a.go", Content: "func Helper() {}"}
	if err := s.Upsert(ctx, testProject, unitA); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, testProject, unitB); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertEdges(ctx, testProject, []unit.Edge{{Source: "a", Target: "b", Type: unit.EdgeCalls, Occurrence: 1}}); err != nil {
		t.Fatalf("UpsertEdges: %v", err)
	}

	r := retrieve.New(s, testProject, nil, nil, nil)
	a := analysis.New(s, testProject, nil, nil)
	return New(r, a, s, testProject, nil, nil)
}

func runLine(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	reqBytes, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(append(reqBytes, '\n')), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestRun_SearchEchoesCorrelationID(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{ID: "req-1", Tool: "search", Args: json.RawMessage(`{"query":"Handle"}`)})
	if resp.ID != "req-1" {
		t.Errorf("expected id echoed, got %q", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("expected no error, got %+v", resp.Error)
	}
}

func TestRun_MissingIDGetsGeneratedCorrelationID(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{Tool: "index_status"})
	if resp.ID == "" {
		t.Fatal("expected a generated correlation id, got empty string")
	}
}

func TestRun_MissingRequiredArgReturnsInvalidArgsError(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{ID: "req-2", Tool: "callers", Args: json.RawMessage(`{}`)})
	if resp.Error == nil || resp.Error.Kind != "invalid_args" {
		t.Fatalf("expected invalid_args error, got %+v", resp.Error)
	}
}

func TestRun_UnknownToolReturnsUnknownToolError(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{ID: "req-3", Tool: "nonexistent"})
	if resp.Error == nil || resp.Error.Kind != "unknown_tool" {
		t.Fatalf("expected unknown_tool error, got %+v", resp.Error)
	}
}

func TestRun_CallersUnresolvedSymbolReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{ID: "req-4", Tool: "callers", Args: json.RawMessage(`{"symbol":"Nonexistent"}`)})
	if resp.Error == nil || resp.Error.Kind != "not_found" {
		t.Fatalf("expected not_found error, got %+v", resp.Error)
	}
}

func TestRun_IndexStatusReportsCounts(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, Request{ID: "req-5", Tool: "index_status"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var result indexStatusResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.UnitCount != 2 {
		t.Errorf("expected 2 units, got %d", result.UnitCount)
	}
}

func TestRun_MultipleLinesProduceOneResponsePerLine(t *testing.T) {
	srv := newTestServer(t)
	var in bytes.Buffer
	for i := 0; i < 3; i++ {
		in.WriteString(`{"id":"x","tool":"index_status"}`)
		in.WriteByte('\n')
	}
	var out bytes.Buffer
	if err := srv.Run(context.Background(), &in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 response lines, got %d", len(lines))
	}
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %+v", resp.Error)
		}
	}
}
