// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"

	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/unit"
)

// Enricher produces the base summary for a unit and, when a strategy is
// configured, refines it (spec.md §4.4).
type Enricher struct {
	Chat     provider.ChatAdapter
	Strategy QualityStrategy // nil disables refinement; base summary is accepted as-is
	Engine   *RefinementEngine
}

// New builds an Enricher. If strategy is nil, Enrich only runs the base
// summarization call.
func New(chat provider.ChatAdapter, strategy QualityStrategy) *Enricher {
	e := &Enricher{Chat: chat, Strategy: strategy}
	if strategy != nil {
		e.Engine = NewRefinementEngine(strategy, chat)
	}
	return e
}

// Enrich writes u.Summary in place and returns the refinement result. With
// no strategy configured, the base summary is accepted as a success with 0
// rounds and score 1. cancel is only consulted when refinement runs.
func (e *Enricher) Enrich(ctx context.Context, u *unit.Unit, cancel <-chan struct{}) (Result, error) {
	userPrompt, err := renderBasePrompt(*u)
	if err != nil {
		return Result{}, err
	}
	base, err := e.Chat.Chat(ctx, baseSystemPrompt, userPrompt, provider.ChatOptions{MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		return Result{}, err
	}

	if e.Engine == nil {
		u.Summary = base.Text
		return Result{FinalSummary: base.Text, Success: true, Rounds: 0, Score: refinementScore(0)}, nil
	}

	result, err := e.Engine.Refine(ctx, *u, base.Text, cancel)
	if err != nil {
		return Result{}, err
	}
	u.Summary = result.FinalSummary
	return result, nil
}
