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
	"math"
	"time"

	"github.com/claudemem/claudemem/internal/provider"
	"github.com/claudemem/claudemem/internal/unit"
)

// DefaultMaxRounds is spec.md §4.4's default refinement ceiling.
const DefaultMaxRounds = 3

// Attempt records one refinement round, kept for observability (spec.md
// §4.4: "Track every attempt: round number, summary text, test result,
// feedback string, duration").
type Attempt struct {
	Round    int
	Summary  string
	Result   QualityResult
	Feedback string
	Duration time.Duration
}

// ProgressFunc reports each completed attempt.
type ProgressFunc func(Attempt)

// Result is the outcome of a full refinement run.
type Result struct {
	FinalSummary string
	Success      bool
	Rounds       int // number of rounds actually run, 0 if accepted at round 0
	Score        float64
	Attempts     []Attempt
}

// RefinementEngine drives the round loop of spec.md §4.4 against a
// QualityStrategy, revising the summary through the chat adapter between
// rounds.
type RefinementEngine struct {
	MaxRounds int
	Strategy  QualityStrategy
	Chat      provider.ChatAdapter
	Progress  ProgressFunc
}

// NewRefinementEngine builds an engine with the default round ceiling.
func NewRefinementEngine(strategy QualityStrategy, chat provider.ChatAdapter) *RefinementEngine {
	return &RefinementEngine{MaxRounds: DefaultMaxRounds, Strategy: strategy, Chat: chat}
}

// Refine runs the round loop starting from initialSummary. cancel is
// checked before each round; on cancellation the best summary seen so far
// is returned with Success=false (spec.md §4.4, "Cancellation").
func (e *RefinementEngine) Refine(ctx context.Context, u unit.Unit, initialSummary string, cancel <-chan struct{}) (Result, error) {
	summary := initialSummary
	var attempts []Attempt
	best := Attempt{Round: 0, Summary: initialSummary}
	bestIsSet := false

	for round := 0; round <= e.MaxRounds; round++ {
		select {
		case <-cancel:
			return e.finish(best, attempts, false, len(attempts)), nil
		case <-ctx.Done():
			return e.finish(best, attempts, false, len(attempts)), ctx.Err()
		default:
		}

		start := time.Now()
		result, err := e.Strategy.TestQuality(ctx, summary)
		if err != nil {
			return Result{}, err
		}
		feedback := ""
		if !e.Strategy.IsSuccess(result) {
			feedback = e.Strategy.GenerateFeedback(result)
		}
		attempt := Attempt{Round: round, Summary: summary, Result: result, Feedback: feedback, Duration: time.Since(start)}
		attempts = append(attempts, attempt)
		if e.Progress != nil {
			e.Progress(attempt)
		}

		if !bestIsSet || result.Score > best.Result.Score {
			best = attempt
			bestIsSet = true
		}

		if e.Strategy.IsSuccess(result) {
			return e.finish(best, attempts, true, round), nil
		}
		if round == e.MaxRounds {
			break
		}

		revised, err := e.revise(ctx, u, summary, feedback)
		if err != nil {
			return Result{}, err
		}
		summary = revised
	}

	return e.finish(best, attempts, false, len(attempts)-1), nil
}

func (e *RefinementEngine) revise(ctx context.Context, u unit.Unit, previousSummary, feedback string) (string, error) {
	userPrompt, err := renderRevisionPrompt(u, previousSummary, feedback)
	if err != nil {
		return "", err
	}
	result, err := e.Chat.Chat(ctx, revisionSystemPrompt, userPrompt, provider.ChatOptions{MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (e *RefinementEngine) finish(best Attempt, attempts []Attempt, success bool, rounds int) Result {
	if rounds < 0 {
		rounds = 0
	}
	return Result{
		FinalSummary: best.Summary,
		Success:      success,
		Rounds:       rounds,
		Score:        refinementScore(rounds),
		Attempts:     attempts,
	}
}

// refinementScore implements spec.md §4.4: 1/log2(rounds+2).
func refinementScore(rounds int) float64 {
	return 1.0 / math.Log2(float64(rounds)+2)
}
