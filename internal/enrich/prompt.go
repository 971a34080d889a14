// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich implements the enrichment pipeline of spec.md §4.4: a base
// LLM summarization path and an optional iterative refinement loop that
// trains a unit's summary against a pluggable retrieval-quality oracle.
package enrich

import (
	"bytes"
	"text/template"

	"github.com/claudemem/claudemem/internal/unit"
)

// baseSystemPrompt instructs the model to describe intent, not mechanics.
const baseSystemPrompt = `You summarize source code units for a code search index. Describe what the unit is for and when a developer would reach for it. Do not restate the code line by line. One to three sentences.`

// baseUserTemplate renders the initial summarization request.
var baseUserTemplate = template.Must(template.New("base").Parse(
	`Unit: {{.Name}} ({{.UnitType}})
File: {{.FilePath}}:{{.StartLine}}-{{.EndLine}}
Signature: {{.Signature}}

Code:
{{.Content}}

Write the summary now.`))

// revisionSystemPrompt frames a refinement round: the model sees its own
// previous attempt and the oracle's feedback (spec.md §4.4, "each
// subsequent round").
const revisionSystemPrompt = `You previously summarized a code unit for a search index. The summary did not rank well against reference queries. Revise it using the feedback given. Keep it to one to three sentences. Describe intent, not mechanics.`

var revisionUserTemplate = template.Must(template.New("revision").Parse(
	`Unit: {{.Name}} ({{.UnitType}})
Signature: {{.Signature}}

Code:
{{.Content}}

Previous summary:
{{.PreviousSummary}}

Feedback:
{{.Feedback}}

Write the revised summary now.`))

func renderBasePrompt(u unit.Unit) (string, error) {
	var buf bytes.Buffer
	if err := baseUserTemplate.Execute(&buf, u); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type revisionData struct {
	unit.Unit
	PreviousSummary string
	Feedback        string
}

func renderRevisionPrompt(u unit.Unit, previousSummary, feedback string) (string, error) {
	var buf bytes.Buffer
	err := revisionUserTemplate.Execute(&buf, revisionData{Unit: u, PreviousSummary: previousSummary, Feedback: feedback})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
