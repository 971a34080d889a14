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
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/config"
)

var successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively configure the default embedding/chat providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

// providerChoice is one entry in the init wizard's provider select.
type providerChoice struct {
	label      string
	embedModel string
	chatModel  string
}

var providerChoices = []providerChoice{
	{"Ollama (local, no API key)", "ollama/nomic-embed-text", "ollama/llama3.2"},
	{"Anthropic (direct)", "voyage/voyage-code-3", "a/claude-sonnet-4-5"},
	{"Claude Code alias", "voyage/voyage-code-3", "cc/sonnet"},
	{"OpenRouter", "or/qwen/qwen3-embedding-8b", "or/openai/gpt-4o"},
}

func runInit() error {
	var choiceIdx int
	selectOpts := make([]huh.Option[int], len(providerChoices))
	for i, c := range providerChoices {
		selectOpts[i] = huh.NewOption(c.label, i)
	}

	var embedModel, chatModel string
	var writeProjectConfig bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Default provider").
				Options(selectOpts...).
				Value(&choiceIdx),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Embedding model override (blank to accept the provider default)").
				Value(&embedModel),
			huh.NewInput().
				Title("Chat model override (blank to accept the provider default)").
				Value(&chatModel),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Also write a project-local claudemem.json in this directory?").
				Value(&writeProjectConfig),
		),
	)
	if err := form.Run(); err != nil {
		return apperr.Configuration("init wizard canceled or failed", err)
	}

	chosen := providerChoices[choiceIdx]
	if embedModel == "" {
		embedModel = chosen.embedModel
	}
	if chatModel == "" {
		chatModel = chosen.chatModel
	}

	global := config.Global{
		DefaultProvider:   chosen.label,
		DefaultEmbedModel: embedModel,
		DefaultChatModel:  chatModel,
	}
	if err := config.SaveGlobal(global); err != nil {
		return err
	}
	path, _ := config.GlobalConfigPath()
	fmt.Println(successStyle.Render("Wrote global config: " + path))

	if writeProjectConfig {
		root, err := resolveProjectRoot()
		if err != nil {
			return apperr.Storage("resolving project root", err)
		}
		project := config.Project{
			EmbedModel:           embedModel,
			ChatModel:            chatModel,
			ContentHashAlgorithm: "sha256",
			VectorBackend:        "badger",
			Pipeline:             config.DefaultPipelineLimits(),
		}
		if err := config.SaveProject(root, project); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Wrote project config: " + config.ProjectConfigPath(root)))
	}
	return nil
}
