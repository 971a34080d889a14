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

import "github.com/claudemem/claudemem/internal/config"

// CostAccountant derives USD cost from token counts using the configured
// pricing table, for providers that do not return an explicit cost in
// their usage record (spec.md §4.1).
type CostAccountant struct {
	table config.PricingTable
}

// NewCostAccountant builds an accountant over the given pricing table.
func NewCostAccountant(table config.PricingTable) *CostAccountant {
	if table == nil {
		table = config.DefaultPricingTable()
	}
	return &CostAccountant{table: table}
}

// EmbedCost derives cost for an embedding call from prompt tokens.
func (c *CostAccountant) EmbedCost(modelID string, promptTokens int) float64 {
	price := c.table.PriceFor(modelID)
	return float64(promptTokens) / 1_000_000 * price.PromptPerMillion
}

// ChatCost derives cost for a chat call from prompt and completion tokens.
func (c *CostAccountant) ChatCost(modelID string, promptTokens, completionTokens int) float64 {
	price := c.table.PriceFor(modelID)
	return float64(promptTokens)/1_000_000*price.PromptPerMillion +
		float64(completionTokens)/1_000_000*price.CompletionPerMillion
}
