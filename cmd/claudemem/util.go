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

import "github.com/claudemem/claudemem/internal/unit"

// unitLanguage converts a CLI flag value to a unit.Language filter, leaving
// it empty (no filter) when the flag was not set.
func unitLanguage(s string) unit.Language {
	if s == "" {
		return ""
	}
	return unit.Language(s)
}

// unitType converts a CLI flag value to a unit.UnitType filter.
func unitType(s string) unit.UnitType {
	if s == "" {
		return ""
	}
	return unit.UnitType(s)
}
