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
	"errors"
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

func TestUnitLanguage_EmptyStringMeansNoFilter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  unit.Language
	}{
		{"empty", "", ""},
		{"go", "go", unit.Language("go")},
		{"python", "python", unit.Language("python")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unitLanguage(tt.input); got != tt.want {
				t.Errorf("unitLanguage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnitType_EmptyStringMeansNoFilter(t *testing.T) {
	if got := unitType(""); got != "" {
		t.Errorf("unitType(\"\") = %q, want empty", got)
	}
	if got := unitType("function"); got != unit.UnitType("function") {
		t.Errorf("unitType(\"function\") = %q, want %q", got, unit.UnitType("function"))
	}
}

func TestUsageError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("missing positional argument")
	err := usageError{err: cause}

	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through usageError to the wrapped cause")
	}
	if !isUsageError(err) {
		t.Error("isUsageError(usageError{...}) = false, want true")
	}
	if isUsageError(cause) {
		t.Error("isUsageError(plain error) = true, want false")
	}
}

func TestResolveProjectRoot_FallsBackToWorkingDirectory(t *testing.T) {
	orig := projectPath
	defer func() { projectPath = orig }()

	projectPath = ""
	root, err := resolveProjectRoot()
	if err != nil {
		t.Fatalf("resolveProjectRoot: %v", err)
	}
	if root == "" {
		t.Error("expected a non-empty working directory")
	}

	projectPath = "/explicit/path"
	root, err = resolveProjectRoot()
	if err != nil {
		t.Fatalf("resolveProjectRoot: %v", err)
	}
	if root != "/explicit/path" {
		t.Errorf("resolveProjectRoot() = %q, want the explicit --project value", root)
	}
}
