// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"testing"

	"github.com/claudemem/claudemem/internal/unit"
)

const goTestSource = `package sample

import "fmt"

type Greeter struct {
	Name string
}

func (g *Greeter) Greet() string {
	return fmt.Sprintf("hello %s", g.Name)
}

func NewGreeter(name string) *Greeter {
	return &Greeter{Name: name}
}

func unexportedHelper() {
	fmt.Println("helper")
}
`

const pythonTestSource = `class User:
    def validate(self):
        return bool(self.name)

    def _private(self):
        return None

def top_level():
    pass
`

func unitsByName(units []unit.Unit) map[string]unit.Unit {
	m := make(map[string]unit.Unit, len(units))
	for _, u := range units {
		m[u.Name] = u
	}
	return m
}

func TestExtract_Go_ProducesFileAndMembers(t *testing.T) {
	e := New()
	units, err := e.Extract(context.Background(), unit.FileDescriptor{
		Path:     "sample.go",
		Language: unit.LangGo,
	}, []byte(goTestSource))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byName := unitsByName(units)

	file, ok := byName["sample.go"]
	if !ok || file.UnitType != unit.TypeFile {
		t.Fatalf("expected a file-level unit, got %+v", byName)
	}

	greeter, ok := byName["Greeter"]
	if !ok {
		t.Fatalf("expected a Greeter type unit, got %+v", byName)
	}
	if greeter.UnitType != unit.TypeClass {
		t.Errorf("expected Greeter type_spec to refine to class, got %s", greeter.UnitType)
	}
	if greeter.ParentID != file.ID {
		t.Errorf("expected Greeter's parent to be the file unit")
	}

	method, ok := byName["Greet"]
	if !ok || method.UnitType != unit.TypeMethod {
		t.Fatalf("expected a Greet method unit, got %+v", byName)
	}

	ctor, ok := byName["NewGreeter"]
	if !ok || ctor.UnitType != unit.TypeFunction {
		t.Fatalf("expected a NewGreeter function unit, got %+v", byName)
	}
	if !ctor.AST.Exported {
		t.Errorf("expected NewGreeter to be exported")
	}

	helper, ok := byName["unexportedHelper"]
	if !ok {
		t.Fatalf("expected unexportedHelper unit, got %+v", byName)
	}
	if helper.AST.Exported {
		t.Errorf("expected unexportedHelper to not be exported")
	}
}

func TestExtract_Python_RefinesMethodsByAncestor(t *testing.T) {
	e := New()
	units, err := e.Extract(context.Background(), unit.FileDescriptor{
		Path:     "sample.py",
		Language: unit.LangPython,
	}, []byte(pythonTestSource))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byName := unitsByName(units)

	validate, ok := byName["validate"]
	if !ok {
		t.Fatalf("expected a validate unit, got %+v", byName)
	}
	if validate.UnitType != unit.TypeMethod {
		t.Errorf("expected validate nested in a class to refine to method, got %s", validate.UnitType)
	}

	private, ok := byName["_private"]
	if !ok {
		t.Fatalf("expected a _private unit, got %+v", byName)
	}
	if private.AST.Exported {
		t.Errorf("expected _private to not be exported")
	}

	topLevel, ok := byName["top_level"]
	if !ok {
		t.Fatalf("expected a top_level unit, got %+v", byName)
	}
	if topLevel.UnitType != unit.TypeFunction {
		t.Errorf("expected top_level at module scope to stay a function, got %s", topLevel.UnitType)
	}
}

func TestExtract_UnsupportedLanguage_ReturnsFileUnitOnly(t *testing.T) {
	e := New()
	units, err := e.Extract(context.Background(), unit.FileDescriptor{
		Path:     "sample.rb",
		Language: unit.Language("ruby"),
	}, []byte("def foo; end"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 || units[0].UnitType != unit.TypeFile {
		t.Fatalf("expected exactly one file-level unit, got %+v", units)
	}
}

func TestExtract_CollectsCallReferences(t *testing.T) {
	e := New()
	units, err := e.Extract(context.Background(), unit.FileDescriptor{
		Path:     "sample.go",
		Language: unit.LangGo,
	}, []byte(goTestSource))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byName := unitsByName(units)
	method := byName["Greet"]
	found := false
	for _, ref := range method.AST.ReferencedSymbols {
		if ref == "Sprintf" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Greet to reference Sprintf, got %v", method.AST.ReferencedSymbols)
	}
}
