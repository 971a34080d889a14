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

import "github.com/claudemem/claudemem/internal/unit"

// nodeTypeTable maps a tree-sitter node type to the code-unit type it
// produces, per language. This is the table spec.md §4.3 describes: "A
// node's unit type is looked up in a table."
var nodeTypeTable = map[unit.Language]map[string]unit.UnitType{
	unit.LangTypeScript: {
		"function_declaration":  unit.TypeFunction,
		"class_declaration":     unit.TypeClass,
		"abstract_class_declaration": unit.TypeClass,
		"interface_declaration": unit.TypeInterface,
		"method_definition":     unit.TypeMethod,
		"enum_declaration":      unit.TypeEnum,
		"type_alias_declaration": unit.TypeType,
	},
	unit.LangJavaScript: {
		"function_declaration": unit.TypeFunction,
		"class_declaration":    unit.TypeClass,
		"method_definition":    unit.TypeMethod,
	},
	unit.LangPython: {
		"function_definition": unit.TypeFunction, // refined to method when nested in a class
		"class_definition":    unit.TypeClass,
	},
	unit.LangGo: {
		"function_declaration": unit.TypeFunction,
		"method_declaration":   unit.TypeMethod,
		"type_spec":            unit.TypeType, // refined by inspecting its first structural child
	},
	unit.LangRust: {
		"function_item":  unit.TypeFunction,
		"struct_item":    unit.TypeClass,
		"trait_item":     unit.TypeInterface,
		"impl_item":      unit.TypeClass,
		"enum_item":      unit.TypeEnum,
	},
	unit.LangC: {
		"function_definition": unit.TypeFunction,
		"struct_specifier":    unit.TypeClass,
	},
	unit.LangCPP: {
		"function_definition": unit.TypeFunction,
		"class_specifier":     unit.TypeClass,
		"struct_specifier":    unit.TypeClass,
	},
	unit.LangJava: {
		"class_declaration":     unit.TypeClass,
		"interface_declaration": unit.TypeInterface,
		"enum_declaration":      unit.TypeEnum,
		"method_declaration":    unit.TypeMethod,
	},
}

// containerNodeTypes are containers that are not themselves units but whose
// descendants continue to use the current parent/depth (spec.md §4.3:
// "module, program, block, class body, Go type_declaration holder").
var containerNodeTypes = map[string]bool{
	"module": true, "program": true, "block": true,
	"class_body": true, "interface_body": true, "statement_block": true,
	"type_declaration": true, // Go's holder for one or more type_spec children
	"source_file": true, "declaration_list": true, "field_declaration_list": true,
	"compound_statement": true, "impl_item_body": true,
}

// UnitTypeFor looks up the table entry for a node type within lang.
func UnitTypeFor(lang unit.Language, nodeType string) (unit.UnitType, bool) {
	table, ok := nodeTypeTable[lang]
	if !ok {
		return "", false
	}
	ut, ok := table[nodeType]
	return ut, ok
}
