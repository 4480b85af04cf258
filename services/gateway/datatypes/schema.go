// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data model shared by the gateway:
// the schema type registry, filter predicates, and attachment references.
//
// The registry is loaded once at startup (from a YAML schema file or the
// compiled-in starter schema) and is immutable afterwards; every request
// handler reads from the same instance. Which operators are legal for which
// column kind is expressed as explicit runtime lookup tables rather than
// type-level inference, so a bad (column, operator) pair is rejected at
// request time with the offending pair attached.
package datatypes

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

// =============================================================================
// Column Kinds
// =============================================================================

// ColumnKind classifies a column and determines its valid filter operators,
// aggregation operators, and insert/update value shapes.
type ColumnKind string

const (
	KindText         ColumnKind = "text"
	KindNumber       ColumnKind = "number"
	KindDate         ColumnKind = "date"
	KindCheckbox     ColumnKind = "checkbox"
	KindSingleSelect ColumnKind = "singleSelect"
	KindMultiSelect  ColumnKind = "multiSelect"
	KindAttachment   ColumnKind = "attachment"
	KindLink         ColumnKind = "link"
)

// columnKinds is the set of kinds the registry accepts at load time.
var columnKinds = map[ColumnKind]struct{}{
	KindText:         {},
	KindNumber:       {},
	KindDate:         {},
	KindCheckbox:     {},
	KindSingleSelect: {},
	KindMultiSelect:  {},
	KindAttachment:   {},
	KindLink:         {},
}

// filterOperators maps each column kind to its legal filter operator set.
// A predicate referencing an operator outside its column's set is rejected
// before the external store is contacted.
var filterOperators = map[ColumnKind]map[string]struct{}{
	KindText: {
		"=": {}, "!=": {}, "contains": {}, "startsWith": {}, "endsWith": {},
		"isEmpty": {}, "isNotEmpty": {},
	},
	KindNumber: {
		"=": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	},
	KindDate: {
		"=": {}, "!=": {}, "<": {}, ">": {},
	},
	KindCheckbox: {
		"=": {},
	},
	KindSingleSelect: {
		"=": {}, "!=": {}, "anyOf": {}, "noneOf": {},
	},
	KindMultiSelect: {
		"=": {}, "hasAnyOf": {}, "hasAllOf": {}, "hasNoneOf": {},
	},
	KindAttachment: {
		"isEmpty": {}, "isNotEmpty": {},
	},
	KindLink: {
		"=": {}, "isEmpty": {}, "isNotEmpty": {},
	},
}

// aggregateOperators maps each column kind to its legal aggregation
// operators. Every kind supports count; numeric and date kinds add the
// order/arithmetic aggregates the vendor store exposes.
var aggregateOperators = map[ColumnKind]map[string]struct{}{
	KindText:         {"count": {}},
	KindNumber:       {"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}},
	KindDate:         {"count": {}, "min": {}, "max": {}},
	KindCheckbox:     {"count": {}},
	KindSingleSelect: {"count": {}},
	KindMultiSelect:  {"count": {}},
	KindAttachment:   {"count": {}},
	KindLink:         {"count": {}},
}

// AllowsFilter reports whether op is a legal filter operator for the kind.
func (k ColumnKind) AllowsFilter(op string) bool {
	_, ok := filterOperators[k][op]
	return ok
}

// AllowsAggregate reports whether op is a legal aggregation operator for the
// kind.
func (k ColumnKind) AllowsAggregate(op string) bool {
	_, ok := aggregateOperators[k][op]
	return ok
}

// FilterOperators returns the sorted operator set for the kind. Used for
// error messages and the schema CLI.
func (k ColumnKind) FilterOperators() []string {
	ops := make([]string, 0, len(filterOperators[k]))
	for op := range filterOperators[k] {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// =============================================================================
// Schema Descriptors
// =============================================================================

// ColumnDef describes one column of a table.
type ColumnDef struct {
	// Kind determines operators and value shapes for the column.
	Kind ColumnKind `yaml:"kind"`

	// Required columns must be present on insert unless Generated.
	Required bool `yaml:"required,omitempty"`

	// Generated columns are produced by the store (ids, created timestamps)
	// and may never be written by the caller.
	Generated bool `yaml:"generated,omitempty"`

	// Options constrains singleSelect/multiSelect values when non-empty.
	Options []string `yaml:"options,omitempty"`
}

// HasOption reports whether v is one of the declared select options.
// A column with no declared options accepts any value.
func (c ColumnDef) HasOption(v string) bool {
	if len(c.Options) == 0 {
		return true
	}
	for _, o := range c.Options {
		if o == v {
			return true
		}
	}
	return false
}

// TableSchema is one table's column map.
type TableSchema struct {
	Name    string               `yaml:"name"`
	Columns map[string]ColumnDef `yaml:"columns"`
}

// Column returns the definition for name, or an error naming the table and
// column. Column access outside the schema is a validation error, never a
// runtime query.
func (t TableSchema) Column(name string) (ColumnDef, error) {
	col, ok := t.Columns[name]
	if !ok {
		return ColumnDef{}, apperr.Validation(name, "", nil,
			"column %q is not declared on table %q", name, t.Name)
	}
	return col, nil
}

// ColumnNames returns the declared column names in sorted order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the static table → schema mapping. It is total over the
// configured schema, never mutated after construction, and shared read-only
// by all request handlers.
type Registry struct {
	tables map[string]TableSchema
}

// NewRegistry builds a registry from table schemas, rejecting duplicate
// tables, unknown column kinds, and required+generated conflicts at load
// time so that nothing invalid survives to request time.
func NewRegistry(tables ...TableSchema) (*Registry, error) {
	reg := &Registry{tables: make(map[string]TableSchema, len(tables))}
	for _, t := range tables {
		if t.Name == "" {
			return nil, fmt.Errorf("schema: table with empty name")
		}
		if _, dup := reg.tables[t.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("schema: table %q has no columns", t.Name)
		}
		for name, col := range t.Columns {
			if _, ok := columnKinds[col.Kind]; !ok {
				return nil, fmt.Errorf("schema: table %q column %q has unknown kind %q", t.Name, name, col.Kind)
			}
			if col.Required && col.Generated {
				return nil, fmt.Errorf("schema: table %q column %q cannot be both required and generated", t.Name, name)
			}
			if len(col.Options) > 0 && col.Kind != KindSingleSelect && col.Kind != KindMultiSelect {
				return nil, fmt.Errorf("schema: table %q column %q declares options but is kind %q", t.Name, name, col.Kind)
			}
		}
		reg.tables[t.Name] = t
	}
	return reg, nil
}

// schemaFile is the YAML document shape for LoadRegistry.
type schemaFile struct {
	Tables []TableSchema `yaml:"tables"`
}

// LoadRegistry reads a YAML schema file and builds a registry from it.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the schema file: %w", err)
	}
	var doc schemaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse the schema file %s: %w", path, err)
	}
	return NewRegistry(doc.Tables...)
}

// Table returns the schema for name or an unknown_table error.
func (r *Registry) Table(name string) (TableSchema, error) {
	t, ok := r.tables[name]
	if !ok {
		return TableSchema{}, apperr.UnknownTable(name)
	}
	return t, nil
}

// Tables returns the declared table names in sorted order.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the compiled-in starter schema: a tasks table with
// one column of every kind, and a projects table it links to.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(
		TableSchema{
			Name: "tasks",
			Columns: map[string]ColumnDef{
				"id":          {Kind: KindNumber, Generated: true},
				"createdTime": {Kind: KindDate, Generated: true},
				"title":       {Kind: KindText, Required: true},
				"titleSlug":   {Kind: KindText},
				"notes":       {Kind: KindText},
				"status":      {Kind: KindSingleSelect, Options: []string{"todo", "doing", "done"}},
				"priority":    {Kind: KindNumber},
				"due":         {Kind: KindDate},
				"archived":    {Kind: KindCheckbox},
				"tags":        {Kind: KindMultiSelect},
				"project":     {Kind: KindLink},
				"attachments": {Kind: KindAttachment},
			},
		},
		TableSchema{
			Name: "projects",
			Columns: map[string]ColumnDef{
				"id":    {Kind: KindNumber, Generated: true},
				"name":  {Kind: KindText, Required: true},
				"color": {Kind: KindSingleSelect, Options: []string{"red", "green", "blue", "gray"}},
			},
		},
	)
	if err != nil {
		// The starter schema is a compile-time constant; failing to build it
		// is a programming error.
		panic(err)
	}
	return reg
}
