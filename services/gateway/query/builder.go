// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query is the translation layer between validated procedure inputs
// and the external store client.
//
// Every build method checks its inputs against the schema registry and is
// all-or-nothing: a contract violation returns a validation_error carrying
// the offending column/operator/value and no query is ever partially built.
// Nothing in this package talks to the store.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

// Wildcard selects all declared columns of a table.
const Wildcard = "*"

// Order is one ordering term of a select.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Page is offset/limit pagination. Offset must be non-negative and Limit
// positive.
type Page struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit"`
}

// Builder builds store queries against a schema registry.
type Builder struct {
	reg *datatypes.Registry
}

// NewBuilder returns a Builder bound to the registry.
func NewBuilder(reg *datatypes.Registry) *Builder {
	return &Builder{reg: reg}
}

// =============================================================================
// Select
// =============================================================================

// BuildSelect builds a read query. Columns must be a subset of the declared
// columns or the wildcard; each filter operator must be valid for its
// column's kind; ordering columns must be declared.
func (b *Builder) BuildSelect(table string, columns []string, filters []datatypes.FilterPredicate, order []Order, page Page) (store.Query, error) {
	t, err := b.reg.Table(table)
	if err != nil {
		return store.Query{}, err
	}

	cols, err := resolveColumns(t, columns)
	if err != nil {
		return store.Query{}, err
	}

	q := store.Query{Kind: store.QuerySelect, Table: table, Params: map[string][]string{}}
	q.Params.Set("columns", strings.Join(cols, ","))

	if err := encodeFilters(t, filters, &q); err != nil {
		return store.Query{}, err
	}

	for _, o := range order {
		if _, err := t.Column(o.Column); err != nil {
			return store.Query{}, err
		}
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		q.Params.Add("order", o.Column+"."+dir)
	}

	if page.Offset < 0 {
		return store.Query{}, apperr.Validation("", "", page.Offset, "pagination offset must be non-negative")
	}
	if page.Limit <= 0 {
		return store.Query{}, apperr.Validation("", "", page.Limit, "pagination limit must be positive")
	}
	q.Params.Set("offset", strconv.Itoa(page.Offset))
	q.Params.Set("limit", strconv.Itoa(page.Limit))

	return q, nil
}

// BuildAggregate builds an aggregation query over one column. The operator
// must be a member of the aggregation set for the column's kind.
func (b *Builder) BuildAggregate(table, column, op string, filters []datatypes.FilterPredicate) (store.Query, error) {
	t, err := b.reg.Table(table)
	if err != nil {
		return store.Query{}, err
	}
	col, err := t.Column(column)
	if err != nil {
		return store.Query{}, err
	}
	if !col.Kind.AllowsAggregate(op) {
		return store.Query{}, apperr.Validation(column, op, nil,
			"aggregation %q is not valid for %s column %q", op, col.Kind, column)
	}

	q := store.Query{Kind: store.QuerySelect, Table: table, Params: map[string][]string{}}
	q.Params.Set("aggregate", column+"."+op)
	if err := encodeFilters(t, filters, &q); err != nil {
		return store.Query{}, err
	}
	return q, nil
}

// =============================================================================
// Insert
// =============================================================================

// BuildInsert builds a single-record insert. Every required column must be
// present unless database-generated, generated columns may not be written,
// and each value must match its column kind's insert contract.
func (b *Builder) BuildInsert(table string, values map[string]any) (store.Query, error) {
	t, err := b.reg.Table(table)
	if err != nil {
		return store.Query{}, err
	}

	record, err := normalizeValues(t, values, true)
	if err != nil {
		return store.Query{}, err
	}

	for name, col := range t.Columns {
		if col.Required && !col.Generated {
			if _, present := record[name]; !present {
				return store.Query{}, apperr.Validation(name, "", nil,
					"required column %q is missing from the insert", name)
			}
		}
	}

	return store.Query{
		Kind:  store.QueryInsert,
		Table: table,
		Body:  map[string]any{"records": []map[string]any{record}},
	}, nil
}

// =============================================================================
// Update / Delete
// =============================================================================

// BuildUpdate builds an update. All columns are optional; an empty filter
// set is legal but affects every row, so the caller must opt in through
// allowBroadImpact and the resulting query carries the broad-impact flag.
func (b *Builder) BuildUpdate(table string, values map[string]any, filters []datatypes.FilterPredicate, allowBroadImpact bool) (store.Query, error) {
	t, err := b.reg.Table(table)
	if err != nil {
		return store.Query{}, err
	}
	if len(values) == 0 {
		return store.Query{}, apperr.Validation("", "", nil, "update requires at least one column value")
	}

	record, err := normalizeValues(t, values, false)
	if err != nil {
		return store.Query{}, err
	}

	q := store.Query{
		Kind:   store.QueryUpdate,
		Table:  table,
		Params: map[string][]string{},
		Body:   map[string]any{"values": record},
	}
	if err := encodeFilters(t, filters, &q); err != nil {
		return store.Query{}, err
	}
	if len(filters) == 0 {
		if !allowBroadImpact {
			return store.Query{}, apperr.Validation("", "", nil,
				"update with no filters affects every row in %q; set allowBroadImpact to confirm", table)
		}
		q.BroadImpact = true
	}
	return q, nil
}

// BuildDelete builds a delete with the same broad-impact contract as
// BuildUpdate.
func (b *Builder) BuildDelete(table string, filters []datatypes.FilterPredicate, allowBroadImpact bool) (store.Query, error) {
	t, err := b.reg.Table(table)
	if err != nil {
		return store.Query{}, err
	}

	q := store.Query{Kind: store.QueryDelete, Table: table, Params: map[string][]string{}}
	if err := encodeFilters(t, filters, &q); err != nil {
		return store.Query{}, err
	}
	if len(filters) == 0 {
		if !allowBroadImpact {
			return store.Query{}, apperr.Validation("", "", nil,
				"delete with no filters affects every row in %q; set allowBroadImpact to confirm", table)
		}
		q.BroadImpact = true
	}
	return q, nil
}

// =============================================================================
// Column resolution and filter encoding
// =============================================================================

func resolveColumns(t datatypes.TableSchema, columns []string) ([]string, error) {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == Wildcard) {
		return t.ColumnNames(), nil
	}
	for _, name := range columns {
		if name == Wildcard {
			return nil, apperr.Validation(name, "", nil,
				"wildcard cannot be combined with explicit columns")
		}
		if _, err := t.Column(name); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

func encodeFilters(t datatypes.TableSchema, filters []datatypes.FilterPredicate, q *store.Query) error {
	for _, p := range filters {
		encoded, err := encodeFilter(t, p)
		if err != nil {
			return err
		}
		q.Params.Add("filter", encoded)
	}
	return nil
}

// encodeFilter validates one predicate against the column's kind and renders
// the vendor wire form "column.operator.value".
func encodeFilter(t datatypes.TableSchema, p datatypes.FilterPredicate) (string, error) {
	col, err := t.Column(p.Column)
	if err != nil {
		return "", err
	}
	if !col.Kind.AllowsFilter(p.Operator) {
		return "", apperr.Validation(p.Column, p.Operator, p.Value,
			"operator %q is not valid for %s column %q (valid: %s)",
			p.Operator, col.Kind, p.Column, strings.Join(col.Kind.FilterOperators(), ", "))
	}

	// Presence operators carry no value.
	if p.Operator == "isEmpty" || p.Operator == "isNotEmpty" {
		if p.Value != nil {
			return "", apperr.Validation(p.Column, p.Operator, p.Value,
				"operator %q on %q takes no value", p.Operator, p.Column)
		}
		return fmt.Sprintf("%s.%s.", p.Column, p.Operator), nil
	}

	var wire string
	switch col.Kind {
	case datatypes.KindDate:
		dv, err := datatypes.ParseDateValue(p.Column, p.Operator, p.Value)
		if err != nil {
			return "", err
		}
		wire = dv.Encode()

	case datatypes.KindText:
		s, ok := p.Value.(string)
		if !ok {
			return "", apperr.Validation(p.Column, p.Operator, p.Value,
				"filter value for text column %q must be a string", p.Column)
		}
		wire = jsonWire(s)

	case datatypes.KindNumber:
		n, ok := p.Value.(float64)
		if !ok {
			return "", apperr.Validation(p.Column, p.Operator, p.Value,
				"filter value for number column %q must be a number", p.Column)
		}
		wire = jsonWire(n)

	case datatypes.KindCheckbox:
		v, ok := p.Value.(bool)
		if !ok {
			return "", apperr.Validation(p.Column, p.Operator, p.Value,
				"filter value for checkbox column %q must be a boolean", p.Column)
		}
		wire = jsonWire(v)

	case datatypes.KindSingleSelect:
		switch p.Operator {
		case "anyOf", "noneOf":
			options, err := selectList(col, p)
			if err != nil {
				return "", err
			}
			wire = jsonWire(options)
		default:
			s, ok := p.Value.(string)
			if !ok {
				return "", apperr.Validation(p.Column, p.Operator, p.Value,
					"filter value for singleSelect column %q must be a string", p.Column)
			}
			if !col.HasOption(s) {
				return "", apperr.Validation(p.Column, p.Operator, p.Value,
					"%q is not an option of column %q", s, p.Column)
			}
			wire = jsonWire(s)
		}

	case datatypes.KindMultiSelect:
		options, err := selectList(col, p)
		if err != nil {
			return "", err
		}
		wire = jsonWire(options)

	case datatypes.KindLink:
		switch p.Value.(type) {
		case string, float64:
			wire = jsonWire(p.Value)
		default:
			return "", apperr.Validation(p.Column, p.Operator, p.Value,
				"filter value for link column %q must be a record id", p.Column)
		}

	default:
		return "", apperr.Validation(p.Column, p.Operator, p.Value,
			"column %q of kind %s cannot be filtered with a value", p.Column, col.Kind)
	}

	return fmt.Sprintf("%s.%s.%s", p.Column, p.Operator, wire), nil
}

func selectList(col datatypes.ColumnDef, p datatypes.FilterPredicate) ([]string, error) {
	raw, ok := p.Value.([]any)
	if !ok {
		return nil, apperr.Validation(p.Column, p.Operator, p.Value,
			"operator %q on %q takes a list of options", p.Operator, p.Column)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.Validation(p.Column, p.Operator, p.Value,
				"options for %q must be strings", p.Column)
		}
		if !col.HasOption(s) {
			return nil, apperr.Validation(p.Column, p.Operator, p.Value,
				"%q is not an option of column %q", s, p.Column)
		}
		out = append(out, s)
	}
	return out, nil
}

// jsonWire renders a validated filter value in its compact JSON form.
func jsonWire(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Values reaching here already passed shape validation.
		panic(fmt.Sprintf("query: unencodable filter value: %v", err))
	}
	return string(data)
}

// =============================================================================
// Insert/update value contracts
// =============================================================================

// normalizeValues validates each value against its column kind's contract
// and returns the normalized record. Inserts reject nulls on required
// columns; updates accept null to clear any optional column.
func normalizeValues(t datatypes.TableSchema, values map[string]any, insert bool) (map[string]any, error) {
	record := make(map[string]any, len(values))
	for name, v := range values {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if col.Generated {
			return nil, apperr.Validation(name, "", v,
				"column %q is database-generated and cannot be written", name)
		}
		if v == nil {
			if col.Required {
				return nil, apperr.Validation(name, "", nil,
					"required column %q cannot be null", name)
			}
			if insert {
				// Omitting the column and inserting null are equivalent.
				continue
			}
			record[name] = nil
			continue
		}
		normalized, err := normalizeValue(name, col, v)
		if err != nil {
			return nil, err
		}
		record[name] = normalized
	}
	return record, nil
}

func normalizeValue(name string, col datatypes.ColumnDef, v any) (any, error) {
	switch col.Kind {
	case datatypes.KindText:
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Validation(name, "", v, "text column %q takes a string", name)
		}
		return s, nil

	case datatypes.KindNumber:
		n, ok := v.(float64)
		if !ok {
			return nil, apperr.Validation(name, "", v, "number column %q takes a number", name)
		}
		return n, nil

	case datatypes.KindDate:
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Validation(name, "", v,
				"date column %q takes a YYYY-MM-DD or RFC3339 string", name)
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s, nil
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, nil
		}
		return nil, apperr.Validation(name, "", v,
			"%q is not a valid date for column %q", s, name)

	case datatypes.KindCheckbox:
		b, ok := v.(bool)
		if !ok {
			return nil, apperr.Validation(name, "", v, "checkbox column %q takes a boolean", name)
		}
		return b, nil

	case datatypes.KindSingleSelect:
		// Both a bare value and a singleton list appear in the wild; both
		// must produce the same stored representation.
		s, ok := v.(string)
		if !ok {
			list, isList := v.([]any)
			if !isList || len(list) != 1 {
				return nil, apperr.Validation(name, "", v,
					"singleSelect column %q takes a value or a singleton list", name)
			}
			s, ok = list[0].(string)
			if !ok {
				return nil, apperr.Validation(name, "", v,
					"singleSelect column %q takes a string value", name)
			}
		}
		if !col.HasOption(s) {
			return nil, apperr.Validation(name, "", v,
				"%q is not an option of column %q", s, name)
		}
		return s, nil

	case datatypes.KindMultiSelect:
		list, ok := v.([]any)
		if !ok {
			return nil, apperr.Validation(name, "", v, "multiSelect column %q takes a list", name)
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, apperr.Validation(name, "", v,
					"multiSelect column %q takes a list of strings", name)
			}
			if !col.HasOption(s) {
				return nil, apperr.Validation(name, "", v,
					"%q is not an option of column %q", s, name)
			}
			out = append(out, s)
		}
		return out, nil

	case datatypes.KindAttachment:
		return datatypes.NormalizeAttachmentValue(name, v)

	case datatypes.KindLink:
		switch linked := v.(type) {
		case string, float64:
			return linked, nil
		case []any:
			for _, item := range linked {
				switch item.(type) {
				case string, float64:
				default:
					return nil, apperr.Validation(name, "", v,
						"link column %q takes record ids", name)
				}
			}
			return linked, nil
		default:
			return nil, apperr.Validation(name, "", v,
				"link column %q takes a record id or a list of ids", name)
		}

	default:
		return nil, apperr.Validation(name, "", v, "column %q has unsupported kind %s", name, col.Kind)
	}
}
