// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package procedures

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/observability"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/query"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

// defaultPageLimit applies when getAll/search are called without pagination.
const defaultPageLimit = 100

// tasksTable is the table the tasks namespace operates on.
const tasksTable = "tasks"

// TaskProcedures implements the tasks.* namespace against a query builder.
type TaskProcedures struct {
	builder *query.Builder
	logger  *logging.Logger
	metrics *observability.GatewayMetrics
}

// RegisterTaskProcedures registers the tasks namespace on the registry.
func RegisterTaskProcedures(reg *Registry, builder *query.Builder, logger *logging.Logger, metrics *observability.GatewayMetrics) {
	p := &TaskProcedures{builder: builder, logger: logger, metrics: metrics}

	reg.mustRegister(Operation{Name: "tasks.getAll", Kind: KindQuery, Handler: p.getAll})
	reg.mustRegister(Operation{Name: "tasks.getById", Kind: KindQuery, Handler: p.getByID})
	reg.mustRegister(Operation{Name: "tasks.search", Kind: KindQuery, Handler: p.search})
	reg.mustRegister(Operation{Name: "tasks.stats", Kind: KindQuery, Handler: p.stats})
	reg.mustRegister(Operation{Name: "tasks.create", Kind: KindMutation, Handler: p.create})
	reg.mustRegister(Operation{Name: "tasks.update", Kind: KindMutation, Handler: p.update})
	reg.mustRegister(Operation{Name: "tasks.updateWhere", Kind: KindMutation, Handler: p.updateWhere})
	reg.mustRegister(Operation{Name: "tasks.delete", Kind: KindMutation, Handler: p.deleteByID})
	reg.mustRegister(Operation{Name: "tasks.deleteWhere", Kind: KindMutation, Handler: p.deleteWhere})
}

// =============================================================================
// Read operations
// =============================================================================

type getAllInput struct {
	Columns []string                    `json:"columns"`
	Filters []datatypes.FilterPredicate `json:"filters"`
	Order   []query.Order               `json:"order"`
	Page    *query.Page                 `json:"page"`
}

func (p *TaskProcedures) getAll(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[getAllInput](raw)
	if err != nil {
		return nil, err
	}
	page := query.Page{Limit: defaultPageLimit}
	if input.Page != nil {
		page = *input.Page
	}

	q, err := p.builder.BuildSelect(tasksTable, input.Columns, input.Filters, input.Order, page)
	if err != nil {
		return nil, err
	}
	result, err := client.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": result.Records}, nil
}

type getByIDInput struct {
	ID float64 `json:"id" validate:"required"`
}

// getByID returns the record or null. A missing id is not an error on the
// read path.
func (p *TaskProcedures) getByID(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[getByIDInput](raw)
	if err != nil {
		return nil, err
	}

	result, err := p.fetchByID(ctx, client, input.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": result.First()}, nil
}

type searchInput struct {
	Term    string      `json:"term" validate:"required"`
	Columns []string    `json:"columns"`
	Page    *query.Page `json:"page"`
}

// search matches the term as a substring of the task title.
func (p *TaskProcedures) search(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[searchInput](raw)
	if err != nil {
		return nil, err
	}
	page := query.Page{Limit: defaultPageLimit}
	if input.Page != nil {
		page = *input.Page
	}

	filters := []datatypes.FilterPredicate{
		{Column: "title", Operator: "contains", Value: input.Term},
	}
	q, err := p.builder.BuildSelect(tasksTable, input.Columns, filters, nil, page)
	if err != nil {
		return nil, err
	}
	result, err := client.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": result.Records}, nil
}

type statsInput struct {
	Column  string                      `json:"column" validate:"required"`
	Op      string                      `json:"op" validate:"required"`
	Filters []datatypes.FilterPredicate `json:"filters"`
}

func (p *TaskProcedures) stats(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[statsInput](raw)
	if err != nil {
		return nil, err
	}

	q, err := p.builder.BuildAggregate(tasksTable, input.Column, input.Op, input.Filters)
	if err != nil {
		return nil, err
	}
	result, err := client.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"aggregate": result.Aggregate}, nil
}

// =============================================================================
// Mutations
// =============================================================================

type createInput struct {
	Values map[string]any `json:"values" validate:"required"`
}

// create inserts one task, deriving titleSlug from the title before the
// insert is built.
func (p *TaskProcedures) create(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[createInput](raw)
	if err != nil {
		return nil, err
	}

	values := withDerivedSlug(input.Values)
	q, err := p.builder.BuildInsert(tasksTable, values)
	if err != nil {
		return nil, err
	}
	result, err := client.Insert(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": result.First()}, nil
}

type updateInput struct {
	ID     float64        `json:"id" validate:"required"`
	Values map[string]any `json:"values" validate:"required"`
}

// update mutates one task by id. The record is pre-fetched because the
// titleSlug derived field must be recomputed against the update; a missing
// id is not_found here, unlike the read path.
func (p *TaskProcedures) update(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[updateInput](raw)
	if err != nil {
		return nil, err
	}

	existing, err := p.fetchByID(ctx, client, input.ID)
	if err != nil {
		return nil, err
	}
	if existing.First() == nil {
		return nil, apperr.NotFound("task %v does not exist", input.ID)
	}

	values := withDerivedSlug(input.Values)
	filters := idFilter(input.ID)
	q, err := p.builder.BuildUpdate(tasksTable, values, filters, false)
	if err != nil {
		return nil, err
	}
	result, err := client.Update(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record": result.First()}, nil
}

type updateWhereInput struct {
	Values           map[string]any              `json:"values" validate:"required"`
	Filters          []datatypes.FilterPredicate `json:"filters"`
	AllowBroadImpact bool                        `json:"allowBroadImpact"`
}

// updateWhere mutates every task matching the filters. An empty filter set
// requires the explicit allowBroadImpact opt-in; such mutations are logged
// and counted.
func (p *TaskProcedures) updateWhere(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[updateWhereInput](raw)
	if err != nil {
		return nil, err
	}

	q, err := p.builder.BuildUpdate(tasksTable, withDerivedSlug(input.Values), input.Filters, input.AllowBroadImpact)
	if err != nil {
		return nil, err
	}
	p.noteBroadImpact(q, "update")

	result, err := client.Update(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": result.Records}, nil
}

type deleteInput struct {
	ID float64 `json:"id" validate:"required"`
}

func (p *TaskProcedures) deleteByID(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[deleteInput](raw)
	if err != nil {
		return nil, err
	}

	q, err := p.builder.BuildDelete(tasksTable, idFilter(input.ID), false)
	if err != nil {
		return nil, err
	}
	result, err := client.Delete(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": len(result.Records)}, nil
}

type deleteWhereInput struct {
	Filters          []datatypes.FilterPredicate `json:"filters"`
	AllowBroadImpact bool                        `json:"allowBroadImpact"`
}

func (p *TaskProcedures) deleteWhere(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[deleteWhereInput](raw)
	if err != nil {
		return nil, err
	}

	q, err := p.builder.BuildDelete(tasksTable, input.Filters, input.AllowBroadImpact)
	if err != nil {
		return nil, err
	}
	p.noteBroadImpact(q, "delete")

	result, err := client.Delete(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": len(result.Records)}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (p *TaskProcedures) fetchByID(ctx context.Context, client store.Client, id float64) (store.Result, error) {
	q, err := p.builder.BuildSelect(tasksTable, nil, idFilter(id), nil, query.Page{Limit: 1})
	if err != nil {
		return store.Result{}, err
	}
	return client.Select(ctx, q)
}

func (p *TaskProcedures) noteBroadImpact(q store.Query, kind string) {
	if !q.BroadImpact {
		return
	}
	p.logger.Warn("broad-impact mutation", "table", q.Table, "kind", kind)
	if p.metrics != nil {
		p.metrics.RecordBroadImpact(q.Table, kind)
	}
}

func idFilter(id float64) []datatypes.FilterPredicate {
	return []datatypes.FilterPredicate{{Column: "id", Operator: "=", Value: id}}
}

// withDerivedSlug recomputes titleSlug whenever the title is written.
// Caller-supplied slugs are overwritten; the slug is derived, never stored
// input.
func withDerivedSlug(values map[string]any) map[string]any {
	title, ok := values["title"].(string)
	if !ok {
		return values
	}
	out := make(map[string]any, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	out["titleSlug"] = slugify(title)
	return out
}

// slugify lowercases and collapses non-alphanumeric runs to single hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
