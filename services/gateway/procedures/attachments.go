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

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/query"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

// AttachmentProcedures implements the attachments.* namespace. Uploading
// files is the upload bridge's job; these operations only write already
// issued attachment references into attachment-kind columns.
type AttachmentProcedures struct {
	registry *datatypes.Registry
	builder  *query.Builder
	logger   *logging.Logger
}

// RegisterAttachmentProcedures registers the attachments namespace.
func RegisterAttachmentProcedures(reg *Registry, schema *datatypes.Registry, builder *query.Builder, logger *logging.Logger) {
	p := &AttachmentProcedures{registry: schema, builder: builder, logger: logger}

	reg.mustRegister(Operation{Name: "attachments.attach", Kind: KindMutation, Handler: p.attach})
}

type attachInput struct {
	Table       string                          `json:"table" validate:"required"`
	ID          float64                         `json:"id" validate:"required"`
	Column      string                          `json:"column" validate:"required"`
	Attachments []datatypes.AttachmentReference `json:"attachments" validate:"required,min=1,dive"`
}

// attach writes the references into the attachment column of one record,
// replacing its previous value.
func (p *AttachmentProcedures) attach(ctx context.Context, client store.Client, raw json.RawMessage) (any, error) {
	input, err := decodeInput[attachInput](raw)
	if err != nil {
		return nil, err
	}

	table, err := p.registry.Table(input.Table)
	if err != nil {
		return nil, err
	}
	col, err := table.Column(input.Column)
	if err != nil {
		return nil, err
	}
	if col.Kind != datatypes.KindAttachment {
		return nil, apperr.Validation(input.Column, "", nil,
			"column %q on %q is kind %s, not attachment", input.Column, input.Table, col.Kind)
	}

	// Round-trip through the generic value shape the builder accepts.
	refs := make([]any, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		if a.ID == "" || a.Path == "" {
			return nil, apperr.Validation(input.Column, "", a,
				"attachment reference is missing id or path")
		}
		refs = append(refs, map[string]any{
			"id":            a.ID,
			"name":          a.Name,
			"path":          a.Path,
			"mimeType":      a.MimeType,
			"size":          float64(a.Size),
			"sizeFormatted": a.SizeFormatted,
		})
	}

	filters := []datatypes.FilterPredicate{{Column: "id", Operator: "=", Value: input.ID}}
	q, err := p.builder.BuildUpdate(input.Table, map[string]any{input.Column: refs}, filters, false)
	if err != nil {
		return nil, err
	}
	result, err := client.Update(ctx, q)
	if err != nil {
		return nil, err
	}
	if result.First() == nil {
		return nil, apperr.NotFound("record %v does not exist in %q", input.ID, input.Table)
	}

	p.logger.Info("attachments written",
		"table", input.Table, "column", input.Column, "count", len(input.Attachments))
	return map[string]any{"record": result.First()}, nil
}
