// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

// AttachmentReference is the opaque handle returned by the upload bridge.
// It is created once per uploaded file, immutable, and later passed as an
// ordinary column value into inserts and updates targeting attachment-kind
// columns. The query translation layer accepts this shape without knowing
// how it was produced.
type AttachmentReference struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
}

// attachmentFromMap validates the decoded-JSON shape of an attachment value.
// Only id and path are mandatory; the metadata fields are carried through
// untouched when present.
func attachmentFromMap(column string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.Validation(column, "", v,
			"attachment value on %q must be an attachment reference object", column)
	}
	for _, key := range []string{"id", "path"} {
		s, ok := m[key].(string)
		if !ok || s == "" {
			return nil, apperr.Validation(column, "", v,
				"attachment reference on %q is missing %q", column, key)
		}
	}
	return m, nil
}

// NormalizeAttachmentValue validates an attachment column value: either one
// reference object or a list of them. The stored representation is always a
// list.
func NormalizeAttachmentValue(column string, v any) ([]map[string]any, error) {
	switch val := v.(type) {
	case map[string]any:
		m, err := attachmentFromMap(column, val)
		if err != nil {
			return nil, err
		}
		return []map[string]any{m}, nil
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, err := attachmentFromMap(column, item)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, apperr.Validation(column, "", v,
			"attachment value on %q must be a reference or a list of references", column)
	}
}
