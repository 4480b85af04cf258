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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

func TestFilterPredicate_UnmarshalTuple(t *testing.T) {
	var p FilterPredicate
	require.NoError(t, json.Unmarshal([]byte(`["priority", ">", 2]`), &p))
	assert.Equal(t, "priority", p.Column)
	assert.Equal(t, ">", p.Operator)
	assert.Equal(t, float64(2), p.Value)
}

func TestFilterPredicate_UnmarshalRejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"object form", `{"column": "a", "operator": "=", "value": 1}`},
		{"two elements", `["a", "="]`},
		{"four elements", `["a", "=", 1, 2]`},
		{"non-string column", `[1, "=", 2]`},
		{"non-string operator", `["a", 2, 3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p FilterPredicate
			assert.Error(t, json.Unmarshal([]byte(tt.data), &p))
		})
	}
}

func TestFilterPredicate_RoundTrip(t *testing.T) {
	p := FilterPredicate{Column: "due", Operator: "=", Value: []any{"exactDay", "2024-01-15"}}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `["due", "=", ["exactDay", "2024-01-15"]]`, string(data))
}

func TestParseDateValue_Tags(t *testing.T) {
	dv, err := ParseDateValue("due", "=", []any{"exactDay", "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, "exactDay:2024-01-15", dv.Encode())

	dv, err = ParseDateValue("due", "<", []any{"exactTimestamp", "2024-01-15T09:30:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "exactTimestamp:2024-01-15T09:30:00Z", dv.Encode())

	dv, err = ParseDateValue("due", ">", []any{"daysAgo", float64(7)})
	require.NoError(t, err)
	assert.Equal(t, "daysAgo:7", dv.Encode())

	dv, err = ParseDateValue("due", "=", []any{"daysFromNow", float64(0)})
	require.NoError(t, err)
	assert.Equal(t, "daysFromNow:0", dv.Encode())
}

func TestParseDateValue_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"bare string", "2024-01-15"},
		{"bare number", float64(7)},
		{"one element", []any{"exactDay"}},
		{"three elements", []any{"exactDay", "2024-01-15", "extra"}},
		{"non-string tag", []any{float64(1), "2024-01-15"}},
		{"unknown tag", []any{"aroundThen", "2024-01-15"}},
		{"bad day format", []any{"exactDay", "15/01/2024"}},
		{"day for timestamp", []any{"exactTimestamp", "2024-01-15"}},
		{"negative days", []any{"daysAgo", float64(-1)}},
		{"fractional days", []any{"daysFromNow", 2.5}},
		{"string days", []any{"daysAgo", "7"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDateValue("due", "=", tt.value)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
		})
	}
}

func TestParseDateValue_ErrorCarriesContext(t *testing.T) {
	_, err := ParseDateValue("due", "<", "yesterday")
	require.Error(t, err)

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "due", e.Column)
	assert.Equal(t, "<", e.Operator)
	assert.Equal(t, "yesterday", e.Value)
}

func TestNormalizeAttachmentValue(t *testing.T) {
	ref := map[string]any{"id": "att-1", "path": "/blobs/att-1"}

	single, err := NormalizeAttachmentValue("attachments", ref)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{ref}, single)

	list, err := NormalizeAttachmentValue("attachments", []any{ref, ref})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = NormalizeAttachmentValue("attachments", map[string]any{"id": "att-1"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = NormalizeAttachmentValue("attachments", map[string]any{"id": "", "path": "/x"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = NormalizeAttachmentValue("attachments", "att-1")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
