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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/query"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})
	reg := NewRegistry(logger, nil)

	schema := datatypes.DefaultRegistry()
	builder := query.NewBuilder(schema)
	RegisterTaskProcedures(reg, builder, logger, nil)
	RegisterAttachmentProcedures(reg, schema, builder, logger)
	return reg
}

func dispatch(t *testing.T, reg *Registry, spy *store.SpyClient, name, input string) (any, error) {
	t.Helper()
	return reg.Dispatch(context.Background(), name, spy, json.RawMessage(input))
}

func TestRegister_Contracts(t *testing.T) {
	reg := NewRegistry(logging.New(logging.Config{Quiet: true}), nil)
	noop := func(ctx context.Context, c store.Client, in json.RawMessage) (any, error) { return nil, nil }

	assert.Error(t, reg.Register(Operation{Name: "unnamespaced", Kind: KindQuery, Handler: noop}))
	assert.Error(t, reg.Register(Operation{Name: "x.y", Kind: "stream", Handler: noop}))
	assert.Error(t, reg.Register(Operation{Name: "x.y", Kind: KindQuery}))

	require.NoError(t, reg.Register(Operation{Name: "x.y", Kind: KindQuery, Handler: noop}))
	assert.Error(t, reg.Register(Operation{Name: "x.y", Kind: KindQuery, Handler: noop}))
}

func TestDispatch_UnknownOperation(t *testing.T) {
	reg := newTestRegistry(t)
	spy := &store.SpyClient{}

	_, err := dispatch(t, reg, spy, "tasks.explode", `{}`)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnknownOperation, apperr.CodeOf(err))
	assert.Zero(t, spy.CallCount())
}

func TestDispatch_BadInputShortCircuits(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name  string
		op    string
		input string
	}{
		{"malformed json", "tasks.getById", `{"id": `},
		{"unknown field", "tasks.getById", `{"id": 1, "surprise": true}`},
		{"missing required", "tasks.create", `{}`},
		{"wrong type", "tasks.getById", `{"id": "one"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &store.SpyClient{}
			_, err := dispatch(t, reg, spy, tt.op, tt.input)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeBadInput, apperr.CodeOf(err))
			// The store is never contacted for rejected input.
			assert.Zero(t, spy.CallCount())
		})
	}
}

func TestDispatch_ValidationNeverReachesStore(t *testing.T) {
	reg := newTestRegistry(t)
	spy := &store.SpyClient{}

	_, err := dispatch(t, reg, spy, "tasks.getAll",
		`{"filters": [["title", "<", "z"]]}`)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Zero(t, spy.CallCount())
}

func TestDispatch_QueryRetriesTransientOnce(t *testing.T) {
	reg := newTestRegistry(t)
	spy := &store.SpyClient{
		Errs: []error{apperr.ExternalStore("select", true, assert.AnError)},
		Results: []store.Result{
			{},
			{Records: []map[string]any{{"id": float64(1)}}},
		},
	}

	out, err := dispatch(t, reg, spy, "tasks.getAll", `{}`)
	require.NoError(t, err)
	assert.Equal(t, 2, spy.CallCount())

	records := out.(map[string]any)["records"].([]map[string]any)
	assert.Len(t, records, 1)
}

func TestDispatch_QueryDoesNotRetryPermanentFailure(t *testing.T) {
	reg := newTestRegistry(t)
	spy := &store.SpyClient{
		Errs: []error{apperr.ExternalStore("select", false, assert.AnError)},
	}

	_, err := dispatch(t, reg, spy, "tasks.getAll", `{}`)
	require.Error(t, err)
	assert.Equal(t, 1, spy.CallCount())
}

func TestDispatch_MutationNeverRetries(t *testing.T) {
	reg := newTestRegistry(t)
	spy := &store.SpyClient{
		Errs: []error{apperr.ExternalStore("insert", true, assert.AnError)},
	}

	_, err := dispatch(t, reg, spy, "tasks.create", `{"values": {"title": "x"}}`)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExternalStore, apperr.CodeOf(err))
	// The insert may have landed; retrying could double-apply it.
	assert.Equal(t, 1, spy.CallCount())
}
