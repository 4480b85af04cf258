// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package procedures implements the gateway's namespaced operation router.
//
// Operations register under "namespace.name" (tasks.getAll, attachments.attach)
// and are classified as queries or mutations. Classification drives retry:
// a query hitting a transient store failure is retried once; a mutation is
// never auto-retried because the first attempt may have landed.
//
// Input decoding is strict: unknown fields and malformed payloads are
// bad_input, raised before any handler runs and therefore before the store
// is contacted.
package procedures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/observability"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

// Kind classifies an operation for retry purposes.
type Kind string

const (
	// KindQuery operations are read-only and may be retried on transient
	// store failures.
	KindQuery Kind = "query"

	// KindMutation operations change state and are never auto-retried.
	KindMutation Kind = "mutation"
)

// HandlerFunc executes one operation with the request-scoped store client.
type HandlerFunc func(ctx context.Context, client store.Client, input json.RawMessage) (any, error)

// Operation is one registered procedure.
type Operation struct {
	// Name is the namespaced operation name, e.g. "tasks.getAll".
	Name string

	// Kind classifies the operation as query or mutation.
	Kind Kind

	Handler HandlerFunc
}

// Registry maps operation names to handlers. Registration happens at
// startup; dispatch is read-only afterwards, so no locking is needed.
type Registry struct {
	ops     map[string]Operation
	logger  *logging.Logger
	metrics *observability.GatewayMetrics
}

// NewRegistry builds an empty registry. metrics may be nil in tests.
func NewRegistry(logger *logging.Logger, metrics *observability.GatewayMetrics) *Registry {
	return &Registry{
		ops:     make(map[string]Operation),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds an operation. Names must be namespaced and unique.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" || !strings.Contains(op.Name, ".") {
		return fmt.Errorf("operation name %q must be namespaced as \"namespace.name\"", op.Name)
	}
	if op.Kind != KindQuery && op.Kind != KindMutation {
		return fmt.Errorf("operation %q has invalid kind %q", op.Name, op.Kind)
	}
	if op.Handler == nil {
		return fmt.Errorf("operation %q has no handler", op.Name)
	}
	if _, dup := r.ops[op.Name]; dup {
		return fmt.Errorf("operation %q registered twice", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// mustRegister is the startup-time variant; a bad registration is a
// programming error.
func (r *Registry) mustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Lookup returns the operation for name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Operations returns the registered names, for the CLI and diagnostics.
func (r *Registry) Operations() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named operation against the request-scoped client.
// An unknown name is unknown_operation. A query failing with a transient
// store error is retried exactly once; mutations surface the first error.
func (r *Registry) Dispatch(ctx context.Context, name string, client store.Client, input json.RawMessage) (any, error) {
	op, ok := r.Lookup(name)
	if !ok {
		return nil, apperr.UnknownOperation(name)
	}

	if r.metrics != nil {
		r.metrics.ActiveProcedures.Inc()
		defer r.metrics.ActiveProcedures.Dec()
	}
	start := time.Now()

	result, err := op.Handler(ctx, client, input)
	if err != nil && op.Kind == KindQuery && apperr.IsTransient(err) && ctx.Err() == nil {
		r.logger.Warn("retrying transient read failure",
			"procedure", name, "error", err.Error())
		if r.metrics != nil {
			r.metrics.RecordRetry(name)
		}
		result, err = op.Handler(ctx, client, input)
	}

	elapsed := time.Since(start).Seconds()
	if r.metrics != nil {
		r.metrics.RecordProcedure(name, err == nil, elapsed)
	}
	if err != nil {
		var storeErr *apperr.Error
		if errors.As(err, &storeErr) && storeErr.Code == apperr.CodeExternalStore && r.metrics != nil {
			r.metrics.RecordStoreError(storeErr.Op, storeErr.Transient)
		}
		r.logger.Error("procedure failed",
			"procedure", name, "code", string(apperr.CodeOf(err)), "error", err.Error())
		return nil, err
	}

	r.logger.Debug("procedure completed", "procedure", name, "duration_s", elapsed)
	return result, nil
}

// =============================================================================
// Input decoding
// =============================================================================

// validate is the shared validator instance for input structs.
var validate = validator.New()

// decodeInput strictly decodes a JSON payload into T and validates it.
// Unknown fields, malformed JSON, and failed validation tags are all
// bad_input: they short-circuit before any handler logic runs.
func decodeInput[T any](raw json.RawMessage) (T, error) {
	var input T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		return input, apperr.BadInput("invalid input payload: %v", err)
	}
	if err := validate.Struct(&input); err != nil {
		return input, apperr.BadInput("input failed validation: %v", err)
	}
	return input, nil
}
