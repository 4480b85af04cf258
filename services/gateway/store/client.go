// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the typed client boundary to the external TaylorDB store.
//
// The gateway consumes the vendor's filter and aggregation semantics, it
// never reimplements them: a Query is an already-validated, fully-encoded
// description handed to the vendor REST surface, and results come back as
// dynamic records. The Client interface exists so request handlers depend on
// the contract, not the transport — tests substitute a SpyClient to prove
// that invalid requests never reach the store.
package store

import (
	"context"
	"net/url"
)

// QueryKind is the store operation a Query describes.
type QueryKind string

const (
	QuerySelect QueryKind = "select"
	QueryInsert QueryKind = "insert"
	QueryUpdate QueryKind = "update"
	QueryDelete QueryKind = "delete"
)

// Query is an opaque, fully-built query description produced by the query
// translation layer. It is all-or-nothing: a Query either passed every
// schema check or was never constructed.
type Query struct {
	Kind  QueryKind
	Table string

	// Params carries the encoded selection: columns, filters, ordering,
	// pagination, aggregation. The encoding is the vendor REST dialect.
	Params url.Values

	// Body carries normalized insert/update values.
	Body any

	// BroadImpact marks an update or delete with no filter predicates,
	// affecting every row in the table. Callers opted into this explicitly;
	// the flag exists so the operation is logged and counted.
	BroadImpact bool
}

// Result is the decoded store response.
type Result struct {
	// Records is the affected or returned rows.
	Records []map[string]any `json:"records"`

	// Aggregate holds aggregation output when the query requested one.
	Aggregate map[string]any `json:"aggregate,omitempty"`
}

// First returns the first record or nil. The read path treats an empty
// result as null, not an error.
func (r Result) First() map[string]any {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// Client executes queries against the external store. Implementations must
// be safe for concurrent use; the gateway constructs one scoped client per
// request credential and never shares it across requests.
type Client interface {
	Select(ctx context.Context, q Query) (Result, error)
	Insert(ctx context.Context, q Query) (Result, error)
	Update(ctx context.Context, q Query) (Result, error)
	Delete(ctx context.Context, q Query) (Result, error)
}
