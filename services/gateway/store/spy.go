// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sync"
)

// SpyCall records one call seen by a SpyClient.
type SpyCall struct {
	Op    string
	Query Query
}

// SpyClient is a programmable in-memory Client for tests. It records every
// call so tests can assert both what reached the store and — for the
// validation paths — that nothing did.
type SpyClient struct {
	mu    sync.Mutex
	calls []SpyCall

	// Results are returned in order; once exhausted the zero Result is
	// returned. Errs works the same way and takes precedence.
	Results []Result
	Errs    []error
}

func (s *SpyClient) Select(ctx context.Context, q Query) (Result, error) { return s.record("select", q) }
func (s *SpyClient) Insert(ctx context.Context, q Query) (Result, error) { return s.record("insert", q) }
func (s *SpyClient) Update(ctx context.Context, q Query) (Result, error) { return s.record("update", q) }
func (s *SpyClient) Delete(ctx context.Context, q Query) (Result, error) { return s.record("delete", q) }

func (s *SpyClient) record(op string, q Query) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.calls)
	s.calls = append(s.calls, SpyCall{Op: op, Query: q})
	if n < len(s.Errs) && s.Errs[n] != nil {
		return Result{}, s.Errs[n]
	}
	if n < len(s.Results) {
		return s.Results[n], nil
	}
	return Result{}, nil
}

// Calls returns a copy of the recorded calls.
func (s *SpyClient) Calls() []SpyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpyCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls reached the spy.
func (s *SpyClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var _ Client = (*SpyClient)(nil)
