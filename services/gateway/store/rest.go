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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

// RESTConfig are the static connection parameters for the TaylorDB REST
// surface, read once from process configuration.
type RESTConfig struct {
	// BaseURL is the store origin, e.g. "https://api.taylordb.dev".
	BaseURL string

	// DatabaseID selects the database within the store.
	DatabaseID string

	// Timeout bounds each store call. Zero means 30 seconds.
	Timeout time.Duration
}

// RESTClient talks to the TaylorDB REST API with a single credential.
// One instance is constructed per request from that request's token and
// discarded when the request completes; tokens are never shared between
// instances.
type RESTClient struct {
	http   *http.Client
	prefix string
	token  string
}

// NewRESTClient builds a credential-scoped client.
func NewRESTClient(cfg RESTConfig, token string) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("store base URL is required")
	}
	if cfg.DatabaseID == "" {
		return nil, fmt.Errorf("store database id is required")
	}
	if token == "" {
		return nil, fmt.Errorf("credential token is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	prefix := strings.TrimRight(cfg.BaseURL, "/") + "/v1/databases/" + url.PathEscape(cfg.DatabaseID)
	return &RESTClient{
		http:   &http.Client{Timeout: timeout},
		prefix: prefix,
		token:  token,
	}, nil
}

func (c *RESTClient) Select(ctx context.Context, q Query) (Result, error) {
	return c.do(ctx, http.MethodGet, "select", q)
}

func (c *RESTClient) Insert(ctx context.Context, q Query) (Result, error) {
	return c.do(ctx, http.MethodPost, "insert", q)
}

func (c *RESTClient) Update(ctx context.Context, q Query) (Result, error) {
	return c.do(ctx, http.MethodPatch, "update", q)
}

func (c *RESTClient) Delete(ctx context.Context, q Query) (Result, error) {
	return c.do(ctx, http.MethodDelete, "delete", q)
}

// do performs one REST call. Vendor failures surface as external_store_error
// with the operation name attached; 5xx and transport errors are marked
// transient so the procedure router may retry read-classified operations.
func (c *RESTClient) do(ctx context.Context, method, op string, q Query) (Result, error) {
	endpoint := c.prefix + "/tables/" + url.PathEscape(q.Table) + "/records"
	if len(q.Params) > 0 {
		endpoint += "?" + q.Params.Encode()
	}

	var body io.Reader
	if q.Body != nil {
		payload, err := json.Marshal(q.Body)
		if err != nil {
			return Result{}, apperr.ExternalStore(op, false, fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return Result{}, apperr.ExternalStore(op, false, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if q.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, apperr.ExternalStore(op, true, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apperr.ExternalStore(op, true, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		transient := resp.StatusCode >= 500
		return Result{}, apperr.ExternalStore(op, transient,
			fmt.Errorf("store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var result Result
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return Result{}, apperr.ExternalStore(op, false, fmt.Errorf("decode store response: %w", err))
		}
	}
	return result, nil
}
