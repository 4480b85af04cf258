// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gateway's HTTP handlers. Handlers stay
// thin: decode, dispatch to the procedure registry or upload bridge, render.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/middleware"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/procedures"
)

// maxBatchCalls caps a single batch request.
const maxBatchCalls = 25

// renderError maps a gateway error to its HTTP status and JSON shape.
// Unrecognized errors become an opaque 500; internal detail never leaks.
func renderError(c *gin.Context, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		c.JSON(e.HTTPStatus(), gin.H{"error": e})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "internal", "message": "internal error"},
	})
}

// HandleProcedure serves POST /v1/rpc/:procedure. The request body is the
// procedure input; the response wraps the result.
func HandleProcedure(registry *procedures.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("procedure")
		client := middleware.StoreClient(c)

		input, err := io.ReadAll(c.Request.Body)
		if err != nil {
			renderError(c, apperr.BadInput("failed to read request body: %v", err))
			return
		}

		// A dropped connection must not cancel a store call already in
		// flight; the result is discarded, never the write.
		ctx := context.WithoutCancel(c.Request.Context())
		result, err := registry.Dispatch(ctx, name, client, input)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

// batchCall is one element of a batch request.
type batchCall struct {
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input"`
}

// batchResult is one element of a batch response; exactly one of Result and
// Error is set.
type batchResult struct {
	Result any           `json:"result,omitempty"`
	Error  *apperr.Error `json:"error,omitempty"`
}

// HandleBatch serves POST /v1/rpc: a JSON array of calls executed in order.
// Each call succeeds or fails independently; the response preserves the
// request order so callers can correlate by index.
func HandleBatch(registry *procedures.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := middleware.StoreClient(c)

		var calls []batchCall
		if err := c.ShouldBindJSON(&calls); err != nil {
			renderError(c, apperr.BadInput("batch body must be a JSON array of calls: %v", err))
			return
		}
		if len(calls) == 0 {
			renderError(c, apperr.BadInput("batch is empty"))
			return
		}
		if len(calls) > maxBatchCalls {
			renderError(c, apperr.BadInput("batch of %d calls exceeds the limit of %d", len(calls), maxBatchCalls))
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		results := make([]batchResult, len(calls))
		for i, call := range calls {
			result, err := registry.Dispatch(ctx, call.Procedure, client, call.Input)
			if err != nil {
				var e *apperr.Error
				if !errors.As(err, &e) {
					e = &apperr.Error{Code: "internal", Message: "internal error"}
				}
				results[i] = batchResult{Error: e}
				continue
			}
			results[i] = batchResult{Result: result}
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}
