// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gateway's request middleware: credential
// extraction, CORS, and rate limiting.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

// CredentialCookie is the cookie carrying the caller's TaylorDB token.
const CredentialCookie = "taylordb_token"

// storeClientKey is the gin context key holding the request's store client.
const storeClientKey = "gateway_store_client"

// ClientFactory builds a credential-scoped store client from a token. The
// factory is invoked once per authenticated request; clients are never
// cached or shared across requests, so a token leak is bounded to its own
// request.
type ClientFactory func(token string) (store.Client, error)

// RequireCredential extracts the credential cookie, constructs the
// request-scoped store client, and attaches it to the context.
//
// The check is fail-closed: a missing or empty cookie aborts with 401
// before the factory is invoked, so no client is ever constructed for an
// unauthenticated request.
func RequireCredential(factory ClientFactory, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CredentialCookie)
		if err != nil || token == "" {
			e := apperr.Unauthorized("credential cookie is missing")
			logger.Warn("request rejected", "reason", "missing_credential", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(e.HTTPStatus(), gin.H{"error": e})
			return
		}

		client, err := factory(token)
		if err != nil {
			e := apperr.Unauthorized("credential was rejected")
			logger.Warn("request rejected", "reason", "client_construction_failed", "error", err.Error())
			c.AbortWithStatusJSON(e.HTTPStatus(), gin.H{"error": e})
			return
		}

		c.Set(storeClientKey, client)
		c.Next()
	}
}

// StoreClient returns the request-scoped store client attached by
// RequireCredential, or nil when the request never passed the credential
// check.
func StoreClient(c *gin.Context) store.Client {
	v, ok := c.Get(storeClientKey)
	if !ok {
		return nil
	}
	client, ok := v.(store.Client)
	if !ok {
		return nil
	}
	return client
}
