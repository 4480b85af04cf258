// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// countingFactory records how many clients were constructed and with which
// tokens.
type countingFactory struct {
	tokens []string
	err    error
}

func (f *countingFactory) build(token string) (store.Client, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return &store.SpyClient{}, nil
}

func setupAuthRouter(factory *countingFactory) *gin.Engine {
	router := gin.New()
	router.Use(RequireCredential(factory.build, logging.New(logging.Config{Quiet: true})))
	router.GET("/probe", func(c *gin.Context) {
		if StoreClient(c) == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"client": "missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"client": "present"})
	})
	return router
}

func TestRequireCredential_MissingCookie(t *testing.T) {
	factory := &countingFactory{}
	router := setupAuthRouter(factory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
	// Fail-closed: no client is ever constructed without a credential.
	assert.Empty(t, factory.tokens)
}

func TestRequireCredential_EmptyCookie(t *testing.T) {
	factory := &countingFactory{}
	router := setupAuthRouter(factory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: CredentialCookie, Value: ""})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, factory.tokens)
}

func TestRequireCredential_ValidCookie(t *testing.T) {
	factory := &countingFactory{}
	router := setupAuthRouter(factory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: CredentialCookie, Value: "tok-abc"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"tok-abc"}, factory.tokens)
}

func TestRequireCredential_PerRequestClient(t *testing.T) {
	factory := &countingFactory{}
	router := setupAuthRouter(factory)

	for _, token := range []string{"tok-1", "tok-2", "tok-1"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.AddCookie(&http.Cookie{Name: CredentialCookie, Value: token})
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// One construction per request, even for a repeated token: clients are
	// never cached across requests.
	assert.Equal(t, []string{"tok-1", "tok-2", "tok-1"}, factory.tokens)
}

func TestRequireCredential_FactoryFailure(t *testing.T) {
	factory := &countingFactory{err: assert.AnError}
	router := setupAuthRouter(factory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: CredentialCookie, Value: "tok-bad"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStoreClient_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, StoreClient(c))
}
