// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/config"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:         "0",
		StoreBaseURL: "https://api.taylordb.dev",
		DatabaseID:   "db-1",
		StoreTimeout: time.Second,
		Upload: config.Upload{
			MaxFiles:     10,
			MaxFileBytes: 1024,
			Dir:          t.TempDir(),
		},
		RateLimit: config.RateLimit{PerSecond: 25, Burst: 50},
	}
}

func TestLoadSchema_Default(t *testing.T) {
	schema, err := LoadSchema(testConfig(t), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"projects", "tasks"}, schema.Tables())
}

func TestLoadSchema_FromFile(t *testing.T) {
	doc := `
tables:
  - name: notes
    columns:
      body:
        kind: text
`
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg := testConfig(t)
	cfg.SchemaPath = path

	schema, err := LoadSchema(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, schema.Tables())
}

func TestLoadSchema_BadFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SchemaPath = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := LoadSchema(cfg, quietLogger())
	assert.Error(t, err)
}

func TestBuild_ServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := Build(testConfig(t), quietLogger())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taylordb-gateway")
}

func TestProbeStore_QueriesFirstTable(t *testing.T) {
	spy := &store.SpyClient{}
	probeStore(spy, datatypes.DefaultRegistry(), time.Second, quietLogger())

	calls := spy.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "select", calls[0].Op)
	assert.Equal(t, "projects", calls[0].Query.Table)
	assert.Equal(t, "1", calls[0].Query.Params.Get("limit"))
}

func TestProbeStore_FailureIsNotFatal(t *testing.T) {
	spy := &store.SpyClient{Errs: []error{assert.AnError}}
	probeStore(spy, datatypes.DefaultRegistry(), time.Second, quietLogger())
	assert.Equal(t, 1, spy.CallCount())
}
