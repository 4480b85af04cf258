// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
)

// buildBatch assembles a multipart request and returns its parsed file
// headers, the same shape gin hands the upload handler.
func buildBatch(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/v1/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"]
}

func newTestBridge(t *testing.T, policy Policy) (*Bridge, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)
	return NewBridge(store, policy, logging.New(logging.Config{Quiet: true})), dir
}

func TestProcess_SavesBatchInOrder(t *testing.T) {
	bridge, dir := newTestBridge(t, Policy{MaxFiles: 10, MaxFileBytes: 1024})

	// Build sequentially to keep submission order deterministic.
	headers := buildBatch(t, map[string]string{"a.txt": "alpha"})
	headers = append(headers, buildBatch(t, map[string]string{"b.txt": "bravo"})...)

	refs, err := bridge.Process(context.Background(), headers)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "a.txt", refs[0].Name)
	assert.Equal(t, "b.txt", refs[1].Name)
	for _, ref := range refs {
		assert.NotEmpty(t, ref.ID)
		assert.NotEmpty(t, ref.SizeFormatted)
		data, err := os.ReadFile(ref.Path)
		require.NoError(t, err)
		assert.Equal(t, ref.Size, int64(len(data)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcess_TooManyFiles(t *testing.T) {
	bridge, dir := newTestBridge(t, Policy{MaxFiles: 2, MaxFileBytes: 1024})

	files := make(map[string]string, 3)
	for i := 0; i < 3; i++ {
		files[fmt.Sprintf("f%d.txt", i)] = "x"
	}
	_, err := bridge.Process(context.Background(), buildBatch(t, files))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTooManyFiles, apperr.CodeOf(err))

	// Wholesale rejection: nothing was persisted.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcess_FileTooLarge(t *testing.T) {
	bridge, dir := newTestBridge(t, Policy{MaxFiles: 10, MaxFileBytes: 4})

	headers := buildBatch(t, map[string]string{"small.txt": "ok"})
	headers = append(headers, buildBatch(t, map[string]string{"big.txt": "way too large"})...)

	_, err := bridge.Process(context.Background(), headers)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeFileTooLarge, apperr.CodeOf(err))

	// The small file was valid but the batch is all-or-nothing.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcess_EmptyBatch(t *testing.T) {
	bridge, _ := newTestBridge(t, Policy{MaxFiles: 10, MaxFileBytes: 1024})

	_, err := bridge.Process(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeBadInput, apperr.CodeOf(err))
}

func TestProcess_SizeFormatting(t *testing.T) {
	bridge, _ := newTestBridge(t, Policy{MaxFiles: 10, MaxFileBytes: 1 << 20})

	headers := buildBatch(t, map[string]string{"blob.bin": strings.Repeat("x", 2048)})
	refs, err := bridge.Process(context.Background(), headers)
	require.NoError(t, err)
	assert.Equal(t, "2.0 kB", refs[0].SizeFormatted)
}

func TestDiskStore_SafeExt(t *testing.T) {
	assert.Equal(t, ".pdf", safeExt("report.PDF"))
	assert.Equal(t, "", safeExt("noext"))
	assert.Equal(t, "", safeExt("weird.reallylongextension"))
}

func TestTotalBytes(t *testing.T) {
	bridge, _ := newTestBridge(t, Policy{MaxFiles: 10, MaxFileBytes: 1024})
	headers := buildBatch(t, map[string]string{"a.txt": "12345"})
	refs, err := bridge.Process(context.Background(), headers)
	require.NoError(t, err)
	assert.Equal(t, int64(5), TotalBytes(refs))
}
