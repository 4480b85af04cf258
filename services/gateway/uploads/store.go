// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package uploads implements the gateway's upload bridge: files come in as
// multipart form data and leave as attachment references that procedures
// write into attachment-kind columns.
package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store persists uploaded file content. Implementations return the stable
// path later embedded in attachment references.
type Store interface {
	// Save writes the content under the given id and returns its path.
	Save(ctx context.Context, id, name string, r io.Reader) (string, error)

	// Remove deletes a previously saved file. Used to unwind a batch when a
	// later save fails.
	Remove(ctx context.Context, path string) error
}

// DiskStore persists uploads under a single directory, one file per
// attachment id.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed and returns the store.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save streams the content to disk. The stored name is the attachment id
// plus the original extension; the original filename never becomes a path
// component.
func (s *DiskStore) Save(ctx context.Context, id, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, id+safeExt(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the stored file.
func (s *DiskStore) Remove(ctx context.Context, path string) error {
	return os.Remove(path)
}

// safeExt returns the lowercased extension of name, or "" when the
// extension contains anything suspicious.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

var _ Store = (*DiskStore)(nil)
