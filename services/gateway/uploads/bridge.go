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
	"context"
	"fmt"
	"mime/multipart"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
)

// Policy holds the upload ceilings. These are gateway policy limits,
// enforced before any byte is persisted, not transport limits.
type Policy struct {
	// MaxFiles is the per-batch file count ceiling.
	MaxFiles int

	// MaxFileBytes is the per-file size ceiling in bytes.
	MaxFileBytes int64
}

// Bridge validates upload batches against policy and persists them,
// producing one attachment reference per file in input order.
type Bridge struct {
	store  Store
	policy Policy
	logger *logging.Logger
}

// NewBridge builds a bridge over the given store and policy.
func NewBridge(store Store, policy Policy, logger *logging.Logger) *Bridge {
	return &Bridge{store: store, policy: policy, logger: logger}
}

// Process validates and persists one upload batch.
//
// The batch is all-or-nothing: every file is checked against the count and
// size ceilings before anything is saved, and a mid-batch save failure
// unwinds the files already written. On success the references come back in
// the order the files were submitted.
func (b *Bridge) Process(ctx context.Context, files []*multipart.FileHeader) ([]datatypes.AttachmentReference, error) {
	if len(files) == 0 {
		return nil, apperr.BadInput("upload batch is empty")
	}
	if len(files) > b.policy.MaxFiles {
		return nil, apperr.TooManyFiles(len(files), b.policy.MaxFiles)
	}
	for _, fh := range files {
		if fh.Size > b.policy.MaxFileBytes {
			return nil, apperr.FileTooLarge(fh.Filename, fh.Size, b.policy.MaxFileBytes)
		}
	}

	refs := make([]datatypes.AttachmentReference, 0, len(files))
	saved := make([]string, 0, len(files))
	for _, fh := range files {
		ref, path, err := b.saveOne(ctx, fh)
		if err != nil {
			b.unwind(ctx, saved)
			return nil, err
		}
		refs = append(refs, ref)
		saved = append(saved, path)
	}

	b.logger.Info("upload batch persisted", "files", len(refs))
	return refs, nil
}

func (b *Bridge) saveOne(ctx context.Context, fh *multipart.FileHeader) (datatypes.AttachmentReference, string, error) {
	src, err := fh.Open()
	if err != nil {
		return datatypes.AttachmentReference{}, "", fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	id := uuid.NewString()
	path, err := b.store.Save(ctx, id, fh.Filename, src)
	if err != nil {
		return datatypes.AttachmentReference{}, "", err
	}

	return datatypes.AttachmentReference{
		ID:            id,
		Name:          fh.Filename,
		Path:          path,
		MimeType:      fh.Header.Get("Content-Type"),
		Size:          fh.Size,
		SizeFormatted: humanize.Bytes(uint64(fh.Size)),
	}, path, nil
}

// unwind removes files saved before a batch failure.
func (b *Bridge) unwind(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := b.store.Remove(ctx, path); err != nil {
			b.logger.Warn("failed to unwind partial upload", "path", path, "error", err.Error())
		}
	}
}

// TotalBytes sums the sizes of a reference batch, for metrics.
func TotalBytes(refs []datatypes.AttachmentReference) int64 {
	var total int64
	for _, r := range refs {
		total += r.Size
	}
	return total
}
