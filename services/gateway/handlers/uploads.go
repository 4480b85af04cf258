// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/taylordb-gateway/services/gateway/apperr"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/observability"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/uploads"
)

// HandleUploads serves POST /v1/uploads. Files arrive under the multipart
// field "files"; the response carries one attachment reference per file in
// submission order, ready to pass to attachments.attach.
func HandleUploads(bridge *uploads.Bridge, metrics *observability.GatewayMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			renderError(c, apperr.BadInput("request is not valid multipart form data: %v", err))
			return
		}
		files := form.File["files"]

		refs, err := bridge.Process(c.Request.Context(), files)
		if err != nil {
			if metrics != nil {
				metrics.RecordUpload(uploadStatus(err), 0)
			}
			renderError(c, err)
			return
		}

		total := uploads.TotalBytes(refs)
		if metrics != nil {
			metrics.RecordUpload("success", total)
		}
		c.JSON(http.StatusOK, gin.H{
			"attachments":        refs,
			"totalSize":          total,
			"totalSizeFormatted": humanize.Bytes(uint64(total)),
		})
	}
}

// uploadStatus distinguishes policy rejections from persistence errors for
// metrics labeling.
func uploadStatus(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeTooManyFiles, apperr.CodeFileTooLarge, apperr.CodeBadInput:
		return "rejected"
	default:
		return "error"
	}
}
