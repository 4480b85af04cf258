// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/handlers"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/middleware"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/observability"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/procedures"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/uploads"
)

// Deps carries everything the route table needs. The store client itself is
// absent: it is constructed per request by the credential middleware.
type Deps struct {
	Registry      *procedures.Registry
	Bridge        *uploads.Bridge
	ClientFactory middleware.ClientFactory
	Logger        *logging.Logger
	Metrics       *observability.GatewayMetrics

	// AllowedOrigins is the CORS allowlist for the v1 surface.
	AllowedOrigins []string

	// RateLimiter is optional; nil disables rate limiting (tests).
	RateLimiter *middleware.RateLimiter
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.CORS(deps.AllowedOrigins))
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	v1.Use(middleware.RequireCredential(deps.ClientFactory, deps.Logger))
	{
		v1.POST("/rpc", handlers.HandleBatch(deps.Registry))
		v1.POST("/rpc/:procedure", handlers.HandleProcedure(deps.Registry))
		v1.POST("/uploads", handlers.HandleUploads(deps.Bridge, deps.Metrics))
	}
}
