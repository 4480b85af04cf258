// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server assembles the gateway: schema registry, query builder,
// procedure registry, upload bridge, middleware, and the HTTP router.
package server

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/config"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/middleware"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/observability"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/procedures"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/query"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/routes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/store"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/uploads"
)

const serviceName = "taylordb-gateway"

// InitTracer sets up OTLP trace export over gRPC and returns a shutdown
// function. Tracing is optional; an empty endpoint returns a no-op.
func InitTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			logging.Default().Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// LoadSchema resolves the schema registry from configuration: an explicit
// YAML file when given, the compiled-in starter schema otherwise.
func LoadSchema(cfg config.Config, logger *logging.Logger) (*datatypes.Registry, error) {
	if cfg.SchemaPath == "" {
		logger.Info("using the compiled-in starter schema")
		return datatypes.DefaultRegistry(), nil
	}
	schema, err := datatypes.LoadRegistry(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	logger.Info("schema loaded", "path", cfg.SchemaPath, "tables", schema.Tables())
	return schema, nil
}

// Build assembles the gin engine with every dependency wired. It is
// separate from Run so the CLI can assemble without listening.
func Build(cfg config.Config, logger *logging.Logger) (*gin.Engine, error) {
	schema, err := LoadSchema(cfg, logger)
	if err != nil {
		return nil, err
	}
	builder := query.NewBuilder(schema)

	metrics := observability.InitMetrics()

	registry := procedures.NewRegistry(logger, metrics)
	procedures.RegisterTaskProcedures(registry, builder, logger, metrics)
	procedures.RegisterAttachmentProcedures(registry, schema, builder, logger)

	diskStore, err := uploads.NewDiskStore(cfg.Upload.Dir)
	if err != nil {
		return nil, err
	}
	bridge := uploads.NewBridge(diskStore, uploads.Policy{
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileBytes: cfg.Upload.MaxFileBytes,
	}, logger)

	// One store client per request credential; the factory closes over the
	// static connection parameters only.
	restCfg := store.RESTConfig{
		BaseURL:    cfg.StoreBaseURL,
		DatabaseID: cfg.DatabaseID,
		Timeout:    cfg.StoreTimeout,
	}
	factory := func(token string) (store.Client, error) {
		return store.NewRESTClient(restCfg, token)
	}

	if cfg.ServiceToken != "" {
		svcClient, err := factory(cfg.ServiceToken)
		if err != nil {
			return nil, fmt.Errorf("failed to build the service store client: %w", err)
		}
		go probeStore(svcClient, schema, cfg.StoreTimeout, logger)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(router, routes.Deps{
		Registry:       registry,
		Bridge:         bridge,
		ClientFactory:  factory,
		Logger:         logger,
		Metrics:        metrics,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	})
	return router, nil
}

// probeStore checks store reachability with the service credential. A
// failure is logged, not fatal; request-scoped clients carry caller
// credentials and are built independently.
func probeStore(client store.Client, schema *datatypes.Registry, timeout time.Duration, logger *logging.Logger) {
	tables := schema.Tables()
	if len(tables) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	params := url.Values{}
	params.Set("limit", "1")
	if _, err := client.Select(ctx, store.Query{
		Kind:   store.QuerySelect,
		Table:  tables[0],
		Params: params,
	}); err != nil {
		logger.Warn("store probe failed", "table", tables[0], "error", err)
		return
	}
	logger.Info("store reachable", "table", tables[0])
}

// Run builds the gateway and serves it until the listener fails.
func Run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	cleanup, err := InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	router, err := Build(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting the gateway server", "port", cfg.Port)
	return router.Run(":" + cfg.Port)
}
