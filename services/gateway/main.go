// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/config"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "gateway",
		JSON:    true,
	})
	defer logger.Close()

	if err := server.Run(context.Background(), cfg, logger); err != nil {
		log.Fatalf("gateway server failed: %v", err)
	}
}
