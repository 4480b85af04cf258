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
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/taylordb-gateway/pkg/logging"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/config"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/datatypes"
	"github.com/AleutianAI/taylordb-gateway/services/gateway/server"
)

// --- Global Command Variables ---
var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "taylorgate",
		Short: "A typed CRUD gateway in front of a TaylorDB database",
		Long: `taylorgate proxies typed CRUD procedures onto a hosted TaylorDB
database, validating every column, operator, and value against a
schema registry before the store is ever contacted.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Run:   runServe,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Print the active schema with per-column operators",
		Run:   runSchema,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to a YAML config file; keys mirror the environment variables.")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
}

// applyConfigFile reads the optional YAML config and projects its keys into
// the environment so config.Load sees one source of truth. Explicit env
// vars win over file values.
func applyConfigFile(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) == "" {
			os.Setenv(envKey, fmt.Sprintf("%v", v.Get(key)))
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) {
	if err := applyConfigFile(configFile); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "gateway",
		JSON:    true,
	})
	defer logger.Close()

	if err := server.Run(context.Background(), cfg, logger); err != nil {
		log.Fatalf("Gateway server failed: %v", err)
	}
}

func runSchema(cmd *cobra.Command, args []string) {
	if err := applyConfigFile(configFile); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	schemaPath := os.Getenv("GATEWAY_SCHEMA_PATH")
	var (
		registry *datatypes.Registry
		err      error
	)
	if schemaPath == "" {
		registry = datatypes.DefaultRegistry()
		fmt.Println("Schema: compiled-in starter schema")
	} else {
		registry, err = datatypes.LoadRegistry(schemaPath)
		if err != nil {
			log.Fatalf("Error loading schema: %v", err)
		}
		fmt.Printf("Schema: %s\n", schemaPath)
	}

	for _, table := range registry.Tables() {
		t, err := registry.Table(table)
		if err != nil {
			log.Fatalf("Error reading table %s: %v", table, err)
		}
		fmt.Printf("\n%s\n", table)
		for _, name := range t.ColumnNames() {
			col, err := t.Column(name)
			if err != nil {
				log.Fatalf("Error reading column %s: %v", name, err)
			}
			flags := ""
			if col.Required {
				flags += " required"
			}
			if col.Generated {
				flags += " generated"
			}
			fmt.Printf("  %-14s %-13s%s\n", name, col.Kind, flags)
			fmt.Printf("    operators: %s\n", strings.Join(col.Kind.FilterOperators(), ", "))
			if len(col.Options) > 0 {
				fmt.Printf("    options:   %s\n", strings.Join(col.Options, ", "))
			}
		}
	}
}
