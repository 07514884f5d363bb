// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/driftchat/driftchat/pkg/logging"
	"github.com/driftchat/driftchat/services/gateway"
	"github.com/driftchat/driftchat/services/gateway/chatstore"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "driftchat",
	Short: "Self-hosted AI chat service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; the environment may already be set.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not load env file",
				slog.String("path", envFile),
				slog.String("error", err.Error()))
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.Default()
		defer logger.Close()

		ctx := cmd.Context()
		svc, err := gateway.New(ctx, gateway.ConfigFromEnv(), logger.Slog())
		if err != nil {
			return fmt.Errorf("gateway init: %w", err)
		}
		return svc.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}

		logger := logging.Default()
		defer logger.Close()

		// NewPostgresStore applies the schema on connect.
		store, err := chatstore.NewPostgresStore(context.Background(), dsn, logger.Slog())
		if err != nil {
			return err
		}
		store.Close()
		fmt.Println("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an env file loaded before reading configuration")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
