// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The gateway binary runs the chat service with configuration taken
// entirely from the environment. Container deployments use this entry
// point; the driftchat CLI wraps the same service for local development.
package main

import (
	"context"
	"log"

	"github.com/driftchat/driftchat/pkg/logging"
	"github.com/driftchat/driftchat/services/gateway"
)

func main() {
	logger := logging.New(logging.ConfigFromEnv("gateway"))
	defer logger.Close()

	ctx := context.Background()
	svc, err := gateway.New(ctx, gateway.ConfigFromEnv(), logger.Slog())
	if err != nil {
		log.Fatalf("gateway init failed: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("gateway stopped: %v", err)
	}
}
