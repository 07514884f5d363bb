// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The driftchat CLI wraps the gateway for local development: it loads a
// .env file before reading configuration and adds a standalone migrate
// command.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("driftchat: %v", err)
	}
}
