// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds the connection settings for every supported backend. Fields
// left empty disqualify their backend from selection.
type Config struct {
	// DaprStateStore is the Dapr state store component name.
	DaprStateStore string

	// MongoURI is a full MongoDB connection string.
	MongoURI string

	// MongoDatabase overrides the database name. Defaults to "driftchat".
	MongoDatabase string

	// RedisURL is a redis:// connection URL.
	RedisURL string

	// Postgres settings. All five must be set for Postgres to qualify.
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
}

// ConfigFromEnv reads backend settings from CONNECTION_* environment
// variables. Empty values stay empty; selection happens in NewFactory.
func ConfigFromEnv() Config {
	return Config{
		DaprStateStore:   os.Getenv("CONNECTION_STATESTORE_COMPONENTNAME"),
		MongoURI:         os.Getenv("CONNECTION_MONGODB_CONNECTIONSTRING"),
		MongoDatabase:    os.Getenv("CONNECTION_MONGODB_DATABASE"),
		RedisURL:         os.Getenv("CONNECTION_REDIS_URL"),
		PostgresHost:     os.Getenv("CONNECTION_POSTGRES_HOST"),
		PostgresPort:     os.Getenv("CONNECTION_POSTGRES_PORT"),
		PostgresUser:     os.Getenv("CONNECTION_POSTGRES_USERNAME"),
		PostgresPassword: os.Getenv("CONNECTION_POSTGRES_PASSWORD"),
		PostgresDatabase: os.Getenv("CONNECTION_POSTGRES_DATABASE"),
	}
}

// hasPostgres reports whether every Postgres field is set.
func (c Config) hasPostgres() bool {
	return c.PostgresHost != "" && c.PostgresPort != "" && c.PostgresUser != "" &&
		c.PostgresPassword != "" && c.PostgresDatabase != ""
}

// postgresDSN builds a pgx connection string from the Postgres fields.
func (c Config) postgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDatabase)
}

// NewFactory selects exactly one backend from the config.
//
// # Description
//
// Precedence when multiple backends are configured: Dapr, then MongoDB,
// then Redis, then Postgres. With nothing configured the in-memory backend
// is selected so the service always starts.
//
// # Inputs
//
//   - cfg: Backend connection settings, typically from ConfigFromEnv.
//   - log: Structured logger. Must not be nil.
//
// # Outputs
//
//   - Factory: The factory for the selected backend. Never nil.
func NewFactory(cfg Config, log *slog.Logger) Factory {
	if log == nil {
		panic("repository.NewFactory: logger is required")
	}

	var f Factory
	switch {
	case cfg.DaprStateStore != "":
		f = newDaprFactory(cfg.DaprStateStore)
	case cfg.MongoURI != "":
		f = newMongoFactory(cfg.MongoURI, cfg.MongoDatabase)
	case cfg.RedisURL != "":
		f = newRedisFactory(cfg.RedisURL)
	case cfg.hasPostgres():
		f = newPostgresFactory(cfg.postgresDSN())
	default:
		f = newMemoryFactory()
	}

	conn := f.Connection()
	log.Info("repository backend selected",
		slog.String("kind", string(conn.Kind)),
		slog.String("store", conn.StoreName))
	return f
}
