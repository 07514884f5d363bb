// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package repository provides the pluggable persistence layer behind the
// todo demo API: one uniform CRUD contract over five interchangeable
// backends (in-memory, Postgres, MongoDB, Redis, Dapr state store).
//
// Exactly one backend is selected at startup from an explicit Config; call
// sites never consult the environment. Repositories are acquired per
// request from the Factory and must be disposed on every exit path.
package repository

import (
	"context"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// Repository is the uniform CRUD contract over one storage backend.
//
// # Description
//
// "Not found" is never an error: Get and Update return (nil, nil) for a
// missing id, and Delete is idempotent. Errors are reserved for backend
// failures (connectivity, serialization).
//
// # Thread Safety
//
// Implementations are safe for concurrent use until Dispose is called.
//
// # Limitations
//
//   - List ordering is backend-native and not guaranteed to be stable
//     across backends. Callers must not rely on it.
type Repository interface {
	// Get returns the item with the given id, or (nil, nil) if absent.
	Get(ctx context.Context, id string) (*datatypes.Item, error)

	// List returns all items in backend-native order.
	List(ctx context.Context) ([]datatypes.Item, error)

	// Create assigns a fresh UUID to the item, persists it, and returns
	// the stored item.
	Create(ctx context.Context, item datatypes.Item) (datatypes.Item, error)

	// Update replaces an existing item. Returns (nil, nil) when the id is
	// empty or no item with that id exists; it never inserts.
	Update(ctx context.Context, item datatypes.Item) (*datatypes.Item, error)

	// Delete removes the item with the given id. A missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// Dispose releases the backend connection. Must be called exactly once
	// per repository returned by Factory.Create, on every exit path.
	Dispose(ctx context.Context) error

	// IsReal reports whether the backend is durable. Only the in-memory
	// backend returns false.
	IsReal() bool
}

// Factory constructs connected repositories for the selected backend.
type Factory interface {
	// Create returns a connected Repository. The caller owns Dispose.
	Create(ctx context.Context) (Repository, error)

	// Connection describes the selected backend for operational visibility.
	Connection() Connection
}

// Connection identifies the active backend in the todos list envelope.
type Connection struct {
	Kind      Kind   `json:"kind"`
	StoreName string `json:"storeName,omitempty"`
	UsingDapr bool   `json:"usingDapr"`
}

// Kind names a repository backend.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindPostgres Kind = "postgres"
	KindMongo    Kind = "mongodb"
	KindRedis    Kind = "redis"
	KindDapr     Kind = "dapr"
)
