// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// Compile-time interface checks.
var (
	_ Factory    = (*memoryFactory)(nil)
	_ Repository = (*memoryRepository)(nil)
)

// memoryFactory is the fallback backend when nothing is configured. All
// repositories it creates share one map, so data survives across requests
// within a process but not across restarts.
type memoryFactory struct {
	mu    sync.RWMutex
	items map[string]datatypes.Item
}

func newMemoryFactory() *memoryFactory {
	return &memoryFactory{items: make(map[string]datatypes.Item)}
}

func (f *memoryFactory) Create(_ context.Context) (Repository, error) {
	return &memoryRepository{f: f}, nil
}

func (f *memoryFactory) Connection() Connection {
	return Connection{Kind: KindMemory}
}

type memoryRepository struct {
	f *memoryFactory
}

func (r *memoryRepository) Get(_ context.Context, id string) (*datatypes.Item, error) {
	r.f.mu.RLock()
	defer r.f.mu.RUnlock()
	item, ok := r.f.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *memoryRepository) List(_ context.Context) ([]datatypes.Item, error) {
	r.f.mu.RLock()
	defer r.f.mu.RUnlock()
	out := make([]datatypes.Item, 0, len(r.f.items))
	for _, item := range r.f.items {
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryRepository) Create(_ context.Context, item datatypes.Item) (datatypes.Item, error) {
	item.ID = uuid.NewString()
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.items[item.ID] = item
	return item, nil
}

func (r *memoryRepository) Update(_ context.Context, item datatypes.Item) (*datatypes.Item, error) {
	if item.ID == "" {
		return nil, nil
	}
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.items[item.ID]; !ok {
		return nil, nil
	}
	r.f.items[item.ID] = item
	return &item, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.items, id)
	return nil
}

func (r *memoryRepository) Dispose(_ context.Context) error { return nil }

func (r *memoryRepository) IsReal() bool { return false }
