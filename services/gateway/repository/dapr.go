// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
	"github.com/google/uuid"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

var (
	_ Factory    = (*daprFactory)(nil)
	_ Repository = (*daprRepository)(nil)
)

// daprIndexKey holds the JSON array of item ids. Dapr state stores have no
// native scan, so List is a read of the index followed by a bulk get, and
// every Create/Delete dual-writes the index alongside the item.
const daprIndexKey = "items-index"

// stateClient is the slice of the Dapr client the repository needs. Kept
// narrow so tests can substitute an in-process fake.
type stateClient interface {
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*dapr.StateItem, error)
	GetBulkState(ctx context.Context, storeName string, keys []string, meta map[string]string, parallelism int32) ([]*dapr.BulkStateItem, error)
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...dapr.StateOption) error
	SaveBulkState(ctx context.Context, storeName string, items ...*dapr.SetStateItem) error
	DeleteState(ctx context.Context, storeName, key string, meta map[string]string) error
	Close()
}

type daprFactory struct {
	storeName string

	// newClient is swapped in tests; production uses dapr.NewClient.
	newClient func() (stateClient, error)
}

func newDaprFactory(storeName string) *daprFactory {
	return &daprFactory{
		storeName: storeName,
		newClient: func() (stateClient, error) {
			c, err := dapr.NewClient()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (f *daprFactory) Create(_ context.Context) (Repository, error) {
	c, err := f.newClient()
	if err != nil {
		return nil, fmt.Errorf("dapr client: %w", err)
	}
	return &daprRepository{client: c, store: f.storeName}, nil
}

func (f *daprFactory) Connection() Connection {
	return Connection{Kind: KindDapr, StoreName: f.storeName, UsingDapr: true}
}

type daprRepository struct {
	client stateClient
	store  string
}

func (r *daprRepository) Get(ctx context.Context, id string) (*datatypes.Item, error) {
	st, err := r.client.GetState(ctx, r.store, id, nil)
	if err != nil {
		return nil, fmt.Errorf("dapr get item: %w", err)
	}
	if st == nil || len(st.Value) == 0 {
		return nil, nil
	}
	var item datatypes.Item
	if err := json.Unmarshal(st.Value, &item); err != nil {
		return nil, fmt.Errorf("dapr decode item: %w", err)
	}
	return &item, nil
}

func (r *daprRepository) List(ctx context.Context) ([]datatypes.Item, error) {
	ids, err := r.index(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []datatypes.Item{}, nil
	}

	bulk, err := r.client.GetBulkState(ctx, r.store, ids, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("dapr bulk get: %w", err)
	}
	items := make([]datatypes.Item, 0, len(bulk))
	for _, st := range bulk {
		// Index entries can outlive their item when a delete is interrupted
		// between the two writes; skip the stale ids.
		if len(st.Value) == 0 {
			continue
		}
		var item datatypes.Item
		if err := json.Unmarshal(st.Value, &item); err != nil {
			return nil, fmt.Errorf("dapr decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *daprRepository) Create(ctx context.Context, item datatypes.Item) (datatypes.Item, error) {
	item.ID = uuid.NewString()

	ids, err := r.index(ctx)
	if err != nil {
		return datatypes.Item{}, err
	}
	ids = append(ids, item.ID)

	itemRaw, err := json.Marshal(item)
	if err != nil {
		return datatypes.Item{}, fmt.Errorf("dapr encode item: %w", err)
	}
	idsRaw, err := json.Marshal(ids)
	if err != nil {
		return datatypes.Item{}, fmt.Errorf("dapr encode index: %w", err)
	}

	err = r.client.SaveBulkState(ctx, r.store,
		&dapr.SetStateItem{Key: item.ID, Value: itemRaw},
		&dapr.SetStateItem{Key: daprIndexKey, Value: idsRaw})
	if err != nil {
		return datatypes.Item{}, fmt.Errorf("dapr create item: %w", err)
	}
	return item, nil
}

func (r *daprRepository) Update(ctx context.Context, item datatypes.Item) (*datatypes.Item, error) {
	if item.ID == "" {
		return nil, nil
	}
	existing, err := r.Get(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("dapr encode item: %w", err)
	}
	if err := r.client.SaveState(ctx, r.store, item.ID, raw, nil); err != nil {
		return nil, fmt.Errorf("dapr update item: %w", err)
	}
	return &item, nil
}

func (r *daprRepository) Delete(ctx context.Context, id string) error {
	ids, err := r.index(ctx)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) != len(ids) {
		idsRaw, err := json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("dapr encode index: %w", err)
		}
		if err := r.client.SaveState(ctx, r.store, daprIndexKey, idsRaw, nil); err != nil {
			return fmt.Errorf("dapr update index: %w", err)
		}
	}
	if err := r.client.DeleteState(ctx, r.store, id, nil); err != nil {
		return fmt.Errorf("dapr delete item: %w", err)
	}
	return nil
}

func (r *daprRepository) Dispose(_ context.Context) error {
	r.client.Close()
	return nil
}

func (r *daprRepository) IsReal() bool { return true }

// index returns the current id index, treating a missing key as empty.
func (r *daprRepository) index(ctx context.Context) ([]string, error) {
	st, err := r.client.GetState(ctx, r.store, daprIndexKey, nil)
	if err != nil {
		return nil, fmt.Errorf("dapr get index: %w", err)
	}
	if st == nil || len(st.Value) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(st.Value, &ids); err != nil {
		return nil, fmt.Errorf("dapr decode index: %w", err)
	}
	return ids, nil
}
