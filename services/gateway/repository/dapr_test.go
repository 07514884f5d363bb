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
	"testing"

	dapr "github.com/dapr/go-sdk/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// fakeStateClient is an in-process Dapr state store.
type fakeStateClient struct {
	state  map[string][]byte
	closed bool
}

var _ stateClient = (*fakeStateClient)(nil)

func newFakeStateClient() *fakeStateClient {
	return &fakeStateClient{state: make(map[string][]byte)}
}

func (f *fakeStateClient) GetState(_ context.Context, _, key string, _ map[string]string) (*dapr.StateItem, error) {
	return &dapr.StateItem{Key: key, Value: f.state[key]}, nil
}

func (f *fakeStateClient) GetBulkState(_ context.Context, _ string, keys []string, _ map[string]string, _ int32) ([]*dapr.BulkStateItem, error) {
	out := make([]*dapr.BulkStateItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, &dapr.BulkStateItem{Key: k, Value: f.state[k]})
	}
	return out, nil
}

func (f *fakeStateClient) SaveState(_ context.Context, _, key string, data []byte, _ map[string]string, _ ...dapr.StateOption) error {
	f.state[key] = data
	return nil
}

func (f *fakeStateClient) SaveBulkState(_ context.Context, _ string, items ...*dapr.SetStateItem) error {
	for _, it := range items {
		f.state[it.Key] = it.Value
	}
	return nil
}

func (f *fakeStateClient) DeleteState(_ context.Context, _, key string, _ map[string]string) error {
	delete(f.state, key)
	return nil
}

func (f *fakeStateClient) Close() { f.closed = true }

func newTestDaprRepo(t *testing.T) (*daprRepository, *fakeStateClient) {
	t.Helper()
	fake := newFakeStateClient()
	f := newDaprFactory("statestore")
	f.newClient = func() (stateClient, error) { return fake, nil }
	repo, err := f.Create(context.Background())
	require.NoError(t, err)
	return repo.(*daprRepository), fake
}

func TestDaprRepository_CreateMaintainsIndex(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestDaprRepo(t)

	a, err := repo.Create(ctx, datatypes.Item{Title: "first"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, datatypes.Item{Title: "second"})
	require.NoError(t, err)

	var ids []string
	require.NoError(t, json.Unmarshal(fake.state[daprIndexKey], &ids))
	assert.Equal(t, []string{a.ID, b.ID}, ids)

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDaprRepository_DeleteRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestDaprRepo(t)

	a, err := repo.Create(ctx, datatypes.Item{Title: "keep"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, datatypes.Item{Title: "drop"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, b.ID))

	var ids []string
	require.NoError(t, json.Unmarshal(fake.state[daprIndexKey], &ids))
	assert.Equal(t, []string{a.ID}, ids)
	assert.NotContains(t, fake.state, b.ID)
}

func TestDaprRepository_ListSkipsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	repo, fake := newTestDaprRepo(t)

	a, err := repo.Create(ctx, datatypes.Item{Title: "live"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, datatypes.Item{Title: "ghost"})
	require.NoError(t, err)

	// Simulate a delete interrupted after the item write: the index still
	// references an id whose state is gone.
	for k := range fake.state {
		if k != daprIndexKey && k != a.ID {
			delete(fake.state, k)
		}
	}

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "live", items[0].Title)
}

func TestDaprRepository_UpdateMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestDaprRepo(t)

	updated, err := repo.Update(ctx, datatypes.Item{ID: "absent", Title: "x"})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDaprRepository_DisposeClosesClient(t *testing.T) {
	repo, fake := newTestDaprRepo(t)
	require.NoError(t, repo.Dispose(context.Background()))
	assert.True(t, fake.closed)
}
