// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

func TestMemoryRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory()
	repo, err := f.Create(ctx)
	require.NoError(t, err)
	defer repo.Dispose(ctx)

	assert.False(t, repo.IsReal())

	// Create assigns a fresh id.
	created, err := repo.Create(ctx, datatypes.Item{Title: "write tests"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "write tests", created.Title)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created, *got)

	// Update replaces in place.
	created.Done = true
	updated, err := repo.Update(ctx, created)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.Done)

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, repo.Delete(ctx, created.ID))
	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepository_MissesAreNotErrors(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory()
	repo, err := f.Create(ctx)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := repo.Update(ctx, datatypes.Item{ID: "no-such-id", Title: "x"})
	require.NoError(t, err)
	assert.Nil(t, updated)

	// Update with no id never inserts.
	updated, err = repo.Update(ctx, datatypes.Item{Title: "x"})
	require.NoError(t, err)
	assert.Nil(t, updated)

	assert.NoError(t, repo.Delete(ctx, "no-such-id"))
}

func TestMemoryRepository_SharedAcrossCreates(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFactory()

	first, err := f.Create(ctx)
	require.NoError(t, err)
	created, err := first.Create(ctx, datatypes.Item{Title: "shared"})
	require.NoError(t, err)
	require.NoError(t, first.Dispose(ctx))

	// A later repository from the same factory sees earlier writes.
	second, err := f.Create(ctx)
	require.NoError(t, err)
	got, err := second.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "shared", got.Title)
}
