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

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

var (
	_ Factory    = (*redisFactory)(nil)
	_ Repository = (*redisRepository)(nil)
)

// redisItemsKey is the hash holding all items, field = item id,
// value = JSON-encoded item.
const redisItemsKey = "items"

type redisFactory struct {
	url string
}

func newRedisFactory(url string) *redisFactory {
	return &redisFactory{url: url}
}

func (f *redisFactory) Create(ctx context.Context) (Repository, error) {
	opt, err := redis.ParseURL(f.url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisRepository{client: client}, nil
}

func (f *redisFactory) Connection() Connection {
	return Connection{Kind: KindRedis}
}

type redisRepository struct {
	client *redis.Client
}

func (r *redisRepository) Get(ctx context.Context, id string) (*datatypes.Item, error) {
	raw, err := r.client.HGet(ctx, redisItemsKey, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get item: %w", err)
	}
	var item datatypes.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("redis decode item: %w", err)
	}
	return &item, nil
}

func (r *redisRepository) List(ctx context.Context) ([]datatypes.Item, error) {
	raw, err := r.client.HGetAll(ctx, redisItemsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list items: %w", err)
	}
	items := make([]datatypes.Item, 0, len(raw))
	for _, v := range raw {
		var item datatypes.Item
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("redis decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *redisRepository) Create(ctx context.Context, item datatypes.Item) (datatypes.Item, error) {
	item.ID = uuid.NewString()
	if err := r.set(ctx, item); err != nil {
		return datatypes.Item{}, err
	}
	return item, nil
}

func (r *redisRepository) Update(ctx context.Context, item datatypes.Item) (*datatypes.Item, error) {
	if item.ID == "" {
		return nil, nil
	}
	exists, err := r.client.HExists(ctx, redisItemsKey, item.ID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis check item: %w", err)
	}
	if !exists {
		return nil, nil
	}
	if err := r.set(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *redisRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, redisItemsKey, id).Err(); err != nil {
		return fmt.Errorf("redis delete item: %w", err)
	}
	return nil
}

func (r *redisRepository) Dispose(_ context.Context) error {
	return r.client.Close()
}

func (r *redisRepository) IsReal() bool { return true }

func (r *redisRepository) set(ctx context.Context, item datatypes.Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis encode item: %w", err)
	}
	if err := r.client.HSet(ctx, redisItemsKey, item.ID, raw).Err(); err != nil {
		return fmt.Errorf("redis save item: %w", err)
	}
	return nil
}
