// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

var (
	_ Factory    = (*postgresFactory)(nil)
	_ Repository = (*postgresRepository)(nil)
)

const postgresItemsSchema = `
CREATE TABLE IF NOT EXISTS items (
    id         UUID PRIMARY KEY,
    title      TEXT NOT NULL,
    done       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// postgresFactory opens a fresh pool per repository; the table is created
// on first connect so the backend works against an empty database.
type postgresFactory struct {
	dsn string
}

func newPostgresFactory(dsn string) *postgresFactory {
	return &postgresFactory{dsn: dsn}
}

func (f *postgresFactory) Create(ctx context.Context) (Repository, error) {
	pool, err := pgxpool.New(ctx, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresItemsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ensure schema: %w", err)
	}
	return &postgresRepository{pool: pool}, nil
}

func (f *postgresFactory) Connection() Connection {
	return Connection{Kind: KindPostgres}
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*datatypes.Item, error) {
	var item datatypes.Item
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, done FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.Title, &item.Done)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get item: %w", err)
	}
	return &item, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]datatypes.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, done FROM items ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres list items: %w", err)
	}
	defer rows.Close()

	items := []datatypes.Item{}
	for rows.Next() {
		var item datatypes.Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Done); err != nil {
			return nil, fmt.Errorf("postgres scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *postgresRepository) Create(ctx context.Context, item datatypes.Item) (datatypes.Item, error) {
	item.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO items (id, title, done) VALUES ($1, $2, $3)`,
		item.ID, item.Title, item.Done)
	if err != nil {
		return datatypes.Item{}, fmt.Errorf("postgres create item: %w", err)
	}
	return item, nil
}

func (r *postgresRepository) Update(ctx context.Context, item datatypes.Item) (*datatypes.Item, error) {
	if item.ID == "" {
		return nil, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE items SET title = $2, done = $3 WHERE id = $1`,
		item.ID, item.Title, item.Done)
	if err != nil {
		return nil, fmt.Errorf("postgres update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres delete item: %w", err)
	}
	return nil
}

func (r *postgresRepository) Dispose(_ context.Context) error {
	r.pool.Close()
	return nil
}

func (r *postgresRepository) IsReal() bool { return true }
